package ports

// Connectivity publishes online/offline transitions.
type Connectivity interface {
	// Online reports the last known state.
	Online() bool

	// Subscribe registers handler for transitions. The returned function
	// removes the subscription.
	Subscribe(handler func(online bool)) (unsubscribe func())
}
