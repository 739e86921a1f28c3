package netprobe

import "github.com/bft-labs/washline/internal/ports"

var _ ports.Connectivity = (*Switch)(nil)

// Switch is a manually driven connectivity source.
type Switch struct {
	*hub
}

// NewSwitch creates a switch in the given state.
func NewSwitch(online bool) *Switch {
	return &Switch{hub: newHub(online)}
}

// Set changes the state, notifying subscribers on a transition.
func (s *Switch) Set(online bool) {
	s.set(online)
}
