package ports

// Session describes the signed-in user.
type Session struct {
	UserID string
	Role   string
}

// PermissionGate decides whether the current session may perform action.
// Actions are "<entity>.<op>", for example "customers.delete".
type PermissionGate interface {
	HasPermission(action string) bool
}

// AuthNotifier publishes session changes.
type AuthNotifier interface {
	OnAuthChange(handler func(Session)) (unsubscribe func())
}
