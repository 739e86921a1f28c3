package auth

import (
	"strings"
	"sync"

	"github.com/bft-labs/washline/internal/ports"
)

var (
	_ ports.PermissionGate = (*SessionGate)(nil)
	_ ports.AuthNotifier   = (*SessionGate)(nil)
	_ ports.PermissionGate = AllowAll{}
)

// Roles.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// DefaultRoles maps roles to the actions they grant. "*" matches any
// action and "<entity>.*" any operation on one entity.
var DefaultRoles = map[string][]string{
	RoleAdmin: {"*"},
	RoleOperator: {
		"customers.create", "customers.update",
		"packages.create", "packages.update",
		"containers.create", "containers.update",
		"stock.create", "stock.update",
	},
	RoleViewer: {},
}

// AllowAll grants every action.
type AllowAll struct{}

// HasPermission always returns true.
func (AllowAll) HasPermission(string) bool { return true }

// SessionGate grants actions according to the role of the current session.
// Without a session nothing is granted.
type SessionGate struct {
	secret string
	roles  map[string][]string

	mu      sync.RWMutex
	session *ports.Session
	nextID  int
	subs    map[int]func(ports.Session)
}

// NewSessionGate creates a gate verifying tokens with secret. A nil roles
// map uses DefaultRoles.
func NewSessionGate(secret string, roles map[string][]string) *SessionGate {
	if roles == nil {
		roles = DefaultRoles
	}
	return &SessionGate{secret: secret, roles: roles, subs: make(map[int]func(ports.Session))}
}

// SignIn verifies token and makes its session current.
func (g *SessionGate) SignIn(token string) (ports.Session, error) {
	s, err := Parse(g.secret, token)
	if err != nil {
		return ports.Session{}, err
	}
	g.SetSession(s)
	return s, nil
}

// SetSession replaces the current session and notifies subscribers.
func (g *SessionGate) SetSession(s ports.Session) {
	g.mu.Lock()
	g.session = &s
	handlers := g.handlersLocked()
	g.mu.Unlock()

	for _, fn := range handlers {
		fn(s)
	}
}

// SignOut clears the session. Subscribers receive an empty session.
func (g *SessionGate) SignOut() {
	g.mu.Lock()
	g.session = nil
	handlers := g.handlersLocked()
	g.mu.Unlock()

	for _, fn := range handlers {
		fn(ports.Session{})
	}
}

// Session returns the current session.
func (g *SessionGate) Session() (ports.Session, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return ports.Session{}, false
	}
	return *g.session, true
}

// HasPermission reports whether the current role grants action.
func (g *SessionGate) HasPermission(action string) bool {
	s, ok := g.Session()
	if !ok {
		return false
	}
	for _, pattern := range g.roles[s.Role] {
		if matchAction(pattern, action) {
			return true
		}
	}
	return false
}

// OnAuthChange registers handler for session changes.
func (g *SessionGate) OnAuthChange(handler func(ports.Session)) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID
	g.nextID++
	g.subs[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			delete(g.subs, id)
		})
	}
}

func (g *SessionGate) handlersLocked() []func(ports.Session) {
	out := make([]func(ports.Session), 0, len(g.subs))
	for _, fn := range g.subs {
		out = append(out, fn)
	}
	return out
}

func matchAction(pattern, action string) bool {
	if pattern == "*" || pattern == action {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(action, prefix+".")
	}
	return false
}
