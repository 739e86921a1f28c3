package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/washline/internal/ports"
)

const secret = "test-secret"

func TestSignParse(t *testing.T) {
	tok, err := Sign(secret, "u1", RoleOperator, time.Hour)
	require.NoError(t, err)

	s, err := Parse(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, ports.Session{UserID: "u1", Role: RoleOperator}, s)

	_, err = Parse("other-secret", tok)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	expired, err := Sign(secret, "u1", RoleAdmin, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(secret, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionGate_Roles(t *testing.T) {
	g := NewSessionGate(secret, nil)
	assert.False(t, g.HasPermission("customers.create"), "no session grants nothing")

	tests := []struct {
		role   string
		action string
		want   bool
	}{
		{RoleAdmin, "customers.delete", true},
		{RoleOperator, "packages.update", true},
		{RoleOperator, "stock.create", true},
		{RoleOperator, "customers.delete", false},
		{RoleViewer, "stock.update", false},
		{"unknown", "stock.update", false},
	}
	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.action, func(t *testing.T) {
			g.SetSession(ports.Session{UserID: "u", Role: tt.role})
			assert.Equal(t, tt.want, g.HasPermission(tt.action))
		})
	}
}

func TestSessionGate_EntityWildcard(t *testing.T) {
	g := NewSessionGate(secret, map[string][]string{"clerk": {"stock.*"}})
	g.SetSession(ports.Session{UserID: "u", Role: "clerk"})

	assert.True(t, g.HasPermission("stock.delete"))
	assert.False(t, g.HasPermission("stockroom.delete"))
	assert.False(t, g.HasPermission("customers.create"))
}

func TestSessionGate_OnAuthChange(t *testing.T) {
	g := NewSessionGate(secret, nil)
	var got []ports.Session
	unsubscribe := g.OnAuthChange(func(s ports.Session) { got = append(got, s) })

	tok, err := Sign(secret, "u1", RoleAdmin, time.Hour)
	require.NoError(t, err)
	_, err = g.SignIn(tok)
	require.NoError(t, err)
	g.SignOut()

	unsubscribe()
	unsubscribe()
	g.SetSession(ports.Session{UserID: "u2"})

	require.Len(t, got, 2)
	assert.Equal(t, "u1", got[0].UserID)
	assert.Equal(t, ports.Session{}, got[1])

	_, ok := g.Session()
	assert.True(t, ok)
}

func TestAllowAll(t *testing.T) {
	assert.True(t, AllowAll{}.HasPermission("anything.delete"))
}
