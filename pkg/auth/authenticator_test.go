package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAuthenticatorLogin(t *testing.T) {
	h := testHasher()
	hash, err := h.Hash("s3cret-password")
	require.NoError(t, err)

	a := NewAuthenticator([]Account{
		{Username: "admin", Email: "admin@example.com", PasswordHash: hash},
		{Username: "broken", PasswordHash: "not-a-hash"},
	}, h, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	user, err := a.Login(ctx, "admin", "s3cret-password")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)
	assert.Equal(t, RoleAdmin, user.Role)
	assert.Equal(t, UserID("admin"), user.ID)

	for _, tc := range []struct{ user, pass string }{
		{"admin", "wrong"},
		{"nobody", "s3cret-password"},
		{"", ""},
		{"broken", "anything"},
	} {
		_, err := a.Login(ctx, tc.user, tc.pass)
		assert.ErrorIs(t, err, ErrInvalidCredentials, tc.user)
	}
}

func TestUserIDStable(t *testing.T) {
	assert.Equal(t, UserID("admin"), UserID("admin"))
	assert.NotEqual(t, UserID("admin"), UserID("other"))
}
