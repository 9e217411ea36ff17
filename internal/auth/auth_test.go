package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/locate-service/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 15)
	user := &domain.User{ID: "u-1", OrganizationID: "org-1", Role: domain.RoleSupervisor}

	token, exp, err := tm.GenerateToken(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "org-1", claims.OrganizationID)
	assert.Equal(t, domain.RoleSupervisor, claims.Role)

	meta := claims.Token()
	assert.Equal(t, "u-1", meta.SubjectID)
	assert.Equal(t, exp.Truncate(time.Second), meta.ExpiresAt.Truncate(time.Second))
	assert.False(t, meta.IssuedAt.After(meta.ExpiresAt))
}

func TestTokenRejectsOtherSecretAndExpiry(t *testing.T) {
	user := &domain.User{ID: "u-1", Role: domain.RoleCrew}
	token, _, err := NewTokenManager("a", 5).GenerateToken(user)
	require.NoError(t, err)

	_, err = NewTokenManager("b", 5).ParseToken(token)
	assert.Error(t, err)

	stale := NewTokenManager("a", 5)
	stale.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err = stale.GenerateToken(user)
	require.NoError(t, err)
	_, err = NewTokenManager("a", 5).ParseToken(token)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("dig-safe", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "dig-safe"))
	assert.Error(t, ComparePassword(hash, "dig-fast"))
}
