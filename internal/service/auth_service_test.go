package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/locate-service/internal/auth"
	"github.com/spec-kit/locate-service/internal/config"
	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/repository/memory"
	apperrors "github.com/spec-kit/locate-service/pkg/util/errorutil"
)

func newAuthService(store *memory.Store) *AuthService {
	return NewAuthService(config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 15,
		BcryptCost:            bcrypt.MinCost,
	}, AuthDependencies{UserRepo: store.Users()})
}

func TestCreateUserAndLogin(t *testing.T) {
	store := memory.NewStore()
	svc := newAuthService(store)
	ctx := testContext(t)

	user, err := svc.CreateUser(ctx, CreateUserInput{
		OrganizationID: "org-1",
		Name:           "Dana Crew",
		Email:          "  Dana@Example.com ",
		Phone:          "+15550100",
		Password:       "correct horse",
		Role:           domain.RoleCrew,
	})
	require.NoError(t, err)
	assert.Equal(t, "dana@example.com", user.Email)
	assert.NotEqual(t, "correct horse", user.PasswordHash)
	assert.True(t, user.Active)

	_, err = svc.CreateUser(ctx, CreateUserInput{
		OrganizationID: "org-2", Name: "Other", Email: "dana@example.com",
		Password: "another password", Role: domain.RoleCrew,
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	loggedIn, token, _, err := svc.Login(ctx, "DANA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	claims, err := svc.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, domain.RoleCrew, claims.Role)

	_, _, _, err = svc.Login(ctx, "dana@example.com", "wrong")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	_, _, _, err = svc.Login(ctx, "nobody@example.com", "correct horse")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}

func TestCreateUserValidation(t *testing.T) {
	svc := newAuthService(memory.NewStore())
	_, err := svc.CreateUser(testContext(t), CreateUserInput{Email: "not-an-email", Password: "short", Role: "JANITOR"})
	require.Error(t, err)
	de := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeValidation, de.Code)
	for _, field := range []string{"organization_id", "name", "email", "password", "role"} {
		assert.Contains(t, de.Details, field)
	}
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	store := memory.NewStore()
	svc := newAuthService(store)
	hash, err := auth.HashPassword("long enough", bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, store.Users().Create(testContext(t), &domain.User{
		ID: "u-off", OrganizationID: "org-1", Email: "off@example.com",
		PasswordHash: hash, Role: domain.RoleCrew, Active: false,
	}))

	_, _, _, err = svc.Login(testContext(t), "off@example.com", "long enough")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}
