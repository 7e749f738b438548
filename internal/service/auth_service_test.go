package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/repository/memory"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

type fakeRevocations struct {
	revoked map[string]time.Duration
}

func (f *fakeRevocations) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	f.revoked[tokenID] = ttl
	return nil
}

func (f *fakeRevocations) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	_, ok := f.revoked[tokenID]
	return ok, nil
}

func newAuthService(t *testing.T) (*AuthService, *fakeRevocations) {
	t.Helper()
	cfg := config.Config{Auth: config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 30,
		BcryptCost:            bcrypt.MinCost,
	}}
	revocations := &fakeRevocations{revoked: map[string]time.Duration{}}
	svc := NewAuthService(cfg, AuthDependencies{
		UserRepo:    memory.NewStore().Users(),
		Revocations: revocations,
	})
	return svc, revocations
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	user, token, exp, err := svc.RegisterUser(ctx, RegisterInput{
		Username:  "alice",
		Email:     "alice@example.com",
		Password:  "correct-horse",
		Password2: "correct-horse",
	})
	require.NoError(t, err)
	assert.False(t, user.IsStaff)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "correct-horse", user.PasswordHash)
	assert.NotEmpty(t, token)
	assert.True(t, exp.After(time.Now()))

	claims, err := svc.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID())

	loggedIn, _, _, err := svc.LoginUser(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)

	_, _, _, err = svc.LoginUser(ctx, "alice", "wrong-password")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, _, _, err = svc.LoginUser(ctx, "nobody", "correct-horse")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	_, _, _, err := svc.RegisterUser(ctx, RegisterInput{
		Username:  "bad name",
		Email:     "not-an-email",
		Password:  "short",
		Password2: "different",
	})
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeValidation, domainErr.Code)
	for _, field := range []string{"username", "email", "password", "password2"} {
		assert.Contains(t, domainErr.Details, field)
	}

	input := RegisterInput{Username: "bob", Email: "bob@example.com", Password: "long-enough", Password2: "long-enough"}
	_, _, _, err = svc.RegisterUser(ctx, input)
	require.NoError(t, err)
	_, _, _, err = svc.RegisterUser(ctx, input)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
}

func TestCreateUserAndSetStaff(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, CreateUserInput{
		Username: "sam",
		Email:    "sam@example.com",
		Password: "operator-pass",
		Staff:    true,
	})
	require.NoError(t, err)
	assert.True(t, user.IsStaff)

	user, err = svc.SetStaff(ctx, "sam", false)
	require.NoError(t, err)
	assert.False(t, user.IsStaff)

	_, err = svc.SetStaff(ctx, "ghost", true)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, revocations := newAuthService(t)
	ctx := context.Background()

	_, token, _, err := svc.RegisterUser(ctx, RegisterInput{
		Username:  "carol",
		Email:     "carol@example.com",
		Password:  "long-enough",
		Password2: "long-enough",
	})
	require.NoError(t, err)
	claims, err := svc.TokenManager().ParseToken(token)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, claims))
	ttl, ok := revocations.revoked[claims.ID]
	require.True(t, ok)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 30*time.Minute)
}
