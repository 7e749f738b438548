package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

const (
	minPasswordLength = 8
	maxUsernameLength = 150
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// AuthService coordinates registration, login and account administration.
type AuthService struct {
	users      repository.UserRepository
	revoked    auth.RevocationList
	tokenMgr   *auth.TokenManager
	bcryptCost int
	now        func() time.Time
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo    repository.UserRepository
	Revocations auth.RevocationList
}

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	Password2 string
}

// CreateUserInput is used by operators to provision accounts directly.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	Staff    bool
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	return &AuthService{
		users:      deps.UserRepo,
		revoked:    deps.Revocations,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL()),
		bcryptCost: cfg.Auth.BcryptCost,
		now:        time.Now,
	}
}

// RegisterUser creates a regular account and signs a token for it.
func (s *AuthService) RegisterUser(ctx context.Context, input RegisterInput) (*domain.User, string, time.Time, error) {
	details := validateAccount(input.Username, input.Email, input.Password)
	if input.Password != input.Password2 {
		details["password2"] = "password fields didn't match"
	}
	if len(details) > 0 {
		return nil, "", time.Time{}, apperrors.NewValidationError("invalid registration", details)
	}

	user, err := s.createUser(ctx, CreateUserInput{
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password,
	})
	if err != nil {
		return nil, "", time.Time{}, err
	}

	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.IsStaff)
	if err != nil {
		return nil, "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return user, token, exp, nil
}

// LoginUser authenticates by username and password.
func (s *AuthService) LoginUser(ctx context.Context, username, password string) (*domain.User, string, time.Time, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, fmt.Errorf("load user: %w", err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	if !user.IsActive {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("user inactive")
	}
	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.IsStaff)
	if err != nil {
		return nil, "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return user, token, exp, nil
}

// Logout revokes the token until its natural expiry. Without a revocation list
// tokens stay valid and logout is a no-op.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if s.revoked == nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if err := s.revoked.Revoke(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// CreateUser provisions an account, optionally with staff rights.
func (s *AuthService) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	if details := validateAccount(input.Username, input.Email, input.Password); len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid user", details)
	}
	return s.createUser(ctx, input)
}

// SetStaff grants or revokes staff rights.
func (s *AuthService) SetStaff(ctx context.Context, username string, staff bool) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", map[string]any{"username": username})
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	user.IsStaff = staff
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) createUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		Username:     strings.TrimSpace(input.Username),
		Email:        strings.TrimSpace(input.Email),
		PasswordHash: hash,
		IsStaff:      input.Staff,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("username already taken", map[string]any{"username": user.Username})
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func validateAccount(username, email, password string) map[string]any {
	details := map[string]any{}
	username = strings.TrimSpace(username)
	switch {
	case username == "":
		details["username"] = "this field is required"
	case len(username) > maxUsernameLength:
		details["username"] = fmt.Sprintf("ensure this field has no more than %d characters", maxUsernameLength)
	case !usernamePattern.MatchString(username):
		details["username"] = "only letters, digits and @/./+/-/_ are allowed"
	}
	email = strings.TrimSpace(email)
	if email == "" {
		details["email"] = "this field is required"
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		details["email"] = "enter a valid email address"
	}
	if len(password) < minPasswordLength {
		details["password"] = fmt.Sprintf("password must be at least %d characters", minPasswordLength)
	}
	return details
}
