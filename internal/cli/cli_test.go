package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/repository/memory"
)

type fakeBackend struct {
	store   *memory.Store
	version int64
	fail    error
}

func (f *fakeBackend) Users() repository.UserRepository { return f.store.Users() }

func (f *fakeBackend) MigrateUp(context.Context) error {
	if f.fail != nil {
		return f.fail
	}
	f.version = 3
	return nil
}

func (f *fakeBackend) MigrateDown(context.Context) error {
	f.version--
	return nil
}

func (f *fakeBackend) MigrationVersion(context.Context) (int64, error) { return f.version, nil }

func (f *fakeBackend) Close() {}

func run(t *testing.T, backend *fakeBackend, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(Options{
		LoadConfig: func() (*config.Config, error) {
			return &config.Config{Auth: config.AuthConfig{JWTSecret: "x", BcryptCost: bcrypt.MinCost}}, nil
		},
		OpenBackend: func(context.Context, *config.Config) (Backend, error) { return backend, nil },
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateCommands(t *testing.T) {
	backend := &fakeBackend{store: memory.NewStore()}

	out, err := run(t, backend, "", "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version: 3")

	out, err = run(t, backend, "", "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version: 2")

	out, err = run(t, backend, "", "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version: 2")

	backend.fail = errors.New("connection refused")
	_, err = run(t, backend, "", "migrate", "up")
	require.Error(t, err)
	assert.Equal(t, ExitDBError, ExitCode(err))
}

func TestUsersCreateWithPipedPassword(t *testing.T) {
	backend := &fakeBackend{store: memory.NewStore()}

	out, err := run(t, backend, "s3cret-pass\ns3cret-pass\n",
		"users", "create", "--username", "sam", "--email", "sam@example.com", "--staff")
	require.NoError(t, err)
	assert.Contains(t, out, "created user sam")
	assert.Contains(t, out, "staff=true")

	user, err := backend.store.Users().GetByUsername(context.Background(), "sam")
	require.NoError(t, err)
	assert.True(t, user.IsStaff)
	assert.NoError(t, auth.ComparePassword(user.PasswordHash, "s3cret-pass"))
}

func TestUsersCreateErrors(t *testing.T) {
	backend := &fakeBackend{store: memory.NewStore()}

	_, err := run(t, backend, "first-pass\nsecond-pass\n",
		"users", "create", "--username", "sam", "--email", "sam@example.com")
	require.Error(t, err)
	assert.Equal(t, ExitInvalidArgs, ExitCode(err))

	_, err = run(t, backend, "", "users", "create", "--username", "sam", "--email", "bad", "--password", "long-enough")
	require.Error(t, err)
	assert.Equal(t, ExitInvalidArgs, ExitCode(err))
	assert.Contains(t, FormatErrorMessage(err), "email:")

	_, err = run(t, backend, "", "users", "create", "--username", "sam", "--email", "sam@example.com", "--password", "long-enough")
	require.NoError(t, err)
	_, err = run(t, backend, "", "users", "create", "--username", "sam", "--email", "sam@example.com", "--password", "long-enough")
	require.Error(t, err)
	assert.Equal(t, ExitConflict, ExitCode(err))
}

func TestUsersSetStaff(t *testing.T) {
	backend := &fakeBackend{store: memory.NewStore()}
	_, err := run(t, backend, "", "users", "create", "--username", "sam", "--email", "sam@example.com", "--password", "long-enough")
	require.NoError(t, err)

	out, err := run(t, backend, "", "users", "set-staff", "sam", "--staff=true")
	require.NoError(t, err)
	assert.Contains(t, out, "staff=true")

	_, err = run(t, backend, "", "users", "set-staff", "sam")
	require.Error(t, err)
	assert.Equal(t, ExitInvalidArgs, ExitCode(err))

	_, err = run(t, backend, "", "users", "set-staff", "ghost", "--staff=false")
	require.Error(t, err)
	assert.Equal(t, ExitNotFound, ExitCode(err))
}
