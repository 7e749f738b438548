// Package cli implements deskctl, the operator command line for the support desk.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/persistence"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/service"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Backend is what the commands need from the database.
type Backend interface {
	Users() repository.UserRepository
	MigrateUp(ctx context.Context) error
	MigrateDown(ctx context.Context) error
	MigrationVersion(ctx context.Context) (int64, error)
	Close()
}

// Options wires the command tree to its environment.
type Options struct {
	// LoadConfig defaults to config.Load.
	LoadConfig func() (*config.Config, error)
	// OpenBackend defaults to a Postgres connection built from the config.
	OpenBackend func(ctx context.Context, cfg *config.Config) (Backend, error)
	// ReadPassword defaults to a no-echo terminal prompt.
	ReadPassword func(prompt string) (string, error)
}

type app struct {
	opts Options
	cfg  *config.Config
}

// NewRootCmd builds the deskctl command tree.
func NewRootCmd(opts Options) *cobra.Command {
	if opts.LoadConfig == nil {
		opts.LoadConfig = config.Load
	}
	if opts.OpenBackend == nil {
		opts.OpenBackend = openPostgresBackend
	}
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:   "deskctl",
		Short: "Operator tooling for the support desk",
		Long: `deskctl manages the support desk database: schema migrations and
user accounts, including granting staff rights.

Configuration is read from the environment (and a .env file) exactly as the API does.`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.opts.LoadConfig()
			if err != nil {
				return ErrConfig("load config: %v", err)
			}
			a.cfg = cfg
			return nil
		},
	}
	if a.opts.ReadPassword == nil {
		a.opts.ReadPassword = newPasswordReader(root)
	}

	root.AddCommand(a.migrateCmd())
	root.AddCommand(a.usersCmd())
	return root
}

// Execute runs deskctl with default options and returns the process exit code.
func Execute(stderr io.Writer) int {
	if err := NewRootCmd(Options{}).Execute(); err != nil {
		fmt.Fprintln(stderr, FormatErrorMessage(err))
		return ExitCode(err)
	}
	return ExitSuccess
}

func (a *app) withBackend(ctx context.Context, fn func(Backend) error) error {
	backend, err := a.opts.OpenBackend(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer backend.Close()
	return fn(backend)
}

func (a *app) authService(backend Backend) *service.AuthService {
	return service.NewAuthService(*a.cfg, service.AuthDependencies{UserRepo: backend.Users()})
}

type postgresBackend struct {
	pg    *persistence.Postgres
	store repository.Store
}

func openPostgresBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	if cfg.Postgres.DSN == "" {
		return nil, ErrConfig("POSTGRES_DSN is required")
	}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, zap.NewNop())
	if err != nil {
		return nil, ErrDatabase(err, "connect to postgres")
	}
	return &postgresBackend{pg: pg, store: repository.NewPostgresStore(pg.PoolHandle())}, nil
}

func (b *postgresBackend) Users() repository.UserRepository { return b.store.Users() }

func (b *postgresBackend) MigrateUp(ctx context.Context) error {
	return persistence.RunMigrations(ctx, b.pg.PoolHandle(), zap.NewNop())
}

func (b *postgresBackend) MigrateDown(ctx context.Context) error {
	return persistence.RollbackMigration(ctx, b.pg.PoolHandle())
}

func (b *postgresBackend) MigrationVersion(ctx context.Context) (int64, error) {
	return persistence.MigrationVersion(ctx, b.pg.PoolHandle())
}

func (b *postgresBackend) Close() { b.pg.Close() }
