package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/afero"

	"evolvedvault.dev/internal/config"
	"evolvedvault.dev/internal/vault"
)

// Application is what the root command drives. Execute is called exactly
// once per Run; if the application is also an io.Closer it is closed after.
type Application interface {
	Execute(ctx context.Context) error
}

// Environment carries the process facilities an application may use.
type Environment struct {
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
	Fs         afero.Fs
	Logger     *slog.Logger
	VaultPath  string
	Invocation string
}

// AppFactory constructs the application for one invocation.
type AppFactory func(inv InvocationConfig, cfg *config.Config, env Environment) (Application, error)

// NewVaultApp is the default AppFactory.
func NewVaultApp(inv InvocationConfig, cfg *config.Config, env Environment) (Application, error) {
	return vault.New(vault.Options{
		Invocation:  env.Invocation,
		Verbose:     inv.Verbose,
		Input:       inv.Input,
		Output:      inv.Output,
		Path:        env.VaultPath,
		LockTimeout: cfg.LockTimeoutDuration(),
		Journal:     cfg.Journal,
	},
		vault.WithFilesystem(env.Fs),
		vault.WithStreams(env.Stdin, env.Stdout),
		vault.WithLogger(env.Logger),
	), nil
}
