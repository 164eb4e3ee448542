package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"evolvedvault.dev/internal/config"
	"evolvedvault.dev/internal/ctxlog"
	vfs "evolvedvault.dev/internal/fs"
)

const Version = "0.4.0"

// CLI represents the command-line interface. It holds only construction-time
// dependencies; everything derived from a command line lives in a session
// created by Run.
type CLI struct {
	appFactory       AppFactory
	configOptions    []config.Option
	fs               afero.Fs
	terminalDetector TerminalDetector
	now              func() time.Time
	newInvocationID  func() string
}

// Option configures a CLI.
type Option func(*CLI)

// WithAppFactory replaces the application constructed by the root command.
func WithAppFactory(factory AppFactory) Option {
	return func(c *CLI) {
		c.appFactory = factory
	}
}

// WithConfigOptions passes options through to the configuration manager.
func WithConfigOptions(opts ...config.Option) Option {
	return func(c *CLI) {
		c.configOptions = append(c.configOptions, opts...)
	}
}

// WithFilesystem sets the filesystem for configuration files and for the
// application's input and output files.
func WithFilesystem(fsys afero.Fs) Option {
	return func(c *CLI) {
		c.fs = fsys
	}
}

// WithTerminalDetector replaces terminal detection for --format auto.
func WithTerminalDetector(detector TerminalDetector) Option {
	return func(c *CLI) {
		c.terminalDetector = detector
	}
}

// WithClock replaces time.Now for journal queries.
func WithClock(now func() time.Time) Option {
	return func(c *CLI) {
		c.now = now
	}
}

// NewCLI creates a new CLI instance
func NewCLI(opts ...Option) *CLI {
	c := &CLI{
		appFactory:       NewVaultApp,
		fs:               vfs.NewDefaultFactory().Production(),
		terminalDetector: &DefaultTerminalDetector{},
		now:              time.Now,
		newInvocationID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// session is the state of a single Run.
type session struct {
	cli *CLI

	inv     InvocationConfig
	version bool

	invocation string
	cm         *config.ConfigManager
	cfg        *config.Config
	logger     *slog.Logger
	closeLog   func() error
}

// Run executes the CLI with the given arguments and I/O streams and returns
// the process exit code. args[0] is the program name.
func (c *CLI) Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	s := &session{
		cli:        c,
		invocation: c.newInvocationID(),
		logger:     ctxlog.Discard(),
		closeLog:   func() error { return nil },
	}
	defer func() {
		if err := s.closeLog(); err != nil {
			fmt.Fprintf(stderr, "Error closing log file: %v\n", err)
		}
	}()

	rootCmd := s.newRootCommand()

	// A nil slice would make cobra fall back to os.Args.
	cmdArgs := []string{}
	if len(args) > 1 {
		cmdArgs = normalizeArgs(args[1:])
	}
	rootCmd.SetArgs(cmdArgs)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(context.Background())
	if err == nil {
		return ExitOK
	}

	code := ExitCodeForError(err)
	fmt.Fprintf(stderr, "Error: %v\n", err)
	s.logger.Debug("run failed", "exit_code", code, "error", err)
	return code
}

func (s *session) newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "evolvedvault",
		Short: "Local content vault",
		Long: `EvolvedVault stores files in a local SQLite vault.

With --input the file (or stdin, for -) is stored; identical content is only
kept once. With --output the item just stored, or the most recent one, is
written out (to stdout, for -). With neither, the vault status is printed.

Examples:
  evolvedvault --input notes.txt
  cat notes.txt | evolvedvault -i - -o backup/notes.txt
  evolvedvault --output -
  evolvedvault history --since yesterday --status failed`,
		Args:               cobra.ArbitraryArgs,
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		SilenceErrors:      true,
		SilenceUsage:       true,
		PersistentPreRunE:  s.setup,
		RunE:               s.runRoot,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	bindInvocationFlags(rootCmd.PersistentFlags(), &s.inv)
	rootCmd.Flags().BoolVar(&s.version, "version", false, "Show version information")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	rootCmd.AddCommand(s.newHistoryCommand())
	rootCmd.AddCommand(s.newListCommand())

	return rootCmd
}

// setup loads configuration and builds the run's logger. It runs before every
// command except when only the version was asked for.
func (s *session) setup(cmd *cobra.Command, _ []string) error {
	if s.version {
		return nil
	}

	stderr := cmd.ErrOrStderr()
	opts := []config.Option{
		config.WithFilesystem(s.cli.fs),
		config.WithLogger(bootstrapLogger(stderr, s.inv.Verbose)),
	}
	s.cm = config.NewConfigManager(append(opts, s.cli.configOptions...)...)

	cfg, err := s.cm.Load(s.inv.ConfigFile)
	if err != nil {
		return &ConfigError{Err: err}
	}
	s.cfg = cfg

	var logFilePath string
	if cfg.FileLogging != nil {
		logFilePath = s.cm.ResolveLogFilePath(cfg.FileLogging.Filename)
	}
	logger, closeLog := newLogger(cfg, s.inv.Verbose, stderr, logFilePath)
	s.logger = logger.With("invocation", s.invocation)
	s.closeLog = closeLog

	s.logger.Debug("configuration loaded",
		"command", cmd.Name(),
		"config_file", s.inv.ConfigFile,
		"log_level", cfg.LogLevel,
		"vault_path", s.cm.ResolveVaultPath(cfg),
		"journal", cfg.Journal)

	cmd.SetContext(ctxlog.WithLogger(cmd.Context(), s.logger))
	return nil
}

// runRoot constructs the application and executes it once.
func (s *session) runRoot(cmd *cobra.Command, _ []string) error {
	if s.version {
		s.printVersion(cmd.OutOrStdout())
		return nil
	}

	env := Environment{
		Stdin:      cmd.InOrStdin(),
		Stdout:     cmd.OutOrStdout(),
		Stderr:     cmd.ErrOrStderr(),
		Fs:         s.cli.fs,
		Logger:     s.logger,
		VaultPath:  s.cm.ResolveVaultPath(s.cfg),
		Invocation: s.invocation,
	}

	app, err := s.cli.appFactory(s.inv, s.cfg, env)
	if err != nil {
		return &ExecutionError{Op: "construct", Err: err}
	}
	if closer, ok := app.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				s.logger.Warn("failed to close application", "error", err)
			}
		}()
	}

	s.logger.Debug("executing application",
		"verbose", s.inv.Verbose,
		"input", s.inv.Input,
		"output", s.inv.Output)

	if err := app.Execute(cmd.Context()); err != nil {
		return &ExecutionError{Op: "execute", Err: err}
	}

	s.logger.Debug("application finished")
	return nil
}

func (s *session) printVersion(w io.Writer) {
	fmt.Fprintf(w, "evolvedvault version %s\n", Version)
}

// usageArgs wraps a positional argument validator so its failures are
// reported as usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}
