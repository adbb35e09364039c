package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"badgehub/internal/appinfo"
	"badgehub/internal/config"
	"badgehub/internal/services"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Timeout time.Duration

	// Open builds the services a command runs against. Nil means
	// OpenFromConfig.
	Open func(logger *zap.Logger) (*services.ServiceCollection, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for badgectl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "badgectl",
		Short:         "Inspect and manage relay-hosted badges",
		Long:          "badgectl resolves badge awards, catalogs and profile display lists directly against relays.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "overall command timeout")

	cmd.AddCommand(NewAwardsCommand(opts))
	cmd.AddCommand(NewBadgesCommand(opts))
	cmd.AddCommand(NewProfileCommand(opts))
	cmd.AddCommand(NewDisplayCommand(opts))
	cmd.AddCommand(NewRelaysCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the badgectl version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			version := appinfo.GetVersion()
			return opts.formatter(cmd).Success(map[string]string{"version": version}, func(w io.Writer) {
				fmt.Fprintln(w, appinfo.Name, version)
			})
		},
	})

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// OpenFromConfig loads configuration from the environment and connects to
// the configured relays.
func OpenFromConfig(logger *zap.Logger) (*services.ServiceCollection, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	sc, err := services.NewServiceCollection(cfg, cfg.Relays.NewSource(logger), logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to initialize services", err)
	}
	return sc, nil
}

// newLogger writes diagnostics to stderr only in verbose mode.
func (o *RootOptions) newLogger() *zap.Logger {
	if !o.Verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// withServices runs fn against a started service collection and shuts it
// down afterwards.
func (o *RootOptions) withServices(cmd *cobra.Command, fn func(ctx context.Context, sc *services.ServiceCollection) error) error {
	logger := o.newLogger()
	defer logger.Sync()

	open := o.Open
	if open == nil {
		open = OpenFromConfig
	}
	sc, err := open(logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	if err := sc.Start(ctx); err != nil {
		_ = sc.Shutdown(context.Background())
		return WrapExitError(ExitCommandError, "failed to start services", err)
	}
	defer func() {
		if err := sc.Shutdown(context.Background()); err != nil {
			logger.Warn("Service shutdown reported errors", zap.Error(err))
		}
	}()

	return fn(ctx, sc)
}

// Execute runs badgectl with os.Args and returns the process exit code.
func Execute(ctx context.Context) int {
	opts := &RootOptions{Format: "text"}
	cmd := newRootCommand(opts)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	if !isValidFormat(opts.Format) {
		opts.Format = "text"
	}
	return Report(opts.formatter(cmd), err)
}
