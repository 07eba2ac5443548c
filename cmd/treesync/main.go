package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/schaermu/treesync/internal/config"
	"github.com/schaermu/treesync/internal/filesystem"
	"github.com/schaermu/treesync/internal/lock"
	"github.com/schaermu/treesync/internal/sync"
	"github.com/schaermu/treesync/internal/tree"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ArgumentError reports invalid command-line arguments. Nothing is synced
// when it occurs.
type ArgumentError struct {
	Msg string
}

func (e *ArgumentError) Error() string {
	return e.Msg
}

// rootOptions holds the command-line flags
type rootOptions struct {
	cfgFile   string
	logLevel  string
	logFormat string
	dryRun    bool
	workers   int
	exclude   []string
	noLock    bool
}

func main() {
	ctx, cancel := setupSignalHandler()

	cmd := newRootCmd()
	err := cmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var argErr *ArgumentError
		if errors.As(err, &argErr) {
			fmt.Fprintln(os.Stderr)
			fmt.Fprint(os.Stderr, cmd.UsageString())
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "treesync [flags] <source> <destination>",
		Short: "Mirror a source directory tree into a destination directory",
		Long: `treesync makes a destination directory an exact copy of a source tree.

Missing files and directories are created, files whose content differs are
overwritten, and entries that no longer exist in the source are removed from
the destination. When the source is a single file it is copied into the
destination directory and nothing is removed.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Args:          validateArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts, args[0], args[1])
		},
	}

	flags := cmd.Flags()
	flags.SortFlags = false
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.config/treesync/config.yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log format (text, json, pretty)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "show what would be done without making changes")
	flags.IntVar(&opts.workers, "workers", 1, "number of top-level subtrees synced in parallel")
	flags.StringArrayVar(&opts.exclude, "exclude", nil, "gitignore-style pattern to leave untouched (repeatable)")
	flags.BoolVar(&opts.noLock, "no-lock", false, "do not lock the destination against concurrent runs")

	return cmd
}

// validateArgs requires exactly a source and a destination, and the source
// must exist.
func validateArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return &ArgumentError{Msg: fmt.Sprintf("expected 2 arguments (source and destination), got %d", len(args))}
	}
	if _, err := os.Stat(args[0]); err != nil {
		if os.IsNotExist(err) {
			return &ArgumentError{Msg: fmt.Sprintf("source %s does not exist", args[0])}
		}
		return &ArgumentError{Msg: fmt.Sprintf("cannot access source %s: %v", args[0], err)}
	}
	return nil
}

func runSync(cmd *cobra.Command, opts *rootOptions, source, destination string) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cmd.OutOrStdout(), cfg.Log.Level, cfg.Log.Format)
	logger.Debug("configuration loaded",
		"workers", cfg.Sync.Workers,
		"exclude", cfg.Sync.Exclude,
		"dry_run", cfg.Sync.DryRun,
		"lock", cfg.LockEnabled())

	if cfg.LockEnabled() {
		l, err := lock.ForDestination(cfg.Lock.Dir, destination)
		if err != nil {
			return err
		}
		if err := l.TryLock(); err != nil {
			return err
		}
		defer func() {
			if err := l.Unlock(); err != nil {
				logger.Warn("failed to release lock", "path", l.Path(), "error", err)
			}
		}()
		logger.Debug("destination locked", "path", l.Path())
	}

	reconciler := sync.NewReconciler(
		filesystem.NewOS(),
		sync.NewLogReporter(logger),
		logger,
		sync.Options{
			Workers: cfg.Sync.Workers,
			DryRun:  cfg.Sync.DryRun,
			Exclude: tree.NewExcluder(cfg.Sync.Exclude),
		},
	)

	res, err := reconciler.Synchronize(cmd.Context(), source, destination)
	if err != nil {
		logger.Error("sync failed", "error", err)
		return err
	}
	if n := len(res.Failures); n > 0 {
		return fmt.Errorf("sync finished with %d failed entries", n)
	}
	return nil
}

// loadConfig reads the config file and applies the flags that were set
// explicitly on top of it.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.cfgFile != "" {
		cfg, err = config.Load(opts.cfgFile)
	} else if path, pathErr := config.DefaultPath(); pathErr == nil {
		cfg, err = config.LoadOptional(path)
	} else {
		// no home directory means no default config file
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = config.LogFormat(opts.logFormat)
	}
	if flags.Changed("dry-run") {
		cfg.Sync.DryRun = opts.dryRun
	}
	if flags.Changed("workers") {
		cfg.Sync.Workers = opts.workers
	}
	if opts.noLock {
		enabled := false
		cfg.Lock.Enabled = &enabled
	}
	cfg.Sync.Exclude = append(cfg.Sync.Exclude, opts.exclude...)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogger(out io.Writer, logLevel string, logFormat config.LogFormat) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	switch logFormat {
	case config.LogFormatJSON:
		handler = slog.NewJSONHandler(out, opts)
	case config.LogFormatPretty:
		handler = tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(out),
		})
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
