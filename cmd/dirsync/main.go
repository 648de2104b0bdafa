package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/dirsync/internal/config"
	"github.com/ligustah/dirsync/internal/downloader"
	"github.com/ligustah/dirsync/internal/install"
	"github.com/ligustah/dirsync/internal/inventory"
	"github.com/ligustah/dirsync/internal/manifest"
	"github.com/ligustah/dirsync/internal/reconcile"
)

// Exit codes
const (
	ExitSuccess           = 0
	ExitGeneralError      = 1
	ExitInvalidArgs       = 2
	ExitScanError         = 3
	ExitDisposalError     = 4
	ExitFetchError        = 5
	ExitInstallError      = 6
	ExitInsufficientSpace = 7
)

// usageError marks failures caused by how the tool was invoked.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(stderr, "\n[dirsync] Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	app := &app{stdout: stdout, stderr: stderr}
	root := app.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	if ctx.Err() != nil {
		fmt.Fprintln(stderr, "[dirsync] Interrupted, run again to finish")
		return ExitGeneralError
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	var (
		usageErr    *usageError
		scanErr     *inventory.ScanError
		disposalErr *reconcile.DisposalError
		spaceErr    *downloader.InsufficientSpaceError
		fetchErr    *downloader.FetchError
		installErr  *install.InstallError
	)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &usageErr), errors.Is(err, manifest.ErrInvalid):
		return ExitInvalidArgs
	case errors.As(err, &scanErr):
		return ExitScanError
	case errors.As(err, &disposalErr):
		return ExitDisposalError
	case errors.As(err, &spaceErr):
		return ExitInsufficientSpace
	case errors.As(err, &fetchErr):
		return ExitFetchError
	case errors.As(err, &installErr):
		return ExitInstallError
	default:
		return ExitGeneralError
	}
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageErrorf("unknown command %q for %q", args[0], cmd.CommandPath())
	}
	return nil
}

// app carries state shared by every command of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configFile      string
	logLevel        string
	parallelNetwork int

	logger *logrus.Logger
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "dirsync",
		Short: "Keep a directory in sync with a manifest of remote artifacts",
		Long: `dirsync reconciles a target directory against a manifest.

Files already present are kept, unexpected files are moved to .old,
leftover partial downloads are deleted, missing artifacts are fetched in
parallel and local overrides are copied in last.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return usageErrorf("a command is required")
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config-file", os.Getenv(config.EnvPrefix+"CONFIG_FILE"), "YAML configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	flags.IntVarP(&a.parallelNetwork, "parallel-network", "p", 0, "Maximum simultaneous downloads (default 10)")

	root.AddCommand(a.syncCommand(), a.cleanCommand())
	return root
}

// loadConfig layers defaults, the config file, the environment and finally
// the command line, then validates the result and configures logging.
func (a *app) loadConfig(fromFlags config.Config) (config.Config, error) {
	cfg := config.Default()
	if a.configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(a.configFile)
		if err != nil {
			return cfg, &usageError{err: err}
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return cfg, &usageError{err: err}
	}

	fromFlags.LogLevel = a.logLevel
	fromFlags.ParallelNetwork = a.parallelNetwork
	cfg = cfg.Merge(fromFlags)

	if err := cfg.Validate(); err != nil {
		return cfg, &usageError{err: err}
	}

	level, _ := logrus.ParseLevel(cfg.LogLevel)
	a.logger = logrus.New()
	a.logger.SetOutput(a.stderr)
	a.logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	a.logger.SetLevel(level)
	return cfg, nil
}
