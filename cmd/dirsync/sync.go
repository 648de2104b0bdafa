package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ligustah/dirsync/internal/artifact"
	"github.com/ligustah/dirsync/internal/config"
	dshttp "github.com/ligustah/dirsync/internal/http"
	"github.com/ligustah/dirsync/internal/manifest"
	"github.com/ligustah/dirsync/internal/syncer"
)

// targetFlags are shared by every command that works on a target directory.
type targetFlags struct {
	manifest   string
	directory  string
	overrides  string
	verifySize bool
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.manifest, "manifest", "m", "", "Manifest file path or http(s) URL")
	cmd.Flags().StringVarP(&f.directory, "directory", "d", "", "Target directory")
	cmd.Flags().StringVarP(&f.overrides, "overrides", "o", "", "Directory of override files (replaces the manifest's)")
	cmd.Flags().BoolVar(&f.verifySize, "verify-size", false, "Replace files whose size differs from the manifest (enable only; a value set in the config file or environment cannot be turned off here)")
}

func (f *targetFlags) config() config.Config {
	return config.Config{
		Manifest:   f.manifest,
		Directory:  f.directory,
		Overrides:  f.overrides,
		VerifySize: f.verifySize,
	}
}

func (a *app) syncCommand() *cobra.Command {
	var (
		target          targetFlags
		showProgress    bool
		cancelOnFailure bool
		checkDiskSpace  bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the target directory, download missing artifacts and install overrides",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fromFlags := target.config()
			fromFlags.Progress = showProgress
			fromFlags.CancelOnFailure = cancelOnFailure
			fromFlags.CheckDiskSpace = checkDiskSpace

			cfg, err := a.loadConfig(fromFlags)
			if err != nil {
				return err
			}
			return a.sync(cmd.Context(), cfg)
		},
	}

	target.register(cmd)
	cmd.Flags().BoolVar(&showProgress, "progress", false, "Show a live progress line (enable only; a value set in the config file or environment cannot be turned off here)")
	cmd.Flags().BoolVar(&cancelOnFailure, "cancel-on-failure", false, "Cancel downloads still running after one fails (enable only; a value set in the config file or environment cannot be turned off here)")
	cmd.Flags().BoolVar(&checkDiskSpace, "check-disk-space", false, "Refuse to start when the target volume is short on space (enable only; a value set in the config file or environment cannot be turned off here)")
	return cmd
}

func (a *app) sync(ctx context.Context, cfg config.Config) error {
	client := newClient(cfg)
	requests, overrides, err := a.resolve(ctx, cfg, client)
	if err != nil {
		return err
	}

	summary, err := syncer.Run(ctx, syncer.Options{
		Directory:       cfg.Directory,
		Requests:        requests,
		Overrides:       overrides,
		MaxConcurrency:  cfg.ParallelNetwork,
		Client:          client,
		Progress:        cfg.Progress,
		Output:          a.stdout,
		Logger:          a.logger,
		VerifySize:      cfg.VerifySize,
		CancelOnFailure: cfg.CancelOnFailure,
		CheckDiskSpace:  cfg.CheckDiskSpace,
		DiskHeadroom:    cfg.DiskHeadroom,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stderr, "[dirsync] Synced %s: %d downloaded, %d installed, %d archived, %d deleted\n",
		cfg.Directory, summary.Downloaded, summary.Installed,
		len(summary.Report.Archived), len(summary.Report.Deleted))
	return nil
}

func newClient(cfg config.Config) *dshttp.Client {
	opts := cfg.HTTPOptions()
	opts.MaxIdleConnsPerHost = cfg.ParallelNetwork * 2
	return dshttp.NewClient(opts)
}

// resolve loads the manifest and turns it into requests and overrides.
func (a *app) resolve(ctx context.Context, cfg config.Config, client *dshttp.Client) ([]artifact.Request, []artifact.Override, error) {
	m, err := manifest.Load(ctx, cfg.Manifest, client)
	if err != nil {
		return nil, nil, err
	}
	m.Logger = a.logger
	if cfg.Overrides != "" {
		m.Overrides = cfg.Overrides
	}
	return m.Resolve(ctx, client)
}
