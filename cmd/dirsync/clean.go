package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ligustah/dirsync/internal/syncer"
)

func (a *app) cleanCommand() *cobra.Command {
	var target targetFlags

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Archive or delete everything the manifest does not ask for, without downloading",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(target.config())
			if err != nil {
				return err
			}

			client := newClient(cfg)
			requests, overrides, err := a.resolve(cmd.Context(), cfg, client)
			if err != nil {
				return err
			}

			report, err := syncer.Clean(cmd.Context(), syncer.Options{
				Directory:  cfg.Directory,
				Requests:   requests,
				Overrides:  overrides,
				Logger:     a.logger,
				VerifySize: cfg.VerifySize,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stderr, "[dirsync] Cleaned %s: %d kept, %d archived, %d deleted\n",
				cfg.Directory, len(report.Satisfied), len(report.Archived), len(report.Deleted))
			return nil
		},
	}

	target.register(cmd)
	return cmd
}
