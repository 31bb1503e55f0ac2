package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gitmirror/gitmirror/internal/gitrepo"
	"github.com/gitmirror/gitmirror/internal/mirror"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Run one mirror synchronization from the source tree into the working repository",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			job, err := mirror.New(cfg, logger)
			if err != nil {
				return err
			}
			return job.Run(cmd.Context())
		},
	})

	RootCmd.AddCommand(&cobra.Command{
		Use:   "push",
		Short: "Commit working tree changes and push all branches to the external origin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			auth, err := gitrepo.ResolveAuth(cfg, logger)
			if err != nil {
				return err
			}
			return gitrepo.NewPushJob(cfg, auth, logger).Run(cmd.Context())
		},
	})
}
