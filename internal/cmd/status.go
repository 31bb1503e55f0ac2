package cmd

import (
	"fmt"
	"os"
	"os/user"

	"github.com/go-git/go-git/v5"
	"github.com/spf13/cobra"

	"github.com/gitmirror/gitmirror/internal/config"
	"github.com/gitmirror/gitmirror/internal/gitrepo"
	"github.com/gitmirror/gitmirror/internal/logging"
	"github.com/gitmirror/gitmirror/internal/logrotate"
	"github.com/gitmirror/gitmirror/internal/provision"
	"github.com/gitmirror/gitmirror/internal/schedule"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report the provisioning state of the installation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			w := os.Stdout

			if _, err := user.Lookup(cfg.Identity.Name); err == nil {
				fmt.Fprintf(w, "account:     %s (present)\n", cfg.Identity.Name)
			} else {
				fmt.Fprintf(w, "account:     %s (missing)\n", cfg.Identity.Name)
			}

			keys, err := provision.ScanPrivateKeys(cfg.SSH.Dir)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Fprintf(w, "deploy key:  none\n")
			} else {
				fmt.Fprintf(w, "deploy key:  %s (%d total)\n", keys[0], len(keys))
			}

			reportRepo(w, "working tree", cfg.Repository.WorkDir)
			reportRepo(w, "bare mirror", cfg.Repository.BareDir)

			for _, job := range []string{"mirror", "push"} {
				archives, err := logrotate.New(cfg.Logs.Dir, job, cfg.Logs.Retention).Archives()
				if err != nil && !os.IsNotExist(err) {
					return err
				}
				fmt.Fprintf(w, "%-12s %d archived logs\n", job+" log:", len(archives))
			}

			reportSchedule(cmd, w, cfg, logger)
			return nil
		},
	})
}

// reportSchedule needs crontab access, which may be denied to the invoking
// user. That is reported, not fatal.
func reportSchedule(cmd *cobra.Command, w *os.File, cfg *config.Root, logger *logging.Logger) {
	entry, err := scheduleEntry(cfg.Schedule.Cron, "")
	if err != nil {
		fmt.Fprintf(w, "schedule:    unknown (%v)\n", err)
		return
	}

	a := schedule.NewActivator(schedule.SystemRunner(), cfg.Identity.Name, logger)
	present, err := a.Scheduled(cmd.Context(), entry)
	switch {
	case err != nil:
		fmt.Fprintf(w, "schedule:    unknown (%v)\n", err)
	case present:
		fmt.Fprintf(w, "schedule:    registered (%s)\n", entry.Spec)
	default:
		fmt.Fprintf(w, "schedule:    not registered\n")
	}
}

func reportRepo(w *os.File, label, dir string) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		fmt.Fprintf(w, "%-12s %s (not initialized)\n", label+":", dir)
		return
	}
	has, err := gitrepo.HasHistory(repo)
	switch {
	case err != nil:
		fmt.Fprintf(w, "%-12s %s (unreadable: %v)\n", label+":", dir, err)
	case has:
		fmt.Fprintf(w, "%-12s %s (has history)\n", label+":", dir)
	default:
		fmt.Fprintf(w, "%-12s %s (empty)\n", label+":", dir)
	}
}
