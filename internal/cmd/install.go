package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitmirror/gitmirror/internal/gitrepo"
	"github.com/gitmirror/gitmirror/internal/provision"
	"github.com/gitmirror/gitmirror/internal/schedule"
)

type installFlags struct {
	yes         bool
	importKey   string
	replaceKey  bool
	binary      string
	writeConfig bool
}

func init() {
	var f installFlags

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Provision the service account, SSH key, repository pair and schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInstall(cmd.Context(), f)
		},
	}

	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "accept all defaults, never prompt")
	cmd.Flags().StringVar(&f.importKey, "import-key", "", "adopt this private key instead of generating one")
	cmd.Flags().BoolVar(&f.replaceKey, "replace-key", false, "replace existing key material instead of keeping it")
	cmd.Flags().StringVar(&f.binary, "binary", "", "path recorded in the crontab entry (defaults to the running executable)")
	cmd.Flags().BoolVar(&f.writeConfig, "write-config", false, "write a starter config file to the --config path and exit")

	RootCmd.AddCommand(cmd)
}

// runInstall executes the full provisioning flow in order: account, key
// material, known hosts, repository pair, bootstrap gate, schedule. Each step
// is idempotent, so a failed install is repaired by running install again.
func runInstall(ctx context.Context, f installFlags) error {
	if f.writeConfig {
		return writeConfigTemplate(flags.configFile)
	}

	if os.Geteuid() != 0 {
		return errors.New("install must run as root")
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	var prompt gitrepo.Prompter = newTerminalPrompter(os.Stdin, os.Stdout)
	if f.yes {
		prompt = autoPrompter{}
	}

	prov := provision.NewProvisioner(provision.SystemRunner(), logger)
	id, err := prov.EnsureIdentity(ctx, cfg)
	if err != nil {
		return err
	}

	decision, err := keyDecision(cfg.SSH.Dir, f, prompt)
	if err != nil {
		return err
	}
	key, err := provision.EnsureKey(provision.KeyRequest{
		Dir:        cfg.SSH.Dir,
		Owner:      cfg.Identity.Name,
		Label:      cfg.SSH.Label,
		ImportPath: f.importKey,
		Decision:   decision,
	}, logger)
	if err != nil {
		return err
	}
	reportPublicKey(key, cfg.Repository.Host, logger)

	if err := provision.EnsureKnownHosts(cfg.SSH.Dir, cfg.SSH.KnownHosts, logger); err != nil {
		return err
	}

	pair, err := gitrepo.EnsurePair(cfg, logger)
	if err != nil {
		return err
	}

	auth, err := gitrepo.ResolveAuth(cfg, logger)
	if err != nil {
		return err
	}

	proceed, err := gitrepo.Bootstrap(ctx, pair, auth, prompt, logger)
	if err != nil {
		return err
	}

	if proceed {
		entry, err := scheduleEntry(cfg.Schedule.Cron, f.binary)
		if err != nil {
			return err
		}
		activator := schedule.NewActivator(schedule.SystemRunner(), cfg.Identity.Name, logger)
		if _, err := activator.EnsureScheduled(ctx, entry); err != nil {
			return err
		}
	}

	// Everything written so far was written as root.
	if err := prov.ChownRecursive(ctx, id, id.Home); err != nil {
		return err
	}

	logger.Infof("install complete for account %q", id.Name)
	return nil
}

// keyDecision resolves keep-or-replace up front, so EnsureKey never has to
// guess. With no keys on disk the decision is moot.
func keyDecision(dir string, f installFlags, prompt gitrepo.Prompter) (provision.KeyDecision, error) {
	if f.replaceKey {
		return provision.ReplaceExisting, nil
	}

	existing, err := provision.ScanPrivateKeys(dir)
	if err != nil || len(existing) == 0 {
		return provision.GenerateNew, err
	}
	if f.yes {
		return provision.KeepExisting, nil
	}

	keep, err := prompt.Confirm(fmt.Sprintf("Found existing key %s. Keep it?", existing[0]), true)
	if err != nil {
		return provision.GenerateNew, err
	}
	if keep {
		return provision.KeepExisting, nil
	}
	return provision.ReplaceExisting, nil
}

func scheduleEntry(spec, binary string) (schedule.Entry, error) {
	if binary == "" {
		exe, err := os.Executable()
		if err != nil {
			return schedule.Entry{}, fmt.Errorf("resolve executable path: %w", err)
		}
		binary = exe
	}

	base := fmt.Sprintf("%s --config %s", binary, flags.configFile)
	return schedule.Entry{
		Spec:    spec,
		Command: fmt.Sprintf("%s sync && %s push", base, base),
		Match:   base + " sync",
	}, nil
}
