// Package provision implements the install-time state machine: the service
// account, its home directory skeleton, and the SSH identity of the
// installation. Every operation checks before it mutates, so the full flow is
// safe to re-run.
package provision

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"

	"github.com/gitmirror/gitmirror/internal/config"
	"github.com/gitmirror/gitmirror/internal/logging"
)

// Runner executes system commands. Account creation and ownership changes go
// through OS tooling; everything else in this package touches the filesystem
// directly.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %v: %w: %s", name, args, err, out)
	}
	return out, nil
}

func SystemRunner() Runner {
	return execRunner{}
}

// Identity is the provisioned service account.
type Identity struct {
	Name    string
	Home    string
	Created bool // false when the account already existed
}

type Provisioner struct {
	run    Runner
	log    *logging.Logger
	lookup func(string) (*user.User, error)
}

func NewProvisioner(run Runner, logger *logging.Logger) *Provisioner {
	return &Provisioner{run: run, log: logger, lookup: user.Lookup}
}

// WithLookup overrides account lookup. Used in tests.
func (p *Provisioner) WithLookup(lookup func(string) (*user.User, error)) *Provisioner {
	p.lookup = lookup
	return p
}

// EnsureIdentity returns the existing service account unchanged, or creates
// it with a home directory, a default shell and the fixed directory skeleton.
func (p *Provisioner) EnsureIdentity(ctx context.Context, cfg *config.Root) (*Identity, error) {
	name := cfg.Identity.Name

	if u, err := p.lookup(name); err == nil {
		p.log.Debugf("account %q already exists, home %s", name, u.HomeDir)
		// The skeleton is still ensured: a half-provisioned host may have the
		// account but lack the working directories.
		if err := p.ensureSkeleton(cfg); err != nil {
			return nil, err
		}
		return &Identity{Name: name, Home: u.HomeDir}, nil
	} else if _, ok := err.(user.UnknownUserError); !ok {
		return nil, fmt.Errorf("lookup account %q: %w", name, err)
	}

	if _, err := p.run.Run(ctx, "useradd",
		"--create-home",
		"--home-dir", cfg.Identity.Home,
		"--shell", "/bin/bash",
		name,
	); err != nil {
		return nil, fmt.Errorf("create account %q: %w", name, err)
	}
	p.log.Infof("created service account %q with home %s", name, cfg.Identity.Home)

	id := &Identity{Name: name, Home: cfg.Identity.Home, Created: true}
	if err := p.ensureSkeleton(cfg); err != nil {
		return nil, err
	}
	if err := p.ChownRecursive(ctx, id, id.Home); err != nil {
		return nil, err
	}
	return id, nil
}

func (p *Provisioner) ensureSkeleton(cfg *config.Root) error {
	for _, dir := range cfg.Skeleton() {
		mode := os.FileMode(0o755)
		if filepath.Clean(dir) == filepath.Clean(cfg.SSH.Dir) {
			mode = 0o700
		}
		if err := os.MkdirAll(dir, mode); err != nil {
			return fmt.Errorf("create skeleton dir %s: %w", dir, err)
		}
	}
	return nil
}

// ChownRecursive hands the given path to the service identity.
func (p *Provisioner) ChownRecursive(ctx context.Context, id *Identity, path string) error {
	if _, err := p.run.Run(ctx, "chown", "-R", id.Name+":"+id.Name, path); err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	return nil
}
