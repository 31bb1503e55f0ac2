package provision_test

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/gitmirror/gitmirror/internal/config"
	"github.com/gitmirror/gitmirror/internal/logging"
	"github.com/gitmirror/gitmirror/internal/provision"
)

type fakeRunner struct {
	commands [][]string
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.commands = append(r.commands, append([]string{name}, args...))
	return nil, nil
}

func testConfig(t *testing.T, home string) *config.Root {
	t.Helper()
	cfg, err := config.Parse(fmt.Appendf(nil, `{
		identity: {name: backupsvc, home: %q},
		repository: {url: https://github.com/acme/notes.git},
		mirror: {source: /srv/app/data}
	}`, home))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestEnsureIdentityExistingAccount(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "home"))
	run := &fakeRunner{}

	p := provision.NewProvisioner(run, logging.NewNop()).
		WithLookup(func(name string) (*user.User, error) {
			return &user.User{Username: name, HomeDir: "/home/existing"}, nil
		})

	id, err := p.EnsureIdentity(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	if id.Created {
		t.Fatal("existing account must not be marked created")
	}
	if id.Home != "/home/existing" {
		t.Fatalf("expected existing home returned unchanged, got %s", id.Home)
	}
	if len(run.commands) != 0 {
		t.Fatalf("existing account must not trigger commands, got %v", run.commands)
	}

	// The directory skeleton is ensured even for a pre-existing account.
	for _, dir := range cfg.Skeleton() {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("missing skeleton dir %s: %v", dir, err)
		}
	}
}

func TestEnsureIdentityCreatesAccount(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	cfg := testConfig(t, home)
	run := &fakeRunner{}

	p := provision.NewProvisioner(run, logging.NewNop()).
		WithLookup(func(name string) (*user.User, error) {
			return nil, user.UnknownUserError(name)
		})

	id, err := p.EnsureIdentity(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	if !id.Created {
		t.Fatal("expected account to be created")
	}

	if len(run.commands) < 2 {
		t.Fatalf("expected useradd and chown, got %v", run.commands)
	}
	if run.commands[0][0] != "useradd" {
		t.Fatalf("expected useradd first, got %v", run.commands[0])
	}
	last := run.commands[len(run.commands)-1]
	if last[0] != "chown" || last[len(last)-1] != home {
		t.Fatalf("expected recursive chown of home last, got %v", last)
	}

	// The fixed skeleton exists under the home path.
	for _, dir := range cfg.Skeleton() {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("missing skeleton dir %s: %v", dir, err)
		}
	}
	info, err := os.Stat(cfg.SSH.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Fatalf(".ssh mode %o, want 0700", info.Mode().Perm())
	}
}
