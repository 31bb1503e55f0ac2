package mirror

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gitmirror/gitmirror/internal/config"
	"github.com/gitmirror/gitmirror/internal/logging"
)

func TestFilterExcluded(t *testing.T) {
	filter, err := NewFilter([]string{"data/keep.db"}, []string{".git", "*.log", "node_modules", "secrets/*", "*.db"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		rel      string
		excluded bool
	}{
		{".git", true},
		{".git/config", true},
		{"src/app/.git/HEAD", true},
		{"build.log", true},
		{"logs/build.log", true},
		{"node_modules", true},
		{"web/node_modules/pkg/index.js", true},
		{"secrets/token", true},
		{"app.db", true},
		{"data/keep.db", false}, // include overrides exclude
		{"README.md", false},
		{"src/main.go", false},
		{".", false},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			if got := filter.Excluded(tt.rel); got != tt.excluded {
				t.Fatalf("Excluded(%q) = %v, want %v", tt.rel, got, tt.excluded)
			}
		})
	}
}

func newTestJob(t *testing.T, exclude, include []string) (*Job, string, string) {
	t.Helper()

	source := t.TempDir()
	target := t.TempDir()
	logDir := t.TempDir()

	// Target must look like an initialized working repository.
	if err := os.MkdirAll(filepath.Join(target, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Parse([]byte(`{
		identity: {name: backupsvc},
		repository: {url: https://github.com/acme/notes.git},
		mirror: {source: /placeholder}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Mirror.Source = source
	cfg.Mirror.Target = target
	cfg.Mirror.Exclude = exclude
	cfg.Mirror.Include = include
	cfg.Logs.Dir = logDir

	job, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return job, source, target
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunMirrorsTree(t *testing.T) {
	job, source, target := newTestJob(t, []string{".git", "*.tmp", "cache"}, nil)

	write(t, source, "README.md", "hello")
	write(t, source, "src/main.go", "package main")
	write(t, source, "scratch.tmp", "junk")
	write(t, source, "cache/blob", "junk")

	if err := job.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, rel := range []string{"README.md", "src/main.go"} {
		bs, err := os.ReadFile(filepath.Join(target, rel))
		if err != nil {
			t.Fatalf("expected %s in target: %v", rel, err)
		}
		src, _ := os.ReadFile(filepath.Join(source, rel))
		if string(bs) != string(src) {
			t.Fatalf("content mismatch for %s", rel)
		}
	}

	for _, rel := range []string{"scratch.tmp", "cache"} {
		if _, err := os.Stat(filepath.Join(target, rel)); !os.IsNotExist(err) {
			t.Fatalf("excluded path %s was copied", rel)
		}
	}
}

func TestRunDeletesMissing(t *testing.T) {
	job, source, target := newTestJob(t, []string{".git"}, nil)

	write(t, source, "keep.txt", "keep")
	write(t, target, "stale.txt", "stale")
	write(t, target, "stale-dir/inner.txt", "stale")
	write(t, target, ".git/config", "must survive")

	if err := job.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(target, "keep.txt")); err != nil {
		t.Fatalf("expected keep.txt: %v", err)
	}
	for _, rel := range []string{"stale.txt", "stale-dir"} {
		if _, err := os.Stat(filepath.Join(target, rel)); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be removed", rel)
		}
	}
	if _, err := os.Stat(filepath.Join(target, ".git", "config")); err != nil {
		t.Fatalf(".git must never be swept: %v", err)
	}
}

func TestRunNeverSweepsTargetRepo(t *testing.T) {
	// No .git exclusion configured: the repository must survive anyway.
	job, source, target := newTestJob(t, []string{"*.tmp"}, nil)

	write(t, source, "a.txt", "one")
	write(t, source, ".git/HEAD", "ref: refs/heads/master")
	write(t, target, ".git/config", "[core]")

	if err := job.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(target, ".git", "config")); err != nil {
		t.Fatalf("target .git swept without an exclude rule: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, ".git", "HEAD")); !os.IsNotExist(err) {
		t.Fatal("source .git must not be copied into the target repository")
	}
	if _, err := os.Stat(filepath.Join(target, "a.txt")); err != nil {
		t.Fatalf("regular file not mirrored: %v", err)
	}
}

func TestRunSecondRunIsExact(t *testing.T) {
	job, source, target := newTestJob(t, []string{".git"}, nil)

	write(t, source, "a.txt", "one")
	if err := job.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Mutate source: change a file, remove a file, add a file.
	write(t, source, "a.txt", "two")
	write(t, source, "b.txt", "new")
	if err := job.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	bs, err := os.ReadFile(filepath.Join(target, "a.txt"))
	if err != nil || string(bs) != "two" {
		t.Fatalf("expected updated content, got %q, %v", bs, err)
	}
	if _, err := os.Stat(filepath.Join(target, "b.txt")); err != nil {
		t.Fatalf("expected b.txt: %v", err)
	}
}

func TestRunRejectsSameSourceTarget(t *testing.T) {
	job, source, _ := newTestJob(t, nil, nil)
	job.target = source

	err := job.Run(context.Background())
	if !errors.Is(err, ErrSameSourceTarget) {
		t.Fatalf("expected ErrSameSourceTarget, got %v", err)
	}
}

func TestRunRejectsUninitializedTarget(t *testing.T) {
	job, _, target := newTestJob(t, nil, nil)
	if err := os.RemoveAll(filepath.Join(target, ".git")); err != nil {
		t.Fatal(err)
	}

	err := job.Run(context.Background())
	if !errors.Is(err, ErrTargetNotRepo) {
		t.Fatalf("expected ErrTargetNotRepo, got %v", err)
	}
}

func TestRunHeldLock(t *testing.T) {
	job, source, _ := newTestJob(t, nil, nil)
	write(t, source, "a.txt", "one")

	if err := os.WriteFile(filepath.Join(job.lockDir, "mirror.lock"), []byte("1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
}

func TestRunWritesJobLog(t *testing.T) {
	job, source, _ := newTestJob(t, nil, nil)
	write(t, source, "a.txt", "one")

	if err := job.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	bs, err := os.ReadFile(job.rotator.Current())
	if err != nil {
		t.Fatal(err)
	}
	content := string(bs)
	for _, want := range []string{"sync started", "sync finished with status 0"} {
		if !strings.Contains(content, want) {
			t.Fatalf("log missing %q:\n%s", want, content)
		}
	}
}
