// Package gitrepo maintains the repository pair: the working tree whose files
// the recurring jobs mutate, and the local bare mirror that backs it. All git
// operations go through go-git; no git binary is invoked.
package gitrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/gitmirror/gitmirror/internal/config"
	"github.com/gitmirror/gitmirror/internal/logging"
)

const (
	// RemoteOrigin is the working tree's remote for the external origin.
	RemoteOrigin = "origin"
	// RemoteLocalPush is the working tree's remote for the bare mirror path.
	RemoteLocalPush = "localpush"
	// RemoteUpstream is the bare mirror's remote for the external origin.
	RemoteUpstream = "upstream"

	commitAuthorName  = "gitmirror"
	commitAuthorEmail = "gitmirror@localhost"

	placeholderFile = "README.md"
)

// Pair is the provisioned two-tier repository setup.
type Pair struct {
	WorkDir   string
	BareDir   string
	RemoteURL string // normalized external origin

	Work *git.Repository
	Bare *git.Repository
}

var httpsForm = regexp.MustCompile(`^https://([^/]+)/([^/]+)/([^/]+?)(?:\.git)?/?$`)

// NormalizeRemote rewrites an HTTPS URL referencing host to the SSH
// connection form. Any other form is used as supplied.
func NormalizeRemote(raw, host string) string {
	m := httpsForm.FindStringSubmatch(raw)
	if m == nil || m[1] != host {
		return raw
	}
	return fmt.Sprintf("git@%s:%s/%s.git", m[1], m[2], m[3])
}

// EnsurePair initializes the working tree and the bare mirror exactly once
// and wires the deterministic remote table. Safe to call on every run. All
// operations are local; network access starts with the bootstrap gate.
func EnsurePair(cfg *config.Root, logger *logging.Logger) (*Pair, error) {
	pair := &Pair{
		WorkDir:   cfg.Repository.WorkDir,
		BareDir:   cfg.Repository.BareDir,
		RemoteURL: NormalizeRemote(cfg.Repository.URL, cfg.Repository.Host),
	}

	var err error
	pair.Bare, err = ensureRepo(pair.BareDir, true, logger)
	if err != nil {
		return nil, fmt.Errorf("bare mirror: %w", err)
	}

	pair.Work, err = ensureRepo(pair.WorkDir, false, logger)
	if err != nil {
		return nil, fmt.Errorf("working tree: %w", err)
	}

	// The initial commit guarantees the push job always has an ancestor to
	// diff against. Only a freshly initialized tree gets one.
	if _, headErr := pair.Work.Head(); headErr != nil {
		if err := initialCommit(pair.Work, pair.WorkDir); err != nil {
			return nil, fmt.Errorf("initial commit: %w", err)
		}
		logger.Infof("created initial commit in %s", pair.WorkDir)
	}

	for _, rw := range []struct {
		repo *git.Repository
		name string
		url  string
	}{
		{pair.Work, RemoteOrigin, pair.RemoteURL},
		{pair.Work, RemoteLocalPush, pair.BareDir},
		{pair.Bare, RemoteUpstream, pair.RemoteURL},
	} {
		if err := setRemote(rw.repo, rw.name, rw.url); err != nil {
			return nil, fmt.Errorf("remote %s: %w", rw.name, err)
		}
	}

	return pair, nil
}

func ensureRepo(dir string, bare bool, logger *logging.Logger) (*git.Repository, error) {
	repo, err := git.PlainOpen(dir)
	if err == nil {
		logger.Debugf("repository %s already initialized", dir)
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	repo, err = git.PlainInit(dir, bare)
	if err != nil {
		return nil, err
	}
	logger.Infof("initialized repository %s (bare=%v)", dir, bare)

	// Fix the author identity for automated commits in the repo config as
	// well, so manual git usage inside the tree matches.
	c, err := repo.Config()
	if err != nil {
		return nil, err
	}
	c.User.Name = commitAuthorName
	c.User.Email = commitAuthorEmail
	return repo, repo.SetConfig(c)
}

func initialCommit(repo *git.Repository, dir string) error {
	line := fmt.Sprintf("Automated mirror managed by gitmirror (%s)\n", filepath.Base(dir))
	if err := os.WriteFile(filepath.Join(dir, placeholderFile), []byte(line), 0o644); err != nil {
		return err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	if _, err := wt.Add(placeholderFile); err != nil {
		return err
	}
	_, err = wt.Commit("initial commit", &git.CommitOptions{
		Author: Signature(time.Now()),
	})
	return err
}

// Signature is the fixed author identity used for automated commits.
func Signature(when time.Time) *object.Signature {
	return &object.Signature{
		Name:  commitAuthorName,
		Email: commitAuthorEmail,
		When:  when,
	}
}

// setRemote re-wires a named remote idempotently: remove if present, then
// add. Removal failure is ignored, the remote may not have existed.
func setRemote(repo *git.Repository, name, url string) error {
	_ = repo.DeleteRemote(name)
	_, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: name,
		URLs: []string{url},
	})
	return err
}
