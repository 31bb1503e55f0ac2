package gitrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/gitmirror/gitmirror/internal/logging"
)

// Prompter resolves operator choices during install. The bootstrap gate asks
// exactly one question, and only when the mirror has no history.
type Prompter interface {
	Confirm(question string, def bool) (bool, error)
}

// HasHistory reports whether the bare mirror holds any commit.
func HasHistory(repo *git.Repository) (bool, error) {
	_, err := repo.Head()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	return false, err
}

// Bootstrap is the one-time gate before schedule activation. A mirror with
// history proceeds directly. An empty mirror prompts for an initial pull; a
// decline skips activation for this run entirely. A non-fast-forward pull or
// unreachable origin is fatal to the invocation.
func Bootstrap(ctx context.Context, pair *Pair, auth transport.AuthMethod, prompt Prompter, logger *logging.Logger) (bool, error) {
	has, err := HasHistory(pair.Bare)
	if err != nil {
		return false, err
	}
	if has {
		logger.Debugf("bare mirror %s has history, proceeding", pair.BareDir)
		return true, nil
	}

	pull, err := prompt.Confirm("The mirror has no history yet. Pull from the external origin now?", true)
	if err != nil {
		return false, err
	}
	if !pull {
		logger.Infof("initial pull declined, schedule activation skipped for this run")
		return false, nil
	}

	err = pair.Bare.FetchContext(ctx, &git.FetchOptions{
		RemoteName: RemoteUpstream,
		Auth:       auth,
		RefSpecs: []gitconfig.RefSpec{
			"+refs/heads/*:refs/heads/*",
			"+refs/tags/*:refs/tags/*",
		},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return false, fmt.Errorf("fetch into bare mirror: %w", err)
	}

	wt, err := pair.Work.Worktree()
	if err != nil {
		return false, err
	}
	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName: RemoteOrigin,
		Auth:       auth,
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
	case errors.Is(err, git.ErrNonFastForwardUpdate):
		return false, fmt.Errorf("pull into working tree is not fast-forward, manual intervention required: %w", err)
	default:
		return false, fmt.Errorf("pull into working tree: %w", err)
	}

	logger.Infof("bootstrapped mirror from %s", pair.RemoteURL)
	return true, nil
}
