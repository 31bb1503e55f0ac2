package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/gitmirror/gitmirror/internal/config"
	"github.com/gitmirror/gitmirror/internal/logging"
	"github.com/gitmirror/gitmirror/internal/logrotate"
	"github.com/gitmirror/gitmirror/internal/metrics"
)

const pushJobName = "push"

// PushJob stages working tree changes and, only when the stage differs from
// the last commit, commits and pushes all local branches to the external
// origin. A clean tree is a successful no-op.
type PushJob struct {
	workDir  string
	repoName string
	auth     transport.AuthMethod
	rotator  *logrotate.Rotator
	log      *logging.Logger
	now      func() time.Time
}

func NewPushJob(cfg *config.Root, auth transport.AuthMethod, logger *logging.Logger) *PushJob {
	return &PushJob{
		workDir:  cfg.Repository.WorkDir,
		repoName: cfg.Repository.Name,
		auth:     auth,
		rotator:  logrotate.New(cfg.Logs.Dir, pushJobName, cfg.Logs.Retention),
		log:      logger,
		now:      time.Now,
	}
}

// WithClock overrides the timestamp source. Used in tests.
func (j *PushJob) WithClock(now func() time.Time) *PushJob {
	j.now = now
	return j
}

// Run performs one commit-and-push cycle. Push failure is the job's failure;
// retry belongs to the scheduler.
func (j *PushJob) Run(ctx context.Context) error {
	metrics.CommitPushCount.Inc()

	if err := j.run(ctx); err != nil {
		metrics.CommitPushFailed.WithLabelValues(j.repoName).Inc()
		return fmt.Errorf("commit push: %w", err)
	}
	return nil
}

func (j *PushJob) run(ctx context.Context) error {
	if err := j.rotator.Rotate(); err != nil {
		return err
	}
	jl, err := logrotate.OpenJobLog(j.rotator.Current())
	if err != nil {
		return err
	}
	defer jl.Close()
	jl.WithClock(j.now)

	repo, err := git.PlainOpen(j.workDir)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return err
	}

	status, err := wt.Status()
	if err != nil {
		return err
	}
	if status.IsClean() {
		jl.Printf("nothing to do")
		j.log.Debugf("working tree %s clean, nothing to do", j.workDir)
		return nil
	}

	now := j.now()
	msg := "auto backup " + now.Format("2006-01-02_15-04-05")
	if _, err := wt.Commit(msg, &git.CommitOptions{Author: Signature(now)}); err != nil {
		jl.Printf("commit failed: %v", err)
		return err
	}
	metrics.CommitsCreated.WithLabelValues(j.repoName).Inc()
	jl.Printf("committed: %s", msg)

	pushStart := j.now()
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: RemoteOrigin,
		RefSpecs:   []gitconfig.RefSpec{"refs/heads/*:refs/heads/*"},
		Auth:       j.auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		jl.Printf("push failed: %v", err)
		return err
	}
	metrics.PushDuration.WithLabelValues(j.repoName).Observe(j.now().Sub(pushStart).Seconds())
	jl.Printf("pushed all branches to %s", RemoteOrigin)
	return nil
}
