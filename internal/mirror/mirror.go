// Package mirror implements the snapshot copy job. Each run rotates the
// previous log, copies the source tree into the working repository with the
// configured exclusions applied, and removes target entries no longer present
// in the source so that the target is an exact mirror after exclusions.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	cp "github.com/otiai10/copy"

	"github.com/gitmirror/gitmirror/internal/config"
	"github.com/gitmirror/gitmirror/internal/logging"
	"github.com/gitmirror/gitmirror/internal/logrotate"
	"github.com/gitmirror/gitmirror/internal/metrics"
)

const jobName = "mirror"

var (
	// ErrSameSourceTarget aborts a run whose copy would be self-destructive.
	ErrSameSourceTarget = errors.New("mirror source and target are the same path")
	// ErrTargetNotRepo aborts a run against an unprovisioned target.
	ErrTargetNotRepo = errors.New("mirror target is not an initialized repository")
)

type Job struct {
	source  string
	target  string
	filter  *Filter
	rotator *logrotate.Rotator
	lockDir string
	log     *logging.Logger
	now     func() time.Time
}

func New(cfg *config.Root, logger *logging.Logger) (*Job, error) {
	filter, err := NewFilter(cfg.Mirror.Include, cfg.Mirror.Exclude)
	if err != nil {
		return nil, err
	}

	return &Job{
		source:  filepath.Clean(cfg.Mirror.Source),
		target:  filepath.Clean(cfg.Mirror.Target),
		filter:  filter,
		rotator: logrotate.New(cfg.Logs.Dir, jobName, cfg.Logs.Retention),
		lockDir: cfg.Logs.Dir,
		log:     logger,
		now:     time.Now,
	}, nil
}

// WithClock overrides the timestamp source. Used in tests.
func (j *Job) WithClock(now func() time.Time) *Job {
	j.now = now
	return j
}

// Run performs one mirror synchronization. Any copy failure is logged
// verbatim and returned; retry is the scheduler's responsibility.
func (j *Job) Run(ctx context.Context) error {
	startTime := j.now()
	metrics.MirrorSyncCount.Inc()
	metrics.LastMirrorSyncStart.WithLabelValues(jobName).Set(float64(startTime.Unix()))

	err := j.run(ctx)

	metrics.LastMirrorSyncEnd.WithLabelValues(jobName).Set(float64(j.now().Unix()))
	if err != nil {
		metrics.MirrorSyncFailed.WithLabelValues(jobName).Inc()
		return fmt.Errorf("mirror sync: %w", err)
	}
	metrics.MirrorSyncDuration.WithLabelValues(jobName).Observe(j.now().Sub(startTime).Seconds())
	return nil
}

func (j *Job) run(ctx context.Context) error {
	if err := j.checkPreconditions(); err != nil {
		return err
	}

	release, err := acquireLock(filepath.Join(j.lockDir, jobName+".lock"))
	if err != nil {
		return err
	}
	defer release()

	if err := j.rotator.Rotate(); err != nil {
		return err
	}

	jl, err := logrotate.OpenJobLog(j.rotator.Current())
	if err != nil {
		return err
	}
	defer jl.Close()
	jl.WithClock(j.now)

	jl.Printf("sync started: %s -> %s", j.source, j.target)

	if err := j.copy(ctx); err != nil {
		jl.Printf("copy failed: %v", err)
		jl.Printf("sync finished with status 1")
		return err
	}

	removed, err := j.deleteMissing(ctx)
	if err != nil {
		jl.Printf("delete-missing failed: %v", err)
		jl.Printf("sync finished with status 1")
		return err
	}
	if removed > 0 {
		jl.Printf("removed %d stale target entries", removed)
	}

	jl.Printf("sync finished with status 0")
	j.log.Debugf("mirror sync %s -> %s completed", j.source, j.target)
	return nil
}

func (j *Job) checkPreconditions() error {
	if j.source == j.target {
		return ErrSameSourceTarget
	}
	if info, err := os.Stat(j.source); err != nil || !info.IsDir() {
		return fmt.Errorf("mirror source %s is not a directory", j.source)
	}
	if info, err := os.Stat(filepath.Join(j.target, ".git")); err != nil || !info.IsDir() {
		return ErrTargetNotRepo
	}
	return nil
}

func (j *Job) copy(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return cp.Copy(j.source, j.target, cp.Options{
		OnDirExists: func(string, string) cp.DirExistsAction {
			return cp.Merge
		},
		Skip: func(_ os.FileInfo, src, _ string) (bool, error) {
			rel, err := filepath.Rel(j.source, src)
			if err != nil {
				return false, err
			}
			slash := filepath.ToSlash(rel)
			if slash == ".git" {
				// A source .git never overwrites the target repository.
				return true, nil
			}
			return j.filter.Excluded(slash), nil
		},
		PreserveTimes: true,
	})
}

// deleteMissing removes entries under the target that are absent from the
// source after exclusions. Excluded target paths are left alone, and the
// target's own .git is protected regardless of configuration.
func (j *Job) deleteMissing(ctx context.Context) (int, error) {
	var removed int

	err := filepath.WalkDir(j.target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if path == j.target {
			return nil
		}

		rel, err := filepath.Rel(j.target, path)
		if err != nil {
			return err
		}
		slash := filepath.ToSlash(rel)
		if slash == ".git" {
			return filepath.SkipDir
		}
		if j.filter.Excluded(slash) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if _, err := os.Lstat(filepath.Join(j.source, rel)); os.IsNotExist(err) {
			removed++
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return rmErr
			}
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		} else if err != nil {
			return err
		}
		return nil
	})

	return removed, err
}
