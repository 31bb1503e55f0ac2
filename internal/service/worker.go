package service

import (
	"context"
	"time"

	"github.com/gitmirror/gitmirror/internal/gitrepo"
	"github.com/gitmirror/gitmirror/internal/logging"
	"github.com/gitmirror/gitmirror/internal/mirror"
)

var (
	defaultInterval = time.Hour
	errorInterval   = 5 * time.Minute
)

// Worker runs one mirror-backup iteration: the snapshot sync and, only on
// its success, the commit-and-push job. It is driven by the pool via the
// next-deadline it returns.
type Worker struct {
	syncJob    *mirror.Job
	pushJob    *gitrepo.PushJob
	log        *logging.Logger
	interval   time.Duration
	singleShot bool
	done       chan struct{}
}

func NewWorker(syncJob *mirror.Job, pushJob *gitrepo.PushJob, logger *logging.Logger) *Worker {
	return &Worker{
		syncJob:  syncJob,
		pushJob:  pushJob,
		log:      logger,
		interval: defaultInterval,
		done:     make(chan struct{}),
	}
}

func (w *Worker) WithInterval(d time.Duration) *Worker {
	if d > 0 {
		w.interval = d
	}
	return w
}

func (w *Worker) WithSingleShot(singleShot bool) *Worker {
	w.singleShot = singleShot
	return w
}

// Done is closed once the worker has removed itself from the pool.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Execute runs one iteration and returns the next deadline. Failures are
// scoped to the iteration; the next scheduled run repairs state
// idempotently.
func (w *Worker) Execute(ctx context.Context) time.Time {
	if err := w.syncJob.Run(ctx); err != nil {
		w.log.Warnf("mirror sync failed: %v", err)
		return w.report(err)
	}

	if err := w.pushJob.Run(ctx); err != nil {
		w.log.Warnf("commit push failed: %v", err)
		return w.report(err)
	}

	w.log.Debugf("mirror backup iteration completed")
	return w.report(nil)
}

func (w *Worker) report(err error) time.Time {
	if w.singleShot {
		close(w.done)
		var zero time.Time
		return zero
	}

	interval := w.interval
	if err != nil {
		interval = min(errorInterval, w.interval) // faster retry on error
	}
	return time.Now().Add(interval)
}
