// Package pool executes recurring jobs in order of their deadlines, using a
// fixed number of goroutines. A job is a function returning its next
// deadline; returning the zero time removes the job from the pool. If a job
// is added while a worker is waiting for the next deadline, the waiting
// worker wakes up to reconsider the queue.
package pool

import (
	"context"
	"slices"
	"sync"
	"time"
)

type Pool struct {
	mu    sync.Mutex
	queue []*job
	wait  chan struct{}
}

type job struct {
	name     string
	fn       func(context.Context) time.Time
	deadline time.Time
}

func New(workers int) *Pool {
	pool := Pool{}

	for range workers {
		go pool.work()
	}

	return &pool
}

// Add schedules fn for immediate first execution under the given name.
func (p *Pool) Add(name string, fn func(context.Context) time.Time) {
	p.enqueue(&job{name: name, fn: fn, deadline: time.Now()})
}

func (p *Pool) work() {
	for {
		j := p.dequeue()
		j.deadline = j.fn(context.Background())
		p.enqueue(j)
	}
}

func (p *Pool) enqueue(j *job) {
	if j.deadline.IsZero() {
		// Job requested removal from the pool.
		return
	}

	p.mu.Lock()
	p.queue = append(p.queue, j)
	p.sortAndWake()
	p.mu.Unlock()
}

// sortAndWake must be called with p.mu held.
func (p *Pool) sortAndWake() {
	slices.SortFunc(p.queue, func(a, b *job) int {
		return a.deadline.Compare(b.deadline)
	})

	if p.wait != nil {
		close(p.wait)
		p.wait = nil
	}
}

func (p *Pool) dequeue() *job {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		var next *job
		if len(p.queue) == 0 {
			// Nothing queued; park far in the future until woken.
			next = &job{deadline: time.Now().Add(24 * 365 * time.Hour)}
		} else {
			next = p.queue[0]
		}

		if next.deadline.After(time.Now()) {
			if p.wait == nil {
				p.wait = make(chan struct{})
			}
			wait := p.wait

			p.mu.Unlock()
			select {
			case <-time.After(time.Until(next.deadline)):
			case <-wait:
			}
			p.mu.Lock()
			continue
		}

		break
	}

	var j *job
	j, p.queue = p.queue[0], p.queue[1:]
	return j
}
