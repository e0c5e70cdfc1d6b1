// Package queue holds maintenance jobs that must eventually succeed, such as
// the availability sync run at startup, and retries them while the database
// is unreachable.
package queue

import (
	"context"
	"log"
	"sync"
	"time"
)

type Job struct {
	Name       string
	Run        func(ctx context.Context) error
	RetryAt    time.Time
	Attempts   int
	MaxRetries int
}

type Queue struct {
	items []*Job
	mu    sync.Mutex
	now   func() time.Time
}

func NewQueue() *Queue {
	return &Queue{
		items: make([]*Job, 0),
		now:   time.Now,
	}
}

func (q *Queue) Enqueue(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, job)
}

// Dequeue removes and returns the first job that is due, or nil.
func (q *Queue) Dequeue() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for i, job := range q.items {
		if !job.RetryAt.After(now) {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return job
		}
	}
	return nil
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Names lists the pending jobs, for the health endpoint.
func (q *Queue) Names() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	names := make([]string, len(q.items))
	for i, job := range q.items {
		names[i] = job.Name
	}
	return names
}

// RunDue runs every job that is due once. A failed job goes back on the queue
// with a doubled delay until it has used up MaxRetries; the number of jobs
// that succeeded is returned.
func (q *Queue) RunDue(ctx context.Context, backoff time.Duration) int {
	done := 0
	var failed []*Job
	for {
		job := q.Dequeue()
		if job == nil {
			break
		}
		err := job.Run(ctx)
		if err == nil {
			log.Printf("Job %s completed after %d attempts", job.Name, job.Attempts+1)
			done++
			continue
		}

		job.Attempts++
		if job.MaxRetries > 0 && job.Attempts > job.MaxRetries {
			log.Printf("Job %s dropped after %d attempts: %v", job.Name, job.Attempts, err)
			continue
		}
		delay := backoff << min(job.Attempts-1, 6)
		job.RetryAt = q.now().Add(delay)
		log.Printf("Job %s failed (attempt %d), retrying in %s: %v", job.Name, job.Attempts, delay, err)
		failed = append(failed, job)
	}
	for _, job := range failed {
		q.Enqueue(job)
	}
	return done
}

// Start polls the queue every interval until ctx is cancelled.
func (q *Queue) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.RunDue(ctx, interval)
			}
		}
	}()
}
