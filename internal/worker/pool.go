// Package worker runs per-user jobs with bounded concurrency.
package worker

import (
	"context"
	"sync"
)

// UserJob is one user's unit of work in a fan-out. Jobs for different users
// are independent; a job must touch only its own user's state.
type UserJob interface {
	User() string
	Execute(ctx context.Context) error
}

// Outcome is the result of one user's job.
type Outcome struct {
	User string
	Err  error
}

// Pool executes user jobs across a fixed number of workers. Failures are
// isolated: one user's error never stops the other users' jobs.
type Pool struct {
	workers int
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Run executes every job and returns one outcome per job. Context
// cancellation stops the remaining jobs from being handed out; their
// outcomes report the context error.
func (p *Pool) Run(ctx context.Context, jobs []UserJob) []Outcome {
	queue := make(chan UserJob)
	outcomes := make(chan Outcome, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				outcomes <- Outcome{User: job.User(), Err: job.Execute(ctx)}
			}
		}()
	}

	for _, job := range jobs {
		select {
		case <-ctx.Done():
			outcomes <- Outcome{User: job.User(), Err: ctx.Err()}
		case queue <- job:
		}
	}
	close(queue)
	wg.Wait()
	close(outcomes)

	collected := make([]Outcome, 0, len(jobs))
	for o := range outcomes {
		collected = append(collected, o)
	}
	return collected
}
