// Package workers implements the background loops that operate on
// already-provisioned resources: scheduled backups, certificate rotation,
// statistics collection and risk evaluation, and identity synchronization.
// Each worker runs its own ticker loop under a shared WorkerSupervisor,
// mirroring wisbric-nightowl's cmd/nightowl supervisor pattern of one
// goroutine per background job, all stopped together on shutdown.
package workers

import (
	"context"
	"log/slog"
	"sync"
)

// Worker is one independently-ticking background job.
type Worker interface {
	Name() string
	Run(ctx context.Context)
}

// Supervisor starts every registered Worker in its own goroutine and waits
// for all of them to return when the supervisor's context is cancelled.
type Supervisor struct {
	logger  *slog.Logger
	workers []Worker
	wg      sync.WaitGroup
}

// NewSupervisor creates a Supervisor over the given workers.
func NewSupervisor(logger *slog.Logger, ws ...Worker) *Supervisor {
	return &Supervisor{logger: logger, workers: ws}
}

// Run starts every worker and blocks until ctx is cancelled and all workers
// have returned.
func (s *Supervisor) Run(ctx context.Context) {
	for _, w := range s.workers {
		w := w
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.logger.Info("worker starting", "worker", w.Name())
			w.Run(ctx)
			s.logger.Info("worker stopped", "worker", w.Name())
		}()
	}
	<-ctx.Done()
	s.wg.Wait()
}
