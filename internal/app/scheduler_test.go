package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/transfa/escrow-service/internal/config"
)

// blockingRunner holds an expiry run open until released, so overlap
// behavior can be observed deterministically.
type blockingRunner struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (r *blockingRunner) ExpirePendingTransfers(context.Context) (int, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	r.started <- struct{}{}
	<-r.release
	return 0, nil
}

func (r *blockingRunner) SendExpiryReminders(context.Context) (int, error) {
	return 0, nil
}

func (r *blockingRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestLifecycleJob_DoesNotOverlapItself(t *testing.T) {
	runner := &blockingRunner{
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobs := NewJobs(runner, logger, time.Minute)
	scheduler := NewScheduler(jobs, logger, config.Config{})

	// The startup run and the cron entry share this one wrapped instance,
	// so running it twice concurrently must execute the task only once.
	job := scheduler.lifecycleJob(jobs.ProcessExpiredTransfers)

	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	<-runner.started

	// The first run is still in flight; this invocation must be skipped.
	job.Run()
	if got := runner.callCount(); got != 1 {
		t.Fatalf("expected overlapping run to be skipped, got %d executions", got)
	}

	close(runner.release)
	<-done

	// Once the slot is free the next tick runs again.
	job.Run()
	if got := runner.callCount(); got != 2 {
		t.Fatalf("expected a fresh run after the first finished, got %d executions", got)
	}
}
