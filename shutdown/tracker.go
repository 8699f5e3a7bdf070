// Package shutdown coordinates graceful termination: it tracks in-flight
// generation operations, runs registered cleanup functions in priority
// order, and escalates to a forced exit on a second signal.
package shutdown

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTrackerClosed is returned when an operation is started after shutdown
// has begun.
var ErrTrackerClosed = errors.New("operation tracker is closed")

// ErrWaitTimeout is returned when in-flight operations outlive the wait.
var ErrWaitTimeout = errors.New("wait timeout: operations did not complete in time")

// OperationTracker counts in-flight operations so shutdown can wait for
// running generations instead of cutting them off mid-request.
type OperationTracker struct {
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active int64
	closed bool
}

// NewOperationTracker returns an open tracker.
func NewOperationTracker() *OperationTracker {
	return &OperationTracker{}
}

// Start registers a new operation. It returns false when the tracker is
// closed; the caller must then reject the operation. Every true return must
// be paired with exactly one Done.
func (t *OperationTracker) Start() bool {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return false
	}
	t.mu.RUnlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.wg.Add(1)
	atomic.AddInt64(&t.active, 1)
	t.mu.Unlock()
	return true
}

// Done marks one operation finished.
func (t *OperationTracker) Done() {
	atomic.AddInt64(&t.active, -1)
	t.wg.Done()
}

// Wait blocks until every tracked operation finishes or timeout elapses,
// returning ErrWaitTimeout in the latter case.
func (t *OperationTracker) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrWaitTimeout
	}
}

// Close stops new operations from starting. Running ones finish normally.
func (t *OperationTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// ActiveCount returns the number of operations currently in flight.
func (t *OperationTracker) ActiveCount() int64 {
	return atomic.LoadInt64(&t.active)
}

// IsClosed reports whether Close has been called.
func (t *OperationTracker) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}
