package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"blender_mcp/core"
	"blender_mcp/logging"
)

// Manager coordinates graceful shutdown: it cancels its context on the
// first SIGINT/SIGTERM, waits for in-flight generations, runs registered
// cleanup in priority order, and force-exits on a second signal.
//
//	manager := shutdown.NewManager(logger, shutdown.WithTimeout(30*time.Second))
//	manager.Register("history", 10, store.Close)
//	manager.Register("blender", 20, blenderClient.Shutdown)
//	manager.Register("logger", 90, func(context.Context) error { return logger.Sync() })
//	manager.Start()
//	<-manager.Context().Done()
//	manager.Shutdown()
type Manager struct {
	logger   *logging.Logger
	timeout  time.Duration
	mu       sync.Mutex
	started  bool
	shutdown bool

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *Registry
	signals  *SignalCounter

	sigChan chan os.Signal
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout sets how long Shutdown waits overall. Default 60 seconds,
// which has to cover any generation still running.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// NewManager creates a Manager. A second signal exits immediately with the
// standard error code.
func NewManager(logger *logging.Logger, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:   logger.Named("shutdown"),
		timeout:  60 * time.Second,
		ctx:      ctx,
		cancel:   cancel,
		tracker:  NewOperationTracker(),
		registry: NewRegistry(),
		sigChan:  make(chan os.Signal, 1),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("second signal received, forcing immediate exit")
		os.Exit(core.ExitCodeError)
	})

	return m
}

// Context is cancelled when shutdown begins. Long-running operations should
// derive from it.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup function. Lower priorities run first.
func (m *Manager) Register(name string, priority int, fn Func) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("registered cleanup handler",
		zap.String("name", name),
		zap.Int("priority", priority))
}

// Start installs the SIGINT/SIGTERM handler. Safe to call more than once.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range m.sigChan {
			count := m.signals.Increment()
			if count == 1 {
				m.logger.Info("shutdown signal received",
					zap.String("signal", sig.String()))
				m.cancel()
			}
		}
	}()
}

// Shutdown runs the shutdown sequence: close the tracker, wait for
// in-flight operations, then run cleanup with whatever time remains.
// Idempotent; later calls return nil.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	m.mu.Unlock()

	startTime := time.Now()
	m.logger.Info("starting graceful shutdown",
		zap.Duration("timeout", m.timeout),
		zap.Int("cleanup_handlers", m.registry.Count()))

	m.tracker.Close()

	if active := m.tracker.ActiveCount(); active > 0 {
		m.logger.Info("waiting for in-flight operations",
			zap.Int64("active", active))
	}
	if err := m.tracker.Wait(m.timeout); err != nil {
		m.logger.Warn("operations still running after timeout",
			zap.Duration("waited", time.Since(startTime)),
			zap.Int64("remaining", m.tracker.ActiveCount()))
	}

	remaining := max(m.timeout-time.Since(startTime), time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	errs := m.registry.Shutdown(ctx)
	for _, err := range errs {
		m.logger.Error("cleanup handler failed", zap.Error(err))
	}

	signal.Stop(m.sigChan)
	close(m.sigChan)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown had %d errors", len(errs))
	}
	m.logger.Info("graceful shutdown complete",
		zap.Duration("duration", time.Since(startTime)))
	return nil
}

// Wait blocks until shutdown has been initiated.
func (m *Manager) Wait() {
	<-m.ctx.Done()
}

// WrapOperation runs fn as a tracked in-flight operation. During shutdown
// it returns ErrTrackerClosed without running fn.
func (m *Manager) WrapOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	if !m.tracker.Start() {
		m.logger.Debug("operation rejected during shutdown",
			zap.String("operation", name))
		return ErrTrackerClosed
	}
	defer m.tracker.Done()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return context.Canceled
	default:
	}

	return fn(ctx)
}

// ActiveOperations returns the number of in-flight operations.
func (m *Manager) ActiveOperations() int64 {
	return m.tracker.ActiveCount()
}

// IsShuttingDown reports whether shutdown has begun.
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown || m.tracker.IsClosed()
}
