package metrics

import (
	"sync"
	"time"
)

// Store keeps recent task records in a fixed-size ring plus running
// aggregates, and the latest status snapshot of each backend. All methods
// are safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	taskHistory []TaskRecord
	taskCap     int
	taskHead    int
	taskSize    int

	totalTasks   int64
	totalSuccess int64
	totalErrors  int64
	taskByType   map[string]*taskTypeStats

	backends map[string]BackendStatus

	startTime time.Time
	version   string
}

type taskTypeStats struct {
	count         int64
	successCount  int64
	totalDuration time.Duration
}

// StoreConfig configures the Store.
type StoreConfig struct {
	// TaskHistoryCapacity is how many records GetRecentTasks can reach back.
	TaskHistoryCapacity int
	Version             string
}

// DefaultStoreConfig returns the defaults used when a field is unset.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		TaskHistoryCapacity: 100,
		Version:             "0.0.0",
	}
}

// NewStore creates a Store. startTime anchors the uptime calculation.
func NewStore(config StoreConfig, startTime time.Time) *Store {
	capacity := config.TaskHistoryCapacity
	if capacity < 1 {
		capacity = 100
	}

	return &Store{
		taskHistory: make([]TaskRecord, capacity),
		taskCap:     capacity,
		taskByType:  make(map[string]*taskTypeStats),
		backends:    make(map[string]BackendStatus),
		startTime:   startTime,
		version:     config.Version,
	}
}

// RecordTask logs a finished operation.
func (s *Store) RecordTask(task TaskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.taskHistory[s.taskHead] = task
	s.taskHead = (s.taskHead + 1) % s.taskCap
	if s.taskSize < s.taskCap {
		s.taskSize++
	}

	s.totalTasks++
	switch task.Status {
	case TaskStatusSuccess:
		s.totalSuccess++
	case TaskStatusError:
		s.totalErrors++
	}

	stats, ok := s.taskByType[task.Type]
	if !ok {
		stats = &taskTypeStats{}
		s.taskByType[task.Type] = stats
	}
	stats.count++
	if task.Status == TaskStatusSuccess {
		stats.successCount++
	}
	stats.totalDuration += task.Duration
}

// GetTaskMetrics returns the aggregate counters and per-type statistics.
func (s *Store) GetTaskMetrics() TaskMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := TaskMetrics{
		TotalProcessed: s.totalTasks,
		TotalSuccess:   s.totalSuccess,
		TotalErrors:    s.totalErrors,
		ByType:         make(map[string]*TaskTypeMetrics),
	}

	for taskType, stats := range s.taskByType {
		var successRate float64
		var avgDuration time.Duration
		if stats.count > 0 {
			successRate = float64(stats.successCount) / float64(stats.count) * 100
			avgDuration = stats.totalDuration / time.Duration(stats.count)
		}
		result.ByType[taskType] = &TaskTypeMetrics{
			Count:       stats.count,
			SuccessRate: successRate,
			AvgDuration: avgDuration,
		}
	}

	return result
}

// GetRecentTasks returns up to limit records, most recent first.
func (s *Store) GetRecentTasks(limit int) []TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.taskSize == 0 {
		return []TaskRecord{}
	}
	if limit > s.taskSize {
		limit = s.taskSize
	}

	result := make([]TaskRecord, limit)
	for i := 0; i < limit; i++ {
		idx := (s.taskHead - 1 - i + s.taskCap) % s.taskCap
		result[i] = s.taskHistory[idx]
	}
	return result
}

// UpdateBackendStatus stores the latest reachability snapshot for a backend.
func (s *Store) UpdateBackendStatus(status BackendStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backends[status.Name] = status
}

// GetBackendStatus returns the snapshot for one backend by name.
func (s *Store) GetBackendStatus(name string) (BackendStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.backends[name]
	return status, ok
}

// GetAllBackendStatuses returns every known backend snapshot.
func (s *Store) GetAllBackendStatuses() []BackendStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]BackendStatus, 0, len(s.backends))
	for _, status := range s.backends {
		result = append(result, status)
	}
	return result
}

// GetSystemStatus summarizes health. With backends registered but none
// reachable the system is in an error state; otherwise it is running.
func (s *Store) GetSystemStatus() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := SystemHealthRunning
	anyAvailable := false
	for _, backend := range s.backends {
		if backend.Available {
			anyAvailable = true
			break
		}
	}
	if len(s.backends) > 0 && !anyAvailable {
		health = SystemHealthError
	}

	return SystemStatus{
		Health:    health,
		Version:   s.version,
		Uptime:    time.Since(s.startTime),
		LastCheck: time.Now(),
	}
}

var _ Collector = (*Store)(nil)
