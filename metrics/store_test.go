package metrics

import (
	"fmt"
	"testing"
	"time"
)

func TestRecordTaskAggregation(t *testing.T) {
	store := NewStore(DefaultStoreConfig(), time.Now())

	store.RecordTask(TaskRecord{ID: "a", Type: TaskTypeTxt2Img, Status: TaskStatusSuccess, Duration: 2 * time.Second})
	store.RecordTask(TaskRecord{ID: "b", Type: TaskTypeTxt2Img, Status: TaskStatusError, Duration: 1 * time.Second, ErrorMsg: "boom"})
	store.RecordTask(TaskRecord{ID: "c", Type: TaskTypeHunyuan3D, Status: TaskStatusSuccess, Duration: 30 * time.Second})

	m := store.GetTaskMetrics()
	if m.TotalProcessed != 3 || m.TotalSuccess != 2 || m.TotalErrors != 1 {
		t.Errorf("totals = %d/%d/%d, want 3/2/1", m.TotalProcessed, m.TotalSuccess, m.TotalErrors)
	}

	txt := m.ByType[TaskTypeTxt2Img]
	if txt == nil {
		t.Fatal("no txt2img entry")
	}
	if txt.Count != 2 {
		t.Errorf("txt2img count = %d, want 2", txt.Count)
	}
	if txt.SuccessRate != 50 {
		t.Errorf("txt2img success rate = %v, want 50", txt.SuccessRate)
	}
	if txt.AvgDuration != 1500*time.Millisecond {
		t.Errorf("txt2img avg duration = %v, want 1.5s", txt.AvgDuration)
	}
}

func TestGetRecentTasksOrderAndLimit(t *testing.T) {
	store := NewStore(StoreConfig{TaskHistoryCapacity: 3}, time.Now())
	for i := 0; i < 5; i++ {
		store.RecordTask(TaskRecord{ID: fmt.Sprintf("t%d", i), Type: TaskTypeTxt2Img, Status: TaskStatusSuccess})
	}

	recent := store.GetRecentTasks(10)
	if len(recent) != 3 {
		t.Fatalf("len = %d, want 3 (ring capacity)", len(recent))
	}
	if recent[0].ID != "t4" || recent[1].ID != "t3" || recent[2].ID != "t2" {
		t.Errorf("order = %s,%s,%s, want t4,t3,t2", recent[0].ID, recent[1].ID, recent[2].ID)
	}

	if got := store.GetRecentTasks(1); len(got) != 1 || got[0].ID != "t4" {
		t.Errorf("limit 1 = %+v", got)
	}
	if got := store.GetRecentTasks(0); len(got) != 0 {
		t.Errorf("limit 0 returned %d records", len(got))
	}
}

func TestBackendStatuses(t *testing.T) {
	store := NewStore(DefaultStoreConfig(), time.Now())

	store.UpdateBackendStatus(BackendStatus{Name: BackendBlender, URL: "localhost:9876", Available: true})
	store.UpdateBackendStatus(BackendStatus{Name: BackendStableDiffusion, URL: "http://localhost:7860", Available: false})

	blender, ok := store.GetBackendStatus(BackendBlender)
	if !ok || !blender.Available {
		t.Errorf("blender status = %+v, ok = %v", blender, ok)
	}
	if _, ok := store.GetBackendStatus("nonexistent"); ok {
		t.Error("unknown backend reported as known")
	}
	if got := store.GetAllBackendStatuses(); len(got) != 2 {
		t.Errorf("all statuses len = %d, want 2", len(got))
	}
}

func TestSystemStatusHealth(t *testing.T) {
	start := time.Now().Add(-time.Minute)
	store := NewStore(StoreConfig{Version: "1.2.3"}, start)

	status := store.GetSystemStatus()
	if status.Health != SystemHealthRunning {
		t.Errorf("empty store health = %s, want running", status.Health)
	}
	if status.Version != "1.2.3" {
		t.Errorf("version = %s", status.Version)
	}
	if status.Uptime < time.Minute {
		t.Errorf("uptime = %v, want >= 1m", status.Uptime)
	}

	store.UpdateBackendStatus(BackendStatus{Name: BackendBlender, Available: false})
	store.UpdateBackendStatus(BackendStatus{Name: BackendHunyuan3D, Available: false})
	if got := store.GetSystemStatus().Health; got != SystemHealthError {
		t.Errorf("all backends down, health = %s, want error", got)
	}

	store.UpdateBackendStatus(BackendStatus{Name: BackendHunyuan3D, Available: true})
	if got := store.GetSystemStatus().Health; got != SystemHealthRunning {
		t.Errorf("one backend up, health = %s, want running", got)
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	store := NewStore(StoreConfig{TaskHistoryCapacity: 10}, time.Now())
	done := make(chan struct{})

	go func() {
		for i := 0; i < 200; i++ {
			store.RecordTask(TaskRecord{ID: "x", Type: TaskTypeWorkflow, Status: TaskStatusSuccess})
		}
		close(done)
	}()

	for i := 0; i < 200; i++ {
		store.GetTaskMetrics()
		store.GetRecentTasks(5)
	}
	<-done

	if got := store.GetTaskMetrics().TotalProcessed; got != 200 {
		t.Errorf("total = %d, want 200", got)
	}
}
