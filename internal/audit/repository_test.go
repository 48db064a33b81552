package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/infrastructure/database"
	"github.com/nerrad567/showrunner/internal/runctx"
	_ "github.com/nerrad567/showrunner/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func record(routineID string, started time.Time) *automation.RunRecord {
	root := runctx.NewRoot("", "routine", routineID)
	root.Child("t1", "task", "Task one").Info("task started")
	return &automation.RunRecord{
		RoutineID:   routineID,
		RoutineName: "Routine " + routineID,
		Source:      automation.SourceTrigger,
		TriggerID:   "tr-" + routineID,
		Status:      automation.StatusRunning,
		StartedAt:   started,
		Log:         root.Tree().Export(),
	}
}

func TestCreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	started := time.Date(2026, 10, 18, 19, 0, 0, 0, time.UTC)

	rec := record("opening", started)
	if err := repo.CreateRun(ctx, rec); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if rec.ID == "" {
		t.Fatal("CreateRun() did not assign an ID")
	}

	got, err := repo.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != automation.StatusRunning || got.FinishedAt != nil || got.TriggerID != "tr-opening" {
		t.Errorf("Get() = %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.Log == nil || len(got.Log.Children) != 1 || got.Log.Children[0].ID != "t1" {
		t.Errorf("Log = %+v", got.Log)
	}
}

func TestUpdateRun(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	rec := record("opening", time.Now().UTC())
	if err := repo.CreateRun(ctx, rec); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	rec.Status = automation.StatusFailed
	rec.Error = `"Projector" timed out after 5000 ms`
	rec.FinishedAt = rec.StartedAt.Add(1500 * time.Millisecond)
	if err := repo.UpdateRun(ctx, rec); err != nil {
		t.Fatalf("UpdateRun() error = %v", err)
	}

	got, err := repo.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != automation.StatusFailed || got.Error != rec.Error {
		t.Errorf("Get() = %+v", got)
	}
	if got.DurationMS != 1500 || got.FinishedAt == nil {
		t.Errorf("DurationMS = %d, FinishedAt = %v", got.DurationMS, got.FinishedAt)
	}
}

func TestUpdateRun_Missing(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.UpdateRun(context.Background(), &automation.RunRecord{ID: "nope", Status: automation.StatusCompleted})
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("UpdateRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Get() error = %v, want ErrRunNotFound", err)
	}
}

func TestList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "a", "a"} {
		rec := record(id, base.Add(time.Duration(i)*time.Second))
		if err := repo.CreateRun(ctx, rec); err != nil {
			t.Fatalf("CreateRun() error = %v", err)
		}
		if i == 3 {
			rec.Status = automation.StatusCompleted
			rec.FinishedAt = rec.StartedAt.Add(time.Second)
			if err := repo.UpdateRun(ctx, rec); err != nil {
				t.Fatalf("UpdateRun() error = %v", err)
			}
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantLen   int
	}{
		{"all", Filter{}, 4, 4},
		{"by routine", Filter{RoutineID: "a"}, 3, 3},
		{"by trigger", Filter{TriggerID: "tr-b"}, 1, 1},
		{"by status", Filter{Status: automation.StatusCompleted}, 1, 1},
		{"since", Filter{Since: base.Add(2 * time.Second)}, 2, 2},
		{"paged", Filter{Limit: 2, Offset: 1}, 4, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal || len(res.Runs) != tt.wantLen {
				t.Errorf("List() total=%d len=%d, want %d/%d", res.Total, len(res.Runs), tt.wantTotal, tt.wantLen)
			}
		})
	}

	res, _ := repo.List(ctx, Filter{})
	if !res.Runs[0].StartedAt.Equal(base.Add(3 * time.Second)) {
		t.Errorf("first run started %v, want most recent", res.Runs[0].StartedAt)
	}
	if res.Runs[0].Log != nil {
		t.Error("List() should omit execution logs")
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := newTestRepo(t)
	res, err := repo.List(context.Background(), Filter{Limit: 1000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != 200 || res.Offset != 0 || res.Runs == nil {
		t.Errorf("List() = %+v", res)
	}
}

var _ Repository = (*SQLiteRepository)(nil)
