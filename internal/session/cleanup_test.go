package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/repforge/liftlink/internal/ble/protocol"
)

func newTestVideoStore(t *testing.T) *VideoStore {
	t.Helper()
	videos, err := NewVideoStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewVideoStore() error = %v", err)
	}
	return videos
}

func writeVideo(t *testing.T, videos *VideoStore, fileName string) {
	t.Helper()
	if err := os.WriteFile(videos.Path(fileName), []byte("frames"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}
}

func TestCleanerPurgesExpiredTombstones(t *testing.T) {
	store := newTestStore(t)
	videos := newTestVideoStore(t)
	ctx := context.Background()

	rec, _ := store.Record(ctx, protocol.SessionItem{FileName: "2024-01-01-12-Squat-raw.bin"})
	writeVideo(t, videos, rec.FileName)
	if err := store.MarkDeleted(ctx, rec.ID); err != nil {
		t.Fatalf("MarkDeleted() error = %v", err)
	}

	// Zero-ish retention so the fresh tombstone is already expired.
	cleaner := NewCleaner(store, videos, CleanerOptions{Retention: time.Nanosecond}, nil)
	time.Sleep(10 * time.Millisecond)

	purged, err := cleaner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	if videos.Exists(rec.FileName) {
		t.Error("video asset still present after purge")
	}
	if _, err := store.Get(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestCleanerRespectsRetention(t *testing.T) {
	store := newTestStore(t)
	videos := newTestVideoStore(t)
	ctx := context.Background()

	rec, _ := store.Record(ctx, protocol.SessionItem{FileName: "2024-01-01-12-Squat-raw.bin"})
	_ = store.MarkDeleted(ctx, rec.ID)

	cleaner := NewCleaner(store, videos, CleanerOptions{Retention: time.Hour}, nil)
	purged, err := cleaner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if purged != 0 {
		t.Errorf("purged = %d, want 0 (tombstone inside retention window)", purged)
	}
	if _, err := store.Get(ctx, rec.ID); err != nil {
		t.Errorf("session should survive: %v", err)
	}
}

func TestCleanerSkipsLiveSessions(t *testing.T) {
	store := newTestStore(t)
	videos := newTestVideoStore(t)
	ctx := context.Background()

	rec, _ := store.Record(ctx, protocol.SessionItem{FileName: "2024-01-01-12-Squat-raw.bin"})

	cleaner := NewCleaner(store, videos, CleanerOptions{Retention: time.Nanosecond}, nil)
	time.Sleep(10 * time.Millisecond)

	purged, err := cleaner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if purged != 0 {
		t.Errorf("purged = %d, want 0 (no tombstone)", purged)
	}
	if _, err := store.Get(ctx, rec.ID); err != nil {
		t.Errorf("live session should survive: %v", err)
	}
}

func TestCleanerMissingVideoIsBenign(t *testing.T) {
	store := newTestStore(t)
	videos := newTestVideoStore(t)
	ctx := context.Background()

	rec, _ := store.Record(ctx, protocol.SessionItem{FileName: "2024-01-01-12-Squat-raw.bin"})
	_ = store.MarkDeleted(ctx, rec.ID)

	cleaner := NewCleaner(store, videos, CleanerOptions{Retention: time.Nanosecond}, nil)
	time.Sleep(10 * time.Millisecond)

	// No video was ever recorded for this session.
	purged, err := cleaner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1 (missing asset must not block purge)", purged)
	}
}

func TestCleanerBadScheduleRejected(t *testing.T) {
	store := newTestStore(t)
	videos := newTestVideoStore(t)

	cleaner := NewCleaner(store, videos, CleanerOptions{Schedule: "not a cron spec"}, nil)
	if err := cleaner.Start(); err == nil {
		cleaner.Stop()
		t.Error("Start() should reject an invalid schedule")
	}
}

func TestVideoStoreRemoveMissing(t *testing.T) {
	videos := newTestVideoStore(t)
	if err := videos.Remove("2024-01-01-12-Squat-raw.bin"); err != nil {
		t.Errorf("Remove() of missing asset error = %v, want nil", err)
	}
}
