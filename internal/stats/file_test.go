package stats

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"driftsync/internal/model"
)

func testStats() *model.PlayerStats {
	return &model.PlayerStats{
		PlayerID:       76561198257607913,
		Name:           "Living God",
		BestScore:      256400,
		BestScoreAngle: 42.5,
		BestScoreCar:   "ks_toyota_ae86_drift",
		LongestDrift:   18.2,
		TotalDrifts:    341,
		TotalPoints:    1523400,
		AverageScore:   4467,
		AchievementCounts: map[int]int64{
			model.TIER_GEOMETRY_STUDENT: 120,
			model.TIER_DRIFT_GOD:        1,
		},
		FirstPlayedAt:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		LastPlayedAt:     time.Date(2025, 8, 30, 20, 15, 0, 0, time.UTC),
		TotalSessionTime: 90 * time.Minute,
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	ctx := context.Background()
	want := testStats()

	if err := store.Save(ctx, want.PlayerID, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, want.PlayerID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestFileStoreLoadMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	_, err = store.Load(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load of missing record: got %v, want ErrNotFound", err)
	}
}

func TestFileStoreSaveOverwrites(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	ctx := context.Background()
	first := testStats()
	if err := store.Save(ctx, first.PlayerID, first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	second := testStats()
	second.BestScore = 300000
	second.TotalDrifts = 342
	if err := store.Save(ctx, second.PlayerID, second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, first.PlayerID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.BestScore != 300000 || got.TotalDrifts != 342 {
		t.Errorf("got bestScore=%d totalDrifts=%d, want 300000/342", got.BestScore, got.TotalDrifts)
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	ctx := context.Background()
	st := testStats()
	for i := 0; i < 5; i++ {
		st.TotalDrifts++
		if err := store.Save(ctx, st.PlayerID, st); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	playerDir := filepath.Join(dir, "players", "76561198257607913")
	entries, err := os.ReadDir(playerDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "stats.json" {
		t.Errorf("player dir entries = %v, want only stats.json", entries)
	}
}

func TestFileStoreCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	playerDir := filepath.Join(dir, "players", "7")
	if err := os.MkdirAll(playerDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(playerDir, "stats.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Load(context.Background(), 7); err == nil {
		t.Error("Load of corrupt record succeeded, want error")
	}
}
