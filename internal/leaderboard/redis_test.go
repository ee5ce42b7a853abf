package leaderboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"driftsync/internal/config"
	"driftsync/internal/model"

	"github.com/alicebob/miniredis/v2"
)

func newTestLeaderboard(t *testing.T) *RedisLeaderboard {
	t.Helper()

	mr := miniredis.RunT(t)
	lb, err := NewRedisLeaderboard(config.RedisConfig{
		Address: mr.Addr(),
		Prefix:  "driftsync-test",
	})
	if err != nil {
		t.Fatalf("NewRedisLeaderboard: %v", err)
	}
	t.Cleanup(func() { lb.Close() })

	return lb
}

func record(id uint64, name string, score int64) model.RankRecord {
	return model.RankRecord{
		PlayerID:    id,
		Name:        name,
		BestScore:   score,
		LastUpdated: time.Now().UTC(),
	}
}

func TestRankOrdering(t *testing.T) {
	lb := newTestLeaderboard(t)
	ctx := context.Background()

	seed := []model.RankRecord{
		record(1, "alpha", 9000),
		record(2, "bravo", 25000),
		record(3, "charlie", 400),
	}
	for _, r := range seed {
		if err := lb.Upsert(ctx, r); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	wantRanks := map[uint64]int{2: 1, 1: 2, 3: 3}
	for id, want := range wantRanks {
		got, err := lb.Rank(ctx, id)
		if err != nil {
			t.Fatalf("Rank(%d): %v", id, err)
		}
		if got != want {
			t.Errorf("Rank(%d) = %d, want %d", id, got, want)
		}
	}
}

func TestRankNotFound(t *testing.T) {
	lb := newTestLeaderboard(t)

	_, err := lb.Rank(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Rank of absent player: got %v, want ErrNotFound", err)
	}
}

func TestUpsertOverwrites(t *testing.T) {
	lb := newTestLeaderboard(t)
	ctx := context.Background()

	if err := lb.Upsert(ctx, record(1, "alpha", 1000)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := lb.Upsert(ctx, record(2, "bravo", 5000)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// alpha takes the lead
	if err := lb.Upsert(ctx, record(1, "alpha", 8000)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rank, err := lb.Rank(ctx, 1)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if rank != 1 {
		t.Errorf("rank after overwrite = %d, want 1", rank)
	}
}

func TestTopListing(t *testing.T) {
	lb := newTestLeaderboard(t)
	ctx := context.Background()

	for i, score := range []int64{100, 300, 200, 500, 400} {
		r := record(uint64(i+1), "player", score)
		r.BestScoreCar = "ae86"
		if err := lb.Upsert(ctx, r); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	top, err := lb.Top(ctx, 3)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("len(top) = %d, want 3", len(top))
	}

	wantScores := []int64{500, 400, 300}
	for i, r := range top {
		if r.BestScore != wantScores[i] {
			t.Errorf("top[%d].BestScore = %d, want %d", i, r.BestScore, wantScores[i])
		}
		if r.Rank != i+1 {
			t.Errorf("top[%d].Rank = %d, want %d", i, r.Rank, i+1)
		}
		if r.BestScoreCar != "ae86" {
			t.Errorf("top[%d] lost descriptive fields", i)
		}
	}
}

func TestTopZero(t *testing.T) {
	lb := newTestLeaderboard(t)

	top, err := lb.Top(context.Background(), 0)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 0 {
		t.Errorf("Top(0) returned %d records", len(top))
	}
}
