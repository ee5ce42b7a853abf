package leaderboard

import (
	"context"
	"fmt"

	"driftsync/internal/model"
)

// ErrNotFound is returned when an identity has no record in the remote store
var ErrNotFound = fmt.Errorf("player not on leaderboard")

// Leaderboard defines the interface to the remote ranked store. It mirrors
// each player's best result; the local stats store stays authoritative.
type Leaderboard interface {
	// Upsert overwrites the record for the identity (idempotent)
	Upsert(ctx context.Context, record model.RankRecord) error

	// Rank returns the player's 1-based position under descending best
	// score, ErrNotFound if absent. The result may lag a concurrent write.
	Rank(ctx context.Context, playerID uint64) (int, error)

	// Top returns up to n records in rank order, Rank fields populated
	Top(ctx context.Context, n int) ([]model.RankRecord, error)

	// Ping tests the connection to the remote store
	Ping(ctx context.Context) error

	// Close releases resources used by the client
	Close() error
}
