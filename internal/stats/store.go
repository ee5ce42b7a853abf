package stats

import (
	"context"
	"fmt"

	"driftsync/internal/config"
	"driftsync/internal/model"
)

// ErrNotFound is returned when no record exists for an identity
var ErrNotFound = fmt.Errorf("player stats not found")

// Store defines durable per-player statistics storage. Records are keyed by
// the stable player id; concurrent saves for different identities are safe,
// saves for the same identity are serialized by the engine's
// one-session-per-identity rule.
type Store interface {
	// Load retrieves the record for an identity, ErrNotFound if absent
	Load(ctx context.Context, playerID uint64) (*model.PlayerStats, error)

	// Save durably replaces the record for an identity. The write is atomic:
	// a crash mid-save never corrupts the previous valid record.
	Save(ctx context.Context, playerID uint64, stats *model.PlayerStats) error

	// Ping tests the backing storage
	Ping(ctx context.Context) error

	// Close releases resources used by the store
	Close() error
}

// New builds the store selected by config
func New(cfg *config.Config) (Store, error) {
	switch cfg.Stats.Backend {
	case "", "file":
		return NewFileStore(cfg.Stats.File.Directory)
	case "mongo":
		return NewMongoStore(cfg.MongoDB)
	case "s3":
		return NewS3Store(cfg.Stats.S3)
	default:
		return nil, fmt.Errorf("unknown stats backend: %q", cfg.Stats.Backend)
	}
}
