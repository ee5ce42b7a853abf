package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"driftsync/internal/model"

	"github.com/rs/zerolog/log"
)

// FileStore keeps one pretty-printed JSON record per player under
// <dir>/players/<id>/stats.json.
type FileStore struct {
	dir string
}

// NewFileStore creates the root directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "drift-data"
	}
	if err := os.MkdirAll(filepath.Join(dir, "players"), 0o755); err != nil {
		return nil, fmt.Errorf("creating stats directory: %w", err)
	}

	log.Info().Str("directory", dir).Msg("File stats store initialized")

	return &FileStore{dir: dir}, nil
}

func (s *FileStore) recordPath(playerID uint64) string {
	return filepath.Join(s.dir, "players", strconv.FormatUint(playerID, 10), "stats.json")
}

// Load retrieves the record for an identity
func (s *FileStore) Load(ctx context.Context, playerID uint64) (*model.PlayerStats, error) {
	path := s.recordPath(playerID)

	start := time.Now()
	data, err := os.ReadFile(path)
	duration := time.Since(start)

	if os.IsNotExist(err) {
		log.Debug().Uint64("playerID", playerID).Msg("No stats record on disk")
		return nil, ErrNotFound
	} else if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to read stats record")
		return nil, err
	}

	var stats model.PlayerStats
	if err := json.Unmarshal(data, &stats); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to decode stats record")
		return nil, fmt.Errorf("decoding stats record: %w", err)
	}
	if stats.AchievementCounts == nil {
		stats.AchievementCounts = make(map[int]int64)
	}

	log.Debug().
		Uint64("playerID", playerID).
		Int("size", len(data)).
		Dur("duration", duration).
		Msg("Loaded stats record")

	return &stats, nil
}

// Save replaces the record for an identity. Writes go to a temp file in the
// record's directory and are renamed into place so a crash mid-write leaves
// the previous record intact.
func (s *FileStore) Save(ctx context.Context, playerID uint64, stats *model.PlayerStats) error {
	path := s.recordPath(playerID)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to create player directory")
		return err
	}

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding stats record: %w", err)
	}

	start := time.Now()
	tmp, err := os.CreateTemp(filepath.Dir(path), "stats-*.json.tmp")
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to create temp stats file")
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		log.Error().Err(err).Str("path", path).Msg("Failed to write temp stats file")
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		log.Error().Err(err).Str("path", path).Msg("Failed to replace stats record")
		return err
	}

	log.Debug().
		Uint64("playerID", playerID).
		Int("size", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Saved stats record")

	return nil
}

// Ping verifies the root directory is usable
func (s *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(filepath.Join(s.dir, "players"))
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("stats path is not a directory")
	}
	return nil
}

// Close implements Store
func (s *FileStore) Close() error {
	return nil
}
