package engine

import (
	"sync"
	"time"

	"driftsync/internal/model"
)

// Session is the live scoring context for one connected player. The router
// guarantees at most one active session per identity; the mutex only guards
// against teardown racing a late event or a stats read from the HTTP API.
type Session struct {
	Identity     model.PlayerIdentity
	SessionStart time.Time

	mu               sync.Mutex
	sessionDrifts    int
	sessionBestScore int64
	personalBest     int64
	stats            *model.PlayerStats
	degraded         bool
	tornDown         bool
}

// PersonalBest returns the session's authoritative best score cache.
func (s *Session) PersonalBest() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.personalBest
}

// Degraded reports whether the last persistence attempt failed and the
// in-memory record is ahead of durable storage.
func (s *Session) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Summary is a point-in-time view of a live session.
type Summary struct {
	PlayerID         uint64    `json:"player_id"`
	Name             string    `json:"name"`
	Car              string    `json:"car"`
	SessionStart     time.Time `json:"session_start"`
	SessionDrifts    int       `json:"session_drifts"`
	SessionBestScore int64     `json:"session_best_score"`
	PersonalBest     int64     `json:"personal_best"`
	Degraded         bool      `json:"degraded,omitempty"`
}

// Summarize returns a snapshot for the read API.
func (s *Session) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		PlayerID:         s.Identity.PlayerID,
		Name:             s.Identity.Name,
		Car:              s.Identity.Car,
		SessionStart:     s.SessionStart,
		SessionDrifts:    s.sessionDrifts,
		SessionBestScore: s.sessionBestScore,
		PersonalBest:     s.personalBest,
		Degraded:         s.degraded,
	}
}

// StatsSnapshot returns a copy of the persisted record as the session sees
// it, safe to hand to the reconciler or the read API.
func (s *Session) StatsSnapshot() model.PlayerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() model.PlayerStats {
	snapshot := *s.stats
	snapshot.AchievementCounts = make(map[int]int64, len(s.stats.AchievementCounts))
	for tier, count := range s.stats.AchievementCounts {
		snapshot.AchievementCounts[tier] = count
	}
	return snapshot
}
