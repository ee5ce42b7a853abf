package model

import (
	"time"
)

const (
	// Scoring event bounds
	MAX_SCORE    = 1_000_000
	MAX_ANGLE    = 180.0
	MAX_DURATION = 300.0

	// Scores above this are broadcast to the other connected players
	BROADCAST_THRESHOLD = 5000
)

// Achievement tiers, ordered by score threshold
const (
	TIER_GEOMETRY_STUDENT    = 1 // 1000+ point drifts
	TIER_DRIFT_SPECIALIST    = 2 // 4000+ point drifts
	TIER_LATERAL_MASTER      = 3 // 16000+ point drifts
	TIER_PROFESSOR_SLIDEWAYS = 4 // 64000+ point drifts
	TIER_DRIFT_GOD           = 5 // 256000+ point drifts
)

// TierThresholds maps each achievement tier to its minimum score.
// Tier k requires 4^(k-1) * 1000 points.
var TierThresholds = map[int]int64{
	TIER_GEOMETRY_STUDENT:    1000,
	TIER_DRIFT_SPECIALIST:    4000,
	TIER_LATERAL_MASTER:      16000,
	TIER_PROFESSOR_SLIDEWAYS: 64000,
	TIER_DRIFT_GOD:           256000,
}

// TierNames maps each achievement tier to its display name.
var TierNames = map[int]string{
	TIER_GEOMETRY_STUDENT:    "Geometry Student",
	TIER_DRIFT_SPECIALIST:    "Drift Specialist",
	TIER_LATERAL_MASTER:      "Lateral Master",
	TIER_PROFESSOR_SLIDEWAYS: "Professor Slideways",
	TIER_DRIFT_GOD:           "Drift God",
}

// PlayerIdentity is the stable key joining sessions, stored stats and the
// remote leaderboard. The name and car are snapshots taken at session start.
type PlayerIdentity struct {
	PlayerID uint64 `json:"player_id" bson:"player_id"`
	Name     string `json:"name" bson:"name"`
	Car      string `json:"car" bson:"car"`
}

// PlayerStats is the durable per-player record owned by the stats store.
type PlayerStats struct {
	PlayerID uint64 `json:"player_id" bson:"player_id"`
	Name     string `json:"name" bson:"name"`

	// Best performance records
	BestScore      int64   `json:"best_score" bson:"best_score"`
	BestScoreAngle float32 `json:"best_score_angle" bson:"best_score_angle"`
	BestScoreCar   string  `json:"best_score_car" bson:"best_score_car"`

	// Single-metric records
	LongestDrift float32 `json:"longest_drift" bson:"longest_drift"`

	// Lifetime counters
	TotalDrifts  int64 `json:"total_drifts" bson:"total_drifts"`
	TotalPoints  int64 `json:"total_points" bson:"total_points"`
	AverageScore int64 `json:"average_score" bson:"average_score"`

	// Achievement milestone counters, keyed by tier
	AchievementCounts map[int]int64 `json:"achievement_counts" bson:"achievement_counts"`

	// Dates and durations
	FirstPlayedAt    time.Time     `json:"first_played_at" bson:"first_played_at"`
	LastPlayedAt     time.Time     `json:"last_played_at" bson:"last_played_at"`
	TotalSessionTime time.Duration `json:"total_session_time" bson:"total_session_time"`
}

// NewPlayerStats returns a zero record for an identity seen for the first time.
func NewPlayerStats(identity PlayerIdentity) *PlayerStats {
	return &PlayerStats{
		PlayerID:          identity.PlayerID,
		Name:              identity.Name,
		AchievementCounts: make(map[int]int64),
	}
}

// ScoringEvent is a single completed drift. Transient: consumed by the
// engine and discarded after it produces a session mutation.
type ScoringEvent struct {
	Score        int64   `json:"score"`
	AverageAngle float32 `json:"avg_angle"`
	AverageCombo float32 `json:"avg_combo"`
	Duration     float32 `json:"duration"`
}

// ApplyResult reports what a scoring event did to the session.
type ApplyResult struct {
	Accepted          bool
	IsNewPersonalBest bool
	IsNewSessionBest  bool
	TiersReached      []int
}

// RankRecord is the write-through mirror of a player's best result kept in
// the remote leaderboard. It is never authoritative; the local stats are.
type RankRecord struct {
	PlayerID       uint64    `json:"player_id"`
	Name           string    `json:"name"`
	BestScore      int64     `json:"best_score"`
	BestScoreAngle float32   `json:"best_score_angle"`
	BestScoreCar   string    `json:"best_score_car"`
	LongestDrift   float32   `json:"longest_drift"`
	TotalDrifts    int64     `json:"total_drifts"`
	LastUpdated    time.Time `json:"last_updated"`

	// Rank is filled in by listing queries, 0 otherwise.
	Rank int `json:"rank,omitempty"`
}

// RankRecordFromStats builds the leaderboard mirror of a stats record.
func RankRecordFromStats(stats *PlayerStats) RankRecord {
	return RankRecord{
		PlayerID:       stats.PlayerID,
		Name:           stats.Name,
		BestScore:      stats.BestScore,
		BestScoreAngle: stats.BestScoreAngle,
		BestScoreCar:   stats.BestScoreCar,
		LongestDrift:   stats.LongestDrift,
		TotalDrifts:    stats.TotalDrifts,
		LastUpdated:    time.Now().UTC(),
	}
}
