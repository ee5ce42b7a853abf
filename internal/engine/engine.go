package engine

import (
	"context"
	"errors"
	"time"

	"driftsync/internal/config"
	"driftsync/internal/model"
	"driftsync/internal/stats"

	"github.com/rs/zerolog/log"
)

// Reconciler receives personal-best snapshots for asynchronous push to the
// remote leaderboard. Submit must never block on network I/O.
type Reconciler interface {
	Submit(identity model.PlayerIdentity, snapshot model.PlayerStats)
}

// Engine owns scoring sessions: it loads and mutates player statistics,
// decides personal-best and milestone transitions, and persists after every
// accepted event. All network reconciliation is delegated to the Reconciler.
type Engine struct {
	store      stats.Store
	reconciler Reconciler

	maxScore    int64
	maxAngle    float32
	maxDuration float32

	now func() time.Time
}

// New creates an engine with validation bounds from config, falling back to
// the model defaults for zero values.
func New(store stats.Store, reconciler Reconciler, cfg config.EngineConfig) *Engine {
	e := &Engine{
		store:       store,
		reconciler:  reconciler,
		maxScore:    cfg.MaxScore,
		maxAngle:    cfg.MaxAngle,
		maxDuration: cfg.MaxDuration,
		now:         time.Now,
	}
	if e.maxScore <= 0 {
		e.maxScore = model.MAX_SCORE
	}
	if e.maxAngle <= 0 {
		e.maxAngle = model.MAX_ANGLE
	}
	if e.maxDuration <= 0 {
		e.maxDuration = model.MAX_DURATION
	}
	return e
}

// CreateSession loads or initializes the player's stats and returns a fresh
// session. A store failure is not fatal: the session starts on an in-memory
// zero record in degraded mode and durability resumes on the next save.
func (e *Engine) CreateSession(ctx context.Context, identity model.PlayerIdentity) *Session {
	now := e.now()

	playerStats, err := e.store.Load(ctx, identity.PlayerID)
	degraded := false
	switch {
	case err == nil:
	case errors.Is(err, stats.ErrNotFound):
		playerStats = model.NewPlayerStats(identity)
	default:
		log.Warn().
			Err(err).
			Uint64("playerID", identity.PlayerID).
			Msg("Stats store unavailable, starting session in memory only")
		playerStats = model.NewPlayerStats(identity)
		degraded = true
	}

	// Refresh the per-session snapshot fields
	playerStats.Name = identity.Name
	if playerStats.FirstPlayedAt.IsZero() {
		playerStats.FirstPlayedAt = now
	}

	session := &Session{
		Identity:     identity,
		SessionStart: now,
		personalBest: playerStats.BestScore,
		stats:        playerStats,
		degraded:     degraded,
	}

	log.Info().
		Uint64("playerID", identity.PlayerID).
		Str("player", identity.Name).
		Str("car", identity.Car).
		Int64("personalBest", session.personalBest).
		Msg("Created drift session")

	return session
}

// validate applies the domain bounds. Out-of-range events are the anti-cheat
// floor: discarded, never surfaced as errors.
func (e *Engine) validate(event model.ScoringEvent) bool {
	if event.Score < 0 || event.Score > e.maxScore {
		return false
	}
	if event.AverageAngle < 0 || event.AverageAngle > e.maxAngle {
		return false
	}
	if event.Duration < 0 || event.Duration > e.maxDuration {
		return false
	}
	return true
}

// ApplyScoringEvent runs one accepted drift through the session state
// machine. Persistence is synchronous with the event; leaderboard
// reconciliation is handed off and never awaited.
func (e *Engine) ApplyScoringEvent(ctx context.Context, session *Session, event model.ScoringEvent) model.ApplyResult {
	if !e.validate(event) {
		log.Debug().
			Uint64("playerID", session.Identity.PlayerID).
			Int64("score", event.Score).
			Float32("angle", event.AverageAngle).
			Float32("duration", event.Duration).
			Msg("Rejected out-of-bounds scoring event")
		return model.ApplyResult{}
	}

	session.mu.Lock()

	if session.tornDown {
		session.mu.Unlock()
		log.Warn().
			Uint64("playerID", session.Identity.PlayerID).
			Msg("Scoring event after session teardown, discarded")
		return model.ApplyResult{}
	}

	now := e.now()
	st := session.stats

	result := model.ApplyResult{Accepted: true}

	session.sessionDrifts++
	if event.Score > session.sessionBestScore {
		session.sessionBestScore = event.Score
		result.IsNewSessionBest = true
	}

	if event.Duration > st.LongestDrift {
		st.LongestDrift = event.Duration
		log.Info().
			Str("player", session.Identity.Name).
			Float32("duration", event.Duration).
			Msg("New longest drift")
	}

	if event.Score > session.personalBest {
		session.personalBest = event.Score
		st.BestScore = event.Score
		st.BestScoreAngle = event.AverageAngle
		st.BestScoreCar = session.Identity.Car
		result.IsNewPersonalBest = true
	}

	// Milestone tiers are derived from the accepted score alone; one big
	// drift can clear several thresholds at once
	for tier := model.TIER_GEOMETRY_STUDENT; tier <= model.TIER_DRIFT_GOD; tier++ {
		if event.Score >= model.TierThresholds[tier] {
			st.AchievementCounts[tier]++
			result.TiersReached = append(result.TiersReached, tier)
		}
	}

	st.TotalDrifts++
	st.TotalPoints += event.Score
	st.AverageScore = st.TotalPoints / st.TotalDrifts
	st.LastPlayedAt = now

	snapshot := session.snapshotLocked()
	session.mu.Unlock()

	e.persist(ctx, session, &snapshot)

	if result.IsNewPersonalBest {
		log.Info().
			Str("player", session.Identity.Name).
			Int64("score", event.Score).
			Msg("New personal best")
		e.reconciler.Submit(session.Identity, snapshot)
	}

	log.Debug().
		Str("player", session.Identity.Name).
		Int64("score", event.Score).
		Bool("personalBest", result.IsNewPersonalBest).
		Msg("Applied scoring event")

	return result
}

// TeardownSession folds the elapsed session time into the lifetime record
// and persists it. Safe to call more than once; only the first call counts.
func (e *Engine) TeardownSession(ctx context.Context, session *Session) {
	session.mu.Lock()
	if session.tornDown {
		session.mu.Unlock()
		return
	}
	session.tornDown = true

	now := e.now()
	elapsed := now.Sub(session.SessionStart)
	session.stats.TotalSessionTime += elapsed
	session.stats.LastPlayedAt = now

	drifts := session.sessionDrifts
	snapshot := session.snapshotLocked()
	session.mu.Unlock()

	e.persist(ctx, session, &snapshot)

	log.Info().
		Str("player", session.Identity.Name).
		Dur("sessionTime", elapsed).
		Int("sessionDrifts", drifts).
		Msg("Saved final session data")
}

// persist saves a snapshot and tracks the session's degraded flag. Save
// failures are warnings: the in-memory record stays authoritative until the
// next successful save.
func (e *Engine) persist(ctx context.Context, session *Session, snapshot *model.PlayerStats) {
	err := e.store.Save(ctx, session.Identity.PlayerID, snapshot)

	session.mu.Lock()
	defer session.mu.Unlock()

	if err != nil {
		session.degraded = true
		log.Warn().
			Err(err).
			Uint64("playerID", session.Identity.PlayerID).
			Msg("Failed to persist stats, continuing in memory")
		return
	}
	session.degraded = false
}
