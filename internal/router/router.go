package router

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"driftsync/internal/config"
	"driftsync/internal/engine"
	"driftsync/internal/model"

	"github.com/rs/zerolog/log"
)

// Notifier delivers one outbound event to one player. Implementations must
// treat delivery to an unreachable player as a no-op, not an error worth
// retrying.
type Notifier interface {
	Send(playerID uint64, event model.OutboundEvent)
}

// entry is one registered session with its broadcast slot
type entry struct {
	session *engine.Session
	slot    byte
}

// Router owns the session registry and maps inbound host events onto engine
// and reconciler calls, and engine results onto outbound notifications.
type Router struct {
	engine     *engine.Engine
	reconciler engine.Reconciler
	notifier   Notifier

	broadcastThreshold int64

	mu       sync.RWMutex
	sessions map[uint64]*entry
	slots    map[byte]bool
}

// New creates a router with an empty registry
func New(eng *engine.Engine, rec engine.Reconciler, notifier Notifier, cfg config.EngineConfig) *Router {
	threshold := cfg.BroadcastThreshold
	if threshold <= 0 {
		threshold = model.BROADCAST_THRESHOLD
	}

	return &Router{
		engine:             eng,
		reconciler:         rec,
		notifier:           notifier,
		broadcastThreshold: threshold,
		sessions:           make(map[uint64]*entry),
		slots:              make(map[byte]bool),
	}
}

// Handle dispatches one inbound event. Events for a single player arrive on
// one ordered channel, so per-identity handling is sequential; different
// identities may call Handle concurrently.
func (r *Router) Handle(ctx context.Context, event model.InboundEvent) error {
	switch event.Kind {
	case model.EVENT_CONNECT:
		r.handleConnect(ctx, event.Identity)
		return nil
	case model.EVENT_SCORING_COMPLETE:
		return r.handleScoring(ctx, event)
	case model.EVENT_SESSION_END:
		r.handleSessionEnd(ctx, event.Identity.PlayerID)
		return nil
	case model.EVENT_ACHIEVEMENT_SIGNAL:
		return r.handleAchievement(event)
	case model.EVENT_PERSONAL_BEST_QUERY:
		r.handlePersonalBestQuery(event.Identity.PlayerID)
		return nil
	default:
		return fmt.Errorf("unknown event kind: %q", event.Kind)
	}
}

// handleConnect registers a session, replacing any prior one for the same
// identity, then sends the loaded personal best back and schedules an
// initial leaderboard sync.
func (r *Router) handleConnect(ctx context.Context, identity model.PlayerIdentity) {
	r.mu.Lock()
	if prior, ok := r.sessions[identity.PlayerID]; ok {
		// Replace, never merge: the stale session is flushed and dropped
		delete(r.sessions, identity.PlayerID)
		delete(r.slots, prior.slot)
		r.mu.Unlock()
		log.Warn().
			Uint64("playerID", identity.PlayerID).
			Msg("Connect for identity with a live session, replacing")
		r.engine.TeardownSession(ctx, prior.session)
		r.mu.Lock()
	}
	slot, ok := r.freeSlotLocked()
	if !ok {
		r.mu.Unlock()
		log.Warn().
			Uint64("playerID", identity.PlayerID).
			Str("player", identity.Name).
			Msg("All broadcast slots in use, connect refused")
		return
	}
	r.slots[slot] = true
	r.mu.Unlock()

	session := r.engine.CreateSession(ctx, identity)

	r.mu.Lock()
	r.sessions[identity.PlayerID] = &entry{session: session, slot: slot}
	r.mu.Unlock()

	log.Info().
		Str("player", identity.Name).
		Uint8("slot", slot).
		Msg("Player connected")

	r.notifier.Send(identity.PlayerID, model.PersonalBestEvent(identity.PlayerID, session.PersonalBest()))
	r.reconciler.Submit(identity, session.StatsSnapshot())
}

// freeSlotLocked returns the lowest unused broadcast slot, or false when
// all 256 slots are taken.
func (r *Router) freeSlotLocked() (byte, bool) {
	for slot := 0; slot < 256; slot++ {
		if !r.slots[byte(slot)] {
			return byte(slot), true
		}
	}
	return 0, false
}

func (r *Router) handleScoring(ctx context.Context, event model.InboundEvent) error {
	scoring, err := event.ScoringPayload()
	if err != nil {
		return err
	}

	r.mu.RLock()
	ent, ok := r.sessions[event.Identity.PlayerID]
	r.mu.RUnlock()
	if !ok {
		log.Warn().
			Uint64("playerID", event.Identity.PlayerID).
			Msg("Scoring event for unknown session, dropped")
		return nil
	}

	result := r.engine.ApplyScoringEvent(ctx, ent.session, scoring)

	if result.Accepted && scoring.Score > r.broadcastThreshold {
		r.broadcast(event.Identity.PlayerID, ent.slot, scoring.Score, result.IsNewPersonalBest)
	}

	return nil
}

// broadcast sends a significant score to every other currently connected
// player. The recipient list is taken at send time, so anyone who
// disconnected while the event was processed is skipped.
func (r *Router) broadcast(originID uint64, originSlot byte, score int64, isPB bool) {
	event := model.BroadcastEvent(originID, originSlot, score, isPB)

	r.mu.RLock()
	recipients := make([]uint64, 0, len(r.sessions))
	for playerID := range r.sessions {
		if playerID != originID {
			recipients = append(recipients, playerID)
		}
	}
	r.mu.RUnlock()

	for _, playerID := range recipients {
		r.notifier.Send(playerID, event)
	}

	log.Info().
		Uint64("playerID", originID).
		Int64("score", score).
		Bool("personalBest", isPB).
		Int("recipients", len(recipients)).
		Msg("Broadcast significant drift score")
}

func (r *Router) handleSessionEnd(ctx context.Context, playerID uint64) {
	r.mu.Lock()
	ent, ok := r.sessions[playerID]
	if ok {
		delete(r.sessions, playerID)
		delete(r.slots, ent.slot)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	log.Info().Uint64("playerID", playerID).Msg("Player disconnected")
	r.engine.TeardownSession(ctx, ent.session)
}

// handleAchievement logs the client-declared tier. Milestone counters are
// advanced server-side from scores, so the signal is informational only.
func (r *Router) handleAchievement(event model.InboundEvent) error {
	signal, err := event.AchievementPayload()
	if err != nil {
		return err
	}

	name, ok := model.TierNames[int(signal.AchievementType)]
	if !ok {
		log.Debug().
			Uint64("playerID", event.Identity.PlayerID).
			Int32("achievementType", signal.AchievementType).
			Msg("Achievement signal for unknown tier")
		return nil
	}

	log.Info().
		Str("player", event.Identity.Name).
		Str("achievement", name).
		Msg("Player reported achievement")
	return nil
}

func (r *Router) handlePersonalBestQuery(playerID uint64) {
	r.mu.RLock()
	ent, ok := r.sessions[playerID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	r.notifier.Send(playerID, model.PersonalBestEvent(playerID, ent.session.PersonalBest()))
}

// DeliverRank forwards a resolved rank to the player. No-op if the player
// has disconnected since the reconciliation started.
func (r *Router) DeliverRank(playerID uint64, rank int32) {
	r.mu.RLock()
	_, ok := r.sessions[playerID]
	r.mu.RUnlock()
	if !ok {
		log.Debug().
			Uint64("playerID", playerID).
			Int32("rank", rank).
			Msg("Rank resolved for disconnected player, dropped")
		return
	}

	r.notifier.Send(playerID, model.RankEvent(playerID, rank))
}

// Sessions returns summaries of all live sessions, ordered by player id
func (r *Router) Sessions() []engine.Summary {
	r.mu.RLock()
	summaries := make([]engine.Summary, 0, len(r.sessions))
	for _, ent := range r.sessions {
		summaries = append(summaries, ent.session.Summarize())
	}
	r.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].PlayerID < summaries[j].PlayerID
	})
	return summaries
}

// Shutdown tears down every live session, flushing final stats
func (r *Router) Shutdown(ctx context.Context) {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, ent := range r.sessions {
		entries = append(entries, ent)
	}
	r.sessions = make(map[uint64]*entry)
	r.slots = make(map[byte]bool)
	r.mu.Unlock()

	for _, ent := range entries {
		r.engine.TeardownSession(ctx, ent.session)
	}

	log.Info().Int("sessions", len(entries)).Msg("All sessions flushed")
}
