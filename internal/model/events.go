package model

import (
	"encoding/json"
	"fmt"
)

const (
	// Inbound event kinds, sent by the host on behalf of connected players
	EVENT_CONNECT             = "connect"
	EVENT_SCORING_COMPLETE    = "scoring_complete"
	EVENT_SESSION_END         = "session_end"
	EVENT_ACHIEVEMENT_SIGNAL  = "achievement_signal"
	EVENT_PERSONAL_BEST_QUERY = "personal_best_query"

	// Outbound event kinds, delivered by the host to players
	EVENT_PERSONAL_BEST = "personal_best"
	EVENT_RANK          = "rank"
	EVENT_BROADCAST     = "broadcast"
)

// InboundEvent is the envelope for events arriving on the host channel.
// Payload is decoded according to Kind.
type InboundEvent struct {
	Kind     string          `json:"kind"`
	Identity PlayerIdentity  `json:"identity"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// AchievementSignal is the payload of an achievement_signal event. The tier
// counters are derived server-side from scores; this is informational only.
type AchievementSignal struct {
	AchievementType int32 `json:"achievement_type"`
}

// ScoringPayload decodes the event payload as a scoring event.
func (e *InboundEvent) ScoringPayload() (ScoringEvent, error) {
	var ev ScoringEvent
	if e.Kind != EVENT_SCORING_COMPLETE {
		return ev, fmt.Errorf("event kind %q has no scoring payload", e.Kind)
	}
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return ev, fmt.Errorf("decoding scoring payload: %w", err)
	}
	return ev, nil
}

// AchievementPayload decodes the event payload as an achievement signal.
func (e *InboundEvent) AchievementPayload() (AchievementSignal, error) {
	var sig AchievementSignal
	if e.Kind != EVENT_ACHIEVEMENT_SIGNAL {
		return sig, fmt.Errorf("event kind %q has no achievement payload", e.Kind)
	}
	if err := json.Unmarshal(e.Payload, &sig); err != nil {
		return sig, fmt.Errorf("decoding achievement payload: %w", err)
	}
	return sig, nil
}

// OutboundEvent is a notification produced by the core for one player, or
// for everyone except one player when Broadcast is set.
type OutboundEvent struct {
	Kind      string `json:"kind"`
	PlayerID  uint64 `json:"player_id"`
	Broadcast bool   `json:"broadcast,omitempty"`

	// personal_best
	PersonalBest int64 `json:"personal_best,omitempty"`

	// rank; -1 means unknown
	CurrentRank int32 `json:"current_rank,omitempty"`

	// broadcast
	Score            int32 `json:"score,omitempty"`
	IsPersonalBest   byte  `json:"is_personal_best,omitempty"`
	OriginPlayerSlot byte  `json:"origin_player_slot,omitempty"`
}

// PersonalBestEvent builds a personal-best notification for one player.
func PersonalBestEvent(playerID uint64, best int64) OutboundEvent {
	return OutboundEvent{
		Kind:         EVENT_PERSONAL_BEST,
		PlayerID:     playerID,
		PersonalBest: best,
	}
}

// RankEvent builds a rank notification for one player.
func RankEvent(playerID uint64, rank int32) OutboundEvent {
	return OutboundEvent{
		Kind:        EVENT_RANK,
		PlayerID:    playerID,
		CurrentRank: rank,
	}
}

// BroadcastEvent builds a significant-score broadcast. PlayerID is the
// originator, excluded from delivery.
func BroadcastEvent(originID uint64, originSlot byte, score int64, isPB bool) OutboundEvent {
	pb := byte(0)
	if isPB {
		pb = 1
	}
	return OutboundEvent{
		Kind:             EVENT_BROADCAST,
		PlayerID:         originID,
		Broadcast:        true,
		Score:            int32(score),
		IsPersonalBest:   pb,
		OriginPlayerSlot: originSlot,
	}
}
