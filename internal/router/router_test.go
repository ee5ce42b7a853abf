package router

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"driftsync/internal/config"
	"driftsync/internal/engine"
	"driftsync/internal/model"
	"driftsync/internal/stats"
)

type memStore struct {
	mu      sync.Mutex
	records map[uint64]model.PlayerStats
}

func (m *memStore) Load(ctx context.Context, playerID uint64) (*model.PlayerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[playerID]
	if !ok {
		return nil, stats.ErrNotFound
	}
	return &record, nil
}

func (m *memStore) Save(ctx context.Context, playerID uint64, st *model.PlayerStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[playerID] = *st
	return nil
}

func (m *memStore) Ping(ctx context.Context) error { return nil }
func (m *memStore) Close() error                   { return nil }

type nullReconciler struct {
	mu          sync.Mutex
	submissions int
}

func (n *nullReconciler) Submit(identity model.PlayerIdentity, snapshot model.PlayerStats) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.submissions++
}

func (n *nullReconciler) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.submissions
}

type captureNotifier struct {
	mu     sync.Mutex
	events map[uint64][]model.OutboundEvent
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{events: make(map[uint64][]model.OutboundEvent)}
}

func (c *captureNotifier) Send(playerID uint64, event model.OutboundEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[playerID] = append(c.events[playerID], event)
}

func (c *captureNotifier) sent(playerID uint64) []model.OutboundEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.OutboundEvent(nil), c.events[playerID]...)
}

func newTestRouter() (*Router, *captureNotifier, *nullReconciler) {
	store := &memStore{records: make(map[uint64]model.PlayerStats)}
	rec := &nullReconciler{}
	eng := engine.New(store, rec, config.EngineConfig{})
	notifier := newCaptureNotifier()
	return New(eng, rec, notifier, config.EngineConfig{}), notifier, rec
}

func connectEvent(id uint64, name string) model.InboundEvent {
	return model.InboundEvent{
		Kind:     model.EVENT_CONNECT,
		Identity: model.PlayerIdentity{PlayerID: id, Name: name, Car: "ae86"},
	}
}

func scoringEvent(id uint64, score int64) model.InboundEvent {
	payload, _ := json.Marshal(model.ScoringEvent{Score: score, AverageAngle: 40, Duration: 8})
	return model.InboundEvent{
		Kind:     model.EVENT_SCORING_COMPLETE,
		Identity: model.PlayerIdentity{PlayerID: id, Name: "p"},
		Payload:  payload,
	}
}

func TestConnectSendsPersonalBestAndSyncs(t *testing.T) {
	r, notifier, rec := newTestRouter()
	ctx := context.Background()

	if err := r.Handle(ctx, connectEvent(1, "alpha")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	events := notifier.sent(1)
	if len(events) != 1 || events[0].Kind != model.EVENT_PERSONAL_BEST {
		t.Fatalf("events = %+v, want one personal_best", events)
	}
	if events[0].PersonalBest != 0 {
		t.Errorf("fresh player personalBest = %d, want 0", events[0].PersonalBest)
	}
	if rec.count() != 1 {
		t.Errorf("reconciler submissions = %d, want 1 (initial sync)", rec.count())
	}
}

func TestReconnectReplacesSession(t *testing.T) {
	r, _, _ := newTestRouter()
	ctx := context.Background()

	r.Handle(ctx, connectEvent(1, "alpha"))
	r.Handle(ctx, scoringEvent(1, 3000))
	r.Handle(ctx, connectEvent(1, "alpha"))

	sessions := r.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("live sessions = %d, want 1", len(sessions))
	}
	if sessions[0].SessionDrifts != 0 {
		t.Errorf("replacement session drifts = %d, want 0", sessions[0].SessionDrifts)
	}
	// Lifetime stats survive the replacement
	if sessions[0].PersonalBest != 3000 {
		t.Errorf("personalBest after reconnect = %d, want 3000", sessions[0].PersonalBest)
	}
}

func TestSignificantScoreBroadcast(t *testing.T) {
	r, notifier, _ := newTestRouter()
	ctx := context.Background()

	r.Handle(ctx, connectEvent(1, "alpha"))
	r.Handle(ctx, connectEvent(2, "bravo"))
	r.Handle(ctx, connectEvent(3, "charlie"))

	r.Handle(ctx, scoringEvent(1, 7500))

	for _, other := range []uint64{2, 3} {
		var broadcasts []model.OutboundEvent
		for _, ev := range notifier.sent(other) {
			if ev.Kind == model.EVENT_BROADCAST {
				broadcasts = append(broadcasts, ev)
			}
		}
		if len(broadcasts) != 1 {
			t.Fatalf("player %d broadcasts = %d, want 1", other, len(broadcasts))
		}
		if broadcasts[0].Score != 7500 {
			t.Errorf("broadcast score = %d, want 7500", broadcasts[0].Score)
		}
		if broadcasts[0].IsPersonalBest != 1 {
			t.Errorf("broadcast PB flag = %d, want 1", broadcasts[0].IsPersonalBest)
		}
	}

	// Originator is excluded
	for _, ev := range notifier.sent(1) {
		if ev.Kind == model.EVENT_BROADCAST {
			t.Error("broadcast delivered to originator")
		}
	}
}

func TestModestScoreNotBroadcast(t *testing.T) {
	r, notifier, _ := newTestRouter()
	ctx := context.Background()

	r.Handle(ctx, connectEvent(1, "alpha"))
	r.Handle(ctx, connectEvent(2, "bravo"))

	r.Handle(ctx, scoringEvent(1, 4999))

	for _, ev := range notifier.sent(2) {
		if ev.Kind == model.EVENT_BROADCAST {
			t.Error("modest score broadcast")
		}
	}
}

func TestRejectedScoreNotBroadcast(t *testing.T) {
	r, notifier, _ := newTestRouter()
	ctx := context.Background()

	r.Handle(ctx, connectEvent(1, "alpha"))
	r.Handle(ctx, connectEvent(2, "bravo"))

	r.Handle(ctx, scoringEvent(1, 2_000_000))

	for _, ev := range notifier.sent(2) {
		if ev.Kind == model.EVENT_BROADCAST {
			t.Error("rejected event broadcast")
		}
	}
}

func TestSessionEndStopsRankDelivery(t *testing.T) {
	r, notifier, _ := newTestRouter()
	ctx := context.Background()

	r.Handle(ctx, connectEvent(1, "alpha"))
	r.Handle(ctx, model.InboundEvent{
		Kind:     model.EVENT_SESSION_END,
		Identity: model.PlayerIdentity{PlayerID: 1},
	})

	before := len(notifier.sent(1))
	r.DeliverRank(1, 4)
	if got := len(notifier.sent(1)); got != before {
		t.Error("rank delivered to disconnected player")
	}
}

func TestRankDelivery(t *testing.T) {
	r, notifier, _ := newTestRouter()
	ctx := context.Background()

	r.Handle(ctx, connectEvent(1, "alpha"))
	r.DeliverRank(1, 4)

	events := notifier.sent(1)
	last := events[len(events)-1]
	if last.Kind != model.EVENT_RANK || last.CurrentRank != 4 {
		t.Errorf("last event = %+v, want rank 4", last)
	}
}

func TestPersonalBestQuery(t *testing.T) {
	r, notifier, _ := newTestRouter()
	ctx := context.Background()

	r.Handle(ctx, connectEvent(1, "alpha"))
	r.Handle(ctx, scoringEvent(1, 6000))
	r.Handle(ctx, model.InboundEvent{
		Kind:     model.EVENT_PERSONAL_BEST_QUERY,
		Identity: model.PlayerIdentity{PlayerID: 1},
	})

	events := notifier.sent(1)
	last := events[len(events)-1]
	if last.Kind != model.EVENT_PERSONAL_BEST || last.PersonalBest != 6000 {
		t.Errorf("last event = %+v, want personal_best 6000", last)
	}
}

func TestAchievementSignalDoesNotTouchCounters(t *testing.T) {
	r, _, _ := newTestRouter()
	ctx := context.Background()

	r.Handle(ctx, connectEvent(1, "alpha"))

	payload, _ := json.Marshal(model.AchievementSignal{AchievementType: model.TIER_DRIFT_GOD})
	err := r.Handle(ctx, model.InboundEvent{
		Kind:     model.EVENT_ACHIEVEMENT_SIGNAL,
		Identity: model.PlayerIdentity{PlayerID: 1, Name: "alpha"},
		Payload:  payload,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	sessions := r.Sessions()
	if len(sessions) != 1 {
		t.Fatal("session missing")
	}
	// Counters only move when a qualifying score is applied
	r.mu.RLock()
	snapshot := r.sessions[1].session.StatsSnapshot()
	r.mu.RUnlock()
	if snapshot.AchievementCounts[model.TIER_DRIFT_GOD] != 0 {
		t.Error("client-declared achievement advanced a counter")
	}
}

func TestConnectRefusedWhenSlotsExhausted(t *testing.T) {
	r, notifier, _ := newTestRouter()
	ctx := context.Background()

	for id := uint64(1); id <= 256; id++ {
		if err := r.Handle(ctx, connectEvent(id, "p")); err != nil {
			t.Fatalf("Handle connect %d: %v", id, err)
		}
	}
	if got := len(r.Sessions()); got != 256 {
		t.Fatalf("sessions = %d, want 256", got)
	}

	// 257th distinct identity finds no free slot and gets no session
	if err := r.Handle(ctx, connectEvent(257, "late")); err != nil {
		t.Fatalf("Handle connect 257: %v", err)
	}
	if got := len(r.Sessions()); got != 256 {
		t.Errorf("sessions after refused connect = %d, want 256", got)
	}
	if got := notifier.sent(257); len(got) != 0 {
		t.Errorf("refused player received events: %v", got)
	}

	// A reconnect for a live identity frees its own slot first, so it
	// still succeeds at capacity
	if err := r.Handle(ctx, connectEvent(100, "p")); err != nil {
		t.Fatalf("Handle reconnect 100: %v", err)
	}
	if got := len(r.Sessions()); got != 256 {
		t.Errorf("sessions after reconnect = %d, want 256", got)
	}
}

func TestUnknownEventKind(t *testing.T) {
	r, _, _ := newTestRouter()

	err := r.Handle(context.Background(), model.InboundEvent{Kind: "mystery"})
	if err == nil {
		t.Error("unknown event kind accepted")
	}
}
