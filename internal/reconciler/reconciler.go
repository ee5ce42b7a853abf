package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"driftsync/internal/config"
	"driftsync/internal/leaderboard"
	"driftsync/internal/model"

	"github.com/rs/zerolog/log"
)

const DEFAULT_REMOTE_TIMEOUT = 3 * time.Second

// RankHandler receives the rank resolved for a player after a successful
// upsert; -1 means the player was not found on the board. Delivery to a
// player that has disconnected is the handler's problem and must be a no-op.
type RankHandler func(playerID uint64, rank int32)

// flight tracks the reconciliation state for one identity. At most one sync
// runs per identity; a newer snapshot arriving mid-flight parks in next and
// supersedes anything already parked there.
type flight struct {
	active bool
	next   *model.RankRecord
}

// Coordinator pushes personal-best snapshots to the remote leaderboard and
// reads back ranks, asynchronously to the scoring path. Failures terminate
// the attempt: the next personal best re-attempts with a superset of state.
type Coordinator struct {
	lb      leaderboard.Leaderboard
	notify  RankHandler
	timeout time.Duration
	backoff time.Duration

	mu      sync.Mutex
	flights map[uint64]*flight
	closed  bool
	wg      sync.WaitGroup
}

// New creates a coordinator delivering ranks through the given handler
func New(lb leaderboard.Leaderboard, notify RankHandler, cfg config.LeaderboardConfig) *Coordinator {
	timeout := time.Duration(cfg.RemoteTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = DEFAULT_REMOTE_TIMEOUT
	}

	return &Coordinator{
		lb:      lb,
		notify:  notify,
		timeout: timeout,
		backoff: time.Duration(cfg.RetryBackoffMillis) * time.Millisecond,
		flights: make(map[uint64]*flight),
	}
}

// Submit schedules a reconciliation for the identity. Never blocks on
// network I/O: per identity there is a single in-flight sync plus one
// pending slot, and a newer snapshot overwrites the pending one.
func (c *Coordinator) Submit(identity model.PlayerIdentity, snapshot model.PlayerStats) {
	record := model.RankRecordFromStats(&snapshot)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	f, ok := c.flights[identity.PlayerID]
	if !ok {
		f = &flight{}
		c.flights[identity.PlayerID] = f
	}

	if f.active {
		f.next = &record
		log.Debug().
			Uint64("playerID", identity.PlayerID).
			Int64("bestScore", record.BestScore).
			Msg("Coalesced reconciliation behind in-flight sync")
		return
	}

	f.active = true
	c.wg.Add(1)
	go c.run(identity.PlayerID, record)
}

// run drains the per-identity queue: sync, then pick up whatever snapshot
// arrived meanwhile, until the pending slot is empty.
func (c *Coordinator) run(playerID uint64, record model.RankRecord) {
	defer c.wg.Done()

	for {
		c.sync(playerID, record)

		c.mu.Lock()
		f := c.flights[playerID]
		if f.next != nil {
			record = *f.next
			f.next = nil
			c.mu.Unlock()
			continue
		}
		delete(c.flights, playerID)
		c.mu.Unlock()
		return
	}
}

// upsert runs one attempt under its own deadline so a retry never
// inherits an already-expired context.
func (c *Coordinator) upsert(record model.RankRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.lb.Upsert(ctx, record)
}

// sync performs one upsert and rank read-back. All failures are terminal
// for this attempt and never propagate.
func (c *Coordinator) sync(playerID uint64, record model.RankRecord) {
	err := c.upsert(record)
	if err != nil && c.backoff > 0 {
		log.Warn().
			Err(err).
			Uint64("playerID", playerID).
			Dur("backoff", c.backoff).
			Msg("Leaderboard upsert failed, retrying once")
		time.Sleep(c.backoff)
		err = c.upsert(record)
	}
	if err != nil {
		log.Error().
			Err(err).
			Uint64("playerID", playerID).
			Int64("bestScore", record.BestScore).
			Msg("Leaderboard upsert failed, abandoning sync")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	rank, err := c.lb.Rank(ctx, playerID)
	if err != nil {
		if !errors.Is(err, leaderboard.ErrNotFound) {
			log.Error().
				Err(err).
				Uint64("playerID", playerID).
				Msg("Rank query failed, abandoning sync")
			return
		}
		rank = -1
	}

	log.Info().
		Uint64("playerID", playerID).
		Int64("bestScore", record.BestScore).
		Int("rank", rank).
		Msg("Synced player to leaderboard")

	c.notify(playerID, int32(rank))
}

// Close stops accepting submissions and waits for in-flight syncs, which
// are bounded by the per-call timeout.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()
}
