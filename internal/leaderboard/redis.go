package leaderboard

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"driftsync/internal/config"
	"driftsync/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisLeaderboard implements the Leaderboard interface on a redis sorted
// set. The set holds player id -> best score; the descriptive fields live in
// one JSON value per player written in the same pipeline. Rank is ZREVRANK,
// so lookups stay indexed instead of scanning the full board.
type RedisLeaderboard struct {
	client *redis.Client
	prefix string
}

// NewRedisLeaderboard creates a new redis leaderboard client
func NewRedisLeaderboard(config config.RedisConfig) (*RedisLeaderboard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})

	// Verify the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("Failed to connect to Redis")
		return nil, err
	}

	log.Info().
		Str("address", config.Address).
		Str("prefix", config.Prefix).
		Int("db", config.DB).
		Msg("Redis leaderboard initialized successfully")

	return &RedisLeaderboard{
		client: client,
		prefix: config.Prefix,
	}, nil
}

func (l *RedisLeaderboard) boardKey() string {
	return l.prefix + ":board"
}

func (l *RedisLeaderboard) recordKey(playerID uint64) string {
	return l.prefix + ":player:" + strconv.FormatUint(playerID, 10)
}

// Upsert overwrites the record for the identity
func (l *RedisLeaderboard) Upsert(ctx context.Context, record model.RankRecord) error {
	member := strconv.FormatUint(record.PlayerID, 10)

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	start := time.Now()
	pipe := l.client.TxPipeline()
	pipe.ZAdd(ctx, l.boardKey(), redis.Z{
		Score:  float64(record.BestScore),
		Member: member,
	})
	pipe.Set(ctx, l.recordKey(record.PlayerID), data, 0)
	_, err = pipe.Exec(ctx)
	duration := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Uint64("playerID", record.PlayerID).
			Int64("bestScore", record.BestScore).
			Dur("duration", duration).
			Msg("Error upserting leaderboard record")
		return err
	}

	log.Debug().
		Uint64("playerID", record.PlayerID).
		Int64("bestScore", record.BestScore).
		Dur("duration", duration).
		Msg("Upserted leaderboard record")

	return nil
}

// Rank returns the player's 1-based position under descending best score
func (l *RedisLeaderboard) Rank(ctx context.Context, playerID uint64) (int, error) {
	member := strconv.FormatUint(playerID, 10)

	start := time.Now()
	pos, err := l.client.ZRevRank(ctx, l.boardKey(), member).Result()
	duration := time.Since(start)

	if err == redis.Nil {
		log.Debug().
			Uint64("playerID", playerID).
			Dur("duration", duration).
			Msg("Player not on leaderboard")
		return 0, ErrNotFound
	} else if err != nil {
		log.Error().
			Err(err).
			Uint64("playerID", playerID).
			Dur("duration", duration).
			Msg("Error querying leaderboard rank")
		return 0, err
	}

	log.Debug().
		Uint64("playerID", playerID).
		Int64("rank", pos+1).
		Dur("duration", duration).
		Msg("Resolved leaderboard rank")

	return int(pos) + 1, nil
}

// Top returns up to n records in rank order
func (l *RedisLeaderboard) Top(ctx context.Context, n int) ([]model.RankRecord, error) {
	if n <= 0 {
		return []model.RankRecord{}, nil
	}

	members, err := l.client.ZRevRangeWithScores(ctx, l.boardKey(), 0, int64(n-1)).Result()
	if err != nil {
		log.Error().Err(err).Int("n", n).Msg("Error listing leaderboard")
		return nil, err
	}

	records := make([]model.RankRecord, 0, len(members))
	for i, member := range members {
		id, err := strconv.ParseUint(member.Member.(string), 10, 64)
		if err != nil {
			continue
		}

		var record model.RankRecord
		data, err := l.client.Get(ctx, l.recordKey(id)).Bytes()
		if err == nil {
			if err := json.Unmarshal(data, &record); err != nil {
				log.Warn().Err(err).Uint64("playerID", id).Msg("Corrupt leaderboard record, using score only")
			}
		}

		// The sorted set is the source of position and score even when the
		// descriptive record is missing
		record.PlayerID = id
		record.BestScore = int64(member.Score)
		record.Rank = i + 1
		records = append(records, record)
	}

	log.Debug().Int("count", len(records)).Msg("Retrieved leaderboard listing")
	return records, nil
}

// Ping tests the connection to the remote store
func (l *RedisLeaderboard) Ping(ctx context.Context) error {
	start := time.Now()
	err := l.client.Ping(ctx).Err()
	duration := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Dur("duration", duration).
			Msg("Error pinging Redis")
		return err
	}

	log.Debug().
		Dur("duration", duration).
		Msg("Successfully pinged Redis")

	return nil
}

// Close releases resources used by the client
func (l *RedisLeaderboard) Close() error {
	log.Info().Msg("Closing Redis leaderboard connection")
	return l.client.Close()
}
