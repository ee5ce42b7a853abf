package stats

import (
	"context"
	"time"

	"driftsync/internal/config"
	"driftsync/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps one document per player in the player_stats collection.
type MongoStore struct {
	client   *mongo.Client
	statsCol *mongo.Collection
}

// NewMongoStore connects and ensures the player_id index
func NewMongoStore(cfg config.MongoDBConfig) (*MongoStore, error) {
	clientOptions := options.Client().ApplyURI(cfg.URI)
	if cfg.Username != "" {
		clientOptions.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}

	client, err := mongo.Connect(context.TODO(), clientOptions)
	if err != nil {
		return nil, err
	}

	db := client.Database(cfg.DB)
	statsCol := db.Collection("player_stats")

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "player_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "best_score", Value: -1}},
			Options: options.Index(),
		},
	}

	_, err = statsCol.Indexes().CreateMany(context.Background(), indexModels)
	if err != nil {
		log.Warn().Err(err).Str("Collection", "player_stats").Msg("Error creating indexes")
	}

	log.Info().Str("db", cfg.DB).Msg("Mongo stats store initialized")

	return &MongoStore{
		client:   client,
		statsCol: statsCol,
	}, nil
}

// Load retrieves the record for an identity
func (s *MongoStore) Load(ctx context.Context, playerID uint64) (*model.PlayerStats, error) {
	var stats model.PlayerStats

	filter := bson.M{"player_id": playerID}
	err := s.statsCol.FindOne(ctx, filter).Decode(&stats)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			log.Debug().Uint64("playerID", playerID).Msg("Stats record not found")
			return nil, ErrNotFound
		}
		log.Error().Err(err).Uint64("playerID", playerID).Msg("Failed to load stats record")
		return nil, err
	}

	if stats.AchievementCounts == nil {
		stats.AchievementCounts = make(map[int]int64)
	}

	log.Debug().Uint64("playerID", playerID).Msg("Loaded stats record")
	return &stats, nil
}

// Save upserts the record for an identity. A document replace is atomic on
// the server side, satisfying the no-partial-write requirement.
func (s *MongoStore) Save(ctx context.Context, playerID uint64, stats *model.PlayerStats) error {
	filter := bson.M{"player_id": playerID}
	opts := options.Replace().SetUpsert(true)

	_, err := s.statsCol.ReplaceOne(ctx, filter, stats, opts)
	if err != nil {
		log.Error().Err(err).Uint64("playerID", playerID).Msg("Failed to save stats record")
		return err
	}

	log.Debug().Uint64("playerID", playerID).Msg("Saved stats record")
	return nil
}

// Ping implements Store
func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	err := s.client.Ping(ctx, nil)
	if err != nil {
		log.Error().Msgf("Stats store health error: %v", err)
		return err
	}

	return nil
}

// Close disconnects the client
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
