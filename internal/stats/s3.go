package stats

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	appconfig "driftsync/internal/config"
	"driftsync/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// S3Store keeps one JSON object per player at <prefix>/players/<id>/stats.json.
// Object puts are atomic, so a failed upload never clobbers the previous
// record.
type S3Store struct {
	s3     *s3.Client
	bucket string
	prefix string
}

// NewS3Store builds a client from static credentials
func NewS3Store(cfg appconfig.S3Config) (*S3Store, error) {
	credProvider := aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
		}, nil
	})

	awsCfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credProvider),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg)

	log.Info().Str("bucket", cfg.Bucket).Str("region", cfg.Region).Msg("S3 stats store initialized")

	return &S3Store{
		s3:     client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *S3Store) recordKey(playerID uint64) string {
	key := "players/" + strconv.FormatUint(playerID, 10) + "/stats.json"
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return key
}

// Load retrieves the record for an identity
func (s *S3Store) Load(ctx context.Context, playerID uint64) (*model.PlayerStats, error) {
	key := s.recordKey(playerID)

	output, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			log.Debug().Uint64("playerID", playerID).Msg("No stats object in bucket")
			return nil, ErrNotFound
		}
		log.Error().Err(err).Str("key", key).Msg("Failed to get stats object")
		return nil, err
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, err
	}

	var stats model.PlayerStats
	if err := json.Unmarshal(data, &stats); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to decode stats object")
		return nil, fmt.Errorf("decoding stats record: %w", err)
	}
	if stats.AchievementCounts == nil {
		stats.AchievementCounts = make(map[int]int64)
	}

	log.Debug().Uint64("playerID", playerID).Int("size", len(data)).Msg("Loaded stats object")
	return &stats, nil
}

// Save uploads the record for an identity
func (s *S3Store) Save(ctx context.Context, playerID uint64, stats *model.PlayerStats) error {
	key := s.recordKey(playerID)

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding stats record: %w", err)
	}

	uploader := manager.NewUploader(s.s3)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to upload stats object")
		return err
	}

	log.Debug().Uint64("playerID", playerID).Int("size", len(data)).Msg("Saved stats object")
	return nil
}

// Ping lists one key to test the connection
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(1),
	})
	return err
}

// Close implements Store
func (s *S3Store) Close() error {
	return nil
}
