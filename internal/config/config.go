package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config represents the entire application configuration
type Config struct {
	Env     string        `json:"env"`
	Port    int           `json:"port"`
	AppName string        `json:"app_name"`
	Stats   StatsConfig   `json:"stats"`
	MongoDB MongoDBConfig `json:"mongodb"`
	Redis   RedisConfig   `json:"redis"`

	RabbitMQ    RabbitMQConfig    `json:"rabbitmq"`
	Leaderboard LeaderboardConfig `json:"leaderboard"`
	Engine      EngineConfig      `json:"engine"`
	Logging     LoggingConfig     `json:"logging"`
	CORS        CORSConfig        `json:"cors"`
}

// StatsConfig selects and configures the durable per-player stats backend
type StatsConfig struct {
	// Backend is one of "file", "mongo", "s3"
	Backend string   `json:"backend"`
	File    FileStat `json:"file"`
	S3      S3Config `json:"s3"`
}

type FileStat struct {
	// Directory under which per-player records are stored
	Directory string `json:"directory"`
}

type S3Config struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
}

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

// RabbitMQConfig contains the host event channel connection details
type RabbitMQConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	VHost          string `json:"vhost"`
	PrefetchCount  int    `json:"prefetch_count"`
	EventQueue     string `json:"event_queue"`
	EventExchange  string `json:"event_exchange"`
	NotifyExchange string `json:"notify_exchange"`
	// EventWorkers sizes the sharded event worker pool; 0 means default
	EventWorkers int `json:"event_workers"`
}

// LeaderboardConfig tunes the remote leaderboard reconciliation
type LeaderboardConfig struct {
	// RemoteTimeoutSeconds bounds every remote call; 0 means default (3s)
	RemoteTimeoutSeconds int `json:"remote_timeout_seconds"`
	// RetryBackoffMillis is the pause before the single retry; 0 disables retry
	RetryBackoffMillis int `json:"retry_backoff_millis"`
}

// EngineConfig tunes scoring event validation and broadcast behavior
type EngineConfig struct {
	// MaxScore/MaxAngle/MaxDuration override the validation bounds; zero
	// values fall back to the defaults in model
	MaxScore    int64   `json:"max_score"`
	MaxAngle    float32 `json:"max_angle"`
	MaxDuration float32 `json:"max_duration"`
	// BroadcastThreshold overrides the significant-score broadcast floor
	BroadcastThreshold int64 `json:"broadcast_threshold"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age,omitempty"` // Optional, seconds that preflight requests can be cached
}

// MongoDBConfig contains MongoDB connection details
type MongoDBConfig struct {
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       string `json:"db"`
}

// LoggingConfig contains logging-related configurations
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// LoadConfig reads configuration from the specified file path
func LoadConfig(filePath string) (*Config, error) {
	configData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}
