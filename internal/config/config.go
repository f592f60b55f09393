package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Tenant configuration service
	ConfigServiceURL string        `envconfig:"CONFIG_SERVICE_URL" required:"true"`
	ConfigCacheTTL   time.Duration `envconfig:"CONFIG_CACHE_TTL" default:"5m"`

	// Redis backs the retrieval caches; without it an in-process store is used
	RedisURL string `envconfig:"REDIS_URL"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`

	// Operational backend invoked by bridge actions
	BackendURL     string        `envconfig:"BACKEND_URL" required:"true"`
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"2s"`

	// API keys in "token=tenantA;tenantB,token2=*" notation. Empty
	// disables authentication (local development only).
	APIKeys string `envconfig:"API_KEYS"`

	// Retrieval score fusion
	DenseWeight  float64       `envconfig:"DENSE_WEIGHT" default:"0.6"`
	SparseWeight float64       `envconfig:"SPARSE_WEIGHT" default:"0.4"`
	ResultTTL    time.Duration `envconfig:"RESULT_TTL" default:"5m"`

	// Per-request umbrella deadline for the orchestrator
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`

	// Transcript archiving
	S3Endpoint      string        `envconfig:"S3_ENDPOINT"`
	S3AccessKey     string        `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey     string        `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket        string        `envconfig:"S3_BUCKET" default:"atendai-transcripts"`
	S3Region        string        `envconfig:"S3_REGION" default:"us-east-1"`
	ArchiveAfter    time.Duration `envconfig:"ARCHIVE_AFTER" default:"48h"`
	ArchiveInterval time.Duration `envconfig:"ARCHIVE_INTERVAL" default:"1h"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("ATENDAI", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}

func (c *Config) HasAPIKeys() bool {
	return c.APIKeys != ""
}
