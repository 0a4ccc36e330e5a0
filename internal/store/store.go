package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatmate/chatmate/internal/access"
	"github.com/chatmate/chatmate/internal/instrumentation"
	"github.com/chatmate/chatmate/internal/logging"
)

// Backend types accepted in Config.Type.
const (
	TypeMemory = instrumentation.BackendMemory
	TypeMongo  = instrumentation.BackendMongo
	TypeValkey = instrumentation.BackendValkey
)

// Repository is an access.Repository with a lifecycle.
type Repository interface {
	access.Repository

	// Ping checks that the backend is reachable. Used by readiness probes.
	Ping(ctx context.Context) error

	// Close releases backend connections.
	Close(ctx context.Context) error
}

// Config selects and configures a storage backend.
type Config struct {
	// Type is one of memory, mongo, valkey (default: memory).
	Type   string       `yaml:"type"`
	Mongo  MongoConfig  `yaml:"mongo"`
	Valkey ValkeyConfig `yaml:"valkey"`
}

// MongoConfig configures the MongoDB backend.
type MongoConfig struct {
	URI        string        `yaml:"uri"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ValkeyConfig configures the Valkey backend.
type ValkeyConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// Defaults
const (
	DefaultMongoURI        = "mongodb://localhost:27017"
	DefaultMongoDatabase   = "chatmate"
	DefaultMongoCollection = "users"
	DefaultMongoTimeout    = 10 * time.Second
	DefaultValkeyAddr      = "localhost:6379"
	DefaultValkeyKeyPrefix = "chatmate:"
)

// DefaultConfig returns an in-memory configuration with backend defaults
// filled in for the other types.
func DefaultConfig() Config {
	return Config{
		Type: TypeMemory,
		Mongo: MongoConfig{
			URI:        DefaultMongoURI,
			Database:   DefaultMongoDatabase,
			Collection: DefaultMongoCollection,
			Timeout:    DefaultMongoTimeout,
		},
		Valkey: ValkeyConfig{
			Addr:      DefaultValkeyAddr,
			KeyPrefix: DefaultValkeyKeyPrefix,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Type {
	case "", TypeMemory:
		return nil
	case TypeMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("mongo uri is required for the mongo backend")
		}
		if c.Mongo.Database == "" || c.Mongo.Collection == "" {
			return fmt.Errorf("mongo database and collection are required for the mongo backend")
		}
		return nil
	case TypeValkey:
		if c.Valkey.Addr == "" {
			return fmt.Errorf("valkey addr is required for the valkey backend")
		}
		return nil
	default:
		return fmt.Errorf("invalid storage type %q, must be one of: memory, mongo, valkey", c.Type)
	}
}

// New opens the configured backend and wraps it with metrics and tracing.
func New(ctx context.Context, cfg Config, logger *slog.Logger, metrics *instrumentation.Metrics) (Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logging.ForBackend(logger, backendName(cfg.Type))

	var (
		repo Repository
		err  error
	)
	switch cfg.Type {
	case TypeMongo:
		repo, err = NewMongo(ctx, cfg.Mongo, log)
	case TypeValkey:
		repo, err = NewValkey(ctx, cfg.Valkey, log)
	default:
		repo = NewMemory()
		log.Info("using in-memory storage, data is lost on restart")
	}
	if err != nil {
		return nil, err
	}
	return Instrument(repo, backendName(cfg.Type), metrics), nil
}

func backendName(t string) string {
	if t == "" {
		return TypeMemory
	}
	return t
}

func notFound(username string) error {
	return fmt.Errorf("owner %s: %w", username, access.ErrNotFound)
}

func alreadyExists(username string) error {
	return fmt.Errorf("owner %s: %w", username, access.ErrAlreadyExists)
}
