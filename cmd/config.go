package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chatmate/chatmate/internal/config"
	"github.com/chatmate/chatmate/internal/instrumentation"
	"github.com/chatmate/chatmate/internal/logging"
	"github.com/chatmate/chatmate/internal/server"
	"github.com/chatmate/chatmate/internal/store"
)

// storageFlags holds the settings shared by every command that opens the
// storage backend.
type storageFlags struct {
	configFile string
	debug      bool
	logFormat  string

	storageType     string
	mongoURI        string
	mongoDatabase   string
	mongoCollection string
	valkeyURL       string
	valkeyPassword  string
	valkeyDB        int
	valkeyKeyPrefix string
}

func (f *storageFlags) register(cmd *cobra.Command) {
	defaults := config.Default()
	flags := cmd.PersistentFlags()

	flags.StringVar(&f.configFile, "config", "", "Path to a YAML config file. Can also use CHATMATE_CONFIG env var.")
	flags.BoolVar(&f.debug, "debug", false, "Enable debug logging. Can also use DEBUG env var.")
	flags.StringVar(&f.logFormat, "log-format", defaults.Logging.Format, "Log format: text or json. Can also use LOG_FORMAT env var.")

	flags.StringVar(&f.storageType, "storage-type", defaults.Storage.Type, "Storage backend: memory, mongo or valkey. Can also use STORAGE_TYPE env var.")
	flags.StringVar(&f.mongoURI, "mongo-uri", defaults.Storage.Mongo.URI, "MongoDB connection URI. Can also use MONGO_URI env var.")
	flags.StringVar(&f.mongoDatabase, "mongo-database", defaults.Storage.Mongo.Database, "MongoDB database name. Can also use MONGO_DATABASE env var.")
	flags.StringVar(&f.mongoCollection, "mongo-collection", defaults.Storage.Mongo.Collection, "MongoDB collection holding owner records. Can also use MONGO_COLLECTION env var.")
	flags.StringVar(&f.valkeyURL, "valkey-url", defaults.Storage.Valkey.Addr, "Valkey server address (e.g., valkey.namespace.svc:6379). Can also use VALKEY_URL env var.")
	flags.StringVar(&f.valkeyPassword, "valkey-password", "", "Valkey authentication password. Can also use VALKEY_PASSWORD env var.")
	flags.IntVar(&f.valkeyDB, "valkey-db", 0, "Valkey database number. Can also use VALKEY_DB env var.")
	flags.StringVar(&f.valkeyKeyPrefix, "valkey-key-prefix", defaults.Storage.Valkey.KeyPrefix, "Prefix for all Valkey keys. Can also use VALKEY_KEY_PREFIX env var.")
}

// load builds the configuration: defaults, then the config file, then
// environment variables, then flags the user set explicitly.
func (f *storageFlags) load(cmd *cobra.Command) (config.Config, error) {
	path := f.configFile
	if !cmd.Flags().Changed("config") {
		if env := os.Getenv("CHATMATE_CONFIG"); env != "" {
			path = env
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()

	changed := cmd.Flags().Changed
	if changed("debug") {
		cfg.Logging.Debug = f.debug
	}
	if changed("log-format") {
		cfg.Logging.Format = f.logFormat
	}
	if changed("storage-type") {
		cfg.Storage.Type = f.storageType
	}
	if changed("mongo-uri") {
		cfg.Storage.Mongo.URI = f.mongoURI
	}
	if changed("mongo-database") {
		cfg.Storage.Mongo.Database = f.mongoDatabase
	}
	if changed("mongo-collection") {
		cfg.Storage.Mongo.Collection = f.mongoCollection
	}
	if changed("valkey-url") {
		cfg.Storage.Valkey.Addr = f.valkeyURL
	}
	if changed("valkey-password") {
		cfg.Storage.Valkey.Password = f.valkeyPassword
	}
	if changed("valkey-db") {
		cfg.Storage.Valkey.DB = f.valkeyDB
	}
	if changed("valkey-key-prefix") {
		cfg.Storage.Valkey.KeyPrefix = f.valkeyKeyPrefix
	}
	return cfg, nil
}

// newLogger builds the process logger on stderr and installs it as the slog
// default so the audit logger picks it up.
func newLogger(cfg config.Config) *slog.Logger {
	logger := logging.New(os.Stderr, cfg.Logging.Format, cfg.Logging.Debug)
	slog.SetDefault(logger)
	return logger
}

// openContext opens the storage backend and builds the server context.
// Tests replace it to share one in-memory store across commands.
var openContext = func(ctx context.Context, cfg config.Config, logger *slog.Logger, provider *instrumentation.Provider) (*server.ServerContext, error) {
	var (
		metrics *instrumentation.Metrics
		audit   *instrumentation.AuditLogger
	)
	if provider != nil {
		metrics = provider.Metrics()
		audit = provider.Audit()
	}

	repo, err := store.New(ctx, cfg.Storage, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	sc, err := server.NewServerContext(ctx, server.ContextConfig{
		Repository: repo,
		Logger:     logger,
		Metrics:    metrics,
		Audit:      audit,
	})
	if err != nil {
		_ = repo.Close(ctx)
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}
	return sc, nil
}

// withAdminContext runs fn against a server context for the admin commands.
// Their logs are discarded unless --debug is set, and no telemetry is
// exported.
func withAdminContext(cmd *cobra.Command, flags *storageFlags, fn func(ctx context.Context, sc *server.ServerContext) error) error {
	cfg, err := flags.load(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var logger *slog.Logger
	if cfg.Logging.Debug {
		logger = newLogger(cfg)
	} else {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sc, err := openContext(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() { _ = sc.Shutdown() }()

	return fn(ctx, sc)
}
