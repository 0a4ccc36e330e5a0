package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/chatmate/chatmate/internal/access"
	"github.com/chatmate/chatmate/internal/instrumentation"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default", func(*Config) {}, ""},
		{"empty type means memory", func(c *Config) { c.Type = "" }, ""},
		{"mongo", func(c *Config) { c.Type = TypeMongo }, ""},
		{"mongo without uri", func(c *Config) { c.Type = TypeMongo; c.Mongo.URI = "" }, "mongo uri is required"},
		{"mongo without collection", func(c *Config) { c.Type = TypeMongo; c.Mongo.Collection = "" }, "database and collection"},
		{"valkey", func(c *Config) { c.Type = TypeValkey }, ""},
		{"valkey without addr", func(c *Config) { c.Type = TypeValkey; c.Valkey.Addr = "" }, "valkey addr is required"},
		{"unknown", func(c *Config) { c.Type = "postgres" }, "invalid storage type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_Memory(t *testing.T) {
	ctx := context.Background()
	repo, err := New(ctx, DefaultConfig(), nil, nil)
	require.NoError(t, err)
	defer func() { _ = repo.Close(ctx) }()

	require.NoError(t, repo.Ping(ctx))
	require.NoError(t, repo.Create(ctx, newOwner("alice")))
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), Config{Type: "postgres"}, nil, nil)
	assert.Error(t, err)
}

func storeCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "store_operations_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				op, _ := dp.Attributes.Value("operation")
				status, _ := dp.Attributes.Value("status")
				counts[op.AsString()+"/"+status.AsString()] += dp.Value
			}
		}
	}
	return counts
}

type failingRepo struct {
	*Memory
}

func (failingRepo) Count(context.Context) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestInstrument_RecordsStoreMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := instrumentation.NewMetrics(provider.Meter("test"), false)
	require.NoError(t, err)

	repo := Instrument(failingRepo{NewMemory()}, TypeMemory, metrics)

	require.NoError(t, repo.Create(ctx, newOwner("alice")))
	_, err = repo.Get(ctx, "alice")
	require.NoError(t, err)

	// not found is an answer, not a backend failure
	_, err = repo.Get(ctx, "nobody")
	require.ErrorIs(t, err, access.ErrNotFound)

	_, err = repo.Count(ctx)
	require.Error(t, err)

	counts := storeCounts(t, reader)
	assert.Equal(t, int64(1), counts["create/success"])
	assert.Equal(t, int64(2), counts["get/success"])
	assert.Equal(t, int64(1), counts["count/error"])
}
