package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/marketplace-analyzer/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Browser.Enabled = false
	cfg.Redis.Addr = ""
	cfg.Database.Host = ""
	return cfg
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuild_CoreOnly(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t), discard(), Options{Outbox: true})
	require.NoError(t, err)

	assert.NotNil(t, a.Analyzer)
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.DB)
	assert.Nil(t, a.Outbox)
	assert.NoError(t, a.Close())
}

func TestBuild_UnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := Build(context.Background(), cfg, discard(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestBuild_NoCacheSkipsRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Addr = "127.0.0.1:1"

	a, err := Build(context.Background(), cfg, discard(), Options{NoCache: true})
	require.NoError(t, err)
	assert.Nil(t, a.Redis)
	assert.NoError(t, a.Close())
}
