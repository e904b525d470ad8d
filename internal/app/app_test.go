package app

import (
	"context"
	"testing"
	"time"

	"pnl-arena/internal/config"
	"pnl-arena/internal/models"
	"pnl-arena/internal/period"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func defaultConfig(t *testing.T) config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	var cfg config.Config
	require.NoError(t, v.Unmarshal(&cfg))
	cfg.Database.DSN = "file::memory:"
	return cfg
}

func TestNew_MemoryBackend(t *testing.T) {
	// Arrange
	cfg := defaultConfig(t)
	ctx := context.Background()

	// Act
	a, err := New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	// Assert
	b, err := a.Engine.CreateBattle(ctx, models.KindProfit, "alice", []string{"alice", "bob"}, time.Hour)
	require.NoError(t, err)
	assert.True(t, b.Active())

	community, err := a.Engine.CommunityStats(ctx, period.AllTime())
	require.NoError(t, err)
	assert.Equal(t, int64(0), community.TradeCount)
}

func TestNew_UnreachableRedis(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Session.Backend = "redis"
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := New(context.Background(), cfg, zap.NewNop())

	assert.Error(t, err)
}
