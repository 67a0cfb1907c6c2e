package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BLOCKCHAIN_WS_URL", "ws://localhost:8545")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, int64(1), cfg.Blockchain.ChainID)
	assert.Equal(t, 10, cfg.Blockchain.MaxReconnectionAttempts)
	assert.Equal(t, 6379, cfg.Cache.Port)
	assert.Equal(t, 20, cfg.Cache.MaxConnections)
	assert.Equal(t, "trades:", cfg.Cache.TradesKeyPrefix)
	assert.Equal(t, []string{"1m", "5m", "15m", "1h", "4h", "1d"}, cfg.Processing.OHLCVIntervals)
	assert.Equal(t, 1.0, cfg.Processing.LargeTradeThresholdEth)
	assert.Equal(t, 3001, cfg.WebSocket.Port)
	assert.Equal(t, "/charts", cfg.WebSocket.BackendNamespace)
	assert.True(t, cfg.Performance.EnableMetrics)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BLOCKCHAIN_WS_URL", "ws://node:8546")
	t.Setenv("BLOCKCHAIN_CHAIN_ID", "8453")
	t.Setenv("PROCESSING_OHLCV_INTERVALS", "1m,1h")
	t.Setenv("PROCESSING_LARGE_TRADE_THRESHOLD_ETH", "2.5")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ws://node:8546", cfg.Blockchain.WSUrl)
	assert.Equal(t, int64(8453), cfg.Blockchain.ChainID)
	assert.Equal(t, []string{"1m", "1h"}, cfg.Processing.OHLCVIntervals)
	assert.Equal(t, 2.5, cfg.Processing.LargeTradeThresholdEth)
	assert.Equal(t, 6380, cfg.Cache.Port)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_MissingWSUrlFails(t *testing.T) {
	t.Setenv("BLOCKCHAIN_WS_URL", "")

	_, err := Load()
	require.Error(t, err)

	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "blockchain.ws_url", cfgErr.Field)
}

func TestValidate_RejectsEmptyIntervals(t *testing.T) {
	cfg := &Config{
		Blockchain: BlockchainConfig{WSUrl: "ws://localhost:8545", ChainID: 1},
	}
	assert.Error(t, cfg.Validate())

	cfg.Processing.OHLCVIntervals = []string{"1m"}
	assert.NoError(t, cfg.Validate())
}
