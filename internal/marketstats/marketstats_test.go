package marketstats

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x-minds/0xpads-listener/internal/cache/cachetest"
	"github.com/0x-minds/0xpads-listener/internal/models"
	"github.com/0x-minds/0xpads-listener/internal/valuemodel"
)

func testToken(t *testing.T) valuemodel.Address {
	t.Helper()
	a, err := valuemodel.ParseAddress("0x000000000000000000000000000000000000bbbb")
	require.NoError(t, err)
	return a
}

func seed(t *testing.T, c *cachetest.Fake, token valuemodel.Address, rec models.TradeRecord) {
	t.Helper()
	key := fmt.Sprintf("trades:stream:%s", token.String())
	payload, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, c.ZAdd(context.Background(), key, float64(rec.Timestamp), payload))
}

func TestStats_Compute_AggregatesWindow(t *testing.T) {
	c := cachetest.New()
	token := testToken(t)
	now := time.Unix(1_700_100_000, 0).UTC()

	seed(t, c, token, models.TradeRecord{
		Token: token.String(), TokenAmount: "100", EthAmount: "2",
		PriceBefore: "0.01", PriceAfter: "0.02",
		Timestamp: now.Add(-2 * time.Hour).Unix(),
	})
	seed(t, c, token, models.TradeRecord{
		Token: token.String(), TokenAmount: "50", EthAmount: "1.5",
		PriceBefore: "0.02", PriceAfter: "0.03",
		Timestamp: now.Add(-1 * time.Hour).Unix(),
	})

	stats := New(c, "trades:")
	trade := models.Trade{
		Token: token, TotalSupply: decimal.RequireFromString("1000"),
		PriceAfter: decimal.RequireFromString("0.03"),
	}

	md, err := stats.Compute(context.Background(), trade, now)
	require.NoError(t, err)

	assert.True(t, md.MarketCap.Equal(decimal.RequireFromString("30")))
	assert.EqualValues(t, 2, md.Trades24h)
	assert.True(t, md.Volume24h.Equal(decimal.RequireFromString("150")))
	assert.True(t, md.VolumeEth24h.Equal(decimal.RequireFromString("3.5")))
	assert.True(t, md.PriceChange24h.Equal(decimal.RequireFromString("0.02")))
	assert.True(t, md.PriceChangePct24h.Equal(decimal.RequireFromString("200")))
}

func TestStats_Compute_ExcludesTradesOutsideWindow(t *testing.T) {
	c := cachetest.New()
	token := testToken(t)
	now := time.Unix(1_700_100_000, 0).UTC()

	seed(t, c, token, models.TradeRecord{
		Token: token.String(), TokenAmount: "100", EthAmount: "2",
		PriceBefore: "0.01", PriceAfter: "0.02",
		Timestamp: now.Add(-25 * time.Hour).Unix(),
	})

	stats := New(c, "trades:")
	trade := models.Trade{
		Token: token, TotalSupply: decimal.RequireFromString("1000"),
		PriceAfter: decimal.RequireFromString("0.05"),
	}

	md, err := stats.Compute(context.Background(), trade, now)
	require.NoError(t, err)

	assert.EqualValues(t, 0, md.Trades24h)
	assert.True(t, md.Volume24h.IsZero())
	// market_cap is still derived from the triggering trade, not the window.
	assert.True(t, md.MarketCap.Equal(decimal.RequireFromString("50")))
}

func TestStats_Compute_ZeroPriceBeforeYieldsZeroPct(t *testing.T) {
	c := cachetest.New()
	token := testToken(t)
	now := time.Unix(1_700_100_000, 0).UTC()

	seed(t, c, token, models.TradeRecord{
		Token: token.String(), TokenAmount: "10", EthAmount: "0",
		PriceBefore: "0", PriceAfter: "0.05",
		Timestamp: now.Add(-30 * time.Minute).Unix(),
	})

	stats := New(c, "trades:")
	trade := models.Trade{
		Token: token, TotalSupply: decimal.RequireFromString("1000"),
		PriceAfter: decimal.RequireFromString("0.05"),
	}

	md, err := stats.Compute(context.Background(), trade, now)
	require.NoError(t, err)

	assert.True(t, md.PriceChangePct24h.IsZero())
}

func TestStats_Compute_MalformedMemberSkipped(t *testing.T) {
	c := cachetest.New()
	token := testToken(t)
	now := time.Unix(1_700_100_000, 0).UTC()

	key := fmt.Sprintf("trades:stream:%s", token.String())
	require.NoError(t, c.ZAdd(context.Background(), key, float64(now.Unix()), []byte("not json")))

	stats := New(c, "trades:")
	trade := models.Trade{Token: token, TotalSupply: decimal.Zero, PriceAfter: decimal.Zero}

	md, err := stats.Compute(context.Background(), trade, now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, md.Trades24h)
}
