package aggregator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/0x-minds/0xpads-listener/internal/models"
	"github.com/0x-minds/0xpads-listener/internal/valuemodel"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testToken(t *testing.T) valuemodel.Address {
	t.Helper()
	a, err := valuemodel.ParseAddress("0x000000000000000000000000000000000000aaaa")
	if err != nil {
		t.Fatalf("invalid test token address: %v", err)
	}
	return a
}

func TestAggregator_SingleBuy(t *testing.T) {
	agg := New()
	token := testToken(t)

	trade := models.Trade{
		Token:       token,
		Direction:   valuemodel.DirectionBuy,
		TokenAmount: dec("100"),
		EthAmount:   dec("2"),
		PriceBefore: dec("0.01"),
		PriceAfter:  dec("0.02"),
		Ts:          time.Unix(1_700_000_000, 0).UTC(),
	}

	res := agg.Apply(trade, valuemodel.Interval1m)

	assert.True(t, res.IsNewOpen)
	c := res.Candle
	assert.True(t, c.Open.Equal(dec("0.01")))
	assert.True(t, c.High.Equal(dec("0.02")))
	assert.True(t, c.Low.Equal(dec("0.01")))
	assert.True(t, c.Close.Equal(dec("0.02")))
	assert.True(t, c.TotalVol.Equal(dec("100")))
	assert.True(t, c.BuyVol.Equal(dec("100")))
	assert.True(t, c.SellVol.IsZero())
	assert.True(t, c.VolEth.Equal(dec("2")))
	assert.EqualValues(t, 1, c.TradeCount)
	assert.EqualValues(t, 1_699_999_980, c.BucketTs)
}

func TestAggregator_TwoTradesSameBucket(t *testing.T) {
	agg := New()
	token := testToken(t)

	first := models.Trade{
		Token: token, Direction: valuemodel.DirectionBuy,
		TokenAmount: dec("100"), EthAmount: dec("2"),
		PriceBefore: dec("0.01"), PriceAfter: dec("0.02"),
		Ts: time.Unix(1_700_000_000, 0).UTC(),
	}
	second := models.Trade{
		Token: token, Direction: valuemodel.DirectionSell,
		TokenAmount: dec("50"), EthAmount: dec("0.25"),
		PriceBefore: dec("0.02"), PriceAfter: dec("0.005"),
		Ts: time.Unix(1_700_000_030, 0).UTC(),
	}

	agg.Apply(first, valuemodel.Interval1m)
	res := agg.Apply(second, valuemodel.Interval1m)

	assert.False(t, res.IsNewOpen)
	c := res.Candle
	assert.True(t, c.Open.Equal(dec("0.01")))
	assert.True(t, c.High.Equal(dec("0.02")))
	assert.True(t, c.Low.Equal(dec("0.005")))
	assert.True(t, c.Close.Equal(dec("0.005")))
	assert.True(t, c.TotalVol.Equal(dec("150")))
	assert.True(t, c.BuyVol.Equal(dec("100")))
	assert.True(t, c.SellVol.Equal(dec("50")))
	assert.EqualValues(t, 2, c.TradeCount)
}

func TestAggregator_BucketRoll(t *testing.T) {
	agg := New()
	token := testToken(t)

	first := models.Trade{
		Token: token, Direction: valuemodel.DirectionBuy,
		TokenAmount: dec("10"), EthAmount: dec("1"),
		PriceBefore: dec("0.01"), PriceAfter: dec("0.02"),
		Ts: time.Unix(1_700_000_000, 0).UTC(),
	}
	second := models.Trade{
		Token: token, Direction: valuemodel.DirectionBuy,
		TokenAmount: dec("10"), EthAmount: dec("1"),
		PriceBefore: dec("0.02"), PriceAfter: dec("0.03"),
		Ts: time.Unix(1_700_000_061, 0).UTC(),
	}

	r1 := agg.Apply(first, valuemodel.Interval1m)
	r2 := agg.Apply(second, valuemodel.Interval1m)

	assert.True(t, r1.IsNewOpen)
	assert.True(t, r2.IsNewOpen)
	assert.EqualValues(t, 1_699_999_980, r1.Candle.BucketTs)
	assert.EqualValues(t, 1_700_000_040, r2.Candle.BucketTs)
	assert.True(t, r2.Candle.Open.Equal(r1.Candle.Close))
}

func TestAggregator_ZeroTokenAmount(t *testing.T) {
	agg := New()
	token := testToken(t)

	trade := models.Trade{
		Token: token, Direction: valuemodel.DirectionBuy,
		TokenAmount: decimal.Zero, EthAmount: decimal.Zero,
		PriceBefore: dec("0.01"), PriceAfter: dec("0.015"),
		Ts: time.Unix(1_700_000_000, 0).UTC(),
	}

	res := agg.Apply(trade, valuemodel.Interval1m)
	c := res.Candle
	assert.True(t, c.Close.Equal(dec("0.015")))
	assert.True(t, c.BuyVol.IsZero())
	assert.True(t, c.SellVol.IsZero())
	assert.EqualValues(t, 1, c.TradeCount)
}

func TestAggregator_PriceBeforeZeroOpensAtPriceAfter(t *testing.T) {
	agg := New()
	token := testToken(t)

	trade := models.Trade{
		Token: token, Direction: valuemodel.DirectionBuy,
		TokenAmount: dec("5"), EthAmount: dec("1"),
		PriceBefore: decimal.Zero, PriceAfter: dec("0.2"),
		Ts: time.Unix(1_700_000_000, 0).UTC(),
	}

	res := agg.Apply(trade, valuemodel.Interval1m)
	assert.True(t, res.Candle.Open.Equal(dec("0.2")))
}

func TestAggregator_DistinctIntervalsDoNotConflict(t *testing.T) {
	agg := New()
	token := testToken(t)

	trade := models.Trade{
		Token: token, Direction: valuemodel.DirectionBuy,
		TokenAmount: dec("1"), EthAmount: dec("1"),
		PriceBefore: dec("1"), PriceAfter: dec("1"),
		Ts: time.Unix(1_700_000_000, 0).UTC(),
	}

	results := agg.ApplyAll(trade, valuemodel.AllIntervals)
	assert.Len(t, results, len(valuemodel.AllIntervals))
	for _, r := range results {
		assert.EqualValues(t, 1, r.Candle.TradeCount)
	}
}

func TestAggregator_LatestReflectsOrderedUpdates(t *testing.T) {
	agg := New()
	token := testToken(t)

	t1 := models.Trade{Token: token, TokenAmount: dec("1"), EthAmount: dec("1"), PriceAfter: dec("1"), Ts: time.Unix(1_700_000_000, 0).UTC(), Block: valuemodel.BlockInfo{Number: 1}, LogIndex: 0}
	t2 := models.Trade{Token: token, TokenAmount: dec("1"), EthAmount: dec("1"), PriceAfter: dec("2"), Ts: time.Unix(1_700_000_010, 0).UTC(), Block: valuemodel.BlockInfo{Number: 1}, LogIndex: 1}

	agg.Apply(t1, valuemodel.Interval1m)
	agg.Apply(t2, valuemodel.Interval1m)

	c, ok := agg.Latest(token, valuemodel.Interval1m)
	assert.True(t, ok)
	assert.True(t, c.Close.Equal(dec("2")))
}
