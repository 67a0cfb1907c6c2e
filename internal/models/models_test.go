package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/0x-minds/0xpads-listener/internal/valuemodel"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func buy(tokenAmount, ethAmount, priceBefore, priceAfter string, ts int64) Trade {
	return Trade{
		Direction:   valuemodel.DirectionBuy,
		TokenAmount: dec(tokenAmount),
		EthAmount:   dec(ethAmount),
		PriceBefore: dec(priceBefore),
		PriceAfter:  dec(priceAfter),
		Ts:          time.Unix(ts, 0).UTC(),
	}
}

func TestTrade_EffectivePrice(t *testing.T) {
	tr := buy("100", "2", "0.01", "0.02", 1_700_000_000)
	assert.True(t, tr.EffectivePrice().Equal(dec("0.02")))

	zero := buy("0", "0", "0.01", "0.02", 1_700_000_000)
	assert.True(t, zero.EffectivePrice().Equal(dec("0.02")))
}

func TestTrade_PriceImpact(t *testing.T) {
	tr := buy("100", "2", "0.01", "0.02", 1_700_000_000)
	assert.True(t, tr.PriceImpact().Equal(dec("1")))

	sentinel := buy("100", "2", "0", "0.02", 1_700_000_000)
	assert.True(t, sentinel.PriceImpact().IsZero())
}

func TestTrade_LessOrdersByBlockThenLogIndex(t *testing.T) {
	a := Trade{Block: valuemodel.BlockInfo{Number: 1}, LogIndex: 5}
	b := Trade{Block: valuemodel.BlockInfo{Number: 2}, LogIndex: 0}
	c := Trade{Block: valuemodel.BlockInfo{Number: 2}, LogIndex: 1}

	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(b))
}

// Candle invariants over an arbitrary trade sequence: low <= open,close
// <= high, total_vol = buy_vol + sell_vol, close tracks the last trade.
func TestCandle_InvariantsOverSequence(t *testing.T) {
	trades := []Trade{
		buy("100", "2", "0.01", "0.02", 1_700_000_000),
		{Direction: valuemodel.DirectionSell, TokenAmount: dec("50"), EthAmount: dec("0.25"), PriceBefore: dec("0.02"), PriceAfter: dec("0.005"), Ts: time.Unix(1_700_000_010, 0).UTC()},
		buy("10", "0.5", "0.005", "0.05", 1_700_000_020),
		{Direction: valuemodel.DirectionSell, TokenAmount: dec("5"), EthAmount: dec("0.1"), PriceBefore: dec("0.05"), PriceAfter: dec("0.02"), Ts: time.Unix(1_700_000_030, 0).UTC()},
	}

	var c Candle
	high, low := dec("0"), dec("0")
	for i, tr := range trades {
		c.Apply(tr)
		if i == 0 || tr.PriceAfter.GreaterThan(high) {
			high = tr.PriceAfter
		}
		if i == 0 || tr.PriceAfter.LessThan(low) {
			low = tr.PriceAfter
		}
	}

	assert.True(t, c.Low.LessThanOrEqual(c.Open))
	assert.True(t, c.Low.LessThanOrEqual(c.Close))
	assert.True(t, c.High.GreaterThanOrEqual(c.Open))
	assert.True(t, c.High.GreaterThanOrEqual(c.Close))
	assert.True(t, c.TotalVol.Equal(c.BuyVol.Add(c.SellVol)))
	assert.True(t, c.Close.Equal(trades[len(trades)-1].PriceAfter))
	assert.True(t, c.High.Equal(high))
	assert.True(t, c.Low.Equal(low))
	assert.EqualValues(t, len(trades), c.TradeCount)
}

func TestCandle_ZeroTokenAmountTradeCountsButAddsNoVolume(t *testing.T) {
	var c Candle
	c.Apply(buy("100", "2", "0.01", "0.02", 1_700_000_000))
	c.Apply(buy("0", "0", "0.02", "0.03", 1_700_000_010))

	assert.True(t, c.TotalVol.Equal(dec("100")))
	assert.True(t, c.Close.Equal(dec("0.03")))
	assert.EqualValues(t, 2, c.TradeCount)
}

func TestBondingCurve_Active(t *testing.T) {
	assert.True(t, BondingCurve{State: CurveActive}.Active())
	assert.True(t, BondingCurve{State: CurveReadyForDEX}.Active())
	assert.False(t, BondingCurve{State: CurveMigrated}.Active())
	assert.False(t, BondingCurve{State: CurveDiscovered}.Active())
}

func TestTradeRecord_StringifiesDecimals(t *testing.T) {
	tr := buy("100", "2", "0.01", "0.02", 1_700_000_000)
	rec := tr.Record()

	assert.Equal(t, "100", rec.TokenAmount)
	assert.Equal(t, "2", rec.EthAmount)
	assert.Equal(t, "0.01", rec.PriceBefore)
	assert.Equal(t, "0.02", rec.PriceAfter)
	assert.Equal(t, "buy", rec.Direction)
	assert.EqualValues(t, 1_700_000_000, rec.Timestamp)
}
