package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x-minds/0xpads-listener/internal/cache/cachetest"
	"github.com/0x-minds/0xpads-listener/internal/models"
	"github.com/0x-minds/0xpads-listener/internal/valuemodel"
)

type fakeLive struct {
	mu       sync.Mutex
	messages []interface{}
	err      error
}

func (f *fakeLive) RoomMessage(room string, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, data)
	return nil
}

func (f *fakeLive) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testTrade(t *testing.T, eth, priceBefore, priceAfter string) models.Trade {
	t.Helper()
	token, err := valuemodel.ParseAddress("0x000000000000000000000000000000000000aaaa")
	require.NoError(t, err)
	user, err := valuemodel.ParseAddress("0x000000000000000000000000000000000000dddd")
	require.NoError(t, err)
	return models.Trade{
		Token:       token,
		User:        user,
		EthAmount:   decimal.RequireFromString(eth),
		PriceBefore: decimal.RequireFromString(priceBefore),
		PriceAfter:  decimal.RequireFromString(priceAfter),
		Ts:          time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestLargeTrade_FiresAtThreshold(t *testing.T) {
	p := NewLargeTrade(1.0)

	matches, err := p.Evaluate(context.Background(), testTrade(t, "1", "0.01", "0.02"), models.MarketData{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "large_trade", matches[0].Type)

	matches, err = p.Evaluate(context.Background(), testTrade(t, "0.5", "0.01", "0.02"), models.MarketData{})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLargeTrade_NonPositiveThresholdDefaults(t *testing.T) {
	p := NewLargeTrade(0)
	assert.True(t, p.Threshold.Equal(decimal.NewFromInt(1)))
}

func TestPriceAlert_FiresOnUpwardCross(t *testing.T) {
	c := cachetest.New()
	trade := testTrade(t, "1", "0.01", "0.05")

	thresholds, _ := json.Marshal(map[string]string{
		"0xUserA": "0.03",
		"0xUserB": "0.10",
	})
	require.NoError(t, c.Set(context.Background(), "alerts:price:"+trade.Token.String(), thresholds, 0))

	p := NewPriceAlert(c)
	matches, err := p.Evaluate(context.Background(), trade, models.MarketData{})
	require.NoError(t, err)

	require.Len(t, matches, 1)
	assert.Equal(t, "0xUserA", matches[0].User)
	assert.Equal(t, "0.03", matches[0].Threshold)
}

func TestPriceAlert_FiresOnDownwardCross(t *testing.T) {
	c := cachetest.New()
	trade := testTrade(t, "1", "0.05", "0.01")

	thresholds, _ := json.Marshal(map[string]string{"0xUserA": "0.03"})
	require.NoError(t, c.Set(context.Background(), "alerts:price:"+trade.Token.String(), thresholds, 0))

	p := NewPriceAlert(c)
	matches, err := p.Evaluate(context.Background(), trade, models.MarketData{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestPriceAlert_NoThresholdsRegistered(t *testing.T) {
	p := NewPriceAlert(cachetest.New())
	matches, err := p.Evaluate(context.Background(), testTrade(t, "1", "0.01", "0.02"), models.MarketData{})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

type panickyPredicate struct{}

func (panickyPredicate) Name() string { return "panicky" }
func (panickyPredicate) Evaluate(context.Context, models.Trade, models.MarketData) ([]Alert, error) {
	panic("boom")
}

type failingPredicate struct{}

func (failingPredicate) Name() string { return "failing" }
func (failingPredicate) Evaluate(context.Context, models.Trade, models.MarketData) ([]Alert, error) {
	return nil, fmt.Errorf("lookup failed")
}

func TestBank_FailuresNeverPropagate(t *testing.T) {
	live := &fakeLive{}
	bank := NewBank(live, testLogger(), panickyPredicate{}, failingPredicate{}, NewLargeTrade(1.0))

	// Must not panic, and the healthy predicate still runs.
	bank.Evaluate(context.Background(), testTrade(t, "2", "0.01", "0.02"), models.MarketData{})
	assert.Equal(t, 1, live.count())
}

func TestBank_PushFailureSwallowed(t *testing.T) {
	live := &fakeLive{err: fmt.Errorf("queue closed")}
	bank := NewBank(live, testLogger(), NewLargeTrade(1.0))
	bank.Evaluate(context.Background(), testTrade(t, "2", "0.01", "0.02"), models.MarketData{})
}
