package fanout

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
	"github.com/0x-minds/0xpads-listener/internal/config"
	"github.com/0x-minds/0xpads-listener/internal/metrics"
	"github.com/0x-minds/0xpads-listener/internal/models"
	"github.com/0x-minds/0xpads-listener/internal/valuemodel"
)

type fakeLive struct {
	mu         sync.Mutex
	rooms      []string
	broadcasts []interface{}
	err        error
}

func (f *fakeLive) RoomMessage(room string, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rooms = append(f.rooms, room)
	return nil
}

func (f *fakeLive) Broadcast(data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.broadcasts = append(f.broadcasts, data)
	return nil
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testSink(c *cachetest.Fake, live *fakeLive) *Sink {
	return New(c, live, config.CacheConfig{}, metrics.New(nil), testLogger())
}

func testToken() valuemodel.Address {
	return valuemodel.MustAddress("0x000000000000000000000000000000000000aaaa")
}

func testTrade() models.Trade {
	return models.Trade{
		Token:       testToken(),
		Curve:       valuemodel.MustAddress("0x000000000000000000000000000000000000cccc"),
		User:        valuemodel.MustAddress("0x000000000000000000000000000000000000dddd"),
		Direction:   valuemodel.DirectionBuy,
		TokenAmount: decimal.RequireFromString("100"),
		EthAmount:   decimal.RequireFromString("2"),
		PriceBefore: decimal.RequireFromString("0.01"),
		PriceAfter:  decimal.RequireFromString("0.02"),
		TotalSupply: decimal.RequireFromString("1000"),
		Ts:          time.Unix(1_700_000_000, 0).UTC(),
	}
}

func testMarketData() models.MarketData {
	return models.MarketData{
		Token:        testToken(),
		CurrentPrice: decimal.RequireFromString("0.02"),
		Trades24h:    1,
		MarketCap:    decimal.RequireFromString("20"),
		LastUpdated:  time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestRecordTrade_WritesLatestAndStream(t *testing.T) {
	c := cachetest.New()
	s := testSink(c, &fakeLive{})
	ctx := context.Background()

	require.NoError(t, s.RecordTrade(ctx, testTrade()))

	raw, err := c.Get(ctx, "trade:latest:"+testToken().String())
	require.NoError(t, err)
	var latest map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &latest))
	assert.Equal(t, "0.02", latest["price"])
	assert.Equal(t, "buy", latest["direction"])

	card, err := c.ZCard(ctx, "trades:stream:"+testToken().String())
	require.NoError(t, err)
	assert.EqualValues(t, 1, card)
}

func TestHandleTrade_AllSinks(t *testing.T) {
	c := cachetest.New()
	live := &fakeLive{}
	s := testSink(c, live)
	ctx := context.Background()

	res := s.HandleTrade(ctx, testTrade(), testMarketData())
	assert.False(t, res.AnyFailed())

	raw, err := c.Get(ctx, "market:"+testToken().String())
	require.NoError(t, err)
	var market map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &market))
	assert.Equal(t, "0.02", market["current_price"])

	assert.Equal(t, []string{"Trade"}, c.StreamEventTypes("blockchain:events"))
	assert.Equal(t, []string{"token:" + testToken().String()}, live.rooms)
}

func TestHandleTrade_LivePushFailureDoesNotBlockOthers(t *testing.T) {
	c := cachetest.New()
	live := &fakeLive{err: fmt.Errorf("queue full")}
	s := testSink(c, live)

	res := s.HandleTrade(context.Background(), testTrade(), testMarketData())

	assert.Error(t, res.LivePushErr)
	assert.NoError(t, res.CacheErr)
	assert.NoError(t, res.StreamErr)
	assert.Equal(t, []string{"Trade"}, c.StreamEventTypes("blockchain:events"))
}

func TestHandleCurveDeployed(t *testing.T) {
	c := cachetest.New()
	live := &fakeLive{}
	s := testSink(c, live)
	ctx := context.Background()

	curve := models.BondingCurve{
		Token:      testToken(),
		Curve:      valuemodel.MustAddress("0x000000000000000000000000000000000000cccc"),
		Creator:    valuemodel.MustAddress("0x000000000000000000000000000000000000dddd"),
		Name:       "X",
		Symbol:     "X",
		State:      models.CurveActive,
		DeployedAt: time.Unix(1_700_000_000, 0).UTC(),
	}

	res := s.HandleCurveDeployed(ctx, curve)
	assert.False(t, res.AnyFailed())

	raw, err := c.Get(ctx, "curve:"+testToken().String())
	require.NoError(t, err)
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, "X", rec["symbol"])

	assert.Equal(t, []string{"BondingCurveDeployed"}, c.StreamEventTypes("blockchain:events"))
	assert.Len(t, live.broadcasts, 1)
}

func TestRecordTrade_TrimsStreamToBound(t *testing.T) {
	c := cachetest.New()
	s := testSink(c, &fakeLive{})
	ctx := context.Background()

	base := testTrade()
	for i := 0; i < tradesStreamMaxLen+25; i++ {
		tr := base
		tr.Ts = base.Ts.Add(time.Duration(i) * time.Second)
		tr.LogIndex = uint32(i)
		require.NoError(t, s.RecordTrade(ctx, tr))
	}

	card, err := c.ZCard(ctx, "trades:stream:"+testToken().String())
	require.NoError(t, err)
	assert.LessOrEqual(t, card, int64(tradesStreamMaxLen))
}

func TestRecordTrade_PipelineFailureSurfaces(t *testing.T) {
	c := cachetest.New()
	c.FailPipeline = true
	s := testSink(c, &fakeLive{})

	assert.Error(t, s.RecordTrade(context.Background(), testTrade()))
}

func TestHandleBurn_WritesSetsAndPublishes(t *testing.T) {
	c := cachetest.New()
	s := testSink(c, &fakeLive{})
	ctx := context.Background()

	sub := c.Subscribe(ctx, "burn_events")
	defer sub.Close()

	b := BurnRecord{
		Token:     testToken().String(),
		Burner:    "0x0000000000000000000000000000000000dddd",
		Amount:    "10",
		TxHash:    "0x" + "00",
		Timestamp: 1_700_000_000,
	}
	require.NoError(t, s.HandleBurn(ctx, b))

	for _, key := range []string{
		"burn_events:all",
		"burn_events:token:" + b.Token,
		"burn_events:burner:" + b.Burner,
	} {
		card, err := c.ZCard(ctx, key)
		require.NoError(t, err)
		assert.EqualValues(t, 1, card, key)
	}

	select {
	case msg := <-sub.Channel():
		var envelope map[string]interface{}
		require.NoError(t, json.Unmarshal(msg.Payload, &envelope))
		assert.Equal(t, "burn_event", envelope["type"])
	case <-time.After(time.Second):
		t.Fatal("no burn_events publication received")
	}
}

func TestAppendDurable_SingleAttemptOnSuccess(t *testing.T) {
	c := cachetest.New()
	s := testSink(c, &fakeLive{})

	require.NoError(t, s.appendDurable(context.Background(), "Trade", testTrade().Record()))
	assert.Equal(t, 1, c.XAddCalls)
}
