// Package fanout publishes every accepted trade and curve-lifecycle event
// to the three sinks the pipeline promises downstream consumers: the
// cache, the durable event stream, and the live-push socket. Sinks run
// independently per trade; a failure in one is logged and counted, never
// propagated to the others.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0x-minds/0xpads-listener/internal/cache"
	"github.com/0x-minds/0xpads-listener/internal/config"
	"github.com/0x-minds/0xpads-listener/internal/metrics"
	"github.com/0x-minds/0xpads-listener/internal/models"
)

const (
	tradeLatestTTL = 300 * time.Second
	marketTTL      = 60 * time.Second
	curveTTL       = 3600 * time.Second

	tradesStreamMaxLen = 1000
	durableStreamName  = "blockchain:events"
	durableStreamMax   = 10000
)

var durableRetryDelays = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

// LivePush is the narrow capability Fan-Out needs from the backend
// socket client, so it can be exercised in tests against a fake.
type LivePush interface {
	RoomMessage(room string, data interface{}) error
	Broadcast(data interface{}) error
}

// Sink is the Fan-Out component: three idempotent writers plus the
// always-live burn-event surface.
type Sink struct {
	cache cache.Cache
	live  LivePush
	m     *metrics.Metrics
	log   *logrus.Entry

	marketPrefix string
	tradesPrefix string
}

// New returns a Sink bound to c and live, using the cache key prefixes
// from cfg.
func New(c cache.Cache, live LivePush, cfg config.CacheConfig, m *metrics.Metrics, log *logrus.Entry) *Sink {
	marketPrefix := cfg.MarketDataKeyPrefix
	if marketPrefix == "" {
		marketPrefix = "market:"
	}
	tradesPrefix := cfg.TradesKeyPrefix
	if tradesPrefix == "" {
		tradesPrefix = "trades:"
	}
	return &Sink{cache: c, live: live, m: m, log: log, marketPrefix: marketPrefix, tradesPrefix: tradesPrefix}
}

// Result reports the per-sink outcome of one HandleTrade/HandleCurveDeployed
// call so callers (the dispatch loop's per-sink workers) can observe
// partial failure without it propagating as a single error.
type Result struct {
	CacheErr    error
	StreamErr   error
	LivePushErr error
}

func (r Result) AnyFailed() bool {
	return r.CacheErr != nil || r.StreamErr != nil || r.LivePushErr != nil
}

type tradeLatestRecord struct {
	Price     string `json:"price"`
	Volume    string `json:"volume"`
	Direction string `json:"direction"`
	Timestamp int64  `json:"timestamp"`
}

type marketSummary struct {
	Token             string `json:"token"`
	CurrentPrice      string `json:"current_price"`
	PriceChange24h    string `json:"price_change_24h"`
	PriceChangePct24h string `json:"price_change_pct_24h"`
	Volume24h         string `json:"volume_24h"`
	VolumeEth24h      string `json:"volume_eth_24h"`
	Trades24h         uint32 `json:"trades_24h"`
	MarketCap         string `json:"market_cap"`
	LastUpdated       int64  `json:"last_updated"`
}

func toMarketSummary(md models.MarketData) marketSummary {
	return marketSummary{
		Token:             md.Token.String(),
		CurrentPrice:      md.CurrentPrice.String(),
		PriceChange24h:    md.PriceChange24h.String(),
		PriceChangePct24h: md.PriceChangePct24h.String(),
		Volume24h:         md.Volume24h.String(),
		VolumeEth24h:      md.VolumeEth24h.String(),
		Trades24h:         md.Trades24h,
		MarketCap:         md.MarketCap.String(),
		LastUpdated:       md.LastUpdated.Unix(),
	}
}

// RecordTrade writes the trade into the cache's per-token history: the
// trade:latest key and the time-ordered sorted set the 24h stats reader
// consumes, batched into one pipeline round trip. Called synchronously
// before the stats recomputation so the triggering trade is visible in
// its own window.
func (s *Sink) RecordTrade(ctx context.Context, t models.Trade) error {
	latest := tradeLatestRecord{
		Price:     t.PriceAfter.String(),
		Volume:    t.TokenAmount.String(),
		Direction: t.Direction.String(),
		Timestamp: t.Ts.Unix(),
	}
	latestPayload, err := json.Marshal(latest)
	if err != nil {
		return fmt.Errorf("marshal trade:latest: %w", err)
	}
	recordPayload, err := json.Marshal(t.Record())
	if err != nil {
		return fmt.Errorf("marshal trade record: %w", err)
	}

	streamKey := s.tradesPrefix + "stream:" + t.Token.String()

	pipe := s.cache.Pipeline()
	pipe.Set("trade:latest:"+t.Token.String(), latestPayload, tradeLatestTTL)
	pipe.ZAdd(streamKey, float64(t.Ts.Unix()), recordPayload)
	// Keep only the newest tradesStreamMaxLen members.
	pipe.ZRemRangeByRank(streamKey, 0, -(tradesStreamMaxLen + 1))
	if err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record trade: %w", err)
	}

	return nil
}

// HandleTrade fans t (with its freshly recomputed 24h snapshot md) out to
// the cache, the durable stream, and the live-push socket concurrently.
// One worker per sink; a failed sink never blocks the others.
func (s *Sink) HandleTrade(ctx context.Context, t models.Trade, md models.MarketData) Result {
	var res Result
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		res.CacheErr = s.writeMarketSummary(ctx, t, md)
	}()
	go func() {
		defer wg.Done()
		res.StreamErr = s.appendDurable(ctx, "Trade", t.Record())
	}()
	go func() {
		defer wg.Done()
		res.LivePushErr = s.pushTrade(t, md)
	}()

	wg.Wait()

	if res.CacheErr != nil {
		s.m.SinkFailure("cache")
		s.log.WithError(res.CacheErr).WithField("token", t.Token.String()).Warn("fanout: cache sink failed")
	}
	if res.StreamErr != nil {
		s.m.SinkFailure("stream")
		s.log.WithError(res.StreamErr).WithField("token", t.Token.String()).Warn("fanout: durable stream sink failed")
	}
	if res.LivePushErr != nil {
		s.m.SinkFailure("livepush")
		s.log.WithError(res.LivePushErr).WithField("token", t.Token.String()).Warn("fanout: live push sink failed")
	}
	return res
}

func (s *Sink) writeMarketSummary(ctx context.Context, t models.Trade, md models.MarketData) error {
	marketPayload, err := json.Marshal(toMarketSummary(md))
	if err != nil {
		return fmt.Errorf("marshal market summary: %w", err)
	}
	if err := s.cache.Set(ctx, s.marketPrefix+t.Token.String(), marketPayload, marketTTL); err != nil {
		return fmt.Errorf("set market summary: %w", err)
	}
	return nil
}

func (s *Sink) appendDurable(ctx context.Context, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal durable payload: %w", err)
	}

	values := map[string]interface{}{
		"event_type": eventType,
		"data":       string(data),
		"timestamp":  time.Now().Unix(),
		"source":     "blockchain_listener",
	}

	var lastErr error
	for attempt := 0; attempt <= len(durableRetryDelays); attempt++ {
		_, err := s.cache.XAdd(ctx, durableStreamName, durableStreamMax, values)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < len(durableRetryDelays) {
			select {
			case <-time.After(durableRetryDelays[attempt]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("durable stream append exhausted retries: %w", lastErr)
}

func (s *Sink) pushTrade(t models.Trade, md models.MarketData) error {
	payload := map[string]interface{}{
		"trade":  t.Record(),
		"market": toMarketSummary(md),
	}
	return s.live.RoomMessage("token:"+t.Token.String(), payload)
}

// HandleCurveDeployed writes the curve:<token> summary, appends the
// durable stream, and broadcasts new_curve.
func (s *Sink) HandleCurveDeployed(ctx context.Context, c models.BondingCurve) Result {
	var res Result
	var wg sync.WaitGroup
	wg.Add(3)

	record := curveRecord(c)

	go func() {
		defer wg.Done()
		payload, err := json.Marshal(record)
		if err != nil {
			res.CacheErr = err
			return
		}
		res.CacheErr = s.cache.Set(ctx, "curve:"+c.Token.String(), payload, curveTTL)
	}()
	go func() {
		defer wg.Done()
		res.StreamErr = s.appendDurable(ctx, "BondingCurveDeployed", record)
	}()
	go func() {
		defer wg.Done()
		res.LivePushErr = s.live.Broadcast(map[string]interface{}{
			"event": "new_curve",
			"curve": record,
		})
	}()

	wg.Wait()

	if res.CacheErr != nil {
		s.m.SinkFailure("cache")
		s.log.WithError(res.CacheErr).WithField("token", c.Token.String()).Warn("fanout: curve cache sink failed")
	}
	if res.StreamErr != nil {
		s.m.SinkFailure("stream")
		s.log.WithError(res.StreamErr).WithField("token", c.Token.String()).Warn("fanout: curve durable stream sink failed")
	}
	if res.LivePushErr != nil {
		s.m.SinkFailure("livepush")
		s.log.WithError(res.LivePushErr).WithField("token", c.Token.String()).Warn("fanout: curve live push sink failed")
	}
	return res
}

type curveSummaryRecord struct {
	Token      string `json:"token"`
	Curve      string `json:"curve"`
	Creator    string `json:"creator"`
	Name       string `json:"name"`
	Symbol     string `json:"symbol"`
	State      string `json:"state"`
	DeployedAt int64  `json:"deployed_at"`
}

func curveRecord(c models.BondingCurve) curveSummaryRecord {
	return curveSummaryRecord{
		Token:      c.Token.String(),
		Curve:      c.Curve.String(),
		Creator:    c.Creator.String(),
		Name:       c.Name,
		Symbol:     c.Symbol,
		State:      c.State.String(),
		DeployedAt: c.DeployedAt.Unix(),
	}
}

// MilestoneRecord is the wire shape published when a curve crosses a
// vesting milestone level.
type MilestoneRecord struct {
	Token        string `json:"token"`
	Curve        string `json:"curve"`
	Level        uint64 `json:"level"`
	ReserveEth   string `json:"reserve_eth"`
	VestedTokens string `json:"vested_tokens"`
	Timestamp    int64  `json:"timestamp"`
}

// HandleMilestone appends the durable stream and pushes the milestone to
// the token's room; milestones have no cache record.
func (s *Sink) HandleMilestone(ctx context.Context, m MilestoneRecord) Result {
	var res Result
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		res.StreamErr = s.appendDurable(ctx, "MilestoneReached", m)
	}()
	go func() {
		defer wg.Done()
		res.LivePushErr = s.live.RoomMessage("token:"+m.Token, map[string]interface{}{"milestone": m})
	}()

	wg.Wait()

	if res.StreamErr != nil {
		s.m.SinkFailure("stream")
	}
	if res.LivePushErr != nil {
		s.m.SinkFailure("livepush")
	}
	return res
}

// BurnRecord is a burn-shaped event the pipeline keeps the sink live for
// end-to-end: cache writer plus pub/sub, even though no
// burn-emitting contract event is decoded yet.
type BurnRecord struct {
	Token     string `json:"token"`
	Burner    string `json:"burner"`
	Amount    string `json:"amount"`
	TxHash    string `json:"tx_hash"`
	Timestamp int64  `json:"timestamp"`
}

// HandleBurn writes the three burn_events sorted sets and publishes to
// the burn_events pub/sub channel.
func (s *Sink) HandleBurn(ctx context.Context, b BurnRecord) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal burn record: %w", err)
	}

	score := float64(b.Timestamp)
	if err := s.cache.ZAdd(ctx, "burn_events:all", score, payload); err != nil {
		return fmt.Errorf("zadd burn_events:all: %w", err)
	}
	if err := s.cache.ZAdd(ctx, "burn_events:token:"+b.Token, score, payload); err != nil {
		return fmt.Errorf("zadd burn_events:token: %w", err)
	}
	if err := s.cache.ZAdd(ctx, "burn_events:burner:"+b.Burner, score, payload); err != nil {
		return fmt.Errorf("zadd burn_events:burner: %w", err)
	}

	envelope, err := json.Marshal(map[string]interface{}{"type": "burn_event", "data": b})
	if err != nil {
		return fmt.Errorf("marshal burn envelope: %w", err)
	}
	if err := s.cache.Publish(ctx, "burn_events", envelope); err != nil {
		return fmt.Errorf("publish burn_events: %w", err)
	}
	return nil
}
