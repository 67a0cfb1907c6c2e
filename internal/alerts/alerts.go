// Package alerts evaluates a bank of predicates against every fully
// fanned-out trade and pushes matches to the live socket. Evaluation is
// strictly fire-and-forget: a predicate error or panic is logged and
// never reaches the dispatch loop.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/0x-minds/0xpads-listener/internal/cache"
	"github.com/0x-minds/0xpads-listener/internal/models"
)

// priceAlertKeyPrefix holds per-user price thresholds, one JSON object
// per token keyed by user address.
const priceAlertKeyPrefix = "alerts:price:"

// Alert is the payload pushed to the live sink on a predicate match.
type Alert struct {
	Type      string `json:"type"`
	Token     string `json:"token"`
	User      string `json:"user,omitempty"`
	EthAmount string `json:"eth_amount,omitempty"`
	Price     string `json:"price,omitempty"`
	Threshold string `json:"threshold,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Predicate is a pure check over one trade and its 24h snapshot.
type Predicate interface {
	Name() string
	Evaluate(ctx context.Context, t models.Trade, md models.MarketData) ([]Alert, error)
}

// LivePush is the capability the bank needs from the backend socket.
type LivePush interface {
	RoomMessage(room string, data interface{}) error
}

// Bank runs every registered predicate after Fan-Out completes.
type Bank struct {
	preds []Predicate
	live  LivePush
	log   *logrus.Entry
}

// NewBank builds a bank over preds pushing matches through live.
func NewBank(live LivePush, log *logrus.Entry, preds ...Predicate) *Bank {
	return &Bank{preds: preds, live: live, log: log}
}

// Evaluate runs the bank against one decorated trade. Never returns an
// error; failures are logged per predicate.
func (b *Bank) Evaluate(ctx context.Context, t models.Trade, md models.MarketData) {
	for _, p := range b.preds {
		b.evaluateOne(ctx, p, t, md)
	}
}

func (b *Bank) evaluateOne(ctx context.Context, p Predicate, t models.Trade, md models.MarketData) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithField("predicate", p.Name()).Errorf("alert predicate panicked: %v", r)
		}
	}()

	matches, err := p.Evaluate(ctx, t, md)
	if err != nil {
		b.log.WithError(err).WithField("predicate", p.Name()).Warn("alert predicate failed")
		return
	}

	for _, a := range matches {
		if err := b.live.RoomMessage("token:"+a.Token, map[string]interface{}{"alert": a}); err != nil {
			b.log.WithError(err).WithField("predicate", p.Name()).Warn("alert push failed")
		}
	}
}

// LargeTrade fires when a trade's eth amount meets or exceeds the
// configured threshold.
type LargeTrade struct {
	Threshold decimal.Decimal
}

// NewLargeTrade builds the predicate from the configured threshold in
// eth; non-positive values fall back to the 1.0 default.
func NewLargeTrade(threshold float64) *LargeTrade {
	d := decimal.NewFromFloat(threshold)
	if d.LessThanOrEqual(decimal.Zero) {
		d = decimal.NewFromInt(1)
	}
	return &LargeTrade{Threshold: d}
}

func (p *LargeTrade) Name() string { return "large_trade" }

func (p *LargeTrade) Evaluate(_ context.Context, t models.Trade, _ models.MarketData) ([]Alert, error) {
	if t.EthAmount.LessThan(p.Threshold) {
		return nil, nil
	}
	return []Alert{{
		Type:      "large_trade",
		Token:     t.Token.String(),
		User:      t.User.String(),
		EthAmount: t.EthAmount.String(),
		Price:     t.PriceAfter.String(),
		Threshold: p.Threshold.String(),
		Timestamp: t.Ts.Unix(),
	}}, nil
}

// PriceAlert fires per registered user when the trade's price crosses
// that user's threshold in either direction. Thresholds live in the
// cache as one JSON object per token, keyed by user address.
type PriceAlert struct {
	cache cache.Cache
}

func NewPriceAlert(c cache.Cache) *PriceAlert {
	return &PriceAlert{cache: c}
}

func (p *PriceAlert) Name() string { return "price_alert" }

func (p *PriceAlert) Evaluate(ctx context.Context, t models.Trade, _ models.MarketData) ([]Alert, error) {
	raw, err := p.cache.Get(ctx, priceAlertKeyPrefix+t.Token.String())
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("alerts: read thresholds: %w", err)
	}

	var thresholds map[string]string
	if err := json.Unmarshal(raw, &thresholds); err != nil {
		return nil, fmt.Errorf("alerts: malformed thresholds for %s: %w", t.Token.String(), err)
	}

	var matches []Alert
	for user, raw := range thresholds {
		threshold, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		if !crossed(t.PriceBefore, t.PriceAfter, threshold) {
			continue
		}
		matches = append(matches, Alert{
			Type:      "price_alert",
			Token:     t.Token.String(),
			User:      user,
			Price:     t.PriceAfter.String(),
			Threshold: threshold.String(),
			Timestamp: t.Ts.Unix(),
		})
	}
	return matches, nil
}

// crossed reports whether the price moved through threshold between
// before and after. A zero before (canonicalized purchase/sale events)
// matches on the after side alone.
func crossed(before, after, threshold decimal.Decimal) bool {
	if before.IsZero() {
		return after.GreaterThanOrEqual(threshold)
	}
	if before.LessThan(threshold) && after.GreaterThanOrEqual(threshold) {
		return true
	}
	return before.GreaterThanOrEqual(threshold) && after.LessThan(threshold)
}
