// Package supervisor owns the pipeline lifecycle: the event dispatch
// loop consuming raw chain logs, the hourly cache cleanup, and the
// periodic health monitor, all cancelled together when any of them fails
// terminally or the process is asked to shut down.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0x-minds/0xpads-listener/internal/aggregator"
	"github.com/0x-minds/0xpads-listener/internal/alerts"
	"github.com/0x-minds/0xpads-listener/internal/cache"
	"github.com/0x-minds/0xpads-listener/internal/config"
	"github.com/0x-minds/0xpads-listener/internal/decoder"
	"github.com/0x-minds/0xpads-listener/internal/events"
	"github.com/0x-minds/0xpads-listener/internal/fanout"
	"github.com/0x-minds/0xpads-listener/internal/marketstats"
	"github.com/0x-minds/0xpads-listener/internal/metrics"
	"github.com/0x-minds/0xpads-listener/internal/models"
	"github.com/0x-minds/0xpads-listener/internal/registry"
	"github.com/0x-minds/0xpads-listener/internal/valuemodel"
)

const (
	cleanupInterval = time.Hour
	cleanupWindow   = 24 * time.Hour
	healthInterval  = 30 * time.Second
	teardownGrace   = 5 * time.Second
)

// LogSource is what the supervisor needs from the Chain Client.
type LogSource interface {
	DiscoverCurves(ctx context.Context) error
	Subscribe(ctx context.Context) (<-chan models.RawLog, error)
	Health(ctx context.Context) error
}

// EventDecoder turns a raw log into a pipeline event.
type EventDecoder interface {
	Decode(raw models.RawLog) (events.PipelineEvent, error)
}

// LiveHealth is the health-sampling view of the backend socket.
type LiveHealth interface {
	Healthy() bool
}

// Supervisor wires the pipeline together and runs its cooperating tasks.
type Supervisor struct {
	source    LogSource
	dec       EventDecoder
	reg       *registry.Registry
	agg       *aggregator.Aggregator
	stats     *marketstats.Stats
	sink      *fanout.Sink
	bank      *alerts.Bank
	cache     cache.Cache
	live      LiveHealth
	m         *metrics.Metrics
	log       *logrus.Entry
	intervals []valuemodel.Interval

	tradesStreamPattern string

	// now is stubbed in tests to pin the 24h stats window.
	now func() time.Time

	mu     sync.RWMutex
	states map[valuemodel.Address]models.CurveState
}

// New assembles a Supervisor from its collaborators. The interval tokens
// from cfg are parsed up front; an unknown token is a ConfigError-grade
// failure surfaced before the pipeline starts.
func New(
	source LogSource,
	dec EventDecoder,
	reg *registry.Registry,
	agg *aggregator.Aggregator,
	stats *marketstats.Stats,
	sink *fanout.Sink,
	bank *alerts.Bank,
	c cache.Cache,
	live LiveHealth,
	m *metrics.Metrics,
	log *logrus.Entry,
	cfg config.ProcessingConfig,
	tradesKeyPrefix string,
) (*Supervisor, error) {
	intervals := make([]valuemodel.Interval, 0, len(cfg.OHLCVIntervals))
	for _, tok := range cfg.OHLCVIntervals {
		iv, err := valuemodel.ParseInterval(tok)
		if err != nil {
			return nil, fmt.Errorf("supervisor: %w", err)
		}
		intervals = append(intervals, iv)
	}

	if tradesKeyPrefix == "" {
		tradesKeyPrefix = "trades:"
	}

	return &Supervisor{
		source:              source,
		dec:                 dec,
		reg:                 reg,
		agg:                 agg,
		stats:               stats,
		sink:                sink,
		bank:                bank,
		cache:               c,
		live:                live,
		m:                   m,
		log:                 log,
		intervals:           intervals,
		tradesStreamPattern: tradesKeyPrefix + "stream:*",
		now:                 time.Now,
		states:              make(map[valuemodel.Address]models.CurveState),
	}, nil
}

// Run seeds the registry from discovery, then drives the three
// cooperating tasks until ctx is cancelled or one of them fails
// terminally. Teardown of the remaining tasks is bounded by a grace
// window.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.source.DiscoverCurves(ctx); err != nil {
		// Discovery is best-effort: deploy events will still populate
		// the registry as they arrive.
		s.log.WithError(err).Warn("initial curve discovery failed")
	}

	logs, err := s.source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("supervisor: subscribe: %w", err)
	}

	errCh := make(chan error, 3)
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		errCh <- s.dispatchLoop(ctx, logs)
	}()
	go func() {
		defer wg.Done()
		errCh <- s.cleanupLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		errCh <- s.healthLoop(ctx)
	}()

	err = <-errCh
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(teardownGrace):
		s.log.Warn("teardown grace window expired with tasks still running")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// dispatchLoop consumes raw logs in (block, log_index) order, decodes
// them and dispatches the resulting events. A failure processing one
// event is logged and never kills the loop.
func (s *Supervisor) dispatchLoop(ctx context.Context, logs <-chan models.RawLog) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-logs:
			if !ok {
				return fmt.Errorf("supervisor: log source closed")
			}
			s.m.SetDispatchQueueDepth(len(logs))
			s.handleLog(ctx, raw)
		}
	}
}

// handleLog is the per-event try boundary.
func (s *Supervisor) handleLog(ctx context.Context, raw models.RawLog) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{
				"tx":        raw.TxHash.String(),
				"log_index": raw.LogIndex,
			}).Errorf("event processing panicked: %v", r)
		}
	}()

	ev, err := s.dec.Decode(raw)
	if err != nil {
		s.logDecodeFailure(raw, err)
		return
	}
	s.Dispatch(ctx, ev)
}

func (s *Supervisor) logDecodeFailure(raw models.RawLog, err error) {
	fields := logrus.Fields{
		"address":   raw.Address.String(),
		"tx":        raw.TxHash.String(),
		"log_index": raw.LogIndex,
	}

	var unknown *decoder.UnknownTopicError
	switch {
	case errors.Is(err, decoder.ErrReorgHint):
		s.log.WithFields(fields).Debug("removed log dropped")
	case errors.As(err, &unknown):
		s.log.WithFields(fields).Debug("log with unknown topic dropped")
	default:
		s.m.DecodeError()
		s.log.WithError(err).WithFields(fields).Warn("log decode failed")
	}
}

// Dispatch routes one decoded event through the pipeline. Exported so
// tests can drive the supervisor without a chain connection.
func (s *Supervisor) Dispatch(ctx context.Context, ev events.PipelineEvent) {
	switch e := ev.(type) {
	case events.TradeDecoded:
		s.handleTrade(ctx, e.Trade)
	case events.CurveDeployed:
		s.handleCurveDeployed(ctx, e.Curve)
	case events.CreatorApproved:
		s.log.WithField("creator", e.Creator.String()).Info("regular creator approved")
	case events.CreatorRevoked:
		s.log.WithField("creator", e.Creator.String()).Info("regular creator revoked")
	case events.MilestoneReached:
		s.handleMilestone(ctx, e)
	case events.CurveReadyForDEX:
		s.setState(e.Curve, models.CurveReadyForDEX)
		s.log.WithField("curve", e.Curve.String()).Info("curve ready for DEX migration")
	case events.CurveMigrated:
		s.setState(e.Curve, models.CurveMigrated)
		s.log.WithField("curve", e.Curve.String()).Info("curve migration completed")
	}
}

func (s *Supervisor) handleTrade(ctx context.Context, t models.Trade) {
	if s.stateOf(t.Curve) == models.CurveMigrated {
		s.log.WithFields(logrus.Fields{
			"curve": t.Curve.String(),
			"tx":    t.Tx.String(),
		}).Warn("trade on migrated curve accepted")
	}

	results := s.agg.ApplyAll(t, s.intervals)
	for range results {
		s.m.CandleUpdate()
	}

	if err := s.sink.RecordTrade(ctx, t); err != nil {
		s.m.SinkFailure("cache")
		s.log.WithError(err).WithField("token", t.Token.String()).Warn("trade record write failed")
	}

	md, err := s.stats.Compute(ctx, t, s.now())
	if err != nil {
		s.log.WithError(err).WithField("token", t.Token.String()).Warn("24h stats recomputation failed")
		md = models.MarketData{
			Token:        t.Token,
			CurrentPrice: t.PriceAfter,
			MarketCap:    t.TotalSupply.Mul(t.PriceAfter),
			LastUpdated:  s.now(),
		}
	}

	s.sink.HandleTrade(ctx, t, md)
	s.bank.Evaluate(ctx, t, md)
	s.m.TradeProcessed()
}

func (s *Supervisor) handleCurveDeployed(ctx context.Context, c models.BondingCurve) {
	inserted := s.reg.Add(c.Curve, c.Token)
	s.setState(c.Curve, models.CurveActive)
	if !inserted {
		// Re-delivered deploy (discovery plus log, or a duplicate log):
		// the registry is idempotent and downstream publication is too.
		s.log.WithField("curve", c.Curve.String()).Debug("curve already registered")
	}

	s.sink.HandleCurveDeployed(ctx, c)
	s.log.WithFields(logrus.Fields{
		"token":  c.Token.String(),
		"curve":  c.Curve.String(),
		"symbol": c.Symbol,
	}).Info("bonding curve registered")
}

func (s *Supervisor) handleMilestone(ctx context.Context, e events.MilestoneReached) {
	res := s.sink.HandleMilestone(ctx, fanout.MilestoneRecord{
		Token:        e.Token.String(),
		Curve:        e.Curve.String(),
		Level:        e.Level,
		ReserveEth:   e.ReserveEth.String(),
		VestedTokens: e.VestedTokens.String(),
		Timestamp:    e.At.Unix(),
	})
	if res.AnyFailed() {
		s.log.WithField("curve", e.Curve.String()).Warn("milestone publication incomplete")
	}
	s.log.WithFields(logrus.Fields{
		"token": e.Token.String(),
		"curve": e.Curve.String(),
		"level": e.Level,
	}).Info("curve milestone reached")
}

// cleanupLoop deletes per-token trade history older than the stats
// window, hourly, across every trades stream key.
func (s *Supervisor) cleanupLoop(ctx context.Context) error {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *Supervisor) runCleanup(ctx context.Context) {
	cutoff := float64(s.now().Add(-cleanupWindow).Unix())

	keys, _, err := s.cache.Scan(ctx, 0, s.tradesStreamPattern, 100)
	if err != nil {
		s.log.WithError(err).Warn("cleanup scan failed")
		return
	}

	var removed int64
	for _, key := range keys {
		n, err := s.cache.ZRemRangeByScore(ctx, key, 0, cutoff)
		if err != nil {
			s.log.WithError(err).WithField("key", key).Warn("cleanup trim failed")
			continue
		}
		removed += n
	}
	if removed > 0 {
		s.log.WithFields(logrus.Fields{"keys": len(keys), "removed": removed}).Info("trade history cleanup completed")
	}
}

// healthLoop samples sub-component health every 30s and warns on
// degradations; it never fails the pipeline itself.
func (s *Supervisor) healthLoop(ctx context.Context) error {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sampleHealth(ctx)
		}
	}
}

func (s *Supervisor) sampleHealth(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.source.Health(ctx); err != nil {
		s.log.WithError(err).Warn("chain client unhealthy")
	}
	if err := s.cache.Ping(ctx); err != nil {
		s.log.WithError(err).Warn("cache unhealthy")
	}
	if s.live != nil && !s.live.Healthy() {
		s.log.Warn("backend socket disconnected")
	}
}

func (s *Supervisor) setState(curve valuemodel.Address, st models.CurveState) {
	s.mu.Lock()
	s.states[curve] = st
	s.mu.Unlock()
}

func (s *Supervisor) stateOf(curve valuemodel.Address) models.CurveState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[curve]
	if !ok {
		return models.CurveActive
	}
	return st
}
