// Package aggregator owns the live OHLCV candle state: one latest candle
// per (token, interval) pair, updated under a per-key mutex so that
// concurrent trades on distinct tokens or intervals never block each
// other while mutations on the same key stay serialized.
package aggregator

import (
	"sync"

	"github.com/0x-minds/0xpads-listener/internal/models"
	"github.com/0x-minds/0xpads-listener/internal/valuemodel"
)

type key struct {
	token    valuemodel.Address
	interval valuemodel.Interval
}

// entry pairs a candle with the mutex serializing its read-modify-write.
type entry struct {
	mu     sync.Mutex
	candle models.Candle
}

// Aggregator is the sole owner of live candle state. Safe for concurrent
// use: distinct (token, interval) keys update in parallel, the same key
// serializes via its own mutex (held only for the duration of one
// candle's read-modify-write, never across network I/O).
type Aggregator struct {
	mu      sync.RWMutex // guards the entries map itself, not candle contents
	entries map[key]*entry
}

// New returns an empty aggregator.
func New() *Aggregator {
	return &Aggregator{entries: make(map[key]*entry)}
}

// Result describes the effect one Apply call had on a candle, so callers
// can distinguish a brand-new bucket (for NewCandleCreated-style
// downstream notification) from an in-place update.
type Result struct {
	Candle    models.Candle
	IsNewOpen bool
}

// Apply folds trade t into the candle for (t.Token, interval), creating a
// fresh bucket if none exists yet or the latest one has rolled past
// t's bucket. The returned Candle is a value copy, safe
// to read without further locking.
func (a *Aggregator) Apply(t models.Trade, interval valuemodel.Interval) Result {
	e := a.entryFor(key{token: t.Token, interval: interval})

	bucket := interval.Floor(uint64(t.Ts.Unix()))

	e.mu.Lock()
	defer e.mu.Unlock()

	isNew := e.candle.TradeCount == 0 || e.candle.BucketTs < bucket
	if isNew {
		e.candle = models.Candle{
			Token:    t.Token,
			Interval: interval,
			BucketTs: bucket,
		}
	}
	e.candle.Apply(t)

	return Result{Candle: e.candle, IsNewOpen: isNew}
}

// Latest returns the current candle for (token, interval), if any.
func (a *Aggregator) Latest(token valuemodel.Address, interval valuemodel.Interval) (models.Candle, bool) {
	a.mu.RLock()
	e, ok := a.entries[key{token: token, interval: interval}]
	a.mu.RUnlock()
	if !ok {
		return models.Candle{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.candle.TradeCount == 0 {
		return models.Candle{}, false
	}
	return e.candle, true
}

func (a *Aggregator) entryFor(k key) *entry {
	a.mu.RLock()
	e, ok := a.entries[k]
	a.mu.RUnlock()
	if ok {
		return e
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok = a.entries[k]; ok {
		return e
	}
	e = &entry{}
	a.entries[k] = e
	return e
}

// ApplyAll updates every interval in intervals concurrently for one trade
// and returns one Result per interval, in the same order as intervals.
// An individual interval's update never errors (Apply cannot fail), so
// this simply fans work out and joins it; kept as a method so callers
// (the dispatch loop's per-trade worker group) don't need to know the
// fan-out width.
func (a *Aggregator) ApplyAll(t models.Trade, intervals []valuemodel.Interval) []Result {
	results := make([]Result, len(intervals))

	var wg sync.WaitGroup
	wg.Add(len(intervals))
	for i, iv := range intervals {
		go func(i int, iv valuemodel.Interval) {
			defer wg.Done()
			results[i] = a.Apply(t, iv)
		}(i, iv)
	}
	wg.Wait()

	return results
}
