// Package cachetest provides an in-memory cache.Cache double for tests
// that exercise Fan-Out and Market Stats without a live Redis instance.
// It implements only the semantics the pipeline actually relies on
// (TTLs are accepted but not stored: keys never expire, TTL reports 0
// and Expire has no effect).
package cachetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/0x-minds/0xpads-listener/internal/cache"
)

type zmember struct {
	score  float64
	member []byte
}

// Fake is a minimal, concurrency-safe in-memory implementation of
// cache.Cache.
type Fake struct {
	mu      sync.Mutex
	kv      map[string][]byte
	zsets   map[string][]zmember
	streams map[string][]streamEntry
	pubsub  map[string][]chan cache.Message

	XAddCalls int

	// FailPipeline makes every pipeline Exec fail, for sink-error tests.
	FailPipeline bool
}

type streamEntry struct {
	id     string
	values map[string]interface{}
}

// New returns an empty Fake cache.
func New() *Fake {
	return &Fake{
		kv:      make(map[string][]byte),
		zsets:   make(map[string][]zmember),
		streams: make(map[string][]streamEntry),
		pubsub:  make(map[string][]chan cache.Message),
	}
}

func (f *Fake) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.kv[key]
	if !ok {
		return nil, cache.NewCacheError("get", key, cache.ErrCodeKeyNotFound, nil)
	}
	return v, nil
}

func (f *Fake) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kv[key] = value
	return nil
}

func (f *Fake) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.kv, k)
	}
	return nil
}

func (f *Fake) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.kv[key]
	return ok, nil
}

func (f *Fake) TTL(context.Context, string) (time.Duration, error) { return 0, nil }

func (f *Fake) Expire(context.Context, string, time.Duration) error { return nil }

func (f *Fake) ZAdd(_ context.Context, key string, score float64, member []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.zadd(key, score, member)
	return nil
}

func (f *Fake) zadd(key string, score float64, member []byte) {
	f.zsets[key] = append(f.zsets[key], zmember{score: score, member: member})
}

func (f *Fake) ZCard(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.zsets[key])), nil
}

func (f *Fake) ZRangeByScore(_ context.Context, key string, min, max float64, limit int64) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sorted := sortedCopy(f.zsets[key])
	out := make([][]byte, 0, len(sorted))
	for _, m := range sorted {
		if m.score >= min && m.score <= max {
			out = append(out, m.member)
		}
	}
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fake) ZRemRangeByRank(_ context.Context, key string, start, stop int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.zremRangeByRank(key, start, stop), nil
}

func (f *Fake) zremRangeByRank(key string, start, stop int64) int64 {
	sorted := sortedCopy(f.zsets[key])
	victims := sliceRange(sorted, start, stop)
	removed := int64(0)
	set := f.zsets[key]
	for _, v := range victims {
		for i, existing := range set {
			if string(existing.member) == string(v) {
				set = append(set[:i], set[i+1:]...)
				removed++
				break
			}
		}
	}
	f.zsets[key] = set
	return removed
}

func (f *Fake) ZRemRangeByScore(_ context.Context, key string, min, max float64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.zsets[key][:0]
	removed := int64(0)
	for _, m := range f.zsets[key] {
		if m.score >= min && m.score <= max {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	f.zsets[key] = kept
	return removed, nil
}

// XAdd trims to maxLen by dropping the oldest entries, approximating the
// real XTRIM ~ MAXLEN semantics closely enough for trim-bound assertions.
func (f *Fake) XAdd(_ context.Context, stream string, maxLen int64, values map[string]interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.XAddCalls++
	id := time.Now().UTC().Format("20060102150405.000000000")
	f.streams[stream] = append(f.streams[stream], streamEntry{id: id, values: values})
	if maxLen > 0 && int64(len(f.streams[stream])) > maxLen {
		f.streams[stream] = f.streams[stream][int64(len(f.streams[stream]))-maxLen:]
	}
	return id, nil
}

func (f *Fake) XTrimApprox(_ context.Context, stream string, maxLen int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if int64(len(f.streams[stream])) > maxLen {
		f.streams[stream] = f.streams[stream][int64(len(f.streams[stream]))-maxLen:]
	}
	return nil
}

func (f *Fake) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	subs := append([]chan cache.Message(nil), f.pubsub[channel]...)
	f.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- cache.Message{Channel: channel, Payload: payload}:
		default:
		}
	}
	return nil
}

func (f *Fake) Subscribe(_ context.Context, channels ...string) cache.Subscription {
	ch := make(chan cache.Message, 16)
	f.mu.Lock()
	for _, c := range channels {
		f.pubsub[c] = append(f.pubsub[c], ch)
	}
	f.mu.Unlock()
	return &fakeSubscription{ch: ch}
}

type fakeSubscription struct{ ch chan cache.Message }

func (s *fakeSubscription) Channel() <-chan cache.Message { return s.ch }
func (s *fakeSubscription) Close() error                  { close(s.ch); return nil }

// Scan matches only the "prefix*" glob shape the pipeline uses, and
// always completes in one sweep (returned cursor is zero).
func (f *Fake) Scan(_ context.Context, _ uint64, match string, _ int64) ([]string, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(match, "*")
	var out []string
	for k := range f.kv {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	for k := range f.zsets {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, 0, nil
}

// Pipeline returns a batch that applies its queued writes on Exec.
func (f *Fake) Pipeline() cache.Pipeline {
	return &fakePipeline{fake: f}
}

type pipelineOp func(f *Fake)

type fakePipeline struct {
	fake *Fake
	ops  []pipelineOp
}

func (p *fakePipeline) Set(key string, value []byte, _ time.Duration) {
	p.ops = append(p.ops, func(f *Fake) { f.kv[key] = value })
}

func (p *fakePipeline) ZAdd(key string, score float64, member []byte) {
	p.ops = append(p.ops, func(f *Fake) { f.zadd(key, score, member) })
}

func (p *fakePipeline) ZRemRangeByRank(key string, start, stop int64) {
	p.ops = append(p.ops, func(f *Fake) { f.zremRangeByRank(key, start, stop) })
}

func (p *fakePipeline) Expire(string, time.Duration) {
	p.ops = append(p.ops, func(*Fake) {})
}

func (p *fakePipeline) Exec(context.Context) error {
	p.fake.mu.Lock()
	defer p.fake.mu.Unlock()
	if p.fake.FailPipeline {
		p.ops = nil
		return cache.NewCacheError("pipeline", "", cache.ErrCodeConnectionFailed, nil)
	}
	for _, op := range p.ops {
		op(p.fake)
	}
	p.ops = nil
	return nil
}

func (p *fakePipeline) Discard() { p.ops = nil }

func (f *Fake) Ping(context.Context) error { return nil }

func (f *Fake) Close() error { return nil }

// StreamLen reports how many entries remain in a given durable stream,
// for tests asserting the stream's retention cap.
func (f *Fake) StreamLen(stream string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams[stream])
}

// StreamEventTypes returns the event_type field of every entry appended
// to stream, in append order.
func (f *Fake) StreamEventTypes(stream string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.streams[stream]))
	for _, e := range f.streams[stream] {
		if et, ok := e.values["event_type"].(string); ok {
			out = append(out, et)
		}
	}
	return out
}

func sortedCopy(in []zmember) []zmember {
	out := make([]zmember, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].score < out[j].score })
	return out
}

func sliceRange(sorted []zmember, start, stop int64) [][]byte {
	n := int64(len(sorted))
	if n == 0 {
		return nil
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil
	}
	out := make([][]byte, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		out = append(out, sorted[i].member)
	}
	return out
}

var _ cache.Cache = (*Fake)(nil)
