// Package marketstats recomputes the rolling 24h market snapshot for a
// token after every accepted trade, reading the trade history back out of
// the cache's per-token sorted set rather than keeping its own copy.
package marketstats

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/0x-minds/0xpads-listener/internal/cache"
	"github.com/0x-minds/0xpads-listener/internal/models"
	"github.com/0x-minds/0xpads-listener/internal/valuemodel"
)

const window = 24 * time.Hour

// Stats recomputes MarketData for one token from the cache's trade
// history. now is passed explicitly so tests can pin the
// window boundary instead of racing time.Now().
type Stats struct {
	cache           cache.Cache
	tradesKeyPrefix string
}

// New returns a Stats reader backed by c, using keyPrefix ("trades:" by
// default) to build the per-token sorted-set key.
func New(c cache.Cache, keyPrefix string) *Stats {
	if keyPrefix == "" {
		keyPrefix = "trades:"
	}
	return &Stats{cache: c, tradesKeyPrefix: keyPrefix}
}

func (s *Stats) streamKey(token valuemodel.Address) string {
	return fmt.Sprintf("%sstream:%s", s.tradesKeyPrefix, token.String())
}

// Compute recomputes 24h stats for t's token as of t (the trade that just
// triggered recomputation is expected to already be present in the cache's
// sorted set, since Fan-Out writes the cache before Market Stats runs in
// practice — callers that invoke Compute before the cache write still get
// a correct market_cap, since that field is seeded from t directly).
func (s *Stats) Compute(ctx context.Context, t models.Trade, now time.Time) (models.MarketData, error) {
	min := float64(now.Add(-window).Unix())
	max := float64(now.Unix())

	raw, err := s.cache.ZRangeByScore(ctx, s.streamKey(t.Token), min, max, 0)
	if err != nil {
		return models.MarketData{}, fmt.Errorf("marketstats: read trade history: %w", err)
	}

	records := make([]models.TradeRecord, 0, len(raw))
	for _, r := range raw {
		var rec models.TradeRecord
		if err := json.Unmarshal(r, &rec); err != nil {
			continue // malformed member; skip rather than fail the whole computation
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp < records[j].Timestamp })

	md := models.MarketData{
		Token:        t.Token,
		CurrentPrice: t.PriceAfter,
		MarketCap:    t.TotalSupply.Mul(t.PriceAfter),
		LastUpdated:  now,
	}

	if len(records) == 0 {
		return md, nil
	}

	first, last := records[0], records[len(records)-1]

	firstPriceBefore, _ := decimal.NewFromString(first.PriceBefore)
	lastPriceAfter, _ := decimal.NewFromString(last.PriceAfter)

	md.PriceChange24h = lastPriceAfter.Sub(firstPriceBefore)
	if firstPriceBefore.IsZero() {
		md.PriceChangePct24h = decimal.Zero
	} else {
		md.PriceChangePct24h = md.PriceChange24h.Div(firstPriceBefore).Mul(decimal.NewFromInt(100))
	}

	var volume, volumeEth decimal.Decimal
	for _, r := range records {
		if amt, err := decimal.NewFromString(r.TokenAmount); err == nil {
			volume = volume.Add(amt)
		}
		if amt, err := decimal.NewFromString(r.EthAmount); err == nil {
			volumeEth = volumeEth.Add(amt)
		}
	}
	md.Volume24h = volume
	md.VolumeEth24h = volumeEth
	md.Trades24h = uint32(len(records))

	return md, nil
}
