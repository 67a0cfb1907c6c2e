// Package models holds the domain entities dispatched through the
// pipeline: decoded trades, live candles, bonding curve state and the
// rolling 24h market snapshot derived from them.
package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/0x-minds/0xpads-listener/internal/valuemodel"
)

// RawLog is the chain-agnostic shape handed from the Chain Client to the
// Decoder, mirroring go-ethereum's types.Log fields the decoder actually
// consumes.
type RawLog struct {
	Address     valuemodel.Address
	Topics      [][32]byte
	Data        []byte
	BlockNumber uint64
	BlockHash   [32]byte
	TxHash      valuemodel.TxHash
	LogIndex    uint32
	Removed     bool
}

// Trade is a single decoded buy or sell against a bonding curve.
type Trade struct {
	Token     valuemodel.Address
	Curve     valuemodel.Address
	User      valuemodel.Address
	Direction valuemodel.TradeDirection

	TokenAmount decimal.Decimal
	EthAmount   decimal.Decimal

	PriceBefore decimal.Decimal
	PriceAfter  decimal.Decimal
	TotalSupply decimal.Decimal

	Block    valuemodel.BlockInfo
	Tx       valuemodel.TxHash
	LogIndex uint32
	Ts       time.Time
}

// EffectivePrice returns EthAmount/TokenAmount, or PriceAfter when
// TokenAmount is zero (avoids a division-by-zero panic on such trades).
func (t Trade) EffectivePrice() decimal.Decimal {
	if t.TokenAmount.IsZero() {
		return t.PriceAfter
	}
	return t.EthAmount.Div(t.TokenAmount)
}

// PriceImpact returns |price_after - price_before| / price_before, or zero
// when PriceBefore is zero (the canonicalized-event case).
func (t Trade) PriceImpact() decimal.Decimal {
	if t.PriceBefore.IsZero() {
		return decimal.Zero
	}
	return t.PriceAfter.Sub(t.PriceBefore).Abs().Div(t.PriceBefore)
}

// Less orders two trades by (block number, log index) ascending, the
// canonical dispatch and candle-update order.
func (t Trade) Less(other Trade) bool {
	if t.Block.Number != other.Block.Number {
		return t.Block.Number < other.Block.Number
	}
	return t.LogIndex < other.LogIndex
}

// Candle is the live OHLCV bucket for one (token, interval) pair.
type Candle struct {
	Token    valuemodel.Address
	Interval valuemodel.Interval
	BucketTs uint64

	Open  decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal

	TotalVol decimal.Decimal
	BuyVol   decimal.Decimal
	SellVol  decimal.Decimal
	VolEth   decimal.Decimal

	TradeCount uint32
}

// Apply folds one accepted trade into the candle, mutating it in place.
// Callers are responsible for serializing access per (token, interval).
func (c *Candle) Apply(t Trade) {
	if c.TradeCount == 0 {
		seed := t.PriceBefore
		if seed.IsZero() {
			seed = t.PriceAfter
		}
		c.Open, c.High, c.Low, c.Close = seed, seed, seed, seed
	}

	if t.PriceAfter.GreaterThan(c.High) {
		c.High = t.PriceAfter
	}
	if c.Low.IsZero() || t.PriceAfter.LessThan(c.Low) {
		c.Low = t.PriceAfter
	}
	c.Close = t.PriceAfter

	c.TotalVol = c.TotalVol.Add(t.TokenAmount)
	switch t.Direction {
	case valuemodel.DirectionBuy:
		c.BuyVol = c.BuyVol.Add(t.TokenAmount)
	default:
		c.SellVol = c.SellVol.Add(t.TokenAmount)
	}
	c.VolEth = c.VolEth.Add(t.EthAmount)
	c.TradeCount++
}

// CurveState is the lifecycle phase of a BondingCurve.
type CurveState int

const (
	CurveDiscovered CurveState = iota
	CurveActive
	CurveReadyForDEX
	CurveMigrated
)

func (s CurveState) String() string {
	switch s {
	case CurveDiscovered:
		return "discovered"
	case CurveActive:
		return "active"
	case CurveReadyForDEX:
		return "ready_for_dex"
	case CurveMigrated:
		return "migrated"
	default:
		return "unknown"
	}
}

// BondingCurve is the mutable record for one deployed curve.
type BondingCurve struct {
	Token   valuemodel.Address
	Curve   valuemodel.Address
	Creator valuemodel.Address
	Name    string
	Symbol  string

	TotalSupply    decimal.Decimal
	CurrentSupply  decimal.Decimal
	ReserveBalance decimal.Decimal
	CurrentPrice   decimal.Decimal

	State      CurveState
	DeployedAt time.Time

	TotalTrades    uint64
	TotalVolumeEth decimal.Decimal
}

// Active reports whether the curve is still expected to emit ordinary
// trades (Active or ReadyForDEX); Migrated curves are flagged, not refused.
func (c BondingCurve) Active() bool {
	return c.State == CurveActive || c.State == CurveReadyForDEX
}

// MarketData is the rolling 24h snapshot for one token, recomputed after
// every accepted trade.
type MarketData struct {
	Token valuemodel.Address

	CurrentPrice      decimal.Decimal
	PriceChange24h    decimal.Decimal
	PriceChangePct24h decimal.Decimal

	Volume24h    decimal.Decimal
	VolumeEth24h decimal.Decimal
	Trades24h    uint32

	MarketCap decimal.Decimal

	LastUpdated time.Time
}

// TradeRecord is the stringified-decimal wire shape written to every
// cache/stream/socket sink for a trade (all payload values are
// stringified decimals to avoid float loss). Market Stats reads the same
// shape back out of the trades:stream:<token> sorted set it was written
// into, so the type lives here as the shared contract between the two.
type TradeRecord struct {
	Token       string `json:"token"`
	Curve       string `json:"curve"`
	User        string `json:"user"`
	Direction   string `json:"direction"`
	TokenAmount string `json:"token_amount"`
	EthAmount   string `json:"eth_amount"`
	PriceBefore string `json:"price_before"`
	PriceAfter  string `json:"price_after"`
	TotalSupply string `json:"total_supply"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint32 `json:"log_index"`
	Timestamp   int64  `json:"timestamp"`
}

// Record converts t into its stringified-decimal wire shape.
func (t Trade) Record() TradeRecord {
	return TradeRecord{
		Token:       t.Token.String(),
		Curve:       t.Curve.String(),
		User:        t.User.String(),
		Direction:   t.Direction.String(),
		TokenAmount: t.TokenAmount.String(),
		EthAmount:   t.EthAmount.String(),
		PriceBefore: t.PriceBefore.String(),
		PriceAfter:  t.PriceAfter.String(),
		TotalSupply: t.TotalSupply.String(),
		TxHash:      t.Tx.String(),
		LogIndex:    t.LogIndex,
		Timestamp:   t.Ts.Unix(),
	}
}
