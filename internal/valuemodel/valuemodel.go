// Package valuemodel holds the primitive chain types shared by every other
// package: addresses, transaction hashes, block references, candle
// intervals, and the wei<->decimal conversion boundary.
package valuemodel

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var weiPerToken = decimal.New(1, 18)

// DecimalFromWei converts a wei-denominated *big.Int into an 18-decimal
// fixed-point Decimal. A nil input is treated as zero.
func DecimalFromWei(i *big.Int) decimal.Decimal {
	if i == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(i, 0).DivRound(weiPerToken, 18)
}

// ToWei converts a Decimal back into wei, rounding half up.
func ToWei(d decimal.Decimal) *big.Int {
	return d.Mul(weiPerToken).Round(0).BigInt()
}

// Address is a 20-byte chain address, compared case-insensitively but
// displayed with EIP-55 checksum casing.
type Address struct {
	raw common.Address
}

// ParseAddress validates and canonicalizes a hex address string.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return Address{}, fmt.Errorf("valuemodel: %q is not a valid address", s)
	}
	return Address{raw: common.HexToAddress(s)}, nil
}

// MustAddress parses or panics; used for constants known to be valid.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string { return a.raw.Hex() }

// Equal compares two addresses case-insensitively (both are already
// canonicalized, so this is a plain equality check).
func (a Address) Equal(other Address) bool { return a.raw == other.raw }

func (a Address) IsZero() bool { return a.raw == (common.Address{}) }

func (a Address) Bytes() common.Address { return a.raw }

// TxHash is a 32-byte transaction hash.
type TxHash struct {
	raw common.Hash
}

func ParseTxHash(s string) (TxHash, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") || len(s) != 66 {
		return TxHash{}, fmt.Errorf("valuemodel: %q is not a valid tx hash", s)
	}
	return TxHash{raw: common.HexToHash(s)}, nil
}

func (h TxHash) String() string { return h.raw.Hex() }

func (h TxHash) Equal(other TxHash) bool { return h.raw == other.raw }

// BlockInfo identifies a block by number, timestamp and hash.
type BlockInfo struct {
	Number    uint64
	Timestamp uint64
	Hash      common.Hash
}

func (b BlockInfo) Time() time.Time { return time.Unix(int64(b.Timestamp), 0).UTC() }

// TradeDirection is buy or sell, as derived from the decoded event.
type TradeDirection int

const (
	DirectionBuy TradeDirection = iota
	DirectionSell
)

func (d TradeDirection) String() string {
	if d == DirectionBuy {
		return "buy"
	}
	return "sell"
}

// Interval is a candle bucket width in seconds. Only the six values below
// are valid.
type Interval int64

const (
	Interval1m  Interval = 60
	Interval5m  Interval = 300
	Interval15m Interval = 900
	Interval1h  Interval = 3600
	Interval4h  Interval = 14400
	Interval1d  Interval = 86400
)

// AllIntervals lists every candle width updated per accepted trade.
var AllIntervals = []Interval{Interval1m, Interval5m, Interval15m, Interval1h, Interval4h, Interval1d}

// ParseInterval accepts only the canonical short tokens.
func ParseInterval(s string) (Interval, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1m":
		return Interval1m, nil
	case "5m":
		return Interval5m, nil
	case "15m":
		return Interval15m, nil
	case "1h":
		return Interval1h, nil
	case "4h":
		return Interval4h, nil
	case "1d":
		return Interval1d, nil
	default:
		return 0, fmt.Errorf("valuemodel: %q is not a known interval", s)
	}
}

func (iv Interval) String() string {
	switch iv {
	case Interval1m:
		return "1m"
	case Interval5m:
		return "5m"
	case Interval15m:
		return "15m"
	case Interval1h:
		return "1h"
	case Interval4h:
		return "4h"
	case Interval1d:
		return "1d"
	default:
		return fmt.Sprintf("%ds", int64(iv))
	}
}

// Floor rounds a unix timestamp in seconds down to the start of its bucket.
func (iv Interval) Floor(unixSeconds uint64) uint64 {
	secs := uint64(iv)
	return (unixSeconds / secs) * secs
}
