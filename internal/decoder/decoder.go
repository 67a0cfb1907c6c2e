// Package decoder binds the two ABI shapes the pipeline understands
// (Factory and Curve) and turns raw chain logs into typed pipeline
// events.
package decoder

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/0x-minds/0xpads-listener/internal/events"
	"github.com/0x-minds/0xpads-listener/internal/models"
	"github.com/0x-minds/0xpads-listener/internal/valuemodel"
)

// CurveSet is the read-only view the Decoder needs from the Curve
// Registry to tell factory logs from curve logs apart.
type CurveSet interface {
	Contains(addr valuemodel.Address) bool
	TokenFor(curve valuemodel.Address) (valuemodel.Address, bool)
}

// ErrReorgHint marks a removed=true log: the node retracted it in a
// reorg, so the pipeline drops it without any state change.
var ErrReorgHint = errors.New("decoder: removed log dropped (reorg signal)")

// UnknownTopicError indicates a log whose topic0 matches neither the
// factory nor any bound curve event; the log is dropped with a warning,
// not treated as a hard failure.
type UnknownTopicError struct {
	Topic common.Hash
}

func (e *UnknownTopicError) Error() string {
	return fmt.Sprintf("decoder: unknown topic %s", e.Topic.Hex())
}

// DecodeError wraps an ABI unpack failure on an otherwise-recognized log.
type DecodeError struct {
	Event string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoder: failed to decode %s: %v", e.Event, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder binds the embedded Factory/Curve ABI fragments and turns raw
// logs into pipeline events.
type Decoder struct {
	factoryABI     abi.ABI
	curveABI       abi.ABI
	factoryAddress valuemodel.Address
	hasFactory     bool
	curves         CurveSet

	tradeTopic              common.Hash
	tokensPurchasedTopic    common.Hash
	tokensSoldTopic         common.Hash
	milestoneReachedTopic   common.Hash
	readyForDEXTopic        common.Hash
	migrationCompletedTopic common.Hash
	curveDeployedTopic      common.Hash
	creatorApprovedTopic    common.Hash
	creatorRevokedTopic     common.Hash
}

// FactoryABI parses and returns the embedded factory ABI fragment,
// exported so the Chain Client can pack/unpack the getDeployedCurves
// view call without hand-rolling a second copy.
func FactoryABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(factoryABIJSON))
}

// CurveABI parses and returns the embedded curve ABI fragment, exported
// for tests and tooling that need to pack curve event payloads.
func CurveABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(curveABIJSON))
}

// New parses the embedded ABI fragments. factoryAddress may be the zero
// address, in which case factory-log recognition is skipped (the
// the Chain Client tolerates an unconfigured factory).
func New(factoryAddress valuemodel.Address, curves CurveSet) (*Decoder, error) {
	factoryABI, err := abi.JSON(strings.NewReader(factoryABIJSON))
	if err != nil {
		return nil, fmt.Errorf("decoder: parse factory abi: %w", err)
	}
	curveABI, err := abi.JSON(strings.NewReader(curveABIJSON))
	if err != nil {
		return nil, fmt.Errorf("decoder: parse curve abi: %w", err)
	}

	return &Decoder{
		factoryABI:     factoryABI,
		curveABI:       curveABI,
		factoryAddress: factoryAddress,
		hasFactory:     !factoryAddress.IsZero(),
		curves:         curves,

		tradeTopic:              curveABI.Events["Trade"].ID,
		tokensPurchasedTopic:    curveABI.Events["TokensPurchased"].ID,
		tokensSoldTopic:         curveABI.Events["TokensSold"].ID,
		milestoneReachedTopic:   curveABI.Events["MilestoneReached"].ID,
		readyForDEXTopic:        curveABI.Events["ReadyForDEX"].ID,
		migrationCompletedTopic: curveABI.Events["MigrationCompleted"].ID,
		curveDeployedTopic:      factoryABI.Events["BondingCurveDeployed"].ID,
		creatorApprovedTopic:    factoryABI.Events["RegularTokenCreatorApproved"].ID,
		creatorRevokedTopic:     factoryABI.Events["RegularTokenCreatorRevoked"].ID,
	}, nil
}

// Decode turns one raw log into a pipeline event, or returns
// *UnknownTopicError / *DecodeError.
func (d *Decoder) Decode(raw models.RawLog) (events.PipelineEvent, error) {
	if raw.Removed {
		return nil, ErrReorgHint
	}
	if len(raw.Topics) == 0 {
		return nil, &UnknownTopicError{}
	}

	topic0 := common.BytesToHash(raw.Topics[0][:])

	if d.hasFactory && raw.Address.Equal(d.factoryAddress) {
		return d.decodeFactoryLog(topic0, raw)
	}
	if d.curves.Contains(raw.Address) {
		return d.decodeCurveLog(topic0, raw)
	}

	return nil, &UnknownTopicError{Topic: topic0}
}

func (d *Decoder) decodeFactoryLog(topic0 common.Hash, raw models.RawLog) (events.PipelineEvent, error) {
	switch topic0 {
	case d.curveDeployedTopic:
		return d.decodeCurveDeployed(raw)
	case d.creatorApprovedTopic:
		return d.decodeCreatorApproved(raw)
	case d.creatorRevokedTopic:
		return d.decodeCreatorRevoked(raw)
	default:
		return nil, &UnknownTopicError{Topic: topic0}
	}
}

func (d *Decoder) decodeCurveDeployed(raw models.RawLog) (events.PipelineEvent, error) {
	if len(raw.Topics) < 4 {
		return nil, &DecodeError{Event: "BondingCurveDeployed", Err: fmt.Errorf("expected 3 indexed topics, got %d", len(raw.Topics)-1)}
	}

	token := addressFromTopic(raw.Topics[1])
	curve := addressFromTopic(raw.Topics[2])
	creator := addressFromTopic(raw.Topics[3])

	var nonIndexed struct {
		Name      string
		Symbol    string
		Timestamp *big.Int
	}
	if err := d.factoryABI.UnpackIntoInterface(&nonIndexed, "BondingCurveDeployed", raw.Data); err != nil {
		return nil, &DecodeError{Event: "BondingCurveDeployed", Err: err}
	}

	deployedAt := time.Unix(nonIndexed.Timestamp.Int64(), 0).UTC()

	return events.CurveDeployed{
		Curve: models.BondingCurve{
			Token:      token,
			Curve:      curve,
			Creator:    creator,
			Name:       nonIndexed.Name,
			Symbol:     nonIndexed.Symbol,
			State:      models.CurveDiscovered,
			DeployedAt: deployedAt,
		},
		At: deployedAt,
	}, nil
}

func (d *Decoder) decodeCreatorApproved(raw models.RawLog) (events.PipelineEvent, error) {
	creator, at, err := d.decodeCreatorLog("RegularTokenCreatorApproved", raw)
	if err != nil {
		return nil, err
	}
	return events.CreatorApproved{Creator: creator, At: at}, nil
}

func (d *Decoder) decodeCreatorRevoked(raw models.RawLog) (events.PipelineEvent, error) {
	creator, at, err := d.decodeCreatorLog("RegularTokenCreatorRevoked", raw)
	if err != nil {
		return nil, err
	}
	return events.CreatorRevoked{Creator: creator, At: at}, nil
}

// decodeCreatorLog handles the shared shape of the approve/revoke
// events: one indexed creator address plus a timestamp.
func (d *Decoder) decodeCreatorLog(event string, raw models.RawLog) (valuemodel.Address, time.Time, error) {
	if len(raw.Topics) < 2 {
		return valuemodel.Address{}, time.Time{}, &DecodeError{Event: event, Err: fmt.Errorf("expected 1 indexed topic, got %d", len(raw.Topics)-1)}
	}
	creator := addressFromTopic(raw.Topics[1])

	var nonIndexed struct {
		Timestamp *big.Int
	}
	if err := d.factoryABI.UnpackIntoInterface(&nonIndexed, event, raw.Data); err != nil {
		return valuemodel.Address{}, time.Time{}, &DecodeError{Event: event, Err: err}
	}

	return creator, time.Unix(nonIndexed.Timestamp.Int64(), 0).UTC(), nil
}

func (d *Decoder) decodeCurveLog(topic0 common.Hash, raw models.RawLog) (events.PipelineEvent, error) {
	switch topic0 {
	case d.tradeTopic:
		return d.decodeTrade(raw)
	case d.tokensPurchasedTopic:
		return d.decodeTokensPurchased(raw)
	case d.tokensSoldTopic:
		return d.decodeTokensSold(raw)
	case d.milestoneReachedTopic:
		return d.decodeMilestoneReached(raw)
	case d.readyForDEXTopic:
		return d.decodeReadyForDEX(raw)
	case d.migrationCompletedTopic:
		return d.decodeMigrationCompleted(raw)
	default:
		return nil, &UnknownTopicError{Topic: topic0}
	}
}

// decodeMilestoneReached carries the vesting milestone level as its one
// indexed parameter.
func (d *Decoder) decodeMilestoneReached(raw models.RawLog) (events.PipelineEvent, error) {
	if len(raw.Topics) < 2 {
		return nil, &DecodeError{Event: "MilestoneReached", Err: fmt.Errorf("expected 1 indexed topic, got %d", len(raw.Topics)-1)}
	}
	level := new(big.Int).SetBytes(raw.Topics[1][:]).Uint64()

	var nonIndexed struct {
		ReserveETH   *big.Int
		VestedTokens *big.Int
		Timestamp    *big.Int
	}
	if err := d.curveABI.UnpackIntoInterface(&nonIndexed, "MilestoneReached", raw.Data); err != nil {
		return nil, &DecodeError{Event: "MilestoneReached", Err: err}
	}

	token, _ := d.curves.TokenFor(raw.Address)

	return events.MilestoneReached{
		Token:        token,
		Curve:        raw.Address,
		Level:        level,
		ReserveEth:   valuemodel.DecimalFromWei(nonIndexed.ReserveETH),
		VestedTokens: valuemodel.DecimalFromWei(nonIndexed.VestedTokens),
		At:           time.Unix(nonIndexed.Timestamp.Int64(), 0).UTC(),
	}, nil
}

func (d *Decoder) decodeTrade(raw models.RawLog) (events.PipelineEvent, error) {
	if len(raw.Topics) < 3 {
		return nil, &DecodeError{Event: "Trade", Err: fmt.Errorf("expected 2 indexed topics, got %d", len(raw.Topics)-1)}
	}
	user := addressFromTopic(raw.Topics[1])
	isBuy := raw.Topics[2][31] != 0

	var nonIndexed struct {
		EthInOrOut  *big.Int
		TokenDelta  *big.Int
		PriceBefore *big.Int
		PriceAfter  *big.Int
		SupplyAfter *big.Int
		Timestamp   *big.Int
	}
	if err := d.curveABI.UnpackIntoInterface(&nonIndexed, "Trade", raw.Data); err != nil {
		return nil, &DecodeError{Event: "Trade", Err: err}
	}

	direction := valuemodel.DirectionSell
	if isBuy {
		direction = valuemodel.DirectionBuy
	}

	token, _ := d.curves.TokenFor(raw.Address)

	return events.TradeDecoded{Trade: models.Trade{
		Token:       token,
		Curve:       raw.Address,
		User:        user,
		Direction:   direction,
		TokenAmount: valuemodel.DecimalFromWei(nonIndexed.TokenDelta),
		EthAmount:   valuemodel.DecimalFromWei(nonIndexed.EthInOrOut),
		PriceBefore: valuemodel.DecimalFromWei(nonIndexed.PriceBefore),
		PriceAfter:  valuemodel.DecimalFromWei(nonIndexed.PriceAfter),
		TotalSupply: valuemodel.DecimalFromWei(nonIndexed.SupplyAfter),
		Block:       valuemodel.BlockInfo{Number: raw.BlockNumber, Hash: raw.BlockHash},
		Tx:          raw.TxHash,
		LogIndex:    raw.LogIndex,
		Ts:          time.Unix(nonIndexed.Timestamp.Int64(), 0).UTC(),
	}}, nil
}

// decodeTokensPurchased canonicalizes TokensPurchased to a Trade with
// price_before=0 and total_supply=0 (unknown), per the zero-sentinel
// policy this pipeline uses for the purchase/sale events, which carry no
// price-before or supply field.
func (d *Decoder) decodeTokensPurchased(raw models.RawLog) (events.PipelineEvent, error) {
	if len(raw.Topics) < 2 {
		return nil, &DecodeError{Event: "TokensPurchased", Err: fmt.Errorf("expected 1 indexed topic, got %d", len(raw.Topics)-1)}
	}
	buyer := addressFromTopic(raw.Topics[1])

	var nonIndexed struct {
		TokensReceived *big.Int
		EthSpent       *big.Int
		PlatformFee    *big.Int
		CreatorFee     *big.Int
		NewPrice       *big.Int
	}
	if err := d.curveABI.UnpackIntoInterface(&nonIndexed, "TokensPurchased", raw.Data); err != nil {
		return nil, &DecodeError{Event: "TokensPurchased", Err: err}
	}

	token, _ := d.curves.TokenFor(raw.Address)

	return events.TradeDecoded{Trade: models.Trade{
		Token:       token,
		Curve:       raw.Address,
		User:        buyer,
		Direction:   valuemodel.DirectionBuy,
		TokenAmount: valuemodel.DecimalFromWei(nonIndexed.TokensReceived),
		EthAmount:   valuemodel.DecimalFromWei(nonIndexed.EthSpent),
		PriceBefore: decimal.Zero,
		PriceAfter:  valuemodel.DecimalFromWei(nonIndexed.NewPrice),
		TotalSupply: decimal.Zero,
		Block:       valuemodel.BlockInfo{Number: raw.BlockNumber, Hash: raw.BlockHash},
		Tx:          raw.TxHash,
		LogIndex:    raw.LogIndex,
		Ts:          time.Now().UTC(),
	}}, nil
}

func (d *Decoder) decodeTokensSold(raw models.RawLog) (events.PipelineEvent, error) {
	if len(raw.Topics) < 2 {
		return nil, &DecodeError{Event: "TokensSold", Err: fmt.Errorf("expected 1 indexed topic, got %d", len(raw.Topics)-1)}
	}
	seller := addressFromTopic(raw.Topics[1])

	var nonIndexed struct {
		TokenAmount *big.Int
		EthReceived *big.Int
		PlatformFee *big.Int
		CreatorFee  *big.Int
		NewPrice    *big.Int
	}
	if err := d.curveABI.UnpackIntoInterface(&nonIndexed, "TokensSold", raw.Data); err != nil {
		return nil, &DecodeError{Event: "TokensSold", Err: err}
	}

	token, _ := d.curves.TokenFor(raw.Address)

	return events.TradeDecoded{Trade: models.Trade{
		Token:       token,
		Curve:       raw.Address,
		User:        seller,
		Direction:   valuemodel.DirectionSell,
		TokenAmount: valuemodel.DecimalFromWei(nonIndexed.TokenAmount),
		EthAmount:   valuemodel.DecimalFromWei(nonIndexed.EthReceived),
		PriceBefore: decimal.Zero,
		PriceAfter:  valuemodel.DecimalFromWei(nonIndexed.NewPrice),
		TotalSupply: decimal.Zero,
		Block:       valuemodel.BlockInfo{Number: raw.BlockNumber, Hash: raw.BlockHash},
		Tx:          raw.TxHash,
		LogIndex:    raw.LogIndex,
		Ts:          time.Now().UTC(),
	}}, nil
}

func (d *Decoder) decodeReadyForDEX(raw models.RawLog) (events.PipelineEvent, error) {
	var nonIndexed struct {
		McapOrReserves *big.Int
		Timestamp      *big.Int
	}
	if err := d.curveABI.UnpackIntoInterface(&nonIndexed, "ReadyForDEX", raw.Data); err != nil {
		return nil, &DecodeError{Event: "ReadyForDEX", Err: err}
	}

	token, _ := d.curves.TokenFor(raw.Address)

	return events.CurveReadyForDEX{
		Token: token,
		Curve: raw.Address,
		At:    time.Unix(nonIndexed.Timestamp.Int64(), 0).UTC(),
	}, nil
}

func (d *Decoder) decodeMigrationCompleted(raw models.RawLog) (events.PipelineEvent, error) {
	if len(raw.Topics) < 2 {
		return nil, &DecodeError{Event: "MigrationCompleted", Err: fmt.Errorf("expected 1 indexed topic, got %d", len(raw.Topics)-1)}
	}

	var nonIndexed struct {
		TokenId   *big.Int
		EthUsed   *big.Int
		TokenUsed *big.Int
		Timestamp *big.Int
	}
	if err := d.curveABI.UnpackIntoInterface(&nonIndexed, "MigrationCompleted", raw.Data); err != nil {
		return nil, &DecodeError{Event: "MigrationCompleted", Err: err}
	}

	token, _ := d.curves.TokenFor(raw.Address)

	return events.CurveMigrated{
		Token: token,
		Curve: raw.Address,
		At:    time.Unix(nonIndexed.Timestamp.Int64(), 0).UTC(),
	}, nil
}

func addressFromTopic(topic [32]byte) valuemodel.Address {
	addr, _ := valuemodel.ParseAddress(common.BytesToAddress(topic[12:]).Hex())
	return addr
}
