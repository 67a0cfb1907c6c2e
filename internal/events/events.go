// Package events defines the typed pipeline events: a sealed Go
// interface standing in for a sum type, carrying decoded chain activity
// from the Chain Client/Decoder to the supervisor's dispatch loop.
package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/0x-minds/0xpads-listener/internal/models"
	"github.com/0x-minds/0xpads-listener/internal/valuemodel"
)

// PipelineEvent is implemented only by the variants in this package; the
// unexported method seals the set so a switch over the concrete type can
// be exhaustive.
type PipelineEvent interface {
	pipelineEvent()
	OccurredAt() time.Time
}

// TradeDecoded carries one accepted buy/sell against a bonding curve.
type TradeDecoded struct {
	Trade models.Trade
}

func (TradeDecoded) pipelineEvent()          {}
func (e TradeDecoded) OccurredAt() time.Time { return e.Trade.Ts }

// CurveDeployed carries a newly discovered bonding curve, from either
// initial factory discovery or a decoded BondingCurveDeployed log.
type CurveDeployed struct {
	Curve models.BondingCurve
	At    time.Time
}

func (CurveDeployed) pipelineEvent()          {}
func (e CurveDeployed) OccurredAt() time.Time { return e.At }

// CreatorApproved marks a creator being whitelisted on the factory.
type CreatorApproved struct {
	Creator valuemodel.Address
	At      time.Time
}

func (CreatorApproved) pipelineEvent()          {}
func (e CreatorApproved) OccurredAt() time.Time { return e.At }

// CreatorRevoked marks a creator losing factory approval.
type CreatorRevoked struct {
	Creator valuemodel.Address
	At      time.Time
}

func (CreatorRevoked) pipelineEvent()          {}
func (e CreatorRevoked) OccurredAt() time.Time { return e.At }

// MilestoneReached marks a curve crossing a vesting milestone level.
type MilestoneReached struct {
	Token        valuemodel.Address
	Curve        valuemodel.Address
	Level        uint64
	ReserveEth   decimal.Decimal
	VestedTokens decimal.Decimal
	At           time.Time
}

func (MilestoneReached) pipelineEvent()          {}
func (e MilestoneReached) OccurredAt() time.Time { return e.At }

// CurveReadyForDEX marks a curve transitioning out of Active.
type CurveReadyForDEX struct {
	Token valuemodel.Address
	Curve valuemodel.Address
	At    time.Time
}

func (CurveReadyForDEX) pipelineEvent()          {}
func (e CurveReadyForDEX) OccurredAt() time.Time { return e.At }

// CurveMigrated marks a curve's terminal migration-complete transition.
type CurveMigrated struct {
	Token valuemodel.Address
	Curve valuemodel.Address
	At    time.Time
}

func (CurveMigrated) pipelineEvent()          {}
func (e CurveMigrated) OccurredAt() time.Time { return e.At }
