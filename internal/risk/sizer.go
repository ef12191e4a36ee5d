// Package risk converts signals into bounded position sizes.
package risk

import (
	"math"

	"okx-scanner/internal/models"
	"okx-scanner/pkg/utils"
)

const eps = 1e-9

// Params holds the account inputs for sizing.
type Params struct {
	CapitalTotal float64
	Split        int
	Leverage     float64
	RiskPercent  float64
}

// DefaultParams returns the sizing defaults used by the service.
func DefaultParams() Params {
	return Params{
		CapitalTotal: 694,
		Split:        7,
		Leverage:     5,
		RiskPercent:  2,
	}
}

// Input is the price context of one signal.
type Input struct {
	Side  models.Side
	Price float64
	// EntryZone is optional; its midpoint is the entry estimate.
	EntryZone *models.Zone
	// StopLoss is optional; ATR is the per-unit risk without it.
	StopLoss *float64
	ATR      float64
}

// EntryPrice returns the entry estimate for the input.
func (in Input) EntryPrice() float64 {
	if in.EntryZone != nil {
		return in.EntryZone.Mid()
	}
	return in.Price
}

// Sizer computes positions capped by both the risk budget and the margin
// budget. MaxRiskPercent, when positive, caps the requested risk.
type Sizer struct {
	MaxRiskPercent float64
}

// NewSizer creates a sizer with an optional risk percent ceiling.
func NewSizer(maxRiskPercent float64) *Sizer {
	return &Sizer{MaxRiskPercent: maxRiskPercent}
}

// Size returns the sizing plan. The quantity is zero for flat signals.
func (s *Sizer) Size(p Params, in Input) models.RiskPlan {
	riskPct := s.riskPercent(p)

	split := max(1, p.Split)
	marginCap := p.CapitalTotal / float64(split)
	notionalCap := marginCap * math.Max(1, p.Leverage)

	riskPerUnit := in.ATR
	if in.StopLoss != nil {
		riskPerUnit = math.Abs(in.EntryPrice() - *in.StopLoss)
	}

	qtyByRisk := p.CapitalTotal * riskPct / 100 / math.Max(riskPerUnit, eps)
	qtyByMargin := notionalCap / math.Max(in.Price, eps)

	qty := 0.0
	if in.Side != models.SideFlat {
		qty = math.Max(0, math.Min(qtyByRisk, qtyByMargin))
	}

	return models.RiskPlan{
		CapitalTotal: p.CapitalTotal,
		Split:        split,
		Leverage:     p.Leverage,
		RiskPercent:  riskPct,
		MarginCap:    utils.Round6(marginCap),
		NotionalCap:  utils.Round6(notionalCap),
		RiskPerUnit:  utils.Round6(riskPerUnit),
		QtyByRisk:    utils.Round6(qtyByRisk),
		QtyByMargin:  utils.Round6(qtyByMargin),
		Quantity:     utils.Round6(qty),
	}
}

// Empty returns a plan carrying only the account inputs, for signals that
// were never priced.
func (s *Sizer) Empty(p Params) models.RiskPlan {
	return models.RiskPlan{
		CapitalTotal: p.CapitalTotal,
		Split:        max(1, p.Split),
		Leverage:     p.Leverage,
		RiskPercent:  s.riskPercent(p),
	}
}

// riskPercent is the requested risk limited by MaxRiskPercent.
func (s *Sizer) riskPercent(p Params) float64 {
	if s != nil && s.MaxRiskPercent > 0 && p.RiskPercent > s.MaxRiskPercent {
		return s.MaxRiskPercent
	}
	return p.RiskPercent
}
