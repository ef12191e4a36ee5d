// Package strategy turns candle series into trade signals.
package strategy

import (
	"fmt"
	"slices"

	"okx-scanner/internal/analysis"
	"okx-scanner/internal/analysis/indicators"
	"okx-scanner/internal/analysis/patterns"
	"okx-scanner/internal/analysis/zones"
	"okx-scanner/internal/models"
	"okx-scanner/internal/risk"
	"okx-scanner/pkg/utils"
)

// MinCandles is the minimum series length on each timeframe.
const MinCandles = 50

// Fixed level multipliers.
const (
	entryZoneATR  = 0.25
	takeProfitATR = 2.0
)

// Flat reasons for the early exits.
const (
	ReasonInsufficient = "insufficient candles"
	reasonNeutral      = "trend_neutral_or_mixed"
	reasonExcludedFmt  = "excluded by policy (%s)"
)

// Request is the input of one evaluation.
type Request struct {
	InstID   string
	Bar      string
	TrendBar string
	Base     *models.CandleSeries
	Trend    *models.CandleSeries
	Sizing   risk.Params
	// Exclude applies the exclusion rules.
	Exclude bool
}

// Engine evaluates requests under one policy. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	policy    *Policy
	sizer     *risk.Sizer
	exclusion Exclusion
	detector  analysis.PatternDetector
	emas      *indicators.Engine
}

// Option configures an Engine.
type Option func(*Engine)

// WithExclusion replaces the default exclusion rules.
func WithExclusion(x Exclusion) Option {
	return func(e *Engine) { e.exclusion = x }
}

// WithSizer replaces the default position sizer.
func WithSizer(s *risk.Sizer) Option {
	return func(e *Engine) { e.sizer = s }
}

// NewEngine creates an engine for the given policy.
func NewEngine(policy *Policy, opts ...Option) *Engine {
	periods := policy.Trend.Periods()
	inds := make([]indicators.Indicator, 0, len(periods)+1)
	for _, p := range periods {
		inds = append(inds, indicators.NewEMA(p))
	}
	if !slices.Contains(periods, policy.InvalidationPeriod) {
		inds = append(inds, indicators.NewEMA(policy.InvalidationPeriod))
	}

	e := &Engine{
		policy:    policy,
		sizer:     risk.NewSizer(0),
		exclusion: DefaultExclusion(),
		detector:  patterns.NewCandlestickDetector(),
		emas:      indicators.NewEngine(inds...),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the engine's policy.
func (e *Engine) Policy() *Policy {
	return e.policy
}

// Excluded reports whether instID is skipped by the exclusion rules.
func (e *Engine) Excluded(instID string) bool {
	_, ok := e.exclusion.Match(instID)
	return ok
}

// Evaluate produces a signal. It never fails: excluded instruments and
// short series come back as flat signals with a reason.
func (e *Engine) Evaluate(req Request) models.Signal {
	sig := models.Signal{
		InstID:     req.InstID,
		Bar:        req.Bar,
		TrendBar:   req.TrendBar,
		Policy:     e.policy.Name,
		Version:    e.policy.Version,
		Side:       models.SideFlat,
		Indicators: map[string]float64{},
		Diagnostics: models.Diagnostics{
			Trend:    models.TrendNeutral,
			Patterns: []string{},
		},
		Reasoning: []string{},
	}

	if req.Exclude {
		if rule, ok := e.exclusion.Match(req.InstID); ok {
			return e.flat(sig, req, fmt.Sprintf(reasonExcludedFmt, rule))
		}
	}

	base := req.Base.Candles()
	trend := req.Trend.Candles()
	if len(base) < MinCandles || len(trend) < MinCandles {
		return e.flat(sig, req, ReasonInsufficient)
	}

	highs := indicators.HighPrices(base)
	lows := indicators.LowPrices(base)
	closes := indicators.ClosePrices(base)
	price := closes[len(closes)-1]
	atr := indicators.Last(indicators.ATRSeries(highs, lows, closes, indicators.DefaultATRPeriod))

	baseEMA := e.emaValues(base)
	trendEMA := e.emaValues(trend)
	for p, v := range baseEMA {
		sig.Indicators[fmt.Sprintf("ema%d_b", p)] = utils.Round6(v)
	}
	for p, v := range trendEMA {
		sig.Indicators[fmt.Sprintf("ema%d_t", p)] = utils.Round6(v)
	}
	sig.Indicators["atr14"] = utils.Round6(atr)
	sig.Indicators["price"] = utils.Round6(price)

	tr := e.policy.Trend.Classify(price, baseEMA, trendEMA)
	kz := zones.KeyZones(highs, lows, atr)
	found, _ := e.detector.Detect(base)
	names := analysis.PatternNames(found)

	diag := models.Diagnostics{
		Trend:          tr,
		LongZone:       roundZone(kz.Long),
		ShortZone:      roundZone(kz.Short),
		InLongZone:     zones.InZone(price, kz.Long),
		InShortZone:    zones.InZone(price, kz.Short),
		SwingHigh:      utils.Round6Ptr(kz.Swings.High),
		SwingLow:       utils.Round6Ptr(kz.Swings.Low),
		BreakHigh:      kz.Swings.High != nil && price > *kz.Swings.High,
		BreakLow:       kz.Swings.Low != nil && price < *kz.Swings.Low,
		Patterns:       append([]string{}, names...),
		LongConfirmed:  anyOf(names, e.policy.LongConfirm),
		ShortConfirmed: anyOf(names, e.policy.ShortConfirm),
	}
	sig.Diagnostics = diag
	sig.Price = utils.Round6(price)

	side, reasoning := e.decide(diag)
	sig.Side = side
	sig.Reasoning = reasoning

	var entryZone *models.Zone
	var stop *float64
	if side != models.SideFlat {
		invalidation := baseEMA[e.policy.InvalidationPeriod]
		sig.Invalidation = utils.Round6Ptr(&invalidation)

		fast := baseEMA[e.policy.FastPeriod()]
		entryZone = &models.Zone{Lo: fast - entryZoneATR*atr, Hi: fast + entryZoneATR*atr}

		sctx := StopContext{Price: price, ATR: atr, Highs: highs, Lows: lows}
		var s, tp float64
		if side == models.SideLong {
			sctx.Zone = kz.Long
			s = e.policy.Stop.Long(sctx)
			tp = price + takeProfitATR*atr
		} else {
			sctx.Zone = kz.Short
			s = e.policy.Stop.Short(sctx)
			tp = price - takeProfitATR*atr
		}
		stop = &s
		sig.StopLoss = utils.Round6Ptr(&s)
		sig.TakeProfit = utils.Round6Ptr(&tp)
	} else if len(reasoning) > 0 {
		sig.Reason = reasoning[len(reasoning)-1]
	}

	in := risk.Input{Side: side, Price: price, EntryZone: entryZone, StopLoss: stop, ATR: atr}
	sig.EntryZone = roundZone(entryZone)
	sig.EntryPrice = utils.Round6(in.EntryPrice())
	sig.Risk = e.sizer.Size(req.Sizing, in)
	return sig
}

// decide runs the trend, location and confirmation gates and returns the
// side with the trail of gates it passed or failed.
func (e *Engine) decide(d models.Diagnostics) (models.Side, []string) {
	trail := []string{e.policy.Trend.Describe(d.Trend)}

	switch d.Trend {
	case models.TrendUp:
		switch {
		case d.InLongZone:
			trail = append(trail, "near long key zone")
		case e.policy.AllowStructureBreak && d.BreakHigh:
			trail = append(trail, "break of structure above swing high")
		case e.policy.AllowStructureBreak:
			return models.SideFlat, append(trail, "not_in_long_zone", "no_structure_break")
		default:
			return models.SideFlat, append(trail, "not_in_long_zone")
		}
		if !d.LongConfirmed {
			return models.SideFlat, append(trail, "no_candle_confirmation")
		}
		return models.SideLong, append(trail, "bullish confirm")

	case models.TrendDown:
		switch {
		case d.InShortZone:
			trail = append(trail, "near short key zone")
		case e.policy.AllowStructureBreak && d.BreakLow:
			trail = append(trail, "break of structure below swing low")
		case e.policy.AllowStructureBreak:
			return models.SideFlat, append(trail, "not_in_short_zone", "no_structure_break")
		default:
			return models.SideFlat, append(trail, "not_in_short_zone")
		}
		if !d.ShortConfirmed {
			return models.SideFlat, append(trail, "no_candle_confirmation")
		}
		return models.SideShort, append(trail, "bearish confirm")

	default:
		if trail[0] != reasonNeutral {
			trail = append(trail, reasonNeutral)
		}
		return models.SideFlat, trail
	}
}

func (e *Engine) flat(sig models.Signal, req Request, reason string) models.Signal {
	sig.Side = models.SideFlat
	sig.Reason = reason
	sig.Reasoning = []string{reason}
	sig.Risk = e.sizer.Empty(req.Sizing)
	return sig
}

func (e *Engine) emaValues(candles []models.Candle) EMAValues {
	snap, err := e.emas.Snapshot(candles)
	out := make(EMAValues, len(e.emas.Indicators()))
	if err != nil {
		return out
	}
	for _, ind := range e.emas.Indicators() {
		out[ind.Period()] = snap[ind.Name()]
	}
	return out
}

func roundZone(z *models.Zone) *models.Zone {
	if z == nil {
		return nil
	}
	return &models.Zone{Lo: utils.Round6(z.Lo), Hi: utils.Round6(z.Hi)}
}

func anyOf(found, wanted []string) bool {
	for _, name := range found {
		if slices.Contains(wanted, name) {
			return true
		}
	}
	return false
}
