package strategy

import (
	"fmt"
	"math"
	"strings"

	"okx-scanner/internal/analysis/indicators"
	"okx-scanner/internal/analysis/patterns"
	apperrors "okx-scanner/internal/errors"
	"okx-scanner/internal/models"
)

// EMAValues maps an EMA period to its latest value on one timeframe.
type EMAValues map[int]float64

// TrendRule classifies the higher timeframe trend from EMA values.
type TrendRule interface {
	// Periods lists the EMA periods the rule needs, fastest first.
	Periods() []int
	Classify(price float64, base, trend EMAValues) models.Trend
	Describe(trend models.Trend) string
}

// FastTrend is a two-EMA rule: up when the fast EMA is above the slow EMA
// on the trend timeframe.
type FastTrend struct {
	Fast int
	Slow int
}

func (r FastTrend) Periods() []int {
	return []int{r.Fast, r.Slow}
}

func (r FastTrend) Classify(_ float64, _ EMAValues, trend EMAValues) models.Trend {
	switch {
	case trend[r.Fast] > trend[r.Slow]:
		return models.TrendUp
	case trend[r.Fast] < trend[r.Slow]:
		return models.TrendDown
	default:
		return models.TrendNeutral
	}
}

func (r FastTrend) Describe(trend models.Trend) string {
	switch trend {
	case models.TrendUp:
		return fmt.Sprintf("trend_up(EMA%d>EMA%d)", r.Fast, r.Slow)
	case models.TrendDown:
		return fmt.Sprintf("trend_down(EMA%d<EMA%d)", r.Fast, r.Slow)
	default:
		return fmt.Sprintf("trend_unclear(EMA%d≈EMA%d)", r.Fast, r.Slow)
	}
}

// TripleEMATrend requires fast > mid > slow on the trend timeframe and the
// base price at or above the fast base EMA; down is the mirror.
type TripleEMATrend struct {
	Fast int
	Mid  int
	Slow int
}

func (r TripleEMATrend) Periods() []int {
	return []int{r.Fast, r.Mid, r.Slow}
}

func (r TripleEMATrend) Classify(price float64, base, trend EMAValues) models.Trend {
	f, m, s := trend[r.Fast], trend[r.Mid], trend[r.Slow]
	switch {
	case f > m && m > s && price >= base[r.Fast]:
		return models.TrendUp
	case f < m && m < s && price <= base[r.Fast]:
		return models.TrendDown
	default:
		return models.TrendNeutral
	}
}

func (r TripleEMATrend) Describe(trend models.Trend) string {
	switch trend {
	case models.TrendUp:
		return fmt.Sprintf("trend_up EMA%d>%d>%d", r.Fast, r.Mid, r.Slow)
	case models.TrendDown:
		return fmt.Sprintf("trend_down EMA%d<%d<%d", r.Fast, r.Mid, r.Slow)
	default:
		return "trend_neutral_or_mixed"
	}
}

// StopContext is the price context a stop rule works from.
type StopContext struct {
	Price float64
	ATR   float64
	Zone  *models.Zone
	Highs []float64
	Lows  []float64
}

// StopRule places the protective stop for a side.
type StopRule interface {
	Name() string
	Long(ctx StopContext) float64
	Short(ctx StopContext) float64
}

// StructureATRStop takes the wider of the recent extreme and one ATR from price.
type StructureATRStop struct {
	Lookback int
}

func (StructureATRStop) Name() string { return "structure-atr" }

func (r StructureATRStop) Long(ctx StopContext) float64 {
	return math.Min(indicators.Lowest(indicators.Tail(ctx.Lows, r.Lookback)), ctx.Price-ctx.ATR)
}

func (r StructureATRStop) Short(ctx StopContext) float64 {
	return math.Max(indicators.Highest(indicators.Tail(ctx.Highs, r.Lookback)), ctx.Price+ctx.ATR)
}

// ZoneWidestStop takes the widest of the zone's outer edge, the recent
// extreme and one ATR from price. A missing zone drops that candidate.
type ZoneWidestStop struct {
	Lookback int
}

func (ZoneWidestStop) Name() string { return "zone-widest" }

func (r ZoneWidestStop) Long(ctx StopContext) float64 {
	stop := StructureATRStop(r).Long(ctx)
	if ctx.Zone != nil {
		stop = math.Min(stop, ctx.Zone.Lo)
	}
	return stop
}

func (r ZoneWidestStop) Short(ctx StopContext) float64 {
	stop := StructureATRStop(r).Short(ctx)
	if ctx.Zone != nil {
		stop = math.Max(stop, ctx.Zone.Hi)
	}
	return stop
}

// Policy bundles a trend rule with its entry gates and level placement.
type Policy struct {
	Name    string
	Version string
	Trend   TrendRule
	// AllowStructureBreak accepts a close beyond the last swing as an
	// alternative to being inside the key zone.
	AllowStructureBreak bool
	LongConfirm         []string
	ShortConfirm        []string
	Stop                StopRule
	// InvalidationPeriod selects the base EMA used as invalidation.
	InvalidationPeriod int
}

// FastPeriod returns the fastest EMA period of the policy.
func (p *Policy) FastPeriod() int {
	return p.Trend.Periods()[0]
}

// Policy names.
const (
	PolicyPanda  = "panda"
	PolicyCustom = "custom"
)

// PandaPolicy is the fast two-EMA policy (EMA20/EMA50).
func PandaPolicy() *Policy {
	return &Policy{
		Name:                PolicyPanda,
		Version:             "panda-164-165.v2",
		Trend:               FastTrend{Fast: 20, Slow: 50},
		AllowStructureBreak: true,
		LongConfirm: []string{
			patterns.BullishEngulfing, patterns.BullishPinBar, patterns.Piercing, patterns.ThreeWhiteSoldiers,
		},
		ShortConfirm: []string{
			patterns.BearishEngulfing, patterns.BearishPinBar, patterns.DarkCloudCover, patterns.ThreeBlackCrows,
		},
		Stop:               StructureATRStop{Lookback: 5},
		InvalidationPeriod: 50,
	}
}

// CustomPolicy is the intraday triple-EMA policy (EMA21/55/144).
func CustomPolicy() *Policy {
	return &Policy{
		Name:               PolicyCustom,
		Version:            "custom-intraday-ema21-55-144.v1",
		Trend:              TripleEMATrend{Fast: 21, Mid: 55, Slow: 144},
		LongConfirm:        []string{patterns.BullishEngulfing, patterns.BullishPinBar},
		ShortConfirm:       []string{patterns.BearishEngulfing, patterns.BearishPinBar},
		Stop:               ZoneWidestStop{Lookback: 5},
		InvalidationPeriod: 55,
	}
}

// PolicyByName resolves a policy by name. "fast" and "triple" are accepted
// as aliases.
func PolicyByName(name string) (*Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PolicyPanda, "fast":
		return PandaPolicy(), nil
	case PolicyCustom, "triple":
		return CustomPolicy(), nil
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownPolicy, name)
	}
}

// PolicyNames lists the registered policy names.
func PolicyNames() []string {
	return []string{PolicyPanda, PolicyCustom}
}
