// Package patterns provides candlestick pattern detection.
package patterns

import (
	"math"

	"okx-scanner/internal/analysis"
	"okx-scanner/internal/models"
)

// Pattern names reported by the detector.
const (
	BullishEngulfing   = "Bullish Engulfing"
	BearishEngulfing   = "Bearish Engulfing"
	InsideBar          = "Inside Bar"
	OutsideBar         = "Outside Bar"
	BullishPinBar      = "Bullish PinBar"
	BearishPinBar      = "Bearish PinBar"
	Piercing           = "Piercing"
	DarkCloudCover     = "Dark Cloud Cover"
	ThreeWhiteSoldiers = "Three White Soldiers"
	ThreeBlackCrows    = "Three Black Crows"
)

// Fixed ratios shared by every caller.
const (
	pinWickToBody   = 2.0
	pinCloseRange   = 0.6
	piercingOpenPos = 0.2
	darkCloudOpen   = 0.8
	minRange        = 1e-9
)

func bodySize(c models.Candle) float64 {
	return math.Abs(c.Close - c.Open)
}

func candleRange(c models.Candle) float64 {
	return math.Max(c.High-c.Low, minRange)
}

func upperShadow(c models.Candle) float64 {
	return c.High - math.Max(c.Open, c.Close)
}

func lowerShadow(c models.Candle) float64 {
	return math.Min(c.Open, c.Close) - c.Low
}

// IsBullishEngulfing reports a bearish candle followed by a bullish candle
// whose body covers it.
func IsBullishEngulfing(prev, curr models.Candle) bool {
	return prev.IsBearish() && curr.IsBullish() &&
		curr.Open <= prev.Close && curr.Close >= prev.Open
}

// IsBearishEngulfing reports a bullish candle followed by a bearish candle
// whose body covers it.
func IsBearishEngulfing(prev, curr models.Candle) bool {
	return prev.IsBullish() && curr.IsBearish() &&
		curr.Open >= prev.Close && curr.Close <= prev.Open
}

// IsInsideBar reports a candle whose range sits within the previous one.
func IsInsideBar(prev, curr models.Candle) bool {
	return curr.High <= prev.High && curr.Low >= prev.Low
}

// IsOutsideBar reports a candle whose range covers the previous one.
func IsOutsideBar(prev, curr models.Candle) bool {
	return curr.High >= prev.High && curr.Low <= prev.Low
}

// IsBullishPinBar reports a bullish candle with a lower wick over twice the
// body that closes in the top 40% of its range.
func IsBullishPinBar(c models.Candle) bool {
	return c.IsBullish() &&
		lowerShadow(c) > pinWickToBody*bodySize(c) &&
		c.Close > c.Low+pinCloseRange*candleRange(c)
}

// IsBearishPinBar reports a bearish candle with an upper wick over twice the
// body that closes in the bottom 40% of its range.
func IsBearishPinBar(c models.Candle) bool {
	return c.IsBearish() &&
		upperShadow(c) > pinWickToBody*bodySize(c) &&
		c.Close < c.High-pinCloseRange*candleRange(c)
}

// IsPiercing reports a bullish candle opening near its low after a bearish
// candle and closing above the prior body's midpoint.
func IsPiercing(prev, curr models.Candle) bool {
	return prev.IsBearish() && curr.IsBullish() &&
		curr.Open < curr.Low+piercingOpenPos*(curr.High-curr.Low) &&
		curr.Close > (prev.Open+prev.Close)/2
}

// IsDarkCloudCover mirrors IsPiercing for a bearish reversal.
func IsDarkCloudCover(prev, curr models.Candle) bool {
	return prev.IsBullish() && curr.IsBearish() &&
		curr.Open > curr.Low+darkCloudOpen*(curr.High-curr.Low) &&
		curr.Close < (prev.Open+prev.Close)/2
}

// IsThreeWhiteSoldiers reports three bullish candles with strictly rising closes.
func IsThreeWhiteSoldiers(a, b, c models.Candle) bool {
	return a.IsBullish() && b.IsBullish() && c.IsBullish() &&
		a.Close < b.Close && b.Close < c.Close
}

// IsThreeBlackCrows reports three bearish candles with strictly falling closes.
func IsThreeBlackCrows(a, b, c models.Candle) bool {
	return a.IsBearish() && b.IsBearish() && c.IsBearish() &&
		a.Close > b.Close && b.Close > c.Close
}

// CandlestickDetector detects candlestick patterns on the most recent candles.
type CandlestickDetector struct{}

// NewCandlestickDetector creates a new candlestick pattern detector.
func NewCandlestickDetector() *CandlestickDetector {
	return &CandlestickDetector{}
}

func (d *CandlestickDetector) Name() string {
	return "CandlestickDetector"
}

// Detect reports the patterns that fire on the latest one, two or three
// candles, in a fixed order.
func (d *CandlestickDetector) Detect(candles []models.Candle) ([]analysis.Pattern, error) {
	n := len(candles)
	if n == 0 {
		return nil, nil
	}

	var found []analysis.Pattern
	add := func(name string, dir analysis.PatternDirection, span int) {
		found = append(found, analysis.Pattern{
			Name:       name,
			Type:       analysis.PatternTypeCandlestick,
			Direction:  dir,
			StartIndex: n - span,
			EndIndex:   n - 1,
		})
	}

	last := candles[n-1]
	if n >= 2 {
		prev := candles[n-2]
		if IsBullishEngulfing(prev, last) {
			add(BullishEngulfing, analysis.PatternBullish, 2)
		}
		if IsBearishEngulfing(prev, last) {
			add(BearishEngulfing, analysis.PatternBearish, 2)
		}
		if IsInsideBar(prev, last) {
			add(InsideBar, analysis.PatternNeutral, 2)
		}
		if IsOutsideBar(prev, last) {
			add(OutsideBar, analysis.PatternNeutral, 2)
		}
	}
	if IsBullishPinBar(last) {
		add(BullishPinBar, analysis.PatternBullish, 1)
	}
	if IsBearishPinBar(last) {
		add(BearishPinBar, analysis.PatternBearish, 1)
	}
	if n >= 2 {
		prev := candles[n-2]
		if IsPiercing(prev, last) {
			add(Piercing, analysis.PatternBullish, 2)
		}
		if IsDarkCloudCover(prev, last) {
			add(DarkCloudCover, analysis.PatternBearish, 2)
		}
	}
	if n >= 3 {
		a, b := candles[n-3], candles[n-2]
		if IsThreeWhiteSoldiers(a, b, last) {
			add(ThreeWhiteSoldiers, analysis.PatternBullish, 3)
		}
		if IsThreeBlackCrows(a, b, last) {
			add(ThreeBlackCrows, analysis.PatternBearish, 3)
		}
	}

	return found, nil
}
