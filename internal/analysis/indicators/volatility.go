package indicators

import (
	"fmt"

	"okx-scanner/internal/models"
)

// DefaultATRPeriod is the lookback used for stops, targets and zone widths.
const DefaultATRPeriod = 14

// ATRSeries returns the average true range. Indices below period hold the
// running mean of true range; after that the series uses Wilder smoothing.
func ATRSeries(high, low, close []float64, period int) []float64 {
	n := min(len(high), len(low), len(close))
	if n == 0 {
		return []float64{}
	}
	if period < 1 {
		period = 1
	}

	p := float64(period)
	out := make([]float64, n)
	var sum float64
	for i := 0; i < n; i++ {
		tr := trueRangeAt(high, low, close, i)
		if i < period {
			sum += tr
			out[i] = sum / float64(i+1)
			continue
		}
		out[i] = out[i-1]*(p-1)/p + tr/p
	}
	return out
}

// ATR calculates the Average True Range.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR_%d", a.period)
}

func (a *ATR) Period() int {
	return a.period
}

func (a *ATR) Calculate(candles []models.Candle) ([]float64, error) {
	if a.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) == 0 {
		return nil, ErrInsufficientData
	}
	return ATRSeries(HighPrices(candles), LowPrices(candles), ClosePrices(candles), a.period), nil
}
