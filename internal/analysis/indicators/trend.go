package indicators

import (
	"fmt"

	"okx-scanner/internal/models"
)

// EMASeries returns the exponential moving average of values, seeded by the
// first value. The output has the same length as the input. Periods below 1
// are treated as 1. Inputs shorter than the period are not an error; the
// tail is simply less converged.
func EMASeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return []float64{}
	}
	if period < 1 {
		period = 1
	}

	k := 2.0 / float64(period+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// EMA calculates Exponential Moving Average over candle closes.
type EMA struct {
	period int
}

// NewEMA creates a new EMA indicator.
func NewEMA(period int) *EMA {
	return &EMA{period: period}
}

func (e *EMA) Name() string {
	return fmt.Sprintf("EMA_%d", e.period)
}

func (e *EMA) Period() int {
	return e.period
}

func (e *EMA) Calculate(candles []models.Candle) ([]float64, error) {
	if e.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) == 0 {
		return nil, ErrInsufficientData
	}
	return EMASeries(ClosePrices(candles), e.period), nil
}
