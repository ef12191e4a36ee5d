// Package indicators provides technical indicator calculations over price series.
package indicators

import (
	"okx-scanner/internal/models"
)

// Indicator defines the interface for single-value technical indicators.
type Indicator interface {
	Name() string
	Calculate(candles []models.Candle) ([]float64, error)
	Period() int
}

// Engine evaluates a fixed set of indicators and reports their latest values.
type Engine struct {
	indicators []Indicator
}

// NewEngine creates an engine over the given indicators.
func NewEngine(inds ...Indicator) *Engine {
	return &Engine{indicators: inds}
}

// Indicators returns the registered indicators in registration order.
func (e *Engine) Indicators() []Indicator {
	return e.indicators
}

// Snapshot calculates every indicator and returns the final value of each,
// keyed by indicator name.
func (e *Engine) Snapshot(candles []models.Candle) (map[string]float64, error) {
	out := make(map[string]float64, len(e.indicators))
	for _, ind := range e.indicators {
		v, err := Latest(ind, candles)
		if err != nil {
			return nil, err
		}
		out[ind.Name()] = v
	}
	return out, nil
}

// Latest calculates a single indicator and returns its final value.
func Latest(ind Indicator, candles []models.Candle) (float64, error) {
	values, err := ind.Calculate(candles)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, ErrInsufficientData
	}
	return values[len(values)-1], nil
}
