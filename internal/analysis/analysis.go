// Package analysis provides technical analysis building blocks: indicators,
// candlestick patterns and key price zones.
package analysis

import (
	"okx-scanner/internal/models"
)

// PatternDetector defines the interface for pattern detection.
type PatternDetector interface {
	Name() string
	Detect(candles []models.Candle) ([]Pattern, error)
}

// Pattern represents a detected candlestick pattern.
type Pattern struct {
	Name       string
	Type       PatternType
	Direction  PatternDirection
	StartIndex int
	EndIndex   int
}

// PatternType represents the type of pattern.
type PatternType string

const (
	PatternTypeCandlestick PatternType = "candlestick"
)

// PatternDirection represents the expected direction of a pattern.
type PatternDirection string

const (
	PatternBullish PatternDirection = "bullish"
	PatternBearish PatternDirection = "bearish"
	PatternNeutral PatternDirection = "neutral"
)

// PatternNames returns the names of patterns in order.
func PatternNames(patterns []Pattern) []string {
	names := make([]string, len(patterns))
	for i, p := range patterns {
		names[i] = p.Name
	}
	return names
}
