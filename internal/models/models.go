// Package models provides domain models for the signal engine and scanner.
package models

import (
	"strconv"
	"strings"
	"time"
)

// InstrumentType represents an OKX instrument type.
type InstrumentType string

const (
	InstSpot    InstrumentType = "SPOT"
	InstSwap    InstrumentType = "SWAP"
	InstFutures InstrumentType = "FUTURES"
	InstMargin  InstrumentType = "MARGIN"
)

// CandleColumns is the fixed column layout of a raw candle row.
var CandleColumns = []string{"ts", "open", "high", "low", "close", "vol", "volCcy", "volCcyQuote", "confirm"}

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp      time.Time
	Open           float64
	High           float64
	Low            float64
	Close          float64
	Volume         float64
	VolumeCcy      float64
	VolumeCcyQuote float64
	Confirmed      bool
}

// IsBullish reports whether the candle closed above its open.
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// IsBearish reports whether the candle closed below its open.
func (c Candle) IsBearish() bool {
	return c.Close < c.Open
}

// CandleSeries is the raw candle payload for one (instrument, bar) pair.
// Rows are kept exactly as delivered by the exchange: newest first.
type CandleSeries struct {
	InstID string
	Bar    string
	Rows   [][]string
}

// Len returns the number of rows in the series.
func (s *CandleSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rows)
}

// Candles parses the rows and returns them in ascending time order.
func (s *CandleSeries) Candles() []Candle {
	if s == nil || len(s.Rows) == 0 {
		return nil
	}
	out := make([]Candle, len(s.Rows))
	for i, row := range s.Rows {
		out[len(s.Rows)-1-i] = ParseCandleRow(row)
	}
	return out
}

// ParseCandleRow converts one raw row into a Candle. Missing or
// unparsable numeric fields become zero.
func ParseCandleRow(row []string) Candle {
	field := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	num := func(i int) float64 {
		v, err := strconv.ParseFloat(field(i), 64)
		if err != nil {
			return 0
		}
		return v
	}

	var ts time.Time
	if ms, err := strconv.ParseInt(field(0), 10, 64); err == nil {
		ts = time.UnixMilli(ms).UTC()
	}

	return Candle{
		Timestamp:      ts,
		Open:           num(1),
		High:           num(2),
		Low:            num(3),
		Close:          num(4),
		Volume:         num(5),
		VolumeCcy:      num(6),
		VolumeCcyQuote: num(7),
		Confirmed:      field(8) == "1",
	}
}

// NormalizeRow pads or truncates a raw row to the fixed column count.
func NormalizeRow(row []string) []string {
	out := make([]string, len(CandleColumns))
	copy(out, row)
	return out
}

// Ticker represents a 24h market snapshot for one instrument.
type Ticker struct {
	InstID    string         `json:"inst_id"`
	InstType  InstrumentType `json:"inst_type"`
	Last      float64        `json:"last"`
	Open24h   float64        `json:"open24h"`
	High24h   float64        `json:"high24h"`
	Low24h    float64        `json:"low24h"`
	Vol24h    float64        `json:"vol24h"`
	VolCcy24h float64        `json:"vol_ccy24h"`
	Timestamp time.Time      `json:"ts"`
}

// ChangePercent returns the 24h change in percent, or false when the
// opening price is not positive.
func (t Ticker) ChangePercent() (float64, bool) {
	if t.Open24h <= 0 {
		return 0, false
	}
	return (t.Last - t.Open24h) / t.Open24h * 100, true
}

// Mover is a ticker ranked by its 24h change.
type Mover struct {
	InstID    string  `json:"inst_id"`
	Last      float64 `json:"last"`
	Open24h   float64 `json:"open24h"`
	ChangePct float64 `json:"pct"`
	Rank      int     `json:"-"`
}
