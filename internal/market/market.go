// Package market provides access to exchange market data.
package market

import (
	"context"

	"okx-scanner/internal/models"
)

// MaxLimit is the largest candle count served per request.
const MaxLimit = 300

// DataSource defines the market data operations used by the scanner, the
// screener and the API.
type DataSource interface {
	// FetchCandles returns up to limit candles, newest first.
	FetchCandles(ctx context.Context, instID, bar string, limit int) (*models.CandleSeries, error)
	// FetchTickers returns 24h snapshots for every instrument of a type.
	FetchTickers(ctx context.Context, instType models.InstrumentType) ([]models.Ticker, error)
	// FetchTicker returns the 24h snapshot of one instrument.
	FetchTicker(ctx context.Context, instID string) (*models.Ticker, error)
}

// DefaultLimit returns the candle count used when a request omits it:
// 50 for hourly and slower bars, 150 for intraday minute bars.
func DefaultLimit(bar string) int {
	switch bar {
	case "1D", "4H", "1H":
		return 50
	case "15m", "5m":
		return 150
	default:
		return 100
	}
}
