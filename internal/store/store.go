// Package store provides persistence for scanned candles, evaluated signals
// and user preferences.
package store

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"okx-scanner/internal/models"
	"okx-scanner/pkg/utils"
)

// CandleSink persists raw candle rows and returns a handle naming where they
// went.
type CandleSink interface {
	AppendRows(ctx context.Context, instID, bar string, rows [][]string) (string, error)
}

// CandleReader reads persisted rows back as a series, newest first.
type CandleReader interface {
	ReadCandles(ctx context.Context, instID, bar string) (*models.CandleSeries, error)
}

// SignalJournal records evaluated signals.
type SignalJournal interface {
	SaveSignal(ctx context.Context, sig models.Signal) (string, error)
	RecentSignals(ctx context.Context, limit int) ([]StoredSignal, error)
}

// Backend is a complete candle store.
type Backend interface {
	CandleSink
	CandleReader
	List(ctx context.Context) ([]Artifact, error)
	Close() error
}

// Artifact describes one persisted (instrument, bar) series.
type Artifact struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	Rows    int       `json:"rows,omitempty"`
	ModTime time.Time `json:"mod_time"`
}

// StoredSignal is a journaled signal.
type StoredSignal struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Signal    models.Signal `json:"signal"`
}

// Open creates the backend named by kind ("csv" or "sqlite").
func Open(kind, dataDir, dbPath string) (Backend, error) {
	switch kind {
	case "", "csv":
		return NewCSVStore(dataDir)
	case "sqlite":
		return NewSQLiteStore(dbPath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", kind)
	}
}

// ParseArtifactName splits an artifact name such as "ETH-USDT_1H" or
// "ETH-USDT_1H.csv" into its instrument id and bar.
func ParseArtifactName(name string) (instID, bar string, ok bool) {
	stem := strings.TrimSuffix(filepath.Base(name), ".csv")
	i := strings.LastIndex(stem, "_")
	if i <= 0 || i == len(stem)-1 {
		return "", "", false
	}
	instID, bar = stem[:i], stem[i+1:]
	if !utils.IsValidBar(bar) {
		return "", "", false
	}
	return instID, bar, true
}

// WriteCSV writes a series in the artifact layout, header first, rows in
// the series order.
func WriteCSV(w io.Writer, series *models.CandleSeries) error {
	records := make([]*CandleRow, 0, series.Len())
	if series != nil {
		for _, raw := range series.Rows {
			records = append(records, rowFromRaw(raw))
		}
	}
	if len(records) == 0 {
		_, err := io.WriteString(w, strings.Join(models.CandleColumns, ",")+"\n")
		return err
	}
	return gocsv.Marshal(records, w)
}

// artifactName is the file stem for an (instrument, bar) pair.
func artifactName(instID, bar string) string {
	return fmt.Sprintf("%s_%s", utils.SafeInstID(instID), bar)
}

// dedupeNewestFirst keeps the last written row per timestamp and orders
// the result newest first, the way the exchange delivers it. Rows with an
// unparsable timestamp are dropped.
func dedupeNewestFirst(rows [][]string) [][]string {
	type keyed struct {
		ts  int64
		row []string
	}
	byTs := make(map[int64]int)
	var out []keyed
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		if i, ok := byTs[ts]; ok {
			out[i].row = row
			continue
		}
		byTs[ts] = len(out)
		out = append(out, keyed{ts: ts, row: row})
	}
	slices.SortFunc(out, func(a, b keyed) int {
		switch {
		case a.ts > b.ts:
			return -1
		case a.ts < b.ts:
			return 1
		}
		return 0
	})
	result := make([][]string, len(out))
	for i, k := range out {
		result[i] = k.row
	}
	return result
}
