package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/gocarina/gocsv"

	"okx-scanner/internal/errors"
	"okx-scanner/internal/models"
)

// CandleRow is one CSV line in the raw exchange layout.
type CandleRow struct {
	Ts          string `csv:"ts"`
	Open        string `csv:"open"`
	High        string `csv:"high"`
	Low         string `csv:"low"`
	Close       string `csv:"close"`
	Vol         string `csv:"vol"`
	VolCcy      string `csv:"volCcy"`
	VolCcyQuote string `csv:"volCcyQuote"`
	Confirm     string `csv:"confirm"`
}

// rowFromRaw pads or truncates a raw row into a CandleRow.
func rowFromRaw(raw []string) *CandleRow {
	r := models.NormalizeRow(raw)
	return &CandleRow{
		Ts: r[0], Open: r[1], High: r[2], Low: r[3], Close: r[4],
		Vol: r[5], VolCcy: r[6], VolCcyQuote: r[7], Confirm: r[8],
	}
}

// Raw returns the row in column order.
func (r *CandleRow) Raw() []string {
	return []string{r.Ts, r.Open, r.High, r.Low, r.Close, r.Vol, r.VolCcy, r.VolCcyQuote, r.Confirm}
}

// CSVStore appends candle rows to one CSV file per (instrument, bar) under
// a data directory. Files are never rewritten.
type CSVStore struct {
	dir string
	mu  sync.Mutex
}

// NewCSVStore creates the data directory if needed.
func NewCSVStore(dir string) (*CSVStore, error) {
	if dir == "" {
		return nil, errors.NewValidationError("data_dir", dir, "must not be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &CSVStore{dir: dir}, nil
}

// Dir returns the data directory.
func (s *CSVStore) Dir() string {
	return s.dir
}

// Path returns the artifact path for an (instrument, bar) pair.
func (s *CSVStore) Path(instID, bar string) string {
	return filepath.Join(s.dir, artifactName(instID, bar)+".csv")
}

// AppendRows implements CandleSink. The header is written only when the
// file is created.
func (s *CSVStore) AppendRows(ctx context.Context, instID, bar string, rows [][]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := s.Path(instID, bar)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, statErr := os.Stat(path)
	needHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	records := make([]*CandleRow, len(rows))
	for i, raw := range rows {
		records[i] = rowFromRaw(raw)
	}

	switch {
	case needHeader && len(records) == 0:
		// an empty payload still creates the file with its header
		_, err = f.WriteString(strings.Join(models.CandleColumns, ",") + "\n")
	case needHeader:
		err = gocsv.Marshal(records, f)
	case len(records) > 0:
		err = gocsv.MarshalWithoutHeaders(records, f)
	}
	if err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// ReadCandles implements CandleReader. Overlapping appends are collapsed
// to the most recently written row per timestamp.
func (s *CSVStore) ReadCandles(ctx context.Context, instID, bar string) (*models.CandleSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path(instID, bar)

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s %s: %w", instID, bar, errors.ErrArtifactNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []*CandleRow
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, errors.NewDataError(instID, bar, "reading csv artifact", err)
	}

	raw := make([][]string, len(records))
	for i, r := range records {
		raw[i] = r.Raw()
	}
	return &models.CandleSeries{InstID: instID, Bar: bar, Rows: dedupeNewestFirst(raw)}, nil
}

// List returns the CSV artifacts in the data directory, by name.
func (s *CSVStore) List(ctx context.Context) ([]Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.dir, err)
	}
	var out []Artifact
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".csv" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Artifact{
			Name:    e.Name(),
			Path:    filepath.Join(s.dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		})
	}
	slices.SortFunc(out, func(a, b Artifact) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Open opens an artifact for download. name may be a bare file name or a
// path inside the data directory; anything resolving outside it is
// rejected.
func (s *CSVStore) Open(name string) (*os.File, os.FileInfo, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("%s: %w", name, errors.ErrArtifactNotFound)
	}
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", name, errors.ErrArtifactNotFound)
	}
	return f, info, nil
}

func (s *CSVStore) resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.NewValidationError("path", name, "must not be empty")
	}
	root, err := filepath.Abs(s.dir)
	if err != nil {
		return "", err
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.NewValidationError("path", name, "outside the data directory")
	}
	return path, nil
}

// Close implements Backend.
func (s *CSVStore) Close() error {
	return nil
}
