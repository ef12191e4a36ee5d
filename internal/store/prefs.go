package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"okx-scanner/internal/errors"
	"okx-scanner/internal/models"
)

// PrefsFile is the preferences file name inside the data directory.
const PrefsFile = "prefs.json"

// Prefs are the user-editable runtime preferences.
type Prefs struct {
	ExcludeSymbols []string      `json:"exclude_symbols"`
	RiskMaxPercent float64       `json:"risk_max_percent"`
	Bars           models.BarSet `json:"bars"`
	Batch          int           `json:"batch"`
	IntervalSec    int           `json:"interval_sec"`
}

var prefKeys = []string{"exclude_symbols", "risk_max_percent", "bars", "batch", "interval_sec"}

// DefaultPrefs returns the preferences written on first use.
func DefaultPrefs() Prefs {
	return Prefs{
		ExcludeSymbols: []string{"BTC-USDT", "BTC"},
		RiskMaxPercent: 2,
		Bars: models.BarSet{
			{Bar: "1D", Limit: 50},
			{Bar: "4H", Limit: 50},
			{Bar: "1H", Limit: 50},
			{Bar: "15m", Limit: 150},
			{Bar: "5m", Limit: 150},
		},
		Batch:       5,
		IntervalSec: 30,
	}
}

// Validate checks a merged preference set.
func (p Prefs) Validate() error {
	if p.RiskMaxPercent < 0 || p.RiskMaxPercent > 100 {
		return errors.NewValidationError("risk_max_percent", p.RiskMaxPercent, "must be between 0 and 100")
	}
	if p.Batch < 0 {
		return errors.NewValidationError("batch", p.Batch, "must not be negative")
	}
	if p.IntervalSec < 0 {
		return errors.NewValidationError("interval_sec", p.IntervalSec, "must not be negative")
	}
	for _, b := range p.Bars {
		if b.Limit <= 0 {
			return errors.NewValidationError("bars", b.Bar, "limit must be positive")
		}
	}
	return nil
}

// SeedScan copies the scan preferences into cfg. keep reports fields that
// were set explicitly elsewhere and must not be replaced ("bars", "batch",
// "interval_sec").
func (p Prefs) SeedScan(cfg *models.ScanConfig, keep func(field string) bool) {
	if len(p.Bars) > 0 && !keep("bars") {
		cfg.Bars = slices.Clone(p.Bars)
	}
	if p.Batch > 0 && !keep("batch") {
		cfg.Batch = p.Batch
	}
	if p.IntervalSec > 0 && !keep("interval_sec") {
		cfg.Interval = time.Duration(p.IntervalSec) * time.Second
	}
}

// PrefsStore reads and updates prefs.json.
type PrefsStore struct {
	path string
	mu   sync.Mutex
}

// NewPrefsStore creates a store for dataDir/prefs.json.
func NewPrefsStore(dataDir string) *PrefsStore {
	return &PrefsStore{path: filepath.Join(dataDir, PrefsFile)}
}

// Path returns the preferences file path.
func (s *PrefsStore) Path() string {
	return s.path
}

// Read returns the stored preferences. A missing file is created with the
// defaults; an unreadable one yields the defaults without being replaced.
func (s *PrefsStore) Read() (Prefs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *PrefsStore) read() (Prefs, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		def := DefaultPrefs()
		return def, s.write(def)
	}
	if err != nil {
		return Prefs{}, fmt.Errorf("reading %s: %w", s.path, err)
	}

	p := DefaultPrefs()
	if err := sonic.Unmarshal(data, &p); err != nil {
		return DefaultPrefs(), nil
	}
	return p, nil
}

// Update merges a JSON object patch into the stored preferences and writes
// the result. Keys absent from the patch keep their value; unknown keys are
// rejected.
func (s *PrefsStore) Update(patch []byte) (Prefs, error) {
	var keys map[string]json.RawMessage
	if err := sonic.Unmarshal(patch, &keys); err != nil {
		return Prefs{}, errors.NewValidationError("prefs", string(patch), "must be a JSON object")
	}
	for k := range keys {
		if !slices.Contains(prefKeys, k) {
			return Prefs{}, errors.NewValidationError(k, string(keys[k]), "unknown preference")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.read()
	if err != nil {
		return Prefs{}, err
	}
	if err := sonic.Unmarshal(patch, &next); err != nil {
		return Prefs{}, errors.NewValidationError("prefs", string(patch), err.Error())
	}
	if err := next.Validate(); err != nil {
		return Prefs{}, err
	}
	if err := s.write(next); err != nil {
		return Prefs{}, err
	}
	return next, nil
}

func (s *PrefsStore) write(p Prefs) error {
	data, err := sonic.ConfigStd.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
