package store

import (
	"os"
	"testing"
	"time"

	"okx-scanner/internal/errors"
	"okx-scanner/internal/models"
)

func TestPrefs_ReadCreatesDefaults(t *testing.T) {
	s := NewPrefsStore(t.TempDir())

	p, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if len(p.ExcludeSymbols) != 2 || p.RiskMaxPercent != 2 || p.Batch != 5 || p.IntervalSec != 30 {
		t.Errorf("defaults = %+v", p)
	}
	if _, err := os.Stat(s.Path()); err != nil {
		t.Errorf("prefs file not created: %v", err)
	}
}

func TestPrefs_CorruptFileFallsBack(t *testing.T) {
	s := NewPrefsStore(t.TempDir())
	os.WriteFile(s.Path(), []byte("{not json"), 0644)

	p, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if p.RiskMaxPercent != 2 {
		t.Errorf("expected defaults, got %+v", p)
	}
}

func TestPrefs_UpdateMerges(t *testing.T) {
	s := NewPrefsStore(t.TempDir())

	p, err := s.Update([]byte(`{"exclude_symbols":["DOGE"],"bars":{"5m":300,"1H":20}}`))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(p.ExcludeSymbols) != 1 || p.ExcludeSymbols[0] != "DOGE" {
		t.Errorf("exclude = %v", p.ExcludeSymbols)
	}
	if p.Bars.Labels()[0] != "5m" || p.Bars.Labels()[1] != "1H" {
		t.Errorf("bar order lost: %v", p.Bars)
	}
	if p.RiskMaxPercent != 2 || p.Batch != 5 {
		t.Errorf("untouched keys changed: %+v", p)
	}

	reread, _ := s.Read()
	if reread.Bars.Labels()[0] != "5m" || reread.ExcludeSymbols[0] != "DOGE" {
		t.Errorf("update not persisted: %+v", reread)
	}
}

func TestPrefs_UpdateRejects(t *testing.T) {
	s := NewPrefsStore(t.TempDir())
	for _, patch := range []string{
		`{"unknown":1}`,
		`[1,2]`,
		`{"risk_max_percent":150}`,
		`{"batch":"five"}`,
		`{"bars":{"1H":0}}`,
	} {
		if _, err := s.Update([]byte(patch)); !errors.Is(err, errors.ErrInputValidation) {
			t.Errorf("Update(%s) = %v, want validation error", patch, err)
		}
	}
	p, _ := s.Read()
	if p.RiskMaxPercent != 2 {
		t.Error("rejected patch must not be written")
	}
}

func TestPrefs_SeedScan(t *testing.T) {
	p := DefaultPrefs()
	p.Batch = 3
	p.IntervalSec = 12

	cfg := models.ScanConfig{Batch: 9, Interval: time.Minute, Bars: models.BarSet{{Bar: "1W", Limit: 5}}}
	p.SeedScan(&cfg, func(field string) bool { return field == "bars" })

	if cfg.Batch != 3 || cfg.Interval != 12*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Bars) != 1 || cfg.Bars[0].Bar != "1W" {
		t.Errorf("kept field overwritten: %v", cfg.Bars)
	}
}
