package scanner

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"okx-scanner/internal/errors"
	"okx-scanner/internal/metrics"
	"okx-scanner/internal/models"
)

type fakeSource struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]bool
	fetched chan string
}

func (f *fakeSource) FetchCandles(ctx context.Context, instID, bar string, limit int) (*models.CandleSeries, error) {
	key := instID + "|" + bar
	f.mu.Lock()
	f.calls = append(f.calls, key)
	fail := f.fail[instID] || f.fail[key]
	f.mu.Unlock()

	if f.fetched != nil {
		select {
		case f.fetched <- key:
		default:
		}
	}
	if fail {
		return nil, errors.NewUpstreamError("candles", instID, 502, "", "bad gateway", nil)
	}
	rows := make([][]string, limit)
	for i := range rows {
		rows[i] = []string{fmt.Sprint(1700000000000 - int64(i)*60000), "1", "2", "0.5", "1.5", "10", "15", "15", "1"}
	}
	return &models.CandleSeries{InstID: instID, Bar: bar, Rows: rows}, nil
}

func (f *fakeSource) FetchTickers(ctx context.Context, instType models.InstrumentType) ([]models.Ticker, error) {
	return nil, nil
}

func (f *fakeSource) FetchTicker(ctx context.Context, instID string) (*models.Ticker, error) {
	return &models.Ticker{InstID: instID}, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSink struct {
	mu    sync.Mutex
	rows  map[string]int
	order []string
}

func (s *fakeSink) AppendRows(ctx context.Context, instID, bar string, rows [][]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows == nil {
		s.rows = map[string]int{}
	}
	handle := instID + "_" + bar
	s.rows[handle] += len(rows)
	s.order = append(s.order, handle)
	return handle, nil
}

func scanConfig(symbols []string, batch int) models.ScanConfig {
	return models.ScanConfig{
		Symbols:  symbols,
		Bars:     models.BarSet{{Bar: "1H", Limit: 3}, {Bar: "15m", Limit: 2}},
		Batch:    batch,
		Interval: time.Hour,
	}
}

func runOnce(t *testing.T, s *Scanner) TickReport {
	t.Helper()
	report, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	return report
}

func TestValidateConfig(t *testing.T) {
	base := scanConfig([]string{"BTC-USDT"}, 1)

	tests := []struct {
		name   string
		mutate func(*models.ScanConfig)
		ok     bool
	}{
		{"valid", func(*models.ScanConfig) {}, true},
		{"no symbols is allowed", func(c *models.ScanConfig) { c.Symbols = nil }, true},
		{"zero batch", func(c *models.ScanConfig) { c.Batch = 0 }, false},
		{"zero interval", func(c *models.ScanConfig) { c.Interval = 0 }, false},
		{"no bars", func(c *models.ScanConfig) { c.Bars = nil }, false},
		{"unknown bar", func(c *models.ScanConfig) { c.Bars = models.BarSet{{Bar: "7m", Limit: 5}} }, false},
		{"zero limit", func(c *models.ScanConfig) { c.Bars = models.BarSet{{Bar: "1H", Limit: 0}} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := ValidateConfig(cfg)
			if (err == nil) != tt.ok {
				t.Fatalf("ValidateConfig() = %v, want ok=%v", err, tt.ok)
			}
			if err != nil && !errors.Is(err, errors.ErrInputValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRunOnce_IsolatesFailures(t *testing.T) {
	src := &fakeSource{fail: map[string]bool{"BAD-USDT": true, "ETH-USDT|15m": true}}
	sink := &fakeSink{}
	m := metrics.New()

	s, err := New(src, sink, scanConfig([]string{"BTC-USDT", "BAD-USDT", "ETH-USDT", "SOL-USDT"}, 3), WithMetrics(m))
	if err != nil {
		t.Fatal(err)
	}

	report := runOnce(t, s)
	if !slices.Equal(report.Symbols, []string{"BTC-USDT", "BAD-USDT", "ETH-USDT"}) {
		t.Errorf("symbols = %v", report.Symbols)
	}
	if report.Skipped != 3 {
		t.Errorf("skipped = %d, want 3", report.Skipped)
	}
	wantSaved := []string{"BTC-USDT_1H", "BTC-USDT_15m", "ETH-USDT_1H"}
	if !slices.Equal(report.Saved, wantSaved) {
		t.Errorf("saved = %v, want %v", report.Saved, wantSaved)
	}
	if report.Rows != 8 {
		t.Errorf("rows = %d", report.Rows)
	}
	if src.callCount() != 6 {
		t.Errorf("fetches = %d, want 6", src.callCount())
	}

	st := s.Status()
	if st.ProcessedBatches != 1 {
		t.Errorf("processed = %d", st.ProcessedBatches)
	}
	if !slices.Equal(st.SavedFiles, wantSaved) {
		t.Errorf("saved files = %v", st.SavedFiles)
	}
	if !slices.Equal(st.NextBatch, []string{"SOL-USDT", "BTC-USDT", "BAD-USDT"}) {
		t.Errorf("next batch = %v", st.NextBatch)
	}
	if st.Running {
		t.Error("scanner should not be running")
	}

	if got := testutil.ToFloat64(m.ScannerFailures.WithLabelValues("15m")); got != 2 {
		t.Errorf("15m failures = %v", got)
	}
	if got := testutil.ToFloat64(m.ScannerTicks); got != 1 {
		t.Errorf("ticks = %v", got)
	}
}

func TestRunOnce_CountsTickWhenEverythingFails(t *testing.T) {
	src := &fakeSource{fail: map[string]bool{"BAD-USDT": true}}
	s, err := New(src, &fakeSink{}, scanConfig([]string{"BAD-USDT"}, 1))
	if err != nil {
		t.Fatal(err)
	}
	runOnce(t, s)
	runOnce(t, s)

	st := s.Status()
	if st.ProcessedBatches != 2 {
		t.Errorf("processed = %d, want 2", st.ProcessedBatches)
	}
	if len(st.SavedFiles) != 0 {
		t.Errorf("saved files = %v", st.SavedFiles)
	}
}

func TestRunOnce_EmptyUniverse(t *testing.T) {
	src := &fakeSource{}
	s, err := New(src, &fakeSink{}, scanConfig(nil, 2))
	if err != nil {
		t.Fatal(err)
	}
	report := runOnce(t, s)
	if len(report.Symbols) != 0 || src.callCount() != 0 {
		t.Errorf("empty universe fetched: %+v", report)
	}
	if st := s.Status(); st.ProcessedBatches != 0 {
		t.Errorf("empty batch counted: %d", st.ProcessedBatches)
	}
}

func TestArtifactsDedupedAndBounded(t *testing.T) {
	symbols := make([]string, 25)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("C%02d-USDT", i)
	}
	cfg := scanConfig(symbols, 25)
	cfg.Bars = models.BarSet{{Bar: "1H", Limit: 1}}

	s, err := New(&fakeSource{}, &fakeSink{}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	runOnce(t, s)

	st := s.Status()
	if len(st.SavedFiles) != MaxArtifacts {
		t.Fatalf("saved files = %d", len(st.SavedFiles))
	}
	if st.SavedFiles[0] != "C05-USDT_1H" || st.SavedFiles[MaxArtifacts-1] != "C24-USDT_1H" {
		t.Errorf("unexpected window %v", st.SavedFiles)
	}

	runOnce(t, s)
	st = s.Status()
	seen := map[string]bool{}
	for _, f := range st.SavedFiles {
		if seen[f] {
			t.Fatalf("duplicate artifact %s", f)
		}
		seen[f] = true
	}
	if len(st.SavedFiles) != MaxArtifacts {
		t.Errorf("saved files = %d after second tick", len(st.SavedFiles))
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	src := &fakeSource{fetched: make(chan string, 64)}
	m := metrics.New()
	s, err := New(src, &fakeSink{}, scanConfig([]string{"BTC-USDT", "ETH-USDT"}, 1), WithMetrics(m))
	if err != nil {
		t.Fatal(err)
	}

	s.Stop()

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx)
	if !s.Running() {
		t.Fatal("expected running")
	}
	if got := testutil.ToFloat64(m.ScannerRunning); got != 1 {
		t.Errorf("running gauge = %v", got)
	}

	select {
	case <-src.fetched:
	case <-time.After(2 * time.Second):
		t.Fatal("first tick never fetched")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not interrupt the sleep")
	}

	if s.Running() {
		t.Error("expected stopped")
	}
	calls := src.callCount()
	time.Sleep(50 * time.Millisecond)
	if src.callCount() != calls {
		t.Error("fetches continued after stop")
	}
	if got := testutil.ToFloat64(m.ScannerRunning); got != 0 {
		t.Errorf("running gauge = %v", got)
	}
}

func TestRunOnce_RefusedWhileRunning(t *testing.T) {
	src := &fakeSource{fetched: make(chan string, 64)}
	s, err := New(src, &fakeSink{}, scanConfig([]string{"BTC-USDT", "ETH-USDT"}, 1))
	if err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-src.fetched:
	case <-time.After(2 * time.Second):
		t.Fatal("first tick never fetched")
	}

	before := s.Status()
	report, err := s.RunOnce(context.Background())
	if !errors.Is(err, errors.ErrScannerRunning) {
		t.Fatalf("err = %v, want ErrScannerRunning", err)
	}
	if len(report.Symbols) != 0 {
		t.Errorf("report = %+v", report)
	}
	if got := s.Status().NextBatch; !slices.Equal(got, before.NextBatch) {
		t.Errorf("rotation moved: %v -> %v", before.NextBatch, got)
	}

	s.Stop()
	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Errorf("stopped scanner: %v", err)
	}
}

func TestStop_CancelledWithParentContext(t *testing.T) {
	src := &fakeSource{fetched: make(chan string, 64)}
	s, err := New(src, &fakeSink{}, scanConfig([]string{"BTC-USDT"}, 1))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	<-src.fetched
	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop hung after parent cancellation")
	}
}

func TestReconfigure_ResetsStateAndRestarts(t *testing.T) {
	src := &fakeSource{fetched: make(chan string, 64)}
	s, err := New(src, &fakeSink{}, scanConfig([]string{"BTC-USDT", "ETH-USDT"}, 1))
	if err != nil {
		t.Fatal(err)
	}
	runOnce(t, s)
	if st := s.Status(); st.ProcessedBatches != 1 || len(st.SavedFiles) == 0 {
		t.Fatalf("setup tick not recorded: %+v", st)
	}

	if err := s.Reconfigure(models.ScanConfig{Batch: 0}); err == nil {
		t.Fatal("expected validation error")
	}

	next := scanConfig([]string{"SOL-USDT", "XRP-USDT", "ADA-USDT"}, 2)
	if err := s.Reconfigure(next); err != nil {
		t.Fatal(err)
	}
	st := s.Status()
	if st.ProcessedBatches != 0 || len(st.SavedFiles) != 0 {
		t.Errorf("state not reset: %+v", st)
	}
	if !slices.Equal(st.Symbols, next.Symbols) || st.Batch != 2 || st.IntervalSec != 3600 {
		t.Errorf("config not applied: %+v", st)
	}
	if st.Running {
		t.Error("reconfigure must not start a stopped scanner")
	}

	s.Start(context.Background())
	defer s.Stop()
	drain(src.fetched)

	if err := s.Reconfigure(scanConfig([]string{"DOGE-USDT"}, 1)); err != nil {
		t.Fatal(err)
	}
	if !s.Running() {
		t.Fatal("running scanner should restart after reconfigure")
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case key := <-src.fetched:
			if strings.HasPrefix(key, "DOGE-USDT|") {
				return
			}
		case <-deadline:
			t.Fatal("restarted loop never fetched the new universe")
		}
	}
}

func TestTick_StaleGenerationRecordsNothing(t *testing.T) {
	src := &fakeSource{}
	s, err := New(src, &fakeSink{}, scanConfig([]string{"BTC-USDT", "ETH-USDT"}, 1))
	if err != nil {
		t.Fatal(err)
	}

	s.mu.Lock()
	stale := s.gen - 1
	s.mu.Unlock()

	report := s.tick(context.Background(), stale)
	if len(report.Symbols) != 0 || src.callCount() != 0 {
		t.Errorf("stale tick ran: %+v", report)
	}
	st := s.Status()
	if st.ProcessedBatches != 0 || st.NextBatch[0] != "BTC-USDT" {
		t.Errorf("stale tick mutated state: %+v", st)
	}
}

func drain(ch chan string) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
