package screener

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"okx-scanner/internal/errors"
	"okx-scanner/internal/metrics"
	"okx-scanner/internal/models"
	"okx-scanner/internal/store"
	"okx-scanner/internal/strategy"
)

type fakeSource struct {
	mu      sync.Mutex
	tickers []models.Ticker
	fail    map[string]bool
	fetched []string
}

func (f *fakeSource) FetchCandles(ctx context.Context, instID, bar string, limit int) (*models.CandleSeries, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, instID+"|"+bar)
	f.mu.Unlock()
	if f.fail[instID] {
		return nil, errors.NewUpstreamError("candles", instID, 0, "51001", "instrument not found", nil)
	}
	rows := make([][]string, limit)
	for i := range rows {
		// newest first, gently rising
		p := 100 + float64(limit-i)*0.1
		rows[i] = []string{
			fmt.Sprint(1700000000000 + int64(limit-i)*900000),
			fmt.Sprint(p), fmt.Sprint(p + 0.2), fmt.Sprint(p - 0.2), fmt.Sprint(p + 0.05),
			"1", "1", "1", "1",
		}
	}
	return &models.CandleSeries{InstID: instID, Bar: bar, Rows: rows}, nil
}

func (f *fakeSource) FetchTickers(ctx context.Context, instType models.InstrumentType) ([]models.Ticker, error) {
	if f.fail["tickers"] {
		return nil, errors.NewUpstreamError("tickers", "", 503, "", "unavailable", nil)
	}
	return f.tickers, nil
}

func (f *fakeSource) FetchTicker(ctx context.Context, instID string) (*models.Ticker, error) {
	return nil, nil
}

func (f *fakeSource) fetchedFor(instID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range f.fetched {
		if len(k) > len(instID) && k[:len(instID)+1] == instID+"|" {
			n++
		}
	}
	return n
}

type memJournal struct {
	mu   sync.Mutex
	sigs []models.Signal
}

func (j *memJournal) SaveSignal(ctx context.Context, sig models.Signal) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sigs = append(j.sigs, sig)
	return fmt.Sprint(len(j.sigs)), nil
}

func (j *memJournal) RecentSignals(ctx context.Context, limit int) ([]store.StoredSignal, error) {
	return nil, nil
}

func ticker(id string, last, open float64) models.Ticker {
	return models.Ticker{InstID: id, Last: last, Open24h: open}
}

func TestTopMovers(t *testing.T) {
	tickers := []models.Ticker{
		ticker("ETH-USDT", 110, 100),
		ticker("BTC-USDT", 150, 100),
		ticker("SOL-USDT", 95, 100),
		ticker("NEW-USDT", 5, 0),
		ticker("OP-USDT", 130, 100),
		ticker("", 1, 1),
	}
	excluded := strategy.DefaultExclusion()
	isExcluded := func(id string) bool { _, ok := excluded.Match(id); return ok }

	got := TopMovers(tickers, 3, isExcluded)
	ids := make([]string, len(got))
	for i, m := range got {
		ids[i] = m.InstID
	}
	if !slices.Equal(ids, []string{"OP-USDT", "ETH-USDT", "NEW-USDT"}) {
		t.Errorf("movers = %v", ids)
	}
	if got[0].ChangePct != 30 {
		t.Errorf("pct = %v", got[0].ChangePct)
	}

	if got := TopMovers(tickers, 0, nil); len(got) != 1 || got[0].InstID != "BTC-USDT" {
		t.Errorf("top 0 should still return the leader, got %+v", got)
	}
	if got := TopMovers(tickers, 100, nil); len(got) != 5 {
		t.Errorf("expected all 5 named tickers, got %d", len(got))
	}
	if got := TopMovers(nil, 5, nil); len(got) != 0 {
		t.Errorf("no tickers should give no movers, got %v", got)
	}
}

func TestScanTop_OrdersRowsAndIsolatesFailures(t *testing.T) {
	src := &fakeSource{
		tickers: []models.Ticker{
			ticker("ETH-USDT", 101, 100),
			ticker("BTC-USDT", 200, 100),
			ticker("ARB-USDT", 120, 100),
			ticker("SOL-USDT", 110, 100),
		},
		fail: map[string]bool{"SOL-USDT": true},
	}
	journal := &memJournal{}
	m := metrics.New()
	s := New(src, strategy.NewEngine(strategy.PandaPolicy()),
		WithJournal(journal), WithMetrics(m), WithConcurrency(2))

	req := TopRequest{Params: DefaultParams(), Top: 3}
	res, err := s.ScanTop(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.RunID == "" || res.Policy != strategy.PolicyPanda {
		t.Errorf("bad header: %+v", res)
	}
	if !slices.Equal(res.Selected, []string{"ARB-USDT", "SOL-USDT", "ETH-USDT"}) {
		t.Fatalf("selected = %v", res.Selected)
	}
	if len(res.Table) != 3 {
		t.Fatalf("table rows = %d", len(res.Table))
	}
	for i, row := range res.Table {
		if row.InstID != res.Selected[i] || row.Signal.InstID != res.Selected[i] {
			t.Errorf("row %d out of order: %s / %s", i, row.InstID, row.Signal.InstID)
		}
	}

	failed := res.Table[1].Signal
	if failed.Side != models.SideFlat || failed.Reason != strategy.ReasonInsufficient {
		t.Errorf("failed fetch should be flat/insufficient, got %s %q", failed.Side, failed.Reason)
	}
	if src.fetchedFor("BTC-USDT") != 0 {
		t.Error("excluded instrument was fetched")
	}
	if len(journal.sigs) != 3 {
		t.Errorf("journaled %d signals", len(journal.sigs))
	}

	var total float64
	for _, side := range []string{"long", "short", "flat"} {
		total += testutil.ToFloat64(m.SignalsTotal.WithLabelValues(strategy.PolicyPanda, side))
	}
	if total != 3 {
		t.Errorf("signals counted = %v", total)
	}
}

func TestScanTop_TickerFailure(t *testing.T) {
	src := &fakeSource{fail: map[string]bool{"tickers": true}}
	s := New(src, strategy.NewEngine(strategy.CustomPolicy()))

	_, err := s.ScanTop(context.Background(), TopRequest{Params: DefaultParams(), Top: 5})
	if !errors.Is(err, errors.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestEvaluate(t *testing.T) {
	src := &fakeSource{fail: map[string]bool{"BAD-USDT": true}}
	s := New(src, strategy.NewEngine(strategy.CustomPolicy()))
	ctx := context.Background()

	sig, err := s.Evaluate(ctx, "btc-usdt", DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if sig.Side != models.SideFlat || sig.Reason != "excluded by policy (BTC)" {
		t.Errorf("excluded signal = %s %q", sig.Side, sig.Reason)
	}
	if src.fetchedFor("BTC-USDT") != 0 {
		t.Error("excluded instrument was fetched")
	}

	p := DefaultParams()
	p.Exclude = false
	sig, err = s.Evaluate(ctx, "BTC-USDT", p)
	if err != nil {
		t.Fatal(err)
	}
	if sig.Reason == "excluded by policy (BTC)" || src.fetchedFor("BTC-USDT") != 2 {
		t.Errorf("exclusion should be off: %q, fetched %d", sig.Reason, src.fetchedFor("BTC-USDT"))
	}
	if sig.Indicators["ema21_b"] == 0 {
		t.Errorf("indicators missing: %v", sig.Indicators)
	}

	if _, err := s.Evaluate(ctx, "BAD-USDT", DefaultParams()); !errors.Is(err, errors.ErrUpstream) {
		t.Errorf("expected upstream error, got %v", err)
	}

	bad := DefaultParams()
	bad.Bar = "7m"
	if _, err := s.Evaluate(ctx, "ETH-USDT", bad); !errors.Is(err, errors.ErrInputValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := s.Evaluate(ctx, "  ", DefaultParams()); !errors.Is(err, errors.ErrInputValidation) {
		t.Errorf("expected validation error for empty inst, got %v", err)
	}
}

func TestForPolicies(t *testing.T) {
	set, err := ForPolicies(&fakeSource{}, []string{"fast", "custom"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if set[strategy.PolicyPanda] == nil || set[strategy.PolicyCustom] == nil {
		t.Errorf("set = %v", set)
	}
	if _, err := ForPolicies(&fakeSource{}, []string{"nope"}, nil); !errors.Is(err, errors.ErrUnknownPolicy) {
		t.Errorf("expected unknown policy, got %v", err)
	}
}

func TestForPrefs_AppliesExclusionAndRiskCap(t *testing.T) {
	prefs := store.DefaultPrefs()
	prefs.ExcludeSymbols = []string{"ETH"}
	prefs.RiskMaxPercent = 1

	set, err := ForPrefs(&fakeSource{}, prefs)
	if err != nil {
		t.Fatal(err)
	}
	s := set[strategy.PolicyCustom]

	sig, err := s.Evaluate(context.Background(), "ETH-USDT", DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if sig.Reason != "excluded by policy (ETH)" {
		t.Errorf("reason = %q", sig.Reason)
	}

	sig, err = s.Evaluate(context.Background(), "BTC-USDT", DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if sig.Reason == "excluded by policy (BTC)" {
		t.Error("BTC should no longer be excluded")
	}
	if sig.Risk.RiskPercent != 1 {
		t.Errorf("risk percent = %v, want capped to 1", sig.Risk.RiskPercent)
	}
}
