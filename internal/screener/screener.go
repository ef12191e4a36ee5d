// Package screener ranks instruments by their 24h move and evaluates the
// leaders with a strategy engine.
package screener

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"okx-scanner/internal/errors"
	"okx-scanner/internal/logging"
	"okx-scanner/internal/market"
	"okx-scanner/internal/metrics"
	"okx-scanner/internal/models"
	"okx-scanner/internal/risk"
	"okx-scanner/internal/store"
	"okx-scanner/internal/strategy"
	"okx-scanner/pkg/utils"
)

// DefaultConcurrency bounds the instruments evaluated at once.
const DefaultConcurrency = 4

// Params are the inputs shared by single evaluations and scans.
type Params struct {
	Bar      string
	TrendBar string
	Limit    int
	Sizing   risk.Params
	// Exclude applies the engine's exclusion rules.
	Exclude bool
}

// DefaultParams returns the request defaults of the service.
func DefaultParams() Params {
	return Params{
		Bar:      "15m",
		TrendBar: "1H",
		Limit:    150,
		Sizing:   risk.DefaultParams(),
		Exclude:  true,
	}
}

// Validate checks the bar labels and limit.
func (p Params) Validate() error {
	if !utils.IsValidBar(p.Bar) {
		return errors.NewValidationError("bar", p.Bar, "unknown bar")
	}
	if !utils.IsValidBar(p.TrendBar) {
		return errors.NewValidationError("trend_bar", p.TrendBar, "unknown bar")
	}
	if p.Limit <= 0 || p.Limit > market.MaxLimit {
		return errors.NewValidationError("limit", p.Limit, "out of range")
	}
	return nil
}

// TopRequest asks for the top movers of an instrument type.
type TopRequest struct {
	Params
	InstType models.InstrumentType
	Top      int
}

// Screener evaluates instruments under one policy.
type Screener struct {
	source      market.DataSource
	engine      *strategy.Engine
	journal     store.SignalJournal
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	concurrency int
}

// Option configures a Screener.
type Option func(*Screener)

// WithJournal records every produced signal.
func WithJournal(j store.SignalJournal) Option {
	return func(s *Screener) { s.journal = j }
}

// WithMetrics counts produced signals.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Screener) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Screener) { s.logger = logging.WithComponent(logger, "screener") }
}

// WithConcurrency bounds concurrent evaluations in a scan.
func WithConcurrency(n int) Option {
	return func(s *Screener) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New creates a screener backed by source and engine.
func New(source market.DataSource, engine *strategy.Engine, opts ...Option) *Screener {
	s := &Screener{
		source:      source,
		engine:      engine,
		logger:      zerolog.Nop(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ForPolicies builds one screener per named policy, keyed by policy name.
func ForPolicies(source market.DataSource, names []string, engineOpts []strategy.Option, opts ...Option) (map[string]*Screener, error) {
	out := make(map[string]*Screener, len(names))
	for _, name := range names {
		policy, err := strategy.PolicyByName(name)
		if err != nil {
			return nil, err
		}
		out[policy.Name] = New(source, strategy.NewEngine(policy, engineOpts...), opts...)
	}
	return out, nil
}

// ForPrefs builds a screener for every registered policy, applying the
// exclusion list and risk ceiling from prefs.
func ForPrefs(source market.DataSource, prefs store.Prefs, opts ...Option) (map[string]*Screener, error) {
	engineOpts := []strategy.Option{
		strategy.WithExclusion(strategy.NewExclusion(prefs.ExcludeSymbols)),
		strategy.WithSizer(risk.NewSizer(prefs.RiskMaxPercent)),
	}
	return ForPolicies(source, strategy.PolicyNames(), engineOpts, opts...)
}

// Policy returns the name of the screener's policy.
func (s *Screener) Policy() string {
	return s.engine.Policy().Name
}

// Evaluate fetches the base and trend series for instID and evaluates them.
// Excluded instruments are answered without fetching. Upstream failures are
// returned.
func (s *Screener) Evaluate(ctx context.Context, instID string, p Params) (models.Signal, error) {
	if err := p.Validate(); err != nil {
		return models.Signal{}, err
	}
	instID = utils.NormalizeInstID(instID)
	if instID == "" {
		return models.Signal{}, errors.NewValidationError("inst_id", instID, "required")
	}

	req := s.request(instID, p)
	if !(p.Exclude && s.engine.Excluded(instID)) {
		base, trend, err := s.fetchPair(ctx, instID, p)
		if err != nil {
			return models.Signal{}, err
		}
		req.Base, req.Trend = base, trend
	}
	return s.evaluate(ctx, req), nil
}

// ScanTop ranks tickers by 24h change, keeps the top movers and evaluates
// each. A failed fetch for one instrument yields its flat signal and does
// not fail the scan.
func (s *Screener) ScanTop(ctx context.Context, req TopRequest) (*models.ScanResult, error) {
	if err := req.Params.Validate(); err != nil {
		return nil, err
	}
	instType := req.InstType
	if instType == "" {
		instType = models.InstSpot
	}

	tickers, err := s.source.FetchTickers(ctx, instType)
	if err != nil {
		return nil, err
	}

	var excluded func(string) bool
	if req.Exclude {
		excluded = s.engine.Excluded
	}
	movers := TopMovers(tickers, req.Top, excluded)

	p := pool.NewWithResults[models.ScanRow]().
		WithContext(ctx).
		WithMaxGoroutines(s.concurrency)
	for i, mv := range movers {
		i, mv := i, mv
		p.Go(func(ctx context.Context) (models.ScanRow, error) {
			r := s.request(mv.InstID, req.Params)
			base, trend, err := s.fetchPair(ctx, mv.InstID, req.Params)
			if err != nil {
				s.logger.Warn().Err(err).Str("inst_id", mv.InstID).Msg("Scan fetch skipped")
			} else {
				r.Base, r.Trend = base, trend
			}
			mv.Rank = i
			return models.ScanRow{Mover: mv, Signal: s.evaluate(ctx, r)}, nil
		})
	}
	rows, _ := p.Wait()
	slices.SortFunc(rows, func(a, b models.ScanRow) int { return cmp.Compare(a.Rank, b.Rank) })

	result := &models.ScanResult{
		RunID:    uuid.NewString(),
		Policy:   s.Policy(),
		Selected: make([]string, len(movers)),
		Table:    rows,
	}
	for i, mv := range movers {
		result.Selected[i] = mv.InstID
	}
	s.logger.Info().
		Str("run_id", result.RunID).
		Str("inst_type", string(instType)).
		Int("selected", len(movers)).
		Msg("Scan completed")
	return result, nil
}

// TopMovers ranks tickers by 24h change, highest first, and returns at
// least one and at most top entries. Tickers matched by excluded are
// skipped; a non-positive open counts as no change.
func TopMovers(tickers []models.Ticker, top int, excluded func(string) bool) []models.Mover {
	movers := make([]models.Mover, 0, len(tickers))
	for _, t := range tickers {
		id := strings.TrimSpace(t.InstID)
		if id == "" || (excluded != nil && excluded(id)) {
			continue
		}
		pct, _ := t.ChangePercent()
		movers = append(movers, models.Mover{
			InstID:    id,
			Last:      t.Last,
			Open24h:   t.Open24h,
			ChangePct: utils.RoundTo(pct, 4),
		})
	}
	slices.SortStableFunc(movers, func(a, b models.Mover) int {
		return cmp.Compare(b.ChangePct, a.ChangePct)
	})
	return movers[:min(max(top, 1), len(movers))]
}

func (s *Screener) request(instID string, p Params) strategy.Request {
	return strategy.Request{
		InstID:   instID,
		Bar:      p.Bar,
		TrendBar: p.TrendBar,
		Sizing:   p.Sizing,
		Exclude:  p.Exclude,
	}
}

func (s *Screener) fetchPair(ctx context.Context, instID string, p Params) (*models.CandleSeries, *models.CandleSeries, error) {
	var base, trend *models.CandleSeries
	g := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	g.Go(func(ctx context.Context) error {
		var err error
		base, err = s.source.FetchCandles(ctx, instID, p.Bar, p.Limit)
		return err
	})
	g.Go(func(ctx context.Context) error {
		var err error
		trend, err = s.source.FetchCandles(ctx, instID, p.TrendBar, p.Limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return base, trend, nil
}

func (s *Screener) evaluate(ctx context.Context, req strategy.Request) models.Signal {
	sig := s.engine.Evaluate(req)
	s.metrics.SignalProduced(sig.Policy, string(sig.Side))
	logging.LogSignal(s.logger, sig.Policy, sig.InstID, sig.Bar, string(sig.Side), sig.Reason)

	if s.journal != nil {
		if _, err := s.journal.SaveSignal(ctx, sig); err != nil {
			s.logger.Warn().Err(err).Str("inst_id", sig.InstID).Msg("Signal not journaled")
		}
	}
	return sig
}
