// Package scanner runs the background candle collection loop.
package scanner

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"okx-scanner/internal/errors"
	"okx-scanner/internal/logging"
	"okx-scanner/internal/market"
	"okx-scanner/internal/metrics"
	"okx-scanner/internal/models"
	"okx-scanner/internal/store"
	"okx-scanner/pkg/utils"
)

// MaxArtifacts is the number of recent artifact handles kept for status.
const MaxArtifacts = 20

// DefaultConcurrency bounds the fetches in flight during one tick.
const DefaultConcurrency = 8

// Scanner rotates through a symbol universe, fetching every configured bar
// for one batch of symbols per tick and persisting the rows.
//
// Ticks never overlap. Stop cancels the sleep and any in-flight fetches and
// returns once the loop has exited. Reconfigure bumps a generation token so
// a tick started under the old configuration records nothing.
type Scanner struct {
	source      market.DataSource
	sink        store.CandleSink
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	concurrency int

	// ctrl serialises Start, Stop and Reconfigure.
	ctrl sync.Mutex

	mu        sync.Mutex
	rotation  *Rotation
	bars      models.BarSet
	batch     int
	interval  time.Duration
	processed int
	artifacts []string
	gen       uint64
	running   bool
	parent    context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scanner) { s.logger = logging.WithComponent(logger, "scanner") }
}

// WithMetrics records ticks and failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

// WithConcurrency bounds concurrent fetches per tick.
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// TickReport summarises one tick.
type TickReport struct {
	Symbols []string `json:"symbols"`
	Saved   []string `json:"saved"`
	Rows    int      `json:"rows"`
	Skipped int      `json:"skipped"`
}

// ValidateConfig checks a scan configuration.
func ValidateConfig(cfg models.ScanConfig) error {
	if cfg.Batch <= 0 {
		return errors.NewValidationError("batch", cfg.Batch, "must be positive")
	}
	if cfg.Interval <= 0 {
		return errors.NewValidationError("interval_sec", cfg.Interval.Seconds(), "must be positive")
	}
	if len(cfg.Bars) == 0 {
		return errors.NewValidationError("bars", nil, "at least one bar required")
	}
	for _, b := range cfg.Bars {
		if !utils.IsValidBar(b.Bar) {
			return errors.NewValidationError("bars", b.Bar, "unknown bar")
		}
		if b.Limit <= 0 {
			return errors.NewValidationError("bars", b.Bar, "limit must be positive")
		}
	}
	return nil
}

// New creates a stopped scanner.
func New(source market.DataSource, sink store.CandleSink, cfg models.ScanConfig, opts ...Option) (*Scanner, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	s := &Scanner{
		source:      source,
		sink:        sink,
		logger:      zerolog.Nop(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.apply(cfg)
	return s, nil
}

// apply installs cfg and resets the counters. Callers hold mu.
func (s *Scanner) apply(cfg models.ScanConfig) {
	s.rotation = NewRotation(cfg.Symbols, cfg.Batch)
	s.bars = slices.Clone(cfg.Bars)
	s.batch = cfg.Batch
	s.interval = cfg.Interval
	s.processed = 0
	s.artifacts = nil
	s.gen++
}

// Start launches the tick loop. It is a no-op when already running.
func (s *Scanner) Start(ctx context.Context) {
	s.ctrl.Lock()
	defer s.ctrl.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.startLocked(ctx)
}

func (s *Scanner) startLocked(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.parent = ctx
	s.cancel = cancel
	s.done = done
	s.running = true
	s.metrics.SetRunning(true)

	go s.loop(loopCtx, s.gen, s.interval, done)
	s.logger.Info().Int("symbols", s.rotation.Len()).Dur("interval", s.interval).Msg("Scanner started")
}

// Stop cancels the loop and waits for it to exit. It is a no-op when
// stopped.
func (s *Scanner) Stop() {
	s.ctrl.Lock()
	defer s.ctrl.Unlock()
	s.stop()
}

func (s *Scanner) stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	<-done
	s.metrics.SetRunning(false)
	s.logger.Info().Msg("Scanner stopped")
}

// Reconfigure replaces the rotation, bars, batch size and interval and
// resets the counters. A running scanner is restarted with the new
// configuration.
func (s *Scanner) Reconfigure(cfg models.ScanConfig) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	s.ctrl.Lock()
	defer s.ctrl.Unlock()

	s.mu.Lock()
	wasRunning, parent := s.running, s.parent
	s.mu.Unlock()

	s.stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(cfg)
	if wasRunning {
		s.startLocked(parent)
	}
	return nil
}

// Running reports whether the loop is active.
func (s *Scanner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns a snapshot of the scanner state.
func (s *Scanner) Status() models.ScanStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.ScanStatus{
		Running:          s.running,
		Symbols:          s.rotation.Symbols(),
		Bars:             slices.Clone(s.bars),
		Batch:            s.batch,
		IntervalSec:      int(s.interval / time.Second),
		NextBatch:        s.rotation.Peek(),
		ProcessedBatches: s.processed,
		SavedFiles:       slices.Clone(s.artifacts),
	}
}

// RunOnce performs a single tick in the caller's goroutine. It fails with
// ErrScannerRunning while the loop is active, and holds off Start until the
// tick is done.
func (s *Scanner) RunOnce(ctx context.Context) (TickReport, error) {
	s.ctrl.Lock()
	defer s.ctrl.Unlock()

	s.mu.Lock()
	running, gen := s.running, s.gen
	s.mu.Unlock()
	if running {
		return TickReport{}, errors.ErrScannerRunning
	}
	return s.tick(ctx, gen), nil
}

func (s *Scanner) loop(ctx context.Context, gen uint64, interval time.Duration, done chan struct{}) {
	defer close(done)
	defer s.exited(done)
	for {
		s.tick(ctx, gen)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// exited clears the running flag when the loop ends on its own, for example
// when the parent context is cancelled.
func (s *Scanner) exited(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == done && s.running {
		s.running = false
		s.cancel = nil
		s.metrics.SetRunning(false)
	}
}

type fetchResult struct {
	idx    int
	instID string
	bar    string
	series *models.CandleSeries
	err    error
}

func (s *Scanner) tick(ctx context.Context, gen uint64) TickReport {
	s.mu.Lock()
	if gen != s.gen || ctx.Err() != nil {
		s.mu.Unlock()
		return TickReport{}
	}
	symbols := s.rotation.NextBatch()
	bars := slices.Clone(s.bars)
	s.mu.Unlock()

	report := TickReport{Symbols: symbols}
	if len(symbols) == 0 {
		return report
	}

	start := time.Now()
	for _, res := range s.fetchAll(ctx, symbols, bars) {
		if res.err != nil {
			report.Skipped++
			s.metrics.FetchFailed(res.bar)
			s.logger.Warn().Err(res.err).Str("inst_id", res.instID).Str("bar", res.bar).Msg("Fetch skipped")
			continue
		}
		if ctx.Err() != nil {
			break
		}
		handle, err := s.sink.AppendRows(ctx, res.instID, res.bar, res.series.Rows)
		if err != nil {
			report.Skipped++
			s.logger.Warn().Err(err).Str("inst_id", res.instID).Str("bar", res.bar).Msg("Persist skipped")
			continue
		}
		report.Saved = append(report.Saved, handle)
		report.Rows += res.series.Len()
	}
	elapsed := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || ctx.Err() != nil {
		return report
	}
	s.processed++
	for _, h := range report.Saved {
		s.artifacts = slices.DeleteFunc(s.artifacts, func(a string) bool { return a == h })
		s.artifacts = append(s.artifacts, h)
	}
	if len(s.artifacts) > MaxArtifacts {
		s.artifacts = slices.Clone(s.artifacts[len(s.artifacts)-MaxArtifacts:])
	}

	s.metrics.ObserveTick(elapsed, len(report.Saved), report.Rows)
	logging.LogBatch(s.logger, symbols, len(report.Saved), report.Skipped, elapsed)
	return report
}

// fetchAll fetches every (symbol, bar) pair concurrently. Results come back
// in symbol-major order; failures are carried in the result.
func (s *Scanner) fetchAll(ctx context.Context, symbols []string, bars models.BarSet) []fetchResult {
	p := pool.NewWithResults[fetchResult]().
		WithContext(ctx).
		WithMaxGoroutines(s.concurrency)

	idx := 0
	for _, inst := range symbols {
		for _, b := range bars {
			inst, b := inst, b
			i := idx
			idx++
			p.Go(func(ctx context.Context) (fetchResult, error) {
				series, err := s.source.FetchCandles(ctx, inst, b.Bar, b.Limit)
				return fetchResult{idx: i, instID: inst, bar: b.Bar, series: series, err: err}, nil
			})
		}
	}

	results, _ := p.Wait()
	slices.SortFunc(results, func(a, b fetchResult) int { return a.idx - b.idx })
	return results
}
