// Package api exposes the scanner, the strategy engines and the stored
// artifacts over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"okx-scanner/internal/config"
	"okx-scanner/internal/logging"
	"okx-scanner/internal/market"
	"okx-scanner/internal/metrics"
	"okx-scanner/internal/models"
	"okx-scanner/internal/risk"
	"okx-scanner/internal/scanner"
	"okx-scanner/internal/screener"
	"okx-scanner/internal/security"
	"okx-scanner/internal/store"
	"okx-scanner/internal/strategy"
)

// ScreenerFactory builds the per-policy screeners for a preference set.
type ScreenerFactory func(prefs store.Prefs) (map[string]*screener.Screener, error)

// Deps are the collaborators of the HTTP server.
type Deps struct {
	Config  *config.Config
	Source  market.DataSource
	Scanner *scanner.Scanner
	Backend store.Backend
	// Journal is nil when the backend keeps no signal journal.
	Journal   store.SignalJournal
	Prefs     *store.PrefsStore
	Screeners ScreenerFactory
	Metrics   *metrics.Metrics
	Audit     *security.AuditLogger
	Logger    zerolog.Logger
	// BaseContext parents the scanner loop started through the API.
	BaseContext context.Context
}

// Server is the HTTP front of the service.
type Server struct {
	cfg      *config.Config
	source   market.DataSource
	scanner  *scanner.Scanner
	backend  store.Backend
	journal  store.SignalJournal
	prefs    *store.PrefsStore
	build    ScreenerFactory
	metrics  *metrics.Metrics
	audit    *security.AuditLogger
	logger   zerolog.Logger
	baseCtx  context.Context
	router   *gin.Engine
	httpSrv  *http.Server
	defaults models.ScanConfig

	mu        sync.RWMutex
	screeners map[string]*screener.Screener
}

// New creates the server and its router. The screeners are built from the
// stored preferences.
func New(d Deps) (*Server, error) {
	if d.BaseContext == nil {
		d.BaseContext = context.Background()
	}
	s := &Server{
		cfg:     d.Config,
		source:  d.Source,
		scanner: d.Scanner,
		backend: d.Backend,
		journal: d.Journal,
		prefs:   d.Prefs,
		build:   d.Screeners,
		metrics: d.Metrics,
		audit:   d.Audit,
		logger:  logging.WithComponent(d.Logger, "api"),
		baseCtx: d.BaseContext,
	}

	prefs, err := s.prefs.Read()
	if err != nil {
		return nil, fmt.Errorf("reading prefs: %w", err)
	}
	if err := s.rebuildScreeners(prefs); err != nil {
		return nil, err
	}
	s.reseedDefaults(prefs)

	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on the configured port until Shutdown.
func (s *Server) ListenAndServe() error {
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("HTTP server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(s.recoverJSON(), s.requestContext(), s.requestLogger(), s.observe())

	r.GET("/health", s.health)
	r.GET("/dashboard", s.dashboard)
	r.GET("/debug/echo", s.debugEcho)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	keyed := r.Group("/", s.requireAPIKey())
	keyed.GET("/ticker", s.ticker)
	keyed.GET("/tickers", s.tickers)
	keyed.GET("/candles", s.candles)

	keyed.POST("/scan/start", s.scanStart)
	keyed.POST("/scan/stop", s.scanStop)
	keyed.GET("/scan/status", s.scanStatus)

	keyed.GET("/files/list", s.filesList)
	keyed.GET("/files/download", s.filesDownload)

	keyed.GET("/prefs", s.prefsGet)
	keyed.POST("/prefs", s.prefsUpdate)

	keyed.GET("/strategy/:policy/evaluate", s.strategyEvaluate)
	keyed.GET("/strategy/:policy/scan", s.strategyScan)
	keyed.GET("/signals/recent", s.signalsRecent)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "detail": c.Request.URL.Path})
	})
	return r
}

func (s *Server) rebuildScreeners(prefs store.Prefs) error {
	set, err := s.build(prefs)
	if err != nil {
		return fmt.Errorf("building screeners: %w", err)
	}
	s.mu.Lock()
	s.screeners = set
	s.mu.Unlock()
	return nil
}

// screener resolves a policy name or alias to its screener.
func (s *Server) screener(policy string) (*screener.Screener, bool) {
	if p, err := strategy.PolicyByName(policy); err == nil {
		policy = p.Name
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	scr, ok := s.screeners[policy]
	return scr, ok
}

// riskDefaults returns the configured sizing inputs.
func (s *Server) riskDefaults() risk.Params {
	return risk.Params{
		CapitalTotal: s.cfg.Risk.FundsTotal,
		Split:        s.cfg.Risk.FundsSplit,
		Leverage:     s.cfg.Risk.Leverage,
		RiskPercent:  s.cfg.Risk.RiskPercent,
	}
}
