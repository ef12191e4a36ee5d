package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"okx-scanner/internal/api"
	"okx-scanner/internal/logging"
	"okx-scanner/internal/market"
	"okx-scanner/internal/models"
	"okx-scanner/internal/scanner"
	"okx-scanner/internal/screener"
	"okx-scanner/internal/security"
	"okx-scanner/internal/store"
)

const shutdownTimeout = 10 * time.Second

// service bundles the long-lived components shared by serve and scan-once.
type service struct {
	source  *market.OKXClient
	backend store.Backend
	journal store.SignalJournal
	prefs   *store.PrefsStore
	scanner *scanner.Scanner
}

func (a *App) openService() (*service, error) {
	backend, err := store.Open(a.Config.Storage.Backend, a.Config.Storage.DataDir, a.Config.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	svc := &service{
		source:  a.Source(),
		backend: backend,
		prefs:   a.Prefs(),
	}
	if j, ok := backend.(store.SignalJournal); ok {
		svc.journal = j
	}

	scanCfg, err := a.scanConfig(svc.prefs)
	if err != nil {
		backend.Close()
		return nil, err
	}
	svc.scanner, err = scanner.New(svc.source, backend, scanCfg,
		scanner.WithLogger(a.Logger),
		scanner.WithMetrics(a.Metrics),
	)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return svc, nil
}

// scanConfig is the configured scan with the stored preferences applied to
// the fields the environment does not pin.
func (a *App) scanConfig(prefs *store.PrefsStore) (models.ScanConfig, error) {
	cfg := a.Config.ScanConfig()
	p, err := prefs.Read()
	if err != nil {
		return cfg, err
	}
	p.SeedScan(&cfg, a.Config.ScanFieldPinned)
	return cfg, nil
}

func (s *service) screeners(a *App) api.ScreenerFactory {
	return func(p store.Prefs) (map[string]*screener.Screener, error) {
		return screener.ForPrefs(s.source, p,
			screener.WithJournal(s.journal),
			screener.WithMetrics(a.Metrics),
			screener.WithLogger(a.Logger),
		)
	}
}

func newServeCmd(app *App) *cobra.Command {
	var (
		autoStart bool
		port      int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service and the background scanner",
		Long: `Serve the market data, scanner control, artifact and strategy endpoints.

The scanner starts idle unless auto_start_scanner is set in config.toml or
--auto-start is given. SIGINT and SIGTERM stop the scanner and drain the
HTTP server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				app.Config.Server.Port = port
			}
			return runServe(cmd.Context(), app, autoStart || app.Config.Server.AutoStartScanner)
		},
	}

	cmd.Flags().BoolVar(&autoStart, "auto-start", false, "start the scanner with the server")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	return cmd
}

func runServe(parent context.Context, app *App, autoStart bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.WithComponent(app.Logger, "serve")

	svc, err := app.openService()
	if err != nil {
		return err
	}
	defer svc.backend.Close()

	audit, err := security.NewAuditLogger(security.DefaultAuditConfig(app.Config.Storage.DataDir))
	if err != nil {
		logger.Warn().Err(err).Msg("Audit log unavailable")
	}
	defer audit.Close()

	srv, err := api.New(api.Deps{
		Config:      app.Config,
		Source:      svc.source,
		Scanner:     svc.scanner,
		Backend:     svc.backend,
		Journal:     svc.journal,
		Prefs:       svc.prefs,
		Screeners:   svc.screeners(app),
		Metrics:     app.Metrics,
		Audit:       audit,
		Logger:      app.Logger,
		BaseContext: ctx,
	})
	if err != nil {
		return err
	}

	if autoStart {
		svc.scanner.Start(ctx)
		_ = audit.LogScan(ctx, security.AuditScanStarted, map[string]any{"auto": true}, nil)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	case err = <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}

	svc.scanner.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn().Err(serr).Msg("HTTP shutdown incomplete")
	}
	return err
}
