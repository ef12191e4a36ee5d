// Package cli provides the command-line interface for the scanner service.
package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"okx-scanner/internal/config"
	"okx-scanner/internal/logging"
	"okx-scanner/internal/market"
	"okx-scanner/internal/metrics"
	"okx-scanner/internal/resilience"
	"okx-scanner/internal/store"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2025-06-01"
)

// App holds the application dependencies. They are built once the flags
// are parsed.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	Breaker   *resilience.Breaker
}

// Source creates the OKX client for the loaded configuration. Clients share
// the application breaker.
func (a *App) Source() *market.OKXClient {
	return market.NewOKXClient(a.Config.OKX.BaseURL, a.Config.Timeout(),
		market.WithLogger(logging.WithComponent(a.Logger, "okx")),
		market.WithMetrics(a.Metrics),
		market.WithBreaker(a.Breaker),
	)
}

// Prefs returns the preferences store of the data directory.
func (a *App) Prefs() *store.PrefsStore {
	return store.NewPrefsStore(a.Config.Storage.DataDir)
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "okxscan",
		Short: "OKX candle scanner and signal engine",
		Long: `okxscan fetches OKX candles in rotating batches, keeps them on disk and
evaluates the multi-timeframe entry rules on demand.

Run 'okxscan serve' for the HTTP service, or use the one-shot commands
(evaluate, scan-top, candles, scan-once) from a shell.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/okx-scanner)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	addMarketCommands(rootCmd, app)
	rootCmd.AddCommand(newPrefsCmd(app))

	return rootCmd
}

func (a *App) init(cmd *cobra.Command) error {
	dir, _ := cmd.Flags().GetString("config")
	if dir == "" {
		dir = config.DefaultConfigDir()
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	a.Config = cfg
	a.ConfigDir = dir

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.JSON = cfg.Logging.JSON
	logCfg.File = cfg.Logging.File
	logCfg.FilePath = filepath.Join(dir, "logs", "okxscan.log")
	a.Logger = logging.NewLoggerWithConfig(logCfg)

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logging.SetDebugLevel()
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}
	a.Metrics = metrics.New()
	a.Breaker = resilience.New(resilience.Config{
		FailureThreshold: cfg.OKX.BreakerFailures,
		Cooldown:         time.Duration(cfg.OKX.BreakerCooldownSec) * time.Second,
	})
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// version must work without a readable config
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
				return
			}
			output.Printf("okxscan v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View the effective configuration after config.toml and environment overrides.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				view := *app.Config
				view.Server.APIKey = MaskKey(view.Server.APIKey)
				return output.JSON(view)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			path := filepath.Join(app.ConfigDir, "config.toml")
			if output.IsJSON() {
				_ = output.JSON(map[string]string{"path": path})
				return
			}
			output.Println(path)
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	scan := cfg.ScanConfig()

	output.Bold("Server")
	output.Printf("  Port:            %d\n", cfg.Server.Port)
	output.Printf("  API key:         %s\n", MaskKey(cfg.Server.APIKey))
	output.Printf("  Auto start:      %v\n", cfg.Server.AutoStartScanner)
	output.Println()

	output.Bold("Upstream")
	output.Printf("  Base URL:        %s\n", cfg.OKX.BaseURL)
	output.Printf("  Timeout:         %s\n", cfg.Timeout())
	output.Println()

	output.Bold("Scanner")
	output.Printf("  Symbols:         %s\n", FormatList(scan.Symbols))
	output.Printf("  Bars:            %s\n", FormatBars(scan.Bars))
	output.Printf("  Batch:           %d\n", scan.Batch)
	output.Printf("  Interval:        %s\n", scan.Interval)
	if pinned := pinnedFields(cfg); len(pinned) > 0 {
		output.Dim("  Pinned by environment: %s", FormatList(pinned))
	}
	output.Println()

	output.Bold("Storage")
	output.Printf("  Backend:         %s\n", cfg.Storage.Backend)
	output.Printf("  Data dir:        %s\n", cfg.Storage.DataDir)
	if cfg.Storage.Backend == config.BackendSQLite {
		output.Printf("  Database:        %s\n", cfg.Storage.DBPath)
	}
	output.Println()

	output.Bold("Risk defaults")
	output.Printf("  Funds total:     %s\n", FormatAmount(cfg.Risk.FundsTotal))
	output.Printf("  Funds split:     %d\n", cfg.Risk.FundsSplit)
	output.Printf("  Leverage:        %.1fx\n", cfg.Risk.Leverage)
	output.Printf("  Risk per trade:  %.2f%%\n", cfg.Risk.RiskPercent)
	return nil
}

func pinnedFields(cfg *config.Config) []string {
	var out []string
	for _, f := range []string{"bars", "batch", "interval_sec"} {
		if cfg.ScanFieldPinned(f) {
			out = append(out, f)
		}
	}
	return out
}

// exitError carries a message already printed to the user.
type exitError struct {
	msg string
}

func (e *exitError) Error() string { return e.msg }

// IsReported reports whether err was already printed by the command.
func IsReported(err error) bool {
	var e *exitError
	return errors.As(err, &e)
}

func failf(output *Output, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	output.Error("%s", msg)
	return &exitError{msg: msg}
}
