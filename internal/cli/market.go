package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"okx-scanner/internal/market"
	"okx-scanner/internal/models"
	"okx-scanner/internal/risk"
	"okx-scanner/internal/screener"
	"okx-scanner/internal/security"
	"okx-scanner/internal/strategy"
	"okx-scanner/pkg/utils"
)

func addMarketCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newCandlesCmd(app))
	rootCmd.AddCommand(newEvaluateCmd(app))
	rootCmd.AddCommand(newScanTopCmd(app))
	rootCmd.AddCommand(newScanOnceCmd(app))
}

// evalFlags are the evaluation parameters shared by evaluate and scan-top.
type evalFlags struct {
	policy    string
	bar       string
	trendBar  string
	limit     int
	noExclude bool
	sizing    risk.Params
}

func (f *evalFlags) register(cmd *cobra.Command) {
	def := screener.DefaultParams()
	cmd.Flags().StringVar(&f.policy, "policy", strategy.PolicyCustom, "strategy policy ("+strings.Join(strategy.PolicyNames(), ", ")+")")
	cmd.Flags().StringVar(&f.bar, "bar", def.Bar, "entry timeframe")
	cmd.Flags().StringVar(&f.trendBar, "trend-bar", def.TrendBar, "trend timeframe")
	cmd.Flags().IntVar(&f.limit, "limit", def.Limit, "candles per timeframe")
	cmd.Flags().BoolVar(&f.noExclude, "no-exclude", false, "ignore the exclusion list")
	cmd.Flags().Float64Var(&f.sizing.CapitalTotal, "funds-total", 0, "capital in quote currency (default from config)")
	cmd.Flags().IntVar(&f.sizing.Split, "funds-split", 0, "number of capital slices (default from config)")
	cmd.Flags().Float64Var(&f.sizing.Leverage, "leverage", 0, "leverage (default from config)")
	cmd.Flags().Float64Var(&f.sizing.RiskPercent, "risk-percent", 0, "risk per trade in percent (default from config)")
}

func (f *evalFlags) params(app *App) screener.Params {
	p := screener.DefaultParams()
	p.Bar = f.bar
	p.TrendBar = f.trendBar
	p.Limit = f.limit
	p.Exclude = !f.noExclude

	r := app.Config.Risk
	p.Sizing = risk.Params{
		CapitalTotal: pick(f.sizing.CapitalTotal, r.FundsTotal),
		Split:        pick(f.sizing.Split, r.FundsSplit),
		Leverage:     pick(f.sizing.Leverage, r.Leverage),
		RiskPercent:  pick(f.sizing.RiskPercent, r.RiskPercent),
	}
	return p
}

func pick[T int | float64](flag, def T) T {
	if flag != 0 {
		return flag
	}
	return def
}

// screenerFor builds the screener of a policy from the stored preferences.
func (f *evalFlags) screenerFor(app *App) (*screener.Screener, error) {
	policy, err := strategy.PolicyByName(f.policy)
	if err != nil {
		return nil, err
	}
	prefs, err := app.Prefs().Read()
	if err != nil {
		return nil, err
	}
	set, err := screener.ForPrefs(app.Source(), prefs,
		screener.WithMetrics(app.Metrics),
		screener.WithLogger(app.Logger),
	)
	if err != nil {
		return nil, err
	}
	return set[policy.Name], nil
}

func newCandlesCmd(app *App) *cobra.Command {
	var (
		bar   string
		limit int
		save  bool
	)

	cmd := &cobra.Command{
		Use:   "candles <inst-id>",
		Short: "Fetch raw candles, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			instID, err := security.ValidateInstID(args[0])
			if err != nil {
				return err
			}
			if !utils.IsValidBar(bar) {
				return failf(output, "unknown bar %q", bar)
			}
			if limit <= 0 {
				limit = market.DefaultLimit(bar)
			}
			if limit > market.MaxLimit {
				return failf(output, "limit must be at most %d", market.MaxLimit)
			}

			series, err := app.Source().FetchCandles(cmd.Context(), instID, bar, limit)
			if err != nil {
				return err
			}

			if save {
				svc, err := app.openService()
				if err != nil {
					return err
				}
				defer svc.backend.Close()
				handle, err := svc.backend.AppendRows(cmd.Context(), instID, bar, series.Rows)
				if err != nil {
					return err
				}
				if !output.IsJSON() {
					output.Success("Saved %d rows to %s", len(series.Rows), handle)
				}
			}

			if output.IsJSON() {
				return output.JSON(map[string]any{
					"inst_id": instID,
					"bar":     bar,
					"columns": models.CandleColumns,
					"data":    series.Rows,
				})
			}

			table := NewTable(output, "TIME", "OPEN", "HIGH", "LOW", "CLOSE", "VOL")
			for _, c := range series.Candles() {
				table.AddRow(
					c.Timestamp.UTC().Format("2006-01-02 15:04"),
					utils.FormatPrice(c.Open),
					utils.FormatPrice(c.High),
					utils.FormatPrice(c.Low),
					utils.FormatPrice(c.Close),
					utils.FormatPrice(c.Volume),
				)
			}
			output.Bold("%s %s (%d candles)", instID, bar, series.Len())
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&bar, "bar", "1H", "bar size")
	cmd.Flags().IntVar(&limit, "limit", 0, "number of candles (default depends on bar)")
	cmd.Flags().BoolVar(&save, "save", false, "append the candles to the configured store")
	return cmd
}

func newEvaluateCmd(app *App) *cobra.Command {
	flags := &evalFlags{}

	cmd := &cobra.Command{
		Use:   "evaluate <inst-id>",
		Short: "Evaluate the entry rules for one instrument",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			instID, err := security.ValidateInstID(args[0])
			if err != nil {
				return err
			}
			scr, err := flags.screenerFor(app)
			if err != nil {
				return err
			}
			sig, err := scr.Evaluate(cmd.Context(), instID, flags.params(app))
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(sig)
			}
			printSignal(output, sig)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newScanTopCmd(app *App) *cobra.Command {
	var (
		flags    = &evalFlags{}
		instType string
		top      int
	)

	cmd := &cobra.Command{
		Use:   "scan-top",
		Short: "Evaluate the top 24h movers",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			it, err := security.ValidateInstType(instType)
			if err != nil {
				return err
			}
			scr, err := flags.screenerFor(app)
			if err != nil {
				return err
			}
			res, err := scr.ScanTop(cmd.Context(), screener.TopRequest{
				Params:   flags.params(app),
				InstType: it,
				Top:      top,
			})
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(res)
			}

			output.Bold("Top %d %s movers (%s)", len(res.Table), it, res.Policy)
			table := NewTable(output, "#", "INSTRUMENT", "24H", "SIDE", "ENTRY", "STOP", "TARGET", "SIZE")
			for i, row := range res.Table {
				sig := row.Signal
				table.AddRow(
					fmt.Sprint(i+1),
					row.InstID,
					output.Change(row.ChangePct),
					output.Side(string(sig.Side)),
					FormatZone(sig.EntryZone),
					utils.FormatOptionalPrice(sig.StopLoss),
					utils.FormatOptionalPrice(sig.TakeProfit),
					utils.FormatPrice(sig.Risk.Quantity),
				)
			}
			table.Render()
			output.Dim("run %s", res.RunID)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&instType, "inst-type", string(models.InstSpot), "instrument type (SPOT, SWAP, FUTURES, MARGIN)")
	cmd.Flags().IntVar(&top, "top", 5, "number of movers to evaluate")
	return cmd
}

func newScanOnceCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "scan-once",
		Short: "Run one scanner batch and persist the candles",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			svc, err := app.openService()
			if err != nil {
				return err
			}
			defer svc.backend.Close()

			report, err := svc.scanner.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			status := svc.scanner.Status()
			if output.IsJSON() {
				return output.JSON(map[string]any{"report": report, "status": status})
			}

			output.Bold("Batch: %s", FormatList(report.Symbols))
			for _, handle := range report.Saved {
				output.Success("  saved %s", handle)
			}
			if report.Skipped > 0 {
				output.Warning("  %d fetches skipped", report.Skipped)
			}
			output.Dim("%d rows written, next batch: %s", report.Rows, FormatList(status.NextBatch))
			return nil
		},
	}
}

func printSignal(output *Output, sig models.Signal) {
	lines := []string{
		fmt.Sprintf("Side:        %s", output.Side(string(sig.Side))),
		fmt.Sprintf("Price:       %s", utils.FormatPrice(sig.Price)),
		fmt.Sprintf("Trend:       %s (%s)", sig.Diagnostics.Trend, sig.TrendBar),
	}
	if sig.Reason != "" {
		lines = append(lines, fmt.Sprintf("Reason:      %s", sig.Reason))
	}
	if sig.IsActionable() {
		lines = append(lines,
			fmt.Sprintf("Entry zone:  %s", FormatZone(sig.EntryZone)),
			fmt.Sprintf("Stop loss:   %s", utils.FormatOptionalPrice(sig.StopLoss)),
			fmt.Sprintf("Take profit: %s", utils.FormatOptionalPrice(sig.TakeProfit)),
			fmt.Sprintf("Size:        %s (risk %.2f%%, %s)", utils.FormatPrice(sig.Risk.Quantity), sig.Risk.RiskPercent, FormatAmount(sig.Risk.MarginCap)),
		)
	}
	if len(sig.Diagnostics.Patterns) > 0 {
		lines = append(lines, "Patterns:    "+strings.Join(sig.Diagnostics.Patterns, ", "))
	}

	output.Box(fmt.Sprintf("%s %s [%s %s]", sig.InstID, sig.Bar, sig.Policy, sig.Version), lines)
	for _, r := range sig.Reasoning {
		output.Dim("  - %s", r)
	}
}
