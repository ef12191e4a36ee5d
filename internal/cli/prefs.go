package cli

import (
	"encoding/json"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"okx-scanner/internal/store"
)

func newPrefsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "View and edit runtime preferences",
		Long: `Preferences live in prefs.json under the data directory. They hold the
exclusion list, the risk cap and the scan bars, batch and interval. The
running service picks up changes made through its /prefs endpoint; edits
made here apply on the next start.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the stored preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			p, err := app.Prefs().Read()
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(p)
			}
			showPrefs(output, p)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one preference",
		Example: `  okxscan prefs set batch 3
  okxscan prefs set exclude_symbols '["BTC","ETH-USDT"]'
  okxscan prefs set bars '{"4H":50,"1H":100}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			patch, err := prefPatch(args[0], args[1])
			if err != nil {
				return err
			}
			p, err := app.Prefs().Update(patch)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(p)
			}
			output.Success("Updated %s", args[0])
			showPrefs(output, p)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the preferences file path",
		Run: func(cmd *cobra.Command, args []string) {
			NewOutput(cmd).Println(app.Prefs().Path())
		},
	})

	return cmd
}

// prefPatch builds a one-key JSON patch. A value that is not valid JSON is
// taken as a string.
func prefPatch(key, value string) ([]byte, error) {
	raw := json.RawMessage(value)
	if !sonic.Valid(raw) {
		raw = json.RawMessage(strconv.Quote(value))
	}
	return sonic.ConfigStd.Marshal(map[string]json.RawMessage{key: raw})
}

func showPrefs(output *Output, p store.Prefs) {
	output.Printf("  Excluded:        %s\n", FormatList(p.ExcludeSymbols))
	output.Printf("  Risk cap:        %.2f%%\n", p.RiskMaxPercent)
	output.Printf("  Bars:            %s\n", FormatBars(p.Bars))
	output.Printf("  Batch:           %d\n", p.Batch)
	output.Printf("  Interval:        %ds\n", p.IntervalSec)
}
