package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# OKX Scanner Configuration
# Environment variables (API_KEY, DATA_DIR, SCAN_SYMBOLS, SCAN_BARS, SCAN_BATCH,
# SCAN_INTERVAL_SEC, OKX_BASE, PORT, LOG_LEVEL, STORE_BACKEND) override these values.

[server]
port = 8000
# Key required on every non-public endpoint
api_key = "change-me"
# Start the background scanner with the server
auto_start_scanner = false

[okx]
base_url = "https://www.okx.com"
timeout_sec = 10
# Fail fast for breaker_cooldown_sec after this many consecutive outages (0 = off)
breaker_failures = 5
breaker_cooldown_sec = 30

[scan]
# Comma separated instrument ids
symbols = "ETH-USDT,SOL-USDT,BNB-USDT,OP-USDT,ARB-USDT"
# Ordered BAR:LIMIT pairs
bars = "1D:50,4H:50,1H:50,15m:150,5m:150"
# Symbols per batch
batch = 5
# Seconds between batches
interval_sec = 30

[storage]
# Backend: csv, sqlite
backend = "csv"
data_dir = "/var/tmp/okxdata"
# Defaults to <data_dir>/okxscan.db
db_path = ""

[risk]
funds_total = 694.0
funds_split = 7
leverage = 5.0
risk_percent = 2.0

[logging]
# debug, info, warn, error
level = "info"
# Also write a rotating log file under the config directory
file = false
json = false
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}
