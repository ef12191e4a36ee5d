package utils

import (
	"strings"
	"time"
)

var barDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1H":  time.Hour,
	"2H":  2 * time.Hour,
	"4H":  4 * time.Hour,
	"6H":  6 * time.Hour,
	"12H": 12 * time.Hour,
	"1D":  24 * time.Hour,
	"2D":  48 * time.Hour,
	"3D":  72 * time.Hour,
	"1W":  7 * 24 * time.Hour,
	"1M":  30 * 24 * time.Hour,
}

// BarDuration returns the duration of an OKX bar label such as "15m" or "4H".
func BarDuration(bar string) (time.Duration, bool) {
	d, ok := barDurations[bar]
	return d, ok
}

// IsValidBar reports whether bar is a known OKX bar label.
func IsValidBar(bar string) bool {
	_, ok := barDurations[bar]
	return ok
}

// NormalizeInstID upper-cases and trims an instrument id.
func NormalizeInstID(instID string) string {
	return strings.ToUpper(strings.TrimSpace(instID))
}

// SafeInstID makes an instrument id usable as a file name component.
func SafeInstID(instID string) string {
	return strings.ReplaceAll(instID, "/", "-")
}
