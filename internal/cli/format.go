package cli

import (
	"fmt"
	"strings"
	"time"

	"okx-scanner/internal/models"
	"okx-scanner/pkg/utils"
)

// FormatAmount formats a quote currency amount with thousands separators
// and two decimals, e.g. "1,234.50 USDT".
func FormatAmount(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	intPart, decPart, _ := strings.Cut(str, ".")

	result := groupThousands(intPart) + "." + decPart + " USDT"
	if negative {
		result = "-" + result
	}
	return result
}

// groupThousands inserts a comma every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatChange formats a 24h change.
func FormatChange(pct float64) string {
	return utils.FormatPercent(pct)
}

// FormatList joins values for display, or a dash when empty.
func FormatList(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

// FormatBars renders a bar set as "1D:50 4H:50".
func FormatBars(bars models.BarSet) string {
	if len(bars) == 0 {
		return "-"
	}
	parts := make([]string, len(bars))
	for i, b := range bars {
		parts[i] = fmt.Sprintf("%s:%d", b.Bar, b.Limit)
	}
	return strings.Join(parts, " ")
}

// FormatZone renders an entry zone as "lo - hi".
func FormatZone(z *models.Zone) string {
	if z == nil {
		return "-"
	}
	return utils.FormatPrice(z.Lo) + " - " + utils.FormatPrice(z.Hi)
}

// MaskKey hides all but the last four characters of a key.
func MaskKey(key string) string {
	return utils.MaskSecret(key)
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// PadRight pads a string to the right to a visible width. Colour codes do
// not count towards the width.
func PadRight(s string, length int) string {
	n := visibleLen(s)
	if n >= length {
		return s
	}
	return s + strings.Repeat(" ", length-n)
}
