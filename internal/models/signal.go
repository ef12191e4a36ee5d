package models

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Side represents the direction of a signal.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
	SideFlat  Side = "flat"
)

// Trend represents the trend classification on the higher timeframe.
type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendNeutral Trend = "neutral"
)

// Zone is an inclusive price band. It encodes to JSON as [lo, hi].
type Zone struct {
	Lo float64
	Hi float64
}

// Mid returns the midpoint of the zone.
func (z Zone) Mid() float64 {
	return (z.Lo + z.Hi) / 2
}

// MarshalJSON encodes the zone as a two-element array.
func (z Zone) MarshalJSON() ([]byte, error) {
	return sonic.Marshal([2]float64{z.Lo, z.Hi})
}

// UnmarshalJSON decodes a two-element array.
func (z *Zone) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := sonic.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("zone must have 2 elements, got %d", len(pair))
	}
	z.Lo, z.Hi = pair[0], pair[1]
	return nil
}

// Diagnostics holds the intermediate findings behind a signal. They are
// reported for flat signals too.
type Diagnostics struct {
	Trend          Trend    `json:"trend"`
	LongZone       *Zone    `json:"long_zone"`
	ShortZone      *Zone    `json:"short_zone"`
	InLongZone     bool     `json:"in_long_zone"`
	InShortZone    bool     `json:"in_short_zone"`
	SwingHigh      *float64 `json:"swing_high"`
	SwingLow       *float64 `json:"swing_low"`
	BreakHigh      bool     `json:"bos_high"`
	BreakLow       bool     `json:"bos_low"`
	Patterns       []string `json:"patterns"`
	LongConfirmed  bool     `json:"long_confirmed"`
	ShortConfirmed bool     `json:"short_confirmed"`
}

// RiskPlan is the position sizing attached to a signal.
type RiskPlan struct {
	CapitalTotal float64 `json:"funds_total"`
	Split        int     `json:"funds_split"`
	Leverage     float64 `json:"leverage"`
	RiskPercent  float64 `json:"risk_percent"`
	MarginCap    float64 `json:"margin_cap"`
	NotionalCap  float64 `json:"notional_cap"`
	RiskPerUnit  float64 `json:"risk_per_unit"`
	QtyByRisk    float64 `json:"qty_by_risk"`
	QtyByMargin  float64 `json:"qty_by_margin"`
	Quantity     float64 `json:"position_size"`
}

// Signal is the result of one evaluation. It carries no identity.
type Signal struct {
	InstID       string             `json:"inst_id"`
	Bar          string             `json:"bar"`
	TrendBar     string             `json:"trend_bar"`
	Policy       string             `json:"policy"`
	Version      string             `json:"version"`
	Side         Side               `json:"side"`
	Reason       string             `json:"reason,omitempty"`
	Price        float64            `json:"price"`
	EntryZone    *Zone              `json:"entry_zone"`
	EntryPrice   float64            `json:"entry_price_est"`
	StopLoss     *float64           `json:"stop_loss"`
	TakeProfit   *float64           `json:"take_profit"`
	Invalidation *float64           `json:"invalidation"`
	Indicators   map[string]float64 `json:"indicators"`
	Diagnostics  Diagnostics        `json:"signals"`
	Risk         RiskPlan           `json:"risk"`
	Reasoning    []string           `json:"reasoning"`
}

// IsActionable reports whether the signal suggests a position.
func (s *Signal) IsActionable() bool {
	return s.Side == SideLong || s.Side == SideShort
}

// ScanRow is one line of a screener result table.
type ScanRow struct {
	Mover
	Signal Signal `json:"signal"`
}

// ScanResult is the output of a top-movers scan.
type ScanResult struct {
	RunID    string    `json:"run_id"`
	Policy   string    `json:"policy"`
	Selected []string  `json:"selected"`
	Table    []ScanRow `json:"table"`
}
