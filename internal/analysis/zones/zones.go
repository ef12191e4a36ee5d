// Package zones derives key price zones around the latest swing levels.
package zones

import (
	"math"

	"okx-scanner/internal/analysis/indicators"
	"okx-scanner/internal/models"
)

// membershipTolerance absorbs floating point error at the zone bounds.
const membershipTolerance = 1e-12

// Zones holds the optional long and short key zones.
type Zones struct {
	Long   *models.Zone
	Short  *models.Zone
	Swings indicators.SwingLevels
}

// Width returns the zone width for the latest bar range and ATR.
func Width(lastHigh, lastLow, atr float64) float64 {
	return math.Max(0.5*(lastHigh-lastLow), 0.75*atr)
}

// KeyZones centres a long zone on the last swing low and a short zone on the
// last swing high. A side without a swing gets no zone.
func KeyZones(high, low []float64, atr float64) Zones {
	n := min(len(high), len(low))
	if n == 0 {
		return Zones{Swings: indicators.SwingLevels{HighIndex: -1, LowIndex: -1}}
	}

	ph, pl := indicators.Pivots(high, low, indicators.DefaultPivotLeft, indicators.DefaultPivotRight)
	swings := indicators.LastSwingLevels(high, low, ph, pl)
	half := Width(high[n-1], low[n-1], atr) / 2

	z := Zones{Swings: swings}
	if swings.Low != nil {
		z.Long = &models.Zone{Lo: *swings.Low - half, Hi: *swings.Low + half}
	}
	if swings.High != nil {
		z.Short = &models.Zone{Lo: *swings.High - half, Hi: *swings.High + half}
	}
	return z
}

// InZone reports whether price lies inside the zone, bounds included.
func InZone(price float64, zone *models.Zone) bool {
	if zone == nil {
		return false
	}
	return price >= zone.Lo*(1-membershipTolerance) && price <= zone.Hi*(1+membershipTolerance)
}
