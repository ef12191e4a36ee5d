package indicators

// Default pivot window sizes.
const (
	DefaultPivotLeft  = 2
	DefaultPivotRight = 2
)

// Pivots flags swing highs and lows. A bar is a pivot high when its high is
// strictly above each of the left neighbours and at least as high as each of
// the right neighbours; pivot lows mirror this. Bars without a full window on
// either side are never flagged.
func Pivots(high, low []float64, left, right int) (pivotHigh, pivotLow []bool) {
	n := min(len(high), len(low))
	pivotHigh = make([]bool, n)
	pivotLow = make([]bool, n)
	if left < 0 {
		left = 0
	}
	if right < 0 {
		right = 0
	}

	for i := left; i < n-right; i++ {
		isHigh, isLow := true, true
		for k := 1; k <= left; k++ {
			if !(high[i] > high[i-k]) {
				isHigh = false
			}
			if !(low[i] < low[i-k]) {
				isLow = false
			}
		}
		for k := 1; k <= right; k++ {
			if !(high[i] >= high[i+k]) {
				isHigh = false
			}
			if !(low[i] <= low[i+k]) {
				isLow = false
			}
		}
		pivotHigh[i] = isHigh
		pivotLow[i] = isLow
	}
	return pivotHigh, pivotLow
}

// SwingLevels holds the most recent confirmed swing prices.
type SwingLevels struct {
	High      *float64
	HighIndex int
	Low       *float64
	LowIndex  int
}

// LastSwingLevels scans backward for the most recent pivot high and pivot
// low. A missing side is nil with index -1.
func LastSwingLevels(high, low []float64, pivotHigh, pivotLow []bool) SwingLevels {
	levels := SwingLevels{HighIndex: -1, LowIndex: -1}
	for i := min(len(high), len(pivotHigh)) - 1; i >= 0; i-- {
		if pivotHigh[i] {
			v := high[i]
			levels.High, levels.HighIndex = &v, i
			break
		}
	}
	for i := min(len(low), len(pivotLow)) - 1; i >= 0; i-- {
		if pivotLow[i] {
			v := low[i]
			levels.Low, levels.LowIndex = &v, i
			break
		}
	}
	return levels
}
