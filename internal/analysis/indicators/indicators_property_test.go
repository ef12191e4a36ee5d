package indicators

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"okx-scanner/internal/models"
)

// candleGen generates valid candle data with realistic OHLCV values
func candleGen() gopter.Gen {
	return gen.Struct(reflect.TypeOf(models.Candle{}), map[string]gopter.Gen{
		"Open":   gen.Float64Range(1.0, 5000.0),
		"High":   gen.Float64Range(1.0, 5000.0),
		"Low":    gen.Float64Range(1.0, 5000.0),
		"Close":  gen.Float64Range(1.0, 5000.0),
		"Volume": gen.Float64Range(0, 1e6),
	}).Map(func(c models.Candle) models.Candle {
		return fixCandle(c)
	})
}

// fixCandle enforces High >= max(Open, Close) and Low <= min(Open, Close).
func fixCandle(c models.Candle) models.Candle {
	if c.Open <= 0 {
		c.Open = 1
	}
	if c.Close <= 0 {
		c.Close = 1
	}
	c.High = math.Max(c.High, math.Max(c.Open, c.Close))
	if c.Low <= 0 {
		c.Low = math.Min(c.Open, c.Close)
	}
	c.Low = math.Min(c.Low, math.Min(c.Open, c.Close))
	return c
}

// candleSliceGen generates a slice of valid candles
func candleSliceGen(minLen, maxLen int) gopter.Gen {
	return gen.IntRange(minLen, maxLen).FlatMap(func(n interface{}) gopter.Gen {
		return gen.SliceOfN(n.(int), candleGen())
	}, reflect.TypeOf([]models.Candle{})).Map(func(candles []models.Candle) []models.Candle {
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		for i := range candles {
			candles[i] = fixCandle(candles[i])
			candles[i].Timestamp = start.Add(time.Duration(i) * 15 * time.Minute)
		}
		return candles
	})
}

// distinctSeries returns n pairwise-distinct values derived from seed.
func distinctSeries(seed int64, n int) []float64 {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	out := make([]float64, n)
	for i, p := range perm {
		out[i] = 100 + float64(p)
	}
	return out
}

func TestProperty_EMALengthAndSeed(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("EMA output has input length and starts at the first value", prop.ForAll(
		func(values []float64, period int) bool {
			out := EMASeries(values, period)
			if len(out) != len(values) {
				return false
			}
			return out[0] == values[0]
		},
		gen.SliceOfN(60, gen.Float64Range(0.0001, 100000)).SuchThat(func(v []float64) bool { return len(v) > 0 }),
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}

func TestProperty_EMAStaysWithinInputRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("EMA never leaves [min, max] of its input", prop.ForAll(
		func(candles []models.Candle, period int) bool {
			closes := ClosePrices(candles)
			lo, hi := Lowest(closes), Highest(closes)
			for _, v := range EMASeries(closes, period) {
				if v < lo-1e-9 || v > hi+1e-9 {
					return false
				}
			}
			return true
		},
		candleSliceGen(1, 120),
		gen.IntRange(1, 150),
	))

	properties.TestingRun(t)
}

func TestProperty_ATRIsNonNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	// Shrinking can produce candles that bypass the generator constraints.
	parameters.MaxShrinkCount = 0

	properties := gopter.NewProperties(parameters)

	properties.Property("ATR values are non-negative when high >= low", prop.ForAll(
		func(candles []models.Candle) bool {
			values := ATRSeries(HighPrices(candles), LowPrices(candles), ClosePrices(candles), DefaultATRPeriod)
			if len(values) != len(candles) {
				return false
			}
			for _, v := range values {
				if v < 0 || math.IsNaN(v) {
					return false
				}
			}
			return true
		},
		candleSliceGen(1, 120),
	))

	properties.TestingRun(t)
}

func TestProperty_PivotMirrorSymmetry(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	parameters.MaxShrinkCount = 0

	properties := gopter.NewProperties(parameters)

	// Mirroring in time and negating-with-swap (high' = -low, low' = -high)
	// turns every pivot high into a pivot low at the mirrored index.
	properties.Property("reversing and swapping high/low swaps pivot flags", prop.ForAll(
		func(seedHigh, seedLow int64, n int) bool {
			high := distinctSeries(seedHigh, n)
			low := distinctSeries(seedLow, n)

			mHigh := make([]float64, n)
			mLow := make([]float64, n)
			for i := 0; i < n; i++ {
				mHigh[i] = -low[n-1-i]
				mLow[i] = -high[n-1-i]
			}

			ph, pl := Pivots(high, low, DefaultPivotLeft, DefaultPivotRight)
			mph, mpl := Pivots(mHigh, mLow, DefaultPivotLeft, DefaultPivotRight)
			for i := 0; i < n; i++ {
				if ph[i] != mpl[n-1-i] || pl[i] != mph[n-1-i] {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.Int64(),
		gen.IntRange(0, 80),
	))

	properties.TestingRun(t)
}

func TestEMASeries_KnownValues(t *testing.T) {
	out := EMASeries([]float64{10, 11, 12}, 3)
	// k = 0.5
	want := []float64{10, 10.5, 11.25}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-12 {
			t.Fatalf("ema[%d] = %v, want %v", i, out[i], want[i])
		}
	}

	if got := EMASeries(nil, 5); len(got) != 0 {
		t.Errorf("empty input should give empty output, got %v", got)
	}
	if got := EMASeries([]float64{3, 4}, 0); got[1] != 4 {
		t.Errorf("period 0 should behave as period 1, got %v", got)
	}
}

func TestATRSeries_SeedAndWilder(t *testing.T) {
	high := []float64{10, 12, 13, 15}
	low := []float64{8, 9, 11, 12}
	close := []float64{9, 11, 12, 14}

	out := ATRSeries(high, low, close, 2)
	// tr = [2, 3, 2, 3]
	want := []float64{2, 2.5, 2.25, 2.625}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-12 {
			t.Fatalf("atr[%d] = %v, want %v", i, out[i], want[i])
		}
	}

	gap := ATRSeries([]float64{10, 20}, []float64{9, 19}, []float64{9.5, 19.5}, 14)
	// second bar gaps up: |20 - 9.5| dominates
	if math.Abs(gap[1]-(1+10.5)/2) > 1e-12 {
		t.Errorf("gap atr = %v", gap[1])
	}
}

func TestPivots_EdgesNeverFlagged(t *testing.T) {
	high := []float64{9, 8, 7, 6, 5}
	low := []float64{1, 2, 3, 4, 5}
	ph, pl := Pivots(high, low, 2, 2)
	for i := range ph {
		if ph[i] || pl[i] {
			t.Errorf("index %d flagged on a monotonic series", i)
		}
	}

	high = []float64{1, 2, 5, 3, 2, 1, 4, 6, 2, 1}
	low = []float64{0, 1, 4, 2, 0.5, 0.2, 3, 5, 1, 0}
	ph, pl = Pivots(high, low, 2, 2)
	if !ph[2] || !ph[7] {
		t.Errorf("expected pivot highs at 2 and 7, got %v", ph)
	}
	if !pl[5] {
		t.Errorf("expected pivot low at 5, got %v", pl)
	}
	if ph[9] || pl[9] || ph[0] || pl[0] {
		t.Error("boundary bars must not be flagged")
	}
}

func TestPivots_TieRules(t *testing.T) {
	// right neighbour equal is allowed, left neighbour equal is not
	ph, _ := Pivots([]float64{1, 2, 5, 5, 1, 0}, []float64{0, 0, 0, 0, 0, 0}, 2, 2)
	if !ph[2] {
		t.Error("equal right neighbour should still flag a pivot high")
	}
	if ph[3] {
		t.Error("equal left neighbour must not flag a pivot high")
	}
}

func TestLastSwingLevels(t *testing.T) {
	high := []float64{1, 2, 5, 3, 2, 1, 4, 6, 2, 1}
	low := []float64{0, 1, 4, 2, 0.5, 0.2, 3, 5, 1, 0}
	ph, pl := Pivots(high, low, 2, 2)
	levels := LastSwingLevels(high, low, ph, pl)

	if levels.High == nil || *levels.High != 6 || levels.HighIndex != 7 {
		t.Errorf("swing high = %+v", levels)
	}
	if levels.Low == nil || *levels.Low != 0.2 || levels.LowIndex != 5 {
		t.Errorf("swing low = %+v", levels)
	}

	none := LastSwingLevels([]float64{1, 2}, []float64{0, 1}, []bool{false, false}, []bool{false, false})
	if none.High != nil || none.Low != nil || none.HighIndex != -1 {
		t.Errorf("expected no swings, got %+v", none)
	}
}

func TestEngine_Snapshot(t *testing.T) {
	candles := []models.Candle{
		{Open: 1, High: 2, Low: 0.5, Close: 1.5},
		{Open: 1.5, High: 2.5, Low: 1, Close: 2},
		{Open: 2, High: 3, Low: 1.5, Close: 2.5},
	}
	engine := NewEngine(NewEMA(2), NewATR(14))
	snap, err := engine.Snapshot(candles)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if _, ok := snap["EMA_2"]; !ok {
		t.Error("missing EMA_2")
	}
	if snap["ATR_14"] <= 0 {
		t.Errorf("ATR_14 = %v", snap["ATR_14"])
	}

	if _, err := NewEngine(NewEMA(0)).Snapshot(candles); err != ErrInvalidPeriod {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}
