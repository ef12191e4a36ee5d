package scanner

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestRotation_NextBatchAndPeek(t *testing.T) {
	r := NewRotation([]string{"A", "B", "C", "D", "E"}, 2)

	if got := r.Peek(); !slices.Equal(got, []string{"A", "B"}) {
		t.Fatalf("peek = %v", got)
	}
	if got := r.Peek(); !slices.Equal(got, []string{"A", "B"}) {
		t.Fatalf("peek must not advance, got %v", got)
	}

	want := [][]string{{"A", "B"}, {"C", "D"}, {"E", "A"}, {"B", "C"}}
	for i, w := range want {
		if got := r.NextBatch(); !slices.Equal(got, w) {
			t.Errorf("batch %d = %v, want %v", i, got, w)
		}
	}
	if got := r.Symbols(); !slices.Equal(got, []string{"D", "E", "A", "B", "C"}) {
		t.Errorf("symbols = %v", got)
	}
}

func TestRotation_BatchLargerThanRing(t *testing.T) {
	r := NewRotation([]string{"A", "B"}, 5)
	for i := 0; i < 3; i++ {
		if got := r.NextBatch(); !slices.Equal(got, []string{"A", "B"}) {
			t.Fatalf("batch = %v", got)
		}
	}

	empty := NewRotation(nil, 3)
	if got := empty.NextBatch(); len(got) != 0 {
		t.Errorf("empty rotation returned %v", got)
	}
	if got := empty.Symbols(); len(got) != 0 {
		t.Errorf("empty symbols = %v", got)
	}
}

func TestRotation_CopiesInput(t *testing.T) {
	in := []string{"A", "B"}
	r := NewRotation(in, 1)
	in[0] = "Z"
	if got := r.Peek(); got[0] != "A" {
		t.Errorf("rotation shares caller slice: %v", got)
	}
}

func TestProperty_RotationFairness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	symbolsOf := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("S%d-USDT", i)
		}
		return out
	}

	properties.Property("batches walk the ring in order", prop.ForAll(
		func(n, batch int) bool {
			symbols := symbolsOf(n)
			r := NewRotation(symbols, batch)
			var seen []string
			for i := 0; i < 3*n; i++ {
				seen = append(seen, r.NextBatch()...)
			}
			for i, s := range seen {
				if s != symbols[i%n] {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 40), gen.IntRange(1, 12),
	))

	properties.Property("visit counts differ by at most one after ceil(N/B) batches", prop.ForAll(
		func(n, batch int) bool {
			r := NewRotation(symbolsOf(n), batch)
			rounds := (n + batch - 1) / batch
			counts := map[string]int{}
			for i := 0; i < rounds; i++ {
				for _, s := range r.NextBatch() {
					counts[s]++
				}
			}
			if len(counts) != n {
				return false
			}
			lo, hi := rounds*batch, 0
			for _, c := range counts {
				lo, hi = min(lo, c), max(hi, c)
			}
			if n%batch == 0 && hi != 1 {
				return false
			}
			return hi-lo <= 1
		},
		gen.IntRange(1, 40), gen.IntRange(1, 12),
	))

	properties.Property("ring keeps the same multiset", prop.ForAll(
		func(n, batch, steps int) bool {
			symbols := symbolsOf(n)
			r := NewRotation(symbols, batch)
			for i := 0; i < steps; i++ {
				r.NextBatch()
			}
			got := r.Symbols()
			slices.Sort(got)
			want := slices.Clone(symbols)
			slices.Sort(want)
			return slices.Equal(got, want)
		},
		gen.IntRange(0, 30), gen.IntRange(1, 10), gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}
