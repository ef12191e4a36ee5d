package scanner

import "slices"

// Rotation is a ring of symbols handed out in fixed-size batches. Every
// symbol is visited once per full turn of the ring.
type Rotation struct {
	symbols []string
	start   int
	batch   int
}

// NewRotation creates a rotation over a copy of symbols.
func NewRotation(symbols []string, batch int) *Rotation {
	return &Rotation{symbols: slices.Clone(symbols), batch: max(batch, 0)}
}

// Len returns the number of symbols in the ring.
func (r *Rotation) Len() int {
	return len(r.symbols)
}

// Peek returns the next batch without advancing.
func (r *Rotation) Peek() []string {
	n := min(r.batch, len(r.symbols))
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = r.symbols[(r.start+i)%len(r.symbols)]
	}
	return out
}

// NextBatch returns the next batch and advances past it.
func (r *Rotation) NextBatch() []string {
	out := r.Peek()
	if len(r.symbols) > 0 {
		r.start = (r.start + len(out)) % len(r.symbols)
	}
	return out
}

// Symbols returns the ring in its current order, starting at the next
// symbol to be handed out.
func (r *Rotation) Symbols() []string {
	out := make([]string, 0, len(r.symbols))
	out = append(out, r.symbols[r.start:]...)
	return append(out, r.symbols[:r.start]...)
}
