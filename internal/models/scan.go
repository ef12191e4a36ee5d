package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// BarSpec pairs a bar label with the number of candles to fetch for it.
type BarSpec struct {
	Bar   string `json:"bar"`
	Limit int    `json:"limit"`
}

// BarSet is an ordered bar label to candle count mapping. It encodes to
// JSON as an object, preserving order on output.
type BarSet []BarSpec

// MarshalJSON writes the set as {"1D":50,"4H":50,...} in order.
func (b BarSet) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, spec := range b {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(spec.Bar)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(spec.Limit)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}

// UnmarshalJSON reads an object of bar label to candle count. Key order of
// the input document is kept.
func (b *BarSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	start, err := dec.Token()
	if err != nil {
		return err
	}
	if start == nil {
		*b = nil
		return nil
	}
	if d, ok := start.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("bars must be an object of bar to limit")
	}
	var out BarSet
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var limit int
		if err := dec.Decode(&limit); err != nil {
			return err
		}
		out = append(out, BarSpec{Bar: key, Limit: limit})
	}
	*b = out
	return nil
}

// Limit returns the configured limit for bar, if present.
func (b BarSet) Limit(bar string) (int, bool) {
	for _, spec := range b {
		if spec.Bar == bar {
			return spec.Limit, true
		}
	}
	return 0, false
}

// Labels returns the bar labels in order.
func (b BarSet) Labels() []string {
	out := make([]string, len(b))
	for i, spec := range b {
		out[i] = spec.Bar
	}
	return out
}

// ScanConfig is the mutable runtime configuration of the scanner.
type ScanConfig struct {
	Symbols  []string
	Bars     BarSet
	Batch    int
	Interval time.Duration
}

// ScanConfigRequest is the wire form of ScanConfig.
type ScanConfigRequest struct {
	Symbols     []string `json:"symbols"`
	Bars        BarSet   `json:"bars"`
	Batch       int      `json:"batch"`
	IntervalSec int      `json:"interval_sec"`
}

// ToConfig converts the request into a ScanConfig.
func (r ScanConfigRequest) ToConfig() ScanConfig {
	return ScanConfig{
		Symbols:  r.Symbols,
		Bars:     r.Bars,
		Batch:    r.Batch,
		Interval: time.Duration(r.IntervalSec) * time.Second,
	}
}

// ScanStatus is a point-in-time view of the scanner.
type ScanStatus struct {
	Running          bool     `json:"running"`
	Symbols          []string `json:"symbols"`
	Bars             BarSet   `json:"bars"`
	Batch            int      `json:"batch"`
	IntervalSec      int      `json:"interval_sec"`
	NextBatch        []string `json:"next_batch"`
	ProcessedBatches int      `json:"processed_batches"`
	SavedFiles       []string `json:"saved_files"`
}
