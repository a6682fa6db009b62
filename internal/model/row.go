package model

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// FeatureRow is one output row handed to sinks: the bar, every requested
// indicator column and bookkeeping fields. A nil value means missing.
type FeatureRow struct {
	Symbol     string
	TS         time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     *float64
	Values     map[string]*float64
	Source     string
	RunID      string
	ComputedAt time.Time
}

// Float returns a pointer to v, or nil when v is NaN or infinite.
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Value returns the named indicator value and whether it is present.
func (r *FeatureRow) Value(name string) (float64, bool) {
	p, ok := r.Values[name]
	if !ok || p == nil {
		return math.NaN(), false
	}
	return *p, true
}

// Columns returns the indicator column names carried by the row, sorted.
func (r *FeatureRow) Columns() []string {
	names := make([]string, 0, len(r.Values))
	for k := range r.Values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Key returns "source:symbol".
func (r *FeatureRow) Key() string {
	return r.Source + ":" + r.Symbol
}

// StreamKey returns the Redis stream key: "features:{source}:{symbol}".
func (r *FeatureRow) StreamKey() string {
	return "features:" + r.Key()
}

// LatestKey returns the Redis key holding the newest row: "features:latest:{source}:{symbol}".
func (r *FeatureRow) LatestKey() string {
	return "features:latest:" + r.Key()
}

// Channel returns the pub/sub channel for live row updates.
func (r *FeatureRow) Channel() string {
	return "pub:features:" + r.Key()
}

// MarshalJSON flattens the row into a single object. Indicator columns sit
// next to the bar fields and missing values encode as null.
func (r FeatureRow) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Values)+10)
	for k, v := range r.Values {
		m[k] = v
	}
	m["symbol"] = r.Symbol
	m["datetime"] = r.TS.UTC().Format(time.RFC3339)
	m["open"] = r.Open
	m["high"] = r.High
	m["low"] = r.Low
	m["close"] = r.Close
	m["volume"] = r.Volume
	m["data_source"] = r.Source
	m["run_id"] = r.RunID
	m["computed_at"] = r.ComputedAt.UTC().Format(time.RFC3339)
	return json.Marshal(m)
}

// ValuesJSON encodes only the indicator columns, for sinks that store them
// as a single document.
func (r *FeatureRow) ValuesJSON() ([]byte, error) {
	if r.Values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Values)
}

// JSON returns the JSON-encoded row (ignoring errors for hot-path usage).
func (r *FeatureRow) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}
