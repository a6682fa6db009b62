package model

import (
	"math"
	"time"
)

// RawBar is one vendor row before normalization. Field values carry whatever
// the fetcher decoded: strings, floats, ints, json.Number, []byte or nil.
type RawBar struct {
	Symbol   string `json:"symbol"`
	Datetime any    `json:"datetime"`
	Open     any    `json:"open"`
	High     any    `json:"high"`
	Low      any    `json:"low"`
	Close    any    `json:"close"`
	Volume   any    `json:"volume,omitempty"`
}

// PriceBar is one accepted OHLCV observation.
// Volume is NaN when the venue does not report it.
type PriceBar struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"datetime"` // UTC, session-naive
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"-"`
}

// HasVolume reports whether the bar carries a usable volume.
func (b *PriceBar) HasVolume() bool {
	return !math.IsNaN(b.Volume) && !math.IsInf(b.Volume, 0)
}
