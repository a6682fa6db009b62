// Package series turns raw vendor rows into a clean, ordered price series.
package series

import (
	"errors"
	"fmt"
	"math"
	"time"

	"market-features/internal/model"
)

// Series is one symbol's normalized OHLCV history. Timestamps are strictly
// increasing. A Series is never modified after construction.
type Series struct {
	Symbol string
	Time   []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64 // NaN where the venue reported no volume

	hasVolume bool
}

// ErrUnordered is returned by FromBars when timestamps are not strictly increasing.
var ErrUnordered = errors.New("series: timestamps not strictly increasing")

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.Close) }

// HasVolume reports whether at least one bar carries volume.
func (s *Series) HasVolume() bool { return s.hasVolume }

// Bar returns bar i.
func (s *Series) Bar(i int) model.PriceBar {
	return model.PriceBar{
		Symbol: s.Symbol,
		TS:     s.Time[i],
		Open:   s.Open[i],
		High:   s.High[i],
		Low:    s.Low[i],
		Close:  s.Close[i],
		Volume: s.Volume[i],
	}
}

// Column returns a base column by name.
func (s *Series) Column(name string) ([]float64, bool) {
	switch name {
	case "open":
		return s.Open, true
	case "high":
		return s.High, true
	case "low":
		return s.Low, true
	case "close":
		return s.Close, true
	case "volume":
		return s.Volume, true
	}
	return nil, false
}

// FromBars builds a Series from bars that are already clean.
func FromBars(symbol string, bars []model.PriceBar) (*Series, error) {
	s := alloc(symbol, len(bars))
	for i := range bars {
		b := &bars[i]
		if i > 0 && !b.TS.After(bars[i-1].TS) {
			return nil, fmt.Errorf("%w: bar %d at %s", ErrUnordered, i, b.TS.Format(time.RFC3339))
		}
		s.push(b.TS, b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	return s, nil
}

func alloc(symbol string, n int) *Series {
	return &Series{
		Symbol: symbol,
		Time:   make([]time.Time, 0, n),
		Open:   make([]float64, 0, n),
		High:   make([]float64, 0, n),
		Low:    make([]float64, 0, n),
		Close:  make([]float64, 0, n),
		Volume: make([]float64, 0, n),
	}
}

func (s *Series) push(ts time.Time, o, h, l, c, v float64) {
	s.Time = append(s.Time, ts.UTC())
	s.Open = append(s.Open, o)
	s.High = append(s.High, h)
	s.Low = append(s.Low, l)
	s.Close = append(s.Close, c)
	if math.IsInf(v, 0) {
		v = math.NaN()
	}
	s.Volume = append(s.Volume, v)
	if !math.IsNaN(v) {
		s.hasVolume = true
	}
}
