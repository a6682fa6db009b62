package indicator

import (
	"time"

	"market-features/internal/model"
)

// RowMeta is the bookkeeping stamped on every assembled row.
type RowMeta struct {
	Source     string
	RunID      string
	ComputedAt time.Time
}

// Assemble builds one row per bar carrying OHLCV and the requested
// columns. Missing and non-finite values become nil.
func Assemble(f *Frame, names []string, meta RowMeta) ([]model.FeatureRow, error) {
	cols, err := f.engine.cat.Resolve(names)
	if err != nil {
		return nil, err
	}
	data := make([]Column, len(cols))
	for i, name := range cols {
		c, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		data[i] = c
	}

	s := f.series
	computed := meta.ComputedAt.UTC()
	rows := make([]model.FeatureRow, s.Len())
	for i := range rows {
		values := make(map[string]*float64, len(cols))
		for j, name := range cols {
			values[name] = model.Float(data[j][i])
		}
		rows[i] = model.FeatureRow{
			Symbol:     s.Symbol,
			TS:         s.Time[i],
			Open:       s.Open[i],
			High:       s.High[i],
			Low:        s.Low[i],
			Close:      s.Close[i],
			Volume:     model.Float(s.Volume[i]),
			Values:     values,
			Source:     meta.Source,
			RunID:      meta.RunID,
			ComputedAt: computed,
		}
	}
	return rows, nil
}
