package series

import (
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"market-features/internal/model"
)

// DropReason labels why the normalizer discarded a row.
type DropReason string

const (
	DropForeignSymbol DropReason = "foreign_symbol"
	DropBadTimestamp  DropReason = "bad_timestamp"
	DropMissingClose  DropReason = "missing_close"
	DropDuplicate     DropReason = "duplicate"
	DropInvalidOHLC   DropReason = "invalid_ohlc"
)

var (
	ErrNoSymbol        = errors.New("series: symbol is required")
	ErrNegativeMinBars = errors.New("series: min bars must be >= 0")
)

// Options controls normalization.
type Options struct {
	Symbol  string
	MinBars int

	// SkipOHLCCheck disables the price consistency filter.
	SkipOHLCCheck bool
}

// Report describes what normalization did to the input.
type Report struct {
	Symbol       string
	Input        int
	Kept         int
	Dropped      map[DropReason]int
	MinBars      int
	Insufficient bool
}

// DroppedTotal returns the number of rows dropped for any reason.
func (r *Report) DroppedTotal() int {
	n := 0
	for _, c := range r.Dropped {
		n += c
	}
	return n
}

func (r *Report) drop(reason DropReason) {
	r.Dropped[reason]++
}

type parsedRow struct {
	ts            time.Time
	o, h, l, c, v float64
}

// Normalize parses, cleans, de-duplicates and orders raw rows for one symbol.
//
// Rows are kept when their symbol matches (an empty row symbol counts as a
// match), their datetime parses and their close is present. Duplicate
// timestamps keep the first occurrence in input order. After a stable sort,
// bars with inconsistent prices are dropped unless SkipOHLCCheck is set.
// Fewer than MinBars surviving bars sets Report.Insufficient; that is not
// an error.
func Normalize(raw []model.RawBar, opts Options) (*Series, Report, error) {
	if strings.TrimSpace(opts.Symbol) == "" {
		return nil, Report{}, ErrNoSymbol
	}
	if opts.MinBars < 0 {
		return nil, Report{}, ErrNegativeMinBars
	}

	rep := Report{
		Symbol:  opts.Symbol,
		Input:   len(raw),
		Dropped: make(map[DropReason]int),
		MinBars: opts.MinBars,
	}

	rows := make([]parsedRow, 0, len(raw))
	seen := make(map[int64]struct{}, len(raw))
	for i := range raw {
		r := &raw[i]
		if r.Symbol != "" && !strings.EqualFold(strings.TrimSpace(r.Symbol), opts.Symbol) {
			rep.drop(DropForeignSymbol)
			continue
		}
		ts, ok := ParseTimestamp(r.Datetime)
		if !ok {
			rep.drop(DropBadTimestamp)
			continue
		}
		c := ParseNumber(r.Close)
		if math.IsNaN(c) {
			rep.drop(DropMissingClose)
			continue
		}
		key := ts.UnixNano()
		if _, dup := seen[key]; dup {
			rep.drop(DropDuplicate)
			continue
		}
		seen[key] = struct{}{}

		v := ParseNumber(r.Volume)
		if v < 0 {
			v = math.NaN()
		}
		rows = append(rows, parsedRow{
			ts: ts,
			o:  ParseNumber(r.Open),
			h:  ParseNumber(r.High),
			l:  ParseNumber(r.Low),
			c:  c,
			v:  v,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ts.Before(rows[j].ts) })

	s := alloc(opts.Symbol, len(rows))
	for i := range rows {
		p := &rows[i]
		if !opts.SkipOHLCCheck && !consistent(p) {
			rep.drop(DropInvalidOHLC)
			continue
		}
		s.push(p.ts, p.o, p.h, p.l, p.c, p.v)
	}

	rep.Kept = s.Len()
	rep.Insufficient = rep.Kept < opts.MinBars
	return s, rep, nil
}

func consistent(p *parsedRow) bool {
	if math.IsNaN(p.o) || math.IsNaN(p.h) || math.IsNaN(p.l) {
		return false
	}
	if p.o <= 0 || p.h <= 0 || p.l <= 0 || p.c <= 0 {
		return false
	}
	return p.h >= math.Max(p.o, p.c) && p.l <= math.Min(p.o, p.c)
}
