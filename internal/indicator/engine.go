package indicator

import (
	"fmt"
	"sort"

	"market-features/internal/series"
)

// Diagnostic records why a spec produced only missing values.
type Diagnostic struct {
	Spec    string
	Outputs []string
	Reason  string
}

func (d Diagnostic) String() string {
	return d.Spec + ": " + d.Reason
}

// Option configures an Engine.
type Option func(*Engine)

// CausalOnly makes the engine refuse any column that reads later bars.
func CausalOnly() Option {
	return func(e *Engine) { e.causalOnly = true }
}

// Engine evaluates catalog specs over a series. It holds no per-series
// state and is safe for concurrent use; each Frame is not.
type Engine struct {
	cat        *Catalog
	causalOnly bool
}

// NewEngine creates an engine over cat.
func NewEngine(cat *Catalog, opts ...Option) *Engine {
	e := &Engine{cat: cat}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() *Catalog { return e.cat }

// IsCausalOnly reports whether non-causal columns are refused.
func (e *Engine) IsCausalOnly() bool { return e.causalOnly }

// Plan resolves names and returns the specs needed to produce them in
// evaluation order.
func (e *Engine) Plan(names []string) ([]*Spec, error) {
	cols, err := e.cat.Resolve(names)
	if err != nil {
		return nil, err
	}
	roots := make([]*Spec, 0, len(cols))
	for _, c := range cols {
		s := e.cat.producer[c]
		if e.causalOnly && !e.cat.causal[s] {
			return nil, fmt.Errorf("%w: %s", ErrNonCausal, c)
		}
		roots = append(roots, s)
	}
	return e.cat.topo(roots)
}

// MinBars returns the smallest series length for which every requested
// column has at least one value.
func (e *Engine) MinBars(names []string) (int, error) {
	plan, err := e.Plan(names)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range plan {
		n = max(n, e.cat.lookback[s]+1)
	}
	return n, nil
}

// NewFrame wraps s for lazy evaluation.
func (e *Engine) NewFrame(s *series.Series) *Frame {
	return &Frame{
		engine:   e,
		series:   s,
		cols:     make(map[string]Column),
		degraded: make(map[*Spec]bool),
	}
}

// Compute evaluates every column in names, and what they depend on, over s.
func (e *Engine) Compute(s *series.Series, names []string) (*Frame, error) {
	plan, err := e.Plan(names)
	if err != nil {
		return nil, err
	}
	f := e.NewFrame(s)
	for _, spec := range plan {
		f.eval(spec)
	}
	return f, nil
}

// Frame is a series plus lazily computed, memoized indicator columns.
// Columns returned by a Frame must not be modified.
type Frame struct {
	engine   *Engine
	series   *series.Series
	cols     map[string]Column
	degraded map[*Spec]bool
	diags    []Diagnostic
}

// Series returns the underlying series.
func (f *Frame) Series() *series.Series { return f.series }

// Len returns the number of bars.
func (f *Frame) Len() int { return f.series.Len() }

// Column returns a base or indicator column, computing it on first use.
func (f *Frame) Column(name string) (Column, error) {
	if isBase(name) {
		v, _ := f.series.Column(name)
		return Column(v), nil
	}
	if c, ok := f.cols[name]; ok {
		return c, nil
	}
	s, ok := f.engine.cat.producer[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIndicator, name)
	}
	if f.engine.causalOnly && !f.engine.cat.causal[s] {
		return nil, fmt.Errorf("%w: %s", ErrNonCausal, name)
	}
	f.eval(s)
	return f.cols[name], nil
}

// Diagnostics lists specs that could not be computed from the available data.
func (f *Frame) Diagnostics() []Diagnostic { return f.diags }

// Computed returns the names of the columns evaluated so far, sorted.
func (f *Frame) Computed() []string {
	names := make([]string, 0, len(f.cols))
	for n := range f.cols {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (f *Frame) eval(s *Spec) {
	if _, done := f.cols[s.Outputs[0]]; done {
		return
	}
	n := f.series.Len()

	for _, in := range s.Inputs {
		if isBase(in) {
			v, _ := f.series.Column(in)
			if n > 0 && Column(v).CountValid() == 0 {
				f.degrade(s, "missing input "+in)
				return
			}
			continue
		}
		up := f.engine.cat.producer[in]
		f.eval(up)
		if f.degraded[up] {
			f.degrade(s, "upstream "+up.Name+" unavailable")
			return
		}
	}

	in := Inputs{n: n, get: func(name string) Column {
		c, _ := f.Column(name)
		return c
	}}
	out := s.Compute(in)
	for i, name := range s.Outputs {
		var c Column
		if i < len(out) && len(out[i]) == n {
			c = out[i]
		} else {
			c = Missing(n)
		}
		f.cols[name] = c
	}
}

func (f *Frame) degrade(s *Spec, reason string) {
	n := f.series.Len()
	for _, name := range s.Outputs {
		f.cols[name] = Missing(n)
	}
	f.degraded[s] = true
	f.diags = append(f.diags, Diagnostic{Spec: s.Name, Outputs: s.Outputs, Reason: reason})
}
