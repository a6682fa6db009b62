package indicator

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
)

var (
	ErrUnknownIndicator = errors.New("unknown indicator")
	ErrCycle            = errors.New("indicator dependency cycle")
	ErrInvalidParams    = errors.New("invalid indicator parameters")
	ErrNonCausal        = errors.New("indicator uses future bars")
)

// BaseColumns are the series columns every spec may read.
var BaseColumns = []string{"open", "high", "low", "close", "volume"}

func isBase(name string) bool { return slices.Contains(BaseColumns, name) }

// Inputs gives a spec's compute function access to its upstream columns.
type Inputs struct {
	n   int
	get func(name string) Column
}

// Len returns the number of bars.
func (in Inputs) Len() int { return in.n }

// Get returns an upstream column. It must be listed in the spec's Inputs.
func (in Inputs) Get(name string) Column { return in.get(name) }

// Spec declares one node of the indicator graph.
type Spec struct {
	Name    string   // group name, e.g. "macd"
	Outputs []string // columns produced, in Compute's return order
	Inputs  []string // base columns or outputs of other specs
	Warmup  int      // bars this spec adds on top of its inputs' warm-up
	Causal  bool     // false when a value depends on later bars
	Compute func(in Inputs) []Column
}

// Catalog is a validated, acyclic set of specs.
type Catalog struct {
	params   Params
	specs    []*Spec
	producer map[string]*Spec // output column -> spec
	byName   map[string]*Spec
	order    []*Spec // topological
	lookback map[*Spec]int
	causal   map[*Spec]bool
}

// NewCatalog builds the standard indicator graph for p.
func NewCatalog(p Params) (*Catalog, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return build(p, standardSpecs(p))
}

// DefaultCatalog returns the catalog for DefaultParams.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultParams())
	if err != nil {
		panic("indicator: default params invalid: " + err.Error())
	}
	return c
}

// Extend returns a new catalog with extra specs added to c.
func (c *Catalog) Extend(extra ...Spec) (*Catalog, error) {
	specs := make([]*Spec, 0, len(c.specs)+len(extra))
	specs = append(specs, c.specs...)
	for i := range extra {
		s := extra[i]
		specs = append(specs, &s)
	}
	return build(c.params, specs)
}

func build(p Params, specs []*Spec) (*Catalog, error) {
	c := &Catalog{
		params:   p,
		specs:    specs,
		producer: make(map[string]*Spec),
		byName:   make(map[string]*Spec),
		lookback: make(map[*Spec]int),
		causal:   make(map[*Spec]bool),
	}
	for _, s := range specs {
		if s.Name == "" || len(s.Outputs) == 0 || s.Compute == nil {
			return nil, fmt.Errorf("%w: spec %q needs a name, outputs and a compute function",
				ErrInvalidParams, s.Name)
		}
		if _, dup := c.byName[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate spec %q", ErrInvalidParams, s.Name)
		}
		c.byName[s.Name] = s
		for _, out := range s.Outputs {
			if isBase(out) {
				return nil, fmt.Errorf("%w: spec %q redefines base column %q", ErrInvalidParams, s.Name, out)
			}
			if other, dup := c.producer[out]; dup {
				return nil, fmt.Errorf("%w: column %q produced by both %q and %q",
					ErrInvalidParams, out, other.Name, s.Name)
			}
			c.producer[out] = s
		}
	}
	for _, s := range specs {
		for _, in := range s.Inputs {
			if !isBase(in) && c.producer[in] == nil {
				return nil, fmt.Errorf("%w: %s depends on %q which no spec produces",
					ErrInvalidParams, s.Name, in)
			}
		}
	}

	order, err := c.topo(specs)
	if err != nil {
		return nil, err
	}
	c.order = order
	for _, s := range order {
		lb, causal := 0, s.Causal
		for _, in := range s.Inputs {
			if up := c.producer[in]; up != nil {
				lb = max(lb, c.lookback[up])
				causal = causal && c.causal[up]
			}
		}
		c.lookback[s] = lb + s.Warmup
		c.causal[s] = causal
	}
	return c, nil
}

// topo orders roots and everything they depend on so inputs come first.
func (c *Catalog) topo(roots []*Spec) ([]*Spec, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*Spec]int, len(c.specs))
	order := make([]*Spec, 0, len(roots))
	var visit func(s *Spec, path []string) error
	visit = func(s *Spec, path []string) error {
		switch state[s] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %v", ErrCycle, append(path, s.Name))
		}
		state[s] = visiting
		for _, in := range s.Inputs {
			if up := c.producer[in]; up != nil {
				if err := visit(up, append(path, s.Name)); err != nil {
					return err
				}
			}
		}
		state[s] = done
		order = append(order, s)
		return nil
	}
	for _, s := range roots {
		if err := visit(s, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Params returns the parameters the catalog was built with.
func (c *Catalog) Params() Params { return c.params }

// Specs returns every spec in dependency order.
func (c *Catalog) Specs() []*Spec { return c.order }

// Producer returns the spec that produces an output column.
func (c *Catalog) Producer(column string) (*Spec, bool) {
	s, ok := c.producer[column]
	return s, ok
}

// Lookback returns how many leading bars of s are missing by construction.
func (c *Catalog) Lookback(s *Spec) int { return c.lookback[s] }

// Causal reports whether s and everything upstream of it only read past bars.
func (c *Catalog) Causal(s *Spec) bool { return c.causal[s] }

// Outputs returns every output column in dependency order.
func (c *Catalog) Outputs() []string {
	var names []string
	for _, s := range c.order {
		names = append(names, s.Outputs...)
	}
	return names
}

// Resolve expands a request into output columns. Entries may be spec
// names (all their outputs), single output columns or "all". A spec name
// wins over an output of the same name, so "macd" yields the line, signal
// and histogram. Order follows the request; duplicates are removed.
func (c *Catalog) Resolve(names []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	push := func(cols ...string) {
		for _, col := range cols {
			if !seen[col] {
				seen[col] = true
				out = append(out, col)
			}
		}
	}
	for _, name := range names {
		switch {
		case name == "all":
			push(c.Outputs()...)
		case c.byName[name] != nil:
			push(c.byName[name].Outputs...)
		case c.producer[name] != nil:
			push(name)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownIndicator, name)
		}
	}
	return out, nil
}

// Names returns every spec name, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for n := range c.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func col(prefix string, n int) string { return prefix + "_" + strconv.Itoa(n) }
