// Package profile loads named indicator sets from YAML.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"market-features/internal/indicator"
)

var (
	ErrNotFound  = errors.New("profile not found")
	ErrDuplicate = errors.New("duplicate profile")
)

// Profile is one named indicator configuration.
type Profile struct {
	Name       string           `yaml:"name" json:"name" validate:"required"`
	Source     string           `yaml:"source" json:"source" validate:"required"`
	Indicators []string         `yaml:"indicators" json:"indicators" validate:"required,min=1,dive,required"`
	MinBars    int              `yaml:"min_bars" json:"min_bars" validate:"min=0"`
	CausalOnly bool             `yaml:"causal_only" json:"causal_only"`
	Params     indicator.Params `yaml:"params" json:"params"`
}

// UnmarshalYAML starts every profile from the default parameters so a file
// only lists what it overrides.
func (p *Profile) UnmarshalYAML(value *yaml.Node) error {
	type plain Profile
	raw := plain{Params: indicator.DefaultParams()}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*p = Profile(raw)
	return nil
}

// DecodeJSON reads one profile from JSON, applying default parameters for
// anything the document leaves out.
func DecodeJSON(r io.Reader) (Profile, error) {
	p := Profile{Params: indicator.DefaultParams()}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("profile: decode: %w", err)
	}
	return p, nil
}

// Default is the profile used when no file is configured.
func Default() Profile {
	return Profile{
		Name:       "daily",
		Source:     "default",
		Indicators: []string{"all"},
		Params:     indicator.DefaultParams(),
	}
}

// File is the on-disk document: a list of profiles.
type File struct {
	Profiles []Profile `yaml:"profiles" validate:"required,min=1,dive"`
}

// Set holds loaded profiles by name.
type Set struct {
	byName map[string]Profile
}

// Parse decodes and validates a profile document.
func Parse(data []byte) (*Set, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("profile: parse: %w", err)
	}
	if err := validator.New().Struct(&f); err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	s := &Set{byName: make(map[string]Profile, len(f.Profiles))}
	for _, p := range f.Profiles {
		if _, dup := s.byName[p.Name]; dup {
			return nil, fmt.Errorf("profile: %w: %q", ErrDuplicate, p.Name)
		}
		s.byName[p.Name] = p
	}
	return s, nil
}

// Load reads a profile file. A missing file yields a set holding only Default.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		d := Default()
		return &Set{byName: map[string]Profile{d.Name: d}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}
	return Parse(data)
}

// Get returns the named profile.
func (s *Set) Get(name string) (Profile, error) {
	p, ok := s.byName[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile: %w: %q", ErrNotFound, name)
	}
	return p, nil
}

// Names returns the profile names, sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Compiled is a profile checked against the indicator catalog and ready to run.
type Compiled struct {
	Profile
	Engine  *indicator.Engine
	Columns []string // resolved output columns
	MinBars int      // normalizer threshold
}

// Compile builds the catalog and engine for p and resolves its indicator
// list. MinBars of 0 defaults to the longest lookback among the columns.
func Compile(p Profile) (*Compiled, error) {
	if err := validator.New().Struct(&p); err != nil {
		return nil, fmt.Errorf("profile %q: %w", p.Name, err)
	}
	cat, err := indicator.NewCatalog(p.Params)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", p.Name, err)
	}
	var opts []indicator.Option
	if p.CausalOnly {
		opts = append(opts, indicator.CausalOnly())
	}
	eng := indicator.NewEngine(cat, opts...)

	cols, err := cat.Resolve(p.Indicators)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", p.Name, err)
	}
	need, err := eng.MinBars(cols)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", p.Name, err)
	}
	minBars := p.MinBars
	if minBars == 0 {
		minBars = need
	}
	return &Compiled{Profile: p, Engine: eng, Columns: cols, MinBars: minBars}, nil
}
