// Package dimension provides the Dimension Library, the closed taxonomy of
// scoring dimensions. A Library is immutable after construction and safe for
// concurrent use.
package dimension

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

//go:embed dimensions.yaml
var defaultDocument []byte

type document struct {
	Dimensions []domain.Dimension `yaml:"dimensions"`
}

// Library is the read-only registry of dimensions.
type Library struct {
	dims []domain.Dimension
	byID map[domain.DimensionID]int
}

var (
	defaultOnce sync.Once
	defaultLib  *Library
)

// Default returns the library embedded in the binary.
func Default() *Library {
	defaultOnce.Do(func() {
		lib, err := Parse(defaultDocument)
		if err != nil {
			panic(fmt.Sprintf("embedded dimension library is invalid: %v", err))
		}
		defaultLib = lib
	})
	return defaultLib
}

// Parse builds a Library from a YAML document. Ids must be unique and
// non-empty, and both anchor dimensions must be present.
func Parse(b []byte) (*Library, error) {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("op=dimension.Parse: %w", err)
	}
	return New(doc.Dimensions)
}

// New builds a Library from already decoded dimensions.
func New(dims []domain.Dimension) (*Library, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("op=dimension.New: %w: empty library", domain.ErrInvalidArgument)
	}
	lib := &Library{
		dims: make([]domain.Dimension, 0, len(dims)),
		byID: make(map[domain.DimensionID]int, len(dims)),
	}
	for _, d := range dims {
		id := domain.DimensionID(strings.TrimSpace(string(d.ID)))
		if id == "" {
			return nil, fmt.Errorf("op=dimension.New: %w: empty dimension id", domain.ErrInvalidArgument)
		}
		if _, dup := lib.byID[id]; dup {
			return nil, fmt.Errorf("op=dimension.New: %w: duplicate dimension id %q", domain.ErrInvalidArgument, id)
		}
		d.ID = id
		if d.Label == "" {
			d.Label = string(id)
		}
		d.SeedSkills = append([]string(nil), d.SeedSkills...)
		lib.byID[id] = len(lib.dims)
		lib.dims = append(lib.dims, d)
	}
	for _, anchor := range domain.AnchorDimensions() {
		if !lib.Has(anchor) {
			return nil, fmt.Errorf("op=dimension.New: %w: anchor dimension %q missing", domain.ErrInvalidArgument, anchor)
		}
	}
	return lib, nil
}

// List returns the dimensions in library order.
func (l *Library) List() []domain.Dimension {
	out := make([]domain.Dimension, len(l.dims))
	for i, d := range l.dims {
		d.SeedSkills = append([]string(nil), d.SeedSkills...)
		out[i] = d
	}
	return out
}

// IDs returns all dimension ids in library order.
func (l *Library) IDs() []domain.DimensionID {
	out := make([]domain.DimensionID, len(l.dims))
	for i, d := range l.dims {
		out[i] = d.ID
	}
	return out
}

// Has reports whether id belongs to the library.
func (l *Library) Has(id domain.DimensionID) bool {
	_, ok := l.byID[id]
	return ok
}

// Get looks up a dimension by id.
func (l *Library) Get(id domain.DimensionID) (domain.Dimension, bool) {
	i, ok := l.byID[id]
	if !ok {
		return domain.Dimension{}, false
	}
	return l.dims[i], true
}

// Label returns the human label of id, or the id itself when unknown.
func (l *Library) Label(id domain.DimensionID) string {
	if d, ok := l.Get(id); ok {
		return d.Label
	}
	return string(id)
}

// Labels returns id -> label for every dimension.
func (l *Library) Labels() map[domain.DimensionID]string {
	out := make(map[domain.DimensionID]string, len(l.dims))
	for _, d := range l.dims {
		out[d.ID] = d.Label
	}
	return out
}

// Validate fails with ErrUnknownDimension naming every id outside the library.
func (l *Library) Validate(ids []domain.DimensionID) error {
	var unknown []string
	for _, id := range ids {
		if !l.Has(id) {
			unknown = append(unknown, string(id))
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("%w: %s", domain.ErrUnknownDimension, strings.Join(unknown, ", "))
}
