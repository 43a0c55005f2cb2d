package queryable

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Term is a logical search field and the paths it reads from.
type Term struct {
	Name  string
	Paths []PathSpec
}

// TermMap is an ordered queryable term map. Iteration order is the order in
// which terms were added, which is also the order AnyText is built in.
type TermMap struct {
	Name  string
	terms []Term
	index map[string]int
}

// NewTermMap creates an empty map.
func NewTermMap(name string) *TermMap {
	return &TermMap{Name: name, index: make(map[string]int)}
}

// Add binds a term to path specifiers. Adding an existing term replaces its
// paths and keeps its position.
func (m *TermMap) Add(term string, specs ...string) error {
	if term == "" {
		return fmt.Errorf("term map %s: empty term name", m.Name)
	}
	paths := make([]PathSpec, 0, len(specs))
	for _, s := range specs {
		p, err := ParsePathSpec(s)
		if err != nil {
			return fmt.Errorf("term map %s, term %s: %w", m.Name, term, err)
		}
		paths = append(paths, p)
	}
	if i, ok := m.index[term]; ok {
		m.terms[i].Paths = paths
		return nil
	}
	m.index[term] = len(m.terms)
	m.terms = append(m.terms, Term{Name: term, Paths: paths})
	return nil
}

// Lookup returns the path specifiers bound to term.
func (m *TermMap) Lookup(term string) ([]PathSpec, bool) {
	i, ok := m.index[term]
	if !ok {
		return nil, false
	}
	return m.terms[i].Paths, true
}

// Terms returns the terms in iteration order.
func (m *TermMap) Terms() []Term {
	out := make([]Term, len(m.terms))
	copy(out, m.terms)
	return out
}

// Names returns the term names in iteration order.
func (m *TermMap) Names() []string {
	out := make([]string, len(m.terms))
	for i, t := range m.terms {
		out[i] = t.Name
	}
	return out
}

// Len returns the number of terms.
func (m *TermMap) Len() int {
	return len(m.terms)
}

// termMapFile is the YAML layout of a term map. A list keeps the order.
type termMapFile struct {
	Name  string `yaml:"name"`
	Terms []struct {
		Name  string   `yaml:"name"`
		Paths []string `yaml:"paths"`
	} `yaml:"terms"`
}

// Parse decodes a single YAML term map.
func Parse(data []byte) (*TermMap, error) {
	var f termMapFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse term map: %w", err)
	}
	return f.build()
}

// LoadFile reads one or more YAML term maps from path. Several maps are
// given as separate YAML documents.
func LoadFile(path string) ([]*TermMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read term map %s: %w", path, err)
	}

	var maps []*TermMap
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var f termMapFile
		if err := dec.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to parse term map %s: %w", path, err)
		}
		m, err := f.build()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		maps = append(maps, m)
	}
	return maps, nil
}

func (f termMapFile) build() (*TermMap, error) {
	if f.Name == "" {
		return nil, fmt.Errorf("term map has no name")
	}
	m := NewTermMap(f.Name)
	for _, t := range f.Terms {
		if err := m.Add(t.Name, t.Paths...); err != nil {
			return nil, err
		}
	}
	return m, nil
}
