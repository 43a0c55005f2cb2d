package queryable

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/constellation-sdi/constellation/configs"
)

// Built-in term map names.
const (
	ISO19115          = "iso19115"
	DublinCore        = "dublin-core"
	DublinCoreSpatial = "dublin-core-spatial"
	EbrimV3           = "ebrim-v3"
	EbrimV25          = "ebrim-v25"
)

// Set is the collection of term maps an indexer works with.
type Set struct {
	maps map[string]*TermMap
}

// Builtin loads the term maps embedded in the binary.
func Builtin() (*Set, error) {
	entries, err := fs.ReadDir(configs.Queryables, "queryables")
	if err != nil {
		return nil, fmt.Errorf("failed to list built-in term maps: %w", err)
	}
	s := &Set{maps: make(map[string]*TermMap, len(entries))}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := fs.ReadFile(configs.Queryables, "queryables/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read built-in term map %s: %w", e.Name(), err)
		}
		m, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("built-in term map %s: %w", e.Name(), err)
		}
		s.maps[m.Name] = m
	}
	for _, required := range []string{ISO19115, DublinCore, DublinCoreSpatial} {
		if _, ok := s.maps[required]; !ok {
			return nil, fmt.Errorf("built-in term map %s is missing", required)
		}
	}
	return s, nil
}

// LoadSet returns the built-in maps with the overrides in file applied.
// An empty file means no overrides.
func LoadSet(file string) (*Set, error) {
	s, err := Builtin()
	if err != nil {
		return nil, err
	}
	if file == "" {
		return s, nil
	}
	overrides, err := LoadFile(file)
	if err != nil {
		return nil, err
	}
	for _, m := range overrides {
		s.Override(m)
	}
	return s, nil
}

// Override merges m into the map of the same name: terms present in m
// replace or extend the existing ones. Unknown names add a new map.
func (s *Set) Override(m *TermMap) {
	base, ok := s.maps[m.Name]
	if !ok {
		s.maps[m.Name] = m
		return
	}
	for _, t := range m.terms {
		if i, exists := base.index[t.Name]; exists {
			base.terms[i].Paths = t.Paths
			continue
		}
		base.index[t.Name] = len(base.terms)
		base.terms = append(base.terms, t)
	}
}

// Get returns the named map.
func (s *Set) Get(name string) (*TermMap, bool) {
	m, ok := s.maps[name]
	return m, ok
}

// MustGet returns the named map or an empty one.
func (s *Set) MustGet(name string) *TermMap {
	if m, ok := s.maps[name]; ok {
		return m
	}
	return NewTermMap(name)
}

// Names returns the map names, sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.maps))
	for n := range s.maps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
