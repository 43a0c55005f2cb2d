package record

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is one leaf of a metadata record.
type Value struct {
	// ID is the ordinal-qualified identifier (e.g. "Record.1:title.1").
	ID string `yaml:"id" json:"id"`
	// Path is the standard path identifier, derived from ID.
	Path string `yaml:"-" json:"path"`
	// Ordinal is the repetition index of the value at its path.
	Ordinal int `yaml:"-" json:"ordinal"`
	// Type is the class name of the value (CharacterString, Date, a codelist name, ...).
	Type string `yaml:"type" json:"type"`
	// Text is the stored text. Empty for linked values.
	Text string `yaml:"text" json:"text"`
	// Ref is the identifier of the record a linked value points to.
	Ref string `yaml:"ref,omitempty" json:"ref,omitempty"`
}

// IsText reports whether v carries text rather than a link to another record.
func (v Value) IsText() bool {
	return v.Ref == ""
}

// Parent returns the identifier of the block that contains v.
func (v Value) Parent() string {
	if i := strings.LastIndexByte(v.ID, ':'); i >= 0 {
		return v.ID[:i]
	}
	return ""
}

// ParseValueID derives the path and ordinal of a value identifier.
func ParseValueID(standard, id string) (path string, ordinal int, err error) {
	if id == "" {
		return "", 0, fmt.Errorf("empty value identifier")
	}
	segments := strings.Split(id, ":")
	names := make([]string, 0, len(segments)+1)
	names = append(names, standard)
	for i, seg := range segments {
		name, ord, ok := strings.Cut(seg, ".")
		if !ok || name == "" {
			return "", 0, fmt.Errorf("segment %q of %q has no ordinal", seg, id)
		}
		n, convErr := strconv.Atoi(ord)
		if convErr != nil || n < 1 {
			return "", 0, fmt.Errorf("segment %q of %q has invalid ordinal", seg, id)
		}
		names = append(names, name)
		if i == len(segments)-1 {
			ordinal = n
		}
	}
	return strings.Join(names, ":"), ordinal, nil
}

// Record is an opaque handle on a hierarchical metadata document.
type Record struct {
	ID      string
	Catalog string
	Title   string
	// Profile is the optional profile name the document declares.
	Profile string
	Class   Class
	Kind    Kind

	values []Value
	byPath map[string][]int
}

// New creates an empty record whose kind is classified with DefaultHierarchy.
func New(id, catalog string, class Class) *Record {
	return &Record{
		ID:      id,
		Catalog: catalog,
		Class:   class,
		Kind:    DefaultHierarchy.Classify(class),
		byPath:  make(map[string][]int),
	}
}

// Key returns the identifier the record is indexed under.
func (r *Record) Key() string {
	return r.ID + ":" + r.Catalog
}

// Add appends a text value. The path is resolved in the standard of the
// record's top class.
func (r *Record) Add(id, typ, text string) error {
	return r.add(Value{ID: id, Type: typ, Text: text})
}

// AddLink appends a value pointing to another record.
func (r *Record) AddLink(id, typ, ref string) error {
	return r.add(Value{ID: id, Type: typ, Ref: ref})
}

// MustAdd is Add for statically known values. It panics on malformed ids.
func (r *Record) MustAdd(id, typ, text string) *Record {
	if err := r.Add(id, typ, text); err != nil {
		panic(err)
	}
	return r
}

func (r *Record) add(v Value) error {
	path, ordinal, err := ParseValueID(r.Class.Standard, v.ID)
	if err != nil {
		return err
	}
	v.Path = path
	v.Ordinal = ordinal

	if r.byPath == nil {
		r.byPath = make(map[string][]int)
	}
	r.byPath[path] = append(r.byPath[path], len(r.values))
	r.values = append(r.values, v)
	return nil
}

// Values returns every value in insertion order.
func (r *Record) Values() []Value {
	out := make([]Value, len(r.values))
	copy(out, r.values)
	return out
}

// Len returns the number of values.
func (r *Record) Len() int {
	return len(r.values)
}

// ValuesAt returns the values stored at path, in insertion order.
func (r *Record) ValuesAt(path string) []Value {
	idx := r.byPath[path]
	if len(idx) == 0 {
		return nil
	}
	out := make([]Value, len(idx))
	for i, j := range idx {
		out[i] = r.values[j]
	}
	return out
}

// HasPath reports whether any value is stored at path.
func (r *Record) HasPath(path string) bool {
	return len(r.byPath[path]) > 0
}

// ConditionalValue returns the first value at path whose block also holds a
// value at condPath with text equal to condValue.
func (r *Record) ConditionalValue(path, condPath, condValue string) (Value, bool) {
	for _, cond := range r.ValuesAt(condPath) {
		if cond.Text != condValue {
			continue
		}
		block := cond.Parent() + ":"
		for _, v := range r.ValuesAt(path) {
			if strings.HasPrefix(v.ID, block) {
				return v, true
			}
		}
	}
	return Value{}, false
}

// Reclassify recomputes Kind with the given hierarchy.
func (r *Record) Reclassify(h Hierarchy) {
	r.Kind = h.Classify(r.Class)
}
