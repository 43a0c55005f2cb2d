package record

import "fmt"

// Document is the serializable form of a Record used by the filesystem and
// SQL stores.
type Document struct {
	ID      string  `yaml:"id" json:"id"`
	Catalog string  `yaml:"catalog" json:"catalog"`
	Title   string  `yaml:"title,omitempty" json:"title,omitempty"`
	Profile string  `yaml:"profile,omitempty" json:"profile,omitempty"`
	Class   Class   `yaml:"class" json:"class"`
	Values  []Value `yaml:"values" json:"values"`
}

// Record builds a Record from the document, deriving paths and ordinals.
func (d Document) Record() (*Record, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("document has no id")
	}
	if d.Class.Name == "" {
		return nil, fmt.Errorf("document %s has no class", d.ID)
	}

	rec := New(d.ID, d.Catalog, d.Class)
	rec.Title = d.Title
	rec.Profile = d.Profile
	for _, v := range d.Values {
		if err := rec.add(Value{ID: v.ID, Type: v.Type, Text: v.Text, Ref: v.Ref}); err != nil {
			return nil, fmt.Errorf("document %s: %w", d.ID, err)
		}
	}
	return rec, nil
}

// Document returns the serializable form of r.
func (r *Record) Document() Document {
	return Document{
		ID:      r.ID,
		Catalog: r.Catalog,
		Title:   r.Title,
		Profile: r.Profile,
		Class:   r.Class,
		Values:  r.Values(),
	}
}
