package queryable

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/constellation-sdi/constellation/internal/record"
)

const (
	// Null is returned when a term resolves to no value.
	Null = "null"
	// AllOrdinals accepts every value at a path.
	AllOrdinals = -1
)

// typeProfileTerm is the term that also reports the record profile.
const typeProfileTerm = "Type"

// Resolver extracts term values from records.
type Resolver struct {
	codeLists record.CodeLists
}

// NewResolver creates a resolver that decodes codelist values with lists.
func NewResolver(lists record.CodeLists) *Resolver {
	if lists == nil {
		lists = record.CodeLists{}
	}
	return &Resolver{codeLists: lists}
}

// SetCodeLists replaces the codelists used for decoding.
func (r *Resolver) SetCodeLists(lists record.CodeLists) {
	r.codeLists = lists
}

// GetValues resolves term against rec and returns the comma-joined values,
// or Null when nothing resolves. When ordinal is not AllOrdinals only values
// with that repetition index are kept.
func (r *Resolver) GetValues(term string, rec *record.Record, m *TermMap, ordinal int) string {
	var values []string
	if term == typeProfileTerm && rec.Profile != "" {
		values = append(values, rec.Profile)
	}

	specs, _ := m.Lookup(term)
	for _, spec := range specs {
		var candidates []record.Value
		if spec.IsConditional() {
			if v, ok := rec.ConditionalValue(spec.Path, spec.CondPath, spec.CondValue); ok {
				candidates = []record.Value{v}
			}
		} else {
			candidates = rec.ValuesAt(spec.Path)
		}

		for _, v := range candidates {
			if !v.IsText() {
				continue
			}
			if ordinal != AllOrdinals && v.Ordinal != ordinal {
				continue
			}
			if text, ok := r.decode(rec, term, v); ok {
				values = append(values, text)
			}
		}
	}

	if len(values) == 0 {
		return Null
	}
	return strings.Join(values, ",")
}

// decode turns a stored value into its indexed text.
func (r *Resolver) decode(rec *record.Record, term string, v record.Value) (string, bool) {
	if cl, ok := r.codeLists[v.Type]; ok {
		if cl.Locale {
			return v.Text, true
		}
		code, err := strconv.Atoi(strings.TrimSpace(v.Text))
		if err != nil {
			slog.Warn("codelist_value_not_code",
				slog.String("record_id", rec.ID),
				slog.String("term", term),
				slog.String("path", v.Path),
				slog.String("codelist", cl.Name),
				slog.String("value", v.Text))
			return "", false
		}
		elem, ok := cl.Element(code)
		if !ok {
			slog.Warn("codelist_element_not_found",
				slog.String("record_id", rec.ID),
				slog.String("term", term),
				slog.String("path", v.Path),
				slog.String("codelist", cl.Name),
				slog.Int("code", code))
			return "", false
		}
		return elem.Name, true
	}
	if v.Type == "Date" {
		return strings.ReplaceAll(v.Text, "-", ""), true
	}
	return v.Text, true
}
