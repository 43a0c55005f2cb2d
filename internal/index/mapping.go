package index

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/constellation-sdi/constellation/internal/queryable"
)

// Field names written on every document.
const (
	FieldAnyText  = "AnyText"
	FieldMetafile = "metafile"
	FieldGeometry = "geometry"
	FieldFullBBox = "fullBBOX"
	FieldCRS      = "crs"
	FieldID       = "id"
	FieldCatalog  = "catalog"
	FieldDisplay  = "display_title"

	// MetafileDoc marks indexed metadata documents.
	MetafileDoc = "doc"

	// SortSuffix is appended to a term to name its untokenized sort field.
	SortSuffix = "_sort"

	// DefaultCRS tags ISO 19115 bounding boxes.
	DefaultCRS = "EPSG:4326"
)

// SortField returns the sort field name of term.
func SortField(term string) string {
	return term + SortSuffix
}

// NewMapping builds the index mapping for the terms of every map in set.
// Term fields use the standard analyzer; sort, identity and discriminator
// fields are indexed verbatim.
func NewMapping(set *queryable.Set) (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name
	im.StoreDynamic = false

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false

	text := func() *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = standard.Name
		f.Store = true
		f.IncludeTermVectors = false
		return f
	}
	verbatim := func() *mapping.FieldMapping {
		f := bleve.NewKeywordFieldMapping()
		f.Analyzer = keyword.Name
		f.Store = true
		return f
	}

	seen := make(map[string]struct{})
	for _, name := range set.Names() {
		m, _ := set.Get(name)
		for _, term := range m.Names() {
			if _, dup := seen[term]; dup {
				continue
			}
			seen[term] = struct{}{}
			doc.AddFieldMappingsAt(term, text())
			doc.AddFieldMappingsAt(SortField(term), verbatim())
		}
	}

	for _, f := range []string{FieldMetafile, FieldID, FieldCatalog, FieldCRS, FieldFullBBox} {
		if _, dup := seen[f]; dup {
			return nil, fmt.Errorf("term %q clashes with a reserved field", f)
		}
		doc.AddFieldMappingsAt(f, verbatim())
	}
	doc.AddFieldMappingsAt(FieldAnyText, text())
	doc.AddFieldMappingsAt(FieldDisplay, text())

	geo := bleve.NewGeoShapeFieldMapping()
	geo.Store = false
	doc.AddFieldMappingsAt(FieldGeometry, geo)

	im.DefaultMapping = doc
	if err := im.Validate(); err != nil {
		return nil, fmt.Errorf("invalid index mapping: %w", err)
	}
	return im, nil
}
