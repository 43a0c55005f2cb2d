package index

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/constellation-sdi/constellation/internal/queryable"
	"github.com/constellation-sdi/constellation/internal/record"
)

// Bounding box terms shared by the ISO 19115 and Dublin Core spatial maps.
const (
	termWest  = "WestBoundLongitude"
	termEast  = "EastBoundLongitude"
	termNorth = "NorthBoundLatitude"
	termSouth = "SouthBoundLatitude"
	termCRS   = "CRS"
)

// Dublin Core corners hold the longitude first and the latitude second.
const (
	dcLongitudeOrdinal = 1
	dcLatitudeOrdinal  = 2
)

// BBox is a geographic envelope in degrees.
type BBox struct {
	West, East, North, South float64
	CRS                      string
}

func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.West, b.South, b.East, b.North)
}

// CrossesAntimeridian reports whether the box wraps around 180 degrees of
// longitude, which ISO 19115 expresses with a west bound east of the east
// bound.
func (b BBox) CrossesAntimeridian() bool {
	return b.West > b.East
}

// envelopes returns the GeoJSON-style envelopes bleve indexes for geoshape
// fields: upper-left then lower-right corner. A box crossing the
// antimeridian is split in two at +/-180.
func (b BBox) envelopes() []interface{} {
	top, bottom := math.Max(b.North, b.South), math.Min(b.North, b.South)
	if b.CrossesAntimeridian() {
		return []interface{}{
			envelope(b.West, 180, top, bottom),
			envelope(-180, b.East, top, bottom),
		}
	}
	return []interface{}{envelope(b.West, b.East, top, bottom)}
}

func envelope(west, east, top, bottom float64) map[string]interface{} {
	return map[string]interface{}{
		"type": "envelope",
		"coordinates": [][]float64{
			{west, top},
			{east, bottom},
		},
	}
}

// Builder turns records into index documents.
type Builder struct {
	resolver  *queryable.Resolver
	iso       *queryable.TermMap
	dc        *queryable.TermMap
	dcSpatial *queryable.TermMap
}

// NewBuilder creates a builder over the term maps of set.
func NewBuilder(set *queryable.Set, lists record.CodeLists) *Builder {
	return &Builder{
		resolver:  queryable.NewResolver(lists),
		iso:       set.MustGet(queryable.ISO19115),
		dc:        set.MustGet(queryable.DublinCore),
		dcSpatial: set.MustGet(queryable.DublinCoreSpatial),
	}
}

// Resolver returns the term resolver used by the builder.
func (b *Builder) Resolver() *queryable.Resolver {
	return b.resolver
}

// Build creates the index document of rec. Every record is indexed with the
// Dublin Core terms; ISO 19115 records also get the ISO terms and their
// bounding box.
func (b *Builder) Build(rec *record.Record) map[string]interface{} {
	doc := make(map[string]interface{})
	var boxes []BBox

	switch rec.Kind {
	case record.KindISO19115:
		b.addTerms(doc, rec, b.iso)
		if box, ok := b.bbox(rec, b.iso, queryable.AllOrdinals, queryable.AllOrdinals, DefaultCRS); ok {
			boxes = append(boxes, box)
		}
	case record.KindEbrimV3:
		// ebRIM 3.0 specific terms are not extracted yet.
	case record.KindEbrimV25:
		// ebRIM 2.5 specific terms are not extracted yet.
	case record.KindCSWRecord:
		// Fully covered by the Dublin Core terms.
	default:
		slog.Warn("unrecognized_record_classification",
			slog.String("record_id", rec.ID),
			slog.String("catalog", rec.Catalog),
			slog.String("class", rec.Class.String()))
	}

	anyText := make([]string, 0, b.dc.Len())
	for _, term := range b.dc.Names() {
		v := b.resolver.GetValues(term, rec, b.dc, queryable.AllOrdinals)
		if v != queryable.Null {
			anyText = append(anyText, v)
		}
		if term == "date" || term == "modified" {
			v = strings.ReplaceAll(v, "-", "")
		}
		doc[term] = v
		doc[SortField(term)] = v
	}

	crs := b.resolver.GetValues(termCRS, rec, b.dcSpatial, queryable.AllOrdinals)
	if crs == queryable.Null {
		crs = DefaultCRS
	}
	if box, ok := b.bbox(rec, b.dcSpatial, dcLongitudeOrdinal, dcLatitudeOrdinal, crs); ok {
		boxes = append(boxes, box)
	}
	addGeometry(doc, boxes)

	doc[FieldAnyText] = strings.Join(anyText, " ")
	doc[FieldMetafile] = MetafileDoc
	doc[FieldID] = rec.ID
	doc[FieldCatalog] = rec.Catalog
	doc[FieldDisplay] = rec.Title
	return doc
}

func (b *Builder) addTerms(doc map[string]interface{}, rec *record.Record, m *queryable.TermMap) {
	for _, term := range m.Names() {
		v := b.resolver.GetValues(term, rec, m, queryable.AllOrdinals)
		doc[term] = v
		doc[SortField(term)] = v
	}
}

// bbox reads the four bounding terms of m. A term resolving to Null means
// the record has no box; unparsable coordinates and coordinates outside
// the valid degree ranges are logged and skipped.
func (b *Builder) bbox(rec *record.Record, m *queryable.TermMap, lonOrdinal, latOrdinal int, crs string) (BBox, bool) {
	raw := [4]string{
		b.resolver.GetValues(termWest, rec, m, lonOrdinal),
		b.resolver.GetValues(termEast, rec, m, lonOrdinal),
		b.resolver.GetValues(termNorth, rec, m, latOrdinal),
		b.resolver.GetValues(termSouth, rec, m, latOrdinal),
	}
	var coords [4]float64
	for i, s := range raw {
		if s == queryable.Null {
			return BBox{}, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			slog.Warn("bbox_parse_failed",
				slog.String("record_id", rec.ID),
				slog.String("term_map", m.Name),
				slog.String("value", s),
				slog.String("error", err.Error()))
			return BBox{}, false
		}
		coords[i] = f
	}

	box := BBox{West: coords[0], East: coords[1], North: coords[2], South: coords[3], CRS: crs}
	if !validLongitude(box.West) || !validLongitude(box.East) ||
		!validLatitude(box.South) || !validLatitude(box.North) {
		slog.Warn("bbox_out_of_range",
			slog.String("record_id", rec.ID),
			slog.String("term_map", m.Name),
			slog.String("bbox", box.String()))
		return BBox{}, false
	}
	return box, true
}

func validLongitude(v float64) bool { return v >= -180 && v <= 180 }

func validLatitude(v float64) bool { return v >= -90 && v <= 90 }

// addGeometry stores the envelopes of boxes and their textual form. Single
// values are stored as scalars, several as arrays.
func addGeometry(doc map[string]interface{}, boxes []BBox) {
	if len(boxes) == 0 {
		return
	}
	var shapes []interface{}
	full := make([]string, len(boxes))
	crs := make([]string, len(boxes))
	for i, box := range boxes {
		shapes = append(shapes, box.envelopes()...)
		full[i] = box.String()
		crs[i] = box.CRS
	}

	if len(shapes) == 1 {
		doc[FieldGeometry] = shapes[0]
	} else {
		doc[FieldGeometry] = shapes
	}
	if len(boxes) == 1 {
		doc[FieldFullBBox] = full[0]
		doc[FieldCRS] = crs[0]
	} else {
		doc[FieldFullBBox] = full
		doc[FieldCRS] = crs
	}
}
