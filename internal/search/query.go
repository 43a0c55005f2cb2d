package search

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/constellation-sdi/constellation/internal/index"
)

// Limits on the number of hits returned.
const (
	DefaultLimit = 10
	MaxLimit     = 1000
)

// Query selects documents of a catalog index. Every set criterion must match.
type Query struct {
	// AnyText matches the aggregated Dublin Core text; every word must appear.
	AnyText string
	// Terms matches individual queryable terms (e.g. "Title": "sea").
	Terms map[string]string
	// BBox keeps documents whose geometry intersects the box.
	BBox *index.BBox
	// Sort lists term names; a leading "-" sorts descending. Empty sorts by
	// relevance.
	Sort []string
	// Limit defaults to DefaultLimit.
	Limit int
	// Offset skips the first hits.
	Offset int
}

// normalize applies defaults and validates the query.
func (q Query) normalize() (Query, error) {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit < 0 || q.Limit > MaxLimit {
		return q, fmt.Errorf("limit must be between 1 and %d", MaxLimit)
	}
	if q.Offset < 0 {
		return q, fmt.Errorf("offset must not be negative")
	}
	for term := range q.Terms {
		if term == "" {
			return q, fmt.Errorf("empty term name")
		}
	}
	q.AnyText = strings.TrimSpace(q.AnyText)
	return q, nil
}

// key renders the query canonically for the result cache.
func (q Query) key() string {
	var b strings.Builder
	b.WriteString("q=")
	b.WriteString(q.AnyText)

	terms := make([]string, 0, len(q.Terms))
	for t := range q.Terms {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	for _, t := range terms {
		fmt.Fprintf(&b, "|%s=%s", t, q.Terms[t])
	}
	if q.BBox != nil {
		fmt.Fprintf(&b, "|bbox=%s", q.BBox.String())
	}
	fmt.Fprintf(&b, "|sort=%s|limit=%d|offset=%d", strings.Join(q.Sort, ","), q.Limit, q.Offset)
	return b.String()
}

// ParseBBox parses "west,south,east,north" in degrees.
func ParseBBox(s string) (*index.BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must be west,south,east,north: %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bbox coordinate %q: %w", p, err)
		}
		v[i] = f
	}
	box := &index.BBox{West: v[0], South: v[1], East: v[2], North: v[3], CRS: index.DefaultCRS}
	if box.West > box.East || box.South > box.North {
		return nil, fmt.Errorf("bbox corners are inverted: %q", s)
	}
	return box, nil
}
