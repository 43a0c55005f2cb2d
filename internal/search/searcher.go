// Package search runs catalog queries against a service index.
package search

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	lru "github.com/hashicorp/golang-lru/v2"

	sdierrors "github.com/constellation-sdi/constellation/internal/errors"
	"github.com/constellation-sdi/constellation/internal/index"
	"github.com/constellation-sdi/constellation/internal/metrics"
)

// DefaultCacheSize is the number of query results kept per service.
const DefaultCacheSize = 256

// Hit is one matching document.
type Hit struct {
	// Key is the index document id (<record id>:<catalog>).
	Key      string  `json:"key"`
	RecordID string  `json:"id"`
	Catalog  string  `json:"catalog"`
	Title    string  `json:"title"`
	Score    float64 `json:"score"`
}

// Result is the answer to a Query. Cached results are shared: callers must
// not modify them.
type Result struct {
	Total uint64        `json:"total"`
	Hits  []Hit         `json:"hits"`
	Took  time.Duration `json:"took"`
}

// Searcher queries the current index of one service.
type Searcher struct {
	service string
	store   *index.Store
	cache   *lru.Cache[string, *Result]
}

// New creates a searcher over store. A cacheSize of zero uses
// DefaultCacheSize.
func New(service string, store *index.Store, cacheSize int) *Searcher {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	// lru.New only fails for a non-positive size
	cache, _ := lru.New[string, *Result](cacheSize)
	return &Searcher{service: service, store: store, cache: cache}
}

// Refresh drops cached results. Call it after the index was replaced.
func (s *Searcher) Refresh() {
	s.cache.Purge()
	slog.Debug("search_cache_purged", slog.String("service", s.service))
}

// Search runs q. Results are cached until the index content changes.
func (s *Searcher) Search(ctx context.Context, q Query) (*Result, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, sdierrors.New(sdierrors.ErrCodeInvalidQuery, err.Error(), err)
	}

	key := strconv.FormatUint(s.store.Generation(), 10) + "#" + q.key()
	if res, ok := s.cache.Get(key); ok {
		metrics.SearchRequestsTotal.WithLabelValues(s.service, "hit").Inc()
		return res, nil
	}
	metrics.SearchRequestsTotal.WithLabelValues(s.service, "miss").Inc()

	req, err := buildRequest(q)
	if err != nil {
		return nil, sdierrors.New(sdierrors.ErrCodeInvalidQuery, err.Error(), err)
	}
	sr, err := s.store.Search(ctx, req)
	if err != nil {
		return nil, sdierrors.New(sdierrors.ErrCodeSearchFailed, "search failed", err).
			WithDetail("service", s.service)
	}

	res := &Result{Total: sr.Total, Took: sr.Took, Hits: make([]Hit, 0, len(sr.Hits))}
	for _, h := range sr.Hits {
		res.Hits = append(res.Hits, Hit{
			Key:      h.ID,
			RecordID: stringField(h.Fields, index.FieldID),
			Catalog:  stringField(h.Fields, index.FieldCatalog),
			Title:    stringField(h.Fields, index.FieldDisplay),
			Score:    h.Score,
		})
	}
	s.cache.Add(key, res)
	return res, nil
}

func buildRequest(q Query) (*bleve.SearchRequest, error) {
	metafile := bleve.NewTermQuery(index.MetafileDoc)
	metafile.SetField(index.FieldMetafile)
	conj := bleve.NewConjunctionQuery(metafile)

	if q.AnyText != "" {
		m := bleve.NewMatchQuery(q.AnyText)
		m.SetField(index.FieldAnyText)
		m.SetOperator(query.MatchQueryOperatorAnd)
		conj.AddQuery(m)
	}
	for term, value := range q.Terms {
		m := bleve.NewMatchQuery(value)
		m.SetField(term)
		m.SetOperator(query.MatchQueryOperatorAnd)
		conj.AddQuery(m)
	}
	if q.BBox != nil {
		g, err := bleve.NewGeoShapeQuery([][][][]float64{{{
			{q.BBox.West, q.BBox.North},
			{q.BBox.East, q.BBox.South},
		}}}, "envelope", "intersects")
		if err != nil {
			return nil, err
		}
		g.SetField(index.FieldGeometry)
		conj.AddQuery(g)
	}

	req := bleve.NewSearchRequestOptions(conj, q.Limit, q.Offset, false)
	req.Fields = []string{index.FieldID, index.FieldCatalog, index.FieldDisplay}

	if len(q.Sort) > 0 {
		order := make([]string, 0, len(q.Sort)+1)
		for _, term := range q.Sort {
			if desc := strings.HasPrefix(term, "-"); desc {
				order = append(order, "-"+index.SortField(strings.TrimPrefix(term, "-")))
				continue
			}
			order = append(order, index.SortField(term))
		}
		order = append(order, "-_score")
		req.SortBy(order)
	}
	return req, nil
}

func stringField(fields map[string]interface{}, name string) string {
	switch v := fields[name].(type) {
	case string:
		return v
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
