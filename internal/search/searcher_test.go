package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdierrors "github.com/constellation-sdi/constellation/internal/errors"
	"github.com/constellation-sdi/constellation/internal/index"
	"github.com/constellation-sdi/constellation/internal/queryable"
	"github.com/constellation-sdi/constellation/internal/record"
)

func isoRecord(id, title, abstract string, box [4]string) *record.Record {
	rec := record.New(id, "main", record.Class{Standard: record.StandardISO19115, Name: "MD_Metadata"})
	rec.Title = title
	geo := "MD_Metadata.1:identificationInfo.1:extent.1:geographicElement.1:"
	return rec.MustAdd("MD_Metadata.1:fileIdentifier.1", "CharacterString", id).
		MustAdd("MD_Metadata.1:identificationInfo.1:citation.1:title.1", "CharacterString", title).
		MustAdd("MD_Metadata.1:identificationInfo.1:abstract.1", "CharacterString", abstract).
		MustAdd(geo+"westBoundLongitude.1", "Decimal", box[0]).
		MustAdd(geo+"southBoundLatitude.1", "Decimal", box[1]).
		MustAdd(geo+"eastBoundLongitude.1", "Decimal", box[2]).
		MustAdd(geo+"northBoundLatitude.1", "Decimal", box[3])
}

// newStore indexes recs into an in-memory store.
func newStore(t *testing.T, recs ...*record.Record) *index.Store {
	t.Helper()
	set, err := queryable.Builtin()
	require.NoError(t, err)
	m, err := index.NewMapping(set)
	require.NoError(t, err)
	store, err := index.OpenStore("", m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	put(t, store, recs...)
	return store
}

func put(t *testing.T, store *index.Store, recs ...*record.Record) {
	t.Helper()
	set, err := queryable.Builtin()
	require.NoError(t, err)
	b := index.NewBuilder(set, record.DefaultCodeLists())
	batch, err := store.NewBatch()
	require.NoError(t, err)
	for _, rec := range recs {
		require.NoError(t, batch.Index(rec.Key(), b.Build(rec)))
	}
	require.NoError(t, store.Apply(batch))
}

func fixtures() []*record.Record {
	return []*record.Record{
		isoRecord("north-sea", "North Sea salinity", "Salinity of the North Sea", [4]string{"-4", "51", "9", "61"}),
		isoRecord("tasman", "Tasman Sea currents", "Surface currents", [4]string{"147", "-45", "175", "-30"}),
		isoRecord("baltic", "Baltic salinity", "Salinity of the Baltic Sea", [4]string{"10", "53", "30", "66"}),
	}
}

func keys(res *Result) []string {
	out := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		out[i] = h.Key
	}
	return out
}

func TestSearch_AnyText(t *testing.T) {
	s := New("csw", newStore(t, fixtures()...), 0)

	res, err := s.Search(context.Background(), Query{AnyText: "currents"})
	require.NoError(t, err)

	require.Len(t, res.Hits, 1)
	assert.Equal(t, "tasman:main", res.Hits[0].Key)
	assert.Equal(t, "tasman", res.Hits[0].RecordID)
	assert.Equal(t, "main", res.Hits[0].Catalog)
	assert.Equal(t, "Tasman Sea currents", res.Hits[0].Title)
}

func TestSearch_AnyTextRequiresEveryWord(t *testing.T) {
	s := New("csw", newStore(t, fixtures()...), 0)

	res, err := s.Search(context.Background(), Query{AnyText: "salinity baltic"})
	require.NoError(t, err)

	assert.Equal(t, []string{"baltic:main"}, keys(res))
}

func TestSearch_TermAndSort(t *testing.T) {
	s := New("csw", newStore(t, fixtures()...), 0)

	res, err := s.Search(context.Background(), Query{
		Terms: map[string]string{"Abstract": "salinity"},
		Sort:  []string{"Title"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"baltic:main", "north-sea:main"}, keys(res))

	res, err = s.Search(context.Background(), Query{
		Terms: map[string]string{"Abstract": "salinity"},
		Sort:  []string{"-Title"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"north-sea:main", "baltic:main"}, keys(res))
}

func TestSearch_BBox(t *testing.T) {
	s := New("csw", newStore(t, fixtures()...), 0)
	box, err := ParseBBox("140,-50,180,-20")
	require.NoError(t, err)

	res, err := s.Search(context.Background(), Query{BBox: box})
	require.NoError(t, err)

	assert.Equal(t, []string{"tasman:main"}, keys(res))
}

func TestSearch_CacheInvalidatedByWrites(t *testing.T) {
	// Given a cached query
	store := newStore(t, fixtures()...)
	s := New("csw", store, 8)
	first, err := s.Search(context.Background(), Query{AnyText: "salinity"})
	require.NoError(t, err)
	again, err := s.Search(context.Background(), Query{AnyText: "salinity"})
	require.NoError(t, err)
	assert.Same(t, first, again)

	// When a new matching document is written
	put(t, store, isoRecord("adriatic", "Adriatic salinity", "Salinity", [4]string{"12", "40", "20", "46"}))

	// Then the next search sees it
	res, err := s.Search(context.Background(), Query{AnyText: "salinity"})
	require.NoError(t, err)
	assert.Len(t, res.Hits, 3)
}

func TestSearch_RejectsBadLimit(t *testing.T) {
	s := New("csw", newStore(t), 0)

	_, err := s.Search(context.Background(), Query{Limit: MaxLimit + 1})

	require.Error(t, err)
	assert.Equal(t, sdierrors.ErrCodeInvalidQuery, sdierrors.GetCode(err))
}

func TestSearch_EmptyQueryListsDocuments(t *testing.T) {
	s := New("csw", newStore(t, fixtures()...), 0)

	res, err := s.Search(context.Background(), Query{Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, uint64(3), res.Total)
	assert.Len(t, res.Hits, 2)
}

func TestParseBBox(t *testing.T) {
	box, err := ParseBBox("-10, 40, 5, 50")
	require.NoError(t, err)
	assert.Equal(t, index.BBox{West: -10, South: 40, East: 5, North: 50, CRS: index.DefaultCRS}, *box)

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "10,0,5,1", "0,10,5,1"} {
		_, err := ParseBBox(bad)
		assert.Error(t, err, bad)
	}
}

func TestQueryKey_IsOrderIndependent(t *testing.T) {
	a := Query{Terms: map[string]string{"Title": "sea", "Abstract": "salt"}}
	b := Query{Terms: map[string]string{"Abstract": "salt", "Title": "sea"}}
	assert.Equal(t, a.key(), b.key())
}
