package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constellation-sdi/constellation/internal/record"
)

func isoRecord(id, catalog, title string) *record.Record {
	rec := record.New(id, catalog, record.Class{Standard: record.StandardISO19115, Name: "MD_Metadata"})
	rec.Title = title
	rec.MustAdd("MD_Metadata.1:fileIdentifier.1", "CharacterString", id).
		MustAdd("MD_Metadata.1:identificationInfo.1:citation.1:title.1", "CharacterString", title).
		MustAdd("MD_Metadata.1:identificationInfo.1:descriptiveKeywords.1:keyword.1", "CharacterString", "ocean").
		MustAdd("MD_Metadata.1:identificationInfo.1:descriptiveKeywords.1:keyword.2", "CharacterString", "coast")
	return rec
}

func TestStore_PutAndReadBack(t *testing.T) {
	// Given an in-memory store with two catalogs
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx,
		isoRecord("r1", "marine", "Sea floor"),
		isoRecord("r2", "marine", "Tides"),
		isoRecord("r3", "land", "Soil")))

	// When listing catalogs and records
	catalogs, err := s.Catalogs(ctx)
	require.NoError(t, err)
	records, err := s.Records(ctx, "marine")
	require.NoError(t, err)

	// Then catalogs are sorted and records keep their values in order
	assert.Equal(t, []record.Catalog{{Code: "land", Name: "land"}, {Code: "marine", Name: "marine"}}, catalogs)
	require.Len(t, records, 2)
	assert.Equal(t, "r1", records[0].ID)
	assert.Equal(t, "Sea floor", records[0].Title)
	assert.Equal(t, record.KindISO19115, records[0].Kind)

	keywords := records[0].ValuesAt("ISO 19115:MD_Metadata:identificationInfo:descriptiveKeywords:keyword")
	require.Len(t, keywords, 2)
	assert.Equal(t, "ocean", keywords[0].Text)
	assert.Equal(t, 2, keywords[1].Ordinal)
}

func TestStore_PutReplacesRecord(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, isoRecord("r1", "marine", "Old")))
	require.NoError(t, s.Put(ctx, isoRecord("r1", "marine", "New")))

	rec, err := s.Record(ctx, "marine", "r1")
	require.NoError(t, err)
	assert.Equal(t, "New", rec.Title)
	assert.Equal(t, 4, rec.Len())
}

func TestStore_DeleteAndNotFound(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, isoRecord("r1", "marine", "Sea")))
	require.NoError(t, s.Delete(ctx, "marine", "r1"))
	require.NoError(t, s.Delete(ctx, "marine", "r1"))

	_, err = s.Record(ctx, "marine", "r1")
	assert.ErrorIs(t, err, record.ErrNotFound)

	records, err := s.Records(ctx, "marine")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_CodeLists(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.PutCodeList(ctx, &record.CodeList{
		Name:     "MD_ProgressCode",
		Elements: []record.CodeListElement{{Code: 2, Name: "onGoing"}, {Code: 1, Name: "completed"}},
	}))
	require.NoError(t, s.PutCodeList(ctx, &record.CodeList{Name: "LanguageCode", Locale: true}))

	lists, err := s.CodeLists(ctx)
	require.NoError(t, err)

	progress := lists["MD_ProgressCode"]
	require.NotNil(t, progress)
	e, ok := progress.Element(2)
	require.True(t, ok)
	assert.Equal(t, "onGoing", e.Name)
	assert.Equal(t, 1, progress.Elements[0].Code)
	assert.True(t, lists["LanguageCode"].Locale)
	assert.Empty(t, lists["LanguageCode"].Elements)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	// Given a store on disk
	path := filepath.Join(t.TempDir(), "records.db")
	s, err := Open(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.PutCatalog(ctx, record.Catalog{Code: "marine", Name: "Marine data"}))
	require.NoError(t, s.Put(ctx, isoRecord("r1", "marine", "Sea")))
	require.NoError(t, s.Close())

	// When reopening it
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	// Then catalogs and records survive
	catalogs, err := s.Catalogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []record.Catalog{{Code: "marine", Name: "Marine data"}}, catalogs)
	rec, err := s.Record(ctx, "marine", "r1")
	require.NoError(t, err)
	assert.Equal(t, "Sea", rec.Title)
}

func TestStore_ClosedStoreFails(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Catalogs(context.Background())
	assert.Error(t, err)
	assert.Error(t, s.Put(context.Background(), isoRecord("r1", "marine", "Sea")))
}

func TestStore_RejectsRecordWithoutCatalog(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	err = s.Put(context.Background(), isoRecord("r1", "", "Sea"))
	assert.Error(t, err)
}
