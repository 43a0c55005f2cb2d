package index

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constellation-sdi/constellation/internal/queryable"
	"github.com/constellation-sdi/constellation/internal/record"
)

const geoPrefix = "MD_Metadata.1:identificationInfo.1:extent.1:geographicElement.1:"

func isoRecord(id, title, abstract string, west, east, south, north string) *record.Record {
	rec := record.New(id, "main", record.Class{Standard: record.StandardISO19115, Name: "MD_Metadata"})
	rec.Title = title
	rec.MustAdd("MD_Metadata.1:fileIdentifier.1", "CharacterString", id).
		MustAdd("MD_Metadata.1:identificationInfo.1:citation.1:title.1", "CharacterString", title).
		MustAdd("MD_Metadata.1:identificationInfo.1:abstract.1", "CharacterString", abstract)
	if west != "" {
		rec.MustAdd(geoPrefix+"westBoundLongitude.1", "Decimal", west).
			MustAdd(geoPrefix+"eastBoundLongitude.1", "Decimal", east).
			MustAdd(geoPrefix+"southBoundLatitude.1", "Decimal", south).
			MustAdd(geoPrefix+"northBoundLatitude.1", "Decimal", north)
	}
	return rec
}

func cswRecord(id string) *record.Record {
	rec := record.New(id, "main", record.Class{Standard: record.StandardCSW, Name: "Record"})
	rec.Title = "Coastal survey"
	return rec.MustAdd("Record.1:identifier.1", "CharacterString", id).
		MustAdd("Record.1:title.1", "CharacterString", "Coastal survey").
		MustAdd("Record.1:subject.1", "CharacterString", "ocean").
		MustAdd("Record.1:subject.2", "CharacterString", "coast").
		MustAdd("Record.1:date.1", "CharacterString", "2020-05-01")
}

func newIndexer(t *testing.T, dir string, src record.Source) *Indexer {
	t.Helper()
	ix, err := New(context.Background(), Options{ID: "csw", ConfigDir: dir, Source: src})
	require.NoError(t, err)
	t.Cleanup(ix.Destroy)
	return ix
}

func searchAnyText(t *testing.T, s *Store, text string) []string {
	t.Helper()
	q := bleve.NewMatchQuery(text)
	q.SetField(FieldAnyText)
	res, err := s.Search(context.Background(), bleve.NewSearchRequest(q))
	require.NoError(t, err)
	ids := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.ID
	}
	return ids
}

type failingSource struct {
	*record.MemorySource
}

func (failingSource) Catalogs(context.Context) ([]record.Catalog, error) {
	return nil, errors.New("connection refused")
}

// Close is a no-op so Destroy in cleanup does not fail on shared sources.
func (failingSource) Close() error { return nil }

// exitingSource terminates the process when the build reaches catalog.
type exitingSource struct {
	*record.MemorySource
	catalog string
}

func (s exitingSource) Records(ctx context.Context, catalog string) ([]*record.Record, error) {
	if catalog == s.catalog {
		os.Exit(3)
	}
	return s.MemorySource.Records(ctx, catalog)
}

// crashDirEnv tells the re-executed test binary to run the dying rebuild.
const crashDirEnv = "CONSTELLATION_TEST_CRASH_DIR"

func twoCatalogSource() *record.MemorySource {
	src := record.NewMemorySource()
	a := isoRecord("a1", "Sea surface temperature", "Daily SST grids", "", "", "", "")
	a.Catalog = "a"
	b := isoRecord("b1", "Bathymetry", "Gridded depth", "", "", "", "")
	b.Catalog = "b"
	src.Put(a, b)
	return src
}

func TestNew_BuildsIndexWhenMissing(t *testing.T) {
	// Given an empty configuration directory
	dir := t.TempDir()
	src := record.NewMemorySource()
	src.Put(isoRecord("a", "Sea surface temperature", "Daily SST grids", "-10", "5", "40", "50"))

	// When the indexer is constructed
	ix := newIndexer(t, dir, src)

	// Then the index was built inline and promoted
	assert.True(t, ix.Created())
	current, next := ix.Dirs()
	assert.DirExists(t, current)
	assert.NoDirExists(t, next)

	info, err := ix.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Documents)
}

func TestNew_OpensExistingIndexWithoutRebuilding(t *testing.T) {
	dir := t.TempDir()
	src := record.NewMemorySource()
	src.Put(isoRecord("a", "Sea surface temperature", "Daily SST grids", "", "", "", ""))

	first, err := New(context.Background(), Options{ID: "csw", ConfigDir: dir, Source: src})
	require.NoError(t, err)
	first.Store().Close()

	// Records added after the build are not picked up by a plain restart
	src.Put(isoRecord("b", "Bathymetry", "Gridded depth", "", "", "", ""))
	second := newIndexer(t, dir, src)

	assert.False(t, second.Created())
	info, err := second.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Documents)
}

func TestNew_PromotesPreGeneratedIndex(t *testing.T) {
	// Given a current index built from record "old"
	dir := t.TempDir()
	oldSrc := record.NewMemorySource()
	oldSrc.Put(isoRecord("old", "Legacy gauge network", "Tide gauges", "", "", "", ""))
	first, err := New(context.Background(), Options{ID: "csw", ConfigDir: dir, Source: oldSrc})
	require.NoError(t, err)
	first.Store().Close()

	// And a pre-generated index holding only record "new"
	set, err := queryable.Builtin()
	require.NoError(t, err)
	m, err := NewMapping(set)
	require.NoError(t, err)
	next := filepath.Join(dir, "csw"+nextSuffix)
	w, err := createWriter(next, m)
	require.NoError(t, err)
	b := NewBuilder(set, record.DefaultCodeLists())
	rec := isoRecord("new", "Argo floats", "Profiling floats", "", "", "", "")
	require.NoError(t, w.Add(rec.Key(), b.Build(rec)))
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(filepath.Join(next, "marker"), []byte("pre-generated"), 0o644))

	// When the indexer is constructed again
	ix := newIndexer(t, dir, oldSrc)

	// Then the pre-generated directory replaced the current one
	current, nextDir := ix.Dirs()
	assert.NoDirExists(t, nextDir)
	data, err := os.ReadFile(filepath.Join(current, "marker"))
	require.NoError(t, err)
	assert.Equal(t, "pre-generated", string(data))

	assert.Equal(t, []string{"new:main"}, searchAnyText(t, ix.Store(), "argo"))
	assert.Empty(t, searchAnyText(t, ix.Store(), "legacy"))
	assert.False(t, ix.Created())
}

func TestCreateIndex_WriterFailureKeepsCurrentIndex(t *testing.T) {
	// Given a served index
	dir := t.TempDir()
	src := record.NewMemorySource()
	src.Put(isoRecord("a", "Sea surface temperature", "Daily SST grids", "", "", "", ""))
	ix := newIndexer(t, dir, src)

	// When a rebuild cannot read the source
	ix.source = failingSource{src}
	_, err := ix.Rebuild(context.Background())

	// Then the rebuild fails and the previous index is still served
	require.Error(t, err)
	_, next := ix.Dirs()
	assert.NoDirExists(t, next)
	assert.Equal(t, []string{"a:main"}, searchAnyText(t, ix.Store(), "temperature"))
}

func TestRebuild_SwapsAndNotifies(t *testing.T) {
	dir := t.TempDir()
	src := record.NewMemorySource()
	src.Put(isoRecord("a", "Sea surface temperature", "Daily SST grids", "", "", "", ""))
	ix := newIndexer(t, dir, src)

	swaps := 0
	ix.OnSwap(func() { swaps++ })
	before := ix.Store().Generation()

	src.Put(isoRecord("b", "Bathymetry", "Gridded depth", "", "", "", ""))
	stats, err := ix.Rebuild(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Indexed)
	assert.Equal(t, 1, swaps)
	assert.NotEqual(t, before, ix.Store().Generation())
	assert.Equal(t, []string{"b:main"}, searchAnyText(t, ix.Store(), "bathymetry"))
}

func TestIndexDocument_AppendsAndRemoves(t *testing.T) {
	dir := t.TempDir()
	src := record.NewMemorySource()
	src.Put(isoRecord("a", "Sea surface temperature", "Daily SST grids", "", "", "", ""))
	ix := newIndexer(t, dir, src)

	// When a record is added incrementally
	require.NoError(t, ix.IndexDocument(context.Background(), cswRecord("c1")))
	// Then it is searchable next to the built ones
	assert.Equal(t, []string{"c1:main"}, searchAnyText(t, ix.Store(), "coastal"))

	// When it is removed
	require.NoError(t, ix.RemoveDocument(context.Background(), "c1:main"))
	// Then it is gone
	assert.Empty(t, searchAnyText(t, ix.Store(), "coastal"))

	info, err := ix.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Documents)
}

func TestCreateIndex_ReportsProgress(t *testing.T) {
	dir := t.TempDir()
	src := record.NewMemorySource()
	src.Put(isoRecord("a", "A", "a", "", "", "", ""), isoRecord("b", "B", "b", "", "", "", ""))

	var events []Progress
	_, err := New(context.Background(), Options{
		ID: "csw", ConfigDir: dir, Source: src,
		Progress: func(p Progress) { events = append(events, p) },
	})
	require.NoError(t, err)

	// catalogs, two records, promote
	require.Len(t, events, 4)
	assert.Equal(t, PhaseCatalogs, events[0].Phase)
	assert.Equal(t, 1, events[0].Catalogs)
	assert.Equal(t, PhaseRecords, events[2].Phase)
	assert.Equal(t, 2, events[2].Current)
	assert.Equal(t, 2, events[2].Total)
	assert.Equal(t, 1, events[2].CatalogIndex)
	assert.Equal(t, "main", events[2].Catalog)
	assert.Equal(t, PhasePromote, events[3].Phase)
}

func TestNew_RequiresOptions(t *testing.T) {
	_, err := New(context.Background(), Options{ConfigDir: t.TempDir(), Source: record.NewMemorySource()})
	assert.Error(t, err)
	_, err = New(context.Background(), Options{ID: "csw", Source: record.NewMemorySource()})
	assert.Error(t, err)
	_, err = New(context.Background(), Options{ID: "csw", ConfigDir: t.TempDir()})
	assert.Error(t, err)
}

func TestEndToEnd_BBoxAndUnknownProfile(t *testing.T) {
	// Given two ISO records with distinct boxes and one record of unknown class
	dir := t.TempDir()
	src := record.NewMemorySource()
	unknown := record.New("u1", "main", record.Class{Standard: "Mystery", Name: "Thing"})
	unknown.MustAdd("Thing.1:label.1", "CharacterString", "mystery")
	src.Put(
		isoRecord("north-sea", "North Sea salinity", "Salinity in the North Sea", "-4", "9", "51", "61"),
		unknown,
		isoRecord("tasman", "Tasman Sea currents", "Currents of the Tasman Sea", "147", "175", "-45", "-30"),
	)

	// When the index is built
	ix := newIndexer(t, dir, src)

	// Then each record is found by its own text
	assert.Equal(t, []string{"north-sea:main"}, searchAnyText(t, ix.Store(), "salinity"))
	assert.Equal(t, []string{"tasman:main"}, searchAnyText(t, ix.Store(), "currents"))

	// And the unrecognized record still got a document
	info, err := ix.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), info.Documents)

	// And a box over Europe only intersects the North Sea record
	q, err := bleve.NewGeoShapeQuery([][][][]float64{{{{-10, 65}, {15, 45}}}}, "envelope", "intersects")
	require.NoError(t, err)
	q.SetField(FieldGeometry)
	res, err := ix.Store().Search(context.Background(), bleve.NewSearchRequest(q))
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "north-sea:main", res.Hits[0].ID)
}

func TestRebuild_ProcessExitMidBuildKeepsCurrentIndex(t *testing.T) {
	if dir := os.Getenv(crashDirEnv); dir != "" {
		ix, err := New(context.Background(), Options{
			ID: "csw", ConfigDir: dir,
			Source: exitingSource{MemorySource: twoCatalogSource(), catalog: "b"},
		})
		require.NoError(t, err)
		_, _ = ix.Rebuild(context.Background())
		t.Fatal("rebuild finished without reaching catalog b")
	}

	// Given a served index of two documents
	dir := t.TempDir()
	first, err := New(context.Background(), Options{ID: "csw", ConfigDir: dir, Source: twoCatalogSource()})
	require.NoError(t, err)
	info, err := first.Info()
	require.NoError(t, err)
	require.Equal(t, uint64(2), info.Documents)
	require.NoError(t, first.Store().Close())

	// When another process dies while rebuilding it
	cmd := exec.Command(os.Args[0], "-test.run=^TestRebuild_ProcessExitMidBuildKeepsCurrentIndex$")
	cmd.Env = append(os.Environ(), crashDirEnv+"="+dir)
	err = cmd.Run()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 3, exitErr.ExitCode())

	// Then only the staging directory was left behind
	assert.DirExists(t, filepath.Join(dir, "csw"+stagingSuffix))
	assert.NoDirExists(t, filepath.Join(dir, "csw"+nextSuffix))

	// And a restart discards it and keeps serving the previous index
	ix := newIndexer(t, dir, twoCatalogSource())
	assert.False(t, ix.Created())
	assert.NoDirExists(t, filepath.Join(dir, "csw"+stagingSuffix))
	info, err = ix.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.Documents)
	assert.Equal(t, []string{"b1:b"}, searchAnyText(t, ix.Store(), "bathymetry"))
}

func TestNew_DiscardsUnfinishedStagingIndex(t *testing.T) {
	// Given a current index and an unfinished staging directory
	dir := t.TempDir()
	src := record.NewMemorySource()
	src.Put(isoRecord("a", "Sea surface temperature", "Daily SST grids", "", "", "", ""))
	first, err := New(context.Background(), Options{ID: "csw", ConfigDir: dir, Source: src})
	require.NoError(t, err)
	require.NoError(t, first.Store().Close())

	staging := filepath.Join(dir, "csw"+stagingSuffix)
	require.NoError(t, os.MkdirAll(staging, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "index_meta.json"), []byte("{"), 0o644))

	// When the indexer is constructed again
	ix := newIndexer(t, dir, src)

	// Then the staging directory is removed, not promoted
	assert.NoDirExists(t, staging)
	assert.Equal(t, []string{"a:main"}, searchAnyText(t, ix.Store(), "temperature"))
}

func TestNew_RebuildsCorruptIndex(t *testing.T) {
	// Given an index whose metadata was truncated
	dir := t.TempDir()
	src := record.NewMemorySource()
	src.Put(isoRecord("a", "Sea surface temperature", "Daily SST grids", "", "", "", ""))
	first, err := New(context.Background(), Options{ID: "csw", ConfigDir: dir, Source: src})
	require.NoError(t, err)
	require.NoError(t, first.Store().Close())

	current, _ := first.Dirs()
	require.NoError(t, os.WriteFile(filepath.Join(current, "index_meta.json"), nil, 0o644))

	// When the indexer is constructed again
	ix := newIndexer(t, dir, src)

	// Then the index is rebuilt from the source instead of served empty
	assert.True(t, ix.Created())
	assert.False(t, ix.Store().Cleared())
	info, err := ix.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Documents)
	assert.Equal(t, []string{"a:main"}, searchAnyText(t, ix.Store(), "temperature"))
}

func TestEndToEnd_AntimeridianBBoxIsSearchable(t *testing.T) {
	// Given a record whose box crosses the dateline and one in the Atlantic
	dir := t.TempDir()
	src := record.NewMemorySource()
	src.Put(
		isoRecord("fiji", "Fiji reef survey", "Coral cover", "170", "-170", "-10", "10"),
		isoRecord("azores", "Azores fisheries", "Catch statistics", "-32", "-24", "36", "40"),
	)
	ix := newIndexer(t, dir, src)

	// When searching a box east of the dateline
	q, err := bleve.NewGeoShapeQuery([][][][]float64{{{{-175, 5}, {-172, -5}}}}, "envelope", "intersects")
	require.NoError(t, err)
	q.SetField(FieldGeometry)
	res, err := ix.Store().Search(context.Background(), bleve.NewSearchRequest(q))
	require.NoError(t, err)

	// Then only the dateline record matches
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "fiji:main", res.Hits[0].ID)
}
