package queryable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constellation-sdi/constellation/internal/record"
)

const (
	citation = "ISO 19115:MD_Metadata:identificationInfo:citation:"
	datePath = citation + "date:date"
	typePath = citation + "date:dateType"
)

func isoRecord() *record.Record {
	return record.New("r1", "main", record.Class{Standard: record.StandardISO19115, Name: "MD_Metadata"})
}

func termMap(t *testing.T, term string, specs ...string) *TermMap {
	t.Helper()
	m := NewTermMap("test")
	require.NoError(t, m.Add(term, specs...))
	return m
}

func TestParsePathSpec(t *testing.T) {
	p, err := ParsePathSpec("a:b")
	require.NoError(t, err)
	assert.False(t, p.IsConditional())
	assert.Equal(t, "a:b", p.String())

	p, err = ParsePathSpec("a:b#a:c=1")
	require.NoError(t, err)
	assert.True(t, p.IsConditional())
	assert.Equal(t, PathSpec{Path: "a:b", CondPath: "a:c", CondValue: "1"}, p)
	assert.Equal(t, "a:b#a:c=1", p.String())

	for _, bad := range []string{"", "a#b", "#b=1", "a#=1"} {
		_, err := ParsePathSpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestGetValues_NullSentinel(t *testing.T) {
	// Given a term whose path holds nothing
	rec := isoRecord()
	m := termMap(t, "Title", citation+"title")

	// When resolving it
	got := NewResolver(nil).GetValues("Title", rec, m, AllOrdinals)

	// Then the sentinel is returned
	assert.Equal(t, Null, got)

	// And an unknown term behaves the same
	assert.Equal(t, Null, NewResolver(nil).GetValues("Missing", rec, m, AllOrdinals))
}

func TestGetValues_JoinsWithoutTrailingComma(t *testing.T) {
	rec := isoRecord().
		MustAdd("MD_Metadata.1:identificationInfo.1:citation.1:title.1", "CharacterString", "Sea surface")
	m := termMap(t, "Title", citation+"title")
	r := NewResolver(nil)

	assert.Equal(t, "Sea surface", r.GetValues("Title", rec, m, AllOrdinals))

	rec.MustAdd("MD_Metadata.1:identificationInfo.1:citation.1:title.2", "CharacterString", "SST")
	assert.Equal(t, "Sea surface,SST", r.GetValues("Title", rec, m, AllOrdinals))
}

func TestGetValues_ConditionalPath(t *testing.T) {
	// Given sibling values {date: "x", dateType: "1"}
	rec := isoRecord().
		MustAdd("MD_Metadata.1:identificationInfo.1:citation.1:date.1:date.1", "CharacterString", "x").
		MustAdd("MD_Metadata.1:identificationInfo.1:citation.1:date.1:dateType.1", "CharacterString", "1")
	r := NewResolver(nil)

	// When the condition matches
	m := termMap(t, "D", datePath+"#"+typePath+"=1")
	// Then the value is selected
	assert.Equal(t, "x", r.GetValues("D", rec, m, AllOrdinals))

	// When the condition does not match
	m = termMap(t, "D", datePath+"#"+typePath+"=2")
	// Then nothing resolves
	assert.Equal(t, Null, r.GetValues("D", rec, m, AllOrdinals))
}

func TestGetValues_ConditionalPathPicksMatchingBlock(t *testing.T) {
	rec := isoRecord().
		MustAdd("MD_Metadata.1:identificationInfo.1:citation.1:date.1:date.1", "Date", "2001-02-03").
		MustAdd("MD_Metadata.1:identificationInfo.1:citation.1:date.1:dateType.1", "CI_DateTypeCode", "1").
		MustAdd("MD_Metadata.1:identificationInfo.1:citation.1:date.2:date.1", "Date", "2010-11-12").
		MustAdd("MD_Metadata.1:identificationInfo.1:citation.1:date.2:dateType.1", "CI_DateTypeCode", "3")
	m := termMap(t, "RevisionDate", datePath+"#"+typePath+"=3")

	got := NewResolver(record.DefaultCodeLists()).GetValues("RevisionDate", rec, m, AllOrdinals)

	assert.Equal(t, "20101112", got)
}

func TestGetValues_CodeListResolution(t *testing.T) {
	lists := record.CodeLists{
		"TestCode": {Name: "TestCode", Elements: []record.CodeListElement{{Code: 1, Name: "Bar"}, {Code: 2, Name: "Foo"}}},
		"Lang":     {Name: "Lang", Locale: true},
	}
	r := NewResolver(lists)
	path := "ISO 19115:MD_Metadata:hierarchyLevel"

	t.Run("numeric code resolves to element name", func(t *testing.T) {
		rec := isoRecord().MustAdd("MD_Metadata.1:hierarchyLevel.1", "TestCode", "2")
		assert.Equal(t, "Foo", r.GetValues("T", rec, termMap(t, "T", path), AllOrdinals))
	})

	t.Run("unknown code is omitted", func(t *testing.T) {
		rec := isoRecord().
			MustAdd("MD_Metadata.1:hierarchyLevel.1", "TestCode", "9").
			MustAdd("MD_Metadata.1:hierarchyLevel.2", "TestCode", "1")
		assert.Equal(t, "Bar", r.GetValues("T", rec, termMap(t, "T", path), AllOrdinals))
	})

	t.Run("unknown code alone yields null", func(t *testing.T) {
		rec := isoRecord().MustAdd("MD_Metadata.1:hierarchyLevel.1", "TestCode", "9")
		assert.Equal(t, Null, r.GetValues("T", rec, termMap(t, "T", path), AllOrdinals))
	})

	t.Run("non numeric code is omitted", func(t *testing.T) {
		rec := isoRecord().MustAdd("MD_Metadata.1:hierarchyLevel.1", "TestCode", "abc")
		assert.Equal(t, Null, r.GetValues("T", rec, termMap(t, "T", path), AllOrdinals))
	})

	t.Run("locale codelist keeps literal text", func(t *testing.T) {
		rec := isoRecord().MustAdd("MD_Metadata.1:hierarchyLevel.1", "Lang", "fra")
		assert.Equal(t, "fra", r.GetValues("T", rec, termMap(t, "T", path), AllOrdinals))
	})
}

func TestGetValues_DateNormalization(t *testing.T) {
	rec := isoRecord().MustAdd("MD_Metadata.1:dateStamp.1", "Date", "2024-01-15")
	m := termMap(t, "Modified", "ISO 19115:MD_Metadata:dateStamp")

	assert.Equal(t, "20240115", NewResolver(nil).GetValues("Modified", rec, m, AllOrdinals))
}

func TestGetValues_TypePrependsProfile(t *testing.T) {
	rec := isoRecord().MustAdd("MD_Metadata.1:hierarchyLevel.1", "CharacterString", "dataset")
	m := termMap(t, "Type", "ISO 19115:MD_Metadata:hierarchyLevel")
	r := NewResolver(nil)

	assert.Equal(t, "dataset", r.GetValues("Type", rec, m, AllOrdinals))

	rec.Profile = "INSPIRE"
	assert.Equal(t, "INSPIRE,dataset", r.GetValues("Type", rec, m, AllOrdinals))

	// Only the literal Type term carries the profile
	m2 := termMap(t, "type", "ISO 19115:MD_Metadata:hierarchyLevel")
	assert.Equal(t, "dataset", r.GetValues("type", rec, m2, AllOrdinals))
}

func TestGetValues_OrdinalSelectsRepetition(t *testing.T) {
	rec := record.New("c1", "main", record.Class{Standard: record.StandardCSW, Name: "Record"}).
		MustAdd("Record.1:BoundingBox.1:LowerCorner.1", "CharacterString", "-10.5").
		MustAdd("Record.1:BoundingBox.1:LowerCorner.2", "CharacterString", "40.25")
	m := termMap(t, "West", "Catalog Web Service:Record:BoundingBox:LowerCorner")
	r := NewResolver(nil)

	assert.Equal(t, "-10.5", r.GetValues("West", rec, m, 1))
	assert.Equal(t, "40.25", r.GetValues("West", rec, m, 2))
	assert.Equal(t, Null, r.GetValues("West", rec, m, 3))
	assert.Equal(t, "-10.5,40.25", r.GetValues("West", rec, m, AllOrdinals))
}

func TestGetValues_SkipsLinks(t *testing.T) {
	rec := isoRecord()
	require.NoError(t, rec.AddLink("MD_Metadata.1:contact.1", "CI_ResponsibleParty", "party-7"))
	m := termMap(t, "Contact", "ISO 19115:MD_Metadata:contact")

	assert.Equal(t, Null, NewResolver(nil).GetValues("Contact", rec, m, AllOrdinals))
}

func TestBuiltin_LoadsOrderedMaps(t *testing.T) {
	s, err := Builtin()
	require.NoError(t, err)

	iso, ok := s.Get(ISO19115)
	require.True(t, ok)
	assert.Equal(t, "Title", iso.Names()[0])

	specs, ok := iso.Lookup("CreationDate")
	require.True(t, ok)
	require.Len(t, specs, 1)
	assert.True(t, specs[0].IsConditional())
	assert.Equal(t, "1", specs[0].CondValue)

	dc := s.MustGet(DublinCore)
	assert.Equal(t, "identifier", dc.Names()[0])

	assert.Contains(t, s.Names(), EbrimV3)
	assert.Contains(t, s.Names(), DublinCoreSpatial)
}

func TestLoadSet_AppliesOverrides(t *testing.T) {
	// Given an override file with two YAML documents
	file := filepath.Join(t.TempDir(), "queryables.yaml")
	content := `name: dublin-core
terms:
  - name: title
    paths:
      - "Catalog Web Service:Record:alternative"
  - name: audience
    paths:
      - "Catalog Web Service:Record:audience"
---
name: custom
terms:
  - name: Platform
    paths:
      - "ISO 19115:MD_Metadata:acquisitionInformation:platform:identifier"
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	// When loading the set
	s, err := LoadSet(file)
	require.NoError(t, err)

	// Then existing terms are replaced in place and new ones appended
	dc := s.MustGet(DublinCore)
	specs, _ := dc.Lookup("title")
	require.Len(t, specs, 1)
	assert.Equal(t, "Catalog Web Service:Record:alternative", specs[0].Path)
	assert.Equal(t, "identifier", dc.Names()[0])
	assert.Equal(t, "audience", dc.Names()[dc.Len()-1])

	_, ok := s.Get("custom")
	assert.True(t, ok)
}

func TestLoadFile_RejectsMalformedSpec(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("name: x\nterms:\n  - name: a\n    paths: [\"p#q\"]\n"), 0o644))

	_, err := LoadFile(file)
	assert.Error(t, err)
}
