// Package record models hierarchical metadata documents ("forms") as flat
// bags of path-addressed values.
//
// A value is addressed by an identifier made of ordinal-qualified segments,
// for example
//
//	MD_Metadata.1:identificationInfo.1:citation.1:date.2:dateType.1
//
// from which its standard path ("ISO 19115:MD_Metadata:identificationInfo:
// citation:date:dateType"), its ordinal (1) and its parent block are derived.
// Records are produced by a Source (SQL catalog, directory of YAML files, or
// memory) and are transient: they live only while an index document is built.
package record
