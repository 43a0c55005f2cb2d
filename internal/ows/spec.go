// Package ows implements the behavior shared by every OGC web service front
// end: the version registry, worker lifecycle, version negotiation, update
// sequences and the capabilities cache.
package ows

import (
	"fmt"
	"strconv"
	"strings"
)

// Specification names an OGC service standard.
type Specification string

// Supported specifications.
const (
	CSW  Specification = "CSW"
	SOS  Specification = "SOS"
	WPS  Specification = "WPS"
	WMS  Specification = "WMS"
	WCS  Specification = "WCS"
	WMTS Specification = "WMTS"
	WFS  Specification = "WFS"
)

type specInfo struct {
	versions   []string
	operations []string
}

// registry lists versions in preference order: the first entry is the
// default and the upper clamp of negotiation.
var registry = map[Specification]specInfo{
	CSW: {
		versions:   []string{"2.0.2", "2.0.0"},
		operations: []string{"GetCapabilities", "DescribeRecord", "GetRecords", "GetRecordById", "GetDomain", "Transaction", "Harvest"},
	},
	SOS: {
		versions:   []string{"2.0.0", "1.0.0"},
		operations: []string{"GetCapabilities", "DescribeSensor", "GetObservation", "GetFeatureOfInterest", "InsertObservation"},
	},
	WPS: {
		versions:   []string{"2.0.0", "1.0.0"},
		operations: []string{"GetCapabilities", "DescribeProcess", "Execute", "GetStatus", "GetResult"},
	},
	WMS: {
		versions:   []string{"1.3.0", "1.1.1"},
		operations: []string{"GetCapabilities", "GetMap", "GetFeatureInfo", "GetLegendGraphic"},
	},
	WCS: {
		versions:   []string{"2.0.1", "1.1.1", "1.0.0"},
		operations: []string{"GetCapabilities", "DescribeCoverage", "GetCoverage"},
	},
	WMTS: {
		versions:   []string{"1.0.0"},
		operations: []string{"GetCapabilities", "GetTile", "GetFeatureInfo"},
	},
	WFS: {
		versions:   []string{"2.0.0", "1.1.0"},
		operations: []string{"GetCapabilities", "DescribeFeatureType", "GetFeature", "Transaction", "ListStoredQueries"},
	},
}

// ParseSpecification resolves a specification name, ignoring case.
func ParseSpecification(name string) (Specification, error) {
	s := Specification(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := registry[s]; !ok {
		return "", fmt.Errorf("unknown specification %q", name)
	}
	return s, nil
}

// Specifications returns every supported specification.
func Specifications() []Specification {
	return []Specification{CSW, SOS, WPS, WMS, WCS, WMTS, WFS}
}

// Versions returns the versions the specification defines, preferred first.
func (s Specification) Versions() []Version {
	info := registry[s]
	out := make([]Version, len(info.versions))
	for i, v := range info.versions {
		out[i] = MustParseVersion(v)
	}
	return out
}

// Operations returns the request names the specification defines.
func (s Specification) Operations() []string {
	return append([]string(nil), registry[s].operations...)
}

// Lower returns the lowercase name used in URLs.
func (s Specification) Lower() string {
	return strings.ToLower(string(s))
}

// Version is a dotted numeric protocol version.
type Version struct {
	number string
	parts  []int
}

// ParseVersion parses "x.y.z".
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("empty version")
	}
	fields := strings.Split(s, ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version %q", s)
		}
		parts[i] = n
	}
	return Version{number: s, parts: parts}, nil
}

// MustParseVersion is ParseVersion for static versions.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version number as written.
func (v Version) String() string {
	return v.number
}

// IsZero reports whether v is unset.
func (v Version) IsZero() bool {
	return v.number == ""
}

// Compare returns -1, 0 or 1. Missing trailing components count as zero.
func (v Version) Compare(o Version) int {
	n := len(v.parts)
	if len(o.parts) > n {
		n = len(o.parts)
	}
	for i := 0; i < n; i++ {
		a, b := 0, 0
		if i < len(v.parts) {
			a = v.parts[i]
		}
		if i < len(o.parts) {
			b = o.parts[i]
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

// MarshalText encodes the version number.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.number), nil
}
