// Package queryable maps logical search terms to record paths and resolves
// their values.
//
// A term is bound to one or more path specifiers. A specifier is a plain
// path ("ISO 19115:MD_Metadata:fileIdentifier") or a conditional one
// ("pathA#pathB=value") selecting the value at pathA whose sibling at pathB
// holds value.
package queryable

import (
	"fmt"
	"strings"
)

// PathSpec is a parsed path specifier.
type PathSpec struct {
	Path      string
	CondPath  string
	CondValue string
}

// ParsePathSpec parses "path" or "path#condPath=condValue".
func ParsePathSpec(s string) (PathSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PathSpec{}, fmt.Errorf("empty path specifier")
	}
	path, cond, hasCond := strings.Cut(s, "#")
	if !hasCond {
		return PathSpec{Path: path}, nil
	}
	condPath, condValue, ok := strings.Cut(cond, "=")
	if path == "" || !ok || condPath == "" {
		return PathSpec{}, fmt.Errorf("malformed conditional path specifier %q", s)
	}
	return PathSpec{Path: path, CondPath: condPath, CondValue: condValue}, nil
}

// IsConditional reports whether the specifier carries a sibling condition.
func (p PathSpec) IsConditional() bool {
	return p.CondPath != ""
}

func (p PathSpec) String() string {
	if !p.IsConditional() {
		return p.Path
	}
	return p.Path + "#" + p.CondPath + "=" + p.CondValue
}
