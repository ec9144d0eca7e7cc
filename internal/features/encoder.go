package features

import (
	"sort"
)

// MissingCategory code for readings without machine metadata
const MissingCategory = -1

// CategoryMap maps a machine model name to its integer code
type CategoryMap map[string]int

// NewCategoryMap assigns codes 0..n-1 by lexicographic order of the distinct
// non-empty values.
func NewCategoryMap(values []string) CategoryMap {
	distinct := make(map[string]struct{})
	for _, v := range values {
		if v != "" {
			distinct[v] = struct{}{}
		}
	}
	names := make([]string, 0, len(distinct))
	for v := range distinct {
		names = append(names, v)
	}
	sort.Strings(names)

	m := make(CategoryMap, len(names))
	for i, v := range names {
		m[v] = i
	}
	return m
}

// Code returns the code of v, or MissingCategory when v is unknown.
func (m CategoryMap) Code(v string) int {
	if code, ok := m[v]; ok {
		return code
	}
	return MissingCategory
}

// Names returns the categories ordered by code
func (m CategoryMap) Names() []string {
	names := make([]string, len(m))
	for v, code := range m {
		if code >= 0 && code < len(names) {
			names[code] = v
		}
	}
	return names
}
