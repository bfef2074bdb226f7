package metadata

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// NormalizeName lowercases an identifier and strips quoting characters and an
// optional schema qualifier. "Public"."Orders" and public.orders normalize to
// the same name.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Trim(name, "`\"[]")
	if idx := strings.LastIndex(name, "."); idx != -1 {
		name = name[idx+1:]
	}
	return strings.Trim(name, "`\"[]")
}

// NamesMatch reports whether two table references denote the same table after
// normalization, tolerating singular/plural mismatches ("order" vs "orders").
// Upstream planners frequently emit the entity name instead of the physical
// table name.
func NamesMatch(a, b string) bool {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == nb {
		return true
	}
	return inflection.Singular(na) == inflection.Singular(nb)
}
