package enums

import (
	"fmt"
	"slices"
)

// member reports whether v is one of set.
func member[T ~string](set []T, v T) bool {
	return slices.Contains(set, v)
}

// parse maps raw onto the matching value of set. Matching is exact; kind
// names the enum in the error.
func parse[T ~string](set []T, kind, raw string) (T, error) {
	if v := T(raw); member(set, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
