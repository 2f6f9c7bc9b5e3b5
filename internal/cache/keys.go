package cache

import (
	"fmt"
	"net/url"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// maxEncodedParams is the longest parameter encoding kept verbatim in a key.
const maxEncodedParams = 128

// Key derives a cache key from a namespace and a parameter set.
// Parameter names and each name's values are sorted, so equal sets give equal keys.
func Key(namespace string, params url.Values) string {
	if len(params) == 0 {
		return namespace
	}

	canonical := make(url.Values, len(params))
	for name, values := range params {
		sorted := slices.Clone(values)
		slices.Sort(sorted)
		canonical[name] = sorted
	}

	encoded := canonical.Encode()
	if len(encoded) > maxEncodedParams {
		encoded = Digest(encoded)
	}
	return namespace + ":" + encoded
}

// Digest returns a fixed-width hex xxhash64 of s.
func Digest(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}
