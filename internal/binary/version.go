package binary

import (
	"strconv"
	"strings"
)

// CompareVersions compares two dot-separated numeric versions and returns
// -1, 0, or 1. Missing components are treated as zero, so "1.2" equals
// "1.2.0". A leading "v" is tolerated on either side. This is a numeric
// comparison: "2.0.0" is newer than "1.99.99".
func CompareVersions(a, b string) int {
	av := versionParts(a)
	bv := versionParts(b)

	for len(av) < len(bv) {
		av = append(av, 0)
	}
	for len(bv) < len(av) {
		bv = append(bv, 0)
	}

	for i := range av {
		if av[i] > bv[i] {
			return 1
		}
		if av[i] < bv[i] {
			return -1
		}
	}
	return 0
}

// versionParts splits a version string into its numeric components.
// Non-digit trailing noise in a component ("0-rc1") is ignored past the
// leading digits.
func versionParts(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")

	var parts []int
	for _, comp := range strings.Split(v, ".") {
		digits := comp
		for i, r := range comp {
			if r < '0' || r > '9' {
				digits = comp[:i]
				break
			}
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			n = 0
		}
		parts = append(parts, n)
	}
	return parts
}

// NormalizeVersion strips the leading "v" release tags carry.
func NormalizeVersion(tag string) string {
	return strings.TrimPrefix(strings.TrimSpace(tag), "v")
}
