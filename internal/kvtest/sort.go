package kvtest

import "sort"

// sortStrings/reverseStrings are tiny helpers around the range-scan key
// overlay: ordering raw key bytes lexicographically is exactly what
// sort.Strings does for Go strings, so there is no domain library to
// reach for here.
func sortStrings(s []string) { sort.Strings(s) }

func reverseStrings(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
