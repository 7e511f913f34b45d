package domain

import "slices"

// MergeSymbols returns the sorted union of the given symbol lists with
// empty strings dropped.
func MergeSymbols(lists ...[]string) []string {
	seen := make(map[string]struct{})
	merged := make([]string, 0)

	for _, list := range lists {
		for _, sym := range list {
			if sym == "" {
				continue
			}
			if _, ok := seen[sym]; ok {
				continue
			}
			seen[sym] = struct{}{}
			merged = append(merged, sym)
		}
	}

	slices.Sort(merged)

	return merged
}

// MissingSymbols returns the members of want that are not in have.
func MissingSymbols(have, want []string) []string {
	var missing []string

	for _, sym := range want {
		if !slices.Contains(have, sym) {
			missing = append(missing, sym)
		}
	}

	return missing
}
