package models

import "slices"

// appendUnique appends ids that are not yet present in dst, keeping order.
func appendUnique(dst []string, ids ...string) []string {
	for _, id := range ids {
		if !slices.Contains(dst, id) {
			dst = append(dst, id)
		}
	}

	return dst
}

// removeAll returns dst without any of ids.
func removeAll(dst []string, ids ...string) []string {
	out := make([]string, 0, len(dst))

	for _, id := range dst {
		if !slices.Contains(ids, id) {
			out = append(out, id)
		}
	}

	return out
}
