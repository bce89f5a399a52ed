package engine

// Stateless pre-flight helpers for the batch operations. Validation is
// computed entirely before any mutating call is issued; the engine never
// interleaves partial writes with these checks.

// dedupe removes duplicate ids preserving first-occurrence order.
func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// missingIDs returns the requested ids absent from found, in request order.
func missingIDs[T any](requested []int64, found map[int64]T) []int64 {
	var missing []int64
	for _, id := range requested {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// presentIDs returns the requested ids present in found, in request order.
func presentIDs[T any](requested []int64, found map[int64]T) []int64 {
	var present []int64
	for _, id := range requested {
		if _, ok := found[id]; ok {
			present = append(present, id)
		}
	}
	return present
}
