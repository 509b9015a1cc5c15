package util

// CloneSlice returns an independent copy of src. A nil src clones to an
// empty, non-nil slice, so callers can range over the result unconditionally.
func CloneSlice[T any](src []T) []T {
	clone := make([]T, len(src))
	copy(clone, src)

	return clone
}
