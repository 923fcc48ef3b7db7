package utils

// Unique keeps the first occurrence of each entry, preserving order.
// Zero values are dropped.
func Unique[T comparable](slice []T) []T {
	var zero T
	seen := make(map[T]struct{}, len(slice))
	list := make([]T, 0, len(slice))
	for _, entry := range slice {
		if entry == zero {
			continue
		}
		if _, ok := seen[entry]; ok {
			continue
		}
		seen[entry] = struct{}{}
		list = append(list, entry)
	}
	return list
}
