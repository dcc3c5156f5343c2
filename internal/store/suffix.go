package store

import "strconv"

// formatSuffixString renders the " <flags> <size>\r\n" suffix that lives
// contiguously with the item's key and value (spec.md §3).
func formatSuffixString(flags uint32, size int) string {
	b := make([]byte, 0, 24)
	b = append(b, ' ')
	b = strconv.AppendUint(b, uint64(flags), 10)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(size), 10)
	b = append(b, '\r', '\n')
	return string(b)
}
