package memstore

import "strconv"

// encodeBookmark/decodeBookmark render Store's internal save-order
// sequence number as the opaque bookmark string spec.md §6.2 treats as a
// caller-opaque resume token.
func encodeBookmark(seq int) string {
	return strconv.Itoa(seq)
}

func decodeBookmark(bookmark string) int {
	n, err := strconv.Atoi(bookmark)
	if err != nil {
		return -1
	}
	return n
}
