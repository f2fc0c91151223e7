package radar

import (
	"strconv"
	"strings"
)

// ParseSequence extracts the sequence number from a cache file name such as
// "12.tif".
func ParseSequence(name, ext string) (uint64, bool) {
	stem, ok := strings.CutSuffix(name, ext)
	if !ok || stem == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(stem, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
