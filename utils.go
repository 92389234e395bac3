package go_qmc2

import "strings"

// ObfuscateEKey hides most of an ekey so that it can be logged. Only the
// first and last four characters are kept.
func ObfuscateEKey(ekey string) string {
	if len(ekey) < 12 {
		return strings.Repeat("*", len(ekey))
	}

	return ekey[:4] + strings.Repeat("*", len(ekey)-8) + ekey[len(ekey)-4:]
}
