package history

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// CapabilityHash computes the order-independent identity of a flag set:
// sha256(sorted_flags.join("|"))[:16] (spec.md 4.9). Two scans that found
// the same flags in a different order must hash identically -- drift
// detection cares about which capabilities exist, not what order the
// pipeline happened to discover them in.
func CapabilityHash(flags []string) string {
	sorted := append([]string(nil), flags...)
	sort.Strings(sorted)
	joined := strings.Join(sorted, "|")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])[:16]
}
