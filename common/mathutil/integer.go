// Package mathutil holds integer-parsing and saturating-math helpers for
// the firewall's value domain: the hex-or-decimal wire values a transaction
// request carries ("value is a decimal or hex integer string") and the
// saturating/clamping arithmetic used by the risk score and the 15-field
// feature vector.
package mathutil

import (
	"fmt"
	"strconv"

	"github.com/holiman/uint256"
)

// ParseUint256 parses s as a decimal or 0x-prefixed hex 256-bit integer.
// The empty string parses as zero.
func ParseUint256(s string) (*uint256.Int, bool) {
	if s == "" {
		return uint256.NewInt(0), true
	}
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		v, err := uint256.FromHex(s)
		return v, err == nil
	}
	v, ok := new(uint256.Int).FromDecimal(s)
	if ok != nil {
		return nil, false
	}
	return v, true
}

// MustParseUint256 panics on an invalid string; only for constants/tests.
func MustParseUint256(s string) *uint256.Int {
	v, ok := ParseUint256(s)
	if !ok {
		panic(fmt.Sprintf("invalid uint256: %q", s))
	}
	return v
}

// AbsoluteDifferenceU64 returns |x-y|, used by the counterfactual
// gas-anomaly check (|gas_user - gas_owner|).
func AbsoluteDifferenceU64(x, y uint64) uint64 {
	if x > y {
		return x - y
	}
	return y - x
}

// SaturatingAddInt clamps x+y into [lo, hi], used for the 0..100 risk score
// (spec.md "Risk saturation" invariant) instead of silently overflowing.
func SaturatingAddInt(x, y, lo, hi int) int {
	r := int64(x) + int64(y)
	if y > 0 && r < int64(x) {
		r = int64(hi)
	}
	if y < 0 && r > int64(x) {
		r = int64(lo)
	}
	if r < int64(lo) {
		return lo
	}
	if r > int64(hi) {
		return hi
	}
	return int(r)
}

// ClipFloat clamps f into [lo, hi]; used throughout the feature extractor,
// whose external contract forbids values outside [0,1].
func ClipFloat(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

// ParseChainIdentifier accepts either a bare integer or the "eip155:<n>" form
// used by spec.md section 6.
func ParseChainIdentifier(s string) (uint64, error) {
	const prefix = "eip155:"
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		s = s[len(prefix):]
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chain identifier %q: %w", s, err)
	}
	return n, nil
}
