// Package common holds the small value types shared by every component of
// the analysis pipeline: addresses, chain identifiers, and the transaction
// request the firewall is asked to judge.
package common

import (
	"encoding/hex"
	"strings"

	geth "github.com/ethereum/go-ethereum/common"
)

// Address is a canonicalized, lowercase-hex 20-byte EVM address.
type Address [20]byte

// ZeroAddress is the conventional "no owner" / renounced-ownership address.
var ZeroAddress Address

// ParseAddress accepts a 0x-prefixed or bare 40-hex-digit string.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.TrimPrefix(s, "0X")
	if len(s) != 40 {
		return a, errInvalidAddress(s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, errInvalidAddress(s)
	}
	copy(a[:], b)
	return a, nil
}

// AddressFromBytes right-aligns or truncates b into a 20-byte address the way
// the EVM does when a 32-byte word is interpreted as an address (low 20
// bytes).
func AddressFromBytes(b []byte) Address {
	var a Address
	if len(b) >= 20 {
		copy(a[:], b[len(b)-20:])
		return a
	}
	copy(a[20-len(b):], b)
	return a
}

func (a Address) IsZero() bool { return a == ZeroAddress }

func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) Bytes() []byte { return a[:] }

// Geth converts to the go-ethereum address type at the EVM harness boundary.
func (a Address) Geth() geth.Address { return geth.Address(a) }

// FromGeth converts back from the go-ethereum address type.
func FromGeth(a geth.Address) Address { return Address(a) }

type errInvalidAddress string

func (e errInvalidAddress) Error() string { return "invalid address: " + string(e) }
