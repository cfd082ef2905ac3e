package vm

import (
	gethcommon "github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/evmsentinel/txfirewall/common"
)

// BalanceSlots is the canonical set of candidate `mapping(address => uint256)
// balances` storage-layout base slots for a holder in a contract whose real
// layout is unknown. Slot 51 covers the OpenZeppelin ERC20Upgradeable
// storage-gap offset seen in practice; the rest cover the common
// hand-written layouts (balances as slot 0-6). Harness.Execute does not
// write to these slots: it injects only the storage a RunConfig's Contracts
// carry, so no synthetic token balance is set for any actor.
var BalanceSlots = []uint64{0, 1, 2, 3, 4, 5, 6, 51}

// OwnerSlots is the narrower candidate set for a single `address owner` or
// `address private _owner` declaration: slot 0 (bare contracts), slot 5
// (post-ERC20-constructor layouts), and slot 51 (OpenZeppelin Ownable
// storage-gap offset). Harness.Execute does not write an owner into these
// slots; every actor runs against whatever the injected storage holds.
var OwnerSlots = []uint64{0, 5, 51}

// MappingSlot computes the storage slot of m[holder] for a Solidity mapping
// declared at storage slot baseSlot: keccak256(pad32(holder) || pad32(baseSlot)),
// per Solidity's standard storage layout for dynamic mapping types.
func MappingSlot(holder common.Address, baseSlot uint64) gethcommon.Hash {
	var buf [64]byte
	copy(buf[12:32], holder.Bytes())
	var baseBytes [32]byte
	for i := 0; i < 8; i++ {
		baseBytes[31-i] = byte(baseSlot >> (8 * i))
	}
	copy(buf[32:64], baseBytes[:])
	h := sha3.NewLegacyKeccak256()
	h.Write(buf[:])
	return gethcommon.BytesToHash(h.Sum(nil))
}

// DirectSlot returns the plain (non-mapping) storage key for a slot index;
// the firewall package uses it to key the prefetched slot values it places
// in a RunConfig's Contracts.
func DirectSlot(slot uint64) gethcommon.Hash {
	var h gethcommon.Hash
	for i := 0; i < 8; i++ {
		h[31-i] = byte(slot >> (8 * i))
	}
	return h
}
