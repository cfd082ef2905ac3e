package vm

import (
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/evmsentinel/txfirewall/common"
)

// DefaultSenderBalance is the synthetic funding every sender/origin receives
// before a call runs, so a scenario never fails purely on insufficient
// balance for value transfer or gas (spec.md 4.2: "the sender is funded with
// enough ether that balance is never the reason a call reverts").
var DefaultSenderBalance = mustParseEther(100)

func mustParseEther(n uint64) *uint256.Int {
	wei := new(uint256.Int).SetUint64(n)
	return wei.Mul(wei, uint256.NewInt(1_000_000_000_000_000_000))
}

// ContractState is the forked state for a single account: bytecode plus a
// sparse set of storage overrides (the subset of slots the Proxy Resolver,
// Static Analyzer, or Chain Oracle prefetch actually bothered to read).
type ContractState struct {
	Code    []byte
	Storage map[gethcommon.Hash]gethcommon.Hash
}

// RunConfig is the full, deterministic description of one forked-EVM call
// (spec.md 4.2's "Config" struct): everything the EVM Harness needs to
// reconstruct enough of chain state to execute a single message
// deterministically, with no dependence on wall-clock time or on any live
// connection during the call itself.
type RunConfig struct {
	Sender common.Address
	To     common.Address
	Data   []byte
	Value  *uint256.Int

	GasLimit uint64

	BlockNumber uint64
	Timestamp   uint64
	Coinbase    common.Address
	Difficulty  *uint256.Int
	BaseFee     *uint256.Int

	// Contracts maps every account participating in the call (the target,
	// and any proxy implementation re-homed onto it) to its forked code and
	// storage. The target's own entry is required; others are optional.
	Contracts map[common.Address]ContractState

	// BalanceOverrides lets a caller force an account's starting balance; an
	// entry for the sender replaces DefaultSenderBalance. The Simulation
	// Battery does not set it, so every actor it impersonates starts with
	// DefaultSenderBalance.
	BalanceOverrides map[common.Address]*uint256.Int

	// Observer, if non-nil, receives every opcode the interpreter executes
	// during this one call.
	Observer StepObserver
}
