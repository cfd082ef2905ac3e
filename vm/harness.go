package vm

import (
	"context"
	"fmt"
	"math/big"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	gethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/core/vm/runtime"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/evmsentinel/txfirewall/common"
)

// Harness is the EVM Harness (C2): a forked, isolated, deterministic
// single-call executor. Every Execute call builds a fresh in-memory state
// database -- there is no persistence across calls, matching spec.md's
// "ownership: created fresh per scenario run, discarded after" for the
// underlying state. The technique (inject accounts into a StateDB, build a
// block/tx context, run one message, read back the outcome) is the
// teacher's (tests/state_test_util.go's MakePreState + ApplyMessage
// sequence); the engine underneath is go-ethereum's core/vm/runtime, the
// same one other_examples' core-vm-runtime-runtime_test.go.go exercises
// directly with Config{State: ...}.
type Harness struct {
	chainConfig *params.ChainConfig
}

// NewHarness builds a harness pinned to a Cancun+ instruction set -- the
// simulation battery never needs to reproduce a pre-Cancun chain, and fixing
// the fork keeps every scenario's gas schedule identical regardless of which
// live chain the contract was fetched from.
func NewHarness() *Harness {
	cfg := *params.AllEthashProtocolChanges
	forkTime := uint64(0)
	cfg.ShanghaiTime = &forkTime
	cfg.CancunTime = &forkTime
	return &Harness{chainConfig: &cfg}
}

// Execute runs exactly one message call against the state RunConfig
// describes and returns its Outcome. A panic inside the interpreter (a bug
// in go-ethereum or in a bytecode pattern it cannot handle) is recovered and
// reported as an InvariantBroken *Error, never allowed to take down the
// calling goroutine -- spec.md 5's "a panicking opcode handler must not
// crash the process".
func (h *Harness) Execute(ctx context.Context, cfg RunConfig) (outcome common.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Reason: InvariantBroken, Detail: "interpreter panic", Cause: fmt.Errorf("%v", r)}
		}
	}()

	if ctx.Err() != nil {
		return common.Outcome{}, &Error{Reason: InvariantBroken, Detail: "context already cancelled"}
	}

	statedb, err := state.New(gethcommon.Hash{}, state.NewDatabase(rawdb.NewMemoryDatabase()))
	if err != nil {
		return common.Outcome{}, &Error{Reason: StateCorrupt, Detail: "failed to build state database", Cause: err}
	}

	if _, ok := cfg.Contracts[cfg.To]; !ok {
		return common.Outcome{}, &Error{Reason: StateCorrupt, Detail: "RunConfig has no contract entry for the call target"}
	}
	for addr, acc := range cfg.Contracts {
		g := addr.Geth()
		if len(acc.Code) > 0 {
			statedb.SetCode(g, acc.Code)
		}
		for k, v := range acc.Storage {
			statedb.SetState(g, k, v)
		}
	}

	senderBalance := DefaultSenderBalance
	if b, ok := cfg.BalanceOverrides[cfg.Sender]; ok {
		senderBalance = b
	}
	statedb.SetBalance(cfg.Sender.Geth(), senderBalance, 0)
	for addr, bal := range cfg.BalanceOverrides {
		if addr == cfg.Sender {
			continue
		}
		statedb.SetBalance(addr.Geth(), bal, 0)
	}

	blobFee, err := blobBaseFee(nil, nil)
	if err != nil {
		blobFee = uint256.NewInt(0)
	}

	difficulty := new(big.Int)
	if cfg.Difficulty != nil {
		difficulty = cfg.Difficulty.ToBig()
	}
	baseFee := new(big.Int)
	if cfg.BaseFee != nil {
		baseFee = cfg.BaseFee.ToBig()
	}
	value := new(big.Int)
	if cfg.Value != nil {
		value = cfg.Value.ToBig()
	}

	runtimeCfg := &runtime.Config{
		ChainConfig: h.chainConfig,
		Origin:      cfg.Sender.Geth(),
		Coinbase:    cfg.Coinbase.Geth(),
		BlockNumber: new(big.Int).SetUint64(cfg.BlockNumber),
		Time:        cfg.Timestamp,
		Difficulty:  difficulty,
		Random:      &gethcommon.Hash{}, // non-nil Random marks the block post-merge, which time-based forks require
		GasLimit:    cfg.GasLimit,
		GasPrice:    big.NewInt(0),
		Value:       value,
		BaseFee:     baseFee,
		BlobBaseFee: blobFee.ToBig(),
		State:       statedb,
		EVMConfig: gethvm.Config{
			Tracer: stepObserverHooks(cfg.Observer, 5),
		},
	}

	ret, gasLeft, execErr := runtime.Call(cfg.To.Geth(), cfg.Data, runtimeCfg)
	gasUsed := cfg.GasLimit - gasLeft

	if execErr != nil {
		return common.NewRevertedOutcome(gasUsed, execErr.Error()), nil
	}
	return common.NewSuccessOutcome(gasUsed, ret), nil
}
