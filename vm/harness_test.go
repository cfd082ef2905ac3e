package vm

import (
	"context"
	"testing"

	gethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/evmsentinel/txfirewall/common"
)

func mustAddr(t *testing.T, s string) common.Address {
	a, err := common.ParseAddress(s)
	require.NoError(t, err)
	return a
}

// returnTenCode is PUSH1 10 PUSH1 0 MSTORE PUSH1 32 PUSH1 0 RETURN -- the
// same minimal program other_examples' core-vm-runtime-runtime_test.go.go
// uses for TestExecute, adapted here to confirm the harness wiring end to
// end rather than go-ethereum's interpreter itself.
var returnTenCode = []byte{
	byte(gethvm.PUSH1), 10,
	byte(gethvm.PUSH1), 0,
	byte(gethvm.MSTORE),
	byte(gethvm.PUSH1), 32,
	byte(gethvm.PUSH1), 0,
	byte(gethvm.RETURN),
}

func TestHarness_ExecuteReturnsValue(t *testing.T) {
	h := NewHarness()
	to := mustAddr(t, "0x0000000000000000000000000000000000000aaa")
	sender := mustAddr(t, "0x0000000000000000000000000000000000000bbb")

	cfg := RunConfig{
		Sender:      sender,
		To:          to,
		Data:        nil,
		Value:       uint256.NewInt(0),
		GasLimit:    3_000_000,
		BlockNumber: 100,
		Timestamp:   1_700_000_000,
		Contracts: map[common.Address]ContractState{
			to: {Code: returnTenCode},
		},
	}

	outcome, err := h.Execute(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, outcome.Succeeded())
	require.Equal(t, uint64(10), new(uint256.Int).SetBytes(outcome.ReturnValue).Uint64())
}

func TestHarness_MissingTargetContractIsStateCorrupt(t *testing.T) {
	h := NewHarness()
	to := mustAddr(t, "0x0000000000000000000000000000000000000ccc")

	_, err := h.Execute(context.Background(), RunConfig{To: to, GasLimit: 100000})
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, StateCorrupt, verr.Reason)
}

func TestHarness_ObserverSeesOpcodes(t *testing.T) {
	h := NewHarness()
	to := mustAddr(t, "0x0000000000000000000000000000000000000ddd")
	var seen []gethvm.OpCode
	obs := recorderObserver{ops: &seen}

	cfg := RunConfig{
		To:          to,
		GasLimit:    3_000_000,
		BlockNumber: 1,
		Timestamp:   1,
		Contracts:   map[common.Address]ContractState{to: {Code: returnTenCode}},
		Observer:    obs,
	}
	_, err := h.Execute(context.Background(), cfg)
	require.NoError(t, err)
	require.NotEmpty(t, seen)
	require.Equal(t, gethvm.PUSH1, seen[0])
}

type recorderObserver struct {
	ops *[]gethvm.OpCode
}

func (r recorderObserver) OnOpcode(step OpcodeStep) {
	*r.ops = append(*r.ops, step.Op)
}

func TestMappingSlot_IsDeterministic(t *testing.T) {
	holder := mustAddr(t, "0x0000000000000000000000000000000000000001")
	a := MappingSlot(holder, 0)
	b := MappingSlot(holder, 0)
	require.Equal(t, a, b)
	c := MappingSlot(holder, 1)
	require.NotEqual(t, a, c)
}
