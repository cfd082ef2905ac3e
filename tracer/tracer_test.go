package tracer

import (
	"testing"

	gethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/evmsentinel/txfirewall/vm"
)

func hasEvent(res Result, name string) bool {
	for _, e := range res.Events {
		if e.Name == name {
			return true
		}
	}
	return false
}

func TestTracer_CountsOpcodes(t *testing.T) {
	tr := New()
	tr.OnOpcode(vm.OpcodeStep{Op: gethvm.SLOAD, Stack: []uint256.Int{*uint256.NewInt(5)}})
	tr.OnOpcode(vm.OpcodeStep{Op: gethvm.SSTORE})
	tr.OnOpcode(vm.OpcodeStep{Op: gethvm.CALL})
	tr.OnOpcode(vm.OpcodeStep{Op: gethvm.DELEGATECALL})

	res := tr.Result()
	require.Equal(t, 1, res.Counters.SLOAD)
	require.Equal(t, 1, res.Counters.SSTORE)
	require.Equal(t, 1, res.Counters.CALL)
	require.Equal(t, 1, res.Counters.DELEGATECALL)
	require.Equal(t, 4, res.Steps)
	require.Len(t, res.TouchedSlots, 1)
	require.Equal(t, *uint256.NewInt(5), res.TouchedSlots[0])
}

func TestTracer_CallerArmsSenderAndSloadEmitsStorageRead(t *testing.T) {
	tr := New()
	tr.OnOpcode(vm.OpcodeStep{PC: 0, Op: gethvm.CALLER})
	tr.OnOpcode(vm.OpcodeStep{PC: 1, Op: gethvm.SLOAD, Stack: []uint256.Int{*uint256.NewInt(0)}})

	res := tr.Result()
	require.True(t, res.SenderLoaded)
	require.True(t, res.StorageReadAfterSender)
	require.True(t, hasEvent(res, EventSenderLoaded))
	require.True(t, hasEvent(res, EventStorageReadAfterSender))
}

func TestTracer_SenderArmOneShotClearsAfterNonPushDup(t *testing.T) {
	tr := New()
	tr.OnOpcode(vm.OpcodeStep{PC: 0, Op: gethvm.CALLER})
	tr.OnOpcode(vm.OpcodeStep{PC: 1, Op: gethvm.PUSH1}) // pushes stay armed
	tr.OnOpcode(vm.OpcodeStep{PC: 2, Op: gethvm.DUP1})  // dups stay armed
	tr.OnOpcode(vm.OpcodeStep{PC: 3, Op: gethvm.ADD})   // first non-push/dup disarms
	tr.OnOpcode(vm.OpcodeStep{PC: 4, Op: gethvm.SLOAD, Stack: []uint256.Int{*uint256.NewInt(0)}})

	res := tr.Result()
	require.False(t, res.StorageReadAfterSender, "sender arming should have been cleared by the ADD at pc 3")
}

func TestTracer_ComparisonImmediatelyAfterCaller(t *testing.T) {
	tr := New()
	tr.OnOpcode(vm.OpcodeStep{PC: 0, Op: gethvm.CALLER})
	tr.OnOpcode(vm.OpcodeStep{PC: 1, Op: gethvm.EQ})

	res := tr.Result()
	require.True(t, res.ComparisonAfterSender)
	require.True(t, hasEvent(res, EventComparisonAfterSender))
}

func TestTracer_ComparisonNotImmediatelyAfterCallerIsIgnored(t *testing.T) {
	tr := New()
	tr.OnOpcode(vm.OpcodeStep{PC: 0, Op: gethvm.CALLER})
	tr.OnOpcode(vm.OpcodeStep{PC: 1, Op: gethvm.PUSH1})
	tr.OnOpcode(vm.OpcodeStep{PC: 2, Op: gethvm.EQ})

	res := tr.Result()
	require.False(t, res.ComparisonAfterSender, "EQ is not immediately after CALLER, only after the intervening PUSH1")
}

func TestTracer_TimestampThenComparison(t *testing.T) {
	tr := New()
	tr.OnOpcode(vm.OpcodeStep{PC: 0, Op: gethvm.TIMESTAMP})
	tr.OnOpcode(vm.OpcodeStep{PC: 1, Op: gethvm.GT})

	res := tr.Result()
	require.True(t, res.TimestampLoaded)
	require.True(t, res.ComparisonAfterTimestamp)
	require.True(t, hasEvent(res, EventTimestampLoaded))
	require.True(t, hasEvent(res, EventComparisonAfterTimestamp))
}

func TestTracer_OriginLoaded(t *testing.T) {
	tr := New()
	tr.OnOpcode(vm.OpcodeStep{PC: 0, Op: gethvm.ORIGIN})
	tr.OnOpcode(vm.OpcodeStep{PC: 1, Op: gethvm.SLT})

	res := tr.Result()
	require.True(t, res.OriginLoaded)
	require.True(t, res.ComparisonAfterSender, "ORIGIN counts as a sender-comparison source too")
}

func TestTracer_TouchedSlotsTruncatesAtCap(t *testing.T) {
	tr := New()
	for i := 0; i < maxTouchedSlots+10; i++ {
		tr.OnOpcode(vm.OpcodeStep{Op: gethvm.SLOAD, Stack: []uint256.Int{*uint256.NewInt(uint64(i))}})
	}
	res := tr.Result()
	require.Len(t, res.TouchedSlots, maxTouchedSlots)
	require.True(t, res.Truncated)
}

func TestTracer_EventsAreMonotonicByPC(t *testing.T) {
	tr := New()
	tr.OnOpcode(vm.OpcodeStep{PC: 5, Op: gethvm.CALLER})
	tr.OnOpcode(vm.OpcodeStep{PC: 9, Op: gethvm.TIMESTAMP})

	res := tr.Result()
	require.Len(t, res.Events, 2)
	require.Less(t, res.Events[0].PC, res.Events[1].PC)
}
