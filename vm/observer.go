package vm

import (
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	gethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

// OpcodeStep is a single step surfaced to a StepObserver: enough of the
// interpreter's instantaneous state for the Opcode Tracer (C3) to build its
// taint and counter state machine without the harness and the tracer
// sharing any other coupling.
type OpcodeStep struct {
	PC      uint64
	Op      gethvm.OpCode
	Depth   int
	Gas     uint64
	Cost    uint64
	Stack   []uint256.Int // top-of-stack first, capped by the caller
	Address gethcommon.Address
}

// StepObserver is the capability interface the harness drives on every
// opcode executed, one per scenario run. It is intentionally the only
// extension point the harness exposes -- "StepObserver" is named directly in
// the design notes as the seam between the EVM Harness and the Opcode
// Tracer, so tracer logic never has to reach into go-ethereum's tracing
// hooks itself.
type StepObserver interface {
	OnOpcode(step OpcodeStep)
}

// stepObserverHooks adapts a StepObserver to go-ethereum's tracing.Hooks,
// the actual mechanism core/vm calls into (see
// other_examples' core-vm-runtime-runtime_test.go.go, which force-loads the
// same tracers package this hook type comes from).
func stepObserverHooks(obs StepObserver, topStack int) *tracing.Hooks {
	if obs == nil {
		return nil
	}
	return &tracing.Hooks{
		OnOpcode: func(pc uint64, opcode byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
			st := scope.StackData()
			n := topStack
			if n > len(st) {
				n = len(st)
			}
			top := make([]uint256.Int, n)
			for i := 0; i < n; i++ {
				top[i] = st[len(st)-1-i]
			}
			obs.OnOpcode(OpcodeStep{
				PC:      pc,
				Op:      gethvm.OpCode(opcode),
				Depth:   depth,
				Gas:     gas,
				Cost:    cost,
				Stack:   top,
				Address: scope.Address(),
			})
		},
	}
}
