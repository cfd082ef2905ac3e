// Package tracer implements the Opcode Tracer (C3): a StepObserver that
// turns the raw stream of executed opcodes the EVM Harness drives into the
// small summary other components need -- a semantic event list, a
// touched-slot set, and opcode counters. This is lossy static taint
// tracking, sufficient to flag patterns, not a full dataflow analysis.
//
// State lives entirely in the struct below. The touched-slot set is capped,
// since a single scenario run can legitimately execute tens of thousands of
// steps; the event list is not capped and grows by one entry per emitted
// event.
package tracer

import (
	gethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"

	"github.com/evmsentinel/txfirewall/vm"
)

// maxTouchedSlots caps the touched-slot set so a pathological loop can't
// grow the tracer's memory unboundedly.
const maxTouchedSlots = 1000

// Event names, emitted monotonically by pc within a single frame.
const (
	EventSenderLoaded             = "sender_loaded"
	EventOriginLoaded             = "origin_loaded"
	EventTimestampLoaded          = "timestamp_loaded"
	EventStorageReadAfterSender   = "storage_read_after_sender"
	EventComparisonAfterSender    = "comparison_after_sender"
	EventComparisonAfterTimestamp = "comparison_after_timestamp"
)

// Event is one semantic event the state machine below emitted, tagged with
// the pc it fired at.
type Event struct {
	PC   uint64
	Name string
}

// Counters tallies how many times each opcode family the verdict pipeline
// cares about was executed.
type Counters struct {
	SLOAD        int
	SSTORE       int
	CALL         int
	DELEGATECALL int
	STATICCALL   int
	CALLCODE     int
	SELFDESTRUCT int
}

// Result is everything the tracer hands back once a run completes.
type Result struct {
	Events []Event

	// TouchedSlots are storage keys read via SLOAD, in execution order,
	// capped at maxTouchedSlots.
	TouchedSlots []uint256.Int

	SenderLoaded             bool
	OriginLoaded             bool
	TimestampLoaded          bool
	StorageReadAfterSender   bool
	ComparisonAfterSender    bool
	ComparisonAfterTimestamp bool

	Counters Counters
	Steps    int // total opcodes observed, the Feature Extractor's instruction_count

	Truncated bool // true if TouchedSlots hit maxTouchedSlots and stopped growing
}

// Tracer implements vm.StepObserver for a single scenario run. It is not
// safe for concurrent use -- the simulation battery creates a fresh one for
// every scenario run and discards it after the run ends.
type Tracer struct {
	events []Event

	slots     map[uint256.Int]struct{}
	ordered   []uint256.Int
	truncated bool

	counters Counters
	steps    int

	senderLoaded, originLoaded, timestampLoaded bool
	storageReadAfterSender                      bool
	comparisonAfterSender                       bool
	comparisonAfterTimestamp                    bool

	// senderArmed is the one-shot "sender in play" flag: set on CALLER,
	// cleared after the next non-PUSH/DUP opcode (spec.md 4.3).
	senderArmed bool

	// prevCallerOrOrigin / prevTimestamp track whether the *immediately
	// preceding* opcode was CALLER/ORIGIN or TIMESTAMP, for the
	// comparison_after_* events which require strict adjacency.
	prevCallerOrOrigin bool
	prevTimestamp      bool
}

func New() *Tracer {
	return &Tracer{slots: make(map[uint256.Int]struct{})}
}

func (t *Tracer) OnOpcode(step vm.OpcodeStep) {
	t.steps++
	op := step.Op

	switch op {
	case gethvm.CALLER:
		t.senderLoaded = true
		t.senderArmed = true
		t.emit(step.PC, EventSenderLoaded)
	case gethvm.ORIGIN:
		t.originLoaded = true
		t.emit(step.PC, EventOriginLoaded)
	case gethvm.TIMESTAMP:
		t.timestampLoaded = true
		t.emit(step.PC, EventTimestampLoaded)
	case gethvm.SLOAD:
		t.counters.SLOAD++
		if len(step.Stack) > 0 {
			t.recordSlot(step.Stack[0])
		}
		if t.senderArmed {
			t.storageReadAfterSender = true
			t.emit(step.PC, EventStorageReadAfterSender)
		}
	case gethvm.SSTORE:
		t.counters.SSTORE++
	case gethvm.CALL:
		t.counters.CALL++
	case gethvm.DELEGATECALL:
		t.counters.DELEGATECALL++
	case gethvm.STATICCALL:
		t.counters.STATICCALL++
	case gethvm.CALLCODE:
		t.counters.CALLCODE++
	case gethvm.SELFDESTRUCT:
		t.counters.SELFDESTRUCT++
	}

	if isComparison(op) {
		if t.prevCallerOrOrigin {
			t.comparisonAfterSender = true
			t.emit(step.PC, EventComparisonAfterSender)
		}
		if t.prevTimestamp {
			t.comparisonAfterTimestamp = true
			t.emit(step.PC, EventComparisonAfterTimestamp)
		}
	}

	t.prevCallerOrOrigin = op == gethvm.CALLER || op == gethvm.ORIGIN
	t.prevTimestamp = op == gethvm.TIMESTAMP

	if op != gethvm.CALLER && !isPushOrDup(op) {
		t.senderArmed = false
	}
}

func (t *Tracer) emit(pc uint64, name string) {
	t.events = append(t.events, Event{PC: pc, Name: name})
}

func isComparison(op gethvm.OpCode) bool {
	switch op {
	case gethvm.EQ, gethvm.LT, gethvm.GT, gethvm.SLT, gethvm.SGT:
		return true
	default:
		return false
	}
}

func isPushOrDup(op gethvm.OpCode) bool {
	if op >= gethvm.PUSH1 && op <= gethvm.PUSH32 {
		return true
	}
	if op >= gethvm.DUP1 && op <= gethvm.DUP16 {
		return true
	}
	return false
}

func (t *Tracer) recordSlot(key uint256.Int) {
	if t.truncated {
		return
	}
	if _, ok := t.slots[key]; ok {
		return
	}
	if len(t.ordered) >= maxTouchedSlots {
		t.truncated = true
		return
	}
	t.slots[key] = struct{}{}
	t.ordered = append(t.ordered, key)
}

// Result snapshots the tracer's accumulated state. Safe to call once at the
// end of a run; calling it mid-run returns a partial (but internally
// consistent) snapshot.
func (t *Tracer) Result() Result {
	return Result{
		Events:                   append([]Event(nil), t.events...),
		TouchedSlots:             append([]uint256.Int(nil), t.ordered...),
		SenderLoaded:             t.senderLoaded,
		OriginLoaded:             t.originLoaded,
		TimestampLoaded:          t.timestampLoaded,
		StorageReadAfterSender:   t.storageReadAfterSender,
		ComparisonAfterSender:    t.comparisonAfterSender,
		ComparisonAfterTimestamp: t.comparisonAfterTimestamp,
		Counters:                 t.counters,
		Steps:                    t.steps,
		Truncated:                t.truncated,
	}
}

var _ vm.StepObserver = (*Tracer)(nil)
