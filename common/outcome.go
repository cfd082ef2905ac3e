package common

import "github.com/holiman/uint256"

// Status is the terminal state of a single simulated call.
type Status int

const (
	StatusUnknown Status = iota
	StatusSuccess
	StatusReverted
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusReverted:
		return "Reverted"
	default:
		return "Unknown"
	}
}

// Outcome is the Simulation Outcome of spec.md section 3. Invariant: a
// Reverted outcome always carries a reason string (possibly "unknown").
type Outcome struct {
	Status       Status
	RevertReason string // only meaningful when Status == StatusReverted
	GasUsed      uint64
	ReturnValue  []byte
}

// NewRevertedOutcome enforces the Reverted-always-has-a-reason invariant.
func NewRevertedOutcome(gasUsed uint64, reason string) Outcome {
	if reason == "" {
		reason = "unknown"
	}
	return Outcome{Status: StatusReverted, RevertReason: reason, GasUsed: gasUsed}
}

func NewSuccessOutcome(gasUsed uint64, ret []byte) Outcome {
	return Outcome{Status: StatusSuccess, GasUsed: gasUsed, ReturnValue: ret}
}

func (o Outcome) Succeeded() bool { return o.Status == StatusSuccess }
func (o Outcome) Reverted() bool  { return o.Status == StatusReverted }

// Block mirrors the block-context fields the EVM Harness config exposes
// (spec.md 4.2). BaseFee and Difficulty are u256 where the EVM itself deals
// in u256; the rest follow go-ethereum's own header field widths.
type Block struct {
	Timestamp  uint64
	Number     uint64
	BaseFee    *uint256.Int
	Coinbase   Address
	Difficulty *uint256.Int
	GasLimit   uint64
}
