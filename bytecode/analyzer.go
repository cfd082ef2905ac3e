// Package bytecode implements the Static Bytecode Analyzer (C5): scanning a
// contract's runtime code for the canonical selector table without
// executing anything, then resolving its owner() as a best-effort follow-up.
package bytecode

import (
	"context"
	"fmt"

	"github.com/evmsentinel/txfirewall/chain"
	"github.com/evmsentinel/txfirewall/common"
)

// OwnershipStatus is the Security Report's ownership_status field.
type OwnershipStatus int

const (
	OwnershipUnknown OwnershipStatus = iota
	OwnershipRenounced
	OwnershipCentralized
)

func (s OwnershipStatus) String() string {
	switch s {
	case OwnershipRenounced:
		return "Renounced"
	case OwnershipCentralized:
		return "Centralized"
	default:
		return "Unknown"
	}
}

// Severity is the mechanism story's severity band.
type Severity int

const (
	SeveritySafe Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "Low"
	case SeverityMedium:
		return "Medium"
	case SeverityHigh:
		return "High"
	default:
		return "Safe"
	}
}

// MechanismStory is the human narrative the Security Report carries: a
// title, a one-paragraph story, and a severity band.
type MechanismStory struct {
	Title    string
	Story    string
	Severity Severity
}

// Report is the Security Report spec.md 4.5 describes: which selectors the
// dispatch table exposes, the resulting weighted score, and whatever owner
// address could be resolved.
type Report struct {
	Matched         []SelectorRisk
	Score           int
	Owner           common.Address
	OwnerResolved   bool
	OwnershipStatus OwnershipStatus

	// Code is the deployed bytecode that was scanned, kept for the Feature
	// Extractor's entropy calculation.
	Code []byte

	// IsHoneypotSuspect defaults to true the moment any selector matches --
	// spec.md 4.5's "any selector hit also sets is_honeypot=true". It never
	// defaults true on an empty match set.
	IsHoneypotSuspect bool

	Flags               []string
	FriendlyExplanation string
	MechanismStory      MechanismStory
}

// Scan performs the static selector scan and attempts owner() resolution.
// owner() is tried first via the provided forked-EVM caller (a live harness
// call against the contract's own code, if the caller has one available),
// then falls back to the oracle's static_call against the live chain --
// "forked-EVM call, then oracle static_call fallback" per spec.md 4.5.
func Scan(ctx context.Context, oracle chain.Oracle, ch common.Chain, addr common.Address, code []byte, harnessCall func() ([]byte, error)) Report {
	report := Report{Code: code}

	for _, sel := range CanonicalSelectors {
		if containsSelector(code, sel.Selector) {
			report.Matched = append(report.Matched, sel)
			report.Score += sel.Weight
			report.Flags = append(report.Flags, "Suspicious Function: "+sel.Label)
		}
	}
	if len(report.Matched) > 0 {
		report.IsHoneypotSuspect = true
	}

	owner, resolved, reverted := resolveOwner(ctx, oracle, ch, addr, harnessCall)
	report.Owner = owner
	report.OwnerResolved = resolved
	if reverted {
		report.Score += RevertPenalty
	}

	switch {
	case resolved && owner.IsZero():
		report.OwnershipStatus = OwnershipRenounced
		report.Flags = append(report.Flags, "Ownership Renounced (Safe)")
	case resolved && !owner.IsZero():
		report.OwnershipStatus = OwnershipCentralized
		report.Score += 10
		report.Flags = append(report.Flags, fmt.Sprintf("Contract has an Owner: %s", owner.String()))
	default:
		report.OwnershipStatus = OwnershipUnknown
	}

	if report.Score < 0 {
		report.Score = 0
	}
	if report.Score > MaxRiskScore {
		report.Score = MaxRiskScore
	}

	report.FriendlyExplanation, report.MechanismStory = buildNarrative(report)
	return report
}

// buildNarrative turns the matched selectors into the Security Report's
// friendly_explanation and mechanism_story. Severity tracks the saturated
// risk score banding used throughout the module.
func buildNarrative(r Report) (string, MechanismStory) {
	if len(r.Matched) == 0 {
		return "Static analysis found no privileged or high-risk selectors.",
			MechanismStory{Title: "No Concerns Found", Story: "This contract's bytecode exposes no selectors from the known high-risk catalogue.", Severity: SeveritySafe}
	}

	top := r.Matched[0]
	for _, m := range r.Matched[1:] {
		if m.Weight > top.Weight {
			top = m
		}
	}

	var names string
	for i, m := range r.Matched {
		if i > 0 {
			names += ", "
		}
		names += m.Label
	}

	explanation := fmt.Sprintf("This contract exposes %d privileged selector(s): %s.", len(r.Matched), names)
	story := MechanismStory{
		Title:    fmt.Sprintf("Privileged Function: %s", top.Label),
		Story:    fmt.Sprintf("The bytecode contains %s, a function the contract owner or another privileged caller can use to alter normal token behavior.", top.Label),
		Severity: severityForScore(r.Score),
	}
	return explanation, story
}

func severityForScore(score int) Severity {
	switch {
	case score >= 70:
		return SeverityHigh
	case score >= 40:
		return SeverityMedium
	case score > 0:
		return SeverityLow
	default:
		return SeveritySafe
	}
}

// containsSelector looks for the Solidity dispatcher's usual
// "PUSH4 <selector> ... EQ" pattern: a PUSH4 opcode immediately followed by
// the 4 selector bytes. This is a substring scan, not disassembly -- false
// positives from selector bytes appearing inside unrelated PUSH32 data are
// accepted as the cost of a purely static, single-pass scan.
func containsSelector(code []byte, selector [4]byte) bool {
	const push4 = 0x63
	for i := 0; i+5 <= len(code); i++ {
		if code[i] != push4 {
			continue
		}
		if code[i+1] == selector[0] && code[i+2] == selector[1] && code[i+3] == selector[2] && code[i+4] == selector[3] {
			return true
		}
	}
	return false
}

// resolveOwner interprets a return of length >= 20 bytes by taking the last
// 20 (spec.md 4.5): an empty or all-zero harness return falls through to the
// oracle's static_call before giving up.
func resolveOwner(ctx context.Context, oracle chain.Oracle, ch common.Chain, addr common.Address, harnessCall func() ([]byte, error)) (common.Address, bool, bool) {
	if harnessCall != nil {
		ret, err := harnessCall()
		if err == nil && len(ret) >= 20 && !allZero(ret) {
			return common.AddressFromBytes(ret), true, false
		}
	}

	ret, err := oracle.StaticCall(ctx, ch, addr, OwnerSelector[:])
	if err != nil {
		return common.Address{}, false, true
	}
	if len(ret) < 20 {
		return common.Address{}, false, true
	}
	return common.AddressFromBytes(ret), true, false
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
