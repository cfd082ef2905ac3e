// Package verdict implements the Verdict Assembler (C10): the final,
// strictly top-to-bottom decision table that turns every other component's
// output into one Status, a 0-100 risk score, flags, and an explanation.
package verdict

import (
	"fmt"

	"github.com/evmsentinel/txfirewall/bytecode"
	"github.com/evmsentinel/txfirewall/classifier"
	"github.com/evmsentinel/txfirewall/common/mathutil"
	"github.com/evmsentinel/txfirewall/history"
	"github.com/evmsentinel/txfirewall/simulation"
)

// Status is the firewall's final call on a transaction.
type Status int

const (
	Safe Status = iota
	Warn
	Block
)

func (s Status) String() string {
	switch s {
	case Block:
		return "BLOCK"
	case Warn:
		return "WARN"
	default:
		return "SAFE"
	}
}

// Source names which rule produced a Verdict, spec.md 4.10's
// source ∈ {RuleBased, RiskScore, MLCalibrated, Default}.
type Source int

const (
	SourceRuleBased Source = iota
	SourceRiskScore
	SourceMLCalibrated
	SourceDefault
)

func (s Source) String() string {
	switch s {
	case SourceRuleBased:
		return "RuleBased"
	case SourceRiskScore:
		return "RiskScore"
	case SourceMLCalibrated:
		return "MLCalibrated"
	default:
		return "Default"
	}
}

// probabilityBlockThreshold and probabilityWarnThreshold are the ML-
// calibrated thresholds spec.md 4.10 fixes.
const (
	probabilityBlockThreshold = 0.7
	probabilityWarnThreshold  = 0.4
	riskWarnThreshold         = 50
)

// Verdict is the assembled result.
type Verdict struct {
	Status      Status
	RiskScore   int
	Flags       []string
	Explanation string

	Source             Source
	Confidence         int
	Uncertainty        *float64
	ConfidenceInterval *[2]float64
}

// Assemble runs the decision table. Each rule is checked in order and the
// first match wins -- later rules never override an earlier one, even if
// they would have produced a different status.
func Assemble(sec bytecode.Report, sim simulation.Result, pred *classifier.Prediction, diff history.Diff) Verdict {
	flags := buildFlags(sec, sim, diff)
	risk := combinedRiskScore(sec, sim, diff)
	story := ReconcileMechanismStory(sec, sim)

	switch {
	case sec.IsHoneypotSuspect || sim.IsScam || sim.IsHoneypot || sim.HasOwnerPrivileges:
		return Verdict{
			Status:      Block,
			RiskScore:   risk,
			Flags:       flags,
			Explanation: rule1Reason(sec, sim, story),
			Source:      SourceRuleBased,
			Confidence:  100,
		}
	case risk >= riskWarnThreshold:
		return Verdict{
			Status:      Warn,
			RiskScore:   risk,
			Flags:       flags,
			Explanation: fmt.Sprintf("Risk score %d/100 — Proceed with caution", risk),
			Source:      SourceRiskScore,
			Confidence:  80,
		}
	case pred != nil && pred.ScamProbability > probabilityBlockThreshold:
		return Verdict{
			Status:      Block,
			RiskScore:   risk,
			Flags:       flags,
			Explanation: fmt.Sprintf("Classifier estimates a %.0f%% scam probability", pred.ScamProbability*100),
			Source:      SourceMLCalibrated,
			Confidence:  confidenceFromProbability(pred.ScamProbability),
			Uncertainty: predictionUncertainty(pred),
			ConfidenceInterval: predictionInterval(pred),
		}
	case pred != nil && pred.ScamProbability > probabilityWarnThreshold:
		return Verdict{
			Status:      Warn,
			RiskScore:   risk,
			Flags:       flags,
			Explanation: fmt.Sprintf("Classifier estimates a %.0f%% scam probability", pred.ScamProbability*100),
			Source:      SourceMLCalibrated,
			Confidence:  confidenceFromProbability(pred.ScamProbability),
			Uncertainty: predictionUncertainty(pred),
			ConfidenceInterval: predictionInterval(pred),
		}
	case pred != nil:
		return Verdict{
			Status:      Safe,
			RiskScore:   risk,
			Flags:       flags,
			Explanation: "Classifier found no significant scam indicators",
			Source:      SourceMLCalibrated,
			Confidence:  confidenceFromProbability(1 - pred.ScamProbability),
			Uncertainty: predictionUncertainty(pred),
			ConfidenceInterval: predictionInterval(pred),
		}
	default:
		return Verdict{
			Status:      Safe,
			RiskScore:   risk,
			Flags:       flags,
			Explanation: "No honeypot, time-bomb, or high-risk pattern detected",
			Source:      SourceDefault,
			Confidence:  50,
		}
	}
}

// rule1Reason follows spec.md 4.10's fallback chain: the Security Report's
// own explanation when the static scan itself marked a honeypot suspect,
// else the simulation battery's summary, else the reconciled mechanism
// story, else a generic catch-all.
func rule1Reason(sec bytecode.Report, sim simulation.Result, story bytecode.MechanismStory) string {
	if sec.FriendlyExplanation != "" && sec.IsHoneypotSuspect {
		return sec.FriendlyExplanation
	}
	if sim.OverallSummary != "" {
		return sim.OverallSummary
	}
	if story.Story != "" {
		return story.Story
	}
	return "Honeypot or scam patterns detected"
}

// ReconcileMechanismStory implements spec.md 4.10's pre-step-1
// reconciliation: when the simulation battery flagged a scam but the
// static scanner's own narrative was still "safe", the narrative is
// replaced with a canned story matching the specific scam family the
// battery actually observed.
func ReconcileMechanismStory(sec bytecode.Report, sim simulation.Result) bytecode.MechanismStory {
	scamDetected := sim.IsScam || sim.IsHoneypot || sim.HasWhitelistMechanism
	if !scamDetected || sec.MechanismStory.Severity != bytecode.SeveritySafe {
		return sec.MechanismStory
	}

	switch {
	case sim.HasOwnerPrivileges || sim.IsHoneypot:
		return bytecode.MechanismStory{
			Title:    "Owner-Only Access",
			Story:    "Simulation shows this contract only lets a privileged owner address execute the call; every other identity tested reverts.",
			Severity: bytecode.SeverityHigh,
		}
	case sim.IsTimeSensitive:
		return bytecode.MechanismStory{
			Title:    "Time-Locked Behavior",
			Story:    "Simulation shows this call's outcome changes depending on when it runs, consistent with a time-delayed trap.",
			Severity: bytecode.SeverityHigh,
		}
	default:
		return bytecode.MechanismStory{
			Title:    "Hidden Revert Condition",
			Story:    "Simulation surfaced a scam pattern the static scan's own narrative did not anticipate.",
			Severity: bytecode.SeverityHigh,
		}
	}
}

func confidenceFromProbability(p float64) int {
	c := int(p * 100)
	if c < 0 {
		c = 0
	}
	if c > 100 {
		c = 100
	}
	return c
}

func predictionUncertainty(pred *classifier.Prediction) *float64 {
	u := pred.Uncertainty
	return &u
}

func predictionInterval(pred *classifier.Prediction) *[2]float64 {
	ci := pred.ConfidenceInterval
	return &ci
}

func buildFlags(sec bytecode.Report, sim simulation.Result, diff history.Diff) []string {
	var flags []string
	flags = append(flags, sec.Flags...)
	flags = append(flags, sim.Flags...)
	if diff.RiskIncreasedFlag != "" {
		flags = append(flags, diff.RiskIncreasedFlag)
	}
	for _, f := range diff.NewFlags {
		flags = append(flags, "new:"+f)
	}
	return flags
}

func combinedRiskScore(sec bytecode.Report, sim simulation.Result, diff history.Diff) int {
	score := mathutil.SaturatingAddInt(sec.Score, sim.AggregateRisk, 0, 100)
	if diff.RiskDelta > 0 {
		score = mathutil.SaturatingAddInt(score, diff.RiskDelta/4, 0, 100)
	}
	return score
}
