// Package features implements the Feature Extractor (C7): turning the
// static analysis, proxy resolution, and simulation battery's results into
// the fixed-shape vector the Classifier Client consumes. Field names, order,
// and [0,1] range are part of the external contract with the classifier
// and must never be renamed or reordered -- a model trained against this
// shape would silently misclassify if the fields moved.
package features

import (
	"math"
	"strings"

	"github.com/evmsentinel/txfirewall/bytecode"
	"github.com/evmsentinel/txfirewall/common/mathutil"
	"github.com/evmsentinel/txfirewall/proxy"
	"github.com/evmsentinel/txfirewall/simulation"
)

// Vector is the 15-field, [0,1]-clamped feature vector the classifier
// oracle was trained against. Every field is a float32 and every json tag
// is part of the wire contract -- renaming either breaks scoring silently.
type Vector struct {
	SimSuccessRate          float32 `json:"sim_success_rate"`
	OwnerPrivilegeRatio     float32 `json:"owner_privilege_ratio"`
	TimeVarianceScore       float32 `json:"time_variance_score"`
	GatedBranchRatio        float32 `json:"gated_branch_ratio"`
	MintTransferRatio       float32 `json:"mint_transfer_ratio"`
	SuspiciousOpcodeDensity float32 `json:"suspicious_opcode_density"`
	ProxyDepthNormalized    float32 `json:"proxy_depth_normalized"`
	SloadDensity            float32 `json:"sload_density"`
	BytecodeEntropy         float32 `json:"bytecode_entropy"`
	CounterfactualRisk      float32 `json:"counterfactual_risk"`
	TimeBombRisk            float32 `json:"time_bomb_risk"`
	GasAnomalyScore         float32 `json:"gas_anomaly_score"`
	SecurityReportRisk      float32 `json:"security_report_risk"`
	FlagDensity             float32 `json:"flag_density"`
	RevertRate              float32 `json:"revert_rate"`
}

// gatedBranchPatterns and mintTransferPatterns are the flag substrings the
// ratio fields count, matched case-insensitively across the combined
// security-report and simulation-battery flag lists.
var (
	gatedBranchPatterns = []string{"blacklist", "whitelist", "owner", "blocked"}
	mintTransferPatterns = []string{"mint", "drain", "pause", "selfdestruct"}
)

// Build assembles the vector from this scan's component results.
func Build(sec bytecode.Report, prox proxy.Resolution, sim simulation.Result) Vector {
	flags := append(append([]string(nil), sec.Flags...), sim.Flags...)

	successCount, revertCount, totalCounted := 0, 0, 0
	for _, cf := range sim.Counterfactual {
		switch {
		case cf.Outcome.Succeeded():
			successCount++
			totalCounted++
		case cf.Outcome.Reverted():
			revertCount++
			totalCounted++
		}
	}
	baselineReverted := sim.Baseline.Outcome.Reverted()

	simSuccessRate := fallbackRate(totalCounted, successCount, baselineReverted, 0.2, 0.8)
	revertRate := fallbackRate(totalCounted, revertCount, baselineReverted, 0.8, 0.2)

	ownerPrivilegeRatio := mathutil.ClipFloat(
		0.4*boolFloat64(sim.HasOwnerPrivileges)+
			0.3*boolFloat64(sim.IsHoneypot)+
			math.Min(0.3, 0.1*float64(len(sim.PrivilegeDiffs))),
		0, 1)

	timeVarianceScore := mathutil.ClipFloat(
		0.5*boolFloat64(sim.IsTimeSensitive)+
			math.Min(0.5, 0.1*float64(sim.DivergingOffsets))+
			math.Min(0.3, 0.1*float64(sim.TimeFlagCount)),
		0, 1)

	gatedBranchRatio := patternRatio(flags, gatedBranchPatterns)
	mintTransferRatio := patternRatio(flags, mintTransferPatterns)

	counters := sim.Baseline.Tracer.Counters
	steps := sim.Baseline.Tracer.Steps
	opcodeHits := float64(counters.SELFDESTRUCT)*2 + float64(counters.DELEGATECALL) + float64(counters.CALLCODE)
	denom := math.Max(10, float64(steps)/10)
	suspiciousOpcodeDensity := mathutil.ClipFloat(opcodeHits/denom, 0, 1)

	proxyDepthNormalized := mathutil.ClipFloat(float64(len(prox.Hops))/3.0, 0, 1)

	sloadDensity := float64(0)
	if steps > 0 {
		sloadDensity = mathutil.ClipFloat(float64(counters.SLOAD)/float64(steps)*10, 0, 1)
	}

	bytecodeEntropy := mathutil.ClipFloat(shannonEntropy(sec.Code)/8.0, 0, 1)

	counterfactualRisk := mathutil.ClipFloat(
		0.5*boolFloat64(sim.IsHoneypot)+
			0.3*boolFloat64(sim.HasOwnerPrivileges)+
			0.2*boolFloat64(sim.HasWhitelistMechanism),
		0, 1)

	timeBombRisk := mathutil.ClipFloat(0.2*float64(sim.TimeRiskFlagCount), 0, 1)

	gasAnomalyScore := computeGasAnomalyScore(sim)

	securityReportRisk := mathutil.ClipFloat(float64(sec.Score)/float64(bytecode.MaxRiskScore), 0, 1)

	flagDensity := mathutil.ClipFloat(float64(len(flags))/10.0, 0, 1)

	return Vector{
		SimSuccessRate:          float32(simSuccessRate),
		OwnerPrivilegeRatio:     float32(ownerPrivilegeRatio),
		TimeVarianceScore:       float32(timeVarianceScore),
		GatedBranchRatio:        float32(gatedBranchRatio),
		MintTransferRatio:       float32(mintTransferRatio),
		SuspiciousOpcodeDensity: float32(suspiciousOpcodeDensity),
		ProxyDepthNormalized:    float32(proxyDepthNormalized),
		SloadDensity:            float32(sloadDensity),
		BytecodeEntropy:         float32(bytecodeEntropy),
		CounterfactualRisk:      float32(counterfactualRisk),
		TimeBombRisk:            float32(timeBombRisk),
		GasAnomalyScore:         float32(gasAnomalyScore),
		SecurityReportRisk:      float32(securityReportRisk),
		FlagDensity:             float32(flagDensity),
		RevertRate:              float32(revertRate),
	}
}

// fallbackRate divides count/total when any counterfactual actor ran, and
// otherwise returns one of two fixed fallbacks keyed on whether the
// baseline itself reverted (spec.md 4.7: "fallback if no actors").
func fallbackRate(total, count int, baselineReverted bool, fallbackOnRevert, fallbackOtherwise float64) float64 {
	if total == 0 {
		if baselineReverted {
			return fallbackOnRevert
		}
		return fallbackOtherwise
	}
	return float64(count) / float64(total)
}

func patternRatio(flags []string, patterns []string) float64 {
	var hits float64
	for _, p := range patterns {
		if flagsContain(flags, p) {
			hits += 0.25
		}
	}
	if hits > 1 {
		hits = 1
	}
	return hits
}

func flagsContain(flags []string, substr string) bool {
	for _, f := range flags {
		if strings.Contains(strings.ToLower(f), substr) {
			return true
		}
	}
	return false
}

func computeGasAnomalyScore(sim simulation.Result) float64 {
	var maxGas, minGas uint64
	seen := false
	for _, cf := range sim.Counterfactual {
		if !cf.Outcome.Succeeded() {
			continue
		}
		g := cf.Outcome.GasUsed
		if !seen {
			maxGas, minGas, seen = g, g, true
			continue
		}
		if g > maxGas {
			maxGas = g
		}
		if g < minGas {
			minGas = g
		}
	}

	score := 0.0
	if seen && maxGas > 0 {
		score = float64(maxGas-minGas) / float64(maxGas)
	}
	if flagsContain(sim.Flags, "gas anomaly") && score < 0.7 {
		score = 0.7
	}
	return mathutil.ClipFloat(score, 0, 1)
}

// shannonEntropy computes the byte-histogram Shannon entropy of code, in
// bits (max 8 for a uniform distribution over 256 byte values).
func shannonEntropy(code []byte) float64 {
	if len(code) == 0 {
		return 0
	}
	var hist [256]int
	for _, b := range code {
		hist[b]++
	}
	total := float64(len(code))
	entropy := 0.0
	for _, count := range hist {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func boolFloat64(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
