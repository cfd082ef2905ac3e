package features

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evmsentinel/txfirewall/bytecode"
	"github.com/evmsentinel/txfirewall/common"
	"github.com/evmsentinel/txfirewall/proxy"
	"github.com/evmsentinel/txfirewall/simulation"
)

func TestBuild_AllFieldsInRange(t *testing.T) {
	sec := bytecode.Report{
		Flags: []string{"Suspicious Function: blacklist(address)"},
		Score: 75,
		Code:  []byte{0x60, 0x80, 0x60, 0x40, 0x52, 0x34, 0x80, 0x15, 0x00, 0x57},
	}
	prox := proxy.Resolution{Hops: []proxy.Hop{{Kind: proxy.Minimal1167}}}
	sim := simulation.Result{
		IsHoneypot:         true,
		HasOwnerPrivileges: true,
		Flags:              []string{"CRITICAL HONEYPOT: Owner can execute, but users CANNOT"},
		Counterfactual: []simulation.CounterfactualEntry{
			{ActorRole: simulation.ActorOwner, Outcome: common.NewSuccessOutcome(21000, nil)},
			{ActorRole: simulation.ActorRandomUser, Outcome: common.NewRevertedOutcome(21000, "nope")},
		},
		Baseline: simulation.ScenarioResult{Outcome: common.NewSuccessOutcome(21000, nil)},
	}

	v := Build(sec, prox, sim)

	require.InDelta(t, 0.5, v.SimSuccessRate, 0.001)
	require.InDelta(t, 0.5, v.RevertRate, 0.001)
	require.Greater(t, v.OwnerPrivilegeRatio, float32(0))
	require.InDelta(t, 0.8, v.CounterfactualRisk, 0.001)
	require.InDelta(t, 0.75, v.SecurityReportRisk, 0.001)
	require.InDelta(t, float64(1)/3, v.ProxyDepthNormalized, 0.01)
	require.GreaterOrEqual(t, v.GatedBranchRatio, float32(0.25))
	require.InDelta(t, 0.2, v.FlagDensity, 0.001)

	assertAllInRange(t, v)
}

func TestBuild_BenignContractRiskFieldsZero(t *testing.T) {
	sec := bytecode.Report{}
	prox := proxy.Resolution{}
	sim := simulation.Result{Baseline: simulation.ScenarioResult{Outcome: common.NewSuccessOutcome(21000, nil)}}

	v := Build(sec, prox, sim)

	require.Equal(t, float32(0.8), v.SimSuccessRate, "no counterfactual actors and a succeeding baseline falls back to 0.8")
	require.Equal(t, float32(0.2), v.RevertRate)
	require.Equal(t, float32(0), v.CounterfactualRisk)
	require.Equal(t, float32(0), v.OwnerPrivilegeRatio)
	require.Equal(t, float32(0), v.ProxyDepthNormalized)
	require.Equal(t, float32(0), v.FlagDensity)
	require.Equal(t, float32(0), v.TimeBombRisk)

	assertAllInRange(t, v)
}

func assertAllInRange(t *testing.T, v Vector) {
	t.Helper()
	fields := []float32{
		v.SimSuccessRate, v.OwnerPrivilegeRatio, v.TimeVarianceScore, v.GatedBranchRatio,
		v.MintTransferRatio, v.SuspiciousOpcodeDensity, v.ProxyDepthNormalized, v.SloadDensity,
		v.BytecodeEntropy, v.CounterfactualRisk, v.TimeBombRisk, v.GasAnomalyScore,
		v.SecurityReportRisk, v.FlagDensity, v.RevertRate,
	}
	for _, f := range fields {
		require.GreaterOrEqual(t, f, float32(0))
		require.LessOrEqual(t, f, float32(1))
		require.False(t, isNaNOrInf(f))
	}
}

func isNaNOrInf(f float32) bool {
	return f != f || f > 3.4e38 || f < -3.4e38
}
