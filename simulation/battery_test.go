package simulation

import (
	"context"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/evmsentinel/txfirewall/common"
	"github.com/evmsentinel/txfirewall/vm"
)

func mustAddr(t *testing.T, s string) common.Address {
	a, err := common.ParseAddress(s)
	require.NoError(t, err)
	return a
}

func hasFlagContaining(flags []string, substr string) bool {
	for _, f := range flags {
		if strings.Contains(f, substr) {
			return true
		}
	}
	return false
}

// fakeHarness lets a test script the outcome for a given (sender,
// timestamp) pair without touching go-ethereum at all.
type fakeHarness struct {
	fn func(cfg vm.RunConfig) (common.Outcome, error)
}

func (f *fakeHarness) Execute(ctx context.Context, cfg vm.RunConfig) (common.Outcome, error) {
	return f.fn(cfg)
}

func TestBattery_HoneypotSignal(t *testing.T) {
	owner := mustAddr(t, "0x0000000000000000000000000000000000009999")
	deployer := mustAddr(t, "0x0000000000000000000000000000000000008888")
	whitelisted := mustAddr(t, "0x0000000000000000000000000000000000007777")
	sender := mustAddr(t, "0x0000000000000000000000000000000000000001")

	h := &fakeHarness{fn: func(cfg vm.RunConfig) (common.Outcome, error) {
		if cfg.Sender == owner {
			return common.NewSuccessOutcome(21000, nil), nil
		}
		return common.NewRevertedOutcome(21000, "not owner"), nil
	}}

	battery := New(h)
	base := vm.RunConfig{Sender: sender, Timestamp: 1_700_000_000, GasLimit: 3_000_000}
	result, err := battery.Run(context.Background(), base, owner, deployer, whitelisted)
	require.NoError(t, err)
	require.True(t, result.IsHoneypot)
	require.True(t, result.HasOwnerPrivileges)
	require.True(t, hasFlagContaining(result.Flags, "CRITICAL HONEYPOT"))
	require.Equal(t, 100, result.CounterfactualRisk)
	require.False(t, result.Incomplete)
}

func TestBattery_WhitelistSignal(t *testing.T) {
	owner := mustAddr(t, "0x0000000000000000000000000000000000009999")
	deployer := mustAddr(t, "0x0000000000000000000000000000000000008888")
	whitelisted := mustAddr(t, "0x0000000000000000000000000000000000007777")
	sender := mustAddr(t, "0x0000000000000000000000000000000000000001")

	h := &fakeHarness{fn: func(cfg vm.RunConfig) (common.Outcome, error) {
		if cfg.Sender == whitelisted || cfg.Sender == owner {
			return common.NewSuccessOutcome(21000, nil), nil
		}
		return common.NewRevertedOutcome(21000, "not whitelisted"), nil
	}}

	battery := New(h)
	base := vm.RunConfig{Sender: sender, Timestamp: 1_700_000_000, GasLimit: 3_000_000}
	result, err := battery.Run(context.Background(), base, owner, deployer, whitelisted)
	require.NoError(t, err)
	require.True(t, result.HasWhitelistMechanism)
	require.True(t, hasFlagContaining(result.Flags, "WHITELIST DETECTED"))
	require.GreaterOrEqual(t, result.CounterfactualRisk, 80)
}

func TestBattery_TimeBombSignal(t *testing.T) {
	owner := mustAddr(t, "0x0000000000000000000000000000000000009999")
	deployer := mustAddr(t, "0x0000000000000000000000000000000000008888")
	whitelisted := mustAddr(t, "0x0000000000000000000000000000000000007777")
	sender := mustAddr(t, "0x0000000000000000000000000000000000000001")

	h := &fakeHarness{fn: func(cfg vm.RunConfig) (common.Outcome, error) {
		if cfg.Timestamp >= 1_700_000_000+604800 {
			return common.NewRevertedOutcome(21000, "locked"), nil
		}
		return common.NewSuccessOutcome(21000, nil), nil
	}}

	battery := New(h)
	base := vm.RunConfig{Sender: sender, Timestamp: 1_700_000_000, GasLimit: 3_000_000}
	result, err := battery.Run(context.Background(), base, owner, deployer, whitelisted)
	require.NoError(t, err)
	require.True(t, result.IsTimeSensitive)
	require.True(t, hasFlagContaining(result.Flags, "TIME-BOMB: Transaction fails at +7 Days"))
	require.True(t, hasFlagContaining(result.Flags, "CRITICAL: Fails within 7 days"))
	require.True(t, result.IsScam)
	require.False(t, result.IsHoneypot)
}

func TestBattery_DelayedTradingSignal(t *testing.T) {
	owner := mustAddr(t, "0x0000000000000000000000000000000000009999")
	deployer := mustAddr(t, "0x0000000000000000000000000000000000008888")
	whitelisted := mustAddr(t, "0x0000000000000000000000000000000000007777")
	sender := mustAddr(t, "0x0000000000000000000000000000000000000001")

	h := &fakeHarness{fn: func(cfg vm.RunConfig) (common.Outcome, error) {
		if cfg.Timestamp >= 1_700_000_000+86400 {
			return common.NewSuccessOutcome(21000, nil), nil
		}
		return common.NewRevertedOutcome(21000, "not open yet"), nil
	}}

	battery := New(h)
	base := vm.RunConfig{Sender: sender, Timestamp: 1_700_000_000, GasLimit: 3_000_000}
	result, err := battery.Run(context.Background(), base, owner, deployer, whitelisted)
	require.NoError(t, err)
	require.True(t, result.IsTimeSensitive)
	require.True(t, hasFlagContaining(result.Flags, "DELAYED TRADING: Trading opens at +1 Day"))
}

func TestBattery_GasAnomaly(t *testing.T) {
	owner := mustAddr(t, "0x0000000000000000000000000000000000009999")
	deployer := mustAddr(t, "0x0000000000000000000000000000000000008888")
	whitelisted := mustAddr(t, "0x0000000000000000000000000000000000007777")
	sender := mustAddr(t, "0x0000000000000000000000000000000000000001")

	h := &fakeHarness{fn: func(cfg vm.RunConfig) (common.Outcome, error) {
		if cfg.Sender == owner {
			return common.NewSuccessOutcome(21000, nil), nil
		}
		return common.NewSuccessOutcome(90000, nil), nil
	}}

	battery := New(h)
	base := vm.RunConfig{Sender: sender, Timestamp: 1_700_000_000, GasLimit: 3_000_000, Value: uint256.NewInt(0)}
	result, err := battery.Run(context.Background(), base, owner, deployer, whitelisted)
	require.NoError(t, err)
	require.True(t, result.HasGasAnomaly)
	require.True(t, hasFlagContaining(result.Flags, "GAS ANOMALY"))
}

func TestBattery_BenignContractNoSignals(t *testing.T) {
	owner := mustAddr(t, "0x0000000000000000000000000000000000009999")
	deployer := mustAddr(t, "0x0000000000000000000000000000000000008888")
	whitelisted := mustAddr(t, "0x0000000000000000000000000000000000007777")
	sender := mustAddr(t, "0x0000000000000000000000000000000000000001")

	h := &fakeHarness{fn: func(cfg vm.RunConfig) (common.Outcome, error) {
		return common.NewSuccessOutcome(21000, nil), nil
	}}

	battery := New(h)
	base := vm.RunConfig{Sender: sender, Timestamp: 1_700_000_000, GasLimit: 3_000_000}
	result, err := battery.Run(context.Background(), base, owner, deployer, whitelisted)
	require.NoError(t, err)
	require.False(t, result.IsHoneypot)
	require.False(t, result.IsTimeSensitive)
	require.False(t, result.IsScam)
	require.Equal(t, 0, result.AggregateRisk)
	require.Empty(t, result.Flags)
}
