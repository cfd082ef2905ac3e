package firewall

import (
	"context"
	"testing"

	gethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/evmsentinel/txfirewall/chain"
	"github.com/evmsentinel/txfirewall/common"
	"github.com/evmsentinel/txfirewall/history"
)

func mustAddr(t *testing.T, s string) common.Address {
	a, err := common.ParseAddress(s)
	require.NoError(t, err)
	return a
}

// ownerGatedCode implements: revert unless CALLER == storage slot 0,
// otherwise return 1. This is the minimal honeypot mechanism the benign-vs-
// gated golden scenarios below distinguish.
var ownerGatedCode = []byte{
	byte(gethvm.PUSH1), 0x00, // slot 0
	byte(gethvm.SLOAD),
	byte(gethvm.CALLER),
	byte(gethvm.EQ),
	byte(gethvm.PUSH1), 0x0d, // jump to JUMPDEST at offset 13
	byte(gethvm.JUMPI),
	byte(gethvm.PUSH1), 0x00,
	byte(gethvm.PUSH1), 0x00,
	byte(gethvm.REVERT),
	byte(gethvm.JUMPDEST),
	byte(gethvm.PUSH1), 0x01,
	byte(gethvm.PUSH1), 0x00,
	byte(gethvm.MSTORE),
	byte(gethvm.PUSH1), 0x20,
	byte(gethvm.PUSH1), 0x00,
	byte(gethvm.RETURN),
}

// benignCode always returns 1 regardless of caller.
var benignCode = []byte{
	byte(gethvm.PUSH1), 0x01,
	byte(gethvm.PUSH1), 0x00,
	byte(gethvm.MSTORE),
	byte(gethvm.PUSH1), 0x20,
	byte(gethvm.PUSH1), 0x00,
	byte(gethvm.RETURN),
}

func newTestService(t *testing.T) (*Service, *chain.Fake) {
	fake := chain.NewFake()
	svc := NewService(fake, nil, history.NewMemStore(), nil)
	return svc, fake
}

func TestScan_BenignContractIsSafe(t *testing.T) {
	svc, fake := newTestService(t)
	to := mustAddr(t, "0x000000000000000000000000000000000000c001")
	from := mustAddr(t, "0x000000000000000000000000000000000000000f")
	fake.SetCode(to, benignCode)

	req := common.TransactionRequest{
		From:  from,
		To:    to,
		Value: uint256.NewInt(0),
		Chain: common.Chain{ID: 1, Endpoints: []string{"http://unused"}},
	}
	env, err := svc.Scan(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "SAFE", env.Status)
	require.Equal(t, "SAFE", env.FinalVerdict.Verdict)
	require.False(t, env.Incomplete)
}

func TestScan_OwnerGatedContractIsBlocked(t *testing.T) {
	svc, fake := newTestService(t)
	to := mustAddr(t, "0x000000000000000000000000000000000000c002")
	from := mustAddr(t, "0x000000000000000000000000000000000000000f")
	fake.SetCode(to, ownerGatedCode)

	owner, _, _ := syntheticActors(to)
	var ownerSlotValue chain.Slot
	copy(ownerSlotValue[12:], owner.Bytes())
	fake.SetStorage(to, chain.Slot{}, ownerSlotValue)

	req := common.TransactionRequest{
		From:  from,
		To:    to,
		Value: uint256.NewInt(0),
		Chain: common.Chain{ID: 1, Endpoints: []string{"http://unused"}},
	}
	env, err := svc.Scan(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "BLOCK", env.Status)
	require.Equal(t, "BLOCK", env.FinalVerdict.Verdict)
	require.Contains(t, env.SecurityReport.Flags, "CRITICAL HONEYPOT: Owner can execute, but users CANNOT")
	require.True(t, env.AdvancedAnalysis.Counterfactual.IsHoneypot)
}
