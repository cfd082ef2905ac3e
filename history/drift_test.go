package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evmsentinel/txfirewall/common"
)

func mustAddr(t *testing.T, s string) common.Address {
	a, err := common.ParseAddress(s)
	require.NoError(t, err)
	return a
}

func TestDetector_FirstScanHasNoDiff(t *testing.T) {
	d := NewDetector(NewMemStore())
	addr := mustAddr(t, "0x000000000000000000000000000000000000000a")
	diff, err := d.Diff(context.Background(), 1, addr, []string{"mint"}, 30)
	require.NoError(t, err)
	require.True(t, diff.IsFirstScan)
}

func TestDetector_TracksNewAndRemovedFlags(t *testing.T) {
	d := NewDetector(NewMemStore())
	addr := mustAddr(t, "0x000000000000000000000000000000000000000b")
	ctx := context.Background()

	require.NoError(t, d.Record(ctx, 1, addr, []string{"mint", "pause"}, 30, 1000))

	diff, err := d.Diff(ctx, 1, addr, []string{"mint", "blacklist"}, 50)
	require.NoError(t, err)
	require.False(t, diff.IsFirstScan)
	require.Equal(t, []string{"blacklist"}, diff.NewFlags)
	require.Equal(t, []string{"pause"}, diff.RemovedFlags)
	require.Equal(t, 20, diff.RiskDelta)
	require.Equal(t, "Risk Increased (+20 since last scan)", diff.RiskIncreasedFlag)
}

func TestDetector_RiskIncreaseThresholdPicksHighestBand(t *testing.T) {
	d := NewDetector(NewMemStore())
	addr := mustAddr(t, "0x000000000000000000000000000000000000000c")
	ctx := context.Background()

	require.NoError(t, d.Record(ctx, 1, addr, nil, 10, 1000))
	diff, err := d.Diff(ctx, 1, addr, nil, 80)
	require.NoError(t, err)
	require.Equal(t, "Risk Increased (+60 since last scan)", diff.RiskIncreasedFlag)
}

func TestCapabilityHash_OrderIndependent(t *testing.T) {
	a := CapabilityHash([]string{"mint", "pause", "blacklist"})
	b := CapabilityHash([]string{"blacklist", "mint", "pause"})
	require.Equal(t, a, b)
	require.Len(t, a, 16)
}

func TestCapabilityHash_DifferentFlagsDifferentHash(t *testing.T) {
	a := CapabilityHash([]string{"mint"})
	b := CapabilityHash([]string{"pause"})
	require.NotEqual(t, a, b)
}

func TestDetector_RecordEnforcesCap(t *testing.T) {
	store := NewMemStore()
	d := NewDetector(store)
	addr := mustAddr(t, "0x000000000000000000000000000000000000000d")
	ctx := context.Background()

	for i := 0; i < MaxEntries+10; i++ {
		require.NoError(t, d.Record(ctx, 1, addr, []string{"mint"}, i, int64(i)))
	}
	entries, err := store.ListRange(ctx, listKey(1, addr), 0, -1)
	require.NoError(t, err)
	require.Len(t, entries, MaxEntries)
}
