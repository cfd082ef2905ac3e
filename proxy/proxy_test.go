package proxy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evmsentinel/txfirewall/chain"
	"github.com/evmsentinel/txfirewall/common"
)

func mustAddr(t *testing.T, s string) common.Address {
	a, err := common.ParseAddress(s)
	require.NoError(t, err)
	return a
}

func TestResolve_NotAProxy(t *testing.T) {
	fake := chain.NewFake()
	proxyAddr := mustAddr(t, "0x000000000000000000000000000000000000a001")
	fake.SetCode(proxyAddr, []byte{0x60, 0x00})

	r := NewResolver(fake)
	res, err := r.Resolve(context.Background(), common.Chain{ID: 1}, proxyAddr)
	require.NoError(t, err)
	require.Equal(t, proxyAddr, res.Implementation)
	require.Empty(t, res.Hops)
}

func TestResolve_Minimal1167(t *testing.T) {
	fake := chain.NewFake()
	proxyAddr := mustAddr(t, "0x000000000000000000000000000000000000a002")
	impl := mustAddr(t, "0x000000000000000000000000000000000000b002")

	code := append(append(append([]byte{}, eip1167Prefix...), impl.Bytes()...), eip1167Suffix...)
	fake.SetCode(proxyAddr, code)
	fake.SetCode(impl, []byte{0x60, 0x01})

	r := NewResolver(fake)
	res, err := r.Resolve(context.Background(), common.Chain{ID: 1}, proxyAddr)
	require.NoError(t, err)
	require.Equal(t, impl, res.Implementation)
	require.Equal(t, proxyAddr, res.StorageContext)
	require.Len(t, res.Hops, 1)
	require.Equal(t, Minimal1167, res.Hops[0].Kind)
}

func TestResolve_Transparent1967(t *testing.T) {
	fake := chain.NewFake()
	proxyAddr := mustAddr(t, "0x000000000000000000000000000000000000a003")
	impl := mustAddr(t, "0x000000000000000000000000000000000000b003")
	fake.SetCode(proxyAddr, []byte{0x60, 0x00})
	fake.SetCode(impl, []byte{0x60, 0x01})

	var implSlotValue chain.Slot
	copy(implSlotValue[12:], impl.Bytes())
	fake.SetStorage(proxyAddr, eip1967ImplSlot, implSlotValue)

	r := NewResolver(fake)
	res, err := r.Resolve(context.Background(), common.Chain{ID: 1}, proxyAddr)
	require.NoError(t, err)
	require.Equal(t, impl, res.Implementation)
	require.Len(t, res.Hops, 1)
	require.Equal(t, Transparent1967, res.Hops[0].Kind)
}

func TestResolve_CyclicProxyStops(t *testing.T) {
	fake := chain.NewFake()
	a := mustAddr(t, "0x000000000000000000000000000000000000a004")
	b := mustAddr(t, "0x000000000000000000000000000000000000b004")
	fake.SetCode(a, []byte{0x60, 0x00})
	fake.SetCode(b, []byte{0x60, 0x00})

	var aSlot, bSlot chain.Slot
	copy(aSlot[12:], a.Bytes())
	copy(bSlot[12:], b.Bytes())
	fake.SetStorage(a, eip1967ImplSlot, bSlot)
	fake.SetStorage(b, eip1967ImplSlot, aSlot)

	r := NewResolver(fake)
	res, err := r.Resolve(context.Background(), common.Chain{ID: 1}, a)
	require.NoError(t, err)
	require.True(t, res.Cyclic)
	require.LessOrEqual(t, len(res.Hops), MaxDepth)
}

func TestResolve_DepthIsBounded(t *testing.T) {
	fake := chain.NewFake()
	addrs := make([]common.Address, MaxDepth+3)
	for i := range addrs {
		addrs[i] = mustAddr(t, addrHex(i))
		fake.SetCode(addrs[i], []byte{0x60, 0x00})
	}
	for i := 0; i < len(addrs)-1; i++ {
		var slot chain.Slot
		copy(slot[12:], addrs[i+1].Bytes())
		fake.SetStorage(addrs[i], eip1967ImplSlot, slot)
	}

	r := NewResolver(fake)
	res, err := r.Resolve(context.Background(), common.Chain{ID: 1}, addrs[0])
	require.NoError(t, err)
	require.Len(t, res.Hops, MaxDepth)
}

func addrHex(i int) string {
	return "0x00000000000000000000000000000000000000" + hexByte(i)
}

func hexByte(i int) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[(i>>4)&0xf], digits[i&0xf]})
}
