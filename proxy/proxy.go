// Package proxy implements the Proxy Resolver (C4): walking a chain of
// delegatecall-style proxies down to the implementation contract whose
// bytecode actually matters for analysis, while keeping the storage context
// pinned at the original (proxy) address -- "re-homing" in spec.md's terms.
//
// Detection covers the four standardized proxy patterns plus a bytecode
// heuristic for hand-rolled delegatecall forwarders; the walk is bounded to
// 5 hops and tracks visited addresses so a cyclic proxy chain terminates
// instead of looping forever.
package proxy

import (
	"bytes"
	"context"

	gethvm "github.com/ethereum/go-ethereum/core/vm"

	"github.com/evmsentinel/txfirewall/chain"
	"github.com/evmsentinel/txfirewall/common"
)

// MaxDepth is "bounded-depth (5) cycle-safe resolution".
const MaxDepth = 5

// Kind identifies which proxy standard (if any) a hop matched.
type Kind int

const (
	NotAProxy Kind = iota
	Minimal1167
	Transparent1967
	UUPS1822
	Legacy897
	CustomDelegatecall
)

func (k Kind) String() string {
	switch k {
	case Minimal1167:
		return "EIP-1167 minimal proxy"
	case Transparent1967:
		return "EIP-1967 transparent proxy"
	case UUPS1822:
		return "EIP-1822 UUPS proxy"
	case Legacy897:
		return "EIP-897 legacy proxy"
	case CustomDelegatecall:
		return "custom delegatecall forwarder"
	default:
		return "not a proxy"
	}
}

var (
	eip1167Prefix = []byte{0x36, 0x3d, 0x3d, 0x37, 0x3d, 0x3d, 0x3d, 0x36, 0x3d, 0x73}
	eip1167Suffix = []byte{0x5a, 0xf4, 0x3d, 0x82, 0x80, 0x3e, 0x90, 0x3d, 0x91, 0x60, 0x2b, 0x57, 0xfd, 0x5b, 0xf3}

	// slot = bytes32(uint256(keccak256('eip1967.proxy.implementation')) - 1)
	eip1967ImplSlot = chain.Slot{
		0x36, 0x08, 0x94, 0xa1, 0x3b, 0xa1, 0xa3, 0x21, 0x06, 0x67, 0xc8, 0x28, 0x49, 0x2d, 0xb9, 0x8d,
		0xca, 0x3e, 0x20, 0x76, 0xcc, 0x37, 0x35, 0xa9, 0x20, 0xa3, 0xca, 0x50, 0x5d, 0x38, 0x2b, 0xbc,
	}
	// slot = bytes32(uint256(keccak256('PROXIABLE')))
	eip1822Slot = chain.Slot{
		0xc5, 0xf1, 0x6f, 0x0f, 0xcc, 0x63, 0x9f, 0xa4, 0x8a, 0x69, 0x47, 0x83, 0x6d, 0x98, 0x50, 0xf5,
		0x04, 0x79, 0x85, 0x23, 0xbf, 0x8c, 0x9a, 0x3a, 0x87, 0xd5, 0x87, 0x6c, 0xf6, 0x22, 0xbc, 0xf7,
	}
	// bytes4(keccak256("implementation()"))
	eip897Selector = []byte{0x5c, 0x60, 0xda, 0x1b}
)

// Hop is one step of a resolved proxy chain.
type Hop struct {
	Address common.Address
	Kind    Kind
}

// Resolution is the result of walking a proxy chain to its end.
type Resolution struct {
	// Implementation is the final address whose bytecode should be
	// analyzed; equals the original address when it was not a proxy.
	Implementation common.Address
	// StorageContext is always the original address: re-homing means code
	// comes from Implementation, storage reads stay pinned here.
	StorageContext common.Address
	Hops           []Hop
	Cyclic         bool
}

// Resolver walks proxy chains using an Oracle for code/storage access.
type Resolver struct {
	oracle chain.Oracle
}

func NewResolver(oracle chain.Oracle) *Resolver {
	return &Resolver{oracle: oracle}
}

// Resolve walks from addr to its implementation, following at most MaxDepth
// hops. A detected cycle stops the walk and reports Cyclic, using the last
// address seen before the cycle closed as Implementation -- still useful to
// analyze, just not further resolvable.
func (r *Resolver) Resolve(ctx context.Context, ch common.Chain, addr common.Address) (Resolution, error) {
	res := Resolution{Implementation: addr, StorageContext: addr}
	visited := map[common.Address]bool{addr: true}
	current := addr

	for depth := 0; depth < MaxDepth; depth++ {
		code, err := r.oracle.GetCode(ctx, ch, current)
		if err != nil {
			return res, err
		}

		kind, next, err := r.detect(ctx, ch, current, code)
		if err != nil {
			return res, err
		}
		if kind == NotAProxy {
			break
		}

		res.Hops = append(res.Hops, Hop{Address: current, Kind: kind})
		if visited[next] {
			res.Cyclic = true
			break
		}
		visited[next] = true
		current = next
		res.Implementation = current
	}

	return res, nil
}

func (r *Resolver) detect(ctx context.Context, ch common.Chain, addr common.Address, code []byte) (Kind, common.Address, error) {
	if impl, ok := matchMinimal1167(code); ok {
		return Minimal1167, impl, nil
	}

	slot, err := r.oracle.GetStorage(ctx, ch, addr, eip1967ImplSlot)
	if err != nil {
		return NotAProxy, common.Address{}, err
	}
	if impl := common.AddressFromBytes(slot[:]); !impl.IsZero() {
		return Transparent1967, impl, nil
	}

	slot, err = r.oracle.GetStorage(ctx, ch, addr, eip1822Slot)
	if err != nil {
		return NotAProxy, common.Address{}, err
	}
	if impl := common.AddressFromBytes(slot[:]); !impl.IsZero() {
		return UUPS1822, impl, nil
	}

	if ret, err := r.oracle.StaticCall(ctx, ch, addr, eip897Selector); err == nil && len(ret) >= 32 {
		if impl := common.AddressFromBytes(ret[len(ret)-32:]); !impl.IsZero() {
			return Legacy897, impl, nil
		}
	}

	if impl, ok := matchCustomDelegatecall(ctx, ch, r.oracle, addr, code); ok {
		return CustomDelegatecall, impl, nil
	}

	return NotAProxy, common.Address{}, nil
}

// matchMinimal1167 checks for the EIP-1167 fixed prefix/suffix around a
// 20-byte implementation address.
func matchMinimal1167(code []byte) (common.Address, bool) {
	const total = 10 + 20 + 15
	if len(code) != total {
		return common.Address{}, false
	}
	if !bytes.Equal(code[:10], eip1167Prefix) {
		return common.Address{}, false
	}
	if !bytes.Equal(code[30:], eip1167Suffix) {
		return common.Address{}, false
	}
	return common.AddressFromBytes(code[10:30]), true
}

// matchCustomDelegatecall is the last-resort heuristic: a contract whose
// bytecode is under 200 bytes and contains a DELEGATECALL opcode anywhere is
// treated as a hand-rolled proxy, its implementation taken from the first
// non-zero address found in storage slots 0, 1 and 2, in that order. It does
// not check how the DELEGATECALL's target address is computed.
func matchCustomDelegatecall(ctx context.Context, ch common.Chain, oracle chain.Oracle, addr common.Address, code []byte) (common.Address, bool) {
	const maxCustomProxySize = 200
	if len(code) >= maxCustomProxySize {
		return common.Address{}, false
	}
	if !containsOpcode(code, byte(gethvm.DELEGATECALL)) {
		return common.Address{}, false
	}
	for _, slotIdx := range []uint64{0, 1, 2} {
		var key chain.Slot
		for i := 0; i < 8; i++ {
			key[31-i] = byte(slotIdx >> (8 * i))
		}
		v, err := oracle.GetStorage(ctx, ch, addr, key)
		if err != nil {
			continue
		}
		if impl := common.AddressFromBytes(v[:]); !impl.IsZero() {
			return impl, true
		}
	}
	return common.Address{}, false
}

func containsOpcode(code []byte, op byte) bool {
	for i := 0; i < len(code); i++ {
		b := code[i]
		if b == op {
			return true
		}
		if b >= byte(gethvm.PUSH1) && b <= byte(gethvm.PUSH32) {
			i += int(b-byte(gethvm.PUSH1)) + 1
		}
	}
	return false
}
