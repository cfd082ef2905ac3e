// Package chain implements the Chain Oracle Client (C1): code/storage/call
// access to a remote EVM node with per-endpoint timeouts, failover, a
// premium-endpoint circuit breaker, and a short-lived code cache.
//
// The engine underneath is go-ethereum's ethclient.Client — the same RPC
// client used throughout the retrieval pack wherever a repo talks to a live
// chain (see other_examples/*AditS-H-VIGILUM*integration-ethereum.go, which
// wraps ethclient the same way).
package chain

import (
	"context"

	"github.com/evmsentinel/txfirewall/common"
)

// Slot is a 32-byte storage key or value.
type Slot [32]byte

// PrefetchBundle is the "prefetch bundle convenience" of spec.md 4.1:
// code plus slots 0..N in one logical operation.
type PrefetchBundle struct {
	Code    []byte
	Storage map[uint64]Slot // slot index -> value, for indices 0..N-1
}

// Oracle is the contract every downstream component depends on; Client
// below is the only production implementation, tests use an in-memory fake.
type Oracle interface {
	GetCode(ctx context.Context, ch common.Chain, addr common.Address) ([]byte, error)
	GetStorage(ctx context.Context, ch common.Chain, addr common.Address, slot Slot) (Slot, error)
	StaticCall(ctx context.Context, ch common.Chain, addr common.Address, data []byte) ([]byte, error)
	Prefetch(ctx context.Context, ch common.Chain, addr common.Address, n int) (PrefetchBundle, error)
}
