package chain

import (
	"context"
	"sync"

	"github.com/evmsentinel/txfirewall/common"
)

// Fake is an in-memory Oracle used by the rest of the module's tests: no
// network, no timeouts, deterministic. Code/storage are keyed by address
// only (the chain argument is ignored), so a test can script multiple
// contracts at once on a single chain.
type Fake struct {
	mu       sync.Mutex
	Code     map[string][]byte
	Storage  map[string]map[Slot]Slot
	Calls    map[string][]byte // not read by StaticCall, which answers from CallFunc only
	CallFunc func(ch common.Chain, addr common.Address, data []byte) ([]byte, error)
	Err      error // if set, every method returns this error
}

func NewFake() *Fake {
	return &Fake{
		Code:    make(map[string][]byte),
		Storage: make(map[string]map[Slot]Slot),
		Calls:   make(map[string][]byte),
	}
}

func key(ch common.Chain, addr common.Address) string {
	return addr.String()
}

func (f *Fake) SetCode(addr common.Address, code []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Code[addr.String()] = code
}

func (f *Fake) SetStorage(addr common.Address, slot, value Slot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.Storage[addr.String()]
	if !ok {
		m = make(map[Slot]Slot)
		f.Storage[addr.String()] = m
	}
	m[slot] = value
}

func (f *Fake) GetCode(ctx context.Context, ch common.Chain, addr common.Address) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Code[key(ch, addr)], nil
}

func (f *Fake) GetStorage(ctx context.Context, ch common.Chain, addr common.Address, slot Slot) (Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return Slot{}, f.Err
	}
	m := f.Storage[key(ch, addr)]
	return m[slot], nil
}

func (f *Fake) StaticCall(ctx context.Context, ch common.Chain, addr common.Address, data []byte) ([]byte, error) {
	f.mu.Lock()
	fn := f.CallFunc
	err := f.Err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ch, addr, data)
	}
	return nil, nil
}

func (f *Fake) Prefetch(ctx context.Context, ch common.Chain, addr common.Address, n int) (PrefetchBundle, error) {
	code, err := f.GetCode(ctx, ch, addr)
	if err != nil {
		return PrefetchBundle{}, err
	}
	bundle := PrefetchBundle{Code: code, Storage: make(map[uint64]Slot, n)}
	for i := 0; i < n; i++ {
		slot := slotForIndex(i)
		v, err := f.GetStorage(ctx, ch, addr, slot)
		if err == nil {
			bundle.Storage[uint64(i)] = v
		}
	}
	return bundle, nil
}

var _ Oracle = (*Fake)(nil)
