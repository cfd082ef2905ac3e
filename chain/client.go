package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	geth "github.com/ethereum/go-ethereum"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/evmsentinel/txfirewall/common"
)

const (
	// DefaultEndpointTimeout is the "per-endpoint cap (5s suggested)" of
	// spec.md 4.1.
	DefaultEndpointTimeout = 5 * time.Second
	// codeCacheTTL is "Code responses ... are cacheable for up to 1 hour"
	// (spec.md 4.1 "Caching").
	codeCacheTTL = time.Hour
)

type codeCacheEntry struct {
	code      []byte
	expiresAt time.Time
}

// Client is the production Oracle: an ordered endpoint list per chain,
// dialed lazily and pooled for the life of the process (spec.md section 3
// "Ownership semantics": "shared by many concurrent scans ...
// connection-pool-style sharing; lifetime equals process").
type Client struct {
	log      *zap.Logger
	timeout  time.Duration
	breakers *breakers

	mu      sync.Mutex
	conns   map[string]*ethclient.Client // endpoint URL -> dialed client
	codeLRU *lru.Cache[string, *codeCacheEntry]
}

// NewClient builds a Chain Oracle Client. log may be nil for a no-op logger.
func NewClient(log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	cache, _ := lru.New[string, *codeCacheEntry](4096)
	return &Client{
		log:      log,
		timeout:  DefaultEndpointTimeout,
		breakers: newBreakers(),
		conns:    make(map[string]*ethclient.Client),
		codeLRU:  cache,
	}
}

func (c *Client) dial(endpoint string) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.conns[endpoint]; ok {
		return cl, nil
	}
	cl, err := ethclient.Dial(endpoint)
	if err != nil {
		return nil, err
	}
	c.conns[endpoint] = cl
	return cl, nil
}

// forEachEndpoint runs fn against each endpoint of ch in order, skipping any
// endpoint whose circuit breaker is open, stopping at the first success.
// "A single endpoint timeout never fails the call -- only exhaustion of the
// list does" (spec.md 4.1).
func (c *Client) forEachEndpoint(ctx context.Context, ch common.Chain, fn func(context.Context, *ethclient.Client) (interface{}, error)) (interface{}, error) {
	if len(ch.Endpoints) == 0 {
		return nil, &Error{Kind: NotReachable, Endpoint: "", Err: errors.New("no endpoints configured")}
	}

	var lastErr error
	for _, endpoint := range ch.Endpoints {
		if c.breakers.Open(endpoint) {
			c.log.Debug("skipping circuit-open endpoint", zap.String("endpoint", endpoint))
			continue
		}

		cl, err := c.dial(endpoint)
		if err != nil {
			c.breakers.RecordFailure(endpoint)
			lastErr = &Error{Kind: NotReachable, Endpoint: endpoint, Err: err}
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		result, err := fn(callCtx, cl)
		cancel()

		if err == nil {
			c.breakers.RecordSuccess(endpoint)
			return result, nil
		}

		c.breakers.RecordFailure(endpoint)
		if callCtx.Err() != nil {
			lastErr = &Error{Kind: Timeout, Endpoint: endpoint, Err: err}
		} else {
			lastErr = &Error{Kind: InvalidResponse, Endpoint: endpoint, Err: err}
		}
		c.log.Debug("endpoint call failed, trying next", zap.String("endpoint", endpoint), zap.Error(err))
	}

	if lastErr == nil {
		lastErr = &Error{Kind: CircuitOpen, Endpoint: "", Err: errors.New("all endpoints circuit-open")}
	}
	return nil, lastErr
}

func (c *Client) GetCode(ctx context.Context, ch common.Chain, addr common.Address) ([]byte, error) {
	key := fmt.Sprintf("%d:%s", ch.ID, addr.String())
	if entry, ok := c.codeLRU.Get(key); ok && time.Now().Before(entry.expiresAt) {
		return entry.code, nil
	}

	v, err := c.forEachEndpoint(ctx, ch, func(cctx context.Context, cl *ethclient.Client) (interface{}, error) {
		return cl.CodeAt(cctx, addr.Geth(), nil)
	})
	if err != nil {
		return nil, err
	}
	code := v.([]byte)
	c.codeLRU.Add(key, &codeCacheEntry{code: code, expiresAt: time.Now().Add(codeCacheTTL)})
	return code, nil
}

func (c *Client) GetStorage(ctx context.Context, ch common.Chain, addr common.Address, slot Slot) (Slot, error) {
	v, err := c.forEachEndpoint(ctx, ch, func(cctx context.Context, cl *ethclient.Client) (interface{}, error) {
		return cl.StorageAt(cctx, addr.Geth(), gethcommon.Hash(slot), nil)
	})
	if err != nil {
		return Slot{}, err
	}
	var out Slot
	b := v.([]byte)
	copy(out[32-len(b):], b)
	return out, nil
}

func (c *Client) StaticCall(ctx context.Context, ch common.Chain, addr common.Address, data []byte) ([]byte, error) {
	v, err := c.forEachEndpoint(ctx, ch, func(cctx context.Context, cl *ethclient.Client) (interface{}, error) {
		to := addr.Geth()
		return cl.CallContract(cctx, geth.CallMsg{To: &to, Data: data}, nil)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Prefetch fetches code and a prefix of storage slots "in one logical
// operation" (spec.md 4.1). Storage is read concurrently, code is read and
// cached; a storage-read failure for one slot does not fail the whole
// bundle (the slot is simply omitted -- callers treat a missing slot as
// zero, which is "the correct EVM semantics" per spec.md 4.2).
func (c *Client) Prefetch(ctx context.Context, ch common.Chain, addr common.Address, n int) (PrefetchBundle, error) {
	code, err := c.GetCode(ctx, ch, addr)
	if err != nil {
		return PrefetchBundle{}, err
	}

	bundle := PrefetchBundle{Code: code, Storage: make(map[uint64]Slot, n)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot := slotForIndex(i)
			v, err := c.GetStorage(ctx, ch, addr, slot)
			if err != nil {
				return
			}
			mu.Lock()
			bundle.Storage[uint64(i)] = v
			mu.Unlock()
		}()
	}
	wg.Wait()
	return bundle, nil
}

func slotForIndex(i int) Slot {
	var s Slot
	big := uint64(i)
	for j := 0; j < 8; j++ {
		s[31-j] = byte(big >> (8 * j))
	}
	return s
}

var _ Oracle = (*Client)(nil)
