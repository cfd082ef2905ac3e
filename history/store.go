// Package history implements the Drift Detector (C9): per-address
// capability history, diffed across scans to surface newly appeared or
// vanished risk flags and a risk-delta signal the Verdict Assembler folds
// into its combined risk score.
package history

import "context"

// Store is the port every History Store backend implements -- spec.md
// section 4.9's list_push_front/list_trim/list_range/set_with_ttl/keys
// operations, mapped almost directly onto Redis's own list and TTL
// primitives (see redisstore.go).
type Store interface {
	ListPushFront(ctx context.Context, key string, value string) error
	ListTrim(ctx context.Context, key string, maxLen int) error
	ListRange(ctx context.Context, key string, start, stop int) ([]string, error)
	SetWithTTL(ctx context.Context, key string, value string, ttlSeconds int) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// MaxEntries caps each per-address history list; TTLDays is the expiry of
// the per-scan record key Detector.Record writes beside the list.
const (
	MaxEntries = 100
	TTLDays    = 30
)
