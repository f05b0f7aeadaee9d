package publish

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Ledger remembers successful posts by idempotency key so a resubmitted
// payload does not post to the same platform twice.
type Ledger interface {
	Lookup(ctx context.Context, key string, platform Platform) (Result, bool, error)
	Record(ctx context.Context, key string, res Result) error
}

const defaultLedgerSize = 1024

// MemoryLedger is a bounded in-process Ledger. The oldest keys are evicted
// once it is full.
type MemoryLedger struct {
	cache *lru.Cache[string, Result]
}

// NewMemoryLedger returns a ledger holding at most size entries.
func NewMemoryLedger(size int) (*MemoryLedger, error) {
	if size <= 0 {
		size = defaultLedgerSize
	}
	cache, err := lru.New[string, Result](size)
	if err != nil {
		return nil, err
	}
	return &MemoryLedger{cache: cache}, nil
}

func (l *MemoryLedger) Lookup(_ context.Context, key string, platform Platform) (Result, bool, error) {
	res, ok := l.cache.Get(ledgerKey(key, platform))
	return res, ok, nil
}

func (l *MemoryLedger) Record(_ context.Context, key string, res Result) error {
	l.cache.Add(ledgerKey(key, res.Platform), res)
	return nil
}

func ledgerKey(key string, platform Platform) string {
	return key + "\x00" + string(platform)
}

var _ Ledger = (*MemoryLedger)(nil)
