package cache

import (
	"context"
	"time"

	"tokosinar/backend/internal/domain"
)

// ValuationCache holds the computed inventory valuation report between
// ledger mutations. Implementations may lose entries at any time; callers
// fall back to the store.
type ValuationCache interface {
	Get(ctx context.Context, key string) (*domain.LedgerValuationReport, bool, error)
	Set(ctx context.Context, key string, value *domain.LedgerValuationReport, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopValuationCache struct{}

func (NoopValuationCache) Get(_ context.Context, _ string) (*domain.LedgerValuationReport, bool, error) {
	return nil, false, nil
}

func (NoopValuationCache) Set(_ context.Context, _ string, _ *domain.LedgerValuationReport, _ time.Duration) error {
	return nil
}

func (NoopValuationCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
