package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tokosinar/backend/internal/domain"
	"tokosinar/backend/internal/store"
)

const (
	valuationCacheKey = "ledger:valuation"
	valuationCacheTTL = 30 * time.Second
)

func (s *Service) GetCurrentStock(ctx context.Context, productID string) (domain.LedgerEntry, error) {
	if _, err := s.repo.GetProductByID(ctx, productID); err != nil {
		return domain.LedgerEntry{}, err
	}
	entry, err := s.repo.GetLedger(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// No movement yet; report zero counters instead of failing.
			return domain.LedgerEntry{ProductID: productID}, nil
		}
		return domain.LedgerEntry{}, err
	}
	return *entry, nil
}

// GetValuation reports current stock times the latest purchase cost for a
// single product. Products never purchased are valued at zero.
func (s *Service) GetValuation(ctx context.Context, productID string) (domain.LedgerValuation, error) {
	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.LedgerValuation{}, err
	}

	valuation := domain.LedgerValuation{
		ProductID:   productID,
		ProductName: product.Name,
		LatestCost:  decimal.Zero,
		StockValue:  decimal.Zero,
	}
	if entry, err := s.repo.GetLedger(ctx, productID); err == nil {
		valuation.CurrentStock = entry.CurrentStock
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.LedgerValuation{}, err
	}
	if latest, err := s.repo.LatestPurchase(ctx, productID); err == nil {
		valuation.LatestCost = latest.UnitCost
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.LedgerValuation{}, err
	}
	valuation.StockValue = valuation.LatestCost.Mul(decimal.NewFromInt(valuation.CurrentStock))
	return valuation, nil
}

func (s *Service) ListInventory(ctx context.Context) (domain.LedgerValuationReport, error) {
	if cached, ok, err := s.valuations.Get(ctx, valuationCacheKey); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		s.logger.WithError(err).Warn("valuation cache read failed")
	}

	report, err := s.repo.ListLedger(ctx)
	if err != nil {
		return domain.LedgerValuationReport{}, err
	}
	if err := s.valuations.Set(ctx, valuationCacheKey, report, valuationCacheTTL); err != nil {
		s.logger.WithError(err).Warn("valuation cache write failed")
	}
	return *report, nil
}

func (s *Service) invalidateValuation(ctx context.Context) {
	if err := s.valuations.Invalidate(ctx, valuationCacheKey); err != nil {
		s.logger.WithError(err).Warn("valuation cache invalidation failed")
	}
}

func (s *Service) CreateAdjustment(ctx context.Context, req domain.StockAdjustmentCreateRequest) (domain.StockAdjustment, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.StockAdjustment{}, err
	}

	if req.Quantity == 0 {
		return domain.StockAdjustment{}, fmt.Errorf("quantity must be non-zero: %w", store.ErrValidation)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.StockAdjustment{}, fmt.Errorf("reason is required: %w", store.ErrValidation)
	}

	created, err := s.repo.CreateAdjustment(ctx, domain.StockAdjustment{
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		Reason:     reason,
		AdjustedBy: actor.Username,
	})
	if err != nil {
		return domain.StockAdjustment{}, err
	}

	s.invalidateValuation(ctx)
	s.logAudit(ctx, "adjustment_create", "adjustment", created.ID, fmt.Sprintf("product=%s,qty=%d,reason=%s", created.ProductID, created.Quantity, reason))
	return *created, nil
}

func (s *Service) ListAdjustments(ctx context.Context, filter domain.AdjustmentFilter) ([]domain.StockAdjustment, error) {
	return s.repo.ListAdjustments(ctx, filter)
}

func (s *Service) DeleteAdjustment(ctx context.Context, id string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteAdjustment(ctx, id); err != nil {
		return err
	}
	s.invalidateValuation(ctx)
	s.logAudit(ctx, "adjustment_delete", "adjustment", id, "")
	return nil
}
