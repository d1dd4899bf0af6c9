package service

import (
	"context"
	"fmt"
	"strings"

	"tokosinar/backend/internal/domain"
	"tokosinar/backend/internal/store"
)

// ReceivePurchase records a stock receipt: the purchase row, the ledger
// increment and the product cost update land in one transaction.
func (s *Service) ReceivePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.Purchase, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Purchase{}, fmt.Errorf("authentication required")
	}

	req.InvoiceRef = strings.TrimSpace(req.InvoiceRef)
	if req.InvoiceRef == "" {
		return domain.Purchase{}, fmt.Errorf("invoice ref is required: %w", store.ErrValidation)
	}
	if req.Quantity < 1 {
		return domain.Purchase{}, fmt.Errorf("quantity must be positive: %w", store.ErrValidation)
	}
	if req.UnitCost.IsNegative() {
		return domain.Purchase{}, fmt.Errorf("negative unit cost: %w", store.ErrValidation)
	}
	if req.VendorID != "" {
		if _, err := s.repo.GetVendorByID(ctx, req.VendorID); err != nil {
			return domain.Purchase{}, fmt.Errorf("vendor %s: %w", req.VendorID, err)
		}
	}

	purchase := domain.Purchase{
		InvoiceRef: req.InvoiceRef,
		ProductID:  req.ProductID,
		VendorID:   req.VendorID,
		Quantity:   req.Quantity,
		UnitCost:   req.UnitCost,
		CreatedBy:  actor.Username,
	}
	if req.Date != nil {
		purchase.Date = req.Date.UTC()
	}

	created, err := s.repo.CreatePurchase(ctx, purchase)
	if err != nil {
		return domain.Purchase{}, err
	}

	s.invalidateValuation(ctx)
	s.logAudit(ctx, "purchase_receive", "purchase", created.ID, fmt.Sprintf("product=%s,qty=%d,cost=%s", created.ProductID, created.Quantity, created.UnitCost))
	return *created, nil
}

func (s *Service) GetPurchase(ctx context.Context, id string) (domain.Purchase, error) {
	purchase, err := s.repo.GetPurchaseByID(ctx, id)
	if err != nil {
		return domain.Purchase{}, err
	}
	return *purchase, nil
}

func (s *Service) ListPurchases(ctx context.Context, filter domain.PurchaseFilter) ([]domain.Purchase, error) {
	filter.InvoiceRef = strings.TrimSpace(filter.InvoiceRef)
	return s.repo.ListPurchases(ctx, filter)
}

// AmendPurchase reverses the old receipt and applies the amended one
// atomically; stock may move between products when the product changes.
func (s *Service) AmendPurchase(ctx context.Context, id string, req domain.PurchaseUpdateRequest) (domain.Purchase, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Purchase{}, err
	}

	if req.InvoiceRef != nil {
		trimmed := strings.TrimSpace(*req.InvoiceRef)
		if trimmed == "" {
			return domain.Purchase{}, fmt.Errorf("invoice ref is required: %w", store.ErrValidation)
		}
		req.InvoiceRef = &trimmed
	}
	if req.VendorID != nil && *req.VendorID != "" {
		if _, err := s.repo.GetVendorByID(ctx, *req.VendorID); err != nil {
			return domain.Purchase{}, fmt.Errorf("vendor %s: %w", *req.VendorID, err)
		}
	}

	updated, err := s.repo.UpdatePurchase(ctx, id, req)
	if err != nil {
		return domain.Purchase{}, err
	}

	s.invalidateValuation(ctx)
	s.logAudit(ctx, "purchase_amend", "purchase", updated.ID, fmt.Sprintf("product=%s,qty=%d,cost=%s", updated.ProductID, updated.Quantity, updated.UnitCost))
	return *updated, nil
}

func (s *Service) RetractPurchase(ctx context.Context, id string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeletePurchase(ctx, id); err != nil {
		return err
	}
	s.invalidateValuation(ctx)
	s.logAudit(ctx, "purchase_retract", "purchase", id, "")
	return nil
}
