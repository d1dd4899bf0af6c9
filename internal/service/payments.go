package service

import (
	"context"
	"fmt"
	"strings"

	"tokosinar/backend/internal/domain"
	"tokosinar/backend/internal/store"
	"tokosinar/backend/internal/xid"
)

// RecordPayment applies a payment against an invoice. The reference is
// always generated server side; whatever the client sent is discarded so
// references cannot be forged or replayed.
func (s *Service) RecordPayment(ctx context.Context, req domain.PaymentCreateRequest) (domain.Payment, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Payment{}, fmt.Errorf("authentication required")
	}

	if !req.AmountPaid.IsPositive() {
		return domain.Payment{}, fmt.Errorf("amount must be positive: %w", store.ErrValidation)
	}
	if err := validateMethodBank(req.Method, req.BankID); err != nil {
		return domain.Payment{}, err
	}
	if req.BankID != "" {
		if _, err := s.repo.GetBankByID(ctx, req.BankID); err != nil {
			return domain.Payment{}, fmt.Errorf("bank %s: %w", req.BankID, err)
		}
	}

	sale, err := s.repo.GetSaleByInvoice(ctx, strings.TrimSpace(req.InvoiceRef))
	if err != nil {
		return domain.Payment{}, fmt.Errorf("invoice %s: %w", req.InvoiceRef, err)
	}

	payment := domain.Payment{
		SaleID:     sale.ID,
		Reference:  xid.New("ref"),
		AmountPaid: req.AmountPaid,
		Method:     req.Method,
		BankID:     req.BankID,
		ReceivedBy: actor.Username,
	}
	if req.Date != nil {
		payment.Date = req.Date.UTC()
	}

	created, err := s.repo.CreatePayment(ctx, payment)
	if err != nil {
		return domain.Payment{}, err
	}

	s.logAudit(ctx, "payment_record", "payment", created.ID, fmt.Sprintf("invoice=%s,amount=%s,method=%s", created.InvoiceRef, created.AmountPaid, created.Method))
	return *created, nil
}

func (s *Service) GetPayment(ctx context.Context, id string) (domain.Payment, error) {
	payment, err := s.repo.GetPaymentByID(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	return *payment, nil
}

func (s *Service) ListPayments(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, error) {
	filter.InvoiceRef = strings.TrimSpace(filter.InvoiceRef)
	return s.repo.ListPayments(ctx, filter)
}

func (s *Service) ListPaymentsBySale(ctx context.Context, saleID string) ([]domain.Payment, error) {
	return s.repo.ListPaymentsBySale(ctx, saleID)
}

func (s *Service) UpdatePayment(ctx context.Context, id string, req domain.PaymentUpdateRequest) (domain.Payment, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Payment{}, err
	}

	if req.Method != nil || req.BankID != nil {
		existing, err := s.repo.GetPaymentByID(ctx, id)
		if err != nil {
			return domain.Payment{}, err
		}
		method := existing.Method
		bankID := existing.BankID
		if req.Method != nil {
			method = *req.Method
		}
		if req.BankID != nil {
			bankID = *req.BankID
		}
		if err := validateMethodBank(method, bankID); err != nil {
			return domain.Payment{}, err
		}
		if bankID != "" && bankID != existing.BankID {
			if _, err := s.repo.GetBankByID(ctx, bankID); err != nil {
				return domain.Payment{}, fmt.Errorf("bank %s: %w", bankID, err)
			}
		}
	}

	updated, err := s.repo.UpdatePayment(ctx, id, req)
	if err != nil {
		return domain.Payment{}, err
	}

	s.logAudit(ctx, "payment_update", "payment", updated.ID, fmt.Sprintf("amount=%s,status=%s", updated.AmountPaid, updated.Status))
	return *updated, nil
}

func (s *Service) DeletePayment(ctx context.Context, id string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeletePayment(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "payment_delete", "payment", id, "")
	return nil
}
