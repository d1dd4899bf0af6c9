package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tokosinar/backend/internal/domain"
	"tokosinar/backend/internal/store"
)

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Expense{}, fmt.Errorf("authentication required")
	}

	req.ReferenceNo = strings.TrimSpace(req.ReferenceNo)
	req.Description = strings.TrimSpace(req.Description)
	req.AccountType = strings.TrimSpace(req.AccountType)
	if req.ReferenceNo == "" {
		return domain.Expense{}, fmt.Errorf("reference number is required: %w", store.ErrValidation)
	}
	if req.Description == "" {
		return domain.Expense{}, fmt.Errorf("description is required: %w", store.ErrValidation)
	}
	if req.AccountType == "" {
		return domain.Expense{}, fmt.Errorf("account type is required: %w", store.ErrValidation)
	}
	if !req.Amount.IsPositive() {
		return domain.Expense{}, fmt.Errorf("amount must be positive: %w", store.ErrValidation)
	}
	if err := validateMethodBank(req.Method, req.BankID); err != nil {
		return domain.Expense{}, err
	}
	if req.BankID != "" {
		if _, err := s.repo.GetBankByID(ctx, req.BankID); err != nil {
			return domain.Expense{}, fmt.Errorf("bank %s: %w", req.BankID, err)
		}
	}

	expense := domain.Expense{
		ReferenceNo: req.ReferenceNo,
		Description: req.Description,
		Amount:      req.Amount,
		AccountType: req.AccountType,
		Method:      req.Method,
		BankID:      req.BankID,
		Active:      true,
		CreatedBy:   actor.Username,
	}
	if req.Date != nil {
		expense.Date = req.Date.UTC()
	}

	created, err := s.repo.CreateExpense(ctx, expense)
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, "expense_create", "expense", created.ID, fmt.Sprintf("ref=%s,amount=%s", created.ReferenceNo, created.Amount))
	return *created, nil
}

func (s *Service) GetExpense(ctx context.Context, id string) (domain.Expense, error) {
	expense, err := s.repo.GetExpenseByID(ctx, id)
	if err != nil {
		return domain.Expense{}, err
	}
	return *expense, nil
}

// ListExpenses returns active expenses matching the filter along with
// their running total, which dashboards show next to the list.
func (s *Service) ListExpenses(ctx context.Context, filter domain.ExpenseFilter) (domain.ExpenseListResponse, error) {
	items, err := s.repo.ListExpenses(ctx, filter)
	if err != nil {
		return domain.ExpenseListResponse{}, err
	}
	total := decimal.Zero
	for _, e := range items {
		total = total.Add(e.Amount)
	}
	return domain.ExpenseListResponse{Items: items, Total: total}, nil
}

// DeactivateExpense soft deletes an expense entry. The row stays in place
// so past profit and loss reports remain reproducible.
func (s *Service) DeactivateExpense(ctx context.Context, id string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeactivateExpense(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "expense_deactivate", "expense", id, "")
	return nil
}
