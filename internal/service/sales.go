package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tokosinar/backend/internal/domain"
	"tokosinar/backend/internal/store"
)

// CreateSale opens an invoice with its lines in one transaction. Cost
// prices are frozen from the latest purchase per line, and stock
// shortfalls come back as warnings instead of failing the invoice.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleCreateResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SaleCreateResponse{}, fmt.Errorf("authentication required")
	}

	if len(req.Lines) == 0 {
		return domain.SaleCreateResponse{}, fmt.Errorf("sale needs at least one line: %w", store.ErrValidation)
	}

	sale := domain.Sale{
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		Staff:         actor.Username,
		Lines:         make([]domain.SaleLine, 0, len(req.Lines)),
	}
	if req.Date != nil {
		sale.Date = req.Date.UTC()
	}
	for _, line := range req.Lines {
		if line.Quantity < 1 {
			return domain.SaleCreateResponse{}, fmt.Errorf("quantity must be positive: %w", store.ErrValidation)
		}
		if line.SellingPrice.IsNegative() || line.Discount.IsNegative() {
			return domain.SaleCreateResponse{}, fmt.Errorf("negative amount: %w", store.ErrValidation)
		}
		sale.Lines = append(sale.Lines, domain.SaleLine{
			ProductID:    line.ProductID,
			Quantity:     line.Quantity,
			SellingPrice: line.SellingPrice,
			Discount:     line.Discount,
		})
	}

	created, warnings, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.SaleCreateResponse{}, err
	}

	for _, warning := range warnings {
		s.logger.WithField("invoice", created.InvoiceNumber).Warn(warning)
	}
	s.invalidateValuation(ctx)
	s.logAudit(ctx, "sale_create", "sale", created.ID, fmt.Sprintf("invoice=%s,total=%s,lines=%d", created.InvoiceNumber, created.TotalAmount, len(created.Lines)))
	return domain.SaleCreateResponse{Sale: *created, Warnings: warnings}, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) GetSaleByInvoice(ctx context.Context, invoice string) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByInvoice(ctx, strings.TrimSpace(invoice))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	filter.Customer = strings.TrimSpace(filter.Customer)
	return s.repo.ListSales(ctx, filter)
}

// AppendSaleLine adds a single line to an existing invoice. Unlike bulk
// creation this path blocks on insufficient stock.
func (s *Service) AppendSaleLine(ctx context.Context, saleID string, req domain.SaleLineRequest) (domain.Sale, error) {
	if req.Quantity < 1 {
		return domain.Sale{}, fmt.Errorf("quantity must be positive: %w", store.ErrValidation)
	}
	if req.SellingPrice.IsNegative() || req.Discount.IsNegative() {
		return domain.Sale{}, fmt.Errorf("negative amount: %w", store.ErrValidation)
	}

	sale, err := s.repo.AppendSaleLine(ctx, saleID, domain.SaleLine{
		ProductID:    req.ProductID,
		Quantity:     req.Quantity,
		SellingPrice: req.SellingPrice,
		Discount:     req.Discount,
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateValuation(ctx)
	s.logAudit(ctx, "sale_line_append", "sale", saleID, fmt.Sprintf("product=%s,qty=%d", req.ProductID, req.Quantity))
	return *sale, nil
}

func (s *Service) UpdateSaleLine(ctx context.Context, saleID string, lineID string, req domain.SaleLineUpdateRequest) (domain.Sale, error) {
	sale, err := s.repo.UpdateSaleLine(ctx, saleID, lineID, req)
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateValuation(ctx)
	s.logAudit(ctx, "sale_line_update", "sale", saleID, fmt.Sprintf("line=%s", lineID))
	return *sale, nil
}

func (s *Service) DeleteSale(ctx context.Context, id string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteSale(ctx, id); err != nil {
		return err
	}
	s.invalidateValuation(ctx)
	s.logAudit(ctx, "sale_delete", "sale", id, "")
	return nil
}

func (s *Service) DeleteAllSales(ctx context.Context) (int, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return 0, err
	}
	count, err := s.repo.DeleteAllSales(ctx)
	if err != nil {
		return 0, err
	}
	s.invalidateValuation(ctx)
	s.logAudit(ctx, "sale_delete_all", "sale", "*", fmt.Sprintf("count=%d", count))
	return count, nil
}

// OutstandingSales lists invoices with an open balance, oldest first.
func (s *Service) OutstandingSales(ctx context.Context) ([]domain.Sale, error) {
	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{})
	if err != nil {
		return nil, err
	}
	outstanding := make([]domain.Sale, 0, len(sales))
	for i := len(sales) - 1; i >= 0; i-- {
		if sales[i].BalanceDue.IsPositive() {
			outstanding = append(outstanding, sales[i])
		}
	}
	return outstanding, nil
}

func (s *Service) StaffSalesReport(ctx context.Context, filter domain.SaleFilter) ([]domain.StaffSalesRow, error) {
	sales, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return nil, err
	}
	byStaff := map[string]*domain.StaffSalesRow{}
	order := make([]string, 0, 8)
	for _, sale := range sales {
		row, ok := byStaff[sale.Staff]
		if !ok {
			row = &domain.StaffSalesRow{Staff: sale.Staff, Total: decimal.Zero}
			byStaff[sale.Staff] = row
			order = append(order, sale.Staff)
		}
		row.SalesCount++
		row.Total = row.Total.Add(sale.TotalAmount)
	}
	rows := make([]domain.StaffSalesRow, 0, len(order))
	for _, staff := range order {
		rows = append(rows, *byStaff[staff])
	}
	return rows, nil
}

func (s *Service) SalesByCustomer(ctx context.Context, customer string) ([]domain.CustomerSalesRow, error) {
	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{Customer: strings.TrimSpace(customer)})
	if err != nil {
		return nil, err
	}
	byCustomer := map[string]*domain.CustomerSalesRow{}
	order := make([]string, 0, 8)
	for _, sale := range sales {
		row, ok := byCustomer[sale.CustomerName]
		if !ok {
			row = &domain.CustomerSalesRow{
				Customer:    sale.CustomerName,
				Total:       decimal.Zero,
				Outstanding: decimal.Zero,
			}
			byCustomer[sale.CustomerName] = row
			order = append(order, sale.CustomerName)
		}
		row.SalesCount++
		row.Total = row.Total.Add(sale.TotalAmount)
		row.Outstanding = row.Outstanding.Add(sale.BalanceDue)
	}
	rows := make([]domain.CustomerSalesRow, 0, len(order))
	for _, name := range order {
		rows = append(rows, *byCustomer[name])
	}
	return rows, nil
}
