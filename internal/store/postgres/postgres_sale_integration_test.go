package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tokosinar/backend/internal/domain"
)

func TestSaleSettlementAndLedgerCounters(t *testing.T) {
	databaseURL := os.Getenv("TOKOSINAR_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TOKOSINAR_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	category, err := s.CreateCategory(ctx, domain.Category{Name: fmt.Sprintf("it-cat-%d", stamp)})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	product, err := s.CreateProduct(ctx, domain.Product{
		Name:         fmt.Sprintf("it-product-%d", stamp),
		CategoryID:   category.ID,
		SellingPrice: decimal.NewFromInt(25),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	var saleID string
	t.Cleanup(func() {
		if saleID != "" {
			_, _ = s.db.ExecContext(ctx, `DELETE FROM payments WHERE sale_id = $1`, saleID)
			_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_lines WHERE sale_id = $1`, saleID)
			_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		}
		_, _ = s.db.ExecContext(ctx, `DELETE FROM purchases WHERE product_id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_ledger WHERE product_id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, category.ID)
	})

	if _, err := s.CreatePurchase(ctx, domain.Purchase{
		InvoiceRef: fmt.Sprintf("PO-IT-%d", stamp),
		ProductID:  product.ID,
		Quantity:   10,
		UnitCost:   decimal.NewFromInt(5),
		CreatedBy:  "integration",
	}); err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	sale, warnings, err := s.CreateSale(ctx, domain.Sale{
		CustomerName: "Integration Customer",
		Staff:        "integration",
		Lines: []domain.SaleLine{
			{ProductID: product.ID, Quantity: 4, SellingPrice: decimal.NewFromInt(25)},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	saleID = sale.ID
	if len(warnings) != 0 {
		t.Fatalf("unexpected oversell warnings: %v", warnings)
	}
	if !sale.Lines[0].CostPrice.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected frozen cost 5, got %s", sale.Lines[0].CostPrice)
	}
	if sale.Status != domain.SaleStatusPending {
		t.Fatalf("expected pending sale, got %s", sale.Status)
	}

	payment, err := s.CreatePayment(ctx, domain.Payment{
		SaleID:     sale.ID,
		Reference:  fmt.Sprintf("ref-it-%d", stamp),
		AmountPaid: decimal.NewFromInt(60),
		Method:     domain.PaymentMethodCash,
		ReceivedBy: "integration",
		Date:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if payment.Status != domain.SaleStatusPartPaid {
		t.Fatalf("expected part_paid after 60 of 100, got %s", payment.Status)
	}

	var quantityIn, quantityOut, currentStock int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT quantity_in, quantity_out, current_stock
		FROM inventory_ledger
		WHERE product_id = $1
	`, product.ID).Scan(&quantityIn, &quantityOut, &currentStock); err != nil {
		t.Fatalf("query ledger: %v", err)
	}
	if quantityIn != 10 || quantityOut != 4 || currentStock != 6 {
		t.Fatalf("expected ledger 10/4/6, got %d/%d/%d", quantityIn, quantityOut, currentStock)
	}

	loaded, err := s.GetSaleByID(ctx, sale.ID)
	if err != nil {
		t.Fatalf("reload sale: %v", err)
	}
	if loaded.Status != domain.SaleStatusPartPaid {
		t.Fatalf("expected part_paid sale after partial payment, got %s", loaded.Status)
	}
	if !loaded.BalanceDue.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected balance 40, got %s", loaded.BalanceDue)
	}
}
