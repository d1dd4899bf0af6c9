package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tokosinar/backend/internal/domain"
	"tokosinar/backend/internal/store"
	"tokosinar/backend/internal/store/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(memory.New(), nil, nil)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "staff", Role: domain.RoleStaff})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seedCatalog creates one category, one product and one vendor so tests can
// receive stock and open invoices.
func seedCatalog(t *testing.T, svc *Service) (domain.Product, domain.Vendor) {
	t.Helper()
	ctx := adminCtx()

	_, err := svc.CreateCategory(ctx, domain.CategoryCreateRequest{Name: "Grocery"})
	require.NoError(t, err)

	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:         "Rice 5kg",
		Category:     "Grocery",
		SellingPrice: dec("25"),
	})
	require.NoError(t, err)

	vendor, err := svc.CreateVendor(ctx, domain.VendorCreateRequest{Name: "Toko Sumber"})
	require.NoError(t, err)

	return product, vendor
}

func receive(t *testing.T, svc *Service, product domain.Product, vendor domain.Vendor, invoice string, qty int64, cost string, date time.Time) domain.Purchase {
	t.Helper()
	purchase, err := svc.ReceivePurchase(adminCtx(), domain.PurchaseCreateRequest{
		InvoiceRef: invoice,
		ProductID:  product.ID,
		VendorID:   vendor.ID,
		Quantity:   qty,
		UnitCost:   dec(cost),
		Date:       &date,
	})
	require.NoError(t, err)
	return purchase
}

func sell(t *testing.T, svc *Service, product domain.Product, qty int64, price string) domain.SaleCreateResponse {
	t.Helper()
	resp, err := svc.CreateSale(staffCtx(), domain.SaleCreateRequest{
		CustomerName: "Bu Sari",
		Lines: []domain.SaleLineRequest{
			{ProductID: product.ID, Quantity: qty, SellingPrice: dec(price)},
		},
	})
	require.NoError(t, err)
	return resp
}

func TestReceiveThenSellFreezesCost(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)

	receive(t, svc, product, vendor, "PO-001", 10, "5", time.Now().UTC())

	resp := sell(t, svc, product, 4, "9")
	require.Empty(t, resp.Warnings)
	require.Len(t, resp.Sale.Lines, 1)
	require.True(t, resp.Sale.Lines[0].CostPrice.Equal(dec("5")),
		"line cost should freeze at the latest purchase cost, got %s", resp.Sale.Lines[0].CostPrice)
	require.True(t, resp.Sale.TotalAmount.Equal(dec("36")))

	entry, err := svc.GetCurrentStock(adminCtx(), product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 6, entry.CurrentStock)
	require.EqualValues(t, 10, entry.QuantityIn)
	require.EqualValues(t, 4, entry.QuantityOut)
}

func TestSaleWithoutPurchaseFreezesZeroCost(t *testing.T) {
	svc := newTestService(t)
	product, _ := seedCatalog(t, svc)

	resp := sell(t, svc, product, 2, "9")
	require.True(t, resp.Sale.Lines[0].CostPrice.IsZero(),
		"a product never purchased must freeze a zero cost")
	require.NotEmpty(t, resp.Warnings, "selling with no stock should warn")
}

func TestPartialPaymentSequence(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)
	receive(t, svc, product, vendor, "PO-001", 10, "5", time.Now().UTC())

	resp := sell(t, svc, product, 4, "25")
	require.True(t, resp.Sale.TotalAmount.Equal(dec("100")))
	require.Equal(t, domain.SaleStatusPending, resp.Sale.Status)
	invoice := resp.Sale.InvoiceNumber

	first, err := svc.RecordPayment(staffCtx(), domain.PaymentCreateRequest{
		InvoiceRef: invoice,
		AmountPaid: dec("60"),
		Method:     domain.PaymentMethodCash,
	})
	require.NoError(t, err)
	require.Equal(t, domain.SaleStatusPartPaid, first.Status)
	require.True(t, first.BalanceDue.Equal(dec("40")))

	_, err = svc.RecordPayment(staffCtx(), domain.PaymentCreateRequest{
		InvoiceRef: invoice,
		AmountPaid: dec("41"),
		Method:     domain.PaymentMethodCash,
	})
	require.ErrorIs(t, err, store.ErrOverpayment)

	second, err := svc.RecordPayment(staffCtx(), domain.PaymentCreateRequest{
		InvoiceRef: invoice,
		AmountPaid: dec("40"),
		Method:     domain.PaymentMethodCash,
	})
	require.NoError(t, err)
	require.Equal(t, domain.SaleStatusCompleted, second.Status)
	require.True(t, second.BalanceDue.IsZero())

	sale, err := svc.GetSaleByInvoice(staffCtx(), invoice)
	require.NoError(t, err)
	require.Equal(t, domain.SaleStatusCompleted, sale.Status)
	require.True(t, sale.TotalPaid.Equal(dec("100")))
	require.True(t, sale.BalanceDue.IsZero())
}

func TestPaymentReferenceIsSystemGenerated(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)
	receive(t, svc, product, vendor, "PO-001", 10, "5", time.Now().UTC())
	resp := sell(t, svc, product, 1, "25")

	payment, err := svc.RecordPayment(staffCtx(), domain.PaymentCreateRequest{
		InvoiceRef: resp.Sale.InvoiceNumber,
		AmountPaid: dec("10"),
		Method:     domain.PaymentMethodCash,
		Reference:  "client-supplied-ref",
	})
	require.NoError(t, err)
	require.NotEmpty(t, payment.Reference)
	require.NotEqual(t, "client-supplied-ref", payment.Reference,
		"client supplied references must be discarded")
}

func TestMethodBankCouplingRule(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)
	receive(t, svc, product, vendor, "PO-001", 10, "5", time.Now().UTC())
	resp := sell(t, svc, product, 1, "25")

	bank, err := svc.CreateBank(adminCtx(), domain.BankCreateRequest{Name: "BCA", AccountNumber: "0123"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		method string
		bankID string
		ok     bool
	}{
		{"cash without bank", domain.PaymentMethodCash, "", true},
		{"cash with bank", domain.PaymentMethodCash, bank.ID, false},
		{"transfer without bank", domain.PaymentMethodTransfer, "", false},
		{"transfer with bank", domain.PaymentMethodTransfer, bank.ID, true},
		{"pos without bank", domain.PaymentMethodPOS, "", false},
		{"unknown method", "cheque", "", false},
	}
	for _, tc := range cases {
		_, err := svc.RecordPayment(staffCtx(), domain.PaymentCreateRequest{
			InvoiceRef: resp.Sale.InvoiceNumber,
			AmountPaid: dec("1"),
			Method:     tc.method,
			BankID:     tc.bankID,
		})
		if tc.ok {
			require.NoError(t, err, tc.name)
		} else {
			require.ErrorIs(t, err, store.ErrValidation, tc.name)
		}
	}
}

func TestAdjustmentCannotDriveStockNegative(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)
	receive(t, svc, product, vendor, "PO-001", 5, "5", time.Now().UTC())

	_, err := svc.CreateAdjustment(adminCtx(), domain.StockAdjustmentCreateRequest{
		ProductID: product.ID,
		Quantity:  -8,
		Reason:    "damaged in transit",
	})
	require.ErrorIs(t, err, store.ErrNegativeStock)

	entry, err := svc.GetCurrentStock(adminCtx(), product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 5, entry.CurrentStock, "a rejected adjustment must not touch the ledger")

	adj, err := svc.CreateAdjustment(adminCtx(), domain.StockAdjustmentCreateRequest{
		ProductID: product.ID,
		Quantity:  -5,
		Reason:    "spoiled",
	})
	require.NoError(t, err)
	require.Equal(t, "admin", adj.AdjustedBy)

	entry, err = svc.GetCurrentStock(adminCtx(), product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, entry.CurrentStock)
	require.EqualValues(t, -5, entry.AdjustmentTotal)
}

func TestAdjustmentRequiresAdmin(t *testing.T) {
	svc := newTestService(t)
	product, _ := seedCatalog(t, svc)

	_, err := svc.CreateAdjustment(staffCtx(), domain.StockAdjustmentCreateRequest{
		ProductID: product.ID,
		Quantity:  3,
		Reason:    "found in storage",
	})
	require.ErrorContains(t, err, "admin role required")
}

func TestDeleteSaleBlockedByPayments(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)
	receive(t, svc, product, vendor, "PO-001", 10, "5", time.Now().UTC())
	resp := sell(t, svc, product, 4, "25")

	payment, err := svc.RecordPayment(staffCtx(), domain.PaymentCreateRequest{
		InvoiceRef: resp.Sale.InvoiceNumber,
		AmountPaid: dec("50"),
		Method:     domain.PaymentMethodCash,
	})
	require.NoError(t, err)

	err = svc.DeleteSale(adminCtx(), resp.Sale.ID)
	require.ErrorIs(t, err, store.ErrConflict)

	require.NoError(t, svc.DeletePayment(adminCtx(), payment.ID))
	require.NoError(t, svc.DeleteSale(adminCtx(), resp.Sale.ID))

	entry, err := svc.GetCurrentStock(adminCtx(), product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10, entry.CurrentStock, "deleting the sale must return its units to stock")
}

func TestLatestPurchaseDecidesFrozenCost(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)

	day := 24 * time.Hour
	base := time.Now().UTC().Add(-10 * day)
	receive(t, svc, product, vendor, "PO-001", 10, "5", base)
	receive(t, svc, product, vendor, "PO-002", 10, "7", base.Add(2*day))

	first := sell(t, svc, product, 3, "12")
	require.True(t, first.Sale.Lines[0].CostPrice.Equal(dec("7")),
		"the newest purchase cost wins, got %s", first.Sale.Lines[0].CostPrice)

	receive(t, svc, product, vendor, "PO-003", 10, "9", base.Add(4*day))

	unchanged, err := svc.GetSale(staffCtx(), first.Sale.ID)
	require.NoError(t, err)
	require.True(t, unchanged.Lines[0].CostPrice.Equal(dec("7")),
		"a later purchase must not rewrite frozen costs")

	second := sell(t, svc, product, 3, "12")
	require.True(t, second.Sale.Lines[0].CostPrice.Equal(dec("9")))
}

func TestOversellWarnsOnCreateAndBlocksOnAppend(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)
	receive(t, svc, product, vendor, "PO-001", 3, "5", time.Now().UTC())

	resp := sell(t, svc, product, 5, "9")
	require.Len(t, resp.Warnings, 1)
	require.Contains(t, resp.Warnings[0], "insufficient stock")

	entry, err := svc.GetCurrentStock(adminCtx(), product.ID)
	require.NoError(t, err)
	require.EqualValues(t, -2, entry.CurrentStock, "bulk creation records the full movement even past zero")

	other, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:         "Cooking Oil 1L",
		Category:     "Grocery",
		SellingPrice: dec("19"),
	})
	require.NoError(t, err)

	_, err = svc.AppendSaleLine(staffCtx(), resp.Sale.ID, domain.SaleLineRequest{
		ProductID:    other.ID,
		Quantity:     1,
		SellingPrice: dec("19"),
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)
}

func TestDuplicateProductOnInvoiceRejected(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)
	receive(t, svc, product, vendor, "PO-001", 10, "5", time.Now().UTC())

	_, err := svc.CreateSale(staffCtx(), domain.SaleCreateRequest{
		CustomerName: "Bu Sari",
		Lines: []domain.SaleLineRequest{
			{ProductID: product.ID, Quantity: 1, SellingPrice: dec("9")},
			{ProductID: product.ID, Quantity: 2, SellingPrice: dec("9")},
		},
	})
	require.ErrorIs(t, err, store.ErrConflict)

	resp := sell(t, svc, product, 1, "9")
	_, err = svc.AppendSaleLine(staffCtx(), resp.Sale.ID, domain.SaleLineRequest{
		ProductID:    product.ID,
		Quantity:     1,
		SellingPrice: dec("9"),
	})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestEditSaleLineMovesStockAndRefreezesCost(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)
	receive(t, svc, product, vendor, "PO-001", 10, "5", time.Now().UTC())

	other, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:         "Cooking Oil 1L",
		Category:     "Grocery",
		SellingPrice: dec("19"),
	})
	require.NoError(t, err)
	receive(t, svc, other, vendor, "PO-002", 10, "16", time.Now().UTC())

	resp := sell(t, svc, product, 4, "9")
	line := resp.Sale.Lines[0]

	// A quantity-only edit keeps the frozen cost.
	qty := int64(6)
	updated, err := svc.UpdateSaleLine(staffCtx(), resp.Sale.ID, line.ID, domain.SaleLineUpdateRequest{
		Quantity: &qty,
	})
	require.NoError(t, err)
	require.True(t, updated.Lines[0].CostPrice.Equal(dec("5")))

	entry, err := svc.GetCurrentStock(adminCtx(), product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 4, entry.CurrentStock)

	// Switching the product reverses the old movement and re-freezes cost.
	updated, err = svc.UpdateSaleLine(staffCtx(), resp.Sale.ID, line.ID, domain.SaleLineUpdateRequest{
		ProductID: &other.ID,
	})
	require.NoError(t, err)
	require.True(t, updated.Lines[0].CostPrice.Equal(dec("16")))

	entry, err = svc.GetCurrentStock(adminCtx(), product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10, entry.CurrentStock)

	entry, err = svc.GetCurrentStock(adminCtx(), other.ID)
	require.NoError(t, err)
	require.EqualValues(t, 4, entry.CurrentStock)
}

func TestInvoiceNumberingAndReset(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)
	receive(t, svc, product, vendor, "PO-001", 50, "5", time.Now().UTC())

	first := sell(t, svc, product, 1, "9")
	second := sell(t, svc, product, 1, "9")
	require.Equal(t, "INV-000001", first.Sale.InvoiceNumber)
	require.Equal(t, "INV-000002", second.Sale.InvoiceNumber)

	count, err := svc.DeleteAllSales(adminCtx())
	require.NoError(t, err)
	require.Equal(t, 2, count)

	third := sell(t, svc, product, 1, "9")
	require.Equal(t, "INV-000001", third.Sale.InvoiceNumber, "numbering restarts after the book is emptied")
}

func TestDeleteAllSalesBlockedWhilePaymentsExist(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)
	receive(t, svc, product, vendor, "PO-001", 10, "5", time.Now().UTC())
	resp := sell(t, svc, product, 1, "25")

	_, err := svc.RecordPayment(staffCtx(), domain.PaymentCreateRequest{
		InvoiceRef: resp.Sale.InvoiceNumber,
		AmountPaid: dec("25"),
		Method:     domain.PaymentMethodCash,
	})
	require.NoError(t, err)

	_, err = svc.DeleteAllSales(adminCtx())
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestValuationReport(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)
	receive(t, svc, product, vendor, "PO-001", 10, "5", time.Now().UTC())
	sell(t, svc, product, 4, "9")

	report, err := svc.ListInventory(adminCtx())
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	require.EqualValues(t, 6, report.Items[0].CurrentStock)
	require.True(t, report.Items[0].LatestCost.Equal(dec("5")))
	require.True(t, report.Items[0].StockValue.Equal(dec("30")))
	require.True(t, report.GrandTotal.Equal(dec("30")))
}

func TestProfitLossReport(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)
	receive(t, svc, product, vendor, "PO-001", 10, "5", time.Now().UTC())
	sell(t, svc, product, 4, "25")

	_, err := svc.CreateExpense(adminCtx(), domain.ExpenseCreateRequest{
		ReferenceNo: "EXP-001",
		Description: "Electricity",
		Amount:      dec("12"),
		AccountType: "utilities",
		Method:      domain.PaymentMethodCash,
	})
	require.NoError(t, err)

	report, err := svc.ProfitLoss(adminCtx(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.True(t, report.TotalRevenue.Equal(dec("100")))
	require.True(t, report.CostOfSales.Equal(dec("20")))
	require.True(t, report.GrossProfit.Equal(dec("80")))
	require.True(t, report.TotalExpenses.Equal(dec("12")))
	require.True(t, report.NetProfit.Equal(dec("68")))
	require.Len(t, report.Revenue, 1)
	require.Equal(t, "Grocery", report.Revenue[0].Category)
}

func TestExpenseSharedMethodBankRule(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateExpense(adminCtx(), domain.ExpenseCreateRequest{
		ReferenceNo: "EXP-001",
		Description: "Rent",
		Amount:      dec("100"),
		AccountType: "rent",
		Method:      domain.PaymentMethodTransfer,
	})
	require.ErrorIs(t, err, store.ErrValidation, "transfer expenses need a bank")

	bank, err := svc.CreateBank(adminCtx(), domain.BankCreateRequest{Name: "BCA"})
	require.NoError(t, err)

	created, err := svc.CreateExpense(adminCtx(), domain.ExpenseCreateRequest{
		ReferenceNo: "EXP-001",
		Description: "Rent",
		Amount:      dec("100"),
		AccountType: "rent",
		Method:      domain.PaymentMethodTransfer,
		BankID:      bank.ID,
	})
	require.NoError(t, err)
	require.True(t, created.Active)

	// An active expense holds its reference number; deactivating frees it.
	_, err = svc.CreateExpense(adminCtx(), domain.ExpenseCreateRequest{
		ReferenceNo: "EXP-001",
		Description: "Rent again",
		Amount:      dec("100"),
		AccountType: "rent",
		Method:      domain.PaymentMethodCash,
	})
	require.ErrorIs(t, err, store.ErrConflict)

	require.NoError(t, svc.DeactivateExpense(adminCtx(), created.ID))
	_, err = svc.CreateExpense(adminCtx(), domain.ExpenseCreateRequest{
		ReferenceNo: "EXP-001",
		Description: "Rent again",
		Amount:      dec("100"),
		AccountType: "rent",
		Method:      domain.PaymentMethodCash,
	})
	require.NoError(t, err)
}

func TestBankDeleteBlockedByPayments(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)
	receive(t, svc, product, vendor, "PO-001", 10, "5", time.Now().UTC())
	resp := sell(t, svc, product, 1, "25")

	bank, err := svc.CreateBank(adminCtx(), domain.BankCreateRequest{Name: "BCA"})
	require.NoError(t, err)

	_, err = svc.RecordPayment(staffCtx(), domain.PaymentCreateRequest{
		InvoiceRef: resp.Sale.InvoiceNumber,
		AmountPaid: dec("10"),
		Method:     domain.PaymentMethodTransfer,
		BankID:     bank.ID,
	})
	require.NoError(t, err)

	err = svc.DeleteBank(adminCtx(), bank.ID)
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestOutstandingSalesKeepsOnlyUnsettled(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)
	receive(t, svc, product, vendor, "PO-001", 50, "5", time.Now().UTC())

	day := 24 * time.Hour
	older := time.Now().UTC().Add(-5 * day)
	newer := older.Add(2 * day)

	first, err := svc.CreateSale(staffCtx(), domain.SaleCreateRequest{
		CustomerName: "Bu Sari",
		Date:         &older,
		Lines:        []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 1, SellingPrice: dec("25")}},
	})
	require.NoError(t, err)
	second, err := svc.CreateSale(staffCtx(), domain.SaleCreateRequest{
		CustomerName: "Pak Budi",
		Date:         &newer,
		Lines:        []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 1, SellingPrice: dec("25")}},
	})
	require.NoError(t, err)

	// Settle the second invoice fully; only the first stays outstanding.
	_, err = svc.RecordPayment(staffCtx(), domain.PaymentCreateRequest{
		InvoiceRef: second.Sale.InvoiceNumber,
		AmountPaid: dec("25"),
		Method:     domain.PaymentMethodCash,
	})
	require.NoError(t, err)

	outstanding, err := svc.OutstandingSales(staffCtx())
	require.NoError(t, err)
	require.Len(t, outstanding, 1)
	require.Equal(t, first.Sale.ID, outstanding[0].ID)
}

func TestUpdatePaymentRecomputesFromScratch(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)
	receive(t, svc, product, vendor, "PO-001", 10, "5", time.Now().UTC())
	resp := sell(t, svc, product, 4, "25")

	first, err := svc.RecordPayment(staffCtx(), domain.PaymentCreateRequest{
		InvoiceRef: resp.Sale.InvoiceNumber,
		AmountPaid: dec("30"),
		Method:     domain.PaymentMethodCash,
	})
	require.NoError(t, err)
	_, err = svc.RecordPayment(staffCtx(), domain.PaymentCreateRequest{
		InvoiceRef: resp.Sale.InvoiceNumber,
		AmountPaid: dec("50"),
		Method:     domain.PaymentMethodCash,
	})
	require.NoError(t, err)

	// Raising the first payment past what the other leaves open must fail.
	big := dec("51")
	_, err = svc.UpdatePayment(adminCtx(), first.ID, domain.PaymentUpdateRequest{AmountPaid: &big})
	require.ErrorIs(t, err, store.ErrOverpayment)

	exact := dec("50")
	updated, err := svc.UpdatePayment(adminCtx(), first.ID, domain.PaymentUpdateRequest{AmountPaid: &exact})
	require.NoError(t, err)
	require.Equal(t, domain.SaleStatusCompleted, updated.Status)
	require.True(t, updated.BalanceDue.IsZero())
}

func TestStaffSalesReport(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)
	receive(t, svc, product, vendor, "PO-001", 50, "5", time.Now().UTC())

	sell(t, svc, product, 1, "25")
	sell(t, svc, product, 2, "25")

	rows, err := svc.StaffSalesReport(adminCtx(), domain.SaleFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "staff", rows[0].Staff)
	require.EqualValues(t, 2, rows[0].SalesCount)
	require.True(t, rows[0].Total.Equal(dec("75")))
}

func TestCreateStaffRequiresAdminAndStrongPassword(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateStaff(staffCtx(), domain.StaffCreateRequest{Username: "nina", Password: "supersecret"})
	require.ErrorContains(t, err, "admin role required")

	_, err = svc.CreateStaff(adminCtx(), domain.StaffCreateRequest{Username: "nina", Password: "short"})
	require.ErrorIs(t, err, store.ErrValidation)

	user, err := svc.CreateStaff(adminCtx(), domain.StaffCreateRequest{Username: "nina", Password: "supersecret"})
	require.NoError(t, err)
	require.Equal(t, domain.RoleStaff, user.Role)

	_, err = svc.CreateStaff(adminCtx(), domain.StaffCreateRequest{Username: "nina", Password: "supersecret"})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestFailedSaleLeavesNoPartialState(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)
	receive(t, svc, product, vendor, "PO-001", 10, "5", time.Now().UTC())

	_, err := svc.CreateSale(staffCtx(), domain.SaleCreateRequest{
		CustomerName: "Bu Sari",
		Lines: []domain.SaleLineRequest{
			{ProductID: product.ID, Quantity: 4, SellingPrice: dec("9")},
			{ProductID: "missing", Quantity: 1, SellingPrice: dec("9")},
		},
	})
	require.ErrorIs(t, err, store.ErrNotFound)

	entry, err := svc.GetCurrentStock(adminCtx(), product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10, entry.QuantityIn)
	require.EqualValues(t, 0, entry.QuantityOut, "a rejected invoice must not deduct stock")
	require.EqualValues(t, 10, entry.CurrentStock)

	resp := sell(t, svc, product, 1, "9")
	require.Equal(t, "INV-000001", resp.Sale.InvoiceNumber,
		"a rejected invoice must not consume a number")
}

func TestPurchaseAndAdjustmentReversalsRestoreLedger(t *testing.T) {
	svc := newTestService(t)
	product, vendor := seedCatalog(t, svc)
	purchase := receive(t, svc, product, vendor, "PO-001", 10, "5", time.Now().UTC())

	sell(t, svc, product, 4, "9")

	before, err := svc.GetCurrentStock(adminCtx(), product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10, before.QuantityIn)
	require.EqualValues(t, 4, before.QuantityOut)
	require.EqualValues(t, 6, before.CurrentStock)

	qty := int64(12)
	cost := dec("6")
	amended, err := svc.AmendPurchase(adminCtx(), purchase.ID, domain.PurchaseUpdateRequest{
		Quantity: &qty,
		UnitCost: &cost,
	})
	require.NoError(t, err)
	require.True(t, amended.TotalCost.Equal(dec("72")))

	entry, err := svc.GetCurrentStock(adminCtx(), product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 12, entry.QuantityIn)
	require.EqualValues(t, 8, entry.CurrentStock)

	qty = 10
	cost = dec("5")
	_, err = svc.AmendPurchase(adminCtx(), purchase.ID, domain.PurchaseUpdateRequest{
		Quantity: &qty,
		UnitCost: &cost,
	})
	require.NoError(t, err)

	entry, err = svc.GetCurrentStock(adminCtx(), product.ID)
	require.NoError(t, err)
	require.Equal(t, before.QuantityIn, entry.QuantityIn)
	require.Equal(t, before.QuantityOut, entry.QuantityOut)
	require.Equal(t, before.AdjustmentTotal, entry.AdjustmentTotal)
	require.Equal(t, before.CurrentStock, entry.CurrentStock,
		"amending back to the original receipt must restore the ledger exactly")

	adjustment, err := svc.CreateAdjustment(adminCtx(), domain.StockAdjustmentCreateRequest{
		ProductID: product.ID,
		Quantity:  3,
		Reason:    "recount",
	})
	require.NoError(t, err)

	entry, err = svc.GetCurrentStock(adminCtx(), product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, entry.AdjustmentTotal)
	require.EqualValues(t, 9, entry.CurrentStock)

	require.NoError(t, svc.DeleteAdjustment(adminCtx(), adjustment.ID))

	entry, err = svc.GetCurrentStock(adminCtx(), product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, entry.AdjustmentTotal)
	require.Equal(t, before.CurrentStock, entry.CurrentStock,
		"deleting an adjustment must undo exactly its own quantity")

	require.NoError(t, svc.RetractPurchase(adminCtx(), purchase.ID))

	entry, err = svc.GetCurrentStock(adminCtx(), product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, entry.QuantityIn)
	require.EqualValues(t, 4, entry.QuantityOut)
	require.EqualValues(t, -4, entry.CurrentStock,
		"retracting the receipt leaves the prior sale as an oversell")
}
