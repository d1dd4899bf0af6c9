package store

import (
	"context"
	"errors"
	"time"

	"tokosinar/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
	ErrNegativeStock     = errors.New("stock cannot go negative")
	ErrOverpayment       = errors.New("payment exceeds remaining balance")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Movement carries the three signed deltas applied to a product's ledger
// counters. ApplyMovement is the only way counters change: implementations
// recompute current_stock from the stored cumulative values plus the deltas,
// creating a zero-counter row when the product has none yet.
type Movement struct {
	ProductID       string
	DeltaIn         int64
	DeltaOut        int64
	DeltaAdjustment int64
}

// Repository is the persistence contract. Multi-step mutations (purchase
// receive/amend/retract, sale create/append/edit/delete, adjustments,
// payments) are composite methods so implementations can run them inside a
// single transaction with per-product row locking.
type Repository interface {
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*domain.Category, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	CreateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error)
	GetVendorByID(ctx context.Context, id string) (*domain.Vendor, error)
	ListVendors(ctx context.Context) ([]domain.Vendor, error)
	DeleteVendor(ctx context.Context, id string) error

	CreateBank(ctx context.Context, bank domain.Bank) (*domain.Bank, error)
	GetBankByID(ctx context.Context, id string) (*domain.Bank, error)
	ListBanks(ctx context.Context) ([]domain.Bank, error)
	DeleteBank(ctx context.Context, id string) error

	GetLedger(ctx context.Context, productID string) (*domain.LedgerEntry, error)
	ApplyMovement(ctx context.Context, movement Movement) (*domain.LedgerEntry, error)
	ListLedger(ctx context.Context) (*domain.LedgerValuationReport, error)

	CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)
	GetPurchaseByID(ctx context.Context, id string) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, filter domain.PurchaseFilter) ([]domain.Purchase, error)
	UpdatePurchase(ctx context.Context, id string, patch domain.PurchaseUpdateRequest) (*domain.Purchase, error)
	DeletePurchase(ctx context.Context, id string) error
	LatestPurchase(ctx context.Context, productID string) (*domain.Purchase, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, []string, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	GetSaleByInvoice(ctx context.Context, invoice string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	AppendSaleLine(ctx context.Context, saleID string, line domain.SaleLine) (*domain.Sale, error)
	UpdateSaleLine(ctx context.Context, saleID string, lineID string, patch domain.SaleLineUpdateRequest) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error
	DeleteAllSales(ctx context.Context) (int, error)

	CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error)
	GetPaymentByID(ctx context.Context, id string) (*domain.Payment, error)
	ListPayments(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, error)
	ListPaymentsBySale(ctx context.Context, saleID string) ([]domain.Payment, error)
	UpdatePayment(ctx context.Context, id string, patch domain.PaymentUpdateRequest) (*domain.Payment, error)
	DeletePayment(ctx context.Context, id string) error
	BankHasPayments(ctx context.Context, bankID string) (bool, error)

	CreateAdjustment(ctx context.Context, adjustment domain.StockAdjustment) (*domain.StockAdjustment, error)
	ListAdjustments(ctx context.Context, filter domain.AdjustmentFilter) ([]domain.StockAdjustment, error)
	DeleteAdjustment(ctx context.Context, id string) error

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	GetExpenseByID(ctx context.Context, id string) (*domain.Expense, error)
	ListExpenses(ctx context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error)
	DeactivateExpense(ctx context.Context, id string) error

	ProfitLoss(ctx context.Context, from time.Time, to time.Time) (*domain.ProfitLossReport, error)
	SalesAnalysis(ctx context.Context, from time.Time, to time.Time) ([]domain.SalesAnalysisRow, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
