package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type CategoryCreateRequest struct {
	Name string `json:"name"`
}

type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	CategoryID   string          `json:"category_id"`
	CategoryName string          `json:"category_name,omitempty"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
}

type ProductCreateRequest struct {
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
}

type ProductUpdateRequest struct {
	Name         *string          `json:"name,omitempty"`
	Category     *string          `json:"category,omitempty"`
	CostPrice    *decimal.Decimal `json:"cost_price,omitempty"`
	SellingPrice *decimal.Decimal `json:"selling_price,omitempty"`
	Active       *bool            `json:"active,omitempty"`
}

type Vendor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

type VendorCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type Bank struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	AccountName   string    `json:"account_name"`
	AccountNumber string    `json:"account_number"`
	CreatedAt     time.Time `json:"created_at"`
}

type BankCreateRequest struct {
	Name          string `json:"name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
}

// LedgerEntry is the per-product stock counter row. CurrentStock is always
// recomputed from the three cumulative counters and never written directly
// by callers.
type LedgerEntry struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"product_id"`
	QuantityIn      int64     `json:"quantity_in"`
	QuantityOut     int64     `json:"quantity_out"`
	AdjustmentTotal int64     `json:"adjustment_total"`
	CurrentStock    int64     `json:"current_stock"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type LedgerValuation struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	CurrentStock int64           `json:"current_stock"`
	LatestCost   decimal.Decimal `json:"latest_cost"`
	StockValue   decimal.Decimal `json:"stock_value"`
}

type LedgerValuationReport struct {
	Items      []LedgerValuation `json:"items"`
	GrandTotal decimal.Decimal   `json:"grand_total"`
}

type Purchase struct {
	ID         string          `json:"id"`
	InvoiceRef string          `json:"invoice_ref"`
	ProductID  string          `json:"product_id"`
	VendorID   string          `json:"vendor_id,omitempty"`
	Quantity   int64           `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	Date       time.Time       `json:"date"`
	CreatedBy  string          `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`

	ProductName string `json:"product_name,omitempty"`
	VendorName  string `json:"vendor_name,omitempty"`
}

type PurchaseCreateRequest struct {
	InvoiceRef string          `json:"invoice_ref"`
	ProductID  string          `json:"product_id"`
	VendorID   string          `json:"vendor_id,omitempty"`
	Quantity   int64           `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Date       *time.Time      `json:"date,omitempty"`
}

type PurchaseUpdateRequest struct {
	InvoiceRef *string          `json:"invoice_ref,omitempty"`
	ProductID  *string          `json:"product_id,omitempty"`
	VendorID   *string          `json:"vendor_id,omitempty"`
	Quantity   *int64           `json:"quantity,omitempty"`
	UnitCost   *decimal.Decimal `json:"unit_cost,omitempty"`
	Date       *time.Time       `json:"date,omitempty"`
}

type PurchaseFilter struct {
	ProductID  string
	VendorID   string
	InvoiceRef string
	DateFrom   *time.Time
	DateTo     *time.Time
}

// SaleLine freezes CostPrice from the latest purchase at creation time so
// margin reports stay stable when later purchases change the product cost.
type SaleLine struct {
	ID           string          `json:"id"`
	SaleID       string          `json:"sale_id"`
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name,omitempty"`
	Quantity     int64           `json:"quantity"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	GrossAmount  decimal.Decimal `json:"gross_amount"`
	Discount     decimal.Decimal `json:"discount"`
	NetAmount    decimal.Decimal `json:"net_amount"`
}

type Sale struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Staff         string          `json:"staff"`
	Date          time.Time       `json:"date"`
	CreatedAt     time.Time       `json:"created_at"`
	Lines         []SaleLine      `json:"lines,omitempty"`

	TotalPaid  decimal.Decimal `json:"total_paid"`
	BalanceDue decimal.Decimal `json:"balance_due"`
	Status     string          `json:"status"`
}

type SaleLineRequest struct {
	ProductID    string          `json:"product_id"`
	Quantity     int64           `json:"quantity"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Discount     decimal.Decimal `json:"discount"`
}

type SaleCreateRequest struct {
	CustomerName  string            `json:"customer_name"`
	CustomerPhone string            `json:"customer_phone,omitempty"`
	Date          *time.Time        `json:"date,omitempty"`
	Lines         []SaleLineRequest `json:"lines"`
}

type SaleCreateResponse struct {
	Sale     Sale     `json:"sale"`
	Warnings []string `json:"warnings,omitempty"`
}

type SaleLineUpdateRequest struct {
	ProductID    *string          `json:"product_id,omitempty"`
	Quantity     *int64           `json:"quantity,omitempty"`
	SellingPrice *decimal.Decimal `json:"selling_price,omitempty"`
	Discount     *decimal.Decimal `json:"discount,omitempty"`
}

type SaleFilter struct {
	Staff    string
	Customer string
	DateFrom *time.Time
	DateTo   *time.Time
}

type Payment struct {
	ID         string          `json:"id"`
	SaleID     string          `json:"sale_id"`
	InvoiceRef string          `json:"invoice_ref"`
	Reference  string          `json:"reference"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Method     string          `json:"method"`
	BankID     string          `json:"bank_id,omitempty"`
	BankName   string          `json:"bank_name,omitempty"`
	BalanceDue decimal.Decimal `json:"balance_due"`
	Status     string          `json:"status"`
	Date       time.Time       `json:"date"`
	ReceivedBy string          `json:"received_by"`
	CreatedAt  time.Time       `json:"created_at"`
	Customer   string          `json:"customer,omitempty"`
	SaleTotal  decimal.Decimal `json:"sale_total"`
}

type PaymentCreateRequest struct {
	InvoiceRef string          `json:"invoice_ref"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Method     string          `json:"method"`
	BankID     string          `json:"bank_id,omitempty"`
	Reference  string          `json:"reference,omitempty"`
	Date       *time.Time      `json:"date,omitempty"`
}

type PaymentUpdateRequest struct {
	AmountPaid *decimal.Decimal `json:"amount_paid,omitempty"`
	Method     *string          `json:"method,omitempty"`
	BankID     *string          `json:"bank_id,omitempty"`
	Date       *time.Time       `json:"date,omitempty"`
}

type PaymentFilter struct {
	InvoiceRef string
	Status     string
	BankID     string
	Method     string
	DateFrom   *time.Time
	DateTo     *time.Time
}

type StockAdjustment struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	LedgerID   string    `json:"ledger_id"`
	Quantity   int64     `json:"quantity"`
	Reason     string    `json:"reason"`
	AdjustedBy string    `json:"adjusted_by"`
	CreatedAt  time.Time `json:"created_at"`

	ProductName string `json:"product_name,omitempty"`
}

type StockAdjustmentCreateRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Reason    string `json:"reason"`
}

type AdjustmentFilter struct {
	ProductID string
	DateFrom  *time.Time
	DateTo    *time.Time
}

type Expense struct {
	ID          string          `json:"id"`
	ReferenceNo string          `json:"reference_no"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	AccountType string          `json:"account_type"`
	Method      string          `json:"method"`
	BankID      string          `json:"bank_id,omitempty"`
	BankName    string          `json:"bank_name,omitempty"`
	Date        time.Time       `json:"date"`
	Active      bool            `json:"active"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ExpenseCreateRequest struct {
	ReferenceNo string          `json:"reference_no"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	AccountType string          `json:"account_type"`
	Method      string          `json:"method"`
	BankID      string          `json:"bank_id,omitempty"`
	Date        *time.Time      `json:"date,omitempty"`
}

type ExpenseFilter struct {
	AccountType string
	DateFrom    *time.Time
	DateTo      *time.Time
}

type ExpenseListResponse struct {
	Items []Expense       `json:"items"`
	Total decimal.Decimal `json:"total"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type ProfitLossExpenseLine struct {
	AccountType string          `json:"account_type"`
	Amount      decimal.Decimal `json:"amount"`
}

type ProfitLossRevenueLine struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

type ProfitLossReport struct {
	DateFrom      time.Time               `json:"date_from"`
	DateTo        time.Time               `json:"date_to"`
	Revenue       []ProfitLossRevenueLine `json:"revenue"`
	TotalRevenue  decimal.Decimal         `json:"total_revenue"`
	CostOfSales   decimal.Decimal         `json:"cost_of_sales"`
	GrossProfit   decimal.Decimal         `json:"gross_profit"`
	Expenses      []ProfitLossExpenseLine `json:"expenses"`
	TotalExpenses decimal.Decimal         `json:"total_expenses"`
	NetProfit     decimal.Decimal         `json:"net_profit"`
}

type SalesAnalysisRow struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	QuantitySold int64           `json:"quantity_sold"`
	Revenue      decimal.Decimal `json:"revenue"`
	Cost         decimal.Decimal `json:"cost"`
	Margin       decimal.Decimal `json:"margin"`
}

type StaffSalesRow struct {
	Staff      string          `json:"staff"`
	SalesCount int64           `json:"sales_count"`
	Total      decimal.Decimal `json:"total"`
}

type CustomerSalesRow struct {
	Customer    string          `json:"customer"`
	SalesCount  int64           `json:"sales_count"`
	Total       decimal.Decimal `json:"total"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

const (
	PaymentMethodCash     = "cash"
	PaymentMethodTransfer = "transfer"
	PaymentMethodPOS      = "pos"
)

const (
	SaleStatusPending   = "pending"
	SaleStatusPartPaid  = "part_paid"
	SaleStatusCompleted = "completed"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)
