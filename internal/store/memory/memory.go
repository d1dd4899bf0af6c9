package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"tokosinar/backend/internal/domain"
	"tokosinar/backend/internal/store"
	"tokosinar/backend/internal/xid"
)

type Store struct {
	mu          sync.RWMutex
	categories  map[string]domain.Category
	products    map[string]domain.Product
	vendors     map[string]domain.Vendor
	banks       map[string]domain.Bank
	ledger      map[string]domain.LedgerEntry
	purchases   map[string]domain.Purchase
	sales       map[string]*domain.Sale
	payments    map[string]domain.Payment
	adjustments map[string]domain.StockAdjustment
	expenses    map[string]domain.Expense
	auditLogs   []domain.AuditLog
	usersByName map[string]domain.UserAccount
	invoiceSeq  int64
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning printed to stdout.
// These credentials are never used in production (the backend uses
// PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		categories:  make(map[string]domain.Category),
		products:    make(map[string]domain.Product),
		vendors:     make(map[string]domain.Vendor),
		banks:       make(map[string]domain.Bank),
		ledger:      make(map[string]domain.LedgerEntry),
		purchases:   make(map[string]domain.Purchase),
		sales:       make(map[string]*domain.Sale),
		payments:    make(map[string]domain.Payment),
		adjustments: make(map[string]domain.StockAdjustment),
		expenses:    make(map[string]domain.Expense),
		auditLogs:   make([]domain.AuditLog, 0, 128),
		usersByName: seedUsers(),
	}
}

// NewSeeded returns a store preloaded with a small demo catalog for dev
// mode. Stock starts at zero; receive purchases to fill the ledger.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	categories := []domain.Category{
		{ID: xid.New("cat"), Name: "Grocery", CreatedAt: now},
		{ID: xid.New("cat"), Name: "Beverage", CreatedAt: now},
		{ID: xid.New("cat"), Name: "Household", CreatedAt: now},
	}
	for _, c := range categories {
		s.categories[c.ID] = c
	}

	products := []struct {
		name     string
		category int
		cost     string
		price    string
	}{
		{"Rice 5kg", 0, "62000", "68000"},
		{"Cooking Oil 1L", 0, "16500", "19000"},
		{"Instant Coffee", 1, "1800", "2600"},
		{"Bottled Water 600ml", 1, "2400", "3900"},
		{"Dish Soap", 2, "5300", "7400"},
	}
	for _, p := range products {
		product := domain.Product{
			ID:           xid.New("prd"),
			Name:         p.name,
			CategoryID:   categories[p.category].ID,
			CostPrice:    decimal.RequireFromString(p.cost),
			SellingPrice: decimal.RequireFromString(p.price),
			Active:       true,
			CreatedAt:    now,
		}
		s.products[product.ID] = product
		s.ledger[product.ID] = domain.LedgerEntry{
			ID:        xid.New("led"),
			ProductID: product.ID,
			UpdatedAt: now,
		}
	}

	return s
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.Name == "" {
		return nil, store.ErrValidation
	}
	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, fmt.Errorf("category %q: %w", category.Name, store.ErrConflict)
		}
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return cmpString(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) GetCategoryByName(_ context.Context, name string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.categories {
		if strings.EqualFold(c.Name, name) {
			found := c
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.CategoryID == "" {
		return nil, store.ErrValidation
	}
	if product.SellingPrice.IsNegative() || product.CostPrice.IsNegative() {
		return nil, store.ErrValidation
	}
	for _, existing := range s.products {
		if strings.EqualFold(existing.Name, product.Name) && existing.CategoryID == product.CategoryID {
			return nil, fmt.Errorf("product %q: %w", product.Name, store.ErrConflict)
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true
	s.products[product.ID] = product

	// Every product gets a zero-counter ledger row up front; movements on
	// unknown products still materialize one lazily.
	if _, ok := s.ledger[product.ID]; !ok {
		s.ledger[product.ID] = domain.LedgerEntry{
			ID:        xid.New("led"),
			ProductID: product.ID,
			UpdatedAt: time.Now().UTC(),
		}
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.CategoryName = s.categories[product.CategoryID].Name
	found := product
	return &found, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		p.CategoryName = s.categories[p.CategoryID].Name
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.CategoryName == b.CategoryName {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.CategoryName, b.CategoryName)
	})
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.CategoryID == "" {
		return nil, store.ErrValidation
	}
	if product.SellingPrice.IsNegative() || product.CostPrice.IsNegative() {
		return nil, store.ErrValidation
	}
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) CreateVendor(_ context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if vendor.Name == "" {
		return nil, store.ErrValidation
	}
	if vendor.ID == "" {
		vendor.ID = xid.New("vnd")
	}
	if vendor.CreatedAt.IsZero() {
		vendor.CreatedAt = time.Now().UTC()
	}
	s.vendors[vendor.ID] = vendor
	created := vendor
	return &created, nil
}

func (s *Store) GetVendorByID(_ context.Context, id string) (*domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vendor, exists := s.vendors[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := vendor
	return &found, nil
}

func (s *Store) ListVendors(_ context.Context) ([]domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vendors := make([]domain.Vendor, 0, len(s.vendors))
	for _, v := range s.vendors {
		vendors = append(vendors, v)
	}
	slices.SortFunc(vendors, func(a, b domain.Vendor) int {
		return cmpString(a.Name, b.Name)
	})
	return vendors, nil
}

func (s *Store) DeleteVendor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vendors[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.vendors, id)
	return nil
}

func (s *Store) CreateBank(_ context.Context, bank domain.Bank) (*domain.Bank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bank.Name == "" {
		return nil, store.ErrValidation
	}
	for _, existing := range s.banks {
		if strings.EqualFold(existing.Name, bank.Name) {
			return nil, fmt.Errorf("bank %q: %w", bank.Name, store.ErrConflict)
		}
	}
	if bank.ID == "" {
		bank.ID = xid.New("bnk")
	}
	if bank.CreatedAt.IsZero() {
		bank.CreatedAt = time.Now().UTC()
	}
	s.banks[bank.ID] = bank
	created := bank
	return &created, nil
}

func (s *Store) GetBankByID(_ context.Context, id string) (*domain.Bank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bank, exists := s.banks[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := bank
	return &found, nil
}

func (s *Store) ListBanks(_ context.Context) ([]domain.Bank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	banks := make([]domain.Bank, 0, len(s.banks))
	for _, b := range s.banks {
		banks = append(banks, b)
	}
	slices.SortFunc(banks, func(a, b domain.Bank) int {
		return cmpString(a.Name, b.Name)
	})
	return banks, nil
}

func (s *Store) DeleteBank(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.banks[id]; !exists {
		return store.ErrNotFound
	}
	for _, p := range s.payments {
		if p.BankID == id {
			return fmt.Errorf("bank has payments: %w", store.ErrConflict)
		}
	}
	delete(s.banks, id)
	return nil
}

func (s *Store) BankHasPayments(_ context.Context, bankID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.payments {
		if p.BankID == bankID {
			return true, nil
		}
	}
	return false, nil
}

// applyMovementLocked mutates the ledger row for productID. Callers must
// hold the write lock. Counters are clamped at zero so reversals of
// partially reverted rows cannot underflow the cumulative totals.
func (s *Store) applyMovementLocked(productID string, deltaIn, deltaOut, deltaAdj int64) domain.LedgerEntry {
	entry, ok := s.ledger[productID]
	if !ok {
		entry = domain.LedgerEntry{
			ID:        xid.New("led"),
			ProductID: productID,
		}
	}
	entry.QuantityIn = max(0, entry.QuantityIn+deltaIn)
	entry.QuantityOut = max(0, entry.QuantityOut+deltaOut)
	entry.AdjustmentTotal += deltaAdj
	entry.CurrentStock = entry.QuantityIn - entry.QuantityOut + entry.AdjustmentTotal
	entry.UpdatedAt = time.Now().UTC()
	s.ledger[productID] = entry
	return entry
}

func (s *Store) ApplyMovement(_ context.Context, movement store.Movement) (*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if movement.ProductID == "" {
		return nil, store.ErrValidation
	}
	entry := s.applyMovementLocked(movement.ProductID, movement.DeltaIn, movement.DeltaOut, movement.DeltaAdjustment)
	return &entry, nil
}

func (s *Store) GetLedger(_ context.Context, productID string) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.ledger[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := entry
	return &found, nil
}

// latestPurchaseLocked returns the most recent purchase for a product by
// purchase date, then insertion time. Nil when the product was never bought.
func (s *Store) latestPurchaseLocked(productID string) *domain.Purchase {
	var latest *domain.Purchase
	for id := range s.purchases {
		p := s.purchases[id]
		if p.ProductID != productID {
			continue
		}
		if latest == nil || p.Date.After(latest.Date) ||
			(p.Date.Equal(latest.Date) && p.CreatedAt.After(latest.CreatedAt)) {
			found := p
			latest = &found
		}
	}
	return latest
}

func (s *Store) LatestPurchase(_ context.Context, productID string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := s.latestPurchaseLocked(productID)
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (s *Store) ListLedger(_ context.Context) (*domain.LedgerValuationReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := &domain.LedgerValuationReport{
		Items:      make([]domain.LedgerValuation, 0, len(s.ledger)),
		GrandTotal: decimal.Zero,
	}
	for productID, entry := range s.ledger {
		cost := decimal.Zero
		if latest := s.latestPurchaseLocked(productID); latest != nil {
			cost = latest.UnitCost
		}
		value := cost.Mul(decimal.NewFromInt(entry.CurrentStock))
		report.Items = append(report.Items, domain.LedgerValuation{
			ProductID:    productID,
			ProductName:  s.products[productID].Name,
			CurrentStock: entry.CurrentStock,
			LatestCost:   cost,
			StockValue:   value,
		})
		report.GrandTotal = report.GrandTotal.Add(value)
	}
	slices.SortFunc(report.Items, func(a, b domain.LedgerValuation) int {
		return cmpString(a.ProductName, b.ProductName)
	})
	return report, nil
}

func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if purchase.InvoiceRef == "" || purchase.Quantity < 1 || purchase.UnitCost.IsNegative() {
		return nil, store.ErrValidation
	}
	product, exists := s.products[purchase.ProductID]
	if !exists {
		return nil, fmt.Errorf("product %s: %w", purchase.ProductID, store.ErrNotFound)
	}
	if purchase.VendorID != "" {
		if _, ok := s.vendors[purchase.VendorID]; !ok {
			return nil, fmt.Errorf("vendor %s: %w", purchase.VendorID, store.ErrNotFound)
		}
	}
	for _, existing := range s.purchases {
		if existing.InvoiceRef == purchase.InvoiceRef {
			return nil, fmt.Errorf("invoice ref %s: %w", purchase.InvoiceRef, store.ErrConflict)
		}
	}

	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	now := time.Now().UTC()
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = now
	}
	if purchase.Date.IsZero() {
		purchase.Date = now
	}
	purchase.TotalCost = purchase.UnitCost.Mul(decimal.NewFromInt(purchase.Quantity))
	s.purchases[purchase.ID] = purchase

	s.applyMovementLocked(purchase.ProductID, purchase.Quantity, 0, 0)

	// Most-recent-cost policy: the product cost always reflects the latest
	// receipt, not a weighted average.
	product.CostPrice = purchase.UnitCost
	s.products[product.ID] = product

	created := purchase
	return &created, nil
}

func (s *Store) GetPurchaseByID(_ context.Context, id string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchase, exists := s.purchases[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	purchase.ProductName = s.products[purchase.ProductID].Name
	purchase.VendorName = s.vendors[purchase.VendorID].Name
	found := purchase
	return &found, nil
}

func (s *Store) ListPurchases(_ context.Context, filter domain.PurchaseFilter) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchases := make([]domain.Purchase, 0, len(s.purchases))
	for _, p := range s.purchases {
		if filter.ProductID != "" && p.ProductID != filter.ProductID {
			continue
		}
		if filter.VendorID != "" && p.VendorID != filter.VendorID {
			continue
		}
		if filter.InvoiceRef != "" && !strings.Contains(strings.ToLower(p.InvoiceRef), strings.ToLower(filter.InvoiceRef)) {
			continue
		}
		if filter.DateFrom != nil && p.Date.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && !p.Date.Before(*filter.DateTo) {
			continue
		}
		p.ProductName = s.products[p.ProductID].Name
		p.VendorName = s.vendors[p.VendorID].Name
		purchases = append(purchases, p)
	}
	slices.SortFunc(purchases, func(a, b domain.Purchase) int {
		if a.Date.Equal(b.Date) {
			return cmpString(b.ID, a.ID)
		}
		if a.Date.After(b.Date) {
			return -1
		}
		return 1
	})
	return purchases, nil
}

func (s *Store) UpdatePurchase(_ context.Context, id string, patch domain.PurchaseUpdateRequest) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchase, exists := s.purchases[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	old := purchase

	if patch.InvoiceRef != nil {
		for otherID, other := range s.purchases {
			if otherID != id && other.InvoiceRef == *patch.InvoiceRef {
				return nil, fmt.Errorf("invoice ref %s: %w", *patch.InvoiceRef, store.ErrConflict)
			}
		}
		purchase.InvoiceRef = *patch.InvoiceRef
	}
	if patch.ProductID != nil {
		if _, ok := s.products[*patch.ProductID]; !ok {
			return nil, fmt.Errorf("product %s: %w", *patch.ProductID, store.ErrNotFound)
		}
		purchase.ProductID = *patch.ProductID
	}
	if patch.VendorID != nil {
		if *patch.VendorID != "" {
			if _, ok := s.vendors[*patch.VendorID]; !ok {
				return nil, fmt.Errorf("vendor %s: %w", *patch.VendorID, store.ErrNotFound)
			}
		}
		purchase.VendorID = *patch.VendorID
	}
	if patch.Quantity != nil {
		if *patch.Quantity < 1 {
			return nil, store.ErrValidation
		}
		purchase.Quantity = *patch.Quantity
	}
	if patch.UnitCost != nil {
		if patch.UnitCost.IsNegative() {
			return nil, store.ErrValidation
		}
		purchase.UnitCost = *patch.UnitCost
	}
	if patch.Date != nil {
		purchase.Date = *patch.Date
	}
	purchase.TotalCost = purchase.UnitCost.Mul(decimal.NewFromInt(purchase.Quantity))

	// Reverse the old receipt before applying the new one; the two may
	// target different products.
	s.applyMovementLocked(old.ProductID, -old.Quantity, 0, 0)
	s.applyMovementLocked(purchase.ProductID, purchase.Quantity, 0, 0)

	product := s.products[purchase.ProductID]
	product.CostPrice = purchase.UnitCost
	s.products[product.ID] = product

	s.purchases[id] = purchase
	updated := purchase
	return &updated, nil
}

func (s *Store) DeletePurchase(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchase, exists := s.purchases[id]
	if !exists {
		return store.ErrNotFound
	}
	s.applyMovementLocked(purchase.ProductID, -purchase.Quantity, 0, 0)
	delete(s.purchases, id)
	return nil
}

func (s *Store) nextInvoiceLocked() string {
	s.invoiceSeq++
	return fmt.Sprintf("INV-%06d", s.invoiceSeq)
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Lines) == 0 {
		return nil, nil, fmt.Errorf("sale needs at least one line: %w", store.ErrValidation)
	}

	now := time.Now().UTC()
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	if sale.Date.IsZero() {
		sale.Date = now
	}

	// First pass validates every line and resolves names, frozen costs and
	// amounts without touching the ledger or the invoice sequence, so a bad
	// line leaves no partial state behind.
	var warnings []string
	total := decimal.Zero
	seen := make(map[string]bool, len(sale.Lines))
	for i := range sale.Lines {
		line := &sale.Lines[i]
		product, ok := s.products[line.ProductID]
		if !ok {
			return nil, nil, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
		}
		if seen[line.ProductID] {
			return nil, nil, fmt.Errorf("product %s appears twice: %w", product.Name, store.ErrConflict)
		}
		seen[line.ProductID] = true
		if line.Quantity < 1 || line.SellingPrice.IsNegative() || line.Discount.IsNegative() {
			return nil, nil, store.ErrValidation
		}

		line.ID = xid.New("lin")
		line.SaleID = sale.ID
		line.ProductName = product.Name
		line.CostPrice = decimal.Zero
		if latest := s.latestPurchaseLocked(line.ProductID); latest != nil {
			line.CostPrice = latest.UnitCost
		}
		line.GrossAmount = line.SellingPrice.Mul(decimal.NewFromInt(line.Quantity))
		line.NetAmount = line.GrossAmount.Sub(line.Discount)

		// Oversell is allowed on bulk creation; the shortfall is reported
		// as a warning instead of failing the whole invoice.
		entry := s.ledger[line.ProductID]
		if entry.CurrentStock < line.Quantity {
			warnings = append(warnings, fmt.Sprintf("insufficient stock for %s: requested %d, available %d", product.Name, line.Quantity, entry.CurrentStock))
		}

		total = total.Add(line.NetAmount)
	}

	// Second pass commits: the invoice number and the stock movements are
	// consumed only once the whole sale is known good.
	sale.InvoiceNumber = s.nextInvoiceLocked()
	for _, line := range sale.Lines {
		s.applyMovementLocked(line.ProductID, 0, line.Quantity, 0)
	}
	sale.TotalAmount = total
	sale.TotalPaid = decimal.Zero
	sale.BalanceDue = total
	sale.Status = domain.SaleStatusPending

	stored := sale
	s.sales[sale.ID] = &stored
	created := sale
	return &created, warnings, nil
}

// settleLocked recomputes the paid/balance/status view of a sale from all
// of its payments. Status is a pure function of (total, paid), never an
// incrementally patched field.
func (s *Store) settleLocked(sale domain.Sale) domain.Sale {
	paid := decimal.Zero
	for _, p := range s.payments {
		if p.SaleID == sale.ID {
			paid = paid.Add(p.AmountPaid)
		}
	}
	sale.TotalPaid = paid
	sale.BalanceDue = sale.TotalAmount.Sub(paid)
	switch {
	case paid.IsZero():
		sale.Status = domain.SaleStatusPending
	case sale.BalanceDue.IsPositive():
		sale.Status = domain.SaleStatusPartPaid
	default:
		sale.Status = domain.SaleStatusCompleted
	}
	return sale
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.sales[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := s.settleLocked(*sale)
	found.Lines = slices.Clone(sale.Lines)
	return &found, nil
}

func (s *Store) GetSaleByInvoice(_ context.Context, invoice string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sale := range s.sales {
		if sale.InvoiceNumber == invoice {
			found := s.settleLocked(*sale)
			found.Lines = slices.Clone(sale.Lines)
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if filter.Staff != "" && sale.Staff != filter.Staff {
			continue
		}
		if filter.Customer != "" && !strings.Contains(strings.ToLower(sale.CustomerName), strings.ToLower(filter.Customer)) {
			continue
		}
		if filter.DateFrom != nil && sale.Date.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && !sale.Date.Before(*filter.DateTo) {
			continue
		}
		settled := s.settleLocked(*sale)
		settled.Lines = slices.Clone(sale.Lines)
		sales = append(sales, settled)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.Date.Equal(b.Date) {
			return cmpString(b.InvoiceNumber, a.InvoiceNumber)
		}
		if a.Date.After(b.Date) {
			return -1
		}
		return 1
	})
	return sales, nil
}

func (s *Store) AppendSaleLine(_ context.Context, saleID string, line domain.SaleLine) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.sales[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	product, ok := s.products[line.ProductID]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
	}
	for _, existing := range sale.Lines {
		if existing.ProductID == line.ProductID {
			return nil, fmt.Errorf("product %s already on invoice: %w", product.Name, store.ErrConflict)
		}
	}
	if line.Quantity < 1 || line.SellingPrice.IsNegative() || line.Discount.IsNegative() {
		return nil, store.ErrValidation
	}

	// Single-line append is the blocking path: no oversell here.
	entry := s.ledger[line.ProductID]
	if entry.CurrentStock < line.Quantity {
		return nil, fmt.Errorf("%s has %d in stock: %w", product.Name, entry.CurrentStock, store.ErrInsufficientStock)
	}

	line.ID = xid.New("lin")
	line.SaleID = saleID
	line.ProductName = product.Name
	line.CostPrice = decimal.Zero
	if latest := s.latestPurchaseLocked(line.ProductID); latest != nil {
		line.CostPrice = latest.UnitCost
	}
	line.GrossAmount = line.SellingPrice.Mul(decimal.NewFromInt(line.Quantity))
	line.NetAmount = line.GrossAmount.Sub(line.Discount)

	s.applyMovementLocked(line.ProductID, 0, line.Quantity, 0)
	sale.Lines = append(sale.Lines, line)
	sale.TotalAmount = sale.TotalAmount.Add(line.NetAmount)

	updated := s.settleLocked(*sale)
	updated.Lines = slices.Clone(sale.Lines)
	return &updated, nil
}

func (s *Store) UpdateSaleLine(_ context.Context, saleID string, lineID string, patch domain.SaleLineUpdateRequest) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.sales[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	idx := slices.IndexFunc(sale.Lines, func(l domain.SaleLine) bool { return l.ID == lineID })
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	old := sale.Lines[idx]
	line := old

	if patch.ProductID != nil && *patch.ProductID != line.ProductID {
		product, ok := s.products[*patch.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", *patch.ProductID, store.ErrNotFound)
		}
		for _, existing := range sale.Lines {
			if existing.ID != lineID && existing.ProductID == *patch.ProductID {
				return nil, fmt.Errorf("product %s already on invoice: %w", product.Name, store.ErrConflict)
			}
		}
		line.ProductID = *patch.ProductID
		line.ProductName = product.Name
		// Moving the line to another product re-freezes the cost from that
		// product's latest purchase.
		line.CostPrice = decimal.Zero
		if latest := s.latestPurchaseLocked(line.ProductID); latest != nil {
			line.CostPrice = latest.UnitCost
		}
	}
	if patch.Quantity != nil {
		if *patch.Quantity < 1 {
			return nil, store.ErrValidation
		}
		line.Quantity = *patch.Quantity
	}
	if patch.SellingPrice != nil {
		if patch.SellingPrice.IsNegative() {
			return nil, store.ErrValidation
		}
		line.SellingPrice = *patch.SellingPrice
	}
	if patch.Discount != nil {
		if patch.Discount.IsNegative() {
			return nil, store.ErrValidation
		}
		line.Discount = *patch.Discount
	}
	line.GrossAmount = line.SellingPrice.Mul(decimal.NewFromInt(line.Quantity))
	line.NetAmount = line.GrossAmount.Sub(line.Discount)

	if line.ProductID == old.ProductID {
		s.applyMovementLocked(line.ProductID, 0, line.Quantity-old.Quantity, 0)
	} else {
		s.applyMovementLocked(old.ProductID, 0, -old.Quantity, 0)
		s.applyMovementLocked(line.ProductID, 0, line.Quantity, 0)
	}

	sale.Lines[idx] = line
	total := decimal.Zero
	for _, l := range sale.Lines {
		total = total.Add(l.NetAmount)
	}
	sale.TotalAmount = total

	updated := s.settleLocked(*sale)
	updated.Lines = slices.Clone(sale.Lines)
	return &updated, nil
}

func (s *Store) deleteSaleLocked(sale *domain.Sale) {
	for _, line := range sale.Lines {
		s.applyMovementLocked(line.ProductID, 0, -line.Quantity, 0)
	}
	delete(s.sales, sale.ID)
}

func (s *Store) DeleteSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.sales[id]
	if !exists {
		return store.ErrNotFound
	}
	for _, p := range s.payments {
		if p.SaleID == id {
			return fmt.Errorf("sale has payments: %w", store.ErrConflict)
		}
	}
	s.deleteSaleLocked(sale)
	return nil
}

func (s *Store) DeleteAllSales(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.payments {
		if _, ok := s.sales[p.SaleID]; ok {
			return 0, fmt.Errorf("sales have payments: %w", store.ErrConflict)
		}
	}
	count := 0
	for _, sale := range s.sales {
		s.deleteSaleLocked(sale)
		count++
	}
	// Invoice numbering restarts once the book is emptied.
	s.invoiceSeq = 0
	return count, nil
}

func (s *Store) CreatePayment(_ context.Context, payment domain.Payment) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.sales[payment.SaleID]
	if !exists {
		return nil, fmt.Errorf("sale %s: %w", payment.SaleID, store.ErrNotFound)
	}
	if !payment.AmountPaid.IsPositive() {
		return nil, store.ErrValidation
	}

	settled := s.settleLocked(*sale)
	remaining := settled.BalanceDue
	if payment.AmountPaid.GreaterThan(remaining) {
		return nil, fmt.Errorf("amount %s exceeds remaining %s: %w", payment.AmountPaid, remaining, store.ErrOverpayment)
	}

	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	if payment.Date.IsZero() {
		payment.Date = now
	}
	payment.InvoiceRef = sale.InvoiceNumber
	payment.SaleTotal = sale.TotalAmount
	payment.BalanceDue = remaining.Sub(payment.AmountPaid)
	payment.Status = settlementStatus(sale.TotalAmount, payment.BalanceDue)
	s.payments[payment.ID] = payment

	created := payment
	return &created, nil
}

// settlementStatus derives a payment's status from the sale total and the
// balance left after the payment. The balance==total branch is only
// reachable with a zero amount, which validation already rejects; it is
// kept as the boundary rule.
func settlementStatus(total, balance decimal.Decimal) string {
	switch {
	case balance.Equal(total):
		return domain.SaleStatusPending
	case balance.IsPositive():
		return domain.SaleStatusPartPaid
	default:
		return domain.SaleStatusCompleted
	}
}

func (s *Store) GetPaymentByID(_ context.Context, id string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payment, exists := s.payments[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	s.decoratePaymentLocked(&payment)
	found := payment
	return &found, nil
}

func (s *Store) decoratePaymentLocked(payment *domain.Payment) {
	payment.BankName = s.banks[payment.BankID].Name
	if sale, ok := s.sales[payment.SaleID]; ok {
		payment.Customer = sale.CustomerName
	}
}

func (s *Store) ListPayments(_ context.Context, filter domain.PaymentFilter) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]domain.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		if filter.InvoiceRef != "" && !strings.Contains(strings.ToLower(p.InvoiceRef), strings.ToLower(filter.InvoiceRef)) {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.BankID != "" && p.BankID != filter.BankID {
			continue
		}
		if filter.Method != "" && p.Method != filter.Method {
			continue
		}
		if filter.DateFrom != nil && p.Date.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && !p.Date.Before(*filter.DateTo) {
			continue
		}
		s.decoratePaymentLocked(&p)
		payments = append(payments, p)
	}
	slices.SortFunc(payments, func(a, b domain.Payment) int {
		if a.Date.Equal(b.Date) {
			return cmpString(b.ID, a.ID)
		}
		if a.Date.After(b.Date) {
			return -1
		}
		return 1
	})
	return payments, nil
}

func (s *Store) ListPaymentsBySale(_ context.Context, saleID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]domain.Payment, 0, 4)
	for _, p := range s.payments {
		if p.SaleID != saleID {
			continue
		}
		s.decoratePaymentLocked(&p)
		payments = append(payments, p)
	}
	slices.SortFunc(payments, func(a, b domain.Payment) int {
		if a.Date.Equal(b.Date) {
			return cmpString(a.ID, b.ID)
		}
		if a.Date.Before(b.Date) {
			return -1
		}
		return 1
	})
	return payments, nil
}

func (s *Store) UpdatePayment(_ context.Context, id string, patch domain.PaymentUpdateRequest) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, exists := s.payments[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	sale, ok := s.sales[payment.SaleID]
	if !ok {
		return nil, fmt.Errorf("sale %s: %w", payment.SaleID, store.ErrNotFound)
	}

	if patch.AmountPaid != nil {
		if !patch.AmountPaid.IsPositive() {
			return nil, store.ErrValidation
		}
		payment.AmountPaid = *patch.AmountPaid
	}
	if patch.Method != nil {
		payment.Method = *patch.Method
	}
	if patch.BankID != nil {
		payment.BankID = *patch.BankID
	}
	if patch.Date != nil {
		payment.Date = *patch.Date
	}

	// Recompute from every other payment rather than patching the old
	// snapshot, so repeated edits cannot drift.
	paidByOthers := decimal.Zero
	for otherID, other := range s.payments {
		if otherID != id && other.SaleID == payment.SaleID {
			paidByOthers = paidByOthers.Add(other.AmountPaid)
		}
	}
	remaining := sale.TotalAmount.Sub(paidByOthers)
	if payment.AmountPaid.GreaterThan(remaining) {
		return nil, fmt.Errorf("amount %s exceeds remaining %s: %w", payment.AmountPaid, remaining, store.ErrOverpayment)
	}
	payment.BalanceDue = remaining.Sub(payment.AmountPaid)
	payment.Status = settlementStatus(sale.TotalAmount, payment.BalanceDue)

	s.payments[id] = payment
	updated := payment
	return &updated, nil
}

func (s *Store) DeletePayment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.payments, id)
	return nil
}

func (s *Store) CreateAdjustment(_ context.Context, adjustment domain.StockAdjustment) (*domain.StockAdjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if adjustment.Quantity == 0 {
		return nil, store.ErrValidation
	}
	product, exists := s.products[adjustment.ProductID]
	if !exists {
		return nil, fmt.Errorf("product %s: %w", adjustment.ProductID, store.ErrNotFound)
	}

	entry := s.ledger[adjustment.ProductID]
	newStock := entry.QuantityIn - entry.QuantityOut + entry.AdjustmentTotal + adjustment.Quantity
	if newStock < 0 {
		return nil, fmt.Errorf("%s would reach %d: %w", product.Name, newStock, store.ErrNegativeStock)
	}

	updated := s.applyMovementLocked(adjustment.ProductID, 0, 0, adjustment.Quantity)

	if adjustment.ID == "" {
		adjustment.ID = xid.New("adj")
	}
	if adjustment.CreatedAt.IsZero() {
		adjustment.CreatedAt = time.Now().UTC()
	}
	adjustment.LedgerID = updated.ID
	adjustment.ProductName = product.Name
	s.adjustments[adjustment.ID] = adjustment

	created := adjustment
	return &created, nil
}

func (s *Store) ListAdjustments(_ context.Context, filter domain.AdjustmentFilter) ([]domain.StockAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adjustments := make([]domain.StockAdjustment, 0, len(s.adjustments))
	for _, a := range s.adjustments {
		if filter.ProductID != "" && a.ProductID != filter.ProductID {
			continue
		}
		if filter.DateFrom != nil && a.CreatedAt.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && !a.CreatedAt.Before(*filter.DateTo) {
			continue
		}
		a.ProductName = s.products[a.ProductID].Name
		adjustments = append(adjustments, a)
	}
	slices.SortFunc(adjustments, func(a, b domain.StockAdjustment) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return adjustments, nil
}

func (s *Store) DeleteAdjustment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	adjustment, exists := s.adjustments[id]
	if !exists {
		return store.ErrNotFound
	}
	s.applyMovementLocked(adjustment.ProductID, 0, 0, -adjustment.Quantity)
	delete(s.adjustments, id)
	return nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.ReferenceNo == "" || !expense.Amount.IsPositive() {
		return nil, store.ErrValidation
	}
	for _, existing := range s.expenses {
		if existing.ReferenceNo == expense.ReferenceNo && existing.Active {
			return nil, fmt.Errorf("reference %s: %w", expense.ReferenceNo, store.ErrConflict)
		}
	}
	if expense.BankID != "" {
		if _, ok := s.banks[expense.BankID]; !ok {
			return nil, fmt.Errorf("bank %s: %w", expense.BankID, store.ErrNotFound)
		}
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	now := time.Now().UTC()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now
	}
	if expense.Date.IsZero() {
		expense.Date = now
	}
	expense.Active = true
	s.expenses[expense.ID] = expense

	created := expense
	return &created, nil
}

func (s *Store) GetExpenseByID(_ context.Context, id string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expense, exists := s.expenses[id]
	if !exists || !expense.Active {
		return nil, store.ErrNotFound
	}
	expense.BankName = s.banks[expense.BankID].Name
	found := expense
	return &found, nil
}

func (s *Store) ListExpenses(_ context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		if !e.Active {
			continue
		}
		if filter.AccountType != "" && e.AccountType != filter.AccountType {
			continue
		}
		if filter.DateFrom != nil && e.Date.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && !e.Date.Before(*filter.DateTo) {
			continue
		}
		e.BankName = s.banks[e.BankID].Name
		expenses = append(expenses, e)
	}
	slices.SortFunc(expenses, func(a, b domain.Expense) int {
		if a.Date.Equal(b.Date) {
			return cmpString(b.ID, a.ID)
		}
		if a.Date.After(b.Date) {
			return -1
		}
		return 1
	})
	return expenses, nil
}

func (s *Store) DeactivateExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expense, exists := s.expenses[id]
	if !exists || !expense.Active {
		return store.ErrNotFound
	}
	expense.Active = false
	s.expenses[id] = expense
	return nil
}

func (s *Store) ProfitLoss(_ context.Context, from time.Time, to time.Time) (*domain.ProfitLossReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := &domain.ProfitLossReport{
		DateFrom:      from,
		DateTo:        to,
		TotalRevenue:  decimal.Zero,
		CostOfSales:   decimal.Zero,
		TotalExpenses: decimal.Zero,
	}

	revenueByCategory := map[string]decimal.Decimal{}
	for _, sale := range s.sales {
		if sale.Date.Before(from) || !sale.Date.Before(to) {
			continue
		}
		for _, line := range sale.Lines {
			category := s.categories[s.products[line.ProductID].CategoryID].Name
			revenueByCategory[category] = mapValue(revenueByCategory, category).Add(line.NetAmount)
			report.TotalRevenue = report.TotalRevenue.Add(line.NetAmount)
			report.CostOfSales = report.CostOfSales.Add(line.CostPrice.Mul(decimal.NewFromInt(line.Quantity)))
		}
	}
	for category, amount := range revenueByCategory {
		report.Revenue = append(report.Revenue, domain.ProfitLossRevenueLine{Category: category, Amount: amount})
	}
	slices.SortFunc(report.Revenue, func(a, b domain.ProfitLossRevenueLine) int {
		return cmpString(a.Category, b.Category)
	})
	report.GrossProfit = report.TotalRevenue.Sub(report.CostOfSales)

	expenseByType := map[string]decimal.Decimal{}
	for _, e := range s.expenses {
		if !e.Active || e.Date.Before(from) || !e.Date.Before(to) {
			continue
		}
		expenseByType[e.AccountType] = mapValue(expenseByType, e.AccountType).Add(e.Amount)
		report.TotalExpenses = report.TotalExpenses.Add(e.Amount)
	}
	for accountType, amount := range expenseByType {
		report.Expenses = append(report.Expenses, domain.ProfitLossExpenseLine{AccountType: accountType, Amount: amount})
	}
	slices.SortFunc(report.Expenses, func(a, b domain.ProfitLossExpenseLine) int {
		return cmpString(a.AccountType, b.AccountType)
	})
	report.NetProfit = report.GrossProfit.Sub(report.TotalExpenses)

	return report, nil
}

func (s *Store) SalesAnalysis(_ context.Context, from time.Time, to time.Time) ([]domain.SalesAnalysisRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProduct := map[string]*domain.SalesAnalysisRow{}
	for _, sale := range s.sales {
		if sale.Date.Before(from) || !sale.Date.Before(to) {
			continue
		}
		for _, line := range sale.Lines {
			row, ok := byProduct[line.ProductID]
			if !ok {
				row = &domain.SalesAnalysisRow{
					ProductID:   line.ProductID,
					ProductName: s.products[line.ProductID].Name,
					Revenue:     decimal.Zero,
					Cost:        decimal.Zero,
				}
				byProduct[line.ProductID] = row
			}
			row.QuantitySold += line.Quantity
			row.Revenue = row.Revenue.Add(line.NetAmount)
			row.Cost = row.Cost.Add(line.CostPrice.Mul(decimal.NewFromInt(line.Quantity)))
		}
	}

	rows := make([]domain.SalesAnalysisRow, 0, len(byProduct))
	for _, row := range byProduct {
		row.Margin = row.Revenue.Sub(row.Cost)
		rows = append(rows, *row)
	}
	slices.SortFunc(rows, func(a, b domain.SalesAnalysisRow) int {
		return cmpString(a.ProductName, b.ProductName)
	})
	return rows, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, len(s.auditLogs))
	copy(logs, s.auditLogs)
	slices.Reverse(logs)
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByName[user.Username]; exists {
		return fmt.Errorf("user %s: %w", user.Username, store.ErrConflict)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByName[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByName))
	for _, u := range s.usersByName {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByName[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByName[username] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByName[username]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := user
	return &found, nil
}

func mapValue(m map[string]decimal.Decimal, key string) decimal.Decimal {
	if v, ok := m[key]; ok {
		return v
	}
	return decimal.Zero
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
