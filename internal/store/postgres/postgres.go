package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"tokosinar/backend/internal/domain"
	"tokosinar/backend/internal/store"
	"tokosinar/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// applyMovement is the single write path for ledger counters. The upsert
// recomputes current_stock from the stored cumulative values plus the three
// deltas in one statement, so concurrent movements on the same product
// serialize on the row instead of racing through read-modify-write.
func applyMovement(ctx context.Context, q queryer, m store.Movement) (*domain.LedgerEntry, error) {
	if m.ProductID == "" {
		return nil, store.ErrValidation
	}
	var entry domain.LedgerEntry
	err := q.QueryRowContext(ctx, `
		INSERT INTO inventory_ledger (id, product_id, quantity_in, quantity_out, adjustment_total, current_stock, updated_at)
		VALUES ($1, $2, GREATEST(0, $3), GREATEST(0, $4), $5, GREATEST(0, $3) - GREATEST(0, $4) + $5, now())
		ON CONFLICT (product_id) DO UPDATE SET
			quantity_in = GREATEST(0, inventory_ledger.quantity_in + $3),
			quantity_out = GREATEST(0, inventory_ledger.quantity_out + $4),
			adjustment_total = inventory_ledger.adjustment_total + $5,
			current_stock = GREATEST(0, inventory_ledger.quantity_in + $3)
				- GREATEST(0, inventory_ledger.quantity_out + $4)
				+ inventory_ledger.adjustment_total + $5,
			updated_at = now()
		RETURNING id, product_id, quantity_in, quantity_out, adjustment_total, current_stock, updated_at
	`, xid.New("led"), m.ProductID, m.DeltaIn, m.DeltaOut, m.DeltaAdjustment).Scan(
		&entry.ID, &entry.ProductID, &entry.QuantityIn, &entry.QuantityOut,
		&entry.AdjustmentTotal, &entry.CurrentStock, &entry.UpdatedAt)
	if err != nil {
		return nil, err
	}
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	return &entry, nil
}

func (s *Store) ApplyMovement(ctx context.Context, movement store.Movement) (*domain.LedgerEntry, error) {
	return applyMovement(ctx, s.db, movement)
}

func (s *Store) GetLedger(ctx context.Context, productID string) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, quantity_in, quantity_out, adjustment_total, current_stock, updated_at
		FROM inventory_ledger
		WHERE product_id = $1
	`, productID).Scan(&entry.ID, &entry.ProductID, &entry.QuantityIn, &entry.QuantityOut,
		&entry.AdjustmentTotal, &entry.CurrentStock, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	return &entry, nil
}

func (s *Store) ListLedger(ctx context.Context) (*domain.LedgerValuationReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.product_id, p.name, l.current_stock,
			COALESCE((
				SELECT pu.unit_cost FROM purchases pu
				WHERE pu.product_id = l.product_id
				ORDER BY pu.date DESC, pu.created_at DESC
				LIMIT 1
			), 0)
		FROM inventory_ledger l
		JOIN products p ON p.id = l.product_id
		ORDER BY p.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report := &domain.LedgerValuationReport{
		Items:      make([]domain.LedgerValuation, 0, 128),
		GrandTotal: decimal.Zero,
	}
	for rows.Next() {
		var item domain.LedgerValuation
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.CurrentStock, &item.LatestCost); err != nil {
			return nil, err
		}
		item.StockValue = item.LatestCost.Mul(decimal.NewFromInt(item.CurrentStock))
		report.Items = append(report.Items, item)
		report.GrandTotal = report.GrandTotal.Add(item.StockValue)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrValidation
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, created_at)
		VALUES ($1, $2, $3)
	`, category.ID, category.Name, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("category %q: %w", category.Name, store.ErrConflict)
		}
		return nil, err
	}
	created := category
	return &created, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) GetCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	var c domain.Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at
		FROM categories
		WHERE lower(name) = lower($1)
	`, name).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.CategoryID == "" {
		return nil, store.ErrValidation
	}
	if product.SellingPrice.IsNegative() || product.CostPrice.IsNegative() {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, name, category_id, cost_price, selling_price, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`, product.ID, product.Name, product.CategoryID, product.CostPrice, product.SellingPrice, product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("product %q: %w", product.Name, store.ErrConflict)
		}
		return nil, err
	}

	// New products start with a zero-counter ledger row.
	if _, err := applyMovement(ctx, tx, store.Movement{ProductID: product.ID}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.name, p.category_id, c.name, p.cost_price, p.selling_price, p.active, p.created_at
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1
	`, id).Scan(&p.ID, &p.Name, &p.CategoryID, &p.CategoryName, &p.CostPrice, &p.SellingPrice, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.category_id, c.name, p.cost_price, p.selling_price, p.active, p.created_at
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE p.active = true
		ORDER BY c.name, p.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.CategoryID, &p.CategoryName, &p.CostPrice, &p.SellingPrice, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.CategoryID == "" {
		return nil, store.ErrValidation
	}
	if product.SellingPrice.IsNegative() || product.CostPrice.IsNegative() {
		return nil, store.ErrValidation
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category_id = $3, cost_price = $4, selling_price = $5, active = $6, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.CategoryID, product.CostPrice, product.SellingPrice, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := product
	return &updated, nil
}

func (s *Store) CreateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	if vendor.Name == "" {
		return nil, store.ErrValidation
	}
	if vendor.ID == "" {
		vendor.ID = xid.New("vnd")
	}
	if vendor.CreatedAt.IsZero() {
		vendor.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendors (id, name, phone, address, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, vendor.ID, vendor.Name, vendor.Phone, vendor.Address, vendor.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := vendor
	return &created, nil
}

func (s *Store) GetVendorByID(ctx context.Context, id string) (*domain.Vendor, error) {
	var v domain.Vendor
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, address, created_at
		FROM vendors
		WHERE id = $1
	`, id).Scan(&v.ID, &v.Name, &v.Phone, &v.Address, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (s *Store) ListVendors(ctx context.Context) ([]domain.Vendor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, address, created_at
		FROM vendors
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vendors := make([]domain.Vendor, 0, 32)
	for rows.Next() {
		var v domain.Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.Phone, &v.Address, &v.CreatedAt); err != nil {
			return nil, err
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

func (s *Store) DeleteVendor(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vendors WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateBank(ctx context.Context, bank domain.Bank) (*domain.Bank, error) {
	if bank.Name == "" {
		return nil, store.ErrValidation
	}
	if bank.ID == "" {
		bank.ID = xid.New("bnk")
	}
	if bank.CreatedAt.IsZero() {
		bank.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO banks (id, name, account_name, account_number, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, bank.ID, bank.Name, bank.AccountName, bank.AccountNumber, bank.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("bank %q: %w", bank.Name, store.ErrConflict)
		}
		return nil, err
	}
	created := bank
	return &created, nil
}

func (s *Store) GetBankByID(ctx context.Context, id string) (*domain.Bank, error) {
	var b domain.Bank
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, account_name, account_number, created_at
		FROM banks
		WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.AccountName, &b.AccountNumber, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) ListBanks(ctx context.Context) ([]domain.Bank, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, account_name, account_number, created_at
		FROM banks
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	banks := make([]domain.Bank, 0, 16)
	for rows.Next() {
		var b domain.Bank
		if err := rows.Scan(&b.ID, &b.Name, &b.AccountName, &b.AccountNumber, &b.CreatedAt); err != nil {
			return nil, err
		}
		banks = append(banks, b)
	}
	return banks, rows.Err()
}

func (s *Store) DeleteBank(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var used bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM payments WHERE bank_id = $1)
	`, id).Scan(&used); err != nil {
		return err
	}
	if used {
		return fmt.Errorf("bank has payments: %w", store.ErrConflict)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM banks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) BankHasPayments(ctx context.Context, bankID string) (bool, error) {
	var used bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM payments WHERE bank_id = $1)
	`, bankID).Scan(&used)
	return used, err
}

func latestPurchaseTx(ctx context.Context, q queryer, productID string) (*domain.Purchase, error) {
	var p domain.Purchase
	var vendorID sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT id, invoice_ref, product_id, vendor_id, quantity, unit_cost, total_cost, date, created_by, created_at
		FROM purchases
		WHERE product_id = $1
		ORDER BY date DESC, created_at DESC
		LIMIT 1
	`, productID).Scan(&p.ID, &p.InvoiceRef, &p.ProductID, &vendorID, &p.Quantity,
		&p.UnitCost, &p.TotalCost, &p.Date, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.VendorID = vendorID.String
	return &p, nil
}

func (s *Store) LatestPurchase(ctx context.Context, productID string) (*domain.Purchase, error) {
	return latestPurchaseTx(ctx, s.db, productID)
}

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if purchase.InvoiceRef == "" || purchase.Quantity < 1 || purchase.UnitCost.IsNegative() {
		return nil, store.ErrValidation
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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)
	`, purchase.ProductID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("product %s: %w", purchase.ProductID, store.ErrNotFound)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchases (id, invoice_ref, product_id, vendor_id, quantity, unit_cost, total_cost, date, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, purchase.ID, purchase.InvoiceRef, purchase.ProductID, nullIfEmpty(purchase.VendorID),
		purchase.Quantity, purchase.UnitCost, purchase.TotalCost, purchase.Date, purchase.CreatedBy, purchase.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("invoice ref %s: %w", purchase.InvoiceRef, store.ErrConflict)
		}
		return nil, err
	}

	if _, err := applyMovement(ctx, tx, store.Movement{ProductID: purchase.ProductID, DeltaIn: purchase.Quantity}); err != nil {
		return nil, err
	}

	// Most-recent-cost policy: product cost tracks the latest receipt.
	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET cost_price = $2, updated_at = now() WHERE id = $1
	`, purchase.ProductID, purchase.UnitCost); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := purchase
	return &created, nil
}

func (s *Store) GetPurchaseByID(ctx context.Context, id string) (*domain.Purchase, error) {
	var p domain.Purchase
	var vendorID, vendorName sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT pu.id, pu.invoice_ref, pu.product_id, pr.name, pu.vendor_id, v.name,
			pu.quantity, pu.unit_cost, pu.total_cost, pu.date, pu.created_by, pu.created_at
		FROM purchases pu
		JOIN products pr ON pr.id = pu.product_id
		LEFT JOIN vendors v ON v.id = pu.vendor_id
		WHERE pu.id = $1
	`, id).Scan(&p.ID, &p.InvoiceRef, &p.ProductID, &p.ProductName, &vendorID, &vendorName,
		&p.Quantity, &p.UnitCost, &p.TotalCost, &p.Date, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.VendorID = vendorID.String
	p.VendorName = vendorName.String
	return &p, nil
}

func (s *Store) ListPurchases(ctx context.Context, filter domain.PurchaseFilter) ([]domain.Purchase, error) {
	where := make([]string, 0, 5)
	args := make([]any, 0, 5)
	if filter.ProductID != "" {
		args = append(args, filter.ProductID)
		where = append(where, fmt.Sprintf("pu.product_id = $%d", len(args)))
	}
	if filter.VendorID != "" {
		args = append(args, filter.VendorID)
		where = append(where, fmt.Sprintf("pu.vendor_id = $%d", len(args)))
	}
	if filter.InvoiceRef != "" {
		args = append(args, "%"+filter.InvoiceRef+"%")
		where = append(where, fmt.Sprintf("pu.invoice_ref ILIKE $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		where = append(where, fmt.Sprintf("pu.date >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		where = append(where, fmt.Sprintf("pu.date < $%d", len(args)))
	}

	query := `
		SELECT pu.id, pu.invoice_ref, pu.product_id, pr.name, pu.vendor_id, v.name,
			pu.quantity, pu.unit_cost, pu.total_cost, pu.date, pu.created_by, pu.created_at
		FROM purchases pu
		JOIN products pr ON pr.id = pu.product_id
		LEFT JOIN vendors v ON v.id = pu.vendor_id
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY pu.date DESC, pu.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, 64)
	for rows.Next() {
		var p domain.Purchase
		var vendorID, vendorName sql.NullString
		if err := rows.Scan(&p.ID, &p.InvoiceRef, &p.ProductID, &p.ProductName, &vendorID, &vendorName,
			&p.Quantity, &p.UnitCost, &p.TotalCost, &p.Date, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.VendorID = vendorID.String
		p.VendorName = vendorName.String
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

func (s *Store) UpdatePurchase(ctx context.Context, id string, patch domain.PurchaseUpdateRequest) (*domain.Purchase, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var old domain.Purchase
	var vendorID sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT id, invoice_ref, product_id, vendor_id, quantity, unit_cost, total_cost, date, created_by, created_at
		FROM purchases
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&old.ID, &old.InvoiceRef, &old.ProductID, &vendorID, &old.Quantity,
		&old.UnitCost, &old.TotalCost, &old.Date, &old.CreatedBy, &old.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	old.VendorID = vendorID.String

	updated := old
	if patch.InvoiceRef != nil {
		updated.InvoiceRef = *patch.InvoiceRef
	}
	if patch.ProductID != nil {
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)
		`, *patch.ProductID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("product %s: %w", *patch.ProductID, store.ErrNotFound)
		}
		updated.ProductID = *patch.ProductID
	}
	if patch.VendorID != nil {
		updated.VendorID = *patch.VendorID
	}
	if patch.Quantity != nil {
		if *patch.Quantity < 1 {
			return nil, store.ErrValidation
		}
		updated.Quantity = *patch.Quantity
	}
	if patch.UnitCost != nil {
		if patch.UnitCost.IsNegative() {
			return nil, store.ErrValidation
		}
		updated.UnitCost = *patch.UnitCost
	}
	if patch.Date != nil {
		updated.Date = *patch.Date
	}
	updated.TotalCost = updated.UnitCost.Mul(decimal.NewFromInt(updated.Quantity))

	_, err = tx.ExecContext(ctx, `
		UPDATE purchases
		SET invoice_ref = $2, product_id = $3, vendor_id = $4, quantity = $5,
			unit_cost = $6, total_cost = $7, date = $8
		WHERE id = $1
	`, id, updated.InvoiceRef, updated.ProductID, nullIfEmpty(updated.VendorID),
		updated.Quantity, updated.UnitCost, updated.TotalCost, updated.Date)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("invoice ref %s: %w", updated.InvoiceRef, store.ErrConflict)
		}
		return nil, err
	}

	// Reverse the old receipt, then apply the new one; the two may target
	// different products.
	if _, err := applyMovement(ctx, tx, store.Movement{ProductID: old.ProductID, DeltaIn: -old.Quantity}); err != nil {
		return nil, err
	}
	if _, err := applyMovement(ctx, tx, store.Movement{ProductID: updated.ProductID, DeltaIn: updated.Quantity}); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET cost_price = $2, updated_at = now() WHERE id = $1
	`, updated.ProductID, updated.UnitCost); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeletePurchase(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var productID string
	var quantity int64
	err = tx.QueryRowContext(ctx, `
		SELECT product_id, quantity
		FROM purchases
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&productID, &quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	if _, err := applyMovement(ctx, tx, store.Movement{ProductID: productID, DeltaIn: -quantity}); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM purchases WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func nextInvoiceNumber(ctx context.Context, q queryer) (string, error) {
	var seq int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO counters (name, value)
		VALUES ('sale_invoice', 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value
	`).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%06d", seq), nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, []string, error) {
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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale.InvoiceNumber, err = nextInvoiceNumber(ctx, tx)
	if err != nil {
		return nil, nil, err
	}

	productIDs := make([]string, 0, len(sale.Lines))
	seen := make(map[string]bool, len(sale.Lines))
	for _, line := range sale.Lines {
		if seen[line.ProductID] {
			return nil, nil, fmt.Errorf("product %s appears twice: %w", line.ProductID, store.ErrConflict)
		}
		seen[line.ProductID] = true
		productIDs = append(productIDs, line.ProductID)
	}

	productRows, err := tx.QueryContext(ctx, `
		SELECT id, name FROM products WHERE id = ANY($1)
	`, productIDs)
	if err != nil {
		return nil, nil, err
	}
	productNames := make(map[string]string, len(productIDs))
	for productRows.Next() {
		var id, name string
		if err := productRows.Scan(&id, &name); err != nil {
			_ = productRows.Close()
			return nil, nil, err
		}
		productNames[id] = name
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, nil, err
	}
	_ = productRows.Close()

	stockRows, err := tx.QueryContext(ctx, `
		SELECT product_id, current_stock
		FROM inventory_ledger
		WHERE product_id = ANY($1)
		FOR UPDATE
	`, productIDs)
	if err != nil {
		return nil, nil, err
	}
	stockMap := make(map[string]int64, len(productIDs))
	for stockRows.Next() {
		var productID string
		var stock int64
		if err := stockRows.Scan(&productID, &stock); err != nil {
			_ = stockRows.Close()
			return nil, nil, err
		}
		stockMap[productID] = stock
	}
	if err := stockRows.Err(); err != nil {
		_ = stockRows.Close()
		return nil, nil, err
	}
	_ = stockRows.Close()

	var warnings []string
	total := decimal.Zero
	for i := range sale.Lines {
		line := &sale.Lines[i]
		name, exists := productNames[line.ProductID]
		if !exists {
			return nil, nil, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
		}
		if line.Quantity < 1 || line.SellingPrice.IsNegative() || line.Discount.IsNegative() {
			return nil, nil, store.ErrValidation
		}

		line.ID = xid.New("lin")
		line.SaleID = sale.ID
		line.ProductName = name
		line.CostPrice = decimal.Zero
		if latest, err := latestPurchaseTx(ctx, tx, line.ProductID); err == nil {
			line.CostPrice = latest.UnitCost
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, nil, err
		}
		line.GrossAmount = line.SellingPrice.Mul(decimal.NewFromInt(line.Quantity))
		line.NetAmount = line.GrossAmount.Sub(line.Discount)

		// Bulk creation tolerates oversell and reports it instead of
		// failing the invoice.
		if stockMap[line.ProductID] < line.Quantity {
			warnings = append(warnings, fmt.Sprintf("insufficient stock for %s: requested %d, available %d", name, line.Quantity, stockMap[line.ProductID]))
		}
		if _, err := applyMovement(ctx, tx, store.Movement{ProductID: line.ProductID, DeltaOut: line.Quantity}); err != nil {
			return nil, nil, err
		}

		total = total.Add(line.NetAmount)
	}
	sale.TotalAmount = total

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, invoice_number, customer_name, customer_phone, total_amount, staff, date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sale.ID, sale.InvoiceNumber, sale.CustomerName, sale.CustomerPhone, sale.TotalAmount, sale.Staff, sale.Date, sale.CreatedAt)
	if err != nil {
		return nil, nil, err
	}

	for _, line := range sale.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_lines (id, sale_id, product_id, quantity, selling_price, cost_price, gross_amount, discount, net_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, line.ID, line.SaleID, line.ProductID, line.Quantity, line.SellingPrice,
			line.CostPrice, line.GrossAmount, line.Discount, line.NetAmount)
		if err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	sale.TotalPaid = decimal.Zero
	sale.BalanceDue = total
	sale.Status = domain.SaleStatusPending
	return &sale, warnings, nil
}

const saleSelect = `
	SELECT s.id, s.invoice_number, s.customer_name, s.customer_phone, s.total_amount,
		s.staff, s.date, s.created_at,
		COALESCE((SELECT SUM(p.amount_paid) FROM payments p WHERE p.sale_id = s.id), 0)
	FROM sales s
`

func scanSale(row interface{ Scan(dest ...any) error }) (*domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(&sale.ID, &sale.InvoiceNumber, &sale.CustomerName, &sale.CustomerPhone,
		&sale.TotalAmount, &sale.Staff, &sale.Date, &sale.CreatedAt, &sale.TotalPaid)
	if err != nil {
		return nil, err
	}
	sale.BalanceDue = sale.TotalAmount.Sub(sale.TotalPaid)
	sale.Status = saleStatus(sale.TotalPaid, sale.BalanceDue)
	return &sale, nil
}

// saleStatus derives the settlement status from the paid total and the
// open balance; it is never stored.
func saleStatus(paid, balance decimal.Decimal) string {
	switch {
	case paid.IsZero():
		return domain.SaleStatusPending
	case balance.IsPositive():
		return domain.SaleStatusPartPaid
	default:
		return domain.SaleStatusCompleted
	}
}

func (s *Store) loadSaleLines(ctx context.Context, saleIDs []string) (map[string][]domain.SaleLine, error) {
	linesBySale := make(map[string][]domain.SaleLine, len(saleIDs))
	if len(saleIDs) == 0 {
		return linesBySale, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.sale_id, l.product_id, p.name, l.quantity, l.selling_price,
			l.cost_price, l.gross_amount, l.discount, l.net_amount
		FROM sale_lines l
		JOIN products p ON p.id = l.product_id
		WHERE l.sale_id = ANY($1)
		ORDER BY l.id
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ProductID, &line.ProductName, &line.Quantity,
			&line.SellingPrice, &line.CostPrice, &line.GrossAmount, &line.Discount, &line.NetAmount); err != nil {
			return nil, err
		}
		linesBySale[line.SaleID] = append(linesBySale[line.SaleID], line)
	}
	return linesBySale, rows.Err()
}

func (s *Store) getSale(ctx context.Context, where string, arg any) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, saleSelect+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	lines, err := s.loadSaleLines(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Lines = lines[sale.ID]
	return sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	return s.getSale(ctx, " WHERE s.id = $1", id)
}

func (s *Store) GetSaleByInvoice(ctx context.Context, invoice string) (*domain.Sale, error) {
	return s.getSale(ctx, " WHERE s.invoice_number = $1", invoice)
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 4)
	if filter.Staff != "" {
		args = append(args, filter.Staff)
		where = append(where, fmt.Sprintf("s.staff = $%d", len(args)))
	}
	if filter.Customer != "" {
		args = append(args, "%"+filter.Customer+"%")
		where = append(where, fmt.Sprintf("s.customer_name ILIKE $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		where = append(where, fmt.Sprintf("s.date >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		where = append(where, fmt.Sprintf("s.date < $%d", len(args)))
	}

	query := saleSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY s.date DESC, s.invoice_number DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	saleIDs := make([]string, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
		saleIDs = append(saleIDs, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	linesBySale, err := s.loadSaleLines(ctx, saleIDs)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Lines = linesBySale[sales[i].ID]
	}
	return sales, nil
}

func (s *Store) AppendSaleLine(ctx context.Context, saleID string, line domain.SaleLine) (*domain.Sale, error) {
	if line.Quantity < 1 || line.SellingPrice.IsNegative() || line.Discount.IsNegative() {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var total decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		SELECT total_amount FROM sales WHERE id = $1 FOR UPDATE
	`, saleID).Scan(&total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	var productName string
	err = tx.QueryRowContext(ctx, `
		SELECT name FROM products WHERE id = $1
	`, line.ProductID).Scan(&productName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
		}
		return nil, err
	}

	var duplicate bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM sale_lines WHERE sale_id = $1 AND product_id = $2)
	`, saleID, line.ProductID).Scan(&duplicate); err != nil {
		return nil, err
	}
	if duplicate {
		return nil, fmt.Errorf("product %s already on invoice: %w", productName, store.ErrConflict)
	}

	// Single-line append blocks on insufficient stock, unlike bulk
	// creation which only warns.
	var stock int64
	err = tx.QueryRowContext(ctx, `
		SELECT current_stock FROM inventory_ledger WHERE product_id = $1 FOR UPDATE
	`, line.ProductID).Scan(&stock)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if stock < line.Quantity {
		return nil, fmt.Errorf("%s has %d in stock: %w", productName, stock, store.ErrInsufficientStock)
	}

	line.ID = xid.New("lin")
	line.SaleID = saleID
	line.ProductName = productName
	line.CostPrice = decimal.Zero
	if latest, err := latestPurchaseTx(ctx, tx, line.ProductID); err == nil {
		line.CostPrice = latest.UnitCost
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	line.GrossAmount = line.SellingPrice.Mul(decimal.NewFromInt(line.Quantity))
	line.NetAmount = line.GrossAmount.Sub(line.Discount)

	if _, err := applyMovement(ctx, tx, store.Movement{ProductID: line.ProductID, DeltaOut: line.Quantity}); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sale_lines (id, sale_id, product_id, quantity, selling_price, cost_price, gross_amount, discount, net_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, line.ID, line.SaleID, line.ProductID, line.Quantity, line.SellingPrice,
		line.CostPrice, line.GrossAmount, line.Discount, line.NetAmount)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sales SET total_amount = total_amount + $2 WHERE id = $1
	`, saleID, line.NetAmount)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSaleByID(ctx, saleID)
}

func (s *Store) UpdateSaleLine(ctx context.Context, saleID string, lineID string, patch domain.SaleLineUpdateRequest) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var old domain.SaleLine
	err = tx.QueryRowContext(ctx, `
		SELECT id, sale_id, product_id, quantity, selling_price, cost_price, gross_amount, discount, net_amount
		FROM sale_lines
		WHERE id = $1 AND sale_id = $2
		FOR UPDATE
	`, lineID, saleID).Scan(&old.ID, &old.SaleID, &old.ProductID, &old.Quantity, &old.SellingPrice,
		&old.CostPrice, &old.GrossAmount, &old.Discount, &old.NetAmount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	line := old
	if patch.ProductID != nil && *patch.ProductID != line.ProductID {
		var productName string
		err = tx.QueryRowContext(ctx, `
			SELECT name FROM products WHERE id = $1
		`, *patch.ProductID).Scan(&productName)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("product %s: %w", *patch.ProductID, store.ErrNotFound)
			}
			return nil, err
		}
		var duplicate bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM sale_lines WHERE sale_id = $1 AND product_id = $2 AND id <> $3)
		`, saleID, *patch.ProductID, lineID).Scan(&duplicate); err != nil {
			return nil, err
		}
		if duplicate {
			return nil, fmt.Errorf("product %s already on invoice: %w", productName, store.ErrConflict)
		}
		line.ProductID = *patch.ProductID
		// The cost snapshot follows the product the line now points at.
		line.CostPrice = decimal.Zero
		if latest, err := latestPurchaseTx(ctx, tx, line.ProductID); err == nil {
			line.CostPrice = latest.UnitCost
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
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
		if _, err := applyMovement(ctx, tx, store.Movement{ProductID: line.ProductID, DeltaOut: line.Quantity - old.Quantity}); err != nil {
			return nil, err
		}
	} else {
		if _, err := applyMovement(ctx, tx, store.Movement{ProductID: old.ProductID, DeltaOut: -old.Quantity}); err != nil {
			return nil, err
		}
		if _, err := applyMovement(ctx, tx, store.Movement{ProductID: line.ProductID, DeltaOut: line.Quantity}); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sale_lines
		SET product_id = $2, quantity = $3, selling_price = $4, cost_price = $5,
			gross_amount = $6, discount = $7, net_amount = $8
		WHERE id = $1
	`, lineID, line.ProductID, line.Quantity, line.SellingPrice, line.CostPrice,
		line.GrossAmount, line.Discount, line.NetAmount)
	if err != nil {
		return nil, err
	}

	// The header total is always re-derived from the lines after an edit.
	_, err = tx.ExecContext(ctx, `
		UPDATE sales
		SET total_amount = (SELECT COALESCE(SUM(net_amount), 0) FROM sale_lines WHERE sale_id = $1)
		WHERE id = $1
	`, saleID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSaleByID(ctx, saleID)
}

func deleteSaleTx(ctx context.Context, tx *sql.Tx, saleID string) error {
	lineRows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity FROM sale_lines WHERE sale_id = $1
	`, saleID)
	if err != nil {
		return err
	}
	type lineRef struct {
		productID string
		quantity  int64
	}
	lines := make([]lineRef, 0, 8)
	for lineRows.Next() {
		var l lineRef
		if err := lineRows.Scan(&l.productID, &l.quantity); err != nil {
			_ = lineRows.Close()
			return err
		}
		lines = append(lines, l)
	}
	if err := lineRows.Err(); err != nil {
		_ = lineRows.Close()
		return err
	}
	_ = lineRows.Close()

	for _, l := range lines {
		if _, err := applyMovement(ctx, tx, store.Movement{ProductID: l.productID, DeltaOut: -l.quantity}); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_lines WHERE sale_id = $1`, saleID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID); err != nil {
		return err
	}
	return nil
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM sales WHERE id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}

	var hasPayments bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM payments WHERE sale_id = $1)
	`, id).Scan(&hasPayments); err != nil {
		return err
	}
	if hasPayments {
		return fmt.Errorf("sale has payments: %w", store.ErrConflict)
	}

	if err := deleteSaleTx(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) DeleteAllSales(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var hasPayments bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM payments)
	`).Scan(&hasPayments); err != nil {
		return 0, err
	}
	if hasPayments {
		return 0, fmt.Errorf("sales have payments: %w", store.ErrConflict)
	}

	saleRows, err := tx.QueryContext(ctx, `SELECT id FROM sales FOR UPDATE`)
	if err != nil {
		return 0, err
	}
	saleIDs := make([]string, 0, 64)
	for saleRows.Next() {
		var id string
		if err := saleRows.Scan(&id); err != nil {
			_ = saleRows.Close()
			return 0, err
		}
		saleIDs = append(saleIDs, id)
	}
	if err := saleRows.Err(); err != nil {
		_ = saleRows.Close()
		return 0, err
	}
	_ = saleRows.Close()

	for _, id := range saleIDs {
		if err := deleteSaleTx(ctx, tx, id); err != nil {
			return 0, err
		}
	}

	// Invoice numbering restarts once the book is emptied.
	if _, err := tx.ExecContext(ctx, `
		UPDATE counters SET value = 0 WHERE name = 'sale_invoice'
	`); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(saleIDs), nil
}

// paymentStatus is the snapshot status recorded on a payment row. The
// balance==total branch is only reachable with a zero amount, which
// validation already rejects; it is kept as the boundary rule.
func paymentStatus(total, balance decimal.Decimal) string {
	switch {
	case balance.Equal(total):
		return domain.SaleStatusPending
	case balance.IsPositive():
		return domain.SaleStatusPartPaid
	default:
		return domain.SaleStatusCompleted
	}
}

func (s *Store) CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	if !payment.AmountPaid.IsPositive() {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var invoiceNumber string
	var total decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		SELECT invoice_number, total_amount FROM sales WHERE id = $1 FOR UPDATE
	`, payment.SaleID).Scan(&invoiceNumber, &total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sale %s: %w", payment.SaleID, store.ErrNotFound)
		}
		return nil, err
	}

	var paid decimal.Decimal
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_paid), 0) FROM payments WHERE sale_id = $1
	`, payment.SaleID).Scan(&paid); err != nil {
		return nil, err
	}
	remaining := total.Sub(paid)
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
	payment.InvoiceRef = invoiceNumber
	payment.SaleTotal = total
	payment.BalanceDue = remaining.Sub(payment.AmountPaid)
	payment.Status = paymentStatus(total, payment.BalanceDue)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, sale_id, reference, amount_paid, method, bank_id, balance_due, status, date, received_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, payment.ID, payment.SaleID, payment.Reference, payment.AmountPaid, payment.Method,
		nullIfEmpty(payment.BankID), payment.BalanceDue, payment.Status, payment.Date, payment.ReceivedBy, payment.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("payment reference %s: %w", payment.Reference, store.ErrConflict)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := payment
	return &created, nil
}

const paymentSelect = `
	SELECT p.id, p.sale_id, s.invoice_number, p.reference, p.amount_paid, p.method,
		p.bank_id, b.name, p.balance_due, p.status, p.date, p.received_by, p.created_at,
		s.customer_name, s.total_amount
	FROM payments p
	JOIN sales s ON s.id = p.sale_id
	LEFT JOIN banks b ON b.id = p.bank_id
`

func scanPayment(row interface{ Scan(dest ...any) error }) (*domain.Payment, error) {
	var p domain.Payment
	var bankID, bankName sql.NullString
	err := row.Scan(&p.ID, &p.SaleID, &p.InvoiceRef, &p.Reference, &p.AmountPaid, &p.Method,
		&bankID, &bankName, &p.BalanceDue, &p.Status, &p.Date, &p.ReceivedBy, &p.CreatedAt,
		&p.Customer, &p.SaleTotal)
	if err != nil {
		return nil, err
	}
	p.BankID = bankID.String
	p.BankName = bankName.String
	return &p, nil
}

func (s *Store) GetPaymentByID(ctx context.Context, id string) (*domain.Payment, error) {
	payment, err := scanPayment(s.db.QueryRowContext(ctx, paymentSelect+" WHERE p.id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return payment, nil
}

func (s *Store) ListPayments(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, error) {
	where := make([]string, 0, 6)
	args := make([]any, 0, 6)
	if filter.InvoiceRef != "" {
		args = append(args, "%"+filter.InvoiceRef+"%")
		where = append(where, fmt.Sprintf("s.invoice_number ILIKE $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("p.status = $%d", len(args)))
	}
	if filter.BankID != "" {
		args = append(args, filter.BankID)
		where = append(where, fmt.Sprintf("p.bank_id = $%d", len(args)))
	}
	if filter.Method != "" {
		args = append(args, filter.Method)
		where = append(where, fmt.Sprintf("p.method = $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		where = append(where, fmt.Sprintf("p.date >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		where = append(where, fmt.Sprintf("p.date < $%d", len(args)))
	}

	query := paymentSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY p.date DESC, p.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 64)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}
	return payments, rows.Err()
}

func (s *Store) ListPaymentsBySale(ctx context.Context, saleID string) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, paymentSelect+`
		WHERE p.sale_id = $1
		ORDER BY p.date ASC, p.created_at ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 8)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}
	return payments, rows.Err()
}

func (s *Store) UpdatePayment(ctx context.Context, id string, patch domain.PaymentUpdateRequest) (*domain.Payment, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var payment domain.Payment
	var bankID sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT id, sale_id, reference, amount_paid, method, bank_id, balance_due, status, date, received_by, created_at
		FROM payments
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&payment.ID, &payment.SaleID, &payment.Reference, &payment.AmountPaid, &payment.Method,
		&bankID, &payment.BalanceDue, &payment.Status, &payment.Date, &payment.ReceivedBy, &payment.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	payment.BankID = bankID.String

	var total decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		SELECT total_amount FROM sales WHERE id = $1 FOR UPDATE
	`, payment.SaleID).Scan(&total)
	if err != nil {
		return nil, err
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

	// Recompute against every other payment rather than patching the old
	// snapshot, so repeated edits cannot drift.
	var paidByOthers decimal.Decimal
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_paid), 0) FROM payments WHERE sale_id = $1 AND id <> $2
	`, payment.SaleID, id).Scan(&paidByOthers); err != nil {
		return nil, err
	}
	remaining := total.Sub(paidByOthers)
	if payment.AmountPaid.GreaterThan(remaining) {
		return nil, fmt.Errorf("amount %s exceeds remaining %s: %w", payment.AmountPaid, remaining, store.ErrOverpayment)
	}
	payment.BalanceDue = remaining.Sub(payment.AmountPaid)
	payment.Status = paymentStatus(total, payment.BalanceDue)
	payment.SaleTotal = total

	_, err = tx.ExecContext(ctx, `
		UPDATE payments
		SET amount_paid = $2, method = $3, bank_id = $4, balance_due = $5, status = $6, date = $7
		WHERE id = $1
	`, id, payment.AmountPaid, payment.Method, nullIfEmpty(payment.BankID),
		payment.BalanceDue, payment.Status, payment.Date)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	updated := payment
	return &updated, nil
}

func (s *Store) DeletePayment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAdjustment(ctx context.Context, adjustment domain.StockAdjustment) (*domain.StockAdjustment, error) {
	if adjustment.Quantity == 0 {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var productName string
	err = tx.QueryRowContext(ctx, `
		SELECT name FROM products WHERE id = $1
	`, adjustment.ProductID).Scan(&productName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", adjustment.ProductID, store.ErrNotFound)
		}
		return nil, err
	}

	var entry domain.LedgerEntry
	err = tx.QueryRowContext(ctx, `
		SELECT id, quantity_in, quantity_out, adjustment_total
		FROM inventory_ledger
		WHERE product_id = $1
		FOR UPDATE
	`, adjustment.ProductID).Scan(&entry.ID, &entry.QuantityIn, &entry.QuantityOut, &entry.AdjustmentTotal)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	newStock := entry.QuantityIn - entry.QuantityOut + entry.AdjustmentTotal + adjustment.Quantity
	if newStock < 0 {
		return nil, fmt.Errorf("%s would reach %d: %w", productName, newStock, store.ErrNegativeStock)
	}

	updated, err := applyMovement(ctx, tx, store.Movement{ProductID: adjustment.ProductID, DeltaAdjustment: adjustment.Quantity})
	if err != nil {
		return nil, err
	}

	if adjustment.ID == "" {
		adjustment.ID = xid.New("adj")
	}
	if adjustment.CreatedAt.IsZero() {
		adjustment.CreatedAt = time.Now().UTC()
	}
	adjustment.LedgerID = updated.ID
	adjustment.ProductName = productName

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_adjustments (id, product_id, ledger_id, quantity, reason, adjusted_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, adjustment.ID, adjustment.ProductID, adjustment.LedgerID, adjustment.Quantity,
		adjustment.Reason, adjustment.AdjustedBy, adjustment.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := adjustment
	return &created, nil
}

func (s *Store) ListAdjustments(ctx context.Context, filter domain.AdjustmentFilter) ([]domain.StockAdjustment, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if filter.ProductID != "" {
		args = append(args, filter.ProductID)
		where = append(where, fmt.Sprintf("a.product_id = $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		where = append(where, fmt.Sprintf("a.created_at >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		where = append(where, fmt.Sprintf("a.created_at < $%d", len(args)))
	}

	query := `
		SELECT a.id, a.product_id, p.name, a.ledger_id, a.quantity, a.reason, a.adjusted_by, a.created_at
		FROM stock_adjustments a
		JOIN products p ON p.id = a.product_id
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	adjustments := make([]domain.StockAdjustment, 0, 32)
	for rows.Next() {
		var a domain.StockAdjustment
		if err := rows.Scan(&a.ID, &a.ProductID, &a.ProductName, &a.LedgerID, &a.Quantity,
			&a.Reason, &a.AdjustedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

func (s *Store) DeleteAdjustment(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var productID string
	var quantity int64
	err = tx.QueryRowContext(ctx, `
		SELECT product_id, quantity
		FROM stock_adjustments
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&productID, &quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	if _, err := applyMovement(ctx, tx, store.Movement{ProductID: productID, DeltaAdjustment: -quantity}); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stock_adjustments WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.ReferenceNo == "" || !expense.Amount.IsPositive() {
		return nil, store.ErrValidation
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, reference_no, description, amount, account_type, method, bank_id, date, active, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, expense.ID, expense.ReferenceNo, expense.Description, expense.Amount, expense.AccountType,
		expense.Method, nullIfEmpty(expense.BankID), expense.Date, expense.Active, expense.CreatedBy, expense.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("reference %s: %w", expense.ReferenceNo, store.ErrConflict)
		}
		return nil, err
	}
	created := expense
	return &created, nil
}

func (s *Store) GetExpenseByID(ctx context.Context, id string) (*domain.Expense, error) {
	var e domain.Expense
	var bankID, bankName sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT e.id, e.reference_no, e.description, e.amount, e.account_type, e.method,
			e.bank_id, b.name, e.date, e.active, e.created_by, e.created_at
		FROM expenses e
		LEFT JOIN banks b ON b.id = e.bank_id
		WHERE e.id = $1 AND e.active = true
	`, id).Scan(&e.ID, &e.ReferenceNo, &e.Description, &e.Amount, &e.AccountType, &e.Method,
		&bankID, &bankName, &e.Date, &e.Active, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	e.BankID = bankID.String
	e.BankName = bankName.String
	return &e, nil
}

func (s *Store) ListExpenses(ctx context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	where := []string{"e.active = true"}
	args := make([]any, 0, 3)
	if filter.AccountType != "" {
		args = append(args, filter.AccountType)
		where = append(where, fmt.Sprintf("e.account_type = $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		where = append(where, fmt.Sprintf("e.date >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		where = append(where, fmt.Sprintf("e.date < $%d", len(args)))
	}

	query := `
		SELECT e.id, e.reference_no, e.description, e.amount, e.account_type, e.method,
			e.bank_id, b.name, e.date, e.active, e.created_by, e.created_at
		FROM expenses e
		LEFT JOIN banks b ON b.id = e.bank_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY e.date DESC, e.created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 64)
	for rows.Next() {
		var e domain.Expense
		var bankID, bankName sql.NullString
		if err := rows.Scan(&e.ID, &e.ReferenceNo, &e.Description, &e.Amount, &e.AccountType, &e.Method,
			&bankID, &bankName, &e.Date, &e.Active, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.BankID = bankID.String
		e.BankName = bankName.String
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (s *Store) DeactivateExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses SET active = false WHERE id = $1 AND active = true
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ProfitLoss(ctx context.Context, from time.Time, to time.Time) (*domain.ProfitLossReport, error) {
	report := &domain.ProfitLossReport{
		DateFrom:      from,
		DateTo:        to,
		TotalRevenue:  decimal.Zero,
		CostOfSales:   decimal.Zero,
		TotalExpenses: decimal.Zero,
	}

	revenueRows, err := s.db.QueryContext(ctx, `
		SELECT c.name, COALESCE(SUM(l.net_amount), 0), COALESCE(SUM(l.cost_price * l.quantity), 0)
		FROM sale_lines l
		JOIN sales s ON s.id = l.sale_id
		JOIN products p ON p.id = l.product_id
		JOIN categories c ON c.id = p.category_id
		WHERE s.date >= $1 AND s.date < $2
		GROUP BY c.name
		ORDER BY c.name
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer revenueRows.Close()

	for revenueRows.Next() {
		var line domain.ProfitLossRevenueLine
		var cost decimal.Decimal
		if err := revenueRows.Scan(&line.Category, &line.Amount, &cost); err != nil {
			return nil, err
		}
		report.Revenue = append(report.Revenue, line)
		report.TotalRevenue = report.TotalRevenue.Add(line.Amount)
		report.CostOfSales = report.CostOfSales.Add(cost)
	}
	if err := revenueRows.Err(); err != nil {
		return nil, err
	}
	report.GrossProfit = report.TotalRevenue.Sub(report.CostOfSales)

	expenseRows, err := s.db.QueryContext(ctx, `
		SELECT account_type, COALESCE(SUM(amount), 0)
		FROM expenses
		WHERE active = true AND date >= $1 AND date < $2
		GROUP BY account_type
		ORDER BY account_type
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer expenseRows.Close()

	for expenseRows.Next() {
		var line domain.ProfitLossExpenseLine
		if err := expenseRows.Scan(&line.AccountType, &line.Amount); err != nil {
			return nil, err
		}
		report.Expenses = append(report.Expenses, line)
		report.TotalExpenses = report.TotalExpenses.Add(line.Amount)
	}
	if err := expenseRows.Err(); err != nil {
		return nil, err
	}
	report.NetProfit = report.GrossProfit.Sub(report.TotalExpenses)

	return report, nil
}

func (s *Store) SalesAnalysis(ctx context.Context, from time.Time, to time.Time) ([]domain.SalesAnalysisRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.product_id, p.name, COALESCE(SUM(l.quantity), 0),
			COALESCE(SUM(l.net_amount), 0), COALESCE(SUM(l.cost_price * l.quantity), 0)
		FROM sale_lines l
		JOIN sales s ON s.id = l.sale_id
		JOIN products p ON p.id = l.product_id
		WHERE s.date >= $1 AND s.date < $2
		GROUP BY l.product_id, p.name
		ORDER BY p.name
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.SalesAnalysisRow, 0, 64)
	for rows.Next() {
		var row domain.SalesAnalysisRow
		if err := rows.Scan(&row.ProductID, &row.ProductName, &row.QuantitySold, &row.Revenue, &row.Cost); err != nil {
			return nil, err
		}
		row.Margin = row.Revenue.Sub(row.Cost)
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.Username, store.ErrConflict)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
