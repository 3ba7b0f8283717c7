package store

import (
	"context"
	"errors"

	"github.com/ayyanshiraz/inv/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
)

// InvoiceFilter narrows ListInvoices. Zero value lists everything the owner has.
type InvoiceFilter struct {
	CustomerID     string
	ExcludeHold    bool
	ExcludeReturns bool
	// Search matches invoice id, customer name, or customer phone,
	// case-insensitive substring.
	Search string
	Limit  int
}

// Repository is the transactional store behind the ledger. Lookups by id are
// global (collision resolution must see other owners' rows); lists are always
// owner-scoped. Multi-row mutations are atomic: either every statement in the
// call applies or none does.
type Repository interface {
	// customers
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, ownerID string) ([]domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error

	// products
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, ownerID string) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, currentID string, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ApplyProductPriceUpdates(ctx context.Context, ownerID string, updates []domain.ProductPriceUpdate) error

	// categories, customer- and product-scoped (structurally identical)
	GetCategory(ctx context.Context, kind domain.CategoryKind, id string) (*domain.Category, error)
	ListCategories(ctx context.Context, kind domain.CategoryKind, ownerID string) ([]domain.Category, error)
	CreateCategory(ctx context.Context, kind domain.CategoryKind, category domain.Category) (*domain.Category, error)
	UpdateCategory(ctx context.Context, kind domain.CategoryKind, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, kind domain.CategoryKind, id string) error

	// invoices; headers and items always move together
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, ownerID string, filter InvoiceFilter) ([]domain.Invoice, error)
	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	CreateInvoices(ctx context.Context, invoices []domain.Invoice) error
	// ReplaceInvoice deletes all existing items, inserts the replacement set,
	// and overwrites the header, as one transaction. IsReturn is not touched.
	ReplaceInvoice(ctx context.Context, invoice domain.Invoice) error
	DeleteInvoice(ctx context.Context, id string) error
	DeleteInvoices(ctx context.Context, ids []string) error
	ApplyInvoicePatches(ctx context.Context, patches []domain.InvoicePatch) error
	// UpdateVoucherAmount sets paidAmount only on the row matching
	// {id, ownerID, totalAmount = 0}; returns the number of rows affected.
	UpdateVoucherAmount(ctx context.Context, id string, ownerID string, amount domain.Amount) (int64, error)

	// Snapshot reads the owner's customers, products, and invoices (with
	// items) in one consistent unit for report derivation.
	Snapshot(ctx context.Context, ownerID string) (*domain.Snapshot, error)
}
