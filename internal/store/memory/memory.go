// Package memory is the in-memory Repository used by tests and by the server
// when no DATABASE_URL is configured. A single mutex makes every multi-row
// mutation trivially atomic.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ayyanshiraz/inv/internal/domain"
	"github.com/ayyanshiraz/inv/internal/store"
)

type Store struct {
	mu         sync.RWMutex
	customers  map[string]domain.Customer
	products   map[string]domain.Product
	categories map[domain.CategoryKind]map[string]domain.Category
	invoices   map[string]domain.Invoice
}

func New() *Store {
	return &Store{
		customers: make(map[string]domain.Customer),
		products:  make(map[string]domain.Product),
		categories: map[domain.CategoryKind]map[string]domain.Category{
			domain.CustomerCategoryKind: {},
			domain.ProductCategoryKind:  {},
		},
		invoices: make(map[string]domain.Invoice),
	}
}

// NewSeeded returns a store pre-filled with a small demo book for dev mode.
func NewSeeded() *Store {
	s := New()
	owner := "owner-demo"

	for _, c := range []domain.Category{
		{ID: "CCAT-1", Name: "Wholesale", OwnerID: owner},
		{ID: "CCAT-2", Name: "Retail", OwnerID: owner},
	} {
		s.categories[domain.CustomerCategoryKind][c.ID] = c
	}
	for _, c := range []domain.Category{
		{ID: "PCAT-1", Name: "Cement", OwnerID: owner},
		{ID: "PCAT-2", Name: "Steel", OwnerID: owner},
	} {
		s.categories[domain.ProductCategoryKind][c.ID] = c
	}
	for _, p := range []domain.Product{
		{ID: "PROD-1", Name: "Cement 50kg", Category: "Cement", Unit: "Bags", Cost: domain.NewAmount(620), Price: domain.NewAmount(680), Stock: 1000, OwnerID: owner},
		{ID: "PROD-2", Name: "Rebar 12mm", Category: "Steel", Unit: "Tons", Cost: domain.NewAmount(255000), Price: domain.NewAmount(262000), Stock: 1000, OwnerID: owner},
		{ID: "PROD-3", Name: "Sand", Category: "", Unit: "Trolly", Cost: domain.NewAmount(4200), Price: domain.NewAmount(5000), Stock: 1000, OwnerID: owner},
	} {
		s.products[p.ID] = p
	}
	for _, c := range []domain.Customer{
		{ID: "CUST-1", Name: "Al Karam Traders", Phone: "0300-1111111", Category: "Wholesale", OpeningBalance: domain.NewAmount(15000), OwnerID: owner},
		{ID: "CUST-2", Name: "Bashir & Sons", Phone: "0301-2222222", Category: "Retail", OwnerID: owner},
	} {
		s.customers[c.ID] = c
	}
	return s
}

// ---- customers ----

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := customer
	return &copied, nil
}

func (s *Store) ListCustomers(_ context.Context, ownerID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listCustomersLocked(ownerID), nil
}

func (s *Store) listCustomersLocked(ownerID string) []domain.Customer {
	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if c.OwnerID == ownerID {
			customers = append(customers, c)
		}
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		if a.Name == b.Name {
			return strings.Compare(a.ID, b.ID)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return customers
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[customer.ID]; exists {
		return nil, store.ErrConflict
	}
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[customer.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.customers[customer.ID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.customers, id)
	return nil
}

// ---- products ----

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := product
	return &copied, nil
}

func (s *Store) ListProducts(_ context.Context, ownerID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listProductsLocked(ownerID), nil
}

func (s *Store) listProductsLocked(ownerID string) []domain.Product {
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.OwnerID == ownerID {
			products = append(products, p)
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return strings.Compare(a.ID, b.ID)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, currentID string, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[currentID]; !exists {
		return nil, store.ErrNotFound
	}
	if currentID != product.ID {
		if _, exists := s.products[product.ID]; exists {
			return nil, store.ErrConflict
		}
		delete(s.products, currentID)
	}
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
	return nil
}

func (s *Store) ApplyProductPriceUpdates(_ context.Context, ownerID string, updates []domain.ProductPriceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, update := range updates {
		product, exists := s.products[update.ID]
		if !exists || product.OwnerID != ownerID {
			return store.ErrNotFound
		}
	}
	for _, update := range updates {
		product := s.products[update.ID]
		product.Cost = update.Cost
		product.Price = update.Price
		s.products[update.ID] = product
	}
	return nil
}

// ---- categories ----

func (s *Store) GetCategory(_ context.Context, kind domain.CategoryKind, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, exists := s.categories[kind][id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := category
	return &copied, nil
}

func (s *Store) ListCategories(_ context.Context, kind domain.CategoryKind, ownerID string) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories[kind]))
	for _, c := range s.categories[kind] {
		if c.OwnerID == ownerID {
			categories = append(categories, c)
		}
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return strings.Compare(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) CreateCategory(_ context.Context, kind domain.CategoryKind, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[kind][category.ID]; exists {
		return nil, store.ErrConflict
	}
	s.categories[kind][category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) UpdateCategory(_ context.Context, kind domain.CategoryKind, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[kind][category.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.categories[kind][category.ID] = category
	updated := category
	return &updated, nil
}

func (s *Store) DeleteCategory(_ context.Context, kind domain.CategoryKind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.categories[kind], id)
	return nil
}

// ---- invoices ----

func (s *Store) GetInvoice(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, exists := s.invoices[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := copyInvoice(invoice)
	return &copied, nil
}

func (s *Store) ListInvoices(_ context.Context, ownerID string, filter store.InvoiceFilter) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	invoices := make([]domain.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		if inv.OwnerID != ownerID {
			continue
		}
		if filter.CustomerID != "" && inv.CustomerID != filter.CustomerID {
			continue
		}
		if filter.ExcludeHold && inv.IsHold {
			continue
		}
		if filter.ExcludeReturns && inv.IsReturn {
			continue
		}
		if search != "" && !s.matchesSearchLocked(inv, search) {
			continue
		}
		invoices = append(invoices, copyInvoice(inv))
	}

	slices.SortFunc(invoices, func(a, b domain.Invoice) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(invoices) > filter.Limit {
		invoices = invoices[:filter.Limit]
	}
	return invoices, nil
}

func (s *Store) matchesSearchLocked(inv domain.Invoice, search string) bool {
	if strings.Contains(strings.ToLower(inv.ID), search) {
		return true
	}
	customer, exists := s.customers[inv.CustomerID]
	if !exists {
		return false
	}
	return strings.Contains(strings.ToLower(customer.Name), search) ||
		strings.Contains(strings.ToLower(customer.Phone), search)
}

func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[invoice.ID]; exists {
		return nil, store.ErrConflict
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}
	stored := copyInvoice(invoice)
	s.invoices[invoice.ID] = stored
	created := copyInvoice(stored)
	return &created, nil
}

func (s *Store) CreateInvoices(_ context.Context, invoices []domain.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inv := range invoices {
		if _, exists := s.invoices[inv.ID]; exists {
			return store.ErrConflict
		}
	}
	now := time.Now().UTC()
	for _, inv := range invoices {
		if inv.CreatedAt.IsZero() {
			inv.CreatedAt = now
		}
		s.invoices[inv.ID] = copyInvoice(inv)
	}
	return nil
}

func (s *Store) ReplaceInvoice(_ context.Context, invoice domain.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.invoices[invoice.ID]
	if !exists {
		return store.ErrNotFound
	}
	// Header fields customer, totals, and hold flag are overwritten; the
	// return flag, creation time, and owner survive the edit.
	existing.CustomerID = invoice.CustomerID
	existing.TotalAmount = invoice.TotalAmount
	existing.PaidAmount = invoice.PaidAmount
	existing.DiscountAmount = invoice.DiscountAmount
	existing.IsHold = invoice.IsHold
	existing.Items = append([]domain.InvoiceItem(nil), invoice.Items...)
	s.invoices[invoice.ID] = existing
	return nil
}

func (s *Store) DeleteInvoice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.invoices, id)
	return nil
}

func (s *Store) DeleteInvoices(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.invoices, id)
	}
	return nil
}

func (s *Store) ApplyInvoicePatches(_ context.Context, patches []domain.InvoicePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, patch := range patches {
		if _, exists := s.invoices[patch.ID]; !exists {
			return store.ErrNotFound
		}
	}
	for _, patch := range patches {
		inv := s.invoices[patch.ID]
		if patch.PaidAmount != nil {
			inv.PaidAmount = *patch.PaidAmount
		}
		if patch.DiscountAmount != nil {
			inv.DiscountAmount = *patch.DiscountAmount
		}
		if patch.IsHold != nil {
			inv.IsHold = *patch.IsHold
		}
		s.invoices[patch.ID] = inv
	}
	return nil
}

func (s *Store) UpdateVoucherAmount(_ context.Context, id string, ownerID string, amount domain.Amount) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, exists := s.invoices[id]
	if !exists || inv.OwnerID != ownerID || !inv.TotalAmount.IsZero() {
		return 0, nil
	}
	inv.PaidAmount = amount
	s.invoices[id] = inv
	return 1, nil
}

func (s *Store) Snapshot(_ context.Context, ownerID string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]domain.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		if inv.OwnerID == ownerID {
			invoices = append(invoices, copyInvoice(inv))
		}
	}
	slices.SortFunc(invoices, func(a, b domain.Invoice) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})

	return &domain.Snapshot{
		Customers: s.listCustomersLocked(ownerID),
		Products:  s.listProductsLocked(ownerID),
		Invoices:  invoices,
	}, nil
}

func copyInvoice(inv domain.Invoice) domain.Invoice {
	copied := inv
	copied.Items = append([]domain.InvoiceItem(nil), inv.Items...)
	return copied
}
