// Package service implements the ledger operations on top of the repository:
// entity saves with collision resolution, the invoice lifecycle, bulk
// operations, and cached report derivation. Every method takes the owner id
// explicitly; nothing is read from ambient state.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayyanshiraz/inv/internal/cache"
	"github.com/ayyanshiraz/inv/internal/domain"
	"github.com/ayyanshiraz/inv/internal/ledger"
	"github.com/ayyanshiraz/inv/internal/store"
	"github.com/ayyanshiraz/inv/internal/xid"
)

const (
	customerIDPrefix = "CUST"
	productIDPrefix  = "PROD"
	invoiceIDPrefix  = "INV"

	searchLimit    = 20
	reportCacheTTL = 5 * time.Minute
)

var ErrInvalidCategoryKind = errors.New("invalid category kind")

type Service struct {
	repo  store.Repository
	cache cache.ReportCache
	log   zerolog.Logger
}

func New(repo store.Repository, reportCache cache.ReportCache, logger zerolog.Logger) *Service {
	if reportCache == nil {
		reportCache = cache.NoopReportCache{}
	}

	return &Service{
		repo:  repo,
		cache: reportCache,
		log:   logger,
	}
}

// ---- customers ----

func (s *Service) ListCustomers(ctx context.Context, ownerID string) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, ownerID)
}

// SaveCustomer is an upsert with cross-owner collision resolution: a blank id
// is auto-generated, an id owned by the caller is updated in place, and an id
// owned by someone else is silently suffixed and inserted as a new record.
func (s *Service) SaveCustomer(ctx context.Context, ownerID string, req domain.CustomerSaveRequest) (*domain.Customer, error) {
	customer := domain.Customer{
		ID:             strings.TrimSpace(req.ID),
		Name:           strings.TrimSpace(req.Name),
		Phone:          strings.TrimSpace(req.Phone),
		Address:        strings.TrimSpace(req.Address),
		Category:       strings.TrimSpace(req.Category),
		OpeningBalance: req.OpeningBalance,
		OwnerID:        ownerID,
	}
	if customer.ID == "" {
		customer.ID = xid.New(customerIDPrefix)
	}

	existing, err := s.repo.GetCustomer(ctx, customer.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if _, err := s.repo.CreateCustomer(ctx, customer); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case existing.OwnerID == ownerID:
		if _, err := s.repo.UpdateCustomer(ctx, customer); err != nil {
			return nil, err
		}
	default:
		customer.ID = xid.Suffix(customer.ID)
		if _, err := s.repo.CreateCustomer(ctx, customer); err != nil {
			return nil, err
		}
	}

	s.invalidate(ctx, ownerID)
	return &customer, nil
}

// DeleteCustomer is a silent no-op when the record is missing or owned by
// someone else.
func (s *Service) DeleteCustomer(ctx context.Context, ownerID string, id string) error {
	existing, err := s.repo.GetCustomer(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.OwnerID != ownerID {
		return nil
	}
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, ownerID)
	return nil
}

// CustomerBalance returns the running balance, zero for customers the owner
// cannot see.
func (s *Service) CustomerBalance(ctx context.Context, ownerID string, customerID string) (domain.Amount, error) {
	customer, err := s.repo.GetCustomer(ctx, customerID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Amount{}, nil
	}
	if err != nil {
		return domain.Amount{}, err
	}
	if customer.OwnerID != ownerID {
		return domain.Amount{}, nil
	}

	invoices, err := s.repo.ListInvoices(ctx, ownerID, store.InvoiceFilter{CustomerID: customerID})
	if err != nil {
		return domain.Amount{}, err
	}
	return ledger.CurrentBalance(*customer, invoices), nil
}

// CustomerInvoices lists a customer's active sales: returns and holds are
// excluded, newest first.
func (s *Service) CustomerInvoices(ctx context.Context, ownerID string, customerID string) ([]domain.Invoice, error) {
	return s.repo.ListInvoices(ctx, ownerID, store.InvoiceFilter{
		CustomerID:     customerID,
		ExcludeHold:    true,
		ExcludeReturns: true,
	})
}

// ---- products ----

func (s *Service) ListProducts(ctx context.Context, ownerID string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, ownerID)
}

// SaveProduct follows the same collision scheme as SaveCustomer, plus renames:
// when OriginalID names an existing record and differs from ID, the record is
// re-keyed in place. Renaming a foreign record is refused outright.
func (s *Service) SaveProduct(ctx context.Context, ownerID string, req domain.ProductSaveRequest) (*domain.Product, error) {
	product := domain.Product{
		ID:       strings.TrimSpace(req.ID),
		Name:     strings.TrimSpace(req.Name),
		Category: strings.TrimSpace(req.Category),
		Unit:     strings.TrimSpace(req.Unit),
		Cost:     req.Cost,
		Price:    req.Price,
		OwnerID:  ownerID,
	}
	if product.ID == "" {
		product.ID = xid.New(productIDPrefix)
	}

	originalID := strings.TrimSpace(req.OriginalID)
	if originalID != "" && originalID != product.ID {
		existing, err := s.repo.GetProduct(ctx, originalID)
		if err != nil {
			return nil, err
		}
		if existing.OwnerID != ownerID {
			return nil, store.ErrUnauthorized
		}
		product.Stock = existing.Stock
		if _, err := s.repo.UpdateProduct(ctx, originalID, product); err != nil {
			return nil, err
		}
		s.invalidate(ctx, ownerID)
		return &product, nil
	}

	existing, err := s.repo.GetProduct(ctx, product.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		product.Stock = defaultProductStock
		if _, err := s.repo.CreateProduct(ctx, product); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case existing.OwnerID == ownerID:
		product.Stock = existing.Stock
		if _, err := s.repo.UpdateProduct(ctx, product.ID, product); err != nil {
			return nil, err
		}
	default:
		product.ID = xid.Suffix(product.ID)
		product.Stock = defaultProductStock
		if _, err := s.repo.CreateProduct(ctx, product); err != nil {
			return nil, err
		}
	}

	s.invalidate(ctx, ownerID)
	return &product, nil
}

const defaultProductStock = 1000

func (s *Service) DeleteProduct(ctx context.Context, ownerID string, id string) error {
	existing, err := s.repo.GetProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.OwnerID != ownerID {
		return nil
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, ownerID)
	return nil
}

// BulkUpdateProductPrices applies cost/price to the owned subset of the given
// ids in one transaction. Foreign and unknown ids are dropped, not errors.
func (s *Service) BulkUpdateProductPrices(ctx context.Context, ownerID string, updates []domain.ProductPriceUpdate) (int, error) {
	owned := make([]domain.ProductPriceUpdate, 0, len(updates))
	for _, update := range updates {
		existing, err := s.repo.GetProduct(ctx, update.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if existing.OwnerID != ownerID {
			continue
		}
		owned = append(owned, update)
	}
	if len(owned) == 0 {
		return 0, nil
	}
	if err := s.repo.ApplyProductPriceUpdates(ctx, ownerID, owned); err != nil {
		return 0, err
	}
	s.invalidate(ctx, ownerID)
	return len(owned), nil
}

// ---- categories ----

func (s *Service) ListCategories(ctx context.Context, ownerID string, kind domain.CategoryKind) ([]domain.Category, error) {
	if !kind.Valid() {
		return nil, ErrInvalidCategoryKind
	}
	return s.repo.ListCategories(ctx, kind, ownerID)
}

func (s *Service) SaveCategory(ctx context.Context, ownerID string, kind domain.CategoryKind, req domain.CategorySaveRequest) (*domain.Category, error) {
	if !kind.Valid() {
		return nil, ErrInvalidCategoryKind
	}
	category := domain.Category{
		ID:      strings.TrimSpace(req.ID),
		Name:    strings.TrimSpace(req.Name),
		OwnerID: ownerID,
	}
	if category.ID == "" {
		category.ID = xid.New(kind.IDPrefix())
	}

	existing, err := s.repo.GetCategory(ctx, kind, category.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if _, err := s.repo.CreateCategory(ctx, kind, category); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case existing.OwnerID == ownerID:
		if _, err := s.repo.UpdateCategory(ctx, kind, category); err != nil {
			return nil, err
		}
	default:
		category.ID = xid.Suffix(category.ID)
		if _, err := s.repo.CreateCategory(ctx, kind, category); err != nil {
			return nil, err
		}
	}

	s.invalidate(ctx, ownerID)
	return &category, nil
}

func (s *Service) DeleteCategory(ctx context.Context, ownerID string, kind domain.CategoryKind, id string) error {
	if !kind.Valid() {
		return ErrInvalidCategoryKind
	}
	existing, err := s.repo.GetCategory(ctx, kind, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.OwnerID != ownerID {
		return nil
	}
	if err := s.repo.DeleteCategory(ctx, kind, id); err != nil {
		return err
	}
	s.invalidate(ctx, ownerID)
	return nil
}

// ---- invoices ----

// CreateInvoice inserts the header and items as one transaction. Amounts are
// taken as sent; the engine performs no validation beyond numeric coercion at
// the decode boundary.
func (s *Service) CreateInvoice(ctx context.Context, ownerID string, req domain.InvoiceRequest) (*domain.Invoice, error) {
	invoice := domain.Invoice{
		ID:             xid.New(invoiceIDPrefix),
		CustomerID:     req.CustomerID,
		TotalAmount:    req.TotalAmount,
		PaidAmount:     req.PaidAmount,
		DiscountAmount: req.DiscountAmount,
		IsReturn:       req.IsReturn,
		IsHold:         req.IsHold,
		CreatedAt:      time.Now().UTC(),
		OwnerID:        ownerID,
		Items:          itemsFromRequests(req.Items),
	}

	created, err := s.repo.CreateInvoice(ctx, invoice)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, ownerID)
	return created, nil
}

// UpdateInvoice replaces the header and the full item set atomically. The
// return flag and creation time are immutable; editing a foreign invoice is
// the one delete/update path that fails loudly instead of no-opping.
func (s *Service) UpdateInvoice(ctx context.Context, ownerID string, id string, req domain.InvoiceRequest) (*domain.Invoice, error) {
	existing, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.OwnerID != ownerID {
		return nil, store.ErrUnauthorized
	}

	replacement := domain.Invoice{
		ID:             id,
		CustomerID:     req.CustomerID,
		TotalAmount:    req.TotalAmount,
		PaidAmount:     req.PaidAmount,
		DiscountAmount: req.DiscountAmount,
		IsHold:         req.IsHold,
		Items:          itemsFromRequests(req.Items),
	}
	if err := s.repo.ReplaceInvoice(ctx, replacement); err != nil {
		return nil, err
	}
	s.invalidate(ctx, ownerID)
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) DeleteInvoice(ctx context.Context, ownerID string, id string) error {
	existing, err := s.repo.GetInvoice(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.OwnerID != ownerID {
		return nil
	}
	if err := s.repo.DeleteInvoice(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, ownerID)
	return nil
}

// InvoiceDetails returns nil without error when the invoice is missing or
// belongs to another owner, so existence never leaks across tenants.
func (s *Service) InvoiceDetails(ctx context.Context, ownerID string, id string) (*domain.Invoice, error) {
	invoice, err := s.repo.GetInvoice(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if invoice.OwnerID != ownerID {
		return nil, nil
	}
	return invoice, nil
}

func (s *Service) SearchInvoices(ctx context.Context, ownerID string, query string) ([]domain.Invoice, error) {
	if strings.TrimSpace(query) == "" {
		return []domain.Invoice{}, nil
	}
	return s.repo.ListInvoices(ctx, ownerID, store.InvoiceFilter{
		Search: query,
		Limit:  searchLimit,
	})
}

func (s *Service) ListInvoices(ctx context.Context, ownerID string, filter store.InvoiceFilter) ([]domain.Invoice, error) {
	return s.repo.ListInvoices(ctx, ownerID, filter)
}

// ProcessSmartReturn records a return built from caller-supplied items and a
// caller-computed total. Quantities are not checked against what remains
// returnable on the original invoice; the original id is only logged.
func (s *Service) ProcessSmartReturn(ctx context.Context, ownerID string, req domain.SmartReturnRequest) (*domain.Invoice, error) {
	invoice := domain.Invoice{
		ID:          xid.New(invoiceIDPrefix),
		CustomerID:  req.CustomerID,
		TotalAmount: req.TotalReturnAmount,
		IsReturn:    true,
		CreatedAt:   time.Now().UTC(),
		OwnerID:     ownerID,
		Items:       itemsFromRequests(req.Items),
	}

	created, err := s.repo.CreateInvoice(ctx, invoice)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("owner", ownerID).
		Str("invoice", created.ID).
		Str("original", req.OriginalInvoiceID).
		Str("amount", req.TotalReturnAmount.String()).
		Msg("smart return recorded")
	s.invalidate(ctx, ownerID)
	return created, nil
}

// ---- vouchers ----

// CreateVouchers records one zero-total, zero-item invoice per entry, all in
// a single transaction. A voucher's only effect on the ledger is -paidAmount.
func (s *Service) CreateVouchers(ctx context.Context, ownerID string, reqs []domain.VoucherRequest) ([]domain.Invoice, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	invoices := make([]domain.Invoice, 0, len(reqs))
	for _, req := range reqs {
		invoices = append(invoices, domain.Invoice{
			ID:         xid.New(invoiceIDPrefix),
			CustomerID: req.CustomerID,
			PaidAmount: req.Amount,
			CreatedAt:  now,
			OwnerID:    ownerID,
			Items:      []domain.InvoiceItem{},
		})
	}

	if err := s.repo.CreateInvoices(ctx, invoices); err != nil {
		return nil, err
	}
	s.invalidate(ctx, ownerID)
	return invoices, nil
}

// UpdateVoucher adjusts paidAmount only when the target row matches
// {id, owner, totalAmount = 0}; anything else affects zero rows and fails.
func (s *Service) UpdateVoucher(ctx context.Context, ownerID string, id string, amount domain.Amount) error {
	affected, err := s.repo.UpdateVoucherAmount(ctx, id, ownerID, amount)
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("voucher %s: %w", id, store.ErrNotFound)
	}
	s.invalidate(ctx, ownerID)
	return nil
}

// ---- bulk operations ----

// ownedInvoiceIDs filters ids down to invoices the owner actually holds.
// Every bulk operation intersects first, then applies atomically, so foreign
// ids degrade to partial success rather than an error.
func (s *Service) ownedInvoiceIDs(ctx context.Context, ownerID string, ids []string) ([]string, error) {
	owned := make([]string, 0, len(ids))
	for _, id := range ids {
		existing, err := s.repo.GetInvoice(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if existing.OwnerID != ownerID {
			continue
		}
		owned = append(owned, id)
	}
	return owned, nil
}

func (s *Service) BulkDeleteInvoices(ctx context.Context, ownerID string, ids []string) (int, error) {
	owned, err := s.ownedInvoiceIDs(ctx, ownerID, ids)
	if err != nil {
		return 0, err
	}
	if len(owned) == 0 {
		return 0, nil
	}
	if err := s.repo.DeleteInvoices(ctx, owned); err != nil {
		return 0, err
	}
	s.invalidate(ctx, ownerID)
	return len(owned), nil
}

// BulkMakeActive clears the hold flag, turning quotations into live invoices.
func (s *Service) BulkMakeActive(ctx context.Context, ownerID string, ids []string) (int, error) {
	owned, err := s.ownedInvoiceIDs(ctx, ownerID, ids)
	if err != nil {
		return 0, err
	}
	if len(owned) == 0 {
		return 0, nil
	}

	active := false
	patches := make([]domain.InvoicePatch, 0, len(owned))
	for _, id := range owned {
		patches = append(patches, domain.InvoicePatch{ID: id, IsHold: &active})
	}
	if err := s.repo.ApplyInvoicePatches(ctx, patches); err != nil {
		return 0, err
	}
	s.invalidate(ctx, ownerID)
	return len(patches), nil
}

// BulkMarkAsPaid sets paidAmount = totalAmount and clears the hold flag on
// owned non-return invoices. Returns are skipped: their balance effect comes
// from totalAmount alone and "paid" has no meaning for them.
func (s *Service) BulkMarkAsPaid(ctx context.Context, ownerID string, ids []string) (int, error) {
	active := false
	patches := make([]domain.InvoicePatch, 0, len(ids))
	for _, id := range ids {
		existing, err := s.repo.GetInvoice(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if existing.OwnerID != ownerID || existing.IsReturn {
			continue
		}
		paid := existing.TotalAmount
		patches = append(patches, domain.InvoicePatch{ID: id, PaidAmount: &paid, IsHold: &active})
	}
	if len(patches) == 0 {
		return 0, nil
	}
	if err := s.repo.ApplyInvoicePatches(ctx, patches); err != nil {
		return 0, err
	}
	s.invalidate(ctx, ownerID)
	return len(patches), nil
}

// BulkUpdatePayments sets paid and discount per invoice and clears the hold
// flag, so recording a payment always activates the invoice.
func (s *Service) BulkUpdatePayments(ctx context.Context, ownerID string, updates []domain.PaymentUpdate) (int, error) {
	active := false
	patches := make([]domain.InvoicePatch, 0, len(updates))
	for _, update := range updates {
		existing, err := s.repo.GetInvoice(ctx, update.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if existing.OwnerID != ownerID {
			continue
		}
		paid := update.PaidAmount
		discount := update.DiscountAmount
		patches = append(patches, domain.InvoicePatch{ID: update.ID, PaidAmount: &paid, DiscountAmount: &discount, IsHold: &active})
	}
	if len(patches) == 0 {
		return 0, nil
	}
	if err := s.repo.ApplyInvoicePatches(ctx, patches); err != nil {
		return 0, err
	}
	s.invalidate(ctx, ownerID)
	return len(patches), nil
}

// ---- reports ----

// LedgerReport derives the period report from one snapshot. Nil bounds default
// to all of history through now.
func (s *Service) LedgerReport(ctx context.Context, ownerID string, from, to *time.Time) (*domain.LedgerReport, error) {
	rangeFrom := time.Unix(0, 0).UTC()
	if from != nil {
		rangeFrom = *from
	}
	rangeTo := time.Now().UTC()
	if to != nil {
		rangeTo = *to
	}

	key := s.cacheKey(ctx, ownerID, "report", rangeFrom, rangeTo)
	if key != "" {
		if cached, found, err := s.cache.GetReport(ctx, key); err != nil {
			s.log.Warn().Err(err).Str("owner", ownerID).Msg("report cache read failed")
		} else if found {
			return cached, nil
		}
	}

	snap, err := s.repo.Snapshot(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	report := ledger.BuildReport(snap, rangeFrom, rangeTo)

	if key != "" {
		if err := s.cache.SetReport(ctx, key, &report, reportCacheTTL); err != nil {
			s.log.Warn().Err(err).Str("owner", ownerID).Msg("report cache write failed")
		}
	}
	return &report, nil
}

// DashboardStats aggregates with optional exact bounds. Zero times stand for
// "no bound" at the HTTP layer and are passed through as nil here.
func (s *Service) DashboardStats(ctx context.Context, ownerID string, from, to *time.Time) (*domain.DashboardStats, error) {
	keyFrom, keyTo := time.Time{}, time.Time{}
	if from != nil {
		keyFrom = *from
	}
	if to != nil {
		keyTo = *to
	}
	key := s.cacheKey(ctx, ownerID, "dashboard", keyFrom, keyTo)
	if key != "" {
		if cached, found, err := s.cache.GetDashboard(ctx, key); err != nil {
			s.log.Warn().Err(err).Str("owner", ownerID).Msg("dashboard cache read failed")
		} else if found {
			return cached, nil
		}
	}

	snap, err := s.repo.Snapshot(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	stats := ledger.DashboardStats(snap, from, to)

	if key != "" {
		if err := s.cache.SetDashboard(ctx, key, &stats, reportCacheTTL); err != nil {
			s.log.Warn().Err(err).Str("owner", ownerID).Msg("dashboard cache write failed")
		}
	}
	return &stats, nil
}

// cacheKey embeds the owner's cache generation; a failed version read just
// disables caching for this request.
func (s *Service) cacheKey(ctx context.Context, ownerID string, kind string, from, to time.Time) string {
	version, err := s.cache.Version(ctx, ownerID)
	if err != nil {
		s.log.Warn().Err(err).Str("owner", ownerID).Msg("cache version read failed")
		return ""
	}
	return fmt.Sprintf("ledger:%s:%s:v%d:%d:%d", kind, ownerID, version, from.UnixMilli(), to.UnixMilli())
}

func (s *Service) invalidate(ctx context.Context, ownerID string) {
	if err := s.cache.Invalidate(ctx, ownerID); err != nil {
		s.log.Warn().Err(err).Str("owner", ownerID).Msg("cache invalidation failed")
	}
}

func itemsFromRequests(reqs []domain.InvoiceItemRequest) []domain.InvoiceItem {
	items := make([]domain.InvoiceItem, 0, len(reqs))
	for _, req := range reqs {
		items = append(items, domain.InvoiceItem{
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			Price:     req.Price,
		})
	}
	return items
}
