// Package httpapi is the HTTP boundary: bearer-token auth, request decoding,
// and the mapping from service sentinels to status codes. Handlers stay thin;
// every decision about ownership and ledger math lives below this layer.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/ayyanshiraz/inv/internal/domain"
	"github.com/ayyanshiraz/inv/internal/service"
	"github.com/ayyanshiraz/inv/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	log           zerolog.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger zerolog.Logger) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		log:           logger,
	}
}

type actorContextKey struct{}

func actorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	origins := []string{"http://localhost:3000"}
	if a.allowedOrigin != "" {
		origins = []string{a.allowedOrigin}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Get("/profile", a.handleProfile)

			r.Route("/customers", func(r chi.Router) {
				r.Get("/", a.handleListCustomers)
				r.Post("/", a.handleSaveCustomer)
				r.Delete("/{id}", a.handleDeleteCustomer)
				r.Get("/{id}/balance", a.handleCustomerBalance)
				r.Get("/{id}/invoices", a.handleCustomerInvoices)
			})

			r.Route("/products", func(r chi.Router) {
				r.Get("/", a.handleListProducts)
				r.Post("/", a.handleSaveProduct)
				r.Delete("/{id}", a.handleDeleteProduct)
				r.Post("/bulk/prices", a.handleBulkProductPrices)
			})

			r.Route("/categories/{kind}", func(r chi.Router) {
				r.Get("/", a.handleListCategories)
				r.Post("/", a.handleSaveCategory)
				r.Delete("/{id}", a.handleDeleteCategory)
			})

			r.Route("/invoices", func(r chi.Router) {
				r.Get("/", a.handleListInvoices)
				r.Post("/", a.handleCreateInvoice)
				r.Get("/{id}", a.handleInvoiceDetails)
				r.Put("/{id}", a.handleUpdateInvoice)
				r.Delete("/{id}", a.handleDeleteInvoice)
				r.Post("/bulk/{op}", a.handleBulkInvoices)
			})

			r.Post("/returns", a.handleSmartReturn)
			r.Post("/vouchers", a.handleCreateVouchers)
			r.Put("/vouchers/{id}", a.handleUpdateVoucher)

			r.Get("/reports/ledger", a.handleLedgerReport)
			r.Get("/reports/dashboard", a.handleDashboard)
		})
	})

	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		actor, err := a.auth.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}
		ctx := context.WithValue(r.Context(), actorContextKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	profile, ok := a.auth.identity.DisplayProfile(actor.OwnerID)
	if !ok {
		profile = domain.OwnerProfile{OwnerID: actor.OwnerID, DisplayName: actor.Username}
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"profile": profile})
}

// ---- customers ----

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	customers, err := a.service.ListCustomers(r.Context(), actor.OwnerID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleSaveCustomer(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var req domain.CustomerSaveRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	customer, err := a.service.SaveCustomer(r.Context(), actor.OwnerID, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	if err := a.service.DeleteCustomer(r.Context(), actor.OwnerID, chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *API) handleCustomerBalance(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	balance, err := a.service.CustomerBalance(r.Context(), actor.OwnerID, chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

func (a *API) handleCustomerInvoices(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	invoices, err := a.service.CustomerInvoices(r.Context(), actor.OwnerID, chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

// ---- products ----

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	products, err := a.service.ListProducts(r.Context(), actor.OwnerID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleSaveProduct(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var req domain.ProductSaveRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.SaveProduct(r.Context(), actor.OwnerID, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	if err := a.service.DeleteProduct(r.Context(), actor.OwnerID, chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *API) handleBulkProductPrices(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var req struct {
		Updates []domain.ProductPriceUpdate `json:"updates"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	updated, err := a.service.BulkUpdateProductPrices(r.Context(), actor.OwnerID, req.Updates)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

// ---- categories ----

func categoryKind(r *http.Request) domain.CategoryKind {
	return domain.CategoryKind(chi.URLParam(r, "kind"))
}

func (a *API) handleListCategories(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	categories, err := a.service.ListCategories(r.Context(), actor.OwnerID, categoryKind(r))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (a *API) handleSaveCategory(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var req domain.CategorySaveRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	category, err := a.service.SaveCategory(r.Context(), actor.OwnerID, categoryKind(r), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"category": category})
}

func (a *API) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	if err := a.service.DeleteCategory(r.Context(), actor.OwnerID, categoryKind(r), chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// ---- invoices ----

func (a *API) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	query := r.URL.Query()

	if search := strings.TrimSpace(query.Get("q")); search != "" {
		invoices, err := a.service.SearchInvoices(r.Context(), actor.OwnerID, search)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
		return
	}

	filter := store.InvoiceFilter{
		CustomerID:     query.Get("customerId"),
		ExcludeHold:    query.Get("excludeHold") == "true",
		ExcludeReturns: query.Get("excludeReturns") == "true",
	}
	invoices, err := a.service.ListInvoices(r.Context(), actor.OwnerID, filter)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (a *API) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var req domain.InvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	invoice, err := a.service.CreateInvoice(r.Context(), actor.OwnerID, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, map[string]any{"invoice": invoice})
}

func (a *API) handleInvoiceDetails(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	invoice, err := a.service.InvoiceDetails(r.Context(), actor.OwnerID, chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if invoice == nil {
		a.writeError(w, http.StatusNotFound, errors.New("invoice not found"))
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"invoice": invoice})
}

func (a *API) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var req domain.InvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	invoice, err := a.service.UpdateInvoice(r.Context(), actor.OwnerID, chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"invoice": invoice})
}

func (a *API) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	if err := a.service.DeleteInvoice(r.Context(), actor.OwnerID, chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *API) handleBulkInvoices(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	op := chi.URLParam(r, "op")

	if op == "payments" {
		var req struct {
			Updates []domain.PaymentUpdate `json:"updates"`
		}
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		affected, err := a.service.BulkUpdatePayments(r.Context(), actor.OwnerID, req.Updates)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"affected": affected})
		return
	}

	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	var affected int
	var err error
	switch op {
	case "delete":
		affected, err = a.service.BulkDeleteInvoices(r.Context(), actor.OwnerID, req.IDs)
	case "activate":
		affected, err = a.service.BulkMakeActive(r.Context(), actor.OwnerID, req.IDs)
	case "mark-paid":
		affected, err = a.service.BulkMarkAsPaid(r.Context(), actor.OwnerID, req.IDs)
	default:
		a.writeError(w, http.StatusNotFound, errors.New("unknown bulk operation"))
		return
	}
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"affected": affected})
}

func (a *API) handleSmartReturn(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var req domain.SmartReturnRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	invoice, err := a.service.ProcessSmartReturn(r.Context(), actor.OwnerID, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, map[string]any{"invoice": invoice})
}

// ---- vouchers ----

func (a *API) handleCreateVouchers(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var req struct {
		Vouchers []domain.VoucherRequest `json:"vouchers"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	vouchers, err := a.service.CreateVouchers(r.Context(), actor.OwnerID, req.Vouchers)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, map[string]any{"vouchers": vouchers})
}

func (a *API) handleUpdateVoucher(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var req domain.VoucherUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.UpdateVoucher(r.Context(), actor.OwnerID, chi.URLParam(r, "id"), req.Amount); err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

// ---- reports ----

// parseDate accepts RFC3339 or plain YYYY-MM-DD, nil when absent.
func parseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, errors.New("invalid date, expected RFC3339 or YYYY-MM-DD")
	}
	return &t, nil
}

func (a *API) handleLedgerReport(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	from, err := parseDate(r.URL.Query().Get("from"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	report, err := a.service.LedgerReport(r.Context(), actor.OwnerID, from, to)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, report)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	from, err := parseDate(r.URL.Query().Get("from"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	stats, err := a.service.DashboardStats(r.Context(), actor.OwnerID, from, to)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, stats)
}

// ---- helpers ----

func decodeJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrUnauthorized):
		a.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, store.ErrNotFound):
		a.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrConflict):
		a.writeError(w, http.StatusConflict, err)
	case errors.Is(err, service.ErrInvalidCategoryKind):
		a.writeError(w, http.StatusBadRequest, err)
	default:
		a.writeError(w, http.StatusInternalServerError, err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		a.log.Error().Err(err).Int("status", status).Msg("request failed")
		msg = "internal server error"
	}
	a.writeJSON(w, status, map[string]any{"error": msg})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
