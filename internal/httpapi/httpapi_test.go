package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayyanshiraz/inv/internal/cache"
	"github.com/ayyanshiraz/inv/internal/domain"
	"github.com/ayyanshiraz/inv/internal/service"
	"github.com/ayyanshiraz/inv/internal/store/memory"
)

// newTestAPI builds the full stack on the in-memory store so handler tests
// exercise the complete request path, token parsing included.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.New()
	svc := service.New(repo, cache.NoopReportCache{}, zerolog.Nop())

	identity := NewStaticIdentityProvider()
	for _, account := range []struct {
		username string
		ownerID  string
	}{
		{"alice", "owner-a"},
		{"bob", "owner-b"},
	} {
		err := identity.Add(account.username, "secret-pass", domain.OwnerProfile{
			OwnerID:     account.ownerID,
			DisplayName: account.username,
			Business:    "Test Traders",
		})
		if err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}

	auth := NewAuthManager("test-secret-key", time.Hour, identity)
	return New(svc, auth, "*", zerolog.Nop())
}

func login(t *testing.T, api *API, username string) string {
	t.Helper()
	resp, err := api.auth.Login(domain.LoginRequest{Username: username, Password: "secret-pass"})
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return resp.AccessToken
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLoginAndProfile(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: "alice",
		Password: "secret-pass",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var loginResp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&loginResp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if loginResp.AccessToken == "" || loginResp.OwnerID != "owner-a" {
		t.Fatalf("unexpected login response: %+v", loginResp)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/profile", loginResp.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d", rec.Code)
	}
	var profileResp struct {
		Profile domain.OwnerProfile `json:"profile"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&profileResp); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profileResp.Profile.Business != "Test Traders" {
		t.Fatalf("unexpected profile: %+v", profileResp.Profile)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: "alice",
		Password: "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthenticatedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	for _, path := range []string{
		"/api/v1/customers/",
		"/api/v1/invoices/",
		"/api/v1/reports/ledger",
		"/api/v1/reports/dashboard",
	} {
		rec := doJSON(t, handler, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 without token, got %d", path, rec.Code)
		}
	}
}

func TestInvoiceLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, api, "alice")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/customers/", token, domain.CustomerSaveRequest{
		ID: "CUST-1", Name: "Al Karam", OpeningBalance: domain.NewAmount(1000),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("save customer: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/invoices/", token, domain.InvoiceRequest{
		CustomerID:  "CUST-1",
		TotalAmount: domain.NewAmount(500),
		PaidAmount:  domain.NewAmount(200),
		Items:       []domain.InvoiceItemRequest{{ProductID: "P1", Quantity: domain.NewAmount(1), Price: domain.NewAmount(500)}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create invoice: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var created struct {
		Invoice domain.Invoice `json:"invoice"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode invoice: %v", err)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/customers/CUST-1/balance", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance: expected 200, got %d", rec.Code)
	}
	var balanceResp struct {
		Balance domain.Amount `json:"balance"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&balanceResp); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if !balanceResp.Balance.Equal(domain.NewAmount(1300)) {
		t.Fatalf("expected balance 1300, got %s", balanceResp.Balance)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/invoices/"+created.Invoice.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete invoice: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/invoices/"+created.Invoice.ID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("details after delete: expected 404, got %d", rec.Code)
	}

	// deleting the invoice puts the balance back to the opening amount
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/customers/CUST-1/balance", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance after delete: expected 200, got %d", rec.Code)
	}
	if err := json.NewDecoder(rec.Body).Decode(&balanceResp); err != nil {
		t.Fatalf("decode balance after delete: %v", err)
	}
	if !balanceResp.Balance.Equal(domain.NewAmount(1000)) {
		t.Fatalf("expected balance restored to 1000, got %s", balanceResp.Balance)
	}
}

func TestForeignInvoiceUpdateIsForbidden(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	aliceToken := login(t, api, "alice")
	bobToken := login(t, api, "bob")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/invoices/", bobToken, domain.InvoiceRequest{
		CustomerID:  "C1",
		TotalAmount: domain.NewAmount(100),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed invoice: expected 201, got %d", rec.Code)
	}
	var created struct {
		Invoice domain.Invoice `json:"invoice"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/v1/invoices/"+created.Invoice.ID, aliceToken, domain.InvoiceRequest{
		CustomerID:  "C1",
		TotalAmount: domain.NewAmount(1),
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign update, got %d", rec.Code)
	}

	// foreign details read like a missing record, not a forbidden one
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/invoices/"+created.Invoice.ID, aliceToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign details, got %d", rec.Code)
	}
}

func TestBulkEndpointsOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, api, "alice")

	ids := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/invoices/", token, domain.InvoiceRequest{
			CustomerID:  "C1",
			TotalAmount: domain.NewAmount(float64(100 * (i + 1))),
			IsHold:      true,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("seed invoice %d: got %d", i, rec.Code)
		}
		var created struct {
			Invoice domain.Invoice `json:"invoice"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
			t.Fatalf("decode: %v", err)
		}
		ids = append(ids, created.Invoice.ID)
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/invoices/bulk/mark-paid", token, map[string]any{"ids": ids})
	if rec.Code != http.StatusOK {
		t.Fatalf("bulk mark-paid: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Affected int `json:"affected"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Affected != 2 {
		t.Fatalf("expected 2 affected, got %d", resp.Affected)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/invoices/bulk/unknown-op", token, map[string]any{"ids": ids})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown bulk op: expected 404, got %d", rec.Code)
	}
}

func TestLedgerReportOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, api, "alice")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/customers/", token, domain.CustomerSaveRequest{
		ID: "CUST-1", Name: "Al Karam", OpeningBalance: domain.NewAmount(1000),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("seed customer: got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/invoices/", token, domain.InvoiceRequest{
		CustomerID:  "CUST-1",
		TotalAmount: domain.NewAmount(500),
		PaidAmount:  domain.NewAmount(200),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed invoice: got %d", rec.Code)
	}

	today := time.Now().UTC().Format("2006-01-02")
	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/reports/ledger?from=%s&to=%s", today, today), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ledger report: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var report domain.LedgerReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(report.CustomerLedgers) != 1 {
		t.Fatalf("expected 1 customer ledger, got %d", len(report.CustomerLedgers))
	}
	entry := report.CustomerLedgers[0]
	if !entry.ClosingBalance.Equal(domain.NewAmount(1300)) {
		t.Fatalf("closing balance: expected 1300, got %s", entry.ClosingBalance)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/ledger?from=not-a-date", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date: expected 400, got %d", rec.Code)
	}
}

func TestDashboardOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, api, "alice")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/invoices/", token, domain.InvoiceRequest{
		CustomerID:  "C1",
		TotalAmount: domain.NewAmount(250),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed invoice: got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/dashboard", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d", rec.Code)
	}
	var stats domain.DashboardStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if !stats.Revenue.Equal(domain.NewAmount(250)) || stats.SalesCount != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestLenientAmountDecodingOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, api, "alice")

	// quoted numbers, null, and garbage all decode; non-numeric becomes zero
	raw := []byte(`{"customerId":"C1","totalAmount":"500","paidAmount":null,"discountAmount":"abc"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var created struct {
		Invoice domain.Invoice `json:"invoice"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !created.Invoice.TotalAmount.Equal(domain.NewAmount(500)) {
		t.Fatalf("quoted number must decode, got %s", created.Invoice.TotalAmount)
	}
	if !created.Invoice.PaidAmount.IsZero() || !created.Invoice.DiscountAmount.IsZero() {
		t.Fatalf("null and garbage must decode to zero: %+v", created.Invoice)
	}
}
