package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tokosinar/backend/internal/service"
	"tokosinar/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	repo := memory.NewSeeded()
	svc := service.New(repo, nil, nil)
	auth := NewAuthManager("test-secret-key-with-enough-length!!", time.Hour, repo)
	return New(svc, auth, nil, "*")
}

func loginAs(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = fmt.Sprintf("192.0.2.%d:1234", len(username))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: status %d body %s", username, rec.Code, rec.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("login returned empty token")
	}
	return resp.AccessToken
}

func fetchCSRFToken(t *testing.T, handler http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token fetch failed: status %d", rec.Code)
	}
	var resp struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	return resp.CSRFToken
}

// doJSON performs an authenticated JSON request with the CSRF token attached.
func doJSON(t *testing.T, handler http.Handler, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestAPI(t).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if resp["ok"] != true {
		t.Fatalf("expected ok=true, got %v", resp["ok"])
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	handler := newTestAPI(t).Handler()

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	handler := newTestAPI(t).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a garbage token, got %d", rec.Code)
	}
}

func TestListProductsWithToken(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Products []struct {
			Name string `json:"name"`
		} `json:"products"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(resp.Products) == 0 {
		t.Fatalf("seeded store should list products")
	}
}

func TestStaffForbiddenOnAdminReports(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/reports/profit-loss", token, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff on profit-loss, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/audit-logs", token, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff on audit logs, got %d", rec.Code)
	}
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	admin := loginAs(t, handler, "admin", "admin123")
	staff := loginAs(t, handler, "staff", "staff123")
	csrf := fetchCSRFToken(t, handler)

	// Find a seeded product to trade.
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", admin, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list products: %d", rec.Code)
	}
	var products struct {
		Products []struct {
			ID string `json:"id"`
		} `json:"products"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &products); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(products.Products) == 0 {
		t.Fatalf("no seeded products")
	}
	productID := products.Products[0].ID

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/vendors", admin, csrf, map[string]any{
		"name": "Toko Sumber",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create vendor: %d %s", rec.Code, rec.Body.String())
	}
	var vendor struct {
		Vendor struct {
			ID string `json:"id"`
		} `json:"vendor"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &vendor); err != nil {
		t.Fatalf("decode vendor: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/purchases", admin, csrf, map[string]any{
		"invoice_ref": "PO-HTTP-1",
		"product_id":  productID,
		"vendor_id":   vendor.Vendor.ID,
		"quantity":    10,
		"unit_cost":   "5",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create purchase: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", staff, csrf, map[string]any{
		"customer_name": "Bu Sari",
		"lines": []map[string]any{
			{"product_id": productID, "quantity": 2, "selling_price": "25"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: %d %s", rec.Code, rec.Body.String())
	}
	var sale struct {
		Sale struct {
			ID            string `json:"id"`
			InvoiceNumber string `json:"invoice_number"`
			Status        string `json:"status"`
		} `json:"sale"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sale); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if sale.Sale.InvoiceNumber == "" {
		t.Fatalf("sale missing invoice number")
	}
	if sale.Sale.Status != "pending" {
		t.Fatalf("new sale should be pending, got %q", sale.Sale.Status)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/payments", staff, csrf, map[string]any{
		"invoice_ref": sale.Sale.InvoiceNumber,
		"amount_paid": "50",
		"method":      "cash",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record payment: %d %s", rec.Code, rec.Body.String())
	}
	var payment struct {
		Payment struct {
			Status    string `json:"status"`
			Reference string `json:"reference"`
		} `json:"payment"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payment); err != nil {
		t.Fatalf("decode payment: %v", err)
	}
	if payment.Payment.Status != "completed" {
		t.Fatalf("expected completed after full payment, got %q", payment.Payment.Status)
	}
	if payment.Payment.Reference == "" {
		t.Fatalf("payment should carry a generated reference")
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/invoice/"+sale.Sale.InvoiceNumber, staff, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup by invoice: %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+sale.Sale.ID+"/payments", staff, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list sale payments: %d", rec.Code)
	}
	var paymentList struct {
		Payments []json.RawMessage `json:"payments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &paymentList); err != nil {
		t.Fatalf("decode payments: %v", err)
	}
	if len(paymentList.Payments) != 1 {
		t.Fatalf("expected one payment on the sale, got %d", len(paymentList.Payments))
	}
}

func TestOverpaymentMapsTo422(t *testing.T) {
	handler := newTestAPI(t).Handler()
	staff := loginAs(t, handler, "staff", "staff123")
	admin := loginAs(t, handler, "admin", "admin123")
	csrf := fetchCSRFToken(t, handler)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", admin, "", nil)
	var products struct {
		Products []struct {
			ID string `json:"id"`
		} `json:"products"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &products); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	productID := products.Products[0].ID

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", staff, csrf, map[string]any{
		"customer_name": "Bu Sari",
		"lines": []map[string]any{
			{"product_id": productID, "quantity": 1, "selling_price": "10"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: %d %s", rec.Code, rec.Body.String())
	}
	var sale struct {
		Sale struct {
			InvoiceNumber string `json:"invoice_number"`
		} `json:"sale"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sale); err != nil {
		t.Fatalf("decode sale: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/payments", staff, csrf, map[string]any{
		"invoice_ref": sale.Sale.InvoiceNumber,
		"amount_paid": "11",
		"method":      "cash",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for overpayment, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownSaleReturns404(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/sales/does-not-exist", token, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUnknownJSONFieldRejected(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "admin", "admin123")
	csrf := fetchCSRFToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/categories", token, csrf, map[string]any{
		"name":       "Snacks",
		"unexpected": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestProfitLossCSVExport(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/reports/profit-loss?format=csv", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("summary,net_profit,")) {
		t.Fatalf("csv export missing summary rows: %s", rec.Body.String())
	}
}
