package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tokosinar/backend/internal/domain"
	"tokosinar/backend/internal/service"
	"tokosinar/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	logger        *logrus.Logger
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, logger *logrus.Logger, allowedOrigin string) *API {
	if logger == nil {
		logger = logrus.New()
	}
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		// Fall back to a deterministic secret if crypto/rand fails (should not happen in practice).
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		logger:        logger,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (expressed as Unix time truncated to the hour). The token is hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

// generateCSRFToken returns a token valid for the current hour bucket.
func (a *API) generateCSRFToken() string {
	now := time.Now().UTC()
	bucket := now.Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken checks whether the provided token matches the current or
// previous hour bucket, giving a 2-hour validity window.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	now := time.Now().UTC()
	currentBucket := now.Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	expected1 := a.csrfTokenForHour(currentBucket)
	expected2 := a.csrfTokenForHour(prevBucket)

	return hmac.Equal([]byte(token), []byte(expected1)) ||
		hmac.Equal([]byte(token), []byte(expected2))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/categories", a.requireAuth(a.handleCategories, "staff", "admin"))
	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, "staff", "admin"))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions, "staff", "admin"))
	mux.HandleFunc("/api/v1/vendors", a.requireAuth(a.handleVendors, "staff", "admin"))
	mux.HandleFunc("/api/v1/vendors/", a.requireAuth(a.handleVendorActions, "admin"))
	mux.HandleFunc("/api/v1/banks", a.requireAuth(a.handleBanks, "staff", "admin"))
	mux.HandleFunc("/api/v1/banks/", a.requireAuth(a.handleBankActions, "admin"))

	mux.HandleFunc("/api/v1/inventory", a.requireAuth(a.handleInventory, "staff", "admin"))
	mux.HandleFunc("/api/v1/inventory/", a.requireAuth(a.handleInventoryActions, "staff", "admin"))
	mux.HandleFunc("/api/v1/adjustments", a.requireAuth(a.handleAdjustments, "staff", "admin"))
	mux.HandleFunc("/api/v1/adjustments/", a.requireAuth(a.handleAdjustmentActions, "admin"))

	mux.HandleFunc("/api/v1/purchases", a.requireAuth(a.handlePurchases, "staff", "admin"))
	mux.HandleFunc("/api/v1/purchases/", a.requireAuth(a.handlePurchaseActions, "staff", "admin"))

	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, "staff", "admin"))
	mux.HandleFunc("/api/v1/sales/", a.requireAuth(a.handleSaleActions, "staff", "admin"))

	mux.HandleFunc("/api/v1/payments", a.requireAuth(a.handlePayments, "staff", "admin"))
	mux.HandleFunc("/api/v1/payments/", a.requireAuth(a.handlePaymentActions, "staff", "admin"))

	mux.HandleFunc("/api/v1/expenses", a.requireAuth(a.handleExpenses, "staff", "admin"))
	mux.HandleFunc("/api/v1/expenses/", a.requireAuth(a.handleExpenseActions, "staff", "admin"))

	mux.HandleFunc("/api/v1/reports/profit-loss", a.requireAuth(a.handleProfitLoss, "admin"))
	mux.HandleFunc("/api/v1/reports/sales-analysis", a.requireAuth(a.handleSalesAnalysis, "admin"))
	mux.HandleFunc("/api/v1/reports/staff-sales", a.requireAuth(a.handleStaffSales, "admin"))
	mux.HandleFunc("/api/v1/reports/customer-sales", a.requireAuth(a.handleCustomerSales, "staff", "admin"))

	mux.HandleFunc("/api/v1/users/staff", a.requireAuth(a.handleStaffUsers, "admin"))
	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// statusForError maps service and store errors onto HTTP statuses. Errors
// that carry no recognized sentinel default to 422, which matches how the
// handlers treat unclassified business rule failures.
func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, store.ErrNegativeStock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrOverpayment):
		return http.StatusUnprocessableEntity
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "admin role required") {
		return http.StatusForbidden
	}
	if strings.Contains(msg, "authentication required") {
		return http.StatusUnauthorized
	}
	return http.StatusUnprocessableEntity
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless CSRF token valid for the current hour bucket.
// Clients must include this token in the X-CSRF-Token header for all mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// csrfExemptPaths lists paths that are exempt from CSRF validation. Login is
// excluded because it is called before the client can fetch a token.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF enforces CSRF token validation for state-changing methods.
// Returns false and writes an error response if validation fails.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		categories, err := a.service.ListCategories(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
	case http.MethodPost:
		var req domain.CategoryCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		category, err := a.service.CreateCategory(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"category": category})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		products, err := a.service.ListProducts(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api/v1/products/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("product id required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), id)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodPatch:
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := a.service.UpdateProduct(r.Context(), id, req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": updated})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleVendors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		vendors, err := a.service.ListVendors(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"vendors": vendors})
	case http.MethodPost:
		var req domain.VendorCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		vendor, err := a.service.CreateVendor(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"vendor": vendor})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleVendorActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	id := pathTail(r.URL.Path, "/api/v1/vendors/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("vendor id required"))
		return
	}
	if err := a.service.DeleteVendor(r.Context(), id); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleBanks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		banks, err := a.service.ListBanks(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"banks": banks})
	case http.MethodPost:
		var req domain.BankCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		bank, err := a.service.CreateBank(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"bank": bank})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleBankActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	id := pathTail(r.URL.Path, "/api/v1/banks/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("bank id required"))
		return
	}
	if err := a.service.DeleteBank(r.Context(), id); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleInventory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	report, err := a.service.ListInventory(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleInventoryActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	tail := pathTail(r.URL.Path, "/api/v1/inventory/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("product id required"))
		return
	}

	if strings.HasSuffix(tail, "/valuation") {
		productID := strings.Trim(strings.TrimSuffix(tail, "/valuation"), "/")
		valuation, err := a.service.GetValuation(r.Context(), productID)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, valuation)
		return
	}

	entry, err := a.service.GetCurrentStock(r.Context(), tail)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) handleAdjustments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := domain.AdjustmentFilter{ProductID: r.URL.Query().Get("product_id")}
		filter.DateFrom, filter.DateTo = parseDateRange(r)
		adjustments, err := a.service.ListAdjustments(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"adjustments": adjustments})
	case http.MethodPost:
		var req domain.StockAdjustmentCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		adjustment, err := a.service.CreateAdjustment(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"adjustment": adjustment})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleAdjustmentActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	id := pathTail(r.URL.Path, "/api/v1/adjustments/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("adjustment id required"))
		return
	}
	if err := a.service.DeleteAdjustment(r.Context(), id); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handlePurchases(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := domain.PurchaseFilter{
			ProductID:  r.URL.Query().Get("product_id"),
			VendorID:   r.URL.Query().Get("vendor_id"),
			InvoiceRef: r.URL.Query().Get("invoice_ref"),
		}
		filter.DateFrom, filter.DateTo = parseDateRange(r)
		purchases, err := a.service.ListPurchases(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"purchases": purchases})
	case http.MethodPost:
		var req domain.PurchaseCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		purchase, err := a.service.ReceivePurchase(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"purchase": purchase})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchaseActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api/v1/purchases/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("purchase id required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		purchase, err := a.service.GetPurchase(r.Context(), id)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"purchase": purchase})
	case http.MethodPatch:
		var req domain.PurchaseUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		purchase, err := a.service.AmendPurchase(r.Context(), id, req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"purchase": purchase})
	case http.MethodDelete:
		if err := a.service.RetractPurchase(r.Context(), id); err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := domain.SaleFilter{
			Staff:    r.URL.Query().Get("staff"),
			Customer: r.URL.Query().Get("customer"),
		}
		filter.DateFrom, filter.DateTo = parseDateRange(r)
		sales, err := a.service.ListSales(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
	case http.MethodPost:
		var req domain.SaleCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := a.service.CreateSale(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	case http.MethodDelete:
		deleted, err := a.service.DeleteAllSales(r.Context())
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	tail := pathTail(r.URL.Path, "/api/v1/sales/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("sale id required"))
		return
	}

	if tail == "outstanding" {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		sales, err := a.service.OutstandingSales(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
		return
	}

	if invoice, ok := strings.CutPrefix(tail, "invoice/"); ok {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		sale, err := a.service.GetSaleByInvoice(r.Context(), strings.Trim(invoice, "/"))
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
		return
	}

	segments := strings.Split(tail, "/")
	saleID := segments[0]

	switch {
	case len(segments) == 1:
		switch r.Method {
		case http.MethodGet:
			sale, err := a.service.GetSale(r.Context(), saleID)
			if err != nil {
				writeError(w, statusForError(err), err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
		case http.MethodDelete:
			if err := a.service.DeleteSale(r.Context(), saleID); err != nil {
				writeError(w, statusForError(err), err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeMethodNotAllowed(w)
		}
	case len(segments) == 2 && segments[1] == "payments":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		payments, err := a.service.ListPaymentsBySale(r.Context(), saleID)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
	case len(segments) == 2 && segments[1] == "lines":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.SaleLineRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sale, err := a.service.AppendSaleLine(r.Context(), saleID, req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
	case len(segments) == 3 && segments[1] == "lines":
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.SaleLineUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sale, err := a.service.UpdateSaleLine(r.Context(), saleID, segments[2], req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
	default:
		writeError(w, http.StatusBadRequest, errors.New("unknown sale action"))
	}
}

func (a *API) handlePayments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := domain.PaymentFilter{
			InvoiceRef: r.URL.Query().Get("invoice_ref"),
			Status:     r.URL.Query().Get("status"),
			BankID:     r.URL.Query().Get("bank_id"),
			Method:     r.URL.Query().Get("method"),
		}
		filter.DateFrom, filter.DateTo = parseDateRange(r)
		payments, err := a.service.ListPayments(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
	case http.MethodPost:
		var req domain.PaymentCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		payment, err := a.service.RecordPayment(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"payment": payment})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePaymentActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api/v1/payments/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("payment id required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		payment, err := a.service.GetPayment(r.Context(), id)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"payment": payment})
	case http.MethodPatch:
		var req domain.PaymentUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		payment, err := a.service.UpdatePayment(r.Context(), id, req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"payment": payment})
	case http.MethodDelete:
		if err := a.service.DeletePayment(r.Context(), id); err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := domain.ExpenseFilter{AccountType: r.URL.Query().Get("account_type")}
		filter.DateFrom, filter.DateTo = parseDateRange(r)
		resp, err := a.service.ListExpenses(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		var req domain.ExpenseCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		expense, err := a.service.CreateExpense(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"expense": expense})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleExpenseActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api/v1/expenses/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("expense id required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		expense, err := a.service.GetExpense(r.Context(), id)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"expense": expense})
	case http.MethodDelete:
		if err := a.service.DeactivateExpense(r.Context(), id); err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProfitLoss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	from, to := parseDateRange(r)
	var fromTime, toTime time.Time
	if from != nil {
		fromTime = *from
	}
	if to != nil {
		toTime = *to
	}
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))

	report, err := a.service.ProfitLoss(r.Context(), fromTime, toTime)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"profit-loss-%s.csv\"", report.DateFrom.Format("2006-01-02")))
		_, _ = w.Write([]byte(profitLossToCSV(report)))
	case "pdf":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(profitLossToPrintableHTML(report)))
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (a *API) handleSalesAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	from, to := parseDateRange(r)
	var fromTime, toTime time.Time
	if from != nil {
		fromTime = *from
	}
	if to != nil {
		toTime = *to
	}

	rows, err := a.service.SalesAnalysis(r.Context(), fromTime, toTime)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (a *API) handleStaffSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	var filter domain.SaleFilter
	filter.DateFrom, filter.DateTo = parseDateRange(r)
	rows, err := a.service.StaffSalesReport(r.Context(), filter)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (a *API) handleCustomerSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	customer := r.URL.Query().Get("customer")
	rows, err := a.service.SalesByCustomer(r.Context(), customer)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (a *API) handleStaffUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		staff, err := a.service.ListStaff(r.Context())
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"staff": staff})
	case http.MethodPost:
		var req domain.StaffCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		user, err := a.service.CreateStaff(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user": user})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), limit)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(startedAt).String(),
		}).Info("request")
	})
}

func profitLossToCSV(report domain.ProfitLossReport) string {
	lines := []string{
		"section,key,value",
		fmt.Sprintf("summary,date_from,%s", report.DateFrom.Format("2006-01-02")),
		fmt.Sprintf("summary,date_to,%s", report.DateTo.Format("2006-01-02")),
		fmt.Sprintf("summary,total_revenue,%s", report.TotalRevenue),
		fmt.Sprintf("summary,cost_of_sales,%s", report.CostOfSales),
		fmt.Sprintf("summary,gross_profit,%s", report.GrossProfit),
		fmt.Sprintf("summary,total_expenses,%s", report.TotalExpenses),
		fmt.Sprintf("summary,net_profit,%s", report.NetProfit),
	}
	for _, rev := range report.Revenue {
		lines = append(lines, fmt.Sprintf("revenue,%s,%s", rev.Category, rev.Amount))
	}
	for _, exp := range report.Expenses {
		lines = append(lines, fmt.Sprintf("expense,%s,%s", exp.AccountType, exp.Amount))
	}
	return strings.Join(lines, "\n") + "\n"
}

// profitLossHTMLTmpl renders the printable profit and loss statement. All
// user-controlled fields are auto-escaped by html/template to prevent XSS.
var profitLossHTMLTmpl = template.Must(template.New("profit-loss").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Profit and Loss {{.DateFrom.Format "2006-01-02"}} to {{.DateTo.Format "2006-01-02"}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Profit and Loss</h2>
  <p>Period: {{.DateFrom.Format "2006-01-02"}} to {{.DateTo.Format "2006-01-02"}}</p>

  <h3>Revenue</h3>
  <table>
    <thead><tr><th>Category</th><th>Amount</th></tr></thead>
    <tbody>{{range .Revenue}}<tr><td>{{.Category}}</td><td style="text-align:right;">{{.Amount}}</td></tr>{{end}}</tbody>
  </table>
  <p>Total Revenue: {{.TotalRevenue}} | Cost of Sales: {{.CostOfSales}} | Gross Profit: {{.GrossProfit}}</p>

  <h3>Expenses</h3>
  <table>
    <thead><tr><th>Account</th><th>Amount</th></tr></thead>
    <tbody>{{range .Expenses}}<tr><td>{{.AccountType}}</td><td style="text-align:right;">{{.Amount}}</td></tr>{{end}}</tbody>
  </table>
  <p>Total Expenses: {{.TotalExpenses}}</p>

  <h3>Net Profit: {{.NetProfit}}</h3>
</body>
</html>
`))

func profitLossToPrintableHTML(report domain.ProfitLossReport) string {
	var buf bytes.Buffer
	if err := profitLossHTMLTmpl.Execute(&buf, report); err != nil {
		// Fallback: return a plain-text error page rather than leaking internal details.
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func pathTail(path, prefix string) string {
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.Trim(strings.TrimPrefix(path, prefix), "/"))
}

// parseDateRange reads from/to query parameters. Bounds are date-only values
// and the range is half open, so the exclusive upper bound is the day after
// the requested end date.
func parseDateRange(r *http.Request) (*time.Time, *time.Time) {
	var from, to *time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		if parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC); err == nil {
			from = &parsed
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		if parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC); err == nil {
			end := parsed.AddDate(0, 0, 1)
			to = &end
		}
	}
	return from, to
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// For 5xx responses, return a generic message to avoid leaking internal
	// implementation details (SQL errors, file paths, etc.). 4xx responses
	// are user-facing so the original message is kept.
	msg := err.Error()
	if status >= 500 {
		logrus.WithField("status", status).WithError(err).Error("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
