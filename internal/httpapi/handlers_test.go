package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"tillpoint/backend/internal/cache"
	"tillpoint/backend/internal/service"
	"tillpoint/backend/internal/store/memory"
)

// newTestAPI builds a full API with the seeded in-memory store, a real
// AuthManager and a real Service so handler tests exercise the complete
// request path.
func newTestAPI(t *testing.T) (*API, *memory.Store) {
	t.Helper()

	repo := memory.NewSeeded()
	logger := zaptest.NewLogger(t)
	svc := service.New(repo, cache.NoopReportCache{}, logger, 10, 30*time.Second)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)
	if err := auth.EnsureUser("admin", "admin123", "admin"); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if err := auth.EnsureUser("kasir", "kasir123", "cashier"); err != nil {
		t.Fatalf("seed cashier: %v", err)
	}

	return New(svc, auth, logger, "*"), repo
}

func loginToken(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	if body.AccessToken == "" {
		t.Fatalf("empty access token")
	}
	return body.AccessToken
}

func authedRequest(method, target, token string, payload any) *http.Request {
	var req *http.Request
	if payload != nil {
		raw, _ := json.Marshal(payload)
		req = httptest.NewRequest(method, target, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})

	sawTooMany := false
	for i := 0; i < 8; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "203.0.113.7:41000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			sawTooMany = true
			break
		}
	}
	if !sawTooMany {
		t.Fatalf("expected 429 after repeated login attempts")
	}
}

func TestProductsRequireAuth(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestListAndSearchProducts(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "kasir", "kasir123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/products", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list products: %d (body: %s)", rec.Code, rec.Body.String())
	}
	var listBody struct {
		Products []map[string]any `json:"products"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listBody); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listBody.Products) == 0 {
		t.Fatalf("expected seeded products")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/products/search?q=cola", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("search products: %d", rec.Code)
	}
	var searchBody struct {
		Products []map[string]any `json:"products"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&searchBody); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if len(searchBody.Products) != 1 {
		t.Fatalf("search rows = %d, want 1", len(searchBody.Products))
	}
}

func TestCreateProductForbiddenForCashier(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "kasir", "kasir123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/products", token, map[string]any{
		"name": "New Item", "barcode": "999", "price": "5.00", "stock_quantity": 10,
	}))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier create, got %d", rec.Code)
	}
}

func TestSaleEndToEnd(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "kasir", "kasir123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/sales", token, map[string]any{
		"items":          []map[string]any{{"product_id": "prod-cola", "quantity": 2}},
		"payment_method": "cash",
		"amount_paid":    "5.00",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: %d (body: %s)", rec.Code, rec.Body.String())
	}

	var created struct {
		Sale struct {
			ID            string `json:"id"`
			ReceiptNumber string `json:"receipt_number"`
			Subtotal      string `json:"subtotal"`
			TaxAmount     string `json:"tax_amount"`
			TotalAmount   string `json:"total_amount"`
			ChangeAmount  string `json:"change_amount"`
		} `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if created.Sale.Subtotal != "2.4" || created.Sale.TaxAmount != "0.24" || created.Sale.TotalAmount != "2.64" {
		t.Fatalf("sale totals = %+v", created.Sale)
	}
	wantPrefix := fmt.Sprintf("RC-%s-", time.Now().Format("20060102"))
	if len(created.Sale.ReceiptNumber) != len(wantPrefix)+4 || created.Sale.ReceiptNumber[:len(wantPrefix)] != wantPrefix {
		t.Fatalf("receipt = %s", created.Sale.ReceiptNumber)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/sales/"+created.Sale.ID, token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get sale: %d", rec.Code)
	}
}

func TestSaleInsufficientStockMapsTo422(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "kasir", "kasir123")

	// prod-sponges is seeded with zero stock.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/sales", token, map[string]any{
		"items":          []map[string]any{{"product_id": "prod-sponges", "quantity": 1}},
		"payment_method": "card",
		"amount_paid":    "10.00",
	}))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestSaleUnknownFieldRejected(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "kasir", "kasir123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/sales", token, map[string]any{
		"items":          []map[string]any{{"product_id": "prod-cola", "quantity": 1}},
		"payment_method": "cash",
		"amount_paid":    "5.00",
		"discount":       "1.00",
	}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestReportsForbiddenForCashier(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "kasir", "kasir123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/reports/sales?start_date=2024-01-01&end_date=2024-01-07", token, nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier report, got %d", rec.Code)
	}
}

func TestReportAndClosureFlow(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	cashierToken := loginToken(t, handler, "kasir", "kasir123")
	adminToken := loginToken(t, handler, "admin", "admin123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/sales", cashierToken, map[string]any{
		"items":          []map[string]any{{"product_id": "prod-cola", "quantity": 1}},
		"payment_method": "qr_code",
		"amount_paid":    "1.32",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale failed: %d (body: %s)", rec.Code, rec.Body.String())
	}

	today := time.Now().Format("2006-01-02")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet,
		"/api/v1/reports/sales?start_date="+today+"&end_date="+today, adminToken, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("report failed: %d (body: %s)", rec.Code, rec.Body.String())
	}
	var reportBody struct {
		Report struct {
			Summary struct {
				TotalTransactions int64 `json:"total_transactions"`
			} `json:"summary"`
		} `json:"report"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&reportBody); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if reportBody.Report.Summary.TotalTransactions != 1 {
		t.Fatalf("report transactions = %d, want 1", reportBody.Report.Summary.TotalTransactions)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/closures", adminToken, nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("closure failed: %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/closures", adminToken, nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("second closure = %d, want 422", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/closures/"+today, adminToken, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get closure = %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "kasir", "kasir123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/v1/sales", token, nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
