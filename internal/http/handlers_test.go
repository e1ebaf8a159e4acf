package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/repository"
	"storefront/internal/service"
)

const testSecret = "test-secret"

func setupServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := repository.NewMemoryStore()
	ordersRepo := repository.NewMemoryOrders(store)
	tx := repository.NewMemoryTx(store)
	opts := service.Options{Logger: logger.Discard()}
	productsSvc := service.NewProductService(store, store, opts)
	ordersSvc := service.NewOrderService(store, store, ordersRepo, tx, opts)
	cartsSvc := service.NewCartService(repository.NewMemoryCarts(store), store, ordersSvc, opts)
	return NewServer(productsSvc, ordersSvc, cartsSvc, testSecret, logger.Discard())
}

func signToken(t *testing.T, secret, sub string, role domain.Role) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func userToken(t *testing.T, sub string) string { return signToken(t, testSecret, sub, domain.RoleUser) }
func adminToken(t *testing.T) string            { return signToken(t, testSecret, "root", domain.RoleAdmin) }

func doJSON(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func createProduct(t *testing.T, s *Server, name, price string, qty int64) domain.Product {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/v1/products", adminToken(t), map[string]any{
		"name": name, "price": price, "quantity": qty,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create product %v: %s", w.Code, w.Body)
	}
	return decode[domain.Product](t, w)
}

func TestHTTP_Auth(t *testing.T) {
	s := setupServer(t)

	w := doJSON(t, s, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz %v", w.Code)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/products", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", w.Code)
	}
	if got := decode[errorResponse](t, w).Code; got != "UNAUTHORIZED" {
		t.Fatalf("code %q", got)
	}

	forged := signToken(t, "other-secret", "u1", domain.RoleAdmin)
	w = doJSON(t, s, http.MethodGet, "/api/v1/products", forged, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("forged token: expected 401, got %v", w.Code)
	}

	odd := signToken(t, testSecret, "u1", domain.Role("superuser"))
	w = doJSON(t, s, http.MethodGet, "/api/v1/products", odd, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown role: expected 401, got %v", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/api/v1/products", userToken(t, "u1"), map[string]any{
		"name": "A", "price": "1", "quantity": 1,
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("user creating product: expected 403, got %v", w.Code)
	}
}

func TestProductFlow(t *testing.T) {
	s := setupServer(t)
	admin := adminToken(t)
	user := userToken(t, "u1")

	p := createProduct(t, s, "Aspirin", "10.50", 5)

	w := doJSON(t, s, http.MethodGet, "/api/v1/products/"+p.ID, user, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get code %v", w.Code)
	}

	w = doJSON(t, s, http.MethodPut, "/api/v1/products/"+p.ID, admin, map[string]any{
		"name": "Aspirin Plus", "price": "12",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update code %v", w.Code)
	}
	if got := decode[domain.Product](t, w); got.Quantity != 5 || got.Name != "Aspirin Plus" {
		t.Fatalf("update result %+v", got)
	}

	w = doJSON(t, s, http.MethodPost, "/api/v1/products/"+p.ID+"/restock", admin, map[string]any{"quantity": 3})
	if w.Code != http.StatusOK {
		t.Fatalf("restock code %v", w.Code)
	}
	if got := decode[domain.Product](t, w); got.Quantity != 8 {
		t.Fatalf("restocked quantity %d", got.Quantity)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/products?q=asp&min_price=11", user, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list code %v", w.Code)
	}
	if got := decode[[]domain.Product](t, w); len(got) != 1 {
		t.Fatalf("list len %d", len(got))
	}

	w = doJSON(t, s, http.MethodDelete, "/api/v1/products/"+p.ID, admin, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete code %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/api/v1/products/"+p.ID, user, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %v", w.Code)
	}
}

func TestOrderFlow(t *testing.T) {
	s := setupServer(t)
	owner := userToken(t, "u1")
	p := createProduct(t, s, "Keyboard", "10", 5)

	items := []map[string]any{{"product_id": p.ID, "quantity": 3}}
	w := doJSON(t, s, http.MethodPost, "/api/v1/orders", owner, map[string]any{"items": items})
	if w.Code != http.StatusCreated {
		t.Fatalf("place order %v: %s", w.Code, w.Body)
	}
	o := decode[domain.Order](t, w)
	if o.TotalPrice.String() != "30" || o.Status != domain.OrderStatusPending || o.UserID != "u1" {
		t.Fatalf("order %+v", o)
	}

	// second identical request no longer fits
	w = doJSON(t, s, http.MethodPost, "/api/v1/orders", owner, map[string]any{"items": items})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", w.Code)
	}
	oos := decode[errorResponse](t, w)
	if oos.Code != "OUT_OF_STOCK" || len(oos.Items) != 1 || oos.Items[0].Available != 2 || oos.Items[0].Name != "Keyboard" {
		t.Fatalf("out of stock body %+v", oos)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/orders/"+o.ID, owner, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get order %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/api/v1/orders/"+o.ID, userToken(t, "u2"), nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("stranger get: expected 403, got %v", w.Code)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/orders?user_id=u2", owner, nil)
	if got := decode[[]domain.Order](t, w); len(got) != 1 || got[0].ID != o.ID {
		t.Fatalf("list scoped to caller, got %+v", got)
	}

	w = doJSON(t, s, http.MethodPost, "/api/v1/orders/"+o.ID+"/cancel", owner, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel %v", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, "/api/v1/orders/"+o.ID+"/cancel", owner, nil)
	if w.Code != http.StatusConflict || decode[errorResponse](t, w).Code != "INVALID_TRANSITION" {
		t.Fatalf("second cancel %v: %s", w.Code, w.Body)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/products/"+p.ID, owner, nil)
	if got := decode[domain.Product](t, w); got.Quantity != 5 {
		t.Fatalf("stock after cancel %d", got.Quantity)
	}
}

func TestOrderStatusAndDelete(t *testing.T) {
	s := setupServer(t)
	owner := userToken(t, "u1")
	admin := adminToken(t)
	p := createProduct(t, s, "Mouse", "4", 2)

	w := doJSON(t, s, http.MethodPost, "/api/v1/orders", owner, map[string]any{
		"items": []map[string]any{{"product_id": p.ID, "quantity": 1}},
	})
	o := decode[domain.Order](t, w)

	// only admins complete orders
	w = doJSON(t, s, http.MethodPost, "/api/v1/orders/"+o.ID+"/status", owner, map[string]any{"status": "completed"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("owner complete: expected 403, got %v", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, "/api/v1/orders/"+o.ID+"/status", admin, map[string]any{"status": "shipped"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown status: expected 400, got %v", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, "/api/v1/orders/"+o.ID+"/status", admin, map[string]any{"status": "completed"})
	if w.Code != http.StatusOK {
		t.Fatalf("complete %v: %s", w.Code, w.Body)
	}

	w = doJSON(t, s, http.MethodDelete, "/api/v1/orders/"+o.ID, owner, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("owner delete: expected 403, got %v", w.Code)
	}
	w = doJSON(t, s, http.MethodDelete, "/api/v1/orders/"+o.ID, admin, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("admin delete %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/api/v1/orders/"+o.ID, admin, nil)
	if w.Code != http.StatusNotFound || decode[errorResponse](t, w).Code != "ORDER_NOT_FOUND" {
		t.Fatalf("get deleted %v", w.Code)
	}
}

func TestCartFlow(t *testing.T) {
	s := setupServer(t)
	user := userToken(t, "u1")
	a := createProduct(t, s, "A", "2", 5)
	b := createProduct(t, s, "B", "3", 5)

	w := doJSON(t, s, http.MethodGet, "/api/v1/cart", user, nil)
	if w.Code != http.StatusNotFound || decode[errorResponse](t, w).Code != "CART_NOT_FOUND" {
		t.Fatalf("empty cart %v", w.Code)
	}

	for _, id := range []string{a.ID, a.ID, b.ID} {
		w = doJSON(t, s, http.MethodPost, "/api/v1/cart", user, map[string]any{"product_id": id, "quantity": 1})
		if w.Code != http.StatusOK {
			t.Fatalf("add %v: %s", w.Code, w.Body)
		}
	}
	if got := decode[domain.Cart](t, w); len(got.Items) != 2 {
		t.Fatalf("cart items %+v", got.Items)
	}

	w = doJSON(t, s, http.MethodPut, "/api/v1/cart/"+b.ID, user, map[string]any{"quantity": 2})
	if w.Code != http.StatusOK {
		t.Fatalf("set %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/api/v1/cart/"+b.ID, user, nil)
	if got := decode[domain.CartItem](t, w); got.Quantity != 2 {
		t.Fatalf("item %+v", got)
	}
	w = doJSON(t, s, http.MethodDelete, "/api/v1/cart/missing", user, nil)
	if w.Code != http.StatusNotFound || decode[errorResponse](t, w).Code != "ITEM_NOT_FOUND" {
		t.Fatalf("remove missing %v", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/api/v1/cart/checkout", user, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("checkout %v: %s", w.Code, w.Body)
	}
	if got := decode[domain.Order](t, w); got.TotalPrice.String() != "10" {
		t.Fatalf("checkout total %s", got.TotalPrice)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/cart", user, nil)
	if got := decode[domain.Cart](t, w); len(got.Items) != 0 {
		t.Fatalf("cart after checkout %+v", got.Items)
	}
}

func TestHTTP_BadRequests(t *testing.T) {
	s := setupServer(t)
	user := userToken(t, "u1")

	w := doJSON(t, s, http.MethodPost, "/api/v1/products", adminToken(t), map[string]any{"name": ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+user)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: expected 400, got %v", rec.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/api/v1/orders", user, map[string]any{
		"items": []map[string]any{{"product_id": "p", "quantity": 0}},
	})
	if w.Code != http.StatusBadRequest || decode[errorResponse](t, w).Code != "MALFORMED_REQUEST" {
		t.Fatalf("zero quantity %v: %s", w.Code, w.Body)
	}

	w = doJSON(t, s, http.MethodPost, "/api/v1/orders", user, map[string]any{
		"items": []map[string]any{{"product_id": "ghost", "quantity": 1}},
	})
	if w.Code != http.StatusNotFound || decode[errorResponse](t, w).Code != "PRODUCT_NOT_FOUND" {
		t.Fatalf("unknown product %v: %s", w.Code, w.Body)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/products?min_price=abc", user, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad min_price: expected 400, got %v", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/api/v1/products", adminToken(t), map[string]any{
		"name": "Gum", "price": "0.005", "quantity": 1,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("sub-cent price: expected 400, got %v", w.Code)
	}

	p := createProduct(t, s, "Gum", "0.50", 5)
	w = doJSON(t, s, http.MethodPost, "/api/v1/products/"+p.ID+"/restock", adminToken(t), map[string]any{"quantity": int64(math.MaxInt64)})
	if w.Code != http.StatusBadRequest || decode[errorResponse](t, w).Code != "MALFORMED_REQUEST" {
		t.Fatalf("overflowing restock %v: %s", w.Code, w.Body)
	}
	w = doJSON(t, s, http.MethodGet, "/api/v1/products/"+p.ID, user, nil)
	if got := decode[domain.Product](t, w); got.Quantity != 5 {
		t.Fatalf("stock after refused restock %d", got.Quantity)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&domain.MalformedRequestError{Index: 0, Field: "quantity", Reason: "must be positive"}, http.StatusBadRequest, "MALFORMED_REQUEST"},
		{domain.ErrInvalidQuantity, http.StatusBadRequest, "INVALID_QUANTITY"},
		{domain.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{&domain.ProductNotFoundError{ProductID: "x"}, http.StatusNotFound, "PRODUCT_NOT_FOUND"},
		{fmt.Errorf("load: %w", domain.ErrOrderNotFound), http.StatusNotFound, "ORDER_NOT_FOUND"},
		{domain.ErrItemNotFound, http.StatusNotFound, "ITEM_NOT_FOUND"},
		{&domain.InvalidTransitionError{From: domain.OrderStatusCompleted, To: domain.OrderStatusCancelled}, http.StatusConflict, "INVALID_TRANSITION"},
		{domain.ErrConcurrencyConflict, http.StatusConflict, "CONCURRENCY_CONFLICT"},
		{fmt.Errorf("reserve p1: %w", fmt.Errorf("%w: %w", domain.ErrConcurrencyConflict, errors.New("deadlock detected"))), http.StatusConflict, "CONCURRENCY_CONFLICT"},
		{errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range tests {
		status, resp := mapError(tc.err)
		if status != tc.status || resp.Code != tc.code {
			t.Errorf("%v: got %d %s, want %d %s", tc.err, status, resp.Code, tc.status, tc.code)
		}
	}

	_, resp := mapError(errors.New("pq: password authentication failed"))
	if resp.Error != "internal error" {
		t.Errorf("internal error leaked: %q", resp.Error)
	}
}
