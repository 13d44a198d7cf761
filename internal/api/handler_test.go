package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"pharmatrack/m/domain"
	"pharmatrack/m/internal/dbtest"
	"pharmatrack/m/internal/metrics"
	"pharmatrack/m/internal/notify"
	"pharmatrack/m/internal/sale"
	"pharmatrack/m/internal/store"
)

type testServer struct {
	db      *sqlx.DB
	handler http.Handler
	users   *store.UserStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := dbtest.Open(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	log := zap.NewNop()
	svc := sale.NewService(store.NewTransactor(db), store.NewSaleLedger(db), notify.NewLogPublisher(log), m, sale.Options{TaxRate: domain.DefaultTaxRate})
	users := store.NewUserStore(db)
	h := New(Deps{
		Sales:    svc,
		Products: store.NewProductStore(db),
		Users:    users,
		Logger:   log,
		Metrics:  m,
		Gatherer: reg,
	}, Config{Secret: "test_secret", TokenTTL: time.Hour})
	return &testServer{db: db, handler: h.Router(), users: users}
}

func (s *testServer) addUser(t *testing.T, name, email, password string, role domain.Role) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = s.users.Create(context.Background(), domain.User{Name: name, Email: email, PasswordHash: string(hash), Role: role, Active: true})
	require.NoError(t, err)
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "Admin", "admin@example.com", "secret", domain.RoleAdmin)

	rec := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "admin@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ADMIN@example.com", "password": "secret"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["token"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "admin", user["role"])
	assert.NotContains(t, user, "PasswordHash")
	assert.NotContains(t, rec.Body.String(), "passwordHash")
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/products", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClerkCannotManageCatalog(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "Clerk", "clerk@example.com", "pw", domain.RoleClerk)
	token := s.login(t, "clerk@example.com", "pw")

	rec := s.do(t, http.MethodPost, "/api/products", token, map[string]any{"name": "Aspirin", "price": "1.00", "quantity": 10})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/users", token, map[string]any{"name": "X", "email": "x@example.com", "password": "p", "role": "admin"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProductEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "Admin", "admin@example.com", "secret", domain.RoleAdmin)
	token := s.login(t, "admin@example.com", "secret")

	rec := s.do(t, http.MethodPost, "/api/products", token, map[string]any{
		"name": "Loratadine", "price": "4.5", "quantity": 20, "reorderLevel": 5, "expiryDate": "2027-01-31",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	assert.Equal(t, "4.50", created["price"])
	assert.Equal(t, "2027-01-31", created["expiryDate"])
	id := int64(created["id"].(float64))

	rec = s.do(t, http.MethodPut, "/api/products/"+strconv.FormatInt(id, 10), token, map[string]any{
		"name": "Loratadine", "price": "4.75", "quantity": 3, "reorderLevel": 5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["lowStock"])

	rec = s.do(t, http.MethodPost, "/api/products", token, map[string]any{"name": "Bad", "price": "1", "quantity": -2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "quantity", decodeBody(t, rec)["field"])

	rec = s.do(t, http.MethodGet, "/api/products/9999", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/products?page=1&limit=5", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody(t, rec)
	assert.Equal(t, float64(1), page["total"])
	assert.Len(t, page["items"], 1)
}

func TestCreateSale(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "Clerk", "clerk@example.com", "pw", domain.RoleClerk)
	token := s.login(t, "clerk@example.com", "pw")
	a := dbtest.InsertProduct(t, s.db, "Paracetamol", "5.00", 10)
	b := dbtest.InsertProduct(t, s.db, "Ibuprofen", "10.00", 5)

	rec := s.do(t, http.MethodPost, "/api/sales", token, map[string]any{
		"items": []map[string]any{
			{"productId": a, "quantity": 2, "unitPrice": "5.00"},
			{"productId": b, "quantity": 1, "unitPrice": "10.00"},
		},
		"paymentMethod": "cash",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := decodeBody(t, rec)
	assert.Equal(t, "20.00", receipt["subtotal"])
	assert.Equal(t, "1.60", receipt["tax"])
	assert.Equal(t, "21.60", receipt["total"])
	assert.Equal(t, "Clerk", receipt["clerkName"])
	items := receipt["items"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "Paracetamol", first["name"])
	assert.Equal(t, "10.00", first["total"])

	id := int64(receipt["id"].(float64))
	rec = s.do(t, http.MethodGet, "/api/sales/"+strconv.FormatInt(id, 10), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "21.60", decodeBody(t, rec)["total"])

	rec = s.do(t, http.MethodGet, "/api/sales", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["total"])
}

func TestCreateSaleErrors(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "Clerk", "clerk@example.com", "pw", domain.RoleClerk)
	token := s.login(t, "clerk@example.com", "pw")
	id := dbtest.InsertProduct(t, s.db, "Insulin", "30.00", 1)

	rec := s.do(t, http.MethodPost, "/api/sales", token, map[string]any{
		"items":         []map[string]any{{"productId": id, "quantity": 5, "unitPrice": "30.00"}},
		"paymentMethod": "card",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "insufficient_stock", body["error"])
	assert.Equal(t, float64(1), body["available"])
	assert.Equal(t, float64(5), body["requested"])

	rec = s.do(t, http.MethodPost, "/api/sales", token, map[string]any{
		"items":         []map[string]any{{"productId": id, "quantity": 1, "unitPrice": "29.00"}},
		"paymentMethod": "card",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/sales", token, map[string]any{
		"items":         []map[string]any{{"productId": 999, "quantity": 1, "unitPrice": "1.00"}},
		"paymentMethod": "card",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/sales", token, map[string]any{"items": []any{}, "paymentMethod": "cash"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "items", decodeBody(t, rec)["field"])

	rec = s.do(t, http.MethodPost, "/api/sales", token, map[string]any{"items": []any{}, "paymentMethod": "cash", "totalAmount": "1.00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err := s.db.Exec(`DROP TABLE sale_items`)
	require.NoError(t, err)
	rec = s.do(t, http.MethodPost, "/api/sales", token, map[string]any{
		"items":         []map[string]any{{"productId": id, "quantity": 1, "unitPrice": "30.00"}},
		"paymentMethod": "cash",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["retryable"])
	assert.Equal(t, int64(1), dbtest.Quantity(t, s.db, id))
}

func TestClerkSeesOnlyOwnSales(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "Admin", "admin@example.com", "secret", domain.RoleAdmin)
	s.addUser(t, "Clerk", "clerk@example.com", "pw", domain.RoleClerk)
	admin := s.login(t, "admin@example.com", "secret")
	clerk := s.login(t, "clerk@example.com", "pw")
	id := dbtest.InsertProduct(t, s.db, "Saline", "2.00", 10)

	sale := map[string]any{
		"items":         []map[string]any{{"productId": id, "quantity": 1, "unitPrice": "2.00"}},
		"paymentMethod": "cash",
	}
	rec := s.do(t, http.MethodPost, "/api/sales", admin, sale)
	require.Equal(t, http.StatusCreated, rec.Code)
	adminSale := int64(decodeBody(t, rec)["id"].(float64))
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/sales", clerk, sale).Code)

	rec = s.do(t, http.MethodGet, "/api/sales", admin, nil)
	assert.Equal(t, float64(2), decodeBody(t, rec)["total"])
	rec = s.do(t, http.MethodGet, "/api/sales", clerk, nil)
	assert.Equal(t, float64(1), decodeBody(t, rec)["total"])

	rec = s.do(t, http.MethodGet, "/api/sales/"+strconv.FormatInt(adminSale, 10), clerk, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateUser(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "Admin", "admin@example.com", "secret", domain.RoleAdmin)
	token := s.login(t, "admin@example.com", "secret")

	body := map[string]any{"name": "New Clerk", "email": "new@example.com", "password": "pw", "role": "clerk"}
	rec := s.do(t, http.MethodPost, "/api/users", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/users", token, body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	body["email"], body["role"] = "other@example.com", "owner"
	rec = s.do(t, http.MethodPost, "/api/users", token, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.login(t, "new@example.com", "pw")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/health", "", nil)

	rec := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pharmatrack_http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestProductSearchAndDelete(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "Admin", "admin@example.com", "secret", domain.RoleAdmin)
	s.addUser(t, "Clerk", "clerk@example.com", "pw", domain.RoleClerk)
	admin := s.login(t, "admin@example.com", "secret")
	clerk := s.login(t, "clerk@example.com", "pw")
	sold := dbtest.InsertProduct(t, s.db, "Paracetamol", "5.00", 10)
	unsold := dbtest.InsertProduct(t, s.db, "Pantoprazole", "7.00", 10)
	dbtest.InsertProduct(t, s.db, "Ibuprofen", "10.00", 10)

	rec := s.do(t, http.MethodGet, "/api/products/search?q=pa", clerk, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var found []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	assert.Len(t, found, 2)

	rec = s.do(t, http.MethodGet, "/api/products/search", clerk, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "q", decodeBody(t, rec)["field"])

	rec = s.do(t, http.MethodPost, "/api/sales", clerk, map[string]any{
		"items":         []map[string]any{{"productId": sold, "quantity": 1, "unitPrice": "5.00"}},
		"paymentMethod": "cash",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodDelete, "/api/products/"+strconv.FormatInt(unsold, 10), clerk, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/products/"+strconv.FormatInt(sold, 10), admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/products/"+strconv.FormatInt(unsold, 10), admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/products/"+strconv.FormatInt(unsold, 10), admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProductUnknownSupplierIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "Admin", "admin@example.com", "secret", domain.RoleAdmin)
	token := s.login(t, "admin@example.com", "secret")

	rec := s.do(t, http.MethodPost, "/api/products", token, map[string]any{"name": "X", "price": "1.00", "quantity": 1, "supplierId": 42})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "validation_failed", body["error"])
	assert.Equal(t, "supplierId", body["field"])

	id := dbtest.InsertProduct(t, s.db, "Zinc", "2.00", 10)
	rec = s.do(t, http.MethodPut, "/api/products/"+strconv.FormatInt(id, 10), token, map[string]any{"supplierId": 42})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductUpdateKeepsOmittedFields(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "Admin", "admin@example.com", "secret", domain.RoleAdmin)
	token := s.login(t, "admin@example.com", "secret")
	_, err := s.db.Exec(`INSERT INTO suppliers (id, name) VALUES (1, 'MedSupply')`)
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/products", token, map[string]any{
		"name": "Loratadine", "price": "4.50", "quantity": 20, "reorderLevel": 5, "supplierId": 1, "expiryDate": "2027-01-31",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	path := "/api/products/" + strconv.FormatInt(int64(decodeBody(t, rec)["id"].(float64)), 10)

	rec = s.do(t, http.MethodPut, path, token, map[string]any{"price": "4.75"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody(t, rec)
	assert.Equal(t, "4.75", updated["price"])
	assert.Equal(t, "Loratadine", updated["name"])
	assert.Equal(t, float64(20), updated["quantity"])
	assert.Equal(t, float64(5), updated["reorderLevel"])
	assert.Equal(t, float64(1), updated["supplierId"])
	assert.Equal(t, "2027-01-31", updated["expiryDate"])

	rec = s.do(t, http.MethodPut, path, token, map[string]any{"supplierId": 0, "expiryDate": ""})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cleared := decodeBody(t, rec)
	assert.NotContains(t, cleared, "supplierId")
	assert.NotContains(t, cleared, "expiryDate")
	assert.Equal(t, "4.75", cleared["price"])

	rec = s.do(t, http.MethodPut, "/api/products/9999", token, map[string]any{"price": "1.00"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
