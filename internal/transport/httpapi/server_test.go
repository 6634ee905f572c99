package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/service/catalog"
	"github.com/vladislavdragonenkov/wholesale/internal/service/idempotency"
	"github.com/vladislavdragonenkov/wholesale/internal/service/ledger"
	"github.com/vladislavdragonenkov/wholesale/internal/service/orders"
	"github.com/vladislavdragonenkov/wholesale/internal/storage/memory"
)

type testAPI struct {
	t *testing.T
	e *echo.Echo
}

func newTestAPI(t *testing.T, cfg Config) *testAPI {
	t.Helper()
	return newTestAPIWithOrderStore(t, cfg, nil)
}

// newTestAPIWithOrderStore подменяет хранилище движка заказов обёрткой над общим
// in-memory хранилищем. wrap == nil оставляет хранилище как есть.
func newTestAPIWithOrderStore(t *testing.T, cfg Config, wrap func(domain.Store) domain.Store) *testAPI {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	entry := log.NewEntry(logger)

	store := memory.NewStore()
	var orderStore domain.Store = store
	if wrap != nil {
		orderStore = wrap(store)
	}
	cfg.Logger = entry
	e := NewServer(Services{
		Catalog: catalog.NewService(store, entry),
		Ledger:  ledger.NewService(store, entry),
		Orders:  orders.NewEngine(orderStore, orders.WithLogger(entry)),
		Guard:   idempotency.NewGuard(memory.NewIdempotencyRepository(), 0, entry),
	}, cfg)
	return &testAPI{t: t, e: e}
}

func (a *testAPI) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	a.t.Helper()

	var payload []byte
	switch v := body.(type) {
	case nil:
	case string:
		payload = []byte(v)
	default:
		var err error
		payload, err = json.Marshal(v)
		require.NoError(a.t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if payload != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) mustDecode(rec *httptest.ResponseRecorder, status int, dst interface{}) {
	a.t.Helper()
	require.Equal(a.t, status, rec.Code, rec.Body.String())
	if dst != nil {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), dst))
	}
}

// seed создаёт категорию, товар и клиента и возвращает их идентификаторы.
func (a *testAPI) seed(stock int32, referral string) (productID, customerID string) {
	a.t.Helper()

	var category categoryResponse
	a.mustDecode(a.do(http.MethodPost, "/api/categories", map[string]string{"name": "Tea"}, nil), http.StatusCreated, &category)

	var product productResponse
	a.mustDecode(a.do(http.MethodPost, "/api/products", map[string]interface{}{
		"category_id":     category.ID,
		"product_name":    "Green tea",
		"price":           "2.00",
		"wholesale_price": "1.50",
		"stock_quantity":  stock,
	}, nil), http.StatusCreated, &product)
	require.Equal(a.t, "Tea", product.CategoryName)
	require.Equal(a.t, stock > 0, product.IsInStock)

	var customer businessUserResponse
	a.mustDecode(a.do(http.MethodPost, "/api/business_users", map[string]string{
		"company_name":   "Leaf Traders",
		"contact_person": "Ivan Petrov",
		"email":          "ivan@leaf.example",
		"phone":          "+79991234567",
		"referral_code":  referral,
	}, nil), http.StatusCreated, &customer)
	require.Equal(a.t, "0.00", customer.CashbackAmount)

	return product.ID, customer.ID
}

func orderBody(customerID, productID string, qty int32, total string) map[string]interface{} {
	return map[string]interface{}{
		"customer_id":      customerID,
		"total_price":      total,
		"shipping_address": "Moscow, Tverskaya 1",
		"billing_address":  "Moscow, Tverskaya 1",
		"payment_terms":    "net 30",
		"order_type":       "Online",
		"line_items": []map[string]interface{}{
			{"product_id": productID, "quantity": qty, "price": "2.00", "wholesale_price": "1.50"},
		},
	}
}

func (a *testAPI) stockOf(productID string) int32 {
	a.t.Helper()
	var product productResponse
	a.mustDecode(a.do(http.MethodGet, "/api/products/"+productID, nil, nil), http.StatusOK, &product)
	return product.StockQuantity
}

func TestCreateOrder_DecrementsStockAndAccruesCashback(t *testing.T) {
	api := newTestAPI(t, Config{})
	productID, customerID := api.seed(10, "leafcoin")

	var order orderResponse
	api.mustDecode(api.do(http.MethodPost, "/api/orders", orderBody(customerID, productID, 4, "8.00"), nil), http.StatusCreated, &order)

	require.Equal(t, "Pending", order.Status)
	require.Equal(t, "Leaf Traders", order.CustomerName)
	require.Equal(t, "8.00", order.TotalPrice)
	require.Equal(t, "0.40", order.CashbackApplied)
	require.Len(t, order.LineItems, 1)
	require.Equal(t, "Green tea", order.LineItems[0].ProductName)
	require.Equal(t, "8.00", order.LineItems[0].Total)
	require.NotEmpty(t, order.Timeline)
	require.Equal(t, int32(6), api.stockOf(productID))

	var lookup phoneLookupResponse
	api.mustDecode(api.do(http.MethodGet, "/api/business_users/lookup?phone=%2B79991234567", nil, nil), http.StatusOK, &lookup)
	require.Equal(t, "0.40", lookup.CashbackAmount)
	require.Equal(t, "leafcoin", lookup.ReferralCode)
}

func TestCreateOrder_Rejections(t *testing.T) {
	api := newTestAPI(t, Config{})
	productID, customerID := api.seed(10, "")

	tests := []struct {
		name      string
		body      interface{}
		status    int
		errorCode string
	}{
		{name: "total mismatch", body: orderBody(customerID, productID, 4, "9.00"), status: http.StatusUnprocessableEntity, errorCode: "total_mismatch"},
		{name: "insufficient stock", body: orderBody(customerID, productID, 11, "22.00"), status: http.StatusConflict, errorCode: "insufficient_stock"},
		{name: "unknown customer", body: orderBody("missing", productID, 1, "2.00"), status: http.StatusNotFound, errorCode: "not_found"},
		{name: "unknown product", body: orderBody(customerID, "missing", 1, "2.00"), status: http.StatusNotFound, errorCode: "not_found"},
		{name: "malformed json", body: `{"customer_id":`, status: http.StatusBadRequest, errorCode: "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp errorResponse
			api.mustDecode(api.do(http.MethodPost, "/api/orders", tt.body, nil), tt.status, &resp)
			require.Equal(t, tt.errorCode, resp.Error)
		})
	}

	require.Equal(t, int32(10), api.stockOf(productID))

	var list []orderResponse
	api.mustDecode(api.do(http.MethodGet, "/api/orders", nil, nil), http.StatusOK, &list)
	require.Empty(t, list)
}

func TestCreateOrder_InsufficientStockCarriesAvailability(t *testing.T) {
	api := newTestAPI(t, Config{})
	productID, customerID := api.seed(3, "")

	var resp errorResponse
	api.mustDecode(api.do(http.MethodPost, "/api/orders", orderBody(customerID, productID, 5, "10.00"), nil), http.StatusConflict, &resp)
	require.Equal(t, productID, resp.ProductID)
	require.NotNil(t, resp.Requested)
	require.NotNil(t, resp.Available)
	require.Equal(t, int32(5), *resp.Requested)
	require.Equal(t, int32(3), *resp.Available)
}

func TestCreateOrder_IdempotencyKey(t *testing.T) {
	api := newTestAPI(t, Config{})
	productID, customerID := api.seed(10, "leafcoin")
	headers := map[string]string{IdempotencyHeader: "order-42"}

	var first, second orderResponse
	api.mustDecode(api.do(http.MethodPost, "/api/orders", orderBody(customerID, productID, 2, "4.00"), headers), http.StatusCreated, &first)

	rec := api.do(http.MethodPost, "/api/orders", orderBody(customerID, productID, 2, "4.00"), headers)
	api.mustDecode(rec, http.StatusCreated, &second)
	require.Equal(t, "true", rec.Header().Get(replayedHeader))
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, int32(8), api.stockOf(productID))

	var customer businessUserResponse
	api.mustDecode(api.do(http.MethodGet, "/api/business_users/"+customerID, nil, nil), http.StatusOK, &customer)
	require.Equal(t, "0.20", customer.CashbackAmount)

	var conflict errorResponse
	api.mustDecode(api.do(http.MethodPost, "/api/orders", orderBody(customerID, productID, 3, "6.00"), headers), http.StatusConflict, &conflict)
	require.Equal(t, "idempotency_key_reused", conflict.Error)
}

func TestCreateOrder_IdempotencyKeyReplaysFailure(t *testing.T) {
	api := newTestAPI(t, Config{})
	productID, customerID := api.seed(10, "")
	headers := map[string]string{IdempotencyHeader: "order-mismatch"}

	for i := 0; i < 2; i++ {
		var resp errorResponse
		api.mustDecode(api.do(http.MethodPost, "/api/orders", orderBody(customerID, productID, 1, "3.00"), headers), http.StatusUnprocessableEntity, &resp)
		require.Equal(t, "total_mismatch", resp.Error)
	}
}

func TestUpdateOrder_AmendsLineItemsByDelta(t *testing.T) {
	api := newTestAPI(t, Config{})
	productID, customerID := api.seed(13, "")

	var order orderResponse
	api.mustDecode(api.do(http.MethodPost, "/api/orders", orderBody(customerID, productID, 3, "6.00"), nil), http.StatusCreated, &order)
	require.Equal(t, int32(10), api.stockOf(productID))
	itemID := order.LineItems[0].ID

	amend := func(qty int32) orderResponse {
		var updated orderResponse
		api.mustDecode(api.do(http.MethodPatch, "/api/orders/"+order.ID, map[string]interface{}{
			"line_items": []map[string]interface{}{
				{"id": itemID, "product_id": productID, "quantity": qty, "price": "2.00", "wholesale_price": "1.50"},
			},
		}, nil), http.StatusOK, &updated)
		return updated
	}

	updated := amend(5)
	require.Equal(t, int32(8), api.stockOf(productID))
	require.Equal(t, "10.00", updated.LineItems[0].Total)
	require.Equal(t, "6.00", updated.TotalPrice)

	amend(2)
	require.Equal(t, int32(11), api.stockOf(productID))
}

// failingStore отклоняет следующие failures пишущих транзакций и viewFailures
// чтений ошибкой err.
type failingStore struct {
	domain.Store
	err          error
	failures     atomic.Int32
	viewFailures atomic.Int32
}

func (f *failingStore) View(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if f.viewFailures.Add(-1) >= 0 {
		return f.err
	}
	return f.Store.View(ctx, fn)
}

func (f *failingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if f.failures.Add(-1) >= 0 {
		return f.err
	}
	return f.Store.WithinTx(ctx, fn)
}

func TestCreateOrder_IdempotencyKeyReleasedAfterServerError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		errorCode string
	}{
		{name: "internal error", err: errors.New("connection reset by peer"), status: http.StatusInternalServerError, errorCode: "internal_error"},
		{name: "concurrent update", err: fmt.Errorf("%w: deadlock detected", domain.ErrConcurrentUpdate), status: http.StatusServiceUnavailable, errorCode: "concurrent_update"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failing := &failingStore{err: tt.err}
			api := newTestAPIWithOrderStore(t, Config{}, func(store domain.Store) domain.Store {
				failing.Store = store
				return failing
			})
			productID, customerID := api.seed(10, "")
			headers := map[string]string{IdempotencyHeader: "order-retry"}

			failing.failures.Store(1)
			var resp errorResponse
			api.mustDecode(api.do(http.MethodPost, "/api/orders", orderBody(customerID, productID, 2, "4.00"), headers), tt.status, &resp)
			require.Equal(t, tt.errorCode, resp.Error)
			require.Equal(t, int32(10), api.stockOf(productID))

			var order orderResponse
			rec := api.do(http.MethodPost, "/api/orders", orderBody(customerID, productID, 2, "4.00"), headers)
			api.mustDecode(rec, http.StatusCreated, &order)
			require.Empty(t, rec.Header().Get(replayedHeader))
			require.Equal(t, int32(8), api.stockOf(productID))
		})
	}
}

func TestCreateOrder_IdempotencyKeyKeptWhenReadAfterCommitFails(t *testing.T) {
	failing := &failingStore{err: errors.New("connection reset by peer")}
	api := newTestAPIWithOrderStore(t, Config{}, func(store domain.Store) domain.Store {
		failing.Store = store
		return failing
	})
	productID, customerID := api.seed(10, "")
	headers := map[string]string{IdempotencyHeader: "order-committed"}

	failing.viewFailures.Store(1)
	api.mustDecode(api.do(http.MethodPost, "/api/orders", orderBody(customerID, productID, 2, "4.00"), headers), http.StatusInternalServerError, nil)
	require.Equal(t, int32(8), api.stockOf(productID))

	rec := api.do(http.MethodPost, "/api/orders", orderBody(customerID, productID, 2, "4.00"), headers)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "true", rec.Header().Get(replayedHeader))
	require.Equal(t, int32(8), api.stockOf(productID))
}

func TestCreateOrder_MissingWholesalePrice(t *testing.T) {
	api := newTestAPI(t, Config{})
	productID, customerID := api.seed(10, "")

	body := orderBody(customerID, productID, 2, "4.00")
	body["line_items"] = []map[string]interface{}{
		{"product_id": productID, "quantity": 2, "price": "2.00"},
	}

	var resp errorResponse
	api.mustDecode(api.do(http.MethodPost, "/api/orders", body, nil), http.StatusBadRequest, &resp)
	require.Equal(t, "validation_error", resp.Error)
	require.Equal(t, "wholesale_price", resp.Field)
	require.Equal(t, int32(10), api.stockOf(productID))
}

func TestUpdateOrder_QuantityOnlyKeepsPrices(t *testing.T) {
	api := newTestAPI(t, Config{})
	productID, customerID := api.seed(13, "")

	var order orderResponse
	api.mustDecode(api.do(http.MethodPost, "/api/orders", orderBody(customerID, productID, 3, "6.00"), nil), http.StatusCreated, &order)
	require.Equal(t, int32(10), api.stockOf(productID))

	var updated orderResponse
	api.mustDecode(api.do(http.MethodPatch, "/api/orders/"+order.ID, map[string]interface{}{
		"line_items": []map[string]interface{}{
			{"id": order.LineItems[0].ID, "quantity": 5},
		},
	}, nil), http.StatusOK, &updated)

	require.Len(t, updated.LineItems, 1)
	item := updated.LineItems[0]
	require.Equal(t, int32(5), item.Quantity)
	require.Equal(t, "2.00", item.Price)
	require.Equal(t, "1.50", item.WholesalePrice)
	require.Equal(t, "10.00", item.Total)
	require.Equal(t, int32(8), api.stockOf(productID))
}

func TestUpdateOrder_StatusTransitions(t *testing.T) {
	api := newTestAPI(t, Config{})
	productID, customerID := api.seed(10, "")

	var order orderResponse
	api.mustDecode(api.do(http.MethodPost, "/api/orders", orderBody(customerID, productID, 1, "2.00"), nil), http.StatusCreated, &order)

	var updated orderResponse
	api.mustDecode(api.do(http.MethodPut, "/api/orders/"+order.ID, map[string]string{"status": "Processing"}, nil), http.StatusOK, &updated)
	require.Equal(t, "Processing", updated.Status)

	var resp errorResponse
	api.mustDecode(api.do(http.MethodPatch, "/api/orders/"+order.ID, map[string]string{"status": "Pending"}, nil), http.StatusConflict, &resp)
	require.Equal(t, "illegal_status_transition", resp.Error)

	api.mustDecode(api.do(http.MethodPatch, "/api/orders/"+order.ID, map[string]string{"status": "Lost"}, nil), http.StatusBadRequest, &resp)
	require.Equal(t, "status", resp.Field)
}

func TestDeleteBusinessUser_RefusedWithOrders(t *testing.T) {
	api := newTestAPI(t, Config{})
	productID, customerID := api.seed(10, "")

	var order orderResponse
	api.mustDecode(api.do(http.MethodPost, "/api/orders", orderBody(customerID, productID, 1, "2.00"), nil), http.StatusCreated, &order)

	var resp errorResponse
	api.mustDecode(api.do(http.MethodDelete, "/api/business_users/"+customerID, nil, nil), http.StatusConflict, &resp)
	require.Equal(t, "has_existing_orders", resp.Error)

	api.mustDecode(api.do(http.MethodDelete, "/api/orders/"+order.ID, nil, nil), http.StatusNoContent, nil)
	require.Equal(t, int32(9), api.stockOf(productID))
	api.mustDecode(api.do(http.MethodDelete, "/api/business_users/"+customerID, nil, nil), http.StatusNoContent, nil)
	api.mustDecode(api.do(http.MethodGet, "/api/business_users/"+customerID, nil, nil), http.StatusNotFound, nil)
}

func TestOrdersByCompany(t *testing.T) {
	api := newTestAPI(t, Config{})
	productID, customerID := api.seed(10, "")

	api.mustDecode(api.do(http.MethodPost, "/api/orders", orderBody(customerID, productID, 1, "2.00"), nil), http.StatusCreated, nil)

	var list []orderResponse
	api.mustDecode(api.do(http.MethodGet, "/api/orders/by_company?company_name=Leaf+Traders", nil, nil), http.StatusOK, &list)
	require.Len(t, list, 1)
	require.Equal(t, customerID, list[0].CustomerID)

	api.mustDecode(api.do(http.MethodGet, "/api/orders/by_company?company_name=Nobody", nil, nil), http.StatusNotFound, nil)
}

func TestLookupByPhone(t *testing.T) {
	api := newTestAPI(t, Config{})
	api.seed(1, "")

	tests := []struct {
		name   string
		phone  string
		status int
	}{
		{name: "found", phone: "%2B79991234567", status: http.StatusOK},
		{name: "unknown", phone: "%2B79990000000", status: http.StatusNotFound},
		{name: "letters", phone: "call-me", status: http.StatusBadRequest},
		{name: "too short", phone: "12345", status: http.StatusBadRequest},
		{name: "empty", phone: "", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(http.MethodGet, "/api/business_users/lookup?phone="+tt.phone, nil, nil)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestCatalogValidation(t *testing.T) {
	api := newTestAPI(t, Config{})

	var resp errorResponse
	api.mustDecode(api.do(http.MethodPost, "/api/categories", map[string]string{"name": " "}, nil), http.StatusBadRequest, &resp)
	require.Equal(t, "name", resp.Field)

	api.mustDecode(api.do(http.MethodPost, "/api/categories", map[string]string{"name": "Coffee"}, nil), http.StatusCreated, nil)
	api.mustDecode(api.do(http.MethodPost, "/api/categories", map[string]string{"name": "Coffee"}, nil), http.StatusConflict, &resp)
	require.Equal(t, "duplicate", resp.Error)

	api.mustDecode(api.do(http.MethodPost, "/api/offers", map[string]interface{}{
		"title":               "Spring sale",
		"discount_percentage": "120",
	}, nil), http.StatusBadRequest, &resp)
	require.Equal(t, "discount_percentage", resp.Field)

	api.mustDecode(api.do(http.MethodPost, "/api/products", map[string]interface{}{
		"category_id":  "missing",
		"product_name": "Ghost",
	}, nil), http.StatusBadRequest, &resp)
	require.Equal(t, "category_id", resp.Field)
}

func TestRateLimiter(t *testing.T) {
	api := newTestAPI(t, Config{RateLimitRPS: 1})

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/offers", nil, nil).Code)
	require.Equal(t, http.StatusTooManyRequests, api.do(http.MethodGet, "/api/offers", nil, nil).Code)
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t, Config{})

	var resp errorResponse
	api.mustDecode(api.do(http.MethodGet, "/api/unknown", nil, nil), http.StatusNotFound, &resp)
	require.Equal(t, "not_found", resp.Error)
}
