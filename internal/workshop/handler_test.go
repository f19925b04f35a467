package workshop_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/workshop"
)

func newWorkshopRouter(t *testing.T) (*chi.Mux, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	repo.stock.Seed(1, "BRAKE-PAD", 10)
	svc := workshop.NewService(repo, nil, &fakeCreator{}, nil, nil)
	h := workshop.NewHandler(nil, svc, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("X-Test-User") != "" {
				req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: 7, Username: "mechanic"}))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/api/workshop", h.MountRoutes)
	return r, repo
}

func send(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Test-User", "mechanic")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlerOrderFlow(t *testing.T) {
	r, repo := newWorkshopRouter(t)

	w := send(t, r, http.MethodPost, "/api/workshop/orders", map[string]any{"customer_id": 3, "mechanic_id": 7})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var order workshop.Order
	require.NoError(t, json.NewDecoder(w.Body).Decode(&order))

	w = send(t, r, http.MethodPost, fmt.Sprintf("/api/workshop/orders/%d/consumptions", order.ID),
		map[string]any{"product_id": 1, "quantity": "2", "unit_price": "10", "tax_rate": "0"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, repo.stock.Quantity(1).Equal(dec("8")))

	w = send(t, r, http.MethodPost, fmt.Sprintf("/api/workshop/orders/%d/bill", order.ID), map[string]any{"type": "INVOICE"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = send(t, r, http.MethodPost, fmt.Sprintf("/api/workshop/orders/%d/bill", order.ID), map[string]any{"type": "INVOICE"})
	require.Equal(t, http.StatusConflict, w.Code)
	var p httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, "already_billed", p.Code)

	w = send(t, r, http.MethodGet, fmt.Sprintf("/api/workshop/orders/%d", order.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"BILLED"`)
}

func TestHandlerInsufficientStock(t *testing.T) {
	r, _ := newWorkshopRouter(t)
	w := send(t, r, http.MethodPost, "/api/workshop/mechanics/7/drawer", map[string]any{"product_id": 1, "quantity": "50"})
	require.Equal(t, http.StatusConflict, w.Code)
	var p httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, "insufficient_stock", p.Code)
}

func TestHandlerRejectsBadBillType(t *testing.T) {
	r, _ := newWorkshopRouter(t)
	w := send(t, r, http.MethodPost, "/api/workshop/orders/1/bill", map[string]any{"type": "QUOTATION"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
