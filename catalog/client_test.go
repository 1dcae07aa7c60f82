package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL + "/api")
	require.NoError(t, err)
	return client
}

func TestListProducts(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products/", r.URL.Path)
		json.NewEncoder(w).Encode([]Product{
			{ID: 1, Name: "Wildcat Hoodie", Price: "450.00", IsInStock: true, StockQuantity: 12},
			{ID: 2, Name: "Lanyard", Price: "45.00", IsInStock: false},
		})
	}))

	products, err := client.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, 450.0, products[0].PriceValue())
}

func TestListCategories(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products/categories/", r.URL.Path)
		json.NewEncoder(w).Encode([]Category{{Name: "Apparel"}, {Name: "Accessories"}})
	}))

	categories, err := client.ListCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "Apparel", categories[0].Name)
}

func TestReserve(t *testing.T) {
	t.Run("out of stock never reaches the network", func(t *testing.T) {
		called := false
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		product := Product{ID: 2, Name: "Lanyard", IsInStock: false}
		_, err := client.Reserve(context.Background(), product, ReservationRequest{Quantity: 1})

		assert.ErrorIs(t, err, ErrOutOfStock)
		assert.False(t, called)
	})

	t.Run("zero stock with stale flag is also refused", func(t *testing.T) {
		called := false
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		product := Product{ID: 3, IsInStock: true, StockQuantity: 0}
		_, err := client.Reserve(context.Background(), product, ReservationRequest{Quantity: 1})

		assert.ErrorIs(t, err, ErrOutOfStock)
		assert.False(t, called)
	})

	t.Run("posts exactly product id, quantity and notes", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/orders/create-reservation/", r.URL.Path)

			raw, err := io.ReadAll(r.Body)
			require.NoError(t, err)

			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, float64(1), body["product_id"])
			assert.Equal(t, float64(2), body["quantity"])
			assert.Equal(t, "for the varsity game", body["notes"])
			assert.NotContains(t, body, "user_id")

			json.NewEncoder(w).Encode(Order{
				ID:          77,
				OrderNumber: "RES-2026-0042",
				OrderType:   OrderTypeReservation,
				Status:      StatusPending,
				TotalAmount: "900.00",
			})
		}))

		product := Product{ID: 1, Name: "Wildcat Hoodie", IsInStock: true, StockQuantity: 12}
		order, err := client.Reserve(context.Background(), product, ReservationRequest{
			Quantity: 2,
			Notes:    "for the varsity game",
		})
		require.NoError(t, err)
		assert.Equal(t, "RES-2026-0042", order.OrderNumber)
		assert.Equal(t, StatusPending, order.Status)
	})

	t.Run("blank notes default to the product name", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Reservation for Lanyard", body["notes"])

			json.NewEncoder(w).Encode(Order{OrderNumber: "RES-2026-0043"})
		}))

		product := Product{ID: 2, Name: "Lanyard", IsInStock: true, StockQuantity: 5}
		_, err := client.Reserve(context.Background(), product, ReservationRequest{Quantity: 1})
		require.NoError(t, err)
	})

	t.Run("API error message surfaces verbatim", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "insufficient stock for Wildcat Hoodie",
			})
		}))

		product := Product{ID: 1, IsInStock: true, StockQuantity: 1}
		_, err := client.Reserve(context.Background(), product, ReservationRequest{Quantity: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insufficient stock for Wildcat Hoodie")
	})
}

func TestCancelOrder(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/orders/42/cancel/", r.URL.Path)

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Empty(t, raw)

		json.NewEncoder(w).Encode(Order{ID: 42, Status: StatusCancelled})
	}))

	order, err := client.CancelOrder(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, order.Status)
}

func TestListOrders(t *testing.T) {
	serveOrders := func(t *testing.T, orders []Order) *Client {
		return newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/orders/", r.URL.Path)
			json.NewEncoder(w).Encode(orders)
		}))
	}

	t.Run("decodes the full order shape", func(t *testing.T) {
		client := serveOrders(t, []Order{{
			ID:          9,
			OrderNumber: "RES-2026-0009",
			OrderType:   OrderTypeReservation,
			Status:      StatusReleased,
			TotalAmount: "450.00",
			Notes:       "pickup after class",
			Items:       []OrderItem{{ID: 1, ProductName: "Wildcat Hoodie", Quantity: 1, UnitPrice: "450.00"}},
		}})

		orders, err := client.ListOrders(context.Background(), "")
		require.NoError(t, err)
		require.Len(t, orders, 1)
		assert.Equal(t, "RES-2026-0009", orders[0].OrderNumber)
		assert.Equal(t, StatusReleased, orders[0].Status)
		assert.Equal(t, "pickup after class", orders[0].Notes)
		assert.Equal(t, "450.00", orders[0].Items[0].UnitPrice)
	})

	t.Run("walk in orders are dropped", func(t *testing.T) {
		client := serveOrders(t, []Order{
			{ID: 1, OrderType: OrderTypeReservation, Status: StatusPending},
			{ID: 2, OrderType: OrderTypeWalkIn, Status: StatusReleased},
		})

		orders, err := client.ListOrders(context.Background(), "")
		require.NoError(t, err)
		require.Len(t, orders, 1)
		assert.Equal(t, int64(1), orders[0].ID)
	})

	t.Run("scopes to a user when asked", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/orders/", r.URL.Path)
			assert.Equal(t, "u-1", r.URL.Query().Get("user_id"))
			json.NewEncoder(w).Encode([]Order{{ID: 1, OrderType: OrderTypeReservation}})
		}))

		orders, err := client.ListOrders(context.Background(), "u-1")
		require.NoError(t, err)
		assert.Len(t, orders, 1)
	})
}

func TestOrderCanCancel(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusPending, true},
		{StatusApproved, true},
		{StatusReleased, false},
		{StatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, Order{Status: tt.status}.CanCancel())
		})
	}
}

func TestTokenSource(t *testing.T) {
	var sawAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]Product{})
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, WithTokenSource(func() string { return "token-123" }))
	require.NoError(t, err)

	_, err = client.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer token-123", sawAuth)
}
