package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProducts() []Product {
	return []Product{
		{ID: 1, Name: "Wildcat Hoodie", Description: "Fleece hoodie", Price: "450.00", CategoryName: "Apparel", IsInStock: true, StockQuantity: 12},
		{ID: 2, Name: "Lanyard", Description: "ID lanyard", Price: "45.00", CategoryName: "Accessories", IsInStock: false},
		{ID: 3, Name: "Tumbler", Description: "Steel tumbler", Price: "180.00", CategoryName: "Accessories", IsInStock: true, StockQuantity: 3},
		{ID: 4, Name: "Varsity Jacket", Description: "Limited edition", Price: "980.00", CategoryName: "Apparel", IsInStock: true, StockQuantity: 1},
	}
}

func TestProductFilter(t *testing.T) {
	products := sampleProducts()

	t.Run("empty filter passes everything", func(t *testing.T) {
		out := ProductFilter{}.Apply(products)
		assert.Len(t, out, 4)
	})

	t.Run("search matches name and description", func(t *testing.T) {
		out := ProductFilter{Search: "hoodie"}.Apply(products)
		require.Len(t, out, 1)
		assert.Equal(t, int64(1), out[0].ID)

		out = ProductFilter{Search: "steel"}.Apply(products)
		require.Len(t, out, 1)
		assert.Equal(t, int64(3), out[0].ID)
	})

	t.Run("category is case insensitive", func(t *testing.T) {
		out := ProductFilter{Category: "apparel"}.Apply(products)
		assert.Len(t, out, 2)
	})

	t.Run("price buckets", func(t *testing.T) {
		assert.Len(t, ProductFilter{PriceRange: PriceRangeUnder50}.Apply(products), 1)
		assert.Len(t, ProductFilter{PriceRange: PriceRange50To200}.Apply(products), 1)
		assert.Len(t, ProductFilter{PriceRange: PriceRange200To500}.Apply(products), 1)
		assert.Len(t, ProductFilter{PriceRange: PriceRangeOver500}.Apply(products), 1)
	})

	t.Run("in stock view excludes sold out", func(t *testing.T) {
		out := ProductFilter{Stock: StockIn}.Apply(products)
		assert.Len(t, out, 3)
		for _, p := range out {
			assert.True(t, p.IsInStock)
		}
	})

	t.Run("out of stock view shows only sold out", func(t *testing.T) {
		out := ProductFilter{Stock: StockOut}.Apply(products)
		require.Len(t, out, 1)
		assert.Equal(t, "Lanyard", out[0].Name)
	})

	t.Run("criteria combine", func(t *testing.T) {
		out := ProductFilter{
			Category:   "Accessories",
			Stock:      StockIn,
			PriceRange: PriceRange50To200,
		}.Apply(products)
		require.Len(t, out, 1)
		assert.Equal(t, "Tumbler", out[0].Name)
	})
}

func sampleOrders() []Order {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	return []Order{
		{ID: 1, Status: StatusPending, TotalAmount: "450.00", CreatedAt: base},
		{ID: 2, Status: StatusReleased, TotalAmount: "45.00", CreatedAt: base.Add(24 * time.Hour)},
		{ID: 3, Status: StatusApproved, TotalAmount: "980.00", CreatedAt: base.Add(48 * time.Hour)},
		{ID: 4, Status: StatusReleased, TotalAmount: "180.00", CreatedAt: base.Add(72 * time.Hour)},
	}
}

func TestReservationFilter(t *testing.T) {
	orders := sampleOrders()

	t.Run("defaults to newest first", func(t *testing.T) {
		out := ReservationFilter{}.Apply(orders)
		require.Len(t, out, 4)
		assert.Equal(t, int64(4), out[0].ID)
		assert.Equal(t, int64(1), out[3].ID)
	})

	t.Run("status filters", func(t *testing.T) {
		out := ReservationFilter{Status: StatusReleased}.Apply(orders)
		assert.Len(t, out, 2)
	})

	t.Run("amount high to low", func(t *testing.T) {
		out := ReservationFilter{Sort: SortAmountHigh}.Apply(orders)
		require.Len(t, out, 4)
		assert.Equal(t, int64(3), out[0].ID)
	})

	t.Run("amount low to high", func(t *testing.T) {
		out := ReservationFilter{Sort: SortAmountLow}.Apply(orders)
		require.Len(t, out, 4)
		assert.Equal(t, int64(2), out[0].ID)
	})

	t.Run("input slice is untouched", func(t *testing.T) {
		before := orders[0].ID
		ReservationFilter{Sort: SortAmountHigh}.Apply(orders)
		assert.Equal(t, before, orders[0].ID)
	})
}

func TestSummarize(t *testing.T) {
	stats := Summarize(sampleOrders())

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Approved)
	assert.Equal(t, 2, stats.Released)
	assert.InDelta(t, 225.0, stats.Revenue, 0.001)
}
