package billing

import (
	"testing"

	v1 "github.com/sha03112000/autohead/pkg/api/v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCart_AddRespectsStock(t *testing.T) {
	c := NewCart()
	pads := StockItem{VendorProductID: 7, Name: "Brake Pad", Price: 450, Stock: 2}

	require.NoError(t, c.Add(pads))
	require.NoError(t, c.Add(pads))
	assert.ErrorIs(t, c.Add(pads), ErrInsufficientStock)

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)

	assert.ErrorIs(t, c.Add(StockItem{VendorProductID: 8, Name: "Clutch", Stock: 0}), ErrInsufficientStock)
	assert.Equal(t, 1, c.Len())
}

func TestCart_UpdateQuantityAndRemove(t *testing.T) {
	c := NewCart()
	require.NoError(t, c.Add(StockItem{VendorProductID: 1, Name: "Oil Filter", Price: 120, Stock: 10}))
	require.NoError(t, c.Add(StockItem{VendorProductID: 2, Name: "Spark Plug", Price: 80, Stock: 10}))
	lines := c.Lines()

	c.UpdateQuantity(lines[0].ID, 3)
	assert.Equal(t, 4, c.Lines()[0].Quantity)

	c.UpdateQuantity(lines[0].ID, -10)
	require.Len(t, c.Lines(), 1)
	assert.Equal(t, int64(2), c.Lines()[0].VendorProductID)

	c.Remove(lines[1].ID)
	assert.Zero(t, c.Len())

	// unknown line is a no-op
	c.Remove(99)
	c.UpdateQuantity(99, 1)
	assert.Zero(t, c.Len())
}

func TestCart_Totals(t *testing.T) {
	c := NewCart()
	item := StockItem{VendorProductID: 1, Name: "Headlamp", Price: 250, Stock: 5}
	require.NoError(t, c.Add(item))
	require.NoError(t, c.Add(item))
	require.NoError(t, c.Add(StockItem{VendorProductID: 2, Name: "Mirror", Price: 100, Stock: 1}))

	tests := []struct {
		percent      float64
		wantDiscount float64
		wantTotal    float64
	}{
		{0, 0, 600},
		{10, 60, 540},
		{100, 600, 0},
		{-5, 0, 600},
		{150, 600, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, 600, c.Subtotal(), 1e-9)
		assert.InDelta(t, tt.wantDiscount, c.DiscountAmount(tt.percent), 1e-9, "percent %v", tt.percent)
		assert.InDelta(t, tt.wantTotal, c.Total(tt.percent), 1e-9, "percent %v", tt.percent)
	}
}

func TestCart_BillRequest(t *testing.T) {
	c := NewCart()
	_, err := c.BillRequest("Ravi", 5)
	assert.ErrorIs(t, err, ErrEmptyCart)

	require.NoError(t, c.Add(StockItem{VendorProductID: 3, Name: "Wiper", Price: 199.99, Stock: 4}))
	require.NoError(t, c.Add(StockItem{VendorProductID: 3, Name: "Wiper", Price: 199.99, Stock: 4}))

	req, err := c.BillRequest("  Ravi ", 10)
	require.NoError(t, err)
	assert.Equal(t, "Ravi", req.CustomerName)
	assert.Equal(t, v1.Decimal(40), req.Discount)
	require.Len(t, req.Items, 1)
	assert.Equal(t, v1.BillItem{VendorProduct: 3, Quantity: 2, SellingPrice: 199.99}, req.Items[0])
}

func TestStockItemsAndSearch(t *testing.T) {
	d := v1.DropdownData{
		Products: []v1.ProductOption{{ID: 1, ProductName: "Brake Pad"}, {ID: 2, ProductName: "Air Filter"}},
		VendorProducts: []v1.VendorProduct{
			{ID: 10, Product: 1, Price: 450, Stock: 3, IsActive: true},
			{ID: 11, Product: 2, Price: 300, Stock: 1, IsActive: true},
			{ID: 12, Product: 2, Price: 280, Stock: 9, IsActive: false},
		},
	}

	items := StockItems(d)
	require.Len(t, items, 2)
	assert.Equal(t, StockItem{VendorProductID: 10, Name: "Brake Pad", Price: 450, Stock: 3}, items[0])

	assert.Len(t, Search(items, ""), 2)
	got := Search(items, "FILT")
	require.Len(t, got, 1)
	assert.Equal(t, int64(11), got[0].VendorProductID)
	assert.Empty(t, Search(items, "tyre"))
}
