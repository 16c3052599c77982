// Package billing holds the cart arithmetic behind the billing screen:
// stock-checked line management, percentage discounts and the bill payload.
package billing

import (
	"errors"
	"math"
	"strings"
	"sync"

	v1 "github.com/sha03112000/autohead/pkg/api/v1"
)

var (
	ErrInsufficientStock = errors.New("cannot add more items than available in stock")
	ErrEmptyCart         = errors.New("cart is empty")
)

// StockItem is one sellable vendor product with its current stock.
type StockItem struct {
	VendorProductID int64
	Name            string
	Price           float64
	Stock           int
}

// StockItems joins the dropdown's vendor products with their product names.
// Inactive vendor products are left out.
func StockItems(d v1.DropdownData) []StockItem {
	names := make(map[int64]string, len(d.Products))
	for _, p := range d.Products {
		names[p.ID] = p.ProductName
	}

	items := make([]StockItem, 0, len(d.VendorProducts))
	for _, vp := range d.VendorProducts {
		if !vp.IsActive {
			continue
		}
		items = append(items, StockItem{
			VendorProductID: vp.ID,
			Name:            names[vp.Product],
			Price:           vp.Price.Float64(),
			Stock:           vp.Stock,
		})
	}
	return items
}

// Search filters items by a case-insensitive substring of the product name.
// An empty term matches everything.
func Search(items []StockItem, term string) []StockItem {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]StockItem, 0, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Name), term) {
			out = append(out, it)
		}
	}
	return out
}

type Line struct {
	ID              int64
	VendorProductID int64
	Name            string
	Price           float64
	Quantity        int
}

// Cart is safe for concurrent use.
type Cart struct {
	mu     sync.Mutex
	lines  []Line
	nextID int64
}

func NewCart() *Cart {
	return &Cart{}
}

// Add puts one unit of item in the cart, merging with an existing line for
// the same vendor product.
func (c *Cart) Add(item StockItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.lines {
		if c.lines[i].VendorProductID != item.VendorProductID {
			continue
		}
		if c.lines[i].Quantity >= item.Stock {
			return ErrInsufficientStock
		}
		c.lines[i].Quantity++
		return nil
	}

	if item.Stock <= 0 {
		return ErrInsufficientStock
	}
	c.nextID++
	c.lines = append(c.lines, Line{
		ID:              c.nextID,
		VendorProductID: item.VendorProductID,
		Name:            item.Name,
		Price:           item.Price,
		Quantity:        1,
	})
	return nil
}

// UpdateQuantity adds delta to a line. Lines that drop to zero are removed.
func (c *Cart) UpdateQuantity(lineID int64, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.lines[:0]
	for _, l := range c.lines {
		if l.ID == lineID {
			l.Quantity = max(0, l.Quantity+delta)
		}
		if l.Quantity > 0 {
			kept = append(kept, l)
		}
	}
	c.lines = kept
}

func (c *Cart) Remove(lineID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.lines[:0]
	for _, l := range c.lines {
		if l.ID != lineID {
			kept = append(kept, l)
		}
	}
	c.lines = kept
}

func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Line(nil), c.lines...)
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}

func (c *Cart) Subtotal() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subtotal()
}

func (c *Cart) subtotal() float64 {
	var sum float64
	for _, l := range c.lines {
		sum += l.Price * float64(l.Quantity)
	}
	return sum
}

// DiscountAmount is the money taken off for a percentage discount. The
// percentage is clamped to [0, 100].
func (c *Cart) DiscountAmount(percent float64) float64 {
	return c.Subtotal() * clampPercent(percent) / 100
}

func (c *Cart) Total(percent float64) float64 {
	sub := c.Subtotal()
	return sub - sub*clampPercent(percent)/100
}

// BillRequest builds the create-bill payload. The discount sent is the
// discount amount, not the percentage.
func (c *Cart) BillRequest(customer string, percent float64) (v1.BillRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.lines) == 0 {
		return v1.BillRequest{}, ErrEmptyCart
	}

	items := make([]v1.BillItem, 0, len(c.lines))
	for _, l := range c.lines {
		items = append(items, v1.BillItem{
			VendorProduct: l.VendorProductID,
			Quantity:      l.Quantity,
			SellingPrice:  v1.Decimal(l.Price).Round(),
		})
	}

	return v1.BillRequest{
		CustomerName: strings.TrimSpace(customer),
		Discount:     v1.Decimal(c.subtotal() * clampPercent(percent) / 100).Round(),
		Items:        items,
	}, nil
}

func clampPercent(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	return math.Min(p, 100)
}
