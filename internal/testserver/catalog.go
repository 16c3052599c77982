package testserver

import (
	"fmt"
	"sort"
	"sync"
	"time"

	v1 "github.com/sha03112000/autohead/pkg/api/v1"
)

// LowStockThreshold matches the backend's dashboard cut-off.
const LowStockThreshold = 5

type product struct {
	v1.Product
	category  int64
	createdAt time.Time
}

type vendor struct {
	v1.Vendor
	createdAt time.Time
}

// catalog is the fake backend's in-memory database.
type catalog struct {
	mu     sync.Mutex
	nextID int64
	now    func() time.Time

	categories     []v1.Category
	vendors        []*vendor
	products       []*product
	vendorProducts []*v1.VendorProduct
	bills          []v1.Bill
}

func newCatalog() *catalog {
	return &catalog{now: time.Now}
}

func (d *catalog) id() int64 {
	d.nextID++
	return d.nextID
}

func (d *catalog) category(id int64) (int, bool) {
	for i, c := range d.categories {
		if c.ID == id {
			return i, true
		}
	}
	return -1, false
}

func (d *catalog) vendor(id int64) *vendor {
	for _, v := range d.vendors {
		if v.ID == id {
			return v
		}
	}
	return nil
}

func (d *catalog) product(id int64) *product {
	for _, p := range d.products {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (d *catalog) vendorProduct(id int64) *v1.VendorProduct {
	for _, vp := range d.vendorProducts {
		if vp.ID == id {
			return vp
		}
	}
	return nil
}

// productView fills the derived fields the backend serializer adds.
func (d *catalog) productView(p *product) v1.Product {
	out := p.Product
	out.VendorProducts = nil
	out.StockCount = 0
	if i, ok := d.category(p.category); ok {
		out.CategoryDetail = &v1.CategoryRef{ID: d.categories[i].ID, Name: d.categories[i].Name}
	}
	for _, vp := range d.vendorProducts {
		if vp.Product != p.ID {
			continue
		}
		view := *vp
		if v := d.vendor(vp.Vendor); v != nil {
			view.VendorDetail = &v1.VendorRef{ID: v.ID, Name: v.Name}
		}
		out.VendorProducts = append(out.VendorProducts, view)
		if vp.IsActive {
			out.StockCount += vp.Stock
		}
	}
	return out
}

func (d *catalog) activeProducts() []v1.Product {
	var list []*product
	for _, p := range d.products {
		if p.IsActive {
			list = append(list, p)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].createdAt.After(list[j].createdAt) })

	out := make([]v1.Product, 0, len(list))
	for _, p := range list {
		out = append(out, d.productView(p))
	}
	return out
}

func (d *catalog) activeVendors() []v1.Vendor {
	var list []*vendor
	for _, v := range d.vendors {
		if v.IsActive {
			list = append(list, v)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].createdAt.After(list[j].createdAt) })

	out := make([]v1.Vendor, 0, len(list))
	for _, v := range list {
		out = append(out, v.Vendor)
	}
	return out
}

func (d *catalog) addCategory(name, description string) v1.Category {
	c := v1.Category{ID: d.id(), Name: name, Description: description}
	d.categories = append(d.categories, c)
	return c
}

func (d *catalog) addVendor(req v1.VendorRequest) v1.Vendor {
	v := &vendor{
		Vendor: v1.Vendor{
			ID:        d.id(),
			Name:      req.Name,
			Phone:     v1.FlexString(req.Phone),
			Email:     req.Email,
			Address:   req.Address,
			IsActive:  true,
			GSTNumber: req.GSTNumber,
			State:     req.State,
			City:      req.City,
			Pincode:   req.Pincode,
		},
		createdAt: d.now(),
	}
	if req.Bank != nil {
		v.Bank = &v1.Bank{
			ID:            d.id(),
			BankName:      req.Bank.BankName,
			BranchName:    req.Bank.BranchName,
			AccountNumber: req.Bank.AccountNumber,
			IFSCCode:      req.Bank.IFSCCode,
			IsActive:      true,
		}
	}
	d.vendors = append(d.vendors, v)
	return v.Vendor
}

func (d *catalog) addProduct(req v1.ProductRequest) v1.Product {
	p := &product{
		Product: v1.Product{
			ID:          d.id(),
			ProductCode: req.ProductCode,
			ProductName: req.ProductName,
			Description: req.Description,
			IsActive:    true,
		},
		category:  req.Category,
		createdAt: d.now(),
	}
	d.products = append(d.products, p)
	return d.productView(p)
}

func (d *catalog) addVendorProduct(req v1.VendorProductRequest) v1.VendorProduct {
	vp := &v1.VendorProduct{
		ID:         d.id(),
		VendorCode: req.VendorCode,
		Price:      req.Price.Round(),
		Cost:       req.Cost.Round(),
		Stock:      req.Stock,
		IsActive:   true,
		Product:    req.Product,
		Vendor:     req.Vendor,
	}
	d.vendorProducts = append(d.vendorProducts, vp)
	return *vp
}

// stockError is a field error on a bill line.
type stockError struct {
	msg string
}

func (e *stockError) Error() string { return e.msg }

// createBill checks every line before touching stock so a rejected bill
// leaves the catalog unchanged.
func (d *catalog) createBill(req v1.BillRequest) (v1.Bill, error) {
	var net float64
	for _, it := range req.Items {
		vp := d.vendorProduct(it.VendorProduct)
		if vp == nil || !vp.IsActive {
			return v1.Bill{}, &stockError{msg: fmt.Sprintf("Invalid vendor product %d.", it.VendorProduct)}
		}
		if it.Quantity <= 0 {
			return v1.Bill{}, &stockError{msg: "Quantity must be greater than zero."}
		}
		if vp.Stock < it.Quantity {
			name := vp.VendorCode
			if p := d.product(vp.Product); p != nil {
				name = p.ProductName
			}
			return v1.Bill{}, &stockError{msg: fmt.Sprintf("Insufficient stock for %s.", name)}
		}
		net += it.SellingPrice.Float64() * float64(it.Quantity)
	}
	for _, it := range req.Items {
		d.vendorProduct(it.VendorProduct).Stock -= it.Quantity
	}

	total := max(net-req.Discount.Float64(), 0)
	now := d.now()
	b := v1.Bill{
		ID:           d.id(),
		InvoiceNo:    fmt.Sprintf("INV-%05d", len(d.bills)+1),
		CustomerName: req.CustomerName,
		NetAmount:    v1.Decimal(net).Round(),
		Discount:     req.Discount.Round(),
		TotalAmount:  v1.Decimal(total).Round(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	d.bills = append(d.bills, b)
	return b, nil
}

// recentBills returns up to n bills, newest first.
func (d *catalog) recentBills(n int) []v1.Bill {
	out := make([]v1.Bill, 0, n)
	for i := len(d.bills) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, d.bills[i])
	}
	return out
}

func (d *catalog) dashboard() v1.Dashboard {
	now := d.now()
	out := v1.Dashboard{
		LowStockProducts: []v1.LowStockProduct{},
		MonthlySales:     []v1.MonthlySales{},
	}

	for _, p := range d.products {
		if p.IsActive {
			out.TotalProducts++
		}
	}
	for _, v := range d.vendors {
		if v.IsActive {
			out.TotalVendors++
		}
	}
	for _, vp := range d.vendorProducts {
		if !vp.IsActive || vp.Stock >= LowStockThreshold {
			continue
		}
		out.LowStock++
		p := d.product(vp.Product)
		if p == nil {
			continue
		}
		row := v1.LowStockProduct{ProductID: p.ID, ProductName: p.ProductName, Stock: vp.Stock}
		if v := d.vendor(vp.Vendor); v != nil {
			row.VendorID, row.VendorName = v.ID, v.Name
		}
		out.LowStockProducts = append(out.LowStockProducts, row)
	}

	monthly := map[time.Month]float64{}
	y, m, day := now.Date()
	for _, b := range d.bills {
		out.TotalBills++
		by, bm, bd := b.CreatedAt.Date()
		if by == y && bm == m && bd == day {
			out.TotalSalesToday += b.TotalAmount
		}
		if by == y && bm == m {
			out.MonthlyRevenue += b.TotalAmount
		}
		if by == y {
			monthly[bm] += b.TotalAmount.Float64()
		}
	}
	for month := time.January; month <= time.December; month++ {
		if total, ok := monthly[month]; ok {
			out.MonthlySales = append(out.MonthlySales, v1.MonthlySales{Month: month.String(), TotalSales: v1.Decimal(total).Round()})
		}
	}
	out.TotalSalesToday = out.TotalSalesToday.Round()
	out.MonthlyRevenue = out.MonthlyRevenue.Round()
	return out
}

// seed loads a small parts catalogue so every screen has data.
func (d *catalog) seed() {
	brakes := d.addCategory("Brakes", "Pads, discs and shoes")
	filters := d.addCategory("Filters", "Oil, air and fuel filters")

	acme := d.addVendor(v1.VendorRequest{
		Name: "Acme Auto Parts", Phone: "9876543210", Email: "sales@acme.example",
		City: "Kochi", State: "Kerala", Pincode: "682001",
		Bank: &v1.BankInput{BankName: "State Bank", BranchName: "MG Road", AccountNumber: "00112233", IFSCCode: "SBIN0000001"},
	})
	zenith := d.addVendor(v1.VendorRequest{Name: "Zenith Motors", Phone: "9123456780", Email: "orders@zenith.example"})

	pads := d.addProduct(v1.ProductRequest{ProductName: "Brake Pad Set", ProductCode: "BRK-001", Category: brakes.ID})
	disc := d.addProduct(v1.ProductRequest{ProductName: "Brake Disc", ProductCode: "BRK-002", Category: brakes.ID})
	oil := d.addProduct(v1.ProductRequest{ProductName: "Oil Filter", ProductCode: "FLT-001", Category: filters.ID})

	d.addVendorProduct(v1.VendorProductRequest{VendorCode: "AC-BP1", Price: 450, Cost: 300, Stock: 20, Product: pads.ID, Vendor: acme.ID})
	d.addVendorProduct(v1.VendorProductRequest{VendorCode: "ZN-BP1", Price: 430, Cost: 310, Stock: 3, Product: pads.ID, Vendor: zenith.ID})
	d.addVendorProduct(v1.VendorProductRequest{VendorCode: "AC-BD1", Price: 1200, Cost: 900, Stock: 8, Product: disc.ID, Vendor: acme.ID})
	d.addVendorProduct(v1.VendorProductRequest{VendorCode: "ZN-OF1", Price: 180, Cost: 120, Stock: 2, Product: oil.ID, Vendor: zenith.ID})
}
