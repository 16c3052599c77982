package v1

type CategoryRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type VendorRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// VendorProduct links a product to a vendor with that vendor's code, price
// and stock.
type VendorProduct struct {
	ID           int64      `json:"id"`
	VendorCode   string     `json:"vendor_code"`
	VendorDetail *VendorRef `json:"vendor_detail,omitempty"`
	Price        Decimal    `json:"price"`
	Cost         Decimal    `json:"cost"`
	Stock        int        `json:"stock"`
	IsActive     bool       `json:"is_active"`
	Product      int64      `json:"product"`
	Vendor       int64      `json:"vendor"`
}

type Product struct {
	ID             int64           `json:"id"`
	ProductCode    string          `json:"product_code"`
	StockCount     int             `json:"stock_count"`
	CategoryDetail *CategoryRef    `json:"category_detail,omitempty"`
	VendorProducts []VendorProduct `json:"vendor_products,omitempty"`
	ProductName    string          `json:"product_name"`
	Description    string          `json:"description,omitempty"`
	IsActive       bool            `json:"is_active"`
	Image          string          `json:"image,omitempty"`
	ImageURL       string          `json:"image_url,omitempty"`
}

type ProductListData struct {
	Products   Page[Product] `json:"products"`
	Categories []CategoryRef `json:"categories"`
}

type ProductRequest struct {
	ProductName string `json:"product_name" validate:"required"`
	ProductCode string `json:"product_code" validate:"required"`
	Category    int64  `json:"category" validate:"required"`
	Description string `json:"description,omitempty"`
}

type VendorProductRequest struct {
	VendorCode string  `json:"vendor_code" validate:"required"`
	Price      Decimal `json:"price" validate:"gte=0"`
	Cost       Decimal `json:"cost" validate:"gte=0"`
	Stock      int     `json:"stock" validate:"gte=0"`
	Product    int64   `json:"product" validate:"required"`
	Vendor     int64   `json:"vendor" validate:"required"`
}

type ProductOption struct {
	ID          int64  `json:"id"`
	ProductName string `json:"product_name"`
}

// DropdownData feeds the vendor-product form and the billing screen.
type DropdownData struct {
	Products       []ProductOption `json:"products"`
	Vendors        []VendorRef     `json:"vendors"`
	VendorProducts []VendorProduct `json:"vendor_products,omitempty"`
}
