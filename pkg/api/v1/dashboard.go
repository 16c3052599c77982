package v1

type LowStockProduct struct {
	VendorID    int64  `json:"vendor__id"`
	VendorName  string `json:"vendor__name"`
	ProductID   int64  `json:"product__id"`
	ProductName string `json:"product__product_name"`
	Stock       int    `json:"stock"`
}

type MonthlySales struct {
	Month      string  `json:"month"`
	TotalSales Decimal `json:"total_sales"`
}

type Dashboard struct {
	TotalProducts    int               `json:"total_products"`
	LowStock         int               `json:"low_stock"`
	TotalVendors     int               `json:"total_vendors"`
	TotalSalesToday  Decimal           `json:"total_sales_today"`
	TotalBills       int               `json:"total_bills"`
	MonthlyRevenue   Decimal           `json:"monthly_revenue"`
	LowStockProducts []LowStockProduct `json:"low_stock_products"`
	MonthlySales     []MonthlySales    `json:"monthly_sales"`
}
