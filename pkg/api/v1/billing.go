package v1

import "time"

type BillItem struct {
	VendorProduct int64   `json:"vendor_product" validate:"required"`
	Quantity      int     `json:"quantity" validate:"gt=0"`
	SellingPrice  Decimal `json:"selling_price" validate:"gte=0"`
}

type BillRequest struct {
	CustomerName string     `json:"customer_name,omitempty"`
	Discount     Decimal    `json:"discount,omitempty" validate:"gte=0"`
	Items        []BillItem `json:"items" validate:"required,min=1,dive"`
}

type Bill struct {
	ID           int64     `json:"id"`
	InvoiceNo    string    `json:"invoice_no"`
	CustomerName string    `json:"customer_name,omitempty"`
	NetAmount    Decimal   `json:"net_amount"`
	Discount     Decimal   `json:"discount"`
	TotalAmount  Decimal   `json:"total_amount"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
