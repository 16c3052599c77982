package v1

type Bank struct {
	ID            int64  `json:"id,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
	BranchName    string `json:"branch_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	IFSCCode      string `json:"ifsc_code,omitempty"`
	IsActive      bool   `json:"is_active"`
}

type Vendor struct {
	ID        int64      `json:"id"`
	Bank      *Bank      `json:"bank"`
	Name      string     `json:"name"`
	Phone     FlexString `json:"phone"`
	Email     string     `json:"email"`
	Address   string     `json:"address,omitempty"`
	IsActive  bool       `json:"is_active"`
	GSTNumber string     `json:"gst_number,omitempty"`
	State     string     `json:"state,omitempty"`
	City      string     `json:"city,omitempty"`
	Pincode   string     `json:"pincode,omitempty"`
}

type BankInput struct {
	BankName      string `json:"bank_name,omitempty"`
	BranchName    string `json:"branch_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	IFSCCode      string `json:"ifsc_code,omitempty"`
}

// VendorRequest is the create/update payload. Updates are PATCHed, so
// zero-valued optional fields are left out.
type VendorRequest struct {
	Name      string     `json:"name" validate:"required"`
	Phone     string     `json:"phone" validate:"required"`
	Email     string     `json:"email" validate:"required"`
	Address   string     `json:"address,omitempty"`
	GSTNumber string     `json:"gst_number,omitempty"`
	State     string     `json:"state,omitempty"`
	City      string     `json:"city,omitempty"`
	Pincode   string     `json:"pincode,omitempty"`
	Bank      *BankInput `json:"bank,omitempty"`
}

// FlatVendorForm is the single-level form the admin screen edits; bank
// details sit next to the vendor fields.
type FlatVendorForm struct {
	Name          string
	Email         string
	Phone         string
	Address       string
	City          string
	State         string
	Pincode       string
	GSTNumber     string
	BankName      string
	AccountNumber string
	IFSCCode      string
	BranchName    string
}

func (f FlatVendorForm) Payload() VendorRequest {
	return VendorRequest{
		Name:      f.Name,
		Email:     f.Email,
		Phone:     f.Phone,
		Address:   f.Address,
		City:      f.City,
		State:     f.State,
		Pincode:   f.Pincode,
		GSTNumber: f.GSTNumber,
		Bank: &BankInput{
			BankName:      f.BankName,
			AccountNumber: f.AccountNumber,
			IFSCCode:      f.IFSCCode,
			BranchName:    f.BranchName,
		},
	}
}
