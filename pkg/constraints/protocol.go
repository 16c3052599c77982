package constraints

// Backend endpoints. Paths keep the trailing slash the backend routes expect.
const (
	LoginPath          = "/login/"
	RefreshPath        = "/api/refresh/"
	CategoriesPath     = "/categories/"
	VendorsPath        = "/vendors/"
	ProductsPath       = "/products/"
	DropdownPath       = "/products/get_dropdown_data/"
	VendorProductsPath = "/products/vendor_products/"
	BillingPath        = "/billing/"
	DashboardPath      = "/dashboard/"
)

const (
	MethodGet    = "GET"
	MethodPost   = "POST"
	MethodPut    = "PUT"
	MethodPatch  = "PATCH"
	MethodDelete = "DELETE"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderRequestID     = "X-Request-ID"
	BearerPrefix        = "Bearer "
)

// Reset reasons attached to an anonymous session event.
const (
	ReasonNoRefreshToken = "no_refresh_token"
	ReasonRefreshFailed  = "refresh_failed"
	ReasonLogout         = "logout"
)
