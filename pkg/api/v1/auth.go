package v1

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is returned unwrapped by the login endpoint.
type LoginResponse struct {
	Access      string `json:"access"`
	Refresh     string `json:"refresh"`
	IsSuperuser bool   `json:"is_superuser"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

type RefreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}
