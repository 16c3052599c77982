// Package testserver is an in-process fake of the parts-store REST backend.
// It speaks the same wire contract (envelopes, pagination, DRF error bodies,
// SimpleJWT-style login and refresh) so the client and gateway can be
// exercised end to end without the real service.
package testserver

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"

	"github.com/sha03112000/autohead/internal/middleware"
	"github.com/sha03112000/autohead/pkg/constraints"

	"github.com/gin-gonic/gin"
)

var signingKey = []byte("autohead-fake-backend-key")

type options struct {
	rotate          bool
	seed            bool
	origins         []string
	vendorPageSize  int
	productPageSize int
	users           []user
}

type user struct {
	name, password string
	superuser      bool
}

type Option func(*options)

// WithRotation makes every refresh spend the old refresh token and return
// a new one.
func WithRotation(on bool) Option {
	return func(o *options) {
		o.rotate = on
	}
}

func WithUser(username, password string, superuser bool) Option {
	return func(o *options) {
		o.users = append(o.users, user{username, password, superuser})
	}
}

func WithoutSeed() Option {
	return func(o *options) {
		o.seed = false
	}
}

func WithCORS(origins ...string) Option {
	return func(o *options) {
		o.origins = origins
	}
}

type Server struct {
	opts   options
	auth   *Authority
	data   *catalog
	engine *gin.Engine

	logins    atomic.Int64
	refreshes atomic.Int64

	mu   sync.Mutex
	hits map[string]int
}

// New builds the fake backend with an "admin" superuser (password
// "admin123") and a "staff" user (password "staff123").
func New(opts ...Option) *Server {
	o := options{
		seed:            true,
		vendorPageSize:  6,
		productPageSize: 10,
		users: []user{
			{"admin", "admin123", true},
			{"staff", "staff123", false},
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		opts: o,
		auth: NewAuthority(signingKey, o.rotate),
		data: newCatalog(),
		hits: make(map[string]int),
	}
	for _, u := range o.users {
		s.auth.AddUser(u.name, u.password, u.superuser)
	}
	if o.seed {
		s.data.seed()
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(
		middleware.CorsMiddleware(s.opts.origins...),
		middleware.RequestID(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
		middleware.HttpMiddleware(),
		s.count(),
	)
	r.RedirectTrailingSlash = false

	r.POST(constraints.LoginPath, s.login)
	r.POST(constraints.RefreshPath, s.refresh)

	api := r.Group("/")
	api.Use(middleware.JWTMiddleware(signingKey, s.auth.Verify))
	{
		api.GET(constraints.CategoriesPath, s.listCategories)
		api.POST(constraints.CategoriesPath, s.createCategory)
		api.GET(constraints.CategoriesPath+":id/", s.getCategory)
		api.PUT(constraints.CategoriesPath+":id/", s.updateCategory)
		api.PATCH(constraints.CategoriesPath+":id/", s.updateCategory)
		api.DELETE(constraints.CategoriesPath+":id/", s.deleteCategory)

		api.GET(constraints.VendorsPath, s.listVendors)
		api.POST(constraints.VendorsPath, s.createVendor)
		api.PUT(constraints.VendorsPath+":id/", s.updateVendor)
		api.PATCH(constraints.VendorsPath+":id/", s.updateVendor)
		api.DELETE(constraints.VendorsPath+":id/", s.deleteVendor)

		api.GET(constraints.ProductsPath, s.listProducts)
		api.POST(constraints.ProductsPath, s.createProduct)
		api.GET(constraints.DropdownPath, s.dropdown)
		api.POST(constraints.VendorProductsPath, s.createVendorProduct)
		api.PATCH(constraints.ProductsPath+":id/", s.updateProduct)
		api.DELETE(constraints.ProductsPath+":id/", s.toggleProduct)

		api.GET(constraints.BillingPath, s.listBills)
		api.POST(constraints.BillingPath, s.createBill)

		api.GET(constraints.DashboardPath, s.dashboard)
	}
	return r
}

// count records hits per method and route before auth runs.
func (s *Server) count() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		s.hits[c.Request.Method+" "+c.Request.URL.Path]++
		s.mu.Unlock()
		c.Next()
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves the fake backend on a loopback port. Close the returned
// server when done.
func (s *Server) Start() *httptest.Server {
	return httptest.NewServer(s.engine)
}

// Hits reports how many requests reached method+path, e.g. "GET /vendors/".
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

func (s *Server) Logins() int {
	return int(s.logins.Load())
}

func (s *Server) Refreshes() int {
	return int(s.refreshes.Load())
}

// ExpireAccessTokens makes every issued access token fail with 401 while
// refresh tokens stay valid.
func (s *Server) ExpireAccessTokens() {
	s.auth.ExpireAccessTokens()
}

// RevokeSessions invalidates both access and refresh tokens.
func (s *Server) RevokeSessions() {
	s.auth.RevokeSessions()
}
