package testserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sha03112000/autohead/internal/middleware"
	v1 "github.com/sha03112000/autohead/pkg/api/v1"

	"github.com/gin-gonic/gin"
)

var messages = map[string]string{
	"GET":        "%s fetched successfully",
	"POST":       "%s created successfully",
	"PUT":        "%s updated successfully",
	"DELETE":     "%s deleted successfully",
	"REACTIVATE": "%s reactivated successfully",
	"DEACTIVATE": "%s deactivated successfully",
}

func respond(c *gin.Context, status int, method, name string, data any) {
	msg := "Operation successful"
	if f, ok := messages[method]; ok {
		msg = fmt.Sprintf(f, name)
	}
	c.JSON(status, v1.Envelope[any]{Success: true, Message: msg, Data: data})
}

func fieldError(c *gin.Context, field, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{field: []string{msg}})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"detail": "No record matches the given query."})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		notFound(c)
		return 0, false
	}
	return id, true
}

// paginate slices items the way the backend's page-number paginator does.
func paginate[T any](c *gin.Context, items []T, size int) (v1.Page[T], bool) {
	page := 1
	if p := c.Query("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Invalid page."})
			return v1.Page[T]{}, false
		}
		page = n
	}

	total := (len(items) + size - 1) / size
	if total == 0 {
		total = 1
	}
	if page > total {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Invalid page."})
		return v1.Page[T]{}, false
	}

	link := func(n int) *string {
		s := fmt.Sprintf("http://%s%s?page=%d", c.Request.Host, c.Request.URL.Path, n)
		return &s
	}
	start := (page - 1) * size
	end := min(start+size, len(items))
	out := v1.Page[T]{
		Count:       len(items),
		CurrentPage: page,
		TotalPages:  total,
		Results:     append([]T{}, items[start:end]...),
	}
	if page < total {
		out.Next = link(page + 1)
	}
	if page > 1 {
		out.Previous = link(page - 1)
	}
	return out, true
}

func (s *Server) login(c *gin.Context) {
	var body v1.LoginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	s.logins.Add(1)
	pair, superuser, err := s.auth.Login(body.Username, body.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "No active account found with the given credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "login failed"})
		return
	}

	c.JSON(http.StatusOK, v1.LoginResponse{
		Access:      pair.Access,
		Refresh:     pair.Refresh,
		IsSuperuser: superuser,
	})
}

func (s *Server) refresh(c *gin.Context) {
	var body v1.RefreshRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.Refresh == "" {
		fieldError(c, "refresh", "This field is required.")
		return
	}

	s.refreshes.Add(1)
	pair, err := s.auth.Refresh(body.Refresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}

	c.JSON(http.StatusOK, v1.RefreshResponse{Access: pair.Access, Refresh: pair.Refresh})
}

func (s *Server) listCategories(c *gin.Context) {
	s.data.mu.Lock()
	list := append([]v1.Category{}, s.data.categories...)
	s.data.mu.Unlock()
	respond(c, http.StatusOK, "GET", "categories", list)
}

func (s *Server) createCategory(c *gin.Context) {
	var body v1.CategoryRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.Name == "" {
		fieldError(c, "name", "This field is required.")
		return
	}

	s.data.mu.Lock()
	cat := s.data.addCategory(body.Name, body.Description)
	s.data.mu.Unlock()
	respond(c, http.StatusCreated, "POST", "Category", cat)
}

func (s *Server) getCategory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	i, found := s.data.category(id)
	if !found {
		notFound(c)
		return
	}
	respond(c, http.StatusOK, "GET", "Category", s.data.categories[i])
}

func (s *Server) updateCategory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body v1.CategoryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	i, found := s.data.category(id)
	if !found {
		notFound(c)
		return
	}
	if body.Name != "" {
		s.data.categories[i].Name = body.Name
	}
	if body.Description != "" {
		s.data.categories[i].Description = body.Description
	}
	respond(c, http.StatusOK, "PUT", "Category", s.data.categories[i])
}

func (s *Server) deleteCategory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	i, found := s.data.category(id)
	if !found {
		notFound(c)
		return
	}
	s.data.categories = append(s.data.categories[:i], s.data.categories[i+1:]...)
	respond(c, http.StatusOK, "DELETE", "Category", nil)
}

func (s *Server) listVendors(c *gin.Context) {
	s.data.mu.Lock()
	list := s.data.activeVendors()
	s.data.mu.Unlock()

	page, ok := paginate(c, list, s.opts.vendorPageSize)
	if !ok {
		return
	}
	respond(c, http.StatusOK, "GET", "vendors", page)
}

func (s *Server) createVendor(c *gin.Context) {
	var body v1.VendorRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	for field, v := range map[string]string{"name": body.Name, "phone": body.Phone, "email": body.Email} {
		if v == "" {
			fieldError(c, field, "This field is required.")
			return
		}
	}

	s.data.mu.Lock()
	v := s.data.addVendor(body)
	s.data.mu.Unlock()
	respond(c, http.StatusCreated, "POST", "Vendor", v)
}

func (s *Server) updateVendor(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body v1.VendorRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	v := s.data.vendor(id)
	if v == nil || !v.IsActive {
		notFound(c)
		return
	}
	set := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	set(&v.Name, body.Name)
	set(&v.Email, body.Email)
	set(&v.Address, body.Address)
	set(&v.GSTNumber, body.GSTNumber)
	set(&v.State, body.State)
	set(&v.City, body.City)
	set(&v.Pincode, body.Pincode)
	if body.Phone != "" {
		v.Phone = v1.FlexString(body.Phone)
	}
	if body.Bank != nil {
		if v.Bank == nil {
			v.Bank = &v1.Bank{ID: s.data.id(), IsActive: true}
		}
		set(&v.Bank.BankName, body.Bank.BankName)
		set(&v.Bank.BranchName, body.Bank.BranchName)
		set(&v.Bank.AccountNumber, body.Bank.AccountNumber)
		set(&v.Bank.IFSCCode, body.Bank.IFSCCode)
	}
	respond(c, http.StatusOK, "PUT", "Vendor", v.Vendor)
}

// deleteVendor soft-deletes and is reserved for superusers.
func (s *Server) deleteVendor(c *gin.Context) {
	if cl := middleware.ClaimsFrom(c.Request.Context()); cl == nil || !cl.Superuser {
		c.JSON(http.StatusForbidden, gin.H{"detail": "You do not have permission to perform this action."})
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	v := s.data.vendor(id)
	if v == nil || !v.IsActive {
		notFound(c)
		return
	}
	v.IsActive = false
	respond(c, http.StatusOK, "DELETE", "Vendor", nil)
}

func (s *Server) listProducts(c *gin.Context) {
	s.data.mu.Lock()
	list := s.data.activeProducts()
	cats := make([]v1.CategoryRef, 0, len(s.data.categories))
	for _, cat := range s.data.categories {
		cats = append(cats, v1.CategoryRef{ID: cat.ID, Name: cat.Name})
	}
	s.data.mu.Unlock()

	page, ok := paginate(c, list, s.opts.productPageSize)
	if !ok {
		return
	}
	respond(c, http.StatusOK, "GET", "products", v1.ProductListData{Products: page, Categories: cats})
}

func (s *Server) createProduct(c *gin.Context) {
	var body v1.ProductRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if body.ProductName == "" {
		fieldError(c, "product_name", "This field is required.")
		return
	}
	if body.ProductCode == "" {
		fieldError(c, "product_code", "This field is required.")
		return
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	if _, ok := s.data.category(body.Category); !ok {
		fieldError(c, "category", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", body.Category))
		return
	}
	respond(c, http.StatusCreated, "POST", "Product", s.data.addProduct(body))
}

func (s *Server) updateProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body v1.ProductRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	p := s.data.product(id)
	if p == nil || !p.IsActive {
		notFound(c)
		return
	}
	if body.ProductName != "" {
		p.ProductName = body.ProductName
	}
	if body.ProductCode != "" {
		p.ProductCode = body.ProductCode
	}
	if body.Description != "" {
		p.Description = body.Description
	}
	if body.Category != 0 {
		if _, ok := s.data.category(body.Category); !ok {
			fieldError(c, "category", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", body.Category))
			return
		}
		p.category = body.Category
	}
	respond(c, http.StatusOK, "PUT", "Product", s.data.productView(p))
}

// toggleProduct flips is_active instead of deleting.
func (s *Server) toggleProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	p := s.data.product(id)
	if p == nil {
		notFound(c)
		return
	}
	p.IsActive = !p.IsActive
	method := "DEACTIVATE"
	if p.IsActive {
		method = "REACTIVATE"
	}
	respond(c, http.StatusOK, method, "Product", nil)
}

func (s *Server) dropdown(c *gin.Context) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()

	out := v1.DropdownData{
		Products:       []v1.ProductOption{},
		Vendors:        []v1.VendorRef{},
		VendorProducts: []v1.VendorProduct{},
	}
	for _, p := range s.data.products {
		if p.IsActive {
			out.Products = append(out.Products, v1.ProductOption{ID: p.ID, ProductName: p.ProductName})
		}
	}
	for _, v := range s.data.vendors {
		if v.IsActive {
			out.Vendors = append(out.Vendors, v1.VendorRef{ID: v.ID, Name: v.Name})
		}
	}
	for _, vp := range s.data.vendorProducts {
		if vp.IsActive {
			out.VendorProducts = append(out.VendorProducts, *vp)
		}
	}
	respond(c, http.StatusOK, "GET", "dropdown data", out)
}

func (s *Server) createVendorProduct(c *gin.Context) {
	var body v1.VendorProductRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if body.VendorCode == "" {
		fieldError(c, "vendor_code", "This field is required.")
		return
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	if p := s.data.product(body.Product); p == nil {
		fieldError(c, "product", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", body.Product))
		return
	}
	if v := s.data.vendor(body.Vendor); v == nil {
		fieldError(c, "vendor", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", body.Vendor))
		return
	}
	respond(c, http.StatusCreated, "POST", "Vendor product", s.data.addVendorProduct(body))
}

func (s *Server) listBills(c *gin.Context) {
	s.data.mu.Lock()
	list := s.data.recentBills(5)
	s.data.mu.Unlock()
	respond(c, http.StatusOK, "GET", "Bills", list)
}

func (s *Server) createBill(c *gin.Context) {
	var body v1.BillRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if len(body.Items) == 0 {
		fieldError(c, "items", "This list may not be empty.")
		return
	}

	s.data.mu.Lock()
	bill, err := s.data.createBill(body)
	s.data.mu.Unlock()
	if err != nil {
		fieldError(c, "items", err.Error())
		return
	}
	respond(c, http.StatusCreated, "POST", "Bill", bill)
}

func (s *Server) dashboard(c *gin.Context) {
	s.data.mu.Lock()
	d := s.data.dashboard()
	s.data.mu.Unlock()
	respond(c, http.StatusOK, "GET", "dashboard", d)
}
