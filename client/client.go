// Package client is the typed admin API. Every call goes through the
// authenticated gateway, so token attachment, refresh and replay are
// invisible here.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/sha03112000/autohead/internal/gateway"
	v1 "github.com/sha03112000/autohead/pkg/api/v1"
	"github.com/sha03112000/autohead/pkg/constraints"
	"github.com/sha03112000/autohead/pkg/logger"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

type AdminClient struct {
	gw *gateway.Gateway
}

func New(gw *gateway.Gateway) *AdminClient {
	return &AdminClient{gw: gw}
}

func (c *AdminClient) Gateway() *gateway.Gateway {
	return c.gw
}

func check(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

func (c *AdminClient) send(ctx context.Context, method, path string, query url.Values, body any) (*gateway.Response, error) {
	resp, err := c.gw.Send(ctx, &gateway.Request{
		Method: method,
		Path:   path,
		Query:  query,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		apiErr := newAPIError(resp)
		logger.Debug("api call rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message))
		return nil, apiErr
	}
	return resp, nil
}

// call sends the request and unwraps the data of the response envelope.
func call[T any](ctx context.Context, c *AdminClient, method, path string, query url.Values, body any) (T, error) {
	var zero T
	resp, err := c.send(ctx, method, path, query, body)
	if err != nil {
		return zero, err
	}

	var env v1.Envelope[T]
	if err := resp.Decode(&env); err != nil {
		return zero, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return env.Data, nil
}

func itemPath(base string, id int64) string {
	return base + strconv.FormatInt(id, 10) + "/"
}

func pageQuery(page int) url.Values {
	if page < 1 {
		page = 1
	}
	return url.Values{"page": {strconv.Itoa(page)}}
}

// Login signs in and stores the issued tokens in the session.
func (c *AdminClient) Login(ctx context.Context, username, password string) (*v1.LoginResponse, error) {
	req := v1.LoginRequest{Username: username, Password: password}
	if err := check(req); err != nil {
		return nil, err
	}

	resp, err := c.gw.Send(ctx, &gateway.Request{
		Method: constraints.MethodPost,
		Path:   constraints.LoginPath,
		Body:   req,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, newAPIError(resp)
	}

	var out v1.LoginResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode login: %w", err)
	}
	return &out, nil
}

func (c *AdminClient) Logout(ctx context.Context) error {
	return c.gw.Logout(ctx)
}

// ListCategories accepts both the plain list and the paginated shape.
func (c *AdminClient) ListCategories(ctx context.Context) ([]v1.Category, error) {
	raw, err := call[json.RawMessage](ctx, c, constraints.MethodGet, constraints.CategoriesPath, nil, nil)
	if err != nil {
		return nil, err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []v1.Category
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode categories: %w", err)
		}
		return list, nil
	}
	var page v1.Page[v1.Category]
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	return page.Results, nil
}

func (c *AdminClient) GetCategory(ctx context.Context, id int64) (*v1.Category, error) {
	out, err := call[v1.Category](ctx, c, constraints.MethodGet, itemPath(constraints.CategoriesPath, id), nil, nil)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AdminClient) CreateCategory(ctx context.Context, req v1.CategoryRequest) (*v1.Category, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	out, err := call[v1.Category](ctx, c, constraints.MethodPost, constraints.CategoriesPath, nil, req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AdminClient) UpdateCategory(ctx context.Context, id int64, req v1.CategoryRequest) (*v1.Category, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	out, err := call[v1.Category](ctx, c, constraints.MethodPut, itemPath(constraints.CategoriesPath, id), nil, req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AdminClient) DeleteCategory(ctx context.Context, id int64) error {
	_, err := c.send(ctx, constraints.MethodDelete, itemPath(constraints.CategoriesPath, id), nil, nil)
	return err
}

func (c *AdminClient) ListVendors(ctx context.Context, page int) (*v1.Page[v1.Vendor], error) {
	out, err := call[v1.Page[v1.Vendor]](ctx, c, constraints.MethodGet, constraints.VendorsPath, pageQuery(page), nil)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AdminClient) CreateVendor(ctx context.Context, req v1.VendorRequest) (*v1.Vendor, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	out, err := call[v1.Vendor](ctx, c, constraints.MethodPost, constraints.VendorsPath, nil, req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateVendor PATCHes the vendor; fields left empty are not sent.
func (c *AdminClient) UpdateVendor(ctx context.Context, id int64, req v1.VendorRequest) (*v1.Vendor, error) {
	out, err := call[v1.Vendor](ctx, c, constraints.MethodPatch, itemPath(constraints.VendorsPath, id), nil, req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AdminClient) DeleteVendor(ctx context.Context, id int64) error {
	_, err := c.send(ctx, constraints.MethodDelete, itemPath(constraints.VendorsPath, id), nil, nil)
	return err
}

func (c *AdminClient) ListProducts(ctx context.Context, page int) (*v1.ProductListData, error) {
	out, err := call[v1.ProductListData](ctx, c, constraints.MethodGet, constraints.ProductsPath, pageQuery(page), nil)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AdminClient) CreateProduct(ctx context.Context, req v1.ProductRequest) (*v1.Product, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	out, err := call[v1.Product](ctx, c, constraints.MethodPost, constraints.ProductsPath, nil, req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AdminClient) UpdateProduct(ctx context.Context, id int64, req v1.ProductRequest) (*v1.Product, error) {
	out, err := call[v1.Product](ctx, c, constraints.MethodPatch, itemPath(constraints.ProductsPath, id), nil, req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ToggleProduct flips is_active on the backend. The product is not deleted.
func (c *AdminClient) ToggleProduct(ctx context.Context, id int64) error {
	_, err := c.send(ctx, constraints.MethodDelete, itemPath(constraints.ProductsPath, id), nil, nil)
	return err
}

func (c *AdminClient) DropdownData(ctx context.Context) (*v1.DropdownData, error) {
	out, err := call[v1.DropdownData](ctx, c, constraints.MethodGet, constraints.DropdownPath, nil, nil)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AdminClient) CreateVendorProduct(ctx context.Context, req v1.VendorProductRequest) (*v1.VendorProduct, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	out, err := call[v1.VendorProduct](ctx, c, constraints.MethodPost, constraints.VendorProductsPath, nil, req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AdminClient) CreateBill(ctx context.Context, req v1.BillRequest) (*v1.Bill, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	out, err := call[v1.Bill](ctx, c, constraints.MethodPost, constraints.BillingPath, nil, req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBills returns the most recent bills, newest first.
func (c *AdminClient) ListBills(ctx context.Context) ([]v1.Bill, error) {
	return call[[]v1.Bill](ctx, c, constraints.MethodGet, constraints.BillingPath, nil, nil)
}

func (c *AdminClient) Dashboard(ctx context.Context) (*v1.Dashboard, error) {
	out, err := call[v1.Dashboard](ctx, c, constraints.MethodGet, constraints.DashboardPath, nil, nil)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
