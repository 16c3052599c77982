package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sha03112000/autohead/pkg/constraints"

	"github.com/google/uuid"
)

// Request describes one outbound call before dispatch. Body, when set, is
// JSON-encoded on every dispatch so a replay sends the same payload.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   any
}

// Response is a fully buffered backend response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return io.EOF
	}
	return json.Unmarshal(r.Body, v)
}

func (r *Request) normalizedPath() string {
	p := r.Path
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func (r *Request) isLogin() bool {
	return strings.EqualFold(r.Method, constraints.MethodPost) && r.normalizedPath() == constraints.LoginPath
}

func (g *Gateway) buildURL(r *Request) string {
	path := r.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := g.baseURL + path
	if len(r.Query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		u += sep + r.Query.Encode()
	}
	return u
}

// newHTTPRequest builds the wire request. The Authorization header is
// always owned by the gateway: set from access, or removed when empty.
func (g *Gateway) newHTTPRequest(ctx context.Context, r *Request, access string) (*http.Request, string, error) {
	var body io.Reader
	if r.Body != nil {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, "", fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	method := strings.ToUpper(r.Method)
	if method == "" {
		method = constraints.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, g.buildURL(r), body)
	if err != nil {
		return nil, "", err
	}

	if r.Header != nil {
		req.Header = r.Header.Clone()
	}
	req.Header.Set("Accept", "application/json")
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if access != "" {
		req.Header.Set(constraints.HeaderAuthorization, constraints.BearerPrefix+access)
	} else {
		req.Header.Del(constraints.HeaderAuthorization)
	}

	rid := uuid.New().String()
	req.Header.Set(constraints.HeaderRequestID, rid)
	return req, rid, nil
}
