package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/sha03112000/autohead/internal/gateway"
)

var (
	// ErrSessionExpired matches a 401 that the gateway could not recover.
	ErrSessionExpired = errors.New("session expired")
	ErrValidation     = errors.New("invalid request")
)

// APIError is a non-2xx backend response.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrSessionExpired && e.StatusCode == http.StatusUnauthorized
}

func newAPIError(resp *gateway.Response) *APIError {
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    errorMessage(resp.StatusCode, resp.Body),
		Body:       resp.Body,
	}
}

// errorMessage pulls the readable text out of a DRF error body:
// {"detail": ...}, {"message": ...}, {"error": ...} or field errors such as
// {"name": ["This field is required."]}.
func errorMessage(status int, body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil || len(m) == 0 {
		if s := strings.TrimSpace(string(body)); s != "" && len(s) < 200 && !strings.HasPrefix(s, "<") {
			return s
		}
		return http.StatusText(status)
	}

	for _, key := range []string{"detail", "message", "error"} {
		if s := firstString(m[key]); s != "" {
			return s
		}
	}

	fields := make([]string, 0, len(m))
	for k := range m {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	for _, k := range fields {
		if s := firstString(m[k]); s != "" {
			if k == "non_field_errors" {
				return s
			}
			return k + ": " + s
		}
	}
	return http.StatusText(status)
}

func firstString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, e := range t {
			if s := firstString(e); s != "" {
				return s
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s := firstString(t[k]); s != "" {
				return s
			}
		}
	}
	return ""
}
