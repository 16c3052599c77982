// Package gateway sends every backend call on behalf of the admin client.
// It attaches the stored access token, persists tokens issued at login and,
// when a call is rejected with 401, refreshes the access token once and
// replays the call once. When recovery is impossible the session is cleared
// and an anonymous event is broadcast so the controller returns to sign-in.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sha03112000/autohead/internal/metrics"
	"github.com/sha03112000/autohead/internal/session"
	v1 "github.com/sha03112000/autohead/pkg/api/v1"
	"github.com/sha03112000/autohead/pkg/constraints"
	"github.com/sha03112000/autohead/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var ErrInvalidTokenResponse = errors.New("invalid token response")

var errRefreshFailed = errors.New("refresh failed")

// refreshTimeout bounds a shared refresh, which outlives its callers.
const refreshTimeout = 15 * time.Second

// Doer is the transport. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Gateway struct {
	baseURL  string
	store    session.Store
	http     Doer
	hub      *session.Hub
	observer metrics.GatewayObserver
	limiter  *rate.Limiter

	coalesce  bool
	refreshes singleflight.Group
	inflight  atomic.Int32
}

type Option func(*Gateway)

func WithHTTPClient(d Doer) Option {
	return func(g *Gateway) {
		g.http = d
	}
}

func WithHub(h *session.Hub) Option {
	return func(g *Gateway) {
		g.hub = h
	}
}

func WithObserver(o metrics.GatewayObserver) Option {
	return func(g *Gateway) {
		g.observer = o
	}
}

// WithRateLimit caps outbound dispatches. rps <= 0 disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(g *Gateway) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRefreshCoalescing makes concurrent callers that present the same
// refresh token share one refresh request. Off by default: each failing
// call then runs its own refresh.
func WithRefreshCoalescing(on bool) Option {
	return func(g *Gateway) {
		g.coalesce = on
	}
}

func New(baseURL string, store session.Store, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		store:    store,
		http:     &http.Client{Timeout: 15 * time.Second},
		hub:      session.NewHub(),
		observer: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Hub() *session.Hub {
	return g.hub
}

// Send dispatches r with the current access token. HTTP error statuses are
// returned as responses, never as errors; err is set only for transport
// and session-store failures, and for a login body without tokens.
func (g *Gateway) Send(ctx context.Context, r *Request) (*Response, error) {
	tokens, err := g.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("gateway: load session: %w", err)
	}

	resp, err := g.dispatch(ctx, r, tokens.Access)
	if err != nil {
		return nil, err
	}

	if r.isLogin() {
		if resp.OK() {
			if err := g.persistLogin(ctx, resp); err != nil {
				return resp, err
			}
		}
		return resp, nil
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// Re-read: another call may have rotated the refresh token meanwhile.
	current, err := g.store.Load(ctx)
	if err != nil {
		return resp, fmt.Errorf("gateway: load session: %w", err)
	}
	if current.Refresh == "" {
		g.reset(ctx, constraints.ReasonNoRefreshToken)
		return resp, nil
	}

	access, err := g.refresh(ctx, current.Refresh)
	if errors.Is(err, errRefreshFailed) {
		g.reset(ctx, constraints.ReasonRefreshFailed)
		return resp, nil
	}
	if err != nil {
		// Caller gave up while a shared refresh was still running.
		return resp, fmt.Errorf("gateway: await refresh: %w", err)
	}

	g.observer.RecordReplay()
	return g.dispatch(ctx, r, access)
}

// Logout clears the session and broadcasts the anonymous state.
func (g *Gateway) Logout(ctx context.Context) error {
	return g.reset(ctx, constraints.ReasonLogout)
}

func (g *Gateway) State(ctx context.Context) session.State {
	if g.inflight.Load() > 0 {
		return session.Refreshing
	}
	t, err := g.store.Load(ctx)
	if err != nil || t.Access == "" {
		return session.Anonymous
	}
	return session.Authenticated
}

// Privileged reports the flag issued at login.
func (g *Gateway) Privileged(ctx context.Context) bool {
	t, err := g.store.Load(ctx)
	return err == nil && t.Privileged
}

func (g *Gateway) persistLogin(ctx context.Context, resp *Response) error {
	var body v1.LoginResponse
	if err := resp.Decode(&body); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTokenResponse, err)
	}
	if body.Access == "" {
		return fmt.Errorf("%w: missing access token", ErrInvalidTokenResponse)
	}

	if err := g.store.Save(ctx, session.Tokens{
		Access:     body.Access,
		Refresh:    body.Refresh,
		Privileged: body.IsSuperuser,
	}); err != nil {
		return fmt.Errorf("gateway: save session: %w", err)
	}

	fields := []zap.Field{zap.Bool("privileged", body.IsSuperuser)}
	if exp, ok := session.AccessExpiry(body.Access); ok {
		fields = append(fields, zap.Time("access_expires_at", exp))
	}
	logger.Info("session established", fields...)
	g.broadcast(session.Authenticated, "login")
	return nil
}

// refresh returns errRefreshFailed when the token cannot be renewed. With
// coalescing on, the shared exchange is detached from every caller, so a
// caller whose ctx ends only stops waiting and gets ctx.Err().
func (g *Gateway) refresh(ctx context.Context, refreshToken string) (string, error) {
	if !g.coalesce {
		access, ok := g.doRefresh(ctx, refreshToken)
		if !ok {
			return "", errRefreshFailed
		}
		return access, nil
	}

	ch := g.refreshes.DoChan(refreshToken, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		access, ok := g.doRefresh(rctx, refreshToken)
		if !ok {
			return "", errRefreshFailed
		}
		return access, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			logger.Debug("joined in-flight refresh")
		}
		if res.Err != nil {
			return "", res.Err
		}
		access, _ := res.Val.(string)
		if access == "" {
			return "", errRefreshFailed
		}
		return access, nil
	case <-ctx.Done():
		logger.Debug("stopped waiting for shared refresh", zap.Error(ctx.Err()))
		return "", ctx.Err()
	}
}

func (g *Gateway) doRefresh(ctx context.Context, refreshToken string) (string, bool) {
	g.inflight.Add(1)
	g.broadcast(session.Refreshing, "")

	access, err := g.exchange(ctx, refreshToken)
	g.inflight.Add(-1)

	if err != nil {
		logger.Warn("access token refresh failed", zap.Error(err))
		g.observer.RecordRefresh(false)
		return "", false
	}

	g.observer.RecordRefresh(true)
	logger.Info("access token refreshed")
	g.broadcast(session.Authenticated, "refresh")
	return access, true
}

// exchange posts the refresh token and stores the new pair. The refresh
// call carries no bearer header.
func (g *Gateway) exchange(ctx context.Context, refreshToken string) (string, error) {
	resp, err := g.dispatch(ctx, &Request{
		Method: constraints.MethodPost,
		Path:   constraints.RefreshPath,
		Body:   v1.RefreshRequest{Refresh: refreshToken},
	}, "")
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("%w: status %d", errRefreshFailed, resp.StatusCode)
	}

	var body v1.RefreshResponse
	if err := resp.Decode(&body); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidTokenResponse, err)
	}
	if body.Access == "" {
		return "", fmt.Errorf("%w: missing access token", ErrInvalidTokenResponse)
	}

	if err := g.store.Rotate(ctx, body.Access, body.Refresh); err != nil {
		return "", fmt.Errorf("gateway: rotate session: %w", err)
	}
	return body.Access, nil
}

// reset clears the session and always broadcasts, even when the store
// fails or ctx is already cancelled.
func (g *Gateway) reset(ctx context.Context, reason string) error {
	err := g.store.Clear(context.WithoutCancel(ctx))
	if err != nil {
		logger.Error("failed to clear session", zap.String("reason", reason), zap.Error(err))
	}
	g.observer.RecordSessionReset(reason)
	logger.Warn("session reset to anonymous", zap.String("reason", reason))
	g.broadcast(session.Anonymous, reason)
	return err
}

func (g *Gateway) broadcast(state session.State, reason string) {
	if g.hub == nil {
		return
	}
	g.hub.Broadcast(session.Event{State: state, Reason: reason, At: time.Now()})
}

func (g *Gateway) dispatch(ctx context.Context, r *Request, access string) (*Response, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("gateway: rate limit: %w", err)
		}
	}

	req, rid, err := g.newHTTPRequest(ctx, r, access)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s %s: %w", r.Method, r.Path, err)
	}

	start := time.Now()
	res, err := g.http.Do(req)
	if err != nil {
		g.observer.ObserveRequest(req.Method, 0, time.Since(start).Seconds())
		logger.Debug("dispatch failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("request_id", rid),
			zap.Error(err))
		return nil, fmt.Errorf("gateway: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: read %s %s: %w", req.Method, req.URL.Path, err)
	}

	latency := time.Since(start)
	g.observer.ObserveRequest(req.Method, res.StatusCode, latency.Seconds())
	logger.Debug("dispatch",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", res.StatusCode),
		zap.Duration("latency", latency),
		zap.String("request_id", rid))

	return &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       body,
	}, nil
}
