package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/sha03112000/autohead/internal/session"
	"github.com/sha03112000/autohead/pkg/constraints"
	"github.com/sha03112000/autohead/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitLogger("test")
}

// fakeAPI accepts one valid access token on every non-auth route.
type fakeAPI struct {
	mu sync.Mutex

	validAccess   string
	acceptRefresh string // empty accepts any refresh token
	refreshStatus int
	nextAccess    string
	nextRefresh   string
	refreshDelay  time.Duration
	forced        map[string]int
	barrier       *sync.WaitGroup

	loginCalls   int
	refreshCalls int
	refreshAuth  []string
	hits         map[string]int
	authSeen     []string
	queries      []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		validAccess:   "access-1",
		refreshStatus: http.StatusOK,
		nextAccess:    "access-2",
		nextRefresh:   "refresh-2",
		forced:        map[string]int{},
		hits:          map[string]int{},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case constraints.LoginPath:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.loginCalls++
		f.mu.Unlock()
		if body["username"] != "admin" || body["password"] != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found"})
			return
		}
		if body["malformed"] == "yes" {
			writeJSON(w, http.StatusOK, map[string]string{})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access":       "access-1",
			"refresh":      "refresh-1",
			"is_superuser": true,
		})

	case constraints.RefreshPath:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.refreshCalls++
		f.refreshAuth = append(f.refreshAuth, r.Header.Get(constraints.HeaderAuthorization))
		delay := f.refreshDelay
		ok := f.refreshStatus == http.StatusOK && (f.acceptRefresh == "" || body["refresh"] == f.acceptRefresh)
		status := f.refreshStatus
		next := map[string]string{"access": f.nextAccess, "refresh": f.nextRefresh}
		if ok {
			f.validAccess = f.nextAccess
		}
		f.mu.Unlock()

		time.Sleep(delay)
		if !ok {
			if status == http.StatusOK {
				status = http.StatusUnauthorized
			}
			writeJSON(w, status, map[string]string{"detail": "Token is invalid or expired"})
			return
		}
		writeJSON(w, http.StatusOK, next)

	default:
		auth := r.Header.Get(constraints.HeaderAuthorization)
		f.mu.Lock()
		f.hits[r.URL.Path]++
		f.authSeen = append(f.authSeen, auth)
		f.queries = append(f.queries, r.URL.RawQuery)
		forced, hasForced := f.forced[r.URL.Path]
		valid := auth == constraints.BearerPrefix+f.validAccess
		barrier := f.barrier
		f.mu.Unlock()

		if hasForced {
			writeJSON(w, forced, map[string]string{"detail": "forced"})
			return
		}
		if !valid {
			if barrier != nil {
				barrier.Done()
				barrier.Wait()
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "ok", "data": []int{}})
	}
}

func (f *fakeAPI) snapshot() (refreshCalls int, hits map[string]int, auth []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := make(map[string]int, len(f.hits))
	for k, v := range f.hits {
		h[k] = v
	}
	return f.refreshCalls, h, append([]string(nil), f.authSeen...)
}

func setup(t *testing.T, api *fakeAPI, tokens session.Tokens, opts ...Option) (*Gateway, *session.MemoryStore, *session.Subscriber) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	store := session.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), tokens))

	g := New(srv.URL, store, append([]Option{WithHTTPClient(srv.Client())}, opts...)...)
	sub := g.Hub().Register(32)
	return g, store, sub
}

func drain(sub *session.Subscriber) []session.Event {
	var out []session.Event
	for {
		select {
		case e := <-sub.Events:
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestSend_AttachesBearer(t *testing.T) {
	api := newFakeAPI()
	g, _, _ := setup(t, api, session.Tokens{Access: "access-1", Refresh: "refresh-1"})

	resp, err := g.Send(context.Background(), &Request{
		Method: constraints.MethodGet,
		Path:   "/vendors/",
		Query:  url.Values{"page": {"1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	refreshes, hits, auth := api.snapshot()
	assert.Equal(t, 0, refreshes)
	assert.Equal(t, 1, hits["/vendors/"])
	assert.Equal(t, []string{"Bearer access-1"}, auth)
	assert.Equal(t, []string{"page=1"}, api.queries)
}

func TestSend_PathWithoutLeadingSlash(t *testing.T) {
	api := newFakeAPI()
	g, _, _ := setup(t, api, session.Tokens{Access: "access-1"})

	resp, err := g.Send(context.Background(), &Request{Method: "get", Path: "categories/"})
	require.NoError(t, err)
	assert.True(t, resp.OK())
}

func TestSend_AnonymousHasNoHeaderAndNoRefresh(t *testing.T) {
	api := newFakeAPI()
	g, store, sub := setup(t, api, session.Tokens{})

	resp, err := g.Send(context.Background(), &Request{
		Method: constraints.MethodGet,
		Path:   "/categories/",
		Header: http.Header{constraints.HeaderAuthorization: {"Bearer stale"}},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	refreshes, _, auth := api.snapshot()
	assert.Equal(t, 0, refreshes)
	assert.Equal(t, []string{""}, auth)

	tokens, _ := store.Load(context.Background())
	assert.True(t, tokens.Empty())

	events := drain(sub)
	require.Len(t, events, 1)
	assert.Equal(t, session.Anonymous, events[0].State)
	assert.Equal(t, constraints.ReasonNoRefreshToken, events[0].Reason)
}

func TestSend_LoginPersistsTokens(t *testing.T) {
	api := newFakeAPI()
	g, store, sub := setup(t, api, session.Tokens{})

	resp, err := g.Send(context.Background(), &Request{
		Method: constraints.MethodPost,
		Path:   constraints.LoginPath,
		Body:   map[string]string{"username": "admin", "password": "secret"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	tokens, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.Tokens{Access: "access-1", Refresh: "refresh-1", Privileged: true}, tokens)
	assert.Equal(t, session.Authenticated, g.State(context.Background()))
	assert.True(t, g.Privileged(context.Background()))

	events := drain(sub)
	require.Len(t, events, 1)
	assert.Equal(t, session.Authenticated, events[0].State)
}

func TestSend_LoginRejectedDoesNotRefresh(t *testing.T) {
	api := newFakeAPI()
	prior := session.Tokens{Access: "old", Refresh: "old-refresh"}
	g, store, sub := setup(t, api, prior)

	resp, err := g.Send(context.Background(), &Request{
		Method: constraints.MethodPost,
		Path:   constraints.LoginPath,
		Body:   map[string]string{"username": "admin", "password": "wrong"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "No active account")

	refreshes, _, _ := api.snapshot()
	assert.Equal(t, 0, refreshes)

	tokens, _ := store.Load(context.Background())
	assert.Equal(t, prior, tokens)
	assert.Empty(t, drain(sub))
}

func TestSend_LoginWithoutTokens(t *testing.T) {
	api := newFakeAPI()
	g, store, _ := setup(t, api, session.Tokens{})

	resp, err := g.Send(context.Background(), &Request{
		Method: constraints.MethodPost,
		Path:   constraints.LoginPath,
		Body:   map[string]string{"username": "admin", "password": "secret", "malformed": "yes"},
	})
	require.ErrorIs(t, err, ErrInvalidTokenResponse)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	tokens, _ := store.Load(context.Background())
	assert.True(t, tokens.Empty())
}

func TestSend_RefreshAndReplayOnce(t *testing.T) {
	api := newFakeAPI()
	api.validAccess = "fresh"
	api.nextAccess = "fresh"
	api.nextRefresh = "refresh-2"
	api.acceptRefresh = "refresh-1"
	g, store, sub := setup(t, api, session.Tokens{Access: "expired", Refresh: "refresh-1", Privileged: true})

	resp, err := g.Send(context.Background(), &Request{Method: constraints.MethodGet, Path: "/categories/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	refreshes, hits, auth := api.snapshot()
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 2, hits["/categories/"])
	assert.Equal(t, []string{"Bearer expired", "Bearer fresh"}, auth)
	assert.Equal(t, []string{""}, api.refreshAuth)

	tokens, _ := store.Load(context.Background())
	assert.Equal(t, session.Tokens{Access: "fresh", Refresh: "refresh-2", Privileged: true}, tokens)

	events := drain(sub)
	require.Len(t, events, 2)
	assert.Equal(t, session.Refreshing, events[0].State)
	assert.Equal(t, session.Authenticated, events[1].State)
}

func TestSend_ReplayedBodyMatches(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == constraints.RefreshPath {
			writeJSON(w, http.StatusOK, map[string]string{"access": "fresh"})
			return
		}
		var b map[string]string
		_ = json.NewDecoder(r.Body).Decode(&b)
		mu.Lock()
		bodies = append(bodies, b["name"])
		mu.Unlock()
		if r.Header.Get(constraints.HeaderAuthorization) != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	store := session.NewMemoryStore()
	_ = store.Save(context.Background(), session.Tokens{Access: "old", Refresh: "r"})
	g := New(srv.URL, store, WithHTTPClient(srv.Client()))

	resp, err := g.Send(context.Background(), &Request{
		Method: constraints.MethodPost,
		Path:   constraints.CategoriesPath,
		Body:   map[string]string{"name": "Brakes"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, []string{"Brakes", "Brakes"}, bodies)

	tokens, _ := store.Load(context.Background())
	assert.Equal(t, "r", tokens.Refresh, "empty rotated refresh keeps the previous one")
}

func TestSend_ReplayUnauthorizedDoesNotLoop(t *testing.T) {
	var mu sync.Mutex
	refreshes, hits := 0, 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.URL.Path == constraints.RefreshPath {
			refreshes++
			writeJSON(w, http.StatusOK, map[string]string{"access": "still-bad", "refresh": "refresh-2"})
			return
		}
		hits++
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "nope"})
	}))
	defer srv.Close()

	store := session.NewMemoryStore()
	_ = store.Save(context.Background(), session.Tokens{Access: "expired", Refresh: "refresh-1"})
	g := New(srv.URL, store, WithHTTPClient(srv.Client()))

	resp, err := g.Send(context.Background(), &Request{Method: constraints.MethodGet, Path: "/products/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 2, hits)

	tokens, _ := store.Load(context.Background())
	assert.Equal(t, session.Tokens{Access: "still-bad", Refresh: "refresh-2"}, tokens)
}

func TestSend_RefreshRejectedResetsSession(t *testing.T) {
	api := newFakeAPI()
	api.refreshStatus = http.StatusUnauthorized
	g, store, sub := setup(t, api, session.Tokens{Access: "expired", Refresh: "refresh-1", Privileged: true})

	resp, err := g.Send(context.Background(), &Request{Method: constraints.MethodGet, Path: "/dashboard/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "Given token not valid", "original 401 is returned")

	refreshes, hits, _ := api.snapshot()
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 1, hits["/dashboard/"])

	tokens, _ := store.Load(context.Background())
	assert.True(t, tokens.Empty())
	assert.Equal(t, session.Anonymous, g.State(context.Background()))

	events := drain(sub)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, session.Anonymous, last.State)
	assert.Equal(t, constraints.ReasonRefreshFailed, last.Reason)
}

type failingRefreshDoer struct {
	next Doer
}

func (d failingRefreshDoer) Do(req *http.Request) (*http.Response, error) {
	if req.URL.Path == constraints.RefreshPath {
		return nil, errors.New("connection refused")
	}
	return d.next.Do(req)
}

func TestSend_RefreshTransportErrorResetsSession(t *testing.T) {
	api := newFakeAPI()
	srv := httptest.NewServer(api)
	defer srv.Close()

	store := session.NewMemoryStore()
	_ = store.Save(context.Background(), session.Tokens{Access: "expired", Refresh: "refresh-1"})
	g := New(srv.URL, store, WithHTTPClient(failingRefreshDoer{next: srv.Client()}))

	resp, err := g.Send(context.Background(), &Request{Method: constraints.MethodGet, Path: "/vendors/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tokens, _ := store.Load(context.Background())
	assert.True(t, tokens.Empty())
}

func TestSend_ForbiddenPassesThrough(t *testing.T) {
	api := newFakeAPI()
	api.forced["/vendors/5/"] = http.StatusForbidden
	prior := session.Tokens{Access: "access-1", Refresh: "refresh-1"}
	g, store, sub := setup(t, api, prior)

	resp, err := g.Send(context.Background(), &Request{Method: constraints.MethodDelete, Path: "/vendors/5/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	refreshes, _, _ := api.snapshot()
	assert.Equal(t, 0, refreshes)
	tokens, _ := store.Load(context.Background())
	assert.Equal(t, prior, tokens)
	assert.Empty(t, drain(sub))
}

func TestSend_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	store := session.NewMemoryStore()
	_ = store.Save(context.Background(), session.Tokens{Access: "a", Refresh: "r"})
	g := New(addr, store)

	resp, err := g.Send(context.Background(), &Request{Method: constraints.MethodGet, Path: "/categories/"})
	require.Error(t, err)
	assert.Nil(t, resp)

	tokens, _ := store.Load(context.Background())
	assert.Equal(t, "a", tokens.Access)
}

type brokenStore struct {
	session.MemoryStore
}

func (*brokenStore) Load(context.Context) (session.Tokens, error) {
	return session.Tokens{}, session.ErrStoreUnavailable
}

func TestSend_StoreErrorAbortsBeforeDispatch(t *testing.T) {
	api := newFakeAPI()
	srv := httptest.NewServer(api)
	defer srv.Close()

	g := New(srv.URL, &brokenStore{}, WithHTTPClient(srv.Client()))
	_, err := g.Send(context.Background(), &Request{Method: constraints.MethodGet, Path: "/categories/"})
	require.ErrorIs(t, err, session.ErrStoreUnavailable)

	_, hits, _ := api.snapshot()
	assert.Empty(t, hits)
}

func TestSend_ConcurrentUnauthorizedPerCall(t *testing.T) {
	api := newFakeAPI()
	api.validAccess = "fresh"
	api.nextAccess = "fresh"
	api.barrier = &sync.WaitGroup{}
	api.barrier.Add(2)
	g, _, _ := setup(t, api, session.Tokens{Access: "expired", Refresh: "refresh-1"})

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := g.Send(context.Background(), &Request{Method: constraints.MethodGet, Path: "/categories/"})
			if err == nil {
				codes[i] = resp.StatusCode
			}
		}(i)
	}
	wg.Wait()

	refreshes, _, _ := api.snapshot()
	assert.Equal(t, 2, refreshes)
	assert.Equal(t, []int{http.StatusOK, http.StatusOK}, codes)
}

func TestSend_ConcurrentUnauthorizedCoalesced(t *testing.T) {
	api := newFakeAPI()
	api.validAccess = "fresh"
	api.nextAccess = "fresh"
	api.refreshDelay = 200 * time.Millisecond
	api.barrier = &sync.WaitGroup{}
	api.barrier.Add(2)
	g, _, _ := setup(t, api, session.Tokens{Access: "expired", Refresh: "refresh-1"}, WithRefreshCoalescing(true))

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := g.Send(context.Background(), &Request{Method: constraints.MethodGet, Path: "/categories/"})
			if err == nil {
				codes[i] = resp.StatusCode
			}
		}(i)
	}
	wg.Wait()

	refreshes, hits, _ := api.snapshot()
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 4, hits["/categories/"])
	assert.Equal(t, []int{http.StatusOK, http.StatusOK}, codes)
}

func TestSend_CoalescedRefreshSurvivesCancelledLeader(t *testing.T) {
	api := newFakeAPI()
	api.refreshDelay = 400 * time.Millisecond
	g, store, sub := setup(t, api, session.Tokens{Access: "expired", Refresh: "refresh-1"}, WithRefreshCoalescing(true))

	leaderCtx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	leaderErr := make(chan error, 1)
	go func() {
		_, err := g.Send(leaderCtx, &Request{Method: constraints.MethodGet, Path: "/categories/"})
		leaderErr <- err
	}()

	require.Eventually(t, func() bool {
		refreshes, _, _ := api.snapshot()
		return refreshes == 1
	}, time.Second, 5*time.Millisecond)

	resp, err := g.Send(context.Background(), &Request{Method: constraints.MethodGet, Path: "/categories/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	err = <-leaderErr
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	refreshes, _, _ := api.snapshot()
	assert.Equal(t, 1, refreshes)

	tokens, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.Tokens{Access: "access-2", Refresh: "refresh-2"}, tokens)

	for _, e := range drain(sub) {
		assert.NotEqual(t, session.Anonymous, e.State, "session must not be reset")
	}
}

type stateProbe struct {
	next  Doer
	g     *Gateway
	seen  session.State
	probe sync.Once
}

func (p *stateProbe) Do(req *http.Request) (*http.Response, error) {
	if req.URL.Path == constraints.RefreshPath {
		p.probe.Do(func() { p.seen = p.g.State(req.Context()) })
	}
	return p.next.Do(req)
}

func TestState_RefreshingDuringExchange(t *testing.T) {
	api := newFakeAPI()
	api.validAccess = "fresh"
	api.nextAccess = "fresh"
	srv := httptest.NewServer(api)
	defer srv.Close()

	store := session.NewMemoryStore()
	assert.Equal(t, session.Anonymous, New(srv.URL, store).State(context.Background()))

	_ = store.Save(context.Background(), session.Tokens{Access: "expired", Refresh: "refresh-1"})
	probe := &stateProbe{next: srv.Client()}
	g := New(srv.URL, store, WithHTTPClient(probe))
	probe.g = g

	_, err := g.Send(context.Background(), &Request{Method: constraints.MethodGet, Path: "/categories/"})
	require.NoError(t, err)
	assert.Equal(t, session.Refreshing, probe.seen)
	assert.Equal(t, session.Authenticated, g.State(context.Background()))
}

func TestLogout_Idempotent(t *testing.T) {
	api := newFakeAPI()
	g, store, sub := setup(t, api, session.Tokens{Access: "a", Refresh: "r", Privileged: true})

	require.NoError(t, g.Logout(context.Background()))
	require.NoError(t, g.Logout(context.Background()))

	tokens, _ := store.Load(context.Background())
	assert.True(t, tokens.Empty())
	assert.False(t, g.Privileged(context.Background()))

	events := drain(sub)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, session.Anonymous, e.State)
		assert.Equal(t, constraints.ReasonLogout, e.Reason)
	}
}

func TestSend_RateLimitHonoursContext(t *testing.T) {
	api := newFakeAPI()
	g, _, _ := setup(t, api, session.Tokens{Access: "access-1"}, WithRateLimit(0.01, 1))

	_, err := g.Send(context.Background(), &Request{Method: constraints.MethodGet, Path: "/categories/"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Send(ctx, &Request{Method: constraints.MethodGet, Path: "/categories/"})
	require.Error(t, err)

	_, hits, _ := api.snapshot()
	assert.Equal(t, 1, hits["/categories/"])
}

func TestSend_RequestIDOnEveryDispatch(t *testing.T) {
	var ids []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids = append(ids, r.Header.Get(constraints.HeaderRequestID))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	g := New(srv.URL, session.NewMemoryStore(), WithHTTPClient(srv.Client()))
	for i := 0; i < 2; i++ {
		_, err := g.Send(context.Background(), &Request{Method: constraints.MethodGet, Path: "/dashboard/"})
		require.NoError(t, err)
	}
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1])
}
