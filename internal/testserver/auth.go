package testserver

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/sha03112000/autohead/internal/middleware"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	AccessTokenTTL  = 5 * time.Minute
	RefreshTokenTTL = 24 * time.Hour
	Issuer          = "autohead-fake-backend"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("token invalid")
)

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type account struct {
	id        string
	password  string
	superuser bool
}

// Authority issues and verifies HS256 token pairs. Access and refresh token
// ids are kept on allow-lists so tests can expire or revoke them at will.
type Authority struct {
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	rotate     bool

	mu       sync.Mutex
	accounts map[string]account
	access   map[string]bool
	refresh  map[string]bool
}

func NewAuthority(key []byte, rotate bool) *Authority {
	return &Authority{
		key:        key,
		accessTTL:  AccessTokenTTL,
		refreshTTL: RefreshTokenTTL,
		rotate:     rotate,
		accounts:   make(map[string]account),
		access:     make(map[string]bool),
		refresh:    make(map[string]bool),
	}
}

func (a *Authority) AddUser(username, password string, superuser bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts[username] = account{
		id:        strconv.Itoa(len(a.accounts) + 1),
		password:  password,
		superuser: superuser,
	}
}

func (a *Authority) Login(username, password string) (*TokenPair, bool, error) {
	a.mu.Lock()
	acc, ok := a.accounts[username]
	a.mu.Unlock()
	if !ok || acc.password != password {
		return nil, false, ErrInvalidCredentials
	}

	pair, err := a.issue(acc.id, username, acc.superuser, true)
	if err != nil {
		return nil, false, err
	}
	return pair, acc.superuser, nil
}

// Refresh exchanges a refresh token for a new access token. With rotation
// on, the old refresh token is spent and a new one is returned.
func (a *Authority) Refresh(refreshToken string) (*TokenPair, error) {
	token, err := jwt.ParseWithClaims(refreshToken, &middleware.Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*middleware.Claims)
	if !ok || !token.Valid || claims.Kind != middleware.KindRefresh {
		return nil, ErrTokenInvalid
	}

	a.mu.Lock()
	allowed := a.refresh[claims.ID]
	if allowed && a.rotate {
		delete(a.refresh, claims.ID)
	}
	a.mu.Unlock()
	if !allowed {
		return nil, ErrTokenInvalid
	}

	pair, err := a.issue(claims.UserID, claims.Username, claims.Superuser, a.rotate)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Verify is the allow-list check used by the JWT middleware.
func (a *Authority) Verify(c *middleware.Claims) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.access[c.ID]
}

// ExpireAccessTokens invalidates every access token issued so far while
// keeping refresh tokens usable.
func (a *Authority) ExpireAccessTokens() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.access)
}

// RevokeSessions invalidates every token, forcing a new login.
func (a *Authority) RevokeSessions() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.access)
	clear(a.refresh)
}

func (a *Authority) issue(userID, username string, superuser, withRefresh bool) (*TokenPair, error) {
	now := time.Now()
	accessID := uuid.New().String()
	atClaims := middleware.Claims{
		UserID:    userID,
		Username:  username,
		Superuser: superuser,
		Kind:      middleware.KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    Issuer,
			ID:        accessID,
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, atClaims).SignedString(a.key)
	if err != nil {
		return nil, err
	}

	pair := &TokenPair{Access: accessToken}
	refreshID := ""
	if withRefresh {
		refreshID = uuid.New().String()
		rtClaims := atClaims
		rtClaims.Kind = middleware.KindRefresh
		rtClaims.ExpiresAt = jwt.NewNumericDate(now.Add(a.refreshTTL))
		rtClaims.ID = refreshID
		pair.Refresh, err = jwt.NewWithClaims(jwt.SigningMethodHS256, rtClaims).SignedString(a.key)
		if err != nil {
			return nil, err
		}
	}

	a.mu.Lock()
	a.access[accessID] = true
	if refreshID != "" {
		a.refresh[refreshID] = true
	}
	a.mu.Unlock()
	return pair, nil
}
