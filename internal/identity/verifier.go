// Package identity turns bearer tokens issued by the upstream auth service into principals.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = fmt.Errorf("identity: invalid token: %w", shared.ErrUnauthenticated)

// Claims are the custom claims carried by access tokens.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Cashier  bool   `json:"cashier"`
	jwt.RegisteredClaims
}

// Config tunes the verifier.
type Config struct {
	Secret   string
	Issuer   string
	Leeway   time.Duration
	CacheTTL time.Duration
}

type cached struct {
	principal shared.Principal
	expires   time.Time
}

const maxCacheEntries = 4096

// Verifier validates HS256 tokens. Verified tokens are cached until they expire or CacheTTL
// elapses, and concurrent verifications of one token share a single parse.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
	ttl    time.Duration
	now    func() time.Time

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]cached
}

// NewVerifier constructs Verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("identity: secret required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Verifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
		ttl:    ttl,
		now:    time.Now,
		cache:  make(map[string]cached),
	}, nil
}

// Verify returns the principal named by token.
func (v *Verifier) Verify(_ context.Context, token string) (shared.Principal, error) {
	if token == "" {
		return shared.Principal{}, ErrInvalidToken
	}
	now := v.now()
	v.mu.RLock()
	entry, ok := v.cache[token]
	v.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.principal, nil
	}

	res, err, _ := v.group.Do(token, func() (any, error) {
		return v.parse(token)
	})
	if err != nil {
		return shared.Principal{}, err
	}
	return res.(shared.Principal), nil
}

func (v *Verifier) parse(token string) (shared.Principal, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return shared.Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	userID := claims.UserID
	if userID == 0 && claims.Subject != "" {
		userID, _ = strconv.ParseInt(claims.Subject, 10, 64)
	}
	if userID <= 0 {
		return shared.Principal{}, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	p := shared.Principal{UserID: userID, Username: claims.Username, CashierAuthority: claims.Cashier}

	expires := v.now().Add(v.ttl)
	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(expires) {
		expires = claims.ExpiresAt.Time
	}
	v.mu.Lock()
	if len(v.cache) >= maxCacheEntries {
		v.evictExpired()
	}
	v.cache[token] = cached{principal: p, expires: expires}
	v.mu.Unlock()
	return p, nil
}

// evictExpired drops stale entries, or everything when nothing is stale. Callers hold mu.
func (v *Verifier) evictExpired() {
	now := v.now()
	for k, e := range v.cache {
		if !now.Before(e.expires) {
			delete(v.cache, k)
		}
	}
	if len(v.cache) >= maxCacheEntries {
		v.cache = make(map[string]cached)
	}
}

// Issue signs a token for p. The upstream auth service owns issuance in production; this
// serves local tooling and tests.
func Issue(secret string, p shared.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   p.UserID,
		Username: p.Username,
		Cashier:  p.CashierAuthority,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
