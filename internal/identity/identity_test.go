package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

const secret = "test-secret-0123456789"

func TestVerifyRoundTrip(t *testing.T) {
	v, err := NewVerifier(Config{Secret: secret})
	require.NoError(t, err)

	token, err := Issue(secret, shared.Principal{UserID: 9, Username: "caja", CashierAuthority: true}, time.Hour)
	require.NoError(t, err)

	p, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(9), p.UserID)
	assert.Equal(t, "caja", p.Username)
	assert.True(t, p.CashierAuthority)
}

func TestVerifyRejects(t *testing.T) {
	v, err := NewVerifier(Config{Secret: secret})
	require.NoError(t, err)

	expired, err := Issue(secret, shared.Principal{UserID: 1}, -time.Minute)
	require.NoError(t, err)
	wrongKey, err := Issue("another-secret", shared.Principal{UserID: 1}, time.Hour)
	require.NoError(t, err)
	noUser, err := Issue(secret, shared.Principal{}, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": 1, "exp": time.Now().Add(time.Hour).Unix()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":     "",
		"garbage":   "not.a.token",
		"expired":   expired,
		"wrong key": wrongKey,
		"no user":   noUser,
		"alg none":  none,
	} {
		_, err := v.Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
		assert.ErrorIs(t, err, shared.ErrUnauthenticated, name)
	}
}

func TestVerifyCachesUntilExpiry(t *testing.T) {
	v, err := NewVerifier(Config{Secret: secret, CacheTTL: time.Minute})
	require.NoError(t, err)
	now := time.Now()
	v.now = func() time.Time { return now }

	token, err := Issue(secret, shared.Principal{UserID: 3}, time.Hour)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := v.Verify(context.Background(), token)
			assert.NoError(t, err)
			assert.Equal(t, int64(3), p.UserID)
		}()
	}
	wg.Wait()
	assert.Len(t, v.cache, 1)

	v.cache[token] = cached{principal: shared.Principal{UserID: 42}, expires: now.Add(time.Second)}
	p, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.UserID, "served from cache")

	v.now = func() time.Time { return now.Add(2 * time.Second) }
	p, err = v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.UserID, "re-verified after the entry expired")
}

func TestAuthenticateMiddleware(t *testing.T) {
	v, err := NewVerifier(Config{Secret: secret})
	require.NoError(t, err)
	token, err := Issue(secret, shared.Principal{UserID: 7, Username: "vendedor"}, time.Hour)
	require.NoError(t, err)

	var seen shared.Principal
	h := Authenticate(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, int64(7), seen.UserID)

	cashierOnly := Authenticate(v, nil)(RequireCashier(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
	w = httptest.NewRecorder()
	cashierOnly.ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
