package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capecontrol/capecontrol-auth/internal/config"
	"github.com/capecontrol/capecontrol-auth/internal/model"
	"github.com/capecontrol/capecontrol-auth/internal/utils"
)

const testSecret = "test-secret-key-min-32-bytes-long!"

type stubDenylist struct {
	ids map[string]bool
	err error
}

func (d stubDenylist) Contains(_ context.Context, jti string) (bool, error) {
	return d.ids[jti], d.err
}

func newIssuer() *utils.Issuer {
	return utils.NewIssuer(testSecret, "capecontrol", 30*time.Minute, 7*24*time.Hour)
}

func do(e *echo.Echo, method, path, bearer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func protectedEcho(iss *utils.Issuer, deny AccessDenylist, roles ...model.Role) *echo.Echo {
	e := echo.New()
	mws := []echo.MiddlewareFunc{JWTAuth(iss, deny)}
	if len(roles) > 0 {
		mws = append(mws, RequireRole(roles...))
	}
	e.GET("/whoami", func(c echo.Context) error {
		id, ok := IdentityFrom(c)
		if !ok {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, echo.Map{"user_id": id.UserID, "role": id.Role, "jti": id.TokenID})
	}, mws...)
	return e
}

func TestJWTAuth(t *testing.T) {
	iss := newIssuer()
	tok, err := iss.IssueAccessToken(42, model.RoleCustomer)
	require.NoError(t, err)
	refresh, err := iss.IssueRefreshToken(42)
	require.NoError(t, err)
	foreign, err := utils.NewIssuer("another-secret-key-of-32-bytes-long", "capecontrol", time.Minute, time.Hour).
		IssueAccessToken(42, model.RoleAdmin)
	require.NoError(t, err)
	expired, err := iss.WithClock(func() time.Time { return time.Now().Add(-time.Hour) }).
		IssueAccessToken(42, model.RoleCustomer)
	require.NoError(t, err)

	e := protectedEcho(iss, nil)

	rec := do(e, http.MethodGet, "/whoami", tok.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":42`)
	assert.Contains(t, rec.Body.String(), `"role":"CUSTOMER"`)

	for name, bearer := range map[string]string{
		"missing":       "",
		"garbage":       "not.a.jwt",
		"refresh token": refresh.Raw,
		"foreign key":   foreign.Token,
		"expired":       expired.Token,
	} {
		rec := do(e, http.MethodGet, "/whoami", bearer, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
		assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String(), name)
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Basic "+tok.Token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "bearer  "+tok.Token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "scheme is case-insensitive")
}

func TestJWTAuthDenylist(t *testing.T) {
	iss := newIssuer()
	tok, err := iss.IssueAccessToken(7, model.RoleDeveloper)
	require.NoError(t, err)

	e := protectedEcho(iss, stubDenylist{ids: map[string]bool{tok.ID: true}})
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/whoami", tok.Token, "").Code)

	e = protectedEcho(iss, stubDenylist{err: errors.New("redis down")})
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/whoami", tok.Token, "").Code, "lookup errors fail open")
}

func TestRequireRole(t *testing.T) {
	iss := newIssuer()
	customer, err := iss.IssueAccessToken(1, model.RoleCustomer)
	require.NoError(t, err)
	developer, err := iss.IssueAccessToken(2, model.RoleDeveloper)
	require.NoError(t, err)

	e := protectedEcho(iss, nil, model.RoleDeveloper)

	rec := do(e, http.MethodGet, "/whoami", customer.Token, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/whoami", developer.Token, "").Code)
}

func TestRequireRoleWithoutIdentity(t *testing.T) {
	e := echo.New()
	e.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, RequireRole(model.RoleAdmin))
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/admin", "", "").Code)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestTokenBucket(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip_route",
		Prefix:         "rl:test",
	}
	e := echo.New()
	e.POST("/auth/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, rdb))

	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/auth/login", "", "{}").Code)
	rec := do(e, http.MethodPost, "/auth/login", "", "{}")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = do(e, http.MethodPost, "/auth/login", "", "{}")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestTokenBucketEmailStrategyKeepsBody(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Minute,
		TTL: 10 * time.Minute, KeyStrategy: "ip_email_route", Prefix: "rl:test", Debug: true,
	}
	e := echo.New()
	e.POST("/auth/login", func(c echo.Context) error {
		var body struct {
			Email string `json:"email"`
		}
		if err := c.Bind(&body); err != nil {
			return err
		}
		return c.String(http.StatusOK, body.Email)
	}, NewTokenBucket(cfg, rdb))

	rec := do(e, http.MethodPost, "/auth/login", "", `{"email":"Alice@Example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alice@Example.com", rec.Body.String(), "handler still sees the body")
	assert.Contains(t, rec.Header().Get("X-RateLimit-Key"), "email:alice@example.com")

	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/auth/login", "", `{"email":"bob@example.com"}`).Code,
		"separate bucket per email")
	assert.Equal(t, http.StatusTooManyRequests, do(e, http.MethodPost, "/auth/login", "", `{"email":"alice@example.com"}`).Code)
}

func TestTokenBucketFailsOpen(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}
	e := echo.New()
	e.POST("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, rdb))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/x", "", "").Code)
	}
}

func TestRedisCachePerUser(t *testing.T) {
	_, rdb := newRedis(t)
	iss := newIssuer()
	alice, err := iss.IssueAccessToken(1, model.RoleDeveloper)
	require.NoError(t, err)
	bob, err := iss.IssueAccessToken(2, model.RoleDeveloper)
	require.NoError(t, err)

	calls := 0
	e := echo.New()
	e.GET("/earnings", func(c echo.Context) error {
		calls++
		id, _ := IdentityFrom(c)
		return c.JSON(http.StatusOK, echo.Map{"developer_id": id.UserID, "call": calls})
	}, JWTAuth(iss, nil), NewRedisCache(config.CacheConfig{
		Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache:test", MaxBodyBytes: 1024,
	}, rdb))

	first := do(e, http.MethodGet, "/earnings", alice.Token, "")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := do(e, http.MethodGet, "/earnings", alice.Token, "")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, echo.MIMEApplicationJSON, second.Header().Get(echo.HeaderContentType))

	other := do(e, http.MethodGet, "/earnings", bob.Token, "")
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
	assert.Contains(t, other.Body.String(), `"developer_id":2`)
	assert.Equal(t, 2, calls)
}

func TestRedisCacheDisabledWithoutClient(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		NewRedisCache(config.CacheConfig{Enabled: true}, nil))
	rec := do(e, http.MethodGet, "/x", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestPayloadCodec(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)
	status, gotHdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, hdr, gotHdr)
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}
