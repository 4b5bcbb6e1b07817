package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/qr-attendance/internal/clock"
	"github.com/iliyamo/qr-attendance/internal/config"
	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

func whoami(c echo.Context) error {
	id, ok := UserID(c)
	if !ok {
		return c.NoContent(http.StatusTeapot)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "roles": TokenRoles(c)})
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth("s3cret"))

	good, err := utils.NewAccessToken("s3cret", 7, []string{model.RoleEmployee}, 5, time.Now())
	require.NoError(t, err)
	forged, err := utils.NewAccessToken("other", 7, []string{model.RoleAdmin}, 5, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + good.Token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong key", "Bearer " + forged.Token, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.JSONEq(t, `{"id":7,"roles":["employee"]}`, rec.Body.String())
			}
		})
	}
}

type fakeRoles struct {
	roles map[uint64][]string
	err   error
}

func (f fakeRoles) HasRole(_ context.Context, userID uint64, role string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, r := range f.roles[userID] {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

func TestRequireRole(t *testing.T) {
	rp := fakeRoles{roles: map[uint64][]string{
		1: {model.RoleEmployee},
		2: {model.RoleEmployee, model.RoleHR},
	}}

	tests := []struct {
		name string
		rp   fakeRoles
		uid  uint64
		want int
	}{
		{"holds role", rp, 2, http.StatusOK},
		{"lacks role", rp, 1, http.StatusForbidden},
		{"anonymous", rp, 0, http.StatusUnauthorized},
		{"lookup fails", fakeRoles{err: errors.New("db down")}, 2, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			if tt.uid != 0 {
				SetIdentity(c, tt.uid, nil)
			}
			h := RequireRole(tt.rp, nil, model.RoleHR, model.RoleAdmin)(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})
			require.NoError(t, h(c))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func rateConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       10,
		RefillTokens:   1,
		RefillInterval: 3 * time.Second,
		TTL:            10 * time.Minute,
		KeyStrategy:    "user_route",
		Prefix:         "rl",
	}
}

func serveScan(e *echo.Echo) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/scan", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newRateEcho(mw echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.POST("/scan", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				SetIdentity(c, 7, nil)
				return next(c)
			}
		}, mw)
	return e
}

func TestTokenBucket(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	rdb, mock := redismock.NewClientMock()
	e := newRateEcho(NewTokenBucket(rateConfig(), rdb, clk, nil))
	key := []string{"rl:user:7:route:POST /scan"}

	mock.ExpectEvalSha(limiterScript.Hash(), key, now.UnixMilli(), 10, 1, int64(3000), int64(600)).
		SetVal([]interface{}{int64(1), int64(9), int64(0)})
	rec := serveScan(e)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))

	mock.ExpectEvalSha(limiterScript.Hash(), key, now.UnixMilli(), 10, 1, int64(3000), int64(600)).
		SetVal([]interface{}{int64(0), int64(0), int64(2500)})
	rec = serveScan(e)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("Retry-After"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenBucket_FailsOpen(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rdb, mock := redismock.NewClientMock()
	e := newRateEcho(NewTokenBucket(rateConfig(), rdb, clock.NewFake(now), nil))

	mock.ExpectEvalSha(limiterScript.Hash(), []string{"rl:user:7:route:POST /scan"}, now.UnixMilli(), 10, 1, int64(3000), int64(600)).
		SetErr(errors.New("connection refused"))
	assert.Equal(t, http.StatusNoContent, serveScan(e).Code)
}

func TestTokenBucket_Disabled(t *testing.T) {
	cfg := rateConfig()
	cfg.Enabled = false
	e := newRateEcho(NewTokenBucket(cfg, nil, nil, nil))
	assert.Equal(t, http.StatusNoContent, serveScan(e).Code)
}
