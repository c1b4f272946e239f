package security

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 2, time.Minute)
	ctx := context.Background()
	key := "ratelimit:POST /api/v1/bookings:u1"

	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, time.Minute).SetVal(true)
	mock.ExpectIncr(key).SetVal(2)
	mock.ExpectIncr(key).SetVal(3)

	for _, want := range []bool{true, true, false} {
		ok, err := limiter.Allow(ctx, "POST /api/v1/bookings:u1")
		require.NoError(t, err)
		assert.Equal(t, want, ok)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_RedisDown(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 2, time.Minute)

	mock.ExpectIncr("ratelimit:k").SetErr(errors.New("connection refused"))

	ok, err := limiter.Allow(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestAntiBot(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 2, time.Minute)
	limiter.PerIP = 1
	limiter.ClientIP = func(e *core.RequestEvent) string { return "10.0.0.1" }
	mw := limiter.AntiBot()

	run := func(ua string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tickets/t1", nil)
		req.Header.Set("User-Agent", ua)
		rec := httptest.NewRecorder()
		e := &core.RequestEvent{}
		e.Request = req
		e.Response = rec
		require.NoError(t, mw(e))
		return rec.Code
	}

	assert.Equal(t, http.StatusForbidden, run("Googlebot/2.1"))

	mock.ExpectIncr("antibot:10.0.0.1").SetVal(1)
	mock.ExpectExpire("antibot:10.0.0.1", time.Minute).SetVal(true)
	assert.Equal(t, http.StatusOK, run("Mozilla/5.0"))

	mock.ExpectIncr("antibot:10.0.0.1").SetVal(2)
	assert.Equal(t, http.StatusTooManyRequests, run("Mozilla/5.0"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsSuspiciousUserAgent(t *testing.T) {
	assert.True(t, isSuspiciousUserAgent("Some-Scraper/1.0"))
	assert.True(t, isSuspiciousUserAgent("curl spider"))
	assert.False(t, isSuspiciousUserAgent("Mozilla/5.0 (X11; Linux x86_64)"))
}
