package security

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "ratelimit:orders:192.0.2.1"

func setupRateLimiter(t *testing.T) (*RateLimiter, redismock.ClientMock, core.App) {
	t.Helper()
	app, err := tests.NewTestApp()
	require.NoError(t, err)
	t.Cleanup(app.Cleanup)

	db, redisMock := redismock.NewClientMock()
	return NewRateLimiter(db, slog.New(slog.NewTextHandler(io.Discard, nil))), redisMock, app
}

func newEvent(app core.App, userAgent string) *core.RequestEvent {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	req.Header.Set("User-Agent", userAgent)

	e := &core.RequestEvent{App: app}
	e.Request = req
	e.Response = httptest.NewRecorder()
	return e
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var apiErr *router.ApiError
	require.ErrorAs(t, err, &apiErr)
	return apiErr.Status
}

func TestRateLimiter_FirstRequestSetsWindow(t *testing.T) {
	rl, redisMock, app := setupRateLimiter(t)

	redisMock.ExpectIncr(testKey).SetVal(1)
	redisMock.ExpectExpire(testKey, time.Minute).SetVal(true)

	assert.NoError(t, rl.Limit("orders", 30, time.Minute)(newEvent(app, "Mozilla/5.0")))
	require.NoError(t, redisMock.ExpectationsWereMet())
}

func TestRateLimiter_WithinLimit(t *testing.T) {
	rl, redisMock, app := setupRateLimiter(t)

	redisMock.ExpectIncr(testKey).SetVal(30)

	assert.NoError(t, rl.Limit("orders", 30, time.Minute)(newEvent(app, "Mozilla/5.0")))
	require.NoError(t, redisMock.ExpectationsWereMet())
}

func TestRateLimiter_OverLimit(t *testing.T) {
	rl, redisMock, app := setupRateLimiter(t)

	redisMock.ExpectIncr(testKey).SetVal(31)

	err := rl.Limit("orders", 30, time.Minute)(newEvent(app, "Mozilla/5.0"))
	assert.Equal(t, http.StatusTooManyRequests, statusOf(t, err))
}

func TestRateLimiter_RedisErrorFailsOpen(t *testing.T) {
	rl, redisMock, app := setupRateLimiter(t)

	redisMock.ExpectIncr(testKey).SetErr(errors.New("connection refused"))

	assert.NoError(t, rl.Limit("orders", 30, time.Minute)(newEvent(app, "Mozilla/5.0")))
}

func TestRateLimiter_BlocksBots(t *testing.T) {
	rl, redisMock, app := setupRateLimiter(t)

	err := rl.Limit("orders", 30, time.Minute)(newEvent(app, "Googlebot/2.1"))
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))
	require.NoError(t, redisMock.ExpectationsWereMet())
}
