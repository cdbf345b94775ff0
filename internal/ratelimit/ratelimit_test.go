package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCounter is an in-process Counter for tests.
type memCounter struct {
	mu   sync.Mutex
	hits map[string]int64
	err  error
}

func newMemCounter() *memCounter { return &memCounter{hits: map[string]int64{}} }

func (m *memCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.hits[key]++
	return m.hits[key], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestAllow_FixedWindow(t *testing.T) {
	counter := newMemCounter()
	l := New(counter, 3, time.Minute, testLogger())
	start := time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)
	l.now = fixedClock(start)

	for i := 0; i < 3; i++ {
		d := l.Allow(context.Background(), "subscribe", "1.2.3.4")
		assert.True(t, d.Allowed, "hit %d", i+1)
		assert.Equal(t, 3-(i+1), d.Remaining)
	}

	d := l.Allow(context.Background(), "subscribe", "1.2.3.4")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 50*time.Second, d.RetryAfter)

	// Other clients and other scopes have their own budget.
	assert.True(t, l.Allow(context.Background(), "subscribe", "5.6.7.8").Allowed)
	assert.True(t, l.Allow(context.Background(), "track", "1.2.3.4").Allowed)

	// The next window starts fresh.
	l.now = fixedClock(start.Add(time.Minute))
	assert.True(t, l.Allow(context.Background(), "subscribe", "1.2.3.4").Allowed)
}

func TestAllow_FailsOpen(t *testing.T) {
	counter := newMemCounter()
	counter.err = errors.New("connection refused")
	l := New(counter, 1, time.Minute, testLogger())

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow(context.Background(), "auth", "1.2.3.4").Allowed)
	}
}

func TestRedisCounter_UnreachableFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	_, err := NewRedisCounterFromClient(client).Incr(context.Background(), "k", time.Minute)
	require.Error(t, err)

	l := New(NewRedisCounterFromClient(client), 1, time.Minute, testLogger())
	assert.True(t, l.Allow(context.Background(), "auth", "1.2.3.4").Allowed)
}

func TestNewRedisCounter_InvalidURL(t *testing.T) {
	_, err := NewRedisCounter("not-a-redis-url")
	require.Error(t, err)
}

func TestKey(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	assert.Equal(t, "ratelimit:subscribe:10.0.0.1:1700000000", Key("subscribe", "10.0.0.1", ts))
}

func TestMiddleware(t *testing.T) {
	l := New(newMemCounter(), 2, time.Minute, testLogger())
	l.now = fixedClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	h := l.Middleware("subscribe")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	do := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/subscribe", nil)
		req.RemoteAddr = remoteAddr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusCreated, do("9.9.9.9:1111").Code)
	// Same IP from a different source port shares the budget.
	second := do("9.9.9.9:2222")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))

	blocked := do("9.9.9.9:3333")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
	assert.JSONEq(t,
		`{"success":false,"error":"rate_limited","message":"Too many requests, please try again later."}`,
		blocked.Body.String(),
	)

	assert.Equal(t, http.StatusCreated, do("8.8.8.8:1111").Code)
}
