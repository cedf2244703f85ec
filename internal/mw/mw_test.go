package mw

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAdminToken(t *testing.T) {
	r := gin.New()
	r.GET("/admin", AdminToken("s3cret"), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusUnauthorized, serve(r, "GET", "/admin", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "GET", "/admin", http.Header{AdminTokenHeader: {"wrong"}}).Code)
	assert.Equal(t, http.StatusOK, serve(r, "GET", "/admin", http.Header{AdminTokenHeader: {"s3cret"}}).Code)
}

func TestAdminToken_Disabled(t *testing.T) {
	r := gin.New()
	r.GET("/admin", AdminToken(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusServiceUnavailable, serve(r, "GET", "/admin", http.Header{AdminTokenHeader: {""}}).Code)
}

func TestCache(t *testing.T) {
	calls := 0
	r := gin.New()
	r.GET("/report", Cache(cache.New(time.Minute, time.Minute), time.Minute), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})

	first := serve(r, "GET", "/report?date=2025-03-14", nil)
	second := serve(r, "GET", "/report?date=2025-03-14", nil)
	other := serve(r, "GET", "/report?date=2025-03-15", nil)

	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, "application/json; charset=utf-8", second.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"calls":2}`, other.Body.String())
	assert.Equal(t, 2, calls)
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.GET("/gate", RateLimiter(NewClientLimiter(rate.Limit(1), 2, time.Minute)), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, "GET", "/gate", nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, "GET", "/gate", nil).Code)
	limited := serve(r, "GET", "/gate", nil)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))

	// Another client has its own bucket.
	assert.Equal(t, http.StatusOK, serve(r, "GET", "/gate", http.Header{"X-Forwarded-For": {"10.0.0.7"}}).Code)
}

func TestClientLimiter_SharedBucket(t *testing.T) {
	l := NewClientLimiter(rate.Limit(1), 1, time.Minute)

	const n = 16
	buckets := make([]*rate.Limiter, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buckets[i] = l.Bucket("192.0.2.1")
		}(i)
	}
	wg.Wait()

	for _, b := range buckets[1:] {
		assert.Same(t, buckets[0], b)
	}
	assert.Equal(t, 1, l.Clients())
}

func TestClientLimiter_EvictsIdleClients(t *testing.T) {
	l := NewClientLimiter(rate.Limit(1), 1, 20*time.Millisecond)

	first := l.Bucket("192.0.2.1")
	require.True(t, first.Allow())
	require.False(t, l.Bucket("192.0.2.1").Allow())

	time.Sleep(50 * time.Millisecond)

	again := l.Bucket("192.0.2.1")
	assert.NotSame(t, first, again)
	assert.True(t, again.Allow())
}

func TestCache_QueryOrderAndNoStore(t *testing.T) {
	calls := 0
	r := gin.New()
	store := cache.New(time.Minute, time.Minute)
	r.GET("/report", Cache(store, time.Minute), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})
	r.GET("/live", Cache(store, time.Minute), func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	first := serve(r, "GET", "/report?date=2025-03-14&status=open", nil)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := serve(r, "GET", "/report?status=open&date=2025-03-14", nil)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, 1, calls)

	serve(r, "GET", "/live", nil)
	assert.Equal(t, "MISS", serve(r, "GET", "/live", nil).Header().Get("X-Cache"))
}
