package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// cacheKey identifies a report request. Query parameters are sorted so that
// their order does not split the cache.
func cacheKey(c *gin.Context) string {
	q := c.Request.URL.Query().Encode()
	if q == "" {
		return c.Request.URL.Path
	}
	return c.Request.URL.Path + "?" + q
}

// Cache serves repeated GET requests for the same report from memory for duration.
// Responses marked Cache-Control: no-store are never kept.
func Cache(store *cache.Cache, duration time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := cacheKey(c)
		if v, found := store.Get(key); found {
			hit := v.(cachedResponse)
			header := c.Writer.Header()
			for k, vals := range hit.headers {
				header[k] = vals
			}
			header.Set("X-Cache", "HIT")
			c.Writer.WriteHeader(hit.status)
			_, _ = c.Writer.Write(hit.body)
			c.Abort()
			return
		}

		c.Writer.Header().Set("X-Cache", "MISS")
		w := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status < 200 || status >= 300 || w.Header().Get("Cache-Control") == "no-store" {
			return
		}
		headers := w.Header().Clone()
		headers.Del("X-Cache")
		store.Set(key, cachedResponse{status: status, headers: headers, body: w.body.Bytes()}, duration)
	}
}
