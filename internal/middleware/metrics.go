package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// requestObserver receives one observation per finished request.
type requestObserver interface {
	ObserveHTTPRequest(method, path string, status int, duration time.Duration)
}

// Metrics records request count and latency labelled by route template, so
// path parameters do not explode label cardinality. Unmatched routes are
// grouped under "unmatched".
func Metrics(observer requestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if observer == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		observer.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
