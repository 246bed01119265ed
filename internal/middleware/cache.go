package middleware

import "github.com/gin-gonic/gin"

const responseMetaKey = "response_meta"

// SetCacheHit records on the request whether the payload came from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	ResponseMeta(c)["cache_hit"] = hit
}

// ResponseMeta returns the envelope meta map of the request, creating it on
// first use.
func ResponseMeta(c *gin.Context) map[string]interface{} {
	if value, exists := c.Get(responseMetaKey); exists {
		if meta, ok := value.(map[string]interface{}); ok {
			return meta
		}
	}
	meta := make(map[string]interface{})
	c.Set(responseMetaKey, meta)
	return meta
}
