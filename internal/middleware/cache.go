package middleware

import (
	"github.com/gin-gonic/gin"
)

// CacheHeader is set on responses served from reference data that may come from the cache.
const CacheHeader = "X-Cache"

// SetCacheHit records cache hit information for the current response.
func SetCacheHit(c *gin.Context, hit bool) {
	if hit {
		c.Header(CacheHeader, "HIT")
		return
	}
	c.Header(CacheHeader, "MISS")
}
