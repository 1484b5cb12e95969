package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "responseMeta"

// Meta keys surfaced in the response envelope.
const (
	MetaCacheHit       = "cacheHit"
	MetaProcessingTime = "processingTimeMs"
)

// WithResponseMeta gives each request a metadata map handlers can fill before responding.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
		meta := ensureMeta(c)
		if _, exists := meta[MetaProcessingTime]; !exists {
			meta[MetaProcessingTime] = time.Since(start).Milliseconds()
		}
	}
}

// SetMeta stores one metadata value for the current response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	ensureMeta(c)[key] = value
}

// SetCacheHit records whether the payload came from the read cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, MetaCacheHit, hit)
}

// ExtractMeta returns the metadata collected so far, or nil.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	return nil
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if meta := ExtractMeta(c); meta != nil {
		return meta
	}
	meta := make(map[string]interface{})
	if c != nil {
		c.Set(responseMetaKey, meta)
	}
	return meta
}
