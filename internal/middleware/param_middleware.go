package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ExtractUintParam parses the named route parameter as uint and stores it
// in the context under contextKey, rejecting malformed ids before the
// handler runs.
func ExtractUintParam(paramName, contextKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param(paramName)
		value, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || value == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":      "Invalid " + paramName + " parameter",
				"error_type": "validation_error",
			})
			return
		}
		c.Set(contextKey, uint(value))
		c.Next()
	}
}

// UintParam returns a value stored by ExtractUintParam.
func UintParam(c *gin.Context, contextKey string) uint {
	value, exists := c.Get(contextKey)
	if !exists {
		return 0
	}
	id, _ := value.(uint)
	return id
}
