package middleware

import (
	"net/http"

	"github.com/EternisAI/keygate/internal/api/http/dto"
	"github.com/gin-gonic/gin"
)

const DefaultBodyLimit = 64 * 1024

func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.Fail("request body too large", nil))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
