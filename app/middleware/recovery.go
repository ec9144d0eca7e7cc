package middleware

import (
	"net/http"
	"runtime/debug"

	"pdmflow/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Recovery middleware catches panic and converts it to standard error response
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()
				log.ErrorCtx(c.Request.Context(), "panic recovered: %v\nstack:\n%s", err, string(stack))

				resp := gin.H{"error": "Internal Server Error"}
				// Return stack trace in debug mode
				if gin.Mode() == gin.DebugMode {
					resp["panic"] = err
					resp["stack"] = string(stack)
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
			}
		}()

		c.Next()
	}
}
