package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"pdmflow/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/pretty"
)

const maxLoggedBody = 1000

// Logger logs one line per request, with the compacted body of POST requests
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var body string
		if c.Request.Method == http.MethodPost {
			body = getRequestBody(c)
		}

		c.Next()

		// Skip logging for 404 requests
		if c.Writer.Status() == http.StatusNotFound {
			return
		}

		ctx := c.Request.Context()
		if body != "" {
			log.InfoCtx(ctx, "[GIN] %3d | %13v | %15s | %s | %s\nRequest Body: %s",
				c.Writer.Status(), time.Since(start), c.ClientIP(), c.Request.Method, c.Request.RequestURI, body)
			return
		}
		log.InfoCtx(ctx, "[GIN] %3d | %13v | %15s | %s | %s",
			c.Writer.Status(), time.Since(start), c.ClientIP(), c.Request.Method, c.Request.RequestURI)
	}
}

// getRequestBody reads the body and puts it back for the handler
func getRequestBody(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	bodyBytes, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	return CompressBody(string(bodyBytes))
}

// CompressBody compresses JSON using pretty package
func CompressBody(body string) string {
	if len(body) == 0 {
		return ""
	}

	// ugly removes all whitespace
	compressed := pretty.Ugly([]byte(body))
	if len(compressed) > maxLoggedBody {
		return string(compressed[:maxLoggedBody]) + "..."
	}
	return string(compressed)
}
