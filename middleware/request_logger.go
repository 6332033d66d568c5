package middleware

import (
	"log/slog"
	"time"

	"github.com/AnTengye/solarflow/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RequestLogger logs one line per request at a level chosen by the status
// code. Paths in quiet are logged at debug level when they succeed.
func RequestLogger(quiet ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		skip[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"bytes", c.Writer.Size(),
		}
		if query != "" {
			attrs = append(attrs, "query", query)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		// the request context carries request_id and the session identity
		log := logger.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			log.Error("request completed", attrs...)
		case status >= 400:
			log.Warn("request completed", attrs...)
		case skip[path]:
			log.Log(c.Request.Context(), slog.LevelDebug, "request completed", attrs...)
		default:
			log.Info("request completed", attrs...)
		}
	}
}
