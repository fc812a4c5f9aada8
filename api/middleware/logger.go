package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/mediagrab-go/pkg/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// quietPaths are polled often enough that they are only logged at debug level
var quietPaths = map[string]bool{
	"/health": true,
	"/ready":  true,
}

// Logger returns a gin middleware that logs each request once it completes.
// The level follows the status class; 5xx responses are also copied to the
// error category when logs is set.
func Logger(log *zap.Logger, logs *logger.MultiLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if query := c.Request.URL.RawQuery; query != "" {
			fields = append(fields, zap.String("query", query))
		}
		if jobID := c.Writer.Header().Get("X-Job-ID"); jobID != "" {
			fields = append(fields, zap.String("job_id", jobID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if ce := log.Check(requestLevel(c.Request.URL.Path, status), "HTTP request"); ce != nil {
			ce.Write(fields...)
		}

		if status >= 500 && logs != nil {
			logs.LogAppError("HTTP error response", fields...)
		}
	}
}

func requestLevel(path string, status int) zapcore.Level {
	switch {
	case status >= 500:
		return zapcore.ErrorLevel
	case status >= 400:
		return zapcore.WarnLevel
	case quietPaths[path]:
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}
