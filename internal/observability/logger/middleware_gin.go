package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/licensor/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps the last handler error to (type, code) log fields.
	ErrorClassifier func(err error) (string, string)
}

// quietRoutes are polled constantly and logged at debug level only.
var quietRoutes = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// probeRoutes answer expected business denials (unknown key, inactive
// domain) that are not worth an info line each.
var probeRoutes = map[string]bool{
	"/api/v1/licenses/check":    true,
	"/api/v1/licenses/validate": true,
}

// GinMiddleware assigns a request id and writes one structured line per
// request, including the license domain and outcome the handler recorded.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		ctx = obscontext.WithClientIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()

		fields := make([]zap.Field, 0, 12)
		fields = append(fields,
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		)
		fields = append(fields, licenseFields(c)...)

		if lastErr := c.Errors.Last(); lastErr != nil {
			errorType, errorCode := "", ""
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(lastErr.Err)
			}
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		if ce := FromContext(c.Request.Context()).Check(requestLevel(route, status), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func licenseFields(c *gin.Context) []zap.Field {
	var fields []zap.Field
	if domain := strings.TrimSpace(c.GetString(obscontext.GinKeyLicenseDomain)); domain != "" {
		fields = append(fields, zap.String("domain", domain))
	}
	if outcome := strings.TrimSpace(c.GetString(obscontext.GinKeyLicenseOutcome)); outcome != "" {
		fields = append(fields, zap.String("license_outcome", outcome))
	}
	return fields
}

func requestLevel(route string, status int) zapcore.Level {
	switch {
	case quietRoutes[route]:
		return zapcore.DebugLevel
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case probeRoutes[route] && status >= http.StatusBadRequest:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader("X-Request-Id"))
	if requestID == "" {
		requestID = strings.TrimSpace(c.GetString(obscontext.GinKeyRequestID))
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	c.Set(obscontext.GinKeyRequestID, requestID)
	c.Header("X-Request-Id", requestID)
	return requestID
}
