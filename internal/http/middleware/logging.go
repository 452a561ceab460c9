// Request correlation, access logging, and panic recovery.
//
// Every request gets a correlation id (X-Request-ID, reused when the
// client sends one) and a request-scoped zerolog.Logger stored in the Gin
// context. Handlers and services pull that logger via LoggerFrom so their
// lines carry the same id and tenant slug as the access log.
//
// Compose in this order: RequestID, then Logger (or RedactingLogger),
// then Recovery, so panics are logged with full request context.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// requestIDHeader propagates the correlation id on both request and
// response. requestIDKey and loggerKey are the Gin context slots.
const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "requestID"
	loggerKey       = "logger"

	// Cap on logged query-string bytes.
	maxQueryLogLength = 2048
)

// RequestID reuses the client's X-Request-ID when present, otherwise mints
// a UUIDv4, and exposes the id on the response header and in the context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger emits one structured access-log line per request and stashes a
// request-scoped logger in the context for downstream enrichment.
//
// The line carries the correlation id, tenant slug (for routes with a
// :slug parameter), method, route pattern, client metadata, sizes, status,
// and latency. Level follows the outcome: error for 5xx or collected Gin
// errors, warn for 4xx, info otherwise.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetString(requestIDKey)
		path := c.FullPath()
		if path == "" {
			// Unmatched route or 404.
			path = c.Request.URL.Path
		}

		l := log.With().
			Str("request_id", rid).
			Str("customer", c.Param("slug")).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("referer", c.Request.Referer()).
			Str("query", clip(c.Request.URL.RawQuery, maxQueryLogLength)).
			Int64("bytes_in", c.Request.ContentLength).
			Logger()
		c.Set(loggerKey, &l)

		c.Next()

		out := l.With().
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Logger()

		switch status := c.Writer.Status(); {
		case len(c.Errors) > 0:
			out.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			out.Error().Msg("request")
		case status >= 400:
			out.Warn().Msg("request")
		default:
			out.Info().Msg("request")
		}
	}
}

// Recovery converts panics into JSON 500 responses.
//
// The panic value and stack are logged with the correlation id. When
// nothing has been written yet the standard error envelope is emitted;
// otherwise only the status is forced.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := c.GetString(requestIDKey)
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", rid).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header("Content-Type", "application/json")
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger attached by Logger, or the
// global logger when none is present. Never returns nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// clip truncates s to max bytes with an ellipsis. max <= 0 disables
// truncation. Byte truncation is fine for log output.
func clip(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
