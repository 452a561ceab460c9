// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger for the chat API.
// Guest traffic routinely carries names, emails, and phone numbers
// (reservations, callback requests), so the logger scrubs those from
// request metadata before anything reaches the log sink. Bodies are never
// logged at all.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// piiPattern pairs a compiled expression with its replacement marker.
type piiPattern struct {
	re   *regexp.Regexp
	mark string
}

// Scrub order matters: UUIDs must go first so the loose phone pattern
// cannot match the digit runs inside them. The phone pattern accepts the
// formats guests actually type: "+46 70 123 45 67", "070-1234567",
// "(212) 555-1212".
var piiPatterns = []piiPattern{
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`), "[REDACTED:id]"},
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
	{regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
}

// Headers masked wholesale regardless of content.
var builtinMaskedHeaders = []string{"authorization", "cookie", "set-cookie"}

// scrubPII applies every pattern replacement to s.
func scrubPII(s string) string {
	if s == "" {
		return s
	}
	for _, p := range piiPatterns {
		s = p.re.ReplaceAllString(s, p.mark)
	}
	return s
}

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders lists extra header names whose values are replaced with
// "[REDACTED]" entirely. Matching is case-insensitive and merged with the
// built-in set (Authorization, Cookie, Set-Cookie).
type RedactOptions struct {
	MaskHeaders []string
}

// RedactingLogger returns a Gin middleware that emits one structured log
// line per request: method, route pattern, scrubbed query string, tenant
// slug, status, response size, latency, and scrubbed request headers.
// Severity follows the status code (info, warn for 4xx, error for 5xx).
//
// The middleware reduces but does not eliminate log leakage; clients
// should still keep PII out of query strings where possible.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := make(map[string]struct{}, len(builtinMaskedHeaders)+len(opts.MaskHeaders))
	for _, h := range builtinMaskedHeaders {
		masked[h] = struct{}{}
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		// Prefer the route pattern so log lines aggregate per endpoint,
		// not per session id.
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := scrubPII(c.Request.URL.RawQuery)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			val := strings.Join(vv, ", ")
			if _, hide := masked[strings.ToLower(k)]; hide {
				safeHeaders[k] = "[REDACTED]"
			} else {
				safeHeaders[k] = scrubPII(val)
			}
		}

		c.Next()

		status := c.Writer.Status()

		// The response header is authoritative; RequestID middleware sets
		// it even when the client supplied its own id.
		reqID := c.Writer.Header().Get("X-Request-ID")
		if reqID == "" {
			reqID = c.GetHeader("X-Request-ID")
		}

		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}

		ev.
			Str("request_id", reqID).
			Str("customer", c.Param("slug")).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
