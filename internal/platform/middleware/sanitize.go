package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const maxHeaderValue = 8192

var (
	// Logged but not blocked; parameterized queries are the real defense.
	sqlProbe = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1|1\s*=\s*1)`)

	// Blocked outright.
	scriptProbe = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)
)

// Sanitize rejects requests carrying path traversal, null bytes, header
// injection, or script payloads in query parameters.
func Sanitize() echo.MiddlewareFunc {
	return SanitizeWithLogger(zerolog.Nop())
}

// SanitizeWithLogger is Sanitize with SQL probe attempts logged.
func SanitizeWithLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			for _, p := range []string{req.URL.Path, req.URL.RawPath} {
				if hasTraversal(p) {
					return reject(c, "path traversal detected")
				}
				if hasNullByte(p) {
					return reject(c, "null byte detected in path")
				}
			}

			for name, values := range req.Header {
				for _, v := range values {
					if len(v) > maxHeaderValue {
						return reject(c, "header value too large: "+name)
					}
					if strings.ContainsAny(v, "\r\n") {
						return reject(c, "header injection detected: "+name)
					}
				}
			}

			for key, values := range req.URL.Query() {
				if hasNullByte(key) || scriptProbe.MatchString(key) {
					return reject(c, "unsafe query parameter name")
				}
				for _, v := range values {
					if hasNullByte(v) {
						return reject(c, "null byte detected in query parameter")
					}
					if scriptProbe.MatchString(v) {
						return reject(c, "script injection detected in query parameter")
					}
					if sqlProbe.MatchString(v) {
						logger.Warn().
							Str("param", key).
							Str("path", req.URL.Path).
							Str("remote_ip", c.RealIP()).
							Msg("sql probe pattern in query parameter")
					}
				}
			}

			return next(c)
		}
	}
}

func hasTraversal(s string) bool {
	if strings.Contains(s, "..") {
		return true
	}
	lower := strings.ToLower(s)
	return strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e")
}

func hasNullByte(s string) bool {
	return strings.ContainsRune(s, '\x00') || strings.Contains(strings.ToLower(s), "%00")
}

func reject(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{
		"kind":    "validation",
		"message": message,
	})
}

// SanitizeString strips null bytes and control characters (keeping \n, \r,
// \t) and trims surrounding whitespace. Handlers apply it to free-text
// fields such as chat messages and reject reasons.
func SanitizeString(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r == '\x00' || (unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t') {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
