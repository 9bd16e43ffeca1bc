package middleware

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CacheConfig controls the ETag and Cache-Control behaviour of read endpoints.
type CacheConfig struct {
	MaxAge       int      // max-age in seconds
	Private      bool     // responses carry patient data, so private by default
	NoStore      bool     // force no-store on sensitive routes
	VaryHeaders  []string // headers appended to Vary
	ExcludePaths []string // exact paths that bypass the middleware
}

// DefaultCacheConfig is tuned for referral reads: short-lived, private,
// varying on the caller's identity.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxAge:      300,
		Private:     true,
		VaryHeaders: []string{"Accept", "Authorization"},
	}
}

func (c CacheConfig) cacheControl() string {
	parts := make([]string, 0, 3)
	if c.NoStore {
		parts = append(parts, "no-store")
	}
	if c.Private {
		parts = append(parts, "private")
	} else {
		parts = append(parts, "public")
	}
	return strings.Join(append(parts, fmt.Sprintf("max-age=%d", c.MaxAge)), ", ")
}

// captureWriter buffers the handler's body so the entity tag can be computed
// before anything reaches the wire. Headers pass through unbuffered.
type captureWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (w *captureWriter) Write(b []byte) (int, error) { return w.body.Write(b) }
func (w *captureWriter) WriteHeader(code int)        { w.status = code }
func (w *captureWriter) Flush()                      {}

func (w *captureWriter) release() error {
	w.ResponseWriter.WriteHeader(w.status)
	if w.body.Len() == 0 {
		return nil
	}
	_, err := w.ResponseWriter.Write(w.body.Bytes())
	return err
}

// ETagMiddleware stamps successful GET and HEAD responses with a weak entity
// tag and Cache-Control, and short-circuits to 304 Not Modified when the
// request's If-None-Match already holds the current tag. Locked and unlocked
// referral views hash to different tags, so a payment that unlocks a view
// also invalidates any cached locked copy.
func ETagMiddleware(cfg CacheConfig) echo.MiddlewareFunc {
	excluded := make(map[string]struct{}, len(cfg.ExcludePaths))
	for _, p := range cfg.ExcludePaths {
		excluded[p] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				return next(c)
			}
			if _, skip := excluded[req.URL.Path]; skip {
				return next(c)
			}

			res := c.Response()
			upstream := res.Writer
			cw := &captureWriter{ResponseWriter: upstream, status: http.StatusOK}
			res.Writer = cw
			err := next(c)
			res.Writer = upstream
			if err != nil {
				return err
			}
			if cw.status >= 400 {
				return cw.release()
			}

			res.Header().Set("Cache-Control", cfg.cacheControl())
			if len(cfg.VaryHeaders) > 0 {
				res.Header().Set("Vary", strings.Join(cfg.VaryHeaders, ", "))
			}

			tag := weakETag(cw.body.Bytes())
			res.Header().Set("ETag", tag)
			if tagMatches(req.Header.Get("If-None-Match"), tag) {
				upstream.WriteHeader(http.StatusNotModified)
				return nil
			}
			return cw.release()
		}
	}
}

func weakETag(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf(`W/"%x"`, sum[:16])
}

// tagMatches implements the weak comparison of RFC 9110: W/ prefixes are
// ignored, lists and the * wildcard are honoured.
func tagMatches(header, tag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	opaque := strings.TrimPrefix(tag, "W/")
	for _, cand := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(cand), "W/") == opaque {
			return true
		}
	}
	return false
}
