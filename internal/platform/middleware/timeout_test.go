package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func runTimeout(t *testing.T, d time.Duration, target string, h echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return rec, RequestTimeout(d)(h)(e.NewContext(req, rec))
}

func TestRequestTimeout_FastHandlerUnaffected(t *testing.T) {
	rec, err := runTimeout(t, 5*time.Second, "/api/v1/referrals", func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("context should carry a deadline")
		}
		return c.String(http.StatusOK, "ok")
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRequestTimeout_SlowHandlerGets504(t *testing.T) {
	rec, err := runTimeout(t, 50*time.Millisecond, "/api/v1/referrals", func(c echo.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return c.String(http.StatusOK, "too late")
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"timeout"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestRequestTimeout_WebsocketEndpointExempt(t *testing.T) {
	called := false
	_, err := runTimeout(t, 50*time.Millisecond, "/api/v1/ws", func(c echo.Context) error {
		called = true
		if deadline, ok := c.Request().Context().Deadline(); ok && time.Until(deadline) < time.Second {
			t.Error("websocket path must not get the request deadline")
		}
		return c.NoContent(http.StatusSwitchingProtocols)
	})
	if err != nil || !called {
		t.Fatalf("err = %v, called = %v", err, called)
	}
}

func TestRequestTimeout_HandlerErrorsPassThrough(t *testing.T) {
	_, err := runTimeout(t, 5*time.Second, "/api/v1/referrals/x", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	})
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 HTTPError", err)
	}
}
