package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/medref/medref/internal/platform/auth"
)

func newHandlerContext(e *echo.Echo, method, target, body string, actor *auth.Actor) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if actor != nil {
		req = req.WithContext(auth.ActorToContext(req.Context(), actor))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_PostMessage(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	c, rec := newHandlerContext(e, http.MethodPost, "/", `{"text":"any update?"}`, senderActor(f.senderOrg))
	c.SetParamNames("id", "targetId")
	c.SetParamValues(f.refID.String(), f.targetA.String())

	if err := h.PostMessage(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var out Message
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if out.Text != "any update?" || out.SenderRole != RoleSender {
		t.Errorf("unexpected message in response: %+v", out)
	}
}

func TestHandler_PostMessage_EmptyText(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	c, _ := newHandlerContext(e, http.MethodPost, "/", `{"text":""}`, senderActor(f.senderOrg))
	c.SetParamNames("id", "targetId")
	c.SetParamValues(f.refID.String(), f.targetA.String())

	err := h.PostMessage(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_PostMessage_InvalidTargetID(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	c, _ := newHandlerContext(e, http.MethodPost, "/", `{"text":"hi"}`, senderActor(f.senderOrg))
	c.SetParamNames("id", "targetId")
	c.SetParamValues(f.refID.String(), "not-a-uuid")

	err := h.PostMessage(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_ListMessages(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	seedCtx, _ := newHandlerContext(e, http.MethodPost, "/", `{"text":"first"}`, senderActor(f.senderOrg))
	seedCtx.SetParamNames("id", "targetId")
	seedCtx.SetParamValues(f.refID.String(), f.targetA.String())
	if err := h.PostMessage(seedCtx); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	c, rec := newHandlerContext(e, http.MethodGet, "/", "", receiverActor(f.deptA))
	c.SetParamNames("id", "targetId")
	c.SetParamValues(f.refID.String(), f.targetA.String())

	if err := h.ListMessages(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var out []Message
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(out) != 1 || out[0].Text != "first" {
		t.Errorf("unexpected thread: %+v", out)
	}
}

func TestHandler_ListMessages_StrangerForbidden(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	c, _ := newHandlerContext(e, http.MethodGet, "/", "", receiverActor(f.deptB))
	c.SetParamNames("id", "targetId")
	c.SetParamValues(f.refID.String(), f.targetA.String())

	err := h.ListMessages(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}
