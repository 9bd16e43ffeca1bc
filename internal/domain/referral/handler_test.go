package referral

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medref/medref/internal/domain/directory"
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

func TestHandler_CreateDraft(t *testing.T) {
	f := newFixture(nil)
	h := NewHandler(f.svc)
	e := echo.New()

	body := `{"patient":{"name":"Jane Doe"},"notes":"cardiology consult"}`
	c, rec := newHandlerContext(e, http.MethodPost, "/", body, senderActor(uuid.New()))

	if err := h.CreateDraft(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var out Referral
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !out.IsDraft || out.ID == uuid.Nil {
		t.Error("expected a persisted draft in the response")
	}
}

func TestHandler_CreateDraft_MissingPatient(t *testing.T) {
	f := newFixture(nil)
	h := NewHandler(f.svc)
	e := echo.New()

	c, _ := newHandlerContext(e, http.MethodPost, "/", `{}`, senderActor(uuid.New()))
	err := h.CreateDraft(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Send(t *testing.T) {
	deptID := uuid.New()
	f := newFixture(&directory.ResolvedTargets{DepartmentIDs: []uuid.UUID{deptID}})
	h := NewHandler(f.svc)
	e := echo.New()
	actor := senderActor(uuid.New())
	ref := draftReferral(t, f, actor)

	body := `{"selections":[{"organization_id":"` + uuid.New().String() + `"}]}`
	c, rec := newHandlerContext(e, http.MethodPost, "/", body, actor)
	c.SetParamNames("id")
	c.SetParamValues(ref.ID.String())

	if err := h.Send(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	receivers, _ := f.svc.ListReceivers(context.Background(), ref.ID)
	if len(receivers) != 1 {
		t.Errorf("expected 1 receiver after send, got %d", len(receivers))
	}
}

func TestHandler_Send_DoubleSendConflict(t *testing.T) {
	deptID := uuid.New()
	f := newFixture(&directory.ResolvedTargets{DepartmentIDs: []uuid.UUID{deptID}})
	h := NewHandler(f.svc)
	e := echo.New()
	actor := senderActor(uuid.New())
	ref := draftReferral(t, f, actor)
	if _, err := f.svc.Send(context.Background(), actor, ref.ID, nil, nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	c, _ := newHandlerContext(e, http.MethodPost, "/", `{}`, actor)
	c.SetParamNames("id")
	c.SetParamValues(ref.ID.String())

	err := h.Send(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_Accept_ForbiddenIs403(t *testing.T) {
	deptID := uuid.New()
	f := newFixture(&directory.ResolvedTargets{DepartmentIDs: []uuid.UUID{deptID}})
	h := NewHandler(f.svc)
	e := echo.New()
	ref, byDept := sendToDepartments(t, f, senderActor(uuid.New()), deptID)

	c, _ := newHandlerContext(e, http.MethodPost, "/", "", receiverActor(uuid.New()))
	c.SetParamNames("id", "targetId")
	c.SetParamValues(ref.ID.String(), byDept[deptID].ID.String())

	err := h.Accept(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestHandler_Reject_InvalidTransitionIs409(t *testing.T) {
	deptID := uuid.New()
	f := newFixture(&directory.ResolvedTargets{DepartmentIDs: []uuid.UUID{deptID}})
	h := NewHandler(f.svc)
	e := echo.New()
	ref, byDept := sendToDepartments(t, f, senderActor(uuid.New()), deptID)
	actor := receiverActor(deptID)
	if _, err := f.svc.Accept(context.Background(), actor, ref.ID, byDept[deptID].ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	c, _ := newHandlerContext(e, http.MethodPost, "/", `{"reason":"late"}`, actor)
	c.SetParamNames("id", "targetId")
	c.SetParamValues(ref.ID.String(), byDept[deptID].ID.String())

	err := h.Reject(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_ClaimGuest(t *testing.T) {
	email := "desk@lakeside.example"
	f := newFixture(&directory.ResolvedTargets{Guests: []directory.GuestDescriptor{{Name: "Lakeside Clinic", Email: &email}}})
	h := NewHandler(f.svc)
	e := echo.New()
	actor := senderActor(uuid.New())
	ref := draftReferral(t, f, actor)
	if _, err := f.svc.Send(context.Background(), actor, ref.ID, nil, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	receivers, _ := f.svc.ListReceivers(context.Background(), ref.ID)
	guestID := *receivers[0].GuestOrgID
	deptID := uuid.New()

	body := `{"department_id":"` + deptID.String() + `"}`
	c, rec := newHandlerContext(e, http.MethodPost, "/", body, receiverActor(deptID))
	c.SetParamNames("id")
	c.SetParamValues(guestID.String())

	if err := h.ClaimGuest(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if out["reassigned"] != 1 {
		t.Errorf("expected 1 reassigned receiver, got %d", out["reassigned"])
	}
}
