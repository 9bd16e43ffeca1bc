package disclosure

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medref/medref/internal/domain/billing"
	"github.com/medref/medref/internal/domain/referral"
	"github.com/medref/medref/internal/platform/apperr"
	"github.com/medref/medref/internal/platform/auth"
)

type stubStore struct {
	referrals map[uuid.UUID]*referral.Referral
	receivers map[uuid.UUID]*referral.Receiver
	billing   map[uuid.UUID]*billing.BillingRecord
}

func newStubStore() *stubStore {
	return &stubStore{
		referrals: make(map[uuid.UUID]*referral.Referral),
		receivers: make(map[uuid.UUID]*referral.Receiver),
		billing:   make(map[uuid.UUID]*billing.BillingRecord),
	}
}

func (s *stubStore) GetByID(_ context.Context, id uuid.UUID) (*referral.Referral, error) {
	r, ok := s.referrals[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return r, nil
}

type stubReceiverReader struct{ s *stubStore }

func (r stubReceiverReader) GetByID(_ context.Context, id uuid.UUID) (*referral.Receiver, error) {
	rc, ok := r.s.receivers[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return rc, nil
}

type stubBillingReader struct{ s *stubStore }

func (b stubBillingReader) GetBilling(_ context.Context, _, receiverStatusID uuid.UUID) (*billing.BillingRecord, error) {
	rec, ok := b.s.billing[receiverStatusID]
	if !ok {
		return &billing.BillingRecord{ReceiverStatusID: receiverStatusID}, nil
	}
	return rec, nil
}

type fixture struct {
	svc   *Service
	store *stubStore
	ref   *referral.Referral
	rc    *referral.Receiver
	dept  uuid.UUID
}

func newFixture() *fixture {
	store := newStubStore()
	ref := sampleReferral()
	store.referrals[ref.ID] = ref

	dept := uuid.New()
	rc := &referral.Receiver{
		ID:            uuid.New(),
		ReferralID:    ref.ID,
		DepartmentID:  &dept,
		State:         referral.StateAccepted,
		PaymentStatus: referral.PaymentUnpaid,
	}
	store.receivers[rc.ID] = rc

	svc := NewService(store, stubReceiverReader{store}, stubBillingReader{store})
	return &fixture{svc: svc, store: store, ref: ref, rc: rc, dept: dept}
}

func deptActor(deptID uuid.UUID) *auth.Actor {
	return &auth.Actor{UserID: "u1", OrganizationID: uuid.New(), DepartmentIDs: []uuid.UUID{deptID}, Roles: []string{auth.RoleReceiver}}
}

func TestViewFor_LockedUntilPaid(t *testing.T) {
	f := newFixture()
	v, err := f.svc.ViewFor(context.Background(), deptActor(f.dept), f.ref.ID, f.rc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Locked {
		t.Error("expected locked view before payment")
	}

	f.rc.PaymentStatus = referral.PaymentPaid
	v, err = f.svc.ViewFor(context.Background(), deptActor(f.dept), f.ref.ID, f.rc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Locked {
		t.Error("expected unlocked view after payment")
	}
}

func TestViewFor_CrossTargetForbidden(t *testing.T) {
	f := newFixture()
	_, err := f.svc.ViewFor(context.Background(), deptActor(uuid.New()), f.ref.ID, f.rc.ID)
	if !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden for another department, got %v", err)
	}
}

func TestViewFor_UnknownTarget(t *testing.T) {
	f := newFixture()
	_, err := f.svc.ViewFor(context.Background(), deptActor(f.dept), f.ref.ID, uuid.New())
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestViewFor_MismatchedReferralIsNotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.ViewFor(context.Background(), deptActor(f.dept), uuid.New(), f.rc.ID)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected not found for a mismatched referral id, got %v", err)
	}
}

func TestDocumentRef_PaymentRequiredWhileLocked(t *testing.T) {
	f := newFixture()
	_, err := f.svc.DocumentRef(context.Background(), deptActor(f.dept), f.ref.ID, f.rc.ID, "face_sheet")
	if !apperr.IsKind(err, apperr.KindPaymentRequired) {
		t.Errorf("expected payment required for a locked document, got %v", err)
	}
}

func TestDocumentRef_NotFoundIsDistinctFromLocked(t *testing.T) {
	f := newFixture()
	_, err := f.svc.DocumentRef(context.Background(), deptActor(f.dept), f.ref.ID, f.rc.ID, "mri_report")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected not found for a missing slot, got %v", err)
	}
}

func TestDocumentRef_UnlockedReturnsRef(t *testing.T) {
	f := newFixture()
	f.store.billing[f.rc.ID] = &billing.BillingRecord{ReceiverStatusID: f.rc.ID, SenderSendCharged: true}

	ref, err := f.svc.DocumentRef(context.Background(), deptActor(f.dept), f.ref.ID, f.rc.ID, "face_sheet")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != "doc-store/face-sheet-1" {
		t.Errorf("expected storage reference, got %q", ref)
	}
}

func TestHandler_GetDocument_LockedIs402(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.ActorToContext(req.Context(), deptActor(f.dept)))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id", "targetId", "slot")
	c.SetParamValues(f.ref.ID.String(), f.rc.ID.String(), "face_sheet")

	err := h.GetDocument(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusPaymentRequired {
		t.Errorf("expected 402, got %v", err)
	}
}

func TestHandler_GetView(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.ActorToContext(req.Context(), deptActor(f.dept)))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id", "targetId")
	c.SetParamValues(f.ref.ID.String(), f.rc.ID.String())

	if err := h.GetView(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
