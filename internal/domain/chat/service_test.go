package chat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medref/medref/internal/domain/referral"
	"github.com/medref/medref/internal/platform/apperr"
	"github.com/medref/medref/internal/platform/auth"
	"github.com/medref/medref/internal/platform/websocket"
)

type mockMessageRepo struct {
	items []*Message
}

func (m *mockMessageRepo) Create(_ context.Context, msg *Message) error {
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now().Add(time.Duration(len(m.items)) * time.Millisecond)
	m.items = append(m.items, msg)
	return nil
}

func (m *mockMessageRepo) ListByTarget(_ context.Context, referralID, receiverStatusID uuid.UUID) ([]*Message, error) {
	var result []*Message
	for _, msg := range m.items {
		if msg.ReferralID == referralID && msg.ReceiverStatusID == receiverStatusID {
			result = append(result, msg)
		}
	}
	return result, nil
}

type stubReceivers struct {
	items map[uuid.UUID]*referral.Receiver
}

func (s *stubReceivers) GetByID(_ context.Context, id uuid.UUID) (*referral.Receiver, error) {
	rc, ok := s.items[id]
	if !ok {
		return nil, apperr.NotFound("receiver %s not found", id)
	}
	return rc, nil
}

type stubReferrals struct {
	items map[uuid.UUID]*referral.Referral
}

func (s *stubReferrals) GetByID(_ context.Context, id uuid.UUID) (*referral.Referral, error) {
	ref, ok := s.items[id]
	if !ok {
		return nil, apperr.NotFound("referral %s not found", id)
	}
	return ref, nil
}

type capturePublisher struct {
	events []websocket.Event
}

func (p *capturePublisher) Publish(_ context.Context, evt websocket.Event) error {
	p.events = append(p.events, evt)
	return nil
}

type fixture struct {
	svc       *Service
	messages  *mockMessageRepo
	published *capturePublisher

	senderOrg uuid.UUID
	deptA     uuid.UUID
	deptB     uuid.UUID
	refID     uuid.UUID
	targetA   uuid.UUID
	targetB   uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		messages:  &mockMessageRepo{},
		published: &capturePublisher{},
		senderOrg: uuid.New(),
		deptA:     uuid.New(),
		deptB:     uuid.New(),
		refID:     uuid.New(),
		targetA:   uuid.New(),
		targetB:   uuid.New(),
	}
	receivers := &stubReceivers{items: map[uuid.UUID]*referral.Receiver{
		f.targetA: {ID: f.targetA, ReferralID: f.refID, DepartmentID: &f.deptA, State: referral.StateAccepted, PaymentStatus: referral.PaymentUnpaid},
		f.targetB: {ID: f.targetB, ReferralID: f.refID, DepartmentID: &f.deptB, State: referral.StateRejected, PaymentStatus: referral.PaymentUnpaid},
	}}
	referrals := &stubReferrals{items: map[uuid.UUID]*referral.Referral{
		f.refID: {ID: f.refID, SenderOrganizationID: f.senderOrg},
	}}
	f.svc = NewService(f.messages, receivers, referrals, f.published, zerolog.Nop())
	return f
}

func senderActor(orgID uuid.UUID) *auth.Actor {
	return &auth.Actor{UserID: "sender-user", OrganizationID: orgID, Roles: []string{auth.RoleSender}}
}

func receiverActor(deptID uuid.UUID) *auth.Actor {
	return &auth.Actor{UserID: "receiver-user", OrganizationID: uuid.New(), DepartmentIDs: []uuid.UUID{deptID}, Roles: []string{auth.RoleReceiver}}
}

func TestPostMessage_SenderRole(t *testing.T) {
	f := newFixture()

	m, err := f.svc.PostMessage(context.Background(), senderActor(f.senderOrg), f.refID, f.targetA, "Dr. Alvarez", "patient prefers mornings")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if m.SenderRole != RoleSender {
		t.Errorf("role = %s, want %s", m.SenderRole, RoleSender)
	}
	if m.SenderName != "Dr. Alvarez" {
		t.Errorf("sender name = %q", m.SenderName)
	}
	if m.ID == uuid.Nil {
		t.Error("expected assigned message id")
	}
}

func TestPostMessage_ReceiverRole(t *testing.T) {
	f := newFixture()

	m, err := f.svc.PostMessage(context.Background(), receiverActor(f.deptA), f.refID, f.targetA, "", "can you fax the face sheet")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if m.SenderRole != RoleReceiver {
		t.Errorf("role = %s, want %s", m.SenderRole, RoleReceiver)
	}
	if m.SenderName != "receiver-user" {
		t.Errorf("sender name should default to user id, got %q", m.SenderName)
	}
}

func TestPostMessage_OpenOnRejectedTarget(t *testing.T) {
	f := newFixture()

	// targetB is REJECTED; the thread stays open regardless.
	if _, err := f.svc.PostMessage(context.Background(), receiverActor(f.deptB), f.refID, f.targetB, "", "rejected because we lack capacity, try cardiology"); err != nil {
		t.Fatalf("PostMessage on rejected target: %v", err)
	}
	if _, err := f.svc.PostMessage(context.Background(), senderActor(f.senderOrg), f.refID, f.targetB, "", "thanks, will do"); err != nil {
		t.Fatalf("sender reply on rejected target: %v", err)
	}
}

func TestPostMessage_EmptyText(t *testing.T) {
	f := newFixture()

	_, err := f.svc.PostMessage(context.Background(), senderActor(f.senderOrg), f.refID, f.targetA, "", "   ")
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPostMessage_StrangerForbidden(t *testing.T) {
	f := newFixture()

	stranger := &auth.Actor{UserID: "other", OrganizationID: uuid.New(), Roles: []string{auth.RoleReceiver}}
	_, err := f.svc.PostMessage(context.Background(), stranger, f.refID, f.targetA, "", "hello")
	if !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	// A receiver from a sibling department is equally a stranger here.
	_, err = f.svc.PostMessage(context.Background(), receiverActor(f.deptB), f.refID, f.targetA, "", "hello")
	if !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for sibling department, got %v", err)
	}
}

func TestPostMessage_UnknownTarget(t *testing.T) {
	f := newFixture()

	_, err := f.svc.PostMessage(context.Background(), senderActor(f.senderOrg), f.refID, uuid.New(), "", "hello")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostMessage_PublishesTargetTopic(t *testing.T) {
	f := newFixture()

	if _, err := f.svc.PostMessage(context.Background(), senderActor(f.senderOrg), f.refID, f.targetA, "", "hi"); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if len(f.published.events) != 1 {
		t.Fatalf("published %d events, want 1", len(f.published.events))
	}
	evt := f.published.events[0]
	if evt.Type != "chat.message" {
		t.Errorf("event type = %q", evt.Type)
	}
	if want := websocket.ReferralTargetTopic(f.refID, f.targetA); evt.Topic != want {
		t.Errorf("topic = %q, want %q", evt.Topic, want)
	}
}

func TestListMessages_ScopedToTarget(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.PostMessage(ctx, senderActor(f.senderOrg), f.refID, f.targetA, "", "for department A"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.PostMessage(ctx, receiverActor(f.deptA), f.refID, f.targetA, "", "ack"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.PostMessage(ctx, senderActor(f.senderOrg), f.refID, f.targetB, "", "for department B"); err != nil {
		t.Fatal(err)
	}

	a, err := f.svc.ListMessages(ctx, receiverActor(f.deptA), f.refID, f.targetA)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(a) != 2 {
		t.Fatalf("target A thread has %d messages, want 2", len(a))
	}
	for _, m := range a {
		if m.ReceiverStatusID != f.targetA {
			t.Errorf("message %s leaked from another thread", m.ID)
		}
	}

	b, err := f.svc.ListMessages(ctx, receiverActor(f.deptB), f.refID, f.targetB)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(b) != 1 || b[0].Text != "for department B" {
		t.Fatalf("target B thread = %+v, want the single B message", b)
	}
}

func TestListMessages_AscendingOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	texts := []string{"first", "second", "third"}
	for _, txt := range texts {
		if _, err := f.svc.PostMessage(ctx, senderActor(f.senderOrg), f.refID, f.targetA, "", txt); err != nil {
			t.Fatal(err)
		}
	}

	items, err := f.svc.ListMessages(ctx, senderActor(f.senderOrg), f.refID, f.targetA)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	for i, m := range items {
		if m.Text != texts[i] {
			t.Errorf("position %d = %q, want %q", i, m.Text, texts[i])
		}
	}
}

func TestListMessages_StrangerForbidden(t *testing.T) {
	f := newFixture()

	_, err := f.svc.ListMessages(context.Background(), receiverActor(f.deptB), f.refID, f.targetA)
	if !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
