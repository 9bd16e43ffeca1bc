package disclosure

import (
	"context"

	"github.com/google/uuid"

	"github.com/medref/medref/internal/domain/billing"
	"github.com/medref/medref/internal/domain/referral"
	"github.com/medref/medref/internal/platform/apperr"
	"github.com/medref/medref/internal/platform/auth"
)

type referralReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*referral.Referral, error)
}

type receiverReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*referral.Receiver, error)
}

// billingReader fetches the flag record the gate depends on. Satisfied
// by the billing service.
type billingReader interface {
	GetBilling(ctx context.Context, referralID, receiverStatusID uuid.UUID) (*billing.BillingRecord, error)
}

type Service struct {
	referrals referralReader
	receivers receiverReader
	billing   billingReader
}

func NewService(referrals referralReader, receivers receiverReader, billing billingReader) *Service {
	return &Service{referrals: referrals, receivers: receivers, billing: billing}
}

// ViewFor renders the referral for one receiver with the gate applied.
// Only members of the target's department (or admins) may read it; the
// check is server-side because each receiver must never reach another
// receiver's view by guessing ids.
func (s *Service) ViewFor(ctx context.Context, actor *auth.Actor, referralID, targetID uuid.UUID) (*View, error) {
	ref, rc, err := s.load(ctx, actor, referralID, targetID)
	if err != nil {
		return nil, err
	}
	b, err := s.billing.GetBilling(ctx, referralID, targetID)
	if err != nil {
		return nil, err
	}
	return BuildView(ref, rc, b), nil
}

// DocumentRef resolves a document's storage reference for a receiver.
// Locked views reject with PaymentRequired rather than NotFound so the
// caller can tell "exists but locked" from "does not exist".
func (s *Service) DocumentRef(ctx context.Context, actor *auth.Actor, referralID, targetID uuid.UUID, slot string) (string, error) {
	ref, rc, err := s.load(ctx, actor, referralID, targetID)
	if err != nil {
		return "", err
	}
	var doc *referral.Document
	for i := range ref.Documents {
		if ref.Documents[i].Slot == slot {
			doc = &ref.Documents[i]
			break
		}
	}
	if doc == nil {
		return "", apperr.NotFound("referral %s has no document in slot %q", referralID, slot)
	}

	b, err := s.billing.GetBilling(ctx, referralID, targetID)
	if err != nil {
		return "", err
	}
	if !Unlocked(rc, b) {
		return "", apperr.PaymentRequired("document %q is locked until the referral is paid", slot)
	}
	return doc.Ref, nil
}

func (s *Service) load(ctx context.Context, actor *auth.Actor, referralID, targetID uuid.UUID) (*referral.Referral, *referral.Receiver, error) {
	rc, err := s.receivers.GetByID(ctx, targetID)
	if err != nil || rc.ReferralID != referralID {
		return nil, nil, apperr.NotFound("receiver %s not found on referral %s", targetID, referralID)
	}
	if !authorized(actor, rc) {
		return nil, nil, apperr.Forbidden("actor is not authorized for this receiver")
	}
	ref, err := s.referrals.GetByID(ctx, referralID)
	if err != nil {
		return nil, nil, apperr.NotFound("referral %s not found", referralID)
	}
	return ref, rc, nil
}

func authorized(actor *auth.Actor, rc *referral.Receiver) bool {
	if actor == nil {
		return false
	}
	if actor.HasRole(auth.RoleAdmin) {
		return true
	}
	return rc.DepartmentID != nil && actor.MemberOfDepartment(*rc.DepartmentID)
}
