package referral

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medref/medref/internal/domain/directory"
	"github.com/medref/medref/internal/platform/apperr"
	"github.com/medref/medref/internal/platform/auth"
	"github.com/medref/medref/internal/platform/websocket"
)

// TargetResolver is the slice of the directory service the referral
// workflow needs: flattening a sender's selection and the guest claim
// bookkeeping.
type TargetResolver interface {
	ResolveTargets(ctx context.Context, selections []directory.TargetSelection, guests []directory.GuestDescriptor) (*directory.ResolvedTargets, error)
	CreateGuestOrganization(ctx context.Context, g *directory.GuestOrganization) error
	ClaimGuest(ctx context.Context, guestID, departmentID uuid.UUID) (*directory.GuestOrganization, error)
}

// TxRunner executes fn inside a single database transaction. Production
// wiring closes over db.RunInTx; tests substitute a passthrough.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// PassthroughTx runs fn directly, with no transaction. Used in tests and
// anywhere the caller already holds a transaction.
func PassthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type Service struct {
	referrals ReferralRepository
	receivers ReceiverRepository
	resolver  TargetResolver
	runInTx   TxRunner
	events    websocket.EventPublisher
	logger    zerolog.Logger
}

func NewService(referrals ReferralRepository, receivers ReceiverRepository, resolver TargetResolver, runInTx TxRunner, events websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		referrals: referrals,
		receivers: receivers,
		resolver:  resolver,
		runInTx:   runInTx,
		events:    events,
		logger:    logger,
	}
}

// -- Draft lifecycle --

func (s *Service) CreateDraft(ctx context.Context, actor *auth.Actor, ref *Referral) error {
	if actor == nil {
		return apperr.Forbidden("authentication required")
	}
	if strings.TrimSpace(ref.Patient.Name) == "" {
		return apperr.Validation("patient name is required")
	}
	ref.SenderOrganizationID = actor.OrganizationID
	ref.IsDraft = true
	ref.SentAt = nil
	return s.referrals.Create(ctx, ref)
}

func (s *Service) UpdateDraft(ctx context.Context, actor *auth.Actor, ref *Referral) error {
	existing, err := s.getOwned(ctx, actor, ref.ID)
	if err != nil {
		return err
	}
	if !existing.IsDraft {
		return apperr.Conflict("referral %s has been sent and can no longer be edited", ref.ID)
	}
	if strings.TrimSpace(ref.Patient.Name) == "" {
		return apperr.Validation("patient name is required")
	}
	ref.SenderOrganizationID = existing.SenderOrganizationID
	ref.IsDraft = true
	ref.SentAt = nil
	return s.referrals.Update(ctx, ref)
}

func (s *Service) GetReferral(ctx context.Context, id uuid.UUID) (*Referral, error) {
	ref, err := s.referrals.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("referral %s not found", id)
	}
	return ref, nil
}

func (s *Service) ListBySender(ctx context.Context, actor *auth.Actor, limit, offset int) ([]*Referral, int, error) {
	if actor == nil {
		return nil, 0, apperr.Forbidden("authentication required")
	}
	return s.referrals.ListBySender(ctx, actor.OrganizationID, limit, offset)
}

func (s *Service) ListReceiversByDepartment(ctx context.Context, actor *auth.Actor, departmentID uuid.UUID, limit, offset int) ([]*Receiver, int, error) {
	if actor == nil || (!actor.HasRole(auth.RoleAdmin) && !actor.MemberOfDepartment(departmentID)) {
		return nil, 0, apperr.Forbidden("actor is not a member of department %s", departmentID)
	}
	return s.receivers.ListByDepartment(ctx, departmentID, limit, offset)
}

func (s *Service) ListReceivers(ctx context.Context, referralID uuid.UUID) ([]*Receiver, error) {
	return s.receivers.ListByReferral(ctx, referralID)
}

// -- Send --

// Send freezes a draft and fans it out: the selection is resolved through
// the directory, guest descriptors become guest organization rows, and
// exactly one receiver row per resolved target is created. Everything
// happens in one transaction so a failed fan-out leaves the draft intact.
func (s *Service) Send(ctx context.Context, actor *auth.Actor, referralID uuid.UUID, selections []directory.TargetSelection, guests []directory.GuestDescriptor) (*Referral, error) {
	ref, err := s.getOwned(ctx, actor, referralID)
	if err != nil {
		return nil, err
	}
	if !ref.IsDraft {
		return nil, apperr.Conflict("referral %s has already been sent", referralID)
	}

	resolved, err := s.resolver.ResolveTargets(ctx, selections, guests)
	if err != nil {
		return nil, err
	}

	err = s.runInTx(ctx, func(ctx context.Context) error {
		now := time.Now()
		ref.IsDraft = false
		ref.SentAt = &now
		if err := s.referrals.Update(ctx, ref); err != nil {
			return err
		}

		receivers := make([]*Receiver, 0, len(resolved.DepartmentIDs)+len(resolved.Guests))
		for i := range resolved.DepartmentIDs {
			deptID := resolved.DepartmentIDs[i]
			receivers = append(receivers, &Receiver{
				ReferralID:    ref.ID,
				DepartmentID:  &deptID,
				State:         StatePending,
				PaymentStatus: PaymentUnpaid,
			})
		}
		for _, g := range resolved.Guests {
			guestOrg := &directory.GuestOrganization{
				Name:  g.Name,
				Email: g.Email,
				Phone: g.Phone,
				Fax:   g.Fax,
			}
			if err := s.resolver.CreateGuestOrganization(ctx, guestOrg); err != nil {
				return err
			}
			guestID := guestOrg.ID
			receivers = append(receivers, &Receiver{
				ReferralID:    ref.ID,
				GuestOrgID:    &guestID,
				State:         StatePending,
				PaymentStatus: PaymentUnpaid,
			})
		}
		return s.receivers.CreateBatch(ctx, receivers)
	})
	if err != nil {
		return nil, err
	}

	s.publish("referral.sent", websocket.ReferralTopic(ref.ID), "referral", ref.ID.String(), nil)
	return ref, nil
}

// -- State machine --

func (s *Service) Accept(ctx context.Context, actor *auth.Actor, referralID, targetID uuid.UUID) (*Receiver, error) {
	rc, err := s.getTargetFor(ctx, actor, referralID, targetID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, rc, StateAccepted); err != nil {
		return nil, err
	}
	s.publishReceiver("receiver.accepted", rc)
	return rc, nil
}

func (s *Service) Reject(ctx context.Context, actor *auth.Actor, referralID, targetID uuid.UUID, reason string) (*Receiver, error) {
	rc, err := s.getTargetFor(ctx, actor, referralID, targetID)
	if err != nil {
		return nil, err
	}
	rc.RejectReason = &reason
	if err := s.transition(ctx, rc, StateRejected); err != nil {
		return nil, err
	}
	s.publishReceiver("receiver.rejected", rc)
	return rc, nil
}

// MarkPaid is invoked by the payment engine once a settlement succeeds,
// or by the sender-prepaid shortcut. Calling it on an already paid
// receiver is a no-op so confirmation callbacks may be re-delivered.
func (s *Service) MarkPaid(ctx context.Context, referralID, targetID, transactionID uuid.UUID) (*Receiver, error) {
	rc, err := s.getTarget(ctx, referralID, targetID)
	if err != nil {
		return nil, err
	}
	if rc.State == StatePaid {
		return rc, nil
	}
	rc.PaymentStatus = PaymentPaid
	if err := s.transition(ctx, rc, StatePaid); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("referral_id", referralID.String()).
		Str("target_id", targetID.String()).
		Str("transaction_id", transactionID.String()).
		Msg("receiver marked paid")
	s.publishReceiver("receiver.paid", rc)
	return rc, nil
}

func (s *Service) Complete(ctx context.Context, actor *auth.Actor, referralID, targetID uuid.UUID) (*Receiver, error) {
	rc, err := s.getTarget(ctx, referralID, targetID)
	if err != nil {
		return nil, err
	}
	// Closure may come from either side of the referral.
	if !s.actorOwnsTarget(actor, rc) && !s.actorIsSender(ctx, actor, rc.ReferralID) {
		return nil, apperr.Forbidden("actor is not authorized for this receiver")
	}
	if err := s.transition(ctx, rc, StateCompleted); err != nil {
		return nil, err
	}
	s.publishReceiver("receiver.completed", rc)
	return rc, nil
}

// ClaimGuestTarget marks the guest organization claimed and repoints its
// receiver rows at the department, preserving state and payment history.
// Only a member of the destination department (or an admin) may claim.
func (s *Service) ClaimGuestTarget(ctx context.Context, actor *auth.Actor, guestOrgID, departmentID uuid.UUID) (int, error) {
	if actor == nil {
		return 0, apperr.Forbidden("authentication required")
	}
	if !actor.HasRole(auth.RoleAdmin) && !actor.MemberOfDepartment(departmentID) {
		return 0, apperr.Forbidden("actor is not a member of department %s", departmentID)
	}
	var moved int
	err := s.runInTx(ctx, func(ctx context.Context) error {
		if _, err := s.resolver.ClaimGuest(ctx, guestOrgID, departmentID); err != nil {
			return err
		}
		n, err := s.receivers.ReassignGuest(ctx, guestOrgID, departmentID)
		if err != nil {
			return err
		}
		moved = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

// transition applies the single authoritative transition table and
// persists the result. All illegal moves surface as
// InvalidStateTransition naming both states.
func (s *Service) transition(ctx context.Context, rc *Receiver, next State) error {
	if !rc.State.CanTransition(next) {
		return apperr.InvalidStateTransition(string(rc.State), string(next))
	}
	rc.State = next
	rc.UpdatedAt = time.Now()
	return s.receivers.Update(ctx, rc)
}

// -- Helpers --

func (s *Service) getOwned(ctx context.Context, actor *auth.Actor, referralID uuid.UUID) (*Referral, error) {
	if actor == nil {
		return nil, apperr.Forbidden("authentication required")
	}
	ref, err := s.GetReferral(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if ref.SenderOrganizationID != actor.OrganizationID && !actor.HasRole(auth.RoleAdmin) {
		return nil, apperr.Forbidden("referral %s belongs to another organization", referralID)
	}
	return ref, nil
}

func (s *Service) getTarget(ctx context.Context, referralID, targetID uuid.UUID) (*Receiver, error) {
	rc, err := s.receivers.GetByID(ctx, targetID)
	if err != nil || rc.ReferralID != referralID {
		return nil, apperr.NotFound("receiver %s not found on referral %s", targetID, referralID)
	}
	return rc, nil
}

func (s *Service) getTargetFor(ctx context.Context, actor *auth.Actor, referralID, targetID uuid.UUID) (*Receiver, error) {
	rc, err := s.getTarget(ctx, referralID, targetID)
	if err != nil {
		return nil, err
	}
	if !s.actorOwnsTarget(actor, rc) {
		return nil, apperr.Forbidden("actor is not authorized for this receiver")
	}
	return rc, nil
}

func (s *Service) actorOwnsTarget(actor *auth.Actor, rc *Receiver) bool {
	if actor == nil {
		return false
	}
	if actor.HasRole(auth.RoleAdmin) {
		return true
	}
	return rc.DepartmentID != nil && actor.MemberOfDepartment(*rc.DepartmentID)
}

func (s *Service) actorIsSender(ctx context.Context, actor *auth.Actor, referralID uuid.UUID) bool {
	if actor == nil {
		return false
	}
	ref, err := s.referrals.GetByID(ctx, referralID)
	return err == nil && ref.SenderOrganizationID == actor.OrganizationID
}

// publish sends a hub event without waiting on delivery.
func (s *Service) publish(eventType, topic, resourceType, resourceID string, data json.RawMessage) {
	if s.events == nil {
		return
	}
	evt := websocket.Event{
		Type:         eventType,
		Topic:        topic,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Timestamp:    time.Now(),
		Data:         data,
	}
	if err := s.events.Publish(context.Background(), evt); err != nil {
		s.logger.Debug().Err(err).Str("event", eventType).Msg("event publish failed")
	}
}

func (s *Service) publishReceiver(eventType string, rc *Receiver) {
	s.publish(eventType, websocket.ReferralTargetTopic(rc.ReferralID, rc.ID), "receiver", rc.ID.String(), nil)
}
