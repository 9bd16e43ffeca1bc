package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medref/medref/internal/domain/referral"
	"github.com/medref/medref/internal/platform/apperr"
	"github.com/medref/medref/internal/platform/auth"
	"github.com/medref/medref/internal/platform/websocket"
)

type receiverReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*referral.Receiver, error)
}

type referralReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*referral.Referral, error)
}

type Service struct {
	messages  MessageRepository
	receivers receiverReader
	referrals referralReader
	events    websocket.EventPublisher
	logger    zerolog.Logger
}

func NewService(messages MessageRepository, receivers receiverReader, referrals referralReader, events websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{messages: messages, receivers: receivers, referrals: referrals, events: events, logger: logger}
}

// PostMessage appends to the thread. Chat is open in every receiver
// state: a rejected or unpaid receiver can still coordinate with the
// sender. Delivery to connected clients is fire-and-forget.
func (s *Service) PostMessage(ctx context.Context, actor *auth.Actor, referralID, targetID uuid.UUID, senderName, text string) (*Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validation("message text is required")
	}
	role, err := s.roleFor(ctx, actor, referralID, targetID)
	if err != nil {
		return nil, err
	}
	if senderName == "" {
		senderName = actor.UserID
	}

	m := &Message{
		ReferralID:       referralID,
		ReceiverStatusID: targetID,
		SenderRole:       role,
		SenderName:       senderName,
		Text:             text,
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, err
	}

	if s.events != nil {
		payload, _ := json.Marshal(m)
		evt := websocket.Event{
			Type:         "chat.message",
			Topic:        websocket.ReferralTargetTopic(referralID, targetID),
			ResourceType: "chat_message",
			ResourceID:   m.ID.String(),
			Timestamp:    time.Now(),
			Data:         payload,
		}
		if err := s.events.Publish(context.Background(), evt); err != nil {
			s.logger.Debug().Err(err).Msg("chat event publish failed")
		}
	}
	return m, nil
}

// ListMessages returns the thread, ascending. Only the two parties of
// the (referral, target) pair may read it; sibling receivers of the same
// referral are strangers to this thread.
func (s *Service) ListMessages(ctx context.Context, actor *auth.Actor, referralID, targetID uuid.UUID) ([]*Message, error) {
	if _, err := s.roleFor(ctx, actor, referralID, targetID); err != nil {
		return nil, err
	}
	return s.messages.ListByTarget(ctx, referralID, targetID)
}

// roleFor authorizes the actor for the thread and decides which side of
// the conversation it speaks for.
func (s *Service) roleFor(ctx context.Context, actor *auth.Actor, referralID, targetID uuid.UUID) (Role, error) {
	if actor == nil {
		return "", apperr.Forbidden("authentication required")
	}
	rc, err := s.receivers.GetByID(ctx, targetID)
	if err != nil || rc.ReferralID != referralID {
		return "", apperr.NotFound("receiver %s not found on referral %s", targetID, referralID)
	}
	ref, err := s.referrals.GetByID(ctx, referralID)
	if err != nil {
		return "", apperr.NotFound("referral %s not found", referralID)
	}

	switch {
	case ref.SenderOrganizationID == actor.OrganizationID:
		return RoleSender, nil
	case rc.DepartmentID != nil && actor.MemberOfDepartment(*rc.DepartmentID):
		return RoleReceiver, nil
	case actor.HasRole(auth.RoleAdmin):
		return RoleSender, nil
	default:
		return "", apperr.Forbidden("actor is not a party to this thread")
	}
}
