// Package chat is the per-receiver message thread. A thread is scoped to
// one (referral, target) pair, append-only, and deliberately independent
// of payment and disclosure state.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies which side of the referral wrote a message.
type Role string

const (
	RoleSender   Role = "SENDER"
	RoleReceiver Role = "RECEIVER"
)

func (r Role) Valid() bool {
	return r == RoleSender || r == RoleReceiver
}

// Message is one chat entry. Immutable once written.
type Message struct {
	ID               uuid.UUID `json:"id"`
	ReferralID       uuid.UUID `json:"referral_id"`
	ReceiverStatusID uuid.UUID `json:"receiver_status_id"`
	SenderRole       Role      `json:"sender_role"`
	SenderName       string    `json:"sender_name"`
	Text             string    `json:"text"`
	CreatedAt        time.Time `json:"created_at"`
}
