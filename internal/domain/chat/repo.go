package chat

import (
	"context"

	"github.com/google/uuid"
)

// MessageRepository persists chat messages. Append-only: there is no
// update or delete.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	// ListByTarget returns the thread in ascending creation order.
	ListByTarget(ctx context.Context, referralID, receiverStatusID uuid.UUID) ([]*Message, error)
}
