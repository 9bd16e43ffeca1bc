package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medref/medref/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

type messageRepoPG struct{ pool *pgxpool.Pool }

func NewMessageRepoPG(pool *pgxpool.Pool) MessageRepository {
	return &messageRepoPG{pool: pool}
}

func (r *messageRepoPG) Create(ctx context.Context, m *Message) error {
	m.ID = uuid.New()
	return conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO chat_messages (id, referral_id, receiver_status_id, sender_role, sender_name, text)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		m.ID, m.ReferralID, m.ReceiverStatusID, m.SenderRole, m.SenderName, m.Text).Scan(&m.CreatedAt)
}

func (r *messageRepoPG) ListByTarget(ctx context.Context, referralID, receiverStatusID uuid.UUID) ([]*Message, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, referral_id, receiver_status_id, sender_role, sender_name, text, created_at
		FROM chat_messages
		WHERE referral_id = $1 AND receiver_status_id = $2
		ORDER BY created_at ASC, id ASC`,
		referralID, receiverStatusID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ReferralID, &m.ReceiverStatusID, &m.SenderRole,
			&m.SenderName, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &m)
	}
	return result, rows.Err()
}
