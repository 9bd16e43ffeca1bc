package billing

import (
	"context"
	"errors"

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

// =========== Billing Repository ===========

type billingRepoPG struct{ pool *pgxpool.Pool }

func NewBillingRepoPG(pool *pgxpool.Pool) BillingRepository {
	return &billingRepoPG{pool: pool}
}

const billingCols = `id, referral_id, receiver_status_id, sender_send_charged, sender_used_credit,
	receiver_open_charged, receiver_used_credit, created_at, updated_at`

func (r *billingRepoPG) scan(row pgx.Row) (*BillingRecord, error) {
	var b BillingRecord
	err := row.Scan(&b.ID, &b.ReferralID, &b.ReceiverStatusID, &b.SenderSendCharged,
		&b.SenderUsedCredit, &b.ReceiverOpenCharged, &b.ReceiverUsedCredit,
		&b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *billingRepoPG) GetOrCreate(ctx context.Context, referralID, receiverStatusID uuid.UUID) (*BillingRecord, error) {
	q := conn(ctx, r.pool)
	b, err := r.scan(q.QueryRow(ctx,
		`SELECT `+billingCols+` FROM billing_records WHERE referral_id = $1 AND receiver_status_id = $2`,
		referralID, receiverStatusID))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	id := uuid.New()
	// Concurrent first access races on the unique pair; the loser reads
	// the winner's row.
	_, err = q.Exec(ctx, `
		INSERT INTO billing_records (id, referral_id, receiver_status_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (referral_id, receiver_status_id) DO NOTHING`,
		id, referralID, receiverStatusID)
	if err != nil {
		return nil, err
	}
	return r.scan(q.QueryRow(ctx,
		`SELECT `+billingCols+` FROM billing_records WHERE referral_id = $1 AND receiver_status_id = $2`,
		referralID, receiverStatusID))
}

func (r *billingRepoPG) Update(ctx context.Context, b *BillingRecord) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE billing_records SET sender_send_charged=$2, sender_used_credit=$3,
			receiver_open_charged=$4, receiver_used_credit=$5, updated_at=NOW()
		WHERE id = $1`,
		b.ID, b.SenderSendCharged, b.SenderUsedCredit, b.ReceiverOpenCharged, b.ReceiverUsedCredit)
	return err
}

// =========== Credit Repository ===========

type creditRepoPG struct{ pool *pgxpool.Pool }

func NewCreditRepoPG(pool *pgxpool.Pool) CreditRepository {
	return &creditRepoPG{pool: pool}
}

func (r *creditRepoPG) GetBalance(ctx context.Context, orgID uuid.UUID) (*CreditBalance, error) {
	var c CreditBalance
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT organization_id, balance, currency, updated_at FROM credit_balances WHERE organization_id = $1`,
		orgID).Scan(&c.OrganizationID, &c.Balance, &c.Currency, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &CreditBalance{OrganizationID: orgID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *creditRepoPG) Deduct(ctx context.Context, orgID uuid.UUID, amount int64) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE credit_balances SET balance = balance - $2, updated_at=NOW()
		WHERE organization_id = $1 AND balance >= $2`,
		orgID, amount)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *creditRepoPG) Add(ctx context.Context, orgID uuid.UUID, amount int64, currency string) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO credit_balances (organization_id, balance, currency)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id) DO UPDATE
		SET balance = credit_balances.balance + EXCLUDED.balance, updated_at=NOW()`,
		orgID, amount, currency)
	return err
}

// =========== Transaction Repository ===========

type transactionRepoPG struct{ pool *pgxpool.Pool }

func NewTransactionRepoPG(pool *pgxpool.Pool) TransactionRepository {
	return &transactionRepoPG{pool: pool}
}

const txCols = `id, referral_id, receiver_status_id, source, payment_method_id, amount, currency,
	fees, intent_id, client_secret, status, created_at, updated_at`

func (r *transactionRepoPG) scan(row pgx.Row) (*PaymentTransaction, error) {
	var t PaymentTransaction
	err := row.Scan(&t.ID, &t.ReferralID, &t.ReceiverStatusID, &t.Source, &t.PaymentMethodID,
		&t.Amount, &t.Currency, &t.Fees, &t.IntentID, &t.ClientSecret, &t.Status,
		&t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func (r *transactionRepoPG) Create(ctx context.Context, t *PaymentTransaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	// A partial unique index on (receiver_status_id) WHERE status =
	// 'succeeded' backs the single-settlement invariant at the SQL level.
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO payment_transactions (id, referral_id, receiver_status_id, source,
			payment_method_id, amount, currency, fees, intent_id, client_secret, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.ReferralID, t.ReceiverStatusID, t.Source, t.PaymentMethodID,
		t.Amount, t.Currency, t.Fees, t.IntentID, t.ClientSecret, t.Status)
	return err
}

func (r *transactionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PaymentTransaction, error) {
	return r.scan(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+txCols+` FROM payment_transactions WHERE id = $1`, id))
}

func (r *transactionRepoPG) Update(ctx context.Context, t *PaymentTransaction) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE payment_transactions SET status=$2, intent_id=$3, client_secret=$4, updated_at=NOW()
		WHERE id = $1`,
		t.ID, t.Status, t.IntentID, t.ClientSecret)
	return err
}

func (r *transactionRepoPG) GetSucceededByReceiver(ctx context.Context, receiverStatusID uuid.UUID) (*PaymentTransaction, error) {
	return r.scan(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+txCols+` FROM payment_transactions WHERE receiver_status_id = $1 AND status = 'succeeded'`,
		receiverStatusID))
}

func (r *transactionRepoPG) ListByReferral(ctx context.Context, referralID uuid.UUID) ([]*PaymentTransaction, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+txCols+` FROM payment_transactions
		WHERE referral_id = $1 ORDER BY created_at ASC`, referralID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*PaymentTransaction
	for rows.Next() {
		t, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}
