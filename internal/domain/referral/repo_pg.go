package referral

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

// =========== Referral Repository ===========

type referralRepoPG struct{ pool *pgxpool.Pool }

func NewReferralRepoPG(pool *pgxpool.Pool) ReferralRepository {
	return &referralRepoPG{pool: pool}
}

const referralCols = `id, sender_organization_id, sender_contact, patient, additional_patient,
	insurances, documents, primary_care, notes, is_draft, sent_at, created_at, updated_at`

func (r *referralRepoPG) scan(row pgx.Row) (*Referral, error) {
	var ref Referral
	err := row.Scan(&ref.ID, &ref.SenderOrganizationID, &ref.SenderContact, &ref.Patient,
		&ref.AdditionalPatient, &ref.Insurances, &ref.Documents, &ref.PrimaryCare,
		&ref.Notes, &ref.IsDraft, &ref.SentAt, &ref.CreatedAt, &ref.UpdatedAt)
	return &ref, err
}

func (r *referralRepoPG) Create(ctx context.Context, ref *Referral) error {
	ref.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO referrals (id, sender_organization_id, sender_contact, patient,
			additional_patient, insurances, documents, primary_care, notes, is_draft, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ref.ID, ref.SenderOrganizationID, ref.SenderContact, ref.Patient,
		ref.AdditionalPatient, ref.Insurances, ref.Documents, ref.PrimaryCare,
		ref.Notes, ref.IsDraft, ref.SentAt)
	return err
}

func (r *referralRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return r.scan(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+referralCols+` FROM referrals WHERE id = $1`, id))
}

func (r *referralRepoPG) Update(ctx context.Context, ref *Referral) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE referrals SET sender_contact=$2, patient=$3, additional_patient=$4,
			insurances=$5, documents=$6, primary_care=$7, notes=$8, is_draft=$9,
			sent_at=$10, updated_at=NOW()
		WHERE id = $1`,
		ref.ID, ref.SenderContact, ref.Patient, ref.AdditionalPatient,
		ref.Insurances, ref.Documents, ref.PrimaryCare, ref.Notes, ref.IsDraft, ref.SentAt)
	return err
}

func (r *referralRepoPG) ListBySender(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Referral, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM referrals WHERE sender_organization_id = $1`, orgID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+referralCols+` FROM referrals
		WHERE sender_organization_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		orgID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []*Referral
	for rows.Next() {
		ref, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, ref)
	}
	return result, total, rows.Err()
}

// =========== Receiver Repository ===========

type receiverRepoPG struct{ pool *pgxpool.Pool }

func NewReceiverRepoPG(pool *pgxpool.Pool) ReceiverRepository {
	return &receiverRepoPG{pool: pool}
}

const receiverCols = `id, referral_id, department_id, guest_org_id, state, payment_status,
	reject_reason, is_claimed, created_at, updated_at`

func (r *receiverRepoPG) scan(row pgx.Row) (*Receiver, error) {
	var rc Receiver
	err := row.Scan(&rc.ID, &rc.ReferralID, &rc.DepartmentID, &rc.GuestOrgID, &rc.State,
		&rc.PaymentStatus, &rc.RejectReason, &rc.IsClaimed, &rc.CreatedAt, &rc.UpdatedAt)
	return &rc, err
}

func (r *receiverRepoPG) CreateBatch(ctx context.Context, receivers []*Receiver) error {
	q := conn(ctx, r.pool)
	for _, rc := range receivers {
		rc.ID = uuid.New()
		if _, err := q.Exec(ctx, `
			INSERT INTO referral_receivers (id, referral_id, department_id, guest_org_id,
				state, payment_status, is_claimed)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rc.ID, rc.ReferralID, rc.DepartmentID, rc.GuestOrgID,
			rc.State, rc.PaymentStatus, rc.IsClaimed); err != nil {
			return err
		}
	}
	return nil
}

func (r *receiverRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Receiver, error) {
	return r.scan(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+receiverCols+` FROM referral_receivers WHERE id = $1`, id))
}

func (r *receiverRepoPG) ListByReferral(ctx context.Context, referralID uuid.UUID) ([]*Receiver, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+receiverCols+` FROM referral_receivers
		WHERE referral_id = $1 ORDER BY created_at ASC`, referralID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Receiver
	for rows.Next() {
		rc, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rc)
	}
	return result, rows.Err()
}

func (r *receiverRepoPG) ListByDepartment(ctx context.Context, departmentID uuid.UUID, limit, offset int) ([]*Receiver, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM referral_receivers WHERE department_id = $1`, departmentID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+receiverCols+` FROM referral_receivers
		WHERE department_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		departmentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []*Receiver
	for rows.Next() {
		rc, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, rc)
	}
	return result, total, rows.Err()
}

func (r *receiverRepoPG) Update(ctx context.Context, rc *Receiver) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE referral_receivers SET department_id=$2, guest_org_id=$3, state=$4,
			payment_status=$5, reject_reason=$6, is_claimed=$7, updated_at=NOW()
		WHERE id = $1`,
		rc.ID, rc.DepartmentID, rc.GuestOrgID, rc.State, rc.PaymentStatus,
		rc.RejectReason, rc.IsClaimed)
	return err
}

func (r *receiverRepoPG) ReassignGuest(ctx context.Context, guestOrgID, departmentID uuid.UUID) (int, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE referral_receivers
		SET department_id=$2, guest_org_id=NULL, is_claimed=TRUE, updated_at=NOW()
		WHERE guest_org_id = $1`,
		guestOrgID, departmentID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
