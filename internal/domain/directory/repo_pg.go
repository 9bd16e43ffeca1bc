package directory

import (
	"context"
	"strconv"

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

// =========== Organization Repository ===========

type organizationRepoPG struct{ pool *pgxpool.Pool }

func NewOrganizationRepoPG(pool *pgxpool.Pool) OrganizationRepository {
	return &organizationRepoPG{pool: pool}
}

const orgCols = `id, name, active, created_at, updated_at`

func (r *organizationRepoPG) scan(row pgx.Row) (*Organization, error) {
	var o Organization
	err := row.Scan(&o.ID, &o.Name, &o.Active, &o.CreatedAt, &o.UpdatedAt)
	return &o, err
}

func (r *organizationRepoPG) Create(ctx context.Context, o *Organization) error {
	o.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO organizations (id, name, active)
		VALUES ($1, $2, $3)`,
		o.ID, o.Name, o.Active)
	return err
}

func (r *organizationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return r.scan(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+orgCols+` FROM organizations WHERE id = $1`, id))
}

func (r *organizationRepoPG) Update(ctx context.Context, o *Organization) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE organizations SET name=$2, active=$3, updated_at=NOW()
		WHERE id = $1`,
		o.ID, o.Name, o.Active)
	return err
}

func (r *organizationRepoPG) List(ctx context.Context, limit, offset int) ([]*Organization, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+orgCols+` FROM organizations ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Organization
	for rows.Next() {
		o, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, nil
}

// =========== Branch Repository ===========

type branchRepoPG struct{ pool *pgxpool.Pool }

func NewBranchRepoPG(pool *pgxpool.Pool) BranchRepository {
	return &branchRepoPG{pool: pool}
}

const branchCols = `id, organization_id, name, address, created_at, updated_at`

func (r *branchRepoPG) scan(row pgx.Row) (*Branch, error) {
	var b Branch
	err := row.Scan(&b.ID, &b.OrganizationID, &b.Name, &b.Address, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *branchRepoPG) Create(ctx context.Context, b *Branch) error {
	b.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO branches (id, organization_id, name, address)
		VALUES ($1, $2, $3, $4)`,
		b.ID, b.OrganizationID, b.Name, b.Address)
	return err
}

func (r *branchRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Branch, error) {
	return r.scan(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+branchCols+` FROM branches WHERE id = $1`, id))
}

func (r *branchRepoPG) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*Branch, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+branchCols+` FROM branches WHERE organization_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Branch
	for rows.Next() {
		b, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, nil
}

// =========== Department Repository ===========

type departmentRepoPG struct{ pool *pgxpool.Pool }

func NewDepartmentRepoPG(pool *pgxpool.Pool) DepartmentRepository {
	return &departmentRepoPG{pool: pool}
}

const deptCols = `id, organization_id, branch_id, name, specialty, created_at, updated_at`

func (r *departmentRepoPG) scan(row pgx.Row) (*Department, error) {
	var d Department
	err := row.Scan(&d.ID, &d.OrganizationID, &d.BranchID, &d.Name, &d.Specialty, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *departmentRepoPG) Create(ctx context.Context, d *Department) error {
	d.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO departments (id, organization_id, branch_id, name, specialty)
		VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.OrganizationID, d.BranchID, d.Name, d.Specialty)
	return err
}

func (r *departmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Department, error) {
	return r.scan(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+deptCols+` FROM departments WHERE id = $1`, id))
}

func (r *departmentRepoPG) ListByBranch(ctx context.Context, branchID uuid.UUID) ([]*Department, error) {
	return r.list(ctx, `SELECT `+deptCols+` FROM departments WHERE branch_id = $1 ORDER BY name`, branchID)
}

func (r *departmentRepoPG) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*Department, error) {
	return r.list(ctx, `SELECT `+deptCols+` FROM departments WHERE organization_id = $1 ORDER BY name`, orgID)
}

func (r *departmentRepoPG) list(ctx context.Context, sql string, arg interface{}) ([]*Department, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Department
	for rows.Next() {
		d, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, nil
}

// =========== Guest Organization Repository ===========

type guestOrgRepoPG struct{ pool *pgxpool.Pool }

func NewGuestOrganizationRepoPG(pool *pgxpool.Pool) GuestOrganizationRepository {
	return &guestOrgRepoPG{pool: pool}
}

const guestCols = `id, name, email, phone, fax, claimed, claimed_department_id, created_at, updated_at`

func (r *guestOrgRepoPG) scan(row pgx.Row) (*GuestOrganization, error) {
	var g GuestOrganization
	err := row.Scan(&g.ID, &g.Name, &g.Email, &g.Phone, &g.Fax, &g.Claimed, &g.ClaimedDepartmentID, &g.CreatedAt, &g.UpdatedAt)
	return &g, err
}

func (r *guestOrgRepoPG) Create(ctx context.Context, g *GuestOrganization) error {
	g.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO guest_organizations (id, name, email, phone, fax, claimed, claimed_department_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID, g.Name, g.Email, g.Phone, g.Fax, g.Claimed, g.ClaimedDepartmentID)
	return err
}

func (r *guestOrgRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*GuestOrganization, error) {
	return r.scan(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+guestCols+` FROM guest_organizations WHERE id = $1`, id))
}

func (r *guestOrgRepoPG) Update(ctx context.Context, g *GuestOrganization) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE guest_organizations SET name=$2, email=$3, phone=$4, fax=$5, claimed=$6, claimed_department_id=$7, updated_at=NOW()
		WHERE id = $1`,
		g.ID, g.Name, g.Email, g.Phone, g.Fax, g.Claimed, g.ClaimedDepartmentID)
	return err
}

func (r *guestOrgRepoPG) List(ctx context.Context, claimed *bool, limit, offset int) ([]*GuestOrganization, int, error) {
	where := ``
	args := []interface{}{}
	if claimed != nil {
		where = ` WHERE claimed = $1`
		args = append(args, *claimed)
	}

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM guest_organizations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limArgs := append(args, limit, offset)
	lim := strconv.Itoa(len(args) + 1)
	off := strconv.Itoa(len(args) + 2)
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+guestCols+` FROM guest_organizations`+where+
			` ORDER BY created_at DESC LIMIT $`+lim+` OFFSET $`+off, limArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*GuestOrganization
	for rows.Next() {
		g, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, g)
	}
	return items, total, nil
}
