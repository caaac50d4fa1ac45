package sqlcommon

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
)

type usersRepo struct {
	q *Queries
}

const userColumns = `id, email, name, role, company_id, can_accept_for_company, is_active, created_at, last_login_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var (
		u         domain.User
		role      string
		companyID sql.NullString
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &companyID,
		&u.CanAcceptForCompany, &u.IsActive, &u.CreatedAt, &lastLogin)
	if err != nil {
		return domain.User{}, err
	}
	u.Role = domain.Role(role)
	u.CompanyID = companyID.String
	u.CreatedAt = u.CreatedAt.UTC()
	u.LastLoginAt = timePtr(lastLogin)
	return u, nil
}

func (r *usersRepo) GetUser(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(r.q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
}

func (r *usersRepo) ListUsersByCompany(ctx context.Context, companyID string) ([]domain.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users WHERE company_id = ? ORDER BY created_at, id`, companyID)
}

func (r *usersRepo) list(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := r.q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, string(u.Role), nullString(u.CompanyID),
		u.CanAcceptForCompany, u.IsActive, u.CreatedAt.UTC(), nullTime(u.LastLoginAt),
	)
	return err
}

func (r *usersRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.q.exec(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var n int64
	if err := r.q.queryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}
