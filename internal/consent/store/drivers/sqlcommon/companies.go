package sqlcommon

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
)

type companiesRepo struct {
	q *Queries
}

const companyColumns = `id, name, domain, admin_users, requires_company_acceptance,
	allow_individual_acceptance, require_authority_confirmation, require_title_and_email,
	allow_delegated_acceptance, notification_emails, is_active, created_at`

func scanCompany(row interface{ Scan(...any) error }) (domain.Company, error) {
	var (
		c             domain.Company
		domainName    sql.NullString
		admins, email sql.NullString
	)
	err := row.Scan(&c.ID, &c.Name, &domainName, &admins,
		&c.RequiresCompanyAcceptance, &c.AllowIndividualAcceptance,
		&c.Settings.RequireAuthorityConfirmation, &c.Settings.RequireTitleAndEmail,
		&c.Settings.AllowDelegatedAcceptance, &email, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return domain.Company{}, err
	}
	c.Domain = domainName.String
	c.CreatedAt = c.CreatedAt.UTC()
	if c.AdminUsers, err = stringList(admins); err != nil {
		return domain.Company{}, err
	}
	if c.Settings.NotificationEmails, err = stringList(email); err != nil {
		return domain.Company{}, err
	}
	return c, nil
}

func (r *companiesRepo) GetCompany(ctx context.Context, id string) (domain.Company, error) {
	c, err := scanCompany(r.q.queryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = ?`, id))
	if err != nil {
		return domain.Company{}, mapNotFound(err)
	}
	return c, nil
}

func (r *companiesRepo) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	rows, err := r.q.query(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Company{}
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *companiesRepo) CreateCompany(ctx context.Context, c domain.Company) error {
	admins, err := toJSON(nonNil(c.AdminUsers))
	if err != nil {
		return err
	}
	emails, err := toJSON(nonNil(c.Settings.NotificationEmails))
	if err != nil {
		return err
	}

	_, err = r.q.exec(ctx, `
		INSERT INTO companies (`+companyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, nullString(c.Domain), admins,
		c.RequiresCompanyAcceptance, c.AllowIndividualAcceptance,
		c.Settings.RequireAuthorityConfirmation, c.Settings.RequireTitleAndEmail,
		c.Settings.AllowDelegatedAcceptance, emails, c.IsActive, c.CreatedAt.UTC(),
	)
	return err
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
