package sqlcommon

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/store"
)

type acceptancesRepo struct {
	q *Queries
}

const acceptanceColumns = `id, policy_id, version, user_id, accepted_at, acceptance_type,
	user_agent, ip_address, location,
	company_name, acceptor_name, acceptor_title, acceptor_email, acceptor_user_id,
	signature_method, company_ip_address, company_location, authority_confirmed,
	session_id, device_type, browser_info,
	content_digest, is_valid, revoked_at, revoked_by, revoked_reason`

type acceptanceRow struct {
	a                              domain.PolicyAcceptance
	typ                            string
	userAgent, ip, location        sql.NullString
	companyName, acceptorName      sql.NullString
	acceptorTitle, acceptorEmail   sql.NullString
	acceptorUserID, signature      sql.NullString
	companyIP, companyLocation     sql.NullString
	sessionID, deviceType, browser sql.NullString
	digest, revokedBy, revokedWhy  sql.NullString
	revokedAt                      sql.NullTime
	authority                      sql.NullBool
}

func scanAcceptance(row interface{ Scan(...any) error }) (domain.PolicyAcceptance, error) {
	var r acceptanceRow
	err := row.Scan(&r.a.ID, &r.a.PolicyID, &r.a.Version, &r.a.UserID, &r.a.AcceptedAt, &r.typ,
		&r.userAgent, &r.ip, &r.location,
		&r.companyName, &r.acceptorName, &r.acceptorTitle, &r.acceptorEmail, &r.acceptorUserID,
		&r.signature, &r.companyIP, &r.companyLocation, &r.authority,
		&r.sessionID, &r.deviceType, &r.browser,
		&r.digest, &r.a.IsValid, &r.revokedAt, &r.revokedBy, &r.revokedWhy)
	if err != nil {
		return domain.PolicyAcceptance{}, err
	}

	a := r.a
	a.AcceptedAt = a.AcceptedAt.UTC()
	a.AcceptanceType = domain.AcceptanceType(r.typ)
	a.UserAgent = r.userAgent.String
	a.IPAddress = r.ip.String
	a.Location = r.location.String
	a.ContentDigest = r.digest.String
	a.RevokedAt = timePtr(r.revokedAt)
	a.RevokedBy = r.revokedBy.String
	a.RevokedReason = r.revokedWhy.String

	if r.companyName.Valid {
		a.CompanyInfo = &domain.CompanyInfo{
			CompanyName:     r.companyName.String,
			AcceptorName:    r.acceptorName.String,
			AcceptorTitle:   r.acceptorTitle.String,
			AcceptorEmail:   r.acceptorEmail.String,
			AcceptorUserID:  r.acceptorUserID.String,
			SignatureMethod: domain.SignatureMethod(r.signature.String),
			IPAddress:       r.companyIP.String,
			Location:        r.companyLocation.String,

			AuthorityConfirmed: r.authority.Bool,
		}
	}
	if r.sessionID.Valid || r.deviceType.Valid || r.browser.Valid {
		a.Metadata = &domain.AcceptanceMetadata{
			SessionID:   r.sessionID.String,
			DeviceType:  r.deviceType.String,
			BrowserInfo: r.browser.String,
		}
	}
	return a, nil
}

func (r *acceptancesRepo) CreateAcceptance(ctx context.Context, a domain.PolicyAcceptance) error {
	var (
		company domain.CompanyInfo
		meta    domain.AcceptanceMetadata
	)
	hasCompany := a.CompanyInfo != nil
	if hasCompany {
		company = *a.CompanyInfo
	}
	if a.Metadata != nil {
		meta = *a.Metadata
	}

	companyName := sql.NullString{String: company.CompanyName, Valid: hasCompany}

	_, err := r.q.exec(ctx, `
		INSERT INTO acceptances (`+acceptanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PolicyID, a.Version, a.UserID, a.AcceptedAt.UTC(), string(a.AcceptanceType),
		nullString(a.UserAgent), nullString(a.IPAddress), nullString(a.Location),
		companyName, nullString(company.AcceptorName), nullString(company.AcceptorTitle),
		nullString(company.AcceptorEmail), nullString(company.AcceptorUserID),
		nullString(string(company.SignatureMethod)), nullString(company.IPAddress), nullString(company.Location),
		sql.NullBool{Bool: company.AuthorityConfirmed, Valid: hasCompany},
		nullString(meta.SessionID), nullString(meta.DeviceType), nullString(meta.BrowserInfo),
		nullString(a.ContentDigest), a.IsValid, nullTime(a.RevokedAt), nullString(a.RevokedBy), nullString(a.RevokedReason),
	)
	return err
}

func (r *acceptancesRepo) GetAcceptance(ctx context.Context, id string) (domain.PolicyAcceptance, error) {
	a, err := scanAcceptance(r.q.queryRow(ctx, `SELECT `+acceptanceColumns+` FROM acceptances WHERE id = ?`, id))
	if err != nil {
		return domain.PolicyAcceptance{}, mapNotFound(err)
	}
	return a, nil
}

func (r *acceptancesRepo) ListByPolicy(ctx context.Context, policyID string) ([]domain.PolicyAcceptance, error) {
	return r.list(ctx, `WHERE policy_id = ?`, policyID)
}

func (r *acceptancesRepo) ListByUser(ctx context.Context, userID string) ([]domain.PolicyAcceptance, error) {
	return r.list(ctx, `WHERE user_id = ?`, userID)
}

func (r *acceptancesRepo) list(ctx context.Context, where string, args ...any) ([]domain.PolicyAcceptance, error) {
	rows, err := r.q.query(ctx, `SELECT `+acceptanceColumns+` FROM acceptances `+where+` ORDER BY accepted_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.PolicyAcceptance{}
	for rows.Next() {
		a, err := scanAcceptance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *acceptancesRepo) Revoke(ctx context.Context, id, by, reason string, at time.Time) error {
	res, err := r.q.exec(ctx, `
		UPDATE acceptances
		SET is_valid = ?, revoked_at = ?, revoked_by = ?, revoked_reason = ?
		WHERE id = ? AND is_valid = ?`,
		false, at.UTC(), nullString(by), nullString(reason), id, true,
	)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return store.ErrNotFound
	}
	return nil
}
