package sqlcommon

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
)

type policiesRepo struct {
	q *Queries
}

const policyColumns = `id, type, title, description, current_version, is_active,
	requires_acceptance, allow_version_rollback, retention_period_days,
	send_reminders, reminder_days, escalation_emails, created_at, updated_at`

const versionColumns = `id, policy_id, version, effective_date, content, content_digest,
	changes, is_breaking, deadline, grace_period_days, is_active, created_by,
	approved_by, approved_at, metadata`

func scanPolicy(row interface{ Scan(...any) error }) (domain.PolicyData, error) {
	var (
		p                 domain.PolicyData
		typ               string
		description       sql.NullString
		reminderDays, esc sql.NullString
	)
	notify := &p.Settings.NotificationSettings
	err := row.Scan(&p.ID, &typ, &p.Title, &description, &p.CurrentVersion, &p.IsActive,
		&p.Settings.RequiresAcceptance, &p.Settings.AllowVersionRollback, &p.Settings.RetentionPeriodDays,
		&notify.SendReminders, &reminderDays, &esc, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.PolicyData{}, err
	}
	p.Type = domain.PolicyType(typ)
	p.Description = description.String
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()

	notify.ReminderDays = []int{}
	if err := fromJSON(reminderDays, &notify.ReminderDays); err != nil {
		return domain.PolicyData{}, err
	}
	if notify.EscalationEmails, err = stringList(esc); err != nil {
		return domain.PolicyData{}, err
	}
	p.Versions = []domain.PolicyVersion{}
	p.UserAcceptances = []domain.PolicyAcceptance{}
	return p, nil
}

func scanVersion(row interface{ Scan(...any) error }) (string, domain.PolicyVersion, error) {
	var (
		v          domain.PolicyVersion
		policyID   string
		effective  time.Time
		changes    sql.NullString
		deadline   sql.NullTime
		grace      sql.NullInt64
		approvedBy sql.NullString
		approvedAt sql.NullTime
		metadata   sql.NullString
	)
	err := row.Scan(&v.ID, &policyID, &v.Version, &effective, &v.Content, &v.ContentDigest,
		&changes, &v.IsBreaking, &deadline, &grace, &v.IsActive, &v.CreatedBy,
		&approvedBy, &approvedAt, &metadata)
	if err != nil {
		return "", domain.PolicyVersion{}, err
	}

	v.Date = domain.NewDate(effective)
	if deadline.Valid {
		v.Deadline = domain.DatePtr(deadline.Time)
	}
	v.GracePeriodDays = intPtr(grace)
	v.ApprovedBy = approvedBy.String
	v.ApprovedAt = timePtr(approvedAt)

	if changes.Valid {
		if v.Changes, err = stringList(changes); err != nil {
			return "", domain.PolicyVersion{}, err
		}
		if len(v.Changes) == 0 {
			v.Changes = nil
		}
	}
	if metadata.Valid && metadata.String != "" {
		v.Metadata = &domain.VersionMetadata{}
		if err := fromJSON(metadata, v.Metadata); err != nil {
			return "", domain.PolicyVersion{}, err
		}
	}
	return policyID, v, nil
}

func (r *policiesRepo) GetPolicy(ctx context.Context, id string) (domain.PolicyData, error) {
	p, err := scanPolicy(r.q.queryRow(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = ?`, id))
	if err != nil {
		return domain.PolicyData{}, mapNotFound(err)
	}

	versions, err := r.versions(ctx, `WHERE policy_id = ?`, id)
	if err != nil {
		return domain.PolicyData{}, err
	}
	p.Versions = domain.SortVersions(versions[id])
	return p, nil
}

func (r *policiesRepo) ListPolicies(ctx context.Context) ([]domain.PolicyData, error) {
	rows, err := r.q.query(ctx, `SELECT `+policyColumns+` FROM policies ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.PolicyData{}
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	versions, err := r.versions(ctx, ``)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if vs, ok := versions[out[i].ID]; ok {
			out[i].Versions = domain.SortVersions(vs)
		}
	}
	return out, nil
}

func (r *policiesRepo) versions(ctx context.Context, where string, args ...any) (map[string][]domain.PolicyVersion, error) {
	rows, err := r.q.query(ctx, `SELECT `+versionColumns+` FROM policy_versions `+where+` ORDER BY effective_date DESC, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.PolicyVersion)
	for rows.Next() {
		policyID, v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out[policyID] = append(out[policyID], v)
	}
	return out, rows.Err()
}

func (r *policiesRepo) CreatePolicy(ctx context.Context, p domain.PolicyData) error {
	notify := p.Settings.NotificationSettings
	days, err := toJSON(nonNil(notify.ReminderDays))
	if err != nil {
		return err
	}
	esc, err := toJSON(nonNil(notify.EscalationEmails))
	if err != nil {
		return err
	}

	_, err = r.q.exec(ctx, `
		INSERT INTO policies (`+policyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.Type), p.Title, nullString(p.Description), p.CurrentVersion, p.IsActive,
		p.Settings.RequiresAcceptance, p.Settings.AllowVersionRollback, p.Settings.RetentionPeriodDays,
		notify.SendReminders, days, esc, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}

	for _, v := range p.Versions {
		if err := r.insertVersion(ctx, p.ID, v); err != nil {
			return fmt.Errorf("insert version %s: %w", v.Version, err)
		}
	}
	return nil
}

func (r *policiesRepo) AddVersion(ctx context.Context, policyID string, v domain.PolicyVersion, updatedAt time.Time) error {
	if err := r.insertVersion(ctx, policyID, v); err != nil {
		return err
	}
	res, err := r.q.exec(ctx,
		`UPDATE policies SET current_version = ?, updated_at = ? WHERE id = ?`,
		v.Version, updatedAt.UTC(), policyID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *policiesRepo) insertVersion(ctx context.Context, policyID string, v domain.PolicyVersion) error {
	var changes sql.NullString
	if len(v.Changes) > 0 {
		raw, err := toJSON(v.Changes)
		if err != nil {
			return err
		}
		changes = nullString(raw)
	}

	var metadata sql.NullString
	if v.Metadata != nil {
		raw, err := toJSON(v.Metadata)
		if err != nil {
			return err
		}
		metadata = nullString(raw)
	}

	var deadline *time.Time
	if v.HasDeadline() {
		d := v.Deadline.Time
		deadline = &d
	}

	_, err := r.q.exec(ctx, `
		INSERT INTO policy_versions (`+versionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, policyID, v.Version, v.Date.UTC(), v.Content, v.ContentDigest,
		changes, v.IsBreaking, nullTime(deadline), nullInt(v.GracePeriodDays), v.IsActive, v.CreatedBy,
		nullString(v.ApprovedBy), nullTime(v.ApprovedAt), metadata,
	)
	return err
}

func (r *policiesRepo) IsEmpty(ctx context.Context) (bool, error) {
	var n int64
	if err := r.q.queryRow(ctx, `SELECT COUNT(*) FROM policies`).Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}
