package sqlcommon

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/store"
)

type settingsRepo struct {
	q *Queries
}

// The organization keeps a single settings document in row 1.
const settingsRowID = 1

func (r *settingsRepo) GetOrganizationSettings(ctx context.Context) (domain.OrganizationSettings, error) {
	var raw sql.NullString
	err := r.q.queryRow(ctx, `SELECT document FROM organization_settings WHERE id = ?`, settingsRowID).Scan(&raw)
	if err != nil {
		return domain.OrganizationSettings{}, mapNotFound(err)
	}
	if !raw.Valid {
		return domain.OrganizationSettings{}, store.ErrNotFound
	}

	var s domain.OrganizationSettings
	if err := fromJSON(raw, &s); err != nil {
		return domain.OrganizationSettings{}, err
	}
	return s, nil
}

func (r *settingsRepo) PutOrganizationSettings(ctx context.Context, s domain.OrganizationSettings, at time.Time) error {
	doc, err := toJSON(s)
	if err != nil {
		return err
	}
	_, err = r.q.exec(ctx, `
		INSERT INTO organization_settings (id, document, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		settingsRowID, doc, at.UTC(),
	)
	return err
}

type remindersRepo struct {
	q *Queries
}

func (r *remindersRepo) RecordReminder(ctx context.Context, key store.ReminderKey, at time.Time) (bool, error) {
	res, err := r.q.exec(ctx, `
		INSERT INTO reminder_log (policy_id, version, user_id, kind, day, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		key.PolicyID, key.Version, key.UserID, key.Kind, key.Day, at.UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
