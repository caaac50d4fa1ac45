package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/resolver"
	"github.com/aussiebroadwan/consent/internal/consent/store"
	"github.com/aussiebroadwan/consent/pkg/idx"
	"github.com/aussiebroadwan/consent/pkg/slogx"
)

// LedgerService writes the acceptance ledger. Records are appended and
// revoked, never deleted.
type LedgerService struct {
	Store        store.Store
	Integrations Integrations
	Now          func() time.Time
	IDs          idx.Source
}

// RecordAcceptance appends a to the ledger on behalf of actingUserID and
// reports whether a new record was created. Replaying an id that already
// holds the same user, document and version returns the stored record with
// created=false.
func (s *LedgerService) RecordAcceptance(ctx context.Context, actingUserID string, a domain.PolicyAcceptance) (domain.PolicyAcceptance, bool, error) {
	l := slogx.FromContext(ctx)

	if a.UserID == "" {
		a.UserID = actingUserID
	}
	if a.UserID != actingUserID {
		return domain.PolicyAcceptance{}, false, ErrForbidden
	}
	if a.AcceptanceType == "" {
		a.AcceptanceType = domain.AcceptanceIndividual
	}
	if !a.AcceptanceType.Valid() {
		return domain.PolicyAcceptance{}, false, &domain.ValidationError{
			Fields: map[string]string{"acceptanceType": "is not a known acceptance type"},
		}
	}

	now := nowOr(s.Now)
	if strings.TrimSpace(a.ID) == "" {
		a.ID = idsOr(s.IDs).NewAt(now).String()
	}
	if a.AcceptedAt.IsZero() {
		a.AcceptedAt = now
	}
	a.AcceptedAt = a.AcceptedAt.UTC()
	a.IsValid = true
	a.RevokedAt, a.RevokedBy, a.RevokedReason = nil, "", ""

	var (
		stored  domain.PolicyAcceptance
		created bool
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		existing, err := tx.Acceptances().GetAcceptance(ctx, a.ID)
		switch {
		case err == nil:
			if !existing.SameSubject(a) {
				return ErrConflict
			}
			stored = existing
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		user, err := loadUser(ctx, tx, a.UserID)
		if err != nil {
			return err
		}
		policy, err := loadPolicy(ctx, tx, a.PolicyID)
		if err != nil {
			return err
		}
		current, ok := policy.Current()
		if !ok || a.Version != current.Version {
			return ErrStaleVersion
		}
		org, err := organizationSettings(ctx, tx)
		if err != nil {
			return err
		}
		if err := checkAcceptanceType(ctx, tx, a, user, org); err != nil {
			return err
		}

		a.ContentDigest = versionDigest(current)
		if err := tx.Acceptances().CreateAcceptance(ctx, a); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrConflict
			}
			return err
		}
		stored, created = a, true
		return nil
	})
	if err != nil {
		return domain.PolicyAcceptance{}, false, err
	}

	if !created {
		l.Info("acceptance replayed", slog.String("acceptance_id", stored.ID))
		return stored, false, nil
	}

	l.Info("acceptance recorded",
		slog.String("acceptance_id", stored.ID),
		slog.String("policy_id", stored.PolicyID),
		slog.String("version", stored.Version),
		slog.String("type", string(stored.AcceptanceType)),
	)
	notify{s.Integrations}.acceptance(ctx, stored)
	return stored, true, nil
}

func checkAcceptanceType(ctx context.Context, st store.Store, a domain.PolicyAcceptance, user domain.User, org domain.OrganizationSettings) error {
	if a.AcceptanceType == domain.AcceptanceIndividual {
		if !org.AllowIndividualAcceptance {
			return ErrIndividualRefused
		}
		return nil
	}

	confirmed := !org.RequireAuthorityConfirmation ||
		(a.CompanyInfo != nil && a.CompanyInfo.AuthorityConfirmed)
	if err := domain.ValidateCompanyAttestation(a.CompanyInfo, confirmed); err != nil {
		return err
	}
	if !user.HasCompany() {
		return ErrNotAuthorized
	}
	company, err := st.Companies().GetCompany(ctx, user.CompanyID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotAuthorized
	}
	if err != nil {
		return err
	}
	if !resolver.CanAcceptForCompany(user, company, org) {
		return ErrNotAuthorized
	}
	return nil
}

// RevokeAcceptance invalidates an acceptance. The owner of the record and
// admin or legal users may revoke.
func (s *LedgerService) RevokeAcceptance(ctx context.Context, actingUserID, acceptanceID, reason string) (domain.PolicyAcceptance, error) {
	l := slogx.FromContext(ctx)
	now := nowOr(s.Now)

	var revoked domain.PolicyAcceptance
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		a, err := tx.Acceptances().GetAcceptance(ctx, acceptanceID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrAcceptanceNotFound
		}
		if err != nil {
			return err
		}

		if a.UserID != actingUserID {
			if _, err := requireManager(ctx, tx, actingUserID); err != nil {
				return err
			}
		}

		revoked, err = a.Revoke(actingUserID, reason, now)
		if errors.Is(err, domain.ErrAlreadyRevoked) {
			return ErrAlreadyRevoked
		}
		if err != nil {
			return err
		}
		if err := tx.Acceptances().Revoke(ctx, acceptanceID, actingUserID, reason, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrAlreadyRevoked
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.PolicyAcceptance{}, err
	}

	l.Info("acceptance revoked",
		slog.String("acceptance_id", acceptanceID),
		slog.String("revoked_by", actingUserID),
	)
	notify{s.Integrations}.audit(ctx, ActionAcceptanceRevoke, RevokeEvent{
		AcceptanceID: revoked.ID,
		PolicyID:     revoked.PolicyID,
		UserID:       revoked.UserID,
		RevokedBy:    actingUserID,
		Reason:       reason,
		RevokedAt:    now,
	})
	return revoked, nil
}

// UserAcceptances returns the valid acceptances of userID. Users may read
// their own history; admin and legal may read anyone's.
func (s *LedgerService) UserAcceptances(ctx context.Context, actingUserID, userID string) ([]domain.PolicyAcceptance, error) {
	if actingUserID != userID {
		if _, err := requireManager(ctx, s.Store, actingUserID); err != nil {
			return nil, err
		}
	}
	all, err := s.Store.Acceptances().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PolicyAcceptance, 0, len(all))
	for _, a := range all {
		if a.IsValid {
			out = append(out, a)
		}
	}
	return out, nil
}

// Decline records that actingUserID turned policyID down. Only the hooks
// see it; the ledger is unchanged.
func (s *LedgerService) Decline(ctx context.Context, actingUserID, policyID, reason string) error {
	if _, err := s.Store.Policies().GetPolicy(ctx, policyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrPolicyNotFound
		}
		return err
	}

	e := DeclineEvent{
		PolicyID:   policyID,
		UserID:     actingUserID,
		Reason:     reason,
		DeclinedAt: nowOr(s.Now),
	}
	slogx.FromContext(ctx).Info("policy declined",
		slog.String("policy_id", policyID),
		slog.String("reason", reason),
	)
	notify{s.Integrations}.decline(ctx, e)
	return nil
}
