package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/store"
	"github.com/aussiebroadwan/consent/pkg/idx"
	"github.com/aussiebroadwan/consent/pkg/slogx"
)

func nowOr(now func() time.Time) time.Time {
	if now == nil {
		return time.Now().UTC()
	}
	return now().UTC()
}

func idsOr(src idx.Source) idx.Source {
	if src == nil {
		return idx.Default()
	}
	return src
}

// organizationSettings falls back to the individual-only preset until an
// administrator saves settings.
func organizationSettings(ctx context.Context, st store.Store) (domain.OrganizationSettings, error) {
	org, err := st.Settings().GetOrganizationSettings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return domain.IndividualOnlySettings(), nil
	}
	return org, err
}

// loadPolicy returns the policy with its full ledger attached.
func loadPolicy(ctx context.Context, st store.Store, id string) (domain.PolicyData, error) {
	p, err := st.Policies().GetPolicy(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.PolicyData{}, ErrPolicyNotFound
	}
	if err != nil {
		return domain.PolicyData{}, err
	}
	ledger, err := st.Acceptances().ListByPolicy(ctx, id)
	if err != nil {
		return domain.PolicyData{}, err
	}
	p.UserAcceptances = ledger
	return p, nil
}

// loadCatalog returns every policy with its ledger, in creation order.
func loadCatalog(ctx context.Context, st store.Store) ([]domain.PolicyData, error) {
	policies, err := st.Policies().ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	for i := range policies {
		ledger, err := st.Acceptances().ListByPolicy(ctx, policies[i].ID)
		if err != nil {
			return nil, err
		}
		policies[i].UserAcceptances = ledger
	}
	return policies, nil
}

func loadUser(ctx context.Context, st store.Store, id string) (domain.User, error) {
	u, err := st.Users().GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// requireManager loads the acting user and checks they may manage policies.
// Unknown callers are forbidden rather than not found.
func requireManager(ctx context.Context, st store.Store, actingUserID string) (domain.User, error) {
	u, err := loadUser(ctx, st, actingUserID)
	if errors.Is(err, ErrUserNotFound) {
		return domain.User{}, ErrForbidden
	}
	if err != nil {
		return domain.User{}, err
	}
	if !u.IsActive || !u.CanManagePolicies() {
		return domain.User{}, ErrForbidden
	}
	return u, nil
}

// notify fires the audit and analytics hooks after a committed change. Hook
// failures are logged and never reach the caller.
type notify struct {
	Integrations
}

func (n notify) audit(ctx context.Context, action string, data any) {
	if n.Audit == nil {
		return
	}
	n.swallow(ctx, "audit.logAction", func() error { return n.Audit.LogAction(ctx, action, data) })
}

func (n notify) acceptance(ctx context.Context, a domain.PolicyAcceptance) {
	if n.Analytics != nil {
		n.swallow(ctx, "analytics.trackAcceptance", func() error { return n.Analytics.TrackAcceptance(ctx, a) })
	}
	n.audit(ctx, ActionPolicyAccepted, a)
}

func (n notify) decline(ctx context.Context, e DeclineEvent) {
	if n.Analytics != nil {
		n.swallow(ctx, "analytics.trackDecline", func() error { return n.Analytics.TrackDecline(ctx, e) })
	}
	n.audit(ctx, ActionPolicyDeclined, e)
}

func (n notify) swallow(ctx context.Context, hook string, fn func() error) {
	l := slogx.FromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			l.Error("integration panicked", slog.String("hook", hook), slog.Any("panic", r))
		}
	}()
	if err := fn(); err != nil {
		l.Warn("integration failed", slog.String("hook", hook), slog.Any("error", err))
	}
}
