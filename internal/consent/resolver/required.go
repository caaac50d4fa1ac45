package resolver

import (
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
)

// RequiredPolicies returns, in catalog order, the documents whose status for
// user is pending or overdue.
func RequiredPolicies(
	catalog []domain.PolicyData,
	user domain.User,
	org domain.OrganizationSettings,
	now time.Time,
) []domain.PolicyData {
	out := make([]domain.PolicyData, 0, len(catalog))
	for _, p := range catalog {
		if ResolveStatus(p, user, org, now).Outstanding() {
			out = append(out, p)
		}
	}
	return out
}

// Statuses resolves every document in the catalog for user, keyed by
// document id.
func Statuses(
	catalog []domain.PolicyData,
	user domain.User,
	org domain.OrganizationSettings,
	now time.Time,
) map[string]domain.Status {
	out := make(map[string]domain.Status, len(catalog))
	for _, p := range catalog {
		out[p.ID] = ResolveStatus(p, user, org, now)
	}
	return out
}

// UserAcceptances collects the valid ledger records of userID across the
// catalog, in catalog then ledger order.
func UserAcceptances(catalog []domain.PolicyData, userID string) []domain.PolicyAcceptance {
	var out []domain.PolicyAcceptance
	for _, p := range catalog {
		for _, a := range p.UserAcceptances {
			if a.UserID == userID && a.IsValid {
				out = append(out, a)
			}
		}
	}
	return out
}
