package resolver

import (
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
)

// ResolveStatus derives the status of policy for user at instant now. The
// rules are evaluated in order and the first match wins:
//
//  1. the document does not require acceptance: not-required
//  2. the current version is not published: not-required
//  3. the user holds a valid acceptance of the current version: accepted
//  4. inheritance is enabled, the user has a company and a valid company
//     acceptance of the current version exists: accepted
//  5. the current version's deadline has passed: overdue
//  6. otherwise: pending
//
// Rule 4 matches a company acceptance made by any acceptor for any company;
// it does not compare the user's company with the bound one.
func ResolveStatus(policy domain.PolicyData, user domain.User, org domain.OrganizationSettings, now time.Time) domain.Status {
	if !policy.Settings.RequiresAcceptance {
		return domain.StatusNotRequired
	}

	current, ok := policy.Current()
	if !ok {
		return domain.StatusNotRequired
	}

	for _, a := range policy.UserAcceptances {
		if a.IsValid && a.UserID == user.ID && a.Version == policy.CurrentVersion {
			return domain.StatusAccepted
		}
	}

	if org.InheritanceRules.NewUsersInheritCompanyAcceptance && user.HasCompany() {
		for _, a := range policy.UserAcceptances {
			if a.BindsCompany() && a.Version == policy.CurrentVersion {
				return domain.StatusAccepted
			}
		}
	}

	if current.HasDeadline() && now.After(current.Deadline.Time) {
		return domain.StatusOverdue
	}

	return domain.StatusPending
}
