// Package resolver holds the pure rules that derive permissions and
// acceptance statuses from a catalog snapshot. Nothing in here performs I/O
// or reads the clock; callers pass "now" explicitly.
package resolver

import "github.com/aussiebroadwan/consent/internal/consent/domain"

// CanAcceptForCompany decides whether user may bind company under org. It
// returns false whenever the organization does not require company-level
// acceptance, and for any unknown rule.
func CanAcceptForCompany(user domain.User, company domain.Company, org domain.OrganizationSettings) bool {
	if !org.RequireCompanyAcceptance {
		return false
	}

	switch org.WhoCanAcceptForCompany {
	case domain.AdminsOnly:
		return user.Role == domain.RoleAdmin || user.Role == domain.RoleCompanyAdmin
	case domain.DesignatedUsers:
		return company.IsAdmin(user.ID) || user.CanAcceptForCompany
	case domain.AnyUser:
		return user.CompanyID == company.ID
	default:
		return false
	}
}
