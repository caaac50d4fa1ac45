package domain

import "strings"

// ValidatePolicyVersion checks the fields every published version must carry.
func ValidatePolicyVersion(v PolicyVersion) error {
	f := fieldErrors{}
	f.require(strings.TrimSpace(v.ID) != "", "id", "is required")
	f.require(strings.TrimSpace(v.Version) != "", "version", "is required")
	f.require(!v.Date.IsZero(), "date", "is required")
	f.require(strings.TrimSpace(v.Content) != "", "content", "is required")
	if v.GracePeriodDays != nil {
		f.require(*v.GracePeriodDays >= 0, "gracePeriodDays", "must not be negative")
	}
	return f.err()
}

func ValidateUser(u User) error {
	f := fieldErrors{}
	f.require(strings.TrimSpace(u.ID) != "", "id", "is required")
	f.require(strings.TrimSpace(u.Email) != "", "email", "is required")
	f.require(strings.Contains(u.Email, "@"), "email", "must be an email address")
	f.require(strings.TrimSpace(u.Name) != "", "name", "is required")
	f.require(u.Role.Valid(), "role", "is not a known role")
	return f.err()
}

func ValidateCompany(c Company) error {
	f := fieldErrors{}
	f.require(strings.TrimSpace(c.ID) != "", "id", "is required")
	f.require(strings.TrimSpace(c.Name) != "", "name", "is required")
	return f.err()
}

// ValidatePolicy checks a document and each of its versions.
func ValidatePolicy(p PolicyData) error {
	f := fieldErrors{}
	f.require(strings.TrimSpace(p.ID) != "", "id", "is required")
	f.require(p.Type.Valid(), "type", "is not a known policy type")
	f.require(strings.TrimSpace(p.Title) != "", "title", "is required")
	seen := make(map[string]struct{}, len(p.Versions))
	for _, v := range p.Versions {
		if err := ValidatePolicyVersion(v); err != nil {
			f.require(false, "versions", err.Error())
		}
		_, dup := seen[v.Version]
		f.require(!dup, "versions", "duplicate version "+v.Version)
		seen[v.Version] = struct{}{}
	}
	return f.err()
}

// ValidateCompanyAttestation checks the attestation a representative supplies
// before binding a company. authorityConfirmed is the representative's
// explicit statement that they are authorized to bind the company.
func ValidateCompanyAttestation(info *CompanyInfo, authorityConfirmed bool) error {
	f := fieldErrors{}
	if info == nil {
		f.require(false, "companyInfo", "is required for company acceptance")
		return f.err()
	}
	f.require(strings.TrimSpace(info.CompanyName) != "", "companyName", "is required")
	f.require(strings.TrimSpace(info.AcceptorName) != "", "acceptorName", "is required")
	f.require(strings.TrimSpace(info.AcceptorTitle) != "", "acceptorTitle", "is required")
	f.require(strings.TrimSpace(info.AcceptorEmail) != "", "acceptorEmail", "is required")
	f.require(strings.Contains(info.AcceptorEmail, "@"), "acceptorEmail", "must be an email address")
	f.require(authorityConfirmed, "authority", "must be confirmed")
	switch info.SignatureMethod {
	case "", SignatureClick, SignatureTyped, SignatureDigital:
	default:
		f.require(false, "signatureMethod", "is not a known signature method")
	}
	return f.err()
}

// ValidateOrganizationSettings checks the enumerated fields and reminder
// days of org.
func ValidateOrganizationSettings(org OrganizationSettings) error {
	f := fieldErrors{}
	switch org.WhoCanAcceptForCompany {
	case AdminsOnly, DesignatedUsers, AnyUser:
	default:
		f.require(false, "whoCanAcceptForCompany", "is not a known rule")
	}
	switch org.AcceptanceScope {
	case ScopeIndividual, ScopeCompanyWide, ScopeBoth:
	default:
		f.require(false, "acceptanceScope", "is not a known scope")
	}
	switch org.AuditSettings.ExportFormat {
	case "", ExportJSON, ExportCSV, ExportPDF:
	default:
		f.require(false, "auditSettings.exportFormat", "is not a known format")
	}
	for _, d := range org.Notifications.ReminderDays {
		f.require(d >= 0, "notifications.reminderDays", "must not be negative")
	}
	f.require(org.RequireCompanyAcceptance || org.AllowIndividualAcceptance,
		"allowIndividualAcceptance", "at least one acceptance mode must be enabled")
	return f.err()
}
