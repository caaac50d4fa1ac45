package domain

import (
	"slices"
	"time"
)

type CompanySettings struct {
	RequireAuthorityConfirmation bool     `json:"requireAuthorityConfirmation"`
	RequireTitleAndEmail         bool     `json:"requireTitleAndEmail"`
	AllowDelegatedAcceptance     bool     `json:"allowDelegatedAcceptance"`
	NotificationEmails           []string `json:"notificationEmails"`
}

// Company is a legal entity whose representatives may bind it to a document.
// AdminUsers lists the user ids designated to accept on its behalf.
type Company struct {
	ID                        string          `json:"id"`
	Name                      string          `json:"name"`
	Domain                    string          `json:"domain,omitempty"`
	AdminUsers                []string        `json:"adminUsers"`
	RequiresCompanyAcceptance bool            `json:"requiresCompanyAcceptance"`
	AllowIndividualAcceptance bool            `json:"allowIndividualAcceptance"`
	Settings                  CompanySettings `json:"settings"`
	CreatedAt                 time.Time       `json:"createdAt"`
	IsActive                  bool            `json:"isActive"`
}

// DefaultCompanySettings are applied to companies created without explicit
// settings.
func DefaultCompanySettings() CompanySettings {
	return CompanySettings{
		RequireAuthorityConfirmation: true,
		RequireTitleAndEmail:         true,
		AllowDelegatedAcceptance:     false,
		NotificationEmails:           []string{},
	}
}

// NewCompany builds an active company that requires company-level acceptance.
// A non-nil settings is used as given apart from a nil notification list;
// its booleans replace the defaults, so callers start from
// DefaultCompanySettings to change a single flag.
func NewCompany(id, name string, adminUsers []string, settings *CompanySettings, now time.Time) Company {
	s := DefaultCompanySettings()
	if settings != nil {
		s = *settings
		if s.NotificationEmails == nil {
			s.NotificationEmails = []string{}
		}
	}
	if adminUsers == nil {
		adminUsers = []string{}
	}
	return Company{
		ID:                        id,
		Name:                      name,
		AdminUsers:                adminUsers,
		RequiresCompanyAcceptance: true,
		AllowIndividualAcceptance: false,
		Settings:                  s,
		CreatedAt:                 now.UTC(),
		IsActive:                  true,
	}
}

// IsAdmin reports whether userID is one of the company's designated acceptors.
func (c Company) IsAdmin(userID string) bool {
	return slices.Contains(c.AdminUsers, userID)
}
