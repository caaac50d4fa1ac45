package domain

// WhoCanAccept selects the rule deciding which users may bind a company.
type WhoCanAccept string

const (
	AdminsOnly      WhoCanAccept = "admins-only"
	DesignatedUsers WhoCanAccept = "designated-users"
	AnyUser         WhoCanAccept = "any-user"
)

type AcceptanceScope string

const (
	ScopeIndividual  AcceptanceScope = "individual"
	ScopeCompanyWide AcceptanceScope = "company-wide"
	ScopeBoth        AcceptanceScope = "both"
)

type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
	ExportPDF  ExportFormat = "pdf"
)

type InheritanceRules struct {
	NewUsersInheritCompanyAcceptance     bool `json:"newUsersInheritCompanyAcceptance"`
	CompanyAcceptanceOverridesIndividual bool `json:"companyAcceptanceOverridesIndividual"`
}

type OrgNotifications struct {
	Enabled         bool     `json:"enabled"`
	ReminderDays    []int    `json:"reminderDays"`
	EscalationChain []string `json:"escalationChain"`
	SendToManagers  bool     `json:"sendToManagers"`
}

type AuditSettings struct {
	LogAllActions           bool         `json:"logAllActions"`
	RequireDigitalSignature bool         `json:"requireDigitalSignature"`
	RetentionPeriodYears    int          `json:"retentionPeriodYears"`
	ExportFormat            ExportFormat `json:"exportFormat"`
}

// OrganizationSettings is the tenant-wide policy governing company binding,
// inheritance and notifications.
type OrganizationSettings struct {
	RequireCompanyAcceptance     bool             `json:"requireCompanyAcceptance"`
	AllowIndividualAcceptance    bool             `json:"allowIndividualAcceptance"`
	RequireAuthorityConfirmation bool             `json:"requireAuthorityConfirmation"`
	WhoCanAcceptForCompany       WhoCanAccept     `json:"whoCanAcceptForCompany"`
	RequireManagerApproval       bool             `json:"requireManagerApproval"`
	AcceptanceScope              AcceptanceScope  `json:"acceptanceScope"`
	InheritanceRules             InheritanceRules `json:"inheritanceRules"`
	Notifications                OrgNotifications `json:"notifications"`
	AuditSettings                AuditSettings    `json:"auditSettings"`
}

// IndividualOnlySettings is the preset for tenants where every user accepts
// for themselves.
func IndividualOnlySettings() OrganizationSettings {
	return OrganizationSettings{
		RequireCompanyAcceptance:     false,
		AllowIndividualAcceptance:    true,
		RequireAuthorityConfirmation: false,
		WhoCanAcceptForCompany:       AnyUser,
		AcceptanceScope:              ScopeIndividual,
		Notifications: OrgNotifications{
			Enabled:         true,
			ReminderDays:    []int{7, 3, 1},
			EscalationChain: []string{},
		},
		AuditSettings: AuditSettings{
			LogAllActions:        true,
			RetentionPeriodYears: 7,
			ExportFormat:         ExportJSON,
		},
	}
}

// CompanyOnlySettings is the preset for tenants where designated
// representatives bind the whole company and members inherit.
func CompanyOnlySettings(company Company) OrganizationSettings {
	return OrganizationSettings{
		RequireCompanyAcceptance:     true,
		AllowIndividualAcceptance:    false,
		RequireAuthorityConfirmation: true,
		WhoCanAcceptForCompany:       DesignatedUsers,
		AcceptanceScope:              ScopeCompanyWide,
		InheritanceRules: InheritanceRules{
			NewUsersInheritCompanyAcceptance:     true,
			CompanyAcceptanceOverridesIndividual: true,
		},
		Notifications: OrgNotifications{
			Enabled:         true,
			ReminderDays:    []int{14, 7, 3, 1},
			EscalationChain: append([]string{}, company.AdminUsers...),
			SendToManagers:  true,
		},
		AuditSettings: AuditSettings{
			LogAllActions:           true,
			RequireDigitalSignature: true,
			RetentionPeriodYears:    10,
			ExportFormat:            ExportPDF,
		},
	}
}

// HybridSettings allows both individual and company acceptance without
// inheritance.
func HybridSettings(company Company) OrganizationSettings {
	return OrganizationSettings{
		RequireCompanyAcceptance:     true,
		AllowIndividualAcceptance:    true,
		RequireAuthorityConfirmation: true,
		WhoCanAcceptForCompany:       DesignatedUsers,
		AcceptanceScope:              ScopeBoth,
		Notifications: OrgNotifications{
			Enabled:         true,
			ReminderDays:    []int{7, 3, 1},
			EscalationChain: append([]string{}, company.AdminUsers...),
			SendToManagers:  true,
		},
		AuditSettings: AuditSettings{
			LogAllActions:        true,
			RetentionPeriodYears: 7,
			ExportFormat:         ExportJSON,
		},
	}
}
