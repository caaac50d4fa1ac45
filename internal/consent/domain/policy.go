package domain

import (
	"slices"
	"time"
)

// PolicyType classifies a governed document.
type PolicyType string

const (
	PolicyTerms          PolicyType = "terms"
	PolicyPrivacy        PolicyType = "privacy"
	PolicyCookies        PolicyType = "cookies"
	PolicyDataProcessing PolicyType = "data-processing"
	PolicySecurity       PolicyType = "security"
	PolicyCustom         PolicyType = "custom"
)

func (t PolicyType) Valid() bool {
	switch t {
	case PolicyTerms, PolicyPrivacy, PolicyCookies, PolicyDataProcessing, PolicySecurity, PolicyCustom:
		return true
	}
	return false
}

// Label is the human readable name used in notifications.
func (t PolicyType) Label() string {
	switch t {
	case PolicyTerms:
		return "Terms of Service"
	case PolicyPrivacy:
		return "Privacy Policy"
	case PolicyCookies:
		return "Cookie Policy"
	case PolicyDataProcessing:
		return "Data Processing Agreement"
	case PolicySecurity:
		return "Security Policy"
	default:
		return "Policy"
	}
}

type VersionMetadata struct {
	WordCount          int    `json:"wordCount"`
	ReadingTimeMinutes int    `json:"readingTimeMinutes"`
	Language           string `json:"language"`
	Jurisdiction       string `json:"jurisdiction"`
}

// PolicyVersion is one immutable published text of a document.
type PolicyVersion struct {
	ID              string           `json:"id"`
	Version         string           `json:"version"`
	Date            Date             `json:"date"`
	Content         string           `json:"content"`
	Changes         []string         `json:"changes,omitempty"`
	IsBreaking      bool             `json:"isBreaking,omitempty"`
	Deadline        *Date            `json:"deadline,omitempty"`
	GracePeriodDays *int             `json:"gracePeriodDays,omitempty"`
	IsActive        bool             `json:"isActive"`
	CreatedBy       string           `json:"createdBy"`
	ApprovedBy      string           `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time       `json:"approvedAt,omitempty"`
	Metadata        *VersionMetadata `json:"metadata,omitempty"`
	ContentDigest   string           `json:"contentDigest,omitempty"`
}

// HasDeadline reports whether acceptance of this version is time-bound.
func (v PolicyVersion) HasDeadline() bool {
	return v.Deadline != nil && !v.Deadline.IsZero()
}

type NotificationSettings struct {
	SendReminders    bool     `json:"sendReminders"`
	ReminderDays     []int    `json:"reminderDays"`
	EscalationEmails []string `json:"escalationEmails"`
}

type PolicySettings struct {
	RequiresAcceptance   bool                 `json:"requiresAcceptance"`
	AllowVersionRollback bool                 `json:"allowVersionRollback"`
	RetentionPeriodDays  int                  `json:"retentionPeriodDays"`
	NotificationSettings NotificationSettings `json:"notificationSettings"`
}

// DefaultRetentionPeriodDays keeps acceptance evidence for seven years.
const DefaultRetentionPeriodDays = 2555

// DefaultVersion is used as the current version of a document created
// without any published versions.
const DefaultVersion = "1.0"

func DefaultPolicySettings() PolicySettings {
	return PolicySettings{
		RequiresAcceptance:   true,
		AllowVersionRollback: false,
		RetentionPeriodDays:  DefaultRetentionPeriodDays,
		NotificationSettings: NotificationSettings{
			SendReminders:    true,
			ReminderDays:     []int{7, 3, 1},
			EscalationEmails: []string{},
		},
	}
}

// withDefaults fills the fields a caller left unset with the defaults: a nil
// reminder schedule, a nil escalation list and a non-positive retention
// period. Booleans are taken as given.
func (s PolicySettings) withDefaults() PolicySettings {
	def := DefaultPolicySettings()
	if s.RetentionPeriodDays <= 0 {
		s.RetentionPeriodDays = def.RetentionPeriodDays
	}
	if s.NotificationSettings.ReminderDays == nil {
		s.NotificationSettings.ReminderDays = def.NotificationSettings.ReminderDays
	}
	if s.NotificationSettings.EscalationEmails == nil {
		s.NotificationSettings.EscalationEmails = []string{}
	}
	return s
}

// PolicyData is a governed document: its version history (newest first) and
// the append-only ledger of acceptances recorded against it.
type PolicyData struct {
	ID              string             `json:"id"`
	Type            PolicyType         `json:"type"`
	Title           string             `json:"title"`
	Description     string             `json:"description,omitempty"`
	Versions        []PolicyVersion    `json:"versions"`
	CurrentVersion  string             `json:"currentVersion"`
	UserAcceptances []PolicyAcceptance `json:"userAcceptances"`
	IsActive        bool               `json:"isActive"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
	Settings        PolicySettings     `json:"settings"`
}

// SortVersions returns a copy of versions ordered by publication date, newest
// first. Versions sharing a date keep their relative order.
func SortVersions(versions []PolicyVersion) []PolicyVersion {
	out := slices.Clone(versions)
	slices.SortStableFunc(out, func(a, b PolicyVersion) int {
		return b.Date.Compare(a.Date.Time)
	})
	return out
}

// NewPolicyData builds an active document. Versions are sorted newest first
// and the current version is taken from the newest one. A non-nil settings is
// merged over DefaultPolicySettings (see withDefaults); an empty, non-nil
// reminder schedule defers to the organization's.
func NewPolicyData(
	id string,
	typ PolicyType,
	title string,
	versions []PolicyVersion,
	acceptances []PolicyAcceptance,
	settings *PolicySettings,
	now time.Time,
) PolicyData {
	sorted := SortVersions(versions)
	current := DefaultVersion
	if len(sorted) > 0 {
		current = sorted[0].Version
	}

	s := DefaultPolicySettings()
	if settings != nil {
		s = settings.withDefaults()
	}
	if acceptances == nil {
		acceptances = []PolicyAcceptance{}
	}

	now = now.UTC()
	return PolicyData{
		ID:              id,
		Type:            typ,
		Title:           title,
		Versions:        sorted,
		CurrentVersion:  current,
		UserAcceptances: acceptances,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
		Settings:        s,
	}
}

// FindVersion looks up a version by its version string.
func (p PolicyData) FindVersion(version string) (PolicyVersion, bool) {
	for _, v := range p.Versions {
		if v.Version == version {
			return v, true
		}
	}
	return PolicyVersion{}, false
}

// Current returns the version record matching CurrentVersion, if published.
func (p PolicyData) Current() (PolicyVersion, bool) {
	return p.FindVersion(p.CurrentVersion)
}

// FindAcceptance looks up a ledger record by id.
func (p PolicyData) FindAcceptance(id string) (PolicyAcceptance, bool) {
	for _, a := range p.UserAcceptances {
		if a.ID == id {
			return a, true
		}
	}
	return PolicyAcceptance{}, false
}

// WithAcceptance returns a copy of the document with a appended to its
// ledger. The receiver and its ledger slice are left untouched.
func (p PolicyData) WithAcceptance(a PolicyAcceptance) PolicyData {
	ledger := make([]PolicyAcceptance, 0, len(p.UserAcceptances)+1)
	ledger = append(ledger, p.UserAcceptances...)
	ledger = append(ledger, a)
	p.UserAcceptances = ledger
	return p
}

// WithRevocation returns a copy of the document whose record id has been
// revoked. The record itself stays in the ledger.
func (p PolicyData) WithRevocation(id, by, reason string, at time.Time) (PolicyData, error) {
	ledger := slices.Clone(p.UserAcceptances)
	for i, a := range ledger {
		if a.ID != id {
			continue
		}
		revoked, err := a.Revoke(by, reason, at)
		if err != nil {
			return p, err
		}
		ledger[i] = revoked
		p.UserAcceptances = ledger
		return p, nil
	}
	return p, ErrAcceptanceNotFound
}

// WithVersion returns a copy of the document with v published as its newest
// version. Version strings are unique and history only grows forward.
func (p PolicyData) WithVersion(v PolicyVersion, now time.Time) (PolicyData, error) {
	if _, exists := p.FindVersion(v.Version); exists {
		return p, ErrVersionExists
	}
	if cur, ok := p.Current(); ok && v.Date.Before(cur.Date.Time) {
		return p, ErrVersionNotNewer
	}

	versions := make([]PolicyVersion, 0, len(p.Versions)+1)
	versions = append(versions, v)
	versions = append(versions, p.Versions...)
	p.Versions = SortVersions(versions)
	p.CurrentVersion = p.Versions[0].Version
	p.UpdatedAt = now.UTC()
	return p, nil
}
