package domain

import "time"

// AcceptanceType tells whether a user accepted for themselves or bound a
// company.
type AcceptanceType string

const (
	AcceptanceIndividual AcceptanceType = "individual"
	AcceptanceCompany    AcceptanceType = "company"
)

func (t AcceptanceType) Valid() bool {
	return t == AcceptanceIndividual || t == AcceptanceCompany
}

type SignatureMethod string

const (
	SignatureClick   SignatureMethod = "click"
	SignatureTyped   SignatureMethod = "typed"
	SignatureDigital SignatureMethod = "digital"
)

// CompanyInfo is the attestation captured when a representative binds a
// company.
type CompanyInfo struct {
	CompanyName     string          `json:"companyName"`
	AcceptorName    string          `json:"acceptorName"`
	AcceptorTitle   string          `json:"acceptorTitle"`
	AcceptorEmail   string          `json:"acceptorEmail"`
	AcceptorUserID  string          `json:"acceptorUserId,omitempty"`
	SignatureMethod SignatureMethod `json:"signatureMethod,omitempty"`
	IPAddress       string          `json:"ipAddress,omitempty"`
	Location        string          `json:"location,omitempty"`

	// AuthorityConfirmed records that the acceptor affirmed they may bind
	// the company.
	AuthorityConfirmed bool `json:"authorityConfirmed,omitempty"`
}

type AcceptanceMetadata struct {
	SessionID   string `json:"sessionId,omitempty"`
	DeviceType  string `json:"deviceType,omitempty"`
	BrowserInfo string `json:"browserInfo,omitempty"`
}

// AcceptanceState is the lifecycle state of a ledger record.
type AcceptanceState string

const (
	AcceptanceValid   AcceptanceState = "valid"
	AcceptanceRevoked AcceptanceState = "revoked"
)

// PolicyAcceptance is one ledger record. Records are never deleted; the only
// permitted mutation is revocation.
type PolicyAcceptance struct {
	ID             string              `json:"id"`
	PolicyID       string              `json:"policyId"`
	Version        string              `json:"version"`
	UserID         string              `json:"userId"`
	AcceptedAt     time.Time           `json:"acceptedAt"`
	UserAgent      string              `json:"userAgent,omitempty"`
	AcceptanceType AcceptanceType      `json:"acceptanceType"`
	CompanyInfo    *CompanyInfo        `json:"companyInfo,omitempty"`
	IPAddress      string              `json:"ipAddress,omitempty"`
	Location       string              `json:"location,omitempty"`
	IsValid        bool                `json:"isValid"`
	RevokedAt      *time.Time          `json:"revokedAt,omitempty"`
	RevokedBy      string              `json:"revokedBy,omitempty"`
	RevokedReason  string              `json:"revokedReason,omitempty"`
	Metadata       *AcceptanceMetadata `json:"metadata,omitempty"`
	ContentDigest  string              `json:"contentDigest,omitempty"`
}

func (a PolicyAcceptance) State() AcceptanceState {
	if a.IsValid {
		return AcceptanceValid
	}
	return AcceptanceRevoked
}

// BindsCompany reports whether this is a valid company-level record carrying a
// company name.
func (a PolicyAcceptance) BindsCompany() bool {
	return a.IsValid &&
		a.AcceptanceType == AcceptanceCompany &&
		a.CompanyInfo != nil &&
		a.CompanyInfo.CompanyName != ""
}

// Revoke returns the revoked form of a. Revoking twice is an error.
func (a PolicyAcceptance) Revoke(by, reason string, at time.Time) (PolicyAcceptance, error) {
	if !a.IsValid {
		return a, ErrAlreadyRevoked
	}
	at = at.UTC()
	a.IsValid = false
	a.RevokedAt = &at
	a.RevokedBy = by
	a.RevokedReason = reason
	return a, nil
}

// SameSubject reports whether b records the same user accepting the same
// version of the same document.
func (a PolicyAcceptance) SameSubject(b PolicyAcceptance) bool {
	return a.PolicyID == b.PolicyID && a.UserID == b.UserID && a.Version == b.Version
}
