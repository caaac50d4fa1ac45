package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
)

// DeclineEvent is what analytics and audit receive when a user turns a
// document down. Declines never touch the ledger.
type DeclineEvent struct {
	PolicyID   string    `json:"policyId"`
	UserID     string    `json:"userId"`
	Reason     string    `json:"reason,omitempty"`
	DeclinedAt time.Time `json:"declinedAt"`
}

// ViewEvent records a user opening a document.
type ViewEvent struct {
	PolicyID string    `json:"policyId"`
	Version  string    `json:"version,omitempty"`
	UserID   string    `json:"userId"`
	ViewedAt time.Time `json:"viewedAt"`
}

// RevokeEvent is audited when an acceptance is invalidated.
type RevokeEvent struct {
	AcceptanceID string    `json:"acceptanceId"`
	PolicyID     string    `json:"policyId"`
	UserID       string    `json:"userId"`
	RevokedBy    string    `json:"revokedBy"`
	Reason       string    `json:"reason,omitempty"`
	RevokedAt    time.Time `json:"revokedAt"`
}

// Audit actions.
const (
	ActionPolicyAccepted   = "policy_accepted"
	ActionPolicyDeclined   = "policy_declined"
	ActionPolicyViewed     = "policy_viewed"
	ActionPolicyPublished  = "policy_published"
	ActionPolicyCreated    = "policy_created"
	ActionAcceptanceRevoke = "acceptance_revoked"
	ActionSettingsUpdated  = "organization_settings_updated"
)

// Analytics receives acceptance funnel events.
type Analytics interface {
	TrackAcceptance(ctx context.Context, a domain.PolicyAcceptance) error
	TrackDecline(ctx context.Context, e DeclineEvent) error
	TrackView(ctx context.Context, e ViewEvent) error
}

// Notifier delivers reminders and escalations.
type Notifier interface {
	SendEmail(ctx context.Context, to []string, subject, body string) error
	SendSlack(ctx context.Context, channel, message string) error
}

// Auditor keeps the audit trail. data is any JSON-encodable value.
type Auditor interface {
	LogAction(ctx context.Context, action string, data any) error
}

// Integrations bundles the optional outbound hooks. Nil members are skipped.
type Integrations struct {
	Analytics     Analytics
	Notifications Notifier
	Audit         Auditor
}
