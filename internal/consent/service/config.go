package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
)

// DataSourceType selects where a Session reads its catalog from.
type DataSourceType string

const (
	SourceLocal  DataSourceType = "local"
	SourceAPI    DataSourceType = "api"
	SourceHybrid DataSourceType = "hybrid"
)

// APIEndpoints are absolute URLs of the consent API. Empty entries are
// treated as not configured.
type APIEndpoints struct {
	GetPolicies             string `json:"getPolicies,omitempty"`
	GetPolicy               string `json:"getPolicy,omitempty"`
	SubmitAcceptance        string `json:"submitAcceptance,omitempty"`
	GetUserAcceptances      string `json:"getUserAcceptances,omitempty"`
	GetUsers                string `json:"getUsers,omitempty"`
	GetCompanies            string `json:"getCompanies,omitempty"`
	GetOrganizationSettings string `json:"getOrganizationSettings,omitempty"`
}

type LocalData struct {
	Policies    []domain.PolicyData `json:"policies"`
	Users       []domain.User       `json:"users"`
	Companies   []domain.Company    `json:"companies"`
	CurrentUser *domain.User        `json:"currentUser,omitempty"`
}

type DataSource struct {
	Type         DataSourceType `json:"type"`
	APIEndpoints APIEndpoints   `json:"apiEndpoints"`
	LocalData    LocalData      `json:"localData"`
}

// Behavior carries presentation flags for the surrounding application. The
// session stores them but does not act on them.
type Behavior struct {
	AutoShowOnLogin          bool `json:"autoShowOnLogin"`
	BlockAccessUntilAccepted bool `json:"blockAccessUntilAccepted"`
	AllowLaterReview         bool `json:"allowLaterReview"`
	RequireScrollToBottom    bool `json:"requireScrollToBottom"`
	SessionTimeoutMinutes    int  `json:"sessionTimeout,omitempty"`
}

// Callbacks are optional hooks invoked by a Session. Every slot may be nil.
type Callbacks struct {
	// OnAcceptance runs after an acceptance is committed to the ledger.
	OnAcceptance func(ctx context.Context, a domain.PolicyAcceptance) error

	OnDecline func(ctx context.Context, policyID, reason string) error

	// OnError receives submission and fetch failures together with the name
	// of the operation that produced them.
	OnError func(err error, operation string)

	OnUserAction func(action string, data any)

	// BeforeAcceptance may veto an acceptance before anything is submitted.
	// Returning false cancels it without error.
	BeforeAcceptance func(ctx context.Context, candidate domain.PolicyAcceptance) (bool, error)
}

// Config is the configuration object of a client Session. Everything except
// Callbacks and Integrations can be loaded from JSON.
type Config struct {
	DataSource     DataSource                  `json:"dataSource"`
	Organization   domain.OrganizationSettings `json:"organization"`
	CurrentUser    domain.User                 `json:"currentUser"`
	CurrentCompany *domain.Company             `json:"currentCompany,omitempty"`
	Behavior       Behavior                    `json:"behavior"`

	Callbacks    Callbacks    `json:"-"`
	Integrations Integrations `json:"-"`
}

// Validate checks the fields a Session cannot run without.
func (c Config) Validate() error {
	switch c.DataSource.Type {
	case SourceLocal, SourceAPI, SourceHybrid:
	default:
		return fmt.Errorf("config: unknown dataSource.type %q", c.DataSource.Type)
	}
	if c.CurrentUser.ID == "" {
		return errors.New("config: currentUser.id is required")
	}
	return nil
}

// LoadConfigFile reads a JSON session configuration from path.
func LoadConfigFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.DataSource.Type == "" {
		cfg.DataSource.Type = SourceLocal
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func localPreset(user domain.User, company *domain.Company) DataSource {
	ds := DataSource{
		Type: SourceLocal,
		LocalData: LocalData{
			Policies:    []domain.PolicyData{},
			Users:       []domain.User{user},
			Companies:   []domain.Company{},
			CurrentUser: &user,
		},
	}
	if company != nil {
		ds.LocalData.Companies = append(ds.LocalData.Companies, *company)
	}
	return ds
}

// IndividualOnlyConfig is a local session where every user accepts for
// themselves.
func IndividualOnlyConfig(user domain.User) Config {
	return Config{
		DataSource:   localPreset(user, nil),
		Organization: domain.IndividualOnlySettings(),
		CurrentUser:  user,
		Behavior: Behavior{
			AllowLaterReview:      true,
			RequireScrollToBottom: true,
		},
	}
}

// CompanyOnlyConfig is a local session where designated representatives bind
// company and its members inherit. Access is blocked until accepted.
func CompanyOnlyConfig(user domain.User, company domain.Company) Config {
	return Config{
		DataSource:     localPreset(user, &company),
		Organization:   domain.CompanyOnlySettings(company),
		CurrentUser:    user,
		CurrentCompany: &company,
		Behavior: Behavior{
			AutoShowOnLogin:          true,
			BlockAccessUntilAccepted: true,
			RequireScrollToBottom:    true,
		},
	}
}

// HybridConfig allows both individual and company acceptance.
func HybridConfig(user domain.User, company domain.Company) Config {
	return Config{
		DataSource:     localPreset(user, &company),
		Organization:   domain.HybridSettings(company),
		CurrentUser:    user,
		CurrentCompany: &company,
		Behavior: Behavior{
			AllowLaterReview:      true,
			RequireScrollToBottom: true,
		},
	}
}
