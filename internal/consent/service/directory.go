package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/resolver"
	"github.com/aussiebroadwan/consent/internal/consent/store"
	"github.com/aussiebroadwan/consent/pkg/slogx"
)

// DirectoryService exposes the user and company directory together with the
// organization settings.
type DirectoryService struct {
	Store        store.Store
	Integrations Integrations
	Now          func() time.Time
}

func (s *DirectoryService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.Store.Users().ListUsers(ctx)
}

func (s *DirectoryService) GetUser(ctx context.Context, id string) (domain.User, error) {
	return loadUser(ctx, s.Store, id)
}

// Role returns the role of userID, or false for unknown and inactive users.
func (s *DirectoryService) Role(ctx context.Context, userID string) (domain.Role, bool) {
	u, err := loadUser(ctx, s.Store, userID)
	if err != nil || !u.IsActive {
		return "", false
	}
	return u.Role, true
}

// RecordLogin stamps the user's last login time.
func (s *DirectoryService) RecordLogin(ctx context.Context, userID string) error {
	err := s.Store.Users().TouchLastLogin(ctx, userID, nowOr(s.Now))
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

func (s *DirectoryService) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	return s.Store.Companies().ListCompanies(ctx)
}

func (s *DirectoryService) GetCompany(ctx context.Context, id string) (domain.Company, error) {
	c, err := s.Store.Companies().GetCompany(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Company{}, ErrCompanyNotFound
	}
	return c, err
}

// OrganizationSettings returns the saved settings, or the individual-only
// preset when none were saved.
func (s *DirectoryService) OrganizationSettings(ctx context.Context) (domain.OrganizationSettings, error) {
	return organizationSettings(ctx, s.Store)
}

// UpdateOrganizationSettings replaces the organization settings. Admins only.
func (s *DirectoryService) UpdateOrganizationSettings(ctx context.Context, actingUserID string, org domain.OrganizationSettings) error {
	actor, err := loadUser(ctx, s.Store, actingUserID)
	if err != nil || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	if err := domain.ValidateOrganizationSettings(org); err != nil {
		return err
	}
	if err := s.Store.Settings().PutOrganizationSettings(ctx, org, nowOr(s.Now)); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("organization settings updated",
		slog.String("who_can_accept", string(org.WhoCanAcceptForCompany)),
		slog.String("scope", string(org.AcceptanceScope)),
	)
	notify{s.Integrations}.audit(ctx, ActionSettingsUpdated, org)
	return nil
}

// CanAcceptForCompany reports whether userID may bind companyID. An empty
// companyID means the user's own company. Unknown users and companies yield
// false without error.
func (s *DirectoryService) CanAcceptForCompany(ctx context.Context, userID, companyID string) (bool, error) {
	user, err := loadUser(ctx, s.Store, userID)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if companyID == "" {
		companyID = user.CompanyID
	}
	if companyID == "" {
		return false, nil
	}

	company, err := s.Store.Companies().GetCompany(ctx, companyID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	org, err := organizationSettings(ctx, s.Store)
	if err != nil {
		return false, err
	}
	return resolver.CanAcceptForCompany(user, company, org), nil
}
