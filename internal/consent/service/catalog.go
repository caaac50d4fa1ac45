package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/resolver"
	"github.com/aussiebroadwan/consent/internal/consent/store"
	"github.com/aussiebroadwan/consent/pkg/cryptox"
	"github.com/aussiebroadwan/consent/pkg/idx"
	"github.com/aussiebroadwan/consent/pkg/slogx"
)

// NewPolicyRequest describes a document to add to the catalog. ID is minted
// when empty and Settings falls back to the defaults.
type NewPolicyRequest struct {
	ID          string                 `json:"id,omitempty"`
	Type        domain.PolicyType      `json:"type"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Versions    []domain.PolicyVersion `json:"versions"`
	Settings    *domain.PolicySettings `json:"settings,omitempty"`
}

type CatalogService struct {
	Store        store.Store
	Integrations Integrations
	Now          func() time.Time
	IDs          idx.Source
}

// ListPolicies returns the catalog with full ledgers in creation order.
func (s *CatalogService) ListPolicies(ctx context.Context) ([]domain.PolicyData, error) {
	return loadCatalog(ctx, s.Store)
}

func (s *CatalogService) GetPolicy(ctx context.Context, id string) (domain.PolicyData, error) {
	return loadPolicy(ctx, s.Store, id)
}

// CreatePolicy adds a document. Only admin and legal users may do so.
func (s *CatalogService) CreatePolicy(ctx context.Context, actingUserID string, req NewPolicyRequest) (domain.PolicyData, error) {
	l := slogx.FromContext(ctx)

	actor, err := requireManager(ctx, s.Store, actingUserID)
	if err != nil {
		return domain.PolicyData{}, err
	}

	now := nowOr(s.Now)
	ids := idsOr(s.IDs)

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = ids.NewAt(now).String()
	}
	versions := make([]domain.PolicyVersion, 0, len(req.Versions))
	for _, v := range req.Versions {
		versions = append(versions, s.stampVersion(v, actor.ID, now))
	}

	p := domain.NewPolicyData(id, req.Type, req.Title, versions, nil, req.Settings, now)
	p.Description = req.Description
	if err := domain.ValidatePolicy(p); err != nil {
		return domain.PolicyData{}, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return tx.Policies().CreatePolicy(ctx, p)
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.PolicyData{}, ErrPolicyExists
		}
		l.Error("failed to create policy", slog.String("policy_id", id), slog.Any("error", err))
		return domain.PolicyData{}, err
	}

	l.Info("policy created",
		slog.String("policy_id", id),
		slog.String("current_version", p.CurrentVersion),
	)
	notify{s.Integrations}.audit(ctx, ActionPolicyCreated, map[string]any{
		"policyId":       p.ID,
		"currentVersion": p.CurrentVersion,
		"createdBy":      actor.ID,
	})
	return p, nil
}

// PublishVersion appends v to the document and makes it current. Existing
// versions are never removed.
func (s *CatalogService) PublishVersion(ctx context.Context, actingUserID, policyID string, v domain.PolicyVersion) (domain.PolicyData, error) {
	l := slogx.FromContext(ctx)

	actor, err := requireManager(ctx, s.Store, actingUserID)
	if err != nil {
		return domain.PolicyData{}, err
	}

	now := nowOr(s.Now)
	v = s.stampVersion(v, actor.ID, now)
	if err := domain.ValidatePolicyVersion(v); err != nil {
		return domain.PolicyData{}, err
	}

	var published domain.PolicyData
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		p, err := loadPolicy(ctx, tx, policyID)
		if err != nil {
			return err
		}
		next, err := p.WithVersion(v, now)
		switch {
		case errors.Is(err, domain.ErrVersionExists):
			return ErrVersionExists
		case errors.Is(err, domain.ErrVersionNotNewer):
			return ErrVersionNotNewer
		case err != nil:
			return err
		}
		if err := tx.Policies().AddVersion(ctx, policyID, v, now); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrVersionExists
			}
			return err
		}
		published = next
		return nil
	})
	if err != nil {
		return domain.PolicyData{}, err
	}

	l.Info("policy version published",
		slog.String("policy_id", policyID),
		slog.String("version", v.Version),
		slog.Bool("breaking", v.IsBreaking),
	)
	notify{s.Integrations}.audit(ctx, ActionPolicyPublished, map[string]any{
		"policyId":    policyID,
		"version":     v.Version,
		"isBreaking":  v.IsBreaking,
		"publishedBy": actor.ID,
	})
	return published, nil
}

// stampVersion fills the server-owned fields of a version.
func (s *CatalogService) stampVersion(v domain.PolicyVersion, actorID string, now time.Time) domain.PolicyVersion {
	if strings.TrimSpace(v.ID) == "" {
		v.ID = idsOr(s.IDs).NewAt(now).String()
	}
	if v.CreatedBy == "" {
		v.CreatedBy = actorID
	}
	v.ContentDigest = cryptox.ContentDigest(v.Content)
	return v
}

// Status resolves every document for userID, keyed by document id.
func (s *CatalogService) Status(ctx context.Context, userID string) (map[string]domain.Status, error) {
	catalog, user, org, err := s.view(ctx, userID)
	if err != nil {
		return nil, err
	}
	return resolver.Statuses(catalog, user, org, nowOr(s.Now)), nil
}

// Required lists the documents userID still has to accept.
func (s *CatalogService) Required(ctx context.Context, userID string) ([]domain.PolicyData, error) {
	catalog, user, org, err := s.view(ctx, userID)
	if err != nil {
		return nil, err
	}
	return resolver.RequiredPolicies(catalog, user, org, nowOr(s.Now)), nil
}

func (s *CatalogService) view(ctx context.Context, userID string) ([]domain.PolicyData, domain.User, domain.OrganizationSettings, error) {
	user, err := loadUser(ctx, s.Store, userID)
	if err != nil {
		return nil, domain.User{}, domain.OrganizationSettings{}, err
	}
	org, err := organizationSettings(ctx, s.Store)
	if err != nil {
		return nil, domain.User{}, domain.OrganizationSettings{}, err
	}
	catalog, err := loadCatalog(ctx, s.Store)
	if err != nil {
		return nil, domain.User{}, domain.OrganizationSettings{}, err
	}
	return catalog, user, org, nil
}
