package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/store"
	"github.com/aussiebroadwan/consent/pkg/cryptox"
	"github.com/aussiebroadwan/consent/pkg/slogx"
)

var (
	ErrBootstrapAlready = errors.New("system already bootstrapped")
	ErrBootstrapInvalid = errors.New("invalid seed data")
)

// Seed is the initial directory and catalog loaded into an empty store.
type Seed struct {
	Organization *domain.OrganizationSettings `json:"organization,omitempty"`
	Companies    []domain.Company             `json:"companies"`
	Users        []domain.User                `json:"users"`
	Policies     []domain.PolicyData          `json:"policies"`
}

// LoadSeedFile reads a JSON seed document.
func LoadSeedFile(path string) (Seed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("seed: read %s: %w", path, err)
	}
	var seed Seed
	if err := json.Unmarshal(b, &seed); err != nil {
		return Seed{}, fmt.Errorf("seed: parse %s: %w", path, err)
	}
	return seed, nil
}

type BootstrapService struct {
	Store store.Store
	Now   func() time.Time
}

// IsBootstrapped reports whether the store already holds users or policies.
func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	usersEmpty, err := s.Store.Users().IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	policiesEmpty, err := s.Store.Policies().IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	return !usersEmpty || !policiesEmpty, nil
}

// Bootstrap writes seed into an empty store in one transaction. Policy
// ledgers in the seed are imported as they are.
func (s *BootstrapService) Bootstrap(ctx context.Context, seed Seed) error {
	l := slogx.FromContext(ctx)

	// 1. Refuse to seed twice
	if done, err := s.IsBootstrapped(ctx); err != nil {
		return err
	} else if done {
		l.Warn("attempted bootstrap on already-bootstrapped store")
		return ErrBootstrapAlready
	}

	// 2. Validate everything before touching the store
	if err := validateSeed(seed); err != nil {
		l.Error("seed rejected", slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrBootstrapInvalid, err)
	}

	now := nowOr(s.Now)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if seed.Organization != nil {
			if err := tx.Settings().PutOrganizationSettings(ctx, *seed.Organization, now); err != nil {
				return fmt.Errorf("organization settings: %w", err)
			}
		}

		// Companies first, users reference them
		for _, c := range seed.Companies {
			if c.CreatedAt.IsZero() {
				c.CreatedAt = now
			}
			if err := tx.Companies().CreateCompany(ctx, c); err != nil {
				return fmt.Errorf("company %s: %w", c.ID, err)
			}
		}
		for _, u := range seed.Users {
			if u.CreatedAt.IsZero() {
				u.CreatedAt = now
			}
			if err := tx.Users().CreateUser(ctx, u); err != nil {
				return fmt.Errorf("user %s: %w", u.ID, err)
			}
		}

		for _, p := range seed.Policies {
			p = normalizeSeedPolicy(p, now)
			if err := tx.Policies().CreatePolicy(ctx, p); err != nil {
				return fmt.Errorf("policy %s: %w", p.ID, err)
			}
			for _, a := range p.UserAcceptances {
				if err := tx.Acceptances().CreateAcceptance(ctx, a); err != nil {
					return fmt.Errorf("acceptance %s: %w", a.ID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		l.Error("bootstrap failed", slog.Any("error", err))
		return err
	}

	l.Info("store bootstrapped",
		slog.Int("companies", len(seed.Companies)),
		slog.Int("users", len(seed.Users)),
		slog.Int("policies", len(seed.Policies)),
	)
	return nil
}

func validateSeed(seed Seed) error {
	if seed.Organization != nil {
		if err := domain.ValidateOrganizationSettings(*seed.Organization); err != nil {
			return err
		}
	}
	for _, c := range seed.Companies {
		if err := domain.ValidateCompany(c); err != nil {
			return fmt.Errorf("company %q: %w", c.ID, err)
		}
	}
	for _, u := range seed.Users {
		if err := domain.ValidateUser(u); err != nil {
			return fmt.Errorf("user %q: %w", u.ID, err)
		}
	}
	for _, p := range seed.Policies {
		if err := domain.ValidatePolicy(p); err != nil {
			return fmt.Errorf("policy %q: %w", p.ID, err)
		}
	}
	return nil
}

// normalizeSeedPolicy re-derives the version order, the current version and
// the content digests so hand-written seeds cannot disagree with them.
func normalizeSeedPolicy(p domain.PolicyData, now time.Time) domain.PolicyData {
	versions := make([]domain.PolicyVersion, len(p.Versions))
	for i, v := range p.Versions {
		v.ContentDigest = cryptox.ContentDigest(v.Content)
		versions[i] = v
	}
	p.Versions = domain.SortVersions(versions)
	if len(p.Versions) > 0 {
		p.CurrentVersion = p.Versions[0].Version
	} else if p.CurrentVersion == "" {
		p.CurrentVersion = domain.DefaultVersion
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	return p
}
