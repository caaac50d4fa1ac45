package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/service"
	"github.com/aussiebroadwan/consent/pkg/jwtx"
)

type statusLine struct {
	PolicyID       string        `json:"policyId"`
	Title          string        `json:"title"`
	CurrentVersion string        `json:"currentVersion"`
	Status         domain.Status `json:"status"`
}

// subFlags builds a flag set whose -user defaults to the session's user.
func (c *cli) subFlags(name string, sess *service.Session) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	user := fs.String("user", sess.CurrentUser().ID, "user id")
	return fs, user
}

func (c *cli) runStatus(ctx context.Context, sess *service.Session, args []string) int {
	fs, user := c.subFlags("status", sess)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	policies := sess.Policies()
	out := make([]statusLine, 0, len(policies))
	for _, p := range policies {
		out = append(out, statusLine{
			PolicyID:       p.ID,
			Title:          p.Title,
			CurrentVersion: p.CurrentVersion,
			Status:         sess.Status(p.ID, *user),
		})
	}
	return c.printJSON(out)
}

func (c *cli) runRequired(ctx context.Context, sess *service.Session, args []string) int {
	fs, user := c.subFlags("required", sess)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	required := sess.RequiredPolicies(*user)
	out := make([]statusLine, 0, len(required))
	for _, p := range required {
		out = append(out, statusLine{
			PolicyID:       p.ID,
			Title:          p.Title,
			CurrentVersion: p.CurrentVersion,
			Status:         sess.Status(p.ID, *user),
		})
	}
	return c.printJSON(out)
}

func (c *cli) runHistory(ctx context.Context, sess *service.Session, args []string) int {
	fs, user := c.subFlags("history", sess)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	return c.printJSON(sess.UserAcceptances(*user))
}

func (c *cli) runRefresh(ctx context.Context, sess *service.Session, args []string) int {
	if err := sess.RefreshData(ctx); err != nil {
		c.fail(err)
		return 1
	}
	ids := []string{}
	for _, p := range sess.Policies() {
		ids = append(ids, p.ID)
	}
	return c.printJSON(map[string]any{"policies": ids})
}

func (c *cli) runAccept(ctx context.Context, sess *service.Session, args []string) int {
	policyID, args := positional(args)

	fs := flag.NewFlagSet("accept", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	version := fs.String("version", "", "version to accept (default: current)")
	company := fs.Bool("company", false, "accept on behalf of a company")
	companyID := fs.String("company-id", "", "company to bind (default: your company)")
	companyName := fs.String("company-name", "", "legal name of the company")
	name := fs.String("name", "", "acceptor name (default: your name)")
	title := fs.String("title", "", "acceptor title")
	email := fs.String("email", "", "acceptor email (default: your email)")
	signature := fs.String("signature", string(domain.SignatureClick), "signature method: click, typed or digital")
	authority := fs.Bool("confirm-authority", false, "confirm you are authorized to bind the company")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if policyID == "" {
		c.fail(errors.New("accept: policy id is required"))
		return 2
	}

	if *version == "" {
		p, ok := findPolicy(sess.Policies(), policyID)
		if !ok {
			c.fail(fmt.Errorf("accept: unknown policy %q, pass -version to submit anyway", policyID))
			return 1
		}
		*version = p.CurrentVersion
	}

	user := sess.CurrentUser()
	typ := domain.AcceptanceIndividual
	var info *domain.CompanyInfo

	if *company {
		typ = domain.AcceptanceCompany
		info = &domain.CompanyInfo{
			CompanyName:        *companyName,
			AcceptorName:       envOr(*name, user.Name),
			AcceptorTitle:      *title,
			AcceptorEmail:      envOr(*email, user.Email),
			AcceptorUserID:     user.ID,
			SignatureMethod:    domain.SignatureMethod(*signature),
			AuthorityConfirmed: *authority,
		}
		if info.CompanyName == "" && sess.CurrentCompany() != nil {
			info.CompanyName = sess.CurrentCompany().Name
		}

		if err := domain.ValidateCompanyAttestation(info, *authority); err != nil {
			c.fail(err)
			return 1
		}
		if !sess.CanUserAcceptForCompany(user.ID, *companyID) {
			c.fail(fmt.Errorf("accept: %s may not accept on behalf of the company", user.ID))
			return 1
		}
	}

	outcome, err := sess.AcceptPolicy(ctx, policyID, *version, typ, info)
	if err != nil {
		c.fail(err)
		return 1
	}
	return c.printJSON(outcome)
}

func (c *cli) runDecline(ctx context.Context, sess *service.Session, args []string) int {
	policyID, args := positional(args)

	fs := flag.NewFlagSet("decline", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	reason := fs.String("reason", "", "why the policy is declined")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if policyID == "" {
		c.fail(errors.New("decline: policy id is required"))
		return 2
	}

	if err := sess.DeclinePolicy(ctx, policyID, *reason); err != nil {
		c.fail(err)
		return 1
	}
	if c.declineErr != nil {
		c.fail(c.declineErr)
		return 1
	}
	return c.printJSON(map[string]string{
		"policyId": policyID,
		"userId":   sess.CurrentUser().ID,
		"result":   "declined",
	})
}

// runToken signs a bearer token with a local Ed25519 key. It is meant for
// development servers configured with the matching public key.
func (c *cli) runToken(args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	keyPath := fs.String("key", "", "PKCS8 PEM Ed25519 private key")
	kid := fs.String("kid", "consent-key", "key id placed in the token header")
	sub := fs.String("sub", "", "subject (user id)")
	iss := fs.String("iss", "", "issuer")
	aud := fs.String("aud", "", "comma separated audience")
	ttl := fs.Duration("ttl", jwtx.DefaultTokenTTL, "lifetime")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *keyPath == "" || *sub == "" {
		c.fail(errors.New("token: -key and -sub are required"))
		return 2
	}

	pemKey, err := os.ReadFile(*keyPath)
	if err != nil {
		c.fail(err)
		return 1
	}
	signer, err := jwtx.NewSigner(*kid, pemKey)
	if err != nil {
		c.fail(err)
		return 1
	}

	var audience []string
	for _, a := range strings.Split(*aud, ",") {
		if a = strings.TrimSpace(a); a != "" {
			audience = append(audience, a)
		}
	}

	now := c.now()
	tok, err := signer.Sign(jwtx.NewClaims(*sub, *iss, audience, *ttl, now))
	if err != nil {
		c.fail(err)
		return 1
	}
	return c.printJSON(map[string]any{
		"token":     tok,
		"expiresAt": now.Add(*ttl).UTC(),
	})
}

// positional splits a leading non-flag argument off args.
func positional(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}

func findPolicy(policies []domain.PolicyData, id string) (domain.PolicyData, bool) {
	for _, p := range policies {
		if p.ID == id {
			return p, true
		}
	}
	return domain.PolicyData{}, false
}
