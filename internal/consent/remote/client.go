// Package remote is the HTTP client of the consent API used by client
// sessions and consentctl.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/service"
)

const maxResponseBytes = 8 << 20

// Client calls the endpoints configured in a session's dataSource. Endpoint
// URLs may carry an "{id}" or "{userId}" placeholder; without one the value
// is appended as a path segment.
type Client struct {
	Endpoints  service.APIEndpoints
	HTTPClient *http.Client

	// Token is sent as a bearer token when set.
	Token string

	// UserAgent overrides the default User-Agent header.
	UserAgent string
}

var _ service.Remote = (*Client)(nil)

func NewClient(endpoints service.APIEndpoints, token string) *Client {
	return &Client{
		Endpoints: endpoints,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Token:     token,
		UserAgent: "consent-remote/1",
	}
}

// EndpointsFor derives the standard endpoint set of a consent server at
// baseURL.
func EndpointsFor(baseURL string) service.APIEndpoints {
	base := strings.TrimSuffix(baseURL, "/") + "/v1"
	return service.APIEndpoints{
		GetPolicies:             base + "/policies",
		GetPolicy:               base + "/policies/{id}",
		SubmitAcceptance:        base + "/acceptances",
		GetUserAcceptances:      base + "/users/{userId}/acceptances",
		GetUsers:                base + "/users",
		GetCompanies:            base + "/companies",
		GetOrganizationSettings: base + "/organization/settings",
	}
}

// FetchPolicies loads the catalog with ledgers.
func (c *Client) FetchPolicies(ctx context.Context) ([]domain.PolicyData, error) {
	var out []domain.PolicyData
	if err := c.getJSON(ctx, c.Endpoints.GetPolicies, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchPolicy(ctx context.Context, policyID string) (domain.PolicyData, error) {
	u, err := expand(c.Endpoints.GetPolicy, "id", policyID)
	if err != nil {
		return domain.PolicyData{}, err
	}
	var out domain.PolicyData
	if err := c.getJSON(ctx, u, &out); err != nil {
		return domain.PolicyData{}, err
	}
	return out, nil
}

// SubmitAcceptance posts a to submitAcceptance. Both a fresh record (201)
// and an idempotent replay (200) count as success.
func (c *Client) SubmitAcceptance(ctx context.Context, a domain.PolicyAcceptance) error {
	if c.Endpoints.SubmitAcceptance == "" {
		return ErrEndpointNotConfigured
	}
	resp, err := c.do(ctx, http.MethodPost, c.Endpoints.SubmitAcceptance, a)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusCreated, http.StatusOK)
}

// DeclinePolicy reports a decline. The URL is derived from getPolicy.
func (c *Client) DeclinePolicy(ctx context.Context, policyID, reason string) error {
	u, err := expand(c.Endpoints.GetPolicy, "id", policyID)
	if err != nil {
		return err
	}
	body := map[string]string{"reason": reason}
	resp, err := c.do(ctx, http.MethodPost, u+"/decline", body)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

func (c *Client) FetchUserAcceptances(ctx context.Context, userID string) ([]domain.PolicyAcceptance, error) {
	u, err := expand(c.Endpoints.GetUserAcceptances, "userId", userID)
	if err != nil {
		return nil, err
	}
	var out []domain.PolicyAcceptance
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchUsers(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	if err := c.getJSON(ctx, c.Endpoints.GetUsers, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchCompanies(ctx context.Context) ([]domain.Company, error) {
	var out []domain.Company
	if err := c.getJSON(ctx, c.Endpoints.GetCompanies, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchOrganizationSettings(ctx context.Context) (domain.OrganizationSettings, error) {
	var out domain.OrganizationSettings
	if err := c.getJSON(ctx, c.Endpoints.GetOrganizationSettings, &out); err != nil {
		return domain.OrganizationSettings{}, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, target any) error {
	if endpoint == "" {
		return ErrEndpointNotConfigured
	}
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, target, http.StatusOK)
}

// do performs a request, encoding body as JSON when non-nil.
func (c *Client) do(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// decodeJSON checks the status against expected and decodes the body into
// target. A nil target discards the body.
func decodeJSON(resp *http.Response, target any, expected ...int) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if !slices.Contains(expected, resp.StatusCode) {
		return parseErrorResponse(resp, body)
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func checkStatusNoContent(resp *http.Response) error {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		return parseErrorResponse(resp, body)
	}
	return nil
}

func expand(tmpl, key, value string) (string, error) {
	if tmpl == "" {
		return "", ErrEndpointNotConfigured
	}
	escaped := url.PathEscape(value)
	placeholder := "{" + key + "}"
	if strings.Contains(tmpl, placeholder) {
		return strings.ReplaceAll(tmpl, placeholder, escaped), nil
	}
	return strings.TrimSuffix(tmpl, "/") + "/" + escaped, nil
}
