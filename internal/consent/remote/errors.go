package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/consent/pkg/httpx"
)

var ErrEndpointNotConfigured = errors.New("remote: endpoint not configured")

// APIError is a non-2xx response from the consent API.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("remote: %d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("remote: %d %s: %s", e.StatusCode, e.Code, e.Description)
}

// HTTPStatus exposes the status so callers can classify the failure without
// importing this package.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// parseErrorResponse builds an APIError from an error body. Bodies that are
// not the API's JSON error shape fall back to the status text.
func parseErrorResponse(resp *http.Response, body []byte) error {
	var errResp httpx.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       http.StatusText(resp.StatusCode),
	}
}
