package http

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
	Keys     string `json:"keys"`
}

// ValidationErrorResponse is the 400 body for rejected input. Fields maps
// each offending field to a message.
type ValidationErrorResponse struct {
	Error            string            `json:"error"`
	ErrorDescription string            `json:"error_description,omitempty"`
	Fields           map[string]string `json:"fields,omitempty"`
}

// ReasonRequest is the body of decline and revoke calls.
type ReasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CanAcceptResponse struct {
	UserID    string `json:"userId"`
	CompanyID string `json:"companyId,omitempty"`
	CanAccept bool   `json:"canAccept"`
}
