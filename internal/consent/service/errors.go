package service

import (
	"errors"
	"fmt"
)

var (
	ErrPolicyNotFound     = errors.New("policy not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrCompanyNotFound    = errors.New("company not found")
	ErrAcceptanceNotFound = errors.New("acceptance not found")

	ErrForbidden         = errors.New("caller may not perform this action")
	ErrNotAuthorized     = errors.New("user is not authorized to accept for the company")
	ErrIndividualRefused = errors.New("organization does not allow individual acceptance")
	ErrStaleVersion      = errors.New("version is not the current version")
	ErrConflict          = errors.New("acceptance id already used for a different record")
	ErrAlreadyRevoked    = errors.New("acceptance already revoked")
	ErrVersionExists     = errors.New("version already published")
	ErrVersionNotNewer   = errors.New("version predates the current version")
	ErrPolicyExists      = errors.New("policy already exists")

	ErrSessionClosed = errors.New("session closed")
	ErrNoRemote      = errors.New("no remote client configured")
)

// statusCoder is implemented by transport errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

func statusOf(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

// SubmissionError reports that the remote write of an acceptance failed. The
// local ledger is left untouched. StatusCode is zero for transport failures.
type SubmissionError struct {
	PolicyID   string
	StatusCode int
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("submit acceptance for %s: status %d: %v", e.PolicyID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("submit acceptance for %s: %v", e.PolicyID, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// FetchError reports that loading the catalog failed. There is no automatic
// retry.
type FetchError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
