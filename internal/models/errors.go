package models

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrFatalAPI marks service errors that will not go away on a re-run
// without operator action (bad credentials, billing, quota).
var ErrFatalAPI = errors.New("fatal API error")

// ServiceError is a failure reported by, or while reaching, the hosted service.
type ServiceError struct {
	Op         string // Operation that failed, e.g. "upload file"
	StatusCode int    // HTTP status, 0 for transport failures
	Type       string // Service error type, if any
	Code       string // Service error code, if any
	Message    string // Human-readable message
	Err        error  // Underlying cause
}

func (e *ServiceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "%d ", e.StatusCode)
	}
	switch {
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString("service error")
	}
	return b.String()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrFatalAPI) match fatal service errors.
func (e *ServiceError) Is(target error) bool {
	return target == ErrFatalAPI && e.Fatal()
}

// Fatal reports authentication, permission, billing and rate-limit failures.
func (e *ServiceError) Fatal() bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests, http.StatusPaymentRequired:
		return true
	}
	return IsFatalMessage(e.Message) || (e.Err != nil && IsFatalMessage(e.Err.Error()))
}

// fatalPatterns are substrings that indicate an account-level failure.
var fatalPatterns = []string{
	"credit balance",
	"rate limit",
	"quota exceeded",
	"insufficient_quota",
	"billing",
	"invalid api key",
	"incorrect api key",
	"authentication",
	"unauthorized",
	"forbidden",
	"http 401",
	"http 403",
	"status code: 401",
	"status code: 403",
}

// IsFatalMessage reports whether msg looks like an account-level failure.
func IsFatalMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range fatalPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// AsServiceError extracts a *ServiceError from err's chain.
func AsServiceError(err error) (*ServiceError, bool) {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}
