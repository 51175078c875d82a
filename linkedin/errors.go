package linkedin

import (
	"errors"
	"fmt"
)

// Failure classes. Use errors.Is to test which class an error belongs to.
var (
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	ErrRefreshFailed       = errors.New("token refresh failed")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrBadRequest          = errors.New("bad request")
	ErrRateLimited         = errors.New("rate limited")
	ErrTransient           = errors.New("transient failure")
	ErrNoVariant           = errors.New("no endpoint variant applies")
)

// ProviderError is an OAuth error response from the token endpoint
type ProviderError struct {
	Kind        error  // ErrTokenExchangeFailed or ErrRefreshFailed
	Code        string // the "error" field, e.g. invalid_grant
	Description string // the "error_description" field
	Status      int
	Body        string
}

func (e *ProviderError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("%v: %s: %s", e.Kind, e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("%v: %s", e.Kind, e.Code)
	case e.Body != "":
		return fmt.Sprintf("%v: HTTP %d: %s", e.Kind, e.Status, e.Body)
	}
	return fmt.Sprintf("%v: HTTP %d", e.Kind, e.Status)
}

func (e *ProviderError) Unwrap() error {
	return e.Kind
}

// APIError is a failed call to a LinkedIn REST endpoint
type APIError struct {
	Kind       error  // one of ErrUnauthorized, ErrBadRequest, ErrRateLimited, ErrTransient
	Variant    string // the endpoint variant that was attempted, if any
	Status     int    // zero for network failures
	Body       string // the provider's diagnostic payload, verbatim
	RetryAfter string // the Retry-After header, verbatim
	Err        error  // underlying network error for transient failures
}

func (e *APIError) Error() string {
	msg := e.Kind.Error()
	if e.Variant != "" {
		msg += " (" + e.Variant + ")"
	}
	switch {
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	case e.Status != 0:
		msg += fmt.Sprintf(": HTTP %d", e.Status)
		if e.Body != "" {
			msg += ": " + e.Body
		}
	}
	if e.RetryAfter != "" {
		msg += " (retry after " + e.RetryAfter + ")"
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// classify maps an HTTP status to a failure class
func classify(status int) error {
	switch {
	case status == 401 || status == 403:
		return ErrUnauthorized
	case status == 429:
		return ErrRateLimited
	case status >= 500:
		return ErrTransient
	}
	return ErrBadRequest
}
