package rest

import (
	"errors"
	"fmt"
)

// Error is a non-2xx response from the API. Callers can use errors.As to
// extract it:
//
//	var apiErr *rest.Error
//	if errors.As(err, &apiErr) && apiErr.Type == rest.TypeNotFound { ... }
type Error struct {
	// Type is the error discriminator sent by the server (e.g. "NotFound").
	Type string `json:"type"`
	// RetryAfter is set on rate limited responses, in milliseconds.
	RetryAfter int64 `json:"retry_after,omitempty"`

	StatusCode int    `json:"-"`
	Method     string `json:"-"`
	Path       string `json:"-"`
}

func (e *Error) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("rest: %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("rest: %s %s: %s (%d)", e.Method, e.Path, e.Type, e.StatusCode)
}

// Error types returned by the API.
const (
	TypeNotFound          = "NotFound"
	TypeMissingPermission = "MissingPermission"
	TypeInvalidSession    = "InvalidSession"
	TypeNotAuthenticated  = "NotAuthenticated"
	TypeUnknownUser       = "UnknownUser"
	TypeUnknownChannel    = "UnknownChannel"
	TypeUnknownServer     = "UnknownServer"
	TypeAlreadyFriends    = "AlreadyFriends"
	TypeBlocked           = "Blocked"
)

// IsStatus reports whether err is an *Error with the given HTTP status.
func IsStatus(err error, code int) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == code
	}
	return false
}

// IsType reports whether err is an *Error with the given type.
func IsType(err error, t string) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type == t
	}
	return false
}
