package authserver

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures talking to the authorization server.
type ErrorType string

const (
	// ErrorTransport is a network, DNS or timeout failure.
	ErrorTransport ErrorType = "transport_error"
	// ErrorChallenge means the consent reference is malformed, unknown or expired.
	ErrorChallenge ErrorType = "challenge_error"
	// ErrorDecision means the authorization server refused the consent decision.
	ErrorDecision ErrorType = "decision_error"
	// ErrorCredential means no valid service credential could be obtained.
	ErrorCredential ErrorType = "credential_error"
)

var (
	ErrMalformedReference = errors.New("malformed consent reference")
	ErrChallengeNotFound  = errors.New("consent request not found")
	ErrChallengeExpired   = errors.New("consent request expired")
	ErrCredentialRejected = errors.New("service credential rejected")
)

// Error is returned by every operation of Client and CredentialHolder.
type Error struct {
	Type       ErrorType
	Operation  string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v (%v, status %d): %v", e.Type, e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%v (%v): %v", e.Type, e.Operation, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsType reports whether err is an *Error of the given type.
func IsType(err error, errorType ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}
