package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrIncompleteRoster   = errors.New("please fill in details for all team members")
	ErrRemoteFailure      = errors.New("remote request failed")
	ErrMalformedSession   = errors.New("malformed persisted session")
	ErrMissingEvent       = errors.New("cannot use ticket of a deleted event")
	ErrSoldOut            = errors.New("event is sold out")
	ErrSubmissionInFlight = errors.New("registration already in progress")
)

// FieldError names one empty roster field.
type FieldError struct {
	Index int    `json:"index"`
	Field string `json:"field"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("teamMembers[%d].%s", e.Index, e.Field)
}

// RosterError wraps ErrIncompleteRoster with the offending fields.
type RosterError struct {
	Fields []FieldError
}

func (e *RosterError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.String()
	}
	return fmt.Sprintf("%s: %s", ErrIncompleteRoster.Error(), strings.Join(names, ", "))
}

func (e *RosterError) Unwrap() error {
	return ErrIncompleteRoster
}
