// Package apperr holds the error kinds surfaced to callers of the scheduling
// and automation services.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed input before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// DuplicateNameError is returned when an owner already has a campaign with
// the requested name.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("campaign name %q already exists", e.Name)
}

// RecipientResolutionError means a group, label or number list could not be
// turned into addresses.
type RecipientResolutionError struct {
	Source string
	Err    error
}

func (e *RecipientResolutionError) Error() string {
	return fmt.Sprintf("resolve recipients from %s: %v", e.Source, e.Err)
}

func (e *RecipientResolutionError) Unwrap() error { return e.Err }

// DeliveryError is logged and counted, never returned to a user.
type DeliveryError struct {
	JobID string
	Part  string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s of job %s: %v", e.Part, e.JobID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var v *NotFoundError
	return errors.As(err, &v)
}

func IsDuplicateName(err error) bool {
	var v *DuplicateNameError
	return errors.As(err, &v)
}

func IsRecipientResolution(err error) bool {
	var v *RecipientResolutionError
	return errors.As(err, &v)
}
