// Package fault defines the error taxonomy shared by the reasoning
// services. Callers classify failures with errors.As against these types
// or with the Is* helpers.
package fault

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input: bad shape, out-of-range value,
// or an unknown enum member. Raised before any write occurs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError for a field.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConfigurationError reports a rule or policy parameter that should never
// have passed activation, such as an unsupported rule category or a
// malformed threshold.
type ConfigurationError struct {
	Subject string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Subject, e.Reason)
}

// Configuration builds a ConfigurationError.
func Configuration(subject, reason string) error {
	return &ConfigurationError{Subject: subject, Reason: reason}
}

// ScoringError reports that the anomaly model failed to produce a result.
// The scorer must surface this rather than defaulting to a score.
type ScoringError struct {
	ProcessedEventID string
	Err              error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring failed for event %s: %v", e.ProcessedEventID, e.Err)
}

func (e *ScoringError) Unwrap() error { return e.Err }

// NotFoundError reports a lookup by id with no match.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ImmutabilityViolation reports an attempted mutation or deletion of a
// persisted write-once record. It is always surfaced, never swallowed.
type ImmutabilityViolation struct {
	Resource string
	ID       string
}

func (e *ImmutabilityViolation) Error() string {
	return fmt.Sprintf("%s %s is immutable and cannot be modified or deleted", e.Resource, e.ID)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsImmutability reports whether err is an ImmutabilityViolation.
func IsImmutability(err error) bool {
	var iv *ImmutabilityViolation
	return errors.As(err, &iv)
}
