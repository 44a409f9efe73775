package domain

import "fmt"

// ConfigurationError is fatal and raised before any turn runs: cyclic signal
// dependencies, unknown signal keys, malformed strategy or methodology definitions.
type ConfigurationError struct {
	Component string
	Reason    string
	Err       error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error in %s: %s: %v", e.Component, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func NewConfigurationError(component, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Component: component, Reason: fmt.Sprintf(format, args...)}
}

// ExternalCallError wraps a failed call to an external collaborator.
type ExternalCallError struct {
	Collaborator string
	Err          error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Collaborator, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }

func NewExternalCallError(collaborator string, err error) *ExternalCallError {
	return &ExternalCallError{Collaborator: collaborator, Err: err}
}

// DataIntegrityError is surfaced to the caller and fails the turn. Writes already
// committed by earlier stages are kept.
type DataIntegrityError struct {
	Entity string
	Reason string
	Err    error
}

func (e *DataIntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data integrity violation on %s: %s: %v", e.Entity, e.Reason, e.Err)
	}
	return fmt.Sprintf("data integrity violation on %s: %s", e.Entity, e.Reason)
}

func (e *DataIntegrityError) Unwrap() error { return e.Err }

func NewDataIntegrityError(entity, format string, args ...any) *DataIntegrityError {
	return &DataIntegrityError{Entity: entity, Reason: fmt.Sprintf(format, args...)}
}
