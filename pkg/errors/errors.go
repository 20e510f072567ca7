// Package errors provides custom error types for the hastewatch system.
// These errors enable programmatic error checking (errors.Is / errors.As)
// for the three failure classes of the service: bootstrap failures, change
// translation invariant violations, and rebuild failures.
package errors

import (
	"errors"
	"fmt"
)

// Aliases for the standard library so callers need a single errors import.
var (
	New = errors.New
	Is  = errors.Is
	As  = errors.As
)

// Common sentinel errors for the hastewatch system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrBootstrap indicates that the service failed to reach ready
	ErrBootstrap = errors.New("bootstrap failed")

	// ErrInvariantViolation indicates a change event contradicted the in-memory map
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrRebuildFailed indicates a rebuild or its persistence reported an error
	ErrRebuildFailed = errors.New("rebuild failed")

	// ErrNotStarted indicates an operation that needs a bootstrapped service
	ErrNotStarted = errors.New("service not started")

	// ErrAlreadyRunning indicates Run was called twice
	ErrAlreadyRunning = errors.New("service already running")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "yaml", "cbor", "json"
	File    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, file string, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		File:    file,
		Message: message,
		Err:     err,
	}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "stat", "rename", "listen", "watch"
	Path      string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("IO error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   message,
		Err:       err,
	}
}

// ResourceError represents an error during resource operations
type ResourceError struct {
	Operation string // "create", "load", "construct"
	Resource  string // "config", "index", "server"
	ID        string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ResourceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("failed to %s %s %s: %s", e.Operation, e.Resource, e.ID, e.Message)
	}
	return fmt.Sprintf("failed to %s %s: %s", e.Operation, e.Resource, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NewResourceError creates a new ResourceError
func NewResourceError(operation, resource, id string, err error) *ResourceError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ResourceError{
		Operation: operation,
		Resource:  resource,
		ID:        id,
		Message:   message,
		Err:       err,
	}
}

// Bootstrap phases.
const (
	PhaseConstruct = "construct"
	PhaseListen    = "listen"
	PhaseWatch     = "watch"
)

// BootstrapError reports which startup phase kept the service from reaching ready.
type BootstrapError struct {
	Phase    string // PhaseConstruct, PhaseListen or PhaseWatch
	Resource string // index ID, listen address or root directory
	Err      error
}

// Error implements the error interface
func (e *BootstrapError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("bootstrap failed in %s phase (%s): %v", e.Phase, e.Resource, e.Err)
	}
	return fmt.Sprintf("bootstrap failed in %s phase: %v", e.Phase, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *BootstrapError) Is(target error) bool {
	return target == ErrBootstrap
}

// NewBootstrapError creates a new BootstrapError
func NewBootstrapError(phase, resource string, err error) *BootstrapError {
	return &BootstrapError{Phase: phase, Resource: resource, Err: err}
}

// Translation failure reasons.
const (
	ReasonUnknownRoot = "unknown root"
	ReasonUnknownPath = "path not in map"
	ReasonStat        = "stat failed"
)

// TranslationError reports a change event that could not be turned into a rebuild input.
type TranslationError struct {
	Root   string
	Path   string
	Type   string
	Reason string
	Err    error
}

// Error implements the error interface
func (e *TranslationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot translate %s event for %s: %s: %v", e.Type, e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("cannot translate %s event for %s: %s", e.Type, e.Path, e.Reason)
}

// Unwrap implements errors.Unwrap
func (e *TranslationError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support. Unknown roots and unknown paths are
// invariant violations; a failed stat is an ordinary I/O race.
func (e *TranslationError) Is(target error) bool {
	if target != ErrInvariantViolation {
		return false
	}
	return e.Reason == ReasonUnknownRoot || e.Reason == ReasonUnknownPath
}

// Rebuild stages.
const (
	StageRebuild = "rebuild"
	StagePersist = "persist"
)

// RebuildError reports a failed rebuild or a failed write of its result.
type RebuildError struct {
	Index string
	Stage string // StageRebuild or StagePersist
	Path  string // cache file for StagePersist
	Err   error
}

// Error implements the error interface
func (e *RebuildError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s of index %s (%s) failed: %v", e.Stage, e.Index, e.Path, e.Err)
	}
	return fmt.Sprintf("%s of index %s failed: %v", e.Stage, e.Index, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *RebuildError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *RebuildError) Is(target error) bool {
	return target == ErrRebuildFailed
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsBootstrapFailure checks if an error kept the service from starting
func IsBootstrapFailure(err error) bool {
	return errors.Is(err, ErrBootstrap)
}

// IsInvariantViolation checks if an error is a translation invariant violation
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}

// IsRebuildFailure checks if an error came from a rebuild or its persistence
func IsRebuildFailure(err error) bool {
	return errors.Is(err, ErrRebuildFailed)
}

// Helper wrapping functions for common patterns

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}

// WrapResource wraps an error as a ResourceError
func WrapResource(operation, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	return NewResourceError(operation, resource, id, err)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err.Error(), err)
}
