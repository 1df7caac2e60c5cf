package model

import "errors"

// ErrorKind classifies expected failure modes so callers can react
// programmatically instead of parsing messages.
type ErrorKind string

const (
	ErrKindConnectionFailed      ErrorKind = "connection_failed"
	ErrKindAuthFailed            ErrorKind = "auth_failed"
	ErrKindHandshakeFailed       ErrorKind = "handshake_failed"
	ErrKindPermissionDenied      ErrorKind = "permission_denied"
	ErrKindUnsupportedCapability ErrorKind = "unsupported_capability"
	ErrKindValidation            ErrorKind = "validation_error"
	ErrKindTruncatedScan         ErrorKind = "truncated_scan"
)

// Job-table invariant violations surfaced by the orchestrator.
var (
	ErrJobNotFound       = errors.New("job_not_found")
	ErrInvalidTransition = errors.New("invalid_job_transition")
)
