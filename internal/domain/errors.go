package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Pair with NewSubSystemError for subsystem-specific codes.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrDisabled      = fmt.Errorf("disabled")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrAgentNotFound    = fmt.Errorf("agent not found")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrJournalWrite     = fmt.Errorf("routing journal write failed")

	// Configuration fragment errors.
	ErrFragmentNotFound = fmt.Errorf("fragment not found")
	ErrFragmentName     = fmt.Errorf("invalid fragment name")
	ErrMissingField     = fmt.Errorf("missing required field")
	ErrMissingSection   = fmt.Errorf("missing required section")

	// Model backend errors.
	ErrBackendUnavailable = fmt.Errorf("model backend unavailable")
	ErrLifecycleSupport   = fmt.Errorf("model lifecycle not supported")
	ErrEmptyResponse      = fmt.Errorf("empty model response")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrServerFailure   = fmt.Errorf("upstream server failure")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Coordinator.Handle")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "agent", "fragment"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrServerFailure) ||
		errors.Is(err, ErrBackendUnavailable)
}

// FragmentError reports a configuration fragment that could not be loaded or parsed.
// Kind and Name identify the fragment; Err is one of the fragment sentinels.
type FragmentError struct {
	Kind   FragmentKind
	Name   string
	Err    error
	Detail string // the missing field or section, when known
}

func (e *FragmentError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %q: %s: %s", e.Kind, e.Name, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s %q: %s", e.Kind, e.Name, e.Err)
}

func (e *FragmentError) Unwrap() error { return e.Err }

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeProviderNotFound   ErrorCode = "PROVIDER_NOT_FOUND"
	CodeAgentNotFound      ErrorCode = "AGENT_NOT_FOUND"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeJournalWrite       ErrorCode = "JOURNAL_WRITE"
	CodeFragmentNotFound   ErrorCode = "FRAGMENT_NOT_FOUND"
	CodeFragmentName       ErrorCode = "FRAGMENT_NAME"
	CodeMissingField       ErrorCode = "FRAGMENT_MISSING_FIELD"
	CodeMissingSection     ErrorCode = "FRAGMENT_MISSING_SECTION"
	CodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	CodeLifecycleSupport   ErrorCode = "LIFECYCLE_UNSUPPORTED"
	CodeEmptyResponse      ErrorCode = "EMPTY_RESPONSE"
	CodeContextOverflow    ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeServerFailure      ErrorCode = "SERVER_FAILURE"

	// Subsystem-specific codes resolved through subSystemCodeMap.
	CodeAgentDuplicate  ErrorCode = "AGENT_DUPLICATE"
	CodeAgentTimeout    ErrorCode = "AGENT_TIMEOUT"
	CodeBackendTimeout  ErrorCode = "BACKEND_TIMEOUT"
	CodeConstraintInput ErrorCode = "CONSTRAINT_INVALID"

	// Category fallback codes.
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeDuplicate     ErrorCode = "DUPLICATE"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeDisabled      ErrorCode = "DISABLED"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeProviderError ErrorCode = "PROVIDER_ERROR"
)

var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:      CodeNotFound,
	ErrDuplicate:     CodeDuplicate,
	ErrTimeout:       CodeTimeout,
	ErrDisabled:      CodeDisabled,
	ErrInvalidInput:  CodeInvalidInput,
	ErrProviderError: CodeProviderError,

	ErrProviderNotFound:   CodeProviderNotFound,
	ErrAgentNotFound:      CodeAgentNotFound,
	ErrConfigLoad:         CodeConfigLoad,
	ErrJournalWrite:       CodeJournalWrite,
	ErrFragmentNotFound:   CodeFragmentNotFound,
	ErrFragmentName:       CodeFragmentName,
	ErrMissingField:       CodeMissingField,
	ErrMissingSection:     CodeMissingSection,
	ErrBackendUnavailable: CodeBackendUnavailable,
	ErrLifecycleSupport:   CodeLifecycleSupport,
	ErrEmptyResponse:      CodeEmptyResponse,
	ErrContextOverflow:    CodeContextOverflow,
	ErrRateLimit:          CodeRateLimit,
	ErrAuthInvalid:        CodeAuthInvalid,
	ErrServerFailure:      CodeServerFailure,
}

var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"agent":    CodeAgentNotFound,
		"fragment": CodeFragmentNotFound,
		"provider": CodeProviderNotFound,
	},
	ErrDuplicate: {
		"agent": CodeAgentDuplicate,
	},
	ErrTimeout: {
		"agent":   CodeAgentTimeout,
		"backend": CodeBackendTimeout,
	},
	ErrInvalidInput: {
		"constraint": CodeConstraintInput,
		"fragment":   CodeFragmentName,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	var fe *FragmentError
	if errors.As(err, &fe) {
		if code, ok := errorCodeMap[fe.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
