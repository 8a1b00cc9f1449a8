// Package coorderrors defines the error kinds of spec.md §7 and maps
// them to REST status codes, following the teacher's
// internal/api/server.go notFoundError pattern generalized to a typed
// kind instead of a single sentinel type.
package coorderrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound                Kind = "not_found"
	KindValidation              Kind = "validation"
	KindStorageUnavailable      Kind = "storage_unavailable"
	KindSandboxCreationFailure  Kind = "sandbox_creation_failure"
	KindSandboxNotFound         Kind = "sandbox_not_found"
	KindCommandExecutionFailure Kind = "command_execution_failure"
	KindCommandTimeout          Kind = "command_timeout"
	KindLLMFailure              Kind = "llm_failure"
	KindAgentAlreadyRunning     Kind = "agent_already_running"
	KindTransitionViolation     Kind = "transition_violation"
	KindParseFailure            Kind = "parse_failure"
	KindTimeout                 Kind = "timeout"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// StatusCode maps an error kind to its REST status code per spec.md §7.
func StatusCode(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindNotFound, KindSandboxNotFound:
		return http.StatusNotFound
	case KindValidation, KindTransitionViolation, KindAgentAlreadyRunning:
		return http.StatusBadRequest
	case KindStorageUnavailable, KindSandboxCreationFailure, KindCommandExecutionFailure,
		KindCommandTimeout, KindLLMFailure, KindParseFailure, KindTimeout:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the string error code surfaced in REST error bodies.
func Code(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal_error"
	}
	return string(e.Kind)
}

func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
