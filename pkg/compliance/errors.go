package compliance

import (
	"errors"
	"fmt"
)

// ErrInternalContract marks a validator defect: a response that violates its
// own contract, or an evaluator that failed. It is never the caller's fault.
var ErrInternalContract = errors.New("compliance: internal contract violation")

// InputError reports a request that does not satisfy the request contract.
// Only the first violation is reported.
type InputError struct {
	// Path is a JSON pointer into the request; "" is the document root.
	Path    string
	Message string
}

func (e *InputError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (at %s)", e.Message, e.Path)
}

func inputErrorf(path, format string, args ...any) *InputError {
	return &InputError{Path: path, Message: fmt.Sprintf(format, args...)}
}

// DefectError wraps ErrInternalContract with what went wrong.
type DefectError struct {
	Path    string
	Message string
	Err     error
}

func (e *DefectError) Error() string {
	msg := "internal defect: " + e.Message
	if e.Path != "" {
		msg += " at " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DefectError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInternalContract}
	}
	return []error{ErrInternalContract, e.Err}
}
