// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types, display and exit codes for prism commands.
//
// Handlers always return errors; main decides how to show them and which
// exit code to use.

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/prism/internal/backend"
	"github.com/jeranaias/prism/internal/config"
	"github.com/jeranaias/prism/internal/credential"
	"github.com/jeranaias/prism/internal/media"
	"github.com/jeranaias/prism/internal/orchestrator"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError is a command failure with context.
type CommandError struct {
	Command string
	Action  string
	Reason  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError is invalid user input.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError is a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewCommandError creates a new command error.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{Command: command, Action: action, Reason: reason, Err: err}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// NewValidationErrorWithExample creates a validation error with an example.
func NewValidationErrorWithExample(field, value, reason, example string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason, Example: example}
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// reportedError wraps an error the handler has already shown to the user.
// It still sets the exit code but DisplayError skips it.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// reported marks err as already displayed.
func reported(err error) error {
	if err == nil {
		return nil
	}
	return reportedError{err}
}

// IsReported reports whether err was already displayed by its handler.
func IsReported(err error) bool {
	var r reportedError
	return errors.As(err, &r)
}

// ErrMissingArgument reports a required argument that was not given.
func ErrMissingArgument(argName, usage string) error {
	return NewValidationErrorWithExample(argName, "", "required argument missing", usage)
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err to w, as JSON when jsonMode is set.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil || IsReported(err) {
		return
	}
	if jsonMode {
		DisplayErrorJSON(w, err)
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
}

// DisplayErrorJSON writes err as a JSON object with its category.
func DisplayErrorJSON(w io.Writer, err error) {
	out := map[string]interface{}{
		"success":    false,
		"error":      err.Error(),
		"error_type": errorType(err),
		"exit_code":  GetExitCode(err),
	}

	var cmdErr *CommandError
	var valErr *ValidationError
	var nfErr *NotFoundError
	switch {
	case errors.As(err, &valErr):
		out["field"] = valErr.Field
		out["value"] = valErr.Value
		if valErr.Example != "" {
			out["example"] = valErr.Example
		}
	case errors.As(err, &nfErr):
		out["resource"] = nfErr.Resource
		out["id"] = nfErr.ID
	case errors.As(err, &cmdErr):
		out["command"] = cmdErr.Command
		out["action"] = cmdErr.Action
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(out)
}

func errorType(err error) string {
	var valErr *ValidationError
	var nfErr *NotFoundError
	var cmdErr *CommandError
	switch {
	case errors.As(err, &valErr):
		return "validation_error"
	case errors.As(err, &nfErr):
		return "not_found_error"
	case errors.As(err, &cmdErr):
		return "command_error"
	default:
		return "generic_error"
	}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode maps an error to a process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var valErr *ValidationError
	var nfErr *NotFoundError
	var cfgErrs config.ValidateErrors
	var backendErr *backend.Error
	var precondErr *orchestrator.PreconditionError

	switch {
	case errors.As(err, &valErr),
		errors.As(err, &precondErr),
		errors.Is(err, orchestrator.ErrEmpty),
		errors.Is(err, media.ErrTooLarge):
		return ExitUsageError
	case errors.As(err, &nfErr):
		return ExitNotFoundError
	case errors.As(err, &cfgErrs), errors.Is(err, credential.ErrNoKey):
		return ExitConfigError
	case errors.Is(err, credential.ErrNotGranted),
		errors.Is(err, credential.ErrAbandoned),
		errors.Is(err, credential.ErrNoHost):
		return ExitAuthError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.As(err, &backendErr):
		return ExitNetworkError
	}
	return ExitGeneralError
}
