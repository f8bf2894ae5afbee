package fleet

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRetryLater marks errors caused by a conflicting operation that is
// still in flight. They are not permanent failures.
var ErrRetryLater = errors.New("conflicting operation in progress, retry later")

// ValidationError indicates an invalid input to a fleet operation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

// NotFoundError indicates a named resource does not exist.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// ProtectedError is returned when a destructive action targets a protected
// environment.
type ProtectedError struct {
	Env string
}

func (e *ProtectedError) Error() string {
	return fmt.Sprintf("environment %q is protected and cannot be deleted", e.Env)
}

// OperationKind names a guarded long-running operation.
type OperationKind string

const (
	OperationBackup  OperationKind = "backup"
	OperationRestore OperationKind = "restore"
)

// InProgressError is returned when a guard container for the same
// (environment, world-group, operation) already exists.
type InProgressError struct {
	Kind      OperationKind
	Container string
}

func (e *InProgressError) Error() string {
	return fmt.Sprintf("%s already in progress (container %q exists)", e.Kind, e.Container)
}

func (e *InProgressError) Unwrap() error { return ErrRetryLater }

// RestoreTargetRunningError is returned when a restore targets a world whose
// server is still running.
type RestoreTargetRunningError struct {
	Container string
}

func (e *RestoreTargetRunningError) Error() string {
	return fmt.Sprintf("cannot restore while %q is running, stop it first", e.Container)
}

func (e *RestoreTargetRunningError) Unwrap() error { return ErrRetryLater }

// ToolError carries the raw output of a delegated tool that exited non-zero.
type ToolError struct {
	Tool     string
	ExitCode int
	Output   string
}

func (e *ToolError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, out)
}

// SchemaError indicates a delegated tool returned output that does not match
// the expected shape.
type SchemaError struct {
	Field string
	Raw   string
	Err   error
}

func (e *SchemaError) Error() string {
	msg := "unexpected tool output"
	if e.Field != "" {
		msg += ": field " + e.Field
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() error { return e.Err }
