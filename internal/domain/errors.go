// Package domain defines core types, interfaces, and errors for the
// authorization and audit core.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// AccessDeniedError indicates a clean, error-free evaluation that found
// no permitting rule. It is a normal negative result, not a server fault.
type AccessDeniedError struct {
	Message string
}

func (e *AccessDeniedError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// RuleSyntaxError indicates a malformed rule expression. This is a
// configuration bug surfaced to whoever edits the permission.
type RuleSyntaxError struct {
	Expression string
	Position   int
	Message    string
}

func (e *RuleSyntaxError) Error() string {
	return fmt.Sprintf("rule syntax error at offset %d: %s", e.Position, e.Message)
}

// UnresolvedMacroError indicates a macro name that is neither built in
// nor present in macro storage.
type UnresolvedMacroError struct {
	Name string
}

func (e *UnresolvedMacroError) Error() string {
	return fmt.Sprintf("unresolved macro @%s", e.Name)
}

// MacroCycleError indicates a self-referential macro graph. Expansion is
// aborted the moment a name reappears on the active expansion stack.
type MacroCycleError struct {
	Name  string
	Stack []string
}

func (e *MacroCycleError) Error() string {
	return fmt.Sprintf("macro cycle detected at @%s (expansion stack: %v)", e.Name, e.Stack)
}

// MacroExecutionError indicates a query-backed macro failed or timed out.
type MacroExecutionError struct {
	Name string
	Err  error
}

func (e *MacroExecutionError) Error() string {
	return fmt.Sprintf("macro @%s execution failed: %v", e.Name, e.Err)
}

func (e *MacroExecutionError) Unwrap() error { return e.Err }

// AuthorizationEvaluationError wraps any rule-engine failure that occurs
// during a live access check. It indicates misconfiguration or a storage
// fault and maps to a 5xx-class response, distinct from AccessDeniedError.
type AuthorizationEvaluationError struct {
	Collection string
	Operation  Operation
	Err        error
}

func (e *AuthorizationEvaluationError) Error() string {
	return fmt.Sprintf("authorization evaluation failed for %s %s: %v", e.Operation, e.Collection, e.Err)
}

func (e *AuthorizationEvaluationError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrAccessDenied creates an AccessDeniedError with a formatted message.
func ErrAccessDenied(format string, args ...interface{}) *AccessDeniedError {
	return &AccessDeniedError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}
