package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/formsync/internal/ir"
)

// ErrConfiguration is matched (via errors.Is) by every configuration-class
// error: DuplicateFieldError, ConfigurationError and UnknownFieldError.
var ErrConfiguration = errors.New("configuration error")

// ErrLoopClosed is returned by Loop.Emit after the loop has been stopped.
var ErrLoopClosed = errors.New("event loop closed")

// UnknownFieldError reports a reaction that references a FieldID absent
// from the registry. Raised at dispatch time for that reaction.
type UnknownFieldError struct {
	Field    ir.FieldID
	Reaction string // Empty for direct registry lookups
}

// Error implements the error interface.
func (e *UnknownFieldError) Error() string {
	if e.Reaction != "" {
		return fmt.Sprintf("unknown field %q (reaction %s)", e.Field, e.Reaction)
	}
	return fmt.Sprintf("unknown field %q", e.Field)
}

// Is makes UnknownFieldError a configuration error.
func (e *UnknownFieldError) Is(target error) bool {
	return target == ErrConfiguration
}

// DuplicateFieldError reports a registration collision.
type DuplicateFieldError struct {
	Field ir.FieldID
}

// Error implements the error interface.
func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("duplicate field %q", e.Field)
}

// Is makes DuplicateFieldError a configuration error.
func (e *DuplicateFieldError) Is(target error) bool {
	return target == ErrConfiguration
}

// ConfigurationError reports a malformed rule table or registration, e.g.
// a reaction writing an attribute its target field has no capability for.
type ConfigurationError struct {
	Reaction string
	Field    ir.FieldID
	Message  string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	switch {
	case e.Reaction != "" && e.Field != "":
		return fmt.Sprintf("configuration: reaction %s, field %q: %s", e.Reaction, e.Field, e.Message)
	case e.Reaction != "":
		return fmt.Sprintf("configuration: reaction %s: %s", e.Reaction, e.Message)
	case e.Field != "":
		return fmt.Sprintf("configuration: field %q: %s", e.Field, e.Message)
	default:
		return "configuration: " + e.Message
	}
}

// Is makes ConfigurationError match ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ReentrantDispatchError reports Emit called while the same coordinator is
// already dispatching.
type ReentrantDispatchError struct {
	Kind   ir.EventKind // Kind of the rejected event
	Active ir.EventKind // Kind of the dispatch in progress
}

// Error implements the error interface.
func (e *ReentrantDispatchError) Error() string {
	return fmt.Sprintf("reentrant dispatch: emit %q while dispatching %q", e.Kind, e.Active)
}

// DispatchError wraps a failure that aborted an Emit call.
//
// Applied is the number of reactions of the same event that had already been
// applied; their writes are kept.
type DispatchError struct {
	Event    ir.Event
	Reaction string
	Applied  int
	Err      error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s from %s: reaction %s (after %d applied): %v",
		e.Event.Kind, e.Event.Source, e.Reaction, e.Applied, e.Err)
}

// Unwrap returns the underlying error.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsUnknownField reports whether err is or wraps an UnknownFieldError.
func IsUnknownField(err error) bool {
	var ue *UnknownFieldError
	return errors.As(err, &ue)
}

// IsDuplicateField reports whether err is or wraps a DuplicateFieldError.
func IsDuplicateField(err error) bool {
	var de *DuplicateFieldError
	return errors.As(err, &de)
}

// IsConfiguration reports whether err is any configuration-class error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsReentrant reports whether err is or wraps a ReentrantDispatchError.
func IsReentrant(err error) bool {
	var re *ReentrantDispatchError
	return errors.As(err, &re)
}
