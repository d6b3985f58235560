package iconmaker

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind string

const (
	KindFetch      Kind = "fetch"
	KindImage      Kind = "image"
	KindConversion Kind = "conversion"
	KindValue      Kind = "value"
)

var (
	ErrEmptyImageList   = errors.New("image list is empty")
	ErrUnknownFormat    = errors.New("unrecognized target format")
	ErrNoUsableImage    = errors.New("no usable image")
	ErrInvalidContainer = errors.New("produced container is invalid")
)

// Error is the error type returned by this package. Terminal failures of Convert
// carry every notice recorded before the failure.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
	Notices []Notice
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s] %s", e.Kind, e.Op, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if n := len(e.Notices); n > 0 {
		fmt.Fprintf(&b, " (%d notices)", n)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap annotates err with a kind. An err that already is an *Error is returned unchanged.
func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// IsKind checks whether the first *Error in the chain has the provided kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in the chain, or "" when there is none.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return ""
}

// Notice is a non-fatal diagnostic about one reference that was dropped or degraded.
type Notice struct {
	Ref   string
	Stage State
	Err   error
}

func (n Notice) String() string {
	return fmt.Sprintf("%s: %s: %v", n.Stage, n.Ref, n.Err)
}
