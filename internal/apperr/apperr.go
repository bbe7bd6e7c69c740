// Package apperr defines the error kinds surfaced by the conversion pipeline.
//
// Components create an *Error at their boundary; callers branch on the kind
// with errors.Is(err, apperr.ErrInvalidResponse) or KindOf(err).
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidURL           Kind = "invalid_url"
	KindExtractionFailed     Kind = "extraction_failed"
	KindInterpretationFailed Kind = "interpretation_failed"
	KindInvalidResponse      Kind = "invalid_response"
	KindInvalidDate          Kind = "invalid_date"
	KindInvalidInput         Kind = "invalid_input"
	KindUnknown              Kind = "unknown"
)

// Sentinels for errors.Is. They carry only a kind.
var (
	ErrInvalidURL           = &Error{Kind: KindInvalidURL}
	ErrExtractionFailed     = &Error{Kind: KindExtractionFailed}
	ErrInterpretationFailed = &Error{Kind: KindInterpretationFailed}
	ErrInvalidResponse      = &Error{Kind: KindInvalidResponse}
	ErrInvalidDate          = &Error{Kind: KindInvalidDate}
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
)

// Error is a typed pipeline failure.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "extract" or "interpret.text".
	Op  string
	Msg string
	Err error
}

func (e *Error) Error() string {
	s := string(e.Kind)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
