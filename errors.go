package memkv

import (
	"errors"
	"fmt"
)

// Error is a structured go-memkv error with enough context to let a caller
// branch on Kind without string-matching Error(). Grounded on the
// teacher's own Error/UblkErrorCode split (errors.go): one category enum,
// one struct carrying the operation name and an optional wrapped cause.
type Error struct {
	Op    string // operation that failed, e.g. "Listen", "Set"
	Kind  Kind
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return fmt.Sprintf("memkv: %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("memkv: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

// Kind categorizes an Error the way the caller is expected to react to it.
type Kind string

const (
	KindInvalidConfig Kind = "invalid configuration"
	KindListenFailed  Kind = "listen failed"
	KindAlreadyClosed Kind = "server already closed"
	KindOutOfMemory   Kind = "out of memory"
	KindInternal      Kind = "internal error"
)

// NewError constructs an Error with no wrapped cause.
func NewError(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// WrapError wraps inner with operation context, preserving its Kind if it
// is already a *Error and otherwise defaulting to KindInternal.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	var me *Error
	if errors.As(inner, &me) {
		return &Error{Op: op, Kind: me.Kind, Msg: me.Msg, Inner: me.Inner}
	}
	return &Error{Op: op, Kind: KindInternal, Msg: inner.Error(), Inner: inner}
}

// IsKind reports whether err is a *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind == kind
	}
	return false
}
