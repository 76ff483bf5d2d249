package lending

import (
	"errors"
	"fmt"
)

// Kind classifies lending failures. Every kind except Internal is a
// recoverable, caller-facing condition.
type Kind uint8

const (
	KindInternal Kind = iota
	KindNotAuthenticated
	KindNotAuthorized
	KindNotFound
	KindSelfLoan
	KindItemOwnershipMismatch
	KindAlreadyActive
	KindInvalidTransition
	KindStaleState
	KindUnavailable
	KindInvalidArgument
	KindDuplicateRequest
)

var kindNames = map[Kind]string{
	KindInternal:              "internal",
	KindNotAuthenticated:      "not_authenticated",
	KindNotAuthorized:         "not_authorized",
	KindNotFound:              "not_found",
	KindSelfLoan:              "self_loan",
	KindItemOwnershipMismatch: "item_ownership_mismatch",
	KindAlreadyActive:         "already_active",
	KindInvalidTransition:     "invalid_transition",
	KindStaleState:            "stale_state",
	KindUnavailable:           "unavailable",
	KindInvalidArgument:       "invalid_argument",
	KindDuplicateRequest:      "duplicate_request",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Sentinels for errors.Is. They compare by Kind only.
var (
	ErrNotAuthenticated      = &Error{Kind: KindNotAuthenticated}
	ErrNotAuthorized         = &Error{Kind: KindNotAuthorized}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrSelfLoan              = &Error{Kind: KindSelfLoan}
	ErrItemOwnershipMismatch = &Error{Kind: KindItemOwnershipMismatch}
	ErrAlreadyActive         = &Error{Kind: KindAlreadyActive}
	ErrInvalidTransition     = &Error{Kind: KindInvalidTransition}
	ErrStaleState            = &Error{Kind: KindStaleState}
	ErrUnavailable           = &Error{Kind: KindUnavailable}
	ErrInvalidArgument       = &Error{Kind: KindInvalidArgument}
	ErrDuplicateRequest      = &Error{Kind: KindDuplicateRequest}
	ErrInternal              = &Error{Kind: KindInternal}
)

type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// E builds an *Error; msg and err are optional.
func E(kind Kind, op string, msg string, err error) error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether the failure is a transient storage condition.
func Retryable(err error) bool { return KindOf(err) == KindUnavailable }
