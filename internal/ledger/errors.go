package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/conectell/livrocaixa/internal/platform/db"
	"github.com/conectell/livrocaixa/internal/platform/httpx"
)

// Kind classifies ledger failures.
type Kind uint8

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindValidation
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Sentinels for errors.Is checks. Each wraps the matching httpx sentinel so
// handlers can answer with the right status.
var (
	ErrNotFound    = fmt.Errorf("ledger: %w", httpx.ErrNotFound)
	ErrConflict    = fmt.Errorf("ledger: stale balance: %w", httpx.ErrConflict)
	ErrValidation  = fmt.Errorf("ledger: %w", httpx.ErrValidation)
	ErrUnavailable = fmt.Errorf("ledger: backend %w", httpx.ErrUnavailable)
)

// Error is the error type returned by every ledger operation.
type Error struct {
	Kind  Kind
	Op    string
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Op != "" {
		return "ledger " + e.Op + ": " + msg
	}
	return "ledger: " + msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if s := sentinel(e.Kind); s != nil {
		out = append(out, s)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func sentinel(k Kind) error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindValidation:
		return ErrValidation
	case KindUnavailable:
		return ErrUnavailable
	}
	return nil
}

// KindOf returns the kind of err, KindInternal when it is not a ledger error.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	}
	return KindInternal
}

// IsConflict reports whether err is a lost concurrency race.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

func invalid(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: msg}
}

func notFound(what string) *Error {
	return &Error{Kind: KindNotFound, Msg: what + " not found"}
}

func conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Msg: msg}
}

// classify turns storage errors into ledger errors and stamps the operation.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		if le.Op == "" {
			cp := *le
			cp.Op = op
			return &cp
		}
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, pgx.ErrNoRows):
		return &Error{Kind: KindNotFound, Op: op, Err: err}
	case db.IsRetryable(err):
		return &Error{Kind: KindConflict, Op: op, Msg: "concurrent update detected", Err: err}
	case db.IsUnavailable(err):
		return &Error{Kind: KindUnavailable, Op: op, Msg: "database unreachable", Err: err}
	}
	return &Error{Kind: KindInternal, Op: op, Err: err}
}
