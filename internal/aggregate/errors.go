package aggregate

import (
	"context"
	"errors"
	"fmt"

	"github.com/TobiSchelling/blogagg/internal/fetch"
)

// Kind classifies operation failures.
type Kind string

const (
	// KindStore is a transport or content-store failure.
	KindStore Kind = "store"
	// KindDecode is a record the store returned that could not be decoded.
	KindDecode Kind = "decode"
	// KindCanceled means the caller's context ended the operation.
	KindCanceled Kind = "canceled"
)

// Error is the failure result of one top-level operation. The operation's
// state slot keeps its previous value.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s failure: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func opError(op string, err error) error {
	kind := KindStore
	var decErr *fetch.DecodeError
	switch {
	case errors.As(err, &decErr):
		kind = KindDecode
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = KindCanceled
	}
	return &Error{Op: op, Kind: kind, Err: err}
}
