package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind is the service facing category of a Firestore failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	// KindConflict covers duplicate creates, failed preconditions and transactions aborted by
	// contention after their retries ran out.
	KindConflict
	KindInvalid
)

var kindByCode = map[codes.Code]Kind{
	codes.NotFound:           KindNotFound,
	codes.AlreadyExists:      KindConflict,
	codes.FailedPrecondition: KindConflict,
	codes.Aborted:            KindConflict,
	codes.InvalidArgument:    KindInvalid,
	codes.OutOfRange:         KindInvalid,
}

// Error records the repository operation that failed and how the failure is classified.
// It satisfies repositories.RepositoryError.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) IsNotFound() bool { return e != nil && e.Kind == KindNotFound }
func (e *Error) IsConflict() bool { return e != nil && e.Kind == KindConflict }
func (e *Error) IsInvalid() bool { return e != nil && e.Kind == KindInvalid }

// WrapError classifies err by its gRPC status under op. Context cancellation, including the
// gRPC forms of it, comes back as the plain context error so callers can tell it apart from
// backend failures. An already wrapped error keeps its original classification.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled), status.Code(err) == codes.Canceled:
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded), status.Code(err) == codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	var wrapped *Error
	if errors.As(err, &wrapped) {
		return err
	}
	return &Error{Op: op, Kind: kindByCode[status.Code(err)], Err: err}
}

// KindOf returns the classification carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var wrapped *Error
	if errors.As(err, &wrapped) {
		return wrapped.Kind
	}
	return KindUnknown
}
