package uploadqueue

import (
	"context"
	"errors"

	pkgerrors "github.com/angelmondragon/draftsync/pkg/errors"
)

// Class is how a delivery failure is handled.
type Class string

const (
	// ClassTransient failures are retried with backoff.
	ClassTransient Class = "transient"
	// ClassDuplicate means the remote side already holds the entity for
	// this client id; the draft counts as delivered.
	ClassDuplicate Class = "duplicate"
	// ClassPermanent failures need user action.
	ClassPermanent Class = "permanent"
	// ClassLocal failures happen on the device before the remote sees the
	// attempt; they are retried without counting against max retries.
	ClassLocal Class = "local"
)

// Classify maps a delivery error to its handling class. Untyped errors are
// treated as network failures.
func Classify(err error) Class {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return ClassTransient
	}
	switch typed.Code() {
	case pkgerrors.CodeIdempotency:
		return ClassDuplicate
	case pkgerrors.CodeStorage:
		return ClassLocal
	}
	if typed.Retryable() {
		return ClassTransient
	}
	return ClassPermanent
}
