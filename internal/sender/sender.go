// internal/sender/sender.go
package sender

import (
	"context"
	"errors"

	"github.com/unclebandit/coursetrack-backend/internal/model"
)

// Sender is the transport boundary to the external email provider.
// Implementations return a TransientError when a retry may succeed
// (throttling, 5xx) and a PermanentError when it will not (rejected
// address, recipient gone).
type Sender interface {
	Send(ctx context.Context, rcpt *model.Recipient, subject, body string) error
}

// TransientError marks a delivery failure worth retrying.
type TransientError struct {
	Reason string
}

func (e *TransientError) Error() string {
	return e.Reason
}

func NewTransient(reason string) error {
	return &TransientError{Reason: reason}
}

// PermanentError marks a delivery failure that retrying cannot fix.
type PermanentError struct {
	Reason string
}

func (e *PermanentError) Error() string {
	return e.Reason
}

func NewPermanent(reason string) error {
	return &PermanentError{Reason: reason}
}

func IsTransient(err error) bool {
	var target *TransientError
	return errors.As(err, &target)
}

func IsPermanent(err error) bool {
	var target *PermanentError
	return errors.As(err, &target)
}
