// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest is returned for request bodies that fail
// validation before any job is created.
type ErrInvalidRequest struct {
	Reason string
}

func (e *ErrInvalidRequest) Error() string {
	return e.Reason
}

func NewInvalidRequest(reason string) error {
	return &ErrInvalidRequest{Reason: reason}
}

func IsInvalidRequest(err error) bool {
	var target *ErrInvalidRequest
	return errors.As(err, &target)
}

// ErrEmptyCandidateSet is returned when a job is requested with no
// candidate recipient ids at all.
type ErrEmptyCandidateSet struct{}

func (e *ErrEmptyCandidateSet) Error() string {
	return "candidate recipient list is empty"
}

func NewEmptyCandidateSet() error {
	return &ErrEmptyCandidateSet{}
}

func IsEmptyCandidateSet(err error) bool {
	var target *ErrEmptyCandidateSet
	return errors.As(err, &target)
}

// ErrUnauthorized is returned when scope filtering rejects every
// candidate recipient; a zero-recipient job is never created.
type ErrUnauthorized struct {
	Scope string
}

func (e *ErrUnauthorized) Error() string {
	return fmt.Sprintf("scope %q is not authorized to message any of the requested recipients", e.Scope)
}

func NewUnauthorized(scope string) error {
	return &ErrUnauthorized{Scope: scope}
}

func IsUnauthorized(err error) bool {
	var target *ErrUnauthorized
	return errors.As(err, &target)
}

// ErrForbidden is returned when a caller queries a job outside their
// visibility scope.
type ErrForbidden struct {
	JobID int64
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("caller may not view job %d", e.JobID)
}

func NewForbidden(jobID int64) error {
	return &ErrForbidden{JobID: jobID}
}

func IsForbidden(err error) bool {
	var target *ErrForbidden
	return errors.As(err, &target)
}

// ErrJobNotFound is a sentinel error
type ErrJobNotFound struct {
	JobID int64
}

func (e *ErrJobNotFound) Error() string {
	return fmt.Sprintf("job with ID %d not found", e.JobID)
}

// Helper constructor
func NewJobNotFound(id int64) error {
	return &ErrJobNotFound{JobID: id}
}

func IsJobNotFound(err error) bool {
	var target *ErrJobNotFound
	return errors.As(err, &target)
}
