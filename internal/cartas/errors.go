package cartas

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("carta not found")
	ErrNotPermitted = errors.New("operation not permitted")
	ErrValidation   = errors.New("invalid carta")
	ErrConflict     = errors.New("carta changed concurrently")

	// ErrStaleAttachment means the letter no longer holds the attachment a
	// derived object was built from.
	ErrStaleAttachment = errors.New("carta attachment changed")
)

// RejectedError explains why a lifecycle transition's guard failed.
type RejectedError struct {
	Op           string
	LetterNumber int
	Reason       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("cannot %s carta %d: %s", e.Op, e.LetterNumber, e.Reason)
}

// Is makes every rejection match ErrNotPermitted.
func (e *RejectedError) Is(target error) bool {
	return target == ErrNotPermitted
}
