package attempt

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("attempt not found")
	ErrConflict        = errors.New("an attempt is already in progress")
	ErrNotInProgress   = errors.New("attempt is not in progress")
	ErrDeadlinePassed  = errors.New("attempt deadline has passed")
	ErrUnknownQuestion = errors.New("question does not belong to this assessment")
	ErrAnswerMismatch  = errors.New("answer does not match the question type")
)

// ErrorKind classifies a failure at the attempt service boundary.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindConflict
	KindInvalid
	KindUnauthorized
	KindUnavailable
	KindClosed // attempt finished or expired: writes are refused
)

var kindNames = map[ErrorKind]string{
	KindUnknown:      "unknown",
	KindNotFound:     "not found",
	KindConflict:     "conflict",
	KindInvalid:      "invalid",
	KindUnauthorized: "unauthorized",
	KindUnavailable:  "unavailable",
	KindClosed:       "closed",
}

func (k ErrorKind) String() string { return kindNames[k] }

// ServiceError is the typed outcome returned by implementations of the attempt service boundary.
type ServiceError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind of err, mapping the package sentinels when no ServiceError is found.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotInProgress), errors.Is(err, ErrDeadlinePassed):
		return KindClosed
	case errors.Is(err, ErrUnknownQuestion), errors.Is(err, ErrAnswerMismatch):
		return KindInvalid
	}
	return KindUnknown
}

func IsKind(err error, kind ErrorKind) bool { return err != nil && KindOf(err) == kind }
