package shared

import "errors"

// Error classes. Every domain sentinel wraps exactly one of them so that
// transports can map failures without knowing each module's errors.
var (
	// ErrValidation marks malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrBusinessRule marks well-formed input rejected by a ledger rule.
	ErrBusinessRule = errors.New("business rule violated")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrIntegrity marks references that disagree with stored data.
	ErrIntegrity = errors.New("integrity violation")
	// ErrConflict marks concurrent or duplicate submissions.
	ErrConflict = errors.New("conflict")
)

type classifiedError struct {
	class error
	msg   string
}

func (e *classifiedError) Error() string { return e.msg }

func (e *classifiedError) Unwrap() error { return e.class }

// Classify returns a new sentinel error that reports msg and matches class
// under errors.Is.
func Classify(class error, msg string) error {
	return &classifiedError{class: class, msg: msg}
}

// ClassOf returns the error class err belongs to, or nil when unclassified.
func ClassOf(err error) error {
	for _, class := range []error{ErrValidation, ErrBusinessRule, ErrNotFound, ErrIntegrity, ErrConflict} {
		if errors.Is(err, class) {
			return class
		}
	}
	return nil
}
