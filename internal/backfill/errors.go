package backfill

import (
	"errors"
	"fmt"
)

// ErrorClass classifies run-fatal failures for notifications.
type ErrorClass string

const (
	ClassConfig      ErrorClass = "config"
	ClassReference   ErrorClass = "reference"
	ClassCheckpoint  ErrorClass = "checkpoint"
	ClassPersistence ErrorClass = "persistence"
	ClassUnknown     ErrorClass = "unknown"
)

// RunError is a failure that ended a job run.
type RunError struct {
	Job   string
	Class ErrorClass
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("job %s: %s: %v", e.Job, e.Class, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Classification implements notify.Classified.
func (e *RunError) Classification() string { return string(e.Class) }

// Classify returns the class of err, or ClassUnknown.
func Classify(err error) ErrorClass {
	var re *RunError
	if errors.As(err, &re) {
		return re.Class
	}
	return ClassUnknown
}

func runError(job string, class ErrorClass, err error) error {
	return &RunError{Job: job, Class: class, Err: err}
}
