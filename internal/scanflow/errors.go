package scanflow

import (
	"errors"
	"fmt"
)

var (
	ErrBusy        = errors.New("another request is in progress")
	ErrNotLoggedIn = errors.New("Login first.")
	ErrNoImages    = errors.New("Add 1–5 photos (JPEG/PNG, max 2MB each).")
	ErrNoScan      = errors.New("no scanned item")
	ErrNoPrice     = errors.New("no price yet")
	ErrRestarted   = errors.New("scan was restarted")
)

// StepError is returned when an operation is not allowed on the current step.
type StepError struct {
	Op   string
	Step Step
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s is not available on step %s", e.Op, e.Step)
}

// ValidationError is a local input error. No request was sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
