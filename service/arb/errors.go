package arb

import (
	"errors"
	"fmt"
)

// ErrInvalidRange is returned by SampleAmounts for unusable bounds.
var ErrInvalidRange = errors.New("invalid sampling range")

// ErrDuplicateSymbol is returned when two mints register the same symbol.
var ErrDuplicateSymbol = errors.New("duplicate token symbol")

// QuoteFetchError describes a dropped fan-out unit.
type QuoteFetchError struct {
	Target string
	Amount uint64
	Leg    int
	Err    error
}

func (e *QuoteFetchError) Error() string {
	return fmt.Sprintf("quote leg %d for %s at %d failed: %v", e.Leg, e.Target, e.Amount, e.Err)
}

func (e *QuoteFetchError) Unwrap() error {
	return e.Err
}

// ErrBuild is the root of every trade-building failure.
var ErrBuild = errors.New("failed to build trade")

// BuildError aborts a single opportunity before anything was sent.
type BuildError struct {
	Stage string
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%v at %s: %v", ErrBuild, e.Stage, e.Err)
}

func (e *BuildError) Unwrap() []error {
	return []error{ErrBuild, e.Err}
}

// ErrSubmission is the root of every submission failure.
var ErrSubmission = errors.New("submission failed on every channel")

// SubmissionError reports that no channel accepted the transaction.
type SubmissionError struct {
	Outcomes []ChannelOutcome
}

func (e *SubmissionError) Error() string {
	msg := ErrSubmission.Error()
	for _, o := range e.Outcomes {
		msg += fmt.Sprintf("; %s after %d attempts: %v", o.Channel, o.Attempts, o.Err)
	}
	return msg
}

func (e *SubmissionError) Unwrap() error {
	return ErrSubmission
}
