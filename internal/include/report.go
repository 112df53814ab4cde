package include

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Outcome classifies how a host settled.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// Result is the settled state of one host.
type Result struct {
	// Source is the raw data-include value.
	Source string
	// URL is the resolved fetch address; empty for skipped hosts.
	URL     string
	Outcome Outcome
	Err     error
	Elapsed time.Duration
	// Pass is the 1-based include pass that handled the host.
	Pass int
}

// Report collects the results of an include call.
type Report struct {
	RunID   string
	Results []Result
}

// Count returns the number of results with outcome o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Err aggregates the failed results into a *BatchError, or nil.
func (r *Report) Err() error {
	var err error
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			err = multierr.Append(err, res.Err)
		}
	}
	if err == nil {
		return nil
	}
	return &BatchError{err: err, total: len(r.Results)}
}

// BatchError reports every host that failed during an include call. Hosts
// that succeeded were inserted regardless.
type BatchError struct {
	err   error
	total int
}

func (e *BatchError) Error() string {
	errs := e.Errors()
	return fmt.Sprintf("include: %d of %d hosts failed: %v", len(errs), e.total, e.err)
}

// Errors returns the per-host errors.
func (e *BatchError) Errors() []error {
	return multierr.Errors(e.err)
}

// Unwrap exposes the per-host errors to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	return e.Errors()
}
