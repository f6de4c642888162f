package domain

import (
	"errors"
	"fmt"
)

// ItemFailure records one failed element of a best-effort batch.
type ItemFailure struct {
	Index int    `json:"index"`
	Key   string `json:"key,omitempty"`
	Error string `json:"error"`

	err error
}

// BatchReport collects per-item failures of an operation that keeps going
// after individual items fail.
type BatchReport struct {
	Operation string        `json:"operation"`
	Total     int           `json:"total"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// NewBatchReport starts an empty report for op.
func NewBatchReport(op string) *BatchReport {
	return &BatchReport{Operation: op}
}

// Record counts one item and keeps err if it is non-nil.
func (r *BatchReport) Record(index int, key string, err error) {
	r.Total++
	if err == nil {
		return
	}
	r.Failures = append(r.Failures, ItemFailure{Index: index, Key: key, Error: err.Error(), err: err})
}

// Fail keeps a failure that is not tied to a batch item, such as clearing
// the map before drawing. It is stored with Index -1 and not counted in Total.
func (r *BatchReport) Fail(step string, err error) {
	if err == nil {
		return
	}
	r.Failures = append(r.Failures, ItemFailure{Index: -1, Key: step, Error: err.Error(), err: err})
}

// Merge folds other into r. Failure indexes are kept as recorded.
func (r *BatchReport) Merge(other *BatchReport) {
	if other == nil {
		return
	}
	r.Total += other.Total
	r.Failures = append(r.Failures, other.Failures...)
}

// OK reports whether every item succeeded.
func (r *BatchReport) OK() bool {
	return len(r.Failures) == 0
}

// Succeeded returns the number of items without a failure.
func (r *BatchReport) Succeeded() int {
	n := r.Total
	for _, f := range r.Failures {
		if f.Index >= 0 {
			n--
		}
	}
	return n
}

// Err aggregates all failures into one error, or nil.
func (r *BatchReport) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		e := f.err
		if e == nil {
			e = errors.New(f.Error)
		}
		switch {
		case f.Index < 0:
			e = fmt.Errorf("%s %s: %w", r.Operation, f.Key, e)
		case f.Key != "":
			e = fmt.Errorf("%s[%d] %s: %w", r.Operation, f.Index, f.Key, e)
		default:
			e = fmt.Errorf("%s[%d]: %w", r.Operation, f.Index, e)
		}
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}
