// Package ioresult describes the outcome of batch IO operations: success
// counts, timing and one error entry per failed item.
package ioresult

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// OperationType identifies the kind of batch operation.
type OperationType int

const (
	OpImport OperationType = iota
	OpExport
	OpMetadataLoad
	OpPrediction
	OpModelFetch
)

// String implements fmt.Stringer.
func (o OperationType) String() string {
	switch o {
	case OpImport:
		return "import"
	case OpExport:
		return "export"
	case OpMetadataLoad:
		return "metadata_load"
	case OpPrediction:
		return "prediction"
	case OpModelFetch:
		return "model_fetch"
	default:
		return fmt.Sprintf("OperationType(%d)", int(o))
	}
}

// ErrorInfoEntry records one failed item of a batch.
type ErrorInfoEntry struct {
	SourceName       string `json:"source"`
	ErrorDescription string `json:"error"`
}

// EntryFromError converts err into an entry for source.
func EntryFromError(source string, err error) ErrorInfoEntry {
	return ErrorInfoEntry{SourceName: source, ErrorDescription: err.Error()}
}

// Result is the immutable outcome of a batch operation.
type Result struct {
	ID           uuid.UUID
	Operation    OperationType
	SuccessCount int
	Errors       []ErrorInfoEntry
	Elapsed      time.Duration
}

// ElapsedMillis returns the wall-clock duration in milliseconds.
func (r Result) ElapsedMillis() int64 {
	return r.Elapsed.Milliseconds()
}

// HasErrors reports whether any item failed.
func (r Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// Err combines all error entries into one error, or returns nil.
func (r Result) Err() error {
	var err error
	for _, e := range r.Errors {
		err = multierr.Append(err, fmt.Errorf("%s: %w", e.SourceName, errors.New(e.ErrorDescription)))
	}
	return err
}

// Collector accumulates successes and errors from concurrent workers.
// The zero value is not usable; create one with NewCollector.
type Collector struct {
	op      OperationType
	mu      sync.Mutex
	success int
	errors  []ErrorInfoEntry
	started time.Time
	ended   time.Time
}

// NewCollector returns a collector for op.
func NewCollector(op OperationType) *Collector {
	return &Collector{op: op}
}

// Start marks the dispatch of the first item. Later calls are ignored.
func (c *Collector) Start() {
	c.mu.Lock()
	if c.started.IsZero() {
		c.started = time.Now()
	}
	c.mu.Unlock()
}

// Finish marks the completion of the last item.
func (c *Collector) Finish() {
	c.mu.Lock()
	c.ended = time.Now()
	c.mu.Unlock()
}

// AddSuccess records n successful items.
func (c *Collector) AddSuccess(n int) {
	c.mu.Lock()
	c.success += n
	c.mu.Unlock()
}

// AddError records a failed item.
func (c *Collector) AddError(source string, err error) {
	c.AddEntries(EntryFromError(source, err))
}

// AddEntries records already converted error entries.
func (c *Collector) AddEntries(entries ...ErrorInfoEntry) {
	if len(entries) == 0 {
		return
	}
	c.mu.Lock()
	c.errors = append(c.errors, entries...)
	c.mu.Unlock()
}

// Result snapshots the collected state.
func (c *Collector) Result() Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	var elapsed time.Duration
	if !c.started.IsZero() {
		end := c.ended
		if end.IsZero() {
			end = time.Now()
		}
		elapsed = end.Sub(c.started)
	}
	errs := make([]ErrorInfoEntry, len(c.errors))
	copy(errs, c.errors)

	return Result{
		ID:           uuid.New(),
		Operation:    c.op,
		SuccessCount: c.success,
		Errors:       errs,
		Elapsed:      elapsed,
	}
}
