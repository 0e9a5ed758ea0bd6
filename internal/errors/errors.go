package errors

import (
	"fmt"
	"strings"
	"sync"
)

// ErrorCollector collects errors so that a single boot run can report
// every offending file at once.
type ErrorCollector struct {
	errors []error
	mutex  sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		errors: make([]error, 0),
	}
}

// AddError adds an error to the collector. nil is ignored.
func (ec *ErrorCollector) AddError(err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.errors = append(ec.errors, err)
}

// GetAllErrors returns a copy of the collected errors.
func (ec *ErrorCollector) GetAllErrors() []error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]error, len(ec.errors))
	copy(result, ec.errors)
	return result
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.errors) > 0
}

// Clear clears all errors
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.errors = ec.errors[:0]
}

// Err folds the collected errors into one. It returns nil when empty and
// the sole error unchanged when only one was collected.
func (ec *ErrorCollector) Err() error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	switch len(ec.errors) {
	case 0:
		return nil
	case 1:
		return ec.errors[0]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d errors:", len(ec.errors))
	for _, err := range ec.errors {
		b.WriteString("\n  ")
		b.WriteString(err.Error())
	}

	return &Error{Kind: KindOf(ec.errors[0]), Message: b.String()}
}
