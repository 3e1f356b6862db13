package store

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/getmockd/bizlog/pkg/record"
)

// Multi writes every batch to several stores. Queries go to the first one.
type Multi struct {
	stores []Store
	mu     sync.RWMutex
}

// NewMulti creates a fan-out store. Nil stores are ignored.
func NewMulti(stores ...Store) *Multi {
	valid := make([]Store, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			valid = append(valid, s)
		}
	}
	return &Multi{stores: valid}
}

// Flush writes the batch to all stores. Every store receives the batch even
// if some fail.
func (m *Multi) Flush(ctx context.Context, bizNo, typ string, records []record.Record) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for _, s := range m.stores {
		if err := s.Flush(ctx, bizNo, typ, records); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &MultiError{Errors: errs}
	}
	return nil
}

// Query implements Store by querying the first store.
func (m *Multi) Query(ctx context.Context, f Filter) ([]record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.stores) == 0 {
		return nil, nil
	}
	return m.stores[0].Query(ctx, f)
}

// Close closes all stores, even if some fail.
func (m *Multi) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, s := range m.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &MultiError{Errors: errs}
	}
	return nil
}

// Add appends a store.
func (m *Multi) Add(s Store) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores = append(m.stores, s)
}

// Len returns the number of stores.
func (m *Multi) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stores)
}

// MultiError collects the errors of a fan-out operation.
type MultiError struct {
	Errors []error
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	b.WriteString("multiple errors:")
	for _, err := range e.Errors {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying errors for use with errors.Is/As.
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// Is reports whether any collected error matches target.
func (e *MultiError) Is(target error) bool {
	for _, err := range e.Errors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Ensure Multi implements Store.
var _ Store = (*Multi)(nil)
