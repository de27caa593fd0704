// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Set holds the resolved secrets for one run, keyed by name. Values
// live in protected buffers until Close.
type Set struct {
	mu      sync.Mutex
	values  map[string]*Buffer
	stubbed bool
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{values: make(map[string]*Buffer)}
}

// Add stores value under name, replacing any previous value. An empty
// value is recorded as present but holds no buffer.
func (s *Set) Add(name, value string) error {
	var buffer *Buffer
	if value != "" {
		var err error
		buffer, err = NewFromBytes([]byte(value))
		if err != nil {
			return fmt.Errorf("storing secret %s: %w", name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if previous := s.values[name]; previous != nil {
		previous.Close()
	}
	s.values[name] = buffer
	return nil
}

// Lookup returns the value stored under name.
func (s *Set) Lookup(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buffer, ok := s.values[name]
	if !ok || buffer == nil {
		return "", ok
	}
	return buffer.String(), true
}

// Names returns the stored names in sorted order.
func (s *Set) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of stored secrets.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// Map returns the secrets as a plain map for expression evaluation and
// process environments. The copies live on the heap for the duration of
// the run.
func (s *Set) Map() map[string]string {
	result := make(map[string]string)
	for _, name := range s.Names() {
		value, _ := s.Lookup(name)
		result[name] = value
	}
	return result
}

// Stubbed reports whether the values are placeholders.
func (s *Set) Stubbed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stubbed
}

// Redactor returns a redactor masking every value in the set. Stub
// placeholders are not secret and are left visible.
func (s *Set) Redactor() *Redactor {
	if s.Stubbed() {
		return NewRedactor()
	}
	values := make([]string, 0, s.Len())
	for _, value := range s.Map() {
		values = append(values, value)
	}
	return NewRedactor(values...)
}

// Close releases every buffer. The set is empty afterwards.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for name, buffer := range s.values {
		if buffer != nil {
			errs = append(errs, buffer.Close())
		}
		delete(s.values, name)
	}
	return errors.Join(errs...)
}

// StubValue is the placeholder injected for name in stub mode.
func StubValue(name string) string {
	return "localmost-stub-" + strings.ToLower(name)
}
