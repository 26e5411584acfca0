package pipeline

import (
	"fmt"
	"sort"
	"sync"
)

// ProjectError is the error that stopped one project.
type ProjectError struct {
	Project string
	Err     error
}

func (e ProjectError) Error() string {
	return fmt.Sprintf("%s: %v", e.Project, e.Err)
}

func (e ProjectError) Unwrap() error {
	return e.Err
}

// RunErrors collects the failures of a run. Other projects keep going when
// one fails.
type RunErrors struct {
	Errors []ProjectError
	mu     sync.Mutex
}

// Add records a failed project (thread-safe).
func (e *RunErrors) Add(project string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, ProjectError{Project: project, Err: err})
	e.mu.Unlock()
}

// HasErrors returns true if any project failed.
func (e *RunErrors) HasErrors() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

// Failed lists the failed projects, sorted.
func (e *RunErrors) Failed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, len(e.Errors))
	for i, pe := range e.Errors {
		names[i] = pe.Project
	}
	sort.Strings(names)
	return names
}

func (e *RunErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d projects failed (first: %v)", len(e.Errors), e.Errors[0])
}

// Unwrap exposes every project error to errors.Is and errors.As.
func (e *RunErrors) Unwrap() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	errs := make([]error, len(e.Errors))
	for i, pe := range e.Errors {
		errs[i] = pe
	}
	return errs
}
