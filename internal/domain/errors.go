package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected marks a single record that failed validation. It is never
	// surfaced to users; ingestors drop the record and continue.
	ErrRejected = errors.New("record rejected")

	// ErrTransport marks a failed fetch: network error or non-success status.
	ErrTransport = errors.New("transport error")

	// ErrParse marks a payload that could not be read as tabular or geospatial data.
	ErrParse = errors.New("parse error")

	// ErrNotFound is returned when a requested point id is not in the loaded set.
	ErrNotFound = errors.New("point not found")
)

// StatusError is a non-success HTTP response from an upstream data source.
type StatusError struct {
	Source     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s error: status %d", e.Source, e.StatusCode)
	}
	return fmt.Sprintf("%s error: status %d: %s", e.Source, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrTransport }

func reject(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}
