package sources

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable marks a missing or unreachable input. Optional
	// sources that fail this way are skipped.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSchemaMismatch marks an input that is present but malformed.
	ErrSchemaMismatch = errors.New("schema mismatch")
)

type SourceError struct {
	Source string
	Path   string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s source: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("%s source %s: %v", e.Source, e.Path, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

func unavailable(source, path string, cause error) error {
	return &SourceError{Source: source, Path: path, Err: fmt.Errorf("%w: %v", ErrSourceUnavailable, cause)}
}

func mismatch(source, path, format string, args ...any) error {
	return &SourceError{Source: source, Path: path, Err: fmt.Errorf("%w: %s", ErrSchemaMismatch, fmt.Sprintf(format, args...))}
}
