package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"
)

var (
	// ErrNotFound is returned for an unknown or archived widget, an unknown
	// (widget, version) pair, or a missing investigation file.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned by Create when the path is occupied.
	ErrAlreadyExists = errors.New("already exists")

	// ErrAlreadyOpen is returned when another handle holds the investigation.
	ErrAlreadyOpen = errors.New("investigation already open")

	// ErrCorruptOrIncompatible is returned when a file is not a skop
	// investigation or carries a schema version this build cannot read.
	ErrCorruptOrIncompatible = errors.New("corrupt or incompatible investigation")

	// ErrStoreUnavailable is returned when the database cannot accept a
	// read or write (disk full, I/O error, lock timeout, read-only media).
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store closed")

	// ErrNoVersionYet is returned by At when the widget did not exist yet at
	// the requested time.
	ErrNoVersionYet = errors.New("no version at that time")

	// ErrInvalidConfig is returned when a widget config is not a JSON object
	// or fails validation for its widget type.
	ErrInvalidConfig = errors.New("invalid widget config")
)

// OpError describes a failed store operation whose cause is classified as
// one of the package sentinels. Both the sentinel and the underlying driver
// error are reachable through errors.Is and errors.As.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable reports whether err is or wraps ErrStoreUnavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// wrapDB classifies a database/sql error. Transient and media failures map to
// ErrStoreUnavailable, a damaged file maps to ErrCorruptOrIncompatible, and
// anything else is wrapped with context.
func wrapDB(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return eris.Wrap(err, op)
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrFull, sqlite3.ErrIoErr,
			sqlite3.ErrReadonly, sqlite3.ErrCantOpen, sqlite3.ErrNomem:
			return &OpError{Op: op, Kind: ErrStoreUnavailable, Err: err}
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
			return &OpError{Op: op, Kind: ErrCorruptOrIncompatible, Err: err}
		}
	}
	return eris.Wrap(err, op)
}

func notFound(format string, args ...any) error {
	return &OpError{Op: fmt.Sprintf(format, args...), Kind: ErrNotFound}
}
