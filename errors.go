// Package ragfile reads and writes RAGFile containers: single binary files
// that hold the document stores of several retrieval strategies side by
// side. A fixed header identifies the format, an index table follows it and
// maps each strategy name to the absolute byte range of its section, and
// each section holds padded key/content records. A strategy only ever
// touches its own range, so keyword, embedding and future graph strategies
// can evolve independently while sharing one file.
//
// Files are written once by a single Writer and are immutable afterwards.
// Any number of Readers may scan a finished file concurrently.
package ragfile

import (
	"errors"
	"fmt"

	"github.com/jpl-au/ragfile/blobstore"
)

// Sentinel errors for programmatic handling. Structural errors are returned
// as *Error values that carry the byte offset of the violation and unwrap
// to one of these, so callers use errors.Is to classify them.
var (
	ErrFormat               = errors.New("not a ragfile")
	ErrUnsupportedVersion   = errors.New("unsupported format version")
	ErrCorruptIndex         = errors.New("corrupt index table")
	ErrPaddingConstraint    = errors.New("padding must be 4, 8 or 16")
	ErrUnsupportedPrecision = errors.New("unsupported embedding precision")
	ErrRecordFraming        = errors.New("record framing error")
	ErrBoundary             = errors.New("range overrun")
	ErrUnknownStrategy      = errors.New("unknown strategy")
	ErrUnsupportedSection   = errors.New("unsupported section kind")
	ErrIO                   = errors.New("i/o error")
	ErrNoSections           = errors.New("no sections written")
	ErrWriterState          = errors.New("invalid writer state")
	ErrInvalidName          = errors.New("invalid strategy name")
	ErrDuplicateStrategy    = errors.New("strategy already exists")
	ErrLocked               = errors.New("file is locked by another writer")
	ErrClosed               = errors.New("reader is closed")
)

// ErrTransientIO marks a storage error that may succeed when retried.
// Stream reads and writes retry these internally before giving up.
var ErrTransientIO = blobstore.ErrTransient

// Error is a structural error detected while encoding or parsing a file.
// Offset is the absolute byte position of the violation, or -1 when the
// error is not tied to a position (for example an unknown strategy name).
type Error struct {
	Err    error
	Offset int64
	Detail string
}

func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Offset >= 0 {
		msg = fmt.Sprintf("%s at offset %d", msg, e.Offset)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return "ragfile: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// errAt builds an *Error for sentinel at offset.
func errAt(sentinel error, offset int64, format string, args ...any) error {
	return &Error{Err: sentinel, Offset: offset, Detail: fmt.Sprintf(format, args...)}
}

// IOError is a failed read or write against the underlying stream after
// all retries were spent. It unwraps to both ErrIO and the cause.
type IOError struct {
	Op       string // "read" or "write"
	Offset   int64
	Attempts int
	Err      error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("ragfile: %s at offset %d failed after %d attempt(s): %v", e.Op, e.Offset, e.Attempts, e.Err)
}

func (e *IOError) Unwrap() []error { return []error{ErrIO, e.Err} }
