package ragfile

import (
	"errors"
	"strings"
	"testing"
)

func TestErrors(t *testing.T) {
	errs := []error{
		ErrFormat,
		ErrUnsupportedVersion,
		ErrCorruptIndex,
		ErrPaddingConstraint,
		ErrUnsupportedPrecision,
		ErrRecordFraming,
		ErrBoundary,
		ErrUnknownStrategy,
		ErrUnsupportedSection,
		ErrIO,
		ErrNoSections,
		ErrWriterState,
		ErrInvalidName,
		ErrDuplicateStrategy,
		ErrLocked,
		ErrClosed,
		ErrTransientIO,
	}

	seen := make(map[string]int)
	for i, err := range errs {
		if err == nil {
			t.Fatalf("error at index %d is nil", i)
		}
		msg := err.Error()
		if prev, ok := seen[msg]; ok {
			t.Errorf("error at index %d has same message as index %d: %q", i, prev, msg)
		}
		seen[msg] = i
	}
}

func TestErrorOffset(t *testing.T) {
	err := errAt(ErrBoundary, 1082, "record %q", "cat")
	if !errors.Is(err, ErrBoundary) {
		t.Error("errors.Is(ErrBoundary) = false")
	}
	msg := err.Error()
	if !strings.Contains(msg, "at offset 1082") || !strings.Contains(msg, `record "cat"`) {
		t.Errorf("Error() = %q", msg)
	}

	err = errAt(ErrUnknownStrategy, -1, "%q", "graph")
	if strings.Contains(err.Error(), "offset") {
		t.Errorf("Error() = %q, want no offset", err.Error())
	}
}

func TestIOError(t *testing.T) {
	cause := errors.New("disk on fire")
	err := error(&IOError{Op: "read", Offset: 42, Attempts: 4, Err: cause})
	if !errors.Is(err, ErrIO) || !errors.Is(err, cause) {
		t.Error("IOError does not unwrap to ErrIO and its cause")
	}
	if msg := err.Error(); !strings.Contains(msg, "offset 42") || !strings.Contains(msg, "4 attempt") {
		t.Errorf("Error() = %q", msg)
	}
}
