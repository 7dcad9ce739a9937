package cmdlog

import (
	"errors"
	"fmt"
)

// Log errors.
var (
	// ErrClosed indicates the log was used after Close.
	ErrClosed = errors.New("command log closed")

	// ErrCorruptRecord indicates a record could not be parsed.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrUnknownType indicates no decoder is registered for a record type.
	ErrUnknownType = errors.New("unknown record type")

	// ErrUnsupportedVersion indicates a record envelope version this build
	// cannot read.
	ErrUnsupportedVersion = errors.New("unsupported record version")

	// ErrOutOfOrder indicates a record whose sequence does not increase.
	ErrOutOfOrder = errors.New("record out of order")

	// ErrSequenceGap indicates one or more missing records.
	ErrSequenceGap = errors.New("record sequence gap")

	// ErrSessionMismatch indicates records from more than one session.
	ErrSessionMismatch = errors.New("record from another session")

	// ErrReplayCancelled indicates replay stopped before the last record.
	ErrReplayCancelled = errors.New("replay cancelled")
)

// RecordError describes a failure tied to one record.
type RecordError struct {
	Seq  uint64 // Sequence number, 0 if unknown
	Line int    // Line in a file log, 0 if not applicable
	Type string // Record type, "" if unknown
	Err  error  // Underlying error
}

func (e *RecordError) Error() string {
	if e == nil {
		return ""
	}
	var where string
	switch {
	case e.Seq != 0:
		where = fmt.Sprintf("record %d", e.Seq)
	case e.Line != 0:
		where = fmt.Sprintf("line %d", e.Line)
	default:
		where = "record"
	}
	if e.Type != "" {
		where += " (" + e.Type + ")"
	}
	return fmt.Sprintf("%s: %v", where, e.Err)
}

// Unwrap returns the underlying error.
func (e *RecordError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
