package cmdlog

import (
	"context"
	"time"
)

// MemoryLog keeps records in memory.
type MemoryLog struct {
	records []Record
	session string
	next    uint64
	closed  bool

	// FailAppend, when set, is returned by every Append.
	FailAppend error
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog(session string) *MemoryLog {
	return &MemoryLog{session: session, next: 1}
}

// Append stores one record.
func (l *MemoryLog) Append(ctx context.Context, typ string, current, previous any) (Record, error) {
	if l.closed {
		return Record{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if l.FailAppend != nil {
		return Record{}, l.FailAppend
	}
	rec, err := newRecord(l.next, typ, l.session, time.Now(), current, previous)
	if err != nil {
		return Record{}, err
	}
	l.records = append(l.records, rec)
	l.next++
	return rec, nil
}

// Records returns a copy of the stored records.
func (l *MemoryLog) Records(ctx context.Context) ([]Record, error) {
	if l.closed {
		return nil, ErrClosed
	}
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out, nil
}

// Len returns the number of stored records.
func (l *MemoryLog) Len() int {
	return len(l.records)
}

// Truncate drops every record.
func (l *MemoryLog) Truncate(ctx context.Context) error {
	if l.closed {
		return ErrClosed
	}
	l.records = nil
	l.next = 1
	return nil
}

// Reset replaces the records with one record. FailAppend applies, and
// leaves the stored records untouched.
func (l *MemoryLog) Reset(ctx context.Context, typ string, current, previous any) (Record, error) {
	if l.closed {
		return Record{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if l.FailAppend != nil {
		return Record{}, l.FailAppend
	}
	rec, err := newRecord(1, typ, l.session, time.Now(), current, previous)
	if err != nil {
		return Record{}, err
	}
	l.records = []Record{rec}
	l.next = 2
	return rec, nil
}

// Close marks the log closed.
func (l *MemoryLog) Close() error {
	l.closed = true
	return nil
}

// StaticSource is a fixed Source, handy for feeding Replay hand-built
// records.
type StaticSource []Record

// Records implements Source.
func (s StaticSource) Records(context.Context) ([]Record, error) {
	return s, nil
}
