package cmdlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Version is the record envelope version written by this build.
const Version = 1

// Record is one entry in a command log.
type Record struct {
	Version  int             `json:"v"`
	Seq      uint64          `json:"seq"`
	Type     string          `json:"type"`
	TS       time.Time       `json:"ts"`
	Session  string          `json:"session,omitempty"`
	Current  json.RawMessage `json:"current,omitempty"`
	Previous json.RawMessage `json:"previous,omitempty"`
}

// Decode unmarshals the state blocks. A nil destination skips that block.
func (r Record) Decode(current, previous any) error {
	if current != nil {
		if len(r.Current) == 0 {
			return fmt.Errorf("%w: missing current block", ErrCorruptRecord)
		}
		if err := json.Unmarshal(r.Current, current); err != nil {
			return fmt.Errorf("%w: current block: %v", ErrCorruptRecord, err)
		}
	}
	if previous != nil {
		if len(r.Previous) == 0 {
			return fmt.Errorf("%w: missing previous block", ErrCorruptRecord)
		}
		if err := json.Unmarshal(r.Previous, previous); err != nil {
			return fmt.Errorf("%w: previous block: %v", ErrCorruptRecord, err)
		}
	}
	return nil
}

// Writer appends records.
type Writer interface {
	// Append writes a record of type typ. current and previous are marshaled
	// to JSON; a nil block is omitted.
	Append(ctx context.Context, typ string, current, previous any) (Record, error)

	// Truncate discards every record and restarts the sequence at 1.
	Truncate(ctx context.Context) error

	// Reset replaces every record with a single record of type typ at
	// sequence 1. Either the old records or the new one survive a failure.
	Reset(ctx context.Context, typ string, current, previous any) (Record, error)

	// Close releases the log.
	Close() error
}

// Source reads records in append order.
type Source interface {
	Records(ctx context.Context) ([]Record, error)
}

// Log is a readable and writable command log.
type Log interface {
	Writer
	Source
}

// newRecord builds a record with marshaled state blocks.
func newRecord(seq uint64, typ, session string, ts time.Time, current, previous any) (Record, error) {
	rec := Record{
		Version: Version,
		Seq:     seq,
		Type:    typ,
		TS:      ts.UTC(),
		Session: session,
	}
	if typ == "" {
		return rec, fmt.Errorf("record type is empty")
	}
	var err error
	if current != nil {
		if rec.Current, err = json.Marshal(current); err != nil {
			return rec, fmt.Errorf("marshaling current block: %w", err)
		}
	}
	if previous != nil {
		if rec.Previous, err = json.Marshal(previous); err != nil {
			return rec, fmt.Errorf("marshaling previous block: %w", err)
		}
	}
	return rec, nil
}

// Verify checks envelope versions, ordering and session consistency without
// applying anything. The first record must have sequence 1 and every later
// record must follow its predecessor by exactly one.
func Verify(records []Record) error {
	var prev uint64
	var session string
	for i, rec := range records {
		if rec.Version < 1 || rec.Version > Version {
			return &RecordError{Seq: rec.Seq, Type: rec.Type,
				Err: fmt.Errorf("%w: %d", ErrUnsupportedVersion, rec.Version)}
		}
		if rec.Type == "" {
			return &RecordError{Seq: rec.Seq, Err: fmt.Errorf("%w: empty type", ErrCorruptRecord)}
		}
		switch {
		case rec.Seq <= prev:
			return &RecordError{Seq: rec.Seq, Type: rec.Type,
				Err: fmt.Errorf("%w: after %d", ErrOutOfOrder, prev)}
		case rec.Seq != prev+1:
			return &RecordError{Seq: rec.Seq, Type: rec.Type,
				Err: fmt.Errorf("%w: expected %d", ErrSequenceGap, prev+1)}
		}
		if i == 0 {
			session = rec.Session
		} else if rec.Session != session {
			return &RecordError{Seq: rec.Seq, Type: rec.Type,
				Err: fmt.Errorf("%w: %q, expected %q", ErrSessionMismatch, rec.Session, session)}
		}
		prev = rec.Seq
	}
	return nil
}
