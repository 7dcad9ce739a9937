package cmdlog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FileLog is a JSON Lines command log. Records are appended with O_APPEND,
// one per line.
type FileLog struct {
	path    string
	file    *os.File
	session string
	next    uint64
	size    int64
	sync    bool
	now     func() time.Time
}

// FileOption configures a FileLog.
type FileOption func(*FileLog)

// WithSync makes every Append fsync the file before returning.
func WithSync(enabled bool) FileOption {
	return func(l *FileLog) { l.sync = enabled }
}

// WithSession stamps every record with a session id.
func WithSession(id string) FileOption {
	return func(l *FileLog) { l.session = id }
}

// WithFileClock overrides the record timestamp source.
func WithFileClock(now func() time.Time) FileOption {
	return func(l *FileLog) {
		if now != nil {
			l.now = now
		}
	}
}

// OpenFile opens or creates a file log at path. An existing log is resumed:
// the next record continues its sequence and a torn final line is cut off.
func OpenFile(path string, opts ...FileOption) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening command log: %w", err)
	}

	l := &FileLog{path: path, file: f, next: 1, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}

	records, valid, err := decodeRecords(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("resuming %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > valid {
		if err := f.Truncate(valid); err != nil {
			f.Close()
			return nil, fmt.Errorf("cutting torn record: %w", err)
		}
	}
	l.size = valid
	if n := len(records); n > 0 {
		l.next = records[n-1].Seq + 1
		if l.session == "" {
			l.session = records[n-1].Session
		}
	}
	return l, nil
}

// Path returns the file path.
func (l *FileLog) Path() string {
	return l.path
}

// Session returns the session id stamped on records.
func (l *FileLog) Session() string {
	return l.session
}

// NextSeq returns the sequence number the next Append will use.
func (l *FileLog) NextSeq() uint64 {
	return l.next
}

// Append writes one record. On a failed write the file is cut back to its
// previous length so later appends stay well-formed.
func (l *FileLog) Append(ctx context.Context, typ string, current, previous any) (Record, error) {
	if l.file == nil {
		return Record{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	rec, err := newRecord(l.next, typ, l.session, l.now(), current, previous)
	if err != nil {
		return Record{}, err
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("marshaling record: %w", err)
	}
	line = append(line, '\n')

	n, err := l.file.Write(line)
	if err == nil && l.sync {
		err = l.file.Sync()
	}
	if err != nil {
		if n > 0 {
			_ = l.file.Truncate(l.size)
		}
		return Record{}, fmt.Errorf("writing record %d: %w", rec.Seq, err)
	}

	l.size += int64(n)
	l.next++
	return rec, nil
}

// Records reads every committed record from the file.
func (l *FileLog) Records(ctx context.Context) ([]Record, error) {
	if l.file == nil {
		return nil, ErrClosed
	}
	return ReadFile(ctx, l.path)
}

// Truncate empties the file and restarts the sequence at 1.
func (l *FileLog) Truncate(ctx context.Context) error {
	if l.file == nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("truncating command log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing command log: %w", err)
	}
	l.size = 0
	l.next = 1
	return nil
}

// Reset writes rec 1 to a temp file and renames it over the log, then
// reopens the log for appending.
func (l *FileLog) Reset(ctx context.Context, typ string, current, previous any) (Record, error) {
	if l.file == nil {
		return Record{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	rec, err := newRecord(1, typ, l.session, l.now(), current, previous)
	if err != nil {
		return Record{}, err
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("marshaling record: %w", err)
	}
	line = append(line, '\n')

	tempPath := l.path + ".tmp"
	if err := writeSynced(tempPath, line); err != nil {
		os.Remove(tempPath)
		return Record{}, err
	}
	if err := os.Rename(tempPath, l.path); err != nil {
		os.Remove(tempPath)
		return Record{}, fmt.Errorf("replacing command log: %w", err)
	}

	// The old descriptor now points at the replaced file.
	l.file.Close()
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		l.file = nil
		return Record{}, fmt.Errorf("reopening command log: %w", err)
	}
	l.file = f
	l.size = int64(len(line))
	l.next = 2
	return rec, nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating temp log: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing temp log: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing temp log: %w", err)
	}
	return f.Close()
}

// Close closes the file. The file itself is left in place.
func (l *FileLog) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadFile reads every committed record from a JSON Lines log.
func ReadFile(ctx context.Context, path string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening command log: %w", err)
	}
	defer f.Close()

	records, _, err := decodeRecords(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return records, nil
}

// decodeRecords parses newline-terminated records and returns the byte
// length of the committed prefix. An unterminated final line is treated as
// a torn write and excluded. A terminated line that does not parse is an
// error.
func decodeRecords(r io.Reader) ([]Record, int64, error) {
	var records []Record
	var valid int64

	br := bufio.NewReaderSize(r, 64*1024)
	for line := 1; ; line++ {
		b, err := br.ReadBytes('\n')
		if len(b) > 0 && b[len(b)-1] == '\n' {
			if trimmed := bytes.TrimSpace(b); len(trimmed) > 0 {
				var rec Record
				if uerr := json.Unmarshal(trimmed, &rec); uerr != nil {
					return records, valid, &RecordError{Line: line,
						Err: fmt.Errorf("%w: %v", ErrCorruptRecord, uerr)}
				}
				records = append(records, rec)
			}
			valid += int64(len(b))
		}
		if err == io.EOF {
			return records, valid, nil
		}
		if err != nil {
			return records, valid, fmt.Errorf("reading line %d: %w", line, err)
		}
	}
}
