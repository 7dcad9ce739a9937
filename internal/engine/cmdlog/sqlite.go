package cmdlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteLog stores records in a command_log table.
type SQLiteLog struct {
	db      *sql.DB
	session string
	next    uint64
	now     func() time.Time
}

// SQLiteOption configures a SQLiteLog.
type SQLiteOption func(*SQLiteLog)

// WithSQLiteSession stamps every record with a session id.
func WithSQLiteSession(id string) SQLiteOption {
	return func(l *SQLiteLog) { l.session = id }
}

// WithSQLiteClock overrides the record timestamp source.
func WithSQLiteClock(now func() time.Time) SQLiteOption {
	return func(l *SQLiteLog) {
		if now != nil {
			l.now = now
		}
	}
}

// OpenSQLite opens or creates a SQLite command log at path and resumes its
// sequence.
func OpenSQLite(ctx context.Context, path string, opts ...SQLiteOption) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps appends serialized and makes :memory: usable.
	db.SetMaxOpenConns(1)

	l := &SQLiteLog{db: db, next: 1, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := l.resume(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLog) init(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS command_log (
			seq INTEGER PRIMARY KEY,
			version INTEGER NOT NULL,
			type TEXT NOT NULL,
			ts TEXT NOT NULL,
			session TEXT NOT NULL DEFAULT '',
			current BLOB,
			previous BLOB
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create command_log table: %w", err)
	}
	return nil
}

func (l *SQLiteLog) resume(ctx context.Context) error {
	var last sql.NullInt64
	var session sql.NullString
	err := l.db.QueryRowContext(ctx,
		`SELECT seq, session FROM command_log ORDER BY seq DESC LIMIT 1`).Scan(&last, &session)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read last sequence: %w", err)
	}
	if last.Valid {
		l.next = uint64(last.Int64) + 1
	}
	if l.session == "" && session.Valid {
		l.session = session.String
	}
	return nil
}

// Session returns the session id stamped on records.
func (l *SQLiteLog) Session() string {
	return l.session
}

// Append inserts one record.
func (l *SQLiteLog) Append(ctx context.Context, typ string, current, previous any) (Record, error) {
	if l.db == nil {
		return Record{}, ErrClosed
	}
	rec, err := newRecord(l.next, typ, l.session, l.now(), current, previous)
	if err != nil {
		return Record{}, err
	}

	if err := insertRecord(ctx, l.db, rec); err != nil {
		return Record{}, err
	}

	l.next++
	return rec, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, db execer, rec Record) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO command_log (seq, version, type, ts, session, current, previous)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, int64(rec.Seq), rec.Version, rec.Type, rec.TS.Format(time.RFC3339Nano),
		rec.Session, []byte(rec.Current), []byte(rec.Previous))
	if err != nil {
		return fmt.Errorf("failed to insert record %d: %w", rec.Seq, err)
	}
	return nil
}

// Records reads every record in sequence order.
func (l *SQLiteLog) Records(ctx context.Context) ([]Record, error) {
	if l.db == nil {
		return nil, ErrClosed
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT seq, version, type, ts, session, current, previous
		FROM command_log ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec               Record
			seq               int64
			ts                string
			current, previous []byte
		)
		if err := rows.Scan(&seq, &rec.Version, &rec.Type, &ts, &rec.Session, &current, &previous); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Seq = uint64(seq)
		if rec.TS, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, &RecordError{Seq: rec.Seq, Type: rec.Type,
				Err: fmt.Errorf("%w: timestamp: %v", ErrCorruptRecord, err)}
		}
		if len(current) > 0 {
			rec.Current = current
		}
		if len(previous) > 0 {
			rec.Previous = previous
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// Truncate deletes every record and restarts the sequence at 1.
func (l *SQLiteLog) Truncate(ctx context.Context) error {
	if l.db == nil {
		return ErrClosed
	}
	if _, err := l.db.ExecContext(ctx, `DELETE FROM command_log`); err != nil {
		return fmt.Errorf("failed to truncate command_log: %w", err)
	}
	l.next = 1
	return nil
}

// Reset deletes every record and inserts rec 1 in one transaction.
func (l *SQLiteLog) Reset(ctx context.Context, typ string, current, previous any) (Record, error) {
	if l.db == nil {
		return Record{}, ErrClosed
	}
	rec, err := newRecord(1, typ, l.session, l.now(), current, previous)
	if err != nil {
		return Record{}, err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM command_log`); err != nil {
		return Record{}, fmt.Errorf("failed to truncate command_log: %w", err)
	}
	if err := insertRecord(ctx, tx, rec); err != nil {
		return Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("failed to commit reset: %w", err)
	}
	l.next = 2
	return rec, nil
}

// Close closes the database.
func (l *SQLiteLog) Close() error {
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}
