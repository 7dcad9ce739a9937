// Package session manages editing sessions and their recovery logs.
//
// Each open session writes its command log to <dir>/<id>.jsonl (or .db for
// the sqlite backend). Closing a session cleanly deletes the log, so any
// log still in the directory when the editor starts belongs to a session
// that ended abnormally and can be recovered.
//
// A session holds an flock on <dir>/<id>.lock while it is open, so editors
// sharing a recovery directory never list, recover or discard each other's
// live logs.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dshills/mmdedit/internal/config"
	"github.com/dshills/mmdedit/internal/engine/cmdlog"
	"github.com/dshills/mmdedit/internal/observability"
	"github.com/dshills/mmdedit/internal/project"
	"github.com/google/uuid"
)

// Session errors.
var (
	// ErrSessionNotFound indicates no recovery log for an id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionOpen indicates an id that belongs to a live session.
	ErrSessionOpen = errors.New("session is open")

	// ErrSessionClosed indicates use of a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// Log file extensions by backend.
var extensions = map[string]string{
	config.BackendJSONL:  ".jsonl",
	config.BackendSQLite: ".db",
}

// Manager creates, tracks and recovers sessions. Its methods are safe for
// concurrent use; each Session is used by one goroutine at a time through
// Do.
type Manager struct {
	mu       sync.Mutex
	prefs    config.Preferences
	sessions map[string]*Session
	reserved map[string]bool // ids with a Recover or Discard in flight

	logger  *slog.Logger
	metrics *observability.Metrics
	newID   func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records session, history and log activity.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a manager using the recovery and undo preferences.
func NewManager(prefs config.Preferences, opts ...Option) *Manager {
	m := &Manager{
		prefs:    prefs,
		sessions: make(map[string]*Session),
		reserved: make(map[string]bool),
		logger:   slog.New(slog.DiscardHandler),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "session")
	return m
}

// Dir returns the recovery directory.
func (m *Manager) Dir() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefs.Recovery.Dir
}

// Preferences returns the preferences currently in effect.
func (m *Manager) Preferences() config.Preferences {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefs
}

// Open starts a new session on a blank project. When recovery is enabled
// its command log is created in the recovery directory.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	prefs := m.Preferences()
	id := m.newID()

	var log cmdlog.Log
	var lock *sessionLock
	var path string
	if prefs.Recovery.Enabled {
		var err error
		path = filepath.Join(prefs.Recovery.Dir, id+extensions[prefs.Recovery.Backend])
		if lock, err = acquireLock(lockPath(path)); err != nil {
			return nil, err
		}
		if log, err = m.openLog(ctx, prefs, path, id); err != nil {
			lock.release()
			return nil, err
		}
	}

	opts := m.projectOptions(prefs)
	if log != nil {
		opts = append(opts, project.WithRecovery(m.writer(log, prefs.Recovery.Backend)))
	}
	s := m.track(id, path, log, lock, project.New(opts...))
	m.logger.Info("session opened", "session", id, "log", path)
	return s, nil
}

// Pending lists recovery logs in the directory that do not belong to an
// open session, oldest first. Logs locked by another process and ids being
// recovered or discarded are left out.
func (m *Manager) Pending() ([]Pending, error) {
	m.mu.Lock()
	dir := m.prefs.Recovery.Dir
	busy := make(map[string]bool, len(m.sessions)+len(m.reserved))
	for id := range m.sessions {
		busy[id] = true
	}
	for id := range m.reserved {
		busy[id] = true
	}
	m.mu.Unlock()
	return scanPending(dir, busy)
}

// scanPending lists the unlocked logs in dir whose ids are not in skip.
func scanPending(dir string, skip map[string]bool) ([]Pending, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recovery dir: %w", err)
	}

	var pending []Pending
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, backend, ok := parseLogName(e.Name())
		if !ok || skip[id] || isLocked(filepath.Join(dir, id+".lock")) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		pending = append(pending, Pending{
			ID:       id,
			Path:     filepath.Join(dir, e.Name()),
			Backend:  backend,
			Modified: info.ModTime(),
			Size:     info.Size(),
		})
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Modified.Before(pending[j].Modified)
	})
	return pending, nil
}

// Pending describes a recovery log left by a session that did not close.
type Pending struct {
	ID       string
	Path     string
	Backend  string
	Modified time.Time
	Size     int64
}

// Recover replays the pending log of session id into a new session, which
// keeps appending to the same log. On error the log is left in place.
// Concurrent calls for one id admit a single winner; the rest get
// ErrSessionOpen.
func (m *Manager) Recover(ctx context.Context, id string, opts ...cmdlog.ReplayOption) (*Session, cmdlog.Result, error) {
	if err := m.reserve(id); err != nil {
		return nil, cmdlog.Result{}, err
	}
	defer m.unreserve(id)

	p, lock, err := m.claim(id)
	if err != nil {
		return nil, cmdlog.Result{}, err
	}
	prefs := m.Preferences()

	log, err := m.openLog(ctx, prefs, p.Path, "")
	if err != nil {
		lock.release()
		return nil, cmdlog.Result{}, err
	}

	projOpts := append(m.projectOptions(prefs),
		project.WithRecovery(m.writer(log, p.Backend)),
		project.WithReplay(opts...),
	)
	proj, res, err := project.Recover(ctx, log, projOpts...)
	if m.metrics != nil {
		m.metrics.RecordReplay(res, err)
	}
	if err != nil {
		log.Close()
		lock.release()
		return nil, res, fmt.Errorf("recovering session %s: %w", id, err)
	}

	s := m.track(id, p.Path, log, lock, proj)
	m.logger.Info("session recovered", "session", id, "records", res.Records, "applied", res.Applied)
	return s, res, nil
}

// Preview replays the pending log of session id into a detached project
// without opening a session. The log is only read: a torn final record is
// skipped, not cut, and nothing is appended. The session stays pending.
func (m *Manager) Preview(ctx context.Context, id string, opts ...cmdlog.ReplayOption) (*project.Project, cmdlog.Result, error) {
	if err := m.reserve(id); err != nil {
		return nil, cmdlog.Result{}, err
	}
	defer m.unreserve(id)

	p, lock, err := m.claim(id)
	if err != nil {
		return nil, cmdlog.Result{}, err
	}
	defer lock.release()

	records, err := readRecords(ctx, p)
	if err != nil {
		return nil, cmdlog.Result{}, err
	}
	projOpts := append(m.projectOptions(m.Preferences()), project.WithReplay(opts...))
	proj, res, err := project.Recover(ctx, cmdlog.StaticSource(records), projOpts...)
	if m.metrics != nil {
		m.metrics.RecordReplay(res, err)
	}
	if err != nil {
		return nil, res, fmt.Errorf("previewing session %s: %w", id, err)
	}
	m.logger.Info("session previewed", "session", id, "records", res.Records, "applied", res.Applied)
	return proj, res, nil
}

// readRecords reads a pending log without opening it for writing.
func readRecords(ctx context.Context, p Pending) ([]cmdlog.Record, error) {
	if p.Backend != config.BackendSQLite {
		return cmdlog.ReadFile(ctx, p.Path)
	}
	l, err := cmdlog.OpenSQLite(ctx, p.Path)
	if err != nil {
		return nil, err
	}
	defer l.Close()
	return l.Records(ctx)
}

// Discard deletes the pending log of session id.
func (m *Manager) Discard(id string) error {
	if err := m.reserve(id); err != nil {
		return err
	}
	defer m.unreserve(id)

	p, lock, err := m.claim(id)
	if err != nil {
		return err
	}
	defer lock.release()
	if err := removeLog(p.Path); err != nil {
		return err
	}
	m.logger.Info("session discarded", "session", id)
	return nil
}

// reserve marks id as busy in this manager until unreserve.
func (m *Manager) reserve(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, open := m.sessions[id]; open || m.reserved[id] {
		return fmt.Errorf("%w: %s", ErrSessionOpen, id)
	}
	m.reserved[id] = true
	return nil
}

func (m *Manager) unreserve(id string) {
	m.mu.Lock()
	delete(m.reserved, id)
	m.mu.Unlock()
}

// claim finds the pending log of a reserved id and takes its lock.
func (m *Manager) claim(id string) (Pending, *sessionLock, error) {
	dir := m.Dir()
	pending, err := scanPending(dir, nil)
	if err != nil {
		return Pending{}, nil, err
	}
	for _, p := range pending {
		if p.ID != id {
			continue
		}
		lock, err := acquireLock(lockPath(p.Path))
		if err != nil {
			return Pending{}, nil, fmt.Errorf("locking session %s: %w", id, err)
		}
		return p, lock, nil
	}
	if isLocked(filepath.Join(dir, id+".lock")) {
		return Pending{}, nil, fmt.Errorf("%w: %s", ErrSessionLocked, id)
	}
	return Pending{}, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// Sessions returns the ids of open sessions, sorted.
func (m *Manager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Apply makes prefs current. The undo soft limit is applied to every open
// session; recovery settings affect sessions opened later.
func (m *Manager) Apply(prefs config.Preferences) {
	m.mu.Lock()
	m.prefs = prefs
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Do(func(p *project.Project) { p.SetSoftLimit(prefs.Undo.SoftLimit) })
	}
	m.logger.Debug("preferences applied", "sessions", len(sessions), "soft_limit", prefs.Undo.SoftLimit)
}

// WatchPreferences reloads the preferences file at path whenever it changes
// and applies the result. A file that fails to load is logged and ignored.
// It blocks until ctx is done.
func (m *Manager) WatchPreferences(ctx context.Context, path string, opts ...config.WatchOption) error {
	opts = append([]config.WatchOption{config.WithWatchLogger(m.logger)}, opts...)
	return config.Watch(ctx, path, func(prefs config.Preferences, err error) {
		if err != nil {
			return
		}
		m.Apply(prefs)
	}, opts...)
}

func (m *Manager) projectOptions(prefs config.Preferences) []project.Option {
	opts := []project.Option{
		project.WithSoftLimit(prefs.Undo.SoftLimit),
		project.WithLogger(m.logger),
	}
	if m.metrics != nil {
		opts = append(opts, project.WithObserver(m.metrics))
	}
	return opts
}

func (m *Manager) writer(log cmdlog.Log, backend string) cmdlog.Writer {
	if m.metrics == nil {
		return log
	}
	return m.metrics.InstrumentWriter(log, backend)
}

func (m *Manager) openLog(ctx context.Context, prefs config.Preferences, path, id string) (cmdlog.Log, error) {
	switch filepath.Ext(path) {
	case extensions[config.BackendSQLite]:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating recovery dir: %w", err)
		}
		return cmdlog.OpenSQLite(ctx, path, cmdlog.WithSQLiteSession(id))
	default:
		return cmdlog.OpenFile(path, cmdlog.WithSession(id), cmdlog.WithSync(prefs.Recovery.Sync))
	}
}

func (m *Manager) track(id, path string, log cmdlog.Log, lock *sessionLock, p *project.Project) *Session {
	s := &Session{id: id, path: path, log: log, lock: lock, project: p, manager: m}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.SessionStarted()
	}
	return s
}

func (m *Manager) untrack(id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok && m.metrics != nil {
		m.metrics.SessionEnded()
	}
}

// parseLogName splits "<id>.<ext>" into the id and its backend. Lock files
// and other extensions are rejected.
func parseLogName(name string) (id, backend string, ok bool) {
	ext := filepath.Ext(name)
	for b, e := range extensions {
		if ext == e {
			id = strings.TrimSuffix(name, ext)
			if _, err := uuid.Parse(id); err != nil {
				return "", "", false
			}
			return id, b, true
		}
	}
	return "", "", false
}

// removeLog deletes a log and any SQLite side files.
func removeLog(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	for _, suffix := range []string{"-journal", "-wal", "-shm"} {
		os.Remove(path + suffix)
	}
	return nil
}

// Session is one open editing session.
type Session struct {
	mu      sync.Mutex
	id      string
	path    string
	log     cmdlog.Log
	lock    *sessionLock
	project *project.Project
	manager *Manager
	closed  bool
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// LogPath returns the recovery log path, or "" when recovery is off.
func (s *Session) LogPath() string {
	return s.path
}

// Do runs fn with exclusive use of the session's project. It reports
// ErrSessionClosed after Close.
func (s *Session) Do(fn func(p *project.Project)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	fn(s.project)
	return nil
}

// Close ends the session cleanly and deletes its recovery log.
func (s *Session) Close() error {
	return s.close(true)
}

// Abandon ends the session but leaves its recovery log in place, as a
// crash would.
func (s *Session) Abandon() error {
	return s.close(false)
}

func (s *Session) close(remove bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.project.Close()
	var err error
	if s.log != nil {
		err = s.log.Close()
		if remove && err == nil {
			err = removeLog(s.path)
		}
	}
	s.lock.release()
	s.mu.Unlock()

	s.manager.untrack(s.id)
	s.manager.logger.Info("session closed", "session", s.id, "log_removed", remove && err == nil)
	return err
}
