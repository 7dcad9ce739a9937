package history

import (
	"log/slog"
	"time"
)

// HardLimit is the process-wide ceiling on retained commands per stack.
const HardLimit = 10000

// DefaultSoftLimit is the soft limit of a stack created without WithSoftLimit.
const DefaultSoftLimit = 1024

// noCleanOffset marks a clean state that can no longer be reached.
const noCleanOffset = -1

// Observer is notified of stack activity. Implementations must not call back
// into the stack.
type Observer interface {
	OnPush(name string)
	OnEvict(name string)
	OnUndo(name string)
	OnRedo(name string)
	OnPersistError(name string, err error)
}

// entry wraps a command with metadata.
type entry struct {
	command   *Command
	timestamp time.Time
}

// EntryInfo provides read-only info about a retained command.
type EntryInfo struct {
	Name      string
	Timestamp time.Time
	Applied   bool
}

// Stack is a bounded, cursor-addressed undo/redo history.
//
// Commands at indices below Offset are applied; the rest are reachable by
// Redo. A Stack is owned by a single goroutine and does no locking. All
// methods are safe to call on a nil *Stack.
type Stack struct {
	entries     []*entry
	offset      int
	cleanOffset int
	softLimit   int

	busy   bool
	closed bool

	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// StackOption configures a Stack.
type StackOption func(*Stack)

// WithSoftLimit sets the soft limit, clamped to [1, HardLimit].
func WithSoftLimit(n int) StackOption {
	return func(s *Stack) { s.softLimit = clampLimit(n) }
}

// WithObserver attaches an observer.
func WithObserver(o Observer) StackOption {
	return func(s *Stack) { s.observer = o }
}

// WithLogger sets the logger used for persistence warnings.
func WithLogger(l *slog.Logger) StackOption {
	return func(s *Stack) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) StackOption {
	return func(s *Stack) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStack creates an empty stack.
func NewStack(opts ...StackOption) *Stack {
	s := &Stack{
		softLimit: DefaultSoftLimit,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "history")
	return s
}

// NewStackWithSoftLimit creates an empty stack with the given soft limit.
func NewStackWithSoftLimit(n int, opts ...StackOption) *Stack {
	return NewStack(append(opts, WithSoftLimit(n))...)
}

func clampLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > HardLimit {
		return HardLimit
	}
	return n
}

// Push appends cmd as the newest applied command and takes ownership of it.
//
// Commands beyond the cursor are destroyed first, then the oldest command is
// evicted if the stack is full. The command is persisted after it is in
// place; a persistence failure is returned as a *PersistError but does not
// undo the push.
func (s *Stack) Push(cmd *Command) error {
	if cmd == nil || !s.CanPush() {
		return nil
	}

	s.truncate()
	if len(s.entries) >= s.softLimit {
		s.evictOldest()
	}

	s.entries = append(s.entries, &entry{command: cmd, timestamp: s.now()})
	s.offset = len(s.entries)
	s.notify(func(o Observer) { o.OnPush(cmd.Name()) })

	var err error
	s.guard(func() { err = cmd.PersistRedo() })
	if err != nil {
		s.logger.Warn("command not recoverable", "command", cmd.Name(), "error", err)
		s.notify(func(o Observer) { o.OnPersistError(cmd.Name(), err) })
		return &PersistError{Command: cmd.Name(), Err: err}
	}
	return nil
}

// truncate destroys the redo branch in index order.
func (s *Stack) truncate() {
	if s.offset >= len(s.entries) {
		return
	}
	if s.cleanOffset > s.offset {
		s.cleanOffset = noCleanOffset
	}
	dropped := s.entries[s.offset:]
	s.entries = s.entries[:s.offset]
	s.guard(func() {
		for i, e := range dropped {
			e.command.Destroy()
			dropped[i] = nil
		}
	})
}

// evictOldest destroys the command at index 0.
func (s *Stack) evictOldest() {
	if len(s.entries) == 0 {
		return
	}
	e := s.entries[0]
	s.entries[0] = nil
	s.entries = s.entries[1:]
	if s.offset > 0 {
		s.offset--
	}
	switch {
	case s.cleanOffset > 0:
		s.cleanOffset--
	case s.cleanOffset == 0:
		s.cleanOffset = noCleanOffset
	}
	s.notify(func(o Observer) { o.OnEvict(e.command.Name()) })
	s.guard(e.command.Destroy)
}

// dropNewest destroys the command at the end of the redo branch.
func (s *Stack) dropNewest() {
	last := len(s.entries) - 1
	e := s.entries[last]
	s.entries[last] = nil
	s.entries = s.entries[:last]
	if s.cleanOffset > len(s.entries) {
		s.cleanOffset = noCleanOffset
	}
	s.guard(e.command.Destroy)
}

// Undo reverts the newest applied command. It reports whether the cursor
// moved.
func (s *Stack) Undo() bool {
	if !s.CanUndo() || s.busy {
		return false
	}
	cmd := s.entries[s.offset-1].command
	if !cmd.CanUndo() {
		return false
	}
	s.guard(cmd.Undo)
	s.offset--
	s.notify(func(o Observer) { o.OnUndo(cmd.Name()) })
	return true
}

// Redo reapplies the oldest unapplied command. It reports whether the cursor
// moved.
func (s *Stack) Redo() bool {
	if !s.CanRedo() || s.busy {
		return false
	}
	cmd := s.entries[s.offset].command
	if !cmd.CanRedo() {
		return false
	}
	s.guard(cmd.Redo)
	s.offset++
	s.notify(func(o Observer) { o.OnRedo(cmd.Name()) })
	return true
}

// Clear destroys every command in index order and resets the cursor. A
// cleared stack is clean.
func (s *Stack) Clear() {
	if s == nil || s.busy {
		return
	}
	entries := s.entries
	s.entries = nil
	s.offset = 0
	s.cleanOffset = 0
	s.guard(func() {
		for _, e := range entries {
			e.command.Destroy()
		}
	})
}

// Destroy clears the stack and refuses further pushes.
func (s *Stack) Destroy() {
	if s == nil {
		return
	}
	s.Clear()
	s.closed = true
	s.observer = nil
}

// Count returns the number of retained commands.
func (s *Stack) Count() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// MaxSize returns the maximum number of retained commands, which is the
// current soft limit.
func (s *Stack) MaxSize() int {
	return s.SoftLimit()
}

// SoftLimit returns the configured soft limit.
func (s *Stack) SoftLimit() int {
	if s == nil {
		return 0
	}
	return s.softLimit
}

// SetSoftLimit changes the soft limit, clamped to [1, HardLimit]. If the
// stack holds more commands than the new limit, applied commands are evicted
// oldest first; any excess left after that is cut from the far end of the
// redo branch so the remaining redo sequence stays contiguous.
func (s *Stack) SetSoftLimit(n int) {
	if s == nil || s.busy {
		return
	}
	s.softLimit = clampLimit(n)
	for len(s.entries) > s.softLimit && s.offset > 0 {
		s.evictOldest()
	}
	for len(s.entries) > s.softLimit {
		s.dropNewest()
	}
}

// HardLimit returns the process-wide ceiling.
func (s *Stack) HardLimit() int {
	return HardLimit
}

// Offset returns the cursor position.
func (s *Stack) Offset() int {
	if s == nil {
		return 0
	}
	return s.offset
}

// SetOffset moves the cursor to n, clamped to [0, Count]. No hooks run; this
// is a raw positioning primitive for recovery.
func (s *Stack) SetOffset(n int) {
	if s == nil || s.busy {
		return
	}
	if n < 0 {
		n = 0
	}
	if n > len(s.entries) {
		n = len(s.entries)
	}
	s.offset = n
}

// CanPush reports whether Push would accept a command.
func (s *Stack) CanPush() bool {
	return s != nil && !s.closed && !s.busy
}

// CanUndo reports whether an applied command exists.
func (s *Stack) CanUndo() bool {
	return s != nil && s.offset > 0
}

// CanRedo reports whether an unapplied command exists.
func (s *Stack) CanRedo() bool {
	return s != nil && s.offset < len(s.entries)
}

// IsDirty reports whether the cursor differs from the last clean point.
func (s *Stack) IsDirty() bool {
	return s != nil && s.offset != s.cleanOffset
}

// MarkClean records the current cursor as the clean point.
func (s *Stack) MarkClean() {
	if s == nil {
		return
	}
	s.cleanOffset = s.offset
}

// CleanOffset returns the clean point, or -1 if it is no longer reachable.
func (s *Stack) CleanOffset() int {
	if s == nil {
		return 0
	}
	return s.cleanOffset
}

// At returns the command at index i, or nil if i is out of range.
func (s *Stack) At(i int) *Command {
	if s == nil || i < 0 || i >= len(s.entries) {
		return nil
	}
	return s.entries[i].command
}

// UndoName returns the name of the command Undo would revert.
func (s *Stack) UndoName() string {
	if !s.CanUndo() {
		return ""
	}
	return s.entries[s.offset-1].command.Name()
}

// RedoName returns the name of the command Redo would reapply.
func (s *Stack) RedoName() string {
	if !s.CanRedo() {
		return ""
	}
	return s.entries[s.offset].command.Name()
}

// Entries returns info about every retained command, oldest first.
func (s *Stack) Entries() []EntryInfo {
	if s == nil {
		return nil
	}
	result := make([]EntryInfo, len(s.entries))
	for i, e := range s.entries {
		result[i] = EntryInfo{
			Name:      e.command.Name(),
			Timestamp: e.timestamp,
			Applied:   i < s.offset,
		}
	}
	return result
}

// guard runs fn with the re-entrancy flag set.
func (s *Stack) guard(fn func()) {
	s.busy = true
	defer func() { s.busy = false }()
	fn()
}

func (s *Stack) notify(fn func(Observer)) {
	if s.observer != nil {
		fn(s.observer)
	}
}
