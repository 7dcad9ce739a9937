package project

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dshills/mmdedit/internal/engine/cmdlog"
	"github.com/dshills/mmdedit/internal/engine/history"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Project is one editing session: a document, its undo stack and, when
// recovery is enabled, the command log every pushed command is written to.
//
// A Project is owned by a single goroutine.
type Project struct {
	doc    Document
	stack  *history.Stack
	log    cmdlog.Writer
	logger *slog.Logger

	// unsaved is set when the document holds changes that are not on the
	// undo stack, such as replayed records.
	unsaved bool
}

type options struct {
	softLimit int
	observer  history.Observer
	logger    *slog.Logger
	log       cmdlog.Writer
	replay    []cmdlog.ReplayOption
}

// Option configures a Project.
type Option func(*options)

// WithSoftLimit sets the undo soft limit.
func WithSoftLimit(n int) Option {
	return func(o *options) { o.softLimit = n }
}

// WithObserver attaches a history observer.
func WithObserver(obs history.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRecovery enables the command log from the start.
func WithRecovery(w cmdlog.Writer) Option {
	return func(o *options) { o.log = w }
}

// WithReplay passes options to the replay run by Recover.
func WithReplay(opts ...cmdlog.ReplayOption) Option {
	return func(o *options) { o.replay = append(o.replay, opts...) }
}

// New creates an empty project.
func New(opts ...Option) *Project {
	return newProject(newDocument(), opts...)
}

func newProject(doc Document, opts ...Option) *Project {
	return newProjectWith(doc, buildOptions(opts))
}

func buildOptions(opts []Option) options {
	o := options{softLimit: history.DefaultSoftLimit}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

func newProjectWith(doc Document, o options) *Project {
	stackOpts := []history.StackOption{
		history.WithSoftLimit(o.softLimit),
		history.WithLogger(o.logger),
	}
	if o.observer != nil {
		stackOpts = append(stackOpts, history.WithObserver(o.observer))
	}

	return &Project{
		doc:    doc,
		stack:  history.NewStack(stackOpts...),
		log:    o.log,
		logger: o.logger.With("component", "project"),
	}
}

// History returns a read-only view of the undo stack. Moves go through
// Undo and Redo so they are logged.
func (p *Project) History() HistoryView {
	return HistoryView{stack: p.stack}
}

// HistoryView reads the state of a project's undo stack.
type HistoryView struct {
	stack *history.Stack
}

// Count returns the number of entries.
func (v HistoryView) Count() int { return v.stack.Count() }

// Offset returns the number of applied entries.
func (v HistoryView) Offset() int { return v.stack.Offset() }

// SoftLimit returns the configured entry limit.
func (v HistoryView) SoftLimit() int { return v.stack.SoftLimit() }

// CleanOffset returns the offset of the last save.
func (v HistoryView) CleanOffset() int { return v.stack.CleanOffset() }

func (v HistoryView) CanPush() bool { return v.stack.CanPush() }
func (v HistoryView) CanUndo() bool { return v.stack.CanUndo() }
func (v HistoryView) CanRedo() bool { return v.stack.CanRedo() }
func (v HistoryView) UndoName() string { return v.stack.UndoName() }
func (v HistoryView) RedoName() string { return v.stack.RedoName() }

// Entries describes every entry, oldest first.
func (v HistoryView) Entries() []history.EntryInfo { return v.stack.Entries() }

// Document returns a deep copy of the document.
func (p *Project) Document() Document {
	return p.doc.clone()
}

// Camera returns the camera.
func (p *Project) Camera() Camera {
	return p.doc.Camera
}

// Model returns a copy of the named model.
func (p *Project) Model(name string) (*Model, bool) {
	m, ok := p.doc.Models[name]
	if !ok {
		return nil, false
	}
	return m.clone(), true
}

// ModelNames returns the model names, sorted.
func (p *Project) ModelNames() []string {
	names := make([]string, 0, len(p.doc.Models))
	for n := range p.doc.Models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Keyframes returns a model's keyframes sorted by bone and frame.
func (p *Project) Keyframes(model string) []Keyframe {
	motion := p.doc.Motions[model]
	if motion == nil {
		return nil
	}
	var out []Keyframe
	for _, frames := range motion.Bones {
		for _, k := range frames {
			out = append(out, k)
		}
	}
	sortKeyframes(out)
	return out
}

// Execute applies cmd and pushes it onto the undo stack.
//
// If cmd cannot be applied to the current document it is destroyed and an
// error wrapping ErrNotApplicable is returned. The children of a compound
// must touch disjoint state, since each child's undo is checked against the
// document after the whole compound; overlapping children are rejected.
// Otherwise the edit stands and the only possible error is a
// *history.PersistError: the edit will not survive a crash.
func (p *Project) Execute(cmd *history.Command) error {
	if cmd == nil {
		return nil
	}
	if !p.stack.CanPush() {
		cmd.Destroy()
		return fmt.Errorf("%w: %s: history busy", ErrNotApplicable, cmd.Name())
	}
	if edits, ok := leaves(cmd); ok {
		if err := checkEdits(&p.doc, edits); err != nil {
			cmd.Destroy()
			return fmt.Errorf("%s: %w", cmd.Name(), err)
		}
	} else if !cmd.CanRedo() {
		cmd.Destroy()
		return fmt.Errorf("%w: %s", ErrNotApplicable, cmd.Name())
	}
	cmd.Redo()
	return p.stack.Push(cmd)
}

// Undo reverts the newest applied command and reports whether the cursor
// moved. When recovery is enabled the reversal is logged; a logging failure
// is returned as a *history.PersistError and the undo stands.
func (p *Project) Undo() (bool, error) {
	cmd := p.stack.At(p.stack.Offset() - 1)
	if !p.stack.Undo() {
		return false, nil
	}
	return true, p.logMove(cmd, cmd.PersistUndo)
}

// Redo reapplies the next undone command and reports whether the cursor
// moved. Logging failures are handled as in Undo.
func (p *Project) Redo() (bool, error) {
	cmd := p.stack.At(p.stack.Offset())
	if !p.stack.Redo() {
		return false, nil
	}
	return true, p.logMove(cmd, cmd.PersistRedo)
}

// leaves flattens cmd into the edits it applies, in order. ok is false if
// any leaf was not built by this package.
func leaves(cmd *history.Command) ([]edit, bool) {
	switch v := cmd.Payload().(type) {
	case edit:
		return []edit{v}, true
	case []*history.Command:
		var out []edit
		for _, c := range v {
			es, ok := leaves(c)
			if !ok {
				return nil, false
			}
			out = append(out, es...)
		}
		return out, true
	}
	return nil, false
}

// checkEdits reports whether edits can be applied to d as one unit and
// later undone and redone. Every edit must accept d as it is, accept a
// scratch copy after the earlier edits ran, and accept the final state
// for its undo.
func checkEdits(d *Document, edits []edit) error {
	for _, e := range edits {
		if err := e.checkForward(d); err != nil {
			return err
		}
	}
	if len(edits) < 2 {
		return nil
	}
	scratch := d.clone()
	for _, e := range edits {
		if err := e.checkForward(&scratch); err != nil {
			return fmt.Errorf("%w: edits overlap: %w", ErrNotApplicable, err)
		}
		e.forward(&scratch)
	}
	for _, e := range edits {
		if err := e.checkBackward(&scratch); err != nil {
			return fmt.Errorf("%w: edits overlap: %w", ErrNotApplicable, err)
		}
	}
	return nil
}

func (p *Project) logMove(cmd *history.Command, persist func() error) error {
	if err := persist(); err != nil {
		p.logger.Warn("command not recoverable", "command", cmd.Name(), "error", err)
		return &history.PersistError{Command: cmd.Name(), Err: err}
	}
	return nil
}

// IsDirty reports whether the project changed since it was last saved.
func (p *Project) IsDirty() bool {
	return p.unsaved || p.stack.IsDirty()
}

// SetSoftLimit changes the undo soft limit.
func (p *Project) SetSoftLimit(n int) {
	p.stack.SetSoftLimit(n)
}

// EnableRecovery starts writing pushed commands to w. Commands already on
// the stack are not written.
func (p *Project) EnableRecovery(w cmdlog.Writer) {
	p.log = w
}

// DisableRecovery stops writing to the command log and returns it.
func (p *Project) DisableRecovery() cmdlog.Writer {
	w := p.log
	p.log = nil
	return w
}

// Recoverable reports whether pushed commands are being logged.
func (p *Project) Recoverable() bool {
	return p.log != nil
}

// Close destroys the undo history. The command log is not closed.
func (p *Project) Close() {
	p.stack.Destroy()
}

// Equal reports whether two projects hold the same document.
func (p *Project) Equal(other *Project) bool {
	return cmp.Equal(p.doc, other.doc, cmpopts.EquateEmpty())
}

// Diff returns a human-readable difference between two documents, or "".
func (p *Project) Diff(other *Project) string {
	return cmp.Diff(p.doc, other.doc, cmpopts.EquateEmpty())
}

// persist appends a record for e to the command log. Undo records carry
// the same blocks under the type's undo tag.
func (p *Project) persist(e edit, undo bool) error {
	if p.log == nil {
		return nil
	}
	typ := e.recordType()
	if undo {
		typ = undoType(typ)
	}
	current, previous := e.blocks()
	_, err := p.log.Append(context.Background(), typ, current, previous)
	return err
}

// command wraps an edit in a history command bound to this project.
func (p *Project) command(name string, e edit) *history.Command {
	return history.NewCommand(name,
		history.WithPayload(e),
		history.OnRedo(func(*history.Command) { e.forward(&p.doc) }),
		history.OnUndo(func(*history.Command) { e.backward(&p.doc) }),
		history.CanRedoWhen(func(*history.Command) bool { return e.checkForward(&p.doc) == nil }),
		history.CanUndoWhen(func(*history.Command) bool { return e.checkBackward(&p.doc) == nil }),
		history.OnPersistRedo(func(*history.Command) error { return p.persist(e, false) }),
		history.OnPersistUndo(func(*history.Command) error { return p.persist(e, true) }),
	)
}
