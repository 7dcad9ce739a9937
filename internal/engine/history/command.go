package history

// Hook is a lifecycle callback. It receives the command it is attached to.
type Hook func(cmd *Command)

// PersistHook writes a command to durable storage.
type PersistHook func(cmd *Command) error

// Predicate reports whether an undo or redo may run.
type Predicate func(cmd *Command) bool

// Command is a reversible unit of work.
//
// Every hook is optional. A missing onUndo, onRedo or onDestroy is a no-op, a
// missing persistence hook succeeds, and a missing predicate allows the move.
// All methods are safe to call on a nil *Command.
type Command struct {
	name    string
	payload any

	onUndo        Hook
	onRedo        Hook
	onDestroy     Hook
	onPersistUndo PersistHook
	onPersistRedo PersistHook
	canUndo       Predicate
	canRedo       Predicate

	destroyed bool
}

// CommandOption configures a Command at construction.
type CommandOption func(*Command)

// OnUndo sets the undo hook.
func OnUndo(h Hook) CommandOption { return func(c *Command) { c.onUndo = h } }

// OnRedo sets the redo hook.
func OnRedo(h Hook) CommandOption { return func(c *Command) { c.onRedo = h } }

// OnDestroy sets the destroy hook.
func OnDestroy(h Hook) CommandOption { return func(c *Command) { c.onDestroy = h } }

// OnPersistUndo sets the undo persistence hook.
func OnPersistUndo(h PersistHook) CommandOption {
	return func(c *Command) { c.onPersistUndo = h }
}

// OnPersistRedo sets the redo persistence hook.
func OnPersistRedo(h PersistHook) CommandOption {
	return func(c *Command) { c.onPersistRedo = h }
}

// CanUndoWhen sets the undo predicate.
func CanUndoWhen(p Predicate) CommandOption { return func(c *Command) { c.canUndo = p } }

// CanRedoWhen sets the redo predicate.
func CanRedoWhen(p Predicate) CommandOption { return func(c *Command) { c.canRedo = p } }

// WithPayload attaches an opaque caller-owned value.
func WithPayload(v any) CommandOption { return func(c *Command) { c.payload = v } }

// NewCommand creates a command with the given name. Construction has no side
// effects.
func NewCommand(name string, opts ...CommandOption) *Command {
	c := &Command{name: name}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the human-readable name, or "" for a nil command.
func (c *Command) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// SetName replaces the name.
func (c *Command) SetName(name string) {
	if c == nil {
		return
	}
	c.name = name
}

// Payload returns the opaque value set by the creator.
func (c *Command) Payload() any {
	if c == nil {
		return nil
	}
	return c.payload
}

// SetPayload stores an opaque value. The command never releases it; the
// creator does so from its destroy hook if needed.
func (c *Command) SetPayload(v any) {
	if c == nil {
		return
	}
	c.payload = v
}

// SetOnUndo replaces the undo hook.
func (c *Command) SetOnUndo(h Hook) {
	if c == nil {
		return
	}
	c.onUndo = h
}

// SetOnRedo replaces the redo hook.
func (c *Command) SetOnRedo(h Hook) {
	if c == nil {
		return
	}
	c.onRedo = h
}

// SetOnDestroy replaces the destroy hook.
func (c *Command) SetOnDestroy(h Hook) {
	if c == nil {
		return
	}
	c.onDestroy = h
}

// SetOnPersistUndo replaces the undo persistence hook.
func (c *Command) SetOnPersistUndo(h PersistHook) {
	if c == nil {
		return
	}
	c.onPersistUndo = h
}

// SetOnPersistRedo replaces the redo persistence hook.
func (c *Command) SetOnPersistRedo(h PersistHook) {
	if c == nil {
		return
	}
	c.onPersistRedo = h
}

// SetCanUndo replaces the undo predicate.
func (c *Command) SetCanUndo(p Predicate) {
	if c == nil {
		return
	}
	c.canUndo = p
}

// SetCanRedo replaces the redo predicate.
func (c *Command) SetCanRedo(p Predicate) {
	if c == nil {
		return
	}
	c.canRedo = p
}

// CanUndo evaluates the undo predicate. A destroyed command cannot be undone.
func (c *Command) CanUndo() bool {
	if c == nil || c.destroyed {
		return false
	}
	if c.canUndo == nil {
		return true
	}
	return c.canUndo(c)
}

// CanRedo evaluates the redo predicate. A destroyed command cannot be redone.
func (c *Command) CanRedo() bool {
	if c == nil || c.destroyed {
		return false
	}
	if c.canRedo == nil {
		return true
	}
	return c.canRedo(c)
}

// Undo runs the undo hook.
func (c *Command) Undo() {
	if c == nil || c.destroyed || c.onUndo == nil {
		return
	}
	c.onUndo(c)
}

// Redo runs the redo hook.
func (c *Command) Redo() {
	if c == nil || c.destroyed || c.onRedo == nil {
		return
	}
	c.onRedo(c)
}

// PersistUndo runs the undo persistence hook.
func (c *Command) PersistUndo() error {
	if c == nil || c.destroyed || c.onPersistUndo == nil {
		return nil
	}
	return c.onPersistUndo(c)
}

// PersistRedo runs the redo persistence hook.
func (c *Command) PersistRedo() error {
	if c == nil || c.destroyed || c.onPersistRedo == nil {
		return nil
	}
	return c.onPersistRedo(c)
}

// Destroy runs the destroy hook once and releases the hooks and payload.
// Subsequent calls do nothing.
func (c *Command) Destroy() {
	if c == nil || c.destroyed {
		return
	}
	c.destroyed = true
	if c.onDestroy != nil {
		c.onDestroy(c)
	}
	c.onUndo = nil
	c.onRedo = nil
	c.onDestroy = nil
	c.onPersistUndo = nil
	c.onPersistRedo = nil
	c.canUndo = nil
	c.canRedo = nil
	c.payload = nil
}

// Destroyed reports whether Destroy has run.
func (c *Command) Destroyed() bool {
	return c != nil && c.destroyed
}
