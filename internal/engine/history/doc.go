// Package history provides the undo/redo command stack of the editor.
//
// # Commands
//
// A Command is a reversible unit of work made of optional hooks:
//
//	cmd := history.NewCommand("Move bone",
//	    history.OnRedo(func(*history.Command) { bone.Translation = next }),
//	    history.OnUndo(func(*history.Command) { bone.Translation = prev }),
//	    history.OnPersistRedo(func(*history.Command) error { return log.Append(...) }),
//	)
//
// Missing hooks are no-ops, missing predicates allow the move. A command is
// destroyed exactly once, by truncation, eviction, Clear or Destroy of the
// stack that owns it.
//
// # Stack
//
// A Stack holds commands in push order with a cursor (Offset). Commands
// below the cursor are applied. Pushing after an undo discards the redo
// branch; pushing onto a full stack evicts the oldest command.
//
//	stack := history.NewStackWithSoftLimit(256)
//	err := stack.Push(cmd) // cmd already applied by the caller
//	stack.Undo()
//	stack.Redo()
//
// Push persists the command after it is in place. A *PersistError means the
// edit stands but will not survive a crash.
//
// # Dirty State
//
// The stack remembers a clean offset. MarkClean sets it to the cursor, Clear
// resets both to zero. Destroying the commands that lead back to the clean
// point makes it unreachable until the next MarkClean.
//
// # Grouping
//
// NewCompound and Group combine several commands into one undo unit.
package history
