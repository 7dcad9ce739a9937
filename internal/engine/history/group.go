package history

import (
	"errors"
	"fmt"
)

// NewCompound folds several commands into a single undo unit.
//
// Redo runs the children in order and Undo in reverse order. Persistence
// writes every child in order and joins their errors. The children are
// destroyed with the compound and must not be pushed on their own.
//
// The predicates of all children are evaluated against the same state, so
// children that depend on each other's effects make the compound refuse to
// undo.
func NewCompound(name string, children ...*Command) *Command {
	kids := make([]*Command, 0, len(children))
	for _, c := range children {
		if c != nil {
			kids = append(kids, c)
		}
	}
	if name == "" {
		switch len(kids) {
		case 1:
			name = kids[0].Name()
		default:
			name = fmt.Sprintf("%d operations", len(kids))
		}
	}

	return NewCommand(name,
		WithPayload(kids),
		OnRedo(func(*Command) {
			for _, c := range kids {
				c.Redo()
			}
		}),
		OnUndo(func(*Command) {
			for i := len(kids) - 1; i >= 0; i-- {
				kids[i].Undo()
			}
		}),
		OnPersistRedo(func(*Command) error {
			var errs []error
			for _, c := range kids {
				if err := c.PersistRedo(); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		}),
		OnPersistUndo(func(*Command) error {
			var errs []error
			for i := len(kids) - 1; i >= 0; i-- {
				if err := kids[i].PersistUndo(); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		}),
		CanUndoWhen(func(*Command) bool {
			for _, c := range kids {
				if !c.CanUndo() {
					return false
				}
			}
			return true
		}),
		CanRedoWhen(func(*Command) bool {
			for _, c := range kids {
				if !c.CanRedo() {
					return false
				}
			}
			return true
		}),
		OnDestroy(func(*Command) {
			for _, c := range kids {
				c.Destroy()
			}
		}),
	)
}

// Group collects commands to be pushed as one compound.
//
//	g := history.NewGroup("Paste keyframes")
//	g.Add(a)
//	g.Add(b)
//	err := g.Commit(stack)
type Group struct {
	name     string
	children []*Command
	done     bool
}

// NewGroup starts a group.
func NewGroup(name string) *Group {
	return &Group{name: name}
}

// Add appends a command to the group. Adding to a finished group destroys
// the command.
func (g *Group) Add(cmd *Command) {
	if cmd == nil {
		return
	}
	if g.done {
		cmd.Destroy()
		return
	}
	g.children = append(g.children, cmd)
}

// Len returns the number of collected commands.
func (g *Group) Len() int {
	return len(g.children)
}

// Commit pushes the collected commands as one compound. An empty group
// pushes nothing. Safe to call more than once; only the first call has
// effect.
func (g *Group) Commit(s *Stack) error {
	if g.done {
		return nil
	}
	g.done = true
	if len(g.children) == 0 {
		return nil
	}
	return s.Push(NewCompound(g.name, g.children...))
}

// Cancel destroys the collected commands without pushing them. Commands
// already applied to the document are not reverted.
func (g *Group) Cancel() {
	if g.done {
		return
	}
	g.done = true
	for _, c := range g.children {
		c.Destroy()
	}
	g.children = nil
}
