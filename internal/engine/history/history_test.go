package history

import (
	"errors"
	"testing"
	"time"
)

const testName = "This is a test."

// counterCommand returns a command whose redo increments and undo decrements
// *n, and whose destroy increments *destroyed.
func counterCommand(n, destroyed *int) *Command {
	return NewCommand(testName,
		OnRedo(func(*Command) { *n++ }),
		OnUndo(func(*Command) { *n-- }),
		OnDestroy(func(*Command) {
			if destroyed != nil {
				*destroyed++
			}
		}),
	)
}

// pushApplied applies cmd the way callers do, then pushes it.
func pushApplied(t *testing.T, s *Stack, cmd *Command) {
	t.Helper()
	cmd.Redo()
	if err := s.Push(cmd); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
}

// Command Tests

func TestCommandNilSafety(t *testing.T) {
	var c *Command
	c.SetName("x")
	c.SetPayload(1)
	c.SetOnUndo(nil)
	c.SetOnRedo(nil)
	c.SetOnDestroy(nil)
	c.SetOnPersistUndo(nil)
	c.SetOnPersistRedo(nil)
	c.SetCanUndo(nil)
	c.SetCanRedo(nil)
	c.Undo()
	c.Redo()
	c.Destroy()

	if c.Name() != "" {
		t.Error("nil command should have empty name")
	}
	if c.Payload() != nil {
		t.Error("nil command should have nil payload")
	}
	if c.CanUndo() || c.CanRedo() {
		t.Error("nil command should not be undoable")
	}
	if err := c.PersistRedo(); err != nil {
		t.Errorf("PersistRedo on nil = %v", err)
	}
}

func TestCommandDefaults(t *testing.T) {
	c := NewCommand("")
	if c.Name() != "" {
		t.Errorf("Name() = %q, want empty", c.Name())
	}
	if !c.CanUndo() || !c.CanRedo() {
		t.Error("missing predicates should allow undo and redo")
	}
	c.Undo()
	c.Redo()
	if err := c.PersistUndo(); err != nil {
		t.Errorf("PersistUndo = %v", err)
	}
	if err := c.PersistRedo(); err != nil {
		t.Errorf("PersistRedo = %v", err)
	}
}

func TestCommandAccessors(t *testing.T) {
	c := NewCommand("first")
	c.SetName(testName)
	if c.Name() != testName {
		t.Errorf("Name() = %q", c.Name())
	}

	payload := &struct{ n int }{n: 7}
	c.SetPayload(payload)
	if c.Payload() != payload {
		t.Error("payload not returned unchanged")
	}

	c.SetCanUndo(func(*Command) bool { return false })
	if c.CanUndo() {
		t.Error("predicate ignored")
	}
	c.SetCanUndo(nil)
	if !c.CanUndo() {
		t.Error("nil predicate should mean always true")
	}
}

func TestCommandDestroyOnce(t *testing.T) {
	calls := 0
	var seen any
	c := NewCommand("x",
		WithPayload("owned"),
		OnDestroy(func(cmd *Command) {
			calls++
			seen = cmd.Payload()
		}),
	)

	c.Destroy()
	c.Destroy()

	if calls != 1 {
		t.Errorf("destroy hook ran %d times, want 1", calls)
	}
	if seen != "owned" {
		t.Errorf("payload inside destroy hook = %v", seen)
	}
	if !c.Destroyed() {
		t.Error("Destroyed() = false")
	}
	if c.Payload() != nil {
		t.Error("payload kept after destroy")
	}
	if c.CanUndo() || c.CanRedo() {
		t.Error("destroyed command should not be undoable")
	}
}

// Stack Tests

func TestStackDefaults(t *testing.T) {
	s := NewStack()
	if s.SoftLimit() != DefaultSoftLimit {
		t.Errorf("SoftLimit() = %d, want %d", s.SoftLimit(), DefaultSoftLimit)
	}
	if s.MaxSize() != s.SoftLimit() {
		t.Error("MaxSize should equal SoftLimit")
	}
	if s.HardLimit() != HardLimit {
		t.Errorf("HardLimit() = %d", s.HardLimit())
	}
	if s.CanUndo() || s.CanRedo() || s.IsDirty() {
		t.Error("new stack should have no undo, no redo and be clean")
	}
	if !s.CanPush() {
		t.Error("new stack should accept pushes")
	}
}

func TestStackSoftLimitClamp(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero", 0, 1},
		{"negative", -5, 1},
		{"in range", 32, 32},
		{"above hard limit", HardLimit + 1, HardLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewStackWithSoftLimit(tt.in).SoftLimit(); got != tt.want {
				t.Errorf("NewStackWithSoftLimit(%d).SoftLimit() = %d, want %d", tt.in, got, tt.want)
			}
			s := NewStack()
			s.SetSoftLimit(tt.in)
			if got := s.SoftLimit(); got != tt.want {
				t.Errorf("SetSoftLimit(%d) -> %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestStackNilSafety(t *testing.T) {
	var s *Stack
	if err := s.Push(NewCommand("x")); err != nil {
		t.Errorf("Push on nil stack = %v", err)
	}
	if s.Undo() || s.Redo() {
		t.Error("undo/redo on nil stack moved")
	}
	s.Clear()
	s.Destroy()
	s.SetOffset(3)
	s.SetSoftLimit(3)
	s.MarkClean()
	if s.Count() != 0 || s.Offset() != 0 || s.CanPush() || s.IsDirty() {
		t.Error("nil stack queries should be zero")
	}

	fresh := NewStack()
	if err := fresh.Push(nil); err != nil {
		t.Errorf("Push(nil) = %v", err)
	}
	if fresh.Count() != 0 {
		t.Error("Push(nil) should be a no-op")
	}
}

func TestStackUndoRedoRoundTrip(t *testing.T) {
	s := NewStack()
	counter := 0
	for i := 0; i < 64; i++ {
		pushApplied(t, s, counterCommand(&counter, nil))
	}
	before := counter

	s.Undo()
	s.Undo()
	if counter != before-2 {
		t.Errorf("after two undos counter = %d, want %d", counter, before-2)
	}
	s.Redo()
	s.Redo()

	if counter != before {
		t.Errorf("counter = %d, want %d", counter, before)
	}
	if s.Count() != 64 {
		t.Errorf("Count() = %d, want 64", s.Count())
	}
	if s.Offset() != 64 {
		t.Errorf("Offset() = %d, want 64", s.Offset())
	}
	if !s.CanUndo() || s.CanRedo() || !s.IsDirty() {
		t.Error("flags changed by undo/redo round trip")
	}
	if s.At(0).Name() != testName {
		t.Errorf("At(0).Name() = %q", s.At(0).Name())
	}
}

func TestStackUndoRedoFlags(t *testing.T) {
	s := NewStack()
	n := 0
	pushApplied(t, s, counterCommand(&n, nil))

	if !s.Undo() {
		t.Fatal("Undo should move")
	}
	if s.CanUndo() || !s.CanRedo() || s.IsDirty() {
		t.Error("after undo: want canUndo=false canRedo=true dirty=false")
	}
	if s.Undo() {
		t.Error("second Undo should not move")
	}
	if !s.Redo() {
		t.Fatal("Redo should move")
	}
	if s.Redo() {
		t.Error("second Redo should not move")
	}
	if n != 1 {
		t.Errorf("n = %d, want 1", n)
	}
}

func TestStackPredicatesBlockMoves(t *testing.T) {
	s := NewStack()
	allow := false
	undone, redone := 0, 0
	cmd := NewCommand("guarded",
		OnUndo(func(*Command) { undone++ }),
		OnRedo(func(*Command) { redone++ }),
		CanUndoWhen(func(*Command) bool { return allow }),
		CanRedoWhen(func(*Command) bool { return allow }),
	)
	if err := s.Push(cmd); err != nil {
		t.Fatal(err)
	}

	if s.Undo() || undone != 0 || s.Offset() != 1 {
		t.Error("undo should be blocked by predicate")
	}
	allow = true
	if !s.Undo() || undone != 1 {
		t.Fatal("undo should run once allowed")
	}
	allow = false
	if s.Redo() || redone != 0 || s.Offset() != 0 {
		t.Error("redo should be blocked by predicate")
	}
}

func TestStackEvictsOldestAtSoftLimit(t *testing.T) {
	const limit = 8
	s := NewStackWithSoftLimit(limit)
	n, destroyed := 0, 0
	var first *Command
	for i := 0; i < limit; i++ {
		c := counterCommand(&n, &destroyed)
		if i == 0 {
			first = c
		}
		pushApplied(t, s, c)
	}
	if destroyed != 0 {
		t.Fatalf("destroyed = %d before overflow", destroyed)
	}

	pushApplied(t, s, counterCommand(&n, &destroyed))

	if destroyed != 1 {
		t.Errorf("destroyed = %d, want 1", destroyed)
	}
	if !first.Destroyed() {
		t.Error("oldest command was not the one evicted")
	}
	if s.Count() != limit {
		t.Errorf("Count() = %d, want %d", s.Count(), limit)
	}
	if s.Offset() != limit {
		t.Errorf("Offset() = %d, want %d", s.Offset(), limit)
	}
}

func TestStackPushAfterUndoDiscardsRedoBranch(t *testing.T) {
	s := NewStack()
	n := 0
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		c := NewCommand(name,
			OnRedo(func(*Command) { n++ }),
			OnUndo(func(*Command) { n-- }),
			OnDestroy(func(*Command) { order = append(order, name) }),
		)
		pushApplied(t, s, c)
	}
	s.Undo()
	s.Undo()
	s.Undo()

	pushApplied(t, s, counterCommand(&n, nil))

	if s.Count() != 1 {
		t.Errorf("Count() = %d, want 1", s.Count())
	}
	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("destroyed %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("destroy order %v, want %v", order, want)
			break
		}
	}
	if s.CanRedo() {
		t.Error("redo branch should be gone")
	}
}

func TestStackClear(t *testing.T) {
	s := NewStack()
	n, destroyed := 0, 0
	for i := 0; i < 5; i++ {
		pushApplied(t, s, counterCommand(&n, &destroyed))
	}
	s.Undo()

	s.Clear()

	if destroyed != 5 {
		t.Errorf("destroyed = %d, want 5", destroyed)
	}
	if s.Count() != 0 || s.Offset() != 0 {
		t.Error("stack not empty after Clear")
	}
	if s.CanUndo() || s.CanRedo() || s.IsDirty() {
		t.Error("flags not reset by Clear")
	}
}

func TestStackDestroy(t *testing.T) {
	s := NewStack()
	destroyed := 0
	n := 0
	pushApplied(t, s, counterCommand(&n, &destroyed))

	s.Destroy()

	if destroyed != 1 {
		t.Errorf("destroyed = %d, want 1", destroyed)
	}
	if s.CanPush() {
		t.Error("destroyed stack should refuse pushes")
	}
	late := counterCommand(&n, &destroyed)
	_ = s.Push(late)
	if s.Count() != 0 || late.Destroyed() {
		t.Error("push on destroyed stack should leave the command with the caller")
	}
}

func TestStackSetSoftLimitShrinks(t *testing.T) {
	s := NewStack()
	n, destroyed := 0, 0
	for i := 0; i < 10; i++ {
		pushApplied(t, s, counterCommand(&n, &destroyed))
	}

	s.SetSoftLimit(4)

	if s.Count() != 4 || s.Offset() != 4 {
		t.Errorf("Count/Offset = %d/%d, want 4/4", s.Count(), s.Offset())
	}
	if destroyed != 6 {
		t.Errorf("destroyed = %d, want 6", destroyed)
	}
}

func TestStackSetSoftLimitKeepsRedoContiguous(t *testing.T) {
	s := NewStack()
	var names []*Command
	for _, name := range []string{"a", "b", "c", "d"} {
		c := NewCommand(name)
		names = append(names, c)
		_ = s.Push(c)
	}
	s.SetOffset(1) // only "a" applied

	s.SetSoftLimit(2)

	if s.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", s.Count())
	}
	if s.At(0).Name() != "b" || s.At(1).Name() != "c" {
		t.Errorf("kept %q,%q, want b,c", s.At(0).Name(), s.At(1).Name())
	}
	if s.Offset() != 0 {
		t.Errorf("Offset() = %d, want 0", s.Offset())
	}
	if !names[0].Destroyed() || !names[3].Destroyed() {
		t.Error("a and d should be destroyed")
	}
}

func TestStackSetOffsetClampsWithoutHooks(t *testing.T) {
	s := NewStack()
	n := 0
	for i := 0; i < 3; i++ {
		pushApplied(t, s, counterCommand(&n, nil))
	}

	tests := []struct {
		in, want int
	}{
		{-1, 0},
		{2, 2},
		{99, 3},
	}
	for _, tt := range tests {
		s.SetOffset(tt.in)
		if s.Offset() != tt.want {
			t.Errorf("SetOffset(%d) -> %d, want %d", tt.in, s.Offset(), tt.want)
		}
	}
	if n != 3 {
		t.Errorf("SetOffset ran hooks: n = %d", n)
	}
}

func TestStackCleanState(t *testing.T) {
	s := NewStack()
	n := 0
	pushApplied(t, s, counterCommand(&n, nil))
	pushApplied(t, s, counterCommand(&n, nil))

	s.MarkClean()
	if s.IsDirty() {
		t.Error("dirty right after MarkClean")
	}
	s.Undo()
	if !s.IsDirty() {
		t.Error("undo past clean point should be dirty")
	}
	s.Redo()
	if s.IsDirty() {
		t.Error("redo back to clean point should be clean")
	}

	s.Undo()
	pushApplied(t, s, counterCommand(&n, nil))
	if s.CleanOffset() != -1 {
		t.Errorf("CleanOffset() = %d, want -1 after truncating clean point", s.CleanOffset())
	}
	s.Undo()
	if !s.IsDirty() {
		t.Error("unreachable clean point should keep the stack dirty")
	}

	s.Clear()
	if s.IsDirty() || s.CleanOffset() != 0 {
		t.Error("Clear should make the stack clean")
	}
}

func TestStackEvictionShiftsCleanOffset(t *testing.T) {
	s := NewStackWithSoftLimit(3)
	n := 0
	pushApplied(t, s, counterCommand(&n, nil))
	pushApplied(t, s, counterCommand(&n, nil))
	s.MarkClean()
	pushApplied(t, s, counterCommand(&n, nil))
	pushApplied(t, s, counterCommand(&n, nil))

	if s.CleanOffset() != 1 {
		t.Errorf("CleanOffset() = %d, want 1", s.CleanOffset())
	}
	s.Undo()
	s.Undo()
	if s.IsDirty() {
		t.Error("should be clean at shifted clean offset")
	}
}

func TestStackPersistOnPush(t *testing.T) {
	s := NewStack()
	var written []string
	ok := NewCommand("ok", OnPersistRedo(func(c *Command) error {
		written = append(written, c.Name())
		return nil
	}))
	if err := s.Push(ok); err != nil {
		t.Fatalf("Push = %v", err)
	}

	boom := errors.New("disk full")
	bad := NewCommand("bad", OnPersistRedo(func(*Command) error { return boom }))
	err := s.Push(bad)

	var pe *PersistError
	if !errors.As(err, &pe) {
		t.Fatalf("Push error = %v, want *PersistError", err)
	}
	if pe.Command != "bad" || !errors.Is(err, boom) {
		t.Errorf("PersistError = %+v", pe)
	}
	if s.Count() != 2 || s.Offset() != 2 {
		t.Error("failed persistence should not roll back the push")
	}
	if len(written) != 1 || written[0] != "ok" {
		t.Errorf("written = %v", written)
	}
}

func TestStackUndoRedoDoNotPersist(t *testing.T) {
	s := NewStack()
	persisted := 0
	cmd := NewCommand("x",
		OnPersistRedo(func(*Command) error { persisted++; return nil }),
		OnPersistUndo(func(*Command) error { persisted++; return nil }),
	)
	_ = s.Push(cmd)
	s.Undo()
	s.Redo()

	if persisted != 1 {
		t.Errorf("persist hooks ran %d times, want 1", persisted)
	}
}

func TestStackReentrantPushIgnored(t *testing.T) {
	s := NewStack()
	var inner *Command
	cmd := NewCommand("outer", OnUndo(func(*Command) {
		if s.CanPush() {
			t.Error("CanPush should be false inside a hook")
		}
		inner = NewCommand("inner")
		_ = s.Push(inner)
	}))
	_ = s.Push(cmd)
	s.Undo()

	if s.Count() != 1 {
		t.Errorf("Count() = %d, re-entrant push should be ignored", s.Count())
	}
	if !s.CanPush() {
		t.Error("CanPush should recover after the hook")
	}
}

type recordingObserver struct {
	events []string
}

func (o *recordingObserver) OnPush(name string)  { o.events = append(o.events, "push:"+name) }
func (o *recordingObserver) OnEvict(name string) { o.events = append(o.events, "evict:"+name) }
func (o *recordingObserver) OnUndo(name string)  { o.events = append(o.events, "undo:"+name) }
func (o *recordingObserver) OnRedo(name string)  { o.events = append(o.events, "redo:"+name) }
func (o *recordingObserver) OnPersistError(name string, _ error) {
	o.events = append(o.events, "persist-error:"+name)
}

func TestStackObserver(t *testing.T) {
	obs := &recordingObserver{}
	s := NewStackWithSoftLimit(1, WithObserver(obs))
	_ = s.Push(NewCommand("a"))
	_ = s.Push(NewCommand("b", OnPersistRedo(func(*Command) error { return errors.New("x") })))
	s.Undo()
	s.Redo()

	want := []string{"push:a", "evict:a", "push:b", "persist-error:b", "undo:b", "redo:b"}
	if len(obs.events) != len(want) {
		t.Fatalf("events = %v, want %v", obs.events, want)
	}
	for i := range want {
		if obs.events[i] != want[i] {
			t.Errorf("events = %v, want %v", obs.events, want)
			break
		}
	}
}

func TestStackEntriesAndNames(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ticks := 0
	s := NewStack(WithClock(func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}))
	_ = s.Push(NewCommand("a"))
	_ = s.Push(NewCommand("b"))
	s.Undo()

	if s.UndoName() != "a" || s.RedoName() != "b" {
		t.Errorf("UndoName/RedoName = %q/%q", s.UndoName(), s.RedoName())
	}
	entries := s.Entries()
	if len(entries) != 2 || !entries[0].Applied || entries[1].Applied {
		t.Errorf("Entries() = %+v", entries)
	}
	for i, e := range entries {
		if want := base.Add(time.Duration(i+1) * time.Second); !e.Timestamp.Equal(want) {
			t.Errorf("entry %d timestamp = %v, want %v", i, e.Timestamp, want)
		}
	}
	if s.At(5) != nil || s.At(-1) != nil {
		t.Error("At out of range should be nil")
	}
}

// Grouping Tests

func TestCompoundOrder(t *testing.T) {
	var trace []string
	mk := func(name string) *Command {
		return NewCommand(name,
			OnRedo(func(*Command) { trace = append(trace, "redo "+name) }),
			OnUndo(func(*Command) { trace = append(trace, "undo "+name) }),
		)
	}
	c := NewCompound("", mk("a"), mk("b"))
	if c.Name() != "2 operations" {
		t.Errorf("Name() = %q", c.Name())
	}

	c.Redo()
	c.Undo()

	want := []string{"redo a", "redo b", "undo b", "undo a"}
	for i := range want {
		if i >= len(trace) || trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}
}

func TestCompoundDestroysChildren(t *testing.T) {
	a, b := NewCommand("a"), NewCommand("b")
	c := NewCompound("pair", a, b)
	c.Destroy()
	if !a.Destroyed() || !b.Destroyed() {
		t.Error("children not destroyed")
	}
}

func TestCompoundPersistJoinsErrors(t *testing.T) {
	e1, e2 := errors.New("one"), errors.New("two")
	c := NewCompound("x",
		NewCommand("a", OnPersistRedo(func(*Command) error { return e1 })),
		NewCommand("b", OnPersistRedo(func(*Command) error { return e2 })),
	)
	err := c.PersistRedo()
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Errorf("PersistRedo() = %v", err)
	}
}

func TestGroupCommit(t *testing.T) {
	s := NewStack()
	g := NewGroup("Paste")
	g.Add(NewCommand("a"))
	g.Add(NewCommand("b"))
	if g.Len() != 2 {
		t.Errorf("Len() = %d", g.Len())
	}
	if err := g.Commit(s); err != nil {
		t.Fatal(err)
	}
	if err := g.Commit(s); err != nil {
		t.Fatal(err)
	}
	if s.Count() != 1 || s.UndoName() != "Paste" {
		t.Errorf("Count/UndoName = %d/%q", s.Count(), s.UndoName())
	}

	late := NewCommand("late")
	g.Add(late)
	if !late.Destroyed() {
		t.Error("adding to a committed group should destroy the command")
	}
}

func TestGroupCancel(t *testing.T) {
	s := NewStack()
	g := NewGroup("x")
	a := NewCommand("a")
	g.Add(a)
	g.Cancel()
	_ = g.Commit(s)

	if !a.Destroyed() {
		t.Error("cancel should destroy children")
	}
	if s.Count() != 0 {
		t.Error("cancelled group should not push")
	}
}

func TestGroupEmptyCommit(t *testing.T) {
	s := NewStack()
	if err := NewGroup("empty").Commit(s); err != nil {
		t.Fatal(err)
	}
	if s.Count() != 0 {
		t.Error("empty group pushed a command")
	}
}
