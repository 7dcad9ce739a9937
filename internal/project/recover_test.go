package project

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/mmdedit/internal/engine/cmdlog"
	"github.com/google/go-cmp/cmp"
)

// session runs a mixed edit session against p, including undo and a push
// over an abandoned redo branch.
func session(t *testing.T, p *Project) {
	t.Helper()
	execute(t, p, mustCmd(t)(NewAddModelCommand(p, testModel())))
	execute(t, p, mustCmd(t)(NewTransformBoneCommand(p, "miku", "head", pose(1))))
	execute(t, p, mustCmd(t)(NewUpdateMorphCommand(p, "miku", "smile", 0.5)))
	undo(t, p)
	execute(t, p, mustCmd(t)(NewUpdateMorphCommand(p, "miku", "smile", 0.25)))
	execute(t, p, mustCmd(t)(NewDeleteMaterialCommand(p, "miku", 0)))
	undo(t, p)
	execute(t, p, mustCmd(t)(NewDeleteMaterialCommand(p, "miku", 2)))
	execute(t, p, mustCmd(t)(NewPasteKeyframesCommand(p, "miku", []Keyframe{
		key("head", 0, 1), key("head", 30, 2), key("center", 15, 3),
	})))
	execute(t, p, mustCmd(t)(NewRemoveKeyframesCommand(p, "miku", []KeyRef{{Bone: "head", Frame: 30}})))
	undo(t, p)
	redo(t, p)
	cam := DefaultCamera()
	cam.Angle = [3]float32{0.1, 0.2, 0}
	execute(t, p, NewUpdateCameraCommand(p, cam))
}

func TestRecoverMemoryLog(t *testing.T) {
	log := cmdlog.NewMemoryLog("s1")
	p := New(WithRecovery(log))
	session(t, p)

	got, res, err := Recover(context.Background(), log)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if !res.Complete || res.Applied != log.Len() {
		t.Errorf("result = %+v, want complete with %d applied", res, log.Len())
	}
	if diff := p.Diff(got); diff != "" {
		t.Errorf("recovered document mismatch (-live +recovered):\n%s", diff)
	}
	if got.History().Count() != 0 {
		t.Error("recovery must not restore undo history")
	}
	if !got.IsDirty() {
		t.Error("recovered project should be dirty")
	}
	if got.Recoverable() {
		t.Error("recovered project should not log without WithRecovery")
	}
}

func TestRecoverFileLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	log, err := cmdlog.OpenFile(path, cmdlog.WithSession("s1"))
	if err != nil {
		t.Fatal(err)
	}
	p := New(WithRecovery(log))
	session(t, p)
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := cmdlog.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	var seen int
	got, _, err := Recover(context.Background(), reopened,
		WithReplay(cmdlog.WithProgress(func(cmdlog.Record) { seen++ })))
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if !p.Equal(got) {
		t.Errorf("recovered document mismatch:\n%s", p.Diff(got))
	}
	if seen == 0 {
		t.Error("progress callback never ran")
	}
}

func TestRecoverEmpty(t *testing.T) {
	got, res, err := Recover(context.Background(), cmdlog.NewMemoryLog(""))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Complete || got.IsDirty() || !got.Equal(New()) {
		t.Errorf("empty recovery = %+v dirty=%v", res, got.IsDirty())
	}
}

func TestRecoverDiverged(t *testing.T) {
	log := cmdlog.NewMemoryLog("s")
	ctx := context.Background()
	if _, err := log.Append(ctx, TypeCameraUpdate, Camera{Fov: 10}, Camera{Fov: 99}); err != nil {
		t.Fatal(err)
	}

	p, res, err := Recover(ctx, log)
	if !errors.Is(err, ErrDiverged) {
		t.Fatalf("Recover = %v, want ErrDiverged", err)
	}
	if p != nil || res.Complete {
		t.Error("diverged recovery must not return a project")
	}
	var rerr *cmdlog.RecordError
	if !errors.As(err, &rerr) || rerr.Seq != 1 {
		t.Errorf("error %v should name record 1", err)
	}
}

func TestRecoverRejects(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		setup func(*cmdlog.MemoryLog)
		want  error
	}{
		{"unknown type", func(l *cmdlog.MemoryLog) {
			l.Append(ctx, "light.update", map[string]int{"x": 1}, nil)
		}, cmdlog.ErrUnknownType},
		{"missing previous block", func(l *cmdlog.MemoryLog) {
			l.Append(ctx, TypeCameraUpdate, DefaultCamera(), nil)
		}, cmdlog.ErrCorruptRecord},
		{"bone blocks disagree", func(l *cmdlog.MemoryLog) {
			l.Append(ctx, TypeBoneTransform,
				boneState{Model: "a", Bone: "head"}, boneState{Model: "b", Bone: "head"})
		}, cmdlog.ErrCorruptRecord},
		{"unnamed model", func(l *cmdlog.MemoryLog) {
			l.Append(ctx, TypeModelAdd, Model{}, nil)
		}, cmdlog.ErrCorruptRecord},
		{"late checkpoint", func(l *cmdlog.MemoryLog) {
			l.Append(ctx, TypeCameraUpdate, DefaultCamera(), DefaultCamera())
			l.Append(ctx, TypeCheckpoint, checkpointState{Path: "x"}, nil)
		}, cmdlog.ErrCorruptRecord},
		{"edit on missing model", func(l *cmdlog.MemoryLog) {
			l.Append(ctx, TypeMorphWeight,
				morphState{Model: "rin", Morph: "smile", Weight: 1}, morphState{Model: "rin", Morph: "smile"})
		}, ErrModelNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := cmdlog.NewMemoryLog("s")
			tt.setup(log)
			p, _, err := Recover(ctx, log)
			if !errors.Is(err, tt.want) {
				t.Errorf("Recover = %v, want %v", err, tt.want)
			}
			if p != nil {
				t.Error("failed recovery returned a project")
			}
		})
	}
}

func TestRecoverCancelled(t *testing.T) {
	log := cmdlog.NewMemoryLog("s")
	p := New(WithRecovery(log))
	session(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, res, err := Recover(ctx, log)
	if !errors.Is(err, cmdlog.ErrReplayCancelled) {
		t.Fatalf("Recover = %v, want ErrReplayCancelled", err)
	}
	if got != nil || res.Complete || res.Applied != 0 {
		t.Errorf("cancelled recovery = %v, %+v", got, res)
	}
}

func TestRecoverAfterSave(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	log := cmdlog.NewMemoryLog("s")
	p := New(WithRecovery(log))
	execute(t, p, mustCmd(t)(NewAddModelCommand(p, testModel())))
	execute(t, p, mustCmd(t)(NewTransformBoneCommand(p, "miku", "head", pose(1))))

	if err := p.Save(ctx, filepath.Join(dir, "scene.yaml")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if log.Len() != 1 {
		t.Fatalf("log holds %d records after save, want the checkpoint only", log.Len())
	}

	undo(t, p)
	execute(t, p, mustCmd(t)(NewUpdateMorphCommand(p, "miku", "smile", 1)))

	got, res, err := Recover(ctx, log)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if res.Records != 3 {
		t.Errorf("Records = %d, want 3", res.Records)
	}
	if diff := p.Diff(got); diff != "" {
		t.Errorf("recovered document mismatch (-live +recovered):\n%s", diff)
	}
}

func TestRecoverCheckpointOnly(t *testing.T) {
	ctx := context.Background()
	log := cmdlog.NewMemoryLog("s")
	p := withModel(t, WithRecovery(log))
	if err := p.Save(ctx, filepath.Join(t.TempDir(), "scene.yaml")); err != nil {
		t.Fatal(err)
	}
	got, _, err := Recover(ctx, log)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsDirty() {
		t.Error("project recovered from a bare checkpoint should be clean")
	}
	if !p.Equal(got) {
		t.Errorf("mismatch:\n%s", p.Diff(got))
	}
}

func TestRecoverCheckpointMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scene.yaml")
	log := cmdlog.NewMemoryLog("s")
	p := withModel(t, WithRecovery(log))
	if err := p.Save(ctx, path); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("# edited elsewhere\n")
	f.Close()

	if _, _, err := Recover(ctx, log); !errors.Is(err, ErrCheckpointMismatch) {
		t.Errorf("Recover = %v, want ErrCheckpointMismatch", err)
	}
}

func TestRegistryTypes(t *testing.T) {
	want := []string{
		TypeBoneTransform, TypeBoneTransform + ".undo",
		TypeCameraUpdate, TypeCameraUpdate + ".undo",
		TypeKeyframePaste, TypeKeyframePaste + ".undo",
		TypeKeyframeRemove, TypeKeyframeRemove + ".undo",
		TypeMaterialDelete, TypeMaterialDelete + ".undo",
		TypeModelAdd, TypeModelAdd + ".undo",
		TypeMorphWeight, TypeMorphWeight + ".undo",
		TypeCheckpoint,
	}
	if diff := cmp.Diff(want, NewRegistry().Types()); diff != "" {
		t.Errorf("Types() mismatch (-want +got):\n%s", diff)
	}
}
