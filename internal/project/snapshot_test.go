package project

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/mmdedit/internal/engine/cmdlog"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "scene.yaml")
	p := withModel(t)
	execute(t, p, mustCmd(t)(NewPasteKeyframesCommand(p, "miku", []Keyframe{
		key("head", 0, 1), key("head", 30, 2),
	})))
	execute(t, p, mustCmd(t)(NewTransformBoneCommand(p, "miku", "center", pose(0.5))))

	if err := p.Save(context.Background(), path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if p.IsDirty() {
		t.Error("project should be clean after Save")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "version: 1\n") {
		t.Errorf("snapshot should start with its version, got %q", firstLine(data))
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := p.Diff(loaded); diff != "" {
		t.Errorf("loaded document mismatch (-saved +loaded):\n%s", diff)
	}
	if loaded.IsDirty() || loaded.History().Count() != 0 {
		t.Error("loaded project should be clean with no history")
	}
}

func TestSaveThenUndoIsDirty(t *testing.T) {
	p := withModel(t)
	if err := p.Save(context.Background(), filepath.Join(t.TempDir(), "scene.yaml")); err != nil {
		t.Fatal(err)
	}
	undo(t, p)
	if !p.IsDirty() {
		t.Error("undo past the save point should make the project dirty")
	}
	redo(t, p)
	if p.IsDirty() {
		t.Error("redo back to the save point should make the project clean")
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing", filepath.Join(dir, "nope.yaml"), "failed to read snapshot"},
		{"malformed", write("bad.yaml", "document: [\n"), "failed to parse snapshot"},
		{"version", write("v2.yaml", "version: 2\n"), "unsupported version 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func firstLine(b []byte) string {
	s, _, _ := strings.Cut(string(b), "\n")
	return s
}

func TestSaveCheckpointFailureDisablesRecovery(t *testing.T) {
	ctx := context.Background()
	log := cmdlog.NewMemoryLog("s")
	p := withModel(t, WithRecovery(log))
	execute(t, p, mustCmd(t)(NewTransformBoneCommand(p, "miku", "head", pose(1))))

	log.FailAppend = errors.New("disk full")
	err := p.Save(ctx, filepath.Join(t.TempDir(), "scene.yaml"))
	if err == nil || !strings.Contains(err.Error(), "writing checkpoint") {
		t.Fatalf("Save() = %v, want checkpoint error", err)
	}
	log.FailAppend = nil

	if p.Recoverable() {
		t.Error("recovery should be disabled after a failed checkpoint")
	}
	if log.Len() != 2 {
		t.Errorf("log holds %d records, want the 2 from before Save", log.Len())
	}

	// Later edits are not logged, and the log still replays to the state
	// before the save.
	before := p.Document()
	execute(t, p, mustCmd(t)(NewAddModelCommand(p, NewModel("rin", []string{"head"}, nil))))
	if log.Len() != 2 {
		t.Errorf("log grew to %d after recovery was disabled", log.Len())
	}
	got, _, err := Recover(ctx, log)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if diff := cmp.Diff(before, got.Document(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("recovered document mismatch (-before save +recovered):\n%s", diff)
	}
}
