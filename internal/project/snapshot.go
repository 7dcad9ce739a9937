package project

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// snapshotVersion is the snapshot format written by Save.
const snapshotVersion = 1

// snapshot is the on-disk form of a saved document.
type snapshot struct {
	Version  int      `yaml:"version"`
	Document Document `yaml:"document"`
}

// Save writes the document to path and marks the project clean.
//
// If recovery is enabled the command log is replaced by a single checkpoint
// record naming the snapshot, so a later Recover starts from it. If the log
// cannot be replaced, recovery is disabled and the error returned; the
// snapshot itself is saved.
func (p *Project) Save(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving snapshot path: %w", err)
	}

	data, err := yaml.Marshal(snapshot{Version: snapshotVersion, Document: p.doc})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := writeAtomic(abs, data); err != nil {
		return err
	}

	p.stack.MarkClean()
	p.unsaved = false

	if p.log == nil {
		return nil
	}
	sum := sha256.Sum256(data)
	cp := checkpointState{Path: abs, SHA256: hex.EncodeToString(sum[:])}
	if _, err := p.log.Reset(ctx, TypeCheckpoint, cp, nil); err != nil {
		p.DisableRecovery()
		p.logger.Error("recovery disabled", "path", abs, "error", err)
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	p.logger.Info("project saved", "path", abs, "sha256", cp.SHA256)
	return nil
}

// Load reads a snapshot written by Save into a new clean project.
func Load(path string, opts ...Option) (*Project, error) {
	doc, _, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}
	return newProject(doc, opts...), nil
}

// readSnapshot returns the document in path and the hex sha256 of the file.
func readSnapshot(path string) (Document, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, "", fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return Document{}, "", fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	if snap.Version != snapshotVersion {
		return Document{}, "", fmt.Errorf("snapshot %s: unsupported version %d", path, snap.Version)
	}
	doc := snap.Document
	if doc.Models == nil {
		doc.Models = make(map[string]*Model)
	}
	if doc.Motions == nil {
		doc.Motions = make(map[string]*Motion)
	}
	sum := sha256.Sum256(data)
	return doc, hex.EncodeToString(sum[:]), nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
