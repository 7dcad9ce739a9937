package project

import (
	"context"
	"fmt"

	"github.com/dshills/mmdedit/internal/engine/cmdlog"
)

// Recover rebuilds a project from a command log.
//
// Replay starts from a blank document, or from the snapshot named by a
// checkpoint in the first record. The returned project has an empty undo
// stack, reports itself dirty when any edit was replayed, and has recovery
// disabled; pass WithRecovery to continue logging. On error the project is
// nil and the Result says how far replay got.
func Recover(ctx context.Context, src cmdlog.Source, opts ...Option) (*Project, cmdlog.Result, error) {
	o := buildOptions(opts)
	logger := o.logger.With("component", "project")

	records, err := src.Records(ctx)
	if err != nil {
		return nil, cmdlog.Result{}, fmt.Errorf("reading command log: %w", err)
	}

	base := newDocument()
	if len(records) > 0 && records[0].Type == TypeCheckpoint {
		if base, err = loadCheckpoint(records[0]); err != nil {
			return nil, cmdlog.Result{Records: len(records)}, err
		}
	}

	replayOpts := append([]cmdlog.ReplayOption{cmdlog.WithReplayLogger(o.logger)}, o.replay...)
	res, err := cmdlog.Replay(ctx, cmdlog.StaticSource(records), &base, NewRegistry(), replayOpts...)
	if err != nil {
		return nil, res, err
	}

	p := newProjectWith(base, o)
	p.unsaved = res.Applied > checkpoints(records)
	logger.Info("project recovered", "records", res.Records, "last_seq", res.LastSeq, "duration", res.Duration)
	return p, res, nil
}

func loadCheckpoint(rec cmdlog.Record) (Document, error) {
	var cp checkpointState
	if err := rec.Decode(&cp, nil); err != nil {
		return Document{}, &cmdlog.RecordError{Seq: rec.Seq, Type: rec.Type, Err: err}
	}
	doc, sum, err := readSnapshot(cp.Path)
	if err != nil {
		return Document{}, err
	}
	if sum != cp.SHA256 {
		return Document{}, fmt.Errorf("%w: %s", ErrCheckpointMismatch, cp.Path)
	}
	return doc, nil
}

func checkpoints(records []cmdlog.Record) int {
	n := 0
	for _, r := range records {
		if r.Type == TypeCheckpoint {
			n++
		}
	}
	return n
}
