package cmdlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Result summarizes a replay.
type Result struct {
	Records  int           // Records read from the source
	Applied  int           // Records applied to the target
	LastSeq  uint64        // Sequence of the last applied record
	Complete bool          // Every record was applied
	Duration time.Duration // Wall time spent
}

type replayConfig struct {
	progress func(Record)
	logger   *slog.Logger
}

// ReplayOption configures Replay.
type ReplayOption func(*replayConfig)

// WithProgress calls fn after each record is applied.
func WithProgress(fn func(Record)) ReplayOption {
	return func(c *replayConfig) { c.progress = fn }
}

// WithReplayLogger sets the replay logger.
func WithReplayLogger(l *slog.Logger) ReplayOption {
	return func(c *replayConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Replay applies every record of src to target, in order.
//
// All records are verified and decoded before the first one is applied, so
// ordering and decode errors leave target untouched. An apply error or a
// cancelled context stops the replay part way; the returned Result then has
// Complete == false and target must be discarded.
func Replay[T any](ctx context.Context, src Source, target T, reg *Registry[T], opts ...ReplayOption) (Result, error) {
	cfg := replayConfig{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}
	start := time.Now()
	var res Result
	finish := func(err error) (Result, error) {
		res.Duration = time.Since(start)
		if err != nil {
			cfg.logger.Error("replay failed", "applied", res.Applied, "records", res.Records, "error", err)
		}
		return res, err
	}

	records, err := src.Records(ctx)
	if err != nil {
		return finish(fmt.Errorf("reading command log: %w", err))
	}
	res.Records = len(records)

	if err := Verify(records); err != nil {
		return finish(err)
	}

	appliers := make([]Applier[T], len(records))
	for i, rec := range records {
		if appliers[i], err = reg.Decode(rec); err != nil {
			return finish(err)
		}
	}

	for i, a := range appliers {
		if err := ctx.Err(); err != nil {
			return finish(fmt.Errorf("%w after %d of %d records: %v", ErrReplayCancelled, res.Applied, res.Records, err))
		}
		rec := records[i]
		if err := a.Apply(target); err != nil {
			return finish(&RecordError{Seq: rec.Seq, Type: rec.Type, Err: fmt.Errorf("applying: %w", err)})
		}
		res.Applied++
		res.LastSeq = rec.Seq
		if cfg.progress != nil {
			cfg.progress(rec)
		}
	}

	res.Complete = true
	cfg.logger.Debug("replay complete", "records", res.Records, "last_seq", res.LastSeq)
	return finish(nil)
}
