package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dshills/mmdedit/internal/config"
	"github.com/dshills/mmdedit/internal/engine/cmdlog"
	"github.com/dshills/mmdedit/internal/logging"
	"github.com/dshills/mmdedit/internal/observability"
	"github.com/dshills/mmdedit/internal/project"
	"github.com/dshills/mmdedit/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"golang.org/x/term"
)

// environment is the state every command runs with.
type environment struct {
	prefs       config.Preferences
	logger      *slog.Logger
	registry    *prometheus.Registry
	metrics     *observability.Metrics
	manager     *session.Manager
	metricsPath string
}

func newEnvironment(flags globalFlags) (*environment, error) {
	prefs, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	if flags.logLevel != "" {
		if !logging.KnownLevel(flags.logLevel) {
			return nil, fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", flags.logLevel)
		}
		prefs.Logging.Level = flags.logLevel
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = prefs.Logging.Level
	logCfg.Format = prefs.Logging.Format
	logger := logging.New(logCfg)
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	return &environment{
		prefs:       prefs,
		logger:      logger,
		registry:    registry,
		metrics:     metrics,
		manager:     session.NewManager(prefs, session.WithLogger(logger), session.WithMetrics(metrics)),
		metricsPath: flags.metricsPath,
	}, nil
}

// writeMetrics dumps the registry in the Prometheus text format.
func (e *environment) writeMetrics() error {
	if e == nil || e.metricsPath == "" {
		return nil
	}
	families, err := e.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	f, err := os.Create(e.metricsPath)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			f.Close()
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return f.Close()
}

// =============================================================================
// Recover Handlers
// =============================================================================

func runRecoverList(cmd *cobra.Command, env *environment) error {
	pending, err := env.manager.Pending()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No recoverable sessions in %s.\n", env.manager.Dir())
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBACKEND\tSIZE\tMODIFIED")
	for _, p := range pending {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p.ID, p.Backend, p.Size, p.Modified.Format(time.RFC3339))
	}
	return w.Flush()
}

func runRecoverReplay(cmd *cobra.Command, env *environment, id, output string, progress bool) error {
	out := cmd.OutOrStdout()
	var opts []cmdlog.ReplayOption
	if progress {
		opts = append(opts, cmdlog.WithProgress(func(rec cmdlog.Record) {
			fmt.Fprintf(out, "%6d  %s\n", rec.Seq, rec.Type)
		}))
	}

	if output == "" {
		p, res, err := env.manager.Preview(cmd.Context(), id, opts...)
		if err != nil {
			return replayError(res, err)
		}
		fmt.Fprintf(out, "Replayed %d of %d records in %s.\n", res.Applied, res.Records, res.Duration.Round(time.Millisecond))
		describe(out, p)
		p.Close()
		fmt.Fprintln(out, "Dry run; the log was kept. Use --output to save and remove it.")
		return nil
	}

	s, res, err := env.manager.Recover(cmd.Context(), id, opts...)
	if err != nil {
		return replayError(res, err)
	}
	fmt.Fprintf(out, "Replayed %d of %d records in %s.\n", res.Applied, res.Records, res.Duration.Round(time.Millisecond))

	var saveErr error
	s.Do(func(p *project.Project) {
		describe(out, p)
		saveErr = p.Save(cmd.Context(), output)
	})
	if saveErr != nil {
		s.Abandon()
		return fmt.Errorf("failed to save %s: %w", output, saveErr)
	}
	if err := s.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved %s and removed the session log.\n", output)
	return nil
}

func replayError(res cmdlog.Result, err error) error {
	if res.Records > 0 {
		return fmt.Errorf("replay stopped after %d of %d records: %w", res.Applied, res.Records, err)
	}
	return err
}

// describe prints a short summary of a recovered project.
func describe(w io.Writer, p *project.Project) {
	cam := p.Camera()
	fmt.Fprintf(w, "Camera: look-at %v, distance %.2f, fov %d\n", cam.LookAt, cam.Distance, cam.Fov)
	names := p.ModelNames()
	if len(names) == 0 {
		fmt.Fprintln(w, "Models: none")
		return
	}
	fmt.Fprintln(w, "Models:")
	for _, name := range names {
		m, _ := p.Model(name)
		fmt.Fprintf(w, "  %s: %d bones, %d morphs, %d materials, %d keyframes\n",
			name, len(m.Bones), len(m.Morphs), len(m.Materials), len(p.Keyframes(name)))
	}
}

func runRecoverDiscard(cmd *cobra.Command, env *environment, id string) error {
	if err := env.manager.Discard(id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Discarded session %s.\n", id)
	return nil
}

// =============================================================================
// Log Handlers
// =============================================================================

type inspectOptions struct {
	query  string
	asJSON bool
	color  string
}

func runLogInspect(cmd *cobra.Command, env *environment, path string, opts inspectOptions) error {
	colorize, err := wantColor(cmd.OutOrStdout(), opts.color)
	if err != nil {
		return err
	}
	records, err := readLog(cmd.Context(), path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	reg := project.NewRegistry()
	var undecodable int
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %d: %w", rec.Seq, err)
		}
		status := "ok"
		if _, err := reg.Decode(rec); err != nil {
			status = err.Error()
			undecodable++
			env.logger.Debug("record does not decode", "seq", rec.Seq, "type", rec.Type, "error", err)
		}

		switch {
		case opts.asJSON:
			data = pretty.Pretty(data)
			if colorize {
				data = pretty.Color(data, nil)
			}
			out.Write(data)
		case opts.query != "":
			fmt.Fprintf(out, "%6d  %-22s  %s\n", rec.Seq, rec.Type, queryValue(data, opts.query))
		default:
			fmt.Fprintf(out, "%6d  %-22s  %s  %s\n", rec.Seq, rec.Type, rec.TS.Format(time.RFC3339), status)
		}
	}

	verr := cmdlog.Verify(records)
	fmt.Fprintf(cmd.ErrOrStderr(), "%d records, %d undecodable\n", len(records), undecodable)
	if verr != nil {
		return fmt.Errorf("log is not replayable: %w", verr)
	}
	if undecodable > 0 {
		return fmt.Errorf("log is not replayable: %d records do not decode", undecodable)
	}
	return nil
}

// queryValue evaluates a GJSON path against a record. Objects and arrays are
// printed as compact JSON.
func queryValue(record []byte, path string) string {
	res := gjson.GetBytes(record, path)
	switch {
	case !res.Exists():
		return "-"
	case res.IsObject(), res.IsArray():
		return string(pretty.Ugly([]byte(res.Raw)))
	default:
		return res.String()
	}
}

// wantColor resolves the --color flag. "auto" colors only a terminal.
func wantColor(w io.Writer, mode string) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto":
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil
	default:
		return false, fmt.Errorf("invalid color mode %q (must be auto, always, or never)", mode)
	}
}

func runLogTruncate(cmd *cobra.Command, env *environment, path string, force bool) error {
	ctx := cmd.Context()
	var discarded int
	if !force {
		records, err := readLog(ctx, path)
		if err != nil {
			return fmt.Errorf("%w (use --force to truncate anyway)", err)
		}
		discarded = len(records)
	}

	if err := truncateLog(ctx, path, force); err != nil {
		return err
	}
	env.logger.Info("log truncated", "path", path, "records", discarded)
	if force {
		fmt.Fprintf(cmd.OutOrStdout(), "Truncated %s.\n", path)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Truncated %s (%d records discarded).\n", path, discarded)
	}
	return nil
}

// readLog reads every record from a JSON Lines or SQLite log.
func readLog(ctx context.Context, path string) ([]cmdlog.Record, error) {
	if filepath.Ext(path) != ".db" {
		return cmdlog.ReadFile(ctx, path)
	}
	// OpenSQLite creates missing databases.
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening command log: %w", err)
	}
	l, err := cmdlog.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	defer l.Close()
	return l.Records(ctx)
}

func truncateLog(ctx context.Context, path string, force bool) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("opening command log: %w", err)
	}
	if filepath.Ext(path) == ".db" {
		l, err := cmdlog.OpenSQLite(ctx, path)
		if err != nil {
			return err
		}
		if err := l.Truncate(ctx); err != nil {
			l.Close()
			return err
		}
		return l.Close()
	}
	if force {
		// A corrupt file log cannot be opened for appending.
		return os.Truncate(path, 0)
	}
	l, err := cmdlog.OpenFile(path)
	if err != nil {
		return err
	}
	if err := l.Truncate(ctx); err != nil {
		l.Close()
		return err
	}
	return l.Close()
}
