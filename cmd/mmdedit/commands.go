package main

import (
	"fmt"

	"github.com/dshills/mmdedit/internal/config"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath  string
	logLevel    string
	metricsPath string
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	var flags globalFlags
	var env *environment

	rootCmd := &cobra.Command{
		Use:   "mmdedit",
		Short: "Inspect and recover editor command logs",
		Long: `mmdedit works with the write-ahead command logs kept by editing sessions.

A session that exits cleanly deletes its log. Any log left in the recovery
directory belongs to a session that ended abnormally and can be replayed
into a project snapshot.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			env, err = newEnvironment(flags)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return env.writeMetrics()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", config.DefaultPath(), "Path to preferences file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides preferences")
	rootCmd.PersistentFlags().StringVar(&flags.metricsPath, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	envFn := func() *environment { return env }
	rootCmd.AddCommand(
		buildRecoverCmd(envFn),
		buildLogCmd(envFn),
		buildVersionCmd(),
	)
	return rootCmd
}

// =============================================================================
// Recover Commands
// =============================================================================

func buildRecoverCmd(env func() *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "List, replay or discard sessions that did not close cleanly",
	}
	cmd.AddCommand(
		buildRecoverListCmd(env),
		buildRecoverReplayCmd(env),
		buildRecoverDiscardCmd(env),
	)
	return cmd
}

func buildRecoverListCmd(env func() *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recoverable sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecoverList(cmd, env())
		},
	}
}

func buildRecoverReplayCmd(env func() *environment) *cobra.Command {
	var (
		output   string
		progress bool
	)
	cmd := &cobra.Command{
		Use:   "replay <session-id>",
		Short: "Replay a session log into a fresh project",
		Long: `Replay a session log into a fresh project.

Without --output the replay is a dry run and the log stays in place. With
--output the recovered project is saved as a snapshot and the log is
removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecoverReplay(cmd, env(), args[0], output, progress)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Save the recovered project to this snapshot file")
	cmd.Flags().BoolVar(&progress, "progress", false, "Print each record as it is applied")
	return cmd
}

func buildRecoverDiscardCmd(env func() *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <session-id>",
		Short: "Delete a session log without replaying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecoverDiscard(cmd, env(), args[0])
		},
	}
}

// =============================================================================
// Log Commands
// =============================================================================

func buildLogCmd(env func() *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Work with command log files directly",
	}
	cmd.AddCommand(
		buildLogInspectCmd(env),
		buildLogTruncateCmd(env),
	)
	return cmd
}

func buildLogInspectCmd(env func() *environment) *cobra.Command {
	var (
		query  string
		asJSON bool
		color  string
	)
	cmd := &cobra.Command{
		Use:   "inspect <path>",
		Short: "Verify a log and print its records",
		Long: `Verify a log and print its records.

--query takes a GJSON path evaluated against each record, for example
"current.name" or "previous.keyframes.#". --json prints whole records.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogInspect(cmd, env(), args[0], inspectOptions{
				query:  query,
				asJSON: asJSON,
				color:  color,
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "GJSON path to print for each record")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as indented JSON")
	cmd.Flags().StringVar(&color, "color", "auto", "Colorize JSON output (auto, always, never)")
	return cmd
}

func buildLogTruncateCmd(env func() *environment) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "truncate <path>",
		Short: "Discard every record in a log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogTruncate(cmd, env(), args[0], force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Truncate without verifying the log first")
	return cmd
}

// =============================================================================
// Version Command
// =============================================================================

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mmdedit %s\n", version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Built: %s\n", date)
			return nil
		},
	}
}
