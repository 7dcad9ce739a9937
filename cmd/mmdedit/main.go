// Package main is the entry point for the mmdedit recovery tool.
//
// mmdedit inspects and recovers the command logs that editing sessions
// leave behind when they do not shut down cleanly.
//
// # Basic Usage
//
// List sessions that can be recovered:
//
//	mmdedit recover list
//
// Replay one into a project snapshot:
//
//	mmdedit recover replay <id> --output scene.yaml
//
// Inspect a log directly:
//
//	mmdedit log inspect ~/.cache/mmdedit/recovery/<id>.jsonl --query current
//
// # Environment Variables
//
//   - MMDEDIT_LOG_LEVEL: log level (debug, info, warn, error)
//   - MMDEDIT_LOG_FORMAT: log format (text, json)
//   - MMDEDIT_RECOVERY_DIR: directory holding recovery logs
//   - MMDEDIT_SOFT_LIMIT: undo soft limit
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
