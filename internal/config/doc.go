// Package config loads editor preferences.
//
// Preferences are layered, later layers winning:
//
//  1. Built-in defaults (Default)
//  2. The preferences file, TOML
//  3. Environment variables with the MMDEDIT_ prefix
//
// A preferences file looks like:
//
//	[undo]
//	softLimit = 512
//
//	[recovery]
//	enabled = true
//	dir = "/home/me/.cache/mmdedit/recovery"
//	backend = "jsonl" # or "sqlite"
//	sync = true
//
//	[logging]
//	level = "info"
//	format = "text"
//
// Watch reloads the file whenever it changes on disk.
package config
