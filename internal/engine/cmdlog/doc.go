// Package cmdlog implements the write-ahead command log used to rebuild an
// editing session after abnormal termination.
//
// Every command pushed onto a history stack appends one Record. A record
// carries a type tag, a strictly increasing sequence number and two JSON
// state blocks: the state the command produced (current) and the state it
// replaced (previous).
//
// Three logs share the Log interface:
//
//	FileLog    JSON Lines file opened for append, one record per line
//	SQLiteLog  command_log table in a SQLite database
//	MemoryLog  in-process, for tests and dry runs
//
// Replay reads a log front to back, decodes each record through a Registry
// and applies it to a blank target. Replay is forward-only: it restores the
// result of the commands, not the undo history. Any gap, reordering, unknown
// type or decode failure aborts the whole replay, and the target must be
// discarded.
//
// A record is committed once its terminating newline is written. A final
// line without one is a torn write from a crash and is ignored by readers
// and cut off when the file is reopened for append.
package cmdlog
