package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrSessionLocked indicates a recovery log held by another process.
var ErrSessionLocked = errors.New("session is locked by another process")

// errWouldBlock is returned by lockFile when another descriptor holds a
// conflicting lock.
var errWouldBlock = errors.New("lock held")

// sessionLock is an exclusive advisory lock on <dir>/<id>.lock. The kernel
// drops it when the holder exits, so a lock file left by a crash does not
// hide the log from recovery.
type sessionLock struct {
	path string
	f    *os.File
}

// lockPath returns the lock file that guards the log at logPath.
func lockPath(logPath string) string {
	return strings.TrimSuffix(logPath, filepath.Ext(logPath)) + ".lock"
}

// acquireLock takes the lock at path without blocking. It returns
// ErrSessionLocked when another holder has it.
func acquireLock(path string) (*sessionLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating recovery dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening session lock: %w", err)
	}
	if err := lockFile(f, true); err != nil {
		f.Close()
		if errors.Is(err, errWouldBlock) {
			return nil, ErrSessionLocked
		}
		return nil, fmt.Errorf("locking session: %w", err)
	}

	// A releasing holder unlinks the file; a lock on the unlinked inode
	// guards nothing.
	held, err := f.Stat()
	if err == nil {
		var cur os.FileInfo
		if cur, err = os.Stat(path); err == nil && !os.SameFile(held, cur) {
			err = ErrSessionLocked
		}
	}
	if err != nil {
		f.Close()
		if errors.Is(err, ErrSessionLocked) || errors.Is(err, os.ErrNotExist) {
			return nil, ErrSessionLocked
		}
		return nil, fmt.Errorf("checking session lock: %w", err)
	}
	return &sessionLock{path: path, f: f}, nil
}

// release removes the lock file and drops the lock. It is safe on nil.
func (l *sessionLock) release() {
	if l == nil {
		return
	}
	os.Remove(l.path)
	l.f.Close()
}

// isLocked reports whether some descriptor holds the lock at path. A
// missing lock file is unlocked; one that cannot be opened is treated as
// held.
func isLocked(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return !errors.Is(err, os.ErrNotExist)
	}
	defer f.Close()
	return errors.Is(lockFile(f, false), errWouldBlock)
}
