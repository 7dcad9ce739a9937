//go:build !unix

package session

import "os"

// lockFile is a no-op where flock is unavailable; sessions are then only
// guarded within one process.
func lockFile(*os.File, bool) error {
	return nil
}
