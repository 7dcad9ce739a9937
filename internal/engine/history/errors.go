package history

import "fmt"

// PersistError reports that a pushed command could not be written to the
// command log. The command stays on the stack; only its recoverability is
// lost.
type PersistError struct {
	Command string // Name of the command
	Err     error  // Underlying error
}

func (e *PersistError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("persist %q: %v", e.Command, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
