package config

import (
	"errors"

	"github.com/dshills/mmdedit/internal/config/loader"
)

// Errors returned by configuration operations.
var (
	// ErrValidationFailed indicates a preference value out of its domain.
	ErrValidationFailed = errors.New("validation failed")

	// ErrWatcherClosed indicates a watch on a closed watcher.
	ErrWatcherClosed = errors.New("preference watcher closed")
)

// ParseError describes a malformed preferences file.
type ParseError = loader.ParseError
