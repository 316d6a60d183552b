// Package errors provides utilities for error handling in stackwatch.
package errors

import (
	"io"

	"github.com/rs/zerolog"
)

// DeferClose properly closes an io.Closer with logging.
// Use this in defer statements to avoid suppressing close errors.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}

// Detacher is anything that can detach from a target process.
type Detacher interface {
	Detach() error
}

// DeferDetach detaches from a target process with logging.
// Use this in defer statements so a failed detach is never silently dropped.
func DeferDetach(logger zerolog.Logger, d Detacher, msg string) {
	if d == nil {
		return
	}
	if err := d.Detach(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}
