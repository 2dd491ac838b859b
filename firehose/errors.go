package firehose

import (
	"errors"
	"fmt"
	"time"
)

// ErrOutOfSync is returned for every command after a failed transfer left
// the device waiting for payload.
var ErrOutOfSync = errors.New("firehose: session out of sync with the device")

// CommandError indicates the device answered a command with something other
// than ACK.
type CommandError struct {
	// Command is the command tag, e.g. "program"
	Command string

	// Value is the response value, usually "NAK"
	Value string

	// Logs holds the log lines the device sent with the response
	Logs []string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s failed: %s", e.Command, e.Value)
	if n := len(e.Logs); n > 0 {
		msg += fmt.Sprintf(" (%s)", e.Logs[n-1])
	}
	return msg
}

// TimeoutError indicates no complete response frame arrived in time.
type TimeoutError struct {
	Command string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no response after %s", e.Command, e.After)
}

// ShortImageError indicates the image stream ended before its declared size.
type ShortImageError struct {
	Written int64
	Total   int64
}

func (e *ShortImageError) Error() string {
	return fmt.Sprintf("image ended after %d of %d bytes", e.Written, e.Total)
}

// IsCommandError returns true if the error is a CommandError.
func IsCommandError(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}

// IsTimeoutError returns true if the error is a TimeoutError.
func IsTimeoutError(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
