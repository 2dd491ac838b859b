package gpt

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature indicates the header does not start with "EFI PART".
	ErrInvalidSignature = errors.New("gpt: invalid signature")

	// ErrInvalidRevision indicates a header revision other than 1.0.
	ErrInvalidRevision = errors.New("gpt: invalid revision")

	// ErrTruncated indicates the buffer is too short for the structures it
	// declares.
	ErrTruncated = errors.New("gpt: truncated")

	// ErrInvalidEntry indicates a live entry whose last LBA precedes its
	// first LBA.
	ErrInvalidEntry = errors.New("gpt: invalid entry")

	// ErrUnrecoverable indicates both the primary and backup tables fail
	// their checksums.
	ErrUnrecoverable = errors.New("gpt: primary and backup tables are both corrupt")
)

// CRCError indicates a stored CRC32 that does not match the data.
type CRCError struct {
	// Field is "header" or "entries"
	Field    string
	Stored   uint32
	Computed uint32
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("gpt: %s crc mismatch: stored 0x%08X, computed 0x%08X", e.Field, e.Stored, e.Computed)
}

// IsCRCError returns true if the error is a CRCError.
func IsCRCError(err error) bool {
	var ce *CRCError
	return errors.As(err, &ce)
}
