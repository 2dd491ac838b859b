package sparse

import (
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrNotSparse indicates the input has no valid sparse file header.
	ErrNotSparse = errors.New("sparse: not a sparse image")

	// ErrInvalidChunk indicates a chunk header that contradicts the format.
	ErrInvalidChunk = errors.New("sparse: invalid chunk")
)

// ChecksumError indicates the decoded output does not match the expected
// SHA-256 digest.
type ChecksumError struct {
	Expected []byte
	Actual   []byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected %s, got %s",
		hex.EncodeToString(e.Expected), hex.EncodeToString(e.Actual))
}

// IsChecksumError returns true if the error is a ChecksumError.
func IsChecksumError(err error) bool {
	var ce *ChecksumError
	return errors.As(err, &ce)
}

func chunkError(index uint32, format string, args ...interface{}) error {
	return fmt.Errorf("%w %d: %s", ErrInvalidChunk, index, fmt.Sprintf(format, args...))
}
