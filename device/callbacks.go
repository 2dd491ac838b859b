package device

import "time"

// Phases reported through Progress.
const (
	PhaseConnecting = "connecting"
	PhaseFlashing   = "flashing"
	PhaseErasing    = "erasing"
	PhaseComplete   = "complete"
)

// Progress contains information about a long-running operation.
// Passed to ProgressCallback while connecting, flashing and erasing.
type Progress struct {
	// Phase describes the current operation:
	//   "connecting" - Sahara handshake and programmer upload
	//   "flashing"   - Streaming an image to a partition
	//   "erasing"    - Zeroing a partition
	//   "complete"   - The operation finished
	Phase string

	// Partition is the partition being written, if any
	Partition string

	// BytesWritten is the number of bytes sent so far
	BytesWritten int64

	// TotalBytes is the number of bytes the operation will send
	TotalBytes int64

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time elapsed since the operation started
	ElapsedTime time.Duration
}

// ProgressCallback is called on a bounded cadence during long operations.
// Implementations should return quickly to avoid stalling the transfer.
//
// Example:
//
//	dev := device.New(t,
//	    device.WithProgressCallback(func(p device.Progress) {
//	        fmt.Printf("[%s] %s %.1f%%\n", p.Phase, p.Partition, p.Percentage)
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the device.
// The same method set is accepted by the sahara and firehose clients, which
// receive the device's logger.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}

func percentage(written, total int64) float64 {
	if total <= 0 {
		return 100
	}
	return float64(written) / float64(total) * 100
}
