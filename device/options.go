package device

import (
	"time"

	"github.com/moffa90/go-qdl/firehose"
)

// DefaultSplitSize is the expanded size above which sparse images are
// programmed piece by piece.
const DefaultSplitSize = 1 << 30

// Config holds the device configuration.
type Config struct {
	// ProgressCallback is called during long operations (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// Programmer is the Firehose programmer uploaded when the device is in
	// the boot ROM
	Programmer []byte

	// Storage is requested from the programmer by Connect
	Storage firehose.Settings

	// ConnectTimeout bounds each Sahara packet wait
	ConnectTimeout time.Duration

	// ResponseTimeout bounds each Firehose response wait
	ResponseTimeout time.Duration

	// PollInterval is the pause between empty reads
	PollInterval time.Duration

	// SplitSize is the largest expanded size of one sparse program command.
	// Zero disables splitting.
	SplitSize int64

	// ReadSerial queries the serial number during the Sahara handshake
	ReadSerial bool
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Storage:         firehose.DefaultSettings(),
		ConnectTimeout:  5 * time.Second,
		ResponseTimeout: firehose.DefaultResponseTimeout,
		PollInterval:    firehose.DefaultPollInterval,
		SplitSize:       DefaultSplitSize,
		ReadSerial:      true,
	}
}

// Option is a functional option for configuring the Device.
type Option func(*Config)

// WithProgressCallback sets a callback function to track long operations.
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the device and its protocol clients.
//
// Example:
//
//	dev := device.New(t, device.WithLogger(myLogger))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithProgrammer sets the programmer image uploaded in Sahara mode.
func WithProgrammer(programmer []byte) Option {
	return func(c *Config) {
		c.Programmer = programmer
	}
}

// WithMaxLUN sets the number of LUNs scanned for partitions.
func WithMaxLUN(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Storage.MaxLUN = n
		}
	}
}

// WithSectorSize sets the storage sector size.
// Default is 4096 bytes (UFS).
func WithSectorSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.Storage.SectorSize = size
		}
	}
}

// WithMemoryName sets the storage type, firehose.MemoryUFS or
// firehose.MemoryEMMC.
//
// Example:
//
//	dev := device.New(t,
//	    device.WithMemoryName(firehose.MemoryEMMC),
//	    device.WithSectorSize(512),
//	)
func WithMemoryName(name string) Option {
	return func(c *Config) {
		if name != "" {
			c.Storage.MemoryName = name
		}
	}
}

// WithMaxPayloadSize sets the payload size requested from the programmer.
// The programmer may negotiate it down.
func WithMaxPayloadSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.Storage.MaxPayloadSizeToTarget = size
		}
	}
}

// WithSkipWrite asks the programmer to acknowledge writes without
// performing them.
func WithSkipWrite(skip bool) Option {
	return func(c *Config) {
		c.Storage.SkipWrite = skip
	}
}

// WithConnectTimeout sets how long to wait for each Sahara packet.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.ConnectTimeout = timeout
		}
	}
}

// WithResponseTimeout sets how long to wait for each Firehose response.
func WithResponseTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.ResponseTimeout = timeout
		}
	}
}

// WithPollInterval sets the pause between empty reads.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		if interval > 0 {
			c.PollInterval = interval
		}
	}
}

// WithSplitSize sets the largest expanded size programmed with one command
// for sparse images. Zero disables splitting.
func WithSplitSize(size int64) Option {
	return func(c *Config) {
		if size >= 0 {
			c.SplitSize = size
		}
	}
}

// WithReadSerial enables or disables the serial number query.
// Default is true.
func WithReadSerial(enabled bool) Option {
	return func(c *Config) {
		c.ReadSerial = enabled
	}
}
