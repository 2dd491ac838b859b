package sahara

import "time"

// Logger is the optional logging interface used by the client.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Config holds the client configuration.
type Config struct {
	// Timeout bounds how long the client waits for any single packet
	Timeout time.Duration

	// PollInterval is the pause between empty reads
	PollInterval time.Duration

	// ReadSerial queries the device serial number in COMMAND mode before the
	// programmer upload
	ReadSerial bool

	// Logger is used for logging operations (optional)
	Logger Logger
}

func defaultConfig() Config {
	return Config{
		Timeout:      5 * time.Second,
		PollInterval: 5 * time.Millisecond,
		ReadSerial:   true,
	}
}

// Option is a functional option for configuring the Client.
type Option func(*Config)

// WithTimeout sets how long to wait for each packet from the device.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

// WithPollInterval sets the pause between empty reads.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		if interval >= 0 {
			c.PollInterval = interval
		}
	}
}

// WithReadSerial enables or disables the serial number query. Default is true.
func WithReadSerial(enabled bool) Option {
	return func(c *Config) {
		c.ReadSerial = enabled
	}
}

// WithLogger sets a logger for the client.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
