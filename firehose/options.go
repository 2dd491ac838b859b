package firehose

import "time"

// Logger is the optional logging interface used by the client.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Config holds the client configuration.
type Config struct {
	// ResponseTimeout bounds the wait for a complete response frame
	ResponseTimeout time.Duration

	// PollInterval is the first pause after an empty read; it doubles up to
	// MaxPollInterval while the device stays silent
	PollInterval    time.Duration
	MaxPollInterval time.Duration

	// ProgressInterval is the number of payload pieces between progress
	// reports
	ProgressInterval int

	// Logger is used for logging operations (optional)
	Logger Logger
}

func defaultConfig() Config {
	return Config{
		ResponseTimeout:  DefaultResponseTimeout,
		PollInterval:     DefaultPollInterval,
		MaxPollInterval:  DefaultMaxPollInterval,
		ProgressInterval: DefaultProgressInterval,
	}
}

// Option is a functional option for configuring the Client.
type Option func(*Config)

// WithResponseTimeout sets how long to wait for a response frame.
func WithResponseTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.ResponseTimeout = timeout
		}
	}
}

// WithPollInterval sets the initial and maximum pause between empty reads.
func WithPollInterval(initial, max time.Duration) Option {
	return func(c *Config) {
		if initial >= 0 {
			c.PollInterval = initial
		}
		if max >= initial {
			c.MaxPollInterval = max
		}
	}
}

// WithProgressInterval sets how many payload pieces pass between progress
// reports.
func WithProgressInterval(pieces int) Option {
	return func(c *Config) {
		if pieces > 0 {
			c.ProgressInterval = pieces
		}
	}
}

// WithLogger sets a logger for the client.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
