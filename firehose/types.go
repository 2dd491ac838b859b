package firehose

// Settings is the storage configuration negotiated by Configure. It is fixed
// until the next Configure call.
type Settings struct {
	// MemoryName is the storage type, MemoryUFS or MemoryEMMC
	MemoryName string

	// SectorSize is the sector size used for all sector math
	SectorSize int

	// MaxPayloadSizeToTarget bounds a single host-to-device payload piece
	MaxPayloadSizeToTarget int

	// MaxPayloadSizeFromTarget bounds a single device-to-host transfer
	MaxPayloadSizeFromTarget int

	// MaxLUN is the number of physical partitions to scan
	MaxLUN int

	ZLPAwareHost    bool
	SkipStorageInit bool
	SkipWrite       bool
}

// DefaultSettings returns the settings for UFS storage.
func DefaultSettings() Settings {
	return Settings{
		MemoryName:               MemoryUFS,
		SectorSize:               DefaultSectorSize,
		MaxPayloadSizeToTarget:   DefaultMaxPayloadSizeToTarget,
		MaxPayloadSizeFromTarget: DefaultMaxPayloadSizeFromTarget,
		MaxLUN:                   DefaultMaxLUN,
		ZLPAwareHost:             true,
	}
}

// Response is the decoded outcome of a command.
type Response struct {
	// Value is the value attribute of the <response> element
	Value string

	// RawMode is the rawmode attribute, nil when absent
	RawMode *bool

	// Logs holds the <log> lines that preceded the response
	Logs []string
}

// Ack reports whether the device accepted the command.
func (r *Response) Ack() bool {
	return r.Value == ValueACK || r.Value == ValueTrue
}

// ConfigureResponse is the decoded answer to <configure>.
type ConfigureResponse struct {
	Response

	// MaxPayloadSizeToTarget is the payload size the device proposes or accepts
	MaxPayloadSizeToTarget *int

	// MaxPayloadSizeFromTarget is the device's transfer size towards the host
	MaxPayloadSizeFromTarget *int

	MemoryName string
	TargetName string
	Version    string
}

// ProgressFunc receives the number of payload bytes written so far and the
// total.
type ProgressFunc func(written, total int64)
