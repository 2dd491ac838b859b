package firehose

import "time"

// Command tags.
const (
	TagConfigure               = "configure"
	TagRead                    = "read"
	TagProgram                 = "program"
	TagSetBootableStorageDrive = "setbootablestoragedrive"
	TagPower                   = "power"
	TagNop                     = "nop"
	TagFixGPT                  = "fixgpt"
)

// Response values meaning success.
const (
	ValueACK  = "ACK"
	ValueTrue = "true"
	ValueNAK  = "NAK"
)

// Storage memory names.
const (
	MemoryUFS  = "UFS"
	MemoryEMMC = "eMMC"
)

// Defaults negotiated by Configure.
const (
	DefaultSectorSize               = 4096
	DefaultMaxPayloadSizeToTarget   = 1048576
	DefaultMaxPayloadSizeFromTarget = 8192
	DefaultMaxLUN                   = 6
	DefaultMaxDigestTableSize       = 512
)

// Polling defaults for response frames.
const (
	DefaultResponseTimeout = 10 * time.Second
	DefaultPollInterval    = time.Millisecond
	DefaultMaxPollInterval = 50 * time.Millisecond

	// DefaultProgressInterval is the number of payload pieces between two
	// progress reports.
	DefaultProgressInterval = 10
)

const (
	xmlHeader        = `<?xml version="1.0" encoding="UTF-8" ?>`
	responseMarker   = "<response value"
	documentEnd      = "</data>"
	responseReadSize = 4096
)
