package sahara

// Mode is where a device stands in the connect sequence.
type Mode int

// Session modes.
const (
	ModeNone Mode = iota
	ModeSahara
	ModeFirehose
	ModeError
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeSahara:
		return "sahara"
	case ModeFirehose:
		return "firehose"
	case ModeError:
		return "error"
	default:
		return "unknown"
	}
}

// Session is the state negotiated during the handshake. It is discarded once
// the device runs the programmer.
type Session struct {
	Mode       Mode
	Version    uint32
	PacketSize uint32
	Serial     string
}

// Hello is the decoded HELLO_REQ sent by the device.
type Hello struct {
	Command          Command
	Length           uint32
	Version          uint32
	VersionSupported uint32
	CmdPacketLength  uint32
	Mode             HelloMode
	Reserved         [helloReservedWords]uint32
}

// ReadRequest asks for Length bytes of image ImageID starting at Offset.
// It is decoded from both READ_DATA and 64BIT_MEMORY_READ_DATA.
type ReadRequest struct {
	ImageID uint64
	Offset  uint64
	Length  uint64
}

// EndTransfer reports the outcome of an image transfer.
type EndTransfer struct {
	ImageID uint32
	Status  uint32
}

// ExecuteResponse announces the size of the data an executed command returns.
type ExecuteResponse struct {
	ClientCommand ExecCommand
	DataLength    uint32
}
