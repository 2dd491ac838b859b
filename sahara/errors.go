package sahara

import (
	"errors"
	"fmt"
)

// ErrNoResponse indicates the device sent nothing before the timeout elapsed.
var ErrNoResponse = errors.New("sahara: no response from device")

// ProtocolError is a non-success status reported by the device.
type ProtocolError struct {
	// Operation is the step that failed
	Operation string

	// Status is the status word from END_TRANSFER or DONE_RSP
	Status uint32
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s failed: %s (0x%02X)", e.Operation, statusName(e.Status), e.Status)
}

// UnexpectedPacketError indicates a packet with the wrong command code.
type UnexpectedPacketError struct {
	Expected Command
	Actual   Command
}

func (e *UnexpectedPacketError) Error() string {
	return fmt.Sprintf("unexpected sahara packet: got %s, expected %s", e.Actual, e.Expected)
}

// MalformedPacketError indicates a packet that could not be decoded.
type MalformedPacketError struct {
	Command Command
	Reason  string
}

func (e *MalformedPacketError) Error() string {
	if e.Command == 0 {
		return "malformed sahara packet: " + e.Reason
	}
	return fmt.Sprintf("malformed sahara %s packet: %s", e.Command, e.Reason)
}

// UnknownImageError indicates the device asked for an image other than a
// Firehose programmer.
type UnknownImageError struct {
	ImageID uint64
}

func (e *UnknownImageError) Error() string {
	return fmt.Sprintf("unknown sahara id 0x%X: device is not asking for a programmer", e.ImageID)
}

// IsProtocolError returns true if the error is a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

var statusNames = map[uint32]string{
	StatusSuccess:               "success",
	StatusInvalidCmd:            "invalid command",
	StatusProtocolMismatch:      "protocol mismatch",
	StatusInvalidTargetProtocol: "invalid target protocol",
	StatusInvalidHostProtocol:   "invalid host protocol",
	StatusInvalidPacketSize:     "invalid packet size",
	StatusUnexpectedImageID:     "unexpected image id",
	StatusInvalidHeaderSize:     "invalid header size",
	StatusInvalidDataSize:       "invalid data size",
	StatusInvalidImageType:      "invalid image type",
	StatusInvalidTxLength:       "invalid tx length",
	StatusInvalidRxLength:       "invalid rx length",
	StatusGeneralTxRxError:      "general tx/rx error",
	StatusReadDataError:         "read data error",
	StatusInvalidELFHeader:      "invalid ELF header",
	StatusUnknownHostError:      "unknown host error",
	StatusTimeoutRx:             "rx timeout",
	StatusTimeoutTx:             "tx timeout",
	StatusInvalidHostMode:       "invalid host mode",
	StatusInvalidMemoryRead:     "invalid memory read",
	StatusInvalidModeSwitch:     "invalid mode switch",
	StatusCmdExecFailure:        "command execution failure",
	StatusExecCmdInvalidParam:   "invalid execute parameter",
	StatusExecCmdUnsupported:    "unsupported execute command",
	StatusHashTableAuthFailure:  "hash table authentication failure",
	StatusHashVerifyFailure:     "hash verification failure",
	StatusHashTableNotFound:     "hash table not found",
}

func statusName(status uint32) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return fmt.Sprintf("unknown status 0x%02X", status)
}
