package sahara

import "fmt"

// Command is the first word of every Sahara packet.
type Command uint32

// Command codes.
const (
	CmdHelloReq         Command = 0x01
	CmdHelloRsp         Command = 0x02
	CmdReadData         Command = 0x03
	CmdEndTransfer      Command = 0x04
	CmdDoneReq          Command = 0x05
	CmdDoneRsp          Command = 0x06
	CmdResetReq         Command = 0x07
	CmdResetRsp         Command = 0x08
	CmdMemoryDebug      Command = 0x09
	CmdMemoryRead       Command = 0x0A
	CmdCmdReady         Command = 0x0B
	CmdSwitchMode       Command = 0x0C
	CmdExecuteReq       Command = 0x0D
	CmdExecuteRsp       Command = 0x0E
	CmdExecuteData      Command = 0x0F
	CmdMemoryDebug64    Command = 0x10
	CmdMemoryRead64     Command = 0x11
	CmdReadData64       Command = 0x12
	CmdResetStateMachID Command = 0x13
)

var commandNames = map[Command]string{
	CmdHelloReq:         "HELLO_REQ",
	CmdHelloRsp:         "HELLO_RSP",
	CmdReadData:         "READ_DATA",
	CmdEndTransfer:      "END_TRANSFER",
	CmdDoneReq:          "DONE_REQ",
	CmdDoneRsp:          "DONE_RSP",
	CmdResetReq:         "RESET_REQ",
	CmdResetRsp:         "RESET_RSP",
	CmdMemoryDebug:      "MEMORY_DEBUG",
	CmdMemoryRead:       "MEMORY_READ",
	CmdCmdReady:         "CMD_READY",
	CmdSwitchMode:       "SWITCH_MODE",
	CmdExecuteReq:       "EXECUTE_REQ",
	CmdExecuteRsp:       "EXECUTE_RSP",
	CmdExecuteData:      "EXECUTE_DATA",
	CmdMemoryDebug64:    "64BIT_MEMORY_DEBUG",
	CmdMemoryRead64:     "64BIT_MEMORY_READ",
	CmdReadData64:       "64BIT_MEMORY_READ_DATA",
	CmdResetStateMachID: "RESET_STATE_MACHINE_ID",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CMD(0x%02X)", uint32(c))
}

// HelloMode is the mode field of HELLO_REQ/HELLO_RSP and SWITCH_MODE.
type HelloMode uint32

// Hello modes.
const (
	HelloModeImageTxPending  HelloMode = 0x0
	HelloModeImageTxComplete HelloMode = 0x1
	HelloModeMemoryDebug     HelloMode = 0x2
	HelloModeCommand         HelloMode = 0x3
)

func (m HelloMode) String() string {
	switch m {
	case HelloModeImageTxPending:
		return "image-tx-pending"
	case HelloModeImageTxComplete:
		return "image-tx-complete"
	case HelloModeMemoryDebug:
		return "memory-debug"
	case HelloModeCommand:
		return "command"
	default:
		return fmt.Sprintf("mode(0x%X)", uint32(m))
	}
}

// ExecCommand is a client command run in COMMAND mode via EXECUTE_REQ.
type ExecCommand uint32

// Execute sub-commands.
const (
	ExecNop              ExecCommand = 0x00
	ExecSerialNumRead    ExecCommand = 0x01
	ExecMSMHWIDRead      ExecCommand = 0x02
	ExecOEMPKHashRead    ExecCommand = 0x03
	ExecSwitchDMSS       ExecCommand = 0x04
	ExecSwitchStreaming  ExecCommand = 0x05
	ExecReadDebugData    ExecCommand = 0x06
	ExecGetSoftwareVerSB ExecCommand = 0x07
)

// Status codes carried by END_TRANSFER and DONE_RSP.
const (
	StatusSuccess               uint32 = 0x00
	StatusInvalidCmd            uint32 = 0x01
	StatusProtocolMismatch      uint32 = 0x02
	StatusInvalidTargetProtocol uint32 = 0x03
	StatusInvalidHostProtocol   uint32 = 0x04
	StatusInvalidPacketSize     uint32 = 0x05
	StatusUnexpectedImageID     uint32 = 0x06
	StatusInvalidHeaderSize     uint32 = 0x07
	StatusInvalidDataSize       uint32 = 0x08
	StatusInvalidImageType      uint32 = 0x09
	StatusInvalidTxLength       uint32 = 0x0A
	StatusInvalidRxLength       uint32 = 0x0B
	StatusGeneralTxRxError      uint32 = 0x0C
	StatusReadDataError         uint32 = 0x0D
	StatusInvalidELFHeader      uint32 = 0x14
	StatusUnknownHostError      uint32 = 0x15
	StatusTimeoutRx             uint32 = 0x16
	StatusTimeoutTx             uint32 = 0x17
	StatusInvalidHostMode       uint32 = 0x18
	StatusInvalidMemoryRead     uint32 = 0x19
	StatusInvalidModeSwitch     uint32 = 0x1C
	StatusCmdExecFailure        uint32 = 0x1D
	StatusExecCmdInvalidParam   uint32 = 0x1E
	StatusExecCmdUnsupported    uint32 = 0x1F
	StatusHashTableAuthFailure  uint32 = 0x21
	StatusHashVerifyFailure     uint32 = 0x22
	StatusHashTableNotFound     uint32 = 0x23
)

// Protocol versions announced in HELLO_RSP.
const (
	ProtocolVersion    = 2
	ProtocolVersionMin = 1
)

// Packet sizes in bytes.
const (
	HeaderSize          = 0x08
	HelloSize           = 0x30
	ReadDataSize        = 0x14
	ReadData64Size      = 0x20
	EndTransferSize     = 0x10
	DoneReqSize         = 0x08
	DoneRspSize         = 0x0C
	ResetReqSize        = 0x08
	CmdReadySize        = 0x08
	SwitchModeSize      = 0x0C
	ExecuteReqSize      = 0x0C
	ExecuteRspSize      = 0x10
	ExecuteDataSize     = 0x0C
	helloReservedWords  = 6
	defaultReadSize     = 0x1000
	maxImageRequestSize = 64 << 20
)

// MinProgrammerImageID is the lowest image id the boot ROM uses when it asks
// for a Firehose programmer. Lower ids are other boot images this host cannot
// serve.
const MinProgrammerImageID = 0x0C

// firehoseNop is written when the device stays silent at connect time, in
// case a programmer is already running and waiting for commands.
const firehoseNop = `<?xml version="1.0" encoding="UTF-8" ?><data><nop /></data>`
