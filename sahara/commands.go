package sahara

import "encoding/binary"

// putWords encodes words as consecutive little-endian uint32 values.
func putWords(words ...uint32) []byte {
	pkt := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(pkt[4*i:], w)
	}
	return pkt
}

// BuildHelloResponse constructs a HELLO_RSP packet requesting mode.
//
// Packet structure (12 words):
//
//	[CMD][LEN][VERSION][VERSION_MIN][STATUS][MODE][RESERVED(6)]
func BuildHelloResponse(mode HelloMode) []byte {
	return putWords(
		uint32(CmdHelloRsp),
		HelloSize,
		ProtocolVersion,
		ProtocolVersionMin,
		StatusSuccess,
		uint32(mode),
		0, 0, 0, 0, 0, 0,
	)
}

// BuildDoneRequest constructs a DONE_REQ packet.
//
//	[CMD][LEN]
func BuildDoneRequest() []byte {
	return putWords(uint32(CmdDoneReq), DoneReqSize)
}

// BuildResetRequest constructs a RESET_REQ packet.
//
//	[CMD][LEN]
func BuildResetRequest() []byte {
	return putWords(uint32(CmdResetReq), ResetReqSize)
}

// BuildSwitchMode constructs a SWITCH_MODE packet. The device answers with a
// fresh HELLO_REQ.
//
//	[CMD][LEN][MODE]
func BuildSwitchMode(mode HelloMode) []byte {
	return putWords(uint32(CmdSwitchMode), SwitchModeSize, uint32(mode))
}

// BuildExecuteRequest constructs an EXECUTE_REQ packet for a client command.
//
//	[CMD][LEN][CLIENT_CMD]
func BuildExecuteRequest(cmd ExecCommand) []byte {
	return putWords(uint32(CmdExecuteReq), ExecuteReqSize, uint32(cmd))
}

// BuildExecuteData constructs an EXECUTE_DATA packet, asking the device to
// send the result of cmd.
//
//	[CMD][LEN][CLIENT_CMD]
func BuildExecuteData(cmd ExecCommand) []byte {
	return putWords(uint32(CmdExecuteData), ExecuteDataSize, uint32(cmd))
}

// ProgrammerChunk returns the bytes answering a read request of length bytes at
// offset. The device may probe past the end of the image; that tail is
// padded with 0xFF.
func ProgrammerChunk(programmer []byte, offset, length uint64) []byte {
	chunk := make([]byte, length)
	var copied int
	if offset < uint64(len(programmer)) {
		copied = copy(chunk, programmer[offset:])
	}
	for i := copied; i < len(chunk); i++ {
		chunk[i] = 0xFF
	}
	return chunk
}
