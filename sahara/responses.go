package sahara

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ParseHeader returns the command code and declared length of a packet.
//
//	[CMD(4)][LEN(4)]
func ParseHeader(pkt []byte) (Command, uint32, error) {
	if len(pkt) < HeaderSize {
		return 0, 0, &MalformedPacketError{Reason: fmt.Sprintf("packet too short: got %d bytes, minimum is %d", len(pkt), HeaderSize)}
	}
	return Command(binary.LittleEndian.Uint32(pkt[0:4])), binary.LittleEndian.Uint32(pkt[4:8]), nil
}

// expect validates the command code and minimum size of a packet.
func expect(pkt []byte, cmd Command, size int) error {
	got, _, err := ParseHeader(pkt)
	if err != nil {
		return err
	}
	if got != cmd {
		return &UnexpectedPacketError{Expected: cmd, Actual: got}
	}
	if len(pkt) < size {
		return &MalformedPacketError{Command: cmd, Reason: fmt.Sprintf("got %d bytes, expected %d", len(pkt), size)}
	}
	return nil
}

func word(pkt []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(pkt[4*i:])
}

// ParseHello decodes a HELLO_REQ packet.
//
//	[CMD][LEN][VERSION][VERSION_SUPPORTED][CMD_PACKET_LENGTH][MODE][RESERVED(6)]
func ParseHello(pkt []byte) (*Hello, error) {
	if err := expect(pkt, CmdHelloReq, HelloSize); err != nil {
		return nil, err
	}

	h := &Hello{
		Command:          CmdHelloReq,
		Length:           word(pkt, 1),
		Version:          word(pkt, 2),
		VersionSupported: word(pkt, 3),
		CmdPacketLength:  word(pkt, 4),
		Mode:             HelloMode(word(pkt, 5)),
	}
	for i := range h.Reserved {
		h.Reserved[i] = word(pkt, 6+i)
	}
	return h, nil
}

// ParseReadData decodes a 32-bit READ_DATA request.
//
//	[CMD][LEN][IMAGE_ID][OFFSET][LENGTH]
func ParseReadData(pkt []byte) (*ReadRequest, error) {
	if err := expect(pkt, CmdReadData, ReadDataSize); err != nil {
		return nil, err
	}
	return &ReadRequest{
		ImageID: uint64(word(pkt, 2)),
		Offset:  uint64(word(pkt, 3)),
		Length:  uint64(word(pkt, 4)),
	}, nil
}

// ParseReadData64 decodes a 64BIT_MEMORY_READ_DATA request.
//
//	[CMD][LEN][IMAGE_ID(8)][OFFSET(8)][LENGTH(8)]
func ParseReadData64(pkt []byte) (*ReadRequest, error) {
	if err := expect(pkt, CmdReadData64, ReadData64Size); err != nil {
		return nil, err
	}
	return &ReadRequest{
		ImageID: binary.LittleEndian.Uint64(pkt[8:16]),
		Offset:  binary.LittleEndian.Uint64(pkt[16:24]),
		Length:  binary.LittleEndian.Uint64(pkt[24:32]),
	}, nil
}

// ParseEndTransfer decodes an END_TRANSFER packet.
//
//	[CMD][LEN][IMAGE_ID][STATUS]
func ParseEndTransfer(pkt []byte) (*EndTransfer, error) {
	if err := expect(pkt, CmdEndTransfer, EndTransferSize); err != nil {
		return nil, err
	}
	return &EndTransfer{ImageID: word(pkt, 2), Status: word(pkt, 3)}, nil
}

// ParseDoneResponse decodes a DONE_RSP packet and returns the image transfer
// status.
//
//	[CMD][LEN][IMAGE_TX_STATUS]
func ParseDoneResponse(pkt []byte) (uint32, error) {
	if err := expect(pkt, CmdDoneRsp, DoneRspSize); err != nil {
		return 0, err
	}
	return word(pkt, 2), nil
}

// ParseExecuteResponse decodes an EXECUTE_RSP packet.
//
//	[CMD][LEN][CLIENT_CMD][DATA_LEN]
func ParseExecuteResponse(pkt []byte) (*ExecuteResponse, error) {
	if err := expect(pkt, CmdExecuteRsp, ExecuteRspSize); err != nil {
		return nil, err
	}
	return &ExecuteResponse{ClientCommand: ExecCommand(word(pkt, 2)), DataLength: word(pkt, 3)}, nil
}

// LooksLikeXML reports whether pkt is a Firehose XML document rather than a
// Sahara packet, meaning the programmer is already running.
func LooksLikeXML(pkt []byte) bool {
	return bytes.Contains(pkt, []byte("<?xml")) || bytes.Contains(pkt, []byte("<response")) || bytes.Contains(pkt, []byte("<log"))
}
