package sahara

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-qdl/transport"
)

// Client drives the Sahara handshake over a borrowed transport.
//
// The handshake is a strict request/response exchange; a Client must not be
// used concurrently.
type Client struct {
	t       transport.Transport
	config  Config
	session Session
}

// NewClient creates a Client on t.
func NewClient(t transport.Transport, opts ...Option) *Client {
	if t == nil {
		panic("transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Client{t: t, config: cfg}
}

// Session returns the state negotiated so far.
func (c *Client) Session() Session {
	return c.session
}

// Connect reads the first packet from the device and reports which protocol
// it speaks. A HELLO_REQ means the boot ROM is waiting for a programmer
// (ModeSahara); an XML document means a programmer is already running
// (ModeFirehose). A silent device is probed with a Firehose nop.
func (c *Client) Connect(ctx context.Context) (Mode, error) {
	pkt, err := c.readPacket(ctx)
	if errors.Is(err, ErrNoResponse) {
		return c.probeFirehose(ctx)
	}
	if err != nil {
		c.session.Mode = ModeError
		return ModeError, err
	}

	if LooksLikeXML(pkt) {
		c.session.Mode = ModeFirehose
		c.logDebug("programmer already running")
		return ModeFirehose, nil
	}

	hello, err := ParseHello(pkt)
	if err != nil {
		c.session.Mode = ModeError
		return ModeError, fmt.Errorf("connect: %w", err)
	}

	c.session = Session{
		Mode:       ModeSahara,
		Version:    hello.Version,
		PacketSize: hello.CmdPacketLength,
	}
	c.logDebug("sahara hello",
		"version", hello.Version,
		"version_supported", hello.VersionSupported,
		"packet_size", hello.CmdPacketLength,
		"mode", hello.Mode.String(),
	)
	return ModeSahara, nil
}

// probeFirehose sends a nop and checks whether the answer is Firehose XML.
func (c *Client) probeFirehose(ctx context.Context) (Mode, error) {
	if err := c.write([]byte(firehoseNop)); err != nil {
		c.session.Mode = ModeError
		return ModeError, err
	}

	pkt, err := c.readPacket(ctx)
	if err != nil {
		c.session.Mode = ModeError
		return ModeError, fmt.Errorf("probe firehose: %w", err)
	}
	if !LooksLikeXML(pkt) {
		c.session.Mode = ModeError
		return ModeError, &MalformedPacketError{Reason: "device answered a firehose nop with a non-XML packet"}
	}

	c.session.Mode = ModeFirehose
	return ModeFirehose, nil
}

// EnterCommandMode answers the pending HELLO_REQ with a request for COMMAND
// mode. The device either reports CMD_READY or refuses with END_TRANSFER.
func (c *Client) EnterCommandMode(ctx context.Context) error {
	if err := c.write(BuildHelloResponse(HelloModeCommand)); err != nil {
		return err
	}

	pkt, err := c.readPacket(ctx)
	if err != nil {
		return fmt.Errorf("enter command mode: %w", err)
	}

	cmd, _, err := ParseHeader(pkt)
	if err != nil {
		return err
	}
	switch cmd {
	case CmdCmdReady:
		return nil
	case CmdEndTransfer:
		et, err := ParseEndTransfer(pkt)
		if err != nil {
			return err
		}
		return &ProtocolError{Operation: "enter command mode", Status: et.Status}
	default:
		return &UnexpectedPacketError{Expected: CmdCmdReady, Actual: cmd}
	}
}

// Execute runs a client command in COMMAND mode and returns its raw result.
func (c *Client) Execute(ctx context.Context, cmd ExecCommand) ([]byte, error) {
	if err := c.write(BuildExecuteRequest(cmd)); err != nil {
		return nil, err
	}

	pkt, err := c.readPacket(ctx)
	if err != nil {
		return nil, fmt.Errorf("execute 0x%02X: %w", uint32(cmd), err)
	}
	rsp, err := ParseExecuteResponse(pkt)
	if err != nil {
		return nil, err
	}
	if rsp.ClientCommand != cmd {
		return nil, &MalformedPacketError{Command: CmdExecuteRsp, Reason: fmt.Sprintf("response for command 0x%02X, expected 0x%02X", uint32(rsp.ClientCommand), uint32(cmd))}
	}

	if err := c.write(BuildExecuteData(cmd)); err != nil {
		return nil, err
	}

	data := make([]byte, 0, rsp.DataLength)
	for uint32(len(data)) < rsp.DataLength {
		pkt, err := c.readPacket(ctx)
		if err != nil {
			return nil, fmt.Errorf("execute 0x%02X data: %w", uint32(cmd), err)
		}
		data = append(data, pkt...)
	}
	return data[:rsp.DataLength], nil
}

// ReadSerial queries the chip serial number. The client must be in COMMAND
// mode.
func (c *Client) ReadSerial(ctx context.Context) (uint32, error) {
	data, err := c.Execute(ctx, ExecSerialNumRead)
	if err != nil {
		return 0, err
	}
	if len(data) < 4 {
		return 0, &MalformedPacketError{Command: CmdExecuteData, Reason: fmt.Sprintf("serial number is %d bytes, expected 4", len(data))}
	}
	return binary.LittleEndian.Uint32(data), nil
}

// SwitchMode asks the device to restart the handshake in mode. The device
// answers with a new HELLO_REQ, which is consumed here.
func (c *Client) SwitchMode(ctx context.Context, mode HelloMode) error {
	if err := c.write(BuildSwitchMode(mode)); err != nil {
		return err
	}

	pkt, err := c.readPacket(ctx)
	if err != nil {
		return fmt.Errorf("switch mode: %w", err)
	}
	if _, err := ParseHello(pkt); err != nil {
		return fmt.Errorf("switch mode: %w", err)
	}
	return nil
}

// UploadLoader transfers the programmer image and hands control to it.
//
// The device pulls the image with read requests; each is answered with the
// requested slice of programmer, 0xFF-padded past the end. Any refusal,
// malformed packet or stall aborts the upload.
func (c *Client) UploadLoader(ctx context.Context, programmer []byte) (Mode, error) {
	if len(programmer) == 0 {
		return ModeError, errors.New("programmer image cannot be empty")
	}

	if c.config.ReadSerial {
		if err := c.EnterCommandMode(ctx); err != nil {
			return c.fail(err)
		}
		serial, err := c.ReadSerial(ctx)
		if err != nil {
			return c.fail(err)
		}
		c.session.Serial = fmt.Sprintf("%08x", serial)
		c.logInfo("device serial", "serial", c.session.Serial)

		if err := c.SwitchMode(ctx, HelloModeImageTxPending); err != nil {
			return c.fail(err)
		}
	}

	if err := c.write(BuildHelloResponse(HelloModeImageTxPending)); err != nil {
		return c.fail(err)
	}

	var sent uint64
	for {
		if err := ctx.Err(); err != nil {
			return c.fail(fmt.Errorf("cancelled: %w", err))
		}

		pkt, err := c.readPacket(ctx)
		if err != nil {
			return c.fail(fmt.Errorf("upload loader: %w", err))
		}
		cmd, _, err := ParseHeader(pkt)
		if err != nil {
			return c.fail(err)
		}

		switch cmd {
		case CmdReadData, CmdReadData64:
			req, err := parseReadRequest(cmd, pkt)
			if err != nil {
				return c.fail(err)
			}
			if req.ImageID < MinProgrammerImageID {
				return c.fail(&UnknownImageError{ImageID: req.ImageID})
			}
			if req.Length > maxImageRequestSize {
				return c.fail(&MalformedPacketError{Command: cmd, Reason: fmt.Sprintf("request of %d bytes exceeds limit", req.Length)})
			}
			if err := c.write(ProgrammerChunk(programmer, req.Offset, req.Length)); err != nil {
				return c.fail(err)
			}
			sent += req.Length

		case CmdEndTransfer:
			et, err := ParseEndTransfer(pkt)
			if err != nil {
				return c.fail(err)
			}
			if et.Status != StatusSuccess {
				return c.fail(&ProtocolError{Operation: "upload loader", Status: et.Status})
			}
			c.logDebug("programmer transferred", "bytes", sent, "image_id", et.ImageID)
			if err := c.done(ctx); err != nil {
				return c.fail(err)
			}
			c.session.Mode = ModeFirehose
			return ModeFirehose, nil

		default:
			return c.fail(&UnexpectedPacketError{Expected: CmdReadData64, Actual: cmd})
		}
	}
}

func parseReadRequest(cmd Command, pkt []byte) (*ReadRequest, error) {
	if cmd == CmdReadData {
		return ParseReadData(pkt)
	}
	return ParseReadData64(pkt)
}

// done sends DONE_REQ and requires DONE_RSP or a successful END_TRANSFER.
func (c *Client) done(ctx context.Context) error {
	if err := c.write(BuildDoneRequest()); err != nil {
		return err
	}

	pkt, err := c.readPacket(ctx)
	if err != nil {
		return fmt.Errorf("done: %w", err)
	}
	cmd, _, err := ParseHeader(pkt)
	if err != nil {
		return err
	}

	switch cmd {
	case CmdDoneRsp:
		if _, err := ParseDoneResponse(pkt); err != nil {
			return err
		}
		return nil
	case CmdEndTransfer:
		et, err := ParseEndTransfer(pkt)
		if err != nil {
			return err
		}
		if et.Status != StatusSuccess {
			return &ProtocolError{Operation: "done", Status: et.Status}
		}
		return nil
	default:
		return &UnexpectedPacketError{Expected: CmdDoneRsp, Actual: cmd}
	}
}

// Reset asks the boot ROM to reset the device.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.write(BuildResetRequest()); err != nil {
		return err
	}

	pkt, err := c.readPacket(ctx)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return expect(pkt, CmdResetRsp, HeaderSize)
}

func (c *Client) fail(err error) (Mode, error) {
	c.session.Mode = ModeError
	c.logError("sahara failed", "error", err)
	return ModeError, err
}

// readPacket polls the transport until a packet arrives or the timeout elapses.
func (c *Client) readPacket(ctx context.Context) ([]byte, error) {
	buf := make([]byte, defaultReadSize)
	deadline := time.Now().Add(c.config.Timeout)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := c.t.Read(buf)
		if err != nil && !transport.IsTimeout(err) {
			return nil, fmt.Errorf("read packet: %w", err)
		}
		if n > 0 {
			return buf[:n], nil
		}
		if time.Now().After(deadline) {
			return nil, ErrNoResponse
		}
		if c.config.PollInterval > 0 {
			time.Sleep(c.config.PollInterval)
		}
	}
}

func (c *Client) write(pkt []byte) error {
	if _, err := c.t.Write(pkt); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	return nil
}

func (c *Client) logDebug(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Error(msg, keysAndValues...)
	}
}
