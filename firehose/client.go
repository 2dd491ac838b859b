package firehose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/moffa90/go-qdl/sparse"
	"github.com/moffa90/go-qdl/transport"
)

// Payload is an image that can be programmed. Sparse content is detected and
// expanded on the fly; Size is only used for raw content.
type Payload interface {
	Open() (io.ReadCloser, error)
	Size() int64
}

// verifiable is implemented by payloads that carry an expected SHA-256
// digest of their expanded content.
type verifiable interface {
	Checksum() []byte
}

// Client issues Firehose commands over a borrowed transport. Commands are
// strictly sequential; a Client must not be used concurrently.
type Client struct {
	t        transport.Transport
	config   Config
	settings Settings

	// pending holds bytes read past the end of the last response frame
	pending []byte

	// desync is the transfer failure that left the device waiting for
	// payload; once set, no further command is sent
	desync error
}

// NewClient creates a Client on t with DefaultSettings.
func NewClient(t transport.Transport, opts ...Option) *Client {
	if t == nil {
		panic("transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Client{t: t, config: cfg, settings: DefaultSettings()}
}

// OutOfSync reports whether a failed transfer left the programmer in a state
// this client can no longer talk to. The device must be reset and
// reconnected.
func (c *Client) OutOfSync() bool {
	return c.desync != nil
}

// Settings returns the negotiated storage settings.
func (c *Client) Settings() Settings {
	return c.settings
}

// Configure negotiates s with the programmer. When the device refuses the
// requested payload size and proposes its own, the command is retried once
// with the proposal. On success the device's payload limits are adopted.
func (c *Client) Configure(ctx context.Context, s Settings) error {
	if s.SectorSize <= 0 {
		return fmt.Errorf("invalid sector size %d", s.SectorSize)
	}

	rsp, err := c.configure(ctx, s)
	if err != nil {
		return err
	}
	if !rsp.Ack() && rsp.MaxPayloadSizeToTarget != nil && *rsp.MaxPayloadSizeToTarget != s.MaxPayloadSizeToTarget {
		c.logInfo("device proposed payload size",
			"requested", s.MaxPayloadSizeToTarget,
			"proposed", *rsp.MaxPayloadSizeToTarget,
		)
		s.MaxPayloadSizeToTarget = *rsp.MaxPayloadSizeToTarget
		if rsp, err = c.configure(ctx, s); err != nil {
			return err
		}
	}
	if !rsp.Ack() {
		return &CommandError{Command: TagConfigure, Value: rsp.Value, Logs: rsp.Logs}
	}

	if v := rsp.MaxPayloadSizeToTarget; v != nil && *v > 0 && *v < s.MaxPayloadSizeToTarget {
		s.MaxPayloadSizeToTarget = *v
	}
	if v := rsp.MaxPayloadSizeFromTarget; v != nil && *v > 0 {
		s.MaxPayloadSizeFromTarget = *v
	}
	// payload pieces must hold whole sectors
	if s.MaxPayloadSizeToTarget >= s.SectorSize {
		s.MaxPayloadSizeToTarget -= s.MaxPayloadSizeToTarget % s.SectorSize
	} else {
		s.MaxPayloadSizeToTarget = s.SectorSize
	}

	c.settings = s
	c.logDebug("configured",
		"memory", s.MemoryName,
		"sector_size", s.SectorSize,
		"max_payload_to_target", s.MaxPayloadSizeToTarget,
		"target", rsp.TargetName,
	)
	return nil
}

func (c *Client) configure(ctx context.Context, s Settings) (*ConfigureResponse, error) {
	if err := c.write(BuildConfigure(s)); err != nil {
		return nil, err
	}
	frame, err := c.waitForResponse(ctx, TagConfigure)
	if err != nil {
		return nil, err
	}
	rsp, err := ParseConfigureResponse(frame)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", TagConfigure, err)
	}
	c.forwardLogs(TagConfigure, rsp.Logs)
	return rsp, nil
}

// ReadBuffer reads numSectors sectors of lun starting at startSector.
func (c *Client) ReadBuffer(ctx context.Context, lun int, startSector, numSectors uint64) ([]byte, error) {
	ss := c.settings.SectorSize
	if err := c.write(BuildRead(ss, lun, startSector, numSectors)); err != nil {
		return nil, err
	}
	if _, err := c.expectAck(ctx, TagRead); err != nil {
		return nil, err
	}

	data, err := c.readRaw(ctx, int64(numSectors)*int64(ss))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	rsp, err := c.expectAck(ctx, TagRead)
	if err != nil {
		return nil, err
	}
	if rsp.RawMode != nil && *rsp.RawMode {
		return nil, &CommandError{Command: TagRead, Value: "device still in raw mode", Logs: rsp.Logs}
	}
	return data, nil
}

// Program writes p to lun at startSector. The descriptor declares the
// expanded size of the payload in sectors; the payload follows in pieces of
// at most MaxPayloadSizeToTarget bytes, each zero-padded to a sector boundary
// and followed by a zero-length write.
func (c *Client) Program(ctx context.Context, lun int, startSector uint64, p Payload, onProgress ProgressFunc) error {
	rc, err := p.Open()
	if err != nil {
		return fmt.Errorf("program: %w", err)
	}
	defer func() { _ = rc.Close() }()

	hdr, r, err := sparse.Probe(rc)
	if err != nil {
		return fmt.Errorf("program: %w", err)
	}

	total := p.Size()
	var stream io.Reader = r
	if hdr != nil {
		sr, err := sparse.NewReader(r)
		if err != nil {
			return fmt.Errorf("program: %w", err)
		}
		stream = sr
		total = hdr.RealSize()
	}
	if v, ok := p.(verifiable); ok && v.Checksum() != nil {
		stream = sparse.NewVerifyingReader(stream, v.Checksum())
	}
	if total <= 0 {
		return errors.New("program: empty image")
	}

	ss := int64(c.settings.SectorSize)
	sectors := uint64((total + ss - 1) / ss)
	c.logDebug("program",
		"lun", lun,
		"start_sector", startSector,
		"sectors", sectors,
		"sparse", hdr != nil,
	)

	if err := c.write(BuildProgram(c.settings.SectorSize, lun, startSector, sectors)); err != nil {
		return err
	}
	if _, err := c.expectAck(ctx, TagProgram); err != nil {
		return err
	}

	written, err := c.stream(ctx, stream, total, hdr != nil, onProgress)
	if err == nil && written < total {
		err = &ShortImageError{Written: written, Total: total}
	}
	if err != nil {
		c.abandon(ctx, TagProgram, written == total, err)
		return fmt.Errorf("program: %w", err)
	}
	if onProgress != nil {
		onProgress(total, total)
	}

	_, err = c.expectAck(ctx, TagProgram)
	return err
}

// stream sends up to total bytes of src in sector-padded pieces.
func (c *Client) stream(ctx context.Context, src io.Reader, total int64, sparseImage bool, onProgress ProgressFunc) (int64, error) {
	ss := c.settings.SectorSize
	piece := make([]byte, c.settings.MaxPayloadSizeToTarget)
	r := io.LimitReader(src, total)

	var written int64
	for pieces := 1; ; pieces++ {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, err := io.ReadFull(r, piece)
		if n == 0 {
			if err == io.EOF {
				return written, drain(src)
			}
			if err != nil {
				return written, err
			}
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return written, err
		}

		out := piece[:n]
		if rem := n % ss; rem != 0 {
			padded := n + ss - rem
			clear(piece[n:padded])
			out = piece[:padded]
		}
		if err := c.write(out); err != nil {
			return written, err
		}
		if err := c.write(nil); err != nil {
			return written, err
		}
		if sparseImage && n < len(piece) {
			if err := c.write(nil); err != nil {
				return written, err
			}
		}
		written += int64(n)

		if onProgress != nil && pieces%c.config.ProgressInterval == 0 {
			onProgress(written, total)
		}
		if err == io.ErrUnexpectedEOF {
			return written, drain(src)
		}
	}
}

// drain reads r to its end so that a VerifyingReader sees EOF and checks
// its digest.
func drain(r io.Reader) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

// Erase overwrites numSectors sectors of lun starting at startSector with
// zeros. onProgress, if not nil, is called every ProgressInterval pieces and
// once on completion.
func (c *Client) Erase(ctx context.Context, lun int, startSector, numSectors uint64, onProgress ProgressFunc) error {
	ss := c.settings.SectorSize
	if err := c.write(BuildProgram(ss, lun, startSector, numSectors)); err != nil {
		return err
	}
	if _, err := c.expectAck(ctx, TagProgram); err != nil {
		return err
	}

	zeros := make([]byte, c.settings.MaxPayloadSizeToTarget)
	total := int64(numSectors) * int64(ss)
	var written int64
	for pieces := 1; written < total; pieces++ {
		if err := ctx.Err(); err != nil {
			c.abandon(ctx, TagProgram, false, err)
			return err
		}
		n := int64(len(zeros))
		if total-written < n {
			n = total - written
		}
		if err := c.write(zeros[:n]); err != nil {
			c.abandon(ctx, TagProgram, false, err)
			return err
		}
		if err := c.write(nil); err != nil {
			c.abandon(ctx, TagProgram, false, err)
			return err
		}
		written += n

		if onProgress != nil && pieces%c.config.ProgressInterval == 0 {
			onProgress(written, total)
		}
	}
	if onProgress != nil {
		onProgress(total, total)
	}

	_, err := c.expectAck(ctx, TagProgram)
	return err
}

// SetBootLUN selects the LUN the device boots from.
func (c *Client) SetBootLUN(ctx context.Context, lun int) error {
	return c.simple(ctx, TagSetBootableStorageDrive, BuildSetBootableStorageDrive(lun))
}

// Reset reboots the device.
func (c *Client) Reset(ctx context.Context) error {
	return c.simple(ctx, TagPower, BuildPower("reset"))
}

// Nop checks that the programmer is responsive.
func (c *Client) Nop(ctx context.Context) error {
	return c.simple(ctx, TagNop, BuildNop())
}

// FixGPT asks the programmer to regenerate the backup GPT of lun.
func (c *Client) FixGPT(ctx context.Context, lun int, growLastPartition bool) error {
	return c.simple(ctx, TagFixGPT, BuildFixGPT(lun, growLastPartition))
}

func (c *Client) simple(ctx context.Context, command string, cmd []byte) error {
	if err := c.write(cmd); err != nil {
		return err
	}
	_, err := c.expectAck(ctx, command)
	return err
}

// expectAck waits for the next response and requires it to be ACK.
func (c *Client) expectAck(ctx context.Context, command string) (*Response, error) {
	frame, err := c.waitForResponse(ctx, command)
	if err != nil {
		return nil, err
	}
	rsp, err := ParseResponse(frame)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	c.forwardLogs(command, rsp.Logs)
	if !rsp.Ack() {
		c.logError("command refused", "command", command, "value", rsp.Value)
		return rsp, &CommandError{Command: command, Value: rsp.Value, Logs: rsp.Logs}
	}
	return rsp, nil
}

// abandon recovers from a payload transfer that failed part way. When the
// whole declared payload went out, the device still answers and that answer
// is discarded. Otherwise the device keeps waiting for payload and the
// client refuses every further command.
func (c *Client) abandon(ctx context.Context, command string, sent bool, cause error) {
	if sent {
		if _, err := c.waitForResponse(ctx, command); err == nil {
			c.logDebug("response discarded after failed transfer", "command", command, "error", cause)
			return
		}
	}
	c.desync = cause
	c.logError("session out of sync", "command", command, "error", cause)
}

func (c *Client) forwardLogs(command string, logs []string) {
	for _, l := range logs {
		c.logDebug("device log", "command", command, "message", l)
	}
}

// waitForResponse reads until the buffer holds a complete response frame.
// Empty reads back off exponentially; the wait is bounded by
// ResponseTimeout, restarted whenever data arrives.
func (c *Client) waitForResponse(ctx context.Context, command string) ([]byte, error) {
	buf := c.pending
	c.pending = nil

	chunk := make([]byte, responseReadSize)
	backoff := c.config.PollInterval
	deadline := time.Now().Add(c.config.ResponseTimeout)

	for {
		if frame, rest, ok := splitResponse(buf); ok {
			if len(rest) > 0 {
				c.pending = append([]byte(nil), rest...)
			}
			return frame, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := c.t.Read(chunk)
		if err != nil && !transport.IsTimeout(err) {
			return nil, fmt.Errorf("%s: read response: %w", command, err)
		}
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			backoff = c.config.PollInterval
			deadline = time.Now().Add(c.config.ResponseTimeout)
			continue
		}

		if time.Now().After(deadline) {
			if len(buf) > 0 {
				c.logDebug("partial response discarded", "command", command, "data", string(truncate(buf, 256)))
			}
			return nil, &TimeoutError{Command: command, After: c.config.ResponseTimeout}
		}
		if backoff > 0 {
			time.Sleep(backoff)
			if backoff *= 2; backoff > c.config.MaxPollInterval {
				backoff = c.config.MaxPollInterval
			}
		}
	}
}

// readRaw reads exactly n bytes of raw payload, starting with any bytes
// already buffered.
func (c *Client) readRaw(ctx context.Context, n int64) ([]byte, error) {
	out := make([]byte, 0, n)
	if len(c.pending) > 0 {
		take := int64(len(c.pending))
		if take > n {
			take = n
		}
		out = append(out, c.pending[:take]...)
		c.pending = c.pending[take:]
		if len(c.pending) == 0 {
			c.pending = nil
		}
	}

	chunk := make([]byte, transport.PacketSize(c.t))
	deadline := time.Now().Add(c.config.ResponseTimeout)
	for int64(len(out)) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		want := n - int64(len(out))
		if want > int64(len(chunk)) {
			want = int64(len(chunk))
		}
		got, err := c.t.Read(chunk[:want])
		if err != nil && !transport.IsTimeout(err) {
			return nil, err
		}
		if got > 0 {
			out = append(out, chunk[:got]...)
			deadline = time.Now().Add(c.config.ResponseTimeout)
			continue
		}
		if time.Now().After(deadline) {
			return nil, &TimeoutError{Command: TagRead, After: c.config.ResponseTimeout}
		}
		if c.config.PollInterval > 0 {
			time.Sleep(c.config.PollInterval)
		}
	}
	return out, nil
}

func (c *Client) write(data []byte) error {
	if c.desync != nil {
		return fmt.Errorf("%w: %v", ErrOutOfSync, c.desync)
	}
	if _, err := c.t.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
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
