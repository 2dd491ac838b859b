package firehose

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-qdl/devicetest"
	"github.com/moffa90/go-qdl/firmware"
	"github.com/moffa90/go-qdl/sparse"
)

// MockLogger records messages by level.
type MockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	errorMsgs []string
}

func (l *MockLogger) Debug(msg string, kv ...interface{}) { l.debugMsgs = append(l.debugMsgs, msg) }
func (l *MockLogger) Info(msg string, kv ...interface{})  { l.infoMsgs = append(l.infoMsgs, msg) }
func (l *MockLogger) Error(msg string, kv ...interface{}) { l.errorMsgs = append(l.errorMsgs, msg) }

func TestBuildCommands(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want string
	}{
		{
			name: "program",
			got:  BuildProgram(4096, 0, 100, 2),
			want: `<program SECTOR_SIZE_IN_BYTES="4096" num_partition_sectors="2" physical_partition_number="0" start_sector="100" />`,
		},
		{
			name: "read",
			got:  BuildRead(512, 3, 0, 34),
			want: `<read SECTOR_SIZE_IN_BYTES="512" num_partition_sectors="34" physical_partition_number="3" start_sector="0" />`,
		},
		{
			name: "boot lun",
			got:  BuildSetBootableStorageDrive(2),
			want: `<setbootablestoragedrive value="2" />`,
		},
		{
			name: "reset",
			got:  BuildPower("reset"),
			want: `<power value="reset" />`,
		},
		{
			name: "nop",
			got:  BuildNop(),
			want: `<nop />`,
		},
		{
			name: "fixgpt",
			got:  BuildFixGPT(1, true),
			want: `<fixgpt lun="1" grow_last_partition="1" />`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, xmlHeader+"<data>"+tt.want+"</data>", string(tt.got))
		})
	}
}

func TestBuildConfigure(t *testing.T) {
	s := DefaultSettings()
	s.MemoryName = `e"MMC`
	s.SkipWrite = true

	got := string(BuildConfigure(s))

	assert.Contains(t, got, `<configure MemoryName="e&#34;MMC"`)
	assert.Contains(t, got, `MaxPayloadSizeToTargetInBytes="1048576"`)
	assert.Contains(t, got, `ZLPAwareHost="1"`)
	assert.Contains(t, got, `SkipStorageInit="0"`)
	assert.Contains(t, got, `SkipWrite="1"`)
}

func TestBuildCommand_Escaping(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"plain", `value="plain"`},
		{`a&b<c>`, `value="a&amp;b&lt;c&gt;"`},
		{`it's`, `value="it&#39;s"`},
		{"line\nbreak\t", `value="line&#xA;break&#x9;"`},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got := string(buildCommand("nop", attr{"value", tt.value}))
			assert.Contains(t, got, "<data><nop "+tt.want+" /></data>")
		})
	}
}

func TestParseResponse(t *testing.T) {
	const prolog = `<?xml version="1.0" encoding="UTF-8" ?>`

	tests := []struct {
		name    string
		frame   string
		value   string
		ack     bool
		rawMode *bool
		logs    []string
		wantErr bool
	}{
		{
			name:  "ack",
			frame: prolog + `<data><response value="ACK" /></data>`,
			value: "ACK",
			ack:   true,
		},
		{
			name:  "true",
			frame: prolog + `<data><response value="true" /></data>`,
			value: "true",
			ack:   true,
		},
		{
			name:    "nak with raw mode",
			frame:   prolog + `<data><response value="NAK" rawmode="false" /></data>`,
			value:   "NAK",
			rawMode: new(bool),
		},
		{
			name:  "logs in separate documents",
			frame: prolog + `<data><log value="one" /></data>` + prolog + `<data><log value="two" /></data>` + prolog + `<data><response value="ACK" /></data>`,
			value: "ACK",
			ack:   true,
			logs:  []string{"one", "two"},
		},
		{
			name:  "malformed log text",
			frame: prolog + `<data><log value="a & b" /></data>` + prolog + `<data><response value="ACK" /></data>`,
			value: "ACK",
			ack:   true,
			logs:  []string{"a & b"},
		},
		{
			name:    "no response",
			frame:   prolog + `<data><log value="x" /></data>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsp, err := ParseResponse([]byte(tt.frame))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.value, rsp.Value)
			assert.Equal(t, tt.ack, rsp.Ack())
			assert.Equal(t, tt.rawMode, rsp.RawMode)
			assert.Equal(t, tt.logs, rsp.Logs)
		})
	}
}

func TestParseConfigureResponse(t *testing.T) {
	frame := `<?xml version="1.0" ?><data><response value="NAK" MaxPayloadSizeToTargetInBytes="16384" MemoryName="UFS" TargetName="8x96" /></data>`

	rsp, err := ParseConfigureResponse([]byte(frame))
	require.NoError(t, err)

	assert.False(t, rsp.Ack())
	require.NotNil(t, rsp.MaxPayloadSizeToTarget)
	assert.Equal(t, 16384, *rsp.MaxPayloadSizeToTarget)
	assert.Nil(t, rsp.MaxPayloadSizeFromTarget)
	assert.Equal(t, "UFS", rsp.MemoryName)
	assert.Equal(t, "8x96", rsp.TargetName)
}

func TestSplitResponse(t *testing.T) {
	first := `<?xml version="1.0" ?><data><response value="ACK" rawmode="true" /></data>`
	rest := "RAWDATA"

	head, tail, ok := splitResponse([]byte(first + rest))
	require.True(t, ok)
	assert.Equal(t, first, string(head))
	assert.Equal(t, rest, string(tail))

	_, _, ok = splitResponse([]byte(`<?xml version="1.0" ?><data><response value="ACK" />`))
	assert.False(t, ok)

	_, _, ok = splitResponse([]byte(`<?xml version="1.0" ?><data><log value="x" /></data>`))
	assert.False(t, ok)
}

func TestCommandError(t *testing.T) {
	err := &CommandError{Command: "program", Value: "NAK", Logs: []string{"first", "last"}}

	assert.Equal(t, "program failed: NAK (last)", err.Error())
	assert.True(t, IsCommandError(err))
	assert.False(t, IsTimeoutError(err))
}

func newConfiguredClient(t *testing.T, dev *devicetest.Device, s Settings, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithResponseTimeout(50 * time.Millisecond),
		WithPollInterval(0, 0),
	}, opts...)
	c := NewClient(dev, opts...)
	require.NoError(t, c.Configure(context.Background(), s))
	return c
}

func TestClient_Configure(t *testing.T) {
	dev := devicetest.New(devicetest.WithLUNs(1, 16))
	logger := &MockLogger{}
	c := newConfiguredClient(t, dev, DefaultSettings(), WithLogger(logger))

	got := c.Settings()
	assert.Equal(t, DefaultMaxPayloadSizeToTarget, got.MaxPayloadSizeToTarget)
	assert.Equal(t, 4096, got.MaxPayloadSizeFromTarget)
	assert.Equal(t, "UFS", dev.Attrs("configure")["MemoryName"])
	assert.Equal(t, 1, dev.CommandCount("configure"))
	assert.Contains(t, logger.debugMsgs, "device log")
}

func TestClient_Configure_PayloadProposal(t *testing.T) {
	dev := devicetest.New(devicetest.WithLUNs(1, 16), devicetest.WithMaxPayload(65536))
	logger := &MockLogger{}
	c := newConfiguredClient(t, dev, DefaultSettings(), WithLogger(logger))

	assert.Equal(t, 65536, c.Settings().MaxPayloadSizeToTarget)
	assert.Equal(t, 2, dev.CommandCount("configure"))
	assert.Equal(t, "65536", dev.Attrs("configure")["MaxPayloadSizeToTargetInBytes"])
	assert.NotEmpty(t, logger.infoMsgs)
}

func TestClient_Configure_Refused(t *testing.T) {
	dev := devicetest.New(devicetest.WithLUNs(1, 16))
	dev.FailCommand(TagConfigure)
	c := NewClient(dev, WithResponseTimeout(50*time.Millisecond))

	err := c.Configure(context.Background(), DefaultSettings())

	var ce *CommandError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "configure", ce.Command)
	assert.True(t, strings.HasPrefix(err.Error(), "configure failed: NAK"))
}

func TestClient_ReadBuffer(t *testing.T) {
	dev := devicetest.New(devicetest.WithLUNs(2, 16))
	data := make([]byte, 2*4096)
	for i := range data {
		data[i] = byte(i * 7)
	}
	dev.WriteSectors(1, 3, data)
	c := newConfiguredClient(t, dev, DefaultSettings())
	ctx := context.Background()

	got, err := c.ReadBuffer(ctx, 1, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// a second read must not see leftovers of the first
	got, err = c.ReadBuffer(ctx, 1, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, data[4096:], got)
}

func TestClient_ReadBuffer_OutOfRange(t *testing.T) {
	dev := devicetest.New(devicetest.WithLUNs(1, 4))
	c := newConfiguredClient(t, dev, DefaultSettings())

	_, err := c.ReadBuffer(context.Background(), 0, 2, 10)
	assert.True(t, IsCommandError(err))
}

func TestClient_Program_SectorPadding(t *testing.T) {
	dev := devicetest.New(devicetest.WithLUNs(1, 16))
	c := newConfiguredClient(t, dev, DefaultSettings())
	data := bytes.Repeat([]byte{0x5A}, 4097)

	err := c.Program(context.Background(), 0, 5, firmware.FromBytes("boot", data), nil)
	require.NoError(t, err)

	attrs := dev.Attrs("program")
	assert.Equal(t, "2", attrs["num_partition_sectors"])
	assert.Equal(t, "5", attrs["start_sector"])
	assert.Equal(t, int64(8192), dev.PayloadBytes())
	assert.Equal(t, 1, dev.ZLPs())

	want := append(append([]byte{}, data...), make([]byte, 8192-4097)...)
	assert.Equal(t, want, dev.ReadSectors(0, 5, 2))
}

func TestClient_Program_Progress(t *testing.T) {
	dev := devicetest.New(devicetest.WithLUNs(1, 32))
	s := DefaultSettings()
	s.MaxPayloadSizeToTarget = 4096
	c := newConfiguredClient(t, dev, s)
	data := make([]byte, 25*4096)

	type report struct{ written, total int64 }
	var reports []report
	err := c.Program(context.Background(), 0, 0, firmware.FromBytes("system", data), func(written, total int64) {
		reports = append(reports, report{written, total})
	})
	require.NoError(t, err)

	assert.Equal(t, []report{
		{10 * 4096, 25 * 4096},
		{20 * 4096, 25 * 4096},
		{25 * 4096, 25 * 4096},
	}, reports)
	assert.Equal(t, 25, dev.ZLPs())
}

func sparseImage(blockSize uint32, raw []byte, fillBlocks uint32, pattern [4]byte) []byte {
	rawBlocks := uint32(len(raw)) / blockSize
	h := sparse.Header{MajorVersion: 1, BlockSize: blockSize, TotalBlocks: rawBlocks + fillBlocks, TotalChunks: 2}
	out, _ := h.MarshalBinary()

	chunk := make([]byte, sparse.ChunkHeaderSize)
	binary.LittleEndian.PutUint16(chunk[0:2], uint16(sparse.ChunkRaw))
	binary.LittleEndian.PutUint32(chunk[4:8], rawBlocks)
	binary.LittleEndian.PutUint32(chunk[8:12], uint32(sparse.ChunkHeaderSize+len(raw)))
	out = append(out, chunk...)
	out = append(out, raw...)

	binary.LittleEndian.PutUint16(chunk[0:2], uint16(sparse.ChunkFill))
	binary.LittleEndian.PutUint32(chunk[4:8], fillBlocks)
	binary.LittleEndian.PutUint32(chunk[8:12], sparse.ChunkHeaderSize+4)
	out = append(out, chunk...)
	return append(out, pattern[:]...)
}

func TestClient_Program_Sparse(t *testing.T) {
	dev := devicetest.New(devicetest.WithLUNs(1, 16))
	c := newConfiguredClient(t, dev, DefaultSettings())
	raw := bytes.Repeat([]byte{1, 2, 3, 4, 5, 6, 7, 8}, 512)
	img := sparseImage(4096, raw, 3, [4]byte{0xAA, 0xBB, 0xCC, 0xDD})

	err := c.Program(context.Background(), 0, 2, firmware.FromBytes("system", img), nil)
	require.NoError(t, err)

	assert.Equal(t, "4", dev.Attrs("program")["num_partition_sectors"])
	assert.Equal(t, int64(4*4096), dev.PayloadBytes())
	// short final piece of a sparse image gets a second zero-length packet
	assert.Equal(t, 2, dev.ZLPs())

	want := append(append([]byte{}, raw...), bytes.Repeat([]byte{0xAA, 0xBB, 0xCC, 0xDD}, 3*1024)...)
	assert.Equal(t, want, dev.ReadSectors(0, 2, 4))
}

func TestClient_Program_Checksum(t *testing.T) {
	data := bytes.Repeat([]byte{0x11}, 8192)
	good := sha256.Sum256(data)
	bad := sha256.Sum256([]byte("other"))

	tests := []struct {
		name    string
		sum     []byte
		wantErr bool
	}{
		{"matching", good[:], false},
		{"mismatching", bad[:], true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := devicetest.New(devicetest.WithLUNs(1, 16))
			c := newConfiguredClient(t, dev, DefaultSettings())

			ctx := context.Background()
			dev.WriteSectors(0, 8, bytes.Repeat([]byte{0x22}, 4096))

			err := c.Program(ctx, 0, 0, firmware.FromBytes("boot", data, firmware.WithChecksum(tt.sum)), nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, sparse.IsChecksumError(err))
			} else {
				assert.NoError(t, err)
			}

			// the final program response is consumed either way
			assert.False(t, c.OutOfSync())
			got, err := c.ReadBuffer(ctx, 0, 8, 1)
			require.NoError(t, err)
			assert.Equal(t, bytes.Repeat([]byte{0x22}, 4096), got)
		})
	}
}

func TestClient_Program_ShortImage(t *testing.T) {
	dev := devicetest.New(devicetest.WithLUNs(1, 16))
	logger := &MockLogger{}
	c := newConfiguredClient(t, dev, DefaultSettings(), WithLogger(logger))
	img := sparseImage(4096, bytes.Repeat([]byte{7}, 4096), 3, [4]byte{1, 2, 3, 4})
	img = img[:len(img)-4]
	ctx := context.Background()

	err := c.Program(ctx, 0, 0, firmware.FromBytes("system", img), nil)
	require.Error(t, err)
	assert.True(t, c.OutOfSync())
	assert.Contains(t, logger.errorMsgs, "session out of sync")

	err = c.Nop(ctx)
	assert.ErrorIs(t, err, ErrOutOfSync)
	assert.Zero(t, dev.CommandCount(TagNop))
}

func TestClient_Program_Refused(t *testing.T) {
	dev := devicetest.New(devicetest.WithLUNs(1, 16))
	c := newConfiguredClient(t, dev, DefaultSettings())
	dev.FailCommand(TagProgram)

	err := c.Program(context.Background(), 0, 0, firmware.FromBytes("boot", make([]byte, 4096)), nil)

	var ce *CommandError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "program failed: NAK (simulated program failure)", ce.Error())
	assert.Equal(t, int64(0), dev.PayloadBytes())
}

func TestClient_Program_Empty(t *testing.T) {
	dev := devicetest.New(devicetest.WithLUNs(1, 16))
	c := newConfiguredClient(t, dev, DefaultSettings())

	err := c.Program(context.Background(), 0, 0, firmware.FromBytes("boot", nil), nil)
	assert.Error(t, err)
	assert.Zero(t, dev.CommandCount(TagProgram))
}

func TestClient_Erase(t *testing.T) {
	dev := devicetest.New(devicetest.WithLUNs(1, 8))
	dev.WriteSectors(0, 0, bytes.Repeat([]byte{0xFF}, 8*4096))
	s := DefaultSettings()
	s.MaxPayloadSizeToTarget = 4096
	c := newConfiguredClient(t, dev, s)

	require.NoError(t, c.Erase(context.Background(), 0, 2, 3, nil))

	assert.Equal(t, make([]byte, 3*4096), dev.ReadSectors(0, 2, 3))
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 2*4096), dev.ReadSectors(0, 0, 2))
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 3*4096), dev.ReadSectors(0, 5, 3))
	assert.Equal(t, 3, dev.ZLPs())
}

func TestClient_Erase_Progress(t *testing.T) {
	dev := devicetest.New(devicetest.WithLUNs(1, 32))
	s := DefaultSettings()
	s.MaxPayloadSizeToTarget = 4096
	c := newConfiguredClient(t, dev, s)

	type report struct{ written, total int64 }
	var reports []report
	err := c.Erase(context.Background(), 0, 4, 25, func(written, total int64) {
		reports = append(reports, report{written, total})
	})
	require.NoError(t, err)

	assert.Equal(t, []report{
		{10 * 4096, 25 * 4096},
		{20 * 4096, 25 * 4096},
		{25 * 4096, 25 * 4096},
	}, reports)
	assert.Equal(t, 25, dev.ZLPs())
}

func TestClient_Erase_Cancelled(t *testing.T) {
	dev := devicetest.New(devicetest.WithLUNs(1, 32))
	s := DefaultSettings()
	s.MaxPayloadSizeToTarget = 4096
	c := newConfiguredClient(t, dev, s)
	ctx, cancel := context.WithCancel(context.Background())

	err := c.Erase(ctx, 0, 0, 25, func(written, total int64) { cancel() })

	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, c.OutOfSync())
}

func TestClient_SimpleCommands(t *testing.T) {
	dev := devicetest.New(devicetest.WithLUNs(1, 8))
	c := newConfiguredClient(t, dev, DefaultSettings())
	ctx := context.Background()

	require.NoError(t, c.SetBootLUN(ctx, 2))
	require.NoError(t, c.Nop(ctx))
	require.NoError(t, c.FixGPT(ctx, 0, true))
	require.NoError(t, c.Reset(ctx))

	assert.Equal(t, 2, dev.BootLUN())
	assert.Equal(t, 1, dev.Resets())
	assert.Equal(t, "1", dev.Attrs(TagFixGPT)["grow_last_partition"])
	assert.Equal(t, []string{"configure", "setbootablestoragedrive", "nop", "fixgpt", "power"}, dev.Commands())
}

func TestClient_Timeout(t *testing.T) {
	dev := devicetest.New(devicetest.WithLUNs(1, 8))
	c := newConfiguredClient(t, dev, DefaultSettings())
	dev.StallCommand(TagNop)

	start := time.Now()
	err := c.Nop(context.Background())

	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "nop", te.Command)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestClient_Cancelled(t *testing.T) {
	dev := devicetest.New(devicetest.WithLUNs(1, 8))
	c := newConfiguredClient(t, dev, DefaultSettings())
	dev.StallCommand(TagNop)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Nop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
