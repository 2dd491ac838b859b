package device

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-qdl/devicetest"
	"github.com/moffa90/go-qdl/firehose"
	"github.com/moffa90/go-qdl/firmware"
	"github.com/moffa90/go-qdl/gpt"
	"github.com/moffa90/go-qdl/sparse"
)

const (
	testSectorSize = 4096
	testLUNSectors = 4096
)

// MockLogger captures log messages for assertions.
type MockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	errorMsgs []string
}

func (m *MockLogger) Debug(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *MockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *MockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

func lun0Entries() []gpt.Entry {
	return []gpt.Entry{
		{TypeGUID: gpt.QualcommXBLTypeGUID, FirstLBA: 6, LastLBA: 99, Name: "xbl"},
		{TypeGUID: gpt.AndroidBootTypeGUID, FirstLBA: 100, LastLBA: 199, Name: "boot"},
		{TypeGUID: gpt.AndroidBootTypeGUID, FirstLBA: 200, LastLBA: 299, Name: "boot_a", Flags: gpt.SetPartitionFlags(0, true, true)},
		{TypeGUID: gpt.AndroidBootTypeGUID, FirstLBA: 300, LastLBA: 399, Name: "boot_b", Flags: gpt.SetPartitionFlags(0, false, true)},
		{TypeGUID: gpt.AndroidSystemTypeGUID, FirstLBA: 400, LastLBA: 1399, Name: "system_a", Flags: gpt.ActiveBit},
		{TypeGUID: gpt.AndroidSystemTypeGUID, FirstLBA: 1400, LastLBA: 2399, Name: "system_b"},
		{TypeGUID: gpt.AndroidMiscTypeGUID, FirstLBA: 2400, LastLBA: 2409, Name: "misc"},
		{TypeGUID: gpt.AndroidUserdataGUID, FirstLBA: 2410, LastLBA: 4000, Name: "userdata"},
	}
}

func lun1Entries() []gpt.Entry {
	return []gpt.Entry{
		{TypeGUID: gpt.AndroidMiscTypeGUID, FirstLBA: 6, LastLBA: 9, Name: "misc"},
		{TypeGUID: gpt.AndroidPersistTypeGUID, FirstLBA: 10, LastLBA: 99, Name: "persist"},
	}
}

// buildTables returns the primary and backup regions for entries.
func buildTables(t *testing.T, entries []gpt.Entry) ([]byte, []byte) {
	t.Helper()
	primary, backup, err := gpt.Build(gpt.BuildConfig{SectorSize: testSectorSize, TotalSectors: testLUNSectors}, entries)
	require.NoError(t, err)
	return primary, backup
}

func backupStart(backup []byte) uint64 {
	return testLUNSectors - uint64(len(backup)/testSectorSize)
}

// newSimulator returns a device with two LUNs carrying partition tables and
// a third blank one.
func newSimulator(t *testing.T, opts ...devicetest.Option) *devicetest.Device {
	t.Helper()
	sim := devicetest.New(append([]devicetest.Option{devicetest.WithLUNs(3, testLUNSectors)}, opts...)...)
	for lun, entries := range [][]gpt.Entry{lun0Entries(), lun1Entries()} {
		primary, backup := buildTables(t, entries)
		sim.WriteSectors(lun, 0, primary)
		sim.WriteSectors(lun, backupStart(backup), backup)
	}
	return sim
}

func newTestDevice(t *testing.T, sim *devicetest.Device, opts ...Option) *Device {
	t.Helper()
	base := []Option{
		WithConnectTimeout(20 * time.Millisecond),
		WithResponseTimeout(200 * time.Millisecond),
		WithPollInterval(time.Millisecond),
	}
	return New(sim, append(base, opts...)...)
}

func connected(t *testing.T, sim *devicetest.Device, opts ...Option) *Device {
	t.Helper()
	dev := newTestDevice(t, sim, opts...)
	require.NoError(t, dev.Connect(context.Background()))
	return dev
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i%251)
	}
	return b
}

func TestNew_NilTransport(t *testing.T) {
	assert.Panics(t, func() { New(nil) })
}

func TestConnect(t *testing.T) {
	t.Run("programmer already running", func(t *testing.T) {
		sim := newSimulator(t)
		logger := &MockLogger{}
		dev := newTestDevice(t, sim, WithLogger(logger))

		require.NoError(t, dev.Connect(context.Background()))

		assert.Equal(t, ModeFirehose, dev.Mode())
		assert.Equal(t, 1, sim.CommandCount("configure"))
		assert.Equal(t, testSectorSize, dev.Settings().SectorSize)
		assert.Contains(t, logger.infoMsgs, "connected")
	})

	t.Run("uploads programmer", func(t *testing.T) {
		programmer := pattern(10000, 7)
		sim := newSimulator(t, devicetest.WithSahara(len(programmer)), devicetest.WithSerial(0xdeadbeef))
		dev := newTestDevice(t, sim, WithProgrammer(programmer))

		require.NoError(t, dev.Connect(context.Background()))

		assert.Equal(t, ModeFirehose, dev.Mode())
		assert.Equal(t, "deadbeef", dev.Serial())
		assert.Equal(t, programmer, sim.Programmer())
		assert.True(t, sim.InFirehose())
	})

	t.Run("no programmer", func(t *testing.T) {
		sim := newSimulator(t, devicetest.WithSahara(100))
		dev := newTestDevice(t, sim)

		err := dev.Connect(context.Background())

		assert.ErrorIs(t, err, ErrNoProgrammer)
		assert.Equal(t, ModeDisconnected, dev.Mode())
	})

	t.Run("configure refused", func(t *testing.T) {
		sim := newSimulator(t)
		sim.FailCommand(firehose.TagConfigure)
		dev := newTestDevice(t, sim)

		err := dev.Connect(context.Background())

		require.Error(t, err)
		assert.True(t, firehose.IsCommandError(err))
		assert.Equal(t, ModeDisconnected, dev.Mode())
	})

	t.Run("upload refused", func(t *testing.T) {
		sim := newSimulator(t, devicetest.WithSahara(100))
		sim.FailTransfer(0x0D)
		dev := newTestDevice(t, sim, WithProgrammer(pattern(100, 1)))

		require.Error(t, dev.Connect(context.Background()))
		assert.Equal(t, ModeDisconnected, dev.Mode())
	})
}

func TestNotConnected(t *testing.T) {
	sim := newSimulator(t)
	dev := newTestDevice(t, sim)
	ctx := context.Background()
	img := firmware.FromBytes("boot", []byte{1})

	tests := []struct {
		name string
		op   func() error
	}{
		{"flash", func() error { return dev.FlashBlob(ctx, "boot", img) }},
		{"erase", func() error { return dev.Erase(ctx, "boot") }},
		{"detect", func() error { _, err := dev.DetectPartition(ctx, "boot"); return err }},
		{"get slot", func() error { _, err := dev.GetActiveSlot(ctx); return err }},
		{"set slot", func() error { return dev.SetActiveSlot(ctx, "a") }},
		{"repair", func() error { return dev.RepairGPT(ctx, 0, img) }},
		{"reset", func() error { return dev.Reset(ctx) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.op(), ErrNotConnected)
		})
	}
	assert.Empty(t, sim.Commands())
}

func TestDetectPartition(t *testing.T) {
	sim := newSimulator(t)
	dev := connected(t, sim)
	ctx := context.Background()

	tests := []struct {
		name    string
		lun     int
		start   uint64
		sectors uint64
	}{
		{"boot", 0, 100, 100},
		{"system_b", 0, 1400, 1000},
		{"misc", 0, 2400, 10},
		{"persist", 1, 10, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := dev.DetectPartition(ctx, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.lun, p.LUN)
			assert.Equal(t, tt.start, p.StartSector)
			assert.Equal(t, tt.sectors, p.Sectors)
			assert.Equal(t, tt.name, p.Entry.Name)
		})
	}

	t.Run("missing", func(t *testing.T) {
		_, err := dev.DetectPartition(ctx, "modem")
		assert.True(t, IsPartitionNotFound(err))
	})
}

func TestDetectPartition_SingleLUN(t *testing.T) {
	sim := devicetest.New(devicetest.WithLUNs(1, testLUNSectors))
	primary, _ := buildTables(t, []gpt.Entry{
		{TypeGUID: gpt.AndroidBootTypeGUID, FirstLBA: 100, LastLBA: 199, Name: "boot"},
	})
	sim.WriteSectors(0, 0, primary)
	dev := connected(t, sim)

	p, err := dev.DetectPartition(context.Background(), "boot")

	require.NoError(t, err)
	assert.Equal(t, 0, p.LUN)
	assert.Equal(t, uint64(100), p.StartSector)
	assert.Equal(t, uint64(100), p.Sectors)
}

func TestPartitions(t *testing.T) {
	sim := newSimulator(t)
	dev := connected(t, sim)

	parts, err := dev.Partitions(context.Background())
	require.NoError(t, err)

	var names []string
	for _, p := range parts {
		names = append(names, fmt.Sprintf("%d:%s", p.LUN, p.Name))
	}
	assert.Equal(t, []string{
		"0:xbl", "0:boot", "0:boot_a", "0:boot_b", "0:system_a", "0:system_b", "0:misc", "0:userdata",
		"1:misc", "1:persist",
	}, names)
}

func TestFlashBlob(t *testing.T) {
	sim := newSimulator(t)
	var progress []Progress
	dev := connected(t, sim, WithProgressCallback(func(p Progress) { progress = append(progress, p) }))

	data := pattern(100*testSectorSize, 3)
	require.NoError(t, dev.FlashBlob(context.Background(), "boot", firmware.FromBytes("boot", data)))

	assert.Equal(t, data, sim.ReadSectors(0, 100, 100))
	assert.Equal(t, map[string]string{
		"SECTOR_SIZE_IN_BYTES":      "4096",
		"num_partition_sectors":     "100",
		"physical_partition_number": "0",
		"start_sector":              "100",
	}, sim.Attrs(firehose.TagProgram))

	require.NotEmpty(t, progress)
	last := progress[len(progress)-1]
	assert.Equal(t, PhaseComplete, last.Phase)
	assert.Equal(t, "boot", last.Partition)
	assert.Equal(t, 100.0, last.Percentage)
}

func TestFlashBlob_TooLarge(t *testing.T) {
	sim := newSimulator(t)
	dev := connected(t, sim)

	img := firmware.FromBytes("boot", make([]byte, 100*testSectorSize+1))
	err := dev.FlashBlob(context.Background(), "boot", img)

	var tooLarge *ImageTooLargeError
	require.True(t, errors.As(err, &tooLarge))
	assert.Equal(t, uint64(101), tooLarge.ImageSectors)
	assert.Equal(t, uint64(100), tooLarge.PartitionSectors)
	assert.Zero(t, sim.CommandCount(firehose.TagProgram))
	assert.Zero(t, sim.PayloadBytes())
}

func TestFlashBlob_InvalidEntry(t *testing.T) {
	sim := devicetest.New(devicetest.WithLUNs(1, testLUNSectors))
	primary, _ := buildTables(t, []gpt.Entry{
		{TypeGUID: gpt.AndroidBootTypeGUID, FirstLBA: 200, LastLBA: 100, Name: "boot"},
	})
	sim.WriteSectors(0, 0, primary)
	dev := connected(t, sim)
	ctx := context.Background()

	_, err := dev.DetectPartition(ctx, "boot")
	assert.ErrorIs(t, err, gpt.ErrInvalidEntry)

	err = dev.FlashBlob(ctx, "boot", firmware.FromBytes("boot", make([]byte, 500*testSectorSize)))
	assert.ErrorIs(t, err, gpt.ErrInvalidEntry)
	assert.Zero(t, sim.CommandCount(firehose.TagProgram))
	assert.Zero(t, sim.PayloadBytes())
}

func TestFlashBlob_NotFound(t *testing.T) {
	sim := newSimulator(t)
	dev := connected(t, sim)

	err := dev.FlashBlob(context.Background(), "modem_a", firmware.FromBytes("modem", []byte{1}))

	var notFound *PartitionNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "modem_a", notFound.Name)
	assert.Zero(t, sim.CommandCount(firehose.TagProgram))
}

func TestFlashBlob_Refused(t *testing.T) {
	sim := newSimulator(t)
	dev := connected(t, sim)
	sim.FailCommand(firehose.TagProgram)

	err := dev.FlashBlob(context.Background(), "boot", firmware.FromBytes("boot", []byte{1}))

	var ce *firehose.CommandError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, firehose.TagProgram, ce.Command)
}

// sparseImage encodes chunks of 4096-byte blocks: a raw chunk with data
// followed by a fill chunk.
func sparseImage(raw []byte, fillBlocks uint32, fill [4]byte) []byte {
	rawBlocks := uint32(len(raw) / testSectorSize)
	h := sparse.Header{
		MajorVersion: sparse.MajorVersion,
		BlockSize:    testSectorSize,
		TotalBlocks:  rawBlocks + fillBlocks,
		TotalChunks:  2,
	}
	hb, _ := h.MarshalBinary()
	buf := bytes.NewBuffer(hb)

	chunk := func(typ sparse.ChunkType, blocks uint32, data []byte) {
		var hdr [sparse.ChunkHeaderSize]byte
		binary.LittleEndian.PutUint16(hdr[0:], uint16(typ))
		binary.LittleEndian.PutUint32(hdr[4:], blocks)
		binary.LittleEndian.PutUint32(hdr[8:], uint32(sparse.ChunkHeaderSize+len(data)))
		buf.Write(hdr[:])
		buf.Write(data)
	}
	chunk(sparse.ChunkRaw, rawBlocks, raw)
	chunk(sparse.ChunkFill, fillBlocks, fill[:])
	return buf.Bytes()
}

func expand(raw []byte, fillBlocks int, fill [4]byte) []byte {
	out := append([]byte(nil), raw...)
	for i := 0; i < fillBlocks*testSectorSize/4; i++ {
		out = append(out, fill[:]...)
	}
	return out
}

func TestFlashBlob_Sparse(t *testing.T) {
	raw := pattern(4*testSectorSize, 9)
	fill := [4]byte{0xAA, 0xBB, 0xCC, 0xDD}
	img := sparseImage(raw, 6, fill)
	want := expand(raw, 6, fill)

	tests := []struct {
		name      string
		splitSize int64
		programs  int
	}{
		{"single command", 0, 1},
		{"below split size", 10 * testSectorSize, 1},
		{"split", 3 * testSectorSize, 4},
		{"split unaligned limit", 3*testSectorSize + 100, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := newSimulator(t)
			var progress []Progress
			dev := connected(t, sim,
				WithSplitSize(tt.splitSize),
				WithProgressCallback(func(p Progress) { progress = append(progress, p) }),
			)

			require.NoError(t, dev.FlashBlob(context.Background(), "boot_b", firmware.FromBytes("boot", img)))

			assert.Equal(t, want, sim.ReadSectors(0, 300, 10))
			assert.Equal(t, tt.programs, sim.CommandCount(firehose.TagProgram))
			assert.Equal(t, int64(len(want)), progress[len(progress)-1].BytesWritten)
		})
	}
}

func TestFlashBlob_SplitChecksum(t *testing.T) {
	raw := pattern(4*testSectorSize, 9)
	img := sparseImage(raw, 6, [4]byte{1, 2, 3, 4})

	sim := newSimulator(t)
	dev := connected(t, sim, WithSplitSize(3*testSectorSize))

	err := dev.FlashBlob(context.Background(), "boot_b", firmware.FromBytes("boot", img, firmware.WithChecksum(make([]byte, 32))))

	assert.True(t, sparse.IsChecksumError(err))
	assert.Zero(t, sim.CommandCount(firehose.TagProgram))
}

func TestFlashBlob_Checksum(t *testing.T) {
	raw := pattern(4*testSectorSize, 5)
	sparseImg := sparseImage(raw, 2, [4]byte{9, 9, 9, 9})
	rawSum := sha256.Sum256(raw)
	wrong := make([]byte, 32)

	tests := []struct {
		name    string
		data    []byte
		sum     []byte
		wantErr bool
	}{
		{"raw matching", raw, rawSum[:], false},
		{"raw mismatching", raw, wrong, true},
		{"zeros mismatching", make([]byte, testSectorSize), wrong, true},
		{"sparse mismatching", sparseImg, wrong, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := newSimulator(t)
			dev := connected(t, sim)
			ctx := context.Background()

			err := dev.FlashBlob(ctx, "boot", firmware.FromBytes("boot", tt.data, firmware.WithChecksum(tt.sum)))
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, raw, sim.ReadSectors(0, 100, 4))
				return
			}

			assert.True(t, sparse.IsChecksumError(err), "got %v", err)
			assert.Zero(t, sim.CommandCount(firehose.TagProgram))
			assert.Zero(t, sim.PayloadBytes())

			// the session is still usable
			p, err := dev.DetectPartition(ctx, "misc")
			require.NoError(t, err)
			assert.Equal(t, uint64(2400), p.StartSector)
		})
	}
}

func TestFlashBlob_TruncatedImage(t *testing.T) {
	img := sparseImage(pattern(4*testSectorSize, 1), 6, [4]byte{1, 2, 3, 4})
	img = img[:len(img)-4]

	sim := newSimulator(t)
	logger := &MockLogger{}
	dev := connected(t, sim, WithLogger(logger))
	ctx := context.Background()

	err := dev.FlashBlob(ctx, "boot", firmware.FromBytes("boot", img))

	require.Error(t, err)
	assert.Equal(t, ModeDisconnected, dev.Mode())
	assert.Contains(t, logger.errorMsgs, "session out of sync, reconnect required")

	_, err = dev.DetectPartition(ctx, "misc")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestFlashImage(t *testing.T) {
	sim := newSimulator(t)
	dev := connected(t, sim)
	ctx := context.Background()
	data := pattern(testSectorSize, 5)

	require.NoError(t, dev.FlashImage(ctx, firmware.FromBytes("boot", data, firmware.WithAB(true)), "b"))
	assert.Equal(t, data, sim.ReadSectors(0, 300, 1))

	var invalid *InvalidSlotError
	err := dev.FlashImage(ctx, firmware.FromBytes("boot", data, firmware.WithAB(true)), "")
	assert.True(t, errors.As(err, &invalid))

	require.NoError(t, dev.FlashImage(ctx, firmware.FromBytes("xbl", data), ""))
	assert.Equal(t, data, sim.ReadSectors(0, 6, 1))
}

func TestErase(t *testing.T) {
	sim := newSimulator(t)
	var progress []Progress
	dev := connected(t, sim,
		WithMaxPayloadSize(testSectorSize),
		WithProgressCallback(func(p Progress) { progress = append(progress, p) }),
	)
	ctx := context.Background()

	sim.WriteSectors(0, 2400, pattern(10*testSectorSize, 1))
	sim.WriteSectors(1, 6, pattern(4*testSectorSize, 2))
	sim.WriteSectors(0, 2410, pattern(testSectorSize, 3))
	progress = nil

	require.NoError(t, dev.Erase(ctx, "misc"))

	assert.Equal(t, make([]byte, 10*testSectorSize), sim.ReadSectors(0, 2400, 10))
	assert.Equal(t, make([]byte, 4*testSectorSize), sim.ReadSectors(1, 6, 4))
	assert.Equal(t, pattern(testSectorSize, 3), sim.ReadSectors(0, 2410, 1), "neighbour untouched")
	assert.Equal(t, 2, sim.CommandCount(firehose.TagProgram))

	var erasing []int64
	for _, p := range progress {
		if p.Phase == PhaseErasing {
			erasing = append(erasing, p.BytesWritten)
			assert.Equal(t, int64(14*testSectorSize), p.TotalBytes)
		}
	}
	assert.Equal(t, []int64{0, 10 * testSectorSize, 10 * testSectorSize, 10 * testSectorSize, 14 * testSectorSize}, erasing)
	assert.Equal(t, PhaseComplete, progress[len(progress)-1].Phase)

	err := dev.Erase(ctx, "modem")
	assert.True(t, IsPartitionNotFound(err))
}

func readTables(t *testing.T, sim *devicetest.Device, lun int) (*gpt.Table, *gpt.Table) {
	t.Helper()
	primary := sim.ReadSectors(lun, 0, 6)
	require.NoError(t, gpt.Verify(primary, testSectorSize))
	pt, err := gpt.Parse(primary, testSectorSize)
	require.NoError(t, err)

	backup := sim.ReadSectors(lun, testLUNSectors-5, 5)
	l := gpt.BackupLayout(testSectorSize, len(backup))
	require.NoError(t, l.Verify(backup))
	bt, err := gpt.ParseLayout(backup, testSectorSize, l)
	require.NoError(t, err)
	return pt, bt
}

func TestActiveSlot(t *testing.T) {
	sim := newSimulator(t)
	dev := connected(t, sim)
	ctx := context.Background()

	slot, err := dev.GetActiveSlot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", slot)

	require.NoError(t, dev.SetActiveSlot(ctx, "b"))

	slot, err = dev.GetActiveSlot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", slot)
	assert.Equal(t, 2, sim.BootLUN())

	pt, bt := readTables(t, sim, 0)
	for _, table := range []*gpt.Table{pt, bt} {
		bootA, _ := table.Lookup("boot_a")
		bootB, _ := table.Lookup("boot_b")
		systemA, _ := table.Lookup("system_a")
		systemB, _ := table.Lookup("system_b")
		assert.Equal(t, uint64(gpt.PriorityInactive)<<48, bootA.Flags)
		assert.Equal(t, uint64(gpt.PriorityActive)<<48, bootB.Flags)
		assert.False(t, systemA.Active())
		assert.True(t, systemB.Active())
	}

	require.NoError(t, dev.SetActiveSlot(ctx, "a"))
	slot, err = dev.GetActiveSlot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", slot)
	assert.Equal(t, 1, sim.BootLUN())
}

func TestActiveSlot_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid slot", func(t *testing.T) {
		dev := connected(t, newSimulator(t))
		var invalid *InvalidSlotError
		assert.True(t, errors.As(dev.SetActiveSlot(ctx, "c"), &invalid))
	})

	t.Run("no slot partitions", func(t *testing.T) {
		sim := devicetest.New(devicetest.WithLUNs(1, testLUNSectors))
		primary, backup := buildTables(t, lun1Entries())
		sim.WriteSectors(0, 0, primary)
		sim.WriteSectors(0, backupStart(backup), backup)
		dev := connected(t, sim)

		_, err := dev.GetActiveSlot(ctx)
		assert.ErrorIs(t, err, ErrNoSlots)
		assert.ErrorIs(t, dev.SetActiveSlot(ctx, "a"), ErrNoSlots)
		assert.Zero(t, sim.CommandCount(firehose.TagSetBootableStorageDrive))
	})

	t.Run("no active slot", func(t *testing.T) {
		sim := devicetest.New(devicetest.WithLUNs(1, testLUNSectors))
		primary, _ := buildTables(t, []gpt.Entry{
			{TypeGUID: gpt.AndroidBootTypeGUID, FirstLBA: 100, LastLBA: 199, Name: "boot_a", Flags: gpt.SetPartitionFlags(0, false, true)},
			{TypeGUID: gpt.AndroidBootTypeGUID, FirstLBA: 200, LastLBA: 299, Name: "boot_b", Flags: gpt.SetPartitionFlags(0, false, true)},
		})
		sim.WriteSectors(0, 0, primary)
		dev := connected(t, sim)

		_, err := dev.GetActiveSlot(ctx)
		assert.ErrorIs(t, err, ErrNoActiveSlot)
	})
}

func TestRepairGPT(t *testing.T) {
	sim := newSimulator(t)
	dev := connected(t, sim)
	ctx := context.Background()

	primary, _ := buildTables(t, lun0Entries())
	sim.WriteSectors(0, 0, make([]byte, len(primary)))
	_, err := dev.DetectPartition(ctx, "boot")
	require.True(t, IsPartitionNotFound(err), "blank LUN 0 ends the scan")

	img := firmware.FromBytes("gpt_main_0", primary, firmware.WithGPT(0, 0))
	require.NoError(t, dev.FlashImage(ctx, img, ""))

	assert.Equal(t, primary, sim.ReadSectors(0, 0, 6))
	assert.Equal(t, 1, sim.CommandCount(firehose.TagFixGPT))
	p, err := dev.DetectPartition(ctx, "boot")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), p.StartSector)
}

func TestRepairGPT_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no image", func(t *testing.T) {
		dev := connected(t, newSimulator(t))
		assert.ErrorIs(t, dev.RepairGPT(ctx, 0, nil), ErrNoGPTImage)
	})

	t.Run("image does not verify", func(t *testing.T) {
		sim := newSimulator(t)
		logger := &MockLogger{}
		dev := connected(t, sim, WithLogger(logger))

		primary, _ := buildTables(t, lun0Entries())
		primary[2*testSectorSize+48] ^= 0xFF

		err := dev.RepairGPT(ctx, 0, firmware.FromBytes("gpt", primary))
		assert.True(t, gpt.IsCRCError(err))
		assert.Contains(t, logger.errorMsgs, "GPT does not verify after repair")
	})
}

func TestEnsureGPTConsistency(t *testing.T) {
	sim := newSimulator(t)
	dev := connected(t, sim)
	ctx := context.Background()

	changed, err := dev.EnsureGPTConsistency(ctx, 0)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Zero(t, sim.CommandCount(firehose.TagProgram))

	// corrupt the flags of the first primary entry
	entry := sim.ReadSectors(0, 2, 1)
	entry[48] ^= 0xFF
	sim.WriteSectors(0, 2, entry)

	changed, err = dev.EnsureGPTConsistency(ctx, 0)
	require.NoError(t, err)
	assert.True(t, changed)
	readTables(t, sim, 0)

	// both corrupt
	entry = sim.ReadSectors(0, 2, 1)
	entry[48] ^= 0xFF
	sim.WriteSectors(0, 2, entry)
	last := sim.ReadSectors(0, testLUNSectors-5, 1)
	last[48] ^= 0xFF
	sim.WriteSectors(0, testLUNSectors-5, last)

	_, err = dev.EnsureGPTConsistency(ctx, 0)
	assert.ErrorIs(t, err, gpt.ErrUnrecoverable)
}

func TestReset(t *testing.T) {
	sim := newSimulator(t)
	dev := connected(t, sim)

	require.NoError(t, dev.Reset(context.Background()))

	assert.Equal(t, 1, sim.Resets())
	assert.Equal(t, ModeDisconnected, dev.Mode())
	assert.ErrorIs(t, dev.Reset(context.Background()), ErrNotConnected)
}

func TestCancelled(t *testing.T) {
	sim := newSimulator(t)
	dev := connected(t, sim)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := dev.DetectPartition(ctx, "boot")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "disconnected", ModeDisconnected.String())
	assert.Equal(t, "sahara", ModeSahara.String())
	assert.Equal(t, "firehose", ModeFirehose.String())
}
