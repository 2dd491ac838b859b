package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/moffa90/go-qdl/firehose"
	"github.com/moffa90/go-qdl/firmware"
	"github.com/moffa90/go-qdl/sahara"
	"github.com/moffa90/go-qdl/sparse"
	"github.com/moffa90/go-qdl/transport"
)

// Mode is where the session stands.
type Mode int

// Session modes.
const (
	ModeDisconnected Mode = iota
	ModeSahara
	ModeFirehose
)

func (m Mode) String() string {
	switch m {
	case ModeSahara:
		return "sahara"
	case ModeFirehose:
		return "firehose"
	default:
		return "disconnected"
	}
}

// Device is one session with a device in EDL mode. It owns the transport
// for its lifetime and keeps no state across sessions; partition tables are
// read from the device on every operation.
//
// Operations are strictly sequential. A Device must not be used
// concurrently.
type Device struct {
	t        transport.Transport
	config   Config
	mode     Mode
	serial   string
	firehose *firehose.Client
}

// New creates a Device on t with the given options.
//
// Example:
//
//	t, err := usb.Open(usb.DefaultOptions())
//	dev := device.New(t,
//	    device.WithProgrammer(programmer),
//	    device.WithProgressCallback(progressFunc),
//	)
//	err = dev.Connect(ctx)
func New(t transport.Transport, opts ...Option) *Device {
	if t == nil {
		panic("transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Device{t: t, config: cfg}
}

// Mode returns the session mode.
func (d *Device) Mode() Mode {
	return d.mode
}

// Serial returns the serial number read during the handshake, if any.
func (d *Device) Serial() string {
	return d.serial
}

// Settings returns the storage settings negotiated with the programmer.
func (d *Device) Settings() firehose.Settings {
	if d.firehose == nil {
		return d.config.Storage
	}
	return d.firehose.Settings()
}

// Connect brings the device into Firehose mode: it runs the Sahara
// handshake, uploads the programmer if the boot ROM asks for one, and
// configures the storage. On failure the mode is left unchanged; Connect
// never retries.
func (d *Device) Connect(ctx context.Context) error {
	start := time.Now()
	d.reportProgress(Progress{Phase: PhaseConnecting, ElapsedTime: time.Since(start)})

	sc := sahara.NewClient(d.t,
		sahara.WithTimeout(d.config.ConnectTimeout),
		sahara.WithPollInterval(d.config.PollInterval),
		sahara.WithReadSerial(d.config.ReadSerial),
		sahara.WithLogger(d.config.Logger),
	)

	mode, err := sc.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if mode == sahara.ModeSahara {
		if len(d.config.Programmer) == 0 {
			return ErrNoProgrammer
		}
		d.logInfo("uploading programmer", "bytes", len(d.config.Programmer))
		if _, err := sc.UploadLoader(ctx, d.config.Programmer); err != nil {
			return fmt.Errorf("upload programmer: %w", err)
		}
	}

	fh := firehose.NewClient(d.t,
		firehose.WithResponseTimeout(d.config.ResponseTimeout),
		firehose.WithPollInterval(d.config.PollInterval, firehose.DefaultMaxPollInterval),
		firehose.WithLogger(d.config.Logger),
	)
	if err := fh.Configure(ctx, d.config.Storage); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	d.firehose = fh
	d.serial = sc.Session().Serial
	d.mode = ModeFirehose

	s := fh.Settings()
	d.logInfo("connected",
		"serial", d.serial,
		"memory", s.MemoryName,
		"sector_size", s.SectorSize,
		"max_payload", s.MaxPayloadSizeToTarget,
		"elapsed", time.Since(start).String(),
	)
	d.reportProgress(Progress{Phase: PhaseComplete, Percentage: 100, ElapsedTime: time.Since(start)})
	return nil
}

// FlashBlob writes img to the partition called name. The image must fit:
// an image whose expanded size spans more sectors than the partition is
// rejected before anything is written.
func (d *Device) FlashBlob(ctx context.Context, name string, img *firmware.Image) error {
	if err := d.requireFirehose(); err != nil {
		return err
	}

	p, err := d.DetectPartition(ctx, name)
	if err != nil {
		return err
	}
	if sectors := img.Sectors(d.sectorSize()); sectors > p.Sectors {
		return &ImageTooLargeError{Partition: name, ImageSectors: sectors, PartitionSectors: p.Sectors}
	}

	d.logDebug("flashing", "partition", name, "lun", p.LUN, "start_sector", p.StartSector, "image", img.String())
	if err := d.program(ctx, name, p.LUN, p.StartSector, img); err != nil {
		return fmt.Errorf("flash %s: %w", name, err)
	}
	return nil
}

// FlashImage writes img to the partition it names. A/B images go to slot;
// partition table images are written with RepairGPT.
func (d *Device) FlashImage(ctx context.Context, img *firmware.Image, slot string) error {
	if img.GPT != nil {
		return d.RepairGPT(ctx, img.GPT.LUN, img)
	}
	name := img.Name
	if img.HasAB {
		if err := validateSlot(slot); err != nil {
			return err
		}
		name += "_" + slot
	}
	return d.FlashBlob(ctx, name, img)
}

// program streams img to lun at start. Sparse images larger than the split
// size are sent as several program commands. An expected checksum is
// verified over the expanded image before anything is written.
func (d *Device) program(ctx context.Context, label string, lun int, start uint64, img *firmware.Image) error {
	began := time.Now()
	total := img.RealSize()

	if sum := img.Checksum(); sum != nil {
		if err := verify(img, sum); err != nil {
			return err
		}
	}
	if img.Sparse && d.config.SplitSize > 0 && total > d.config.SplitSize {
		return d.programSplit(ctx, label, lun, start, img, began)
	}

	onProgress := func(written, total int64) {
		d.reportProgress(Progress{
			Phase:        PhaseFlashing,
			Partition:    label,
			BytesWritten: written,
			TotalBytes:   total,
			Percentage:   percentage(written, total),
			ElapsedTime:  time.Since(began),
		})
	}
	if err := d.firehose.Program(ctx, lun, start, img, onProgress); err != nil {
		return d.checkSync(err)
	}
	d.complete(label, total, began)
	return nil
}

// programSplit programs a sparse image piece by piece, each at the sector
// its expanded content starts at.
func (d *Device) programSplit(ctx context.Context, label string, lun int, start uint64, img *firmware.Image, began time.Time) error {
	rc, err := img.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	ss := int64(d.sectorSize())
	limit := d.config.SplitSize - d.config.SplitSize%ss
	s, err := sparse.NewSplitter(rc, limit)
	if err != nil {
		return err
	}

	total := img.RealSize()
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}

		piece, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("split piece %d: %w", n, err)
		}
		if piece.Offset%ss != 0 {
			return fmt.Errorf("split piece %d at byte %d is not sector aligned", n, piece.Offset)
		}

		offset := piece.Offset
		sector := start + uint64(offset/ss)
		d.logDebug("programming piece", "partition", label, "piece", n, "start_sector", sector, "blocks", piece.Blocks)

		onProgress := func(written, _ int64) {
			d.reportProgress(Progress{
				Phase:        PhaseFlashing,
				Partition:    label,
				BytesWritten: offset + written,
				TotalBytes:   total,
				Percentage:   percentage(offset+written, total),
				ElapsedTime:  time.Since(began),
			})
		}
		if err := d.firehose.Program(ctx, lun, sector, firmware.FromBytes(label, piece.Data), onProgress); err != nil {
			return d.checkSync(fmt.Errorf("piece %d: %w", n, err))
		}
	}

	d.complete(label, total, began)
	return nil
}

// verify expands img if it is sparse and checks its digest against sum.
func verify(img *firmware.Image, sum []byte) error {
	rc, err := img.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	var r io.Reader = rc
	if img.Sparse {
		sr, err := sparse.NewReader(rc)
		if err != nil {
			return err
		}
		r = sr
	}
	_, err = io.Copy(io.Discard, sparse.NewVerifyingReader(r, sum))
	return err
}

// Erase zeroes every partition called name, on every LUN it appears on.
func (d *Device) Erase(ctx context.Context, name string) error {
	if err := d.requireFirehose(); err != nil {
		return err
	}

	var found []Partition
	err := d.scan(ctx, func(lt *lunTable) (bool, error) {
		if e, ok := lt.table.Lookup(name); ok {
			found = append(found, newPartition(lt.lun, e))
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return &PartitionNotFoundError{Name: name, LUNs: d.Settings().MaxLUN}
	}

	began := time.Now()
	ss := int64(d.sectorSize())
	var total, erased int64
	for _, p := range found {
		total += int64(p.Sectors) * ss
	}
	for _, p := range found {
		done := erased
		onProgress := func(written, _ int64) {
			d.reportProgress(Progress{
				Phase:        PhaseErasing,
				Partition:    name,
				BytesWritten: done + written,
				TotalBytes:   total,
				Percentage:   percentage(done+written, total),
				ElapsedTime:  time.Since(began),
			})
		}
		onProgress(0, 0)
		d.logDebug("erasing", "partition", name, "lun", p.LUN, "start_sector", p.StartSector, "sectors", p.Sectors)
		if err := d.firehose.Erase(ctx, p.LUN, p.StartSector, p.Sectors, onProgress); err != nil {
			return d.checkSync(fmt.Errorf("erase %s on lun %d: %w", name, p.LUN, err))
		}
		erased += int64(p.Sectors) * ss
	}

	d.complete(name, total, began)
	return nil
}

// Reset reboots the device and ends the session.
func (d *Device) Reset(ctx context.Context) error {
	if err := d.requireFirehose(); err != nil {
		return err
	}
	if err := d.firehose.Reset(ctx); err != nil {
		return err
	}
	d.mode = ModeDisconnected
	d.firehose = nil
	return nil
}

// checkSync ends the session when err left the programmer waiting for
// payload. Connect must be called again before the next operation.
func (d *Device) checkSync(err error) error {
	if err != nil && d.firehose != nil && d.firehose.OutOfSync() {
		d.logError("session out of sync, reconnect required", "error", err)
		d.mode = ModeDisconnected
		d.firehose = nil
	}
	return err
}

func (d *Device) requireFirehose() error {
	if d.mode != ModeFirehose || d.firehose == nil {
		return ErrNotConnected
	}
	return nil
}

func (d *Device) sectorSize() int {
	return d.Settings().SectorSize
}

func (d *Device) complete(label string, total int64, began time.Time) {
	d.reportProgress(Progress{
		Phase:        PhaseComplete,
		Partition:    label,
		BytesWritten: total,
		TotalBytes:   total,
		Percentage:   100,
		ElapsedTime:  time.Since(began),
	})
	d.logInfo("write complete",
		"partition", label,
		"bytes", total,
		"elapsed", time.Since(began).String(),
	)
}

// reportProgress calls the progress callback if configured.
func (d *Device) reportProgress(p Progress) {
	if d.config.ProgressCallback != nil {
		d.config.ProgressCallback(p)
	}
}

func (d *Device) logDebug(msg string, keysAndValues ...interface{}) {
	if d.config.Logger != nil {
		d.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (d *Device) logInfo(msg string, keysAndValues ...interface{}) {
	if d.config.Logger != nil {
		d.config.Logger.Info(msg, keysAndValues...)
	}
}

func (d *Device) logError(msg string, keysAndValues ...interface{}) {
	if d.config.Logger != nil {
		d.config.Logger.Error(msg, keysAndValues...)
	}
}
