package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/moffa90/go-qdl/firehose"
	"github.com/moffa90/go-qdl/firmware"
	"github.com/moffa90/go-qdl/gpt"
)

// Partition is a partition found on one LUN.
type Partition struct {
	LUN         int
	Name        string
	StartSector uint64
	Sectors     uint64
	Entry       *gpt.Entry
}

func newPartition(lun int, e *gpt.Entry) Partition {
	return Partition{
		LUN:         lun,
		Name:        e.Name,
		StartSector: e.FirstLBA,
		Sectors:     e.Sectors(),
		Entry:       e,
	}
}

func (p Partition) String() string {
	return fmt.Sprintf("lun %d %s: sectors %d-%d (%d)", p.LUN, p.Name, p.StartSector, p.StartSector+p.Sectors-1, p.Sectors)
}

// lunTable is the primary GPT region of one LUN as read from the device.
type lunTable struct {
	lun   int
	table *gpt.Table
	data  []byte
}

// readTable reads the header of lun, then the whole primary region it
// describes.
func (d *Device) readTable(ctx context.Context, lun int) (*lunTable, error) {
	ss := d.sectorSize()
	head, err := d.firehose.ReadBuffer(ctx, lun, 0, 2)
	if err != nil {
		return nil, err
	}
	h, err := gpt.ParseHeader(head, ss)
	if err != nil {
		return nil, err
	}

	data, err := d.firehose.ReadBuffer(ctx, lun, 0, h.RegionSectors(ss))
	if err != nil {
		return nil, err
	}
	table, err := gpt.Parse(data, ss)
	if err != nil {
		return nil, err
	}
	return &lunTable{lun: lun, table: table, data: data}, nil
}

// scan calls fn with the table of each LUN in order until fn asks to stop.
// The first LUN without a GPT ends the scan.
func (d *Device) scan(ctx context.Context, fn func(*lunTable) (bool, error)) error {
	for lun := 0; lun < d.Settings().MaxLUN; lun++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}

		lt, err := d.readTable(ctx, lun)
		if endOfLUNs(err) {
			d.logDebug("no GPT, ending scan", "lun", lun, "error", err)
			return nil
		}
		if err != nil {
			return fmt.Errorf("lun %d: %w", lun, err)
		}

		stop, err := fn(lt)
		if err != nil {
			return fmt.Errorf("lun %d: %w", lun, err)
		}
		if stop {
			return nil
		}
	}
	return nil
}

// endOfLUNs reports whether err means the LUN holds no partition table.
func endOfLUNs(err error) bool {
	return errors.Is(err, gpt.ErrInvalidSignature) || firehose.IsCommandError(err)
}

// DetectPartition finds the partition called name on the first LUN that has
// it.
func (d *Device) DetectPartition(ctx context.Context, name string) (*Partition, error) {
	if err := d.requireFirehose(); err != nil {
		return nil, err
	}

	var found *Partition
	err := d.scan(ctx, func(lt *lunTable) (bool, error) {
		e, ok := lt.table.Lookup(name)
		if !ok {
			return false, nil
		}
		p := newPartition(lt.lun, e)
		found = &p
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, &PartitionNotFoundError{Name: name, LUNs: d.Settings().MaxLUN}
	}
	return found, nil
}

// Partitions lists the live partitions of every LUN.
func (d *Device) Partitions(ctx context.Context) ([]Partition, error) {
	if err := d.requireFirehose(); err != nil {
		return nil, err
	}

	var out []Partition
	err := d.scan(ctx, func(lt *lunTable) (bool, error) {
		for _, e := range lt.table.Partitions() {
			out = append(out, newPartition(lt.lun, e))
		}
		return false, nil
	})
	return out, err
}

// RepairGPT writes img as the partition table of lun, then reads it back
// and verifies both checksums.
func (d *Device) RepairGPT(ctx context.Context, lun int, img *firmware.Image) error {
	if err := d.requireFirehose(); err != nil {
		return err
	}
	if img == nil {
		return ErrNoGPTImage
	}

	var start uint64
	if img.GPT != nil {
		start = img.GPT.StartSector
	}
	d.logInfo("writing GPT", "lun", lun, "start_sector", start, "image", img.String())

	label := fmt.Sprintf("gpt lun %d", lun)
	if err := d.program(ctx, label, lun, start, img); err != nil {
		return fmt.Errorf("repair gpt: %w", err)
	}
	if err := d.firehose.FixGPT(ctx, lun, true); err != nil {
		return fmt.Errorf("repair gpt: %w", err)
	}

	lt, err := d.readTable(ctx, lun)
	if err != nil {
		return fmt.Errorf("repair gpt: read back: %w", err)
	}
	if err := gpt.Verify(lt.data, d.sectorSize()); err != nil {
		d.logError("GPT does not verify after repair", "lun", lun, "error", err)
		return fmt.Errorf("repair gpt: %w", err)
	}
	return nil
}

// readBackup reads the backup region described by the primary header h.
func (d *Device) readBackup(ctx context.Context, lun int, h *gpt.Header) ([]byte, uint64, error) {
	n := h.EntrySectors(d.sectorSize())
	if h.BackupLBA <= n {
		return nil, 0, fmt.Errorf("backup header at lba %d leaves no room for %d entry sectors", h.BackupLBA, n)
	}
	start := h.BackupLBA - n
	data, err := d.firehose.ReadBuffer(ctx, lun, start, n+1)
	if err != nil {
		return nil, 0, err
	}
	return data, start, nil
}

// EnsureGPTConsistency checks the primary GPT of lun against its backup and
// rewrites the primary from the backup when they disagree or the primary
// is corrupt. It reports whether anything was written.
func (d *Device) EnsureGPTConsistency(ctx context.Context, lun int) (bool, error) {
	if err := d.requireFirehose(); err != nil {
		return false, err
	}

	lt, err := d.readTable(ctx, lun)
	if err != nil {
		return false, err
	}
	backup, _, err := d.readBackup(ctx, lun, lt.table.Header)
	if err != nil {
		return false, err
	}

	primary, changed, err := gpt.EnsureConsistency(lt.data, backup, d.sectorSize())
	if err != nil {
		return false, fmt.Errorf("lun %d: %w", lun, err)
	}
	if !changed {
		return false, nil
	}

	d.logInfo("restoring primary GPT from backup", "lun", lun)
	if err := d.writeRegion(ctx, lun, 0, primary); err != nil {
		return false, err
	}
	return true, nil
}

// writeRegion programs a GPT region buffer at start.
func (d *Device) writeRegion(ctx context.Context, lun int, start uint64, data []byte) error {
	return d.checkSync(d.firehose.Program(ctx, lun, start, firmware.FromBytes("gpt", data), nil))
}
