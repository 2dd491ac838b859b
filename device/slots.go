package device

import (
	"context"
	"fmt"

	"github.com/moffa90/go-qdl/gpt"
)

// bootLUNs maps a slot to the LUN the device boots from.
var bootLUNs = map[string]int{"a": 1, "b": 2}

func validateSlot(slot string) error {
	if _, ok := bootLUNs[slot]; !ok {
		return &InvalidSlotError{Slot: slot}
	}
	return nil
}

// GetActiveSlot returns the slot, "a" or "b", of the first A/B partition
// marked active. It returns ErrNoSlots on a device without A/B partitions
// and ErrNoActiveSlot when none of them is active.
func (d *Device) GetActiveSlot(ctx context.Context) (string, error) {
	if err := d.requireFirehose(); err != nil {
		return "", err
	}

	var (
		slot  string
		found bool
	)
	err := d.scan(ctx, func(lt *lunTable) (bool, error) {
		for _, e := range lt.table.Partitions() {
			_, s, ok := gpt.SlotSuffix(e.Name)
			if !ok {
				continue
			}
			found = true
			if e.Active() {
				slot = s
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNoSlots
	}
	if slot == "" {
		return "", ErrNoActiveSlot
	}
	return slot, nil
}

// SetActiveSlot marks every A/B partition of slot active and those of the
// other slot inactive, in both the primary and backup GPT of every LUN,
// then makes the device boot from the slot's LUN.
func (d *Device) SetActiveSlot(ctx context.Context, slot string) error {
	if err := d.requireFirehose(); err != nil {
		return err
	}
	if err := validateSlot(slot); err != nil {
		return err
	}

	patched := 0
	err := d.scan(ctx, func(lt *lunTable) (bool, error) {
		n, err := d.setSlot(ctx, lt, slot)
		patched += n
		return false, err
	})
	if err != nil {
		return err
	}
	if patched == 0 {
		return ErrNoSlots
	}

	d.logInfo("active slot set", "slot", slot, "partitions", patched)
	return d.firehose.SetBootLUN(ctx, bootLUNs[slot])
}

// setSlot patches the slot partitions of one LUN and writes both tables
// back. It returns the number of partitions patched in the primary table.
func (d *Device) setSlot(ctx context.Context, lt *lunTable, slot string) (int, error) {
	ss := d.sectorSize()
	n := patchSlots(lt.table, lt.data, slot)
	if n == 0 {
		return 0, nil
	}
	if err := gpt.FixCRC(lt.data, ss); err != nil {
		return 0, err
	}

	backup, start, err := d.readBackup(ctx, lt.lun, lt.table.Header)
	if err != nil {
		return 0, fmt.Errorf("backup gpt: %w", err)
	}
	l := gpt.BackupLayout(ss, len(backup))
	bt, err := gpt.ParseLayout(backup, ss, l)
	if err != nil {
		return 0, fmt.Errorf("backup gpt: %w", err)
	}
	patchSlots(bt, backup, slot)
	if err := l.FixCRC(backup); err != nil {
		return 0, err
	}

	if err := d.writeRegion(ctx, lt.lun, 0, lt.data); err != nil {
		return 0, fmt.Errorf("write primary gpt: %w", err)
	}
	if err := d.writeRegion(ctx, lt.lun, start, backup); err != nil {
		return 0, fmt.Errorf("write backup gpt: %w", err)
	}
	return n, nil
}

// patchSlots rewrites the flags of every A/B partition of t in data.
func patchSlots(t *gpt.Table, data []byte, slot string) int {
	n := 0
	for _, e := range t.Partitions() {
		base, s, ok := gpt.SlotSuffix(e.Name)
		if !ok {
			continue
		}
		gpt.PatchFlags(data, e, gpt.SetPartitionFlags(e.Flags, s == slot, base == "boot"))
		n++
	}
	return n
}
