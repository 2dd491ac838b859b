package gpt

import (
	"encoding/binary"
	"strings"
)

// Boot-control attribute bits.
const (
	priorityShift = 48

	// ActiveBit marks a slot active.
	ActiveBit uint64 = 1 << 50

	// PriorityActive and PriorityInactive are the byte 6 values written to
	// boot partitions.
	PriorityActive   = 0x6f
	PriorityInactive = 0x3a

	priorityMask uint64 = 0xff << priorityShift
)

// SetPartitionFlags returns flags marked active or inactive. Boot partitions
// get a whole new priority byte; other partitions only have the active bit
// toggled. Bytes other than byte 6 are kept.
func SetPartitionFlags(flags uint64, active, isBoot bool) uint64 {
	if isBoot {
		flags &^= priorityMask
		if active {
			return flags | PriorityActive<<priorityShift
		}
		return flags | PriorityInactive<<priorityShift
	}
	if active {
		return flags | ActiveBit
	}
	return flags &^ ActiveBit
}

// IsActive reports whether flags carry the active bit.
func IsActive(flags uint64) bool {
	return flags&ActiveBit != 0
}

// SlotSuffix splits an A/B partition name into its base name and slot
// letter. ok is false for names without a _a or _b suffix.
func SlotSuffix(name string) (base, slot string, ok bool) {
	for _, s := range []string{"a", "b"} {
		if b, found := strings.CutSuffix(name, "_"+s); found && b != "" {
			return b, s, true
		}
	}
	return name, "", false
}

// OtherSlot returns the slot that is not slot.
func OtherSlot(slot string) string {
	if slot == "a" {
		return "b"
	}
	return "a"
}

// PatchFlags writes flags into the entry at e.Offset of data and updates e.
func PatchFlags(data []byte, e *Entry, flags uint64) {
	binary.LittleEndian.PutUint64(data[e.Offset+offFlags:], flags)
	e.Flags = flags
}
