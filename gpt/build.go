package gpt

import (
	"encoding/binary"
	"fmt"
)

// DefaultNumEntries is the entry array length written by Build.
const DefaultNumEntries = 128

// BuildConfig describes the disk a table is built for.
type BuildConfig struct {
	SectorSize   int
	TotalSectors uint64

	// NumEntries defaults to DefaultNumEntries
	NumEntries int

	// DiskGUID is random when zero
	DiskGUID GUID
}

// Build lays out a primary region (MBR, header, entries) and the matching
// backup region (entries, header) for entries. Entries with a zero unique
// GUID get a random one.
func Build(cfg BuildConfig, entries []Entry) (primary, backup []byte, err error) {
	ss := cfg.SectorSize
	if ss < HeaderSize || ss%EntrySize != 0 {
		return nil, nil, fmt.Errorf("gpt: unsupported sector size %d", ss)
	}
	n := cfg.NumEntries
	if n == 0 {
		n = DefaultNumEntries
	}
	if len(entries) > n {
		return nil, nil, fmt.Errorf("gpt: %d entries do not fit in a %d entry array", len(entries), n)
	}
	entrySectors := uint64((n*EntrySize + ss - 1) / ss)
	if cfg.TotalSectors < 2*entrySectors+3 {
		return nil, nil, fmt.Errorf("gpt: disk of %d sectors is too small", cfg.TotalSectors)
	}

	array := make([]byte, entrySectors*uint64(ss))
	for i := range entries {
		e := entries[i]
		if e.UniqueGUID.IsZero() {
			e.UniqueGUID = NewRandomGUID()
		}
		b, err := e.MarshalBinary()
		if err != nil {
			return nil, nil, err
		}
		copy(array[i*EntrySize:], b)
	}

	disk := cfg.DiskGUID
	if disk.IsZero() {
		disk = NewRandomGUID()
	}
	last := cfg.TotalSectors - 1
	h := Header{
		Revision:          Revision,
		HeaderSize:        HeaderSize,
		CurrentLBA:        1,
		BackupLBA:         last,
		FirstUsableLBA:    2 + entrySectors,
		LastUsableLBA:     last - 1 - entrySectors,
		DiskGUID:          disk,
		PartEntryStartLBA: 2,
		NumPartEntries:    uint32(n),
		PartEntrySize:     EntrySize,
	}
	copy(h.Signature[:], Signature)

	primary = make([]byte, (2+entrySectors)*uint64(ss))
	writeProtectiveMBR(primary, cfg.TotalSectors)
	hb, _ := h.MarshalBinary()
	copy(primary[ss:], hb)
	copy(primary[2*ss:], array)
	if err := FixCRC(primary, ss); err != nil {
		return nil, nil, err
	}

	h.CurrentLBA, h.BackupLBA = last, 1
	h.PartEntryStartLBA = last - entrySectors
	backup = make([]byte, (entrySectors+1)*uint64(ss))
	copy(backup, array)
	hb, _ = h.MarshalBinary()
	copy(backup[len(backup)-ss:], hb)
	if err := BackupLayout(ss, len(backup)).FixCRC(backup); err != nil {
		return nil, nil, err
	}
	return primary, backup, nil
}

// writeProtectiveMBR writes an MBR with one 0xEE partition covering the disk.
func writeProtectiveMBR(b []byte, totalSectors uint64) {
	const part = 446
	size := totalSectors - 1
	if size > 0xFFFFFFFF {
		size = 0xFFFFFFFF
	}
	b[part+4] = 0xEE
	binary.LittleEndian.PutUint32(b[part+8:], 1)
	binary.LittleEndian.PutUint32(b[part+12:], uint32(size))
	b[510], b[511] = 0x55, 0xAA
}
