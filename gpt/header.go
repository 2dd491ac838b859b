package gpt

import (
	"encoding/binary"
	"fmt"
)

// Signature is the magic at the start of every header.
const Signature = "EFI PART"

// Revision is the only header revision accepted (1.0).
const Revision = 0x00010000

// Header field offsets.
const (
	offSignature     = 0x00
	offRevision      = 0x08
	offHeaderSize    = 0x0C
	offHeaderCRC     = 0x10
	offCurrentLBA    = 0x18
	offBackupLBA     = 0x20
	offFirstUsable   = 0x28
	offLastUsable    = 0x30
	offDiskGUID      = 0x38
	offEntryStartLBA = 0x48
	offNumEntries    = 0x50
	offEntrySize     = 0x54
	offEntriesCRC    = 0x58

	// HeaderSize is the size of the defined header fields.
	HeaderSize = 0x5C
)

// Header is a GPT header.
type Header struct {
	Signature         [8]byte
	Revision          uint32
	HeaderSize        uint32
	HeaderCRC32       uint32
	CurrentLBA        uint64
	BackupLBA         uint64
	FirstUsableLBA    uint64
	LastUsableLBA     uint64
	DiskGUID          GUID
	PartEntryStartLBA uint64
	NumPartEntries    uint32
	PartEntrySize     uint32
	PartEntriesCRC32  uint32
}

// ParseHeader decodes the header at sector 1 of a primary region.
func ParseHeader(data []byte, sectorSize int) (*Header, error) {
	return decodeHeader(data, sectorSize)
}

// decodeHeader decodes and validates the header at byte offset off.
func decodeHeader(data []byte, off int) (*Header, error) {
	if off < 0 || len(data) < off+HeaderSize {
		return nil, fmt.Errorf("%w: header needs %d bytes at offset %d, have %d", ErrTruncated, HeaderSize, off, len(data))
	}
	b := data[off:]
	le := binary.LittleEndian

	h := &Header{
		Revision:          le.Uint32(b[offRevision:]),
		HeaderSize:        le.Uint32(b[offHeaderSize:]),
		HeaderCRC32:       le.Uint32(b[offHeaderCRC:]),
		CurrentLBA:        le.Uint64(b[offCurrentLBA:]),
		BackupLBA:         le.Uint64(b[offBackupLBA:]),
		FirstUsableLBA:    le.Uint64(b[offFirstUsable:]),
		LastUsableLBA:     le.Uint64(b[offLastUsable:]),
		PartEntryStartLBA: le.Uint64(b[offEntryStartLBA:]),
		NumPartEntries:    le.Uint32(b[offNumEntries:]),
		PartEntrySize:     le.Uint32(b[offEntrySize:]),
		PartEntriesCRC32:  le.Uint32(b[offEntriesCRC:]),
	}
	copy(h.Signature[:], b[offSignature:offSignature+8])
	copy(h.DiskGUID[:], b[offDiskGUID:offDiskGUID+16])

	if string(h.Signature[:]) != Signature {
		return nil, ErrInvalidSignature
	}
	if h.Revision != Revision {
		return nil, fmt.Errorf("%w: 0x%08X", ErrInvalidRevision, h.Revision)
	}
	if h.HeaderSize < HeaderSize || len(data) < off+int(h.HeaderSize) {
		return nil, fmt.Errorf("%w: header size %d", ErrTruncated, h.HeaderSize)
	}
	if h.PartEntrySize < EntrySize {
		return nil, fmt.Errorf("gpt: partition entry size %d is smaller than %d", h.PartEntrySize, EntrySize)
	}
	return h, nil
}

// MarshalBinary encodes the defined header fields.
func (h *Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderSize)
	le := binary.LittleEndian

	copy(b[offSignature:], h.Signature[:])
	le.PutUint32(b[offRevision:], h.Revision)
	le.PutUint32(b[offHeaderSize:], h.HeaderSize)
	le.PutUint32(b[offHeaderCRC:], h.HeaderCRC32)
	le.PutUint64(b[offCurrentLBA:], h.CurrentLBA)
	le.PutUint64(b[offBackupLBA:], h.BackupLBA)
	le.PutUint64(b[offFirstUsable:], h.FirstUsableLBA)
	le.PutUint64(b[offLastUsable:], h.LastUsableLBA)
	copy(b[offDiskGUID:], h.DiskGUID[:])
	le.PutUint64(b[offEntryStartLBA:], h.PartEntryStartLBA)
	le.PutUint32(b[offNumEntries:], h.NumPartEntries)
	le.PutUint32(b[offEntrySize:], h.PartEntrySize)
	le.PutUint32(b[offEntriesCRC:], h.PartEntriesCRC32)
	return b, nil
}

// EntriesSize returns the size of the partition entry array in bytes.
func (h *Header) EntriesSize() int {
	return int(h.NumPartEntries) * int(h.PartEntrySize)
}

// EntrySectors returns the number of sectors the entry array occupies.
func (h *Header) EntrySectors(sectorSize int) uint64 {
	return uint64((h.EntriesSize() + sectorSize - 1) / sectorSize)
}

// RegionSectors returns the number of sectors of a primary region: the MBR,
// the header and the entry array.
func (h *Header) RegionSectors(sectorSize int) uint64 {
	return uint64((2*sectorSize + h.EntriesSize() + sectorSize - 1) / sectorSize)
}

func (h *Header) String() string {
	return fmt.Sprintf("GPT rev 0x%08X, lba %d, backup %d, usable %d-%d, %d entries of %d bytes, disk %s",
		h.Revision, h.CurrentLBA, h.BackupLBA, h.FirstUsableLBA, h.LastUsableLBA,
		h.NumPartEntries, h.PartEntrySize, h.DiskGUID)
}
