package gpt

import (
	"encoding/binary"
	"hash/crc32"
)

// headerChecksum computes the header CRC32 over size bytes of hdr with the
// CRC field taken as zero.
func headerChecksum(hdr []byte, size uint32) uint32 {
	b := make([]byte, size)
	copy(b, hdr[:size])
	binary.LittleEndian.PutUint32(b[offHeaderCRC:], 0)
	return crc32.ChecksumIEEE(b)
}

// FixCRC recomputes both CRCs of a primary region in place.
func FixCRC(data []byte, sectorSize int) error {
	return PrimaryLayout(sectorSize).FixCRC(data)
}

// FixCRC recomputes both CRCs of data in place: the entry array CRC is
// written first, then the header CRC is computed with its own field zeroed.
func (l Layout) FixCRC(data []byte) error {
	h, err := l.Header(data)
	if err != nil {
		return err
	}
	entries, err := l.entries(data, h)
	if err != nil {
		return err
	}

	hdr := data[l.HeaderOffset:]
	binary.LittleEndian.PutUint32(hdr[offEntriesCRC:], crc32.ChecksumIEEE(entries))
	binary.LittleEndian.PutUint32(hdr[offHeaderCRC:], 0)
	binary.LittleEndian.PutUint32(hdr[offHeaderCRC:], crc32.ChecksumIEEE(hdr[:h.HeaderSize]))
	return nil
}

// Verify checks both stored CRCs of a primary region.
func Verify(data []byte, sectorSize int) error {
	return PrimaryLayout(sectorSize).Verify(data)
}

// Verify checks both stored CRCs of data and returns a *CRCError for the
// first mismatch.
func (l Layout) Verify(data []byte) error {
	h, err := l.Header(data)
	if err != nil {
		return err
	}
	if sum := headerChecksum(data[l.HeaderOffset:], h.HeaderSize); sum != h.HeaderCRC32 {
		return &CRCError{Field: "header", Stored: h.HeaderCRC32, Computed: sum}
	}
	entries, err := l.entries(data, h)
	if err != nil {
		return err
	}
	if sum := crc32.ChecksumIEEE(entries); sum != h.PartEntriesCRC32 {
		return &CRCError{Field: "entries", Stored: h.PartEntriesCRC32, Computed: sum}
	}
	return nil
}
