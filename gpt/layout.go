package gpt

// Layout locates the header and the entry array inside a region buffer.
type Layout struct {
	HeaderOffset  int
	EntriesOffset int
}

// PrimaryLayout is the layout of a primary region read from LBA 0.
func PrimaryLayout(sectorSize int) Layout {
	return Layout{HeaderOffset: sectorSize, EntriesOffset: 2 * sectorSize}
}

// BackupLayout is the layout of a backup region of size bytes: the entry
// array first and the header in the last sector.
func BackupLayout(sectorSize, size int) Layout {
	return Layout{HeaderOffset: size - sectorSize, EntriesOffset: 0}
}

// Header decodes the header of data.
func (l Layout) Header(data []byte) (*Header, error) {
	return decodeHeader(data, l.HeaderOffset)
}

// entries returns the entry array of data as described by h.
func (l Layout) entries(data []byte, h *Header) ([]byte, error) {
	end := l.EntriesOffset + h.EntriesSize()
	if l.EntriesOffset < 0 || end > len(data) {
		return nil, ErrTruncated
	}
	return data[l.EntriesOffset:end], nil
}
