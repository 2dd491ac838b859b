package sparse

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// Magic identifies a sparse image.
	Magic = 0xed26ff3a

	// FileHeaderSize is the only file header size accepted.
	FileHeaderSize = 28

	// ChunkHeaderSize is the only chunk header size accepted.
	ChunkHeaderSize = 12

	MajorVersion = 1
	MinorVersion = 0
)

// Header is the sparse file header.
type Header struct {
	MajorVersion    uint16
	MinorVersion    uint16
	FileHeaderSize  uint16
	ChunkHeaderSize uint16
	BlockSize       uint32
	TotalBlocks     uint32
	TotalChunks     uint32
	ImageChecksum   uint32
}

// ParseFileHeader decodes a sparse file header from the start of b. It
// returns nil with no error when b is not a sparse image, which callers treat
// as a raw image.
func ParseFileHeader(b []byte) *Header {
	if len(b) < FileHeaderSize {
		return nil
	}
	le := binary.LittleEndian
	if le.Uint32(b[0:4]) != Magic {
		return nil
	}
	h := &Header{
		MajorVersion:    le.Uint16(b[4:6]),
		MinorVersion:    le.Uint16(b[6:8]),
		FileHeaderSize:  le.Uint16(b[8:10]),
		ChunkHeaderSize: le.Uint16(b[10:12]),
		BlockSize:       le.Uint32(b[12:16]),
		TotalBlocks:     le.Uint32(b[16:20]),
		TotalChunks:     le.Uint32(b[20:24]),
		ImageChecksum:   le.Uint32(b[24:28]),
	}
	if h.FileHeaderSize != FileHeaderSize || h.ChunkHeaderSize != ChunkHeaderSize {
		return nil
	}
	if h.BlockSize == 0 || h.BlockSize%4 != 0 {
		return nil
	}
	return h
}

// RealSize returns the number of bytes the image expands to.
func (h *Header) RealSize() int64 {
	return int64(h.TotalBlocks) * int64(h.BlockSize)
}

// MarshalBinary encodes the header.
func (h *Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, FileHeaderSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:4], Magic)
	le.PutUint16(b[4:6], h.MajorVersion)
	le.PutUint16(b[6:8], h.MinorVersion)
	le.PutUint16(b[8:10], FileHeaderSize)
	le.PutUint16(b[10:12], ChunkHeaderSize)
	le.PutUint32(b[12:16], h.BlockSize)
	le.PutUint32(b[16:20], h.TotalBlocks)
	le.PutUint32(b[20:24], h.TotalChunks)
	le.PutUint32(b[24:28], h.ImageChecksum)
	return b, nil
}

func (h *Header) String() string {
	return fmt.Sprintf("sparse v%d.%d: %d blocks of %d bytes in %d chunks",
		h.MajorVersion, h.MinorVersion, h.TotalBlocks, h.BlockSize, h.TotalChunks)
}

// Probe peeks at the start of r. It returns the sparse header, or nil for a
// raw image, together with a reader that still yields every byte of r.
func Probe(r io.Reader) (*Header, io.Reader, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	b, err := br.Peek(FileHeaderSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, nil, err
	}
	return ParseFileHeader(b), br, nil
}
