package sparse

import (
	"encoding/binary"
	"errors"
	"io"
)

// Decoder iterates over the chunks of a sparse image.
type Decoder struct {
	r       io.Reader
	header  *Header
	index   uint32
	blocks  uint32
	pending *io.LimitedReader
	buf     [ChunkHeaderSize]byte
}

// NewDecoder reads the file header from r. It returns ErrNotSparse when r
// does not start with a valid sparse header.
func NewDecoder(r io.Reader) (*Decoder, error) {
	b := make([]byte, FileHeaderSize)
	if _, err := io.ReadFull(r, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrNotSparse
		}
		return nil, err
	}
	h := ParseFileHeader(b)
	if h == nil {
		return nil, ErrNotSparse
	}
	return &Decoder{r: r, header: h}, nil
}

// Header returns the file header.
func (d *Decoder) Header() *Header {
	return d.header
}

// Next returns the next chunk, or io.EOF after the last one. Any unread data
// of a previous Raw chunk is skipped.
func (d *Decoder) Next() (Chunk, error) {
	if d.pending != nil {
		if _, err := io.Copy(io.Discard, d.pending); err != nil {
			return nil, err
		}
		if d.pending.N > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		d.pending = nil
	}
	if d.index >= d.header.TotalChunks {
		return nil, io.EOF
	}

	idx := d.index
	if _, err := io.ReadFull(d.r, d.buf[:]); err != nil {
		return nil, unexpected(err)
	}
	ch := parseChunkHeader(d.buf[:])
	d.index++

	if ch.typ != ChunkCRC32 && uint64(d.blocks)+uint64(ch.blocks) > uint64(d.header.TotalBlocks) {
		return nil, chunkError(idx, "%d blocks overflow the image's %d", ch.blocks, d.header.TotalBlocks)
	}

	bs := uint64(d.header.BlockSize)
	switch ch.typ {
	case ChunkRaw:
		want := uint64(ChunkHeaderSize) + uint64(ch.blocks)*bs
		if uint64(ch.totalSize) != want {
			return nil, chunkError(idx, "raw chunk declares %d bytes, expected %d", ch.totalSize, want)
		}
		d.blocks += ch.blocks
		d.pending = &io.LimitedReader{R: d.r, N: int64(ch.blocks) * int64(bs)}
		return Raw{BlockCount: ch.blocks, Data: d.pending}, nil

	case ChunkFill:
		if ch.totalSize != ChunkHeaderSize+4 {
			return nil, chunkError(idx, "fill chunk declares %d bytes", ch.totalSize)
		}
		var f Fill
		if _, err := io.ReadFull(d.r, f.Pattern[:]); err != nil {
			return nil, unexpected(err)
		}
		f.BlockCount = ch.blocks
		d.blocks += ch.blocks
		return f, nil

	case ChunkSkip:
		if ch.totalSize != ChunkHeaderSize {
			return nil, chunkError(idx, "skip chunk declares %d bytes", ch.totalSize)
		}
		d.blocks += ch.blocks
		return Skip{BlockCount: ch.blocks}, nil

	case ChunkCRC32:
		if ch.totalSize != ChunkHeaderSize+4 {
			return nil, chunkError(idx, "crc32 chunk declares %d bytes", ch.totalSize)
		}
		var v [4]byte
		if _, err := io.ReadFull(d.r, v[:]); err != nil {
			return nil, unexpected(err)
		}
		return CRC32{Value: binary.LittleEndian.Uint32(v[:])}, nil

	default:
		return nil, chunkError(idx, "unknown type %s", ch.typ)
	}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
