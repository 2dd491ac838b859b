package sparse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Piece is a standalone sparse image covering part of a larger one.
type Piece struct {
	// Offset is the byte offset of the piece in the expanded image
	Offset int64

	// Blocks is the number of blocks the piece expands to
	Blocks uint32

	// Data is the encoded sparse image
	Data []byte
}

// RealSize returns the number of bytes the piece expands to.
func (p *Piece) RealSize(blockSize uint32) int64 {
	return int64(p.Blocks) * int64(blockSize)
}

// Splitter cuts a sparse image into pieces that each expand to at most a
// fixed number of bytes. Chunks larger than that are subdivided; CRC32 chunks
// are dropped since they no longer describe the output of any single piece.
type Splitter struct {
	dec        *Decoder
	blockLimit uint32
	offset     uint32
	cur        Chunk
	left       uint32
}

// NewSplitter reads the sparse header from r. limit is rounded down to a
// whole number of blocks and must hold at least one.
func NewSplitter(r io.Reader, limit int64) (*Splitter, error) {
	dec, err := NewDecoder(r)
	if err != nil {
		return nil, err
	}
	blocks := limit / int64(dec.header.BlockSize)
	if blocks < 1 {
		return nil, fmt.Errorf("split limit %d is smaller than one %d-byte block", limit, dec.header.BlockSize)
	}
	if blocks > int64(^uint32(0)) {
		blocks = int64(^uint32(0))
	}
	return &Splitter{dec: dec, blockLimit: uint32(blocks)}, nil
}

// Header returns the header of the image being split.
func (s *Splitter) Header() *Header {
	return s.dec.Header()
}

// Next returns the next piece, or io.EOF once the image is exhausted.
func (s *Splitter) Next() (*Piece, error) {
	bs := s.dec.header.BlockSize
	var (
		body   bytes.Buffer
		chunks uint32
		blocks uint32
	)

	for blocks < s.blockLimit {
		if s.cur == nil || s.left == 0 {
			c, err := s.dec.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, err
			}
			if c.Type() == ChunkCRC32 || c.Blocks() == 0 {
				continue
			}
			s.cur, s.left = c, c.Blocks()
		}

		take := s.left
		if room := s.blockLimit - blocks; take > room {
			take = room
		}
		if err := writeChunk(&body, s.cur, take, bs); err != nil {
			return nil, err
		}
		s.left -= take
		blocks += take
		chunks++
	}

	if blocks == 0 {
		return nil, io.EOF
	}

	h := Header{
		MajorVersion: MajorVersion,
		MinorVersion: MinorVersion,
		BlockSize:    bs,
		TotalBlocks:  blocks,
		TotalChunks:  chunks,
	}
	hb, _ := h.MarshalBinary()
	p := &Piece{
		Offset: int64(s.offset) * int64(bs),
		Blocks: blocks,
		Data:   append(hb, body.Bytes()...),
	}
	s.offset += blocks
	return p, nil
}

// writeChunk encodes blocks blocks of c, consuming raw data as it goes.
func writeChunk(w *bytes.Buffer, c Chunk, blocks, blockSize uint32) error {
	var hdr [ChunkHeaderSize]byte
	switch c := c.(type) {
	case Raw:
		n := int64(blocks) * int64(blockSize)
		putChunkHeader(hdr[:], ChunkRaw, blocks, uint32(int64(ChunkHeaderSize)+n))
		w.Write(hdr[:])
		if _, err := io.CopyN(w, c.Data, n); err != nil {
			return unexpected(err)
		}
	case Fill:
		putChunkHeader(hdr[:], ChunkFill, blocks, ChunkHeaderSize+4)
		w.Write(hdr[:])
		w.Write(c.Pattern[:])
	case Skip:
		putChunkHeader(hdr[:], ChunkSkip, blocks, ChunkHeaderSize)
		w.Write(hdr[:])
	default:
		return fmt.Errorf("%w: cannot split %s chunk", ErrInvalidChunk, c.Type())
	}
	return nil
}

// Split reads a whole sparse image and returns its pieces.
func Split(r io.Reader, limit int64) ([]*Piece, error) {
	s, err := NewSplitter(r, limit)
	if err != nil {
		return nil, err
	}
	var pieces []*Piece
	for {
		p, err := s.Next()
		if errors.Is(err, io.EOF) {
			return pieces, nil
		}
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, p)
	}
}
