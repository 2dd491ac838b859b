package sparse

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ChunkType is the type code of a chunk header.
type ChunkType uint16

const (
	ChunkRaw   ChunkType = 0xCAC1
	ChunkFill  ChunkType = 0xCAC2
	ChunkSkip  ChunkType = 0xCAC3
	ChunkCRC32 ChunkType = 0xCAC4
)

func (t ChunkType) String() string {
	switch t {
	case ChunkRaw:
		return "raw"
	case ChunkFill:
		return "fill"
	case ChunkSkip:
		return "skip"
	case ChunkCRC32:
		return "crc32"
	default:
		return fmt.Sprintf("ChunkType(0x%04X)", uint16(t))
	}
}

// Chunk is one of Raw, Fill, Skip or CRC32.
type Chunk interface {
	// Type returns the chunk type code.
	Type() ChunkType

	// Blocks returns the number of output blocks the chunk produces.
	Blocks() uint32
}

// Raw carries literal block data. Data yields exactly Blocks()*blockSize
// bytes and is only valid until the next call to Decoder.Next.
type Raw struct {
	BlockCount uint32
	Data       io.Reader
}

// Fill repeats a 4-byte pattern over its blocks.
type Fill struct {
	BlockCount uint32
	Pattern    [4]byte
}

// Skip produces zero-filled blocks without any payload.
type Skip struct {
	BlockCount uint32
}

// CRC32 carries a checksum of the preceding output and produces no bytes.
type CRC32 struct {
	Value uint32
}

func (Raw) Type() ChunkType   { return ChunkRaw }
func (Fill) Type() ChunkType  { return ChunkFill }
func (Skip) Type() ChunkType  { return ChunkSkip }
func (CRC32) Type() ChunkType { return ChunkCRC32 }

func (c Raw) Blocks() uint32  { return c.BlockCount }
func (c Fill) Blocks() uint32 { return c.BlockCount }
func (c Skip) Blocks() uint32 { return c.BlockCount }
func (CRC32) Blocks() uint32  { return 0 }

type chunkHeader struct {
	typ       ChunkType
	blocks    uint32
	totalSize uint32
}

func parseChunkHeader(b []byte) chunkHeader {
	le := binary.LittleEndian
	return chunkHeader{
		typ:       ChunkType(le.Uint16(b[0:2])),
		blocks:    le.Uint32(b[4:8]),
		totalSize: le.Uint32(b[8:12]),
	}
}

func putChunkHeader(b []byte, typ ChunkType, blocks, totalSize uint32) {
	le := binary.LittleEndian
	le.PutUint16(b[0:2], uint16(typ))
	le.PutUint16(b[2:4], 0)
	le.PutUint32(b[4:8], blocks)
	le.PutUint32(b[8:12], totalSize)
}

// patternReader yields n bytes of a repeated 4-byte pattern.
type patternReader struct {
	pattern [4]byte
	off     int
	n       int64
}

func (p *patternReader) Read(b []byte) (int, error) {
	if p.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(b)) > p.n {
		b = b[:p.n]
	}
	for i := range b {
		b[i] = p.pattern[p.off]
		p.off = (p.off + 1) % 4
	}
	p.n -= int64(len(b))
	return len(b), nil
}
