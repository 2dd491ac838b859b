package sparse

import (
	"bytes"
	"crypto/sha256"
	"hash"
	"io"
)

// Reader exposes the decoded contents of a sparse image.
type Reader struct {
	dec *Decoder
	cur io.Reader
}

// NewReader reads the sparse header from r and returns a Reader over the
// expanded image.
func NewReader(r io.Reader) (*Reader, error) {
	dec, err := NewDecoder(r)
	if err != nil {
		return nil, err
	}
	return &Reader{dec: dec}, nil
}

// Header returns the file header.
func (r *Reader) Header() *Header {
	return r.dec.Header()
}

func (r *Reader) Read(p []byte) (int, error) {
	for {
		if r.cur != nil {
			n, err := r.cur.Read(p)
			if err == io.EOF {
				r.cur = nil
				if n > 0 {
					return n, nil
				}
				continue
			}
			return n, err
		}

		c, err := r.dec.Next()
		if err != nil {
			return 0, err
		}
		bs := int64(r.dec.header.BlockSize)
		switch c := c.(type) {
		case Raw:
			r.cur = c.Data
		case Fill:
			r.cur = &patternReader{pattern: c.Pattern, n: int64(c.BlockCount) * bs}
		case Skip:
			r.cur = &patternReader{n: int64(c.BlockCount) * bs}
		case CRC32:
		}
	}
}

// VerifyingReader hashes everything read through it and, once the
// underlying reader is exhausted, compares the SHA-256 digest with an
// expected value.
type VerifyingReader struct {
	r        io.Reader
	h        hash.Hash
	expected []byte
}

// NewVerifyingReader wraps r. A nil expected digest disables the comparison.
func NewVerifyingReader(r io.Reader, expected []byte) *VerifyingReader {
	return &VerifyingReader{r: r, h: sha256.New(), expected: expected}
}

func (v *VerifyingReader) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	v.h.Write(p[:n])
	if err == io.EOF && v.expected != nil {
		if sum := v.h.Sum(nil); !bytes.Equal(sum, v.expected) {
			return n, &ChecksumError{Expected: v.expected, Actual: sum}
		}
	}
	return n, err
}

// Sum returns the digest of the bytes read so far.
func (v *VerifyingReader) Sum() []byte {
	return v.h.Sum(nil)
}
