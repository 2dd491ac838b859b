package firmware

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"

	"github.com/moffa90/go-qdl/sparse"
)

// Compression identifies how an image file is compressed at rest.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionXZ
	CompressionBZip2
)

func (c Compression) String() string {
	switch c {
	case CompressionXZ:
		return "xz"
	case CompressionBZip2:
		return "bzip2"
	default:
		return "none"
	}
}

var (
	xzMagic    = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
	bzip2Magic = []byte("BZh")
)

// Placement locates a GPT image on the device.
type Placement struct {
	LUN         int
	StartSector uint64
}

// Image is a firmware image to be written to one partition.
type Image struct {
	// Name is the logical partition name, without slot suffix
	Name string

	// Sparse reports whether the content is an Android sparse image
	Sparse bool

	// HasAB reports whether the partition exists once per A/B slot
	HasAB bool

	// GPT is set for partition table images
	GPT *Placement

	// Compression is the at-rest compression of the source file
	Compression Compression

	size     int64
	realSize int64
	checksum []byte
	open     func() (io.ReadCloser, error)
}

// Option configures an Image.
type Option func(*Image)

// WithName overrides the name derived from the file name.
func WithName(name string) Option {
	return func(img *Image) {
		img.Name = name
	}
}

// WithAB marks the image as belonging to an A/B partition.
func WithAB(ab bool) Option {
	return func(img *Image) {
		img.HasAB = ab
	}
}

// WithGPT marks the image as a partition table for lun, written at
// startSector.
func WithGPT(lun int, startSector uint64) Option {
	return func(img *Image) {
		img.GPT = &Placement{LUN: lun, StartSector: startSector}
	}
}

// WithChecksum sets the expected SHA-256 digest of the expanded content.
func WithChecksum(sum []byte) Option {
	return func(img *Image) {
		img.checksum = sum
	}
}

// Load describes the file at path. Compressed files are decompressed once to
// measure them, and again on every Open.
func Load(path string, opts ...Option) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	magic := make([]byte, len(xzMagic))
	n, err := io.ReadFull(f, magic)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	img := &Image{Name: baseName(path), Compression: sniff(magic[:n])}
	img.open = func() (io.ReadCloser, error) {
		return openFile(path, img.Compression)
	}

	rc, err := img.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	if err := img.measure(rc); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	for _, opt := range opts {
		opt(img)
	}
	return img, nil
}

// FromBytes describes an in-memory image.
func FromBytes(name string, data []byte, opts ...Option) *Image {
	img := &Image{
		Name: name,
		size: int64(len(data)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
	if h := sparse.ParseFileHeader(data); h != nil {
		img.Sparse = true
		img.realSize = h.RealSize()
	} else {
		img.realSize = img.size
	}
	for _, opt := range opts {
		opt(img)
	}
	return img
}

// Open returns the decompressed content from the start.
func (img *Image) Open() (io.ReadCloser, error) {
	return img.open()
}

// Size returns the size of the decompressed content.
func (img *Image) Size() int64 {
	return img.size
}

// RealSize returns the number of bytes written to the device, which for a
// sparse image is its expanded size.
func (img *Image) RealSize() int64 {
	return img.realSize
}

// Sectors returns the number of sectors the image occupies on the device.
func (img *Image) Sectors(sectorSize int) uint64 {
	ss := int64(sectorSize)
	return uint64((img.realSize + ss - 1) / ss)
}

// Checksum returns the expected SHA-256 digest of the expanded content, or
// nil if none was given.
func (img *Image) Checksum() []byte {
	return img.checksum
}

func (img *Image) String() string {
	return fmt.Sprintf("%s (%d bytes, sparse=%v, compression=%s)", img.Name, img.realSize, img.Sparse, img.Compression)
}

// measure records the size and sparse header of the content read from r.
func (img *Image) measure(r io.Reader) error {
	head := make([]byte, sparse.FileHeaderSize)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return err
	}
	rest, err := io.Copy(io.Discard, r)
	if err != nil {
		return err
	}
	img.size = int64(n) + rest

	if h := sparse.ParseFileHeader(head[:n]); h != nil {
		img.Sparse = true
		img.realSize = h.RealSize()
	} else {
		img.realSize = img.size
	}
	return nil
}

func sniff(magic []byte) Compression {
	switch {
	case bytes.HasPrefix(magic, xzMagic):
		return CompressionXZ
	case bytes.HasPrefix(magic, bzip2Magic):
		return CompressionBZip2
	default:
		return CompressionNone
	}
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error {
	return r.close()
}

func openFile(path string, c Compression) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	switch c {
	case CompressionXZ:
		xr, err := xz.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to open xz stream: %w", err)
		}
		return readCloser{Reader: xr, close: f.Close}, nil

	case CompressionBZip2:
		br, err := bzip2.NewReader(f, nil)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to open bzip2 stream: %w", err)
		}
		return readCloser{Reader: br, close: func() error {
			_ = br.Close()
			return f.Close()
		}}, nil

	default:
		return f, nil
	}
}

// baseName strips the directory, compression and .img extensions.
func baseName(path string) string {
	name := filepath.Base(path)
	for _, ext := range []string{".xz", ".bz2", ".img"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}
