package gpt

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// EntrySize is the size of the defined fields of a partition entry.
const EntrySize = 128

// NameSize is the size of the UTF-16LE name field.
const NameSize = 72

// Entry field offsets.
const (
	offTypeGUID   = 0
	offUniqueGUID = 16
	offFirstLBA   = 32
	offLastLBA    = 40
	offFlags      = 48
	offName       = 56
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Entry is a partition entry.
type Entry struct {
	TypeGUID   GUID
	UniqueGUID GUID
	FirstLBA   uint64
	LastLBA    uint64
	Flags      uint64
	Name       string

	// Index is the position of the entry in the array
	Index int

	// Offset is the byte offset of the entry within the region it was
	// parsed from
	Offset int
}

// Type returns the partition type name.
func (e *Entry) Type() string {
	return TypeName(e.TypeGUID)
}

// Sectors returns the number of sectors the partition spans.
func (e *Entry) Sectors() uint64 {
	return e.LastLBA - e.FirstLBA + 1
}

// Active reports whether the entry's active bit is set.
func (e *Entry) Active() bool {
	return IsActive(e.Flags)
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s: %s lba %d-%d flags 0x%016X guid %s", e.Name, e.Type(), e.FirstLBA, e.LastLBA, e.Flags, e.UniqueGUID)
}

// MarshalBinary encodes the entry in EntrySize bytes. Names longer than
// the field are truncated.
func (e *Entry) MarshalBinary() ([]byte, error) {
	b := make([]byte, EntrySize)
	le := binary.LittleEndian

	copy(b[offTypeGUID:], e.TypeGUID[:])
	copy(b[offUniqueGUID:], e.UniqueGUID[:])
	le.PutUint64(b[offFirstLBA:], e.FirstLBA)
	le.PutUint64(b[offLastLBA:], e.LastLBA)
	le.PutUint64(b[offFlags:], e.Flags)

	name, err := utf16le.NewEncoder().Bytes([]byte(e.Name))
	if err != nil {
		return nil, fmt.Errorf("gpt: encode name %q: %w", e.Name, err)
	}
	if len(name) > NameSize {
		name = name[:NameSize]
	}
	copy(b[offName:], name)
	return b, nil
}

// parseEntry decodes the entry at the start of b.
func parseEntry(b []byte) (*Entry, error) {
	le := binary.LittleEndian
	e := &Entry{
		FirstLBA: le.Uint64(b[offFirstLBA:]),
		LastLBA:  le.Uint64(b[offLastLBA:]),
		Flags:    le.Uint64(b[offFlags:]),
	}
	copy(e.TypeGUID[:], b[offTypeGUID:offTypeGUID+16])
	copy(e.UniqueGUID[:], b[offUniqueGUID:offUniqueGUID+16])

	name, err := decodeName(b[offName : offName+NameSize])
	if err != nil {
		return nil, err
	}
	e.Name = name
	return e, nil
}

// decodeName decodes a UTF-16LE name up to its first NUL code unit.
func decodeName(b []byte) (string, error) {
	end := len(b)
	for i := 0; i+1 < len(b); i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			end = i
			break
		}
	}
	s, err := utf16le.NewDecoder().Bytes(b[:end])
	if err != nil {
		return "", fmt.Errorf("gpt: decode name: %w", err)
	}
	return strings.TrimRight(string(s), "\x00"), nil
}
