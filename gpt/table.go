package gpt

import (
	"fmt"
	"sort"
)

// Table is the decoded GPT of one LUN. It is a snapshot of device state and
// is not meant to be cached across operations.
type Table struct {
	Header     *Header
	SectorSize int
	Layout     Layout

	// Entries holds every entry up to the first one with a zero unique GUID,
	// unused ones included
	Entries []*Entry

	byName map[string]*Entry
}

// Parse decodes a primary region read from LBA 0.
func Parse(data []byte, sectorSize int) (*Table, error) {
	return ParseLayout(data, sectorSize, PrimaryLayout(sectorSize))
}

// ParseLayout decodes a region with the given layout.
func ParseLayout(data []byte, sectorSize int, l Layout) (*Table, error) {
	h, err := l.Header(data)
	if err != nil {
		return nil, err
	}
	if _, err := l.entries(data, h); err != nil {
		return nil, fmt.Errorf("%w: %d entries of %d bytes at offset %d, have %d bytes",
			err, h.NumPartEntries, h.PartEntrySize, l.EntriesOffset, len(data))
	}

	t := &Table{
		Header:     h,
		SectorSize: sectorSize,
		Layout:     l,
		byName:     make(map[string]*Entry),
	}
	for i := 0; i < int(h.NumPartEntries); i++ {
		off := l.EntriesOffset + i*int(h.PartEntrySize)
		e, err := parseEntry(data[off : off+EntrySize])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if e.UniqueGUID.IsZero() {
			break
		}
		e.Index = i
		e.Offset = off
		t.Entries = append(t.Entries, e)

		if e.Type() == TypeUnused {
			continue
		}
		if e.LastLBA < e.FirstLBA {
			return nil, fmt.Errorf("%w: entry %d (%s) ends at lba %d before its first lba %d",
				ErrInvalidEntry, i, e.Name, e.LastLBA, e.FirstLBA)
		}
		if _, dup := t.byName[e.Name]; !dup {
			t.byName[e.Name] = e
		}
	}
	return t, nil
}

// Lookup returns the live partition called name.
func (t *Table) Lookup(name string) (*Entry, bool) {
	e, ok := t.byName[name]
	return e, ok
}

// Partitions returns the live partitions ordered by first LBA.
func (t *Table) Partitions() []*Entry {
	out := make([]*Entry, 0, len(t.byName))
	for _, e := range t.Entries {
		if e.Type() != TypeUnused {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FirstLBA < out[j].FirstLBA })
	return out
}

// Len returns the number of live partitions.
func (t *Table) Len() int {
	return len(t.byName)
}
