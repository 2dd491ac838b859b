package gpt

import (
	"bytes"
	"fmt"
)

// EnsureConsistency checks a primary region against its backup region and
// returns the primary to write back. The result is primary itself when it
// verifies and matches the backup's entry array. Otherwise the backup's
// entry array replaces the primary's and both CRCs are recomputed, which
// requires an intact backup.
//
// A primary that verifies is kept as is when the backup is corrupt.
func EnsureConsistency(primary, backup []byte, sectorSize int) ([]byte, bool, error) {
	pl := PrimaryLayout(sectorSize)
	bl := BackupLayout(sectorSize, len(backup))

	ph, err := pl.Header(primary)
	if err != nil {
		return nil, false, fmt.Errorf("primary: %w", err)
	}
	primaryErr := pl.Verify(primary)
	backupErr := bl.Verify(backup)

	if primaryErr == nil && backupErr != nil {
		return primary, false, nil
	}
	if backupErr != nil {
		return nil, false, fmt.Errorf("%w: primary: %v, backup: %v", ErrUnrecoverable, primaryErr, backupErr)
	}

	bh, err := bl.Header(backup)
	if err != nil {
		return nil, false, err
	}
	if bh.EntriesSize() != ph.EntriesSize() {
		return nil, false, fmt.Errorf("%w: entry arrays differ in size (%d and %d bytes)", ErrUnrecoverable, ph.EntriesSize(), bh.EntriesSize())
	}
	pe, err := pl.entries(primary, ph)
	if err != nil {
		return nil, false, err
	}
	be, err := bl.entries(backup, bh)
	if err != nil {
		return nil, false, err
	}

	if primaryErr == nil && bytes.Equal(pe, be) {
		return primary, false, nil
	}

	fixed := append([]byte(nil), primary...)
	copy(fixed[pl.EntriesOffset:], be)
	if err := pl.FixCRC(fixed); err != nil {
		return nil, false, err
	}
	return fixed, true, nil
}
