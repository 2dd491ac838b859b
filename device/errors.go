package device

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected indicates an operation that needs a running programmer.
	ErrNotConnected = errors.New("device is not in firehose mode")

	// ErrNoProgrammer indicates a device in the boot ROM with no programmer
	// configured to upload.
	ErrNoProgrammer = errors.New("device is in sahara mode and no programmer was given")

	// ErrNoGPTImage indicates a GPT repair without a partition table image.
	ErrNoGPTImage = errors.New("no GPT image to repair with")

	// ErrNoActiveSlot indicates that no A/B partition is marked active.
	ErrNoActiveSlot = errors.New("no active slot")

	// ErrNoSlots indicates a device without A/B partitions.
	ErrNoSlots = errors.New("no A/B partitions found")
)

// ImageTooLargeError indicates an image that does not fit its partition.
type ImageTooLargeError struct {
	Partition        string
	ImageSectors     uint64
	PartitionSectors uint64
}

func (e *ImageTooLargeError) Error() string {
	return fmt.Sprintf("image of %d sectors does not fit partition %s of %d sectors",
		e.ImageSectors, e.Partition, e.PartitionSectors)
}

// PartitionNotFoundError indicates a partition name missing from every LUN.
type PartitionNotFoundError struct {
	Name string
	LUNs int
}

func (e *PartitionNotFoundError) Error() string {
	return fmt.Sprintf("partition %s not found in %d LUNs", e.Name, e.LUNs)
}

// InvalidSlotError indicates a slot other than "a" or "b".
type InvalidSlotError struct {
	Slot string
}

func (e *InvalidSlotError) Error() string {
	return fmt.Sprintf("invalid slot %q: expected a or b", e.Slot)
}

// IsImageTooLarge returns true if the error is an ImageTooLargeError.
func IsImageTooLarge(err error) bool {
	var e *ImageTooLargeError
	return errors.As(err, &e)
}

// IsPartitionNotFound returns true if the error is a PartitionNotFoundError.
func IsPartitionNotFound(err error) bool {
	var e *PartitionNotFoundError
	return errors.As(err, &e)
}
