// Package gpt reads and patches the GUID partition tables of the device LUNs.
//
// # Layout
//
// A primary GPT region as read from the device starts at LBA 0:
//
//	sector 0          protective MBR
//	sector 1          header ("EFI PART", revision 0x10000)
//	sector 2 onwards  partition entry array
//
// The entry array is always taken from byte 2*sectorSize of the region,
// whatever the header's partition entry LBA says. The backup region is the
// mirror image: the entry array first, the header in its last sector.
//
// # Checksums
//
// The header stores two CRC32 values: one over the entry array at offset
// 0x58 and one over the header itself at offset 0x10. FixCRC updates the
// entry array CRC first and then computes the header CRC with its own field
// zeroed; the device checks them in that order.
//
// # A/B slots
//
// Byte 6 of an entry's attribute flags (bits 48-55) holds the boot-control
// priority. Bit 50 marks the entry active. SetPartitionFlags writes the
// values the bootloader expects for boot partitions and toggles the active
// bit for all others.
package gpt
