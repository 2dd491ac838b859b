// Package device orchestrates the Sahara and Firehose clients into
// device-level operations on a Qualcomm device in emergency download (EDL)
// mode.
//
// # Overview
//
// A Device is one session with one attached device:
//   - Connect runs the Sahara handshake, uploads the programmer when the
//     boot ROM asks for one, and configures storage
//   - DetectPartition and Partitions read the GPT of each LUN
//   - FlashBlob, FlashImage and Erase write partitions
//   - GetActiveSlot and SetActiveSlot manage A/B slots
//   - RepairGPT and EnsureGPTConsistency restore partition tables
//
// Partition tables are read from the device on every operation and never
// cached, since the device may change underneath the session.
//
// # Basic Usage
//
//	t, err := usb.Open(usb.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Close()
//
//	dev := device.New(t, device.WithProgrammer(programmer))
//	if err := dev.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	img, err := firmware.Load("boot.img.xz")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = dev.FlashBlob(ctx, "boot_a", img)
//
// # Progress Tracking
//
//	dev := device.New(t,
//	    device.WithProgressCallback(func(p device.Progress) {
//	        fmt.Printf("[%s] %s %.1f%%\n", p.Phase, p.Partition, p.Percentage)
//	    }),
//	)
//
// # Error Handling
//
// Policy failures have their own types:
//
//	err := dev.FlashBlob(ctx, "boot_a", img)
//	switch {
//	case device.IsImageTooLarge(err):
//	    // nothing was written
//	case device.IsPartitionNotFound(err):
//	    // no LUN has the partition
//	case firehose.IsCommandError(err):
//	    // the programmer refused a command
//	}
//
// Nothing is retried; a failed operation must be retried by the caller.
package device
