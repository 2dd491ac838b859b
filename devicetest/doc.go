// Package devicetest provides an in-memory Qualcomm EDL device for tests.
//
// A Device implements transport.Transport. It starts either in the boot ROM,
// where it sends a Sahara HELLO and pulls a programmer, or with a programmer
// already running, where it answers Firehose commands against in-memory
// LUNs. Every packet the device sends is queued and handed out by Read;
// an empty queue reads as transport.ErrTimeout.
//
//	dev := devicetest.New(devicetest.WithLUNs(1, 1024))
//	gptImage := ...
//	dev.WriteSectors(0, 0, gptImage)
//
// Faults are injected per command:
//
//	dev.FailCommand("program")      // answer NAK
//	dev.StallCommand("read")        // never answer
//	dev.FailTransfer(0x0D)          // END_TRANSFER with an error status
package devicetest
