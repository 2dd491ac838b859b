// Package firmware describes the images written to the device.
//
// An Image is a named, re-openable byte source. Load opens a file from disk,
// transparently decompressing .xz and .bz2 content, and records whether the
// content is an Android sparse image:
//
//	img, err := firmware.Load("system.img.xz", firmware.WithAB(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%s: %d bytes, sparse=%v\n", img.Name, img.RealSize(), img.Sparse)
//
// FromBytes wraps an in-memory buffer, which is how GPT regions and split
// sparse pieces are programmed.
package firmware
