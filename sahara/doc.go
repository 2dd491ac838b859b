// Package sahara implements the Qualcomm Sahara handshake used by the boot ROM
// in emergency download (EDL) mode.
//
// # Protocol Overview
//
// Every packet is a packed little-endian struct of 32-bit words whose first two
// words are the command code and the total packet length:
//
//	[CMD(4)][LEN(4)][FIELDS...]
//
// The device opens the conversation with HELLO_REQ. The host answers with
// HELLO_RSP naming the mode it wants:
//
//	IMAGE_TX_PENDING  the device requests the programmer image piece by piece
//	COMMAND           the device executes small queries (serial number, HW id)
//
// During an image transfer the device sends READ_DATA (or 64BIT_READ_DATA)
// requests naming an offset and a length; the host answers with raw bytes.
// END_TRANSFER reports the outcome and DONE_REQ/DONE_RSP hand control to the
// uploaded programmer, which speaks Firehose.
//
// # Usage
//
//	c := sahara.NewClient(t, sahara.WithTimeout(5*time.Second))
//	mode, err := c.Connect(ctx)
//	if mode == sahara.ModeSahara {
//	    mode, err = c.UploadLoader(ctx, programmer)
//	}
package sahara
