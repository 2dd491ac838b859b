// Package firehose implements the host side of the Qualcomm Firehose protocol
// spoken by the programmer that Sahara uploads.
//
// # Protocol Overview
//
// Every command is one XML document written in a single transfer:
//
//	<?xml version="1.0" encoding="UTF-8" ?><data><program SECTOR_SIZE_IN_BYTES="4096" ... /></data>
//
// The device answers with one or more documents. Informational lines arrive as
// <log value="..."/> and the command outcome as <response value="ACK"/>. A
// value of "ACK" or "true" is success; anything else is a refusal.
//
// Read and program commands switch the pipe to raw mode after their first
// ACK: the payload follows with no framing, and a second response closes the
// exchange.
//
// # Usage
//
//	c := firehose.NewClient(t, firehose.WithResponseTimeout(10*time.Second))
//	if err := c.Configure(ctx, firehose.DefaultSettings()); err != nil {
//	    return err
//	}
//	data, err := c.ReadBuffer(ctx, 0, 0, 2)
//
// # Error Handling
//
// A refusal is a *CommandError naming the command ("program failed: NAK"),
// a silent device is a *TimeoutError, and transport failures are returned
// wrapped. The client never retries a failed command.
package firehose
