// Package transport defines the bulk pipe the protocol engines talk through.
//
// A Transport is owned by the host application. The engines only borrow it and
// never assume a particular USB stack: they need bulk IN/OUT semantics, a known
// maximum packet size, and the ability to issue a zero-length write.
//
//	Read:  returns the next packet (or part of it) sent by the device
//	Write: sends one transfer; Write(nil) sends a zero-length packet (flush)
package transport

import (
	"errors"
	"io"
)

// DefaultMaxPacketSize is the bulk packet size assumed when a transport
// does not report one.
const DefaultMaxPacketSize = 512

// ErrTimeout is returned (possibly wrapped) by Read when the device did not
// send anything before the transport's read deadline.
var ErrTimeout = errors.New("transport: read timed out")

// Transport is a bulk IN/OUT pipe to a single device.
//
// Read may return 0 bytes with a nil error or ErrTimeout when nothing is
// pending; callers poll. Write with an empty slice must send a zero-length
// packet.
type Transport interface {
	io.ReadWriter

	// MaxPacketSize is the maximum bulk packet size of the IN endpoint.
	MaxPacketSize() int
}

// IsTimeout reports whether err is a transport read timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// PacketSize returns t.MaxPacketSize(), falling back to DefaultMaxPacketSize
// when the transport reports a non-positive value.
func PacketSize(t Transport) int {
	if n := t.MaxPacketSize(); n > 0 {
		return n
	}
	return DefaultMaxPacketSize
}
