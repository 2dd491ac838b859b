// Package usb implements transport.Transport on top of libusb via gousb.
package usb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/moffa90/go-qdl/transport"
)

// Qualcomm emergency download mode identifiers.
const (
	QualcommVendorID gousb.ID = 0x05c6
	EDLProductID     gousb.ID = 0x9008
)

// Options selects the device and tunes transfers.
type Options struct {
	VendorID  gousb.ID
	ProductID gousb.ID

	// ReadTimeout bounds a single bulk IN transfer.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single bulk OUT transfer.
	WriteTimeout time.Duration
}

// DefaultOptions targets a Qualcomm device in EDL mode.
func DefaultOptions() Options {
	return Options{
		VendorID:     QualcommVendorID,
		ProductID:    EDLProductID,
		ReadTimeout:  100 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
}

// Device is an open EDL device with claimed bulk endpoints.
type Device struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	intf *gousb.Interface
	done func()
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint
	opts Options
}

var _ transport.Transport = (*Device)(nil)

// Open finds the first device matching opts and claims its bulk endpoints.
func Open(opts Options) (*Device, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(opts.VendorID, opts.ProductID)
	if err != nil {
		_ = ctx.Close()
		return nil, fmt.Errorf("open usb device %s:%s: %w", opts.VendorID, opts.ProductID, err)
	}
	if dev == nil {
		_ = ctx.Close()
		return nil, fmt.Errorf("no usb device %s:%s found", opts.VendorID, opts.ProductID)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		_ = dev.Close()
		_ = ctx.Close()
		return nil, fmt.Errorf("set auto detach: %w", err)
	}

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		_ = dev.Close()
		_ = ctx.Close()
		return nil, fmt.Errorf("claim interface: %w", err)
	}

	d := &Device{ctx: ctx, dev: dev, intf: intf, done: done, opts: opts}
	if err := d.claimEndpoints(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// claimEndpoints picks the first bulk IN and bulk OUT endpoint of the interface.
func (d *Device) claimEndpoints() error {
	for _, desc := range d.intf.Setting.Endpoints {
		if desc.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch desc.Direction {
		case gousb.EndpointDirectionIn:
			if d.in != nil {
				continue
			}
			ep, err := d.intf.InEndpoint(desc.Number)
			if err != nil {
				return fmt.Errorf("open in endpoint %d: %w", desc.Number, err)
			}
			d.in = ep
		case gousb.EndpointDirectionOut:
			if d.out != nil {
				continue
			}
			ep, err := d.intf.OutEndpoint(desc.Number)
			if err != nil {
				return fmt.Errorf("open out endpoint %d: %w", desc.Number, err)
			}
			d.out = ep
		}
	}
	if d.in == nil || d.out == nil {
		return errors.New("device has no bulk in/out endpoint pair")
	}
	return nil
}

// Read performs one bulk IN transfer. A transfer that times out with no data
// returns transport.ErrTimeout.
func (d *Device) Read(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.ReadTimeout)
	defer cancel()

	n, err := d.in.ReadContext(ctx, p)
	if err != nil {
		if n == 0 && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, gousb.TransferTimedOut)) {
			return 0, transport.ErrTimeout
		}
		if n > 0 {
			return n, nil
		}
		return 0, fmt.Errorf("bulk read: %w", err)
	}
	return n, nil
}

// Write performs one bulk OUT transfer. An empty p sends a zero-length packet.
func (d *Device) Write(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.WriteTimeout)
	defer cancel()

	if p == nil {
		p = []byte{}
	}
	n, err := d.out.WriteContext(ctx, p)
	if err != nil {
		return n, fmt.Errorf("bulk write: %w", err)
	}
	return n, nil
}

// MaxPacketSize reports the IN endpoint's maximum packet size.
func (d *Device) MaxPacketSize() int {
	return d.in.Desc.MaxPacketSize
}

// Close releases the interface, the device and the libusb context.
func (d *Device) Close() {
	if d.done != nil {
		d.done()
	}
	if d.dev != nil {
		_ = d.dev.Close()
	}
	if d.ctx != nil {
		_ = d.ctx.Close()
	}
}
