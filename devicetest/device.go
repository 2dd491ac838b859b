package devicetest

import (
	"bytes"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/moffa90/go-qdl/transport"
)

// Sahara command codes and sizes used by the simulated boot ROM.
const (
	helloReq     = 0x01
	helloRsp     = 0x02
	endTransfer  = 0x04
	doneReq      = 0x05
	doneRsp      = 0x06
	resetReq     = 0x07
	resetRsp     = 0x08
	cmdReady     = 0x0B
	switchMode   = 0x0C
	executeReq   = 0x0D
	executeRsp   = 0x0E
	executeData  = 0x0F
	readData64   = 0x12
	modeImageTx  = 0
	modeCommand  = 3
	serialNumCmd = 0x01

	// ProgrammerImageID is the image id requested for the programmer.
	ProgrammerImageID = 0x0D

	requestSize = 0x1000
)

type state int

const (
	stateHello state = iota
	stateCommand
	stateImage
	stateDone
	stateFirehose
)

// rawWrite is a program command waiting for its payload.
type rawWrite struct {
	lun      int
	start    uint64
	expected int
	data     []byte
}

// Device is a simulated EDL device.
type Device struct {
	sectorSize  int
	packetSize  int
	maxPayload  int
	luns        [][]byte
	serial      uint32
	imageID     uint64
	state       state
	out         [][]byte
	programmer  []byte
	expectedLen int
	request     [2]uint64
	transferErr uint32
	raw         *rawWrite

	failures map[string]string
	stalls   map[string]bool

	commands   []string
	bootLUN    int
	resets     int
	zlps       int
	payload    int64
	attrs      map[string]map[string]string
}

// Option configures a Device.
type Option func(*Device)

// WithLUNs gives the device n LUNs of sectors sectors each.
func WithLUNs(n int, sectors uint64) Option {
	return func(d *Device) {
		d.luns = make([][]byte, n)
		for i := range d.luns {
			d.luns[i] = make([]byte, sectors*uint64(d.sectorSize))
		}
	}
}

// WithSectorSize sets the sector size. It must precede WithLUNs.
func WithSectorSize(size int) Option {
	return func(d *Device) {
		d.sectorSize = size
	}
}

// WithSahara starts the device in the boot ROM, expecting a programmer of
// size bytes.
func WithSahara(size int) Option {
	return func(d *Device) {
		d.state = stateHello
		d.expectedLen = size
	}
}

// WithSerial sets the serial number reported in COMMAND mode.
func WithSerial(serial uint32) Option {
	return func(d *Device) {
		d.serial = serial
	}
}

// WithImageID sets the image id the boot ROM requests.
func WithImageID(id uint64) Option {
	return func(d *Device) {
		d.imageID = id
	}
}

// WithMaxPayload sets the largest payload the programmer accepts. A larger
// configure request is refused with this value as the proposal.
func WithMaxPayload(size int) Option {
	return func(d *Device) {
		d.maxPayload = size
	}
}

// WithPacketSize sets the reported max packet size.
func WithPacketSize(size int) Option {
	return func(d *Device) {
		d.packetSize = size
	}
}

// New creates a Device. Without WithSahara the programmer is already
// running and the device stays silent until a command arrives.
func New(opts ...Option) *Device {
	d := &Device{
		sectorSize: 4096,
		packetSize: transport.DefaultMaxPacketSize,
		maxPayload: 1048576,
		serial:     0x1234abcd,
		imageID:    ProgrammerImageID,
		state:      stateFirehose,
		failures:   make(map[string]string),
		stalls:     make(map[string]bool),
		attrs:      make(map[string]map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.state == stateHello {
		d.sendHello()
	}
	return d
}

// FailCommand makes the device answer every tag command with NAK.
func (d *Device) FailCommand(tag string) {
	d.failures[tag] = "NAK"
}

// StallCommand makes the device never answer tag commands.
func (d *Device) StallCommand(tag string) {
	d.stalls[tag] = true
}

// FailTransfer makes the boot ROM end the programmer transfer with status.
func (d *Device) FailTransfer(status uint32) {
	d.transferErr = status
}

// MaxPacketSize implements transport.Transport.
func (d *Device) MaxPacketSize() int {
	return d.packetSize
}

// Read hands out the next queued packet, or as much of it as fits in p.
func (d *Device) Read(p []byte) (int, error) {
	if len(d.out) == 0 {
		return 0, transport.ErrTimeout
	}
	n := copy(p, d.out[0])
	if n < len(d.out[0]) {
		d.out[0] = d.out[0][n:]
	} else {
		d.out = d.out[1:]
	}
	return n, nil
}

// Write consumes one host packet. A nil or empty p is a zero-length packet.
func (d *Device) Write(p []byte) (int, error) {
	if len(p) == 0 {
		d.zlps++
		return 0, nil
	}

	switch d.state {
	case stateFirehose:
		if d.raw != nil {
			d.receiveRaw(p)
			return len(p), nil
		}
		return len(p), d.handleXML(p)
	case stateImage:
		if !isSaharaPacket(p, d.request[1]) {
			d.programmer = append(d.programmer, p...)
			d.nextRequest()
			return len(p), nil
		}
	}
	return len(p), d.handleSahara(p)
}

// Commands returns the Firehose command tags received so far.
func (d *Device) Commands() []string {
	return append([]string(nil), d.commands...)
}

// CommandCount returns how many tag commands were received.
func (d *Device) CommandCount(tag string) int {
	n := 0
	for _, c := range d.commands {
		if c == tag {
			n++
		}
	}
	return n
}

// Programmer returns the programmer bytes received over Sahara, padding
// included.
func (d *Device) Programmer() []byte {
	return d.programmer
}

// InFirehose reports whether the programmer is running.
func (d *Device) InFirehose() bool {
	return d.state == stateFirehose
}

// BootLUN returns the LUN selected by setbootablestoragedrive.
func (d *Device) BootLUN() int {
	return d.bootLUN
}

// Resets returns the number of power reset commands received.
func (d *Device) Resets() int {
	return d.resets
}

// ZLPs returns the number of zero-length packets received.
func (d *Device) ZLPs() int {
	return d.zlps
}

// PayloadBytes returns the number of raw payload bytes received by program
// commands, padding included.
func (d *Device) PayloadBytes() int64 {
	return d.payload
}

// Attrs returns the attributes of the last tag command.
func (d *Device) Attrs(tag string) map[string]string {
	return d.attrs[tag]
}

// SectorSize returns the device sector size.
func (d *Device) SectorSize() int {
	return d.sectorSize
}

// LUN returns the storage of lun.
func (d *Device) LUN(lun int) []byte {
	return d.luns[lun]
}

// ReadSectors returns a copy of n sectors of lun starting at start.
func (d *Device) ReadSectors(lun int, start, n uint64) []byte {
	off := start * uint64(d.sectorSize)
	return append([]byte(nil), d.luns[lun][off:off+n*uint64(d.sectorSize)]...)
}

// WriteSectors stores data in lun starting at sector start.
func (d *Device) WriteSectors(lun int, start uint64, data []byte) {
	copy(d.luns[lun][start*uint64(d.sectorSize):], data)
}

func (d *Device) queue(pkt []byte) {
	d.out = append(d.out, pkt)
}

func words(w ...uint32) []byte {
	pkt := make([]byte, 4*len(w))
	for i, v := range w {
		binary.LittleEndian.PutUint32(pkt[4*i:], v)
	}
	return pkt
}

func (d *Device) sendHello() {
	d.queue(words(helloReq, 0x30, 2, 1, uint32(d.packetSize), modeImageTx, 0, 0, 0, 0, 0, 0))
}

// isSaharaPacket tells a Sahara packet apart from programmer data while a
// transfer is in progress. Data answers always have the requested length.
func isSaharaPacket(p []byte, requested uint64) bool {
	if uint64(len(p)) == requested || len(p) < 8 {
		return false
	}
	cmd := binary.LittleEndian.Uint32(p[0:4])
	return cmd >= helloReq && cmd <= readData64 && int(binary.LittleEndian.Uint32(p[4:8])) == len(p)
}

func (d *Device) handleSahara(p []byte) error {
	if len(p) < 8 {
		return fmt.Errorf("devicetest: short sahara packet of %d bytes", len(p))
	}
	cmd := binary.LittleEndian.Uint32(p[0:4])

	switch cmd {
	case helloRsp:
		if len(p) < 0x30 {
			return fmt.Errorf("devicetest: short hello response")
		}
		switch binary.LittleEndian.Uint32(p[20:24]) {
		case modeCommand:
			d.state = stateCommand
			d.queue(words(cmdReady, 8))
		case modeImageTx:
			d.state = stateImage
			d.nextRequest()
		default:
			d.queue(words(endTransfer, 0x10, 0, 0x13))
		}

	case executeReq:
		d.queue(words(executeRsp, 0x10, binary.LittleEndian.Uint32(p[8:12]), 4))

	case executeData:
		d.queue(words(d.serial))

	case switchMode:
		d.state = stateHello
		d.sendHello()

	case doneReq:
		d.state = stateFirehose
		d.queue(words(doneRsp, 0x0C, 1))
		d.queue(xmlDocument(`<log value="programmer started" />`))

	case resetReq:
		d.queue(words(resetRsp, 8))

	default:
		d.queue(words(endTransfer, 0x10, uint32(d.imageID), 0x01))
	}
	return nil
}

// nextRequest asks for the next programmer chunk, probing one chunk past the
// expected size, or ends the transfer.
func (d *Device) nextRequest() {
	offset := uint64(len(d.programmer))
	if offset >= uint64(d.expectedLen) {
		d.state = stateDone
		d.queue(words(endTransfer, 0x10, uint32(d.imageID), d.transferErr))
		return
	}
	d.request = [2]uint64{offset, requestSize}
	pkt := make([]byte, 0x20)
	binary.LittleEndian.PutUint32(pkt[0:4], readData64)
	binary.LittleEndian.PutUint32(pkt[4:8], 0x20)
	binary.LittleEndian.PutUint64(pkt[8:16], d.imageID)
	binary.LittleEndian.PutUint64(pkt[16:24], offset)
	binary.LittleEndian.PutUint64(pkt[24:32], requestSize)
	d.queue(pkt)
}

func xmlDocument(body string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8" ?>` + "\n<data>\n" + body + "\n</data>")
}

func response(value string, extra ...string) []byte {
	attrs := ""
	for i := 0; i+1 < len(extra); i += 2 {
		attrs += fmt.Sprintf(` %s="%s"`, extra[i], extra[i+1])
	}
	return xmlDocument(fmt.Sprintf(`<response value="%s"%s />`, value, attrs))
}

// parseCommand returns the tag and attributes of the element inside <data>.
func parseCommand(p []byte) (string, map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(p))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", nil, fmt.Errorf("devicetest: no command in %q", p)
		}
		if err != nil {
			return "", nil, fmt.Errorf("devicetest: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local == "data" {
			continue
		}
		attrs := make(map[string]string, len(se.Attr))
		for _, a := range se.Attr {
			attrs[a.Name.Local] = a.Value
		}
		return se.Name.Local, attrs, nil
	}
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func atou(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

func (d *Device) handleXML(p []byte) error {
	tag, attrs, err := parseCommand(p)
	if err != nil {
		return err
	}
	d.commands = append(d.commands, tag)
	d.attrs[tag] = attrs

	if d.stalls[tag] {
		return nil
	}
	if v, ok := d.failures[tag]; ok {
		d.queue(xmlDocument(fmt.Sprintf(`<log value="simulated %s failure" />`, tag)))
		d.queue(response(v, "rawmode", "false"))
		return nil
	}

	switch tag {
	case "configure":
		requested := atoi(attrs["MaxPayloadSizeToTargetInBytes"])
		if requested > d.maxPayload {
			d.queue(response("NAK", "MaxPayloadSizeToTargetInBytes", strconv.Itoa(d.maxPayload)))
			return nil
		}
		d.queue(xmlDocument(`<log value="INFO: Calling handler for configure" />`))
		d.queue(response("ACK",
			"MemoryName", attrs["MemoryName"],
			"MaxPayloadSizeFromTargetInBytes", "4096",
			"MaxPayloadSizeToTargetInBytes", strconv.Itoa(requested),
			"MaxPayloadSizeToTargetInBytesSupported", strconv.Itoa(d.maxPayload),
			"TargetName", "8x96",
		))

	case "read":
		lun, start, n, err := d.sectorRange(attrs)
		if err != nil {
			d.queue(xmlDocument(fmt.Sprintf(`<log value="%s" />`, err)))
			d.queue(response("NAK", "rawmode", "false"))
			return nil
		}
		d.queue(response("ACK", "rawmode", "true"))
		d.queue(d.ReadSectors(lun, start, n))
		d.queue(response("ACK", "rawmode", "false"))

	case "program":
		lun, start, n, err := d.sectorRange(attrs)
		if err != nil {
			d.queue(xmlDocument(fmt.Sprintf(`<log value="%s" />`, err)))
			d.queue(response("NAK", "rawmode", "false"))
			return nil
		}
		d.raw = &rawWrite{lun: lun, start: start, expected: int(n) * d.sectorSize}
		d.queue(response("ACK", "rawmode", "true"))

	case "setbootablestoragedrive":
		d.bootLUN = atoi(attrs["value"])
		d.queue(response("ACK"))

	case "power":
		d.resets++
		d.queue(response("ACK"))

	case "nop", "fixgpt":
		d.queue(response("ACK"))

	default:
		d.queue(response("NAK"))
	}
	return nil
}

func (d *Device) sectorRange(attrs map[string]string) (int, uint64, uint64, error) {
	if atoi(attrs["SECTOR_SIZE_IN_BYTES"]) != d.sectorSize {
		return 0, 0, 0, fmt.Errorf("sector size %s not supported", attrs["SECTOR_SIZE_IN_BYTES"])
	}
	lun := atoi(attrs["physical_partition_number"])
	start := atou(attrs["start_sector"])
	n := atou(attrs["num_partition_sectors"])
	if lun < 0 || lun >= len(d.luns) {
		return 0, 0, 0, fmt.Errorf("lun %d out of range", lun)
	}
	if (start+n)*uint64(d.sectorSize) > uint64(len(d.luns[lun])) {
		return 0, 0, 0, fmt.Errorf("sectors %d+%d out of range", start, n)
	}
	return lun, start, n, nil
}

func (d *Device) receiveRaw(p []byte) {
	d.raw.data = append(d.raw.data, p...)
	d.payload += int64(len(p))
	if len(d.raw.data) < d.raw.expected {
		return
	}

	r := d.raw
	d.raw = nil
	if len(r.data) > r.expected || len(r.data)%d.sectorSize != 0 {
		d.queue(response("NAK", "rawmode", "false"))
		return
	}
	d.WriteSectors(r.lun, r.start, r.data)
	d.queue(xmlDocument(fmt.Sprintf(`<log value="Finished sector address %d" />`, r.start+uint64(len(r.data)/d.sectorSize))))
	d.queue(response("ACK", "rawmode", "false"))
}

var _ transport.Transport = (*Device)(nil)

func (d *Device) String() string {
	return fmt.Sprintf("devicetest.Device{luns: %d, sector: %d, firehose: %v}", len(d.luns), d.sectorSize, d.InFirehose())
}
