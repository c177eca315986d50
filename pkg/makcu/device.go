// Package makcu speaks the MAKCU mouse controller's serial protocol and
// supervises the connection to it. The device accepts km.* text commands
// and, once button reporting is enabled, streams one state byte per button
// change (bit 0 = LMB .. bit 4 = M5).
package makcu

import (
	"fmt"
	"io"
	"sync"

	"github.com/tarm/serial"

	"github.com/trulydev/truly/internal/log"
	"github.com/trulydev/truly/pkg/button"
)

// Port is the transport under the device. Satisfied by *serial.Port; tests
// substitute an in-memory pipe.
type Port interface {
	io.ReadWriteCloser
}

// OpenSerial opens the MAKCU's USB-CDC serial port.
func OpenSerial(device string, baud int) (Port, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name: device,
		Baud: baud,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", device, err)
	}
	return port, nil
}

// ButtonCallback receives decoded button transitions from the read loop.
type ButtonCallback func(b button.Button, pressed bool)

// Device is a live protocol session on an open port. It is created by the
// Supervisor and discarded whole on any failure; a Device is never reused
// across reconnects.
type Device struct {
	port Port

	writeMu sync.Mutex

	cbMu     sync.RWMutex
	onButton ButtonCallback

	lastMask  uint8
	closeOnce sync.Once
	done      chan struct{}

	// onReadError is invoked once when the read loop dies.
	onReadError func(error)
}

// NewDevice wraps an open port. The read loop is not started until Start.
func NewDevice(port Port) *Device {
	return &Device{
		port: port,
		done: make(chan struct{}),
	}
}

// OnButtonEvent installs the callback invoked for each button transition.
// Must be installed before Start so no event is dropped.
func (d *Device) OnButtonEvent(cb ButtonCallback) {
	d.cbMu.Lock()
	d.onButton = cb
	d.cbMu.Unlock()
}

// Start disables command echo, enables button reporting and launches the
// read loop. onReadError fires once if the loop exits on a port error.
func (d *Device) Start(onReadError func(error)) error {
	d.onReadError = onReadError
	// Echo must be off before reporting is on, otherwise echoed command
	// text is indistinguishable from state bytes.
	if err := d.command("km.echo(0)"); err != nil {
		return err
	}
	if err := d.SetEventDelivery(true); err != nil {
		return err
	}
	go d.readLoop()
	return nil
}

// SetEventDelivery turns the device's button state stream on or off.
func (d *Device) SetEventDelivery(enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	return d.command(fmt.Sprintf("km.buttons(%d)", v))
}

// Move issues one relative move. dx is positive rightward, dy positive
// downward, matching the device's convention.
func (d *Device) Move(dx, dy int) error {
	return d.command(fmt.Sprintf("km.move(%d,%d)", dx, dy))
}

// Click presses and releases a logical button.
func (d *Device) Click(b button.Button) error {
	name, ok := commandNames[b]
	if !ok {
		return fmt.Errorf("button %s has no click command", b)
	}
	if err := d.command(fmt.Sprintf("km.%s(1)", name)); err != nil {
		return err
	}
	return d.command(fmt.Sprintf("km.%s(0)", name))
}

// Close tears the session down. Safe to call more than once; the read loop
// exits on the port close and does not report it as a failure.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		err = d.port.Close()
	})
	return err
}

var commandNames = map[button.Button]string{
	button.Left:   "left",
	button.Right:  "right",
	button.Middle: "middle",
	button.Mouse4: "ms1",
	button.Mouse5: "ms2",
}

func (d *Device) command(cmd string) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if _, err := d.port.Write([]byte(cmd + "\r\n")); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	return nil
}

// readLoop decodes the button state stream. With echo off the device only
// emits state bytes, each a bitmask of the five buttons.
func (d *Device) readLoop() {
	buf := make([]byte, 64)
	for {
		n, err := d.port.Read(buf)
		if err != nil {
			select {
			case <-d.done:
				// deliberate Close, not a failure
			default:
				log.Debug("makcu read loop ended", "err", err)
				if d.onReadError != nil {
					d.onReadError(err)
				}
			}
			return
		}
		for _, raw := range buf[:n] {
			d.handleStateByte(raw & 0x1f)
		}
	}
}

func (d *Device) handleStateByte(mask uint8) {
	if mask == d.lastMask {
		return
	}
	changed := mask ^ d.lastMask
	d.lastMask = mask

	d.cbMu.RLock()
	cb := d.onButton
	d.cbMu.RUnlock()
	if cb == nil {
		return
	}
	for _, b := range button.All {
		if changed&b.Bit() != 0 {
			cb(b, mask&b.Bit() != 0)
		}
	}
}
