package makcu

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/trulydev/truly/pkg/button"
)

// fakePort is an in-memory stand-in for the serial port. Reads are fed
// through a channel so tests control exactly when state bytes arrive.
type fakePort struct {
	mu     sync.Mutex
	writes bytes.Buffer

	events    chan []byte
	closeOnce sync.Once

	failWrites bool
}

func newFakePort() *fakePort {
	return &fakePort{events: make(chan []byte, 16)}
}

func (p *fakePort) Read(b []byte) (int, error) {
	data, ok := <-p.events
	if !ok {
		return 0, io.EOF
	}
	return copy(b, data), nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWrites {
		return 0, io.ErrClosedPipe
	}
	return p.writes.Write(b)
}

func (p *fakePort) Close() error {
	p.closeOnce.Do(func() { close(p.events) })
	return nil
}

func (p *fakePort) setFailWrites(fail bool) {
	p.mu.Lock()
	p.failWrites = fail
	p.mu.Unlock()
}

func (p *fakePort) written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes.String()
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestMonitorDefaultsToReleased(t *testing.T) {
	m := NewMonitor()
	for _, b := range button.All {
		if m.IsPressed(b) {
			t.Errorf("button %s: pressed before any event", b)
		}
	}
}

func TestMonitorTracksPerButtonState(t *testing.T) {
	m := NewMonitor()
	m.SetPressed(button.Left, true)
	m.SetPressed(button.Mouse5, true)

	if !m.IsPressed(button.Left) || !m.IsPressed(button.Mouse5) {
		t.Fatal("expected LMB and M5 pressed")
	}
	if m.IsPressed(button.Right) {
		t.Fatal("RMB should be untouched")
	}

	m.SetPressed(button.Left, false)
	if m.IsPressed(button.Left) {
		t.Fatal("LMB should be released")
	}

	m.Reset()
	if m.IsPressed(button.Mouse5) {
		t.Fatal("Reset should release everything")
	}
}

func TestDeviceMoveCommandFormat(t *testing.T) {
	port := newFakePort()
	dev := NewDevice(port)
	defer dev.Close()

	if err := dev.Move(-3, 10); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if got := port.written(); got != "km.move(-3,10)\r\n" {
		t.Fatalf("wire bytes = %q", got)
	}
}

func TestDeviceClickPressesThenReleases(t *testing.T) {
	port := newFakePort()
	dev := NewDevice(port)
	defer dev.Close()

	if err := dev.Click(button.Mouse4); err != nil {
		t.Fatalf("Click() error = %v", err)
	}
	if got := port.written(); got != "km.ms1(1)\r\nkm.ms1(0)\r\n" {
		t.Fatalf("wire bytes = %q", got)
	}
}

func TestDeviceStartEnablesReportingWithEchoOff(t *testing.T) {
	port := newFakePort()
	dev := NewDevice(port)
	defer dev.Close()

	if err := dev.Start(nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	wire := port.written()
	echoAt := strings.Index(wire, "km.echo(0)")
	buttonsAt := strings.Index(wire, "km.buttons(1)")
	if echoAt < 0 || buttonsAt < 0 {
		t.Fatalf("missing init commands, wire = %q", wire)
	}
	if echoAt > buttonsAt {
		t.Fatalf("echo must be disabled before reporting starts, wire = %q", wire)
	}
}

func TestDeviceDecodesButtonStateStream(t *testing.T) {
	port := newFakePort()
	dev := NewDevice(port)
	defer dev.Close()

	var mu sync.Mutex
	var transitions []string
	dev.OnButtonEvent(func(b button.Button, pressed bool) {
		mu.Lock()
		defer mu.Unlock()
		state := "up"
		if pressed {
			state = "down"
		}
		transitions = append(transitions, b.String()+" "+state)
	})

	if err := dev.Start(nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// LMB down, LMB+M5 down, all up
	port.events <- []byte{0x01}
	port.events <- []byte{0x11}
	port.events <- []byte{0x00}

	want := []string{"LMB down", "M5 down", "LMB up", "M5 up"}
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == len(want)
	}, "timed out waiting for button transitions")

	mu.Lock()
	defer mu.Unlock()
	for i, w := range want {
		if transitions[i] != w {
			t.Errorf("transition[%d] = %q, want %q", i, transitions[i], w)
		}
	}
}

func TestDeviceRepeatedStateByteDoesNotRefire(t *testing.T) {
	port := newFakePort()
	dev := NewDevice(port)
	defer dev.Close()

	var count int
	var mu sync.Mutex
	dev.OnButtonEvent(func(button.Button, bool) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err := dev.Start(nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	port.events <- []byte{0x04, 0x04, 0x04}

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= 1
	}, "timed out waiting for first transition")

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly 1 transition for repeated state byte, got %d", count)
	}
}

func TestSupervisorConnectIsIdempotent(t *testing.T) {
	var opens int
	var port *fakePort
	sup := NewSupervisor(func() (Port, error) {
		opens++
		port = newFakePort()
		return port, nil
	}, NewMonitor())

	if err := sup.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := sup.Connect(); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	if opens != 1 {
		t.Fatalf("expected exactly one port open, got %d", opens)
	}
	if !sup.IsConnected() {
		t.Fatal("expected connected state")
	}
	// one session means one reporting enable, no duplicate registration
	if got := strings.Count(port.written(), "km.buttons(1)"); got != 1 {
		t.Fatalf("expected one reporting enable, got %d (wire %q)", got, port.written())
	}
	sup.Disconnect()
}

func TestSupervisorFeedsMonitorBeforeConnectedDeclared(t *testing.T) {
	port := newFakePort()
	monitor := NewMonitor()
	sup := NewSupervisor(func() (Port, error) { return port, nil }, monitor)

	if err := sup.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sup.Disconnect()

	port.events <- []byte{0x08} // M4 down

	eventually(t, func() bool { return monitor.IsPressed(button.Mouse4) },
		"monitor never saw M4 press")
}

func TestSupervisorMoveFailureDemotesSession(t *testing.T) {
	port := newFakePort()
	sup := NewSupervisor(func() (Port, error) { return port, nil }, NewMonitor())

	if err := sup.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	port.setFailWrites(true)

	if err := sup.MoveRelative(1, 2); err == nil {
		t.Fatal("expected move error on dead port")
	}
	if sup.IsConnected() {
		t.Fatal("dispatch failure must demote the session")
	}
	if err := sup.MoveRelative(1, 2); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSupervisorReadErrorDemotesAndResetsMonitor(t *testing.T) {
	port := newFakePort()
	monitor := NewMonitor()
	sup := NewSupervisor(func() (Port, error) { return port, nil }, monitor)

	if err := sup.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	port.events <- []byte{0x01}
	eventually(t, func() bool { return monitor.IsPressed(button.Left) },
		"monitor never saw LMB press")

	// Port dies underneath the session.
	port.Close()

	eventually(t, func() bool { return !sup.IsConnected() },
		"read error did not demote session")
	if monitor.IsPressed(button.Left) {
		t.Fatal("stale press survived session teardown")
	}
}

func TestSupervisorMoveWithoutSession(t *testing.T) {
	sup := NewSupervisor(func() (Port, error) { return newFakePort(), nil }, NewMonitor())
	if err := sup.MoveRelative(0, 1); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
