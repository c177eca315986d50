package makcu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/trulydev/truly/internal/log"
)

// State is the supervisor's connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ErrNotConnected is returned for device operations without a live session.
var ErrNotConnected = errors.New("makcu: not connected")

// Opener produces a fresh port for each connection attempt.
type Opener func() (Port, error)

// Supervisor owns the device session lifecycle: it connects, installs the
// button monitor's callback before declaring the session live, demotes to
// disconnected on any device error, and hands out move commands.
// One lock guards connect, disconnect, status reads and dispatch so a
// session can never be torn down while a command is in flight on it.
type Supervisor struct {
	open    Opener
	monitor *Monitor

	mu        sync.Mutex
	state     State
	dev       *Device
	sessionID string
}

// NewSupervisor creates a supervisor. open is called on every connection
// attempt; monitor receives all button events of whatever session is live.
func NewSupervisor(open Opener, monitor *Monitor) *Supervisor {
	return &Supervisor{
		open:    open,
		monitor: monitor,
		state:   Disconnected,
	}
}

// Monitor returns the button monitor fed by this supervisor's sessions.
func (s *Supervisor) Monitor() *Monitor {
	return s.monitor
}

// IsConnected reports whether a live session exists.
func (s *Supervisor) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Connected && s.dev != nil
}

// SessionState returns the current connection state.
func (s *Supervisor) SessionState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect establishes a session. Idempotent: a live session is left alone,
// a stale handle is torn down first. The button callback is installed and
// event delivery enabled before the state flips to Connected, so button
// samples can never silently go stale on a "connected" session.
func (s *Supervisor) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Connected && s.dev != nil {
		return nil
	}
	if s.dev != nil {
		s.dev.Close()
		s.dev = nil
	}
	s.state = Connecting

	port, err := s.open()
	if err != nil {
		s.state = Disconnected
		return fmt.Errorf("makcu connect: %w", err)
	}

	dev := NewDevice(port)
	dev.OnButtonEvent(s.monitor.SetPressed)
	if err := dev.Start(s.onReadError); err != nil {
		dev.Close()
		s.state = Disconnected
		return fmt.Errorf("makcu connect: %w", err)
	}

	s.dev = dev
	s.sessionID = uuid.NewString()
	s.state = Connected
	log.Info("makcu connected", "session", s.sessionID)
	return nil
}

// Disconnect releases the session. Safe to call from any state.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked("disconnect requested")
}

// MoveRelative dispatches one relative move to the live session. A write
// failure demotes the session to disconnected; the move is dropped, not
// retried.
func (s *Supervisor) MoveRelative(dx, dy int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Connected || s.dev == nil {
		return ErrNotConnected
	}
	if err := s.dev.Move(dx, dy); err != nil {
		s.teardownLocked("move dispatch failed")
		return fmt.Errorf("makcu move: %w", err)
	}
	return nil
}

// onReadError fires from the read loop when the port dies under us.
func (s *Supervisor) onReadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Connected {
		log.Warn("makcu event stream lost", "session", s.sessionID, "err", err)
		s.teardownLocked("event stream lost")
	}
}

func (s *Supervisor) teardownLocked(reason string) {
	if s.dev != nil {
		s.dev.Close()
		s.dev = nil
	}
	if s.state == Connected {
		log.Info("makcu session closed", "session", s.sessionID, "reason", reason)
	}
	s.state = Disconnected
	s.monitor.Reset()
}
