package makcu

import (
	"sync"

	"github.com/trulydev/truly/pkg/button"
)

// Monitor keeps the last-known pressed state of every logical button.
// It is written by the device read loop and read by anyone at any time;
// a read never blocks on the device.
type Monitor struct {
	mu      sync.RWMutex
	pressed [len(button.All)]bool
}

// NewMonitor returns a monitor with every button released.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// SetPressed records a button transition. Called from the device's event
// callback; only the cell for b changes.
func (m *Monitor) SetPressed(b button.Button, pressed bool) {
	if !b.Valid() {
		return
	}
	m.mu.Lock()
	m.pressed[b] = pressed
	m.mu.Unlock()
}

// IsPressed returns the most recently recorded state of b. Buttons never
// reported read as released.
func (m *Monitor) IsPressed(b button.Button) bool {
	if !b.Valid() {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pressed[b]
}

// Reset marks every button released. Called when a session is torn down so
// a press observed on a dead session cannot hold a correction active.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.pressed = [len(button.All)]bool{}
	m.mu.Unlock()
}
