// Package recoil implements the recoil-correction core: shared tunable
// settings and the fixed-cadence scheduler that turns button state into
// relative mouse moves.
package recoil

import (
	"sync"

	"github.com/trulydev/truly/pkg/button"
)

// Value ranges enforced on every write. Nothing outside these limits is
// ever observable by a reader.
const (
	MaxPullDown     = 300.0
	MaxHorizontal   = 300.0
	MaxDelayMs      = 5000
	MaxDurationMs   = 10000
	perTickDivisor  = 5.0
	DefaultDelayMs  = 500
	DefaultDuration = 2000
	DefaultPullDown = 1.0
)

// Settings holds the tunables shared between the scheduler and the control
// plane. One lock, coarse critical sections; each get/set is atomic on its
// own and fields are read independently.
type Settings struct {
	mu sync.Mutex

	pullDown     float64
	horizontal   float64
	delayMs      int
	durationMs   int
	enabled      bool
	toggleButton button.Button
}

// NewSettings returns settings with the daemon's startup defaults:
// correction disarmed, M5 as the toggle.
func NewSettings() *Settings {
	return &Settings{
		pullDown:     DefaultPullDown,
		horizontal:   0,
		delayMs:      DefaultDelayMs,
		durationMs:   DefaultDuration,
		enabled:      false,
		toggleButton: button.Mouse5,
	}
}

// SetPullDown stores the vertical correction magnitude, clamped to [0,300].
func (s *Settings) SetPullDown(v float64) {
	s.mu.Lock()
	s.pullDown = clamp(v, 0, MaxPullDown)
	s.mu.Unlock()
}

// PullDown returns the vertical correction magnitude.
func (s *Settings) PullDown() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pullDown
}

// SetHorizontal stores the horizontal correction magnitude, clamped to
// [-300,300]. Sign encodes direction.
func (s *Settings) SetHorizontal(v float64) {
	s.mu.Lock()
	s.horizontal = clamp(v, -MaxHorizontal, MaxHorizontal)
	s.mu.Unlock()
}

// Horizontal returns the horizontal correction magnitude.
func (s *Settings) Horizontal() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.horizontal
}

// SetHorizontalDelay stores the hold duration before horizontal correction
// begins, clamped to [0,5000] ms.
func (s *Settings) SetHorizontalDelay(ms int) {
	s.mu.Lock()
	s.delayMs = clampInt(ms, 0, MaxDelayMs)
	s.mu.Unlock()
}

// HorizontalDelay returns the horizontal onset delay in milliseconds.
func (s *Settings) HorizontalDelay() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delayMs
}

// SetHorizontalDuration stores the horizontal-active window length after
// the delay, clamped to [0,10000] ms. Zero means the window never closes.
func (s *Settings) SetHorizontalDuration(ms int) {
	s.mu.Lock()
	s.durationMs = clampInt(ms, 0, MaxDurationMs)
	s.mu.Unlock()
}

// HorizontalDuration returns the horizontal window length in milliseconds.
func (s *Settings) HorizontalDuration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durationMs
}

// Enabled reports whether correction is armed.
func (s *Settings) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Toggle flips the armed flag and returns the new value.
func (s *Settings) Toggle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = !s.enabled
	return s.enabled
}

// SetToggleButton assigns which button arms and disarms correction.
// Only MMB, M4 and M5 are accepted.
func (s *Settings) SetToggleButton(b button.Button) error {
	valid := false
	for _, t := range button.Toggleable {
		if b == t {
			valid = true
			break
		}
	}
	if !valid {
		return &ValidationError{Field: "toggle_button", Reason: "must be one of MMB, M4, M5"}
	}
	s.mu.Lock()
	s.toggleButton = b
	s.mu.Unlock()
	return nil
}

// ToggleButton returns the currently assigned toggle button.
func (s *Settings) ToggleButton() button.Button {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toggleButton
}

// Snapshot is a read-only view of the settings for the control plane.
// Field names match the wire format the browser client expects.
type Snapshot struct {
	Enabled      bool    `json:"is_enabled"`
	ToggleButton string  `json:"toggle_button"`
	PullDown     float64 `json:"pull_down"`
	Horizontal   float64 `json:"horizontal"`
	DelayMs      int     `json:"horizontal_delay_ms"`
	DurationMs   int     `json:"horizontal_duration_ms"`
}

// Snapshot returns a consistent copy of all fields.
func (s *Settings) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Enabled:      s.enabled,
		ToggleButton: s.toggleButton.String(),
		PullDown:     s.pullDown,
		Horizontal:   s.horizontal,
		DelayMs:      s.delayMs,
		DurationMs:   s.durationMs,
	}
}

// ValidationError rejects a single malformed control-plane field. Other
// fields in the same update still apply.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
