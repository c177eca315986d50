package recoil

import (
	"context"
	"math"
	"time"

	"github.com/trulydev/truly/internal/log"
	"github.com/trulydev/truly/pkg/button"
)

// DeviceLink is what the scheduler needs from the device layer: connection
// supervision plus one-way move dispatch. Satisfied by *makcu.Supervisor.
type DeviceLink interface {
	IsConnected() bool
	Connect() error
	MoveRelative(dx, dy int) error
}

// ButtonSource is a non-blocking point-in-time read of button state.
// Satisfied by *makcu.Monitor.
type ButtonSource interface {
	IsPressed(b button.Button) bool
}

// Scheduler is the control loop. Every tick it samples the toggle button,
// drives the hold session, and while armed and holding dispatches the
// per-tick correction deltas. It owns its edge-detector and hold state;
// nothing else touches them.
type Scheduler struct {
	settings *Settings
	buttons  ButtonSource
	dev      DeviceLink

	tickInterval time.Duration
	backoff      time.Duration

	// edge detector over the currently selected toggle button
	togglePrev bool
	toggleFor  button.Button

	// hold session; zero means idle
	holdStart time.Time

	// reconnect pacing while disconnected
	nextReconnect time.Time

	// diagnostics
	tickCount  uint64
	moveCount  uint64
	errorCount uint64
	lastErrLog time.Time
}

// NewScheduler wires the loop. tickInterval is the poll cadence (10ms on a
// stock setup), backoff the spacing of reconnect attempts while the device
// is gone.
func NewScheduler(settings *Settings, buttons ButtonSource, dev DeviceLink, tickInterval, backoff time.Duration) *Scheduler {
	return &Scheduler{
		settings:     settings,
		buttons:      buttons,
		dev:          dev,
		tickInterval: tickInterval,
		backoff:      backoff,
		toggleFor:    settings.ToggleButton(),
	}
}

// Run executes the loop until ctx is cancelled. The loop itself never
// fails: device errors degrade a tick to idle and reconnection is retried
// forever.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	log.Info("scheduler started", "tick", s.tickInterval, "backoff", s.backoff)
	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped", "ticks", s.tickCount, "moves", s.moveCount, "errors", s.errorCount)
			return ctx.Err()
		case <-ticker.C:
			s.tick(time.Now())
		}
	}
}

// tick runs one control cycle. Split out from Run so tests can drive it
// with synthetic clocks.
func (s *Scheduler) tick(now time.Time) {
	s.tickCount++

	// 1. Dead session: pace reconnect attempts, touch nothing else.
	if !s.dev.IsConnected() {
		if !now.Before(s.nextReconnect) {
			if err := s.dev.Connect(); err != nil {
				s.logError("reconnect failed", err, now)
			}
			s.nextReconnect = now.Add(s.backoff)
		}
		return
	}

	// 2. Toggle edge detection on the currently selected button. When the
	// assignment changes the baseline is unknown; adopt the current sample
	// so a button that is already held can never fire the toggle.
	toggleBtn := s.settings.ToggleButton()
	sample := s.buttons.IsPressed(toggleBtn)
	if toggleBtn != s.toggleFor {
		s.toggleFor = toggleBtn
	} else if sample && !s.togglePrev {
		enabled := s.settings.Toggle()
		log.Info("correction toggled", "button", toggleBtn.String(), "enabled", enabled)
	}
	s.togglePrev = sample

	// 3. Hold session lifecycle.
	enabled := s.settings.Enabled()
	holding := s.buttons.IsPressed(button.Left)
	if !enabled || !holding {
		s.holdStart = time.Time{}
		return
	}
	if s.holdStart.IsZero() {
		s.holdStart = now
	}
	elapsed := now.Sub(s.holdStart)

	// 4. Per-axis deltas. Both magnitudes are configured per-second-
	// equivalent; /5 converts to the per-tick unit at this cadence.
	yMove := 0
	if pd := s.settings.PullDown(); pd > 0 {
		yMove = int(math.Round(pd / perTickDivisor))
	}

	xMove := 0
	delay := time.Duration(s.settings.HorizontalDelay()) * time.Millisecond
	duration := time.Duration(s.settings.HorizontalDuration()) * time.Millisecond
	if elapsed >= delay && (duration == 0 || elapsed <= delay+duration) {
		xMove = int(math.Round(s.settings.Horizontal() / perTickDivisor))
	}

	// 5. Dispatch, never (0,0).
	if xMove == 0 && yMove == 0 {
		return
	}
	if err := s.dev.MoveRelative(xMove, yMove); err != nil {
		// Session is already demoted by the device layer; this tick's
		// motion is dropped, never retried.
		s.logError("move dispatch failed", err, now)
		return
	}
	s.moveCount++
}

// logError counts every error but logs at most one per backoff interval so
// a persistently dead device cannot flood the log.
func (s *Scheduler) logError(msg string, err error, now time.Time) {
	s.errorCount++
	if s.lastErrLog.IsZero() || now.Sub(s.lastErrLog) >= s.backoff {
		log.Warn(msg, "err", err, "total_errors", s.errorCount)
		s.lastErrLog = now
	}
}
