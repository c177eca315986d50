// Package motion converts a total 2-D displacement into a smooth sequence
// of quantized relative moves. The ease-out curve front-loads the motion;
// rounding residue is carried from step to step so the emitted integer
// deltas always sum to exactly the requested displacement.
//
// This is a standalone capability invoked directly (e.g. by a control-plane
// action), not part of the recoil scheduler's per-tick path.
package motion

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Mover is the sink for generated steps. Satisfied by *makcu.Supervisor.
type Mover interface {
	MoveRelative(dx, dy int) error
}

// ErrNoDisplacement rejects a (0,0) request before any device interaction.
var ErrNoDisplacement = errors.New("motion: displacement is zero")

// Delta is one quantized step.
type Delta struct {
	X, Y int
}

// EaseOutQuad maps t in [0,1] to an ease-out-quadratic position, rising
// monotonically from 0 to 1 with decelerating slope.
func EaseOutQuad(t float64) float64 {
	return t * (2 - t)
}

// Steps decomposes (dx,dy) into steps quantized deltas along the ease-out
// curve. Each step's delta is measured against the running sum of already
// emitted (rounded) deltas, so rounding error never compounds and the
// returned deltas sum to exactly (dx,dy). Some deltas may be zero.
//
// steps < 1 is a caller bug and fails fast.
func Steps(dx, dy, steps int) ([]Delta, error) {
	if steps < 1 {
		return nil, fmt.Errorf("motion: step count must be >= 1, got %d", steps)
	}
	if dx == 0 && dy == 0 {
		return nil, ErrNoDisplacement
	}

	out := make([]Delta, 0, steps)
	var accX, accY int
	for i := 1; i <= steps; i++ {
		eased := EaseOutQuad(float64(i) / float64(steps))
		moveX := int(math.Round(float64(dx)*eased)) - accX
		moveY := int(math.Round(float64(dy)*eased)) - accY
		accX += moveX
		accY += moveY
		out = append(out, Delta{X: moveX, Y: moveY})
	}
	return out, nil
}

// Glide plays the step sequence against m with a fixed inter-step pause of
// duration/steps. A step whose delta is (0,0) still consumes its pause but
// issues no command. The sequence is not cancellable: it runs to completion
// or fails outright on the first dispatch error.
func Glide(m Mover, dx, dy, steps int, duration time.Duration) error {
	deltas, err := Steps(dx, dy, steps)
	if err != nil {
		return err
	}

	pause := duration / time.Duration(steps)
	for _, d := range deltas {
		if d.X != 0 || d.Y != 0 {
			if err := m.MoveRelative(d.X, d.Y); err != nil {
				return fmt.Errorf("motion: glide aborted: %w", err)
			}
		}
		time.Sleep(pause)
	}
	return nil
}
