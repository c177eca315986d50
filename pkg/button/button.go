// Package button defines the logical mouse buttons the daemon works with.
// All components reference buttons by logical name; the mapping to the
// device's wire representation lives here and nowhere else.
package button

import "fmt"

// Button is a logical mouse button, independent of device-specific codes.
type Button int

const (
	Left Button = iota
	Right
	Middle
	Mouse4
	Mouse5

	count
)

// All lists every logical button, in wire-bit order.
var All = [...]Button{Left, Right, Middle, Mouse4, Mouse5}

// Toggleable lists the buttons that may be assigned as the enable toggle.
// LMB and RMB are reserved for gameplay.
var Toggleable = [...]Button{Middle, Mouse4, Mouse5}

var names = [...]string{"LMB", "RMB", "MMB", "M4", "M5"}

// String returns the short name used on the wire and in the control plane.
func (b Button) String() string {
	if b < 0 || int(b) >= len(names) {
		return fmt.Sprintf("Button(%d)", int(b))
	}
	return names[b]
}

// Valid reports whether b is one of the five known buttons.
func (b Button) Valid() bool {
	return b >= 0 && b < count
}

// Bit returns the button's position in the device's button-state bitmask.
// The MAKCU reports all five buttons as one byte, bit 0 = LMB.
func (b Button) Bit() uint8 {
	return 1 << uint(b)
}

// Parse resolves a short name (as used by the control plane) to a Button.
func Parse(name string) (Button, error) {
	for i, n := range names {
		if n == name {
			return Button(i), nil
		}
	}
	return 0, fmt.Errorf("unknown button %q", name)
}

// ParseToggle resolves a short name and additionally requires it to be a
// valid toggle assignment.
func ParseToggle(name string) (Button, error) {
	b, err := Parse(name)
	if err != nil {
		return 0, err
	}
	for _, t := range Toggleable {
		if b == t {
			return b, nil
		}
	}
	return 0, fmt.Errorf("button %s cannot be used as toggle", b)
}
