package models

// ViolationKind identifies a detected integrity-policy breach.
type ViolationKind string

const (
	ViolationTabSwitch      ViolationKind = "tab_switch"
	ViolationFullscreenExit ViolationKind = "fullscreen_exit"
	ViolationRightClick     ViolationKind = "right_click"
	ViolationScreenshot     ViolationKind = "screenshot"
	ViolationCopy           ViolationKind = "copy"
	ViolationPaste          ViolationKind = "paste"
)

// ViolationKinds lists every kind the tracker accepts, in display order.
var ViolationKinds = []ViolationKind{
	ViolationTabSwitch,
	ViolationFullscreenExit,
	ViolationRightClick,
	ViolationScreenshot,
	ViolationCopy,
	ViolationPaste,
}

// Valid reports whether k is a known violation kind.
func (k ViolationKind) Valid() bool {
	for _, known := range ViolationKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ViolationCounts maps violation kind to its monotonically increasing
// per-session count.
type ViolationCounts map[ViolationKind]int

// Total sums counts across all kinds.
func (c ViolationCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}
