package bodytrack

import "time"

// Window is an optional [Start, End) interval in stream-relative time.
// A nil bound means unbounded on that side.
type Window struct {
	Start *time.Duration
	End   *time.Duration
}

// UnboundedWindow creates a window accepting every timestamped capture.
func UnboundedWindow() Window {
	return Window{}
}

// NewWindow creates a window bounded on both sides.
func NewWindow(start, end time.Duration) Window {
	return Window{
		Start: &start,
		End:   &end,
	}
}

// WindowFrom creates a window bounded on the left only.
func WindowFrom(start time.Duration) Window {
	return Window{
		Start: &start,
	}
}

// WindowUntil creates a window bounded on the right only.
func WindowUntil(end time.Duration) Window {
	return Window{
		End: &end,
	}
}

// Contains reports whether a stream-relative timestamp falls inside the window.
func (w Window) Contains(adjusted time.Duration) bool {
	if w.Start != nil && adjusted < *w.Start {
		return false
	}
	if w.End != nil && adjusted >= *w.End {
		return false
	}
	return true
}

// Accepts reports whether a capture's device timestamp, normalized by the
// recording start offset, falls inside the window. Captures without an
// extractable timestamp are treated as outside the window.
func (w Window) Accepts(c *Capture, startOffset time.Duration) bool {
	if c == nil || !c.HasTimestamp() {
		return false
	}
	return w.Contains(c.DeviceTimestamp - startOffset)
}
