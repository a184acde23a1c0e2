package bodytrack

import "time"

// NoTimestamp marks a capture whose device timestamp could not be extracted
// (e.g. a partially decoded container frame). Such captures never pass the
// processing window.
const NoTimestamp = time.Duration(-1)

// Plane is a single image channel of a capture: raw pixel bytes plus layout.
type Plane struct {
	Width  int
	Height int
	Stride int
	Data   []byte
}

// Empty reports whether the plane carries no pixel data.
func (p Plane) Empty() bool {
	return len(p.Data) == 0
}

// Capture is one synchronized sensor snapshot: a depth plane and a color
// plane stamped with a monotonically increasing device timestamp.
//
// Ownership contract: a capture belongs to exactly one pipeline stage at a
// time. Whoever rejects it (window filter) or finishes processing it (engine
// worker) must call Release and never touch it afterwards.
type Capture struct {
	Depth           Plane
	Color           Plane
	DeviceTimestamp time.Duration
}

// NewCapture creates a capture with a color plane only (plain video
// playback has no depth channel).
func NewCapture(color Plane, deviceTimestamp time.Duration) *Capture {
	return &Capture{
		Color:           color,
		DeviceTimestamp: deviceTimestamp,
	}
}

// HasTimestamp reports whether a device timestamp was extracted for this capture.
func (c *Capture) HasTimestamp() bool {
	return c.DeviceTimestamp >= 0
}

// Release drops the pixel buffers. The capture must not be used afterwards.
func (c *Capture) Release() {
	c.Depth.Data = nil
	c.Color.Data = nil
}
