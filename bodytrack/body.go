package bodytrack

import (
	"time"

	"github.com/google/uuid"
)

// BackgroundIndex is the body-index map sentinel for "no body at this pixel".
const BackgroundIndex = uint8(255)

// Body is one detected body in a tracking result.
type Body struct {
	ID     uuid.UUID
	BBox   Rectangle
	Center Point
}

// BodyIndexMap classifies every pixel of a capture to a body index
// (position in BodyFrame.Bodies) or BackgroundIndex.
type BodyIndexMap struct {
	Width  int
	Height int
	Pix    []uint8
}

// newBodyIndexMap rasterizes body bounding boxes into an index map.
// Later bodies overwrite earlier ones where boxes overlap.
func newBodyIndexMap(width, height int, bodies []Body) BodyIndexMap {
	m := BodyIndexMap{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}
	for i := range m.Pix {
		m.Pix[i] = BackgroundIndex
	}
	for idx, body := range bodies {
		x0 := maxInt(int(body.BBox.X), 0)
		y0 := maxInt(int(body.BBox.Y), 0)
		x1 := int(body.BBox.X + body.BBox.Width)
		y1 := int(body.BBox.Y + body.BBox.Height)
		if x1 > width {
			x1 = width
		}
		if y1 > height {
			y1 = height
		}
		for y := y0; y < y1; y++ {
			row := y * width
			for x := x0; x < x1; x++ {
				m.Pix[row+x] = uint8(idx)
			}
		}
	}
	return m
}

// BodyFrame is the tracking result for one submitted capture.
type BodyFrame struct {
	DeviceTimestamp time.Duration
	Bodies          []Body
	IndexMap        BodyIndexMap
}

// HasBody reports whether the index map classifies at least one pixel to a body.
func (f *BodyFrame) HasBody() bool {
	for _, p := range f.IndexMap.Pix {
		if p != BackgroundIndex {
			return true
		}
	}
	return false
}

// Release drops the index map pixels once the result has been consumed.
func (f *BodyFrame) Release() {
	f.IndexMap.Pix = nil
	f.Bodies = nil
}
