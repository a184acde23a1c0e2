package bodytrack

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Detection is one candidate body region produced by a Detector.
type Detection struct {
	BBox       Rectangle
	Confidence float64
}

// Detector extracts candidate body regions from a capture. Implementations
// must be safe to call repeatedly from the engine worker goroutine; they are
// never called concurrently for one engine instance.
type Detector func(c *Capture) ([]Detection, error)

// HOGDetector detects people on the color plane with OpenCV's HOG descriptor
// and the default people SVM. It is the CPU detection path for recorded
// video playback.
func HOGDetector() (Detector, func() error, error) {
	hog := gocv.NewHOGDescriptor()
	if err := hog.SetSVMDetector(gocv.HOGDefaultPeopleDetector()); err != nil {
		closeErr := hog.Close()
		if closeErr != nil {
			return nil, nil, errors.Wrap(closeErr, "can't release HOG descriptor")
		}
		return nil, nil, errors.Wrap(err, "can't initialize people detector")
	}
	detect := func(c *Capture) ([]Detection, error) {
		if c.Color.Empty() {
			return nil, nil
		}
		mat, err := gocv.NewMatFromBytes(c.Color.Height, c.Color.Width, gocv.MatTypeCV8UC3, c.Color.Data)
		if err != nil {
			return nil, errors.Wrap(err, "can't wrap color plane")
		}
		defer mat.Close()
		rects := hog.DetectMultiScale(mat)
		detections := make([]Detection, 0, len(rects))
		for _, rect := range rects {
			detections = append(detections, Detection{
				BBox:       NewRectFrom(rect),
				Confidence: 1.0,
			})
		}
		return detections, nil
	}
	return detect, hog.Close, nil
}
