package bodytrack

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// trackedBody is one body followed across captures. Its center is smoothed
// with a 2D Kalman filter so short detector dropouts don't break identity.
type trackedBody struct {
	id                    uuid.UUID
	currentBBox           Rectangle
	currentCenter         Point
	predictedNextPosition Point
	noMatchTimes          int
	filter                *kalman_filter.Kalman2D
}

func newTrackedBody(bbox Rectangle, dt float64) *trackedBody {
	center := bbox.Center()

	/* Kalman filter props */
	ux := 1.0
	uy := 1.0
	stdDevA := 2.0
	stdDevMx := 0.1
	stdDevMy := 0.1
	kf := kalman_filter.NewKalman2D(dt, ux, uy, stdDevA, stdDevMx, stdDevMy, kalman_filter.WithState2D(center.X, center.Y))
	return &trackedBody{
		id:            uuid.New(),
		currentBBox:   bbox,
		currentCenter: center,
		filter:        kf,
	}
}

// predictedBBox returns the bounding box centered on the predicted next position
func (body *trackedBody) predictedBBox() Rectangle {
	return Rectangle{
		X:      body.predictedNextPosition.X - body.currentBBox.Width/2.0,
		Y:      body.predictedNextPosition.Y - body.currentBBox.Height/2.0,
		Width:  body.currentBBox.Width,
		Height: body.currentBBox.Height,
	}
}

// predictNextPosition executes Kalman filter's first step but without re-evaluating state vector based on Kalman gain
func (body *trackedBody) predictNextPosition() {
	body.filter.Predict()
	stateX, stateY := body.filter.GetState()
	body.predictedNextPosition.X = stateX
	body.predictedNextPosition.Y = stateY
}

// update moves the body onto a matched detection and executes Kalman
// filter's second step (evaluate state vector based on Kalman gain).
func (body *trackedBody) update(det Detection) error {
	body.currentBBox = det.BBox
	body.currentCenter = det.BBox.Center()

	err := body.filter.Update(body.currentCenter.X, body.currentCenter.Y)
	if err != nil {
		return errors.Wrap(err, "Can't update body filter")
	}
	// Re-center the bounding box on the smoothed state
	stateX, stateY := body.filter.GetState()
	diffX := stateX - body.currentCenter.X
	diffY := stateY - body.currentCenter.Y
	body.currentCenter.X = stateX
	body.currentCenter.Y = stateY
	body.currentBBox.X += diffX
	body.currentBBox.Y += diffY
	body.noMatchTimes = 0
	return nil
}
