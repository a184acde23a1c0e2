package bodytrack

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// VideoSource plays back a recorded video file through OpenCV. Plain video
// containers carry no depth channel, so captures expose the color plane only.
type VideoSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	config  RecordConfiguration
}

// OpenVideoSource opens a recorded video file for sequential playback.
func OpenVideoSource(path string) (*VideoSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open recording %s", path)
	}
	fps := capture.Get(gocv.VideoCaptureFPS)
	frames := capture.Get(gocv.VideoCaptureFrameCount)
	var duration time.Duration
	if fps > 0 {
		duration = time.Duration(frames / fps * float64(time.Second))
	}
	return &VideoSource{
		capture: capture,
		mat:     gocv.NewMat(),
		config: RecordConfiguration{
			Duration: duration,
			Calibration: Calibration{
				Width:  int(capture.Get(gocv.VideoCaptureFrameWidth)),
				Height: int(capture.Get(gocv.VideoCaptureFrameHeight)),
				FPS:    fps,
			},
		},
	}, nil
}

// Next decodes the next frame. The decoder position in milliseconds becomes
// the capture's device timestamp.
func (s *VideoSource) Next() (*Capture, error) {
	timestamp := time.Duration(s.capture.Get(gocv.VideoCapturePosMsec)) * time.Millisecond
	if ok := s.capture.Read(&s.mat); !ok {
		return nil, io.EOF
	}
	if s.mat.Empty() {
		// Decoded container frame without pixel data; no timestamp can be
		// trusted for it either.
		return NewCapture(Plane{}, NoTimestamp), nil
	}
	raw := s.mat.ToBytes()
	data := make([]byte, len(raw))
	copy(data, raw)
	plane := Plane{
		Width:  s.mat.Cols(),
		Height: s.mat.Rows(),
		Stride: s.mat.Cols() * s.mat.Channels(),
		Data:   data,
	}
	return NewCapture(plane, s.config.StartOffset+timestamp), nil
}

// Seek positions playback at the given stream-relative offset.
func (s *VideoSource) Seek(offset time.Duration) error {
	if offset < 0 || (s.config.Duration > 0 && offset > s.config.Duration) {
		return errors.Wrapf(ErrSeekOutOfRange, "offset %s, recording spans %s", offset, s.config.Duration)
	}
	s.capture.Set(gocv.VideoCapturePosMsec, float64(offset.Milliseconds()))
	landed := time.Duration(s.capture.Get(gocv.VideoCapturePosMsec)) * time.Millisecond
	if landed > offset {
		return errors.Wrapf(ErrSeekOutOfRange, "landed at %s past requested %s", landed, offset)
	}
	return nil
}

// Configuration returns the stream metadata.
func (s *VideoSource) Configuration() RecordConfiguration {
	return s.config
}

// TotalDuration returns the length of the recording.
func (s *VideoSource) TotalDuration() time.Duration {
	return s.config.Duration
}

// Close releases the decoder and its scratch frame.
func (s *VideoSource) Close() error {
	if err := s.mat.Close(); err != nil {
		return errors.Wrap(err, "can't release frame buffer")
	}
	return errors.Wrap(s.capture.Close(), "can't release video capture")
}
