package bodytrack

import (
	"io"
	"time"

	"github.com/pkg/errors"
)

// ErrSeekOutOfRange is returned by Seek when the requested offset cannot be
// landed on or before (e.g. it lies past the end of the recording).
var ErrSeekOutOfRange = errors.New("seek offset out of recording range")

// Calibration carries the device parameters recorded with the stream.
type Calibration struct {
	Width     int
	Height    int
	FPS       float64
	DepthMode string
}

// RecordConfiguration is the read-once metadata of a recorded stream.
// StartOffset is the device timestamp of the first capture; all
// stream-relative clocks are normalized against it.
type RecordConfiguration struct {
	StartOffset time.Duration
	Duration    time.Duration
	Calibration Calibration
}

// Source reads captures from a recorded stream in device-timestamp order.
//
// Next must be called from one logical reader at a time; callers needing
// concurrent access have to serialize externally. End of stream is signaled
// with io.EOF, not an error condition.
type Source interface {
	// Next returns the next capture or io.EOF when the stream is exhausted.
	Next() (*Capture, error)
	// Seek positions the stream at the given stream-relative offset from the
	// beginning, so that the following Next returns the first capture at or
	// after that offset.
	Seek(offset time.Duration) error
	// Configuration returns the stream metadata. Valid after open.
	Configuration() RecordConfiguration
	// TotalDuration returns the length of the recording.
	TotalDuration() time.Duration
	Close() error
}

// SliceSource serves pre-built captures from memory. It backs synthetic
// recordings in tests and benchmarks.
type SliceSource struct {
	captures []*Capture
	config   RecordConfiguration
	pos      int
}

// NewSliceSource creates a source over the given captures. Captures are
// expected to be ordered by device timestamp. The configuration's
// StartOffset is taken from the first timestamped capture unless already set.
func NewSliceSource(captures []*Capture, config RecordConfiguration) *SliceSource {
	if config.StartOffset == 0 && len(captures) > 0 && captures[0].HasTimestamp() {
		config.StartOffset = captures[0].DeviceTimestamp
	}
	if config.Duration == 0 && len(captures) > 0 {
		last := captures[len(captures)-1]
		if last.HasTimestamp() {
			config.Duration = last.DeviceTimestamp - config.StartOffset
		}
	}
	return &SliceSource{
		captures: captures,
		config:   config,
	}
}

// Next returns the next capture in order or io.EOF.
func (s *SliceSource) Next() (*Capture, error) {
	if s.pos >= len(s.captures) {
		return nil, io.EOF
	}
	c := s.captures[s.pos]
	s.pos++
	return c, nil
}

// Seek positions the source at the first capture whose stream-relative
// timestamp is at or after the given offset.
func (s *SliceSource) Seek(offset time.Duration) error {
	if offset < 0 {
		return errors.Wrapf(ErrSeekOutOfRange, "negative offset %s", offset)
	}
	for i, c := range s.captures {
		if c.HasTimestamp() && c.DeviceTimestamp-s.config.StartOffset >= offset {
			s.pos = i
			return nil
		}
	}
	return errors.Wrapf(ErrSeekOutOfRange, "offset %s past end of recording", offset)
}

// Configuration returns the stream metadata.
func (s *SliceSource) Configuration() RecordConfiguration {
	return s.config
}

// TotalDuration returns the length of the recording.
func (s *SliceSource) TotalDuration() time.Duration {
	return s.config.Duration
}

// Close releases nothing for an in-memory source.
func (s *SliceSource) Close() error {
	s.captures = nil
	return nil
}
