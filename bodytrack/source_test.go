package bodytrack

import (
	"io"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func testPlane() Plane {
	return Plane{
		Width:  16,
		Height: 16,
		Stride: 48,
		Data:   make([]byte, 16*48),
	}
}

// syntheticRecording builds n captures at the given interval starting at base.
func syntheticRecording(n int, interval, base time.Duration) []*Capture {
	captures := make([]*Capture, n)
	for i := 0; i < n; i++ {
		captures[i] = NewCapture(testPlane(), base+time.Duration(i)*interval)
	}
	return captures
}

func TestSliceSourceSequentialRead(t *testing.T) {
	source := NewSliceSource(syntheticRecording(5, 33*time.Millisecond, 0), RecordConfiguration{})

	for i := 0; i < 5; i++ {
		c, err := source.Next()
		if err != nil {
			t.Fatalf("Next failed at capture %d: %v", i, err)
		}
		expected := time.Duration(i) * 33 * time.Millisecond
		if c.DeviceTimestamp != expected {
			t.Errorf("Expected timestamp %s, got %s", expected, c.DeviceTimestamp)
		}
	}
	if _, err := source.Next(); err != io.EOF {
		t.Errorf("Expected io.EOF after last capture, got %v", err)
	}
}

func TestSliceSourceConfigurationDerived(t *testing.T) {
	base := 5 * time.Second
	source := NewSliceSource(syntheticRecording(10, 100*time.Millisecond, base), RecordConfiguration{})

	config := source.Configuration()
	if config.StartOffset != base {
		t.Errorf("Expected start offset %s, got %s", base, config.StartOffset)
	}
	if config.Duration != 900*time.Millisecond {
		t.Errorf("Expected duration 900ms, got %s", config.Duration)
	}
	if source.TotalDuration() != config.Duration {
		t.Errorf("TotalDuration %s differs from configuration %s", source.TotalDuration(), config.Duration)
	}
}

func TestSliceSourceSeek(t *testing.T) {
	base := time.Second
	source := NewSliceSource(syntheticRecording(10, 100*time.Millisecond, base), RecordConfiguration{})

	if err := source.Seek(250 * time.Millisecond); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	c, err := source.Next()
	if err != nil {
		t.Fatalf("Next after seek failed: %v", err)
	}
	// First capture at or after 250ms stream-relative is the one at 300ms
	if c.DeviceTimestamp != base+300*time.Millisecond {
		t.Errorf("Expected timestamp %s, got %s", base+300*time.Millisecond, c.DeviceTimestamp)
	}
}

func TestSliceSourceSeekOutOfRange(t *testing.T) {
	source := NewSliceSource(syntheticRecording(10, 100*time.Millisecond, 0), RecordConfiguration{})

	err := source.Seek(time.Hour)
	if !errors.Is(err, ErrSeekOutOfRange) {
		t.Errorf("Expected ErrSeekOutOfRange, got %v", err)
	}
	if err := source.Seek(-time.Second); !errors.Is(err, ErrSeekOutOfRange) {
		t.Errorf("Expected ErrSeekOutOfRange for negative offset, got %v", err)
	}
}
