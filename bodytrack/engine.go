package bodytrack

import (
	"time"

	"github.com/pkg/errors"
)

// ErrEngineClosed is returned by engine operations after Close has begun.
var ErrEngineClosed = errors.New("tracking engine closed")

// Engine is a bounded-queue asynchronous capture-to-result tracking engine.
//
// Submit and TryRetrieve may be called from different goroutines
// concurrently; each is individually atomic with respect to the internal
// queue. Results surface in strict submission order. Submit blocks while the
// queue is full: backpressure, never dropping.
type Engine interface {
	// Submit hands a capture to the engine, blocking until queue space is
	// available. The engine owns the capture afterwards.
	Submit(c *Capture) error
	// TryRetrieve waits up to timeout for the next completed result.
	// (nil, nil) means nothing was ready in time, which is a normal
	// condition, not an error.
	TryRetrieve(timeout time.Duration) (*BodyFrame, error)
	// QueueDepth returns the number of submitted-but-not-yet-retrieved
	// captures. It never exceeds the configured capacity.
	QueueDepth() int
	// Close signals that no further submissions are accepted, unblocks any
	// blocked call and releases engine resources. Idempotent.
	Close() error
}

// MatchingAlgorithm selects how detections are assigned to tracked bodies.
type MatchingAlgorithm uint16

const (
	// MatchingAlgorithmHungarian uses the Hungarian algorithm (Kuhn-Munkres) for optimal assignment
	MatchingAlgorithmHungarian MatchingAlgorithm = iota
	// MatchingAlgorithmGreedy uses a greedy algorithm for faster but potentially suboptimal assignment
	MatchingAlgorithmGreedy
)

// ProcessingMode selects the compute path of the engine.
type ProcessingMode uint8

const (
	// ModeGPU requests hardware-accelerated processing where available
	ModeGPU ProcessingMode = iota
	// ModeCPUOnly forces processing on the CPU
	ModeCPUOnly
)

// DefaultQueueCapacity bounds in-flight captures unless configured otherwise.
const DefaultQueueCapacity = 4

// EngineConfig parameterizes a QueueEngine.
type EngineConfig struct {
	// QueueCapacity is the fixed bound on in-flight captures
	QueueCapacity int
	// Detector produces candidate body regions per capture
	Detector Detector
	// Algorithm to use for matching detections to tracked bodies
	Algorithm MatchingAlgorithm
	// MinIoU is the minimum overlap for a detection to continue a track. Default 0.3
	MinIoU float64
	// MaxDisappeared is the number of frames a body may go undetected before its track is dropped. Default 5
	MaxDisappeared int
	// Mode selects CPU-only or GPU-accelerated processing
	Mode ProcessingMode
	// DT is the Kalman time step, usually 1/FPS of the recording
	DT float64
}

// NewEngineConfig derives an engine configuration from stream calibration.
func NewEngineConfig(cal Calibration, detector Detector) EngineConfig {
	dt := 1.0 / 30.0
	if cal.FPS > 0 {
		dt = 1.0 / cal.FPS
	}
	return EngineConfig{
		QueueCapacity:  DefaultQueueCapacity,
		Detector:       detector,
		Algorithm:      MatchingAlgorithmHungarian,
		MinIoU:         0.3,
		MaxDisappeared: 5,
		Mode:           ModeGPU,
		DT:             dt,
	}
}
