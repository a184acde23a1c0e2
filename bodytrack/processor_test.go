package bodytrack

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

var allStrategies = []Strategy{SingleThreaded, BackgroundPop, BackgroundEnqueue}

func testConfiguration() RecordConfiguration {
	return RecordConfiguration{
		Calibration: Calibration{Width: 16, Height: 16, FPS: 30},
	}
}

func newTestProcessor(t *testing.T, strategy Strategy, captures []*Capture, detector Detector, window Window) *Processor {
	t.Helper()
	source := NewSliceSource(captures, testConfiguration())
	engine, err := NewQueueEngine(NewEngineConfig(source.Configuration().Calibration, detector))
	if err != nil {
		t.Fatalf("NewQueueEngine failed: %v", err)
	}
	processor, err := NewProcessorFromSource(source, engine, window, strategy)
	if err != nil {
		t.Fatalf("NewProcessorFromSource failed for %s: %v", strategy, err)
	}
	return processor
}

func TestProcessorAllStrategiesFullRecording(t *testing.T) {
	for _, strategy := range allStrategies {
		processor := newTestProcessor(t, strategy,
			syntheticRecording(100, 33*time.Millisecond, 0), alwaysBodyDetector(), UnboundedWindow())
		sampler := SampleDepth(processor, time.Millisecond)

		if err := processor.Run(); err != nil {
			t.Fatalf("%s: run failed: %v", strategy, err)
		}
		for _, sample := range sampler.Stop() {
			if sample.Depth > DefaultQueueCapacity {
				t.Errorf("%s: queue depth %d at %s exceeds capacity %d",
					strategy, sample.Depth, sample.At, DefaultQueueCapacity)
			}
		}
		if processor.TotalFrames() != 100 {
			t.Errorf("%s: expected 100 total frames, got %d", strategy, processor.TotalFrames())
		}
		if processor.FramesWithBody() != 100 {
			t.Errorf("%s: expected 100 frames with body, got %d", strategy, processor.FramesWithBody())
		}
		if err := processor.Close(); err != nil {
			t.Errorf("%s: close failed: %v", strategy, err)
		}
	}
}

func TestProcessorStrategiesAgreeOnBoundedWindow(t *testing.T) {
	window := NewWindow(330*time.Millisecond, 990*time.Millisecond)
	// Captures at 33ms intervals: indices 10..29 fall inside [330ms, 990ms)
	const expected = 20

	for _, strategy := range allStrategies {
		processor := newTestProcessor(t, strategy,
			syntheticRecording(100, 33*time.Millisecond, 0), alwaysBodyDetector(), window)
		if err := processor.Run(); err != nil {
			t.Fatalf("%s: run failed: %v", strategy, err)
		}
		if processor.TotalFrames() != expected {
			t.Errorf("%s: expected %d total frames, got %d", strategy, expected, processor.TotalFrames())
		}
		if processor.FramesWithBody() != expected {
			t.Errorf("%s: expected %d frames with body, got %d", strategy, expected, processor.FramesWithBody())
		}
		if err := processor.Close(); err != nil {
			t.Errorf("%s: close failed: %v", strategy, err)
		}
	}
}

func TestProcessorAlternatingBodiesUnderRandomDelays(t *testing.T) {
	// Odd detector calls report a body: 50 of 100 captures
	const expectedWithBody = 50

	for _, strategy := range allStrategies {
		detector := slowDetector(2*time.Millisecond, alternatingDetector())
		processor := newTestProcessor(t, strategy,
			syntheticRecording(100, 33*time.Millisecond, 0), detector, UnboundedWindow())
		if err := processor.Run(); err != nil {
			t.Fatalf("%s: run failed: %v", strategy, err)
		}
		if processor.TotalFrames() != 100 {
			t.Errorf("%s: expected 100 total frames, got %d", strategy, processor.TotalFrames())
		}
		if processor.FramesWithBody() != expectedWithBody {
			t.Errorf("%s: expected %d frames with body, got %d",
				strategy, expectedWithBody, processor.FramesWithBody())
		}
		if err := processor.Close(); err != nil {
			t.Errorf("%s: close failed: %v", strategy, err)
		}
	}
}

func TestProcessorCountersNeverInverted(t *testing.T) {
	for _, strategy := range allStrategies {
		processor := newTestProcessor(t, strategy,
			syntheticRecording(200, time.Millisecond, 0),
			slowDetector(time.Millisecond, alwaysBodyDetector()), UnboundedWindow())

		stop := make(chan struct{})
		var observerWg sync.WaitGroup
		observerWg.Add(1)
		go func() {
			defer observerWg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				// Body counter read first: both only grow, so a stale body
				// count can never exceed a fresher total
				withBody := processor.FramesWithBody()
				total := processor.TotalFrames()
				if withBody > total {
					t.Errorf("%s: observed %d frames with body above %d total", strategy, withBody, total)
					return
				}
			}
		}()

		if err := processor.Run(); err != nil {
			t.Fatalf("%s: run failed: %v", strategy, err)
		}
		close(stop)
		observerWg.Wait()
		if err := processor.Close(); err != nil {
			t.Errorf("%s: close failed: %v", strategy, err)
		}
	}
}

// spyEngine records every submitted device timestamp.
type spyEngine struct {
	Engine
	mu        sync.Mutex
	submitted []time.Duration
}

func (s *spyEngine) Submit(c *Capture) error {
	s.mu.Lock()
	s.submitted = append(s.submitted, c.DeviceTimestamp)
	s.mu.Unlock()
	return s.Engine.Submit(c)
}

func TestProcessorNeverSubmitsBelowWindowStart(t *testing.T) {
	start := 330 * time.Millisecond

	for _, strategy := range allStrategies {
		source := NewSliceSource(syntheticRecording(100, 33*time.Millisecond, 0), testConfiguration())
		inner, err := NewQueueEngine(NewEngineConfig(source.Configuration().Calibration, alwaysBodyDetector()))
		if err != nil {
			t.Fatalf("NewQueueEngine failed: %v", err)
		}
		spy := &spyEngine{Engine: inner}
		processor, err := NewProcessorFromSource(source, spy, WindowFrom(start), strategy)
		if err != nil {
			t.Fatalf("%s: NewProcessorFromSource failed: %v", strategy, err)
		}
		if err := processor.Run(); err != nil {
			t.Fatalf("%s: run failed: %v", strategy, err)
		}

		spy.mu.Lock()
		for _, timestamp := range spy.submitted {
			if timestamp < start {
				t.Errorf("%s: capture at %s submitted below window start %s", strategy, timestamp, start)
			}
		}
		count := len(spy.submitted)
		spy.mu.Unlock()
		if count != 90 {
			t.Errorf("%s: expected 90 submissions, got %d", strategy, count)
		}
		if err := processor.Close(); err != nil {
			t.Errorf("%s: close failed: %v", strategy, err)
		}
	}
}

func TestProcessorSeeksToWindowStart(t *testing.T) {
	captures := syntheticRecording(100, 33*time.Millisecond, 0)
	source := NewSliceSource(captures, testConfiguration())
	engine, err := NewQueueEngine(NewEngineConfig(source.Configuration().Calibration, alwaysBodyDetector()))
	if err != nil {
		t.Fatalf("NewQueueEngine failed: %v", err)
	}
	processor, err := NewProcessorFromSource(source, engine, WindowFrom(330*time.Millisecond), SingleThreaded)
	if err != nil {
		t.Fatalf("NewProcessorFromSource failed: %v", err)
	}
	// The seek skips the first ten captures entirely
	if source.pos != 10 {
		t.Errorf("Expected source positioned at capture 10 after seek, got %d", source.pos)
	}
	if err := processor.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestProcessorFailsFastOnUnreachableWindowStart(t *testing.T) {
	source := NewSliceSource(syntheticRecording(10, 33*time.Millisecond, 0), testConfiguration())
	engine, err := NewQueueEngine(NewEngineConfig(source.Configuration().Calibration, alwaysBodyDetector()))
	if err != nil {
		t.Fatalf("NewQueueEngine failed: %v", err)
	}
	defer engine.Close()
	defer source.Close()

	_, err = NewProcessorFromSource(source, engine, WindowFrom(time.Hour), SingleThreaded)
	if !errors.Is(err, ErrSeekOutOfRange) {
		t.Errorf("Expected ErrSeekOutOfRange, got %v", err)
	}
}

func TestProcessorSurfacesBackgroundFailure(t *testing.T) {
	for _, strategy := range []Strategy{BackgroundPop, BackgroundEnqueue} {
		processor := newTestProcessor(t, strategy,
			syntheticRecording(50, 33*time.Millisecond, 0), failingAfterDetector(10), UnboundedWindow())

		err := processor.Run()
		if err == nil {
			t.Fatalf("%s: expected run to fail", strategy)
		}
		// Results completed before the failure stay counted
		if processor.FramesWithBody() > processor.TotalFrames() {
			t.Errorf("%s: counters inverted after failure: %d with body, %d total",
				strategy, processor.FramesWithBody(), processor.TotalFrames())
		}
		if err := processor.Close(); err != nil {
			t.Errorf("%s: close failed: %v", strategy, err)
		}
	}
}

func TestProcessorCloseMidStream(t *testing.T) {
	for _, strategy := range []Strategy{BackgroundPop, BackgroundEnqueue} {
		processor := newTestProcessor(t, strategy,
			syntheticRecording(500, time.Millisecond, 0),
			slowDetector(2*time.Millisecond, alwaysBodyDetector()), UnboundedWindow())

		for i := 0; i < 10; i++ {
			if _, err := processor.Advance(); err != nil {
				t.Fatalf("%s: advance %d failed: %v", strategy, i, err)
			}
		}
		if err := processor.Close(); err != nil {
			t.Fatalf("%s: close mid-stream failed: %v", strategy, err)
		}
		if _, err := processor.Advance(); !errors.Is(err, ErrProcessorClosed) {
			t.Errorf("%s: expected ErrProcessorClosed after close, got %v", strategy, err)
		}
		// Close is idempotent
		if err := processor.Close(); err != nil {
			t.Errorf("%s: second close failed: %v", strategy, err)
		}
	}
}

func TestProcessorReport(t *testing.T) {
	processor := newTestProcessor(t, SingleThreaded,
		syntheticRecording(30, 33*time.Millisecond, 0), alwaysBodyDetector(), UnboundedWindow())
	defer processor.Close()

	if err := processor.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	report := processor.Report()
	if report.TotalFrames != 30 || report.FramesWithBody != 30 {
		t.Errorf("Expected 30/30 frames in report, got %d/%d", report.TotalFrames, report.FramesWithBody)
	}
	if report.Elapsed <= 0 {
		t.Errorf("Expected positive elapsed time, got %s", report.Elapsed)
	}
	if report.FPS <= 0 {
		t.Errorf("Expected positive throughput, got %f", report.FPS)
	}
	if report.Strategy != SingleThreaded {
		t.Errorf("Expected strategy %s, got %s", SingleThreaded, report.Strategy)
	}

	frozen := processor.Report()
	if frozen.Elapsed != report.Elapsed {
		t.Errorf("Expected elapsed frozen after finish: %s, then %s", report.Elapsed, frozen.Elapsed)
	}
}
