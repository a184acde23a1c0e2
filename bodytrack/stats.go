package bodytrack

import (
	"sync"
	"time"
)

// Report is a snapshot of a processing run, used to compare throughput
// between strategies.
type Report struct {
	Strategy       Strategy
	TotalFrames    int64
	FramesWithBody int64
	Elapsed        time.Duration
	FPS            float64
}

// Report snapshots the current counters. Once the run has finished the
// elapsed time is frozen at the moment Advance first reported no more work.
func (p *Processor) Report() Report {
	elapsed := time.Since(p.startedAt)
	if finished := p.finishedNs.Load(); finished != 0 {
		elapsed = time.Unix(0, finished).Sub(p.startedAt)
	}
	total := p.totalFrames.Load()
	fps := 0.0
	if elapsed > 0 {
		fps = float64(total) / elapsed.Seconds()
	}
	return Report{
		Strategy:       p.strategy,
		TotalFrames:    total,
		FramesWithBody: p.framesWithBody.Load(),
		Elapsed:        elapsed,
		FPS:            fps,
	}
}

// DepthSample is one queue-depth observation relative to sampler start.
type DepthSample struct {
	At    time.Duration
	Depth int
}

// DepthSampler polls a processor's queue depth on a fixed interval from its
// own goroutine, for offline throughput analysis.
type DepthSampler struct {
	samples []DepthSample
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// SampleDepth starts sampling the processor's queue depth every interval.
func SampleDepth(p *Processor, interval time.Duration) *DepthSampler {
	s := &DepthSampler{
		stopCh: make(chan struct{}),
	}
	started := time.Now()
	ticker := time.NewTicker(interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.samples = append(s.samples, DepthSample{
					At:    time.Since(started),
					Depth: p.QueueDepth(),
				})
			}
		}
	}()
	return s
}

// Stop ends sampling and returns the collected samples.
func (s *DepthSampler) Stop() []DepthSample {
	close(s.stopCh)
	s.wg.Wait()
	return s.samples
}
