package bodytrack

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Strategy selects the thread topology of a Processor.
type Strategy uint8

const (
	// SingleThreaded reads, submits and retrieves on the driving goroutine
	SingleThreaded Strategy = iota
	// BackgroundPop retrieves results on a background goroutine while the
	// driving goroutine reads and submits
	BackgroundPop
	// BackgroundEnqueue reads and submits on a background goroutine while
	// the driving goroutine retrieves results
	BackgroundEnqueue
)

func (s Strategy) String() string {
	switch s {
	case SingleThreaded:
		return "single-threaded"
	case BackgroundPop:
		return "background-pop"
	case BackgroundEnqueue:
		return "background-enqueue"
	default:
		return "unknown"
	}
}

// ErrProcessorClosed is returned by Advance after Close has begun.
var ErrProcessorClosed = errors.New("processor closed")

// defaultPollTimeout bounds a single blocking wait on the engine so stop
// signals and drain conditions are re-checked regularly.
const defaultPollTimeout = 50 * time.Millisecond

// Processor drives captures from a Source through an Engine under one of
// three concurrency strategies, keeping identical frame counts regardless of
// topology.
//
// The two counters are the only state shared between goroutines; they are
// atomic, so observers polling mid-run see monotonically consistent values
// and FramesWithBody never exceeds TotalFrames.
type Processor struct {
	source      Source
	engine      Engine
	window      Window
	strategy    Strategy
	startOffset time.Duration
	pollTimeout time.Duration

	totalFrames    atomic.Int64
	framesWithBody atomic.Int64
	submitted      atomic.Int64
	retrieved      atomic.Int64

	// BackgroundPop: driving goroutine reached end of stream
	doneSubmitting atomic.Bool
	// BackgroundEnqueue: background goroutine reached end of stream
	exhausted atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup

	bgMu  sync.Mutex
	bgErr error

	closeOnce sync.Once
	closeErr  error

	startedAt  time.Time
	finishedNs atomic.Int64
}

// NewProcessor opens the recording at path and wires it to a QueueEngine
// configured from the recording's calibration.
func NewProcessor(path string, detector Detector, window Window, strategy Strategy) (*Processor, error) {
	source, err := OpenVideoSource(path)
	if err != nil {
		return nil, err
	}
	engine, err := NewQueueEngine(NewEngineConfig(source.Configuration().Calibration, detector))
	if err != nil {
		_ = source.Close()
		return nil, err
	}
	processor, err := NewProcessorFromSource(source, engine, window, strategy)
	if err != nil {
		_ = engine.Close()
		_ = source.Close()
		return nil, err
	}
	return processor, nil
}

// NewProcessorFromSource wires an already-open source and engine. The
// processor takes ownership of both and releases them on Close. If the
// window has a start bound the source is seeked there before any capture is
// consumed; an unreachable start fails construction and ownership stays with
// the caller.
func NewProcessorFromSource(source Source, engine Engine, window Window, strategy Strategy) (*Processor, error) {
	if window.Start != nil {
		if err := source.Seek(*window.Start); err != nil {
			return nil, errors.Wrap(err, "can't seek to window start")
		}
	}
	p := &Processor{
		source:      source,
		engine:      engine,
		window:      window,
		strategy:    strategy,
		startOffset: source.Configuration().StartOffset,
		pollTimeout: defaultPollTimeout,
		stopCh:      make(chan struct{}),
		startedAt:   time.Now(),
	}
	switch strategy {
	case BackgroundPop:
		p.wg.Add(1)
		go p.popLoop()
	case BackgroundEnqueue:
		p.wg.Add(1)
		go p.enqueueLoop()
	}
	return p, nil
}

// TotalFrames returns the number of captures submitted to the engine so far.
func (p *Processor) TotalFrames() int64 {
	return p.totalFrames.Load()
}

// FramesWithBody returns the number of results carrying at least one body.
func (p *Processor) FramesWithBody() int64 {
	return p.framesWithBody.Load()
}

// QueueDepth reports the engine's current queue occupancy.
func (p *Processor) QueueDepth() int {
	return p.engine.QueueDepth()
}

// Configuration returns the recorded stream's metadata.
func (p *Processor) Configuration() RecordConfiguration {
	return p.source.Configuration()
}

// TotalDuration returns the length of the recording.
func (p *Processor) TotalDuration() time.Duration {
	return p.source.TotalDuration()
}

// Strategy returns the processor's thread topology.
func (p *Processor) Strategy() Strategy {
	return p.strategy
}

// Advance drives one unit of pipeline progress and reports whether more work
// remains. Errors from a background goroutine surface here on the call after
// they occur; counters accumulated up to that point stay valid.
func (p *Processor) Advance() (bool, error) {
	select {
	case <-p.stopCh:
		return false, ErrProcessorClosed
	default:
	}
	more, err := p.advance()
	if !more && err == nil {
		p.finishedNs.CompareAndSwap(0, time.Now().UnixNano())
	}
	return more, err
}

// Run repeatedly calls Advance until the stream is exhausted or processing
// fails.
func (p *Processor) Run() error {
	for {
		more, err := p.Advance()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

func (p *Processor) advance() (bool, error) {
	switch p.strategy {
	case SingleThreaded:
		return p.advanceSingle()
	case BackgroundPop:
		return p.advancePop()
	case BackgroundEnqueue:
		return p.advanceEnqueue()
	default:
		return false, errors.Errorf("unknown strategy %d", p.strategy)
	}
}

// advanceSingle performs read, filter, submit and blocking retrieve for one
// capture, fully serialized.
func (p *Processor) advanceSingle() (bool, error) {
	c, err := p.source.Next()
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "can't read next capture")
	}
	if !p.window.Accepts(c, p.startOffset) {
		c.Release()
		return true, nil
	}
	p.totalFrames.Add(1)
	if err := p.engine.Submit(c); err != nil {
		return false, errors.Wrap(err, "can't submit capture")
	}
	for {
		frame, err := p.engine.TryRetrieve(p.pollTimeout)
		if err != nil {
			return false, errors.Wrap(err, "can't retrieve tracking result")
		}
		if frame == nil {
			continue
		}
		if frame.HasBody() {
			p.framesWithBody.Add(1)
		}
		frame.Release()
		return true, nil
	}
}

// advancePop reads, filters and submits one capture; a background goroutine
// consumes results. At end of stream it waits for the background goroutine
// to drain outstanding results before reporting finished.
func (p *Processor) advancePop() (bool, error) {
	if err := p.backgroundErr(); err != nil {
		return false, err
	}
	c, err := p.source.Next()
	if err == io.EOF {
		p.doneSubmitting.Store(true)
		p.wg.Wait()
		return false, p.backgroundErr()
	}
	if err != nil {
		return false, errors.Wrap(err, "can't read next capture")
	}
	if !p.window.Accepts(c, p.startOffset) {
		c.Release()
		return true, nil
	}
	p.totalFrames.Add(1)
	p.submitted.Add(1)
	if err := p.engine.Submit(c); err != nil {
		return false, errors.Wrap(err, "can't submit capture")
	}
	return true, nil
}

// popLoop retrieves completed results until submissions are done and every
// submitted capture has been accounted for.
func (p *Processor) popLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}
		frame, err := p.engine.TryRetrieve(p.pollTimeout)
		if err != nil {
			p.recordBgErr(errors.Wrap(err, "can't retrieve tracking result"))
			return
		}
		if frame == nil {
			if p.doneSubmitting.Load() && p.retrieved.Load() == p.submitted.Load() {
				return
			}
			continue
		}
		if frame.HasBody() {
			p.framesWithBody.Add(1)
		}
		frame.Release()
		p.retrieved.Add(1)
		if p.doneSubmitting.Load() && p.retrieved.Load() == p.submitted.Load() {
			return
		}
	}
}

// advanceEnqueue retrieves one result; a background goroutine reads, filters
// and submits. Finished once the background goroutine hit end of stream and
// every submitted capture has been retrieved.
func (p *Processor) advanceEnqueue() (bool, error) {
	if err := p.backgroundErr(); err != nil {
		return false, err
	}
	if p.exhausted.Load() && p.retrieved.Load() == p.submitted.Load() {
		p.wg.Wait()
		return false, p.backgroundErr()
	}
	frame, err := p.engine.TryRetrieve(p.pollTimeout)
	if err != nil {
		return false, errors.Wrap(err, "can't retrieve tracking result")
	}
	if frame == nil {
		// Nothing ready yet; the caller's next Advance re-polls
		return true, nil
	}
	if frame.HasBody() {
		p.framesWithBody.Add(1)
	}
	frame.Release()
	p.retrieved.Add(1)
	return true, nil
}

// enqueueLoop reads, filters and submits captures until the source is
// exhausted or processing stops.
func (p *Processor) enqueueLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}
		c, err := p.source.Next()
		if err == io.EOF {
			p.exhausted.Store(true)
			return
		}
		if err != nil {
			p.recordBgErr(errors.Wrap(err, "can't read next capture"))
			return
		}
		if !p.window.Accepts(c, p.startOffset) {
			c.Release()
			continue
		}
		p.totalFrames.Add(1)
		p.submitted.Add(1)
		if err := p.engine.Submit(c); err != nil {
			p.recordBgErr(errors.Wrap(err, "can't submit capture"))
			return
		}
	}
}

// recordBgErr keeps the first background error for the next Advance call.
// Errors caused by shutdown itself are expected and not recorded.
func (p *Processor) recordBgErr(err error) {
	select {
	case <-p.stopCh:
		return
	default:
	}
	p.bgMu.Lock()
	if p.bgErr == nil {
		p.bgErr = err
	}
	p.bgMu.Unlock()
}

func (p *Processor) backgroundErr() error {
	p.bgMu.Lock()
	defer p.bgMu.Unlock()
	return p.bgErr
}

// Close stops the background goroutine, releases the tracking engine and
// then the source. Safe on every exit path, including mid-stream, and safe
// to call more than once.
func (p *Processor) Close() error {
	p.closeOnce.Do(func() {
		close(p.stopCh)
		// Closing the engine unblocks a background goroutine stuck in
		// Submit or TryRetrieve.
		engineErr := p.engine.Close()
		p.wg.Wait()
		sourceErr := p.source.Close()
		if engineErr != nil {
			p.closeErr = errors.Wrap(engineErr, "can't release tracking engine")
		} else if sourceErr != nil {
			p.closeErr = errors.Wrap(sourceErr, "can't release source")
		}
	})
	return p.closeErr
}
