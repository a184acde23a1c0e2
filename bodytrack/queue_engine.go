package bodytrack

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/enriquebris/goconcurrentqueue"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// QueueEngine is the reference Engine implementation: a bounded submission
// queue drained by a single worker goroutine that runs detection, matches
// detections to Kalman-tracked bodies and emits BodyFrames in submission
// order.
//
// Capacity accounting: a slot is taken on Submit and given back on
// TryRetrieve, so queue depth (submitted minus retrieved) can never exceed
// the configured capacity and Submit blocks while it would.
type QueueEngine struct {
	cfg EngineConfig

	slots   chan struct{}
	pending *queue.RingBuffer
	results *goconcurrentqueue.FIFO
	depth   atomic.Int64

	done      chan struct{}
	failed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	failMu  sync.Mutex
	failErr error

	// Worker-owned tracking state, never touched from other goroutines
	bodies map[uuid.UUID]*trackedBody
}

// NewQueueEngine creates and starts a QueueEngine.
func NewQueueEngine(cfg EngineConfig) (*QueueEngine, error) {
	if cfg.QueueCapacity <= 0 {
		return nil, errors.Errorf("queue capacity must be positive, got %d", cfg.QueueCapacity)
	}
	if cfg.Detector == nil {
		return nil, errors.New("engine requires a detector")
	}
	if cfg.DT <= 0 {
		cfg.DT = 1.0 / 30.0
	}
	eng := &QueueEngine{
		cfg:     cfg,
		slots:   make(chan struct{}, cfg.QueueCapacity),
		pending: queue.NewRingBuffer(uint64(cfg.QueueCapacity)),
		results: goconcurrentqueue.NewFIFO(),
		done:    make(chan struct{}),
		failed:  make(chan struct{}),
		bodies:  make(map[uuid.UUID]*trackedBody),
	}
	eng.wg.Add(1)
	go eng.worker()
	return eng, nil
}

// Submit hands a capture to the engine, blocking while the queue is full.
func (eng *QueueEngine) Submit(c *Capture) error {
	if err := eng.failure(); err != nil {
		return err
	}
	select {
	case eng.slots <- struct{}{}:
	case <-eng.done:
		return ErrEngineClosed
	case <-eng.failed:
		return eng.failure()
	}
	eng.depth.Add(1)
	if err := eng.pending.Put(c); err != nil {
		// Ring buffer disposed mid-submit: give the slot back
		<-eng.slots
		eng.depth.Add(-1)
		return ErrEngineClosed
	}
	return nil
}

// TryRetrieve waits up to timeout for the next result in submission order.
func (eng *QueueEngine) TryRetrieve(timeout time.Duration) (*BodyFrame, error) {
	select {
	case <-eng.done:
		return nil, ErrEngineClosed
	default:
	}
	if eng.results.GetLen() == 0 {
		if err := eng.failure(); err != nil {
			return nil, err
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	item, err := eng.results.DequeueOrWaitForNextElementContext(ctx)
	if err != nil {
		select {
		case <-eng.done:
			return nil, ErrEngineClosed
		default:
		}
		if ferr := eng.failure(); ferr != nil {
			return nil, ferr
		}
		// Timed out with no result ready
		return nil, nil
	}
	<-eng.slots
	eng.depth.Add(-1)
	return item.(*BodyFrame), nil
}

// QueueDepth returns the number of submitted-but-not-yet-retrieved captures.
func (eng *QueueEngine) QueueDepth() int {
	return int(eng.depth.Load())
}

// Close stops accepting submissions, unblocks waiters, joins the worker and
// discards in-flight work. Safe to call more than once.
func (eng *QueueEngine) Close() error {
	eng.closeOnce.Do(func() {
		close(eng.done)
		eng.pending.Dispose()
		eng.wg.Wait()
	})
	return nil
}

func (eng *QueueEngine) fail(err error) {
	eng.failMu.Lock()
	if eng.failErr == nil {
		eng.failErr = err
	}
	eng.failMu.Unlock()
	close(eng.failed)
}

func (eng *QueueEngine) failure() error {
	eng.failMu.Lock()
	defer eng.failMu.Unlock()
	return eng.failErr
}

// worker drains the submission queue one capture at a time. Single worker
// keeps result order identical to submission order.
func (eng *QueueEngine) worker() {
	defer eng.wg.Done()
	for {
		item, err := eng.pending.Get()
		if err != nil {
			// Disposed during Close
			return
		}
		frame, err := eng.process(item.(*Capture))
		if err != nil {
			eng.fail(err)
			return
		}
		if err := eng.results.Enqueue(frame); err != nil {
			eng.fail(errors.Wrap(err, "can't enqueue tracking result"))
			return
		}
	}
}

// process runs one capture through detection and tracking. The capture is
// released here regardless of outcome.
func (eng *QueueEngine) process(c *Capture) (*BodyFrame, error) {
	defer c.Release()
	detections, err := eng.cfg.Detector(c)
	if err != nil {
		return nil, errors.Wrap(err, "detector failed")
	}
	bodies, err := eng.track(detections)
	if err != nil {
		return nil, errors.Wrap(err, "can't match detections to bodies")
	}
	return &BodyFrame{
		DeviceTimestamp: c.DeviceTimestamp,
		Bodies:          bodies,
		IndexMap:        newBodyIndexMap(c.Color.Width, c.Color.Height, bodies),
	}, nil
}

// track matches detections against live bodies, spawns new bodies for
// unmatched detections and expires bodies gone for too long. Returned bodies
// follow detection order, so the index map stays stable per frame.
func (eng *QueueEngine) track(detections []Detection) ([]Body, error) {
	for _, body := range eng.bodies {
		body.predictNextPosition()
	}

	ids := make([]uuid.UUID, 0, len(eng.bodies))
	boxes := make([]Rectangle, 0, len(eng.bodies))
	for id, body := range eng.bodies {
		ids = append(ids, id)
		boxes = append(boxes, body.predictedBBox())
	}

	frameBodies := make([]*trackedBody, len(detections))
	matchedThisFrame := make(map[uuid.UUID]struct{})

	iouMatrix := buildIoUMatrix(boxes, detections)
	for _, match := range eng.assign(iouMatrix) {
		trackIdx, detIdx := match[0], match[1]
		if iouMatrix[trackIdx][detIdx] < eng.cfg.MinIoU {
			continue
		}
		body := eng.bodies[ids[trackIdx]]
		if err := body.update(detections[detIdx]); err != nil {
			return nil, errors.Wrapf(err, "Can't update body with id %s", body.id.String())
		}
		frameBodies[detIdx] = body
		matchedThisFrame[body.id] = struct{}{}
	}

	// Unmatched detections spawn new bodies
	for detIdx, det := range detections {
		if frameBodies[detIdx] != nil {
			continue
		}
		body := newTrackedBody(det.BBox, eng.cfg.DT)
		eng.bodies[body.id] = body
		frameBodies[detIdx] = body
		matchedThisFrame[body.id] = struct{}{}
	}

	// Age out bodies that were not seen this frame
	for id, body := range eng.bodies {
		if _, found := matchedThisFrame[id]; found {
			continue
		}
		body.noMatchTimes++
		if body.noMatchTimes >= eng.cfg.MaxDisappeared {
			delete(eng.bodies, id)
		}
	}

	out := make([]Body, len(frameBodies))
	for i, body := range frameBodies {
		out[i] = Body{
			ID:     body.id,
			BBox:   body.currentBBox,
			Center: body.currentCenter,
		}
	}
	return out, nil
}
