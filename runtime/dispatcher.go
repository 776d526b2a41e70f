package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/checkpoint/types"
)

/**
 * dispatcher queues evaluated events and hands them to the report sink
 * in batches, from a worker pool. Enqueue never blocks: when the queue
 * bound is hit the event is dropped with a warning, since reporting is
 * an observability concern and must not slow a business handler.
 */
type dispatcher struct {
	mu sync.Mutex

	wp   *workerpool.WorkerPool
	sink types.ReportSink

	batchSize  int
	maxQueue   int
	maxRetries int
	backoff    time.Duration
	interval   time.Duration

	queue   []*types.Event
	dropped int64

	ctx    context.Context
	cancel context.CancelFunc
	exitCh chan struct{}
	closed bool
}

func newDispatcher(sink types.ReportSink, opts *types.Options) *dispatcher {
	d := &dispatcher{
		wp:         workerpool.New(opts.DeliveryWorkers),
		sink:       sink,
		batchSize:  opts.BatchSize,
		maxQueue:   opts.MaxQueueSize,
		maxRetries: opts.MaxDeliveryRetries,
		backoff:    opts.DeliveryBackoff,
		interval:   opts.BatchInterval,
	}
	d.ctx, d.cancel = context.WithCancel(opts.Ctx)
	d.asyncRun()
	return d
}

func (d *dispatcher) asyncRun() {
	readyCh := make(chan struct{}, 1)

	go func() {
		d.exitCh = make(chan struct{})
		close(readyCh)

		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.flush()
			case <-d.ctx.Done():
				close(d.exitCh)
				return
			}
		}
	}()
	<-readyCh
}

func (d *dispatcher) enqueue(ev *types.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.dropped++
		return
	}
	if len(d.queue) >= d.maxQueue {
		d.dropped++
		log.Warnf("report queue full (%d), dropping %s.%s run %s", d.maxQueue, ev.Flow, ev.NodeID, ev.RunID)
		return
	}
	d.queue = append(d.queue, ev)
	if len(d.queue) >= d.batchSize {
		d.flushLocked()
	}
}

func (d *dispatcher) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.flushLocked()
}

func (d *dispatcher) flushLocked() {
	for len(d.queue) > 0 {
		n := d.batchSize
		if n > len(d.queue) {
			n = len(d.queue)
		}
		// cap the batch so later appends can not alias into it
		batch := d.queue[:n:n]
		d.queue = d.queue[n:]
		d.wp.Submit(func() {
			d.deliver(batch)
		})
	}
	d.queue = nil
}

func (d *dispatcher) deliver(batch []*types.Event) {
	var err error
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		if err = d.sink.Submit(d.ctx, batch); err == nil {
			return
		}

		switch e := classify(err).(type) {
		case *types.FatalError:
			log.Errorf("report batch of %d rejected: %v", len(batch), err)
			return
		case *types.RetryError:
			d.sleep(e.Backoff)
		default:
			d.sleep(d.backoff)
		}
	}
	log.Errorf("dropping report batch of %d after %d attempts: %v", len(batch), d.maxRetries, err)
}

// classify digs a typed delivery error out of an annotated chain.
func classify(err error) error {
	switch err.(type) {
	case *types.RetryError, *types.FatalError:
		return err
	}
	switch cause := errors.Cause(err).(type) {
	case *types.RetryError, *types.FatalError:
		return cause
	}
	return nil
}

func (d *dispatcher) sleep(backoff time.Duration) {
	select {
	case <-time.After(backoff):
	case <-d.ctx.Done():
	}
}

func (d *dispatcher) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.queue)
}

func (d *dispatcher) droppedCount() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.dropped
}

/**
 * close flushes whatever is queued, waits for in-flight deliveries,
 * then stops the interval loop. Events enqueued afterwards are dropped.
 */
func (d *dispatcher) close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.flushLocked()
	d.mu.Unlock()

	d.wp.StopWait()
	d.cancel()
	if d.exitCh != nil {
		<-d.exitCh
	}
	return nil
}
