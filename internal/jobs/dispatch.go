package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// LocalDispatcher runs jobs on an unbounded in-process FIFO queue drained
// by a single background consumer goroutine. The consumer starts lazily on
// first dispatch, exits when the queue drains, and is restarted by the next
// dispatch; a CAS flag guarantees at most one consumer is ever alive.
type LocalDispatcher struct {
	processor Processor
	logger    zerolog.Logger

	mu      sync.Mutex
	queue   []Payload
	running atomic.Bool
}

func NewLocalDispatcher(processor Processor, logger zerolog.Logger) *LocalDispatcher {
	return &LocalDispatcher{processor: processor, logger: logger}
}

// Dispatch enqueues the payload and ensures a consumer is running. It never
// blocks on job processing.
func (d *LocalDispatcher) Dispatch(ctx context.Context, p Payload) error {
	d.mu.Lock()
	d.queue = append(d.queue, p)
	d.mu.Unlock()
	d.ensureConsumer()
	return nil
}

func (d *LocalDispatcher) ensureConsumer() {
	if d.running.CompareAndSwap(false, true) {
		go d.consume()
	}
}

func (d *LocalDispatcher) consume() {
	defer func() {
		d.running.Store(false)
		// A dispatch may have enqueued between the empty pop and the
		// flag reset above; restart so nothing is stranded.
		if d.pending() > 0 {
			d.ensureConsumer()
		}
	}()

	for {
		p, ok := d.pop()
		if !ok {
			return
		}
		d.processOne(p)
	}
}

// processOne isolates one job so a panic never takes down the consumer.
func (d *LocalDispatcher) processOne(p Payload) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Str("job_id", p.JobID).Str("panic", fmt.Sprint(r)).Msg("dispatch: job processing panicked")
		}
	}()

	if err := d.processor.ProcessJob(context.Background(), p); err != nil {
		d.logger.Error().Err(err).Str("job_id", p.JobID).Msg("dispatch: job processing failed")
	}
}

func (d *LocalDispatcher) pop() (Payload, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return Payload{}, false
	}
	p := d.queue[0]
	d.queue = d.queue[1:]
	return p, true
}

func (d *LocalDispatcher) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}
