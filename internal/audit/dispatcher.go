package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking: events that find the buffer full
	// are counted and discarded.
	DropIfFull bool
}

// Dispatcher hands events to a Sink from one background goroutine so the
// request path never waits on a slow sink. A nil *Dispatcher discards
// everything.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool

	events chan Event
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	dropped atomic.Uint64
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		events:     make(chan Event, size),
	}
	d.wg.Add(1)
	go d.worker()
	return d
}

// worker exits once Close has closed events and the buffer is empty.
func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for event := range d.events {
		d.sink.Emit(context.Background(), event)
	}
}

// Emit enqueues event. In blocking mode it waits for buffer space until ctx
// is done; a cancelled wait counts as a drop. Emit after Close is ignored.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.events <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.events <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close stops intake and returns after every buffered event reached the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
