package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authflow/internal/logging"
)

// Config controls dispatcher delivery.
type Config struct {
	// Async hands events to a background goroutine. When false, Emit delivers
	// inline and returns once the sink has accepted the event.
	Async       bool
	BufferSize  int
	DropIfFull  bool
	EmitTimeout time.Duration
}

// Dispatcher forwards audit events to a sink, either inline or through a
// buffered channel drained by one goroutine.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	log       logging.Logger
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(cfg Config, sink Sink, log logging.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if log == nil {
		log = logging.Discard()
	}

	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		log:  log,
		done: make(chan struct{}),
	}

	if cfg.Async {
		d.ch = make(chan Event, cfg.BufferSize)
		d.wg.Add(1)
		go d.run()
	}

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(context.Background(), event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	if d.cfg.EmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.EmitTimeout)
		defer cancel()
	}
	if err := d.sink.Emit(ctx, event); err != nil {
		d.failed.Add(1)
		d.log.Error(ctx, "audit sink rejected event",
			"kind", event.Kind,
			"state", event.State,
			"error", err,
		)
	}
}

// Emit forwards event. It never returns an error; sink failures are counted
// and logged.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if !d.cfg.Async {
		// Detached so a cancelled request still records its outcome.
		d.deliver(context.WithoutCancel(ctx), event)
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.done:
	}
}

// Close stops accepting events and drains the buffer.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
