package canbus

import (
	"sync"

	"go.uber.org/zap"
)

// Queue depth between the receive loop and the dispatch goroutine. The
// receive loop blocks when the queue is full, which backpressures the drain.
const dispatchQueueDepth = 256

type eventType int

const (
	eventMessage eventType = iota
	eventError
)

type event struct {
	typ   eventType
	frame Frame
	err   *Error
}

// dispatcher hands events from the receive loop (or a failing Send) to the
// registered listeners. A single goroutine drains the queue, so listeners
// observe events one at a time, in posting order, and are never called from
// the receive loop's goroutine.
type dispatcher struct {
	log    *zap.Logger
	events chan event
	quit   chan struct{}
	dead   chan struct{}

	mu      sync.Mutex
	quitted bool
	msgFn   func(Frame)
	errFn   func(*Error)
	closeFn func()
}

func newDispatcher(log *zap.Logger) *dispatcher {
	return &dispatcher{
		log:    log,
		events: make(chan event, dispatchQueueDepth),
		quit:   make(chan struct{}),
		dead:   make(chan struct{}),
	}
}

// run drains the queue until shutdown. A panicking listener kills the
// dispatcher; post then reports failure and the receive loop exits cleanly.
func (d *dispatcher) run() {
	defer close(d.dead)
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("event listener panicked", zap.Any("panic", r))
		}
	}()
	for {
		select {
		case <-d.quit:
			// Deliver what is already queued before going away.
			for {
				select {
				case ev := <-d.events:
					d.dispatch(ev)
				default:
					return
				}
			}
		case ev := <-d.events:
			d.dispatch(ev)
		}
	}
}

func (d *dispatcher) dispatch(ev event) {
	d.mu.Lock()
	msgFn, errFn := d.msgFn, d.errFn
	d.mu.Unlock()

	switch ev.typ {
	case eventMessage:
		if msgFn != nil {
			msgFn(ev.frame)
		}
	case eventError:
		if errFn != nil {
			errFn(ev.err)
		} else {
			// No error listener registered: the caller opted out of
			// error visibility. Leave a trace for operators.
			d.log.Debug("dropping error event without listener",
				zap.Uint32("code", ev.err.Code),
				zap.String("message", ev.err.Message))
		}
	}
}

// post enqueues an event, blocking while the queue is full. It reports false
// once the dispatcher is shutting down or has died.
func (d *dispatcher) post(ev event) bool {
	select {
	case d.events <- ev:
		return true
	case <-d.quit:
		return false
	case <-d.dead:
		return false
	}
}

func (d *dispatcher) postMessage(f Frame) bool { return d.post(event{typ: eventMessage, frame: f}) }
func (d *dispatcher) postError(e *Error) bool  { return d.post(event{typ: eventError, err: e}) }

func (d *dispatcher) setMessage(fn func(Frame)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.msgFn != nil {
		return ErrListenerRegistered
	}
	d.msgFn = fn
	return nil
}

func (d *dispatcher) setError(fn func(*Error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.errFn != nil {
		return ErrListenerRegistered
	}
	d.errFn = fn
	return nil
}

func (d *dispatcher) setClose(fn func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closeFn != nil {
		return ErrListenerRegistered
	}
	d.closeFn = fn
	return nil
}

// shutdown stops the goroutine, waits for queued events to be delivered and
// releases the listeners. It returns the close listener, which the caller
// invokes as the final dispatch.
func (d *dispatcher) shutdown() func() {
	d.mu.Lock()
	if !d.quitted {
		d.quitted = true
		close(d.quit)
	}
	d.mu.Unlock()
	<-d.dead

	d.mu.Lock()
	closeFn := d.closeFn
	d.msgFn, d.errFn, d.closeFn = nil, nil, nil
	d.mu.Unlock()
	return closeFn
}
