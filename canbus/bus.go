package canbus

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yiweisong/ace-can/internal/busmust"
	"github.com/yiweisong/ace-can/internal/pcan"
)

// backend is the capability set both vendor adapters implement. An adapter
// is selected once at construction and never switched.
type backend interface {
	// send transmits one frame synchronously on the caller's goroutine.
	send(f Frame) *Error
	// waitAndDrain blocks on the backend's notification primitive (bounded)
	// and drains available frames into the sink. It reports false when the
	// receive loop must exit.
	waitAndDrain(s drainSink) bool
	// close releases the backend handle(s). Idempotent.
	close() error
}

// SDK loaders, replaced by tests to inject fakes.
var (
	loadBusmust = func() (busmust.API, error) { return busmust.Load() }
	loadPCAN    = func() (pcan.API, error) { return pcan.Load() }
)

// Option configures a Bus at construction.
type Option func(*Bus)

// WithLogger attaches a logger to the session. The default is zap.NewNop.
func WithLogger(log *zap.Logger) Option {
	return func(b *Bus) {
		if log != nil {
			b.log = log
		}
	}
}

// Bus is one open CAN session over a single backend channel.
//
// Send may be called from any goroutine; the backends' write calls do their
// own locking. Listener registration and Close are safe for concurrent use.
// Close must be called to release the backend handle.
type Bus struct {
	log  *zap.Logger
	disp *dispatcher

	mu   sync.Mutex
	open bool
	be   backend
	loop *receiveLoop
}

// New opens a session on the given logical channel. The bus-type token is
// matched case-insensitively and "busust" is accepted as an alias for
// "busmust". On any failure no session exists, no goroutine has started and
// nothing is left half-open.
func New(channel int, bustype string, bitrate int, opts ...Option) (*Bus, error) {
	b := &Bus{log: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}

	var (
		be  backend
		err error
	)
	switch t := normalizeBusType(bustype); t {
	case BusTypeBusmust:
		var api busmust.API
		if api, err = loadBusmust(); err == nil {
			be, err = openBusmust(api, channel, bitrate, b.log)
		}
	case BusTypePCAN:
		var api pcan.API
		if api, err = loadPCAN(); err == nil {
			be, err = openPCAN(api, channel, bitrate, b.log)
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedBusType, bustype)
	}
	if err != nil {
		return nil, err
	}

	b.be = be
	b.open = true
	b.disp = newDispatcher(b.log)
	go b.disp.run()
	b.log.Debug("bus opened",
		zap.String("bustype", normalizeBusType(bustype)),
		zap.Int("channel", channel),
		zap.Int("bitrate", bitrate))
	return b, nil
}

// Send transmits one frame. It fails when the session is closed or the
// identifier is out of range, and surfaces backend write failures both as
// the returned error and as an error event to a registered listener.
func (b *Bus) Send(f Frame) error {
	if f.ID > maxExtID {
		return fmt.Errorf("%w: 0x%X", ErrInvalidID, f.ID)
	}
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		return ErrClosed
	}
	be := b.be
	b.mu.Unlock()

	if serr := be.send(f); serr != nil {
		b.emitError(serr)
		return serr
	}
	return nil
}

// OnMessage registers the message listener and starts the receive loop.
// A second registration fails with ErrListenerRegistered.
func (b *Bus) OnMessage(fn func(Frame)) error {
	if fn == nil {
		return fmt.Errorf("canbus: nil message listener")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return ErrClosed
	}
	if err := b.disp.setMessage(fn); err != nil {
		return err
	}
	b.startReceiveLoopLocked()
	return nil
}

// OnError registers the error listener. Backend errors with no listener
// registered are dropped.
func (b *Bus) OnError(fn func(*Error)) error {
	if fn == nil {
		return fmt.Errorf("canbus: nil error listener")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return ErrClosed
	}
	return b.disp.setError(fn)
}

// OnClose registers the close listener, invoked exactly once as the final
// dispatch of Close.
func (b *Bus) OnClose(fn func()) error {
	if fn == nil {
		return fmt.Errorf("canbus: nil close listener")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return ErrClosed
	}
	return b.disp.setClose(fn)
}

// Close stops and joins the receive loop, flushes the dispatch queue,
// invokes the close listener last, releases all listeners and tears down
// the backend. Calling it again is a no-op.
func (b *Bus) Close() error {
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		return nil
	}
	b.open = false
	loop := b.loop
	b.loop = nil
	be := b.be
	b.mu.Unlock()

	if loop != nil {
		loop.halt()
	}
	if closeFn := b.disp.shutdown(); closeFn != nil {
		closeFn()
	}
	var err error
	if be != nil {
		err = be.close()
	}
	b.log.Debug("bus closed")
	return err
}

// startReceiveLoopLocked is idempotent; callers hold b.mu.
func (b *Bus) startReceiveLoopLocked() {
	if b.loop != nil {
		return
	}
	b.loop = newReceiveLoop(b)
	go b.loop.run()
}

// activeBackend returns the backend while the session is open, nil
// otherwise.
func (b *Bus) activeBackend() backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return nil
	}
	return b.be
}

func (b *Bus) emitError(e *Error) {
	if !b.disp.postError(e) {
		b.log.Debug("error event not posted, dispatcher stopped",
			zap.Uint32("code", e.Code), zap.String("message", e.Message))
	}
}
