package canbus

import "time"

// Pacing constants for the receive loop, shared by both backends.
const (
	// Upper bound on one blocking wait, so the stop flag is observed at
	// least this often.
	recvWaitTimeout = 50 * time.Millisecond
	// Idle delay while the session is not (yet, or no longer) open.
	recvNotOpenIdle = 20 * time.Millisecond
	// Backoff after a backend read or wait error.
	recvErrorPause = 10 * time.Millisecond
)

// drainSink is the receive loop as seen from a backend's wait-and-drain
// pass: frame delivery, error reporting and stop observation.
type drainSink interface {
	// deliver hands a frame to the dispatcher. It reports false when the
	// pass must end immediately: stop was requested or dispatch is gone.
	deliver(Frame) bool
	// fault routes a backend error to the error listener.
	fault(code uint32, message string)
	// stopping reports whether stop has been requested.
	stopping() bool
	// pause sleeps interruptibly; false means stop was requested.
	pause(d time.Duration) bool
}

// receiveLoop is the per-session background goroutine. It runs from the
// first message-listener registration until Close signals stop and joins it.
type receiveLoop struct {
	bus  *Bus
	stop chan struct{}
	done chan struct{}
}

func newReceiveLoop(b *Bus) *receiveLoop {
	return &receiveLoop{
		bus:  b,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (l *receiveLoop) run() {
	defer close(l.done)
	for {
		if l.stopping() {
			return
		}
		be := l.bus.activeBackend()
		if be == nil {
			// Not open: either a registration raced ahead of open or a
			// close is in progress. Idle and re-check.
			if !l.pause(recvNotOpenIdle) {
				return
			}
			continue
		}
		if !be.waitAndDrain(l) {
			return
		}
	}
}

// halt signals stop and joins the goroutine. The join is what establishes
// the happens-before edge allowing Close to tear down the backend handle.
func (l *receiveLoop) halt() {
	close(l.stop)
	<-l.done
}

func (l *receiveLoop) stopping() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

func (l *receiveLoop) pause(d time.Duration) bool {
	select {
	case <-l.stop:
		return false
	case <-time.After(d):
		return true
	}
}

func (l *receiveLoop) deliver(f Frame) bool {
	if l.stopping() {
		return false
	}
	return l.bus.disp.postMessage(f)
}

func (l *receiveLoop) fault(code uint32, message string) {
	l.bus.emitError(&Error{Code: code, Message: message})
}
