// Package canbus provides a single event-driven CAN bus abstraction over two
// vendor SDK backends: Busmust BMAPI devices and PEAK PCANBasic channels.
//
// A Bus owns exactly one open backend channel. Frames are sent synchronously
// with Send; received frames, backend errors and the close notification are
// delivered to registered listeners in order, one at a time, from a single
// dispatch goroutine. The receive loop starts lazily when the first message
// listener is registered and is stopped and joined by Close.
package canbus
