//go:build linux

package pcan

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// FDWaiter polls the receive-ready descriptor the SDK exposes through
// PCAN_RECEIVE_EVENT on unix systems.
type FDWaiter struct {
	fd int
}

// NewFDWaiter wraps an already-acquired descriptor.
func NewFDWaiter(fd int) *FDWaiter {
	return &FDWaiter{fd: fd}
}

func (w *FDWaiter) Wait(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, fmt.Errorf("pcan: receive event poll failed: %w", err)
	}
	if n > 0 && fds[0].Revents&unix.POLLIN != 0 {
		return true, nil
	}
	return false, nil
}

// Close drops the descriptor reference. The descriptor itself belongs to the
// SDK and is not closed here.
func (w *FDWaiter) Close() error {
	w.fd = -1
	return nil
}
