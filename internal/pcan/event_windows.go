//go:build windows

package pcan

import (
	"fmt"
	"time"

	"golang.org/x/sys/windows"
)

// eventWaiter waits on the auto-reset event object registered as the
// channel's receive event.
type eventWaiter struct {
	event windows.Handle
}

func (w *eventWaiter) Wait(timeout time.Duration) (bool, error) {
	r, err := windows.WaitForSingleObject(w.event, uint32(timeout/time.Millisecond))
	switch r {
	case windows.WAIT_OBJECT_0:
		return true, nil
	case uint32(windows.WAIT_TIMEOUT):
		return false, nil
	default:
		if err == nil {
			err = fmt.Errorf("wait returned 0x%X", r)
		}
		return false, fmt.Errorf("pcan: receive event wait failed: %w", err)
	}
}

func (w *eventWaiter) Close() error {
	return windows.CloseHandle(w.event)
}
