//go:build !windows && !linux

package pcan

import "fmt"

// Load reports the SDK as unavailable; the PCANBasic runtime library is
// bound only on Windows and Linux.
func Load() (API, error) {
	return nil, fmt.Errorf("pcan: PCANBasic is not supported on this platform")
}
