//go:build !windows

package busmust

import "fmt"

// Load reports the SDK as unavailable; the Busmust runtime library is only
// bound on Windows.
func Load() (API, error) {
	return nil, fmt.Errorf("busmust: bmapi is not supported on this platform")
}
