//go:build !linux && !windows

package platform

import (
	"fmt"
	"runtime"
)

// New fails on platforms without a backend implementation.
func New(browserBin string) (Backend, error) {
	return nil, fmt.Errorf("no platform backend for %s", runtime.GOOS)
}
