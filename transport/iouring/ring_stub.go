//go:build !giouring
// +build !giouring

package iouring

import (
	"fmt"

	"github.com/hioload/libos/transport"
)

// NewRing is available in default builds as a stub; build with -tags
// giouring on a Linux host to get the real io_uring-backed ring.
func NewRing(entries uint32) (Ring, error) {
	return nil, fmt.Errorf("iouring: %w: giouring not enabled; build with -tags giouring", transport.ErrNotSupported)
}
