package kernelsocket

import (
	"fmt"
	"net"

	"github.com/higebu/netfd"
	"golang.org/x/sys/unix"
)

// FromNetConn bridges a stdlib net.Conn (e.g. handed in by a caller that
// resolved names or dialed TLS outside this core — both explicitly out of
// scope per spec §1) into a non-blocking FD handle this adapter can drive.
// The conn's fd is duplicated so the two don't race each other on Close.
func FromNetConn(conn net.Conn) (*FD, error) {
	orig := netfd.GetFdFromConn(conn)
	if orig < 0 {
		return nil, fmt.Errorf("kernelsocket: could not extract fd from %T", conn)
	}
	dup, err := unix.Dup(orig)
	if err != nil {
		return nil, fmt.Errorf("kernelsocket: dup: %w", err)
	}
	if err := unix.SetNonblock(dup, true); err != nil {
		unix.Close(dup)
		return nil, fmt.Errorf("kernelsocket: set nonblock: %w", err)
	}
	return &FD{fd: dup}, nil
}
