//go:build !linux
// +build !linux

package kernelsocket

import "fmt"

// EpollPoller is unavailable off Linux; Adapter.New falls back to
// busy-progress wakers on these platforms.
type EpollPoller struct{}

func newEpollPoller() (*EpollPoller, error) {
	return nil, fmt.Errorf("kernelsocket: epoll not supported on this platform")
}

func (p *EpollPoller) WaitReadable(fd int, wake func()) error { return nil }
func (p *EpollPoller) WaitWritable(fd int, wake func()) error { return nil }
func (p *EpollPoller) Unregister(fd int)                      {}
func (p *EpollPoller) Poll(timeoutMs int) error                { return nil }
func (p *EpollPoller) Close() error                            { return nil }
