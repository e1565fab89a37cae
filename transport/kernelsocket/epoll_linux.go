//go:build linux
// +build linux

package kernelsocket

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// EpollPoller lets futures avoid busy-spinning on EAGAIN: instead of
// re-arming their waker for the very next scheduler pass, they register
// interest in a fd's readability/writability here, and the waker fires once
// epoll reports the fd ready. Adapted from reactor/epoll_reactor.go.
type EpollPoller struct {
	epfd int
	mu   sync.Mutex
	wake map[int]func()
}

func newEpollPoller() (*EpollPoller, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("kernelsocket: epoll_create1: %w", err)
	}
	return &EpollPoller{epfd: fd, wake: make(map[int]func())}, nil
}

// WaitReadable arranges for wake to be called the next time fd becomes
// readable (or errors/hangs up).
func (p *EpollPoller) WaitReadable(fd int, wake func()) error {
	return p.arm(fd, unix.EPOLLIN, wake)
}

// WaitWritable arranges for wake to be called the next time fd becomes
// writable (used to detect non-blocking connect completion).
func (p *EpollPoller) WaitWritable(fd int, wake func()) error {
	return p.arm(fd, unix.EPOLLOUT, wake)
}

func (p *EpollPoller) arm(fd int, events uint32, wake func()) error {
	ev := unix.EpollEvent{Events: events | unix.EPOLLONESHOT, Fd: int32(fd)}
	p.mu.Lock()
	_, already := p.wake[fd]
	p.wake[fd] = wake
	p.mu.Unlock()

	op := unix.EPOLL_CTL_ADD
	if already {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("kernelsocket: epoll_ctl: %w", err)
	}
	return nil
}

// Unregister drops any pending interest in fd, e.g. on Close.
func (p *EpollPoller) Unregister(fd int) {
	p.mu.Lock()
	delete(p.wake, fd)
	p.mu.Unlock()
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Poll waits up to timeoutMs for ready descriptors and fires their wakers.
// timeoutMs == 0 returns immediately if nothing is ready, matching the
// scheduler's "poll once per call" contract.
func (p *EpollPoller) Poll(timeoutMs int) error {
	var events [128]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, events[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("kernelsocket: epoll_wait: %w", err)
	}
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		p.mu.Lock()
		wake, ok := p.wake[fd]
		delete(p.wake, fd)
		p.mu.Unlock()
		if ok && wake != nil {
			wake()
		}
	}
	return nil
}

// Close releases the epoll file descriptor.
func (p *EpollPoller) Close() error {
	return unix.Close(p.epfd)
}
