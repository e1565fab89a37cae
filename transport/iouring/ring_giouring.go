//go:build giouring
// +build giouring

package iouring

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
)

// sockaddrIn is the raw wire-layout struct.sockaddr_in AF_INET expects,
// built by hand since the verb contract only carries an Endpoint, not a
// pointer to a libc sockaddr.
type sockaddrIn struct {
	family uint16
	port   [2]byte
	addr   [4]byte
	zero   [8]byte
}

func newSockaddrIn(ip [4]byte, port uint16) *sockaddrIn {
	s := &sockaddrIn{family: 2 /* AF_INET */, addr: ip}
	binary.BigEndian.PutUint16(s.port[:], port)
	return s
}

// giouringRing adapts *giouring.Ring (liburing's C API ported to Go) to our
// narrow Ring contract.
type giouringRing struct {
	ring *giouring.Ring
	// addrs keeps the sockaddr_in structs referenced by in-flight
	// accept/connect/sendto SQEs alive until their CQE is reaped — the
	// kernel holds the pointer for the lifetime of the operation.
	addrs map[uint64]*sockaddrIn
}

// NewRing creates a real io_uring-backed Ring with `entries` submission
// queue slots.
func NewRing(entries uint32) (Ring, error) {
	ring, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("iouring: io_uring_setup: %w", err)
	}
	return &giouringRing{ring: ring, addrs: make(map[uint64]*sockaddrIn)}, nil
}

func (r *giouringRing) getSQE() (*giouring.SubmissionQueueEntry, error) {
	sqe := r.ring.GetSQE()
	if sqe == nil {
		return nil, fmt.Errorf("iouring: submission queue full")
	}
	return sqe, nil
}

func (r *giouringRing) PrepareAccept(fd int, userData uint64) error {
	sqe, err := r.getSQE()
	if err != nil {
		return err
	}
	sqe.PrepareAccept(int32(fd), 0, 0, 0)
	sqe.UserData = userData
	return nil
}

func (r *giouringRing) PrepareConnect(fd int, ip [4]byte, port uint16, userData uint64) error {
	sqe, err := r.getSQE()
	if err != nil {
		return err
	}
	addr := newSockaddrIn(ip, port)
	r.addrs[userData] = addr
	sqe.PrepareConnect(int32(fd), uint64(uintptr(unsafe.Pointer(addr))), uint64(unsafe.Sizeof(*addr)))
	sqe.UserData = userData
	return nil
}

func (r *giouringRing) PrepareSend(fd int, buf []byte, userData uint64) error {
	sqe, err := r.getSQE()
	if err != nil {
		return err
	}
	var ptr uintptr
	if len(buf) > 0 {
		ptr = uintptr(unsafe.Pointer(&buf[0]))
	}
	sqe.PrepareSend(int32(fd), ptr, uint32(len(buf)), 0)
	sqe.UserData = userData
	return nil
}

func (r *giouringRing) PrepareSendTo(fd int, ip [4]byte, port uint16, buf []byte, userData uint64) error {
	sqe, err := r.getSQE()
	if err != nil {
		return err
	}
	addr := newSockaddrIn(ip, port)
	r.addrs[userData] = addr
	var ptr uintptr
	if len(buf) > 0 {
		ptr = uintptr(unsafe.Pointer(&buf[0]))
	}
	sqe.PrepareSendZC(int32(fd), ptr, uint32(len(buf)), 0, 0)
	sqe.UserData = userData
	return nil
}

func (r *giouringRing) PrepareRecv(fd int, buf []byte, userData uint64) error {
	sqe, err := r.getSQE()
	if err != nil {
		return err
	}
	var ptr uintptr
	if len(buf) > 0 {
		ptr = uintptr(unsafe.Pointer(&buf[0]))
	}
	sqe.PrepareRecv(int32(fd), ptr, uint32(len(buf)), 0)
	sqe.UserData = userData
	return nil
}

func (r *giouringRing) PrepareRecvFrom(fd int, buf []byte, userData uint64) error {
	return r.PrepareRecv(fd, buf, userData)
}

func (r *giouringRing) Submit() error {
	_, err := r.ring.Submit()
	if err != nil {
		return fmt.Errorf("iouring: submit: %w", err)
	}
	return nil
}

func (r *giouringRing) PeekCQE() (userData uint64, res int32, flags uint32, ok bool) {
	cqe, err := r.ring.PeekCQE()
	if err != nil || cqe == nil {
		return 0, 0, 0, false
	}
	userData, res, flags = cqe.UserData, cqe.Res, cqe.Flags
	r.ring.CQESeen(cqe)
	delete(r.addrs, userData)
	return userData, res, flags, true
}

func (r *giouringRing) Close() error {
	r.ring.QueueExit()
	return nil
}
