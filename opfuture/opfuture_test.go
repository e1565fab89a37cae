package opfuture

import (
	"errors"
	"testing"
	"time"

	"github.com/hioload/libos/buffer"
	"github.com/hioload/libos/qd"
	"github.com/hioload/libos/sched"
	"github.com/hioload/libos/transport"
)

// fakeVerbs lets each test script exactly how many WouldBlock responses to
// return before a verb "completes".
type fakeVerbs struct {
	acceptAfter  int
	connectAfter int
	sendAfter    int
	recvAfter    int

	acceptHandle transport.Handle
	acceptRemote transport.Endpoint
	sendN        int
	recvData     []byte
	recvRemote   transport.Endpoint

	failWith error
}

func (f *fakeVerbs) Accept(h transport.Handle) (transport.Handle, transport.Endpoint, error) {
	if f.failWith != nil {
		return nil, transport.Endpoint{}, f.failWith
	}
	if f.acceptAfter > 0 {
		f.acceptAfter--
		return nil, transport.Endpoint{}, transport.ErrWouldBlock
	}
	return f.acceptHandle, f.acceptRemote, nil
}

func (f *fakeVerbs) Connect(h transport.Handle, remote transport.Endpoint) error {
	if f.failWith != nil {
		return f.failWith
	}
	if f.connectAfter > 0 {
		f.connectAfter--
		return transport.ErrWouldBlock
	}
	return nil
}

func (f *fakeVerbs) Send(h transport.Handle, b []byte) (int, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	if f.sendAfter > 0 {
		f.sendAfter--
		return 0, transport.ErrWouldBlock
	}
	if f.sendN > 0 && f.sendN < len(b) {
		n := f.sendN
		f.sendN = 0
		return n, nil
	}
	return len(b), nil
}

func (f *fakeVerbs) SendTo(h transport.Handle, remote transport.Endpoint, b []byte) (int, error) {
	return f.Send(h, b)
}

func (f *fakeVerbs) Recv(h transport.Handle, b []byte) (int, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	if f.recvAfter > 0 {
		f.recvAfter--
		return 0, transport.ErrWouldBlock
	}
	return copy(b, f.recvData), nil
}

func (f *fakeVerbs) RecvFrom(h transport.Handle, b []byte) (int, transport.Endpoint, error) {
	n, err := f.Recv(h, b)
	return n, f.recvRemote, err
}

func (f *fakeVerbs) Close(h transport.Handle) error { return nil }

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func runToCompletion(t *testing.T, s *sched.Scheduler, h sched.Handle, max int) {
	t.Helper()
	for i := 0; i < max; i++ {
		if s.HasCompleted(h) {
			return
		}
		s.Poll()
	}
	t.Fatalf("operation did not complete within %d polls", max)
}

func TestAcceptFutureRetriesThenSucceeds(t *testing.T) {
	table := qd.NewTable()
	listenQD := table.Alloc(qd.KindTCPSocket, "listener")
	fv := &fakeVerbs{acceptAfter: 2, acceptHandle: "conn-1", acceptRemote: transport.Endpoint{Port: 9}}
	op := NewAccept(listenQD, fv, "listener", table, qd.KindTCPSocket)

	s := sched.New(fixedClock{now: time.Unix(0, 0)})
	h := s.Schedule(op)
	op.SetToken(h.Token())
	runToCompletion(t, s, h, 10)

	future, err := s.Take(h)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	res := future.(Operation).Result()
	if res.Opcode != OpAccept {
		t.Fatalf("opcode = %v, want accept", res.Opcode)
	}
	if res.Accept.Addr.Port != 9 {
		t.Fatalf("remote port = %d, want 9", res.Accept.Addr.Port)
	}
	if _, ok := table.Get(res.Accept.QD); !ok {
		t.Fatal("accepted QDesc not registered in table")
	}
}

func TestConnectFutureFailsWithTransportError(t *testing.T) {
	table := qd.NewTable()
	originQD := table.Alloc(qd.KindTCPSocket, "sock")
	fv := &fakeVerbs{failWith: transport.ErrConnRefused}
	op := NewConnect(originQD, fv, "sock", transport.Endpoint{})

	s := sched.New(fixedClock{now: time.Unix(0, 0)})
	h := s.Schedule(op)
	op.SetToken(h.Token())
	runToCompletion(t, s, h, 5)

	future, _ := s.Take(h)
	res := future.(Operation).Result()
	if res.Opcode != OpFailed {
		t.Fatalf("opcode = %v, want failed", res.Opcode)
	}
	if !errors.Is(res.Err, transport.ErrConnRefused) {
		t.Fatalf("err = %v, want ErrConnRefused", res.Err)
	}
}

func TestPushFutureDrainsPartialWrites(t *testing.T) {
	table := qd.NewTable()
	originQD := table.Alloc(qd.KindTCPSocket, "sock")
	fv := &fakeVerbs{sendAfter: 1, sendN: 4}
	pool := buffer.NewPool(64, 0)
	buf := pool.Get(10)
	copy(buf.Bytes(), []byte("0123456789"))
	op := NewPush(originQD, fv, "sock", buf)

	s := sched.New(fixedClock{now: time.Unix(0, 0)})
	h := s.Schedule(op)
	op.SetToken(h.Token())
	runToCompletion(t, s, h, 10)

	future, _ := s.Take(h)
	res := future.(Operation).Result()
	if res.Opcode != OpPush {
		t.Fatalf("opcode = %v, want push", res.Opcode)
	}
}

func TestPopFutureReturnsScatterGather(t *testing.T) {
	table := qd.NewTable()
	originQD := table.Alloc(qd.KindUDPSocket, "sock")
	fv := &fakeVerbs{recvAfter: 1, recvData: []byte("hello"), recvRemote: transport.Endpoint{Port: 53}}
	pool := buffer.NewPool(64, 0)
	op := NewPopFrom(originQD, fv, "sock", pool, 1500)

	s := sched.New(fixedClock{now: time.Unix(0, 0)})
	h := s.Schedule(op)
	op.SetToken(h.Token())
	runToCompletion(t, s, h, 10)

	future, _ := s.Take(h)
	res := future.(Operation).Result()
	if res.Opcode != OpPop {
		t.Fatalf("opcode = %v, want pop", res.Opcode)
	}
	if len(res.SG.Segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(res.SG.Segments))
	}
	if got := string(res.SG.Segments[0].Buf.Bytes()); got != "hello" {
		t.Fatalf("payload = %q, want %q", got, "hello")
	}
	if res.SG.Addr.Port != 53 {
		t.Fatalf("remote port = %d, want 53", res.SG.Addr.Port)
	}
}
