package libos

import (
	"testing"

	"github.com/hioload/libos/buffer"
	"github.com/hioload/libos/opfuture"
	"github.com/hioload/libos/qd"
	"github.com/hioload/libos/sched"
	"github.com/hioload/libos/tcp"
	"github.com/hioload/libos/transport"
)

// wireUp links two TCP-engine-backed LibOS instances' frame sinks to each
// other, modeling a lossless point-to-point link the way tcp/engine_test.go
// does for the bare Engine, but through the full socket/bind/listen/
// accept/connect/push/pop/wait façade surface spec §4.6 names.
func wireUp(t *testing.T, clientIP, serverIP [4]byte) (client, server *LibOS) {
	t.Helper()

	var serverEngine, clientEngine *tcp.Engine

	clientCfg := DefaultConfig()
	clientCfg.Backend = BackendTCPEngine
	clientCfg.TCPEngineIP = clientIP
	clientCfg.TCPEngineMAC = tcp.MACAddr{0, 0, 0, 0, 0, 1}
	clientCfg.FrameSink = func(frame []byte) error { return serverEngine.HandleFrame(frame) }

	serverCfg := DefaultConfig()
	serverCfg.Backend = BackendTCPEngine
	serverCfg.TCPEngineIP = serverIP
	serverCfg.TCPEngineMAC = tcp.MACAddr{0, 0, 0, 0, 0, 2}
	serverCfg.FrameSink = func(frame []byte) error { return clientEngine.HandleFrame(frame) }

	var err error
	client, err = New(clientCfg)
	if err != nil {
		t.Fatalf("New(client): %v", err)
	}
	server, err = New(serverCfg)
	if err != nil {
		t.Fatalf("New(server): %v", err)
	}

	clientEngine = client.Engine()
	serverEngine = server.Engine()
	clientEngine.SetPeerMAC(serverIP, serverCfg.TCPEngineMAC)
	serverEngine.SetPeerMAC(clientIP, clientCfg.TCPEngineMAC)

	return client, server
}

func TestLibOSPingPong(t *testing.T) {
	serverIP := [4]byte{10, 0, 0, 2}
	clientIP := [4]byte{10, 0, 0, 1}
	client, server := wireUp(t, clientIP, serverIP)

	listenSock, err := server.Socket(qd.KindTCPSocket)
	if err != nil {
		t.Fatalf("server.Socket: %v", err)
	}
	listenAddr := transport.Endpoint{IP: serverIP, Port: 7000}
	if err := server.Bind(listenSock, listenAddr); err != nil {
		t.Fatalf("server.Bind: %v", err)
	}
	if err := server.Listen(listenSock, 4); err != nil {
		t.Fatalf("server.Listen: %v", err)
	}

	clientSock, err := client.Socket(qd.KindTCPSocket)
	if err != nil {
		t.Fatalf("client.Socket: %v", err)
	}
	connectQT, err := client.Connect(clientSock, listenAddr)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}
	if res, err := client.Wait(connectQT); err != nil {
		t.Fatalf("client.Wait(connect): %v", err)
	} else if res.Opcode != opfuture.OpConnect {
		t.Fatalf("connect result opcode = %v, want OpConnect", res.Opcode)
	}

	acceptQT, err := server.Accept(listenSock)
	if err != nil {
		t.Fatalf("server.Accept: %v", err)
	}
	acceptRes, err := server.Wait(acceptQT)
	if err != nil {
		t.Fatalf("server.Wait(accept): %v", err)
	}
	connSock := acceptRes.Accept.QD
	if acceptRes.Accept.Addr.Port == 0 {
		t.Fatalf("accepted remote endpoint missing port: %+v", acceptRes.Accept.Addr)
	}

	msg := []byte("ping")
	pushBuf := buffer.New(len(msg), 0)
	copy(pushBuf.Bytes(), msg)
	pushQT, err := client.Push(clientSock, pushBuf)
	if err != nil {
		t.Fatalf("client.Push: %v", err)
	}
	if _, err := client.Wait(pushQT); err != nil {
		t.Fatalf("client.Wait(push): %v", err)
	}

	popQT, err := server.Pop(connSock, 64)
	if err != nil {
		t.Fatalf("server.Pop: %v", err)
	}
	popRes, err := server.Wait(popQT)
	if err != nil {
		t.Fatalf("server.Wait(pop): %v", err)
	}
	if len(popRes.SG.Segments) != 1 {
		t.Fatalf("pop result segments = %d, want 1", len(popRes.SG.Segments))
	}
	got := popRes.SG.Segments[0].Buf.Bytes()
	if string(got) != string(msg) {
		t.Fatalf("server received %q, want %q", got, msg)
	}

	reply := []byte("pong")
	replyBuf := buffer.New(len(reply), 0)
	copy(replyBuf.Bytes(), reply)
	replyQT, err := server.Push(connSock, replyBuf)
	if err != nil {
		t.Fatalf("server.Push: %v", err)
	}
	if _, err := server.Wait(replyQT); err != nil {
		t.Fatalf("server.Wait(push reply): %v", err)
	}

	clientPopQT, err := client.Pop(clientSock, 64)
	if err != nil {
		t.Fatalf("client.Pop: %v", err)
	}
	clientPopRes, err := client.Wait(clientPopQT)
	if err != nil {
		t.Fatalf("client.Wait(pop reply): %v", err)
	}
	gotReply := clientPopRes.SG.Segments[0].Buf.Bytes()
	if string(gotReply) != string(reply) {
		t.Fatalf("client received %q, want %q", gotReply, reply)
	}

	if err := client.Close(clientSock); err != nil {
		t.Fatalf("client.Close: %v", err)
	}
	if err := server.Close(connSock); err != nil {
		t.Fatalf("server.Close: %v", err)
	}
	if err := server.Close(listenSock); err != nil {
		t.Fatalf("server.Close(listener): %v", err)
	}
}

func TestLibOSWaitAnyPicksFirstReady(t *testing.T) {
	serverIP := [4]byte{10, 0, 0, 4}
	clientIP := [4]byte{10, 0, 0, 3}
	client, server := wireUp(t, clientIP, serverIP)

	listenSock, err := server.Socket(qd.KindTCPSocket)
	if err != nil {
		t.Fatalf("server.Socket: %v", err)
	}
	listenAddr := transport.Endpoint{IP: serverIP, Port: 9000}
	if err := server.Bind(listenSock, listenAddr); err != nil {
		t.Fatalf("server.Bind: %v", err)
	}
	if err := server.Listen(listenSock, 4); err != nil {
		t.Fatalf("server.Listen: %v", err)
	}

	// Two client connections complete their handshakes synchronously (the
	// loopback wire has no latency), so both land in the server's accept
	// backlog before either Accept future is even scheduled.
	for i := 0; i < 2; i++ {
		clientSock, err := client.Socket(qd.KindTCPSocket)
		if err != nil {
			t.Fatalf("client.Socket: %v", err)
		}
		connectQT, err := client.Connect(clientSock, listenAddr)
		if err != nil {
			t.Fatalf("client.Connect: %v", err)
		}
		if _, err := client.Wait(connectQT); err != nil {
			t.Fatalf("client.Wait(connect): %v", err)
		}
	}

	acceptQT1, err := server.Accept(listenSock)
	if err != nil {
		t.Fatalf("server.Accept #1: %v", err)
	}
	acceptQT2, err := server.Accept(listenSock)
	if err != nil {
		t.Fatalf("server.Accept #2: %v", err)
	}

	idx, res, err := server.WaitAny([]sched.QToken{acceptQT1, acceptQT2})
	if err != nil {
		t.Fatalf("server.WaitAny: %v", err)
	}
	if idx != 0 {
		t.Fatalf("WaitAny returned index %d, want 0 (lowest-index-ready wins)", idx)
	}
	if res.Accept.QD == 0 {
		t.Fatalf("accepted QDesc is zero")
	}

	// The second accept is still outstanding and uninspected-but-completed;
	// a plain Wait on it must still succeed.
	res2, err := server.Wait(acceptQT2)
	if err != nil {
		t.Fatalf("server.Wait(acceptQT2): %v", err)
	}
	if res2.Accept.QD == 0 {
		t.Fatalf("second accepted QDesc is zero")
	}
}
