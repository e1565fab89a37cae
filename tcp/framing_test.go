package tcp

import (
	"testing"

	"github.com/hioload/libos/buffer"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	headroom := HeaderLen(4) // room for one 4-byte MSS option
	payload := []byte("hello, tcp")
	buf := buffer.New(len(payload), headroom)
	copy(buf.Bytes(), payload)

	eth := EthernetHeader{
		Dst:       MACAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		Src:       MACAddr{1, 2, 3, 4, 5, 6},
		EtherType: etherTypeIPv4,
	}
	ip := IPv4Header{SrcIP: [4]byte{10, 0, 0, 1}, DstIP: [4]byte{10, 0, 0, 2}, TTL: 64}
	tcpHdr := TCPHeader{SrcPort: 1234, DstPort: 80, Seq: 1000, Ack: 2000, Flags: FlagACK | FlagPSH, Window: 4096}
	opts := Options{MSS: DefaultMSS, HasMSS: true}

	if err := Encode(&buf, eth, ip, tcpHdr, opts); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.TCP.SrcPort != 1234 || decoded.TCP.DstPort != 80 {
		t.Fatalf("ports mismatch: %+v", decoded.TCP)
	}
	if decoded.TCP.Seq != 1000 || decoded.TCP.Ack != 2000 {
		t.Fatalf("seq/ack mismatch: %+v", decoded.TCP)
	}
	if decoded.TCP.Flags != (FlagACK | FlagPSH) {
		t.Fatalf("flags = %v, want ACK|PSH", decoded.TCP.Flags)
	}
	if !decoded.Opts.HasMSS || decoded.Opts.MSS != DefaultMSS {
		t.Fatalf("options not round-tripped: %+v", decoded.Opts)
	}
	if got := string(decoded.Payload.Bytes()); got != string(payload) {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	headroom := HeaderLen(0)
	buf := buffer.New(4, headroom)
	copy(buf.Bytes(), []byte("data"))
	eth := EthernetHeader{EtherType: etherTypeIPv4}
	ip := IPv4Header{SrcIP: [4]byte{1, 1, 1, 1}, DstIP: [4]byte{2, 2, 2, 2}, TTL: 64}
	tcpHdr := TCPHeader{SrcPort: 1, DstPort: 2, Flags: FlagACK}
	if err := Encode(&buf, eth, ip, tcpHdr, Options{}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF // corrupt the payload after checksum was computed

	if _, err := Decode(buf); err == nil {
		t.Fatal("expected checksum validation to fail on corrupted payload")
	}
}

func TestDecodeRejectsTruncatedFrame(t *testing.T) {
	buf := buffer.FromSlice([]byte{1, 2, 3})
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected error on truncated frame")
	}
}
