package tcp

import (
	"encoding/binary"
	"errors"

	"github.com/hioload/libos/buffer"
)

// MACAddr is an Ethernet hardware address.
type MACAddr [6]byte

const (
	ethHeaderLen  = 14
	ipv4HeaderLen = 20
	tcpHeaderLen  = 20
	etherTypeIPv4 = 0x0800
	ipProtoTCP    = 6
)

// EthernetHeader is the Ethernet II frame header.
type EthernetHeader struct {
	Dst       MACAddr
	Src       MACAddr
	EtherType uint16
}

// IPv4Header is the subset of the IPv4 header this engine sets: no options,
// no fragmentation.
type IPv4Header struct {
	SrcIP [4]byte
	DstIP [4]byte
	TTL   uint8
}

// TCPHeader is the segment header the engine reads and writes, exclusive of
// options (carried separately so Options.Encode/ParseOptions own that
// format).
type TCPHeader struct {
	SrcPort uint16
	DstPort uint16
	Seq     SeqNumber
	Ack     SeqNumber
	Flags   Flags
	Window  uint16
}

// HeaderLen returns the combined Ethernet+IPv4+TCP header length plus
// optLen bytes of TCP options, the headroom every outgoing segment buffer
// must reserve.
func HeaderLen(optLen int) int {
	return ethHeaderLen + ipv4HeaderLen + tcpHeaderLen + optLen
}

// Encode writes eth/ip/tcpHdr and opts into buf's headroom immediately
// ahead of its current payload (which must already hold the TCP payload
// bytes), then reveals that region as part of the payload — no payload
// copy happens, only a header prepend into already-reserved headroom, per
// spec §4.5.4.
func Encode(buf *buffer.Buffer, eth EthernetHeader, ip IPv4Header, tcpHdr TCPHeader, opts Options) error {
	encodedOpts := opts.Encode()
	total := HeaderLen(len(encodedOpts))
	if buf.Headroom() < total {
		return errors.New("tcp: insufficient headroom for frame header")
	}
	payloadLen := buf.Len()
	if !buf.AdjustHeadroom(-total) {
		return errors.New("tcp: headroom adjust failed")
	}
	hdr := buf.Bytes()[:total]

	binary.BigEndian.PutUint16(hdr[12:14], eth.EtherType)
	copy(hdr[0:6], eth.Dst[:])
	copy(hdr[6:12], eth.Src[:])

	ipStart := ethHeaderLen
	ipLen := ipv4HeaderLen
	tcpLen := tcpHeaderLen + len(encodedOpts) + payloadLen
	totalLen := ipLen + tcpLen
	hdr[ipStart] = 0x45 // version 4, IHL 5
	hdr[ipStart+1] = 0
	binary.BigEndian.PutUint16(hdr[ipStart+2:ipStart+4], uint16(totalLen))
	binary.BigEndian.PutUint16(hdr[ipStart+4:ipStart+6], 0) // identification
	binary.BigEndian.PutUint16(hdr[ipStart+6:ipStart+8], 0) // flags/fragment offset
	hdr[ipStart+8] = ip.TTL
	hdr[ipStart+9] = ipProtoTCP
	binary.BigEndian.PutUint16(hdr[ipStart+10:ipStart+12], 0) // checksum placeholder
	copy(hdr[ipStart+12:ipStart+16], ip.SrcIP[:])
	copy(hdr[ipStart+16:ipStart+20], ip.DstIP[:])
	ipChecksum := checksum(hdr[ipStart : ipStart+ipv4HeaderLen])
	binary.BigEndian.PutUint16(hdr[ipStart+10:ipStart+12], ipChecksum)

	tcpStart := ipStart + ipv4HeaderLen
	binary.BigEndian.PutUint16(hdr[tcpStart:tcpStart+2], tcpHdr.SrcPort)
	binary.BigEndian.PutUint16(hdr[tcpStart+2:tcpStart+4], tcpHdr.DstPort)
	binary.BigEndian.PutUint32(hdr[tcpStart+4:tcpStart+8], uint32(tcpHdr.Seq))
	binary.BigEndian.PutUint32(hdr[tcpStart+8:tcpStart+12], uint32(tcpHdr.Ack))
	dataOffsetWords := (tcpHeaderLen + len(encodedOpts)) / 4
	hdr[tcpStart+12] = byte(dataOffsetWords << 4)
	hdr[tcpStart+13] = byte(tcpHdr.Flags)
	binary.BigEndian.PutUint16(hdr[tcpStart+14:tcpStart+16], tcpHdr.Window)
	binary.BigEndian.PutUint16(hdr[tcpStart+16:tcpStart+18], 0) // checksum placeholder
	binary.BigEndian.PutUint16(hdr[tcpStart+18:tcpStart+20], 0) // urgent pointer
	copy(hdr[tcpStart+20:tcpStart+20+len(encodedOpts)], encodedOpts)

	tcpSegment := buf.Bytes()[tcpStart:]
	tcpChecksum := tcpChecksum(ip.SrcIP, ip.DstIP, tcpSegment)
	binary.BigEndian.PutUint16(hdr[tcpStart+16:tcpStart+18], tcpChecksum)

	return nil
}

// DecodedFrame is the parsed result of Decode: headers plus a zero-copy
// slice of the payload within the original buffer.
type DecodedFrame struct {
	Eth     EthernetHeader
	IP      IPv4Header
	TCP     TCPHeader
	Opts    Options
	Payload buffer.Buffer
}

// Decode validates and parses an Ethernet/IPv4/TCP frame carried in buf,
// returning the payload as a headroom-adjusted view over the same
// storage — no payload copy. Framing errors (bad checksum, truncated
// header) are reported as an error so the caller can log and drop the
// frame without user-visible effect, per spec §7.
func Decode(buf buffer.Buffer) (DecodedFrame, error) {
	raw := buf.Bytes()
	if len(raw) < ethHeaderLen+ipv4HeaderLen+tcpHeaderLen {
		return DecodedFrame{}, errors.New("tcp: frame too short")
	}

	var out DecodedFrame
	copy(out.Eth.Dst[:], raw[0:6])
	copy(out.Eth.Src[:], raw[6:12])
	out.Eth.EtherType = binary.BigEndian.Uint16(raw[12:14])
	if out.Eth.EtherType != etherTypeIPv4 {
		return DecodedFrame{}, errors.New("tcp: unsupported ethertype")
	}

	ipStart := ethHeaderLen
	ipHdr := raw[ipStart : ipStart+ipv4HeaderLen]
	if ipHdr[0]>>4 != 4 || (ipHdr[0]&0x0F) != 5 {
		return DecodedFrame{}, errors.New("tcp: unsupported IPv4 header (options unsupported)")
	}
	if ipHdr[9] != ipProtoTCP {
		return DecodedFrame{}, errors.New("tcp: not a TCP packet")
	}
	if checksum(ipHdr) != 0 {
		return DecodedFrame{}, errors.New("tcp: bad IPv4 checksum")
	}
	copy(out.IP.SrcIP[:], ipHdr[12:16])
	copy(out.IP.DstIP[:], ipHdr[16:20])
	out.IP.TTL = ipHdr[8]
	totalLen := int(binary.BigEndian.Uint16(ipHdr[2:4]))

	tcpStart := ipStart + ipv4HeaderLen
	if len(raw) < tcpStart+tcpHeaderLen {
		return DecodedFrame{}, errors.New("tcp: truncated TCP header")
	}
	tcpHdrBytes := raw[tcpStart:]
	out.TCP.SrcPort = binary.BigEndian.Uint16(tcpHdrBytes[0:2])
	out.TCP.DstPort = binary.BigEndian.Uint16(tcpHdrBytes[2:4])
	out.TCP.Seq = SeqNumber(binary.BigEndian.Uint32(tcpHdrBytes[4:8]))
	out.TCP.Ack = SeqNumber(binary.BigEndian.Uint32(tcpHdrBytes[8:12]))
	dataOffsetWords := int(tcpHdrBytes[12] >> 4)
	out.TCP.Flags = Flags(tcpHdrBytes[13])
	out.TCP.Window = binary.BigEndian.Uint16(tcpHdrBytes[14:16])

	tcpLen := totalLen - ipv4HeaderLen
	if tcpLen < tcpHeaderLen || tcpStart+tcpLen > len(raw) {
		return DecodedFrame{}, errors.New("tcp: inconsistent total length")
	}
	tcpSegment := raw[tcpStart : tcpStart+tcpLen]
	// tcpSegment carries the sender's actual checksum field in place; a
	// valid segment's pseudo-header+segment sum is the ones' complement
	// of itself, i.e. checksum() returns exactly 0.
	if tcpChecksum(out.IP.SrcIP, out.IP.DstIP, tcpSegment) != 0 {
		return DecodedFrame{}, errors.New("tcp: bad TCP checksum")
	}

	optsLen := dataOffsetWords*4 - tcpHeaderLen
	if optsLen < 0 || tcpStart+tcpHeaderLen+optsLen > len(raw) {
		return DecodedFrame{}, errors.New("tcp: invalid data offset")
	}
	opts, err := ParseOptions(tcpHdrBytes[tcpHeaderLen : tcpHeaderLen+optsLen])
	if err != nil {
		return DecodedFrame{}, err
	}
	out.Opts = opts

	payloadStart := tcpStart + tcpHeaderLen + optsLen
	payloadLen := tcpLen - tcpHeaderLen - optsLen
	view := buf
	if !view.AdjustHeadroom(payloadStart) {
		return DecodedFrame{}, errors.New("tcp: payload slice out of range")
	}
	view.SetLen(payloadLen)
	out.Payload = view
	return out, nil
}

// checksum computes the Internet checksum (RFC 1071) over b.
func checksum(b []byte) uint16 {
	var sum uint32
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i : i+2]))
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// tcpChecksum computes the TCP checksum including the IPv4 pseudo-header.
func tcpChecksum(src, dst [4]byte, segment []byte) uint16 {
	var pseudo [12]byte
	copy(pseudo[0:4], src[:])
	copy(pseudo[4:8], dst[:])
	pseudo[8] = 0
	pseudo[9] = ipProtoTCP
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(segment)))

	combined := make([]byte, 0, len(pseudo)+len(segment))
	combined = append(combined, pseudo[:]...)
	combined = append(combined, segment...)
	return checksum(combined)
}
