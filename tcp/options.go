package tcp

import (
	"encoding/binary"
	"errors"
)

const (
	optKindEnd       = 0
	optKindNoOp      = 1
	optKindMSS       = 2
	optKindWindowScale = 3
)

// Options are the TCP options this engine negotiates: MSS and window scale
// in the SYN/SYN-ACK, parsed symmetrically from whatever the peer sends
// (spec §4.5.4 — "peer options are parsed symmetrically").
type Options struct {
	MSS             uint16
	HasMSS          bool
	WindowScale     uint8
	HasWindowScale  bool
}

// Encode serializes o as TCP options, padded to a 4-byte boundary with
// no-ops, per RFC 793.
func (o Options) Encode() []byte {
	var buf []byte
	if o.HasMSS {
		buf = append(buf, optKindMSS, 4)
		var mss [2]byte
		binary.BigEndian.PutUint16(mss[:], o.MSS)
		buf = append(buf, mss[:]...)
	}
	if o.HasWindowScale {
		buf = append(buf, optKindWindowScale, 3, o.WindowScale)
	}
	for len(buf)%4 != 0 {
		buf = append(buf, optKindNoOp)
	}
	return buf
}

// ParseOptions decodes the TCP options area raw, accepting whatever subset
// the peer sent (symmetric with Encode: MSS/window-scale/no-op/end, other
// kinds are skipped using their length byte).
func ParseOptions(raw []byte) (Options, error) {
	var o Options
	i := 0
	for i < len(raw) {
		kind := raw[i]
		switch kind {
		case optKindEnd:
			return o, nil
		case optKindNoOp:
			i++
			continue
		}
		if i+1 >= len(raw) {
			return o, errors.New("tcp: truncated option")
		}
		length := int(raw[i+1])
		if length < 2 || i+length > len(raw) {
			return o, errors.New("tcp: invalid option length")
		}
		switch kind {
		case optKindMSS:
			if length != 4 {
				return o, errors.New("tcp: malformed MSS option")
			}
			o.MSS = binary.BigEndian.Uint16(raw[i+2 : i+4])
			o.HasMSS = true
		case optKindWindowScale:
			if length != 3 {
				return o, errors.New("tcp: malformed window-scale option")
			}
			o.WindowScale = raw[i+2]
			o.HasWindowScale = true
		}
		i += length
	}
	return o, nil
}
