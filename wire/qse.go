package wire

import "encoding/binary"

// QSE wire limits, per spec.md §3/§4.1.
const (
	qseVersion          uint16 = 0x0100
	qseMaxRouteToken           = 512
	qseMaxPayload              = 1 << 20 // 1 MiB
	qseMaxPad                  = 1 << 20 // 1 MiB
	qseMaxEnvelope             = 2 << 20 // 2 MiB
	qseExtremeTimestamp        = 0x80000000
)

// Policy carries the two QSE policy knobs that correspond to
// QSHIELD_ALLOW_ZERO_TIMESTAMP_BUCKET and
// QSHIELD_TIMESTAMP_WINDOW_ENFORCED. ParseQSE never reads the
// environment itself, and no package in this module fills Policy from
// those variables: engine.DefaultConfig sets it directly.
type Policy struct {
	AllowZeroTimestampBucket bool
	TimestampWindowEnforced  bool
}

// Envelope is a parsed QSE 1.8 envelope. Field order matches the wire
// order exactly; Serialise re-emits bytes identical to what Parse
// consumed for any value it itself returns (parse∘serialise = identity).
type Envelope struct {
	EnvVersion      uint16
	Flags           uint16
	RouteToken      []byte
	TimestampBucket uint32
	PayloadLen      uint32
	Payload         []byte
	PadLen          uint16
	Pad             []byte
}

// ParseQSE reads a QSE envelope per spec.md §3/§4.1:
//
//	env_version(u16) || flags(u16) || route_token(varbytes<u16>) ||
//	timestamp_bucket(u32) || payload_len(u32) || payload || pad_len(u16) || pad
//
// The canonical timestamp_bucket width is u32 (spec.md §9, Open Questions);
// the narrower u16 dialect is not accepted here.
func ParseQSE(b []byte, policy Policy) (*Envelope, error) {
	if len(b) > qseMaxEnvelope {
		return nil, reject(ReasonBoundsExceeded, "envelope exceeds %d bytes", qseMaxEnvelope)
	}
	off := 0
	need := func(n int) error {
		if off+n > len(b) {
			return reject(ReasonNoncanonicalQSE, "truncated at offset %d (need %d)", off, n)
		}
		return nil
	}

	if err := need(2); err != nil {
		return nil, err
	}
	envVersion := binary.BigEndian.Uint16(b[off:])
	off += 2

	if err := need(2); err != nil {
		return nil, err
	}
	flags := binary.BigEndian.Uint16(b[off:])
	off += 2

	if envVersion != qseVersion {
		return nil, reject(ReasonInvalidRequest, "unknown env_version 0x%04x", envVersion)
	}
	if flags != 0 {
		return nil, reject(ReasonInvalidRequest, "nonzero flags 0x%04x", flags)
	}

	if err := need(2); err != nil {
		return nil, err
	}
	rtLen := int(binary.BigEndian.Uint16(b[off:]))
	off += 2
	if rtLen > qseMaxRouteToken {
		return nil, reject(ReasonBoundsExceeded, "route_token exceeds %d bytes", qseMaxRouteToken)
	}
	if err := need(rtLen); err != nil {
		return nil, err
	}
	routeToken := append([]byte(nil), b[off:off+rtLen]...)
	off += rtLen

	if err := need(4); err != nil {
		return nil, err
	}
	timestampBucket := binary.BigEndian.Uint32(b[off:])
	off += 4

	if timestampBucket == 0 && !policy.AllowZeroTimestampBucket {
		return nil, reject(ReasonPolicyReject, "zero timestamp_bucket disallowed")
	}
	if policy.TimestampWindowEnforced && timestampBucket >= qseExtremeTimestamp {
		return nil, reject(ReasonPolicyReject, "timestamp_bucket out of window")
	}

	if err := need(4); err != nil {
		return nil, err
	}
	payloadLen := binary.BigEndian.Uint32(b[off:])
	off += 4
	if payloadLen > qseMaxPayload {
		return nil, reject(ReasonBoundsExceeded, "payload exceeds %d bytes", qseMaxPayload)
	}
	if err := need(int(payloadLen)); err != nil {
		return nil, err
	}
	payload := append([]byte(nil), b[off:off+int(payloadLen)]...)
	off += int(payloadLen)

	if err := need(2); err != nil {
		return nil, err
	}
	padLen := binary.BigEndian.Uint16(b[off:])
	off += 2
	if int(padLen) > qseMaxPad {
		return nil, reject(ReasonBoundsExceeded, "pad exceeds %d bytes", qseMaxPad)
	}
	if err := need(int(padLen)); err != nil {
		return nil, err
	}
	pad := append([]byte(nil), b[off:off+int(padLen)]...)
	off += int(padLen)

	if off != len(b) {
		return nil, reject(ReasonNoncanonicalQSE, "%d trailing bytes", len(b)-off)
	}

	return &Envelope{
		EnvVersion:      envVersion,
		Flags:           flags,
		RouteToken:      routeToken,
		TimestampBucket: timestampBucket,
		PayloadLen:      payloadLen,
		Payload:         payload,
		PadLen:          padLen,
		Pad:             pad,
	}, nil
}

// Serialise re-encodes an Envelope in canonical wire order.
func (e *Envelope) Serialise() []byte {
	buf := make([]byte, 0, 16+len(e.RouteToken)+len(e.Payload)+len(e.Pad))
	var tmp [4]byte
	binary.BigEndian.PutUint16(tmp[:2], e.EnvVersion)
	buf = append(buf, tmp[:2]...)
	binary.BigEndian.PutUint16(tmp[:2], e.Flags)
	buf = append(buf, tmp[:2]...)
	binary.BigEndian.PutUint16(tmp[:2], uint16(len(e.RouteToken)))
	buf = append(buf, tmp[:2]...)
	buf = append(buf, e.RouteToken...)
	binary.BigEndian.PutUint32(tmp[:4], e.TimestampBucket)
	buf = append(buf, tmp[:4]...)
	binary.BigEndian.PutUint32(tmp[:4], uint32(len(e.Payload)))
	buf = append(buf, tmp[:4]...)
	buf = append(buf, e.Payload...)
	binary.BigEndian.PutUint16(tmp[:2], uint16(len(e.Pad)))
	buf = append(buf, tmp[:2]...)
	buf = append(buf, e.Pad...)
	return buf
}
