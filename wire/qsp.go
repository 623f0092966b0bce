package wire

import "encoding/binary"

// QSP wire constants, per spec.md §3.
const (
	ProtocolVersion uint16 = 0x0403

	SuiteNIST uint16 = 0x0001
	SuiteDJB  uint16 = 0x0002

	FlagPQAdv  uint16 = 0x0001
	FlagPQCtxt uint16 = 0x0002

	pqAdvPubLen = 1184 // Kyber768 public key
	pqCtLen     = 1088 // Kyber768 ciphertext
	hdrCtLen    = 24
	minBodyCt   = 16
)

// Prefix is a parsed QSP protocol message prefix plus its conditional PQ
// fields and trailing ciphertexts, per spec.md §3.
type Prefix struct {
	ProtocolVersion uint16
	SuiteID         uint16
	SessionID       [16]byte
	DHPub           [32]byte
	Flags           uint16
	NonceHdr        [12]byte

	PQAdvID  uint32
	PQAdvPub []byte // present iff Flags&FlagPQAdv != 0

	PQTargetID uint32
	PQCt       []byte // present iff Flags&FlagPQCtxt != 0

	HdrCt  []byte
	BodyCt []byte
}

// ParseQSP reads a QSP wire prefix with strict lengths; any deviation is
// invalid_request (spec.md §4.1).
func ParseQSP(b []byte) (*Prefix, error) {
	off := 0
	need := func(n int) error {
		if off+n > len(b) {
			return reject(ReasonInvalidRequest, "truncated at offset %d (need %d)", off, n)
		}
		return nil
	}

	if err := need(2); err != nil {
		return nil, err
	}
	pv := binary.BigEndian.Uint16(b[off:])
	off += 2
	if pv != ProtocolVersion {
		return nil, reject(ReasonInvalidRequest, "unknown protocol_version 0x%04x", pv)
	}

	if err := need(2); err != nil {
		return nil, err
	}
	suite := binary.BigEndian.Uint16(b[off:])
	off += 2
	if suite != SuiteNIST && suite != SuiteDJB {
		return nil, reject(ReasonInvalidRequest, "unknown suite_id 0x%04x", suite)
	}

	p := &Prefix{ProtocolVersion: pv, SuiteID: suite}

	if err := need(16); err != nil {
		return nil, err
	}
	copy(p.SessionID[:], b[off:])
	off += 16

	if err := need(32); err != nil {
		return nil, err
	}
	copy(p.DHPub[:], b[off:])
	off += 32

	if err := need(2); err != nil {
		return nil, err
	}
	flags := binary.BigEndian.Uint16(b[off:])
	off += 2
	if flags&^(FlagPQAdv|FlagPQCtxt) != 0 {
		return nil, reject(ReasonInvalidRequest, "unknown flags 0x%04x", flags)
	}
	p.Flags = flags

	if err := need(12); err != nil {
		return nil, err
	}
	copy(p.NonceHdr[:], b[off:])
	off += 12

	if flags&FlagPQAdv != 0 {
		if err := need(4); err != nil {
			return nil, err
		}
		p.PQAdvID = binary.BigEndian.Uint32(b[off:])
		off += 4
		if err := need(pqAdvPubLen); err != nil {
			return nil, err
		}
		p.PQAdvPub = append([]byte(nil), b[off:off+pqAdvPubLen]...)
		off += pqAdvPubLen
	}

	if flags&FlagPQCtxt != 0 {
		if err := need(4); err != nil {
			return nil, err
		}
		p.PQTargetID = binary.BigEndian.Uint32(b[off:])
		off += 4
		if err := need(pqCtLen); err != nil {
			return nil, err
		}
		p.PQCt = append([]byte(nil), b[off:off+pqCtLen]...)
		off += pqCtLen
	}

	if err := need(2); err != nil {
		return nil, err
	}
	hl := binary.BigEndian.Uint16(b[off:])
	off += 2
	if hl != hdrCtLen {
		return nil, reject(ReasonInvalidRequest, "hdr_ct_len must be %d, got %d", hdrCtLen, hl)
	}
	if err := need(hdrCtLen); err != nil {
		return nil, err
	}
	p.HdrCt = append([]byte(nil), b[off:off+hdrCtLen]...)
	off += hdrCtLen

	if err := need(4); err != nil {
		return nil, err
	}
	bl := binary.BigEndian.Uint32(b[off:])
	off += 4
	if bl < minBodyCt {
		return nil, reject(ReasonInvalidRequest, "body_ct_len %d below minimum %d", bl, minBodyCt)
	}
	if err := need(int(bl)); err != nil {
		return nil, err
	}
	p.BodyCt = append([]byte(nil), b[off:off+int(bl)]...)
	off += int(bl)

	if off != len(b) {
		return nil, reject(ReasonInvalidRequest, "%d trailing bytes", len(b)-off)
	}

	return p, nil
}

// Serialise re-encodes the prefix in canonical wire order.
func (p *Prefix) Serialise() []byte {
	buf := make([]byte, 0, 64+len(p.PQAdvPub)+len(p.PQCt)+len(p.HdrCt)+len(p.BodyCt))
	var tmp [4]byte

	binary.BigEndian.PutUint16(tmp[:2], p.ProtocolVersion)
	buf = append(buf, tmp[:2]...)
	binary.BigEndian.PutUint16(tmp[:2], p.SuiteID)
	buf = append(buf, tmp[:2]...)
	buf = append(buf, p.SessionID[:]...)
	buf = append(buf, p.DHPub[:]...)
	binary.BigEndian.PutUint16(tmp[:2], p.Flags)
	buf = append(buf, tmp[:2]...)
	buf = append(buf, p.NonceHdr[:]...)

	if p.Flags&FlagPQAdv != 0 {
		binary.BigEndian.PutUint32(tmp[:4], p.PQAdvID)
		buf = append(buf, tmp[:4]...)
		buf = append(buf, p.PQAdvPub...)
	}
	if p.Flags&FlagPQCtxt != 0 {
		binary.BigEndian.PutUint32(tmp[:4], p.PQTargetID)
		buf = append(buf, tmp[:4]...)
		buf = append(buf, p.PQCt...)
	}

	binary.BigEndian.PutUint16(tmp[:2], uint16(len(p.HdrCt)))
	buf = append(buf, tmp[:2]...)
	buf = append(buf, p.HdrCt...)
	binary.BigEndian.PutUint32(tmp[:4], uint32(len(p.BodyCt)))
	buf = append(buf, tmp[:4]...)
	buf = append(buf, p.BodyCt...)
	return buf
}
