package wire

import "encoding/binary"

// Key Transparency artifact framings, per spec.md §4.1. These are
// canonical fixed-sized framings; any deviation is kt_fail.
const (
	ktMaxProofCount = 64
	ktHashSize      = 32
	sthTotalLen     = 3453
)

// InclusionProof is u16(count<=64) || count*32B || u64.
type InclusionProof struct {
	Entries [][ktHashSize]byte
	Index   uint64
}

func ParseInclusionProof(b []byte) (*InclusionProof, error) {
	if len(b) < 2 {
		return nil, reject(ReasonKTFail, "truncated inclusion proof")
	}
	count := int(binary.BigEndian.Uint16(b))
	if count > ktMaxProofCount {
		return nil, reject(ReasonKTFail, "inclusion proof count %d exceeds %d", count, ktMaxProofCount)
	}
	want := 2 + count*ktHashSize + 8
	if len(b) != want {
		return nil, reject(ReasonKTFail, "inclusion proof length %d != %d", len(b), want)
	}
	off := 2
	entries := make([][ktHashSize]byte, count)
	for i := 0; i < count; i++ {
		copy(entries[i][:], b[off:off+ktHashSize])
		off += ktHashSize
	}
	idx := binary.BigEndian.Uint64(b[off:])
	return &InclusionProof{Entries: entries, Index: idx}, nil
}

func (p *InclusionProof) Serialise() []byte {
	buf := make([]byte, 2+len(p.Entries)*ktHashSize+8)
	binary.BigEndian.PutUint16(buf, uint16(len(p.Entries)))
	off := 2
	for _, e := range p.Entries {
		copy(buf[off:], e[:])
		off += ktHashSize
	}
	binary.BigEndian.PutUint64(buf[off:], p.Index)
	return buf
}

// ConsistencyProof is u16(count<=64) || count*32B.
type ConsistencyProof struct {
	Entries [][ktHashSize]byte
}

func ParseConsistencyProof(b []byte) (*ConsistencyProof, error) {
	if len(b) < 2 {
		return nil, reject(ReasonKTFail, "truncated consistency proof")
	}
	count := int(binary.BigEndian.Uint16(b))
	if count > ktMaxProofCount {
		return nil, reject(ReasonKTFail, "consistency proof count %d exceeds %d", count, ktMaxProofCount)
	}
	want := 2 + count*ktHashSize
	if len(b) != want {
		return nil, reject(ReasonKTFail, "consistency proof length %d != %d", len(b), want)
	}
	off := 2
	entries := make([][ktHashSize]byte, count)
	for i := 0; i < count; i++ {
		copy(entries[i][:], b[off:off+ktHashSize])
		off += ktHashSize
	}
	return &ConsistencyProof{Entries: entries}, nil
}

func (p *ConsistencyProof) Serialise() []byte {
	buf := make([]byte, 2+len(p.Entries)*ktHashSize)
	binary.BigEndian.PutUint16(buf, uint16(len(p.Entries)))
	off := 2
	for _, e := range p.Entries {
		copy(buf[off:], e[:])
		off += ktHashSize
	}
	return buf
}

// SignedTreeHead is a fixed 3453-byte framing. The internal layout
// (tree size, root hash, timestamp, signature) is opaque to this codec;
// only the total length is a canonicality invariant.
type SignedTreeHead struct {
	Raw [sthTotalLen]byte
}

func ParseSignedTreeHead(b []byte) (*SignedTreeHead, error) {
	if len(b) != sthTotalLen {
		return nil, reject(ReasonKTFail, "signed tree head length %d != %d", len(b), sthTotalLen)
	}
	sth := &SignedTreeHead{}
	copy(sth.Raw[:], b)
	return sth, nil
}

func (s *SignedTreeHead) Serialise() []byte {
	return append([]byte(nil), s.Raw[:]...)
}
