package ratchet

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// RootKey, ChainKey, MessageKey, and HeaderKey are all 32-byte KMAC256
// outputs; the distinct types exist so the compiler keeps a root key
// from being passed where a chain key is expected, mirroring dr.go's
// RootKey/ChainKey/MessageKey separation.
type (
	RootKey    [32]byte
	ChainKey   [32]byte
	MessageKey [32]byte
	HeaderKey  [32]byte
)

// PrivateKey is an X25519 scalar; PublicKey its corresponding point.
type PrivateKey [32]byte
type PublicKey [32]byte

// GenerateDH creates a fresh X25519 key pair for the DH ratchet.
func GenerateDH() (PrivateKey, PublicKey, error) {
	var sk PrivateKey
	if _, err := rand.Read(sk[:]); err != nil {
		return sk, PublicKey{}, fmt.Errorf("ratchet: generate dh key: %w", err)
	}
	var pk PublicKey
	pub, err := curve25519.X25519(sk[:], curve25519.Basepoint)
	if err != nil {
		return sk, PublicKey{}, fmt.Errorf("ratchet: derive dh public key: %w", err)
	}
	copy(pk[:], pub)
	return sk, pk, nil
}

// DH performs the X25519 scalar multiplication sk*pk.
func DH(sk PrivateKey, pk PublicKey) ([]byte, error) {
	out, err := curve25519.X25519(sk[:], pk[:])
	if err != nil {
		return nil, fmt.Errorf("ratchet: dh: %w", err)
	}
	return out, nil
}

// Header is the plaintext of an epoch header, AEAD-sealed under the
// direction's header key before being placed on the wire as hdr_ct.
type Header struct {
	PN uint32 // length of the previous sending chain
	N  uint32 // message index in the current sending chain
}

// Encode serialises the header to its fixed 8-byte plaintext form.
func (h Header) Encode() []byte {
	buf := make([]byte, 8)
	putU32(buf[0:4], h.PN)
	putU32(buf[4:8], h.N)
	return buf
}

// DecodeHeader parses an 8-byte header plaintext.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) != 8 {
		return Header{}, fmt.Errorf("ratchet: header plaintext length %d != 8", len(b))
	}
	return Header{PN: getU32(b[0:4]), N: getU32(b[4:8])}, nil
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
