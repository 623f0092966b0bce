package ratchet

import (
	"crypto/sha512"
	"fmt"

	circlkem "github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/schemes"
)

// pqScheme is fixed at Kyber768 for suite NIST; its public-key and
// ciphertext sizes (1184B / 1088B) are the pqAdvPubLen/pqCtLen
// constants in package wire.
var pqScheme = schemes.ByName("Kyber768")

// GeneratePQ creates a fresh Kyber768 advertisement key pair.
func GeneratePQ() (circlkem.PrivateKey, circlkem.PublicKey, error) {
	pub, priv, err := pqScheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("ratchet: generate pq key pair: %w", err)
	}
	return priv, pub, nil
}

// MarshalPQPublic serialises a PQ public key to its fixed-length wire
// form (wire.pqAdvPubLen bytes).
func MarshalPQPublic(pub circlkem.PublicKey) ([]byte, error) {
	return pub.MarshalBinary()
}

// UnmarshalPQPublic parses a PQ public key from its wire form.
func UnmarshalPQPublic(b []byte) (circlkem.PublicKey, error) {
	pub, err := pqScheme.UnmarshalBinaryPublicKey(b)
	if err != nil {
		return nil, fmt.Errorf("ratchet: unmarshal pq public key: %w", err)
	}
	return pub, nil
}

// MarshalPQPrivate serialises a PQ private key for storage in a session
// snapshot.
func MarshalPQPrivate(priv circlkem.PrivateKey) ([]byte, error) {
	return priv.MarshalBinary()
}

// UnmarshalPQPrivate parses a PQ private key from its snapshot form.
func UnmarshalPQPrivate(b []byte) (circlkem.PrivateKey, error) {
	priv, err := pqScheme.UnmarshalBinaryPrivateKey(b)
	if err != nil {
		return nil, fmt.Errorf("ratchet: unmarshal pq private key: %w", err)
	}
	return priv, nil
}

// EncapsulatePQ runs KEM encapsulation against an advertised PQ public
// key, returning the ciphertext to place on the wire and the shared
// secret to fold into the PQ chain.
func EncapsulatePQ(pub circlkem.PublicKey) (ct, sharedSecret []byte, err error) {
	ct, ss, err := pqScheme.Encapsulate(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("ratchet: pq encapsulate: %w", err)
	}
	return ct, ss, nil
}

// DecapsulatePQ recovers the shared secret from a received ciphertext
// using the holder's own PQ private key.
func DecapsulatePQ(priv circlkem.PrivateKey, ct []byte) ([]byte, error) {
	ss, err := pqScheme.Decapsulate(priv, ct)
	if err != nil {
		return nil, fmt.Errorf("ratchet: pq decapsulate: %w", err)
	}
	return ss, nil
}

// PQBind derives the pq_bind value folded into the associated data of
// every sealed message: a short, non-secret binding of the currently
// active PQ advertisement/target pair so that AD commits to which PQ
// material was in force. Per spec.md §4.5, pq_bind is the truncated
// 32-byte SHA-512 of "QSP5.0/PQ-BIND" || u16(flags) || PQ-prefix, where
// PQ-prefix identifies the adv/target ids and any in-flight PQ key
// material rather than being KMAC'd under a session-specific key.
func PQBind(flags uint16, advID, targetID uint32, advPub, ct []byte) []byte {
	prefix := make([]byte, 0, 8+len(advPub)+len(ct))
	var tmp [4]byte
	putU32(tmp[:], advID)
	prefix = append(prefix, tmp[:]...)
	putU32(tmp[:], targetID)
	prefix = append(prefix, tmp[:]...)
	prefix = append(prefix, advPub...)
	prefix = append(prefix, ct...)
	return PQBindFromPrefix(flags, prefix)
}

// PQBindFromPrefix is the raw primitive behind PQBind, taking the
// PQ-prefix bytes directly rather than assembling them from adv/target
// ids: used by the suite2 vector-runner ops, which receive an arbitrary
// pq_prefix (often empty) as an op parameter instead of deriving one
// from live session state.
func PQBindFromPrefix(flags uint16, prefix []byte) []byte {
	m := make([]byte, 0, len(labelPQBind)+2+len(prefix))
	m = append(m, labelPQBind...)
	m = append(m, byte(flags>>8), byte(flags))
	m = append(m, prefix...)
	digest := sha512.Sum512(m)
	out := make([]byte, 32)
	copy(out, digest[:32])
	return out
}
