package ratchet

import (
	"crypto/sha512"

	"golang.org/x/crypto/sha3"
)

// cshake256Rate is r/8 for cSHAKE256 (NIST SP800-185 §2.3.3).
const cshake256Rate = 136

// kmac256 implements KMAC256(K, X, L, S) from NIST SP800-185 on top of
// x/crypto/sha3's cSHAKE256 primitive: this package hand-rolls only the
// bytepad/encode_string/KMAC framing (a few lines of NIST-spec padding),
// not the underlying Keccak permutation, which x/crypto/sha3 already
// provides and is exercised nowhere else as a dependency in this pack.
func kmac256(key, data []byte, label string, outLen int) []byte {
	newX := bytepad(encodeString(key), cshake256Rate)
	newX = append(newX, data...)
	newX = append(newX, rightEncode(uint64(outLen)*8)...)

	h := sha3.NewCShake256([]byte("KMAC"), []byte(label))
	h.Write(newX)
	out := make([]byte, outLen)
	h.Read(out)
	return out
}

func leftEncode(x uint64) []byte {
	b := encodeUint(x)
	return append([]byte{byte(len(b))}, b...)
}

func rightEncode(x uint64) []byte {
	b := encodeUint(x)
	return append(b, byte(len(b)))
}

// encodeUint returns x as a minimal-length big-endian byte string (at
// least one byte, so that encoding zero still yields a single 0x00).
func encodeUint(x uint64) []byte {
	if x == 0 {
		return []byte{0}
	}
	var tmp [8]byte
	n := 0
	for v := x; v > 0; v >>= 8 {
		tmp[n] = byte(v)
		n++
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = tmp[n-1-i]
	}
	return out
}

func encodeString(s []byte) []byte {
	return append(leftEncode(uint64(len(s))*8), s...)
}

func bytepad(x []byte, w int) []byte {
	z := append(leftEncode(uint64(w)), x...)
	for len(z)%w != 0 {
		z = append(z, 0)
	}
	return z
}

// DeriveInitialRootKey combines the classical and PQ handshake shared
// secrets into the root key that seeds epoch 0, in two steps: the DH
// output keyed under "QSP5.0/RK0" (bound to session_id), then the PQ
// shared secret folded in under "QSP5.0/RKPQ".
func DeriveInitialRootKey(sessionID [16]byte, ecShared, pqShared []byte) RootKey {
	rk0 := kmac256(ecShared, append(append([]byte(nil), sessionID[:]...), 0x01), labelRootInit, 32)
	var rk RootKey
	copy(rk[:], kmac256(rk0, append(append([]byte(nil), pqShared...), 0x01), labelRootPQ, 32))
	return rk
}

// deriveRootUpdate implements the root-key KDF step: given the current
// root key and a fresh DH or hybrid-KEM output, derive the next root
// key per QSP5.0's "QSP5.0/RK" label.
func deriveRootUpdate(rk RootKey, ratchetInput []byte) RootKey {
	combined := append(append([]byte(nil), rk[:]...), ratchetInput...)
	var newRK RootKey
	copy(newRK[:], kmac256(rk[:], combined, labelRootKDF, 32))
	return newRK
}

// deriveEpochHeaderKeys derives both per-direction header keys for a
// new epoch from its root key, per QSP5.0/HK/A->B and QSP5.0/HK/B->A —
// header keys are derived per direction at epoch start regardless of
// which direction's chain key is also being bootstrapped this call.
func deriveEpochHeaderKeys(rk RootKey) (hkAB, hkBA HeaderKey) {
	copy(hkAB[:], kmac256(rk[:], []byte{0x01}, labelHeaderKeyAB, 32))
	copy(hkBA[:], kmac256(rk[:], []byte{0x01}, labelHeaderKeyBA, 32))
	return hkAB, hkBA
}

// deriveChainInit seeds a fresh epoch's EC chain key from the new root
// key under the caller-selected directional label (labelChainInitAB or
// labelChainInitBA).
func deriveChainInit(rk RootKey, directionalLabel string) ChainKey {
	var ck ChainKey
	copy(ck[:], kmac256(rk[:], []byte{0x01}, directionalLabel, 32))
	return ck
}

// chainStep advances an EC chain key one position, returning the next
// chain key and the raw EC message-key material for this step. The
// 0x01/0x02 data-byte discriminators keep the chain-key-update and
// message-key-derivation calls from collapsing onto the same KMAC
// input under two different labels.
func chainStep(ck ChainKey) (next ChainKey, ecMK []byte) {
	copy(next[:], kmac256(ck[:], []byte{0x01}, labelChainNext, 32))
	ecMK = kmac256(ck[:], []byte{0x02}, labelChainMK, 32)
	return next, ecMK
}

// pqChainStep advances a PQ chain key one position, returning the next
// pq chain key and its raw message-key material.
func pqChainStep(ck ChainKey) (next ChainKey, pqMK []byte) {
	copy(next[:], kmac256(ck[:], []byte{0x01}, labelPQChainNxt, 32))
	pqMK = kmac256(ck[:], []byte{0x02}, labelPQChainMK, 32)
	return next, pqMK
}

// seedPQChain derives a fresh PQ chain key whenever the scka state
// machine consumes an ADV or CTXT, per QSP5.0/SCKA/CTXT: the context is
// the literal label, the target_id, a SHA-512/32 digest of the PQ
// ciphertext, and the KEM shared secret, KMAC'd under the root key with
// the caller-selected directional PQSEED label.
func seedPQChain(rk RootKey, targetID uint32, ct, sharedSecret []byte, directionalLabel string) ChainKey {
	digest := sha512.Sum512(ct)
	var tid [4]byte
	putU32(tid[:], targetID)

	ctx := make([]byte, 0, len(labelSCKACtxt)+4+32+len(sharedSecret))
	ctx = append(ctx, labelSCKACtxt...)
	ctx = append(ctx, tid[:]...)
	ctx = append(ctx, digest[:32]...)
	ctx = append(ctx, sharedSecret...)

	var ck ChainKey
	copy(ck[:], kmac256(rk[:], ctx, directionalLabel, 32))
	return ck
}

// combineHybrid folds an EC and a PQ message-key share into the single
// MessageKey used to seal/open a body ciphertext: KMAC keyed under the
// EC share, with the PQ share (plus a 0x01 discriminator) as data.
func combineHybrid(ecMK, pqMK []byte) MessageKey {
	var mk MessageKey
	data := append(append([]byte(nil), pqMK...), 0x01)
	copy(mk[:], kmac256(ecMK, data, labelHybrid, 32))
	return mk
}

// DeriveRKDH implements the suite2.kdf_rk_dh vector-runner primitive: a
// single 64-byte KMAC output under "QSP5.0/RKDH", split into the next
// root key and a freshly seeded EC chain key.
func DeriveRKDH(rk RootKey, dhOut []byte) (newRK RootKey, ck0 ChainKey) {
	out := kmac256(rk[:], dhOut, labelRKDH, 64)
	copy(newRK[:], out[:32])
	copy(ck0[:], out[32:64])
	return newRK, ck0
}

// DeriveRKPQ implements the suite2.kdf_rk_pq vector-runner primitive:
// KMAC(rk, pq_shared_secret || 0x01, "QSP5.0/RKPQ").
func DeriveRKPQ(rk RootKey, pqSharedSecret []byte) RootKey {
	var newRK RootKey
	data := append(append([]byte(nil), pqSharedSecret...), 0x01)
	copy(newRK[:], kmac256(rk[:], data, labelRootPQ, 32))
	return newRK
}

// DeriveECChainStep exposes chainStep for the suite2.kdf_ec_ck vector
// runner op.
func DeriveECChainStep(ck ChainKey) (next ChainKey, ecMK []byte) {
	return chainStep(ck)
}

// DerivePQChainStep exposes pqChainStep for the suite2.kdf_pq_ck
// vector runner op.
func DerivePQChainStep(ck ChainKey) (next ChainKey, pqMK []byte) {
	return pqChainStep(ck)
}

// CombineHybridMK exposes combineHybrid for the suite2.kdf_hybrid and
// suite2.mk_hybrid.check vector runner ops.
func CombineHybridMK(ecMK, pqMK []byte) MessageKey {
	return combineHybrid(ecMK, pqMK)
}

// DerivePQReseedPair derives both directional PQSEED candidates for the
// suite2.kdf_pq_reseed vector runner op, which (unlike the live
// ReseedPQSend/ReseedPQRecv) doesn't know this session's Role and so
// must report both directions.
func DerivePQReseedPair(rk RootKey, targetID uint32, ct, sharedSecret []byte) (a2b, b2a ChainKey) {
	a2b = seedPQChain(rk, targetID, ct, sharedSecret, labelPQSeedAB)
	b2a = seedPQChain(rk, targetID, ct, sharedSecret, labelPQSeedBA)
	return a2b, b2a
}

// BootstrapEpochKeys implements suite2.establish.run's key schedule off
// an already-derived root key: both directional header keys, the A->B
// initial EC chain key, and the A->B initial PQ chain key.
func BootstrapEpochKeys(rk RootKey) (hkAB, hkBA HeaderKey, ck0AB, pq0AB ChainKey) {
	hkAB, hkBA = deriveEpochHeaderKeys(rk)
	ck0AB = deriveChainInit(rk, labelChainInitAB)
	pq0AB = deriveChainInit(rk, labelPQ0AB)
	return hkAB, hkBA, ck0AB, pq0AB
}

// SHA512Truncated12 hashes m with SHA-512 and truncates to a 12-byte
// AEAD nonce: the suite2 vector-runner ops' nonce derivation, distinct
// from the live protocol's KMAC-based deriveNonce below.
func SHA512Truncated12(m []byte) [12]byte {
	digest := sha512.Sum512(m)
	var out [12]byte
	copy(out[:], digest[:12])
	return out
}

// deriveNonce derives a 12-byte AEAD nonce bound to the session,
// current epoch's DH public key, and message index, per the
// "QSP5.0/HDR-NONCE" / "QSP5.0/BODY-NONCE" labels.
func deriveNonce(label string, sessionID [16]byte, dhPub [32]byte, n uint32) [12]byte {
	var idx [4]byte
	idx[0] = byte(n >> 24)
	idx[1] = byte(n >> 16)
	idx[2] = byte(n >> 8)
	idx[3] = byte(n)
	data := append(append(append([]byte(nil), sessionID[:]...), dhPub[:]...), idx[:]...)
	var nonce [12]byte
	copy(nonce[:], kmac256(nil, data, label, 12))
	return nonce
}
