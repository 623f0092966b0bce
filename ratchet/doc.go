// Package ratchet implements the QSP 5.0 hybrid double ratchet: a
// classical X25519 Diffie-Hellman ratchet combined with a post-quantum
// KEM re-seed (SCKA-driven) over three KDF chains, following the
// double-ratchet construction described in [signal] but replacing the
// single EC chain with a hybrid EC+PQ chain per QSP5.0.
//
// # KDF Chains
//
// Each side keeps an EC chain key and a PQ chain key. Every message
// advances both chains one step and combines their outputs into a
// single hybrid message key:
//
//	CK_ec  --KMAC(QSP5.0/CK)--> CK_ec'
//	       \-KMAC(QSP5.0/MK)--> ec_mk --\
//	                                     KMAC(QSP5.0/HYBRID) --> MK
//	CK_pq  --KMAC(QSP5.0/PQCK)-> CK_pq'
//	       \-KMAC(QSP5.0/PQMK)-> pq_mk --/
//
// The PQ chains are re-seeded out of band when an SCKA exchange (package
// scka) completes: the receiving chain when a peer ADV is accepted, the
// sending chain when a CTXT is consumed; see State.ReseedPQRecv and
// State.ReseedPQSend.
//
// # Diffie-Hellman Ratchet
//
// As in the classical construction, each side holds an ephemeral X25519
// key pair; a new peer public key in an incoming message begins a new
// epoch, deriving fresh root, chain, and header keys.
//
// # Header encryption
//
// Unlike the unencrypted-header double ratchet this package's author
// previously shipped, QSP5.0 AEAD-seals the header (pn, n) under a
// per-epoch, per-direction header key, so this package derives and
// manages HeaderKey material in addition to MessageKey material.
//
// [signal]: https://signal.org/docs/specifications/doubleratchet/doubleratchet.pdf
package ratchet
