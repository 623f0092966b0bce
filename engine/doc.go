// Package engine wires together the wire codec (package wire), the
// SCKA state machine (package scka), the hybrid ratchet (package
// ratchet), and the durable journal (package durability) into the
// session-level operations a QSP endpoint exposes: handshake,
// encrypt/decrypt, and debug snapshot/restore. It is the one package
// that knows how those four pieces compose; apart from ratchet, which
// embeds an scka.Party in its State, none of them import each other.
package engine
