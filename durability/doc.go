// Package durability implements the durable replay journal and
// snapshot/restore machinery described in spec.md §8: every accepted
// inbound message index is recorded before the caller is told it was
// accepted, so a crash-and-restart cannot be tricked into accepting the
// same ciphertext twice, and a session can be serialised to an opaque
// blob and later restored without silently rewinding past its own
// epoch history (a rollback is rejected with a reason distinguishable
// from plain durable replay).
package durability
