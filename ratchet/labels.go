package ratchet

// KMAC256 domain-separation labels, grounded on the constants used by
// tools/actors/interop_actor_py/interop_actor.py's KDF helpers. Every
// kmac256 call in this package uses exactly one of these labels as its
// customization string, so a transcript dump can be matched
// label-for-label against the reference actor. labelPQBind and
// labelSCKACtxt are the exceptions: they are prefixed to the hashed or
// KMAC'd data instead (see PQBindFromPrefix and seedPQChain).
const (
	labelRootInit = "QSP5.0/RK0" // (dh_init, session_id) -> bootstrap root_key half
	labelRootPQ   = "QSP5.0/RKPQ" // (root_key, pq_shared_secret) -> new root_key
	labelRootKDF  = "QSP5.0/RK"  // (root_key, dh_or_kem_output) -> new root_key
	labelRKDH     = "QSP5.0/RKDH" // (root_key, dh_output) -> (new root_key, ck0), suite2 only
	labelChainNext = "QSP5.0/CK"  // chain_key -> next chain_key
	labelChainMK   = "QSP5.0/MK"  // chain_key -> ec message key material

	// labelChainInitAB/BA seed a fresh epoch's EC chain key from the new
	// root key, picked by which direction this chain carries (the role
	// that owns the send side vs. the role that owns the recv side).
	labelChainInitAB = "QSP5.0/CK0/A->B"
	labelChainInitBA = "QSP5.0/CK0/B->A"

	labelPQChainNxt = "QSP5.0/PQCK" // pq_chain_key -> next pq_chain_key
	labelPQChainMK  = "QSP5.0/PQMK" // pq_chain_key -> pq message key material
	labelHybrid     = "QSP5.0/HYBRID"

	// labelHeaderKeyAB/BA are the two per-direction header keys derived
	// together at every epoch start; a session picks its own HKs/HKr
	// from this pair according to its role (A or B).
	labelHeaderKeyAB = "QSP5.0/HK/A->B"
	labelHeaderKeyBA = "QSP5.0/HK/B->A"

	labelHdrNonce  = "QSP5.0/HDR-NONCE"
	labelBodyNonce = "QSP5.0/BODY-NONCE"
	labelPQBind    = "QSP5.0/PQ-BIND"

	// labelSCKACtxt is not a KMAC customization string: it is the
	// literal context-prefix folded into the *data* argument of the PQ
	// reseed derivation (see seedPQChain), per interop_actor.py's
	// suite2.kdf_pq_reseed.
	labelSCKACtxt = "QSP5.0/SCKA/CTXT"
	labelPQSeedAB = "QSP5.0/PQSEED/A->B"
	labelPQSeedBA = "QSP5.0/PQSEED/B->A"

	// labelPQ0AB seeds the initial A->B PQ chain key straight off the
	// bootstrap root key, per suite2.establish.run's pq0_a2b derivation.
	// There is no B->A counterpart: the responder's PQ send chain only
	// comes alive once an SCKA CTXT reseeds it (see seedPQChain).
	labelPQ0AB = "QSP5.0/PQ0/A->B"
)
