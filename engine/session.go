package engine

import (
	"sync"

	circlkem "github.com/cloudflare/circl/kem"
	"go.uber.org/zap"

	"github.com/quantumshieldlabs/qsp-core/durability"
	"github.com/quantumshieldlabs/qsp-core/ratchet"
	"github.com/quantumshieldlabs/qsp-core/wire"
)

// Config bundles the policy knobs an engine session needs. The actor
// creates every session with DefaultConfig; no field is read from CLI
// flags or the environment.
type Config struct {
	Suite        uint16
	MaxSkip      uint32
	MaxHKSkipped uint32
	Policy       wire.Policy
}

// DefaultConfig returns the conformance-suite defaults from spec.md §7.
func DefaultConfig() Config {
	return Config{
		Suite:        wire.SuiteNIST,
		MaxSkip:      1000,
		MaxHKSkipped: 64,
		Policy: wire.Policy{
			AllowZeroTimestampBucket: false,
			TimestampWindowEnforced:  true,
		},
	}
}

// Session is one QSP endpoint: it owns the hybrid ratchet state, this
// side's SCKA view of the peer, and the durable journal backing
// replay/rollback detection for this session_id.
type Session struct {
	mu sync.Mutex

	id      [16]byte
	cfg     Config
	state   *ratchet.State
	store   ratchet.Store
	journal *durability.Journal
	pqPriv  circlkem.PrivateKey
	pqPub   circlkem.PublicKey
	epoch   uint32
	log     *zap.Logger

	// advKeys holds the private half of every SCKA ADV this side has
	// emitted and not yet seen consumed by a matching CTXT, keyed by
	// adv_id. Separate from pqPriv/pqPub, which are the one-shot
	// handshake KEM key pair, not a re-seedable SCKA advertisement.
	advKeys map[uint32]circlkem.PrivateKey
}

// New constructs a fresh, un-handshaken session. log may be nil, in
// which case a no-op logger is used (matching zap.NewNop's role as the
// teacher's silence-by-default policy for library code).
func New(id [16]byte, cfg Config, journal *durability.Journal, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		id:      id,
		cfg:     cfg,
		store:   ratchet.NewMemoryStore(),
		journal: journal,
		log:     log,
		advKeys: make(map[uint32]circlkem.PrivateKey),
	}
}

// ID returns the session's identifier.
func (s *Session) ID() [16]byte { return s.id }

// Ops is the enumerated set of operation names a Session method-per-op
// maps onto directly. It excludes the suite2.* vector-runner surface,
// which is a pure actor-layer concern with no corresponding Session
// method.
var Ops = []string{
	"reset",
	"handshake_init",
	"handshake_respond",
	"handshake_finish",
	"handshake_status",
	"encrypt",
	"decrypt",
	"debug_snapshot",
	"debug_restore",
	"capabilities",
	"scka_emit_adv",
	"scka_receive_adv",
	"scka_receive_ctxt",
}

// Capabilities reports the enumerated set of operation names this
// session supports, per spec.md §4.5/§9.
func (s *Session) Capabilities() map[string]any {
	return map[string]any{
		"ops":            Ops,
		"suites":         []string{"nist", "djb"},
		"max_skip":       s.cfg.MaxSkip,
		"max_hk_skipped": s.cfg.MaxHKSkipped,
		"pq_kem":         "Kyber768",
	}
}

// Reset discards all session state, returning the session to its
// pre-handshake condition. It does not clear the durable journal: a
// reset session_id must not be able to replay messages a prior
// incarnation already accepted.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = nil
	s.store = ratchet.NewMemoryStore()
	s.pqPriv = nil
	s.pqPub = nil
	s.epoch = 0
	s.advKeys = make(map[uint32]circlkem.PrivateKey)
}

// Status reports whether the session has completed a handshake:
// "unhandshaken" before any handshake op, "pending" on the initiator
// between HandshakeInit and HandshakeFinish, and "established" otherwise.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return "unhandshaken"
	}
	if s.state.DHr == nil && s.pqPriv != nil {
		// handshake_init ran but handshake_finish has not.
		return "pending"
	}
	return "established"
}
