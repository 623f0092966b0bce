package actor

import (
	"encoding/hex"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/quantumshieldlabs/qsp-core/durability"
	"github.com/quantumshieldlabs/qsp-core/engine"
)

// Actor owns one process's worth of sessions, keyed by session_id hex,
// plus the durable journal shared across all of them, mirroring how
// interop_actor.py's Actor class holds one journal/db handle per
// process and many in-memory sessions.
type Actor struct {
	mu       sync.Mutex
	name     string
	sessions map[string]*engine.Session
	journal  *durability.Journal
	log      *zap.Logger

	// suite2 holds the vector-runner conformance surface's own session
	// state, kept entirely separate from the live protocol's sessions
	// map above (see suite2.go).
	suite2 map[string]*suite2Pair
}

// New constructs an Actor. journal may be nil for an ephemeral,
// non-durable actor (used by conformance scenarios that don't exercise
// §8's durability ops).
func New(name string, journal *durability.Journal, log *zap.Logger) *Actor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Actor{
		name:     name,
		sessions: make(map[string]*engine.Session),
		journal:  journal,
		log:      log,
	}
}

func (a *Actor) sessionKey(id [16]byte) string {
	return hex.EncodeToString(id[:])
}

// session returns the named session, creating a fresh unhandshaken one
// on first reference (every op's params carries a session_id; the actor
// protocol has no separate "create session" op).
func (a *Actor) session(id [16]byte) *engine.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := a.sessionKey(id)
	s, ok := a.sessions[key]
	if !ok {
		s = engine.New(id, engine.DefaultConfig(), a.journal, a.log)
		a.sessions[key] = s
	}
	return s
}

func decodeSessionID(hexOrB64 string) ([16]byte, error) {
	var id [16]byte
	b, err := hex.DecodeString(hexOrB64)
	if err != nil || len(b) != 16 {
		return id, fmt.Errorf("actor: session_id must be 32 hex characters")
	}
	copy(id[:], b)
	return id, nil
}
