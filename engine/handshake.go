package engine

import (
	circlkem "github.com/cloudflare/circl/kem"

	"github.com/quantumshieldlabs/qsp-core/ratchet"
	"github.com/quantumshieldlabs/qsp-core/wire"
)

// HandshakeInitMessage is what handshake_init hands the caller to send
// to the peer out of band: this side's DH and PQ public keys.
type HandshakeInitMessage struct {
	DHPub ratchet.PublicKey
	PQPub circlkem.PublicKey
}

// HandshakeInit begins a session as the initiator: it generates this
// side's PQ key pair and a fresh DH key pair, returning both public
// keys to hand to the peer. The session is not yet established; call
// HandshakeFinish with the peer's response to complete it.
func (s *Session) HandshakeInit() (*HandshakeInitMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != nil {
		return nil, reject(wire.ReasonInvalidRequest, "handshake already in progress or established")
	}

	pqPriv, pqPub, err := ratchet.GeneratePQ()
	if err != nil {
		return nil, reject(wire.ReasonHandshakeFail, "generate pq key pair: %v", err)
	}
	dhs, dhsPub, err := ratchet.GenerateDH()
	if err != nil {
		return nil, reject(wire.ReasonHandshakeFail, "generate dh key pair: %v", err)
	}

	s.pqPriv = pqPriv
	s.pqPub = pqPub
	// Stash the ephemeral DH key pair in a bare-bones state until the
	// peer's response arrives and InitAlice can run.
	s.state = ratchet.InitBob([16]byte(s.id), ratchet.RootKey{}, dhs, dhsPub, s.cfg.MaxSkip, s.cfg.MaxHKSkipped)
	return &HandshakeInitMessage{DHPub: dhsPub, PQPub: pqPub}, nil
}

// HandshakeRespondMessage is what handshake_respond hands the caller to
// send back to the initiator.
type HandshakeRespondMessage struct {
	DHPub ratchet.PublicKey
	PQCt  []byte
}

// HandshakeRespond completes the handshake from the responder's side:
// given the initiator's public keys, it encapsulates to the PQ key and
// performs the DH exchange to derive the initial root key, but does
// not yet derive a sending chain — as in the classical construction,
// the responder's chains come alive only when Alice's first message
// triggers a DH ratchet step (see Decrypt), so that Bob always sends on
// a fresh DH key the initiator has not seen before.
func (s *Session) HandshakeRespond(peer *HandshakeInitMessage) (*HandshakeRespondMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != nil {
		return nil, reject(wire.ReasonInvalidRequest, "handshake already in progress or established")
	}

	dhs, dhsPub, err := ratchet.GenerateDH()
	if err != nil {
		return nil, reject(wire.ReasonHandshakeFail, "generate dh key pair: %v", err)
	}
	ecShared, err := ratchet.DH(dhs, peer.DHPub)
	if err != nil {
		return nil, reject(wire.ReasonHandshakeFail, "dh: %v", err)
	}
	pqCt, pqShared, err := ratchet.EncapsulatePQ(peer.PQPub)
	if err != nil {
		return nil, reject(wire.ReasonHandshakeFail, "pq encapsulate: %v", err)
	}

	rootSeed := ratchet.DeriveInitialRootKey([16]byte(s.id), ecShared, pqShared)
	s.state = ratchet.InitBob([16]byte(s.id), rootSeed, dhs, dhsPub, s.cfg.MaxSkip, s.cfg.MaxHKSkipped)
	return &HandshakeRespondMessage{DHPub: dhsPub, PQCt: pqCt}, nil
}

// HandshakeFinish completes the handshake from the initiator's side
// using the responder's reply.
func (s *Session) HandshakeFinish(peer *HandshakeRespondMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return reject(wire.ReasonInvalidRequest, "handshake_init was not called")
	}
	if s.state.DHr != nil {
		return reject(wire.ReasonInvalidRequest, "handshake already established")
	}

	ecShared, err := ratchet.DH(s.state.DHs, peer.DHPub)
	if err != nil {
		return reject(wire.ReasonHandshakeFail, "dh: %v", err)
	}
	pqShared, err := ratchet.DecapsulatePQ(s.pqPriv, peer.PQCt)
	if err != nil {
		return reject(wire.ReasonHandshakeFail, "pq decapsulate: %v", err)
	}

	rootSeed := ratchet.DeriveInitialRootKey([16]byte(s.id), ecShared, pqShared)
	state, err := ratchet.InitAliceWithKeyPair([16]byte(s.id), rootSeed, s.state.DHs, s.state.DHsPub, peer.DHPub, s.cfg.MaxSkip, s.cfg.MaxHKSkipped)
	if err != nil {
		return reject(wire.ReasonHandshakeFail, "init alice: %v", err)
	}

	s.state = state
	return nil
}
