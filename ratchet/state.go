package ratchet

import (
	"errors"
	"fmt"

	"github.com/quantumshieldlabs/qsp-core/scka"
)

// ErrMaxSkipExceeded is returned when advancing a receive chain would
// skip more messages than MaxSkip allows in a single epoch.
var ErrMaxSkipExceeded = errors.New("ratchet: message index exceeds max_skip")

// ErrMaxHKSkippedExceeded is returned when storing a new epoch's skipped
// keys would exceed the number of retained header keys.
var ErrMaxHKSkippedExceeded = errors.New("ratchet: too many epochs with outstanding skipped keys")

// ErrReplay is returned when a message key for (header_key, n) was
// already consumed (either never skipped, or already used and deleted).
var ErrReplay = errors.New("ratchet: message key already consumed or never skipped")

// ErrNoPeerKey is returned by operations that require a known peer DH
// public key before one has been established.
var ErrNoPeerKey = errors.New("ratchet: no peer dh public key established yet")

// Role fixes which side of the A->B/B->A directional labels a session
// occupies. It is assigned once at handshake time and never changes,
// even though which physical chain (CKs vs CKr) carries the A->B
// traffic alternates across epochs as the DH ratchet steps.
type Role byte

const (
	RoleA Role = iota
	RoleB
)

// chainInitLabels returns the directional labels for (send, recv) from
// this role's perspective: A sends under CK0/A->B and receives under
// CK0/B->A; B is the mirror image.
func (r Role) chainInitLabels() (send, recv string) {
	if r == RoleA {
		return labelChainInitAB, labelChainInitBA
	}
	return labelChainInitBA, labelChainInitAB
}

// headerKeys picks this role's (send, recv) header keys from the
// directional pair, mirroring chainInitLabels.
func (r Role) headerKeys(hkAB, hkBA HeaderKey) (send, recv HeaderKey) {
	if r == RoleA {
		return hkAB, hkBA
	}
	return hkBA, hkAB
}

// pqSeedLabels returns the directional PQSEED labels for (send, recv)
// from this role's perspective, mirroring chainInitLabels.
func (r Role) pqSeedLabels() (send, recv string) {
	if r == RoleA {
		return labelPQSeedAB, labelPQSeedBA
	}
	return labelPQSeedBA, labelPQSeedAB
}

// State is the full hybrid double-ratchet state for one session
// direction pair, generalising dr.go's State (DHs/DHr/RK/CKs/CKr/Ns/Nr/PN)
// with a parallel PQ chain and per-direction header keys.
type State struct {
	SessionID [16]byte
	Role      Role

	DHs    PrivateKey
	DHsPub PublicKey
	DHr    *PublicKey

	RK RootKey

	CKs, CKr     *ChainKey
	PQCKs, PQCKr *ChainKey

	HKs, HKr   *HeaderKey
	NHKs, NHKr HeaderKey

	Ns, Nr, PN uint32

	SCKA *scka.Party

	MaxSkip      uint32
	MaxHKSkipped uint32
}

// Clone deep-copies s so a failed operation can be discarded without
// mutating the caller's committed state, following dr.go's Clone/Save
// fail-closed pattern.
func (s *State) Clone() *State {
	cp := *s
	if s.DHr != nil {
		v := *s.DHr
		cp.DHr = &v
	}
	if s.CKs != nil {
		v := *s.CKs
		cp.CKs = &v
	}
	if s.CKr != nil {
		v := *s.CKr
		cp.CKr = &v
	}
	if s.PQCKs != nil {
		v := *s.PQCKs
		cp.PQCKs = &v
	}
	if s.PQCKr != nil {
		v := *s.PQCKr
		cp.PQCKr = &v
	}
	if s.HKs != nil {
		v := *s.HKs
		cp.HKs = &v
	}
	if s.HKr != nil {
		v := *s.HKr
		cp.HKr = &v
	}
	if s.SCKA != nil {
		cp.SCKA = s.SCKA.Clone()
	}
	return &cp
}

// InitAlice begins a session as the handshake initiator: a fresh DH key
// pair is generated, the peer's first public key is already known, and
// the root chain is seeded from the hybrid handshake output.
func InitAlice(sessionID [16]byte, rootSeed RootKey, peerDHPub PublicKey, maxSkip, maxHKSkipped uint32) (*State, error) {
	dhs, dhsPub, err := GenerateDH()
	if err != nil {
		return nil, err
	}
	return InitAliceWithKeyPair(sessionID, rootSeed, dhs, dhsPub, peerDHPub, maxSkip, maxHKSkipped)
}

// InitAliceWithKeyPair is InitAlice for a caller that already holds the
// DH key pair to use for this epoch (the engine package's handshake,
// which must derive CKs/HKs from the exact key pair whose public half
// it already sent to the peer, not a freshly generated one).
func InitAliceWithKeyPair(sessionID [16]byte, rootSeed RootKey, dhs PrivateKey, dhsPub PublicKey, peerDHPub PublicKey, maxSkip, maxHKSkipped uint32) (*State, error) {
	dhOut, err := DH(dhs, peerDHPub)
	if err != nil {
		return nil, err
	}
	rk := deriveRootUpdate(rootSeed, dhOut)
	hkAB, hkBA := deriveEpochHeaderKeys(rk)
	sendLabel, _ := RoleA.chainInitLabels()
	ck := deriveChainInit(rk, sendLabel)
	hks, _ := RoleA.headerKeys(hkAB, hkBA)
	s := &State{
		SessionID:    sessionID,
		Role:         RoleA,
		DHs:          dhs,
		DHsPub:       dhsPub,
		DHr:          &peerDHPub,
		RK:           rk,
		CKs:          &ck,
		HKs:          &hks,
		SCKA:         &scka.Party{},
		MaxSkip:      maxSkip,
		MaxHKSkipped: maxHKSkipped,
	}
	return s, nil
}

// InitBob begins a session as the handshake responder: the caller
// already generated (or was assigned) the initial DH key pair, and the
// peer's public key is not yet known (it arrives with the first
// received message, triggering Ratchet).
func InitBob(sessionID [16]byte, rootSeed RootKey, dhs PrivateKey, dhsPub PublicKey, maxSkip, maxHKSkipped uint32) *State {
	return &State{
		SessionID:    sessionID,
		Role:         RoleB,
		DHs:          dhs,
		DHsPub:       dhsPub,
		RK:           rootSeed,
		SCKA:         &scka.Party{},
		MaxSkip:      maxSkip,
		MaxHKSkipped: maxHKSkipped,
	}
}

// AdvanceSend derives the next sending message key and header, then
// advances Ns. The returned MessageKey is ready for SealBody and the
// returned Header, once encoded, for SealHeader.
func (s *State) AdvanceSend() (MessageKey, Header, error) {
	if s.CKs == nil {
		return MessageKey{}, Header{}, ErrNoPeerKey
	}
	nextCK, ecMK := chainStep(*s.CKs)
	var pqMK []byte
	if s.PQCKs != nil {
		nextPQCK, share := pqChainStep(*s.PQCKs)
		s.PQCKs = &nextPQCK
		pqMK = share
	} else {
		pqMK = make([]byte, 32)
	}
	mk := combineHybrid(ecMK, pqMK)
	h := Header{PN: s.PN, N: s.Ns}
	s.CKs = &nextCK
	s.Ns++
	return mk, h, nil
}

// Ratchet performs the DH ratchet step on receipt of a new peer public
// key: it derives a fresh receiving chain from the new peer key (using
// this side's existing DH key pair), then generates a brand new local
// DH key pair and derives a fresh sending chain from it against the
// same peer key, so that this side always next sends on a DH key the
// peer has not seen before. ratchetInputRecv must be DH(s.DHs,
// peerDHPub) computed before this call.
func (s *State) Ratchet(peerDHPub PublicKey, ratchetInputRecv []byte) error {
	s.PN = s.Ns
	s.Ns = 0
	s.Nr = 0
	s.DHr = &peerDHPub

	_, recvLabel := s.Role.chainInitLabels()
	rk := deriveRootUpdate(s.RK, ratchetInputRecv)
	hkAB, hkBA := deriveEpochHeaderKeys(rk)
	ck := deriveChainInit(rk, recvLabel)
	_, hkr := s.Role.headerKeys(hkAB, hkBA)
	s.RK = rk
	s.CKr = &ck
	s.HKr = &hkr

	dhs, dhsPub, err := GenerateDH()
	if err != nil {
		return err
	}
	s.DHs = dhs
	s.DHsPub = dhsPub

	ratchetInputSend, err := DH(dhs, peerDHPub)
	if err != nil {
		return err
	}
	sendLabel, _ := s.Role.chainInitLabels()
	rk2 := deriveRootUpdate(s.RK, ratchetInputSend)
	hkAB2, hkBA2 := deriveEpochHeaderKeys(rk2)
	ck2 := deriveChainInit(rk2, sendLabel)
	hks2, _ := s.Role.headerKeys(hkAB2, hkBA2)
	s.RK = rk2
	s.CKs = &ck2
	s.HKs = &hks2
	return nil
}

// AdvanceRecvTo derives the message key for message index n on the
// current receiving chain, storing any intermediate skipped keys into
// store and enforcing MaxSkip/MaxHKSkipped. For n >= s.Nr it advances
// s.CKr (and s.PQCKr) past n and sets s.Nr = n+1 on the state it is
// called on, so a caller that must stay fail-closed calls it on a Clone
// and commits that clone only after the AEAD open succeeds.
func (s *State) AdvanceRecvTo(n uint32, store Store) (MessageKey, error) {
	if s.CKr == nil || s.HKr == nil {
		return MessageKey{}, ErrNoPeerKey
	}
	if n < s.Nr {
		id := SkippedID{HeaderKey: *s.HKr, N: n}
		mk, ok, err := store.LoadSkipped(id)
		if err != nil {
			return MessageKey{}, err
		}
		if !ok {
			return MessageKey{}, ErrReplay
		}
		if err := store.DeleteSkipped(id); err != nil {
			return MessageKey{}, err
		}
		return mk, nil
	}

	if n-s.Nr > s.MaxSkip {
		return MessageKey{}, ErrMaxSkipExceeded
	}

	if n > s.Nr {
		epochs, err := store.CountEpochs()
		if err != nil {
			return MessageKey{}, err
		}
		if _, exists, _ := store.LoadSkipped(SkippedID{HeaderKey: *s.HKr, N: s.Nr}); !exists && epochs >= int(s.MaxHKSkipped) {
			return MessageKey{}, ErrMaxHKSkippedExceeded
		}
	}

	ck := *s.CKr
	var target MessageKey
	for i := s.Nr; i <= n; i++ {
		nextCK, ecMK := chainStep(ck)
		var pqMK []byte
		if s.PQCKr != nil {
			nextPQCK, share := pqChainStep(*s.PQCKr)
			s.PQCKr = &nextPQCK
			pqMK = share
		} else {
			pqMK = make([]byte, 32)
		}
		mk := combineHybrid(ecMK, pqMK)
		ck = nextCK
		if i == n {
			target = mk
		} else {
			if err := store.StoreSkipped(SkippedID{HeaderKey: *s.HKr, N: i}, mk); err != nil {
				return MessageKey{}, fmt.Errorf("ratchet: store skipped key: %w", err)
			}
		}
	}
	s.CKr = &ck
	s.Nr = n + 1
	return target, nil
}

// ReseedPQSend re-seeds the sending PQ chain after this side's SCKA
// party consumes a new CTXT targeting its own ADV (i.e. the peer
// encapsulated to a key this side advertised). targetID and ct are the
// adv id and KEM ciphertext the CTXT carried.
func (s *State) ReseedPQSend(targetID uint32, ct, sharedSecret []byte) {
	sendLabel, _ := s.Role.pqSeedLabels()
	ck := seedPQChain(s.RK, targetID, ct, sharedSecret, sendLabel)
	s.PQCKs = &ck
}

// ReseedPQRecv re-seeds the receiving PQ chain after this side receives
// a peer ADV and encapsulates to it. advID and ct are the adv id and
// KEM ciphertext this side just produced.
func (s *State) ReseedPQRecv(advID uint32, ct, sharedSecret []byte) {
	_, recvLabel := s.Role.pqSeedLabels()
	ck := seedPQChain(s.RK, advID, ct, sharedSecret, recvLabel)
	s.PQCKr = &ck
}

// HeaderNonceSend derives the nonce for the current sending epoch's
// header AEAD at index n, bound to this side's own DH public key.
func (s *State) HeaderNonceSend(n uint32) [12]byte {
	return deriveNonce(labelHdrNonce, s.SessionID, s.DHsPub, n)
}

// BodyNonceSend derives the nonce for the current sending epoch's body
// AEAD at index n.
func (s *State) BodyNonceSend(n uint32) [12]byte {
	return deriveNonce(labelBodyNonce, s.SessionID, s.DHsPub, n)
}

// HeaderNonceRecv derives the nonce for the current receiving epoch's
// header AEAD at index n, bound to the peer's DH public key for that
// epoch (the value this side received it under).
func (s *State) HeaderNonceRecv(n uint32) ([12]byte, error) {
	if s.DHr == nil {
		return [12]byte{}, ErrNoPeerKey
	}
	return deriveNonce(labelHdrNonce, s.SessionID, *s.DHr, n), nil
}

// BodyNonceRecv derives the nonce for the current receiving epoch's
// body AEAD at index n.
func (s *State) BodyNonceRecv(n uint32) ([12]byte, error) {
	if s.DHr == nil {
		return [12]byte{}, ErrNoPeerKey
	}
	return deriveNonce(labelBodyNonce, s.SessionID, *s.DHr, n), nil
}
