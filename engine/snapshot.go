package engine

import (
	"github.com/quantumshieldlabs/qsp-core/durability"
	"github.com/quantumshieldlabs/qsp-core/ratchet"
	"github.com/quantumshieldlabs/qsp-core/scka"
	"github.com/quantumshieldlabs/qsp-core/wire"
)

// sessionSnapshot is the CBOR-serialisable form of a Session's internal
// state; durability.EncodeSnapshot/DecodeSnapshot treat it as opaque.
type sessionSnapshot struct {
	Cfg   Config
	Epoch uint32

	HavePQKeys bool
	PQPriv     []byte
	PQPub      []byte

	HaveState bool
	State     stateSnapshot
}

type stateSnapshot struct {
	Role      ratchet.Role
	DHs       ratchet.PrivateKey
	DHsPub    ratchet.PublicKey
	HaveDHr   bool
	DHr       ratchet.PublicKey
	RK        ratchet.RootKey
	HaveCKs   bool
	CKs       ratchet.ChainKey
	HaveCKr   bool
	CKr       ratchet.ChainKey
	HavePQCKs bool
	PQCKs     ratchet.ChainKey
	HavePQCKr bool
	PQCKr     ratchet.ChainKey
	HaveHKs   bool
	HKs       ratchet.HeaderKey
	HaveHKr   bool
	HKr       ratchet.HeaderKey
	Ns, Nr, PN uint32
	SCKA      sckaSnapshot
}

// sckaSnapshot mirrors scka.Party field-for-field: it exists only because
// *uint32 (PeerCurrentAdvID) needs an explicit "present" flag to
// round-trip cleanly through CBOR the same way the ratchet key
// pointers above do.
type sckaSnapshot struct {
	PeerMaxAdvIDSeen uint32
	HaveCurrentAdv   bool
	PeerCurrentAdvID uint32
	LocalNextAdvID   uint32
	LocalKeys        []uint32
	Tombstones       []uint32
}

// Snapshot serialises the session to an opaque blob and stores it in
// the durable journal, for the actor's debug_snapshot op.
func (s *Session) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := sessionSnapshot{Cfg: s.cfg, Epoch: s.epoch}

	if s.pqPriv != nil {
		snap.HavePQKeys = true
		var err error
		snap.PQPriv, err = ratchet.MarshalPQPrivate(s.pqPriv)
		if err != nil {
			return nil, reject(wire.ReasonInvalidRequest, "marshal pq private key: %v", err)
		}
		snap.PQPub, err = ratchet.MarshalPQPublic(s.pqPub)
		if err != nil {
			return nil, reject(wire.ReasonInvalidRequest, "marshal pq public key: %v", err)
		}
	}

	if s.state != nil {
		snap.HaveState = true
		st := stateSnapshot{
			Role:   s.state.Role,
			DHs:    s.state.DHs,
			DHsPub: s.state.DHsPub,
			RK:     s.state.RK,
			Ns:     s.state.Ns,
			Nr:     s.state.Nr,
			PN:     s.state.PN,
		}
		if s.state.DHr != nil {
			st.HaveDHr, st.DHr = true, *s.state.DHr
		}
		if s.state.CKs != nil {
			st.HaveCKs, st.CKs = true, *s.state.CKs
		}
		if s.state.CKr != nil {
			st.HaveCKr, st.CKr = true, *s.state.CKr
		}
		if s.state.PQCKs != nil {
			st.HavePQCKs, st.PQCKs = true, *s.state.PQCKs
		}
		if s.state.PQCKr != nil {
			st.HavePQCKr, st.PQCKr = true, *s.state.PQCKr
		}
		if s.state.HKs != nil {
			st.HaveHKs, st.HKs = true, *s.state.HKs
		}
		if s.state.HKr != nil {
			st.HaveHKr, st.HKr = true, *s.state.HKr
		}
		if s.state.SCKA != nil {
			st.SCKA.PeerMaxAdvIDSeen = s.state.SCKA.PeerMaxAdvIDSeen
			st.SCKA.LocalNextAdvID = s.state.SCKA.LocalNextAdvID
			st.SCKA.LocalKeys = s.state.SCKA.LocalKeys
			st.SCKA.Tombstones = s.state.SCKA.Tombstones
			if s.state.SCKA.PeerCurrentAdvID != nil {
				st.SCKA.HaveCurrentAdv = true
				st.SCKA.PeerCurrentAdvID = *s.state.SCKA.PeerCurrentAdvID
			}
		}
		snap.State = st
	}

	blob, err := durability.EncodeSnapshot(snap)
	if err != nil {
		return nil, reject(wire.ReasonInvalidRequest, "encode snapshot: %v", err)
	}
	if s.journal != nil {
		if err := s.journal.SaveSnapshot(s.id, blob); err != nil {
			return nil, reject(wire.ReasonInvalidRequest, "save snapshot: %v", err)
		}
	}
	return blob, nil
}

// Restore replaces the session's state with a previously captured
// snapshot blob. The caller is responsible for separately checking
// that the restored epoch does not roll back past the durable
// journal's high-water mark (the journal's own AdvanceEpoch call on the
// next Decrypt enforces this automatically).
func (s *Session) Restore(blob []byte) error {
	var snap sessionSnapshot
	if err := durability.DecodeSnapshot(blob, &snap); err != nil {
		return reject(wire.ReasonInvalidRequest, "decode snapshot: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = snap.Cfg
	s.epoch = snap.Epoch
	s.pqPriv = nil
	s.pqPub = nil
	s.state = nil

	if snap.HavePQKeys {
		priv, err := ratchet.UnmarshalPQPrivate(snap.PQPriv)
		if err != nil {
			return reject(wire.ReasonInvalidRequest, "unmarshal pq private key: %v", err)
		}
		pub, err := ratchet.UnmarshalPQPublic(snap.PQPub)
		if err != nil {
			return reject(wire.ReasonInvalidRequest, "unmarshal pq public key: %v", err)
		}
		s.pqPriv, s.pqPub = priv, pub
	}

	if snap.HaveState {
		st := snap.State
		state := &ratchet.State{
			SessionID:    s.id,
			Role:         st.Role,
			DHs:          st.DHs,
			DHsPub:       st.DHsPub,
			RK:           st.RK,
			Ns:           st.Ns,
			Nr:           st.Nr,
			PN:           st.PN,
			MaxSkip:      s.cfg.MaxSkip,
			MaxHKSkipped: s.cfg.MaxHKSkipped,
		}
		if st.HaveDHr {
			v := st.DHr
			state.DHr = &v
		}
		if st.HaveCKs {
			v := st.CKs
			state.CKs = &v
		}
		if st.HaveCKr {
			v := st.CKr
			state.CKr = &v
		}
		if st.HavePQCKs {
			v := st.PQCKs
			state.PQCKs = &v
		}
		if st.HavePQCKr {
			v := st.PQCKr
			state.PQCKr = &v
		}
		if st.HaveHKs {
			v := st.HKs
			state.HKs = &v
		}
		if st.HaveHKr {
			v := st.HKr
			state.HKr = &v
		}
		state.SCKA = &scka.Party{
			PeerMaxAdvIDSeen: st.SCKA.PeerMaxAdvIDSeen,
			LocalNextAdvID:   st.SCKA.LocalNextAdvID,
			LocalKeys:        st.SCKA.LocalKeys,
			Tombstones:       st.SCKA.Tombstones,
		}
		if st.SCKA.HaveCurrentAdv {
			v := st.SCKA.PeerCurrentAdvID
			state.SCKA.PeerCurrentAdvID = &v
		}
		s.state = state
	}
	return nil
}
