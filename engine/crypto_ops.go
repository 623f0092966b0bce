package engine

import (
	"github.com/quantumshieldlabs/qsp-core/ratchet"
	"github.com/quantumshieldlabs/qsp-core/wire"
)

// Encrypt seals plaintext under the session's current sending chain and
// returns a fully framed QSP wire.Prefix ready for Serialise.
func (s *Session) Encrypt(plaintext []byte) (*wire.Prefix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil || s.state.DHr == nil {
		return nil, reject(wire.ReasonInvalidRequest, "session not established")
	}

	mk, hdr, err := s.state.AdvanceSend()
	if err != nil {
		return nil, reject(wire.ReasonInvalidRequest, "advance send chain: %v", err)
	}

	flags := uint16(0)
	pqBind := ratchet.PQBind(flags, 0, 0, nil, nil)
	hNonce := s.state.HeaderNonceSend(hdr.N)
	hAD := headerAD(s.id, wire.ProtocolVersion, s.cfg.Suite, s.state.DHsPub, flags, pqBind)
	hdrCt, err := ratchet.SealHeader(*s.state.HKs, hNonce, hAD, hdr.Encode())
	if err != nil {
		return nil, reject(wire.ReasonAEADFail, "seal header: %v", err)
	}

	bAD := bodyAD(s.id, wire.ProtocolVersion, s.cfg.Suite, pqBind)
	bNonce := s.state.BodyNonceSend(hdr.N)
	bodyCt, err := ratchet.SealBody(mk, bNonce, bAD, plaintext)
	if err != nil {
		return nil, reject(wire.ReasonAEADFail, "seal body: %v", err)
	}

	return &wire.Prefix{
		ProtocolVersion: wire.ProtocolVersion,
		SuiteID:         s.cfg.Suite,
		SessionID:       s.id,
		DHPub:           s.state.DHsPub,
		Flags:           flags,
		NonceHdr:        hNonce,
		HdrCt:           hdrCt,
		BodyCt:          bodyCt,
	}, nil
}

// Decrypt opens a received QSP prefix, performing a DH ratchet step if
// the message carries a new peer public key, journaling the message
// index for durable replay detection before returning plaintext.
func (s *Session) Decrypt(p *wire.Prefix) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, reject(wire.ReasonInvalidRequest, "session not established")
	}
	if p.SessionID != s.id {
		return nil, reject(wire.ReasonUnknownSession, "prefix session_id does not match this session")
	}

	working := s.state.Clone()
	isNewEpoch := working.DHr == nil || *working.DHr != p.DHPub
	if isNewEpoch {
		dhOut, err := ratchet.DH(working.DHs, p.DHPub)
		if err != nil {
			return nil, reject(wire.ReasonHandshakeFail, "dh: %v", err)
		}
		if err := working.Ratchet(p.DHPub, dhOut); err != nil {
			return nil, reject(wire.ReasonHandshakeFail, "ratchet: %v", err)
		}
	}

	pqBind := ratchet.PQBind(p.Flags, 0, 0, nil, nil)
	hAD := headerAD(p.SessionID, p.ProtocolVersion, p.SuiteID, p.DHPub, p.Flags, pqBind)
	hdrPt, err := ratchet.OpenHeader(*working.HKr, p.NonceHdr, hAD, p.HdrCt)
	if err != nil {
		return nil, reject(wire.ReasonAEADFail, "open header: %v", err)
	}
	hdr, err := ratchet.DecodeHeader(hdrPt)
	if err != nil {
		return nil, reject(wire.ReasonInvalidRequest, "decode header: %v", err)
	}
	hNonce, err := working.HeaderNonceRecv(hdr.N)
	if err != nil {
		return nil, reject(wire.ReasonInvalidRequest, "no receiving epoch established: %v", err)
	}
	if hNonce != p.NonceHdr {
		return nil, reject(wire.ReasonAEADFail, "nonce_hdr does not match header index %d", hdr.N)
	}

	if s.journal != nil {
		seen, err := s.journal.RecordIfNew(s.id, *working.HKr, hdr.N)
		if err != nil {
			return nil, reject(wire.ReasonInvalidRequest, "journal: %v", err)
		}
		if seen {
			return nil, reject(wire.ReasonReplay, "message %d already recorded as delivered", hdr.N)
		}
	}

	mk, err := working.AdvanceRecvTo(hdr.N, s.store)
	if err == ratchet.ErrReplay {
		return nil, reject(wire.ReasonReplay, "message %d already consumed", hdr.N)
	}
	if err != nil {
		return nil, reject(wire.ReasonInvalidRequest, "advance recv chain: %v", err)
	}

	bAD := bodyAD(p.SessionID, p.ProtocolVersion, p.SuiteID, pqBind)
	bNonce, err := working.BodyNonceRecv(hdr.N)
	if err != nil {
		return nil, reject(wire.ReasonInvalidRequest, "no receiving epoch established: %v", err)
	}
	plaintext, err := ratchet.OpenBody(mk, bNonce, bAD, p.BodyCt)
	if err != nil {
		return nil, reject(wire.ReasonAEADFail, "open body: %v", err)
	}

	newEpoch := s.epoch
	if isNewEpoch {
		newEpoch = s.epoch + 1
		if s.journal != nil {
			if err := s.journal.AdvanceEpoch(s.id, newEpoch); err != nil {
				return nil, reject(wire.ReasonRollback, "epoch %d rejected: %v", newEpoch, err)
			}
		}
	}

	s.state = working
	s.epoch = newEpoch
	return plaintext, nil
}
