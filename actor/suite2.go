package actor

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/quantumshieldlabs/qsp-core/ratchet"
	"github.com/quantumshieldlabs/qsp-core/wire"
)

// suite2 implements the conformance harness's vector-runner surface: a
// self-contained, single-epoch KDF/AEAD primitive exerciser distinct
// from the live multi-epoch protocol in the rest of this package. Its
// wire format, state shape, and field names mirror the reference
// conformance actor's suite2.* op set so that a vector runner built
// against either actor observes the same derivations.
//
// suite2SendState/suite2RecvState are this op set's send/receive
// halves of one session: unlike engine.Session, they carry no DH
// ratchet (flags must always be 0, single fixed epoch) and expose
// their chain/header keys directly as op parameters and results.
type suite2SendState struct {
	SessionID [16]byte
	DHPub     [32]byte
	HKs       [32]byte
	CKEC      [32]byte
	CKPQ      [32]byte
	Ns, PN    uint32
}

type suite2RecvState struct {
	SessionID         [16]byte
	DHPub             [32]byte
	HKr               [32]byte
	RK                [32]byte
	CKEC              [32]byte
	CKPQSend          [32]byte
	CKPQRecv          [32]byte
	Nr                uint32
	Role              string
	PeerMaxAdvIDSeen  uint32
	KnownTargets      []uint32
	ConsumedTargets   []uint32
	TombstonedTargets []uint32
	MKSkipped         []uint32
}

type suite2Pair struct {
	Send suite2SendState
	Recv suite2RecvState
}

// suite2Session returns the actor's held suite2 session for id, or nil
// if none has been established by suite2.establish.run (or persisted
// by a prior suite2.e2e.send/recv) yet.
func (a *Actor) suite2Session(id [16]byte) *suite2Pair {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.suite2 == nil {
		return nil
	}
	return a.suite2[a.sessionKey(id)]
}

func (a *Actor) setSuite2Session(id [16]byte, p *suite2Pair) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.suite2 == nil {
		a.suite2 = make(map[string]*suite2Pair)
	}
	a.suite2[a.sessionKey(id)] = p
}

type suite2Negotiated struct {
	ProtocolVersion uint16 `json:"protocol_version"`
	SuiteID         uint16 `json:"suite_id"`
}

const (
	suite2ProtocolVersion = 0x0500
	suite2SuiteID         = 0x0002
)

func decodeFixed32(s string, where string) ([32]byte, error) {
	var out [32]byte
	b, err := wire.DecodeStrictB64U(s)
	if err != nil || len(b) != 32 {
		return out, fmt.Errorf("actor: %s must be 32 bytes", where)
	}
	copy(out[:], b)
	return out, nil
}

// suite2EstablishParams mirrors _init_from_handshake's inputs: the raw
// DH/PQ handshake outputs and which side of the A/B role split this
// actor is playing.
type suite2EstablishParams struct {
	MsgType       uint16           `json:"msg_type"`
	Negotiated    suite2Negotiated `json:"negotiated"`
	SessionID     string           `json:"session_id"`
	DHInit        string           `json:"dh_init"`
	PQInitSS      string           `json:"pq_init_ss"`
	DHSelfPub     string           `json:"dh_self_pub"`
	DHPeerPub     string           `json:"dh_peer_pub"`
	Role          string           `json:"role"`
	Authenticated bool             `json:"authenticated"`
}

func opSuite2EstablishRun(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p suite2EstablishParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	if p.MsgType != 0x01 {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "reject: REJECT_S2_ESTABLISH_BAD_MSG_TYPE")
	}
	if p.Negotiated.ProtocolVersion != suite2ProtocolVersion || p.Negotiated.SuiteID != suite2SuiteID {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "reject: REJECT_S2_SUITE_MISMATCH")
	}
	if p.Role != "A" && p.Role != "B" {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "reject: REJECT_S2_ESTABLISH_BAD_INPUT_LEN")
	}
	if !p.Authenticated {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "reject: REJECT_S2_ESTABLISH_UNAUTHENTICATED")
	}
	sessionID, err1 := decodeSessionID(p.SessionID)
	dhInit, err2 := decodeFixed32(p.DHInit, "params.dh_init")
	pqInitSS, err3 := decodeFixed32(p.PQInitSS, "params.pq_init_ss")
	dhSelfPub, err4 := decodeFixed32(p.DHSelfPub, "params.dh_self_pub")
	dhPeerPub, err5 := decodeFixed32(p.DHPeerPub, "params.dh_peer_pub")
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "reject: REJECT_S2_ESTABLISH_BAD_INPUT_LEN")
	}

	rk := ratchet.DeriveInitialRootKey(sessionID, dhInit[:], pqInitSS[:])
	hkAB, hkBA, ck0AB, pq0AB := ratchet.BootstrapEpochKeys(rk)
	var zero [32]byte

	var send suite2SendState
	var recv suite2RecvState
	if p.Role == "A" {
		send = suite2SendState{SessionID: sessionID, DHPub: dhSelfPub, HKs: hkAB, CKEC: ck0AB, CKPQ: pq0AB}
		recv = suite2RecvState{SessionID: sessionID, DHPub: dhPeerPub, HKr: hkBA, RK: [32]byte(rk), CKEC: zero, CKPQSend: pq0AB, CKPQRecv: zero, Role: "A"}
	} else {
		send = suite2SendState{SessionID: sessionID, DHPub: dhSelfPub, HKs: hkBA, CKEC: zero, CKPQ: zero}
		recv = suite2RecvState{SessionID: sessionID, DHPub: dhPeerPub, HKr: hkAB, RK: [32]byte(rk), CKEC: ck0AB, CKPQSend: zero, CKPQRecv: pq0AB, Role: "B"}
	}
	a.setSuite2Session(sessionID, &suite2Pair{Send: send, Recv: recv})
	return map[string]string{"session_id": hex.EncodeToString(sessionID[:])}, nil
}

type suite2TranscriptParams struct {
	Negotiated suite2Negotiated `json:"negotiated"`
	SessionID  string           `json:"session_id"`
	DHPub      string           `json:"DH_pub"`
	Flags      uint16           `json:"flags"`
	PQPrefix   string           `json:"pq_prefix"`
	ADHdr      string           `json:"ad_hdr"`
	ADBody     string           `json:"ad_body"`
}

func opSuite2TranscriptCheck(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p suite2TranscriptParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	sessionID, err := decodeSessionID(p.SessionID)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	dhPub, err := decodeFixed32(p.DHPub, "params.DH_pub")
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	pqPrefix, err := wire.DecodeStrictB64U(p.PQPrefix)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "invalid pq_prefix: %v", err)
	}
	adHdrIn, err := wire.DecodeStrictB64U(p.ADHdr)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "invalid ad_hdr: %v", err)
	}
	adBodyIn, err := wire.DecodeStrictB64U(p.ADBody)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "invalid ad_body: %v", err)
	}

	pqBind := ratchet.PQBindFromPrefix(p.Flags, pqPrefix)
	adHdr := suite2ADHdr(sessionID, p.Negotiated.ProtocolVersion, p.Negotiated.SuiteID, dhPub, p.Flags, pqBind)
	adBody := suite2ADBody(sessionID, p.Negotiated.ProtocolVersion, p.Negotiated.SuiteID, pqBind)
	if !bytesEqual(adHdr, adHdrIn) || !bytesEqual(adBody, adBodyIn) {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "reject: REJECT_S2_AD_MISMATCH")
	}
	return map[string]string{
		"pq_bind": wire.EncodeStrictB64U(pqBind),
		"ad_hdr":  wire.EncodeStrictB64U(adHdr),
		"ad_body": wire.EncodeStrictB64U(adBody),
	}, nil
}

type suite2MKHybridParams struct {
	CKEC           string   `json:"CK_ec"`
	CKPQ           string   `json:"CK_pq"`
	Count          uint32   `json:"count"`
	ExpectedMKList []string `json:"expected_mk_list,omitempty"`
}

func opSuite2MKHybridCheck(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p suite2MKHybridParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	ckEC, err := decodeFixed32(p.CKEC, "params.CK_ec")
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "reject: REJECT_S2_MK_BAD_CK_EC")
	}
	ckPQ, err := decodeFixed32(p.CKPQ, "params.CK_pq")
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "reject: REJECT_S2_MK_BAD_CK_PQ")
	}

	mkList := make([]string, 0, p.Count)
	ckECCur, ckPQCur := ratchet.ChainKey(ckEC), ratchet.ChainKey(ckPQ)
	for i := uint32(0); i < p.Count; i++ {
		nextEC, ecMK := ratchet.DeriveECChainStep(ckECCur)
		nextPQ, pqMK := ratchet.DerivePQChainStep(ckPQCur)
		mk := ratchet.CombineHybridMK(ecMK, pqMK)
		mkList = append(mkList, wire.EncodeStrictB64U(mk[:]))
		ckECCur, ckPQCur = nextEC, nextPQ
	}

	if len(p.ExpectedMKList) > 0 {
		if len(p.ExpectedMKList) != len(mkList) {
			return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "reject: REJECT_S2_MK_MISMATCH")
		}
		for i := range mkList {
			if p.ExpectedMKList[i] != mkList[i] {
				return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "reject: REJECT_S2_MK_MISMATCH")
			}
		}
	}

	return map[string]interface{}{
		"mk_list":     mkList,
		"CK_ec_final": wire.EncodeStrictB64U(ckECCur[:]),
		"CK_pq_final": wire.EncodeStrictB64U(ckPQCur[:]),
	}, nil
}

type suite2KDFECCKParams struct {
	CKEC string `json:"CK_ec"`
}

func opSuite2KDFECCK(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p suite2KDFECCKParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	ck, err := decodeFixed32(p.CKEC, "params.CK_ec")
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	next, ecMK := ratchet.DeriveECChainStep(ratchet.ChainKey(ck))
	return map[string]string{
		"CK_ec_prime": wire.EncodeStrictB64U(next[:]),
		"ec_mk":       wire.EncodeStrictB64U(ecMK),
	}, nil
}

type suite2KDFPQCKParams struct {
	CKPQ string `json:"CK_pq"`
}

func opSuite2KDFPQCK(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p suite2KDFPQCKParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	ck, err := decodeFixed32(p.CKPQ, "params.CK_pq")
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	next, pqMK := ratchet.DerivePQChainStep(ratchet.ChainKey(ck))
	return map[string]string{
		"CK_pq_prime": wire.EncodeStrictB64U(next[:]),
		"pq_mk":       wire.EncodeStrictB64U(pqMK),
	}, nil
}

type suite2KDFHybridParams struct {
	ECMK string `json:"ec_mk"`
	PQMK string `json:"pq_mk"`
}

func opSuite2KDFHybrid(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p suite2KDFHybridParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	ecMK, err := wire.DecodeStrictB64U(p.ECMK)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "invalid ec_mk: %v", err)
	}
	pqMK, err := wire.DecodeStrictB64U(p.PQMK)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "invalid pq_mk: %v", err)
	}
	mk := ratchet.CombineHybridMK(ecMK, pqMK)
	return map[string]string{"mk": wire.EncodeStrictB64U(mk[:])}, nil
}

type suite2KDFRKDHParams struct {
	RK    string `json:"RK"`
	DHOut string `json:"dh_out"`
}

func opSuite2KDFRKDH(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p suite2KDFRKDHParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	rk, err := decodeFixed32(p.RK, "params.RK")
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	dhOut, err := wire.DecodeStrictB64U(p.DHOut)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "invalid dh_out: %v", err)
	}
	rkPrime, ck0 := ratchet.DeriveRKDH(ratchet.RootKey(rk), dhOut)
	return map[string]string{
		"RK_prime": wire.EncodeStrictB64U(rkPrime[:]),
		"CK_ec0":   wire.EncodeStrictB64U(ck0[:]),
	}, nil
}

type suite2KDFRKPQParams struct {
	RK   string `json:"RK"`
	PQSS string `json:"pq_ss"`
}

func opSuite2KDFRKPQ(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p suite2KDFRKPQParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	rk, err := decodeFixed32(p.RK, "params.RK")
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	pqSS, err := wire.DecodeStrictB64U(p.PQSS)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "invalid pq_ss: %v", err)
	}
	rkPrime := ratchet.DeriveRKPQ(ratchet.RootKey(rk), pqSS)
	return map[string]string{"RK_prime": wire.EncodeStrictB64U(rkPrime[:])}, nil
}

type suite2KDFPQReseedParams struct {
	RK         string `json:"RK"`
	PQTargetID uint32 `json:"pq_target_id"`
	PQCt       string `json:"pq_ct"`
	PQEpochSS  string `json:"pq_epoch_ss"`
}

func opSuite2KDFPQReseed(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p suite2KDFPQReseedParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	rk, err := decodeFixed32(p.RK, "params.RK")
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	ct, err := wire.DecodeStrictB64U(p.PQCt)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "invalid pq_ct: %v", err)
	}
	ss, err := wire.DecodeStrictB64U(p.PQEpochSS)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "invalid pq_epoch_ss: %v", err)
	}
	a2b, b2a := ratchet.DerivePQReseedPair(ratchet.RootKey(rk), p.PQTargetID, ct, ss)
	return map[string]string{
		"CK_pq_seed_A2B": wire.EncodeStrictB64U(a2b[:]),
		"CK_pq_seed_B2A": wire.EncodeStrictB64U(b2a[:]),
	}, nil
}

// suite2WireSendState/suite2WireRecvState are the JSON shapes of
// suite2SendState/suite2RecvState as they cross the actor boundary:
// base64url-strict byte fields to match this actor's other ops (except
// session_id, which is hex as everywhere else in this actor), with
// explicit u32 counters so state round-trips exactly.
type suite2WireSendState struct {
	SessionID string `json:"session_id"`
	DHPub     string `json:"dh_pub"`
	HKs       string `json:"hk_s"`
	CKEC      string `json:"ck_ec"`
	CKPQ      string `json:"ck_pq"`
	Ns        uint32 `json:"ns"`
	PN        uint32 `json:"pn"`
}

type suite2WireRecvState struct {
	SessionID         string   `json:"session_id"`
	DHPub             string   `json:"dh_pub"`
	HKr               string   `json:"hk_r"`
	RK                string   `json:"rk"`
	CKEC              string   `json:"ck_ec"`
	CKPQSend          string   `json:"ck_pq_send"`
	CKPQRecv          string   `json:"ck_pq_recv"`
	Nr                uint32   `json:"nr"`
	Role              string   `json:"role"`
	PeerMaxAdvIDSeen  uint32   `json:"peer_max_adv_id_seen"`
	KnownTargets      []uint32 `json:"known_targets"`
	ConsumedTargets   []uint32 `json:"consumed_targets"`
	TombstonedTargets []uint32 `json:"tombstoned_targets"`
	MKSkipped         []uint32 `json:"mkskipped"`
}

func decodeSuite2SendState(w suite2WireSendState) (suite2SendState, error) {
	var s suite2SendState
	var err error
	if s.SessionID, err = decodeSessionID(w.SessionID); err != nil {
		return s, err
	}
	if s.DHPub, err = decodeFixed32(w.DHPub, "send_state.dh_pub"); err != nil {
		return s, err
	}
	if s.HKs, err = decodeFixed32(w.HKs, "send_state.hk_s"); err != nil {
		return s, err
	}
	if s.CKEC, err = decodeFixed32(w.CKEC, "send_state.ck_ec"); err != nil {
		return s, err
	}
	if s.CKPQ, err = decodeFixed32(w.CKPQ, "send_state.ck_pq"); err != nil {
		return s, err
	}
	s.Ns, s.PN = w.Ns, w.PN
	return s, nil
}

func encodeSuite2SendState(s suite2SendState) suite2WireSendState {
	return suite2WireSendState{
		SessionID: hex.EncodeToString(s.SessionID[:]),
		DHPub:     wire.EncodeStrictB64U(s.DHPub[:]),
		HKs:       wire.EncodeStrictB64U(s.HKs[:]),
		CKEC:      wire.EncodeStrictB64U(s.CKEC[:]),
		CKPQ:      wire.EncodeStrictB64U(s.CKPQ[:]),
		Ns:        s.Ns,
		PN:        s.PN,
	}
}

func decodeSuite2RecvState(w suite2WireRecvState) (suite2RecvState, error) {
	var r suite2RecvState
	var err error
	if r.SessionID, err = decodeSessionID(w.SessionID); err != nil {
		return r, err
	}
	if r.DHPub, err = decodeFixed32(w.DHPub, "recv_state.dh_pub"); err != nil {
		return r, err
	}
	if r.HKr, err = decodeFixed32(w.HKr, "recv_state.hk_r"); err != nil {
		return r, err
	}
	if r.RK, err = decodeFixed32(w.RK, "recv_state.rk"); err != nil {
		return r, err
	}
	if r.CKEC, err = decodeFixed32(w.CKEC, "recv_state.ck_ec"); err != nil {
		return r, err
	}
	if r.CKPQSend, err = decodeFixed32(w.CKPQSend, "recv_state.ck_pq_send"); err != nil {
		return r, err
	}
	if r.CKPQRecv, err = decodeFixed32(w.CKPQRecv, "recv_state.ck_pq_recv"); err != nil {
		return r, err
	}
	if w.Role != "A" && w.Role != "B" {
		return r, fmt.Errorf("actor: recv_state.role must be \"A\" or \"B\"")
	}
	r.Nr, r.Role, r.PeerMaxAdvIDSeen = w.Nr, w.Role, w.PeerMaxAdvIDSeen
	r.KnownTargets, r.ConsumedTargets, r.TombstonedTargets, r.MKSkipped =
		w.KnownTargets, w.ConsumedTargets, w.TombstonedTargets, w.MKSkipped
	return r, nil
}

func encodeSuite2RecvState(r suite2RecvState) suite2WireRecvState {
	return suite2WireRecvState{
		SessionID:         hex.EncodeToString(r.SessionID[:]),
		DHPub:             wire.EncodeStrictB64U(r.DHPub[:]),
		HKr:               wire.EncodeStrictB64U(r.HKr[:]),
		RK:                wire.EncodeStrictB64U(r.RK[:]),
		CKEC:              wire.EncodeStrictB64U(r.CKEC[:]),
		CKPQSend:          wire.EncodeStrictB64U(r.CKPQSend[:]),
		CKPQRecv:          wire.EncodeStrictB64U(r.CKPQRecv[:]),
		Nr:                r.Nr,
		Role:              r.Role,
		PeerMaxAdvIDSeen:  r.PeerMaxAdvIDSeen,
		KnownTargets:      r.KnownTargets,
		ConsumedTargets:   r.ConsumedTargets,
		TombstonedTargets: r.TombstonedTargets,
		MKSkipped:         r.MKSkipped,
	}
}

type suite2E2ESendParams struct {
	Negotiated   suite2Negotiated     `json:"negotiated"`
	SessionID    string               `json:"session_id,omitempty"`
	SendState    *suite2WireSendState `json:"send_state,omitempty"`
	RecvState    *suite2WireRecvState `json:"recv_state,omitempty"`
	Flags        uint16               `json:"flags,omitempty"`
	PlaintextHex string               `json:"plaintext_hex"`
}

func opSuite2E2ESend(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p suite2E2ESendParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	if p.Flags != 0 {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "reject: REJECT_S2_LOCAL_UNSUPPORTED")
	}
	plaintext, err := wire.DecodeStrictB64U(p.PlaintextHex)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "invalid plaintext_hex: %v", err)
	}

	var sessionID [16]byte
	haveSessionID := p.SessionID != ""
	var pair *suite2Pair
	if haveSessionID {
		if sessionID, err = decodeSessionID(p.SessionID); err != nil {
			return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
		}
		pair = a.suite2Session(sessionID)
	}

	var send suite2SendState
	if p.SendState != nil {
		send, err = decodeSuite2SendState(*p.SendState)
		if err != nil {
			return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
		}
	} else if pair != nil {
		send = pair.Send
	} else {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "params.send_state missing")
	}
	if haveSessionID && send.SessionID != sessionID {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "params.session_id does not match send_state.session_id")
	}

	nextEC, ecMK := ratchet.DeriveECChainStep(ratchet.ChainKey(send.CKEC))
	nextPQ, pqMK := ratchet.DerivePQChainStep(ratchet.ChainKey(send.CKPQ))
	mk := ratchet.CombineHybridMK(ecMK, pqMK)

	pqBind := ratchet.PQBindFromPrefix(p.Flags, nil)
	adH := suite2ADHdr(send.SessionID, p.Negotiated.ProtocolVersion, p.Negotiated.SuiteID, send.DHPub, p.Flags, pqBind)
	adB := suite2ADBody(send.SessionID, p.Negotiated.ProtocolVersion, p.Negotiated.SuiteID, pqBind)

	hdrPt := make([]byte, 8)
	binary.BigEndian.PutUint32(hdrPt[0:4], send.PN)
	binary.BigEndian.PutUint32(hdrPt[4:8], send.Ns)
	hdrCt, err := ratchet.SealHeader(ratchet.HeaderKey(send.HKs), suite2NonceHdr(send.SessionID, send.DHPub, send.Ns), adH, hdrPt)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonAEADFail, "seal header: %v", err)
	}
	bodyCt, err := ratchet.SealBody(mk, suite2NonceBody(send.SessionID, send.DHPub, send.Ns), adB, plaintext)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonAEADFail, "seal body: %v", err)
	}
	wireBytes := suite2EncodeWire(p.Negotiated.ProtocolVersion, p.Negotiated.SuiteID, send.DHPub, p.Flags, hdrCt, bodyCt)

	newSend := suite2SendState{
		SessionID: send.SessionID,
		DHPub:     send.DHPub,
		HKs:       send.HKs,
		CKEC:      [32]byte(nextEC),
		CKPQ:      [32]byte(nextPQ),
		Ns:        send.Ns + 1,
		PN:        send.PN,
	}

	if haveSessionID {
		var recv suite2RecvState
		if p.RecvState != nil {
			recv, err = decodeSuite2RecvState(*p.RecvState)
			if err != nil {
				return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
			}
		} else if pair != nil {
			recv = pair.Recv
		} else {
			return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "params.recv_state missing for new suite2 session")
		}
		a.setSuite2Session(sessionID, &suite2Pair{Send: newSend, Recv: recv})
	}

	return map[string]interface{}{
		"wire_hex": wire.EncodeStrictB64U(wireBytes),
		"meta": map[string]uint32{
			"flags": uint32(p.Flags),
			"pn":    send.PN,
			"n":     send.Ns,
		},
		"new_state": encodeSuite2SendState(newSend),
	}, nil
}

type suite2E2ERecvParams struct {
	Negotiated suite2Negotiated     `json:"negotiated"`
	SessionID  string               `json:"session_id,omitempty"`
	RecvState  *suite2WireRecvState `json:"recv_state,omitempty"`
	SendState  *suite2WireSendState `json:"send_state,omitempty"`
	WireHex    string               `json:"wire_hex"`
}

func opSuite2E2ERecv(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p suite2E2ERecvParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}

	var sessionID [16]byte
	haveSessionID := p.SessionID != ""
	var pair *suite2Pair
	var err error
	if haveSessionID {
		if sessionID, err = decodeSessionID(p.SessionID); err != nil {
			return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
		}
		pair = a.suite2Session(sessionID)
	}

	var recv suite2RecvState
	if p.RecvState != nil {
		recv, err = decodeSuite2RecvState(*p.RecvState)
		if err != nil {
			return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
		}
	} else if pair != nil {
		recv = pair.Recv
	} else {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "params.recv_state missing")
	}
	if haveSessionID && recv.SessionID != sessionID {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "params.session_id does not match recv_state.session_id")
	}

	wireBytes, err := wire.DecodeStrictB64U(p.WireHex)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "invalid wire_hex: %v", err)
	}
	pvW, sidW, dhPub, flags, hdrCt, bodyCt, err := suite2DecodeWire(wireBytes)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "reject: %v", err)
	}
	if pvW != p.Negotiated.ProtocolVersion || sidW != p.Negotiated.SuiteID {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "reject: REJECT_S2_PARSE_PREFIX")
	}
	if flags != 0 {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "reject: REJECT_S2_LOCAL_UNSUPPORTED")
	}

	pqBind := ratchet.PQBindFromPrefix(flags, nil)
	adH := suite2ADHdr(recv.SessionID, p.Negotiated.ProtocolVersion, p.Negotiated.SuiteID, dhPub, flags, pqBind)
	adB := suite2ADBody(recv.SessionID, p.Negotiated.ProtocolVersion, p.Negotiated.SuiteID, pqBind)

	hdrPt, err := ratchet.OpenHeader(ratchet.HeaderKey(recv.HKr), suite2NonceHdr(recv.SessionID, dhPub, recv.Nr), adH, hdrCt)
	if err != nil || len(hdrPt) != 8 {
		return nil, wire.NewRejectError(wire.ReasonAEADFail, "reject: REJECT_S2_HDR_AUTH_FAIL")
	}
	pn := binary.BigEndian.Uint32(hdrPt[0:4])
	n := binary.BigEndian.Uint32(hdrPt[4:8])
	if n != recv.Nr {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "reject: REJECT_S2_LOCAL_UNSUPPORTED")
	}

	nextEC, ecMK := ratchet.DeriveECChainStep(ratchet.ChainKey(recv.CKEC))
	nextPQ, pqMK := ratchet.DerivePQChainStep(ratchet.ChainKey(recv.CKPQRecv))
	mk := ratchet.CombineHybridMK(ecMK, pqMK)
	bodyPt, err := ratchet.OpenBody(mk, suite2NonceBody(recv.SessionID, dhPub, n), adB, bodyCt)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonAEADFail, "reject: REJECT_S2_BODY_AUTH_FAIL")
	}

	newRecv := suite2RecvState{
		SessionID:         recv.SessionID,
		DHPub:             dhPub,
		HKr:               recv.HKr,
		RK:                recv.RK,
		CKEC:              [32]byte(nextEC),
		CKPQSend:          recv.CKPQSend,
		CKPQRecv:          [32]byte(nextPQ),
		Nr:                n + 1,
		Role:              recv.Role,
		PeerMaxAdvIDSeen:  recv.PeerMaxAdvIDSeen,
		KnownTargets:      recv.KnownTargets,
		ConsumedTargets:   recv.ConsumedTargets,
		TombstonedTargets: recv.TombstonedTargets,
		MKSkipped:         recv.MKSkipped,
	}

	if haveSessionID {
		var send suite2SendState
		if p.SendState != nil {
			send, err = decodeSuite2SendState(*p.SendState)
			if err != nil {
				return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
			}
		} else if pair != nil {
			send = pair.Send
		} else {
			return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "params.send_state missing for new suite2 session")
		}
		a.setSuite2Session(sessionID, &suite2Pair{Send: send, Recv: newRecv})
	}

	return map[string]interface{}{
		"plaintext_hex": wire.EncodeStrictB64U(bodyPt),
		"meta": map[string]uint32{
			"flags": uint32(flags),
			"pn":    pn,
			"n":     n,
		},
		"new_state": encodeSuite2RecvState(newRecv),
	}, nil
}

// suite2ADHdr/suite2ADBody are this op set's own AD builders: a
// distinct construction from engine's headerAD/bodyAD (different
// package, different state shape) but the same field order per
// spec.md §4.5.
func suite2ADHdr(sessionID [16]byte, pv, sid uint16, dhPub [32]byte, flags uint16, pqBind []byte) []byte {
	ad := make([]byte, 0, 16+2+2+32+2+len(pqBind))
	ad = append(ad, sessionID[:]...)
	ad = append(ad, byte(pv>>8), byte(pv))
	ad = append(ad, byte(sid>>8), byte(sid))
	ad = append(ad, dhPub[:]...)
	ad = append(ad, byte(flags>>8), byte(flags))
	ad = append(ad, pqBind...)
	return ad
}

func suite2ADBody(sessionID [16]byte, pv, sid uint16, pqBind []byte) []byte {
	ad := make([]byte, 0, 16+2+2+len(pqBind))
	ad = append(ad, sessionID[:]...)
	ad = append(ad, byte(pv>>8), byte(pv))
	ad = append(ad, byte(sid>>8), byte(sid))
	ad = append(ad, pqBind...)
	return ad
}

// suite2NonceHdr/suite2NonceBody are truncated SHA-512 nonces over
// label || session_id || dh_pub || u32(n), distinct from the live
// protocol's ratchet.deriveNonce, which runs the same inputs through
// KMAC256 under an empty key.
func suite2NonceHdr(sessionID [16]byte, dhPub [32]byte, n uint32) [12]byte {
	return suite2Nonce("QSP5.0/HDR-NONCE", sessionID, dhPub, n)
}

func suite2NonceBody(sessionID [16]byte, dhPub [32]byte, n uint32) [12]byte {
	return suite2Nonce("QSP5.0/BODY-NONCE", sessionID, dhPub, n)
}

func suite2Nonce(label string, sessionID [16]byte, dhPub [32]byte, n uint32) [12]byte {
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], n)
	m := make([]byte, 0, len(label)+16+32+4)
	m = append(m, label...)
	m = append(m, sessionID[:]...)
	m = append(m, dhPub[:]...)
	m = append(m, idx[:]...)
	digest := ratchet.SHA512Truncated12(m)
	return digest
}

// suite2EncodeWire/suite2DecodeWire mirror the conformance harness's
// own fixed wire layout: pv(2) | suite_id(2) | msg_type(1) | reserved(1)
// | header_len(2) | body_len(2) | header | body_ct, where header is
// dh_pub(32) | flags(2) | hdr_ct.
func suite2EncodeWire(pv, sid uint16, dhPub [32]byte, flags uint16, hdrCt, bodyCt []byte) []byte {
	header := make([]byte, 0, 32+2+len(hdrCt))
	header = append(header, dhPub[:]...)
	header = append(header, byte(flags>>8), byte(flags))
	header = append(header, hdrCt...)

	out := make([]byte, 0, 10+len(header)+len(bodyCt))
	out = append(out, byte(pv>>8), byte(pv))
	out = append(out, byte(sid>>8), byte(sid))
	out = append(out, 0x02, 0x00)
	out = append(out, byte(len(header)>>8), byte(len(header)))
	out = append(out, byte(len(bodyCt)>>8), byte(len(bodyCt)))
	out = append(out, header...)
	out = append(out, bodyCt...)
	return out
}

func suite2DecodeWire(buf []byte) (pv, sid uint16, dhPub [32]byte, flags uint16, hdrCt, bodyCt []byte, err error) {
	if len(buf) < 10 {
		return 0, 0, dhPub, 0, nil, nil, fmt.Errorf("REJECT_S2_PARSE_PREFIX")
	}
	pv = binary.BigEndian.Uint16(buf[0:2])
	sid = binary.BigEndian.Uint16(buf[2:4])
	msgType := buf[4]
	headerLen := int(binary.BigEndian.Uint16(buf[6:8]))
	bodyLen := int(binary.BigEndian.Uint16(buf[8:10]))
	if msgType != 0x02 {
		return 0, 0, dhPub, 0, nil, nil, fmt.Errorf("REJECT_S2_PARSE_PREFIX")
	}
	if len(buf) < 10+headerLen+bodyLen || 10+headerLen+bodyLen != len(buf) {
		return 0, 0, dhPub, 0, nil, nil, fmt.Errorf("REJECT_S2_PARSE_PREFIX")
	}
	header := buf[10 : 10+headerLen]
	bodyCt = buf[10+headerLen : 10+headerLen+bodyLen]
	if len(header) < 32+2+24 {
		return 0, 0, dhPub, 0, nil, nil, fmt.Errorf("REJECT_S2_PARSE_HDR_LEN")
	}
	copy(dhPub[:], header[0:32])
	flags = binary.BigEndian.Uint16(header[32:34])
	hdrCt = header[34:]
	if flags != 0 {
		return 0, 0, dhPub, 0, nil, nil, fmt.Errorf("REJECT_S2_LOCAL_UNSUPPORTED")
	}
	if len(header) != 32+2+24 || len(hdrCt) != 24 {
		return 0, 0, dhPub, 0, nil, nil, fmt.Errorf("REJECT_S2_PARSE_HDR_LEN")
	}
	if len(bodyCt) < 16 {
		return 0, 0, dhPub, 0, nil, nil, fmt.Errorf("REJECT_S2_PARSE_BODY_LEN")
	}
	return pv, sid, dhPub, flags, hdrCt, bodyCt, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
