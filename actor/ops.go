package actor

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/quantumshieldlabs/qsp-core/engine"
	"github.com/quantumshieldlabs/qsp-core/ratchet"
	"github.com/quantumshieldlabs/qsp-core/wire"
)

// handler is the shape every dispatch-table entry has: decode params,
// do the thing, return a JSON-able result or a *wire.RejectError.
type handler func(a *Actor, params json.RawMessage) (interface{}, error)

var dispatch = map[string]handler{
	"reset":             opReset,
	"handshake_init":    opHandshakeInit,
	"handshake_respond": opHandshakeRespond,
	"handshake_finish":  opHandshakeFinish,
	"handshake_status":  opHandshakeStatus,
	"encrypt":           opEncrypt,
	"decrypt":           opDecrypt,
	"debug_snapshot":    opDebugSnapshot,
	"debug_restore":     opDebugRestore,
	"capabilities":      opCapabilities,
	"scka_emit_adv":     opSCKAEmitADV,
	"scka_receive_adv":  opSCKAReceiveADV,
	"scka_receive_ctxt": opSCKAReceiveCTXT,

	// suite2.* is the conformance harness's vector-runner surface (see
	// suite2.go): single-epoch KDF/AEAD primitive exercises with no
	// corresponding engine.Session method.
	"suite2.establish.run":     opSuite2EstablishRun,
	"suite2.transcript.check":  opSuite2TranscriptCheck,
	"suite2.mk_hybrid.check":   opSuite2MKHybridCheck,
	"suite2.kdf_ec_ck":         opSuite2KDFECCK,
	"suite2.kdf_pq_ck":         opSuite2KDFPQCK,
	"suite2.kdf_hybrid":        opSuite2KDFHybrid,
	"suite2.kdf_rk_dh":         opSuite2KDFRKDH,
	"suite2.kdf_rk_pq":         opSuite2KDFRKPQ,
	"suite2.kdf_pq_reseed":     opSuite2KDFPQReseed,
	"suite2.e2e.send":          opSuite2E2ESend,
	"suite2.e2e.recv":          opSuite2E2ERecv,
}

func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("actor: missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("actor: invalid params: %w", err)
	}
	return nil
}

type sessionIDParams struct {
	SessionID string `json:"session_id"`
}

func opReset(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	id, err := decodeSessionID(p.SessionID)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	a.session(id).Reset()
	return map[string]string{"status": "reset"}, nil
}

func opHandshakeInit(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	id, err := decodeSessionID(p.SessionID)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	msg, err := a.session(id).HandshakeInit()
	if err != nil {
		return nil, err
	}
	pqPubBytes, err := ratchet.MarshalPQPublic(msg.PQPub)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonHandshakeFail, "marshal pq_pub: %v", err)
	}
	return map[string]string{
		"dh_pub": wire.EncodeStrictB64U(msg.DHPub[:]),
		"pq_pub": wire.EncodeStrictB64U(pqPubBytes),
	}, nil
}

type handshakeRespondParams struct {
	SessionID string `json:"session_id"`
	DHPub     string `json:"dh_pub"`
	PQPub     string `json:"pq_pub"`
}

func opHandshakeRespond(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p handshakeRespondParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	id, err := decodeSessionID(p.SessionID)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	dhPubBytes, err := wire.DecodeStrictB64U(p.DHPub)
	if err != nil || len(dhPubBytes) != 32 {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "dh_pub must be 32 bytes")
	}
	pqPubBytes, err := wire.DecodeStrictB64U(p.PQPub)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "invalid pq_pub: %v", err)
	}
	pqPub, err := ratchet.UnmarshalPQPublic(pqPubBytes)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "unmarshal pq_pub: %v", err)
	}
	var dhPub ratchet.PublicKey
	copy(dhPub[:], dhPubBytes)

	msg, err := a.session(id).HandshakeRespond(&engine.HandshakeInitMessage{DHPub: dhPub, PQPub: pqPub})
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"dh_pub": wire.EncodeStrictB64U(msg.DHPub[:]),
		"pq_ct":  wire.EncodeStrictB64U(msg.PQCt),
	}, nil
}

type handshakeFinishParams struct {
	SessionID string `json:"session_id"`
	DHPub     string `json:"dh_pub"`
	PQCt      string `json:"pq_ct"`
}

func opHandshakeFinish(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p handshakeFinishParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	id, err := decodeSessionID(p.SessionID)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	dhPubBytes, err := wire.DecodeStrictB64U(p.DHPub)
	if err != nil || len(dhPubBytes) != 32 {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "dh_pub must be 32 bytes")
	}
	pqCt, err := wire.DecodeStrictB64U(p.PQCt)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "invalid pq_ct: %v", err)
	}
	var dhPub ratchet.PublicKey
	copy(dhPub[:], dhPubBytes)

	if err := a.session(id).HandshakeFinish(&engine.HandshakeRespondMessage{DHPub: dhPub, PQCt: pqCt}); err != nil {
		return nil, err
	}
	return map[string]string{"status": "established"}, nil
}

func opHandshakeStatus(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	id, err := decodeSessionID(p.SessionID)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	return map[string]string{"status": a.session(id).Status()}, nil
}

type encryptParams struct {
	SessionID string `json:"session_id"`
	Plaintext string `json:"plaintext"`
}

func opEncrypt(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p encryptParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	id, err := decodeSessionID(p.SessionID)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	plaintext, err := wire.DecodeStrictB64U(p.Plaintext)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "invalid plaintext: %v", err)
	}
	prefix, err := a.session(id).Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	return map[string]string{"message": wire.EncodeStrictB64U(prefix.Serialise())}, nil
}

type decryptParams struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func opDecrypt(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p decryptParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	id, err := decodeSessionID(p.SessionID)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	raw2, err := wire.DecodeStrictB64U(p.Message)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "invalid message: %v", err)
	}
	prefix, err := wire.ParseQSP(raw2)
	if err != nil {
		return nil, err
	}
	plaintext, err := a.session(id).Decrypt(prefix)
	if err != nil {
		return nil, err
	}
	return map[string]string{"plaintext": wire.EncodeStrictB64U(plaintext)}, nil
}

type debugSnapshotParams struct {
	SessionID string `json:"session_id"`
}

func opDebugSnapshot(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p debugSnapshotParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	id, err := decodeSessionID(p.SessionID)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	blob, err := a.session(id).Snapshot()
	if err != nil {
		return nil, err
	}
	return map[string]string{"snapshot": wire.EncodeStrictB64U(blob)}, nil
}

type debugRestoreParams struct {
	SessionID string `json:"session_id"`
	Snapshot  string `json:"snapshot"`
}

func opDebugRestore(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p debugRestoreParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	id, err := decodeSessionID(p.SessionID)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	blob, err := wire.DecodeStrictB64U(p.Snapshot)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "invalid snapshot: %v", err)
	}
	if err := a.session(id).Restore(blob); err != nil {
		return nil, err
	}
	return map[string]string{"status": "restored"}, nil
}

func opSCKAEmitADV(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	id, err := decodeSessionID(p.SessionID)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	advID, pqPub, err := a.session(id).EmitADV()
	if err != nil {
		return nil, err
	}
	pqPubBytes, err := ratchet.MarshalPQPublic(pqPub)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonHandshakeFail, "marshal adv pq_pub: %v", err)
	}
	return map[string]string{
		"adv_id": fmt.Sprintf("%d", advID),
		"pq_pub": wire.EncodeStrictB64U(pqPubBytes),
	}, nil
}

type sckaReceiveADVParams struct {
	SessionID string `json:"session_id"`
	AdvID     uint32 `json:"adv_id"`
	PQPub     string `json:"pq_pub"`
}

func opSCKAReceiveADV(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p sckaReceiveADVParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	id, err := decodeSessionID(p.SessionID)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	pqPubBytes, err := wire.DecodeStrictB64U(p.PQPub)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "invalid pq_pub: %v", err)
	}
	ct, err := a.session(id).ReceiveADV(p.AdvID, pqPubBytes)
	if err != nil {
		return nil, err
	}
	return map[string]string{"pq_ct": wire.EncodeStrictB64U(ct)}, nil
}

type sckaReceiveCTXTParams struct {
	SessionID string `json:"session_id"`
	TargetID  uint32 `json:"target_id"`
	PQCt      string `json:"pq_ct"`
}

func opSCKAReceiveCTXT(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p sckaReceiveCTXTParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	id, err := decodeSessionID(p.SessionID)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
	}
	pqCt, err := wire.DecodeStrictB64U(p.PQCt)
	if err != nil {
		return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "invalid pq_ct: %v", err)
	}
	if err := a.session(id).ReceiveCTXT(p.TargetID, pqCt); err != nil {
		return nil, err
	}
	return map[string]string{"status": "reseeded"}, nil
}

func opCapabilities(a *Actor, raw json.RawMessage) (interface{}, error) {
	var p sessionIDParams
	_ = decodeParams(raw, &p)
	var id [16]byte
	if p.SessionID != "" {
		var err error
		id, err = decodeSessionID(p.SessionID)
		if err != nil {
			return nil, wire.NewRejectError(wire.ReasonInvalidRequest, "%v", err)
		}
	}
	caps := a.session(id).Capabilities()
	caps["ops"] = dispatchedOps()
	return caps, nil
}

// dispatchedOps returns the actor's full enumerated operation-name set
// directly off the dispatch table, so it can never drift from what the
// actor actually serves (including the suite2.* vector-runner ops,
// which have no corresponding engine.Session method).
func dispatchedOps() []string {
	ops := make([]string, 0, len(dispatch))
	for name := range dispatch {
		ops = append(ops, name)
	}
	sort.Strings(ops)
	return ops
}
