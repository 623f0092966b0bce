package engine

import (
	circlkem "github.com/cloudflare/circl/kem"

	"github.com/quantumshieldlabs/qsp-core/ratchet"
	"github.com/quantumshieldlabs/qsp-core/scka"
	"github.com/quantumshieldlabs/qsp-core/wire"
)

// EmitADV allocates a fresh PQ advertisement: a new Kyber768 key pair is
// generated, registered with this side's SCKA party as a new adv_id, and
// its private half is held until a matching CTXT consumes it (see
// ReceiveCTXT). The public key is what the caller sends to the peer out
// of band as the ADV message.
func (s *Session) EmitADV() (advID uint32, pqPub circlkem.PublicKey, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return 0, nil, reject(wire.ReasonInvalidRequest, "session not established")
	}

	priv, pub, err := ratchet.GeneratePQ()
	if err != nil {
		return 0, nil, reject(wire.ReasonHandshakeFail, "generate pq adv key pair: %v", err)
	}

	next, id, err := scka.EmitADV(s.state.SCKA)
	if err != nil {
		return 0, nil, reject(wire.ReasonSCKAReject, "%v", err)
	}

	s.state.SCKA = next
	s.advKeys[id] = priv
	return id, pub, nil
}

// ReceiveADV records a peer's advertisement (rejecting it if adv_id does
// not strictly exceed every adv_id already seen from this peer), then
// immediately encapsulates against the advertised key and re-seeds this
// side's receiving PQ chain with the resulting shared secret. The
// returned ciphertext is the CTXT the caller sends back to the peer.
func (s *Session) ReceiveADV(advID uint32, peerPQPub []byte) (ct []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, reject(wire.ReasonInvalidRequest, "session not established")
	}

	pub, err := ratchet.UnmarshalPQPublic(peerPQPub)
	if err != nil {
		return nil, reject(wire.ReasonInvalidRequest, "unmarshal adv pq_pub: %v", err)
	}

	next, err := scka.ReceiveADV(s.state.SCKA, advID)
	if err != nil {
		return nil, reject(wire.ReasonSCKAReject, "%v", err)
	}

	ct, sharedSecret, err := ratchet.EncapsulatePQ(pub)
	if err != nil {
		return nil, reject(wire.ReasonHandshakeFail, "pq encapsulate: %v", err)
	}

	s.state.SCKA = next
	s.state.ReseedPQRecv(advID, ct, sharedSecret)
	return ct, nil
}

// ReceiveCTXT consumes a CTXT targeting one of this side's own open
// advertisements (rejecting it if target_id was already consumed or was
// never advertised), decapsulates it with the stashed private key, and
// re-seeds this side's sending PQ chain with the resulting shared
// secret.
func (s *Session) ReceiveCTXT(targetID uint32, ct []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return reject(wire.ReasonInvalidRequest, "session not established")
	}

	priv, ok := s.advKeys[targetID]
	if !ok {
		return reject(wire.ReasonSCKAReject, "scka: target_id %d not in local_keys", targetID)
	}

	next, err := scka.ReceiveCTXT(s.state.SCKA, targetID)
	if err != nil {
		return reject(wire.ReasonSCKAReject, "%v", err)
	}

	sharedSecret, err := ratchet.DecapsulatePQ(priv, ct)
	if err != nil {
		return reject(wire.ReasonHandshakeFail, "pq decapsulate: %v", err)
	}

	s.state.SCKA = next
	s.state.ReseedPQSend(targetID, ct, sharedSecret)
	delete(s.advKeys, targetID)
	return nil
}
