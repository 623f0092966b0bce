package actor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantumshieldlabs/qsp-core/wire"
)

func dispatchJSON(t *testing.T, a *Actor, op, id string, params interface{}) Response {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	return a.Dispatch(Request{ID: id, Op: op, Params: raw})
}

func TestFullHandshakeAndMessageExchangeOverJSONL(t *testing.T) {
	alice := New("alice", nil, nil)
	bob := New("bob", nil, nil)
	sid := "00112233445566778899aabbccddeeff"[:32]

	initResp := dispatchJSON(t, alice, "handshake_init", "1", sessionIDParams{SessionID: sid})
	require.True(t, initResp.OK)
	initResult := initResp.Result.(map[string]string)

	respondResp := dispatchJSON(t, bob, "handshake_respond", "2", handshakeRespondParams{
		SessionID: sid,
		DHPub:     initResult["dh_pub"],
		PQPub:     initResult["pq_pub"],
	})
	require.True(t, respondResp.OK)
	respondResult := respondResp.Result.(map[string]string)

	finishResp := dispatchJSON(t, alice, "handshake_finish", "3", handshakeFinishParams{
		SessionID: sid,
		DHPub:     respondResult["dh_pub"],
		PQCt:      respondResult["pq_ct"],
	})
	require.True(t, finishResp.OK)

	plaintext := wire.EncodeStrictB64U([]byte("hello over jsonl"))
	encResp := dispatchJSON(t, alice, "encrypt", "4", encryptParams{SessionID: sid, Plaintext: plaintext})
	require.True(t, encResp.OK)
	message := encResp.Result.(map[string]string)["message"]

	decResp := dispatchJSON(t, bob, "decrypt", "5", decryptParams{SessionID: sid, Message: message})
	require.True(t, decResp.OK)
	gotPlain, err := wire.DecodeStrictB64U(decResp.Result.(map[string]string)["plaintext"])
	require.NoError(t, err)
	require.Equal(t, "hello over jsonl", string(gotPlain))

	// replaying the same wire message must fail closed with reason "replay".
	replayResp := dispatchJSON(t, bob, "decrypt", "6", decryptParams{SessionID: sid, Message: message})
	require.False(t, replayResp.OK)
	require.Equal(t, "replay", replayResp.Error.Reason)
}

func TestSCKAADVCTXTReseedsPQChains(t *testing.T) {
	alice := New("alice", nil, nil)
	bob := New("bob", nil, nil)
	sid := "00112233445566778899aabbccddeeff"[:32]

	initResp := dispatchJSON(t, alice, "handshake_init", "1", sessionIDParams{SessionID: sid})
	require.True(t, initResp.OK)
	initResult := initResp.Result.(map[string]string)

	respondResp := dispatchJSON(t, bob, "handshake_respond", "2", handshakeRespondParams{
		SessionID: sid,
		DHPub:     initResult["dh_pub"],
		PQPub:     initResult["pq_pub"],
	})
	require.True(t, respondResp.OK)
	respondResult := respondResp.Result.(map[string]string)

	finishResp := dispatchJSON(t, alice, "handshake_finish", "3", handshakeFinishParams{
		SessionID: sid,
		DHPub:     respondResult["dh_pub"],
		PQCt:      respondResult["pq_ct"],
	})
	require.True(t, finishResp.OK)

	// alice advertises a fresh PQ key; bob receives it, encapsulates,
	// and sends the ciphertext back; alice decapsulates and both sides
	// now hold a freshly reseeded PQ chain half.
	advResp := dispatchJSON(t, alice, "scka_emit_adv", "4", sessionIDParams{SessionID: sid})
	require.True(t, advResp.OK)
	advResult := advResp.Result.(map[string]string)

	recvAdvResp := dispatchJSON(t, bob, "scka_receive_adv", "5", sckaReceiveADVParams{
		SessionID: sid,
		AdvID:     mustParseUint32(t, advResult["adv_id"]),
		PQPub:     advResult["pq_pub"],
	})
	require.True(t, recvAdvResp.OK)
	ctxtResult := recvAdvResp.Result.(map[string]string)

	recvCtxtResp := dispatchJSON(t, alice, "scka_receive_ctxt", "6", sckaReceiveCTXTParams{
		SessionID: sid,
		TargetID:  mustParseUint32(t, advResult["adv_id"]),
		PQCt:      ctxtResult["pq_ct"],
	})
	require.True(t, recvCtxtResp.OK)

	// replaying the same CTXT against the already-tombstoned target_id
	// must fail closed with reason "scka_reject".
	replayCtxtResp := dispatchJSON(t, alice, "scka_receive_ctxt", "7", sckaReceiveCTXTParams{
		SessionID: sid,
		TargetID:  mustParseUint32(t, advResult["adv_id"]),
		PQCt:      ctxtResult["pq_ct"],
	})
	require.False(t, replayCtxtResp.OK)
	require.Equal(t, "scka_reject", replayCtxtResp.Error.Reason)
}

func mustParseUint32(t *testing.T, s string) uint32 {
	t.Helper()
	var v uint32
	_, err := fmt.Sscanf(s, "%d", &v)
	require.NoError(t, err)
	return v
}

func TestUnknownOpReturnsInvalidRequest(t *testing.T) {
	a := New("actor", nil, nil)
	resp := a.Dispatch(Request{ID: "x", Op: "no_such_op"})
	require.False(t, resp.OK)
	require.Equal(t, "invalid_request", resp.Error.Reason)
}

func TestRunProcessesJSONLStream(t *testing.T) {
	a := New("actor", nil, nil)
	in := bytes.NewBufferString(`{"id":"1","op":"capabilities","params":{}}` + "\n")
	var out bytes.Buffer

	require.NoError(t, a.Run(in, &out))

	scanner := bufio.NewScanner(&out)
	require.True(t, scanner.Scan())
	var resp Response
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
	require.True(t, resp.OK)
}
