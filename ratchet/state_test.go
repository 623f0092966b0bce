package ratchet

import (
	"testing"

	mrand "github.com/ericlagergren/saferand"
	"github.com/stretchr/testify/require"
)

func TestOutOfOrderDelivery(t *testing.T) {
	alice, bob := pairedSendRecv(t)
	store := NewMemoryStore()

	const count = 8
	mks := make([]MessageKey, count)
	for i := 0; i < count; i++ {
		mk, _, err := alice.AdvanceSend()
		require.NoError(t, err)
		mks[i] = mk
	}

	order := make([]int, count)
	for i := range order {
		order[i] = i
	}
	mrand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	for _, n := range order {
		got, err := bob.AdvanceRecvTo(uint32(n), store)
		require.NoError(t, err)
		require.Equal(t, mks[n], got)
	}
}

func TestReplayOfConsumedSkippedKeyFails(t *testing.T) {
	alice, bob := pairedSendRecv(t)
	store := NewMemoryStore()

	for i := 0; i < 3; i++ {
		_, _, err := alice.AdvanceSend()
		require.NoError(t, err)
	}
	_, err := bob.AdvanceRecvTo(2, store)
	require.NoError(t, err)

	// index 0 and 1 were skipped and stored; consume index 0.
	_, err = bob.AdvanceRecvTo(0, store)
	require.NoError(t, err)

	// replaying index 0 again must fail: it was deleted on first use.
	_, err = bob.AdvanceRecvTo(0, store)
	require.ErrorIs(t, err, ErrReplay)
}

func TestMaxSkipEnforced(t *testing.T) {
	alice, bob := pairedSendRecv(t)
	bob.MaxSkip = 2
	store := NewMemoryStore()

	for i := 0; i < 10; i++ {
		_, _, err := alice.AdvanceSend()
		require.NoError(t, err)
	}

	_, err := bob.AdvanceRecvTo(9, store)
	require.ErrorIs(t, err, ErrMaxSkipExceeded)
}

// pairedSendRecv sets up alice and bob so that alice.CKs and bob.CKr
// start from the identical chain key, letting tests exercise
// AdvanceSend/AdvanceRecvTo without a full handshake transcript.
func pairedSendRecv(t *testing.T) (alice, bob *State) {
	t.Helper()
	var sessionID [16]byte
	copy(sessionID[:], []byte("session-under-test-"))
	var rootSeed RootKey
	copy(rootSeed[:], []byte("shared-handshake-secret-32-bytes"))

	_, peerPub, err := GenerateDH()
	require.NoError(t, err)

	alice, err = InitAlice(sessionID, rootSeed, peerPub, 1000, 8)
	require.NoError(t, err)

	bob = &State{
		SessionID:    sessionID,
		DHr:          &alice.DHsPub,
		HKr:          alice.HKs,
		CKr:          alice.CKs,
		MaxSkip:      1000,
		MaxHKSkipped: 8,
	}
	return alice, bob
}
