package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantumshieldlabs/qsp-core/durability"
	"github.com/quantumshieldlabs/qsp-core/wire"
)

func newTestJournal(t *testing.T) *durability.Journal {
	t.Helper()
	j, err := durability.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func establishedPair(t *testing.T) (alice, bob *Session) {
	t.Helper()
	var id [16]byte
	copy(id[:], "handshake-test-session")
	cfg := DefaultConfig()
	journal := newTestJournal(t)

	alice = New(id, cfg, journal, nil)
	bob = New(id, cfg, journal, nil)

	initMsg, err := alice.HandshakeInit()
	require.NoError(t, err)

	respMsg, err := bob.HandshakeRespond(initMsg)
	require.NoError(t, err)

	require.NoError(t, alice.HandshakeFinish(respMsg))

	require.Equal(t, "established", alice.Status())
	return alice, bob
}

func TestHandshakeAndEncryptDecryptRoundTrip(t *testing.T) {
	alice, bob := establishedPair(t)

	prefix, err := alice.Encrypt([]byte("hello bob"))
	require.NoError(t, err)

	// Bob has not yet seen alice's DH key, so this first message also
	// performs bob's DH ratchet step into the new epoch.
	pt, err := bob.Decrypt(prefix)
	require.NoError(t, err)
	require.Equal(t, "hello bob", string(pt))
}

func TestDecryptRejectsDurableReplay(t *testing.T) {
	alice, bob := establishedPair(t)

	prefix, err := alice.Encrypt([]byte("once only"))
	require.NoError(t, err)

	_, err = bob.Decrypt(prefix)
	require.NoError(t, err)

	_, err = bob.Decrypt(prefix)
	require.Error(t, err)
	rejErr, ok := err.(*wire.RejectError)
	require.True(t, ok)
	require.Equal(t, wire.ReasonReplay, rejErr.Reason)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	alice, bob := establishedPair(t)

	prefix, err := alice.Encrypt([]byte("first"))
	require.NoError(t, err)
	_, err = bob.Decrypt(prefix)
	require.NoError(t, err)

	blob, err := bob.Snapshot()
	require.NoError(t, err)

	restored := New(bob.ID(), DefaultConfig(), bob.journal, nil)
	require.NoError(t, restored.Restore(blob))
	require.Equal(t, "established", restored.Status())

	prefix2, err := alice.Encrypt([]byte("second"))
	require.NoError(t, err)
	pt, err := restored.Decrypt(prefix2)
	require.NoError(t, err)
	require.Equal(t, "second", string(pt))
}
