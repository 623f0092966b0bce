package durability

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	dir := t.TempDir()
	j, err := Open(filepath.Join(dir, "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordIfNewDetectsReplay(t *testing.T) {
	j := openTestJournal(t)
	var sid [16]byte
	var hk [32]byte
	copy(sid[:], "session-1")
	copy(hk[:], "header-key")

	seen, err := j.RecordIfNew(sid, hk, 0)
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = j.RecordIfNew(sid, hk, 0)
	require.NoError(t, err)
	require.True(t, seen)

	seen, err = j.RecordIfNew(sid, hk, 1)
	require.NoError(t, err)
	require.False(t, seen)
}

func TestAdvanceEpochRejectsRollback(t *testing.T) {
	j := openTestJournal(t)
	var sid [16]byte
	copy(sid[:], "session-2")

	require.NoError(t, j.AdvanceEpoch(sid, 1))
	require.NoError(t, j.AdvanceEpoch(sid, 2))

	err := j.AdvanceEpoch(sid, 2)
	require.ErrorIs(t, err, ErrRollback)

	err = j.AdvanceEpoch(sid, 1)
	require.ErrorIs(t, err, ErrRollback)

	epoch, err := j.HighestEpochSeen(sid)
	require.NoError(t, err)
	require.Equal(t, uint32(2), epoch)
}

func TestSnapshotRoundTrip(t *testing.T) {
	j := openTestJournal(t)
	var sid [16]byte
	copy(sid[:], "session-3")

	_, err := j.LoadSnapshot(sid)
	require.ErrorIs(t, err, ErrNoSnapshot)

	type payload struct {
		Epoch uint32
		Note  string
	}
	blob, err := EncodeSnapshot(payload{Epoch: 3, Note: "hello"})
	require.NoError(t, err)
	require.NoError(t, j.SaveSnapshot(sid, blob))

	got, err := j.LoadSnapshot(sid)
	require.NoError(t, err)
	var out payload
	require.NoError(t, DecodeSnapshot(got, &out))
	require.Equal(t, payload{Epoch: 3, Note: "hello"}, out)
}
