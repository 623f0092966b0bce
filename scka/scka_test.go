package scka

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReceiveADVMonotonic(t *testing.T) {
	p := &Party{}
	p2, err := ReceiveADV(p, 1)
	require.NoError(t, err)
	require.Equal(t, uint32(1), p2.PeerMaxAdvIDSeen)
	require.NotNil(t, p2.PeerCurrentAdvID)
	require.Equal(t, uint32(1), *p2.PeerCurrentAdvID)

	// Replay of the same id: rejected, no state change.
	before := p2.Clone()
	p3, err := ReceiveADV(p2, 1)
	require.ErrorIs(t, err, ErrADVNotMonotonic)
	require.Equal(t, before, p3)

	// Lower id: rejected.
	p4, err := ReceiveADV(p2, 0)
	require.ErrorIs(t, err, ErrADVNotMonotonic)
	require.Equal(t, before, p4)

	// Strictly higher id: accepted.
	p5, err := ReceiveADV(p2, 7)
	require.NoError(t, err)
	require.Equal(t, uint32(7), p5.PeerMaxAdvIDSeen)
}

func TestEmitAndReceiveCTXTOneTime(t *testing.T) {
	p := &Party{}
	p, id, err := EmitADV(p)
	require.NoError(t, err)
	require.Equal(t, uint32(1), id)
	require.Contains(t, p.LocalKeys, id)

	p2, err := ReceiveCTXT(p, id)
	require.NoError(t, err)
	require.NotContains(t, p2.LocalKeys, id)
	require.Contains(t, p2.Tombstones, id)

	// Replay of the same CTXT: rejected, no state change.
	before := p2.Clone()
	p3, err := ReceiveCTXT(p2, id)
	require.ErrorIs(t, err, ErrCTXTTombstoned)
	require.Equal(t, before, p3)
}

func TestReceiveCTXTUnknownTarget(t *testing.T) {
	p := &Party{}
	before := p.Clone()
	p2, err := ReceiveCTXT(p, 42)
	require.ErrorIs(t, err, ErrCTXTUnknownTarget)
	require.Equal(t, before, p2)
}

func TestEmitADVSequenceStrictlyIncreasing(t *testing.T) {
	p := &Party{}
	var last uint32
	for i := 0; i < 10; i++ {
		var id uint32
		var err error
		p, id, err = EmitADV(p)
		require.NoError(t, err)
		require.Greater(t, id, last)
		last = id
	}
}

func TestEmitADVOverflowFailsClosed(t *testing.T) {
	p := &Party{LocalNextAdvID: ^uint32(0)}
	before := p.Clone()
	p2, _, err := EmitADV(p)
	require.ErrorIs(t, err, ErrADVOverflow)
	require.Equal(t, before, p2)
}
