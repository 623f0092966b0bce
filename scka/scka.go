// Package scka implements the Side-Channel Key Agreement bounded state
// machine: ADV monotonicity and one-time CTXT targeting with tombstones.
//
// The state transitions here are deliberately crypto-agnostic, mirroring
// the reference bounded-model checker (formal/model_scka_bounded.py in
// the original implementation): a Party only tracks integers and their
// set membership, never key material. The engine package is the only
// caller that attaches cryptographic meaning (a PQ public key or
// ciphertext) to an adv_id/target_id.
package scka

import (
	"fmt"
	"sort"
)

// Party holds one direction's SCKA sub-state (spec.md §3).
//
// Invariants, checked after every mutating call:
//   - PeerMaxAdvIDSeen is non-negative (guaranteed by the uint32 type).
//   - If PeerCurrentAdvID is set, it equals PeerMaxAdvIDSeen.
//   - LocalKeys and Tombstones are sorted, unique, and disjoint.
type Party struct {
	PeerMaxAdvIDSeen uint32
	PeerCurrentAdvID *uint32
	LocalNextAdvID   uint32
	LocalKeys        []uint32
	Tombstones       []uint32
}

// Clone returns a deep copy, used so reject paths can restore the
// pre-call state byte-for-byte (spec.md invariant 1).
func (p *Party) Clone() *Party {
	cp := &Party{
		PeerMaxAdvIDSeen: p.PeerMaxAdvIDSeen,
		LocalNextAdvID:   p.LocalNextAdvID,
	}
	if p.LocalKeys != nil {
		cp.LocalKeys = append(make([]uint32, 0, len(p.LocalKeys)), p.LocalKeys...)
	}
	if p.Tombstones != nil {
		cp.Tombstones = append(make([]uint32, 0, len(p.Tombstones)), p.Tombstones...)
	}
	if p.PeerCurrentAdvID != nil {
		v := *p.PeerCurrentAdvID
		cp.PeerCurrentAdvID = &v
	}
	return cp
}

// AssertInvariants panics if the party state violates any bounded-model
// invariant. A violation here is an internal invariant break, not a
// rejectable input — per spec.md §7 it is treated as fatal.
func (p *Party) AssertInvariants() {
	if p.PeerCurrentAdvID != nil && *p.PeerCurrentAdvID != p.PeerMaxAdvIDSeen {
		panic(fmt.Sprintf("scka: peer_current_adv_id %d != peer_max_adv_id_seen %d", *p.PeerCurrentAdvID, p.PeerMaxAdvIDSeen))
	}
	if !sortedUnique(p.LocalKeys) {
		panic("scka: local_keys not sorted/unique")
	}
	if !sortedUnique(p.Tombstones) {
		panic("scka: tombstones not sorted/unique")
	}
	if !disjoint(p.LocalKeys, p.Tombstones) {
		panic("scka: local_keys and tombstones not disjoint")
	}
}

func sortedUnique(xs []uint32) bool {
	for i := 1; i < len(xs); i++ {
		if xs[i-1] >= xs[i] {
			return false
		}
	}
	return true
}

func disjoint(a, b []uint32) bool {
	set := make(map[uint32]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return false
		}
	}
	return true
}

// ErrADVNotMonotonic is returned by ReceiveADV when adv_id does not
// strictly exceed PeerMaxAdvIDSeen.
var ErrADVNotMonotonic = fmt.Errorf("scka: adv_id is not strictly greater than peer_max_adv_id_seen")

// ReceiveADV implements spec.md §4.2 "Receive ADV". It never modifies
// p: on rejection it returns p itself with the error, and on acceptance
// it returns an updated clone.
func ReceiveADV(p *Party, advID uint32) (*Party, error) {
	if advID <= p.PeerMaxAdvIDSeen {
		return p, ErrADVNotMonotonic
	}
	next := p.Clone()
	next.PeerMaxAdvIDSeen = advID
	next.PeerCurrentAdvID = &advID
	next.AssertInvariants()
	return next, nil
}

// ErrCTXTTombstoned is returned by ReceiveCTXT when target_id was already
// consumed.
var ErrCTXTTombstoned = fmt.Errorf("scka: target_id already tombstoned")

// ErrCTXTUnknownTarget is returned by ReceiveCTXT when target_id was
// never advertised locally.
var ErrCTXTUnknownTarget = fmt.Errorf("scka: target_id not in local_keys")

// ReceiveCTXT implements spec.md §4.2 "Receive CTXT". Tombstone
// membership is checked before local-key membership, matching the
// bounded model's _recv_ctxt order exactly.
func ReceiveCTXT(p *Party, targetID uint32) (*Party, error) {
	if contains(p.Tombstones, targetID) {
		return p, ErrCTXTTombstoned
	}
	if !contains(p.LocalKeys, targetID) {
		return p, ErrCTXTUnknownTarget
	}
	next := p.Clone()
	next.LocalKeys = removeSorted(next.LocalKeys, targetID)
	next.Tombstones = insertSorted(next.Tombstones, targetID)
	next.AssertInvariants()
	return next, nil
}

// ErrADVOverflow is returned by EmitADV if allocating the next id would
// not strictly increase local_next_adv_id (fail-closed on overflow).
var ErrADVOverflow = fmt.Errorf("scka: local_next_adv_id would overflow")

// EmitADV allocates and registers a new local adv_id, per spec.md §4.2
// "Emit ADV".
func EmitADV(p *Party) (*Party, uint32, error) {
	newID := p.LocalNextAdvID + 1
	if newID <= p.LocalNextAdvID {
		return p, 0, ErrADVOverflow
	}
	next := p.Clone()
	next.LocalNextAdvID = newID
	next.LocalKeys = insertSorted(next.LocalKeys, newID)
	next.AssertInvariants()
	return next, newID, nil
}

func contains(xs []uint32, v uint32) bool {
	i := sort.Search(len(xs), func(i int) bool { return xs[i] >= v })
	return i < len(xs) && xs[i] == v
}

func insertSorted(xs []uint32, v uint32) []uint32 {
	i := sort.Search(len(xs), func(i int) bool { return xs[i] >= v })
	if i < len(xs) && xs[i] == v {
		return xs
	}
	xs = append(xs, 0)
	copy(xs[i+1:], xs[i:])
	xs[i] = v
	return xs
}

func removeSorted(xs []uint32, v uint32) []uint32 {
	i := sort.Search(len(xs), func(i int) bool { return xs[i] >= v })
	if i >= len(xs) || xs[i] != v {
		return xs
	}
	return append(xs[:i], xs[i+1:]...)
}
