// Package seqfilter rejects out-of-order and duplicate datagrams using a
// wrap-aware sequence number comparison, one counter per remote peer.
package seqfilter

import "sync"

// Filter tracks the most recently accepted sequence number per peer key
// (typically a UDP address string) and decides whether a newly-received
// sequence number should be accepted.
//
// A sequence number is accepted iff its signed wrap-aware distance from
// the last accepted value is strictly positive — zero (a retransmitted
// duplicate) and negative (reordered or stale) deltas are both rejected.
// This also covers the wraparound case: since the comparison is done on
// the int32 difference, a sequence number that has wrapped past
// MaxUint32 back to a small value still compares as "ahead" of the
// pre-wrap value, as long as fewer than 2^31 sequence numbers have
// elapsed.
type Filter struct {
	mu   sync.Mutex
	last map[string]uint32
}

// New returns an empty Filter.
func New() *Filter {
	return &Filter{last: make(map[string]uint32)}
}

// CheckAndUpdate reports whether seq should be accepted as newer than the
// last sequence number seen from peer. On acceptance, it records seq as
// the new high-water mark for peer. The very first sequence number seen
// from a peer is always accepted.
func (f *Filter) CheckAndUpdate(peer string, seq uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	last, known := f.last[peer]
	if !known {
		f.last[peer] = seq
		return true
	}

	delta := int32(seq - last)
	if delta <= 0 {
		return false
	}
	f.last[peer] = seq
	return true
}

// Forget discards any tracked state for peer, so a subsequent sequence
// number from it is treated as the first ever seen. Callers use this
// when a peer leaves a session, so a later rejoin under the same address
// isn't spuriously rejected as stale.
func (f *Filter) Forget(peer string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.last, peer)
}
