// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netsync

import (
	"crypto/rand"
	"encoding/binary"
	"sort"
	"time"

	"github.com/aead/siphash"

	"github.com/kryptoin/litecoincash-sub001/peerstate"
	"github.com/kryptoin/litecoincash-sub001/wire"
)

// addrRelayKeyRotation matches spec.md §4.1's "rotated daily".
const addrRelayKeyRotation = 24 * time.Hour

// addrRelaySelector picks, for one address, at most two peers to relay it
// to, scoring candidates with a siphash keyed by a secret that rotates
// daily -- unpredictable to an outside observer trying to map the
// network, stable enough within a day that repeated relays of the same
// address converge on the same peers (spec.md §4.1 `addr`).
type addrRelaySelector struct {
	key     []byte
	rotated time.Time
}

func newAddrRelaySelector(now time.Time) *addrRelaySelector {
	s := &addrRelaySelector{}
	s.rotate(now)
	return s
}

func (s *addrRelaySelector) rotate(now time.Time) {
	key := make([]byte, 16)
	_, _ = rand.Read(key)
	s.key = key
	s.rotated = now
}

func (s *addrRelaySelector) maybeRotate(now time.Time) {
	if now.Sub(s.rotated) >= addrRelayKeyRotation {
		s.rotate(now)
	}
}

func (s *addrRelaySelector) score(peerID int32, addr *wire.NetAddress) uint64 {
	h, err := siphash.New64(s.key)
	if err != nil {
		return 0
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(peerID))
	h.Write(buf[:])
	h.Write([]byte(addr.IP))
	return h.Sum64()
}

// Select returns at most two of candidates, ranked by siphash score
// ascending, for the given address.
func (s *addrRelaySelector) Select(addr *wire.NetAddress, candidates []int32, now time.Time) []int32 {
	s.maybeRotate(now)

	type scored struct {
		id    int32
		score uint64
	}
	ranked := make([]scored, len(candidates))
	for i, id := range candidates {
		ranked[i] = scored{id: id, score: s.score(id, addr)}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score < ranked[j].score })

	n := 2
	if len(ranked) < n {
		n = len(ranked)
	}
	out := make([]int32, n)
	for i := 0; i < n; i++ {
		out[i] = ranked[i].id
	}
	return out
}

// addrTimely reports whether addr's timestamp is recent enough to be worth
// relaying (spec.md §4.1 "reachable, timely, routable address").
func addrTimely(a *wire.NetAddress, now time.Time) bool {
	return now.Sub(a.Timestamp) <= 10*time.Minute
}

// addrReachable is a coarse routability check; filtering reserved/private
// ranges properly belongs to the address-manager collaborator this core
// doesn't own.
func addrReachable(a *wire.NetAddress) bool {
	return a.IP != ""
}

// relayAddr fans addr out to at most two peers other than the sender that
// have completed the handshake, per the siphash selection above. Batches
// larger than 10 entries skip relay entirely (spec.md §4.1 "uncrowded
// batch").
func (d *Dispatcher) relayAddr(from *peerstate.Peer, addrs []*wire.NetAddress, now time.Time) {
	if len(addrs) > 10 {
		return
	}

	var candidates []int32
	d.Peers.ForEach(func(q *peerstate.Peer) {
		if q.ID != from.ID && q.VerAckReceived {
			candidates = append(candidates, q.ID)
		}
	})
	if len(candidates) == 0 {
		return
	}

	for _, a := range addrs {
		if !addrReachable(a) || !addrTimely(a, now) {
			continue
		}
		for _, id := range d.addrRelay.Select(a, candidates, now) {
			d.Out.QueueMessage(id, &wire.MsgAddr{AddrList: []*wire.NetAddress{a}})
		}
	}
}
