// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peerstate

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	nodelog "github.com/kryptoin/litecoincash-sub001/log"
)

var slog = nodelog.Logger(nodelog.SubsystemPeer)

// inFlightLocation is what mapBlocksInFlight maps a hash to: the owning
// peer and the index of its InFlightEntry, so MarkBlockAsReceived can
// locate it in O(1); removing it from the peer's queue then reindexes the
// entries after it (spec.md §3 invariant: "Every
// hash in BlocksInFlight is exactly one in-flight entry of exactly one
// peer").
type inFlightLocation struct {
	peerID int32
	index  int
}

// Store is the process-wide peer table: the map of connected peers plus
// the cross-cutting mapBlocksInFlight index and the aggregate counters
// spec.md §3 lists as invariants. Design note "Global mutable state":
// this is the container a Core value owns instead of scattering package
// globals.
type Store struct {
	peers          map[int32]*Peer
	blocksInFlight map[chainhash.Hash]inFlightLocation

	peersWithValidatedDownloads int
	preferredDownload           int
	outboundProtected           int
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		peers:          make(map[int32]*Peer),
		blocksInFlight: make(map[chainhash.Hash]inFlightLocation),
	}
}

// AddPeer registers a newly accepted connection.
func (s *Store) AddPeer(p *Peer) {
	s.peers[p.ID] = p
	if p.IsPreferredDownload() {
		s.preferredDownload++
	}
	if p.Direction == DirectionOutbound && p.ProtectFromEviction {
		s.outboundProtected++
	}
}

// Peer looks up a connected peer by id.
func (s *Store) Peer(id int32) (*Peer, bool) {
	p, ok := s.peers[id]
	return p, ok
}

// Len returns the number of tracked peers.
func (s *Store) Len() int { return len(s.peers) }

// ForEach calls fn for every tracked peer. fn must not mutate the peer map.
func (s *Store) ForEach(fn func(*Peer)) {
	for _, p := range s.peers {
		fn(p)
	}
}

// RemovePeer finalizes a disconnecting peer: every in-flight block it owned
// is removed from the process-wide map, and the aggregate counters are
// decremented. Orphan-pool cleanup is the caller's responsibility (it
// requires cross-referencing g_cs_orphans, per spec.md §5's lock order) --
// see core.Core.DisconnectPeer.
func (s *Store) RemovePeer(id int32) *Peer {
	p, ok := s.peers[id]
	if !ok {
		return nil
	}
	for _, e := range p.InFlight {
		delete(s.blocksInFlight, e.Hash)
	}
	if p.NBlocksInFlightValidHeaders() > 0 {
		s.peersWithValidatedDownloads--
	}
	if p.IsPreferredDownload() {
		s.preferredDownload--
	}
	if p.Direction == DirectionOutbound && p.ProtectFromEviction {
		s.outboundProtected--
	}
	delete(s.peers, id)
	return p
}

// MarkBlockAsInFlight appends hash to peer's in-flight queue and indexes it
// process-wide. It is a caller error (and a logic bug, not a DoS) to mark a
// hash in-flight that is already in flight for any peer.
func (s *Store) MarkBlockAsInFlight(peerID int32, hash chainhash.Hash, validatedHeaders bool) bool {
	if _, exists := s.blocksInFlight[hash]; exists {
		return false
	}
	p, ok := s.peers[peerID]
	if !ok {
		return false
	}
	wasValidated := p.NBlocksInFlightValidHeaders() > 0
	p.InFlight = append(p.InFlight, &InFlightEntry{
		Hash:             hash,
		ValidatedHeaders: validatedHeaders,
	})
	s.blocksInFlight[hash] = inFlightLocation{peerID: peerID, index: len(p.InFlight) - 1}
	if !wasValidated && p.NBlocksInFlightValidHeaders() > 0 {
		s.peersWithValidatedDownloads++
	}
	return true
}

// MarkBlockAsReceived removes hash from BlocksInFlight and from its owning
// peer's queue, leaving mapBlocksInFlight without it and the peer's
// in-flight count back at its value before MarkBlockAsInFlight (the round-trip
// law in spec.md §8).
func (s *Store) MarkBlockAsReceived(hash chainhash.Hash) bool {
	loc, ok := s.blocksInFlight[hash]
	if !ok {
		return false
	}
	p, ok := s.peers[loc.peerID]
	if !ok {
		delete(s.blocksInFlight, hash)
		return true
	}
	wasValidated := p.NBlocksInFlightValidHeaders() > 0
	p.InFlight = append(p.InFlight[:loc.index], p.InFlight[loc.index+1:]...)
	// Reindex the tail: removing an element shifts every later index down one.
	for i := loc.index; i < len(p.InFlight); i++ {
		s.blocksInFlight[p.InFlight[i].Hash] = inFlightLocation{peerID: loc.peerID, index: i}
	}
	delete(s.blocksInFlight, hash)
	if wasValidated && p.NBlocksInFlightValidHeaders() == 0 {
		s.peersWithValidatedDownloads--
	}
	return true
}

// BlockInFlightOwner returns the peer id currently responsible for hash, if
// any.
func (s *Store) BlockInFlightOwner(hash chainhash.Hash) (int32, bool) {
	loc, ok := s.blocksInFlight[hash]
	return loc.peerID, ok
}

// IsBlockInFlight reports whether hash is owned by any peer's in-flight
// queue, the "not yet in-flight anywhere" test the Download Scheduler's
// selection contract names (spec.md §4.2).
func (s *Store) IsBlockInFlight(hash chainhash.Hash) bool {
	_, ok := s.blocksInFlight[hash]
	return ok
}

// PeersWithValidatedDownloads returns the process-wide aggregate spec.md §3
// names directly.
func (s *Store) PeersWithValidatedDownloads() int { return s.peersWithValidatedDownloads }

// PreferredDownload returns the process-wide preferred-peer count.
func (s *Store) PreferredDownload() int { return s.preferredDownload }

// OutboundProtected returns the count of protected outbound peers.
func (s *Store) OutboundProtected() int { return s.outboundProtected }

// SetProtectFromEviction flips a peer's protect bit, maintaining the
// OutboundProtected aggregate.
func (s *Store) SetProtectFromEviction(id int32, protect bool) {
	p, ok := s.peers[id]
	if !ok || p.ProtectFromEviction == protect {
		return
	}
	p.ProtectFromEviction = protect
	if p.Direction == DirectionOutbound {
		if protect {
			s.outboundProtected++
		} else {
			s.outboundProtected--
		}
	}
}
