// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package relay

import (
	"math/rand"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/kryptoin/litecoincash-sub001/wire"
)

// FastAnnounceCache holds the single most-recent block's compact form, so
// the fast-announce path (spec.md §4.7) never has to re-derive it per peer.
type FastAnnounceCache struct {
	Height         int32
	BlockHash      chainhash.Hash
	Compact        *wire.MsgCmpctBlock
	WitnessPresent bool
	announcedAt    map[int32]bool // peer id -> already sent this height
}

// NewFastAnnounceCache returns an empty cache.
func NewFastAnnounceCache() *FastAnnounceCache {
	return &FastAnnounceCache{announcedAt: make(map[int32]bool)}
}

// SetTip replaces the cached block, clearing the per-peer announce record
// since a new height means every peer is owed a fresh announcement.
func (c *FastAnnounceCache) SetTip(height int32, hash chainhash.Hash, compact *wire.MsgCmpctBlock, witnessPresent bool) {
	c.Height = height
	c.BlockHash = hash
	c.Compact = compact
	c.WitnessPresent = witnessPresent
	c.announcedAt = make(map[int32]bool)
}

// ShouldAnnounce reports whether peerID is still owed the current tip's
// fast announcement, and if so marks it sent.
func (c *FastAnnounceCache) ShouldAnnounce(peerID int32) bool {
	if c.announcedAt[peerID] {
		return false
	}
	c.announcedAt[peerID] = true
	return true
}

// SendScheduler holds Poisson-spaced inv send deadlines, one per peer
// (spec.md §4.7). Addr send deadlines are not scheduled: nextAddr is never
// filled, and Forget only clears it.
type SendScheduler struct {
	nextInv  map[int32]time.Time
	nextAddr map[int32]time.Time
}

// NewSendScheduler returns an empty scheduler.
func NewSendScheduler() *SendScheduler {
	return &SendScheduler{
		nextInv:  make(map[int32]time.Time),
		nextAddr: make(map[int32]time.Time),
	}
}

// averageInvInterval is the mean inter-send gap for outbound peers;
// inbound peers relay at half the rate (spec.md §4.7 "inbound-slower than
// outbound by a factor of two"), matching net_processing.cpp's
// INVENTORY_BROADCAST_INTERVAL split.
const averageInvInterval = 5 * time.Second

// NextInvDeadline returns the peer's current inv-send deadline, scheduling
// one if none is pending.
func (s *SendScheduler) NextInvDeadline(peerID int32, outbound bool, now time.Time) time.Time {
	if d, ok := s.nextInv[peerID]; ok {
		return d
	}
	d := s.scheduleInv(peerID, outbound, now)
	return d
}

// AdvanceInv reschedules peerID's next inv deadline after a send at now.
func (s *SendScheduler) AdvanceInv(peerID int32, outbound bool, now time.Time) {
	s.scheduleInv(peerID, outbound, now)
}

func (s *SendScheduler) scheduleInv(peerID int32, outbound bool, now time.Time) time.Time {
	mean := averageInvInterval
	if !outbound {
		mean *= 2
	}
	gap := time.Duration(rand.ExpFloat64() * float64(mean))
	d := now.Add(gap)
	s.nextInv[peerID] = d
	return d
}

// Due reports whether peerID's inv deadline has passed as of now.
func (s *SendScheduler) Due(peerID int32, now time.Time) bool {
	d, ok := s.nextInv[peerID]
	return !ok || !now.Before(d)
}

// Forget drops a disconnected peer's scheduling state.
func (s *SendScheduler) Forget(peerID int32) {
	delete(s.nextInv, peerID)
	delete(s.nextAddr, peerID)
}
