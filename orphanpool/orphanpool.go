// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package orphanpool implements the bounded map of transactions missing
// inputs (spec.md §3 OrphanEntry, §4.3). It is protected by its own lock
// discipline at the call site (g_cs_orphans, taken as LOCK2(cs_main,
// g_cs_orphans) when cross-referencing the mempool, per spec.md §5) --
// this package itself is not internally synchronized so Core can hold
// both locks in the documented order.
package orphanpool

import (
	"math/rand"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	nodelog "github.com/kryptoin/litecoincash-sub001/log"
	"github.com/kryptoin/litecoincash-sub001/wire"
)

var olog = nodelog.Logger(nodelog.SubsystemMempool)

const (
	// MaxStandardTxWeight bounds the size of anything the pool will hold
	// (spec.md §4.3).
	MaxStandardTxWeight = 400_000

	// MaxOrphansPerPeer is the per-source-peer quota (spec.md §4.3).
	MaxOrphansPerPeer = 100

	// OrphanExpireInterval is how far ahead the next sweep is scheduled
	// when a sweep leaves the pool empty (spec.md §4.3, §3 lifecycle).
	OrphanExpireInterval = 5 * time.Minute

	// OrphanExpireTime is how long an orphan survives before a sweep may
	// reap it.
	OrphanExpireTime = 20 * time.Minute
)

// Entry is the OrphanEntry of spec.md §3.
type Entry struct {
	Tx         *wire.MsgTx
	Hash       chainhash.Hash
	SourcePeer int32
	ExpireAt   time.Time
}

// MisbehaveFunc lets the pool flag a peer as misbehaving without importing
// peerstate, keeping this package a leaf dependency.
type MisbehaveFunc func(peerID int32, amount int32)

// Pool is the at-most-bounded orphan transaction map.
type Pool struct {
	max int

	byHash map[chainhash.Hash]*Entry
	// byOutpoint reverse-indexes each spent outpoint to the set of orphan
	// hashes that consume it, backing the reprocessing contract and the
	// invariant in spec.md §8 ("every orphan in reverse[o] has
	// o ∈ orphan.tx.inputs").
	byOutpoint map[wire.OutPoint]map[chainhash.Hash]struct{}
	perPeer    map[int32]int

	nextSweep time.Time
}

// New returns an empty Pool bounded at max entries.
func New(max int) *Pool {
	return &Pool{
		max:        max,
		byHash:     make(map[chainhash.Hash]*Entry),
		byOutpoint: make(map[wire.OutPoint]map[chainhash.Hash]struct{}),
		perPeer:    make(map[int32]int),
	}
}

// Len returns the number of orphans currently held.
func (p *Pool) Len() int { return len(p.byHash) }

// PerPeerCount returns how many orphans are attributed to peerID, backing
// the invariant "per-peer orphan count equals the number of pool entries
// whose source-peer matches it" (spec.md §3).
func (p *Pool) PerPeerCount(peerID int32) int { return p.perPeer[peerID] }

// Has reports whether hash is already held.
func (p *Pool) Has(hash chainhash.Hash) bool {
	_, ok := p.byHash[hash]
	return ok
}

// Add inserts tx as an orphan sourced from peerID. It is rejected (returning
// false) if the transaction is oversize, already present, or the source
// peer already owns the maximum number of orphans (spec.md §4.3 addition
// contract). PerPeerCount reports how many orphans a peer currently owns.
func (p *Pool) Add(tx *wire.MsgTx, hash chainhash.Hash, sourcePeer int32, weight int, now time.Time) bool {
	if weight >= MaxStandardTxWeight {
		return false
	}
	if p.Has(hash) {
		return false
	}
	if p.perPeer[sourcePeer] >= MaxOrphansPerPeer {
		return false
	}

	e := &Entry{
		Tx:         tx,
		Hash:       hash,
		SourcePeer: sourcePeer,
		ExpireAt:   now.Add(OrphanExpireTime),
	}
	p.byHash[hash] = e
	p.perPeer[sourcePeer]++

	for _, in := range tx.TxIn {
		set, ok := p.byOutpoint[in.PreviousOutPoint]
		if !ok {
			set = make(map[chainhash.Hash]struct{})
			p.byOutpoint[in.PreviousOutPoint] = set
		}
		set[hash] = struct{}{}
	}

	if p.nextSweep.IsZero() || e.ExpireAt.Before(p.nextSweep) {
		p.nextSweep = e.ExpireAt
	}
	return true
}

// Erase removes hash, unwinding the reverse index and per-peer count. It is
// a no-op if hash is not present, so Add(t); Erase(t.hash) is idempotent
// with respect to pool size (spec.md §8 round-trip law).
func (p *Pool) Erase(hash chainhash.Hash) {
	e, ok := p.byHash[hash]
	if !ok {
		return
	}
	for _, in := range e.Tx.TxIn {
		set := p.byOutpoint[in.PreviousOutPoint]
		delete(set, hash)
		if len(set) == 0 {
			delete(p.byOutpoint, in.PreviousOutPoint)
		}
	}
	p.perPeer[e.SourcePeer]--
	if p.perPeer[e.SourcePeer] <= 0 {
		delete(p.perPeer, e.SourcePeer)
	}
	delete(p.byHash, hash)
}

// EraseForPeer removes every orphan sourced from peerID, used when a peer
// disconnects (spec.md §3 PeerState lifecycle).
func (p *Pool) EraseForPeer(peerID int32) {
	for hash, e := range p.byHash {
		if e.SourcePeer == peerID {
			_ = e
			p.Erase(hash)
		}
	}
}

// ConsumersOf returns the hashes of orphans that spend outpoint, used by
// the reprocessing contract.
func (p *Pool) ConsumersOf(op wire.OutPoint) []chainhash.Hash {
	set := p.byOutpoint[op]
	out := make([]chainhash.Hash, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return out
}

// Get returns the orphan entry for hash, if any.
func (p *Pool) Get(hash chainhash.Hash) (*Entry, bool) {
	e, ok := p.byHash[hash]
	return e, ok
}

// MisbehaviorLookup resolves a peer id to its current misbehavior score,
// used by LimitSize's eviction policy. Passed in by the caller to avoid a
// dependency on peerstate.
type MisbehaviorLookup func(peerID int32) (score int32, ok bool)

// SweepExpired reaps every entry whose ExpireAt has passed "now", and
// reschedules nextSweep to the earliest survivor's expiry (spec.md §4.3),
// or to now+OrphanExpireInterval when nothing survives. It does nothing
// until now reaches nextSweep; no minimum spacing between sweeps is
// enforced beyond that.
func (p *Pool) SweepExpired(now time.Time) int {
	if !p.nextSweep.IsZero() && now.Before(p.nextSweep) {
		return 0
	}

	reaped := 0
	var earliest time.Time
	for hash, e := range p.byHash {
		if !e.ExpireAt.After(now) {
			p.Erase(hash)
			reaped++
			continue
		}
		if earliest.IsZero() || e.ExpireAt.Before(earliest) {
			earliest = e.ExpireAt
		}
	}
	if earliest.IsZero() {
		p.nextSweep = now.Add(OrphanExpireInterval)
	} else {
		p.nextSweep = earliest
	}
	if reaped > 0 {
		olog.Debugf("swept %d expired orphans, %d remaining", reaped, len(p.byHash))
	}
	return reaped
}

// LimitSize evicts orphans while the pool is over max, preferring the
// highest-misbehavior source peer's orphans and falling back to a
// randomized selection on ties or when no peer is misbehaving
// (spec.md §4.3 eviction contract).
func (p *Pool) LimitSize(misbehavior MisbehaviorLookup, rng *rand.Rand) int {
	evicted := 0
	for len(p.byHash) > p.max {
		victim, ok := p.worstPeerOrphan(misbehavior)
		if !ok {
			victim, ok = p.randomOrphan(rng)
			if !ok {
				break
			}
		}
		p.Erase(victim)
		evicted++
	}
	if evicted > 0 {
		olog.Debugf("evicted %d orphans over the %d-entry cap", evicted, p.max)
	}
	return evicted
}

func (p *Pool) worstPeerOrphan(misbehavior MisbehaviorLookup) (chainhash.Hash, bool) {
	var bestHash chainhash.Hash
	var bestScore int32 = -1
	found := false
	for hash, e := range p.byHash {
		score, ok := misbehavior(e.SourcePeer)
		if !ok || score <= 0 {
			continue
		}
		if score > bestScore {
			bestScore = score
			bestHash = hash
			found = true
		}
	}
	return bestHash, found
}

// randomOrphan picks the orphan at the lower-bound of a random hash,
// matching the original's "erase at the lower-bound of a random 256-bit
// value" fallback: among all held hashes, the smallest one not less than
// a uniformly sampled value, wrapping to the global minimum.
func (p *Pool) randomOrphan(rng *rand.Rand) (chainhash.Hash, bool) {
	if len(p.byHash) == 0 {
		return chainhash.Hash{}, false
	}
	var target chainhash.Hash
	rng.Read(target[:])

	var best chainhash.Hash
	haveBest := false
	var min chainhash.Hash
	haveMin := false
	for hash := range p.byHash {
		if !haveMin || lessHash(hash, min) {
			min = hash
			haveMin = true
		}
		if !lessHash(hash, target) && (!haveBest || lessHash(hash, best)) {
			best = hash
			haveBest = true
		}
	}
	if haveBest {
		return best, true
	}
	return min, true
}

func lessHash(a, b chainhash.Hash) bool {
	for i := chainhash.HashSize - 1; i >= 0; i-- {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// TryAcceptResult is what the mempool collaborator reports back for one
// orphan reprocessing attempt.
type TryAcceptResult struct {
	Accepted     bool
	MissingInput bool
	DoSScore     int32
}

// TryAcceptFunc asks the mempool collaborator to attempt to accept an
// orphan now that one of its inputs may have appeared.
type TryAcceptFunc func(e *Entry) TryAcceptResult

// Reprocess implements spec.md §4.3's reprocessing contract: for each
// outpoint newly available (typically the outputs of a transaction that
// just entered the mempool), every orphan consuming it is retried. Orphans
// that turn out invalid for a reason other than another missing input are
// removed and, once per message, their source peer is reported misbehaving
// by the DoS amount the mempool collaborator attached. Returns the hashes
// that were newly accepted so the caller can recurse (an accepted orphan's
// own outputs may unblock further orphans).
func (p *Pool) Reprocess(outpoints []wire.OutPoint, tryAccept TryAcceptFunc, misbehave MisbehaveFunc) []chainhash.Hash {
	seen := make(map[int32]bool)
	var accepted []chainhash.Hash

	queue := append([]wire.OutPoint(nil), outpoints...)
	for len(queue) > 0 {
		op := queue[0]
		queue = queue[1:]

		for _, hash := range p.ConsumersOf(op) {
			e, ok := p.Get(hash)
			if !ok {
				continue
			}
			result := tryAccept(e)
			switch {
			case result.Accepted:
				p.Erase(hash)
				accepted = append(accepted, hash)
				for i := range e.Tx.TxOut {
					queue = append(queue, wire.OutPoint{Hash: hash, Index: uint32(i)})
				}
			case result.MissingInput:
				// still orphaned on a different input; leave it parked.
			default:
				p.Erase(hash)
				if result.DoSScore > 0 && !seen[e.SourcePeer] {
					misbehave(e.SourcePeer, result.DoSScore)
					seen[e.SourcePeer] = true
				}
			}
		}
	}
	return accepted
}
