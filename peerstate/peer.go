// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peerstate models the per-peer CNodeState-equivalent record
// (spec.md §3) this core keeps for every connected peer: identity,
// handshake/sync state, in-flight block queue, misbehavior score,
// negotiated feature bits, the chain-sync watchdog, and the per-command
// rate-limit trackers and introspection-hardening counters that back
// spec.md §4.1's dispatcher contracts.
//
// Grounded on _examples/original_source/src/net_processing.cpp's CNodeState
// and the Misbehaving() accounting it documents.
package peerstate

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/lru"
)

// Direction is the connection direction of a peer.
type Direction uint8

const (
	DirectionInbound Direction = iota
	DirectionOutbound
	DirectionFeeler
	DirectionManual
)

// ServiceFlag mirrors the wire NODE_* service bits relevant to this core.
type ServiceFlag uint64

const (
	ServiceNetwork ServiceFlag = 1 << iota
	ServiceBloom
	ServiceWitness
	ServiceNetworkLimited
	ServiceRialto // out-of-band encrypted relay, LitecoinCash-fork specific
)

// Has reports whether flag is set in the service set.
func (s ServiceFlag) Has(flag ServiceFlag) bool { return s&flag != 0 }

// InFlightEntry is the QueuedBlock entity of spec.md §3: one block this peer
// is currently expected to deliver, with an optional partially-reconstructed
// compact block riding along.
type InFlightEntry struct {
	Hash             chainhash.Hash
	HeaderKnown      bool
	ValidatedHeaders bool
	Partial          *PartialCompactBlock
	RequestedAt      time.Time
}

// PartialCompactBlock tracks in-progress compact-block reconstruction
// (spec.md §4.1 `cmpctblock`/`blocktxn`).
type PartialCompactBlock struct {
	Header          chainhash.Hash
	ShortIDs        map[uint64]int // short id -> index into the block
	Prefilled       map[int]bool   // indices already known from the message
	Missing         []int          // indices still required via getblocktxn
	HeaderReceived  time.Time
}

// Peer is the per-connection state record. All mutation is expected to
// happen under the caller's cs_main-equivalent lock (core.Core.Mu); this
// type itself holds no lock.
type Peer struct {
	ID        int32
	Direction Direction
	Services  ServiceFlag
	Whitelisted bool
	ProtocolVersion uint32

	// Handshake progress (spec.md §4.1 version/verack ordering).
	VersionReceived bool
	VerAckReceived  bool
	IsFeeler        bool

	// Sync state.
	BestKnownHeader     *chainhash.Hash
	BestKnownHeaderHeight int32
	LastCommonAncestor  *chainhash.Hash
	BestHeaderSent      *chainhash.Hash
	LastUnknownBlock    *chainhash.Hash

	// In-flight block queue. BlocksInFlight is also reachable process-wide
	// via Store.blocksInFlight (spec.md §3 invariant).
	InFlight        []*InFlightEntry
	StallingSince   time.Time
	DownloadingSince time.Time

	// Misbehavior.
	Misbehavior int32
	ShouldBan   bool

	// Negotiation.
	PrefersHeaders             bool
	PrefersCompactAnnouncements bool
	WantsCompactWitness        bool
	SupportsDesiredCmpctVersion bool
	HasWitnessService          bool
	SendCmpctCount             int // spec.md: accept only 5 per session

	// Chain-sync watchdog (spec.md §4.2).
	SyncStarted           bool
	HeadersSyncDeadline   time.Time
	WorkHeaderSnapshot    *chainhash.Hash
	SentGetheaders        bool
	ProtectFromEviction   bool
	ChainSyncTimeoutAt    time.Time
	ChainSyncTargetedGH   bool
	ChainSyncResponseDue  time.Time

	// Rate-limit trackers, one per throttled command.
	InvWindow        *RateWindow
	GetheadersWindow *RateWindow
	AddrWindow       *RateWindow
	NotFoundWindow   *RateWindow
	RejectWindow     *RateWindow
	SendCmpctWindow  *RateWindow
	FilterLoadWindow *RateWindow
	MempoolWindow    *RateWindow

	// Introspection hardening (spec.md §4.1, §9 Open Question).
	RecentHeaderRequests   int
	StaleForkAnnouncements int
	IntrospectionScore     int32
	LastIntrospectionTime  time.Time

	OrphanCount      int
	PongMismatchCount int
	PingNonceSent    uint64
	PingSentAt       time.Time

	LastBlockAnnouncement time.Time
	ConnectedAt           time.Time

	KnownInventory *lru.Cache
}

// knownInventoryCapacity bounds the per-peer known-inventory filter so a
// long-lived connection's memory use doesn't grow without limit (spec.md
// §4.1 `inv`'s per-peer known-inv filter).
const knownInventoryCapacity = 50_000

// New creates a Peer with its rate-limit trackers initialized to the
// windows spec.md §4.1 calls for.
func New(id int32, dir Direction) *Peer {
	now := time.Now()
	return &Peer{
		ID:               id,
		Direction:        dir,
		ConnectedAt:      now,
		InvWindow:        NewRateWindow(60 * time.Second),
		GetheadersWindow: NewRateWindow(60 * time.Second),
		AddrWindow:       NewRateWindow(60 * time.Second),
		NotFoundWindow:   NewRateWindow(60 * time.Second),
		RejectWindow:     NewRateWindow(60 * time.Second),
		SendCmpctWindow:  NewRateWindow(24 * time.Hour), // session-scoped counter below, window unused for cap
		FilterLoadWindow: NewRateWindow(600 * time.Second),
		MempoolWindow:    NewRateWindow(time.Hour),
		KnownInventory:   lru.NewCache(knownInventoryCapacity),
	}
}

// NBlocksInFlight is the derived count backing spec.md §3's invariant
// "p.nBlocksInFlight = |p.vBlocksInFlight|".
func (p *Peer) NBlocksInFlight() int { return len(p.InFlight) }

// NBlocksInFlightValidHeaders counts in-flight entries whose header has
// already passed validation, backing the
// "peers-with-validated-downloads" process-wide invariant.
func (p *Peer) NBlocksInFlightValidHeaders() int {
	n := 0
	for _, e := range p.InFlight {
		if e.ValidatedHeaders {
			n++
		}
	}
	return n
}

// IsPreferredDownload reports whether this peer counts toward
// "preferred-download" (spec.md §3): a peer we prefer to source blocks
// from, i.e. one that isn't a pruning/limited peer working against us.
func (p *Peer) IsPreferredDownload() bool {
	return !p.Services.Has(ServiceNetworkLimited) || p.Whitelisted
}

// IsOutboundDisconnectionCandidate reports whether this peer may be
// dropped to make room for a better one: a regular outbound connection,
// never an inbound, manual, or eviction-protected one (spec.md §4.1
// `headers`' post-IBD stale-chain disconnect).
func (p *Peer) IsOutboundDisconnectionCandidate() bool {
	return p.Direction == DirectionOutbound && !p.ProtectFromEviction && !p.Whitelisted
}

// Misbehaving increments the score by howmuch and reports whether the peer
// crossed the ban threshold on this call (spec.md §4.1/§7,
// net_processing.cpp Misbehaving()).
func (p *Peer) Misbehaving(howmuch int32, banThreshold int32) (crossed bool) {
	before := p.Misbehavior
	p.Misbehavior += howmuch
	if p.Misbehavior >= banThreshold && before < banThreshold {
		p.ShouldBan = true
		crossed = true
	}
	return crossed
}

// KnowsInventory reports whether hash has already been announced to (or by)
// this peer, per the per-peer known-inv filter of spec.md §4.1 `inv`.
func (p *Peer) KnowsInventory(hash chainhash.Hash) bool {
	return p.KnownInventory.Contains(hash)
}

// AddKnownInventory records hash as known to this peer.
func (p *Peer) AddKnownInventory(hash chainhash.Hash) {
	p.KnownInventory.Add(hash)
}
