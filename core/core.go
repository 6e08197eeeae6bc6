// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package core wires every subsystem (peer state, orphan pool, fee
// estimator, block assembler, Hive coordinator, message dispatcher, relay
// maps) into one process-wide value and documents the lock order spec.md
// §5 requires, grounded on the teacher's own top-level wiring style
// (neal-zhu-qitmeer's services packages are composed by a single owning
// struct rather than package globals).
package core

import (
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/kryptoin/litecoincash-sub001/feeestimator"
	nodelog "github.com/kryptoin/litecoincash-sub001/log"
	"github.com/kryptoin/litecoincash-sub001/mining"
	"github.com/kryptoin/litecoincash-sub001/netsync"
	"github.com/kryptoin/litecoincash-sub001/orphanpool"
	"github.com/kryptoin/litecoincash-sub001/peerstate"
	"github.com/kryptoin/litecoincash-sub001/relay"
	"github.com/kryptoin/litecoincash-sub001/wire"
)

var clog = nodelog.Logger(nodelog.SubsystemCore)

// Core owns every piece of process-wide mutable state and the lock that
// guards the cs_main-equivalent surface: the peer table, in-flight index,
// and chain-adjacent bookkeeping. cs_feeEstimator is modeled as the fee
// estimator's own internal lock, acquired by callers only after Mu per
// spec.md §5's LOCK2 ordering; this type never acquires it itself. The
// orphan pool has no lock of its own: g_cs_orphans is folded into Mu, and
// Orphans is only touched while Mu is held.
type Core struct {
	// Mu is the cs_main-equivalent lock: Peers, Dispatcher routing
	// decisions and in-flight bookkeeping all happen under it.
	Mu sync.Mutex

	Peers      *peerstate.Store
	Orphans    *orphanpool.Pool
	Fees       *feeestimator.Estimator
	Assembler  *mining.Assembler
	Dispatcher *netsync.Dispatcher
	Scheduler  *netsync.Scheduler
	TipMonitor *netsync.TipMonitor

	// recentMu guards the cs_most_recent_block-equivalent state
	// (FastAnnounce, LastTipUpdate): never held across network I/O, so it
	// gets its own lock rather than sharing Mu.
	recentMu        sync.Mutex
	FastAnnounce    *relay.FastAnnounceCache
	TxRelay         *relay.TxRelayMap
	Send            *relay.SendScheduler
	LastTipUpdate   time.Time
}

// New wires every subsystem together. chain/mempool/out are the narrow
// collaborator interfaces netsync.Dispatcher consumes; New does not assume
// anything about their implementation. powTargetSpacing is the consensus
// block interval the Download Scheduler and Tip Monitor's timeout formulas
// scale by (spec.md §4.2) -- a chain parameter, not a node config option.
// banScore is config.Config.BanScore (spec.md §6 `banscore`), the
// misbehavior-score ban threshold threaded into the dispatcher.
func New(chain netsync.Chain, mempool netsync.Mempool, out netsync.Outbound, source mining.Source, powTargetSpacing time.Duration, banScore int32) *Core {
	peers := peerstate.NewStore()
	orphans := orphanpool.New(100_000)
	fees := feeestimator.New()
	assembler := mining.New(source)
	dispatcher := netsync.New(peers, orphans, chain, mempool, out)
	if banScore > 0 {
		dispatcher.BanScore = banScore
	}
	scheduler := netsync.NewScheduler(peers, chain, out, powTargetSpacing)
	tipMonitor := netsync.NewTipMonitor(peers, powTargetSpacing, func() int {
		n := 0
		peers.ForEach(func(p *peerstate.Peer) { n += p.NBlocksInFlight() })
		return n
	})

	return &Core{
		Peers:        peers,
		Orphans:      orphans,
		Fees:         fees,
		Assembler:    assembler,
		Dispatcher:   dispatcher,
		Scheduler:    scheduler,
		TipMonitor:   tipMonitor,
		FastAnnounce: relay.NewFastAnnounceCache(),
		TxRelay:      relay.NewTxRelayMap(relay.DefaultExpiry),
		Send:         relay.NewSendScheduler(),
	}
}

// DisconnectPeer performs the cross-subsystem teardown spec.md §3 and §5
// call for: peer-store removal under Mu, then orphan-pool cleanup, which
// needs g_cs_orphans cross-referenced against cs_main per the documented
// LOCK2(cs_main, g_cs_orphans) order -- this method holds Mu for its whole
// body so the order is trivially respected by never releasing it early.
func (c *Core) DisconnectPeer(peerID int32) {
	c.Mu.Lock()
	defer c.Mu.Unlock()

	c.Peers.RemovePeer(peerID)
	c.Orphans.EraseForPeer(peerID)
	c.Send.Forget(peerID)
}

// HandleMessage is the single entry point the net thread calls per
// ingress message, serialized under Mu per spec.md §5 ("cs_main ...
// acquired by nearly every dispatcher handler").
func (c *Core) HandleMessage(peerID int32, msg wire.Message) error {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	return c.Dispatcher.Handle(peerID, msg)
}

// OnBlockConnected updates the fast-announce cache and last-tip-update
// timestamp, mirroring net_processing.cpp's PeerLogicValidation hook
// (spec.md §4.7, §5 "Validation callbacks ... must be reentrant-safe").
// It takes recentMu, never Mu, matching "never held across network I/O".
func (c *Core) OnBlockConnected(height int32, hash chainhash.Hash, witnessPresent bool, now time.Time) {
	c.recentMu.Lock()
	defer c.recentMu.Unlock()

	c.FastAnnounce.SetTip(height, hash, nil, witnessPresent)
	c.LastTipUpdate = now
	c.TipMonitor.NoteTipUpdate(now)
	clog.Debugf("tip connected: height=%d hash=%s", height, hash)
}
