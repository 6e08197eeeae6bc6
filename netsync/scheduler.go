// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netsync

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/kryptoin/litecoincash-sub001/peerstate"
)

// Scheduling constants, spec.md §4.2, mirroring net_processing.cpp's own
// values for the same names.
const (
	BlockDownloadWindow         = 1024
	BlockDownloadTranche        = 128
	BlockStallingTimeout        = 2 * time.Second
	BlockDownloadTimeoutBase    = 15 * time.Minute
	BlockDownloadTimeoutPerPeer = 5 * time.Minute
	ChainSyncTimeout            = 20 * time.Minute
	HeadersResponseTime         = 120 * time.Second
	StaleCheckInterval          = 10 * time.Second
	ExtraPeerCheckInterval      = 45 * time.Second
	MinimumConnectTime          = 30 * time.Second
	HeadersSyncOldTipHorizon    = 24 * time.Hour
)

// Scheduler implements the Download Scheduler and Tip Monitor of spec.md
// §4.2: block-selection windowing, stall/timeout disconnects, the
// chain-sync watchdog, and stale-tip extra-outbound handling. It is a thin
// collaborator over the same Peers/Chain/Out the Dispatcher already uses --
// Core invokes it on its own timers, outside the per-message Handle path.
type Scheduler struct {
	Peers            *peerstate.Store
	Chain            Chain
	Out              Outbound
	PowTargetSpacing time.Duration

	now func() time.Time
}

// NewScheduler returns a Scheduler over the given collaborators.
// powTargetSpacing is the consensus block interval the timeout formulas
// scale by (spec.md §4.2).
func NewScheduler(peers *peerstate.Store, chain Chain, out Outbound, powTargetSpacing time.Duration) *Scheduler {
	return &Scheduler{
		Peers:            peers,
		Chain:            chain,
		Out:              out,
		PowTargetSpacing: powTargetSpacing,
		now:              time.Now,
	}
}

// SelectBlocksToDownload implements spec.md §4.2's selection contract: up
// to count successor blocks of peerID's last-common-ancestor, restricted to
// the window [common+1, common+BLOCK_DOWNLOAD_WINDOW], walked in tranches of
// at most max(BlockDownloadTranche, count-selected). It returns the chosen
// hashes; if the walk reaches a height past the end of the window before
// count blocks are chosen, it stops there and also returns hasStaller=true
// with stallerPeerID set to peerID itself (not to the peer whose in-flight
// block holds the window back).
func (s *Scheduler) SelectBlocksToDownload(peerID int32, count int) (hashes []chainhash.Hash, stallerPeerID int32, hasStaller bool) {
	p, ok := s.Peers.Peer(peerID)
	if !ok || p.BestKnownHeader == nil {
		return nil, 0, false
	}

	tipWork := s.Chain.ActiveTipWork()
	bestWork, ok := s.Chain.HeaderWork(*p.BestKnownHeader)
	if !ok || bestWork < tipWork {
		return nil, 0, false
	}

	commonHash := s.Chain.ActiveTipHash()
	if p.LastCommonAncestor != nil {
		commonHash = *p.LastCommonAncestor
	}
	commonHeight, ok := s.Chain.HeightOf(commonHash)
	if !ok {
		return nil, 0, false
	}
	bestHeight, ok := s.Chain.HeightOf(*p.BestKnownHeader)
	if !ok {
		return nil, 0, false
	}

	windowEnd := commonHeight + BlockDownloadWindow
	selected := make([]chainhash.Hash, 0, count)

	for height := commonHeight + 1; len(selected) < count && height <= bestHeight; {
		tranche := count - len(selected)
		if tranche < BlockDownloadTranche {
			tranche = BlockDownloadTranche
		}
		trancheEnd := height + int32(tranche) - 1
		if trancheEnd > bestHeight {
			trancheEnd = bestHeight
		}

		for ; height <= trancheEnd && len(selected) < count; height++ {
			if height > windowEnd {
				return selected, peerID, true
			}

			ancestor, ok := s.Chain.AncestorAt(*p.BestKnownHeader, height)
			if !ok {
				return selected, 0, false
			}

			if s.Chain.IsInActiveChain(ancestor) {
				commonHeight = height
				continue
			}
			if s.Chain.WitnessActiveAt(height) && !p.Services.Has(peerstate.ServiceWitness) {
				continue
			}
			if s.Peers.IsBlockInFlight(ancestor) {
				continue
			}
			selected = append(selected, ancestor)
		}
	}

	common := s.ancestorHash(commonHeight, *p.BestKnownHeader)
	p.LastCommonAncestor = &common
	return selected, 0, false
}

func (s *Scheduler) ancestorHash(height int32, along chainhash.Hash) chainhash.Hash {
	if h, ok := s.Chain.AncestorAt(along, height); ok {
		return h
	}
	return s.Chain.ActiveTipHash()
}

// otherValidatedDownloadPeers returns PeersWithValidatedDownloads excluding
// peerID itself, the "other_validated_download_peers" term of the
// per-peer download timeout formula.
func (s *Scheduler) otherValidatedDownloadPeers(peerID int32) int {
	n := s.Peers.PeersWithValidatedDownloads()
	if p, ok := s.Peers.Peer(peerID); ok && p.NBlocksInFlightValidHeaders() > 0 {
		n--
	}
	if n < 0 {
		n = 0
	}
	return n
}

// CheckStalls implements spec.md §4.2's stall detection: a peer past its
// stalling-since deadline, or past its per-peer download timeout while at
// least one block is in flight, is disconnected.
func (s *Scheduler) CheckStalls(now time.Time) {
	var toDisconnect []int32
	s.Peers.ForEach(func(p *peerstate.Peer) {
		if !p.StallingSince.IsZero() && now.Sub(p.StallingSince) >= BlockStallingTimeout {
			toDisconnect = append(toDisconnect, p.ID)
			return
		}
		if p.NBlocksInFlight() == 0 || p.DownloadingSince.IsZero() {
			return
		}
		timeout := BlockDownloadTimeoutBase + time.Duration(s.otherValidatedDownloadPeers(p.ID))*BlockDownloadTimeoutPerPeer
		timeout = time.Duration(float64(timeout) * (float64(s.PowTargetSpacing) / float64(time.Minute*10)))
		if now.Sub(p.DownloadingSince) >= timeout {
			toDisconnect = append(toDisconnect, p.ID)
		}
	})
	for _, id := range toDisconnect {
		s.Out.Disconnect(id, "block download stalled")
	}
}

// CheckHeadersSyncWatchdog implements spec.md §4.2's headers-sync watchdog:
// a syncing peer past its headers-sync deadline is disconnected, provided
// the local best-known header is stale and at least one other
// preferred-download peer exists. Whitelisted peers are exempted but lose
// their sync-started flag instead of being disconnected.
func (s *Scheduler) CheckHeadersSyncWatchdog(now time.Time, bestHeaderTime time.Time) {
	if now.Sub(bestHeaderTime) < HeadersSyncOldTipHorizon {
		return
	}
	var toDisconnect []int32
	s.Peers.ForEach(func(p *peerstate.Peer) {
		if !p.SyncStarted || p.HeadersSyncDeadline.IsZero() || now.Before(p.HeadersSyncDeadline) {
			return
		}
		if p.Whitelisted {
			p.SyncStarted = false
			return
		}
		others := s.Peers.PreferredDownload()
		if p.IsPreferredDownload() {
			others--
		}
		if others < 1 {
			return
		}
		toDisconnect = append(toDisconnect, p.ID)
	})
	for _, id := range toDisconnect {
		s.Out.Disconnect(id, "headers sync watchdog timeout")
	}
}

// CheckChainSyncTimeout implements spec.md §4.2's chain-sync timeout: an
// unprotected outbound peer whose best-known work hasn't caught up to its
// recorded work-header snapshot within ChainSyncTimeout first gets a
// targeted getheaders; if it's still behind HeadersResponseTime later, it
// is disconnected. requestGetHeaders is called with the peer id and the
// hash to anchor the targeted request at (the work-header's parent).
func (s *Scheduler) CheckChainSyncTimeout(now time.Time, requestGetHeaders func(peerID int32, anchor chainhash.Hash)) {
	var toDisconnect []int32
	s.Peers.ForEach(func(p *peerstate.Peer) {
		if p.Direction != peerstate.DirectionOutbound || p.ProtectFromEviction {
			return
		}
		if p.WorkHeaderSnapshot == nil {
			return
		}

		caughtUp := p.BestKnownHeader != nil
		if caughtUp {
			if w, ok := s.Chain.HeaderWork(*p.WorkHeaderSnapshot); ok {
				if bw, ok := s.Chain.HeaderWork(*p.BestKnownHeader); !ok || bw < w {
					caughtUp = false
				}
			}
		}
		if caughtUp {
			p.WorkHeaderSnapshot = nil
			p.ChainSyncTargetedGH = false
			return
		}

		if p.ChainSyncTimeoutAt.IsZero() {
			p.ChainSyncTimeoutAt = now.Add(ChainSyncTimeout)
			return
		}
		if now.Before(p.ChainSyncTimeoutAt) {
			return
		}
		if !p.ChainSyncTargetedGH {
			p.ChainSyncTargetedGH = true
			p.ChainSyncResponseDue = now.Add(HeadersResponseTime)
			anchor := *p.WorkHeaderSnapshot
			if h, ok := s.Chain.HeightOf(*p.WorkHeaderSnapshot); ok && h > 0 {
				if parent, ok := s.Chain.AncestorAt(*p.WorkHeaderSnapshot, h-1); ok {
					anchor = parent
				}
			}
			requestGetHeaders(p.ID, anchor)
			return
		}
		if now.After(p.ChainSyncResponseDue) {
			toDisconnect = append(toDisconnect, p.ID)
		}
	})
	for _, id := range toDisconnect {
		s.Out.Disconnect(id, "chain sync timeout")
	}
}

// TipMonitor implements spec.md §4.2's last paragraph: periodic stale-tip
// detection and the extra-outbound eviction policy it drives.
type TipMonitor struct {
	Peers            *peerstate.Store
	PowTargetSpacing time.Duration

	lastTipUpdate time.Time
	inFlightCount func() int
}

// NewTipMonitor returns a TipMonitor. inFlightCount reports how many
// blocks are currently in flight process-wide (spec.md's "nothing is
// in-flight" guard).
func NewTipMonitor(peers *peerstate.Store, powTargetSpacing time.Duration, inFlightCount func() int) *TipMonitor {
	return &TipMonitor{Peers: peers, PowTargetSpacing: powTargetSpacing, inFlightCount: inFlightCount}
}

// NoteTipUpdate records that the chain tip advanced at "now".
func (t *TipMonitor) NoteTipUpdate(now time.Time) { t.lastTipUpdate = now }

// NeedsExtraOutbound reports whether the tip has been stale for
// 3*PowTargetSpacing with nothing in flight, in which case the caller
// should request one additional outbound connection slot.
func (t *TipMonitor) NeedsExtraOutbound(now time.Time) bool {
	if t.lastTipUpdate.IsZero() {
		return false
	}
	if t.inFlightCount() > 0 {
		return false
	}
	return now.Sub(t.lastTipUpdate) >= 3*t.PowTargetSpacing
}

// SelectExtraOutboundEvictee picks the outbound peer to drop to make room
// for a fresh extra-outbound slot: the one with the oldest
// last-block-announcement, excluding protected peers and peers with
// < MinimumConnectTime uptime or a nonzero in-flight count.
func (t *TipMonitor) SelectExtraOutboundEvictee(now time.Time) (int32, bool) {
	var victim *peerstate.Peer
	t.Peers.ForEach(func(p *peerstate.Peer) {
		if p.Direction != peerstate.DirectionOutbound || p.ProtectFromEviction {
			return
		}
		if now.Sub(p.ConnectedAt) < MinimumConnectTime {
			return
		}
		if p.NBlocksInFlight() != 0 {
			return
		}
		if victim == nil || p.LastBlockAnnouncement.Before(victim.LastBlockAnnouncement) {
			victim = p
		}
	})
	if victim == nil {
		return 0, false
	}
	return victim.ID, true
}
