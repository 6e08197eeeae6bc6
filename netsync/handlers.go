// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netsync

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/kryptoin/litecoincash-sub001/peerstate"
	"github.com/kryptoin/litecoincash-sub001/wire"
)

func (d *Dispatcher) handleVersion(p *peerstate.Peer, m *wire.MsgVersion) error {
	if p.VersionReceived {
		d.misbehave(p, dosOrdinary, "duplicate version message")
		return fmt.Errorf("peer %d sent version twice", p.ID)
	}
	if m.ProtocolVersion < d.MinPeerProtoVersion {
		d.Out.QueueMessage(p.ID, &wire.MsgReject{
			Cmd: wire.CmdVersion, Code: wire.RejectObsolete, Reason: "obsolete protocol version",
		})
		d.Out.Disconnect(p.ID, "obsolete protocol version")
		return fmt.Errorf("peer %d obsolete version %d", p.ID, m.ProtocolVersion)
	}

	p.VersionReceived = true
	p.ProtocolVersion = uint32(m.ProtocolVersion)

	if p.IsFeeler {
		d.Out.Disconnect(p.ID, "feeler connection complete")
		return nil
	}

	if p.Direction == peerstate.DirectionInbound {
		d.Out.QueueMessage(p.ID, &wire.MsgVersion{})
	} else {
		d.Out.QueueMessage(p.ID, &wire.MsgGetAddr{})
	}
	return nil
}

func (d *Dispatcher) handleVerAck(p *peerstate.Peer, _ *wire.MsgVerAck) error {
	if !p.VersionReceived {
		d.misbehave(p, dosOrdinary, "verack before version")
		return fmt.Errorf("peer %d sent verack before version", p.ID)
	}
	p.VerAckReceived = true

	if int32(p.ProtocolVersion) >= d.SendHeadersVersion {
		d.Out.QueueMessage(p.ID, &wire.MsgSendHeaders{})
	}
	if int32(p.ProtocolVersion) >= d.ShortIDsVersion {
		d.Out.QueueMessage(p.ID, &wire.MsgSendCmpct{Announce: true, Version: 1})
	}
	return nil
}

// addrFutureSlack and addrPastHorizon bound what counts as a plausible addr
// timestamp, and addrNormalizeTo is the age given to the rest; an
// address outside [now-100y, now+10m] is normalized to now-5d (spec.md
// §4.1 `addr`).
const (
	addrFutureSlack = 10 * time.Minute
	addrPastHorizon = 100 * 365 * 24 * time.Hour
	addrNormalizeTo = 5 * 24 * time.Hour
)

func (d *Dispatcher) handleAddr(p *peerstate.Peer, m *wire.MsgAddr) error {
	if len(m.AddrList) > maxAddrPerMessage {
		d.misbehave(p, dosOrdinary, "addr message exceeds 1000 entries")
		return fmt.Errorf("peer %d sent %d addresses", p.ID, len(m.AddrList))
	}

	now := d.now()
	if p.AddrWindow.Add(now, len(m.AddrList)) > maxAddrPerMessage {
		d.misbehave(p, dosOrdinary, "addr rate limit exceeded")
		return fmt.Errorf("peer %d exceeded addr rate limit", p.ID)
	}

	for _, a := range m.AddrList {
		if now.Sub(a.Timestamp) > addrPastHorizon || a.Timestamp.After(now.Add(addrFutureSlack)) {
			a.Timestamp = now.Add(-addrNormalizeTo)
		}
	}

	d.relayAddr(p, m.AddrList, now)
	return nil
}

func (d *Dispatcher) handleInv(p *peerstate.Peer, m *wire.MsgInv) error {
	if len(m.InvList) > maxInvSz {
		d.misbehave(p, dosOrdinary, "inv exceeds MAX_INV_SZ")
		return fmt.Errorf("peer %d sent %d inv entries", p.ID, len(m.InvList))
	}
	now := d.now()
	if p.InvWindow.Add(now, len(m.InvList)) > maxInvSz {
		d.misbehave(p, dosOrdinary, "inv rate limit exceeded")
		return fmt.Errorf("peer %d exceeded inv rate limit", p.ID)
	}

	for _, inv := range m.InvList {
		switch {
		case inv.Type&^wire.InvWitnessFlag == wire.InvTypeBlock:
			if !d.Chain.HaveHeader(inv.Hash) {
				loc := wire.BlockLocator{}
				if p.BestKnownHeader != nil {
					loc = append(loc, *p.BestKnownHeader)
				}
				d.Out.QueueMessage(p.ID, &wire.MsgGetHeaders{Locator: loc, HashStop: inv.Hash})
			}
		case inv.Type&^wire.InvWitnessFlag == wire.InvTypeTx:
			p.AddKnownInventory(inv.Hash)
			if !d.Mempool.AlreadyHave(inv.Hash) {
				d.Out.QueueMessage(p.ID, &wire.MsgGetData{InvList: []*wire.InvVect{inv}})
			}
		case inv.Type&^wire.InvWitnessFlag == wire.InvTypeRialto:
			if !p.Services.Has(peerstate.ServiceRialto) {
				d.misbehave(p, dosOrdinary, "rialto inv without service flag")
			}
		}
	}
	return nil
}

func (d *Dispatcher) handleGetData(p *peerstate.Peer, m *wire.MsgGetData) error {
	if len(m.InvList) > maxInvSz {
		d.misbehave(p, dosOrdinary, "getdata exceeds MAX_INV_SZ")
		return fmt.Errorf("peer %d sent %d getdata entries", p.ID, len(m.InvList))
	}
	seen := make(map[wire.InvVect]struct{}, len(m.InvList))
	for _, inv := range m.InvList {
		if _, dup := seen[*inv]; dup {
			d.misbehave(p, dosOrdinary, "duplicate getdata entry")
			return fmt.Errorf("peer %d sent duplicate getdata entry", p.ID)
		}
		seen[*inv] = struct{}{}
	}
	// Actual serving (relay map / mempool-info / recent-block cache / block
	// store, NODE_NETWORK_LIMITED depth and bandwidth-target honoring) is
	// delegated to the Core wiring layer, which owns those stores; this
	// handler's contract is the cap/duplicate enforcement above.
	return nil
}

func (d *Dispatcher) handleGetHeaders(p *peerstate.Peer, m *wire.MsgGetHeaders) error {
	now := d.now()
	if p.GetheadersWindow.Add(now, 1) > 20 {
		d.misbehave(p, dosOrdinary, "getheaders rate limit exceeded")
		if !p.Whitelisted {
			p.RecentHeaderRequests += 10
			p.IntrospectionScore += introspectionGetheaders
			if p.IntrospectionScore >= d.BanScore {
				d.Out.Disconnect(p.ID, "introspection score threshold exceeded")
			}
		}
		return fmt.Errorf("peer %d exceeded getheaders rate limit", p.ID)
	}

	headers := d.Chain.LocatorHeaders(m.Locator, m.HashStop, maxHeadersResults)
	d.Out.QueueMessage(p.ID, &wire.MsgHeaders{Headers: headers})
	return nil
}

func (d *Dispatcher) handleHeaders(p *peerstate.Peer, m *wire.MsgHeaders) error {
	if len(m.Headers) > maxHeadersResults {
		d.misbehave(p, dosOrdinary, "headers exceeds MAX_HEADERS_RESULTS")
		return fmt.Errorf("peer %d sent %d headers", p.ID, len(m.Headers))
	}

	for i := 1; i < len(m.Headers); i++ {
		if m.Headers[i].PrevBlock != m.Headers[i-1].Hash() {
			d.misbehave(p, dosOrdinary, "non-continuous headers sequence")
			return fmt.Errorf("non-continuous headers sequence at index %d", i)
		}
	}

	if len(m.Headers) == 0 {
		return nil
	}

	first := m.Headers[0]
	if !d.Chain.HaveHeader(first.PrevBlock) {
		if len(m.Headers) < maxBlocksToAnnounce {
			d.Out.QueueMessage(p.ID, &wire.MsgGetHeaders{HashStop: first.Hash()})
			p.RecentHeaderRequests++
			if p.RecentHeaderRequests%maxUnconnectingHeaders == 0 {
				d.misbehave(p, dosOrdinary, "excessive unconnecting headers")
			}
		}
		return nil
	}

	dosScore, err := d.Chain.AcceptHeaders(m.Headers)
	if err != nil {
		if dosScore > 0 {
			d.misbehave(p, dosScore, "header validation failure")
		}
		return fmt.Errorf("accepting headers: %w", err)
	}

	last := m.Headers[len(m.Headers)-1]
	lastHash := last.Hash()
	activeTipWork := d.Chain.ActiveTipWork()
	if work, ok := d.Chain.HeaderWork(lastHash); ok {
		switch {
		case work > activeTipWork:
			p.LastBlockAnnouncement = d.now()
			p.BestKnownHeader = &lastHash
		case work < activeTipWork:
			if d.checkStaleForkAnnouncement(p, lastHash) {
				return nil
			}
		}
	}

	if !d.InitialBlockDownload && d.checkChainWorkBehind(p) {
		return nil
	}

	if len(m.Headers) > 0 && d.Chain.IsInActiveChain(first.PrevBlock) && len(m.Headers) <= maxBlocksInTransit {
		invType := wire.InvTypeBlock
		if len(m.Headers) == 1 && p.NBlocksInFlight() == 0 {
			invType = wire.InvTypeCmpctBlock
		}
		var invList []*wire.InvVect
		for _, h := range m.Headers {
			hh := h.Hash()
			invList = append(invList, &wire.InvVect{Type: invType, Hash: hh})
		}
		d.Out.QueueMessage(p.ID, &wire.MsgGetData{InvList: invList})
	}

	return nil
}

// checkStaleForkAnnouncement implements the §4.1 `headers` introspection
// hardening: a peer whose announced tip sits more than 6 blocks behind the
// active tip is repeatedly mapping a stale fork. It reports whether the
// peer was disconnected.
func (d *Dispatcher) checkStaleForkAnnouncement(p *peerstate.Peer, lastHash chainhash.Hash) bool {
	lastHeight, ok := d.Chain.HeightOf(lastHash)
	if !ok {
		return false
	}
	tipHeight, ok := d.Chain.HeightOf(d.Chain.ActiveTipHash())
	if !ok || tipHeight-lastHeight <= 6 {
		return false
	}

	p.StaleForkAnnouncements++
	p.IntrospectionScore += introspectionStaleFork
	p.LastIntrospectionTime = d.now()
	slog.Debugf("peer %d announced stale fork: height %d vs our %d (count=%d, score=%d)",
		p.ID, lastHeight, tipHeight, p.StaleForkAnnouncements, p.IntrospectionScore)

	if p.StaleForkAnnouncements > introspectionStaleForkDisconnect {
		d.Out.Disconnect(p.ID, "repeated stale fork announcements")
		return true
	}
	return false
}

// checkChainWorkBehind implements the post-IBD disconnect heuristic: an
// outbound-disconnection-candidate whose best-known chain has fallen more
// than ~144 blocks' worth of average work behind ours is a weak fork,
// not a useful sync source. The per-block work approximation
// (tipWork / max(height,1)) is the original's own approximation, not a
// chain-work-precise calculation (spec.md §9 open question).
func (d *Dispatcher) checkChainWorkBehind(p *peerstate.Peer) bool {
	if p.BestKnownHeader == nil || !p.IsOutboundDisconnectionCandidate() {
		return false
	}
	peerWork, ok := d.Chain.HeaderWork(*p.BestKnownHeader)
	if !ok {
		return false
	}
	tipHeight, ok := d.Chain.HeightOf(d.Chain.ActiveTipHash())
	if !ok || tipHeight <= 0 {
		return false
	}

	tipWork := d.Chain.ActiveTipWork()
	workPerBlock := tipWork / uint64(tipHeight)
	allowance := workPerBlock * 144
	var minAcceptable uint64
	if allowance < tipWork {
		minAcceptable = tipWork - allowance
	}

	if peerWork < minAcceptable {
		d.Out.Disconnect(p.ID, "peer chain work significantly behind ours")
		return true
	}
	return false
}

func (d *Dispatcher) handlePing(p *peerstate.Peer, m *wire.MsgPing) error {
	d.Out.QueueMessage(p.ID, &wire.MsgPong{Nonce: m.Nonce})
	return nil
}

func (d *Dispatcher) handlePong(p *peerstate.Peer, m *wire.MsgPong) error {
	if p.PingNonceSent == 0 {
		slog.Debugf("peer %d: unsolicited pong without ping", p.ID)
		return nil
	}
	if m.Nonce != p.PingNonceSent {
		p.PongMismatchCount++
		if p.PongMismatchCount > 3 {
			d.misbehave(p, dosMinor, "excessive ping/pong nonce mismatches")
		}
		return fmt.Errorf("peer %d pong nonce mismatch", p.ID)
	}
	p.PingNonceSent = 0
	return nil
}

func (d *Dispatcher) handleFilterLoad(p *peerstate.Peer, m *wire.MsgFilterLoad) error {
	const maxBloomFilterSize = 36_000
	if len(m.Filter) > maxBloomFilterSize {
		d.misbehave(p, dosSevere, "oversize bloom filter")
		return fmt.Errorf("peer %d sent oversize bloom filter", p.ID)
	}
	now := d.now()
	if p.FilterLoadWindow.Add(now, 1) > 1 {
		d.misbehave(p, dosExpensive, "filterload rate limit exceeded")
		return fmt.Errorf("peer %d exceeded filterload rate limit", p.ID)
	}
	return nil
}

func (d *Dispatcher) handleFilterAdd(p *peerstate.Peer, m *wire.MsgFilterAdd) error {
	if len(m.Data) > maxScriptElementSize {
		d.misbehave(p, dosSevere, "filteradd element oversize")
		return fmt.Errorf("peer %d filteradd element too large", p.ID)
	}
	return nil
}

func (d *Dispatcher) handleMemPool(p *peerstate.Peer, _ *wire.MsgMemPool) error {
	now := d.now()
	if p.MempoolWindow.Add(now, 1) > 1 {
		d.misbehave(p, dosMinor, "mempool request rate limit exceeded")
		return fmt.Errorf("peer %d exceeded mempool request rate limit", p.ID)
	}
	if !p.Services.Has(peerstate.ServiceBloom) && !p.Whitelisted {
		return fmt.Errorf("peer %d requested mempool without bloom service", p.ID)
	}
	return nil
}

func (d *Dispatcher) handleSendCmpct(p *peerstate.Peer, m *wire.MsgSendCmpct) error {
	p.SendCmpctCount++
	if p.SendCmpctCount > 5 {
		d.misbehave(p, dosMinor, "excessive sendcmpct messages")
		return fmt.Errorf("peer %d exceeded sendcmpct session limit", p.ID)
	}
	p.PrefersCompactAnnouncements = m.Announce
	p.SupportsDesiredCmpctVersion = m.Version == 1
	p.WantsCompactWitness = m.Version == 2
	return nil
}

func (d *Dispatcher) handleNotFound(p *peerstate.Peer, m *wire.MsgNotFound) error {
	now := d.now()
	if p.NotFoundWindow.Add(now, len(m.InvList)) > 100 {
		d.misbehave(p, dosMinor, "notfound rate limit exceeded")
		return fmt.Errorf("peer %d exceeded notfound rate limit", p.ID)
	}
	return nil
}

func (d *Dispatcher) handleReject(p *peerstate.Peer, m *wire.MsgReject) error {
	now := d.now()
	if p.RejectWindow.Add(now, 1) > 10 {
		return nil // logging cap exceeded: drop silently, no misbehavior
	}
	slog.Debugf("peer %d rejected %s: %s", p.ID, m.Cmd, m.Reason)
	return nil
}

func (d *Dispatcher) handleRialto(p *peerstate.Peer, m *wire.MsgRialto) error {
	if !p.Services.Has(peerstate.ServiceRialto) {
		d.misbehave(p, dosOrdinary, "rialto payload without service flag")
		return fmt.Errorf("peer %d sent rialto payload without service flag", p.ID)
	}
	// Envelope parsing is delegated to the external envelope-parser
	// collaborator; relay fan-out to other rialto-capable peers lives in
	// the Core wiring layer, which owns the relay map.
	return nil
}

// handleCmpctBlock begins or completes a compact-block reconstruction
// (spec.md §4.1 `cmpctblock`). Header acceptance and work comparison reuse
// the same Chain collaborator as handleHeaders. Short-id matching checks
// the reconstruction ring (recent transactions from prior blocktxn fills)
// via compactShortID, a stand-in for BIP152's SipHash scheme -- the exact
// wire hash is out of this core's scope, same as wire.BlockHeader.Hash.
func (d *Dispatcher) handleCmpctBlock(p *peerstate.Peer, m *wire.MsgCmpctBlock) error {
	hash := m.Header.Hash()

	if !d.Chain.HaveHeader(m.Header.PrevBlock) {
		d.Out.QueueMessage(p.ID, &wire.MsgGetHeaders{HashStop: hash})
		return nil
	}

	if work, ok := d.Chain.HeaderWork(hash); ok && work <= d.Chain.ActiveTipWork() {
		return nil
	}

	if len(m.ShortIDs) == 0 && len(m.PrefilledTxns) == 0 {
		d.misbehave(p, dosSevere, "cmpctblock with no content")
		return fmt.Errorf("peer %d sent empty cmpctblock", p.ID)
	}

	prefilled := make(map[int]bool, len(m.PrefilledTxns))
	for _, pt := range m.PrefilledTxns {
		if pt.Index < 0 {
			d.misbehave(p, dosSevere, "cmpctblock invalid prefilled index")
			return fmt.Errorf("peer %d sent negative prefilled index", p.ID)
		}
		prefilled[pt.Index] = true
	}

	shortIDs := make(map[uint64]int, len(m.ShortIDs))
	for i, sid := range m.ShortIDs {
		if _, dup := shortIDs[sid]; dup {
			d.misbehave(p, dosSevere, "cmpctblock duplicate short id")
			return fmt.Errorf("peer %d sent duplicate short id", p.ID)
		}
		shortIDs[sid] = i
	}

	resolved := make(map[int]bool, len(shortIDs))
	for _, h := range d.extraTxns.Keys() {
		if idx, ok := shortIDs[compactShortID(m.Nonce, h)]; ok {
			resolved[idx] = true
		}
	}

	var missing []int
	for i := range m.ShortIDs {
		if !prefilled[i] && !resolved[i] {
			missing = append(missing, i)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	d.partial[p.ID] = &peerstate.PartialCompactBlock{
		Header:    hash,
		ShortIDs:  shortIDs,
		Prefilled: prefilled,
		Missing:   missing,
	}
	d.Out.QueueMessage(p.ID, &wire.MsgGetBlockTxn{BlockHash: hash, Indexes: missing})
	return nil
}

// handleGetBlockTxn serves the other direction: a peer we previously
// fast-announced a block to is now asking for the indices it couldn't
// resolve. Serving it needs the actual block body, which belongs to the
// block store the Core wiring layer owns; this handler's contract ends at
// the request shape the dispatcher itself can validate.
func (d *Dispatcher) handleGetBlockTxn(p *peerstate.Peer, m *wire.MsgGetBlockTxn) error {
	if len(m.Indexes) == 0 {
		d.misbehave(p, dosOrdinary, "getblocktxn with no indexes")
		return fmt.Errorf("peer %d sent empty getblocktxn", p.ID)
	}
	return nil
}

func (d *Dispatcher) handleBlockTxn(p *peerstate.Peer, m *wire.MsgBlockTxn) error {
	part, ok := d.partial[p.ID]
	if !ok || part.Header != m.BlockHash {
		d.misbehave(p, dosOrdinary, "blocktxn without matching in-flight partial block")
		return fmt.Errorf("peer %d sent unsolicited blocktxn", p.ID)
	}
	if len(m.Txs) != len(part.Missing) {
		d.misbehave(p, dosSevere, "blocktxn fill count mismatch")
		delete(d.partial, p.ID)
		return fmt.Errorf("peer %d blocktxn fill count mismatch", p.ID)
	}

	for _, tx := range m.Txs {
		d.extraTxns.Add(tx.Hash(), tx)
	}

	delete(d.partial, p.ID)
	d.Peers.MarkBlockAsReceived(m.BlockHash)
	return nil
}
