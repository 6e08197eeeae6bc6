// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package netsync implements the Message Dispatcher, Download Scheduler,
// and Tip Monitor of spec.md §4.1/§4.2, grounded on the per-message
// contract table and scheduling algorithm spec.md spells out, and on the
// teacher's command-dispatch shape (nox/core/message).
package netsync

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	lru "github.com/hashicorp/golang-lru/v2"

	nodelog "github.com/kryptoin/litecoincash-sub001/log"
	"github.com/kryptoin/litecoincash-sub001/orphanpool"
	"github.com/kryptoin/litecoincash-sub001/peerstate"
	"github.com/kryptoin/litecoincash-sub001/wire"
)

var slog = nodelog.Logger(nodelog.SubsystemSync)

// Misbehavior amounts, spec.md §7: 10 minor, 20 ordinary, 50-100 expensive.
const (
	dosMinor     = 10
	dosOrdinary  = 20
	dosExpensive = 50
	dosSevere    = 100
)

const (
	maxAddrPerMessage    = 1000
	maxInvSz             = 50_000
	maxHeadersResults    = 2000
	maxUnconnectingHeaders = 10
	maxBlocksToAnnounce  = 8
	maxBlocksInTransit   = 16
	maxScriptElementSize = 520

	introspectionBanScore    = 100
	introspectionGetheaders  = 10
	introspectionStaleFork   = 5
	introspectionStaleForkDisconnect = 3
)

// Chain is the validation/chain-index collaborator the dispatcher consults
// for header lookups, work comparisons and the active-tip snapshot. Its
// implementation (the real UTXO/header database) is out of this core's
// scope; this is its narrow interface.
type Chain interface {
	HaveHeader(hash chainhash.Hash) bool
	HeaderWork(hash chainhash.Hash) (work uint64, ok bool)
	ActiveTipWork() uint64
	ActiveTipHash() chainhash.Hash
	IsInActiveChain(hash chainhash.Hash) bool
	AcceptHeaders(headers []*wire.BlockHeader) (dosScore int32, err error)
	LocatorHeaders(loc wire.BlockLocator, stop chainhash.Hash, max int) []*wire.BlockHeader

	// HeightOf and AncestorAt back the Download Scheduler's window walk
	// (spec.md §4.2): GetAncestor()'s Go-side equivalent.
	HeightOf(hash chainhash.Hash) (height int32, ok bool)
	AncestorAt(hash chainhash.Hash, height int32) (chainhash.Hash, bool)

	// WitnessActiveAt reports whether witness-capable serving is required
	// at height, backing the scheduler's witness-capability rejection.
	WitnessActiveAt(height int32) bool
}

// Mempool is the narrow mempool surface the dispatcher needs.
type Mempool interface {
	AlreadyHave(hash chainhash.Hash) bool
	HaveTransaction(hash chainhash.Hash) bool
	FetchTransaction(hash chainhash.Hash) (*wire.MsgTx, bool)
}

// Outbound lets the dispatcher queue an egress message to a specific peer
// without owning the connection itself.
type Outbound interface {
	QueueMessage(peerID int32, msg wire.Message)
	Disconnect(peerID int32, reason string)
}

// Dispatcher routes ingress messages to semantic handlers (spec.md §4.1).
type Dispatcher struct {
	Peers   *peerstate.Store
	Orphans *orphanpool.Pool
	Chain   Chain
	Mempool Mempool
	Out     Outbound

	ProtocolVersion    int32
	MinPeerProtoVersion int32
	SendHeadersVersion  int32
	ShortIDsVersion     int32

	// extraTxns is the compact-block reconstruction ring (spec.md §6
	// `blockreconstructionextratxn`): every transaction received in a
	// recent blocktxn fill, kept around so a later cmpctblock's short ids
	// can often be resolved without a getblocktxn round-trip.
	extraTxns *lru.Cache[chainhash.Hash, *wire.MsgTx]
	partial   map[int32]*peerstate.PartialCompactBlock
	addrRelay *addrRelaySelector

	// BanScore is the misbehavior-score ban threshold (spec.md §6
	// `banscore`). Defaults to introspectionBanScore; Core wiring overrides
	// it from config.Config.BanScore.
	BanScore int32

	// InitialBlockDownload reports whether the node is still catching up
	// to the network tip. Core wiring keeps this current; the headers
	// handler's post-IBD stale-chain disconnect only fires once this is
	// false.
	InitialBlockDownload bool

	now func() time.Time
}

// defaultExtraTxnsCapacity matches config.Config's blockreconstructionextratxn
// default.
const defaultExtraTxnsCapacity = 100

// New returns a Dispatcher wired to its collaborators.
func New(peers *peerstate.Store, orphans *orphanpool.Pool, chain Chain, mempool Mempool, out Outbound) *Dispatcher {
	extraTxns, _ := lru.New[chainhash.Hash, *wire.MsgTx](defaultExtraTxnsCapacity)
	return &Dispatcher{
		Peers:     peers,
		Orphans:   orphans,
		Chain:     chain,
		Mempool:   mempool,
		Out:       out,
		extraTxns: extraTxns,
		partial:   make(map[int32]*peerstate.PartialCompactBlock),
		addrRelay: newAddrRelaySelector(time.Now()),
		BanScore:  introspectionBanScore,
		now:       time.Now,
	}
}

// ResizeExtraTxns replaces the reconstruction ring's capacity, used when
// config wiring supplies a non-default blockreconstructionextratxn value.
func (d *Dispatcher) ResizeExtraTxns(capacity int) {
	c, err := lru.New[chainhash.Hash, *wire.MsgTx](capacity)
	if err != nil {
		return
	}
	d.extraTxns = c
}

// Handle dispatches one ingress message from peerID. A parse-level error is
// the caller's responsibility to turn into REJECT_MALFORMED before this is
// invoked (spec.md §4.1 failure semantics); anything this method returns is
// a semantic failure that may still warrant a reject but not necessarily a
// disconnect.
func (d *Dispatcher) Handle(peerID int32, msg wire.Message) error {
	p, ok := d.Peers.Peer(peerID)
	if !ok {
		return fmt.Errorf("netsync: unknown peer %d", peerID)
	}

	if !p.VersionReceived && msg.Command() != wire.CmdVersion {
		d.misbehave(p, dosOrdinary, "non-version message before version handshake")
		return fmt.Errorf("message %q before version handshake", msg.Command())
	}
	if p.VersionReceived && !p.VerAckReceived {
		switch msg.Command() {
		case wire.CmdVerAck, wire.CmdSendHeaders, wire.CmdSendCmpct, wire.CmdGetAddr:
		default:
			d.misbehave(p, dosOrdinary, "protocol message before verack")
			return fmt.Errorf("message %q before verack", msg.Command())
		}
	}

	switch m := msg.(type) {
	case *wire.MsgVersion:
		return d.handleVersion(p, m)
	case *wire.MsgVerAck:
		return d.handleVerAck(p, m)
	case *wire.MsgAddr:
		return d.handleAddr(p, m)
	case *wire.MsgInv:
		return d.handleInv(p, m)
	case *wire.MsgGetData:
		return d.handleGetData(p, m)
	case *wire.MsgGetHeaders:
		return d.handleGetHeaders(p, m)
	case *wire.MsgHeaders:
		return d.handleHeaders(p, m)
	case *wire.MsgPing:
		return d.handlePing(p, m)
	case *wire.MsgPong:
		return d.handlePong(p, m)
	case *wire.MsgFilterLoad:
		return d.handleFilterLoad(p, m)
	case *wire.MsgFilterAdd:
		return d.handleFilterAdd(p, m)
	case *wire.MsgMemPool:
		return d.handleMemPool(p, m)
	case *wire.MsgSendCmpct:
		return d.handleSendCmpct(p, m)
	case *wire.MsgNotFound:
		return d.handleNotFound(p, m)
	case *wire.MsgReject:
		return d.handleReject(p, m)
	case *wire.MsgRialto:
		return d.handleRialto(p, m)
	case *wire.MsgCmpctBlock:
		return d.handleCmpctBlock(p, m)
	case *wire.MsgGetBlockTxn:
		return d.handleGetBlockTxn(p, m)
	case *wire.MsgBlockTxn:
		return d.handleBlockTxn(p, m)
	default:
		slog.Debugf("ignoring unsupported command %q from peer %d", msg.Command(), peerID)
		return nil
	}
}

func (d *Dispatcher) misbehave(p *peerstate.Peer, amount int32, reason string) {
	crossed := p.Misbehaving(amount, d.BanScore)
	slog.Debugf("peer %d misbehaving +%d (%s), total=%d", p.ID, amount, reason, p.Misbehavior)
	if crossed {
		d.Out.Disconnect(p.ID, "misbehavior threshold exceeded")
	}
}
