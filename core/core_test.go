// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package core

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/kryptoin/litecoincash-sub001/mining"
	"github.com/kryptoin/litecoincash-sub001/netsync"
	"github.com/kryptoin/litecoincash-sub001/peerstate"
	"github.com/kryptoin/litecoincash-sub001/wire"
)

type stubChain struct{}

func (stubChain) HaveHeader(chainhash.Hash) bool                 { return false }
func (stubChain) HeaderWork(chainhash.Hash) (uint64, bool)       { return 0, false }
func (stubChain) ActiveTipWork() uint64                          { return 0 }
func (stubChain) ActiveTipHash() chainhash.Hash                  { return chainhash.Hash{} }
func (stubChain) IsInActiveChain(chainhash.Hash) bool            { return false }
func (stubChain) AcceptHeaders(h []*wire.BlockHeader) (int32, error) { return 0, nil }
func (stubChain) LocatorHeaders(wire.BlockLocator, chainhash.Hash, int) []*wire.BlockHeader {
	return nil
}
func (stubChain) HeightOf(chainhash.Hash) (int32, bool)                  { return 0, false }
func (stubChain) AncestorAt(chainhash.Hash, int32) (chainhash.Hash, bool) { return chainhash.Hash{}, false }
func (stubChain) WitnessActiveAt(int32) bool                             { return false }

type stubMempool struct{}

func (stubMempool) AlreadyHave(chainhash.Hash) bool     { return false }
func (stubMempool) HaveTransaction(chainhash.Hash) bool { return false }
func (stubMempool) FetchTransaction(chainhash.Hash) (*wire.MsgTx, bool) {
	return nil, false
}

type stubOutbound struct {
	disconnected map[int32]string
}

func (o *stubOutbound) QueueMessage(int32, wire.Message)   {}
func (o *stubOutbound) Disconnect(peerID int32, reason string) {
	if o.disconnected == nil {
		o.disconnected = make(map[int32]string)
	}
	o.disconnected[peerID] = reason
}

type stubSource struct{}

func (stubSource) AncestorOrderedEntries() []*mining.Entry        { return nil }
func (stubSource) Ancestors(chainhash.Hash) []*mining.Entry       { return nil }
func (stubSource) Descendants(chainhash.Hash) []*mining.Entry     { return nil }

func newTestCore() *Core {
	var chain netsync.Chain = stubChain{}
	var mempool netsync.Mempool = stubMempool{}
	var out netsync.Outbound = &stubOutbound{}
	var source mining.Source = stubSource{}
	return New(chain, mempool, out, source, 10*time.Minute, 100)
}

func TestNewWiresEverySubsystem(t *testing.T) {
	c := newTestCore()
	require.NotNil(t, c.Peers)
	require.NotNil(t, c.Orphans)
	require.NotNil(t, c.Fees)
	require.NotNil(t, c.Assembler)
	require.NotNil(t, c.Dispatcher)
	require.NotNil(t, c.FastAnnounce)
	require.NotNil(t, c.TxRelay)
	require.NotNil(t, c.Send)
}

func TestDisconnectPeerTearsDownEverySubsystem(t *testing.T) {
	c := newTestCore()
	p := peerstate.New(1, peerstate.DirectionInbound)
	c.Peers.AddPeer(p)

	op := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}
	c.Orphans.Add(&wire.MsgTx{TxIn: []*wire.TxIn{{PreviousOutPoint: op}}}, chainhash.Hash{2}, 1, 100, time.Now())
	require.Equal(t, 1, c.Orphans.PerPeerCount(1))

	c.DisconnectPeer(1)

	_, ok := c.Peers.Peer(1)
	require.False(t, ok)
	require.Equal(t, 0, c.Orphans.PerPeerCount(1))
}

func TestHandleMessageRequiresHandshakeFirst(t *testing.T) {
	c := newTestCore()
	p := peerstate.New(1, peerstate.DirectionOutbound)
	c.Peers.AddPeer(p)

	err := c.HandleMessage(1, &wire.MsgPing{Nonce: 1})
	require.Error(t, err, "a non-version message before the handshake must be rejected")

	require.NoError(t, c.HandleMessage(1, &wire.MsgVersion{ProtocolVersion: 70015}))
	require.True(t, p.VersionReceived)
}

func TestOnBlockConnectedUpdatesFastAnnounceAndTipTimestamp(t *testing.T) {
	c := newTestCore()
	now := time.Now()
	hash := chainhash.Hash{9}

	c.OnBlockConnected(100, hash, true, now)

	require.Equal(t, int32(100), c.FastAnnounce.Height)
	require.Equal(t, hash, c.FastAnnounce.BlockHash)
	require.Equal(t, now, c.LastTipUpdate)
}
