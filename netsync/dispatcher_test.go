// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netsync

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/kryptoin/litecoincash-sub001/orphanpool"
	"github.com/kryptoin/litecoincash-sub001/peerstate"
	"github.com/kryptoin/litecoincash-sub001/wire"
)

type fakeChain struct {
	headers map[chainhash.Hash]bool
	work    map[chainhash.Hash]uint64
	tipWork uint64
	tipHash chainhash.Hash
}

func newFakeChain() *fakeChain {
	return &fakeChain{headers: make(map[chainhash.Hash]bool), work: make(map[chainhash.Hash]uint64)}
}

func (c *fakeChain) HaveHeader(hash chainhash.Hash) bool { return c.headers[hash] }
func (c *fakeChain) HeaderWork(hash chainhash.Hash) (uint64, bool) {
	w, ok := c.work[hash]
	return w, ok
}
func (c *fakeChain) ActiveTipWork() uint64          { return c.tipWork }
func (c *fakeChain) ActiveTipHash() chainhash.Hash  { return c.tipHash }
func (c *fakeChain) IsInActiveChain(chainhash.Hash) bool { return true }
func (c *fakeChain) AcceptHeaders(headers []*wire.BlockHeader) (int32, error) {
	for _, h := range headers {
		c.headers[h.Hash()] = true
	}
	return 0, nil
}
func (c *fakeChain) LocatorHeaders(wire.BlockLocator, chainhash.Hash, int) []*wire.BlockHeader {
	return nil
}
func (c *fakeChain) HeightOf(chainhash.Hash) (int32, bool)              { return 0, false }
func (c *fakeChain) AncestorAt(chainhash.Hash, int32) (chainhash.Hash, bool) { return chainhash.Hash{}, false }
func (c *fakeChain) WitnessActiveAt(int32) bool                         { return false }

type fakeMempool struct{ have map[chainhash.Hash]bool }

func (m *fakeMempool) AlreadyHave(hash chainhash.Hash) bool     { return m.have[hash] }
func (m *fakeMempool) HaveTransaction(hash chainhash.Hash) bool { return m.have[hash] }
func (m *fakeMempool) FetchTransaction(chainhash.Hash) (*wire.MsgTx, bool) {
	return nil, false
}

type fakeOutbound struct {
	sent        []sentMsg
	disconnected map[int32]string
}

type sentMsg struct {
	peerID int32
	msg    wire.Message
}

func newFakeOutbound() *fakeOutbound {
	return &fakeOutbound{disconnected: make(map[int32]string)}
}

func (o *fakeOutbound) QueueMessage(peerID int32, msg wire.Message) {
	o.sent = append(o.sent, sentMsg{peerID: peerID, msg: msg})
}
func (o *fakeOutbound) Disconnect(peerID int32, reason string) { o.disconnected[peerID] = reason }

func newTestDispatcher() (*Dispatcher, *fakeOutbound) {
	out := newFakeOutbound()
	d := New(peerstate.NewStore(), orphanpool.New(1000), newFakeChain(), &fakeMempool{have: map[chainhash.Hash]bool{}}, out)
	return d, out
}

func TestHandleRejectsNonVersionBeforeHandshake(t *testing.T) {
	d, out := newTestDispatcher()
	p := peerstate.New(1, peerstate.DirectionInbound)
	d.Peers.AddPeer(p)

	err := d.Handle(1, &wire.MsgPing{Nonce: 1})
	require.Error(t, err)
	require.EqualValues(t, dosOrdinary, p.Misbehavior)
	require.Empty(t, out.sent)
}

func TestHandleVersionThenVerAckCompletesHandshake(t *testing.T) {
	d, _ := newTestDispatcher()
	p := peerstate.New(1, peerstate.DirectionOutbound)
	d.Peers.AddPeer(p)
	d.MinPeerProtoVersion = 70000

	require.NoError(t, d.Handle(1, &wire.MsgVersion{ProtocolVersion: 70015}))
	require.True(t, p.VersionReceived)

	require.NoError(t, d.Handle(1, &wire.MsgVerAck{}))
	require.True(t, p.VerAckReceived)
}

func TestHandleVersionRejectsObsoletePeer(t *testing.T) {
	d, out := newTestDispatcher()
	p := peerstate.New(1, peerstate.DirectionInbound)
	d.Peers.AddPeer(p)
	d.MinPeerProtoVersion = 70000

	err := d.Handle(1, &wire.MsgVersion{ProtocolVersion: 60000})
	require.Error(t, err)
	require.Equal(t, "obsolete protocol version", out.disconnected[1])
}

func TestHandleAddrCapEnforced(t *testing.T) {
	d, _ := newTestDispatcher()
	p := peerstate.New(1, peerstate.DirectionInbound)
	p.VersionReceived = true
	p.VerAckReceived = true
	d.Peers.AddPeer(p)

	addrs := make([]*wire.NetAddress, maxAddrPerMessage+1)
	for i := range addrs {
		addrs[i] = &wire.NetAddress{IP: "10.0.0.1", Timestamp: time.Now()}
	}
	err := d.Handle(1, &wire.MsgAddr{AddrList: addrs})
	require.Error(t, err)
	require.EqualValues(t, dosOrdinary, p.Misbehavior)
}

func TestHandleAddrNormalizesImpossibleTimestamps(t *testing.T) {
	d, _ := newTestDispatcher()
	p := peerstate.New(1, peerstate.DirectionInbound)
	p.VersionReceived = true
	p.VerAckReceived = true
	d.Peers.AddPeer(p)

	future := &wire.NetAddress{IP: "10.0.0.2", Timestamp: time.Now().Add(365 * 24 * time.Hour)}
	require.NoError(t, d.Handle(1, &wire.MsgAddr{AddrList: []*wire.NetAddress{future}}))
	require.True(t, time.Since(future.Timestamp) >= 4*24*time.Hour)
}

func TestHandleHeadersRejectsNonContinuousSequence(t *testing.T) {
	d, _ := newTestDispatcher()
	p := peerstate.New(1, peerstate.DirectionOutbound)
	p.VersionReceived = true
	p.VerAckReceived = true
	d.Peers.AddPeer(p)

	h1 := &wire.BlockHeader{Timestamp: time.Now()}
	h2 := &wire.BlockHeader{Timestamp: time.Now().Add(time.Second), PrevBlock: chainhash.Hash{0xff}}

	err := d.Handle(1, &wire.MsgHeaders{Headers: []*wire.BlockHeader{h1, h2}})
	require.Error(t, err)
	require.EqualValues(t, dosOrdinary, p.Misbehavior)
}

func TestHandlePongMismatchMisbehavesAfterThreeStrikes(t *testing.T) {
	d, _ := newTestDispatcher()
	p := peerstate.New(1, peerstate.DirectionOutbound)
	p.VersionReceived = true
	p.VerAckReceived = true
	p.PingNonceSent = 42
	d.Peers.AddPeer(p)

	for i := 0; i < 3; i++ {
		_ = d.Handle(1, &wire.MsgPong{Nonce: 1})
	}
	require.Zero(t, p.Misbehavior)

	_ = d.Handle(1, &wire.MsgPong{Nonce: 1})
	require.EqualValues(t, dosMinor, p.Misbehavior)
}
