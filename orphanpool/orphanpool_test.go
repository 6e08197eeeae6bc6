// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package orphanpool

import (
	"math/rand"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/kryptoin/litecoincash-sub001/wire"
)

func txSpending(op wire.OutPoint) *wire.MsgTx {
	return &wire.MsgTx{TxIn: []*wire.TxIn{{PreviousOutPoint: op}}}
}

func TestAddRejectsOversizeAndDuplicateAndPerPeerCap(t *testing.T) {
	p := New(1000)
	now := time.Now()

	op := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}
	require.True(t, p.Add(txSpending(op), chainhash.Hash{2}, 1, 1000, now))
	require.False(t, p.Add(txSpending(op), chainhash.Hash{2}, 1, 1000, now), "duplicate hash must be rejected")

	require.False(t, p.Add(txSpending(op), chainhash.Hash{3}, 1, MaxStandardTxWeight, now), "oversize tx must be rejected")

	for i := 0; i < MaxOrphansPerPeer-1; i++ {
		h := chainhash.Hash{byte(i + 10)}
		require.True(t, p.Add(txSpending(op), h, 1, 100, now))
	}
	require.Equal(t, MaxOrphansPerPeer, p.PerPeerCount(1))
	require.False(t, p.Add(txSpending(op), chainhash.Hash{200}, 1, 100, now), "per-peer cap must be enforced")
}

func TestEraseUnwindsReverseIndexAndPerPeerCount(t *testing.T) {
	p := New(1000)
	now := time.Now()
	op := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}
	h := chainhash.Hash{5}

	require.True(t, p.Add(txSpending(op), h, 7, 100, now))
	require.Equal(t, 1, p.PerPeerCount(7))
	require.Len(t, p.ConsumersOf(op), 1)

	p.Erase(h)
	require.Equal(t, 0, p.PerPeerCount(7))
	require.Empty(t, p.ConsumersOf(op))
	require.False(t, p.Has(h))

	// erasing an absent hash is a no-op
	p.Erase(h)
}

func TestEraseForPeerRemovesOnlyThatPeersOrphans(t *testing.T) {
	p := New(1000)
	now := time.Now()
	op := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}

	require.True(t, p.Add(txSpending(op), chainhash.Hash{1}, 1, 100, now))
	require.True(t, p.Add(txSpending(op), chainhash.Hash{2}, 2, 100, now))

	p.EraseForPeer(1)
	require.Equal(t, 1, p.Len())
	require.False(t, p.Has(chainhash.Hash{1}))
	require.True(t, p.Has(chainhash.Hash{2}))
}

func TestSweepExpiredReapsOnlyPastEntriesAndRespectsInterval(t *testing.T) {
	p := New(1000)
	now := time.Now()
	op := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}

	require.True(t, p.Add(txSpending(op), chainhash.Hash{1}, 1, 100, now))

	// immediately after Add, nextSweep is far in the future; nothing reaped.
	require.Equal(t, 0, p.SweepExpired(now))
	require.True(t, p.Has(chainhash.Hash{1}))

	later := now.Add(OrphanExpireTime + time.Second)
	require.Equal(t, 1, p.SweepExpired(later))
	require.False(t, p.Has(chainhash.Hash{1}))
}

func TestLimitSizeEvictsWorstMisbehavingPeerFirst(t *testing.T) {
	p := New(1)
	now := time.Now()
	op := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}

	require.True(t, p.Add(txSpending(op), chainhash.Hash{1}, 1, 100, now))
	require.True(t, p.Add(txSpending(op), chainhash.Hash{2}, 2, 100, now))

	scores := map[int32]int32{1: 10, 2: 90}
	lookup := func(peerID int32) (int32, bool) {
		s, ok := scores[peerID]
		return s, ok
	}
	evicted := p.LimitSize(lookup, rand.New(rand.NewSource(1)))
	require.Equal(t, 1, evicted)
	require.Equal(t, 1, p.Len())
	require.False(t, p.Has(chainhash.Hash{2}), "the higher-misbehavior peer's orphan should be evicted first")
}

func TestLimitSizeFallsBackToRandomWhenNoneMisbehaving(t *testing.T) {
	p := New(0)
	now := time.Now()
	op := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}
	require.True(t, p.Add(txSpending(op), chainhash.Hash{1}, 1, 100, now))

	lookup := func(int32) (int32, bool) { return 0, false }
	evicted := p.LimitSize(lookup, rand.New(rand.NewSource(1)))
	require.Equal(t, 1, evicted)
	require.Equal(t, 0, p.Len())
}

func TestReprocessAcceptsChainsAndMisbehavesOnceOnRejection(t *testing.T) {
	p := New(1000)
	now := time.Now()

	parentOp := wire.OutPoint{Hash: chainhash.Hash{0xAA}, Index: 0}
	orphanHash := chainhash.Hash{1}
	require.True(t, p.Add(txSpending(parentOp), orphanHash, 9, 100, now))

	rejectedOp := wire.OutPoint{Hash: chainhash.Hash{0xBB}, Index: 0}
	rejectedHash := chainhash.Hash{2}
	require.True(t, p.Add(txSpending(rejectedOp), rejectedHash, 9, 100, now))

	var misbehaved []int32
	misbehave := func(peerID int32, amount int32) { misbehaved = append(misbehaved, peerID) }

	tryAccept := func(e *Entry) TryAcceptResult {
		if e.Hash == orphanHash {
			return TryAcceptResult{Accepted: true}
		}
		return TryAcceptResult{DoSScore: 20}
	}

	accepted := p.Reprocess([]wire.OutPoint{parentOp}, tryAccept, misbehave)
	require.Equal(t, []chainhash.Hash{orphanHash}, accepted)
	require.False(t, p.Has(orphanHash))

	accepted = p.Reprocess([]wire.OutPoint{rejectedOp}, tryAccept, misbehave)
	require.Empty(t, accepted)
	require.False(t, p.Has(rejectedHash))
	require.Equal(t, []int32{9}, misbehaved)
}

func TestReprocessLeavesMissingInputOrphansParked(t *testing.T) {
	p := New(1000)
	now := time.Now()
	op := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}
	h := chainhash.Hash{1}
	require.True(t, p.Add(txSpending(op), h, 1, 100, now))

	tryAccept := func(e *Entry) TryAcceptResult { return TryAcceptResult{MissingInput: true} }
	accepted := p.Reprocess([]wire.OutPoint{op}, tryAccept, func(int32, int32) {})
	require.Empty(t, accepted)
	require.True(t, p.Has(h), "an orphan still missing a different input must remain parked")
}
