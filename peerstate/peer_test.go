// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peerstate

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func TestMisbehavingCrossesThresholdExactlyOnce(t *testing.T) {
	p := New(1, DirectionInbound)

	require.False(t, p.Misbehaving(60, 100))
	require.False(t, p.ShouldBan)

	require.True(t, p.Misbehaving(50, 100))
	require.True(t, p.ShouldBan)

	// A further call that stays above threshold must not re-report crossing.
	require.False(t, p.Misbehaving(10, 100))
}

func TestKnownInventoryRoundTrip(t *testing.T) {
	p := New(1, DirectionOutbound)
	h := chainhash.Hash{7}

	require.False(t, p.KnowsInventory(h))
	p.AddKnownInventory(h)
	require.True(t, p.KnowsInventory(h))
}

func TestStoreMarkBlockInFlightRoundTrip(t *testing.T) {
	s := NewStore()
	p := New(1, DirectionOutbound)
	s.AddPeer(p)

	h := chainhash.Hash{1}
	require.True(t, s.MarkBlockAsInFlight(1, h, false))
	require.False(t, s.MarkBlockAsInFlight(1, h, false))
	require.Equal(t, 1, p.NBlocksInFlight())

	owner, ok := s.BlockInFlightOwner(h)
	require.True(t, ok)
	require.EqualValues(t, 1, owner)

	require.True(t, s.MarkBlockAsReceived(h))
	require.Equal(t, 0, p.NBlocksInFlight())
	_, ok = s.BlockInFlightOwner(h)
	require.False(t, ok)
}

func TestRemovePeerClearsItsInFlightBlocks(t *testing.T) {
	s := NewStore()
	p := New(5, DirectionInbound)
	s.AddPeer(p)

	h := chainhash.Hash{9}
	s.MarkBlockAsInFlight(5, h, true)
	require.Equal(t, 1, s.PeersWithValidatedDownloads())

	s.RemovePeer(5)
	_, ok := s.BlockInFlightOwner(h)
	require.False(t, ok)
	require.Equal(t, 0, s.PeersWithValidatedDownloads())
}
