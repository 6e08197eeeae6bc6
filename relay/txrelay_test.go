// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package relay

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func TestTxRelayMapInsertAndGet(t *testing.T) {
	m := NewTxRelayMap(DefaultExpiry)
	now := time.Now()
	h := chainhash.Hash{1}
	m.Insert(h, []byte("payload"), now)

	got, ok := m.Get(h)
	require.True(t, ok)
	require.Equal(t, []byte("payload"), got)
	require.Equal(t, 1, m.Len())
}

func TestTxRelayMapExpiresInInsertionOrder(t *testing.T) {
	m := NewTxRelayMap(time.Minute)
	base := time.Now()

	m.Insert(chainhash.Hash{1}, nil, base)
	m.Insert(chainhash.Hash{2}, nil, base.Add(30*time.Second))
	m.Insert(chainhash.Hash{3}, nil, base.Add(90*time.Second))

	expired := m.ExpireBefore(base.Add(100 * time.Second))
	require.Equal(t, []chainhash.Hash{{1}, {2}}, expired)
	require.Equal(t, 1, m.Len())
	require.True(t, m.Has(chainhash.Hash{3}))
}

func TestTxRelayMapReinsertRefreshesExpiry(t *testing.T) {
	m := NewTxRelayMap(time.Minute)
	base := time.Now()

	m.Insert(chainhash.Hash{1}, nil, base)
	m.Insert(chainhash.Hash{1}, nil, base.Add(50*time.Second))

	expired := m.ExpireBefore(base.Add(70 * time.Second))
	require.Empty(t, expired)
	require.True(t, m.Has(chainhash.Hash{1}))
}

func TestSendSchedulerInboundSlowerThanOutbound(t *testing.T) {
	s := NewSendScheduler()
	now := time.Now()

	var outSum, inSum time.Duration
	const trials = 200
	for i := int32(0); i < trials; i++ {
		s.Forget(i)
		d := s.NextInvDeadline(i, true, now)
		outSum += d.Sub(now)
	}
	for i := int32(trials); i < 2*trials; i++ {
		s.Forget(i)
		d := s.NextInvDeadline(i, false, now)
		inSum += d.Sub(now)
	}

	// Inbound peers use a mean gap twice that of outbound; over enough
	// trials the sample averages should reflect that ratio loosely.
	require.Greater(t, inSum, outSum)
}

func TestFastAnnounceCacheAnnouncesEachPeerOncePerTip(t *testing.T) {
	c := NewFastAnnounceCache()
	c.SetTip(100, chainhash.Hash{1}, nil, false)

	require.True(t, c.ShouldAnnounce(1))
	require.False(t, c.ShouldAnnounce(1))
	require.True(t, c.ShouldAnnounce(2))

	c.SetTip(101, chainhash.Hash{2}, nil, false)
	require.True(t, c.ShouldAnnounce(1))
}
