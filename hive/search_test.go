// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hive

import (
	"context"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func TestPartitionBeesSplitsIntoEvenBins(t *testing.T) {
	ranges := []BeeRange{
		{Txid: chainhash.Hash{1}, Offset: 0, Count: 100},
		{Txid: chainhash.Hash{2}, Offset: 0, Count: 100},
		{Txid: chainhash.Hash{3}, Offset: 0, Count: 100},
		{Txid: chainhash.Hash{4}, Offset: 0, Count: 100},
	}
	bins := PartitionBees(ranges, 4)
	require.Len(t, bins, 4)
	for _, b := range bins {
		require.Len(t, b, 1)
	}
}

func TestPartitionBeesEmptyInputYieldsNoBins(t *testing.T) {
	require.Nil(t, PartitionBees(nil, 4))
}

func TestSearchMaxTargetAlwaysFindsASolution(t *testing.T) {
	bins := PartitionBees([]BeeRange{{Txid: chainhash.Hash{9}, Offset: 0, Count: 10}}, 1)

	// A target of 2^256-1 accepts the very first hash it computes.
	target := new(big.Int).Lsh(big.NewInt(1), 256)
	target.Sub(target, big.NewInt(1))

	sol, ok := Search(context.Background(), Params{
		DeterministicRandString: "seed",
		BeeHashTarget:           target,
		Bins:                    bins,
	})
	require.True(t, ok)
	require.Equal(t, chainhash.Hash{9}, sol.Range.Txid)
}

func TestSearchZeroTargetNeverFindsASolution(t *testing.T) {
	bins := PartitionBees([]BeeRange{{Txid: chainhash.Hash{9}, Offset: 0, Count: 5}}, 1)

	_, ok := Search(context.Background(), Params{
		DeterministicRandString: "seed",
		BeeHashTarget:           big.NewInt(0),
		Bins:                    bins,
	})
	require.False(t, ok)
}

func TestWatcherAbortsOnTipChange(t *testing.T) {
	bins := PartitionBees([]BeeRange{{Txid: chainhash.Hash{1}, Offset: 0, Count: 1_000_000}}, 1)

	calls := 0
	tipHeight := func() int {
		calls++
		if calls > 2 {
			return 2
		}
		return 1
	}

	_, ok := Search(context.Background(), Params{
		DeterministicRandString: "seed",
		BeeHashTarget:           big.NewInt(0),
		Bins:                    bins,
		EarlyAbortWatcher:       true,
		TipHeight:               tipHeight,
		StartHeight:             1,
	})
	require.False(t, ok)
}
