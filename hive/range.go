// Copyright (c) 2009-2017 The Bitcoin Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package hive implements the Bee Search Coordinator of spec.md §4.6,
// grounded on _examples/original_source/src/miner.cpp's BeeKeeper /
// CheckBin / CheckBinMinotaur / BusyBees / AbortWatchThread, adapted to
// Go's errgroup-based worker pool convention instead of boost::thread.
package hive

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// BeeRange is one mature BCT's contiguous slice of bee indices.
type BeeRange struct {
	Txid   chainhash.Hash
	Offset int
	Count  int
}

// Bin is one worker's ordered list of ranges to search.
type Bin []BeeRange

// PartitionBees groups ranges into bins against a per-bin quota of
// ceil(total/threadCount) bees (spec.md §4.6 Preparation step 4).
// Ranges are never split across bins; a bin accumulates whole ranges until
// adding the next one would push it over the per-bin quota, except when the
// bin is still empty (a single oversized range gets a bin to itself and
// exceeds the quota). Because ranges are kept whole, the number of bins can
// exceed threadCount (ranges of 60, 60 and 60 with two threads give three
// bins).
func PartitionBees(ranges []BeeRange, threadCount int) []Bin {
	if threadCount <= 0 {
		threadCount = 1
	}
	total := 0
	for _, r := range ranges {
		total += r.Count
	}
	if total == 0 {
		return nil
	}
	perBin := ceilDiv(total, threadCount)

	var bins []Bin
	var cur Bin
	curCount := 0
	for _, r := range ranges {
		if curCount > 0 && curCount+r.Count > perBin {
			bins = append(bins, cur)
			cur = nil
			curCount = 0
		}
		cur = append(cur, r)
		curCount += r.Count
	}
	if len(cur) > 0 {
		bins = append(bins, cur)
	}
	return bins
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
