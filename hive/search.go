// Copyright (c) 2009-2017 The Bitcoin Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hive

import (
	"context"
	"crypto/sha256"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/sync/errgroup"

	nodelog "github.com/kryptoin/litecoincash-sub001/log"
)

var hlog = nodelog.Logger(nodelog.SubsystemHive)

// pollInterval is how often a worker checks the shared abort signals while
// scanning a range (spec.md §4.6 "every 1000 iterations").
const pollInterval = 1000

// watcherPollInterval is AbortWatchThread's polling cadence.
const watcherPollInterval = time.Millisecond

// HashMode selects the per-index hash function a worker evaluates.
type HashMode int

const (
	HashModeSHA256D HashMode = iota
	HashModeMinotaurX
)

// MinotaurHasher computes CBlockHeader::MinotaurHashString's result for an
// arbitrary byte string. It is supplied by the caller because MinotaurX is
// a separate PoW algorithm outside this core's scope to implement from
// scratch; hive only needs to compare its output against a target.
type MinotaurHasher func(s string) chainhash.Hash

// Solution is the (range, bee index) pair a worker reports on success,
// spec.md §4.6 Execution "On beeHash < beeHashTarget".
type Solution struct {
	Range BeeRange
	Index int
}

// TipHeightFunc reads the current chain-tip height, used by the watcher
// thread to detect a reorg/new-block mid-search.
type TipHeightFunc func() int

// Params bundles one search invocation's inputs.
type Params struct {
	DeterministicRandString string
	BeeHashTarget           *big.Int
	Bins                    []Bin
	Mode                    HashMode
	Minotaur                MinotaurHasher // required when Mode == HashModeMinotaurX
	EarlyAbortWatcher       bool
	TipHeight               TipHeightFunc
	StartHeight             int
}

// Search launches one worker goroutine per bin (spec.md §4.6 Execution),
// optionally races them against a chain-tip watcher, and returns the first
// solution found or ok=false if every worker exhausted its ranges (or the
// watcher fired) without one.
func Search(ctx context.Context, p Params) (sol Solution, ok bool) {
	var solutionFound, earlyAbort int32
	var mu sync.Mutex
	var recorded Solution
	var recordedOK bool

	g, gctx := errgroup.WithContext(ctx)

	for threadID, bin := range p.Bins {
		bin := bin
		threadID := threadID
		g.Go(func() error {
			checkBin(gctx, threadID, bin, p, &solutionFound, &earlyAbort, &mu, &recorded, &recordedOK)
			return nil
		})
	}

	if p.EarlyAbortWatcher && p.TipHeight != nil {
		g.Go(func() error {
			watch(gctx, p.StartHeight, p.TipHeight, &solutionFound, &earlyAbort)
			return nil
		})
	}

	_ = g.Wait()

	mu.Lock()
	defer mu.Unlock()
	if recordedOK {
		hlog.Debugf("hive search found solution at range %s index %d", recorded.Range.Txid, recorded.Index)
		return recorded, true
	}
	if atomic.LoadInt32(&earlyAbort) != 0 {
		hlog.Debug("check aborted")
	}
	return Solution{}, false
}

func checkBin(ctx context.Context, threadID int, bin Bin, p Params, solutionFound, earlyAbort *int32, mu *sync.Mutex, recorded *Solution, recordedOK *bool) {
	checkCount := 0
	for _, beeRange := range bin {
		for i := beeRange.Offset; i < beeRange.Offset+beeRange.Count; i++ {
			checkCount++
			if checkCount%pollInterval == 0 {
				if atomic.LoadInt32(solutionFound) != 0 || atomic.LoadInt32(earlyAbort) != 0 {
					return
				}
				select {
				case <-ctx.Done():
					return
				default:
				}
			}

			beeHash := computeBeeHash(p, beeRange.Txid, i)
			if beeHash.Cmp(p.BeeHashTarget) < 0 {
				mu.Lock()
				if !*recordedOK {
					atomic.StoreInt32(solutionFound, 1)
					*recorded = Solution{Range: beeRange, Index: i}
					*recordedOK = true
				}
				mu.Unlock()
				return
			}
		}
	}
}

func watch(ctx context.Context, startHeight int, tipHeight TipHeightFunc, solutionFound, earlyAbort *int32) {
	ticker := time.NewTicker(watcherPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(solutionFound) != 0 || atomic.LoadInt32(earlyAbort) != 0 {
				return
			}
			if tipHeight() != startHeight {
				atomic.StoreInt32(earlyAbort, 1)
				return
			}
		}
	}
}

// computeBeeHash evaluates beeHash = hash256(randString‖txid‖i) in
// non-MinotaurX mode, or MinotaurHashString(concat) interpreted as a
// 256-bit integer in MinotaurX mode (spec.md §4.6 Execution).
func computeBeeHash(p Params, txid chainhash.Hash, i int) *big.Int {
	buf := buildHashInput(p.DeterministicRandString, txid, i)

	var digest chainhash.Hash
	switch p.Mode {
	case HashModeMinotaurX:
		digest = p.Minotaur(buf)
	default:
		first := sha256.Sum256([]byte(buf))
		second := sha256.Sum256(first[:])
		digest = chainhash.Hash(second)
	}
	return new(big.Int).SetBytes(reverseBytes(digest[:]))
}

func buildHashInput(randString string, txid chainhash.Hash, i int) string {
	return randString + txid.String() + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
