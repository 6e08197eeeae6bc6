// Copyright (c) 2009-2017 The Bitcoin Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package feeestimator

import (
	"math"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	nodelog "github.com/kryptoin/litecoincash-sub001/log"
)

var felog = nodelog.Logger(nodelog.SubsystemFees)

// trackingRecord is the MempoolTrackingRecord entity of spec.md §3.
type trackingRecord struct {
	heightEntered uint32
	bucketIndex   int
}

// Estimator owns the three coexisting horizons (spec.md §4.4) plus the
// per-mempool-tx tracking table needed to remove a transaction from every
// bucket table when it confirms or is evicted. All of it is protected by
// cs_feeEstimator (spec.md §5); this type exposes a single mutex rather
// than requiring callers to take an external lock, since nothing else
// needs to be updated atomically alongside it.
type Estimator struct {
	mu sync.Mutex

	buckets   []float64
	bucketMap map[float64]int

	short *Stats
	med   *Stats
	long  *Stats

	tracking map[chainhash.Hash]trackingRecord

	bestSeenHeight    uint32
	firstRecordedHeight uint32
	historicalFirst   uint32
	historicalBest    uint32
}

// New builds an Estimator with fresh, empty horizons.
func New() *Estimator {
	buckets, bucketMap := buildBuckets()
	return &Estimator{
		buckets:   buckets,
		bucketMap: bucketMap,
		short:     NewStats(buckets, bucketMap, shortParams.decay, shortParams.scale, shortParams.maxPeriods),
		med:       NewStats(buckets, bucketMap, medParams.decay, medParams.scale, medParams.maxPeriods),
		long:      NewStats(buckets, bucketMap, longParams.decay, longParams.scale, longParams.maxPeriods),
		tracking:  make(map[chainhash.Hash]trackingRecord),
	}
}

// ProcessTransaction registers a mempool-entering transaction across every
// horizon, the entry point for spec.md §4.4's NewTx.
func (e *Estimator) ProcessTransaction(hash chainhash.Hash, height uint32, feeratePerK float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if height > e.bestSeenHeight {
		e.bestSeenHeight = height
		if e.firstRecordedHeight == 0 {
			e.firstRecordedHeight = height
		}
	}
	if _, already := e.tracking[hash]; already {
		return
	}
	b := e.short.NewTx(height, feeratePerK)
	e.med.NewTx(height, feeratePerK)
	e.long.NewTx(height, feeratePerK)
	e.tracking[hash] = trackingRecord{heightEntered: height, bucketIndex: b}
}

// processTx folds one transaction's confirmation (or removal without
// confirming) into every horizon and removes its tracking record.
func (e *Estimator) processTx(hash chainhash.Hash, inBlock bool) {
	rec, ok := e.tracking[hash]
	if !ok {
		return
	}
	e.short.RemoveTx(rec.heightEntered, e.bestSeenHeight, rec.bucketIndex, inBlock)
	e.med.RemoveTx(rec.heightEntered, e.bestSeenHeight, rec.bucketIndex, inBlock)
	e.long.RemoveTx(rec.heightEntered, e.bestSeenHeight, rec.bucketIndex, inBlock)
	delete(e.tracking, hash)

	if inBlock {
		blocksToConfirm := int(e.bestSeenHeight) - int(rec.heightEntered) + 1
		feerate := bucketRepresentativeFeerate(e.buckets, rec.bucketIndex)
		e.short.Record(blocksToConfirm, feerate)
		e.med.Record(blocksToConfirm, feerate)
		e.long.Record(blocksToConfirm, feerate)
	}
}

func bucketRepresentativeFeerate(buckets []float64, idx int) float64 {
	if idx < 0 || idx >= len(buckets) {
		return 0
	}
	return buckets[idx]
}

// RemoveTx drops a transaction that left the mempool without confirming
// (replaced, expired, conflicted).
func (e *Estimator) RemoveTx(hash chainhash.Hash) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.processTx(hash, false)
}

// ProcessBlock is called once per connected block: every confirmed
// transaction's fee observation is recorded, every horizon's current ring
// slot is folded into the overflow row, and the moving averages decay.
func (e *Estimator) ProcessBlock(height uint32, confirmedFeerates map[chainhash.Hash]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if height <= e.bestSeenHeight && e.bestSeenHeight != 0 {
		return
	}
	e.bestSeenHeight = height

	for hash := range confirmedFeerates {
		e.processTx(hash, true)
	}

	e.short.ClearCurrent(height)
	e.med.ClearCurrent(height)
	e.long.ClearCurrent(height)

	e.short.UpdateMovingAverages()
	e.med.UpdateMovingAverages()
	e.long.UpdateMovingAverages()

	span := e.blockSpanLocked()
	if span > e.historicalBlockSpanLocked()/2 {
		if e.historicalFirst == 0 {
			e.historicalFirst = e.firstRecordedHeight
		}
		e.historicalBest = e.bestSeenHeight
	}
}

func (e *Estimator) blockSpanLocked() uint32 {
	if e.firstRecordedHeight == 0 {
		return 0
	}
	return e.bestSeenHeight - e.firstRecordedHeight
}

func (e *Estimator) historicalBlockSpanLocked() uint32 {
	if e.historicalFirst == 0 {
		return e.blockSpanLocked()
	}
	return e.historicalBest - e.historicalFirst
}

// combined implements CBlockPolicyEstimator::estimateCombinedFee: pick the
// horizon whose maxConfirms covers target, then optionally refine with the
// largest-target estimate of each shorter horizon, keeping the smallest
// positive candidate (spec.md §4.4).
func (e *Estimator) combined(target int, success float64, checkShorterHorizon bool) float64 {
	if target < 1 || target > e.long.GetMaxConfirms() {
		return -1
	}

	var estimate float64
	switch {
	case target <= e.short.GetMaxConfirms():
		estimate = e.short.EstimateMedianVal(target, SufficientTxsShort, success, true, e.bestSeenHeight)
	case target <= e.med.GetMaxConfirms():
		estimate = e.med.EstimateMedianVal(target, SufficientFeeTxs, success, true, e.bestSeenHeight)
	default:
		estimate = e.long.EstimateMedianVal(target, SufficientFeeTxs, success, true, e.bestSeenHeight)
	}

	if checkShorterHorizon {
		if target > e.med.GetMaxConfirms() {
			medMax := e.med.EstimateMedianVal(e.med.GetMaxConfirms(), SufficientFeeTxs, success, true, e.bestSeenHeight)
			if medMax > 0 && (estimate == -1 || medMax < estimate) {
				estimate = medMax
			}
		}
		if target > e.short.GetMaxConfirms() {
			shortMax := e.short.EstimateMedianVal(e.short.GetMaxConfirms(), SufficientTxsShort, success, true, e.bestSeenHeight)
			if shortMax > 0 && (estimate == -1 || shortMax < estimate) {
				estimate = shortMax
			}
		}
	}
	return estimate
}

// estimateConservative implements CBlockPolicyEstimator::estimateConservativeFee.
func (e *Estimator) estimateConservative(doubleTarget int) float64 {
	estimate := -1.0
	if doubleTarget <= e.short.GetMaxConfirms() {
		estimate = e.med.EstimateMedianVal(doubleTarget, SufficientFeeTxs, DoubleSuccessPct, true, e.bestSeenHeight)
	}
	if doubleTarget <= e.med.GetMaxConfirms() {
		longEstimate := e.long.EstimateMedianVal(doubleTarget, SufficientFeeTxs, DoubleSuccessPct, true, e.bestSeenHeight)
		if longEstimate > estimate {
			estimate = longEstimate
		}
	}
	return estimate
}

func (e *Estimator) maxUsableEstimate() int {
	half := e.blockSpanLocked()
	if h := e.historicalBlockSpanLocked(); h > half {
		half = h
	}
	return minInt(e.long.GetMaxConfirms(), int(half)/2)
}

// EstimateSmartFee implements spec.md §4.4's smart-fee composition,
// returning the feerate in satoshis/kB (zero if no window ever passed).
func (e *Estimator) EstimateSmartFee(target int, conservative bool) btcutil.Amount {
	e.mu.Lock()
	defer e.mu.Unlock()

	if target <= 0 || target > e.long.GetMaxConfirms() {
		return 0
	}
	if target == 1 {
		target = 2
	}
	if usable := e.maxUsableEstimate(); target > usable {
		target = usable
	}
	if target <= 1 {
		return 0
	}

	median := e.combined(target/2, HalfSuccessPct, true)
	if full := e.combined(target, SuccessPct, true); full > median {
		median = full
	}
	if dbl := e.combined(2*target, DoubleSuccessPct, !conservative); dbl > median {
		median = dbl
	}

	if conservative || median < 0 {
		if cons := e.estimateConservative(2 * target); cons > median {
			median = cons
		}
	}

	if median < 0 {
		return 0
	}
	return btcutil.Amount(math.Round(median))
}

// BestSeenHeight returns the tip height the estimator last observed.
func (e *Estimator) BestSeenHeight() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bestSeenHeight
}
