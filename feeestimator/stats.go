// Copyright (c) 2009-2017 The Bitcoin Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package feeestimator

// Stats is the FeeBucketStats entity of spec.md §3/§4.4: a single
// (decay, scale, maxPeriods) horizon's rolling confirmation statistics.
type Stats struct {
	buckets   []float64
	bucketMap map[float64]int

	txCtAvg []float64
	avg     []float64

	confAvg [][]float64
	failAvg [][]float64

	unconfTxs    [][]int // ring of size GetMaxConfirms(), one row per bucket column
	oldUnconfTxs []int

	decay      float64
	scale      uint32
	maxPeriods int
}

// NewStats allocates a Stats table sharing the bucket geometry buckets/
// bucketMap (the three horizons always share one geometry).
func NewStats(buckets []float64, bucketMap map[float64]int, decay float64, scale uint32, maxPeriods int) *Stats {
	nb := len(buckets)
	s := &Stats{
		buckets:    buckets,
		bucketMap:  bucketMap,
		decay:      decay,
		scale:      scale,
		maxPeriods: maxPeriods,
		txCtAvg:    make([]float64, nb),
		avg:        make([]float64, nb),
	}
	s.confAvg = make([][]float64, maxPeriods)
	s.failAvg = make([][]float64, maxPeriods)
	for i := range s.confAvg {
		s.confAvg[i] = make([]float64, nb)
		s.failAvg[i] = make([]float64, nb)
	}
	s.resizeRing()
	return s
}

func (s *Stats) resizeRing() {
	n := s.GetMaxConfirms()
	s.unconfTxs = make([][]int, n)
	for i := range s.unconfTxs {
		s.unconfTxs[i] = make([]int, len(s.buckets))
	}
	s.oldUnconfTxs = make([]int, len(s.buckets))
}

// GetMaxConfirms returns scale * maxPeriods, the ring length.
func (s *Stats) GetMaxConfirms() int { return int(s.scale) * s.maxPeriods }

// NewTx buckets a transaction entering the mempool at blockHeight with the
// given feerate, incrementing the unconfirmed ring slot, and returns its
// bucket index for later removeTx bookkeeping (spec.md §4.4).
func (s *Stats) NewTx(blockHeight uint32, feeratePerK float64) int {
	b := bucketIndex(s.buckets, feeratePerK)
	blockIndex := int(blockHeight) % len(s.unconfTxs)
	s.unconfTxs[blockIndex][b]++
	return b
}

// RemoveTx undoes NewTx's bookkeeping when a tracked tx leaves the mempool,
// either because it confirmed (inBlock true) or was evicted/replaced
// (inBlock false). When it left without confirming after sitting for at
// least "scale" blocks, it is charged against failAvg for every period it
// was eligible to confirm in and didn't (spec.md §4.4 removeTx).
func (s *Stats) RemoveTx(entryHeight, bestSeenHeight uint32, bucketIdx int, inBlock bool) {
	blocksAgo := int(bestSeenHeight) - int(entryHeight)
	if bestSeenHeight == 0 {
		blocksAgo = 0
	}
	if blocksAgo < 0 {
		return
	}

	if blocksAgo >= len(s.unconfTxs) {
		if s.oldUnconfTxs[bucketIdx] > 0 {
			s.oldUnconfTxs[bucketIdx]--
		}
	} else {
		blockIndex := int(entryHeight) % len(s.unconfTxs)
		if s.unconfTxs[blockIndex][bucketIdx] > 0 {
			s.unconfTxs[blockIndex][bucketIdx]--
		}
	}

	if !inBlock && blocksAgo >= int(s.scale) {
		periodsAgo := blocksAgo / int(s.scale)
		for i := 0; i < periodsAgo && i < len(s.failAvg); i++ {
			s.failAvg[i][bucketIdx]++
		}
	}
}

// Record folds a just-confirmed transaction into confAvg/txCtAvg/avg
// (spec.md §4.4 Record).
func (s *Stats) Record(blocksToConfirm int, feeratePerK float64) {
	if blocksToConfirm < 1 {
		return
	}
	periodsToConfirm := ceilDiv(blocksToConfirm, int(s.scale))
	b := bucketIndex(s.buckets, feeratePerK)
	for i := periodsToConfirm; i <= len(s.confAvg); i++ {
		s.confAvg[i-1][b]++
	}
	s.txCtAvg[b]++
	s.avg[b] += feeratePerK
}

// ClearCurrent folds the current ring slot into the overflow row and
// zeroes it, called once per connected block (spec.md §4.4).
func (s *Stats) ClearCurrent(blockHeight uint32) {
	idx := int(blockHeight) % len(s.unconfTxs)
	for j := range s.buckets {
		s.oldUnconfTxs[j] += s.unconfTxs[idx][j]
		s.unconfTxs[idx][j] = 0
	}
}

// UpdateMovingAverages multiplies every decayed cell by decay, applied once
// per connected block after ClearCurrent (spec.md §4.4).
func (s *Stats) UpdateMovingAverages() {
	for j := range s.buckets {
		for i := range s.confAvg {
			s.confAvg[i][j] *= s.decay
		}
		for i := range s.failAvg {
			s.failAvg[i][j] *= s.decay
		}
		s.avg[j] *= s.decay
		s.txCtAvg[j] *= s.decay
	}
}

// EstimateMedianVal implements spec.md §4.4's bucket walk: accumulate a
// running window until it has enough samples, test its pass rate against
// successBreakPoint, and once the walk is done return the median feerate
// of the best passing window (or -1 if none passed).
func (s *Stats) EstimateMedianVal(confTarget int, sufficientTxVal, successBreakPoint float64, requireGreater bool, blockHeight uint32) float64 {
	var nConf, totalNum, failNum float64
	var extraNum int

	periodTarget := ceilDiv(confTarget, int(s.scale))
	if periodTarget > len(s.confAvg) {
		periodTarget = len(s.confAvg)
	}
	if periodTarget < 1 {
		periodTarget = 1
	}
	maxBucketIndex := len(s.buckets) - 1

	startBucket := 0
	step := 1
	if requireGreater {
		startBucket = maxBucketIndex
		step = -1
	}

	curNearBucket, bestNearBucket := startBucket, startBucket
	curFarBucket, bestFarBucket := startBucket, startBucket

	foundAnswer := false
	bins := len(s.unconfTxs)
	newBucketRange := true
	passing := true

	for bucket := startBucket; bucket >= 0 && bucket <= maxBucketIndex; bucket += step {
		if newBucketRange {
			curNearBucket = bucket
			newBucketRange = false
		}
		curFarBucket = bucket

		nConf += s.confAvg[periodTarget-1][bucket]
		totalNum += s.txCtAvg[bucket]
		failNum += s.failAvg[periodTarget-1][bucket]
		for confct := confTarget; confct < s.GetMaxConfirms(); confct++ {
			ringIdx := ((int(blockHeight)-confct)%bins + bins) % bins
			extraNum += s.unconfTxs[ringIdx][bucket]
		}
		extraNum += s.oldUnconfTxs[bucket]

		if totalNum >= sufficientTxVal/(1-s.decay) {
			curPct := nConf / (totalNum + failNum + float64(extraNum))

			fails := (requireGreater && curPct < successBreakPoint) ||
				(!requireGreater && curPct > successBreakPoint)
			if fails {
				passing = false
				continue
			}

			foundAnswer = true
			passing = true
			nConf = 0
			totalNum = 0
			failNum = 0
			extraNum = 0
			bestNearBucket = curNearBucket
			bestFarBucket = curFarBucket
			newBucketRange = true
		}
	}

	median := -1.0
	minBucket, maxBucket := bestNearBucket, bestFarBucket
	if minBucket > maxBucket {
		minBucket, maxBucket = maxBucket, minBucket
	}

	var txSum float64
	for j := minBucket; j <= maxBucket; j++ {
		txSum += s.txCtAvg[j]
	}
	if foundAnswer && txSum != 0 {
		txSum /= 2
		for j := minBucket; j <= maxBucket; j++ {
			if s.txCtAvg[j] < txSum {
				txSum -= s.txCtAvg[j]
			} else {
				median = s.avg[j] / s.txCtAvg[j]
				break
			}
		}
	}

	return median
}
