// Copyright (c) 2009-2017 The Bitcoin Core developers
// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package feeestimator implements the three bucketed, exponentially-decayed
// confirmation statistics tables (spec.md §4.4) and the smart-fee
// composition built on top of them. Grounded directly on
// _examples/original_source/src/policy/fees.cpp's TxConfirmStats /
// CBlockPolicyEstimator, and on the bucket-shape test harness in
// _examples/other_examples/89d9136b_matheusd-dcrfeesim__feesim.go.go
// (fees.EstimatorConfig{MaxConfirms, MinBucketFee, MaxBucketFee,
// FeeRateStep}).
package feeestimator

// Fee-bucket geometry, spec.md §4.4.
const (
	MinBucketFeerate = 1000.0
	MaxBucketFeerate = 1e7
	FeeSpacing       = 1.05
	InfFeerate       = 1e99
)

// Success-probability thresholds used by EstimateMedianVal callers.
const (
	SuccessPct       = 0.85
	HalfSuccessPct   = 0.6
	DoubleSuccessPct = 0.95

	SufficientFeeTxs   = 1.0
	SufficientTxsShort = 0.5
)

// Horizon shape, one set of (decay, scale, maxPeriods) per horizon.
type horizonParams struct {
	decay      float64
	scale      uint32
	maxPeriods int
}

var (
	shortParams = horizonParams{decay: 0.962, scale: 1, maxPeriods: 12}
	medParams   = horizonParams{decay: 0.9952, scale: 24, maxPeriods: 48}
	longParams  = horizonParams{decay: 0.99931, scale: 48, maxPeriods: 21}
)

// buildBuckets constructs the geometric bucket boundary list plus the
// sentinel and a dense boundary->index map, spec.md §4.4 Initialization.
func buildBuckets() ([]float64, map[float64]int) {
	var buckets []float64
	for b := MinBucketFeerate; b <= MaxBucketFeerate; b *= FeeSpacing {
		buckets = append(buckets, b)
	}
	buckets = append(buckets, InfFeerate)

	m := make(map[float64]int, len(buckets))
	for i, b := range buckets {
		m[b] = i
	}
	return buckets, m
}

// bucketIndex mirrors bucketMap.lower_bound(val): the index of the
// smallest boundary >= val.
func bucketIndex(buckets []float64, val float64) int {
	lo, hi := 0, len(buckets)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if buckets[mid] < val {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
