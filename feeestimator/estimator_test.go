// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package feeestimator

import (
	"bytes"
	"math"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func TestBucketIndexBoundaries(t *testing.T) {
	buckets, _ := buildBuckets()

	require.Equal(t, 0, bucketIndex(buckets, MinBucketFeerate))
	require.Equal(t, len(buckets)-1, bucketIndex(buckets, InfFeerate))
}

func TestUpdateMovingAveragesDecayLaw(t *testing.T) {
	buckets, bucketMap := buildBuckets()
	s := NewStats(buckets, bucketMap, 0.9, 1, 4)

	s.Record(1, 10_000)
	before := append([]float64(nil), s.avg...)
	beforeCt := append([]float64(nil), s.txCtAvg...)

	const k = 5
	for i := 0; i < k; i++ {
		s.UpdateMovingAverages()
	}

	factor := math.Pow(0.9, k)
	for i := range before {
		want := before[i] * factor
		require.InDelta(t, want, s.avg[i], 1e-9)
		wantCt := beforeCt[i] * factor
		require.InDelta(t, wantCt, s.txCtAvg[i], 1e-9)
	}
}

func TestRecordThenEstimateMedianIsBucketBounded(t *testing.T) {
	est := New()

	hash := chainhash.Hash{1}
	const feerate = 10_000.0
	est.ProcessTransaction(hash, 100, feerate)

	// Repeat the observation enough times across blocks for the bucket to
	// accumulate sufficient samples to pass EstimateMedianVal's threshold.
	prev := hash
	for h := uint32(101); h < 1200; h++ {
		est.ProcessBlock(h, map[chainhash.Hash]float64{prev: feerate})
		tx := chainhash.Hash{byte(h), byte(h >> 8)}
		est.ProcessTransaction(tx, h, feerate)
		prev = tx
	}

	fee := est.EstimateSmartFee(2, false)
	if fee == 0 {
		t.Skip("insufficient synthetic sample density for a passing window")
	}

	idx := bucketIndex(est.buckets, feerate)
	lower := 0.0
	if idx > 0 {
		lower = est.buckets[idx-1]
	}
	upper := est.buckets[idx]
	require.GreaterOrEqual(t, float64(fee), lower)
	require.LessOrEqual(t, float64(fee), upper*1.01)
}

func TestWriteReadRoundTrip(t *testing.T) {
	est := New()
	est.ProcessTransaction(chainhash.Hash{1}, 10, 50_000)
	est.ProcessBlock(11, map[chainhash.Hash]float64{{1}: 50_000})

	var buf bytes.Buffer
	require.NoError(t, est.Write(&buf))

	got, err := Read(&buf)
	require.NoError(t, err)

	require.Equal(t, est.buckets, got.buckets)
	require.Equal(t, est.bestSeenHeight, got.bestSeenHeight)
	require.Equal(t, est.historicalFirst, got.historicalFirst)
	require.Equal(t, est.historicalBest, got.historicalBest)
	require.InDeltaSlice(t, est.short.avg, got.short.avg, 1e-9)
	require.InDeltaSlice(t, est.med.avg, got.med.avg, 1e-9)
	require.InDeltaSlice(t, est.long.avg, got.long.avg, 1e-9)
}

func TestReadRejectsStaleVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeI32(&buf, FileMinSupportedVersion-1))
	require.NoError(t, writeI32(&buf, FileCurrentVersion))
	require.NoError(t, writeU32(&buf, 0))
	require.NoError(t, writeU32(&buf, 0))
	require.NoError(t, writeU32(&buf, 0))
	require.NoError(t, writeDoubleVec(&buf, []float64{1, 2}))

	_, err := Read(&buf)
	require.Error(t, err)
	var corrupt *CorruptionError
	require.ErrorAs(t, err, &corrupt)
}

func TestReadRejectsBucketCountOutOfRange(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeI32(&buf, FileMinSupportedVersion))
	require.NoError(t, writeI32(&buf, FileCurrentVersion))
	require.NoError(t, writeU32(&buf, 0))
	require.NoError(t, writeU32(&buf, 0))
	require.NoError(t, writeU32(&buf, 0))
	require.NoError(t, writeDoubleVec(&buf, nil)) // zero buckets: below minBucketCount

	_, err := Read(&buf)
	require.Error(t, err)
	var corrupt *CorruptionError
	require.ErrorAs(t, err, &corrupt)
}
