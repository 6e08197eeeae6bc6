// Copyright (c) 2009-2017 The Bitcoin Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package feeestimator

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// File format version markers. FileCurrentVersion is written out; a reader
// rejects anything below FileMinSupportedVersion as a non-fatal corruption
// error (spec.md §6 "required-version below a threshold is a non-fatal
// skip").
const (
	FileCurrentVersion      = int32(149900)
	FileMinSupportedVersion = int32(139900)

	minBucketCount = 1
	maxBucketCount = 1000
	minHorizonLen  = 1
	maxHorizonLen  = 1008
)

// CorruptionError wraps a persistence-layer sanity-check failure. Callers
// treat it as non-fatal: log and fall back to a freshly initialized
// Estimator (spec.md §7 "Persistence corruption").
type CorruptionError struct{ Reason string }

func (e *CorruptionError) Error() string { return "fee estimation file corrupt: " + e.Reason }

// Write serializes the estimator to w in the layout spec.md §6 names:
// <required-version> <written-version> <best-seen-height> <historical-first>
// <historical-best> <buckets> <medStats> <shortStats> <longStats>.
func (e *Estimator) Write(w io.Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	bw := bufio.NewWriter(w)

	if err := writeI32(bw, FileMinSupportedVersion); err != nil {
		return err
	}
	if err := writeI32(bw, FileCurrentVersion); err != nil {
		return err
	}
	if err := writeU32(bw, e.bestSeenHeight); err != nil {
		return err
	}
	if err := writeU32(bw, e.historicalFirst); err != nil {
		return err
	}
	if err := writeU32(bw, e.historicalBest); err != nil {
		return err
	}
	if err := writeDoubleVec(bw, e.buckets); err != nil {
		return err
	}
	for _, s := range []*Stats{e.med, e.short, e.long} {
		if err := writeStats(bw, s); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeStats(w io.Writer, s *Stats) error {
	if err := writeDouble(w, s.decay); err != nil {
		return err
	}
	if err := writeU32(w, s.scale); err != nil {
		return err
	}
	if err := writeDoubleVec(w, s.avg); err != nil {
		return err
	}
	if err := writeDoubleVec(w, s.txCtAvg); err != nil {
		return err
	}
	if err := writeDoubleMat(w, s.confAvg); err != nil {
		return err
	}
	return writeDoubleMat(w, s.failAvg)
}

// Read rebuilds an Estimator from r, reconstructing the bucket boundary map
// from the stored boundaries. A required-version below FileMinSupportedVersion,
// an out-of-range bucket count, or a horizon length outside [1, 1008] is
// reported as a *CorruptionError (spec.md §6).
func Read(r io.Reader) (*Estimator, error) {
	br := bufio.NewReader(r)

	requiredVersion, err := readI32(br)
	if err != nil {
		return nil, err
	}
	if requiredVersion > FileCurrentVersion {
		return nil, &CorruptionError{Reason: fmt.Sprintf("required version %d newer than supported %d", requiredVersion, FileCurrentVersion)}
	}
	if requiredVersion < FileMinSupportedVersion {
		return nil, &CorruptionError{Reason: fmt.Sprintf("required version %d below minimum %d", requiredVersion, FileMinSupportedVersion)}
	}

	if _, err := readI32(br); err != nil { // writtenVersion, informational only
		return nil, err
	}

	bestSeenHeight, err := readU32(br)
	if err != nil {
		return nil, err
	}
	historicalFirst, err := readU32(br)
	if err != nil {
		return nil, err
	}
	historicalBest, err := readU32(br)
	if err != nil {
		return nil, err
	}

	buckets, err := readDoubleVec(br)
	if err != nil {
		return nil, err
	}
	if len(buckets) < minBucketCount || len(buckets) > maxBucketCount {
		return nil, &CorruptionError{Reason: fmt.Sprintf("bucket count %d out of range", len(buckets))}
	}
	bucketMap := make(map[float64]int, len(buckets))
	for i, b := range buckets {
		bucketMap[b] = i
	}

	med, err := readStats(br, buckets, bucketMap, medParams.decay, medParams.scale, medParams.maxPeriods)
	if err != nil {
		return nil, err
	}
	short, err := readStats(br, buckets, bucketMap, shortParams.decay, shortParams.scale, shortParams.maxPeriods)
	if err != nil {
		return nil, err
	}
	long, err := readStats(br, buckets, bucketMap, longParams.decay, longParams.scale, longParams.maxPeriods)
	if err != nil {
		return nil, err
	}

	return &Estimator{
		buckets:         buckets,
		bucketMap:       bucketMap,
		short:           short,
		med:             med,
		long:            long,
		tracking:        make(map[chainhash.Hash]trackingRecord),
		bestSeenHeight:  bestSeenHeight,
		historicalFirst: historicalFirst,
		historicalBest:  historicalBest,
	}, nil
}

func readStats(r io.Reader, buckets []float64, bucketMap map[float64]int, decay float64, scale uint32, maxPeriods int) (*Stats, error) {
	readDecay, err := readDouble(r)
	if err != nil {
		return nil, err
	}
	readScale, err := readU32(r)
	if err != nil {
		return nil, err
	}

	s := NewStats(buckets, bucketMap, readDecay, readScale, maxPeriods)

	avg, err := readDoubleVec(r)
	if err != nil {
		return nil, err
	}
	if len(avg) != len(buckets) {
		return nil, &CorruptionError{Reason: "avg vector length mismatch"}
	}
	s.avg = avg

	txCtAvg, err := readDoubleVec(r)
	if err != nil {
		return nil, err
	}
	if len(txCtAvg) != len(buckets) {
		return nil, &CorruptionError{Reason: "txCtAvg vector length mismatch"}
	}
	s.txCtAvg = txCtAvg

	confAvg, err := readDoubleMat(r)
	if err != nil {
		return nil, err
	}
	if len(confAvg) < minHorizonLen || len(confAvg) > maxHorizonLen {
		return nil, &CorruptionError{Reason: fmt.Sprintf("confAvg horizon length %d out of range", len(confAvg))}
	}
	s.confAvg = confAvg

	failAvg, err := readDoubleMat(r)
	if err != nil {
		return nil, err
	}
	if len(failAvg) != len(confAvg) {
		return nil, &CorruptionError{Reason: "failAvg horizon length mismatch"}
	}
	s.failAvg = failAvg

	_ = decay // the decay/scale actually used are whatever was persisted
	return s, nil
}

func writeI32(w io.Writer, v int32) error { return binary.Write(w, binary.LittleEndian, v) }
func writeU32(w io.Writer, v uint32) error { return binary.Write(w, binary.LittleEndian, v) }
func writeDouble(w io.Writer, v float64) error {
	return binary.Write(w, binary.LittleEndian, math.Float64bits(v))
}

func writeDoubleVec(w io.Writer, vals []float64) error {
	if err := writeU32(w, uint32(len(vals))); err != nil {
		return err
	}
	for _, v := range vals {
		if err := writeDouble(w, v); err != nil {
			return err
		}
	}
	return nil
}

func writeDoubleMat(w io.Writer, rows [][]float64) error {
	if err := writeU32(w, uint32(len(rows))); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writeDoubleVec(w, row); err != nil {
			return err
		}
	}
	return nil
}

func readI32(r io.Reader) (int32, error) {
	var v int32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readDouble(r io.Reader) (float64, error) {
	var bits uint64
	if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

func readDoubleVec(r io.Reader) ([]float64, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		v, err := readDouble(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func readDoubleMat(r io.Reader) ([][]float64, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, n)
	for i := range out {
		row, err := readDoubleVec(r)
		if err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
}
