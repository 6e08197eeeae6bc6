// Copyright (c) 2009-2017 The Bitcoin Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mining implements the package-maximizing block assembler of
// spec.md §4.5, grounded on _examples/original_source/src/miner.cpp's
// BlockAssembler and on the teacher's own
// services/mining/newblocktemplate.go for doc-comment convention and
// general block-template shape.
package mining

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/kryptoin/litecoincash-sub001/wire"
)

// Entry is the subset of a mempool entry's bookkeeping the assembler reads.
// AncestorFee/AncestorSize/AncestorSigOpCost/AncestorCount describe the
// entry's own transaction plus every not-yet-confirmed ancestor still in
// the mempool; the assembler treats these as mutable shadow copies via
// ModifiedEntries, never writing back to the mempool's own view.
type Entry struct {
	Hash  chainhash.Hash
	Tx    *wire.MsgTx
	Size  int64 // virtual size in bytes; weight is WitnessScaleFactor*Size
	SigOpCost int64
	Fee   btcutil.Amount

	AncestorFee       btcutil.Amount
	AncestorSize      int64
	AncestorSigOpCost int64
	AncestorCount     int64

	IsBCT      bool // bee-creation transaction
	HasWitness bool
}

// AncestorFeerate is the ancestor-fee-score key used to order both the
// primary and the ModifiedEntries frontier (spec.md §4.5 step 1).
func (e *Entry) AncestorFeerate() float64 {
	if e.AncestorSize == 0 {
		return 0
	}
	return float64(e.AncestorFee) / float64(e.AncestorSize)
}

// Source is the mempool collaborator the assembler reads from. It is
// intentionally minimal: the assembler only ever needs the entries
// (snapshotted once at CreateNewBlock time, per spec.md's concurrency
// notes on cs_main ordering) and two graph queries.
type Source interface {
	// AncestorOrderedEntries returns every mempool entry sorted by
	// descending ancestor feerate -- the "primary" stream of spec.md §4.5.
	AncestorOrderedEntries() []*Entry

	// Ancestors returns every in-mempool ancestor of hash, excluding hash
	// itself, in no particular order; the assembler drops the ones already
	// in the block.
	Ancestors(hash chainhash.Hash) []*Entry

	// Descendants returns every direct and transitive descendant of hash
	// still in the mempool, in no particular order.
	Descendants(hash chainhash.Hash) []*Entry
}
