// Copyright (c) 2009-2017 The Bitcoin Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// modifiedEntry is a mempool entry whose ancestor totals have been shrunk
// to reflect only the ancestors not yet included in the block under
// construction (spec.md §4.5's "secondary" stream).
type modifiedEntry struct {
	entry *Entry

	ancestorFee       btcutil.Amount
	ancestorSize      int64
	ancestorSigOpCost int64
}

func (m *modifiedEntry) feerate() float64 {
	if m.ancestorSize == 0 {
		return 0
	}
	return float64(m.ancestorFee) / float64(m.ancestorSize)
}

// modifiedEntries is the shadow index of spec.md §4.5: entries whose
// ancestor-group totals have been reduced as ancestors are included into
// the block. Keyed by the entry's own hash, not the ancestor's.
type modifiedEntries struct {
	byHash map[chainhash.Hash]*modifiedEntry
}

func newModifiedEntries() *modifiedEntries {
	return &modifiedEntries{byHash: make(map[chainhash.Hash]*modifiedEntry)}
}

func (m *modifiedEntries) get(hash chainhash.Hash) (*modifiedEntry, bool) {
	e, ok := m.byHash[hash]
	return e, ok
}

func (m *modifiedEntries) has(hash chainhash.Hash) bool {
	_, ok := m.byHash[hash]
	return ok
}

func (m *modifiedEntries) erase(hash chainhash.Hash) {
	delete(m.byHash, hash)
}

// ensure returns the shadow entry for e, creating it (seeded from e's own
// current ancestor totals) the first time any ancestor needs to be
// subtracted out of it (spec.md §4.5 step 8).
func (m *modifiedEntries) ensure(e *Entry) *modifiedEntry {
	if existing, ok := m.byHash[e.Hash]; ok {
		return existing
	}
	me := &modifiedEntry{
		entry:             e,
		ancestorFee:       e.AncestorFee,
		ancestorSize:      e.AncestorSize,
		ancestorSigOpCost: e.AncestorSigOpCost,
	}
	m.byHash[e.Hash] = me
	return me
}

// subtractAncestor removes one included ancestor's contribution from e's
// shadow ancestor totals.
func (m *modifiedEntries) subtractAncestor(e *Entry, ancestorSize int64, ancestorFee btcutil.Amount, ancestorSigOpCost int64) {
	me := m.ensure(e)
	me.ancestorFee -= ancestorFee
	me.ancestorSize -= ancestorSize
	me.ancestorSigOpCost -= ancestorSigOpCost
}

// best returns the highest ancestor-feerate shadow entry, or nil if empty.
func (m *modifiedEntries) best() *modifiedEntry {
	var best *modifiedEntry
	for _, me := range m.byHash {
		if best == nil || me.feerate() > best.feerate() {
			best = me
		}
	}
	return best
}
