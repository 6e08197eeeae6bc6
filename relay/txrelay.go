// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package relay implements the short-lived relay caches spec.md §4.7
// describes: a FIFO-expiring transaction/out-of-band relay map, a
// fast-announce compact-block cache keyed by height, and the per-peer
// Poisson-spaced send-interval bookkeeping that drives the periodic
// SendMessages pass.
//
// Grounded on net_processing.cpp's mapRelay/vRelayExpiration deque pair and
// the teacher-family convention (mstroehle-hcd, toole-brendan-shell) of a
// container/list-backed FIFO for exactly this shape: a map for O(1) lookup
// plus an ordered list for O(1) oldest-eviction.
package relay

import (
	"container/list"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// DefaultExpiry is the default relay-map lifetime, spec.md §4.7.
const DefaultExpiry = 15 * time.Minute

type relayEntry struct {
	hash      chainhash.Hash
	payload   []byte
	expiresAt time.Time
}

// TxRelayMap is the FIFO-expiring map backing both transaction relay and
// out-of-band (rialto) message relay: a deque of (expire-at, entry) ordered
// by insertion, since every entry shares the same lifetime and therefore
// expires in insertion order -- exactly the invariant net_processing.cpp's
// mapRelay/vRelayExpiration pair relies on.
type TxRelayMap struct {
	expiry time.Duration
	byHash map[chainhash.Hash]*list.Element
	order  *list.List // front = oldest
}

// NewTxRelayMap returns an empty map with the given entry lifetime.
func NewTxRelayMap(expiry time.Duration) *TxRelayMap {
	return &TxRelayMap{
		expiry: expiry,
		byHash: make(map[chainhash.Hash]*list.Element),
		order:  list.New(),
	}
}

// Insert adds or refreshes hash with payload, expiring at now+expiry.
func (m *TxRelayMap) Insert(hash chainhash.Hash, payload []byte, now time.Time) {
	if el, ok := m.byHash[hash]; ok {
		m.order.Remove(el)
	}
	el := m.order.PushBack(&relayEntry{hash: hash, payload: payload, expiresAt: now.Add(m.expiry)})
	m.byHash[hash] = el
}

// Get returns the payload for hash, if present and not yet expired as of
// the last ExpireBefore call.
func (m *TxRelayMap) Get(hash chainhash.Hash) ([]byte, bool) {
	el, ok := m.byHash[hash]
	if !ok {
		return nil, false
	}
	return el.Value.(*relayEntry).payload, true
}

// Has reports whether hash is present (regardless of expiry freshness).
func (m *TxRelayMap) Has(hash chainhash.Hash) bool {
	_, ok := m.byHash[hash]
	return ok
}

// Len returns the number of entries currently held.
func (m *TxRelayMap) Len() int { return m.order.Len() }

// ExpireBefore evicts every entry whose expiry has passed as of now,
// walking the list from the front since insertion order equals expiry
// order for a fixed-lifetime map, and returns the evicted hashes.
func (m *TxRelayMap) ExpireBefore(now time.Time) []chainhash.Hash {
	var expired []chainhash.Hash
	for el := m.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*relayEntry)
		if e.expiresAt.After(now) {
			break
		}
		m.order.Remove(el)
		delete(m.byHash, e.hash)
		expired = append(expired, e.hash)
		el = next
	}
	return expired
}
