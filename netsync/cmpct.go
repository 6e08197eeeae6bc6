// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netsync

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// compactShortID is a deterministic stand-in for BIP152's SipHash-2-4
// short transaction id, keyed by the announcing block's nonce. The real
// wire-level hash is out of this core's scope (see wire.MsgTx.Hash); this
// only needs to let the reconstruction ring's matching logic round-trip
// within one process.
func compactShortID(nonce uint64, txHash chainhash.Hash) uint64 {
	return binary.LittleEndian.Uint64(txHash[:8]) ^ nonce
}
