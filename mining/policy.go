// Copyright (c) 2009-2017 The Bitcoin Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import "github.com/btcsuite/btcd/btcutil"

// Consensus/policy constants referenced by the assembler (spec.md §4.5).
const (
	// MaxBlockSigOpsCost bounds the cumulative signature-operation cost of
	// a block.
	MaxBlockSigOpsCost = 80_000

	// WitnessScaleFactor converts witness bytes into weight units.
	WitnessScaleFactor = 4

	// CoinbaseWeightReserve is the block-weight seed (weight reserved for
	// the coinbase), and also the margin used by the "near-full" early-exit
	// test in step 4.
	CoinbaseWeightReserve = 4000

	// CoinbaseSigOpCostSeed is the assembler's initial sigop-cost seed,
	// accounting for the coinbase transaction itself.
	CoinbaseSigOpCostSeed = 400

	// MaxConsecutiveFailures bounds how many failed candidates in a row
	// the assembler tolerates before considering an early block-full exit.
	MaxConsecutiveFailures = 1000
)

// FeeRate expresses a minimum relay/block-inclusion feerate in amount per
// 1000 bytes of size, mirroring CFeeRate::GetFee.
type FeeRate struct {
	SatoshisPerK btcutil.Amount
}

// GetFee returns the fee a package of the given size in bytes must meet
// or exceed to clear this feerate floor.
func (r FeeRate) GetFee(size int64) btcutil.Amount {
	fee := int64(r.SatoshisPerK) * size / 1000
	if fee == 0 && r.SatoshisPerK > 0 && size > 0 {
		fee = int64(r.SatoshisPerK)
	}
	return btcutil.Amount(fee)
}
