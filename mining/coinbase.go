// Copyright (c) 2009-2017 The Bitcoin Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/kryptoin/litecoincash-sub001/wire"
)

// OP_0 / OP_RETURN / OP_TRUE are the only script opcodes this core needs to
// reason about directly; real script construction is delegated to a
// txscript collaborator everywhere else.
const op0 = 0x00

// subsidyHalvingInterval and baseSubsidy model BlockSubsidy(height); a real
// deployment wires these from chaincfg.Params instead of constants, but the
// assembler's contract (halve under MinotaurX, double for Hive) only
// depends on the relative relationship, not the absolute schedule.
const (
	subsidyHalvingInterval = 840_000
	baseSubsidy            = 50 * btcutil.SatoshiPerBitcoin
)

func blockSubsidy(height uint32) btcutil.Amount {
	halvings := height / subsidyHalvingInterval
	if halvings >= 64 {
		return 0
	}
	return btcutil.Amount(baseSubsidy >> halvings)
}

// buildCoinbase constructs the coinbase transaction per spec.md §4.5:
// single input with scriptSig = height‖OP_0; one output to the caller's
// script with value BlockSubsidy(height)+fees. Under MinotaurX the base
// subsidy is halved before fees are added (Hive blocks carry a double
// subsidy instead of a halved one). Hive blocks additionally carry a
// second, zero-value output holding the supplied proof script, with the
// subsidy moved to output index 1.
func buildCoinbase(p Params, fees btcutil.Amount) (*wire.MsgTx, btcutil.Amount, error) {
	subsidy := blockSubsidy(p.Height)
	switch p.CoinbaseMode {
	case CoinbaseMinotaurX:
		subsidy /= 2
	case CoinbaseHive:
		subsidy *= 2
	}
	total := subsidy + fees

	scriptSig := make([]byte, 0, 6)
	scriptSig = append(scriptSig, heightScriptNum(p.Height)...)
	scriptSig = append(scriptSig, op0)

	tx := &wire.MsgTx{
		Version: 1,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{Index: 0xffffffff},
			SignatureScript:  scriptSig,
			Sequence:         0xffffffff,
		}},
	}

	if p.CoinbaseMode == CoinbaseHive {
		tx.TxOut = []*wire.TxOut{
			{Value: 0, PkScript: p.HiveProofScript},
			{Value: int64(total), PkScript: p.PayoutScript},
		}
	} else {
		tx.TxOut = []*wire.TxOut{
			{Value: int64(total), PkScript: p.PayoutScript},
		}
	}

	return tx, total, nil
}

// heightScriptNum encodes height as a minimal little-endian CScriptNum
// push, the BIP34 coinbase height commitment.
func heightScriptNum(height uint32) []byte {
	if height == 0 {
		return []byte{op0}
	}
	var buf [5]byte
	binary.LittleEndian.PutUint32(buf[:4], height)
	n := 4
	for n > 1 && buf[n-1] == 0 {
		n--
	}
	if buf[n-1]&0x80 != 0 {
		buf[n] = 0
		n++
	}
	return append([]byte{byte(n)}, buf[:n]...)
}
