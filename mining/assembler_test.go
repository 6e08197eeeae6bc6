// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"sort"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/kryptoin/litecoincash-sub001/wire"
)

// fakeSource is a minimal in-memory Source for exercising the assembler
// without a real mempool collaborator.
type fakeSource struct {
	entries     map[chainhash.Hash]*Entry
	ancestors   map[chainhash.Hash][]chainhash.Hash
	descendants map[chainhash.Hash][]chainhash.Hash
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		entries:     make(map[chainhash.Hash]*Entry),
		ancestors:   make(map[chainhash.Hash][]chainhash.Hash),
		descendants: make(map[chainhash.Hash][]chainhash.Hash),
	}
}

func (f *fakeSource) add(e *Entry) { f.entries[e.Hash] = e }

func (f *fakeSource) AncestorOrderedEntries() []*Entry {
	out := make([]*Entry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AncestorFeerate() > out[j].AncestorFeerate() })
	return out
}

func (f *fakeSource) Ancestors(hash chainhash.Hash) []*Entry {
	var out []*Entry
	for _, h := range f.ancestors[hash] {
		if e, ok := f.entries[h]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeSource) Descendants(hash chainhash.Hash) []*Entry {
	var out []*Entry
	for _, h := range f.descendants[hash] {
		if e, ok := f.entries[h]; ok {
			out = append(out, e)
		}
	}
	return out
}

func mkHash(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	return h
}

func baseParams() Params {
	return Params{
		BlockMaxWeight:  400_000,
		BlockMinFeeRate: FeeRate{SatoshisPerK: 1000},
		Height:          100,
		IncludeWitness:  true,
		IncludeBCTs:     true,
		LockTimeCutoff:  -1,
		MedianTimePast:  time.Now().Add(-time.Hour),
		PayoutScript:    []byte{0x51},
	}
}

func TestCreateNewBlockEmptyMempoolIsCoinbaseOnly(t *testing.T) {
	src := newFakeSource()
	a := New(src)

	tmpl, err := a.CreateNewBlock(baseParams())
	require.NoError(t, err)
	require.Equal(t, 1, tmpl.NumTx)
	require.Len(t, tmpl.Block.Txs, 1)
}

func TestCreateNewBlockRespectsWeightCap(t *testing.T) {
	src := newFakeSource()
	for i := 0; i < 50; i++ {
		h := mkHash(byte(i + 1))
		src.add(&Entry{
			Hash:              h,
			Tx:                &wire.MsgTx{LockTime: 0},
			Size:              50_000,
			SigOpCost:         10,
			Fee:               100_000,
			AncestorFee:       100_000,
			AncestorSize:      50_000,
			AncestorSigOpCost: 10,
			AncestorCount:     1,
		})
	}

	a := New(src)
	p := baseParams()
	p.BlockMaxWeight = 200_000

	tmpl, err := a.CreateNewBlock(p)
	require.NoError(t, err)
	require.LessOrEqual(t, tmpl.Weight, p.BlockMaxWeight)
	require.Less(t, tmpl.SigOpCost, int64(MaxBlockSigOpsCost))
}

func TestCreateNewBlockExcludesBelowMinFeeRate(t *testing.T) {
	src := newFakeSource()
	low := mkHash(1)
	src.add(&Entry{
		Hash:              low,
		Tx:                &wire.MsgTx{},
		Size:              1000,
		Fee:               1, // far below the 1000 sat/kB floor
		AncestorFee:       1,
		AncestorSize:      1000,
		AncestorCount:     1,
	})

	a := New(src)
	tmpl, err := a.CreateNewBlock(baseParams())
	require.NoError(t, err)
	require.Equal(t, 1, tmpl.NumTx) // coinbase only; low-fee entry excluded
}

func TestCreateNewBlockExcludesBCTWhenHiveProofSupplied(t *testing.T) {
	src := newFakeSource()
	bct := mkHash(1)
	src.add(&Entry{
		Hash:          bct,
		Tx:            &wire.MsgTx{},
		Size:          1000,
		Fee:           100_000,
		AncestorFee:   100_000,
		AncestorSize:  1000,
		AncestorCount: 1,
		IsBCT:         true,
	})

	a := New(src)
	p := baseParams()
	p.IncludeBCTs = false

	tmpl, err := a.CreateNewBlock(p)
	require.NoError(t, err)
	require.Equal(t, 1, tmpl.NumTx)
}

func TestBuildCoinbaseHiveDoublesSubsidyAndAddsProofOutput(t *testing.T) {
	p := baseParams()
	p.CoinbaseMode = CoinbaseHive
	p.HiveProofScript = []byte{0x6a, 0x01}

	tx, total, err := buildCoinbase(p, 0)
	require.NoError(t, err)
	require.Len(t, tx.TxOut, 2)
	require.Equal(t, int64(0), tx.TxOut[0].Value)
	require.Equal(t, int64(total), tx.TxOut[1].Value)
	require.Equal(t, 2*blockSubsidy(p.Height), btcutil.Amount(total))
}

func TestBuildCoinbaseMinotaurXHalvesSubsidy(t *testing.T) {
	p := baseParams()
	p.CoinbaseMode = CoinbaseMinotaurX

	_, total, err := buildCoinbase(p, 0)
	require.NoError(t, err)
	require.Equal(t, blockSubsidy(p.Height)/2, btcutil.Amount(total))
}

func TestFeeRateGetFee(t *testing.T) {
	r := FeeRate{SatoshisPerK: 1000}
	require.Equal(t, btcutil.Amount(500), r.GetFee(500))
	require.Equal(t, btcutil.Amount(1000), r.GetFee(1000))
}
