// Copyright (c) 2009-2017 The Bitcoin Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hive

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/kryptoin/litecoincash-sub001/mining"
)

// Opcode bytes this core needs directly for the Hive proof script (see
// buildProofScript); full script assembly
// is otherwise delegated to a txscript collaborator.
const (
	opReturn = 0x6a
	opBee    = 0xb0
	opTrue   = 0x51
	opFalse  = 0x00
)

// BCT is one mature Bee-Creation Transaction the wallet collaborator
// reports as available for this search (spec.md §4.6 Preparation step 3).
type BCT struct {
	Txid      chainhash.Hash
	BeeCount  int
	Height    uint32
	Community bool
}

// Preconditions mirrors spec.md §4.6's gate: Hive active at tip, peer
// connectivity present, not in IBD, chain-tip within the consecutive-Hive
// policy window, wallet available and unlocked. Each field reports the
// current value; BusyBees bails (without error) the first one that fails.
type Preconditions struct {
	HiveActive           bool
	HasPeers             bool
	InitialBlockDownload bool
	WithinHiveWindow     bool
	WalletUnlocked       bool
}

func (p Preconditions) ok() (bool, string) {
	switch {
	case !p.HiveActive:
		return false, "Hive is not enabled on the network"
	case !p.HasPeers:
		return false, "peer-to-peer functionality missing or disabled"
	case p.InitialBlockDownload:
		return false, "in initial block download"
	case !p.WithinHiveWindow:
		return false, "max Hive blocks without a POW block reached"
	case !p.WalletUnlocked:
		return false, "wallet unavailable or locked"
	}
	return true, ""
}

// Signer produces a compact signature over a digest using the wallet
// collaborator's Hive key, used to authenticate the proof script.
type Signer func(digest chainhash.Hash) ([]byte, error)

// SubmitBlock hands a solved template to the node's block-submission path.
type SubmitBlock func(tmpl *mining.BlockTemplate) error

// Coordinator runs one BusyBees pass: precondition check, preparation,
// parallel search, and completion (spec.md §4.6).
type Coordinator struct {
	Assembler *mining.Assembler
	Sign      Signer
	Submit    SubmitBlock
}

// RunParams bundles one BusyBees invocation's inputs.
type RunParams struct {
	Preconditions Preconditions

	PrevBlockHash chainhash.Hash
	Height        int
	ThreadCount   int
	Mode          HashMode
	Minotaur      MinotaurHasher
	EarlyAbort    bool
	TipHeight     TipHeightFunc

	BeeHashTarget *big.Int
	BCTs          []BCT

	MiningParams mining.Params
}

// BusyBees runs exactly one search-and-submit pass, returning whether a
// block was produced. It never returns an error for a failed precondition
// or an exhausted search -- both are reported via the bool result and a
// log line, matching the original's "swallow runtime_error and log" policy
// (spec.md §7).
func (c *Coordinator) BusyBees(ctx context.Context, p RunParams) (bool, error) {
	if ok, reason := p.Preconditions.ok(); !ok {
		hlog.Debugf("BusyBees: skipping hive check: %s", reason)
		return false, nil
	}

	totalBees := 0
	for _, b := range p.BCTs {
		totalBees += b.BeeCount
	}
	if totalBees == 0 {
		hlog.Debug("BusyBees: no mature bees available")
		return false, nil
	}

	randString := deterministicRandString(p.PrevBlockHash)

	var ranges []BeeRange
	offset := 0
	for _, b := range p.BCTs {
		ranges = append(ranges, BeeRange{Txid: b.Txid, Offset: 0, Count: b.BeeCount})
		offset += b.BeeCount
	}
	bins := PartitionBees(ranges, p.ThreadCount)

	sol, found := Search(ctx, Params{
		DeterministicRandString: randString,
		BeeHashTarget:           p.BeeHashTarget,
		Bins:                    bins,
		Mode:                    p.Mode,
		Minotaur:                p.Minotaur,
		EarlyAbortWatcher:       p.EarlyAbort,
		TipHeight:               p.TipHeight,
		StartHeight:             p.Height,
	})
	if !found {
		hlog.Debug("BusyBees: check aborted")
		return false, nil
	}

	var bct *BCT
	for i := range p.BCTs {
		if p.BCTs[i].Txid == sol.Range.Txid {
			bct = &p.BCTs[i]
			break
		}
	}
	if bct == nil {
		return false, fmt.Errorf("hive: solved range %s has no matching BCT", sol.Range.Txid)
	}

	proofScript, err := buildProofScript(*bct, sol.Index, randString, c.Sign)
	if err != nil {
		return false, fmt.Errorf("hive: building proof script: %w", err)
	}

	mp := p.MiningParams
	mp.CoinbaseMode = mining.CoinbaseHive
	mp.HiveProofScript = proofScript
	mp.IncludeBCTs = false

	tmpl, err := c.Assembler.CreateNewBlock(mp)
	if err != nil {
		return false, fmt.Errorf("hive: assembling block: %w", err)
	}
	if err := c.Submit(tmpl); err != nil {
		return false, fmt.Errorf("hive: submitting block: %w", err)
	}
	return true, nil
}

// buildProofScript constructs OP_RETURN OP_BEE <LE32 beeIndex>
// <LE32 bctHeight> <community> <txid> <compact-signature>, spec.md §6's
// Hive proof-of-work script.
func buildProofScript(bct BCT, beeIndex int, randString string, sign Signer) ([]byte, error) {
	digest := chainhash.HashH([]byte(randString))
	sig, err := sign(digest)
	if err != nil {
		return nil, err
	}

	community := byte(opFalse)
	if bct.Community {
		community = opTrue
	}

	out := make([]byte, 0, 2+4+4+1+chainhash.HashSize+len(sig))
	out = append(out, opReturn, opBee)
	out = append(out, le32(uint32(beeIndex))...)
	out = append(out, le32(bct.Height)...)
	out = append(out, community)
	out = append(out, bct.Txid[:]...)
	out = append(out, sig...)
	return out, nil
}

func le32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

// deterministicRandString derives the per-block search seed from the
// previous block's hash (spec.md §4.6 Preparation step 1).
func deterministicRandString(prevBlock chainhash.Hash) string {
	return prevBlock.String()
}
