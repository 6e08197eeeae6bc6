// Copyright (c) 2009-2017 The Bitcoin Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	nodelog "github.com/kryptoin/litecoincash-sub001/log"
	"github.com/kryptoin/litecoincash-sub001/wire"
)

var mlog = nodelog.Logger(nodelog.SubsystemMiner)

// BlockTemplate is the assembled-but-unsolved candidate, spec.md §4.5's
// result type.
type BlockTemplate struct {
	Block          *wire.MsgBlock
	Fees           []btcutil.Amount
	SigOpCosts     []int64
	Height         uint32
	Weight         int64
	SigOpCost      int64
	NumTx          int
}

// CoinbaseMode selects how the assembler builds the coinbase output set
// (spec.md §4.5 "Coinbase construction").
type CoinbaseMode int

const (
	CoinbasePoW CoinbaseMode = iota
	CoinbaseHive
	CoinbaseMinotaurX
)

// Params bundles the per-call knobs the assembler needs. BlockMaxWeight and
// BlockMinFeeRate come from config (spec.md §6 blockmaxweight/blockmintxfee);
// the remainder describe the tip the block extends.
type Params struct {
	BlockMaxWeight int64
	BlockMinFeeRate FeeRate

	Height          uint32
	PrevBlockHash   chainhash.Hash
	Bits            uint32
	WitnessActive   bool
	IncludeWitness  bool // witness-included = witness active AND caller permits
	IncludeBCTs     bool // false when caller passed a Hive proof script

	CoinbaseMode      CoinbaseMode
	PayoutScript      []byte
	HiveProofScript   []byte // only consulted when CoinbaseMode == CoinbaseHive
	LockTimeCutoff    int64
	MedianTimePast    time.Time
}

// Assembler implements the greedy ancestor-score package selection of
// spec.md §4.5.
type Assembler struct {
	source Source
}

// New returns an Assembler reading mempool entries from source.
func New(source Source) *Assembler {
	return &Assembler{source: source}
}

type assemblyState struct {
	params Params

	blockWeight   int64
	blockSigOps   int64
	blockFees     btcutil.Amount
	blockTxs      []*wire.MsgTx
	fees          []btcutil.Amount
	sigOpCosts    []int64

	inBlock map[chainhash.Hash]struct{}
	failed  map[chainhash.Hash]struct{}

	modified *modifiedEntries

	consecutiveFailures int
	terminate           bool
}

// CreateNewBlock runs the selection loop described in spec.md §4.5 and
// returns the assembled template. Initial state: block-weight seed 4000,
// sigop-cost seed 400.
func (a *Assembler) CreateNewBlock(params Params) (*BlockTemplate, error) {
	st := &assemblyState{
		params:      params,
		blockWeight: CoinbaseWeightReserve,
		blockSigOps: CoinbaseSigOpCostSeed,
		inBlock:     make(map[chainhash.Hash]struct{}),
		failed:      make(map[chainhash.Hash]struct{}),
		modified:    newModifiedEntries(),
	}

	primary := a.source.AncestorOrderedEntries()
	primaryIdx := 0

	for {
		// Step 1: pick the better of the two frontiers.
		for primaryIdx < len(primary) {
			e := primary[primaryIdx]
			_, already := st.inBlock[e.Hash]
			_, bad := st.failed[e.Hash]
			if already || st.modified.has(e.Hash) || bad {
				primaryIdx++
				continue
			}
			break
		}
		var primaryCandidate *Entry
		if primaryIdx < len(primary) {
			primaryCandidate = primary[primaryIdx]
		}

		best := st.modified.best()
		if primaryCandidate == nil && best == nil {
			break
		}

		var candidate *Entry
		var shadow *modifiedEntry
		switch {
		case primaryCandidate == nil:
			candidate, shadow = best.entry, best
		case best == nil:
			candidate = primaryCandidate
			primaryIdx++
		default:
			if primaryCandidate.AncestorFeerate() >= best.feerate() {
				candidate = primaryCandidate
				primaryIdx++
			} else {
				candidate, shadow = best.entry, best
			}
		}

		added := a.considerPackage(st, candidate, shadow)
		if !added {
			mlog.Debugf("assembler: package for %s rejected", candidate.Hash)
		}
		if st.terminate {
			break
		}
	}

	return a.finalize(st)
}

// considerPackage runs steps 2-8 of spec.md §4.5 for one chosen candidate.
// It reports whether the package was added to the block.
func (a *Assembler) considerPackage(st *assemblyState, candidate *Entry, shadow *modifiedEntry) bool {
	ancestorFee := candidate.AncestorFee
	ancestorSize := candidate.AncestorSize
	ancestorSigOpCost := candidate.AncestorSigOpCost
	if shadow != nil {
		ancestorFee = shadow.ancestorFee
		ancestorSize = shadow.ancestorSize
		ancestorSigOpCost = shadow.ancestorSigOpCost
	}

	// Step 3: below the minimum package feerate -- the primary stream is
	// ordered by descending ancestor feerate, so every later candidate
	// would fail too; terminate selection entirely.
	if ancestorFee < st.params.BlockMinFeeRate.GetFee(ancestorSize) {
		st.terminate = true
		return false
	}

	// Step 4: weight/sigop bounds.
	if st.blockWeight+WitnessScaleFactor*ancestorSize >= st.params.BlockMaxWeight ||
		st.blockSigOps+ancestorSigOpCost >= MaxBlockSigOpsCost {
		st.failed[candidate.Hash] = struct{}{}
		st.consecutiveFailures++
		if st.consecutiveFailures > MaxConsecutiveFailures &&
			st.blockWeight > st.params.BlockMaxWeight-CoinbaseWeightReserve {
			st.terminate = true
		}
		return false
	}
	st.consecutiveFailures = 0

	// Step 5: full ancestor set, excluding already-included ancestors.
	ancestors := a.source.Ancestors(candidate.Hash)
	var pkg []*Entry
	for _, anc := range ancestors {
		if _, done := st.inBlock[anc.Hash]; done {
			continue
		}
		pkg = append(pkg, anc)
	}
	pkg = append(pkg, candidate)

	// Step 6: validation -- finality, witness-inclusion match, BCT exclusion.
	for _, member := range pkg {
		if !isFinalForAssembly(member, st.params) {
			st.failed[candidate.Hash] = struct{}{}
			return false
		}
		if !st.params.IncludeWitness && member.HasWitness {
			st.failed[candidate.Hash] = struct{}{}
			return false
		}
		if !st.params.IncludeBCTs && member.IsBCT {
			st.failed[candidate.Hash] = struct{}{}
			return false
		}
	}

	// Step 7: sort by ancestor count ascending, append, erase from shadow.
	sort.Slice(pkg, func(i, j int) bool { return pkg[i].AncestorCount < pkg[j].AncestorCount })
	for _, member := range pkg {
		st.blockTxs = append(st.blockTxs, member.Tx)
		st.fees = append(st.fees, member.Fee)
		st.sigOpCosts = append(st.sigOpCosts, member.SigOpCost)
		st.blockWeight += WitnessScaleFactor * member.Size
		st.blockSigOps += member.SigOpCost
		st.blockFees += member.Fee
		st.inBlock[member.Hash] = struct{}{}
		st.modified.erase(member.Hash)
	}

	// Step 8: propagate the subtraction to not-yet-included descendants.
	for _, member := range pkg {
		for _, desc := range a.source.Descendants(member.Hash) {
			if _, done := st.inBlock[desc.Hash]; done {
				continue
			}
			st.modified.subtractAncestor(desc, member.Size, member.Fee, member.SigOpCost)
		}
	}

	return true
}

// isFinalForAssembly approximates IsFinalTx at the chosen height/locktime
// cutoff: any input with a non-max sequence makes the locktime binding.
func isFinalForAssembly(e *Entry, p Params) bool {
	for _, in := range e.Tx.TxIn {
		if in.Sequence == 0xffffffff {
			continue
		}
		if p.LockTimeCutoff >= 0 && int64(e.Tx.LockTime) >= p.LockTimeCutoff {
			return false
		}
	}
	return true
}

func (a *Assembler) finalize(st *assemblyState) (*BlockTemplate, error) {
	coinbase, coinbaseFee, err := buildCoinbase(st.params, st.blockFees)
	if err != nil {
		return nil, fmt.Errorf("building coinbase: %w", err)
	}

	txs := make([]*wire.MsgTx, 0, len(st.blockTxs)+1)
	txs = append(txs, coinbase)
	txs = append(txs, st.blockTxs...)

	fees := make([]btcutil.Amount, 0, len(st.fees)+1)
	fees = append(fees, -coinbaseFee)
	fees = append(fees, st.fees...)

	sigOps := make([]int64, 0, len(st.sigOpCosts)+1)
	sigOps = append(sigOps, CoinbaseSigOpCostSeed)
	sigOps = append(sigOps, st.sigOpCosts...)

	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   4,
			PrevBlock: st.params.PrevBlockHash,
			Timestamp: adjustedBlockTime(st.params),
			Bits:      st.params.Bits,
		},
		Txs: txs,
	}

	weight := st.blockWeight
	sigOpCost := st.blockSigOps
	if weight > st.params.BlockMaxWeight {
		return nil, fmt.Errorf("assembled block weight %d exceeds max %d", weight, st.params.BlockMaxWeight)
	}
	if sigOpCost >= MaxBlockSigOpsCost {
		return nil, fmt.Errorf("assembled block sigop cost %d meets/exceeds max %d", sigOpCost, MaxBlockSigOpsCost)
	}

	mlog.Debugf("assembled block template: height=%d txs=%d weight=%d sigops=%d fees=%d",
		st.params.Height, len(txs), weight, sigOpCost, st.blockFees)

	return &BlockTemplate{
		Block:      block,
		Fees:       fees,
		SigOpCosts: sigOps,
		Height:     st.params.Height,
		Weight:     weight,
		SigOpCost:  sigOpCost,
		NumTx:      len(txs),
	}, nil
}

func adjustedBlockTime(p Params) time.Time {
	now := time.Now()
	if now.Before(p.MedianTimePast.Add(time.Second)) {
		return p.MedianTimePast.Add(time.Second)
	}
	return now
}
