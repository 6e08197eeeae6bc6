// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wire models the peer-to-peer message shapes the dispatcher
// operates on (spec.md §6). Exact on-wire byte layout is explicitly a
// Non-goal of this spec (consensus-critical framing is delegated to a
// serialization collaborator); this package defines the Go-level message
// types and the Message interface the dispatcher, peer state and download
// scheduler consume, grounded on the command table spec.md §6 lists and on
// the teacher's own nox/core/message package shape (command name + decode
// contract, no byte-level codec).
package wire

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Command strings, exactly the set spec.md §6 names.
const (
	CmdVersion     = "version"
	CmdVerAck      = "verack"
	CmdAddr        = "addr"
	CmdInv         = "inv"
	CmdGetData     = "getdata"
	CmdNotFound    = "notfound"
	CmdGetBlocks   = "getblocks"
	CmdGetHeaders  = "getheaders"
	CmdTx          = "tx"
	CmdBlock       = "block"
	CmdHeaders     = "headers"
	CmdGetAddr     = "getaddr"
	CmdMemPool     = "mempool"
	CmdPing        = "ping"
	CmdPong        = "pong"
	CmdReject      = "reject"
	CmdSendHeaders = "sendheaders"
	CmdFeeFilter   = "feefilter"
	CmdSendCmpct   = "sendcmpct"
	CmdCmpctBlock  = "cmpctblock"
	CmdGetBlockTxn = "getblocktxn"
	CmdBlockTxn    = "blocktxn"
	CmdFilterLoad  = "filterload"
	CmdFilterAdd   = "filteradd"
	CmdFilterClear = "filterclear"
	CmdMerkleBlock = "merkleblock"
	CmdRialto      = "rialto" // fork-specific out-of-band encrypted message relay
)

// Reject codes, spec.md §6.
const (
	RejectMalformed  = 0x01
	RejectInvalid    = 0x10
	RejectObsolete   = 0x11
	RejectDuplicate  = 0x12
	RejectNonstandard = 0x40
	RejectCheckpoint = 0x43
)

// InvType identifies the kind of an inventory vector entry.
type InvType uint32

const (
	InvTypeError InvType = iota
	InvTypeTx
	InvTypeBlock
	InvTypeFilteredBlock
	InvTypeCmpctBlock
	InvTypeRialto
)

// InvWitnessFlag is OR-ed into an InvType to request the witness-serialized
// form, per spec.md §6.
const InvWitnessFlag InvType = 1 << 30

// InvVect is one entry of an inv/getdata/notfound message.
type InvVect struct {
	Type InvType
	Hash chainhash.Hash
}

// Message is implemented by every concrete message payload. Encode/Decode
// are intentionally out of this package's scope (Non-goal: exact wire byte
// layout); a real node wires a serialization collaborator in front of
// Command() to do that job.
type Message interface {
	Command() string
}

// MsgVersion is the first message any peer must send.
type MsgVersion struct {
	ProtocolVersion int32
	Services        uint64
	Timestamp       time.Time
	Nonce           uint64
	UserAgent       string
	LastBlock       int32
}

func (m *MsgVersion) Command() string { return CmdVersion }

// MsgVerAck acknowledges a version message. It carries no payload.
type MsgVerAck struct{}

func (m *MsgVerAck) Command() string { return CmdVerAck }

// NetAddress is a single address-book entry.
type NetAddress struct {
	Timestamp time.Time
	Services  uint64
	IP        string
	Port      uint16
}

// MsgAddr announces addresses.
type MsgAddr struct {
	AddrList []*NetAddress
}

func (m *MsgAddr) Command() string { return CmdAddr }

// MsgInv announces inventory.
type MsgInv struct {
	InvList []*InvVect
}

func (m *MsgInv) Command() string { return CmdInv }

// MsgGetData requests inventory.
type MsgGetData struct {
	InvList []*InvVect
}

func (m *MsgGetData) Command() string { return CmdGetData }

// MsgNotFound is sent in response to a getdata for data we don't have.
type MsgNotFound struct {
	InvList []*InvVect
}

func (m *MsgNotFound) Command() string { return CmdNotFound }

// BlockLocator is an ordered set of block hashes used to find a common
// ancestor, densest near the tip.
type BlockLocator []chainhash.Hash

// MsgGetHeaders requests headers starting after the locator.
type MsgGetHeaders struct {
	Locator    BlockLocator
	HashStop   chainhash.Hash
}

func (m *MsgGetHeaders) Command() string { return CmdGetHeaders }

// BlockHeader is the subset of header fields this core reasons about.
type BlockHeader struct {
	Version    int32
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  time.Time
	Bits       uint32
	Nonce      uint32
}

// Hash returns the identity of the header. In a full implementation this
// delegates to the serialization collaborator's double-SHA256; here it is
// a deterministic stand-in so tests can construct chains of headers.
func (h *BlockHeader) Hash() chainhash.Hash {
	return deterministicHeaderHash(h)
}

// MsgHeaders carries a batch of headers, spec.md §4.1 `headers`.
type MsgHeaders struct {
	Headers []*BlockHeader
}

func (m *MsgHeaders) Command() string { return CmdHeaders }

// MsgGetAddr requests the address book.
type MsgGetAddr struct{}

func (m *MsgGetAddr) Command() string { return CmdGetAddr }

// MsgMemPool requests the peer's mempool contents.
type MsgMemPool struct{}

func (m *MsgMemPool) Command() string { return CmdMemPool }

// MsgPing/MsgPong carry a nonce to be echoed back.
type MsgPing struct{ Nonce uint64 }

func (m *MsgPing) Command() string { return CmdPing }

type MsgPong struct{ Nonce uint64 }

func (m *MsgPong) Command() string { return CmdPong }

// MsgReject reports a protocol-level rejection.
type MsgReject struct {
	Cmd    string
	Code   byte
	Reason string
	Hash   chainhash.Hash
}

func (m *MsgReject) Command() string { return CmdReject }

// MsgSendHeaders requests header-first block announcement.
type MsgSendHeaders struct{}

func (m *MsgSendHeaders) Command() string { return CmdSendHeaders }

// MsgFeeFilter communicates a peer's minimum relay feerate.
type MsgFeeFilter struct{ MinFee int64 }

func (m *MsgFeeFilter) Command() string { return CmdFeeFilter }

// MsgSendCmpct negotiates compact-block announcement.
type MsgSendCmpct struct {
	Announce bool
	Version  uint64
}

func (m *MsgSendCmpct) Command() string { return CmdSendCmpct }

// PrefilledTxn is a transaction embedded directly in a compact block.
type PrefilledTxn struct {
	Index int
	Tx    *MsgTx
}

// MsgCmpctBlock announces a block using short transaction ids.
type MsgCmpctBlock struct {
	Header         BlockHeader
	Nonce          uint64
	ShortIDs       []uint64
	PrefilledTxns  []PrefilledTxn
}

func (m *MsgCmpctBlock) Command() string { return CmdCmpctBlock }

// MsgGetBlockTxn requests specific indices of a compact block.
type MsgGetBlockTxn struct {
	BlockHash chainhash.Hash
	Indexes   []int
}

func (m *MsgGetBlockTxn) Command() string { return CmdGetBlockTxn }

// MsgBlockTxn fills in requested compact-block transactions.
type MsgBlockTxn struct {
	BlockHash chainhash.Hash
	Txs       []*MsgTx
}

func (m *MsgBlockTxn) Command() string { return CmdBlockTxn }

// MsgBlock carries a full block.
type MsgBlock struct {
	Header BlockHeader
	Txs    []*MsgTx
}

func (m *MsgBlock) Command() string { return CmdBlock }

// MsgTx carries a transaction.
type MsgTx struct {
	Version  int32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32
	HasWitness bool
}

func (m *MsgTx) Command() string { return CmdTx }

// Hash returns the transaction's identity. As with BlockHeader.Hash, exact
// wire-level hashing is out of this core's scope; this is a deterministic
// stand-in sufficient for in-repo bookkeeping (mempool keys, reconstruction
// ring lookups) and must never be mistaken for the consensus txid.
func (m *MsgTx) Hash() chainhash.Hash {
	var out chainhash.Hash
	mix := uint64(m.Version) ^ uint64(m.LockTime)<<32 ^ uint64(len(m.TxIn))<<16 ^ uint64(len(m.TxOut))
	for i := 0; i < len(out); i++ {
		out[i] = byte(mix >> (8 * (i % 8)))
	}
	for _, in := range m.TxIn {
		for i := range out {
			out[i] ^= in.PreviousOutPoint.Hash[i%chainhash.HashSize] ^ byte(in.PreviousOutPoint.Index>>(8*(i%4)))
		}
	}
	return out
}

// OutPoint identifies a previous output being spent.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// TxIn is a transaction input.
type TxIn struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Sequence         uint32
}

// TxOut is a transaction output.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// MsgFilterLoad installs a Bloom filter.
type MsgFilterLoad struct {
	Filter    []byte
	NHashFuncs uint32
	NTweak     uint32
	NFlags     uint8
}

func (m *MsgFilterLoad) Command() string { return CmdFilterLoad }

// MsgFilterAdd adds an element to the active Bloom filter.
type MsgFilterAdd struct{ Data []byte }

func (m *MsgFilterAdd) Command() string { return CmdFilterAdd }

// MsgFilterClear removes the active Bloom filter.
type MsgFilterClear struct{}

func (m *MsgFilterClear) Command() string { return CmdFilterClear }

// MsgRialto carries the LitecoinCash-fork out-of-band encrypted relay
// payload. Its envelope is parsed by an external collaborator; this core
// only sees the opaque bytes and the routing metadata needed to relay it.
type MsgRialto struct {
	ID      chainhash.Hash
	Payload []byte
	TTL     time.Duration
}

func (m *MsgRialto) Command() string { return CmdRialto }

// deterministicHeaderHash is a stand-in identity function used only so
// in-repo tests can build deterministic header chains without a real
// double-SHA256 collaborator wired in. It must never be mistaken for the
// consensus hash.
func deterministicHeaderHash(h *BlockHeader) chainhash.Hash {
	var out chainhash.Hash
	copy(out[:], h.PrevBlock[:])
	mix := uint64(h.Timestamp.UnixNano()) ^ uint64(h.Bits)<<32 ^ uint64(h.Nonce)
	for i := 0; i < 8; i++ {
		out[i] ^= byte(mix >> (8 * i))
	}
	return out
}
