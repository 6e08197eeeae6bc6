// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package config hosts the node's recognized configuration options
// (spec.md §6), parsed from an INI file plus command-line flags using
// jessevdk/go-flags, the parser used across the btcd-lineage pack
// (mstroehle-hcd, toole-brendan-shell, EXCCoin-exccd manifests).
package config

import (
	"os"
	"path/filepath"
	"runtime"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultBanScore             = 100
	defaultMaxOrphanTx          = 100
	defaultMaxOrphanTxSize      = 100000
	defaultBlockMaxWeight       = 3_996_000
	defaultBlockMinTxFee        = 1000 // satoshis/kB
	defaultReconstructionExtra  = 100
	defaultHiveCheckDelayMillis = 5000
	defaultMaxMempool           = 300 // MB
)

// Config mirrors spec.md §6's "Recognized configuration options" table.
type Config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`

	BlockMaxWeight      uint32 `long:"blockmaxweight" description:"Maximum block weight the assembler will produce" default:"3996000"`
	BlockMinTxFee       int64  `long:"blockmintxfee" description:"Minimum feerate (satoshis/kB) accepted by the block assembler" default:"1000"`
	BlockReconstructExtra uint32 `long:"blockreconstructionextratxn" description:"Extra transactions to keep in the compact-block reconstruction ring" default:"100"`

	HiveCheckDelay  int  `long:"hivecheckdelay" description:"Bee-keeper poll interval in milliseconds" default:"5000"`
	HiveCheckThreads int `long:"hivecheckthreads" description:"Number of bee search worker threads (-2 = cores-1)" default:"-2"`
	HiveEarlyOut    bool `long:"hiveearlyout" description:"Enable the early-abort watcher thread during bee search"`

	MaxOrphanTx int `long:"maxorphantx" description:"Maximum number of orphan transactions to keep in memory" default:"100"`

	BanScore int32 `long:"banscore" description:"Misbehavior score threshold at which a peer is banned" default:"100"`

	WhitelistRelay      bool `long:"whitelistrelay" description:"Accept relay from whitelisted peers even when it would otherwise be throttled"`
	WhitelistForceRelay bool `long:"whitelistforcerelay" description:"Force relay of transactions from whitelisted peers"`

	IntrospectionHardening bool `long:"introspectionhardening" description:"Enable stale-fork / excessive-getheaders introspection defenses"`

	FeeFilter bool `long:"feefilter" description:"Enable fee-filter egress to peers" default:"true"`

	MaxMempool uint32 `long:"maxmempool" description:"Mempool byte cap (MB), used to derive the fee-filter floor" default:"300"`

	LogDir string `long:"logdir" description:"Directory to store log files"`
}

// Defaults returns a Config populated with the documented defaults, used by
// callers (e.g. tests) that do not want to go through flag parsing.
func Defaults() *Config {
	return &Config{
		BlockMaxWeight:        defaultBlockMaxWeight,
		BlockMinTxFee:         defaultBlockMinTxFee,
		BlockReconstructExtra: defaultReconstructionExtra,
		HiveCheckDelay:        defaultHiveCheckDelayMillis,
		HiveCheckThreads:      -2,
		MaxOrphanTx:           defaultMaxOrphanTx,
		BanScore:              defaultBanScore,
		FeeFilter:             true,
		MaxMempool:            defaultMaxMempool,
	}
}

// ResolvedHiveThreads turns the -2-means-cores-minus-one convention and
// out-of-range clamping (spec.md §6) into a concrete worker count.
func (c *Config) ResolvedHiveThreads() int {
	cores := runtime.NumCPU()
	switch {
	case c.HiveCheckThreads == -2:
		if cores > 1 {
			return cores - 1
		}
		return 1
	case c.HiveCheckThreads <= 0 || c.HiveCheckThreads > cores:
		return cores
	default:
		return c.HiveCheckThreads
	}
}

// Load parses command-line arguments (and, when present, an INI config
// file) into a Config seeded with Defaults().
func Load(args []string) (*Config, error) {
	cfg := Defaults()
	parser := flags.NewParser(cfg, flags.Default)
	remaining, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}

	if cfg.ConfigFile != "" {
		if _, statErr := os.Stat(cfg.ConfigFile); statErr == nil {
			iniParser := flags.NewIniParser(parser)
			if err := iniParser.ParseFile(cfg.ConfigFile); err != nil {
				return nil, err
			}
		}
	}

	_ = remaining
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(".", "logs")
	}
	return cfg, nil
}
