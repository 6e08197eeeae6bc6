// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command node is the process entrypoint: it parses configuration,
// initializes logging, and blocks until an interrupt signal; it does not
// construct a Core (see the note in run),
// following the signal-driven shutdown idiom common across the btcd
// lineage (btcd/btcwallet's own cmd/*/main.go).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kryptoin/litecoincash-sub001/config"
	nodelog "github.com/kryptoin/litecoincash-sub001/log"
)

var mlog = nodelog.Logger(nodelog.SubsystemCore)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if cfg.LogDir != "" {
		if closer, err := nodelog.InitLogRotator(cfg.LogDir + "/node.log"); err == nil {
			defer closer.Close()
		} else {
			mlog.Warnf("could not open log rotator: %v", err)
		}
	}

	mlog.Infof("starting node: blockmaxweight=%d hivecheckthreads=%d banscore=%d",
		cfg.BlockMaxWeight, cfg.ResolvedHiveThreads(), cfg.BanScore)

	// Wiring a live Core requires concrete Chain/Mempool/Outbound/mining.Source
	// collaborators backed by a chain database and a p2p transport, both of
	// which sit outside this core's scope (see SPEC_FULL.md's collaborator
	// boundaries). A deployment embeds this package and supplies those before
	// calling core.New; this entrypoint owns process lifecycle only.

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	mlog.Info("received interrupt, shutting down")
	return nil
}
