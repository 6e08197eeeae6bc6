// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package log wires every subsystem's logger. Each package that wants to
// log obtains its own btclog.Logger from here and keeps it in an
// unexported package-level variable, following the convention used across
// the whole btcd-lineage (mstroehle-hcd, toole-brendan-shell).
package log

import (
	"io"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate"
)

// Subsystem tags, matched 1:1 with spec.md's components.
const (
	SubsystemPeer    = "PEER"
	SubsystemSync    = "SYNC"
	SubsystemMempool = "MEMP"
	SubsystemFees    = "FEES"
	SubsystemMiner   = "MINR"
	SubsystemHive    = "HIVE"
	SubsystemRelay   = "RLAY"
	SubsystemCore    = "CORE"
)

var backend = btclog.NewBackend(os.Stdout)

// loggers holds one Logger per subsystem tag so repeated calls to Logger
// return the same instance instead of re-wrapping the backend.
var loggers = make(map[string]btclog.Logger)

// Logger returns (creating if necessary) the subsystem logger for tag,
// defaulting to Info level.
func Logger(tag string) btclog.Logger {
	if l, ok := loggers[tag]; ok {
		return l
	}
	l := backend.Logger(tag)
	l.SetLevel(btclog.LevelInfo)
	loggers[tag] = l
	return l
}

// SetLevels applies lvl to every subsystem logger created so far.
func SetLevels(lvl btclog.Level) {
	for _, l := range loggers {
		l.SetLevel(lvl)
	}
}

// InitLogRotator starts a rotating file writer at logFile and fans backend
// output to both stdout and the rotator, matching the teacher-family
// convention of never losing console output when file logging is enabled.
func InitLogRotator(logFile string) (io.Closer, error) {
	r, err := logrotate.NewRotator(logFile)
	if err != nil {
		return nil, err
	}
	backend = btclog.NewBackend(io.MultiWriter(os.Stdout, r))
	for tag := range loggers {
		loggers[tag] = backend.Logger(tag)
	}
	return r, nil
}
