// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peerstate

import "time"

// RateWindow is a sliding 60-second (or caller-chosen) counter used by every
// per-command rate limit in spec.md §4.1 (inv, getheaders, addr, notfound,
// reject, sendcmpct, filterload, mempool). It is intentionally simpler than
// a true sliding log: it tracks a window start and a count, resetting the
// count whenever the window has elapsed, which matches the coarse
// per-60s/per-600s/per-hour throttles the spec calls for.
type RateWindow struct {
	windowStart time.Time
	count       int
	window      time.Duration
}

// NewRateWindow creates a tracker with the given window length.
func NewRateWindow(window time.Duration) *RateWindow {
	return &RateWindow{window: window}
}

// Add records n events at now and returns the running count within the
// current window, rolling the window over when it has elapsed.
func (r *RateWindow) Add(now time.Time, n int) int {
	if now.Sub(r.windowStart) >= r.window {
		r.windowStart = now
		r.count = 0
	}
	r.count += n
	return r.count
}

// Count returns the current window's count without mutating it.
func (r *RateWindow) Count() int {
	return r.count
}
