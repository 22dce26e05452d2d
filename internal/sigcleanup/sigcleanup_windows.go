// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build windows

package sigcleanup

import (
	"os"
	"os/signal"
	"syscall"
)

// Windows has no SIGHUP/SIGQUIT; only the signals the platform supports are
// registered, per spec.md §5 ("where available").
func registerSignals(ch chan os.Signal) {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
}

func reraise(sig os.Signal) {
	signal.Reset()
	os.Exit(1)
}
