// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package sigcleanup implements the fatal-signal handling of spec.md §5:
// on SIGINT, SIGTERM, SIGHUP or SIGQUIT the handler resets the signal to its
// default disposition, forwards SIGTERM to a live child compiler, deletes
// every temp file registered by the current compilation, waits for the
// child, and re-raises the signal.
//
// Go delivers signals to a dedicated runtime goroutine rather than an
// async-signal-handler context, so the mutex below is the idiomatic
// equivalent of "the temp-file list is mutated only with fatal signals
// blocked": mutation and handler delivery are serialized the same way they
// would be by blocking the signal around a critical section in C.
package sigcleanup

import (
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
)

var (
	mu        sync.Mutex
	tempFiles = map[string]bool{}
	liveChild *exec.Cmd

	installed  bool
	signalChan chan os.Signal
)

// Install registers the fatal-signal handler. Calling it more than once is a
// no-op; the handler runs for the lifetime of the process.
func Install() {
	mu.Lock()
	defer mu.Unlock()
	if installed {
		return
	}
	installed = true
	signalChan = make(chan os.Signal, 1)
	registerSignals(signalChan)
	go handleSignals()
}

// RegisterTempFile adds path to the cleanup list. Call UnregisterTempFile (or
// the returned release func from TrackTempFile) once the file is removed
// through the normal path, to avoid a double-delete attempt on signal.
func RegisterTempFile(path string) {
	mu.Lock()
	defer mu.Unlock()
	tempFiles[path] = true
}

// UnregisterTempFile removes path from the cleanup list.
func UnregisterTempFile(path string) {
	mu.Lock()
	defer mu.Unlock()
	delete(tempFiles, path)
}

// TrackTempFile registers path and returns a release func that unregisters
// it; pair with defer so every acquisition has a guaranteed release.
func TrackTempFile(path string) func() {
	RegisterTempFile(path)
	return func() { UnregisterTempFile(path) }
}

// TrackChild records cmd as the live child compiler so a fatal SIGTERM can be
// forwarded to it. The returned release func must run once the child exits.
func TrackChild(cmd *exec.Cmd) (func(), error) {
	mu.Lock()
	liveChild = cmd
	mu.Unlock()
	return func() {
		mu.Lock()
		if liveChild == cmd {
			liveChild = nil
		}
		mu.Unlock()
	}, nil
}

func handleSignals() {
	sig := <-signalChan
	mu.Lock()
	signal.Stop(signalChan)
	child := liveChild
	files := make([]string, 0, len(tempFiles))
	for f := range tempFiles {
		files = append(files, f)
	}
	mu.Unlock()

	if s, ok := sig.(syscall.Signal); ok && s == syscall.SIGTERM && child != nil && child.Process != nil {
		child.Process.Signal(syscall.SIGTERM)
	}
	for _, f := range files {
		os.Remove(f)
	}
	if child != nil {
		child.Wait()
	}
	reraise(sig)
}
