// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package runner spawns the real compiler (or the compiler in -E/deps mode)
// and captures its result. Apart from cmd/cascache's direct exec of the real
// compiler on fallthrough, it is the only place in this module that blocks on
// a child process, per spec.md §5's single concurrent-unit model.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"

	"infra/cascache/internal/sigcleanup"
)

// Cmd describes a child process invocation.
type Cmd struct {
	Args    []string
	Env     []string
	Dir     string // working directory, may be relative to ExecRoot
	ExecRoot string
}

// Result is the captured outcome of running a Cmd.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// ExitError reports the real compiler (or preprocessor) exited non-zero.
// The orchestrator forwards Result.Stderr and this exit code to the caller
// verbatim; it is never a caching decision in itself (spec.md §7).
type ExitError struct {
	ExitCode int
}

func (e *ExitError) Error() string {
	return "exit status " + itoa(e.ExitCode)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		b[i] = '-'
	}
	return string(b[i:])
}

// Run spawns the command and blocks until it exits or ctx is done.
// A registered temp file cleanup list (sigcleanup) guarantees any temp files
// the caller registered are removed even if a fatal signal interrupts Run.
func Run(ctx context.Context, cmd *Cmd) (*Result, error) {
	if len(cmd.Args) == 0 {
		return nil, errors.New("runner: empty argv")
	}
	c := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	c.Env = cmd.Env
	dir := cmd.Dir
	if cmd.ExecRoot != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(cmd.ExecRoot, dir)
	}
	c.Dir = dir
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	release, err := sigcleanup.TrackChild(c)
	if err != nil {
		return nil, err
	}
	defer release()

	err = c.Run()
	res := &Result{
		ExitCode: exitCode(err),
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}
	if res.ExitCode != 0 {
		return res, &ExitError{ExitCode: res.ExitCode}
	}
	return res, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var eerr *exec.ExitError
	if !errors.As(err, &eerr) {
		return 1
	}
	if eerr.ExitCode() >= 0 {
		return eerr.ExitCode()
	}
	return 1
}
