// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package msvcutil provides utilities for driving clang-cl/cl.exe in
// /showIncludes mode, used by the MSVC-flavored include marker in the
// Preprocessor Hasher (SPEC_FULL.md §8).
package msvcutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"infra/cascache/internal/concurrency/semaphore"
	"infra/cascache/internal/o11y/clog"
	"infra/cascache/internal/runner"
)

// msvc may localize this text, but we assume developers don't use that.
const depsPrefix = "Note: including file: "

// ParseShowIncludes parses /showIncludes output, returning the included
// files and the remaining (non-dependency) output bytes. A first line that
// is a bare file name (cl.exe echoes the source file name) is dropped.
func ParseShowIncludes(b []byte) ([]string, []byte) {
	// showIncludes contents
	//  Note: including file:  <pathname>\r\n
	//
	// other lines are normal stdout/stderr (e.g. compiler error message)
	var deps []string
	var outs []byte
	s := b
	first := true
	for len(s) > 0 {
		line := s
		i := bytes.IndexAny(s, "\r\n")
		if i >= 0 {
			line = line[:i]
			s = s[i:]
		} else {
			s = nil
		}
		isFilename := first && !bytes.ContainsAny(line, " \t:") && filepath.Ext(string(line)) != ""
		first = false
		if isFilename || bytes.HasPrefix(line, []byte(depsPrefix)) {
			if !isFilename {
				line = bytes.TrimPrefix(line, []byte(depsPrefix))
				line = bytes.TrimSpace(line)
				deps = append(deps, string(line))
			}
			if bytes.HasPrefix(s, []byte("\r")) {
				s = s[1:]
			}
			if bytes.HasPrefix(s, []byte("\n")) {
				s = s[1:]
			}
			continue
		}
		outs = append(outs, line...)
		if bytes.HasPrefix(s, []byte("\r")) {
			outs = append(outs, '\r')
			s = s[1:]
		}
		if bytes.HasPrefix(s, []byte("\n")) {
			outs = append(outs, '\n')
			s = s[1:]
		}
	}
	return deps, outs
}

// Semaphore bounds concurrent "get deps" sub-invocations of the compiler.
var Semaphore = semaphore.New("deps-msvc", runtime.NumCPU()*2)

// DepsArgs rewrites args to force /showIncludes and preprocess-only (/P)
// mode instead of compiling.
func DepsArgs(args []string) []string {
	var dargs []string
	hasShowIncludes := false
	for _, arg := range args {
		switch arg {
		case "/showIncludes:user":
			dargs = append(dargs, "/showIncludes")
			hasShowIncludes = true
			continue
		case "/showIncludes":
			hasShowIncludes = true
		case "/c":
			dargs = append(dargs, "/P")
			continue
		}
		switch {
		case strings.HasPrefix(arg, "/Fo"):
			continue
		case strings.HasPrefix(arg, "/Fd"):
			continue
		}
		dargs = append(dargs, arg)
	}
	if !hasShowIncludes {
		dargs = append(dargs, "/showIncludes")
	}
	return dargs
}

// Deps runs the compiler in /showIncludes mode, bounded by Semaphore, and
// returns the declared dependencies plus the source file itself, along with
// whatever stderr output wasn't a "Note: including file:" line (compiler
// warnings/errors, which the caller still needs to surface or hash).
func Deps(ctx context.Context, args, env []string, cwd string) ([]string, []byte, error) {
	s := time.Now()
	var src, out string
	for _, arg := range args {
		// /P generates *.i in the current dir
		switch ext := filepath.Ext(arg); ext {
		case ".cpp", ".cc", ".cxx", ".c", ".S", ".s":
			src = arg
			out = strings.TrimSuffix(filepath.Base(arg), ext) + ".i"
		}
	}
	cmd := &runner.Cmd{
		Args:     args,
		Env:      env,
		ExecRoot: cwd,
	}
	var res *runner.Result
	var wait time.Duration
	err := Semaphore.Do(ctx, func(ctx context.Context) error {
		wait = time.Since(s)
		var rerr error
		res, rerr = runner.Run(ctx, cmd)
		return rerr
	})
	if rerr := os.Remove(filepath.Join(cwd, out)); rerr != nil && !os.IsNotExist(rerr) {
		clog.Warningf(ctx, "failed to remove %s: %v", filepath.Join(cwd, out), rerr)
	}
	if err != nil {
		clog.Warningf(ctx, "failed to run %q: %v", args, err)
		return nil, nil, err
	}
	stderr := res.Stderr
	deps, extra := ParseShowIncludes(stderr)
	clog.Infof(ctx, "msvc deps stderr:%d -> deps:%d extra:%q %s (wait:%s)", len(stderr), len(deps), extra, time.Since(s), wait)
	deps = append(deps, src)
	return deps, extra, nil
}
